package session

import (
	"context"
	"fmt"
	"time"

	"github.com/voiceboat/voiceboat/internal/conversation"
)

// Options selects and tunes a session store backend.
type Options struct {
	Backend           string
	LockPolicy        LockPolicy
	InactivityTimeout time.Duration
	Retention         time.Duration
	RedisURL          string
	DatabaseURL       string
}

// NewStore builds the configured session store. Callers depend only on
// conversation.Store; backends are interchangeable.
func NewStore(ctx context.Context, opts Options) (conversation.Store, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(opts.LockPolicy, opts.InactivityTimeout, opts.Retention), nil
	case "redis":
		return NewRedisStore(opts.RedisURL, opts.LockPolicy)
	case "postgres":
		return NewPostgresStore(ctx, opts.DatabaseURL, opts.LockPolicy)
	default:
		return nil, fmt.Errorf("invalid session backend: %q", opts.Backend)
	}
}
