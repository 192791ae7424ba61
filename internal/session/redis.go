package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/voiceboat/voiceboat/internal/conversation"
	"github.com/voiceboat/voiceboat/internal/reliability"
)

const (
	redisSessionKeyPrefix = "vb:session:"
	redisLockKeyPrefix    = "vb:lock:"

	redisLockTTL      = 30 * time.Second
	redisLockPollBase = 20 * time.Millisecond
	redisLockPollCap  = 250 * time.Millisecond
)

// Lua compare-and-delete so a lock is only released by its owner.
const redisUnlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`

// RedisStore keeps ConversationState in Redis with a per-key lease lock. It
// satisfies the same exclusion contract as the in-memory store, so callers
// never change.
type RedisStore struct {
	client *redis.Client
	policy LockPolicy
}

func NewRedisStore(url string, policy LockPolicy) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if policy != PolicyReject {
		policy = PolicySerialize
	}
	return &RedisStore{client: redis.NewClient(opts), policy: policy}, nil
}

// NewRedisStoreFromClient wires an existing client; used by tests.
func NewRedisStoreFromClient(client *redis.Client, policy LockPolicy) *RedisStore {
	if policy != PolicyReject {
		policy = PolicySerialize
	}
	return &RedisStore{client: client, policy: policy}
}

func (s *RedisStore) GetOrCreate(ctx context.Context, conversationID string) (*conversation.State, error) {
	raw, err := s.client.Get(ctx, redisSessionKeyPrefix+conversationID).Bytes()
	if errors.Is(err, redis.Nil) {
		return conversation.NewState(conversationID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var st conversation.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if st.Slots == nil {
		st.Slots = make(map[string]string)
	}
	return &st, nil
}

func (s *RedisStore) Save(ctx context.Context, state *conversation.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, redisSessionKeyPrefix+state.ConversationID, raw, 0).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *RedisStore) WithLock(ctx context.Context, conversationID string, fn func(ctx context.Context) error) error {
	key := redisLockKeyPrefix + conversationID
	token := uuid.NewString()

	for attempt := 0; ; attempt++ {
		ok, err := s.client.SetNX(ctx, key, token, redisLockTTL).Result()
		if err != nil {
			return fmt.Errorf("acquire session lock: %w", err)
		}
		if ok {
			break
		}
		if s.policy == PolicyReject {
			return conversation.ErrTurnInFlight
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reliability.ExponentialBackoff(attempt, redisLockPollBase, redisLockPollCap)):
		}
	}

	defer func() {
		// Release with a detached context so a cancelled turn still frees
		// the lease.
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.client.Eval(rctx, redisUnlockScript, []string{key}, token).Err()
	}()

	return fn(ctx)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
