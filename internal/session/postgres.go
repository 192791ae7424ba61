package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voiceboat/voiceboat/internal/conversation"
)

// PostgresStore persists ConversationState rows and uses advisory locks for
// per-key exclusion, so a fleet of instances still serializes turns per
// conversation id.
type PostgresStore struct {
	pool   *pgxpool.Pool
	policy LockPolicy
}

func NewPostgresStore(ctx context.Context, databaseURL string, policy LockPolicy) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if policy != PolicyReject {
		policy = PolicySerialize
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_state (
			conversation_id TEXT PRIMARY KEY,
			state JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}

	return &PostgresStore{pool: pool, policy: policy}, nil
}

func (s *PostgresStore) GetOrCreate(ctx context.Context, conversationID string) (*conversation.State, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM conversation_state WHERE conversation_id=$1`,
		conversationID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (s *PostgresStore) Save(ctx context.Context, state *conversation.State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversation_state (conversation_id, state, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (conversation_id) DO UPDATE SET state=EXCLUDED.state, updated_at=now()`,
		state.ConversationID,
		raw,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) WithLock(ctx context.Context, conversationID string, fn func(ctx context.Context) error) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	key := advisoryKey(conversationID)
	if s.policy == PolicyReject {
		var got bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&got); err != nil {
			return fmt.Errorf("try advisory lock: %w", err)
		}
		if !got {
			return conversation.ErrTurnInFlight
		}
	} else {
		if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}
	}
	defer func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, key)
	}()

	return fn(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func advisoryKey(conversationID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(conversationID))
	return int64(h.Sum64())
}
