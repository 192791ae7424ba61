package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/voiceboat/voiceboat/internal/conversation"
)

func newTestRedisStore(t *testing.T, policy LockPolicy) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreFromClient(client, policy), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	s, _ := newTestRedisStore(t, PolicySerialize)
	ctx := context.Background()

	st, err := s.GetOrCreate(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetOrCreate error = %v", err)
	}
	st.Language = conversation.LangHI
	st.CurrentIntent = conversation.IntentFindNearestStation
	st.Slots["location"] = "Delhi"
	st.Append(conversation.RoleUser, "station", time.Now().UTC())
	st.RetryCount = 1
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save error = %v", err)
	}

	got, err := s.GetOrCreate(ctx, "conv-1")
	if err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if got.Language != conversation.LangHI {
		t.Fatalf("language = %q, want hi", got.Language)
	}
	if got.CurrentIntent != conversation.IntentFindNearestStation {
		t.Fatalf("intent = %q, want latched intent preserved", got.CurrentIntent)
	}
	if got.Slots["location"] != "Delhi" {
		t.Fatalf("slots = %v, want location Delhi", got.Slots)
	}
	if len(got.History) != 1 || got.History[0].Text != "station" {
		t.Fatalf("history = %+v, want one user record", got.History)
	}
	if got.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", got.RetryCount)
	}
}

func TestRedisStoreUnknownIDCreatesFreshState(t *testing.T) {
	s, _ := newTestRedisStore(t, PolicySerialize)

	st, err := s.GetOrCreate(context.Background(), "conv-new")
	if err != nil {
		t.Fatalf("GetOrCreate error = %v", err)
	}
	if st.Status != conversation.StatusActive || len(st.History) != 0 {
		t.Fatalf("fresh state = %+v, want empty active session", st)
	}
	if st.Slots == nil {
		t.Fatalf("slots map not initialized")
	}
}

func TestRedisStoreRejectPolicy(t *testing.T) {
	s, mr := newTestRedisStore(t, PolicyReject)
	ctx := context.Background()

	// Simulate another instance holding the lease.
	if err := mr.Set(redisLockKeyPrefix+"conv-1", "other-owner"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	err := s.WithLock(ctx, "conv-1", func(ctx context.Context) error { return nil })
	if !errors.Is(err, conversation.ErrTurnInFlight) {
		t.Fatalf("WithLock error = %v, want ErrTurnInFlight", err)
	}
}

func TestRedisStoreSerializeWaitsForLease(t *testing.T) {
	s, mr := newTestRedisStore(t, PolicySerialize)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := mr.Set(redisLockKeyPrefix+"conv-1", "other-owner"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	released := make(chan struct{})
	go func() {
		time.Sleep(50 * time.Millisecond)
		mr.Del(redisLockKeyPrefix + "conv-1")
		close(released)
	}()

	ran := false
	err := s.WithLock(ctx, "conv-1", func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock error = %v", err)
	}
	<-released
	if !ran {
		t.Fatalf("locked fn never ran after lease release")
	}
}

func TestRedisStoreLockReleasedAfterTurn(t *testing.T) {
	s, mr := newTestRedisStore(t, PolicySerialize)
	ctx := context.Background()

	if err := s.WithLock(ctx, "conv-1", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("WithLock error = %v", err)
	}
	if mr.Exists(redisLockKeyPrefix + "conv-1") {
		t.Fatalf("lock key still present after turn")
	}
}
