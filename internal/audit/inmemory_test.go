package audit

import (
	"context"
	"testing"
)

func TestInMemoryStoreAppendsAndReturnsChronological(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	turns := []TurnRecord{
		{ConversationID: "conv-1", Role: "user", Text: "find station"},
		{ConversationID: "conv-1", Role: "bot", Text: "Which area are you in?"},
		{ConversationID: "conv-1", Role: "user", Text: "Noida"},
	}
	for _, rec := range turns {
		if err := s.SaveTurn(ctx, rec); err != nil {
			t.Fatalf("SaveTurn error = %v", err)
		}
	}

	got, err := s.Transcript(ctx, "conv-1", 0)
	if err != nil {
		t.Fatalf("Transcript error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("transcript length = %d, want 3", len(got))
	}
	for i, rec := range got {
		if rec.Text != turns[i].Text {
			t.Fatalf("transcript[%d] = %q, want %q (append order preserved)", i, rec.Text, turns[i].Text)
		}
		if rec.ID == "" {
			t.Fatalf("transcript[%d] missing generated id", i)
		}
		if rec.CreatedAt.IsZero() {
			t.Fatalf("transcript[%d] missing timestamp", i)
		}
	}
}

func TestInMemoryStoreLimit(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_ = s.SaveTurn(ctx, TurnRecord{ConversationID: "conv-1", Role: "user", Text: "x"})
	}
	got, err := s.Transcript(ctx, "conv-1", 2)
	if err != nil {
		t.Fatalf("Transcript error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("transcript length = %d, want 2", len(got))
	}
}

func TestInMemoryStoreUnknownConversation(t *testing.T) {
	s := NewInMemoryStore()
	got, err := s.Transcript(context.Background(), "missing", 10)
	if err != nil {
		t.Fatalf("Transcript error = %v", err)
	}
	if got != nil {
		t.Fatalf("transcript = %v, want nil", got)
	}
}
