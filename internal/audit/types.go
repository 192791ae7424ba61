package audit

import (
	"context"
	"time"
)

// TurnRecord stores a single caller or bot utterance for auditing.
type TurnRecord struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	DriverID       string    `json:"driver_id,omitempty"`
	Role           string    `json:"role"`
	Text           string    `json:"text"`
	PIIRedacted    bool      `json:"pii_redacted"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store persists and retrieves audit transcripts. Transcripts are
// append-only within a conversation's lifetime.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	Transcript(ctx context.Context, conversationID string, limit int) ([]TurnRecord, error)
	Close() error
}
