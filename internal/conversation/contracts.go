package conversation

import "context"

// Understander turns one utterance into an intent, entities, sentiment and a
// confidence score.
type Understander interface {
	Analyze(ctx context.Context, text string, lang Language) (NLUResult, error)
}

// DataClient performs the domain lookups the intent handlers need.
type DataClient interface {
	SwapHistory(ctx context.Context, driverID, dateRange string) ([]SwapRecord, error)
	NearestStation(ctx context.Context, location string) (Station, error)
	Subscription(ctx context.Context, driverID string) (SubscriptionInfo, error)
	Availability(ctx context.Context, location string) (AvailabilityInfo, error)
}

// Handoff transfers a conversation to a human agent with a summary payload.
type Handoff interface {
	Escalate(ctx context.Context, conversationID string, summary EscalationSummary) error
}

// Store keeps ConversationState keyed by conversation id. WithLock provides
// exclusive access to one session for the duration of a turn; a replacement
// backed by a networked store must implement the same per-key exclusion.
type Store interface {
	GetOrCreate(ctx context.Context, conversationID string) (*State, error)
	Save(ctx context.Context, state *State) error
	WithLock(ctx context.Context, conversationID string, fn func(ctx context.Context) error) error
}
