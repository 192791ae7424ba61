package conversation

import (
	"strings"
	"time"
)

// Language identifies a negotiated dialogue language.
type Language string

const (
	LangEN Language = "en"
	LangHI Language = "hi"
)

// NormalizeLanguage maps locale tags like "en-US" or "hi-IN" onto the
// dialogue languages. Unknown tags fall back to English.
func NormalizeLanguage(tag string) Language {
	t := strings.ToLower(strings.TrimSpace(tag))
	switch {
	case t == "hi" || strings.HasPrefix(t, "hi-"):
		return LangHI
	case t == "en" || strings.HasPrefix(t, "en-"):
		return LangEN
	default:
		return LangEN
	}
}

// Intent is the closed set of driver requests the assistant understands.
// The zero value means no intent is latched.
type Intent string

const (
	IntentGetSwapHistory     Intent = "GetSwapHistory"
	IntentExplainInvoice     Intent = "ExplainInvoice"
	IntentFindNearestStation Intent = "FindNearestStation"
	IntentCheckAvailability  Intent = "CheckAvailability"
	IntentCheckSubscription  Intent = "CheckSubscription"
	IntentRenewSubscription  Intent = "RenewSubscription"
	IntentPricingInfo        Intent = "PricingInfo"
	IntentLeaveInfo          Intent = "LeaveInfo"
	IntentFindDSK            Intent = "FindDSK"
	IntentUnknown            Intent = "Unknown"
)

// Sentiment is the closed set of caller sentiments reported by the NLU.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentAngry    Sentiment = "angry"
)

// Status describes the session lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusEscalated Status = "escalated"
)

// Role labels a history record.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// HistoryTurn is one utterance in a conversation transcript.
type HistoryTurn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// State is the full dialogue state for one conversation id. It is mutated
// only by the turn that currently owns the session lock.
type State struct {
	ConversationID  string            `json:"conversation_id"`
	DriverID        string            `json:"driver_id,omitempty"`
	Language        Language          `json:"language"`
	CurrentIntent   Intent            `json:"current_intent,omitempty"`
	Slots           map[string]string `json:"slots"`
	Status          Status            `json:"status"`
	History         []HistoryTurn     `json:"history"`
	RetryCount      int               `json:"retry_count"`
	NoResponseCount int               `json:"no_response_count"`
	LastActivity    time.Time         `json:"last_activity"`
	EndReason       string            `json:"end_reason,omitempty"`
	DroppedChunks   int               `json:"dropped_chunks"`
}

// NewState creates a fresh ACTIVE state for a conversation id.
func NewState(conversationID string) *State {
	return &State{
		ConversationID: conversationID,
		Language:       LangEN,
		Slots:          make(map[string]string),
		Status:         StatusActive,
		LastActivity:   time.Now().UTC(),
	}
}

// Terminal reports whether no further turns may run on this session.
func (s *State) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusEscalated
}

// Append adds a history record. History is append-only; callers never
// reorder it.
func (s *State) Append(role Role, text string, at time.Time) {
	s.History = append(s.History, HistoryTurn{Role: role, Text: text, At: at})
}

// Touch advances LastActivity, keeping it strictly increasing even when the
// clock does not move between commits.
func (s *State) Touch(now time.Time) {
	if !now.After(s.LastActivity) {
		now = s.LastActivity.Add(time.Nanosecond)
	}
	s.LastActivity = now
}

// NLUResult is the understander's reading of one utterance.
type NLUResult struct {
	Intent     Intent            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
	Sentiment  Sentiment         `json:"sentiment"`
}

// TurnResult is the orchestrator's verdict for one turn. Escalation is
// signalled here as a value, never as an error.
type TurnResult struct {
	ReplyText       string         `json:"reply_text"`
	ShouldEnd       bool           `json:"should_end"`
	NeedsEscalation bool           `json:"needs_escalation"`
	ProactivePrompt bool           `json:"proactive_prompt"`
	Data            map[string]any `json:"data,omitempty"`
}

// SwapRecord is one battery swap in a driver's history.
type SwapRecord struct {
	Time      string `json:"time"`
	Station   string `json:"station"`
	BatteryID string `json:"battery_id"`
}

// Station is a swap station returned by the data backend.
type Station struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// SubscriptionInfo is a driver's subscription status.
type SubscriptionInfo struct {
	Status string `json:"status"`
	Expiry string `json:"expiry"`
}

// AvailabilityInfo is the battery availability at the station nearest to a
// location.
type AvailabilityInfo struct {
	StationName string `json:"station_name"`
	Batteries   int    `json:"batteries"`
}

// EscalationSummary is the payload handed to a human agent.
type EscalationSummary struct {
	Reason  string            `json:"reason"`
	Intent  Intent            `json:"intent,omitempty"`
	Slots   map[string]string `json:"slots,omitempty"`
	History []HistoryTurn     `json:"history,omitempty"`
}
