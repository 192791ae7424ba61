package conversation

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// StubDataClient returns canned backend records. It is the default data
// adapter when no backend endpoint is configured.
type StubDataClient struct{}

func NewStubDataClient() *StubDataClient { return &StubDataClient{} }

func (c *StubDataClient) SwapHistory(_ context.Context, _ string, _ string) ([]SwapRecord, error) {
	return []SwapRecord{
		{Time: "2026-01-22 14:30", Station: "Station A", BatteryID: "B123"},
	}, nil
}

func (c *StubDataClient) NearestStation(_ context.Context, location string) (Station, error) {
	return Station{
		Name:    fmt.Sprintf("Station %s", location),
		Address: fmt.Sprintf("Main Road, %s", location),
	}, nil
}

func (c *StubDataClient) Subscription(_ context.Context, _ string) (SubscriptionInfo, error) {
	return SubscriptionInfo{Status: "active", Expiry: "2026-12-31"}, nil
}

func (c *StubDataClient) Availability(_ context.Context, location string) (AvailabilityInfo, error) {
	return AvailabilityInfo{StationName: fmt.Sprintf("Station %s", location), Batteries: 4}, nil
}

// LogHandoff records escalations in the service log. It is the terminal sink
// when no handoff webhook is configured.
type LogHandoff struct {
	log   *zap.Logger
	count atomic.Int64
}

func NewLogHandoff(log *zap.Logger) *LogHandoff {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogHandoff{log: log}
}

func (h *LogHandoff) Escalate(_ context.Context, conversationID string, summary EscalationSummary) error {
	h.count.Add(1)
	h.log.Info("escalation",
		zap.String("conversation_id", conversationID),
		zap.String("reason", summary.Reason),
		zap.String("intent", string(summary.Intent)),
		zap.Int("history_len", len(summary.History)),
	)
	return nil
}

// Count reports how many escalations this sink has received.
func (h *LogHandoff) Count() int64 { return h.count.Load() }
