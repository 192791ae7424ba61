package telephony

import (
	"context"

	"go.uber.org/zap"
)

// Gateway is the narrow telephony contract the webhook layer depends on.
// Concrete carrier integrations live behind it.
type Gateway interface {
	AnswerCall(ctx context.Context, callSID, from, to string) (Document, error)
	TransferToAgent(ctx context.Context, callSID, agentNumber string) error
}

// MockGateway builds instruction documents locally and logs transfers. It is
// the default when no carrier credentials are configured.
type MockGateway struct {
	streamURL string
	greeting  string
	log       *zap.Logger
}

func NewMockGateway(streamURL, greeting string, log *zap.Logger) *MockGateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &MockGateway{streamURL: streamURL, greeting: greeting, log: log}
}

func (g *MockGateway) AnswerCall(_ context.Context, callSID, from, to string) (Document, error) {
	g.log.Info("incoming call",
		zap.String("call_sid", callSID),
		zap.String("from", from),
		zap.String("to", to),
	)
	doc := Document{
		Say:    &Say{Voice: "alice", Text: g.greeting},
		Gather: &Gather{Input: "speech", Timeout: 5},
	}
	if g.streamURL != "" {
		doc.Start = &Start{Stream: Stream{URL: g.streamURL}}
	}
	return doc, nil
}

func (g *MockGateway) TransferToAgent(_ context.Context, callSID, agentNumber string) error {
	doc, err := Document{Dial: &Dial{Number: agentNumber}}.Render()
	if err != nil {
		return err
	}
	g.log.Info("transferring call to agent",
		zap.String("call_sid", callSID),
		zap.String("agent_number", agentNumber),
		zap.ByteString("instruction", doc),
	)
	return nil
}
