package voice

import (
	"context"
	"strings"

	"github.com/voiceboat/voiceboat/internal/conversation"
)

// MockProvider is the local fallback recognizer/synthesizer used when no
// speech endpoints are configured.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Transcribe(_ context.Context, pcm []byte, _ int, lang conversation.Language) (string, error) {
	if len(pcm) == 0 || allZero(pcm) {
		return "", nil
	}
	if lang == conversation.LangHI {
		return "नमस्ते", nil
	}
	return "simulated voice input", nil
}

func (p *MockProvider) Synthesize(_ context.Context, text string, _ conversation.Language) ([]byte, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", nil
	}
	return []byte(text), "mock_text_bytes", nil
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
