package voice

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/voiceboat/voiceboat/internal/conversation"
)

type flakyRecognizer struct {
	mu    sync.Mutex
	fail  bool
	calls int
	text  string
}

func (r *flakyRecognizer) Transcribe(_ context.Context, _ []byte, _ int, _ conversation.Language) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.fail {
		return "", errors.New("recognizer down")
	}
	return r.text, nil
}

type flakySynthesizer struct {
	mu    sync.Mutex
	fail  bool
	calls int
	tag   string
}

func (s *flakySynthesizer) Synthesize(_ context.Context, text string, _ conversation.Language) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return nil, "", errors.New("synthesizer down")
	}
	return []byte(text), s.tag, nil
}

func TestFailoverSwitchesToFallbackAndSticks(t *testing.T) {
	primaryRec := &flakyRecognizer{fail: true, text: "primary"}
	fallbackRec := &flakyRecognizer{text: "fallback"}
	primarySyn := &flakySynthesizer{tag: "primary"}
	fallbackSyn := &flakySynthesizer{tag: "fallback"}

	rec, syn := NewFailoverProviderPair(primaryRec, primarySyn, fallbackRec, fallbackSyn)
	ctx := context.Background()

	text, err := rec.Transcribe(ctx, []byte{1}, 16000, conversation.LangEN)
	if err != nil {
		t.Fatalf("Transcribe error = %v", err)
	}
	if text != "fallback" {
		t.Fatalf("text = %q, want fallback after primary failure", text)
	}

	// The failover state is shared: synthesis now prefers fallback too.
	_, tag, err := syn.Synthesize(ctx, "hello", conversation.LangEN)
	if err != nil {
		t.Fatalf("Synthesize error = %v", err)
	}
	if tag != "fallback" {
		t.Fatalf("format tag = %q, want fallback while failover active", tag)
	}
	if primarySyn.calls != 0 {
		t.Fatalf("primary synthesizer called %d times while fallback active, want 0", primarySyn.calls)
	}
}

func TestFailoverReturnsToPrimaryWhenFallbackFails(t *testing.T) {
	primaryRec := &flakyRecognizer{fail: true, text: "primary"}
	fallbackRec := &flakyRecognizer{text: "fallback"}
	primarySyn := &flakySynthesizer{tag: "primary"}
	fallbackSyn := &flakySynthesizer{tag: "fallback"}

	rec, syn := NewFailoverProviderPair(primaryRec, primarySyn, fallbackRec, fallbackSyn)
	ctx := context.Background()

	if _, err := rec.Transcribe(ctx, []byte{1}, 16000, conversation.LangEN); err != nil {
		t.Fatalf("Transcribe error = %v", err)
	}

	// Fallback dies; primary has recovered.
	fallbackSyn.fail = true
	_, tag, err := syn.Synthesize(ctx, "hello", conversation.LangEN)
	if err != nil {
		t.Fatalf("Synthesize error = %v", err)
	}
	if tag != "primary" {
		t.Fatalf("format tag = %q, want primary after fallback failure", tag)
	}

	// Deactivation is shared back to the recognizer.
	primaryRec.fail = false
	text, err := rec.Transcribe(ctx, []byte{1}, 16000, conversation.LangEN)
	if err != nil {
		t.Fatalf("Transcribe error = %v", err)
	}
	if text != "primary" {
		t.Fatalf("text = %q, want primary after recovery", text)
	}
}

func TestFailoverBothFailing(t *testing.T) {
	primaryRec := &flakyRecognizer{fail: true}
	fallbackRec := &flakyRecognizer{fail: true}
	rec, _ := NewFailoverProviderPair(primaryRec, &flakySynthesizer{}, fallbackRec, &flakySynthesizer{})

	if _, err := rec.Transcribe(context.Background(), []byte{1}, 16000, conversation.LangEN); err == nil {
		t.Fatalf("Transcribe error = nil, want error when both backends fail")
	}
}
