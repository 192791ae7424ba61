package voice

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/voiceboat/voiceboat/internal/conversation"
)

// NewFailoverProviderPair builds recognizer/synthesizer adapters that prefer
// the primary backend and automatically switch to fallback when a primary
// call fails. Once fallback succeeds, it stays active until fallback fails;
// then primary is retried.
func NewFailoverProviderPair(
	primaryRecognizer Recognizer,
	primarySynthesizer Synthesizer,
	fallbackRecognizer Recognizer,
	fallbackSynthesizer Synthesizer,
) (Recognizer, Synthesizer) {
	state := &failoverState{}
	return &failoverRecognizer{
			state:    state,
			primary:  primaryRecognizer,
			fallback: fallbackRecognizer,
		}, &failoverSynthesizer{
			state:    state,
			primary:  primarySynthesizer,
			fallback: fallbackSynthesizer,
		}
}

type failoverState struct {
	fallbackActive atomic.Bool
}

func (s *failoverState) activateFallback() {
	s.fallbackActive.Store(true)
}

func (s *failoverState) deactivateFallback() {
	s.fallbackActive.Store(false)
}

func (s *failoverState) isFallbackActive() bool {
	return s.fallbackActive.Load()
}

type failoverRecognizer struct {
	state    *failoverState
	primary  Recognizer
	fallback Recognizer
}

func (r *failoverRecognizer) Transcribe(ctx context.Context, pcm []byte, sampleRate int, lang conversation.Language) (string, error) {
	if r.state.isFallbackActive() {
		text, fbErr := r.fallback.Transcribe(ctx, pcm, sampleRate, lang)
		if fbErr == nil {
			return text, nil
		}
		// Fallback failed after being active; try primary again.
		text, prErr := r.primary.Transcribe(ctx, pcm, sampleRate, lang)
		if prErr == nil {
			r.state.deactivateFallback()
			return text, nil
		}
		return "", fmt.Errorf("recognizer fallback failed: %v; recognizer primary failed: %w", fbErr, prErr)
	}

	text, prErr := r.primary.Transcribe(ctx, pcm, sampleRate, lang)
	if prErr == nil {
		return text, nil
	}

	text, fbErr := r.fallback.Transcribe(ctx, pcm, sampleRate, lang)
	if fbErr != nil {
		return "", fmt.Errorf("recognizer primary failed: %v; recognizer fallback failed: %w", prErr, fbErr)
	}
	r.state.activateFallback()
	return text, nil
}

type failoverSynthesizer struct {
	state    *failoverState
	primary  Synthesizer
	fallback Synthesizer
}

func (s *failoverSynthesizer) Synthesize(ctx context.Context, text string, lang conversation.Language) ([]byte, string, error) {
	if s.state.isFallbackActive() {
		out, format, fbErr := s.fallback.Synthesize(ctx, text, lang)
		if fbErr == nil {
			return out, format, nil
		}
		// Fallback failed after being active; try primary again.
		out, format, prErr := s.primary.Synthesize(ctx, text, lang)
		if prErr == nil {
			s.state.deactivateFallback()
			return out, format, nil
		}
		return nil, "", fmt.Errorf("synthesizer fallback failed: %v; synthesizer primary failed: %w", fbErr, prErr)
	}

	out, format, prErr := s.primary.Synthesize(ctx, text, lang)
	if prErr == nil {
		return out, format, nil
	}
	out, format, fbErr := s.fallback.Synthesize(ctx, text, lang)
	if fbErr != nil {
		return nil, "", fmt.Errorf("synthesizer primary failed: %v; synthesizer fallback failed: %w", prErr, fbErr)
	}
	s.state.activateFallback()
	return out, format, nil
}
