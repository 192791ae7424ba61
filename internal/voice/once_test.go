package voice

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/voiceboat/voiceboat/internal/audio"
	"github.com/voiceboat/voiceboat/internal/conversation"
)

func TestProcessOnceSilenceBecomesProactivePrompt(t *testing.T) {
	dialog := &scriptedDialog{
		noSpeechResult: conversation.TurnResult{ReplyText: "Are you there?", ProactivePrompt: true},
	}
	rec := &countingRecognizer{text: "never"}
	c := NewController(dialog, rec, NewMockProvider(), nil, nil, nil, nil, testControllerConfig())

	res, err := c.ProcessOnce(context.Background(), "conv-1", make([]byte, 16000), conversation.LangEN)
	if err != nil {
		t.Fatalf("ProcessOnce error = %v", err)
	}
	if !res.ProactivePrompt {
		t.Fatalf("ProactivePrompt = false, want true for silence")
	}
	if res.TranscribedText != "" {
		t.Fatalf("TranscribedText = %q, want empty", res.TranscribedText)
	}
	if res.ResponseText != "Are you there?" {
		t.Fatalf("ResponseText = %q, want proactive prompt", res.ResponseText)
	}
	if rec.callCount() != 0 {
		t.Fatalf("recognizer calls = %d, want 0 for silence", rec.callCount())
	}
	if len(res.Audio) == 0 {
		t.Fatalf("audio empty, want synthesized prompt")
	}
}

func TestProcessOnceSpeechTurn(t *testing.T) {
	dialog := &scriptedDialog{
		textResult: conversation.TurnResult{ReplyText: "Your subscription is active and valid until 2026-12-31.", ShouldEnd: true},
	}
	rec := &countingRecognizer{text: "check my subscription"}
	c := NewController(dialog, rec, NewMockProvider(), nil, nil, nil, nil, testControllerConfig())

	res, err := c.ProcessOnce(context.Background(), "conv-1", sinePCM(400, 0.5, 0.5, 16000), conversation.LangEN)
	if err != nil {
		t.Fatalf("ProcessOnce error = %v", err)
	}
	if res.TranscribedText != "check my subscription" {
		t.Fatalf("TranscribedText = %q, want transcription", res.TranscribedText)
	}
	if !res.ShouldEnd {
		t.Fatalf("ShouldEnd = false, want true")
	}
	if res.AudioFormat == "" || len(res.Audio) == 0 {
		t.Fatalf("audio missing: format=%q len=%d", res.AudioFormat, len(res.Audio))
	}
}

func TestProcessOnceWAVContainerInput(t *testing.T) {
	dialog := &scriptedDialog{
		textResult: conversation.TurnResult{ReplyText: "ok"},
	}
	rec := &countingRecognizer{text: "hello"}
	c := NewController(dialog, rec, NewMockProvider(), nil, nil, nil, nil, testControllerConfig())

	wav, err := audio.EncodeWAVPCM16LE(sinePCM(400, 0.5, 0.5, 16000), 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE error = %v", err)
	}
	res, err := c.ProcessOnce(context.Background(), "conv-1", wav, conversation.LangEN)
	if err != nil {
		t.Fatalf("ProcessOnce error = %v", err)
	}
	if res.TranscribedText != "hello" {
		t.Fatalf("TranscribedText = %q, want hello", res.TranscribedText)
	}
}

func TestProcessOnceRecognizerFailureApologizes(t *testing.T) {
	dialog := &scriptedDialog{}
	rec := &countingRecognizer{err: errors.New("stt down")}
	c := NewController(dialog, rec, NewMockProvider(), nil, nil, nil, nil, testControllerConfig())

	res, err := c.ProcessOnce(context.Background(), "conv-1", sinePCM(400, 0.5, 0.5, 16000), conversation.LangEN)
	if err != nil {
		t.Fatalf("ProcessOnce error = %v, want local recovery", err)
	}
	if !strings.Contains(res.ResponseText, "trouble") {
		t.Fatalf("ResponseText = %q, want apology", res.ResponseText)
	}
	if res.ShouldEnd || res.NeedsEscalation {
		t.Fatalf("result = %+v, want session still open", res)
	}
}
