package voice

import (
	"context"
	"strings"
	"time"

	"github.com/voiceboat/voiceboat/internal/audio"
	"github.com/voiceboat/voiceboat/internal/conversation"
)

// OnceResult is the outcome of a single request/response voice turn.
type OnceResult struct {
	TranscribedText string
	ResponseText    string
	Audio           []byte
	AudioFormat     string
	ProactivePrompt bool
	ShouldEnd       bool
	NeedsEscalation bool
}

// ProcessOnce runs one voice turn over a complete uploaded buffer: VAD, then
// recognize, then the dialogue, then synthesis of the reply. Silence and
// empty transcriptions become no-speech turns.
func (c *Controller) ProcessOnce(ctx context.Context, conversationID string, audioData []byte, lang conversation.Language) (OnceResult, error) {
	pcm, sampleRate, err := audio.DecodeWAVPCM16LE(audioData, 16000)
	if err != nil {
		return OnceResult{}, conversation.ErrInvalidInput
	}

	start := time.Now()
	det := Detect(pcm, sampleRate, c.cfg.Detector)
	if c.metrics != nil {
		c.metrics.ObserveStage("vad", time.Since(start))
	}

	var text string
	if det.HasSpeech {
		text, err = c.transcribe(ctx, pcm, sampleRate, lang)
		if err != nil {
			// Recover locally: apologize and keep the session ACTIVE.
			out := OnceResult{
				ResponseText: c.prompts.Pick(conversation.BucketApology, lang, conversationID, 0),
			}
			c.fillAudio(ctx, &out, lang)
			return out, nil
		}
	}

	var res conversation.TurnResult
	if strings.TrimSpace(text) == "" {
		res, err = c.dialog.HandleNoSpeech(ctx, conversationID, lang)
	} else {
		res, err = c.dialog.HandleText(ctx, conversationID, text, lang)
	}
	if err != nil {
		return OnceResult{}, err
	}

	out := OnceResult{
		TranscribedText: text,
		ResponseText:    res.ReplyText,
		ProactivePrompt: res.ProactivePrompt,
		ShouldEnd:       res.ShouldEnd,
		NeedsEscalation: res.NeedsEscalation,
	}
	c.fillAudio(ctx, &out, lang)
	return out, nil
}

func (c *Controller) fillAudio(ctx context.Context, out *OnceResult, lang conversation.Language) {
	if strings.TrimSpace(out.ResponseText) == "" || c.synthesizer == nil {
		return
	}
	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, c.cfg.SynthesizeTimeout)
	defer cancel()
	audioBytes, format, err := c.synthesizer.Synthesize(sctx, out.ResponseText, lang)
	if c.metrics != nil {
		c.metrics.ObserveStage("synthesize", time.Since(start))
	}
	if err != nil {
		// Text reply still goes out; the caller can fall back to client-side
		// synthesis.
		return
	}
	out.Audio = audioBytes
	out.AudioFormat = format
}
