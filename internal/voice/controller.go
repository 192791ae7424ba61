package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voiceboat/voiceboat/internal/conversation"
	"github.com/voiceboat/voiceboat/internal/observability"
	"github.com/voiceboat/voiceboat/internal/protocol"
	"github.com/voiceboat/voiceboat/internal/reliability"
)

// SessionState labels the turn controller's state machine.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateGreeting   SessionState = "greeting"
	StateListening  SessionState = "listening"
	StateProcessing SessionState = "processing"
	StateSpeaking   SessionState = "speaking"
	StateTerminal   SessionState = "terminal"
)

// ControllerConfig tunes the per-session audio loop.
type ControllerConfig struct {
	SilenceWindow         time.Duration
	EndOfUtteranceSilence time.Duration
	RecognizeTimeout      time.Duration
	SynthesizeTimeout     time.Duration
	BackpressureMode      string // "drop" or "queue"
	MaxQueuedChunks       int
	Detector              DetectorConfig
}

func (c *ControllerConfig) applyDefaults() {
	if c.SilenceWindow <= 0 {
		c.SilenceWindow = 1500 * time.Millisecond
	}
	if c.EndOfUtteranceSilence <= 0 {
		c.EndOfUtteranceSilence = 1500 * time.Millisecond
	}
	if c.RecognizeTimeout <= 0 {
		c.RecognizeTimeout = 10 * time.Second
	}
	if c.SynthesizeTimeout <= 0 {
		c.SynthesizeTimeout = 10 * time.Second
	}
	if c.BackpressureMode != "queue" {
		c.BackpressureMode = "drop"
	}
	if c.MaxQueuedChunks <= 0 {
		c.MaxQueuedChunks = 32
	}
	if c.Detector == (DetectorConfig{}) {
		c.Detector = DefaultDetectorConfig()
	}
}

// Controller drives one audio turn at a time for a session: receive chunk,
// decide (speech, silence, timeout), dispatch to recognize or to a
// proactive prompt. The dialogue brain stays behind the Dialog contract.
type Controller struct {
	dialog      Dialog
	recognizer  Recognizer
	synthesizer Synthesizer
	prompts     *conversation.Prompts
	monitor     *reliability.Monitor
	metrics     *observability.Metrics
	log         *zap.Logger
	cfg         ControllerConfig
}

func NewController(
	dialog Dialog,
	recognizer Recognizer,
	synthesizer Synthesizer,
	prompts *conversation.Prompts,
	monitor *reliability.Monitor,
	metrics *observability.Metrics,
	log *zap.Logger,
	cfg ControllerConfig,
) *Controller {
	cfg.applyDefaults()
	if prompts == nil {
		prompts = conversation.DefaultPrompts()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		dialog:      dialog,
		recognizer:  recognizer,
		synthesizer: synthesizer,
		prompts:     prompts,
		monitor:     monitor,
		metrics:     metrics,
		log:         log,
		cfg:         cfg,
	}
}

// RunSession owns the audio loop for one connection. It returns when the
// dialogue reaches a terminal turn, the caller hangs up, the inbound channel
// closes, or ctx is cancelled.
func (c *Controller) RunSession(ctx context.Context, conversationID string, lang conversation.Language, inbound <-chan any, outbound chan<- any) error {
	state := StateGreeting
	c.emit(ctx, outbound, protocol.SystemEvent{
		Type:           protocol.TypeSystemEvent,
		ConversationID: conversationID,
		Code:           "session_started",
	})
	greeting := c.prompts.Pick(conversation.BucketGreeting, lang, conversationID, 0)
	c.speak(ctx, outbound, conversationID, uuid.NewString(), lang, greeting, false, "greeting")
	state = StateListening

	var (
		buf        []byte
		sampleRate = 16000
		speechSeen bool
		eouArmed   bool
	)
	silence := time.NewTimer(c.cfg.SilenceWindow)
	defer silence.Stop()
	eou := time.NewTimer(time.Hour)
	stopTimer(eou)
	defer eou.Stop()

	resetListening := func() {
		buf = nil
		speechSeen = false
		eouArmed = false
		stopTimer(eou)
		resetTimer(silence, c.cfg.SilenceWindow)
		state = StateListening
	}

	// arm re-checks a queued backlog once the loop returns to LISTENING.
	arm := func() {
		if len(buf) == 0 {
			return
		}
		det := Detect(buf, sampleRate, c.cfg.Detector)
		if det.HasSpeech {
			speechSeen = true
			eouArmed = true
			stopTimer(silence)
			resetTimer(eou, c.cfg.EndOfUtteranceSilence)
		}
	}

	// finishTurn speaks the reply, relieves backpressure, and reports
	// whether the session reached a terminal turn.
	finishTurn := func(res conversation.TurnResult, turnID string) (terminal bool, closed bool) {
		state = StateSpeaking
		reason := "reply"
		switch {
		case res.NeedsEscalation:
			reason = "escalated"
		case res.ShouldEnd:
			reason = "completed"
		case res.ProactivePrompt:
			reason = "proactive"
		}
		c.speak(ctx, outbound, conversationID, turnID, lang, res.ReplyText, res.ProactivePrompt, reason)

		// The finished utterance is discarded; only chunks queued while busy
		// carry over into the next LISTENING phase.
		buf = nil
		dropped, control, chanClosed := c.relieveBackpressure(inbound, &buf, &sampleRate)
		if dropped > 0 {
			// NoteDroppedChunks also increments the dropped-chunks counter.
			if err := c.dialog.NoteDroppedChunks(ctx, conversationID, dropped); err != nil {
				c.log.Warn("record dropped chunks failed", zap.Error(err))
			}
		}
		if res.ShouldEnd || res.NeedsEscalation {
			state = StateTerminal
			c.emit(ctx, outbound, protocol.SystemEvent{
				Type:           protocol.TypeSystemEvent,
				ConversationID: conversationID,
				Code:           "session_closed",
				Detail:         reason,
			})
			return true, chanClosed
		}
		if control != nil && control.Action == protocol.ActionHangup {
			c.cancelSession(conversationID)
			c.emit(ctx, outbound, protocol.SystemEvent{
				Type:           protocol.TypeSystemEvent,
				ConversationID: conversationID,
				Code:           "session_closed",
				Detail:         "hangup",
			})
			return true, chanClosed
		}
		if chanClosed {
			c.cancelSession(conversationID)
			return true, true
		}
		backlog := buf
		resetListening()
		buf = backlog
		arm()
		return false, false
	}

	for state != StateTerminal {
		select {
		case <-ctx.Done():
			c.cancelSession(conversationID)
			return ctx.Err()

		case msg, ok := <-inbound:
			if !ok {
				c.cancelSession(conversationID)
				return nil
			}
			switch m := msg.(type) {
			case protocol.CallerControl:
				if m.Action == protocol.ActionHangup {
					c.cancelSession(conversationID)
					c.emit(ctx, outbound, protocol.SystemEvent{
						Type:           protocol.TypeSystemEvent,
						ConversationID: conversationID,
						Code:           "session_closed",
						Detail:         "hangup",
					})
					return nil
				}
			case protocol.CallerAudioChunk:
				pcm, err := base64.StdEncoding.DecodeString(m.PCM16Base64)
				if err != nil {
					c.emit(ctx, outbound, protocol.ErrorEvent{
						Type:           protocol.TypeErrorEvent,
						ConversationID: conversationID,
						Code:           "invalid_audio_chunk",
						Source:         "gateway",
						Detail:         err.Error(),
					})
					continue
				}
				if m.SampleRate > 0 {
					sampleRate = m.SampleRate
				}
				buf = append(buf, pcm...)

				start := time.Now()
				det := Detect(buf, sampleRate, c.cfg.Detector)
				if c.metrics != nil {
					c.metrics.ObserveStage("vad", time.Since(start))
				}
				if det.HasSpeech {
					speechSeen = true
					stopTimer(silence)
				}
				// End-of-utterance tracks per-chunk activity: the cumulative
				// buffer stays speech-positive after the first word, so only
				// a speech-bearing chunk may push the deadline out. The
				// duration gate does not apply to a single chunk.
				if speechSeen {
					chunkCfg := c.cfg.Detector
					chunkCfg.MinSpeechSeconds = 0
					if !eouArmed || Detect(pcm, sampleRate, chunkCfg).HasSpeech {
						resetTimer(eou, c.cfg.EndOfUtteranceSilence)
						eouArmed = true
					}
				}
			}

		case <-silence.C:
			if state != StateListening || speechSeen {
				continue
			}
			state = StateProcessing
			res, err := c.dialog.HandleNoSpeech(ctx, conversationID, lang)
			if err != nil {
				if c.handleDialogError(ctx, outbound, conversationID, err) {
					return nil
				}
				resetListening()
				continue
			}
			terminal, _ := finishTurn(res, uuid.NewString())
			if terminal {
				return nil
			}

		case <-eou.C:
			if state != StateListening || !speechSeen {
				continue
			}
			state = StateProcessing
			turnID := uuid.NewString()
			utterance := buf

			// The buffer was speech when end-of-utterance armed, but never
			// hand a silence-classified buffer to the recognizer.
			det := Detect(utterance, sampleRate, c.cfg.Detector)
			var (
				res  conversation.TurnResult
				err  error
				text string
			)
			if det.HasSpeech {
				text, err = c.transcribe(ctx, utterance, sampleRate, lang)
				if err != nil {
					c.emit(ctx, outbound, protocol.ErrorEvent{
						Type:           protocol.TypeErrorEvent,
						ConversationID: conversationID,
						Code:           "recognize_failed",
						Source:         "recognizer",
						Retryable:      true,
						Detail:         err.Error(),
					})
					c.speak(ctx, outbound, conversationID, turnID, lang,
						c.prompts.Pick(conversation.BucketApology, lang, conversationID, 0), false, "apology")
					resetListening()
					continue
				}
			}

			if strings.TrimSpace(text) == "" {
				// Silence-classified tail or empty transcription: both are a
				// no-speech turn.
				res, err = c.dialog.HandleNoSpeech(ctx, conversationID, lang)
			} else {
				c.emit(ctx, outbound, protocol.Transcript{
					Type:           protocol.TypeTranscript,
					ConversationID: conversationID,
					Text:           text,
					TSMs:           time.Now().UnixMilli(),
				})
				res, err = c.dialog.HandleText(ctx, conversationID, text, lang)
			}
			if err != nil {
				if c.handleDialogError(ctx, outbound, conversationID, err) {
					return nil
				}
				c.speak(ctx, outbound, conversationID, turnID, lang,
					c.prompts.Pick(conversation.BucketApology, lang, conversationID, 0), false, "apology")
				resetListening()
				continue
			}
			terminal, _ := finishTurn(res, turnID)
			if terminal {
				return nil
			}
		}
	}
	return nil
}

// handleDialogError reports a dialogue failure to the peer and returns true
// when the session must close.
func (c *Controller) handleDialogError(ctx context.Context, outbound chan<- any, conversationID string, err error) (terminal bool) {
	code := "turn_failed"
	terminal = errors.Is(err, conversation.ErrSessionTerminal)
	if terminal {
		code = "session_terminal"
	}
	c.emit(ctx, outbound, protocol.ErrorEvent{
		Type:           protocol.TypeErrorEvent,
		ConversationID: conversationID,
		Code:           code,
		Source:         "orchestrator",
		Retryable:      !terminal,
		Detail:         err.Error(),
	})
	return terminal
}

func (c *Controller) transcribe(ctx context.Context, pcm []byte, sampleRate int, lang conversation.Language) (string, error) {
	start := time.Now()
	rctx, cancel := context.WithTimeout(ctx, c.cfg.RecognizeTimeout)
	defer cancel()

	text, err := c.recognizer.Transcribe(rctx, pcm, sampleRate, lang)
	if c.metrics != nil {
		c.metrics.ObserveStage("recognize", time.Since(start))
	}
	if err != nil {
		if c.monitor != nil {
			c.monitor.RecordFailure("recognizer")
		}
		if c.metrics != nil {
			kind := "unavailable"
			if errors.Is(err, context.DeadlineExceeded) {
				kind = "timeout"
			}
			c.metrics.AdapterErrors.WithLabelValues("recognizer", kind).Inc()
		}
		return "", err
	}
	if c.monitor != nil {
		c.monitor.RecordSuccess("recognizer")
	}
	return text, nil
}

// speak emits the reply text and, when synthesis succeeds, one audio chunk.
// A synthesizer failure never kills the session: the text reply already went
// out.
func (c *Controller) speak(ctx context.Context, outbound chan<- any, conversationID, turnID string, lang conversation.Language, text string, proactive bool, reason string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	c.emit(ctx, outbound, protocol.BotText{
		Type:            protocol.TypeBotText,
		ConversationID:  conversationID,
		TurnID:          turnID,
		Text:            text,
		ProactivePrompt: proactive,
	})

	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, c.cfg.SynthesizeTimeout)
	audioBytes, format, err := c.synthesizer.Synthesize(sctx, text, lang)
	cancel()
	if c.metrics != nil {
		c.metrics.ObserveStage("synthesize", time.Since(start))
	}
	if err != nil {
		if c.monitor != nil {
			c.monitor.RecordFailure("synthesizer")
		}
		if c.metrics != nil {
			kind := "unavailable"
			if errors.Is(err, context.DeadlineExceeded) {
				kind = "timeout"
			}
			c.metrics.AdapterErrors.WithLabelValues("synthesizer", kind).Inc()
		}
		c.emit(ctx, outbound, protocol.ErrorEvent{
			Type:           protocol.TypeErrorEvent,
			ConversationID: conversationID,
			Code:           "synthesize_failed",
			Source:         "synthesizer",
			Retryable:      true,
			Detail:         err.Error(),
		})
	} else {
		if c.monitor != nil {
			c.monitor.RecordSuccess("synthesizer")
		}
		if len(audioBytes) > 0 {
			c.emit(ctx, outbound, protocol.BotAudioChunk{
				Type:           protocol.TypeBotAudioChunk,
				ConversationID: conversationID,
				TurnID:         turnID,
				Seq:            0,
				Format:         format,
				AudioBase64:    base64.StdEncoding.EncodeToString(audioBytes),
			})
		}
	}

	c.emit(ctx, outbound, protocol.TurnEnded{
		Type:           protocol.TypeTurnEnded,
		ConversationID: conversationID,
		TurnID:         turnID,
		Reason:         reason,
	})
}

// relieveBackpressure drains chunks that arrived while the loop was
// processing or speaking. Drop mode counts them; queue mode keeps up to the
// configured bound in the rolling buffer.
func (c *Controller) relieveBackpressure(inbound <-chan any, buf *[]byte, sampleRate *int) (dropped int, control *protocol.CallerControl, closed bool) {
	queued := 0
	for {
		select {
		case msg, ok := <-inbound:
			if !ok {
				return dropped, control, true
			}
			switch m := msg.(type) {
			case protocol.CallerAudioChunk:
				if c.cfg.BackpressureMode == "queue" && queued < c.cfg.MaxQueuedChunks {
					pcm, err := base64.StdEncoding.DecodeString(m.PCM16Base64)
					if err == nil {
						*buf = append(*buf, pcm...)
						if m.SampleRate > 0 {
							*sampleRate = m.SampleRate
						}
						queued++
						continue
					}
				}
				dropped++
			case protocol.CallerControl:
				control = &m
			}
		default:
			return dropped, control, false
		}
	}
}

func (c *Controller) cancelSession(conversationID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.dialog.Cancel(ctx, conversationID); err != nil {
		c.log.Warn("cancel session failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

func (c *Controller) emit(ctx context.Context, outbound chan<- any, msg any) {
	select {
	case <-ctx.Done():
	case outbound <- msg:
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}
