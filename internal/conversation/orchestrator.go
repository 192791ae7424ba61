package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voiceboat/voiceboat/internal/audit"
	"github.com/voiceboat/voiceboat/internal/observability"
	"github.com/voiceboat/voiceboat/internal/policy"
	"github.com/voiceboat/voiceboat/internal/reliability"
)

// Escalation reasons surfaced in handoff summaries and metrics.
const (
	ReasonAgentOrAngry  = "user requested agent or is angry"
	ReasonLowConfidence = "low confidence after multiple attempts"
	ReasonNoResponse    = "no response"
	ReasonInternal      = "internal error"
	ReasonCancelled     = "cancelled"
)

const auditSaveTimeout = 2 * time.Second

// Config tunes the dialogue state machine.
type Config struct {
	ConfidenceThreshold float64
	MaxRetry            int
	MaxNoResponse       int
	AgentTriggers       []string
	UnderstandTimeout   time.Duration
	DataTimeout         time.Duration
	HandoffTimeout      time.Duration
}

func (c *Config) applyDefaults() {
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = 0.6
	}
	if c.MaxRetry == 0 {
		c.MaxRetry = 2
	}
	if c.MaxNoResponse == 0 {
		c.MaxNoResponse = 3
	}
	if len(c.AgentTriggers) == 0 {
		c.AgentTriggers = []string{"agent", "executive", "human", "एजेंट"}
	}
	if c.UnderstandTimeout <= 0 {
		c.UnderstandTimeout = 5 * time.Second
	}
	if c.DataTimeout <= 0 {
		c.DataTimeout = 5 * time.Second
	}
	if c.HandoffTimeout <= 0 {
		c.HandoffTimeout = 5 * time.Second
	}
}

// Orchestrator drives multi-turn dialogues: intent handling, slot filling,
// confidence gating and escalation. All adapter failures are recovered here;
// callers only ever see a TurnResult or one of the taxonomy errors.
type Orchestrator struct {
	store    Store
	nlu      Understander
	data     DataClient
	handoff  Handoff
	auditLog audit.Store
	prompts  *Prompts
	monitor  *reliability.Monitor
	metrics  *observability.Metrics
	log      *zap.Logger
	cfg      Config
	handlers map[Intent]handlerFunc
}

func NewOrchestrator(
	store Store,
	nlu Understander,
	data DataClient,
	handoff Handoff,
	auditLog audit.Store,
	prompts *Prompts,
	monitor *reliability.Monitor,
	metrics *observability.Metrics,
	log *zap.Logger,
	cfg Config,
) *Orchestrator {
	cfg.applyDefaults()
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		store:    store,
		nlu:      nlu,
		data:     data,
		handoff:  handoff,
		auditLog: auditLog,
		prompts:  prompts,
		monitor:  monitor,
		metrics:  metrics,
		log:      log,
		cfg:      cfg,
		handlers: defaultHandlers(),
	}
}

// MaxNoResponse exposes the configured silence budget to the voice loop.
func (o *Orchestrator) MaxNoResponse() int { return o.cfg.MaxNoResponse }

// HandleText drives one text turn for a conversation.
func (o *Orchestrator) HandleText(ctx context.Context, conversationID, text string, lang Language) (TurnResult, error) {
	if strings.TrimSpace(conversationID) == "" || strings.TrimSpace(text) == "" {
		return TurnResult{}, ErrInvalidInput
	}

	var result TurnResult
	err := o.store.WithLock(ctx, conversationID, func(ctx context.Context) error {
		started := time.Now()
		st, err := o.store.GetOrCreate(ctx, conversationID)
		if err != nil {
			return err
		}
		if st.Terminal() {
			return ErrSessionTerminal
		}
		if lang != "" {
			st.Language = lang
		}
		auditFrom := len(st.History)
		st.Append(RoleUser, text, time.Now().UTC())
		st.NoResponseCount = 0

		nlu, aerr := o.analyze(ctx, text, st.Language)
		if aerr != nil {
			st.RetryCount++
			result = o.apologyResult(st)
			return o.commit(ctx, st, &result, auditFrom, started, "text", "adapter_error")
		}

		if nlu.Sentiment == SentimentAngry || o.agentRequested(text) {
			result = o.escalate(ctx, st, ReasonAgentOrAngry)
			return o.commit(ctx, st, &result, auditFrom, started, "text", "escalated")
		}

		if nlu.Confidence < o.cfg.ConfidenceThreshold {
			st.RetryCount++
			if st.RetryCount > o.cfg.MaxRetry {
				result = o.escalate(ctx, st, ReasonLowConfidence)
				return o.commit(ctx, st, &result, auditFrom, started, "text", "escalated")
			}
			result = TurnResult{ReplyText: o.prompts.Pick(BucketClarification, st.Language, st.ConversationID, st.RetryCount)}
			return o.commit(ctx, st, &result, auditFrom, started, "text", "clarification")
		}

		// The intent latches before entities merge, so entities always apply
		// to the latched intent.
		if nlu.Intent != IntentUnknown {
			st.CurrentIntent = nlu.Intent
		}
		for k, v := range nlu.Entities {
			st.Slots[k] = v
		}

		if st.CurrentIntent == "" {
			result = TurnResult{ReplyText: o.prompts.Pick(BucketRephrase, st.Language, st.ConversationID, len(st.History))}
			return o.commit(ctx, st, &result, auditFrom, started, "text", "rephrase")
		}

		res, herr := o.dispatch(ctx, st)
		if herr != nil {
			var ae *AdapterError
			if errors.As(herr, &ae) {
				st.RetryCount++
				result = o.apologyResult(st)
				return o.commit(ctx, st, &result, auditFrom, started, "text", "adapter_error")
			}
			result = o.escalate(ctx, st, ReasonInternal)
			if cerr := o.commit(ctx, st, &result, auditFrom, started, "text", "internal"); cerr != nil {
				o.log.Error("commit after internal error failed", zap.Error(cerr))
			}
			return fmt.Errorf("%s: %w", ReasonInternal, herr)
		}

		st.RetryCount = 0
		result = res
		outcome := "reply"
		if res.NeedsEscalation {
			outcome = "escalated"
		}
		return o.commit(ctx, st, &result, auditFrom, started, "text", outcome)
	})
	if err != nil {
		return TurnResult{}, err
	}
	return result, nil
}

// HandleNoSpeech drives a turn where the caller did not speak. The voice
// loop calls this on silence windows and empty transcriptions.
func (o *Orchestrator) HandleNoSpeech(ctx context.Context, conversationID string, lang Language) (TurnResult, error) {
	if strings.TrimSpace(conversationID) == "" {
		return TurnResult{}, ErrInvalidInput
	}

	var result TurnResult
	err := o.store.WithLock(ctx, conversationID, func(ctx context.Context) error {
		started := time.Now()
		st, err := o.store.GetOrCreate(ctx, conversationID)
		if err != nil {
			return err
		}
		if st.Terminal() {
			return ErrSessionTerminal
		}
		if lang != "" {
			st.Language = lang
		}
		auditFrom := len(st.History)
		st.NoResponseCount++

		if st.NoResponseCount > o.cfg.MaxNoResponse {
			result = o.escalate(ctx, st, ReasonNoResponse)
			result.ReplyText = o.prompts.Pick(BucketNoResponseFinal, st.Language, st.ConversationID, st.NoResponseCount)
			return o.commit(ctx, st, &result, auditFrom, started, "voice", "escalated")
		}

		result = TurnResult{
			ReplyText:       o.prompts.Pick(BucketProactive, st.Language, st.ConversationID, st.NoResponseCount),
			ProactivePrompt: true,
		}
		return o.commit(ctx, st, &result, auditFrom, started, "voice", "proactive")
	})
	if err != nil {
		return TurnResult{}, err
	}
	return result, nil
}

// NoteDroppedChunks records audio chunks dropped by the voice loop on the
// session for observability.
func (o *Orchestrator) NoteDroppedChunks(ctx context.Context, conversationID string, n int) error {
	if n <= 0 {
		return nil
	}
	return o.store.WithLock(ctx, conversationID, func(ctx context.Context) error {
		st, err := o.store.GetOrCreate(ctx, conversationID)
		if err != nil {
			return err
		}
		st.DroppedChunks += n
		if o.metrics != nil {
			o.metrics.DroppedChunks.Add(float64(n))
		}
		return o.store.Save(ctx, st)
	})
}

// Cancel aborts a session externally (hangup, closed socket). Idempotent:
// cancelling a terminal session is a no-op. An unknown id is created and
// marked cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return ErrInvalidInput
	}
	return o.store.WithLock(ctx, conversationID, func(ctx context.Context) error {
		st, err := o.store.GetOrCreate(ctx, conversationID)
		if err != nil {
			return err
		}
		if st.Terminal() {
			return nil
		}
		st.Status = StatusCompleted
		st.EndReason = ReasonCancelled
		st.Touch(time.Now().UTC())
		if o.metrics != nil {
			o.metrics.SessionEvents.WithLabelValues("cancelled").Inc()
		}
		return o.store.Save(ctx, st)
	})
}

func (o *Orchestrator) analyze(ctx context.Context, text string, lang Language) (NLUResult, *AdapterError) {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, o.cfg.UnderstandTimeout)
	defer cancel()

	res, err := o.nlu.Analyze(cctx, text, lang)
	if o.metrics != nil {
		o.metrics.ObserveStage("understand", time.Since(start))
	}
	if err != nil {
		ae := classifyAdapterError("understander", err)
		o.noteAdapterFailure(ae)
		return NLUResult{}, ae
	}
	if o.monitor != nil {
		o.monitor.RecordSuccess("understander")
	}
	return res, nil
}

func (o *Orchestrator) agentRequested(text string) bool {
	lowered := strings.ToLower(text)
	for _, trigger := range o.cfg.AgentTriggers {
		if trigger == "" {
			continue
		}
		if strings.Contains(lowered, strings.ToLower(trigger)) {
			return true
		}
	}
	return false
}

// escalate hands the session to a human agent. Exactly one Handoff.Escalate
// call is made per terminal escalation; a handoff failure is logged but the
// session still escalates.
func (o *Orchestrator) escalate(ctx context.Context, st *State, reason string) TurnResult {
	summary := EscalationSummary{
		Reason:  reason,
		Intent:  st.CurrentIntent,
		Slots:   cloneSlots(st.Slots),
		History: redactHistory(st.History),
	}

	hctx, cancel := context.WithTimeout(ctx, o.cfg.HandoffTimeout)
	defer cancel()
	if err := o.handoff.Escalate(hctx, st.ConversationID, summary); err != nil {
		o.noteAdapterFailure(classifyAdapterError("handoff", err))
	} else if o.monitor != nil {
		o.monitor.RecordSuccess("handoff")
	}

	st.Status = StatusEscalated
	st.EndReason = reason
	st.CurrentIntent = ""
	if o.metrics != nil {
		o.metrics.Escalations.WithLabelValues(reason).Inc()
	}
	o.log.Info("session escalated",
		zap.String("conversation_id", st.ConversationID),
		zap.String("reason", reason),
	)

	return TurnResult{
		ReplyText:       o.prompts.Pick(BucketHandoff, st.Language, st.ConversationID, len(st.History)),
		ShouldEnd:       true,
		NeedsEscalation: true,
	}
}

func (o *Orchestrator) apologyResult(st *State) TurnResult {
	return TurnResult{ReplyText: o.prompts.Pick(BucketApology, st.Language, st.ConversationID, st.RetryCount)}
}

// commit finishes a turn: appends the bot reply to history, advances
// last-activity, persists state, and records the new history records in the
// audit log.
func (o *Orchestrator) commit(ctx context.Context, st *State, res *TurnResult, auditFrom int, started time.Time, channel, outcome string) error {
	if res.ReplyText != "" {
		st.Append(RoleBot, res.ReplyText, time.Now().UTC())
	}
	if res.ShouldEnd && st.Status == StatusActive {
		st.Status = StatusCompleted
		if st.EndReason == "" {
			st.EndReason = "completed"
		}
	}
	st.Touch(time.Now().UTC())

	if err := o.store.Save(ctx, st); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	o.recordAudit(st, auditFrom)

	if o.metrics != nil {
		o.metrics.Turns.WithLabelValues(channel, outcome).Inc()
		o.metrics.ObserveTurnLatency(time.Since(started))
		o.metrics.ObserveStage("turn_total", time.Since(started))
	}
	return nil
}

func (o *Orchestrator) recordAudit(st *State, from int) {
	if o.auditLog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditSaveTimeout)
	defer cancel()
	for _, turn := range st.History[from:] {
		text, changed := policy.RedactPII(turn.Text)
		rec := audit.TurnRecord{
			ConversationID: st.ConversationID,
			DriverID:       st.DriverID,
			Role:           string(turn.Role),
			Text:           text,
			PIIRedacted:    changed,
			CreatedAt:      turn.At,
		}
		if err := o.auditLog.SaveTurn(ctx, rec); err != nil {
			o.log.Warn("audit save failed",
				zap.String("conversation_id", st.ConversationID),
				zap.Error(err),
			)
			return
		}
	}
}

func (o *Orchestrator) noteAdapterFailure(ae *AdapterError) {
	if o.monitor != nil {
		o.monitor.RecordFailure(ae.Adapter)
	}
	if o.metrics != nil {
		o.metrics.AdapterErrors.WithLabelValues(ae.Adapter, string(ae.Kind)).Inc()
	}
	o.log.Warn("adapter failure",
		zap.String("adapter", ae.Adapter),
		zap.String("kind", string(ae.Kind)),
		zap.Error(ae.Err),
	)
}

func cloneSlots(slots map[string]string) map[string]string {
	if len(slots) == 0 {
		return nil
	}
	out := make(map[string]string, len(slots))
	for k, v := range slots {
		out[k] = v
	}
	return out
}

func redactHistory(history []HistoryTurn) []HistoryTurn {
	out := make([]HistoryTurn, len(history))
	for i, turn := range history {
		redacted, _ := policy.RedactPII(turn.Text)
		turn.Text = redacted
		out[i] = turn
	}
	return out
}
