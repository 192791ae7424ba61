package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voiceboat/voiceboat/internal/audit"
	"github.com/voiceboat/voiceboat/internal/config"
	"github.com/voiceboat/voiceboat/internal/conversation"
	"github.com/voiceboat/voiceboat/internal/httpapi"
	"github.com/voiceboat/voiceboat/internal/observability"
	"github.com/voiceboat/voiceboat/internal/reliability"
	"github.com/voiceboat/voiceboat/internal/session"
	"github.com/voiceboat/voiceboat/internal/telephony"
	"github.com/voiceboat/voiceboat/internal/voice"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Orchestrator *conversation.Orchestrator
	Controller   *voice.Controller
	Sessions     conversation.Store
	Metrics      *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

// Build wires the service: adapter selection by configured name, the
// dialogue orchestrator, the voice loop, and the HTTP surface.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*BuildResult, error) {
	if log == nil {
		log = zap.NewNop()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	monitor := reliability.NewMonitor(cfg.AdapterDegradeThreshold, func(adapter string, degraded bool) {
		v := 0.0
		if degraded {
			v = 1.0
		}
		metrics.AdapterDegraded.WithLabelValues(adapter).Set(v)
		if degraded {
			log.Warn("adapter degraded", zap.String("adapter", adapter))
		} else {
			log.Info("adapter recovered", zap.String("adapter", adapter))
		}
	})

	prompts, err := conversation.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("prompt tables init failed: %w", err)
	}

	auditStore, err := audit.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit store init failed: %w", err)
	}

	sessions, err := session.NewStore(ctx, session.Options{
		Backend:           cfg.SessionBackend,
		LockPolicy:        session.LockPolicy(cfg.SessionLockPolicy),
		InactivityTimeout: cfg.SessionInactivityTimeout,
		Retention:         cfg.SessionRetention,
		RedisURL:          cfg.RedisURL,
		DatabaseURL:       cfg.DatabaseURL,
	})
	if err != nil {
		_ = auditStore.Close()
		return nil, fmt.Errorf("session store init failed: %w", err)
	}
	if mem, ok := sessions.(*session.MemoryStore); ok {
		mem.SetExpireHook(func(_ *conversation.State) {
			metrics.SessionEvents.WithLabelValues("expired").Inc()
			metrics.ActiveSessions.Set(float64(mem.ActiveCount()))
		})
	}

	understander, err := buildUnderstander(cfg)
	if err != nil {
		_ = auditStore.Close()
		return nil, err
	}
	dataClient, err := buildDataClient(cfg)
	if err != nil {
		_ = auditStore.Close()
		return nil, err
	}
	handoff, err := buildHandoff(cfg, log)
	if err != nil {
		_ = auditStore.Close()
		return nil, err
	}
	recognizer, synthesizer, voiceDetail, err := buildVoiceProviders(cfg)
	if err != nil {
		_ = auditStore.Close()
		return nil, err
	}
	log.Info("voice provider resolved", zap.String("detail", voiceDetail))

	orchestrator := conversation.NewOrchestrator(
		sessions,
		understander,
		dataClient,
		handoff,
		auditStore,
		prompts,
		monitor,
		metrics,
		log,
		conversation.Config{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			MaxRetry:            cfg.MaxRetry,
			MaxNoResponse:       cfg.MaxNoResponse,
			AgentTriggers:       cfg.AgentTriggers,
			UnderstandTimeout:   cfg.UnderstandTimeout,
			DataTimeout:         cfg.DataTimeout,
			HandoffTimeout:      cfg.HandoffTimeout,
		},
	)

	controller := voice.NewController(
		orchestrator,
		recognizer,
		synthesizer,
		prompts,
		monitor,
		metrics,
		log,
		voice.ControllerConfig{
			SilenceWindow:         cfg.SilenceWindow,
			EndOfUtteranceSilence: cfg.EndOfUtteranceSilence,
			RecognizeTimeout:      cfg.RecognizeTimeout,
			SynthesizeTimeout:     cfg.SynthesizeTimeout,
			BackpressureMode:      cfg.BackpressureMode,
			MaxQueuedChunks:       cfg.MaxQueuedChunks,
			Detector: voice.DetectorConfig{
				SilenceThresholdRMS: cfg.VADSilenceThresholdRMS,
				MinSpeechSeconds:    cfg.VADMinSpeechSeconds,
				MaxSilenceSeconds:   cfg.SilenceWindow.Seconds(),
				ZCRSpeechMin:        cfg.VADZCRMin,
				ZCRSpeechMax:        cfg.VADZCRMax,
			},
		},
	)

	streamURL := strings.TrimRight(cfg.WebhookBaseURL, "/") + "/telephony/media-stream-ws"
	gateway := telephony.NewMockGateway(streamURL, prompts.Pick(conversation.BucketGreeting, conversation.LangEN, "telephony", 0), log)

	api := httpapi.New(cfg, orchestrator, controller, gateway, metrics, log)

	cleanup := func() error {
		var errs []string
		if closer, ok := sessions.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err.Error())
			}
		}
		if err := auditStore.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Orchestrator: orchestrator,
		Controller:   controller,
		Sessions:     sessions,
		Metrics:      metrics,
		Cleanup:      cleanup,
	}, nil
}

// StartJanitor launches the in-memory store's sweeper. The Redis and Postgres
// stores have no sweeper: their sessions are neither expired nor purged by
// this service.
func (r *BuildResult) StartJanitor(ctx context.Context) {
	if mem, ok := r.Sessions.(*session.MemoryStore); ok {
		mem.StartJanitor(ctx, 5*time.Second)
	}
}

func buildUnderstander(cfg config.Config) (conversation.Understander, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Understander)) {
	case "", "keyword":
		return conversation.NewKeywordUnderstander(), nil
	case "http":
		if cfg.UnderstanderURL == "" {
			return nil, fmt.Errorf("UNDERSTANDER=http requires UNDERSTANDER_URL")
		}
		return conversation.NewHTTPUnderstander(cfg.UnderstanderURL), nil
	default:
		return nil, fmt.Errorf("invalid UNDERSTANDER: %q (expected keyword|http)", cfg.Understander)
	}
}

func buildDataClient(cfg config.Config) (conversation.DataClient, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.DataProvider)) {
	case "", "stub":
		return conversation.NewStubDataClient(), nil
	case "http":
		if cfg.DataURL == "" {
			return nil, fmt.Errorf("DATA_PROVIDER=http requires DATA_URL")
		}
		return conversation.NewHTTPDataClient(cfg.DataURL), nil
	default:
		return nil, fmt.Errorf("invalid DATA_PROVIDER: %q (expected stub|http)", cfg.DataProvider)
	}
}

func buildHandoff(cfg config.Config, log *zap.Logger) (conversation.Handoff, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.HandoffProvider)) {
	case "", "log":
		return conversation.NewLogHandoff(log), nil
	case "http":
		if cfg.HandoffURL == "" {
			return nil, fmt.Errorf("HANDOFF_PROVIDER=http requires HANDOFF_URL")
		}
		return conversation.NewHTTPHandoff(cfg.HandoffURL), nil
	default:
		return nil, fmt.Errorf("invalid HANDOFF_PROVIDER: %q (expected log|http)", cfg.HandoffProvider)
	}
}

func buildVoiceProviders(cfg config.Config) (voice.Recognizer, voice.Synthesizer, string, error) {
	var (
		recognizer  voice.Recognizer
		synthesizer voice.Synthesizer
		detail      string
	)
	switch strings.ToLower(strings.TrimSpace(cfg.VoiceProvider)) {
	case "", "mock":
		p := voice.NewMockProvider()
		return p, p, "mock", nil
	case "http":
		if cfg.RecognizerURL == "" || cfg.SynthesizerURL == "" {
			return nil, nil, "", fmt.Errorf("VOICE_PROVIDER=http requires RECOGNIZER_URL and SYNTHESIZER_URL")
		}
		recognizer = voice.NewHTTPRecognizer(cfg.RecognizerURL)
		synthesizer = voice.NewHTTPSynthesizer(cfg.SynthesizerURL)
		detail = "http"
	default:
		return nil, nil, "", fmt.Errorf("invalid VOICE_PROVIDER: %q (expected mock|http)", cfg.VoiceProvider)
	}

	if strings.EqualFold(cfg.VoiceFallback, "mock") {
		fallback := voice.NewMockProvider()
		recognizer, synthesizer = voice.NewFailoverProviderPair(recognizer, synthesizer, fallback, fallback)
		detail += "+mock_failover"
	}
	return recognizer, synthesizer, detail, nil
}
