package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime settings for the driver-support voice service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowedOrigins   []string
	WebhookBaseURL   string

	LogLevel  string
	LogFormat string

	// Dialogue tuning.
	ConfidenceThreshold float64
	MaxRetry            int
	MaxNoResponse       int
	AgentTriggers       []string
	PromptsPath         string

	// Voice loop tuning.
	SilenceWindow         time.Duration
	EndOfUtteranceSilence time.Duration
	BackpressureMode      string
	MaxQueuedChunks       int

	// VAD tuning.
	VADSilenceThresholdRMS float64
	VADMinSpeechSeconds    float64
	VADZCRMin              float64
	VADZCRMax              float64

	// Per-adapter-class turn timeouts.
	UnderstandTimeout time.Duration
	DataTimeout       time.Duration
	HandoffTimeout    time.Duration
	RecognizeTimeout  time.Duration
	SynthesizeTimeout time.Duration

	// Adapter selection.
	Understander    string
	UnderstanderURL string
	DataProvider    string
	DataURL         string
	HandoffProvider string
	HandoffURL      string
	VoiceProvider   string
	RecognizerURL   string
	SynthesizerURL  string
	VoiceFallback   string

	// Session store.
	SessionBackend           string
	SessionLockPolicy        string
	SessionInactivityTimeout time.Duration
	SessionRetention         time.Duration
	RedisURL                 string
	DatabaseURL              string

	AdapterDegradeThreshold int
}

// Load reads environment variables (with an optional .env preload) and
// applies safe defaults.
func Load() (Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "voiceboat"),
		AllowedOrigins:   splitList(os.Getenv("APP_ALLOWED_ORIGINS")),
		WebhookBaseURL:   envOrDefault("WEBHOOK_BASE_URL", "http://localhost:8080"),
		LogLevel:         envOrDefault("LOG_LEVEL", "info"),
		LogFormat:        envOrDefault("LOG_FORMAT", "json"),

		ConfidenceThreshold: 0.6,
		MaxRetry:            2,
		MaxNoResponse:       3,
		AgentTriggers:       []string{"agent", "executive", "human", "एजेंट"},
		PromptsPath:         stringFromEnv("PROMPTS_PATH"),

		SilenceWindow:         1500 * time.Millisecond,
		EndOfUtteranceSilence: 1500 * time.Millisecond,
		BackpressureMode:      envOrDefault("TURN_BACKPRESSURE_MODE", "drop"),
		MaxQueuedChunks:       32,

		VADSilenceThresholdRMS: 0.01,
		VADMinSpeechSeconds:    0.3,
		VADZCRMin:              0.01,
		VADZCRMax:              0.35,

		UnderstandTimeout: 5 * time.Second,
		DataTimeout:       5 * time.Second,
		HandoffTimeout:    5 * time.Second,
		RecognizeTimeout:  10 * time.Second,
		SynthesizeTimeout: 10 * time.Second,

		Understander:    envOrDefault("UNDERSTANDER", "keyword"),
		UnderstanderURL: stringFromEnv("UNDERSTANDER_URL"),
		DataProvider:    envOrDefault("DATA_PROVIDER", "stub"),
		DataURL:         stringFromEnv("DATA_URL"),
		HandoffProvider: envOrDefault("HANDOFF_PROVIDER", "log"),
		HandoffURL:      stringFromEnv("HANDOFF_URL"),
		VoiceProvider:   envOrDefault("VOICE_PROVIDER", "mock"),
		RecognizerURL:   stringFromEnv("RECOGNIZER_URL"),
		SynthesizerURL:  stringFromEnv("SYNTHESIZER_URL"),
		VoiceFallback:   envOrDefault("VOICE_FALLBACK", "none"),

		SessionBackend:           envOrDefault("SESSION_BACKEND", "memory"),
		SessionLockPolicy:        envOrDefault("SESSION_LOCK_POLICY", "serialize"),
		SessionInactivityTimeout: 2 * time.Minute,
		SessionRetention:         10 * time.Minute,
		RedisURL:                 stringFromEnv("REDIS_URL"),
		DatabaseURL:              stringFromEnv("DATABASE_URL"),

		ShutdownTimeout: 15 * time.Second,

		AdapterDegradeThreshold: 5,
	}

	if v := stringFromEnv("AGENT_TRIGGERS"); v != "" {
		cfg.AgentTriggers = splitList(v)
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ConfidenceThreshold, err = floatFromEnv("CONFIDENCE_THRESHOLD", cfg.ConfidenceThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxRetry, err = intFromEnv("MAX_RETRY", cfg.MaxRetry)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxNoResponse, err = intFromEnv("MAX_NO_RESPONSE", cfg.MaxNoResponse)
	if err != nil {
		return Config{}, err
	}
	cfg.SilenceWindow, err = durationFromEnv("SILENCE_WINDOW", cfg.SilenceWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.EndOfUtteranceSilence, err = durationFromEnv("END_OF_UTTERANCE_SILENCE", cfg.EndOfUtteranceSilence)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxQueuedChunks, err = intFromEnv("TURN_MAX_QUEUED_CHUNKS", cfg.MaxQueuedChunks)
	if err != nil {
		return Config{}, err
	}
	cfg.VADSilenceThresholdRMS, err = floatFromEnv("VAD_SILENCE_THRESHOLD_RMS", cfg.VADSilenceThresholdRMS)
	if err != nil {
		return Config{}, err
	}
	cfg.VADMinSpeechSeconds, err = floatFromEnv("VAD_MIN_SPEECH_SECONDS", cfg.VADMinSpeechSeconds)
	if err != nil {
		return Config{}, err
	}
	cfg.VADZCRMin, err = floatFromEnv("VAD_ZCR_MIN", cfg.VADZCRMin)
	if err != nil {
		return Config{}, err
	}
	cfg.VADZCRMax, err = floatFromEnv("VAD_ZCR_MAX", cfg.VADZCRMax)
	if err != nil {
		return Config{}, err
	}
	cfg.UnderstandTimeout, err = durationFromEnv("UNDERSTAND_TIMEOUT", cfg.UnderstandTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.DataTimeout, err = durationFromEnv("DATA_TIMEOUT", cfg.DataTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HandoffTimeout, err = durationFromEnv("HANDOFF_TIMEOUT", cfg.HandoffTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RecognizeTimeout, err = durationFromEnv("RECOGNIZE_TIMEOUT", cfg.RecognizeTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SynthesizeTimeout, err = durationFromEnv("SYNTHESIZE_TIMEOUT", cfg.SynthesizeTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionRetention, err = durationFromEnv("SESSION_RETENTION", cfg.SessionRetention)
	if err != nil {
		return Config{}, err
	}
	cfg.AdapterDegradeThreshold, err = intFromEnv("ADAPTER_DEGRADE_THRESHOLD", cfg.AdapterDegradeThreshold)
	if err != nil {
		return Config{}, err
	}

	if cfg.ConfidenceThreshold < 0 || cfg.ConfidenceThreshold > 1 {
		return Config{}, fmt.Errorf("CONFIDENCE_THRESHOLD must be in [0,1]")
	}
	if cfg.MaxRetry < 0 {
		return Config{}, fmt.Errorf("MAX_RETRY must be >= 0")
	}
	if cfg.MaxNoResponse < 0 {
		return Config{}, fmt.Errorf("MAX_NO_RESPONSE must be >= 0")
	}
	if cfg.SilenceWindow <= 0 || cfg.EndOfUtteranceSilence <= 0 {
		return Config{}, fmt.Errorf("SILENCE_WINDOW and END_OF_UTTERANCE_SILENCE must be positive")
	}
	switch cfg.BackpressureMode {
	case "drop", "queue":
	default:
		return Config{}, fmt.Errorf("invalid TURN_BACKPRESSURE_MODE: %q (expected drop|queue)", cfg.BackpressureMode)
	}
	if cfg.MaxQueuedChunks <= 0 {
		return Config{}, fmt.Errorf("TURN_MAX_QUEUED_CHUNKS must be positive")
	}
	switch cfg.SessionBackend {
	case "memory", "redis", "postgres":
	default:
		return Config{}, fmt.Errorf("invalid SESSION_BACKEND: %q (expected memory|redis|postgres)", cfg.SessionBackend)
	}
	switch cfg.SessionLockPolicy {
	case "serialize", "reject":
	default:
		return Config{}, fmt.Errorf("invalid SESSION_LOCK_POLICY: %q (expected serialize|reject)", cfg.SessionLockPolicy)
	}
	if cfg.SessionBackend == "redis" && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("SESSION_BACKEND=redis requires REDIS_URL")
	}
	if cfg.SessionBackend == "postgres" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("SESSION_BACKEND=postgres requires DATABASE_URL")
	}
	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.SessionRetention < 0 {
		return Config{}, fmt.Errorf("SESSION_RETENTION must be >= 0")
	}
	if cfg.AdapterDegradeThreshold <= 0 {
		return Config{}, fmt.Errorf("ADAPTER_DEGRADE_THRESHOLD must be positive")
	}
	if cfg.VADZCRMin > cfg.VADZCRMax {
		return Config{}, fmt.Errorf("VAD_ZCR_MIN must not exceed VAD_ZCR_MAX")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func stringFromEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringFromEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringFromEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringFromEnv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}
