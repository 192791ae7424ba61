package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/voiceboat/voiceboat/internal/audio"
	"github.com/voiceboat/voiceboat/internal/conversation"
	"github.com/voiceboat/voiceboat/internal/reliability"
)

// HTTPRecognizer posts a WAV-wrapped utterance to an external transcription
// endpoint.
type HTTPRecognizer struct {
	url    string
	client *http.Client
}

func NewHTTPRecognizer(url string) *HTTPRecognizer {
	return &HTTPRecognizer{url: strings.TrimSpace(url), client: &http.Client{}}
}

func (r *HTTPRecognizer) Transcribe(ctx context.Context, pcm []byte, sampleRate int, lang conversation.Language) (string, error) {
	wav, err := audio.EncodeWAVPCM16LE(pcm, sampleRate)
	if err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"?language="+string(lang), bytes.NewReader(wav))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	res, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("recognize: unexpected status %d (retryable=%t)", res.StatusCode, reliability.IsRetryableHTTPStatus(res.StatusCode))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode transcription: %w", err)
	}
	return out.Text, nil
}

// HTTPSynthesizer posts reply text to an external synthesis endpoint and
// returns the audio bytes it answers with.
type HTTPSynthesizer struct {
	url    string
	client *http.Client
}

func NewHTTPSynthesizer(url string) *HTTPSynthesizer {
	return &HTTPSynthesizer{url: strings.TrimSpace(url), client: &http.Client{}}
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string, lang conversation.Language) ([]byte, string, error) {
	payload, err := json.Marshal(map[string]string{"text": text, "language": string(lang)})
	if err != nil {
		return nil, "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("synthesize: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("synthesize: unexpected status %d (retryable=%t)", res.StatusCode, reliability.IsRetryableHTTPStatus(res.StatusCode))
	}

	out, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}

	format := strings.TrimSpace(res.Header.Get("X-Audio-Format"))
	if format == "" {
		format = "wav"
	}
	return out, format, nil
}
