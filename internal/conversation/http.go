package conversation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voiceboat/voiceboat/internal/reliability"
)

const httpAdapterRetryBase = 100 * time.Millisecond

// httpPostJSON posts a JSON payload and decodes a JSON response, retrying
// once on a retryable status.
func httpPostJSON(ctx context.Context, client *http.Client, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt-1, httpAdapterRetryBase, time.Second)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		data, readErr := io.ReadAll(io.LimitReader(res.Body, 1<<20))
		res.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if res.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d", res.StatusCode)
			if !reliability.IsRetryableHTTPStatus(res.StatusCode) {
				return lastErr
			}
			continue
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return lastErr
}

// HTTPUnderstander calls an external NLU service.
type HTTPUnderstander struct {
	baseURL string
	client  *http.Client
}

func NewHTTPUnderstander(baseURL string) *HTTPUnderstander {
	return &HTTPUnderstander{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (u *HTTPUnderstander) Analyze(ctx context.Context, text string, lang Language) (NLUResult, error) {
	payload := map[string]string{"text": text, "language": string(lang)}
	var out NLUResult
	if err := httpPostJSON(ctx, u.client, u.baseURL+"/analyze", payload, &out); err != nil {
		return NLUResult{}, fmt.Errorf("nlu analyze: %w", err)
	}
	if out.Intent == "" {
		out.Intent = IntentUnknown
	}
	if out.Sentiment == "" {
		out.Sentiment = SentimentNeutral
	}
	return out, nil
}

// HTTPDataClient calls an external fleet backend.
type HTTPDataClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDataClient(baseURL string) *HTTPDataClient {
	return &HTTPDataClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (c *HTTPDataClient) SwapHistory(ctx context.Context, driverID, dateRange string) ([]SwapRecord, error) {
	payload := map[string]string{"driver_id": driverID, "date_range": dateRange}
	var out struct {
		Records []SwapRecord `json:"records"`
	}
	if err := httpPostJSON(ctx, c.client, c.baseURL+"/swap-history", payload, &out); err != nil {
		return nil, fmt.Errorf("swap history: %w", err)
	}
	return out.Records, nil
}

func (c *HTTPDataClient) NearestStation(ctx context.Context, location string) (Station, error) {
	payload := map[string]string{"location": location}
	var out Station
	if err := httpPostJSON(ctx, c.client, c.baseURL+"/nearest-station", payload, &out); err != nil {
		return Station{}, fmt.Errorf("nearest station: %w", err)
	}
	return out, nil
}

func (c *HTTPDataClient) Subscription(ctx context.Context, driverID string) (SubscriptionInfo, error) {
	payload := map[string]string{"driver_id": driverID}
	var out SubscriptionInfo
	if err := httpPostJSON(ctx, c.client, c.baseURL+"/subscription", payload, &out); err != nil {
		return SubscriptionInfo{}, fmt.Errorf("subscription: %w", err)
	}
	return out, nil
}

func (c *HTTPDataClient) Availability(ctx context.Context, location string) (AvailabilityInfo, error) {
	payload := map[string]string{"location": location}
	var out AvailabilityInfo
	if err := httpPostJSON(ctx, c.client, c.baseURL+"/availability", payload, &out); err != nil {
		return AvailabilityInfo{}, fmt.Errorf("availability: %w", err)
	}
	return out, nil
}

// HTTPHandoff posts escalation summaries to an agent-queue webhook.
type HTTPHandoff struct {
	url    string
	client *http.Client
}

func NewHTTPHandoff(url string) *HTTPHandoff {
	return &HTTPHandoff{url: strings.TrimSpace(url), client: &http.Client{}}
}

func (h *HTTPHandoff) Escalate(ctx context.Context, conversationID string, summary EscalationSummary) error {
	payload := struct {
		ConversationID string            `json:"conversation_id"`
		Summary        EscalationSummary `json:"summary"`
	}{ConversationID: conversationID, Summary: summary}
	if err := httpPostJSON(ctx, h.client, h.url, payload, nil); err != nil {
		return fmt.Errorf("handoff escalate: %w", err)
	}
	return nil
}
