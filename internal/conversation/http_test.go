package conversation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestHTTPUnderstanderAnalyze(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" {
			t.Errorf("path = %q, want /analyze", r.URL.Path)
		}
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["text"] != "find station" || req["language"] != "en" {
			t.Errorf("request = %v", req)
		}
		_ = json.NewEncoder(w).Encode(NLUResult{
			Intent:     IntentFindNearestStation,
			Confidence: 0.9,
			Sentiment:  SentimentNeutral,
		})
	}))
	defer ts.Close()

	u := NewHTTPUnderstander(ts.URL)
	res, err := u.Analyze(context.Background(), "find station", LangEN)
	if err != nil {
		t.Fatalf("Analyze error = %v", err)
	}
	if res.Intent != IntentFindNearestStation || res.Confidence != 0.9 {
		t.Fatalf("result = %+v", res)
	}
}

func TestHTTPUnderstanderDefaultsEmptyFields(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"confidence":0.4}`))
	}))
	defer ts.Close()

	res, err := NewHTTPUnderstander(ts.URL).Analyze(context.Background(), "x", LangEN)
	if err != nil {
		t.Fatalf("Analyze error = %v", err)
	}
	if res.Intent != IntentUnknown {
		t.Fatalf("intent = %q, want Unknown default", res.Intent)
	}
	if res.Sentiment != SentimentNeutral {
		t.Fatalf("sentiment = %q, want neutral default", res.Sentiment)
	}
}

func TestHTTPAdapterRetriesRetryableStatus(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"name":"Station Noida","address":"Main Road, Noida"}`))
	}))
	defer ts.Close()

	c := NewHTTPDataClient(ts.URL)
	station, err := c.NearestStation(context.Background(), "Noida")
	if err != nil {
		t.Fatalf("NearestStation error = %v", err)
	}
	if station.Name != "Station Noida" {
		t.Fatalf("station = %+v", station)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits = %d, want 2 (one retry)", hits.Load())
	}
}

func TestHTTPAdapterDoesNotRetryPermanentStatus(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	if _, err := NewHTTPDataClient(ts.URL).Subscription(context.Background(), "driver-1"); err == nil {
		t.Fatalf("Subscription error = nil, want error on 400")
	}
	if hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1 (no retry on 400)", hits.Load())
	}
}

func TestHTTPHandoffPostsSummary(t *testing.T) {
	var got struct {
		ConversationID string            `json:"conversation_id"`
		Summary        EscalationSummary `json:"summary"`
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	h := NewHTTPHandoff(ts.URL)
	err := h.Escalate(context.Background(), "conv-1", EscalationSummary{
		Reason: ReasonAgentOrAngry,
		Intent: IntentFindNearestStation,
	})
	if err != nil {
		t.Fatalf("Escalate error = %v", err)
	}
	if got.ConversationID != "conv-1" || got.Summary.Reason != ReasonAgentOrAngry {
		t.Fatalf("posted payload = %+v", got)
	}
}
