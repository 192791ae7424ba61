package httpapi

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voiceboat/voiceboat/internal/config"
	"github.com/voiceboat/voiceboat/internal/conversation"
	"github.com/voiceboat/voiceboat/internal/observability"
	"github.com/voiceboat/voiceboat/internal/session"
	"github.com/voiceboat/voiceboat/internal/telephony"
	"github.com/voiceboat/voiceboat/internal/voice"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		SessionInactivityTimeout: 2 * time.Minute,
	}
	metrics := observability.NewMetrics(fmt.Sprintf("test_httpapi_%d", time.Now().UnixNano()))
	store := session.NewMemoryStore(session.PolicySerialize, 2*time.Minute, 10*time.Minute)
	prompts := conversation.DefaultPrompts()

	orchestrator := conversation.NewOrchestrator(
		store,
		conversation.NewKeywordUnderstander(),
		conversation.NewStubDataClient(),
		conversation.NewLogHandoff(nil),
		nil,
		prompts,
		nil,
		metrics,
		nil,
		conversation.Config{},
	)
	mock := voice.NewMockProvider()
	controller := voice.NewController(orchestrator, mock, mock, prompts, nil, metrics, nil, voice.ControllerConfig{})
	gateway := telephony.NewMockGateway("wss://example.com/telephony/media-stream-ws", "Welcome!", nil)

	srv := New(cfg, orchestrator, controller, gateway, metrics, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	res, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	t.Cleanup(func() { res.Body.Close() })
	var decoded map[string]any
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res, decoded
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	res, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["status"] != "healthy" {
		t.Fatalf("status field = %v, want healthy", payload["status"])
	}
}

func TestChatStationFlow(t *testing.T) {
	ts := newTestServer(t)

	res1, body1 := postJSON(t, ts.URL+"/chat", map[string]string{
		"conversation_id": "conv-http-1",
		"text":            "find station",
	})
	if res1.StatusCode != http.StatusOK {
		t.Fatalf("turn 1 status = %d, want 200", res1.StatusCode)
	}
	if body1["text"] != "Which area are you in?" {
		t.Fatalf("turn 1 text = %v, want location elicitation", body1["text"])
	}
	if body1["should_end"] != false {
		t.Fatalf("turn 1 should_end = %v, want false", body1["should_end"])
	}

	res2, body2 := postJSON(t, ts.URL+"/chat", map[string]string{
		"conversation_id": "conv-http-1",
		"text":            "Noida",
	})
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("turn 2 status = %d, want 200", res2.StatusCode)
	}
	if body2["text"] != "The nearest station is Station Noida at Main Road, Noida." {
		t.Fatalf("turn 2 text = %v", body2["text"])
	}
	if body2["should_end"] != true {
		t.Fatalf("turn 2 should_end = %v, want true", body2["should_end"])
	}

	// The session is now terminal.
	res3, body3 := postJSON(t, ts.URL+"/chat", map[string]string{
		"conversation_id": "conv-http-1",
		"text":            "hello again",
	})
	if res3.StatusCode != http.StatusConflict {
		t.Fatalf("turn 3 status = %d, want 409", res3.StatusCode)
	}
	if _, ok := body3["detail"]; !ok {
		t.Fatalf("turn 3 body = %v, want detail field", body3)
	}
}

func TestChatValidation(t *testing.T) {
	ts := newTestServer(t)

	res, body := postJSON(t, ts.URL+"/chat", map[string]string{"text": "hi"})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing conversation_id", res.StatusCode)
	}
	if _, ok := body["detail"]; !ok {
		t.Fatalf("body = %v, want detail field", body)
	}

	res2, _ := postJSON(t, ts.URL+"/chat", map[string]string{
		"conversation_id": "conv-x",
		"text":            "hi",
		"language":        "fr",
	})
	if res2.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unsupported language", res2.StatusCode)
	}
}

func TestChatEscalation(t *testing.T) {
	ts := newTestServer(t)

	res, body := postJSON(t, ts.URL+"/chat", map[string]string{
		"conversation_id": "conv-http-angry",
		"text":            "this is bad, I want an agent",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if body["needs_escalation"] != true {
		t.Fatalf("needs_escalation = %v, want true", body["needs_escalation"])
	}
}

func TestVoiceProcessSilence(t *testing.T) {
	ts := newTestServer(t)

	res, body := postJSON(t, ts.URL+"/voice/process", map[string]string{
		"conversation_id": "conv-voice-1",
		"audio_data":      base64.StdEncoding.EncodeToString(make([]byte, 16000)),
		"language":        "en-US",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if body["proactive_prompt"] != true {
		t.Fatalf("proactive_prompt = %v, want true for silent audio", body["proactive_prompt"])
	}
	if body["response_text"] == "" {
		t.Fatalf("response_text empty, want proactive prompt")
	}
	if body["should_end"] != false {
		t.Fatalf("should_end = %v, want false", body["should_end"])
	}
}

func TestVoiceProcessRejectsBadBase64(t *testing.T) {
	ts := newTestServer(t)

	res, _ := postJSON(t, ts.URL+"/voice/process", map[string]string{
		"conversation_id": "conv-voice-2",
		"audio_data":      "not base64!!!",
	})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}

func TestTelephonyVoiceWebhook(t *testing.T) {
	ts := newTestServer(t)

	form := "CallSid=CA123&From=%2B911111111111&To=%2B912222222222"
	res, err := http.Post(ts.URL+"/telephony/voice", "application/x-www-form-urlencoded", strings.NewReader(form))
	if err != nil {
		t.Fatalf("POST /telephony/voice error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/xml" {
		t.Fatalf("content type = %q, want application/xml", ct)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(res.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	body := buf.String()
	if !strings.Contains(body, "<Response>") || !strings.Contains(body, "Welcome!") {
		t.Fatalf("webhook body missing instruction document:\n%s", body)
	}
}

func TestTelephonyVoiceRequiresCallSid(t *testing.T) {
	ts := newTestServer(t)

	res, err := http.Post(ts.URL+"/telephony/voice", "application/x-www-form-urlencoded", strings.NewReader("From=x"))
	if err != nil {
		t.Fatalf("POST error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.StatusCode)
	}
}
