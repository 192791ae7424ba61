package conversation

import (
	"context"
	"testing"
)

func TestKeywordUnderstanderStationIntent(t *testing.T) {
	u := NewKeywordUnderstander()
	res, err := u.Analyze(context.Background(), "find station", LangEN)
	if err != nil {
		t.Fatalf("Analyze error = %v", err)
	}
	if res.Intent != IntentFindNearestStation {
		t.Fatalf("intent = %q, want %q", res.Intent, IntentFindNearestStation)
	}
	if res.Confidence != 0.9 {
		t.Fatalf("confidence = %v, want 0.9", res.Confidence)
	}
	if len(res.Entities) != 0 {
		t.Fatalf("entities = %v, want none", res.Entities)
	}
}

func TestKeywordUnderstanderBareLocationStaysUnknown(t *testing.T) {
	u := NewKeywordUnderstander()
	res, err := u.Analyze(context.Background(), "Noida", LangEN)
	if err != nil {
		t.Fatalf("Analyze error = %v", err)
	}
	if res.Intent != IntentUnknown {
		t.Fatalf("intent = %q, want %q (entity applies to the latched intent)", res.Intent, IntentUnknown)
	}
	if res.Entities["location"] != "Noida" {
		t.Fatalf("location entity = %q, want %q", res.Entities["location"], "Noida")
	}
	if res.Confidence < 0.6 {
		t.Fatalf("confidence = %v, want >= threshold so the entity turn passes the gate", res.Confidence)
	}
}

func TestKeywordUnderstanderSwapHistory(t *testing.T) {
	u := NewKeywordUnderstander()
	res, err := u.Analyze(context.Background(), "swap history yesterday", LangEN)
	if err != nil {
		t.Fatalf("Analyze error = %v", err)
	}
	if res.Intent != IntentGetSwapHistory {
		t.Fatalf("intent = %q, want %q", res.Intent, IntentGetSwapHistory)
	}
	if res.Confidence != 0.85 {
		t.Fatalf("confidence = %v, want 0.85", res.Confidence)
	}
	if res.Entities["date_range"] != "yesterday" {
		t.Fatalf("date_range = %q, want yesterday", res.Entities["date_range"])
	}
}

func TestKeywordUnderstanderAnger(t *testing.T) {
	u := NewKeywordUnderstander()
	res, err := u.Analyze(context.Background(), "this is bad, I want an agent", LangEN)
	if err != nil {
		t.Fatalf("Analyze error = %v", err)
	}
	if res.Sentiment != SentimentAngry {
		t.Fatalf("sentiment = %q, want %q", res.Sentiment, SentimentAngry)
	}
}

func TestKeywordUnderstanderGreetingIsPositive(t *testing.T) {
	u := NewKeywordUnderstander()
	res, err := u.Analyze(context.Background(), "namaste", LangHI)
	if err != nil {
		t.Fatalf("Analyze error = %v", err)
	}
	if res.Intent != IntentUnknown {
		t.Fatalf("intent = %q, want %q", res.Intent, IntentUnknown)
	}
	if res.Sentiment != SentimentPositive {
		t.Fatalf("sentiment = %q, want %q", res.Sentiment, SentimentPositive)
	}
	if res.Confidence != 0.7 {
		t.Fatalf("confidence = %v, want 0.7", res.Confidence)
	}
}

func TestKeywordUnderstanderFallback(t *testing.T) {
	u := NewKeywordUnderstander()
	res, err := u.Analyze(context.Background(), "xyzzy", LangEN)
	if err != nil {
		t.Fatalf("Analyze error = %v", err)
	}
	if res.Intent != IntentUnknown || res.Confidence != 0.3 {
		t.Fatalf("fallback = %q/%v, want Unknown/0.3", res.Intent, res.Confidence)
	}
}

func TestKeywordUnderstanderDomainIntents(t *testing.T) {
	u := NewKeywordUnderstander()
	cases := []struct {
		text string
		want Intent
	}{
		{"renew my subscription", IntentRenewSubscription},
		{"check my subscription", IntentCheckSubscription},
		{"what is the price", IntentPricingInfo},
		{"explain this invoice", IntentExplainInvoice},
		{"I need leave tomorrow", IntentLeaveInfo},
		{"where is the nearest dsk", IntentFindDSK},
		{"batteries available in delhi station", IntentCheckAvailability},
	}
	for _, tc := range cases {
		res, err := u.Analyze(context.Background(), tc.text, LangEN)
		if err != nil {
			t.Fatalf("Analyze(%q) error = %v", tc.text, err)
		}
		if res.Intent != tc.want {
			t.Fatalf("Analyze(%q) intent = %q, want %q", tc.text, res.Intent, tc.want)
		}
	}
}
