package conversation

import (
	"context"
	"strings"
	"unicode"
)

// KeywordUnderstander is a deterministic keyword-based understander covering
// English, Hindi and common Hinglish phrasings. It is the default when no
// NLU endpoint is configured and doubles as the test fixture.
type KeywordUnderstander struct{}

func NewKeywordUnderstander() *KeywordUnderstander { return &KeywordUnderstander{} }

var (
	stationKeywords      = []string{"station", "स्टेशन", "sthan", "kendra"}
	locationKeywords     = []string{"noida", "delhi", "gurgaon", "नोएडा", "दिल्ली", "गुरुग्राम"}
	swapKeywords         = []string{"swap", "history", "itihas", "इतिहास", "बदलाव"}
	greetingKeywords     = []string{"hello", "hi", "hey", "namaste", "namaskar", "kaise ho", "नमस्ते", "नमस्कार", "हैलो"}
	angerKeywords        = []string{"angry", "bad", "terrible", "useless", "गुस्सा", "बेकार"}
	availabilityKeywords = []string{"available", "availability", "उपलब्ध"}
	renewKeywords        = []string{"renew", "renewal", "रिन्यू"}
	subscriptionKeywords = []string{"subscription", "plan", "सब्सक्रिप्शन"}
	pricingKeywords      = []string{"price", "pricing", "cost", "charge", "कीमत", "दाम"}
	invoiceKeywords      = []string{"invoice", "bill", "बिल"}
	leaveKeywords        = []string{"leave", "chutti", "छुट्टी"}
	dskKeywords          = []string{"dsk"}
)

func (u *KeywordUnderstander) Analyze(_ context.Context, text string, _ Language) (NLUResult, error) {
	lowered := strings.ToLower(text)

	// Station / location mentions. A bare location keeps the intent Unknown
	// so a previously latched intent can consume the entity.
	if containsAny(lowered, stationKeywords) || containsAny(lowered, locationKeywords) {
		entities := map[string]string{}
		for _, loc := range locationKeywords {
			if strings.Contains(lowered, loc) {
				entities["location"] = capitalize(loc)
				break
			}
		}
		if containsAny(lowered, availabilityKeywords) {
			return NLUResult{Intent: IntentCheckAvailability, Confidence: 0.85, Entities: entities, Sentiment: SentimentNeutral}, nil
		}
		intent := IntentUnknown
		if containsAny(lowered, stationKeywords) {
			intent = IntentFindNearestStation
		}
		return NLUResult{Intent: intent, Confidence: 0.9, Entities: entities, Sentiment: SentimentNeutral}, nil
	}

	if containsAny(lowered, swapKeywords) {
		entities := map[string]string{}
		if strings.Contains(lowered, "yesterday") || strings.Contains(lowered, "kal") || strings.Contains(lowered, "कल") {
			entities["date_range"] = "yesterday"
		} else if strings.Contains(lowered, "today") || strings.Contains(lowered, "aaj") || strings.Contains(lowered, "आज") {
			entities["date_range"] = "today"
		}
		return NLUResult{Intent: IntentGetSwapHistory, Confidence: 0.85, Entities: entities, Sentiment: SentimentNeutral}, nil
	}

	if containsAny(lowered, invoiceKeywords) {
		return NLUResult{Intent: IntentExplainInvoice, Confidence: 0.8, Sentiment: SentimentNeutral}, nil
	}
	if containsAny(lowered, renewKeywords) && containsAny(lowered, subscriptionKeywords) {
		return NLUResult{Intent: IntentRenewSubscription, Confidence: 0.85, Sentiment: SentimentNeutral}, nil
	}
	if containsAny(lowered, subscriptionKeywords) {
		return NLUResult{Intent: IntentCheckSubscription, Confidence: 0.85, Sentiment: SentimentNeutral}, nil
	}
	if containsAny(lowered, pricingKeywords) {
		return NLUResult{Intent: IntentPricingInfo, Confidence: 0.85, Sentiment: SentimentNeutral}, nil
	}
	if containsAny(lowered, leaveKeywords) {
		return NLUResult{Intent: IntentLeaveInfo, Confidence: 0.75, Sentiment: SentimentNeutral}, nil
	}
	if containsAny(lowered, dskKeywords) {
		return NLUResult{Intent: IntentFindDSK, Confidence: 0.8, Sentiment: SentimentNeutral}, nil
	}

	if containsAny(lowered, angerKeywords) {
		return NLUResult{Intent: IntentUnknown, Confidence: 0.5, Sentiment: SentimentAngry}, nil
	}

	if containsAny(lowered, greetingKeywords) {
		return NLUResult{Intent: IntentUnknown, Confidence: 0.7, Sentiment: SentimentPositive}, nil
	}

	return NLUResult{Intent: IntentUnknown, Confidence: 0.3, Sentiment: SentimentNeutral}, nil
}

func containsAny(lowered string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
