package conversation

import (
	"fmt"
	"hash/fnv"
	"os"

	"gopkg.in/yaml.v3"
)

// Bucket names a prompt table.
type Bucket string

const (
	BucketGreeting        Bucket = "greeting"
	BucketClarification   Bucket = "clarification"
	BucketRephrase        Bucket = "rephrase"
	BucketProactive       Bucket = "proactive"
	BucketNoResponseFinal Bucket = "no_response_final"
	BucketHandoff         Bucket = "handoff"
	BucketFarewell        Bucket = "farewell"
	BucketApology         Bucket = "apology"
	BucketElicitLocation  Bucket = "elicit_location"
	BucketElicitDateRange Bucket = "elicit_date_range"
	BucketPricing         Bucket = "pricing"
)

// PromptSet holds the localized utterance tables for one language.
type PromptSet struct {
	Greeting        []string `yaml:"greeting"`
	Clarification   []string `yaml:"clarification"`
	Rephrase        []string `yaml:"rephrase"`
	Proactive       []string `yaml:"proactive"`
	NoResponseFinal []string `yaml:"no_response_final"`
	Handoff         []string `yaml:"handoff"`
	Farewell        []string `yaml:"farewell"`
	Apology         []string `yaml:"apology"`
	ElicitLocation  []string `yaml:"elicit_location"`
	ElicitDateRange []string `yaml:"elicit_date_range"`
	Pricing         []string `yaml:"pricing"`
}

// Prompts indexes prompt sets by language. Read-only after construction.
type Prompts struct {
	byLang map[Language]PromptSet
}

// DefaultPrompts returns the embedded EN and HI prompt tables.
func DefaultPrompts() *Prompts {
	return &Prompts{byLang: map[Language]PromptSet{
		LangEN: {
			Greeting: []string{
				"Hello! Welcome to driver support. How can I help you today?",
			},
			Clarification: []string{
				"I'm sorry, I didn't quite catch that. Could you please repeat?",
			},
			Rephrase: []string{
				"What do you need? Station, swap history, or something else?",
				"Tell me, what can I help you with?",
			},
			Proactive: []string{
				"Hello? I'm listening, go ahead.",
				"Are you there?",
				"What do you need?",
				"I'm here, how can I help?",
			},
			NoResponseFinal: []string{
				"If you need help, speak up. Otherwise, I'll end the call.",
			},
			Handoff: []string{
				"Okay, connecting you to an agent. Please hold.",
				"Let me connect you to someone who can help. One moment.",
			},
			Farewell: []string{
				"Thanks for calling. Goodbye!",
			},
			Apology: []string{
				"Sorry, I'm having trouble right now. Could you say that again?",
			},
			ElicitLocation: []string{
				"Which area are you in?",
			},
			ElicitDateRange: []string{
				"Which date or period?",
			},
			Pricing: []string{
				"A battery swap costs 50 rupees. Monthly subscriptions start at 999 rupees.",
			},
		},
		LangHI: {
			Greeting: []string{
				"नमस्ते! ड्राइवर सहायता में आपका स्वागत है। मैं आपकी क्या मदद कर सकता हूं?",
			},
			Clarification: []string{
				"माफ़ कीजिए, मैं ठीक से समझ नहीं पाया। क्या आप दोबारा बोल सकते हैं?",
			},
			Rephrase: []string{
				"क्या चाहिए? स्टेशन, swap history, या कुछ और?",
				"बताइए, मैं क्या मदद कर सकता हूं?",
			},
			Proactive: []string{
				"हैलो? मैं सुन रहा हूं, बोलिए।",
				"क्या आप वहाँ हैं?",
				"बताइए, क्या चाहिए?",
				"मैं यहाँ हूं, क्या मदद चाहिए?",
			},
			NoResponseFinal: []string{
				"अगर मदद चाहिए तो बोलिए, वरना मैं कॉल समाप्त कर रहा हूं।",
			},
			Handoff: []string{
				"ठीक है, मैं आपको एजेंट से जोड़ रहा हूं, कृपया प्रतीक्षा करें।",
				"एजेंट से बात करवाता हूं, लाइन पर बने रहिए।",
			},
			Farewell: []string{
				"कॉल करने के लिए धन्यवाद। नमस्ते!",
			},
			Apology: []string{
				"माफ़ कीजिए, अभी कुछ दिक्कत आ रही है। क्या आप दोबारा बोल सकते हैं?",
			},
			ElicitLocation: []string{
				"आप किस इलाके में हैं?",
			},
			ElicitDateRange: []string{
				"किस तारीख या अवधि का?",
			},
			Pricing: []string{
				"एक बैटरी swap की कीमत 50 रुपये है। मासिक सब्सक्रिप्शन 999 रुपये से शुरू होता है।",
			},
		},
	}}
}

// LoadPrompts reads a YAML prompt document and merges it over the embedded
// defaults. Only non-empty buckets override.
func LoadPrompts(path string) (*Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	var doc map[string]PromptSet
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse prompts file: %w", err)
	}
	for langKey, set := range doc {
		lang := NormalizeLanguage(langKey)
		merged := p.byLang[lang]
		mergeBucket(&merged.Greeting, set.Greeting)
		mergeBucket(&merged.Clarification, set.Clarification)
		mergeBucket(&merged.Rephrase, set.Rephrase)
		mergeBucket(&merged.Proactive, set.Proactive)
		mergeBucket(&merged.NoResponseFinal, set.NoResponseFinal)
		mergeBucket(&merged.Handoff, set.Handoff)
		mergeBucket(&merged.Farewell, set.Farewell)
		mergeBucket(&merged.Apology, set.Apology)
		mergeBucket(&merged.ElicitLocation, set.ElicitLocation)
		mergeBucket(&merged.ElicitDateRange, set.ElicitDateRange)
		mergeBucket(&merged.Pricing, set.Pricing)
		p.byLang[lang] = merged
	}
	return p, nil
}

func mergeBucket(dst *[]string, override []string) {
	if len(override) > 0 {
		*dst = override
	}
}

// Pick selects a prompt deterministically: the same conversation id and
// counter always yield the same utterance, and consecutive counters walk the
// bucket so repeated prompts within a session stay distinct.
func (p *Prompts) Pick(bucket Bucket, lang Language, conversationID string, counter int) string {
	set, ok := p.byLang[lang]
	if !ok {
		set = p.byLang[LangEN]
	}
	options := set.bucket(bucket)
	if len(options) == 0 {
		options = p.byLang[LangEN].bucket(bucket)
	}
	if len(options) == 0 {
		return ""
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	if counter < 0 {
		counter = 0
	}
	idx := (int(h.Sum32()%uint32(len(options))) + counter) % len(options)
	return options[idx]
}

func (s PromptSet) bucket(b Bucket) []string {
	switch b {
	case BucketGreeting:
		return s.Greeting
	case BucketClarification:
		return s.Clarification
	case BucketRephrase:
		return s.Rephrase
	case BucketProactive:
		return s.Proactive
	case BucketNoResponseFinal:
		return s.NoResponseFinal
	case BucketHandoff:
		return s.Handoff
	case BucketFarewell:
		return s.Farewell
	case BucketApology:
		return s.Apology
	case BucketElicitLocation:
		return s.ElicitLocation
	case BucketElicitDateRange:
		return s.ElicitDateRange
	case BucketPricing:
		return s.Pricing
	default:
		return nil
	}
}
