package httpapi

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ChatRequest is the text-channel turn payload.
type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
	Language       string `json:"language,omitempty"`
}

func (r ChatRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ConversationID, validation.Required),
		validation.Field(&r.Text, validation.Required),
		validation.Field(&r.Language, validation.In("", "en", "hi", "en-US", "hi-IN")),
	)
}

// ChatResponse is the text-channel turn result.
type ChatResponse struct {
	Text            string `json:"text"`
	ShouldEnd       bool   `json:"should_end"`
	NeedsEscalation bool   `json:"needs_escalation"`
}

// VoiceRequest is the one-shot voice turn payload. AudioData is base64,
// either a WAV container or raw PCM16LE at 16 kHz.
type VoiceRequest struct {
	ConversationID string `json:"conversation_id"`
	AudioData      string `json:"audio_data"`
	Language       string `json:"language,omitempty"`
}

func (r VoiceRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ConversationID, validation.Required),
		validation.Field(&r.AudioData, validation.Required),
		validation.Field(&r.Language, validation.In("", "en", "hi", "en-US", "hi-IN")),
	)
}

// VoiceResponse is the one-shot voice turn result.
type VoiceResponse struct {
	TranscribedText string `json:"transcribed_text,omitempty"`
	ResponseText    string `json:"response_text"`
	Audio           string `json:"audio,omitempty"`
	AudioFormat     string `json:"audio_format,omitempty"`
	ProactivePrompt bool   `json:"proactive_prompt"`
	ShouldEnd       bool   `json:"should_end"`
	NeedsEscalation bool   `json:"needs_escalation"`
}
