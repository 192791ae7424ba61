package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies media-stream payload variants.
type MessageType string

const (
	TypeCallerAudioChunk MessageType = "caller_audio_chunk"
	TypeCallerControl    MessageType = "caller_control"
	TypeTranscript       MessageType = "transcript"
	TypeBotText          MessageType = "bot_text"
	TypeBotAudioChunk    MessageType = "bot_audio_chunk"
	TypeTurnEnded        MessageType = "turn_ended"
	TypeSystemEvent      MessageType = "system_event"
	TypeErrorEvent       MessageType = "error_event"
)

// Caller control actions.
const (
	ActionHangup = "hangup"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type CallerAudioChunk struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	Seq            int         `json:"seq"`
	PCM16Base64    string      `json:"pcm16_base64"`
	SampleRate     int         `json:"sample_rate"`
	TSMs           int64       `json:"ts_ms"`
}

type CallerControl struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	Action         string      `json:"action"`
}

type Transcript struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	Text           string      `json:"text"`
	TSMs           int64       `json:"ts_ms"`
}

type BotText struct {
	Type            MessageType `json:"type"`
	ConversationID  string      `json:"conversation_id"`
	TurnID          string      `json:"turn_id"`
	Text            string      `json:"text"`
	ProactivePrompt bool        `json:"proactive_prompt"`
}

type BotAudioChunk struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	TurnID         string      `json:"turn_id"`
	Seq            int         `json:"seq"`
	Format         string      `json:"format"`
	AudioBase64    string      `json:"audio_base64"`
}

type TurnEnded struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	TurnID         string      `json:"turn_id"`
	Reason         string      `json:"reason"`
}

type SystemEvent struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	Code           string      `json:"code"`
	Detail         string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type           MessageType `json:"type"`
	ConversationID string      `json:"conversation_id"`
	Code           string      `json:"code"`
	Source         string      `json:"source"`
	Retryable      bool        `json:"retryable"`
	Detail         string      `json:"detail"`
}

// ParseCallerMessage decodes and validates one inbound frame.
func ParseCallerMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeCallerAudioChunk:
		var msg CallerAudioChunk
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ConversationID == "" || msg.PCM16Base64 == "" || msg.SampleRate <= 0 {
			return nil, errors.New("invalid caller_audio_chunk")
		}
		return msg, nil
	case TypeCallerControl:
		var msg CallerControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ConversationID == "" || msg.Action == "" {
			return nil, errors.New("invalid caller_control")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// TypeOf reports the message type of any protocol value.
func TypeOf(v any) (MessageType, bool) {
	switch m := v.(type) {
	case CallerAudioChunk:
		return m.Type, true
	case CallerControl:
		return m.Type, true
	case Transcript:
		return m.Type, true
	case BotText:
		return m.Type, true
	case BotAudioChunk:
		return m.Type, true
	case TurnEnded:
		return m.Type, true
	case SystemEvent:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
