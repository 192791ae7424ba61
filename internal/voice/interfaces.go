package voice

import (
	"context"

	"github.com/voiceboat/voiceboat/internal/conversation"
)

// Recognizer transcribes a buffered utterance. The controller never calls it
// on a buffer the VAD classified as silence.
type Recognizer interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int, lang conversation.Language) (string, error)
}

// Synthesizer renders a reply as audio. Returns the audio bytes and a format
// label (e.g. "wav", "pcm_16000").
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, lang conversation.Language) ([]byte, string, error)
}

// Dialog is the slice of the conversation orchestrator the voice loop needs.
type Dialog interface {
	HandleText(ctx context.Context, conversationID, text string, lang conversation.Language) (conversation.TurnResult, error)
	HandleNoSpeech(ctx context.Context, conversationID string, lang conversation.Language) (conversation.TurnResult, error)
	NoteDroppedChunks(ctx context.Context, conversationID string, n int) error
	Cancel(ctx context.Context, conversationID string) error
}
