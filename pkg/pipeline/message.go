package pipeline

import (
	"fmt"
	"time"
)

// AudioData is a chunk of audio flowing through the pipeline.
type AudioData struct {
	Data       []byte
	SampleRate int
	Channels   int
	MediaType  string // "audio/x-raw", "audio/x-opus", etc.
	Codec      string
	Timestamp  time.Time
}

// TextData is a chunk of text flowing through the pipeline.
// TextType distinguishes user utterances, partial model output and
// final model output ("user", "partial", "final", "say").
type TextData struct {
	Data      []byte
	TextType  string
	Timestamp time.Time
}

const (
	// TextTypeUser marks recognized or injected user utterances.
	TextTypeUser = "user"
	// TextTypePartial marks streamed model output not yet complete.
	TextTypePartial = "partial"
	// TextTypeFinal marks complete model output.
	TextTypeFinal = "final"
	// TextTypeSay marks scripted speech spoken verbatim, bypassing the model.
	TextTypeSay = "say"
)

type MessageType int

const (
	MsgTypeAudio MessageType = iota
	MsgTypeData
	MsgTypeCommand
)

// Message is the unit of work passed between pipeline elements.
type Message struct {
	Type MessageType

	// SessionID identifies the conversational session this message belongs to.
	SessionID string

	Timestamp time.Time

	AudioData *AudioData
	TextData  *TextData

	Metadata interface{}
}

func (m *Message) String() string {
	return fmt.Sprintf("Message{Type: %d, SessionID: %s, Timestamp: %s}", m.Type, m.SessionID, m.Timestamp)
}

// AudioMediaType represents the media type for audio data.
type AudioMediaType string

const (
	// Raw PCM audio (default)
	AudioMediaTypeRaw AudioMediaType = "audio/x-raw"
	// Opus encoded audio
	AudioMediaTypeOpus AudioMediaType = "audio/x-opus"
	// PCM audio format
	AudioMediaTypePCM AudioMediaType = "audio/pcm"
)

func (amt AudioMediaType) String() string {
	return string(amt)
}
