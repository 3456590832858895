// Package session owns the lifecycle of one conversational session: room
// connection, the student context handshake, the speech pipeline, and the
// inbound event loop.
package session

import (
	"context"
	"fmt"
	"log"

	"github.com/projectgen/liya/pkg/asr"
	"github.com/projectgen/liya/pkg/assistant"
	"github.com/projectgen/liya/pkg/elements"
	"github.com/projectgen/liya/pkg/pipeline"
	"github.com/projectgen/liya/pkg/room"
	"github.com/projectgen/liya/pkg/tts"
)

// Speech is the managed speech pipeline bound to one room. Say speaks
// scripted text verbatim; GenerateReply treats text as a user utterance and
// produces a spoken reply asynchronously.
type Speech interface {
	Start(ctx context.Context) error
	Stop() error
	Say(text string) error
	GenerateReply(text string) error
	PushAudio(msg *pipeline.Message)
}

// SpeechConfig selects and configures the pipeline backends.
type SpeechConfig struct {
	// Backend picks the language model: "gemini" (default) or "openai".
	Backend string

	// OpenAIKey is used for Whisper STT, OpenAI TTS, and the openai backend.
	OpenAIKey string

	// GoogleKey is used for the gemini backend.
	GoogleKey string

	// Model overrides the backend's default model.
	Model string

	// Voice overrides the TTS provider's default voice.
	Voice string

	// Language is the STT language hint, empty for auto-detection.
	Language string
}

// pipelineSpeech assembles STT, language model, TTS and room sink elements
// into one pipeline.
type pipelineSpeech struct {
	pipe      *pipeline.Pipeline
	llm       pipeline.Element
	sessionID string

	busEvents chan pipeline.Event
	cancel    context.CancelFunc
}

// NewSpeech builds the speech pipeline for one room, with the assistant's
// instructions and tool surface bound to the language model.
func NewSpeech(cfg SpeechConfig, rm room.Room, a *assistant.Assistant) (Speech, error) {
	sttProvider, err := asr.NewWhisperProvider(cfg.OpenAIKey)
	if err != nil {
		return nil, fmt.Errorf("create STT provider: %w", err)
	}
	stt := elements.NewSTTElement(sttProvider, elements.STTConfig{
		SampleRate: 48000,
		Language:   cfg.Language,
	})

	var llm pipeline.Element
	switch cfg.Backend {
	case "openai":
		llm, err = elements.NewChatElement(elements.ChatConfig{
			APIKey:       cfg.OpenAIKey,
			Model:        cfg.Model,
			SystemPrompt: a.Instructions(),
		}, a)
	default:
		llm, err = elements.NewGeminiElement(elements.GeminiConfig{
			APIKey:       cfg.GoogleKey,
			Model:        cfg.Model,
			SystemPrompt: a.Instructions(),
		}, a)
	}
	if err != nil {
		return nil, fmt.Errorf("create language model element: %w", err)
	}

	ttsElem := elements.NewTTSElement(tts.NewOpenAIProvider(cfg.OpenAIKey))
	if cfg.Voice != "" {
		ttsElem.SetVoice(cfg.Voice)
	}

	sink := elements.NewRoomSinkElement(rm)

	pipe := pipeline.NewPipeline(rm.ID())
	pipe.AddElements([]pipeline.Element{stt, llm, ttsElem, sink})
	pipe.Link(stt, llm)
	pipe.Link(llm, ttsElem)
	pipe.Link(ttsElem, sink)

	return &pipelineSpeech{
		pipe:      pipe,
		llm:       llm,
		sessionID: rm.ID(),
	}, nil
}

func (s *pipelineSpeech) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.pipe.Start(ctx); err != nil {
		cancel()
		return err
	}

	// Reply generation is fire-and-forget; completion and failure are only
	// observed here, for logging.
	s.busEvents = make(chan pipeline.Event, 32)
	s.pipe.Bus().Subscribe(pipeline.EventResponseEnd, s.busEvents)
	s.pipe.Bus().Subscribe(pipeline.EventError, s.busEvents)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-s.busEvents:
				if !ok {
					return
				}
				switch ev.Type {
				case pipeline.EventResponseEnd:
					log.Printf("[Session %s] reply generation finished", s.sessionID)
				case pipeline.EventError:
					log.Printf("[Session %s] pipeline error: %v", s.sessionID, ev.Payload)
				}
			}
		}
	}()

	return nil
}

func (s *pipelineSpeech) Stop() error {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return s.pipe.Stop()
}

// inject places a text message on the language model's input without
// blocking.
func (s *pipelineSpeech) inject(text, textType string) error {
	msg := &pipeline.Message{
		Type:      pipeline.MsgTypeData,
		SessionID: s.sessionID,
		TextData: &pipeline.TextData{
			Data:     []byte(text),
			TextType: textType,
		},
	}

	select {
	case s.llm.In() <- msg:
		return nil
	default:
		return fmt.Errorf("speech pipeline busy")
	}
}

func (s *pipelineSpeech) Say(text string) error {
	return s.inject(text, pipeline.TextTypeSay)
}

func (s *pipelineSpeech) GenerateReply(text string) error {
	return s.inject(text, pipeline.TextTypeUser)
}

func (s *pipelineSpeech) PushAudio(msg *pipeline.Message) {
	s.pipe.Push(msg)
}
