// Package elements provides the pipeline processing elements for the voice
// coach: speech recognition, language model turns, speech synthesis, and the
// room sink.
package elements

import (
	"bytes"
	"context"
	"log"
	"sync"
	"time"

	"github.com/projectgen/liya/pkg/asr"
	"github.com/projectgen/liya/pkg/pipeline"
)

var _ pipeline.Element = (*STTElement)(nil)

// STTConfig holds configuration for the STT element.
type STTConfig struct {
	// Language code, empty for auto-detection.
	Language string

	// Model name (default "whisper-1").
	Model string

	// SampleRate in Hz (default 16000).
	SampleRate int

	// Channels (default 1).
	Channels int

	// SilenceFlush is how long the inbound audio must be quiet before the
	// buffered segment is sent for recognition (default 600ms).
	SilenceFlush time.Duration

	// MaxBuffer caps the buffered segment length (default 10s of audio).
	MaxBuffer time.Duration
}

// STTElement buffers inbound PCM audio and sends a segment for recognition
// once the speaker pauses. Recognized utterances flow downstream as user
// text messages.
type STTElement struct {
	*pipeline.BaseElement

	provider asr.Provider
	config   STTConfig

	mu          sync.Mutex
	audioBuffer []byte
	lastAudioAt time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSTTElement creates an STT element backed by the given provider.
func NewSTTElement(provider asr.Provider, config STTConfig) *STTElement {
	if config.Model == "" {
		config.Model = "whisper-1"
	}
	if config.SampleRate == 0 {
		config.SampleRate = 16000
	}
	if config.Channels == 0 {
		config.Channels = 1
	}
	if config.SilenceFlush == 0 {
		config.SilenceFlush = 600 * time.Millisecond
	}
	if config.MaxBuffer == 0 {
		config.MaxBuffer = 10 * time.Second
	}

	return &STTElement{
		BaseElement: pipeline.NewBaseElement("stt", 100),
		provider:    provider,
		config:      config,
	}
}

func (e *STTElement) maxBufferBytes() int {
	bytesPerSecond := e.config.SampleRate * e.config.Channels * 2
	return int(e.config.MaxBuffer.Seconds() * float64(bytesPerSecond))
}

func (e *STTElement) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	log.Printf("[STT] Starting element (provider: %s, model: %s, flush: %v)",
		e.provider.Name(), e.config.Model, e.config.SilenceFlush)

	e.wg.Add(2)
	go e.bufferLoop(ctx)
	go e.flushLoop(ctx)

	return nil
}

func (e *STTElement) Stop() error {
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
		e.cancel = nil
	}
	if e.provider != nil {
		e.provider.Close()
	}
	log.Printf("[STT] Stopped")
	return nil
}

func (e *STTElement) bufferLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-e.BaseElement.InChan:
			if !ok {
				return
			}
			if msg.Type != pipeline.MsgTypeAudio || msg.AudioData == nil {
				continue
			}
			if msg.AudioData.SampleRate != e.config.SampleRate {
				log.Printf("[STT] Warning: sample rate mismatch (expected %d, got %d)",
					e.config.SampleRate, msg.AudioData.SampleRate)
				continue
			}

			e.mu.Lock()
			e.audioBuffer = append(e.audioBuffer, msg.AudioData.Data...)
			e.lastAudioAt = time.Now()
			full := len(e.audioBuffer) >= e.maxBufferBytes()
			e.mu.Unlock()

			if full {
				e.recognizeSegment(ctx)
			}
		}
	}
}

// flushLoop watches for a pause in the inbound audio and triggers
// recognition on the buffered segment.
func (e *STTElement) flushLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			quiet := len(e.audioBuffer) > 0 && time.Since(e.lastAudioAt) >= e.config.SilenceFlush
			e.mu.Unlock()

			if quiet {
				e.recognizeSegment(ctx)
			}
		}
	}
}

func (e *STTElement) recognizeSegment(ctx context.Context) {
	e.mu.Lock()
	if len(e.audioBuffer) == 0 {
		e.mu.Unlock()
		return
	}
	segment := e.audioBuffer
	e.audioBuffer = nil
	e.mu.Unlock()

	// Skip segments shorter than 100ms; they carry no usable speech.
	minBytes := e.config.SampleRate * e.config.Channels * 2 / 10
	if len(segment) < minBytes {
		return
	}

	if e.BaseElement.Bus() != nil {
		e.BaseElement.Bus().Publish(pipeline.Event{
			Type:      pipeline.EventSpeechStart,
			Timestamp: time.Now(),
		})
	}

	result, err := e.provider.Recognize(ctx, bytes.NewReader(segment),
		asr.AudioConfig{
			SampleRate:    e.config.SampleRate,
			Channels:      e.config.Channels,
			BitsPerSample: 16,
			Encoding:      "pcm",
		},
		asr.RecognitionConfig{
			Model:    e.config.Model,
			Language: e.config.Language,
		})
	if err != nil {
		log.Printf("[STT] Recognition error: %v", err)
		if e.BaseElement.Bus() != nil {
			e.BaseElement.Bus().Publish(pipeline.Event{
				Type:      pipeline.EventError,
				Timestamp: time.Now(),
				Payload:   err.Error(),
			})
		}
		return
	}

	if result.Text == "" {
		return
	}

	log.Printf("[STT] Recognized: %s", result.Text)

	out := &pipeline.Message{
		Type:      pipeline.MsgTypeData,
		Timestamp: time.Now(),
		TextData: &pipeline.TextData{
			Data:      []byte(result.Text),
			TextType:  pipeline.TextTypeUser,
			Timestamp: result.Timestamp,
		},
	}

	select {
	case e.BaseElement.OutChan <- out:
	case <-ctx.Done():
	}
}
