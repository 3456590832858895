package elements

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/projectgen/liya/pkg/pipeline"
	"github.com/projectgen/liya/pkg/tts"
)

var _ pipeline.Element = (*TTSElement)(nil)

// roomSampleRate is the PCM rate the room transport expects.
const roomSampleRate = 48000

// frameDuration is the audio frame size handed to the room.
const frameDuration = 20 * time.Millisecond

// TTSElement synthesizes speech from text messages. Provider output is
// resampled to the room's 48kHz rate and emitted as 20ms PCM frames so the
// room sink can encode them directly.
type TTSElement struct {
	*pipeline.BaseElement

	provider tts.Provider
	voice    string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTTSElement creates a TTS element with the provider's default voice.
func NewTTSElement(provider tts.Provider) *TTSElement {
	return &TTSElement{
		BaseElement: pipeline.NewBaseElement(fmt.Sprintf("%s-tts", provider.Name()), 100),
		provider:    provider,
		voice:       provider.DefaultVoice(),
	}
}

// SetVoice sets the synthesis voice.
func (e *TTSElement) SetVoice(voice string) {
	e.voice = voice
}

func (e *TTSElement) Start(ctx context.Context) error {
	if err := e.provider.ValidateConfig(); err != nil {
		return fmt.Errorf("TTS provider validation failed: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.processMessages(ctx)
	}()

	log.Printf("[TTS] Started (provider: %s, voice: %s)", e.provider.Name(), e.voice)
	return nil
}

func (e *TTSElement) Stop() error {
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
		e.cancel = nil
	}
	log.Printf("[TTS] Stopped")
	return nil
}

func (e *TTSElement) processMessages(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-e.BaseElement.InChan:
			if !ok {
				return
			}
			if msg.Type != pipeline.MsgTypeData || msg.TextData == nil {
				continue
			}
			// User utterances heading upstream never reach synthesis.
			if msg.TextData.TextType == pipeline.TextTypeUser {
				continue
			}

			text := string(msg.TextData.Data)
			if err := e.synthesizeAndOutput(ctx, text, msg.SessionID); err != nil {
				log.Printf("[TTS] Failed to synthesize speech: %v", err)
				if e.BaseElement.Bus() != nil {
					e.BaseElement.Bus().Publish(pipeline.Event{
						Type:      pipeline.EventError,
						Timestamp: time.Now(),
						Payload:   fmt.Sprintf("failed to synthesize speech: %v", err),
					})
				}
			}
		}
	}
}

func (e *TTSElement) synthesizeAndOutput(ctx context.Context, text, sessionID string) error {
	resp, err := e.provider.Synthesize(ctx, &tts.SynthesizeRequest{
		Text:  text,
		Voice: e.voice,
	})
	if err != nil {
		return err
	}

	pcm := resp.AudioData
	if resp.AudioFormat.SampleRate != roomSampleRate {
		pcm = resamplePCM16(pcm, resp.AudioFormat.SampleRate, roomSampleRate)
	}

	frameBytes := int(roomSampleRate * 2 * frameDuration.Milliseconds() / 1000)
	frames := 0
	for off := 0; off < len(pcm); off += frameBytes {
		end := off + frameBytes
		if end > len(pcm) {
			// Pad the tail frame with silence so the encoder gets a full frame.
			tail := make([]byte, frameBytes)
			copy(tail, pcm[off:])
			pcm = append(pcm[:off], tail...)
			end = off + frameBytes
		}

		out := &pipeline.Message{
			Type:      pipeline.MsgTypeAudio,
			SessionID: sessionID,
			Timestamp: time.Now(),
			AudioData: &pipeline.AudioData{
				Data:       pcm[off:end],
				SampleRate: roomSampleRate,
				Channels:   1,
				MediaType:  string(pipeline.AudioMediaTypeRaw),
				Timestamp:  time.Now(),
			},
		}

		select {
		case e.BaseElement.OutChan <- out:
			frames++
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	log.Printf("[TTS] Synthesized %d bytes into %d frames (voice: %s)", len(resp.AudioData), frames, e.voice)
	return nil
}

// resamplePCM16 converts 16-bit mono PCM between sample rates using linear
// interpolation. Good enough for speech; no external resampler needed.
func resamplePCM16(data []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 {
		return data
	}

	in := make([]int16, len(data)/2)
	for i := range in {
		in[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}

	outLen := int(int64(len(in)) * int64(to) / int64(from))
	out := make([]byte, outLen*2)
	for i := 0; i < outLen; i++ {
		pos := float64(i) * float64(from) / float64(to)
		idx := int(pos)
		frac := pos - float64(idx)

		var sample float64
		if idx+1 < len(in) {
			sample = float64(in[idx])*(1-frac) + float64(in[idx+1])*frac
		} else if idx < len(in) {
			sample = float64(in[idx])
		}

		v := int16(sample)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
