package asr

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
)

// WhisperProvider implements the Provider interface using OpenAI's Whisper API.
type WhisperProvider struct {
	client *openai.Client
	mu     sync.RWMutex
}

// NewWhisperProvider creates a new OpenAI Whisper ASR provider.
func NewWhisperProvider(apiKey string) (*WhisperProvider, error) {
	if apiKey == "" {
		return nil, &Error{
			Code:    ErrCodeInvalidConfig,
			Message: "OpenAI API key is required",
		}
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		clientConfig.BaseURL = baseURL
		log.Printf("[Whisper STT] Using BaseURL: %s", clientConfig.BaseURL)
	}

	return &WhisperProvider{
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

func (w *WhisperProvider) Name() string {
	return "openai-whisper"
}

// Recognize performs speech recognition on a complete audio segment. Raw PCM
// input is wrapped in a WAV container before upload, since the Whisper API
// only accepts standard audio file formats.
func (w *WhisperProvider) Recognize(ctx context.Context, audio io.Reader, audioConfig AudioConfig, config RecognitionConfig) (*RecognitionResult, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	audioData, err := io.ReadAll(audio)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeInvalidAudio,
			Message: "failed to read audio data",
			Err:     err,
		}
	}

	if len(audioData) == 0 {
		return nil, &Error{
			Code:    ErrCodeInvalidAudio,
			Message: "audio data is empty",
		}
	}

	var fileBytes []byte
	if audioConfig.Encoding == "pcm" || audioConfig.Encoding == "" {
		fileBytes = convertPCMToWAV(audioData, audioConfig)
	} else {
		fileBytes = audioData
	}

	req := openai.AudioRequest{
		Model:    config.Model,
		FilePath: "audio.wav", // Filename hint for the API
		Reader:   bytes.NewReader(fileBytes),
		Prompt:   config.Prompt,
		Language: config.Language,
	}

	if req.Model == "" {
		req.Model = openai.Whisper1
	}
	if config.Temperature > 0 {
		req.Temperature = config.Temperature
	}

	startTime := time.Now()
	resp, err := w.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeProviderError,
			Message: "Whisper API request failed",
			Err:     err,
		}
	}

	return &RecognitionResult{
		Text:      resp.Text,
		IsFinal:   true, // Whisper always returns final results
		Language:  config.Language,
		Duration:  time.Since(startTime),
		Timestamp: time.Now(),
	}, nil
}

func (w *WhisperProvider) Close() error {
	return nil
}

// convertPCMToWAV wraps raw PCM audio data in a WAV container.
func convertPCMToWAV(pcmData []byte, config AudioConfig) []byte {
	var buf bytes.Buffer

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcmData)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(config.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(config.SampleRate))

	bitsPerSample := config.BitsPerSample
	if bitsPerSample == 0 {
		bitsPerSample = 16
	}

	byteRate := uint32(config.SampleRate * config.Channels * bitsPerSample / 8)
	binary.Write(&buf, binary.LittleEndian, byteRate)

	blockAlign := uint16(config.Channels * bitsPerSample / 8)
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcmData)))
	buf.Write(pcmData)

	return buf.Bytes()
}
