package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

const (
	openAITTSEndpoint       = "https://api.openai.com/v1/audio/speech"
	openAIDefaultModel      = "tts-1"
	openAIDefaultVoice      = "alloy"
	openAIDefaultFormat     = "pcm" // Raw PCM for pipeline compatibility
	openAIDefaultSampleRate = 24000
)

// OpenAIProvider implements Provider for OpenAI's speech API.
type OpenAIProvider struct {
	apiKey     string
	model      string // "tts-1" or "tts-1-hd"
	endpoint   string
	httpClient *http.Client
}

type openAISpeechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// NewOpenAIProvider creates an OpenAI TTS provider. An empty apiKey falls
// back to the OPENAI_API_KEY environment variable.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	return &OpenAIProvider{
		apiKey:     apiKey,
		model:      openAIDefaultModel,
		endpoint:   openAITTSEndpoint,
		httpClient: &http.Client{},
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

// SetModel sets the TTS model ("tts-1" or "tts-1-hd").
func (p *OpenAIProvider) SetModel(model string) {
	p.model = model
}

// SetEndpoint overrides the speech API endpoint.
func (p *OpenAIProvider) SetEndpoint(endpoint string) {
	p.endpoint = endpoint
}

// Synthesize converts text to speech using the OpenAI speech API.
func (p *OpenAIProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if err := p.ValidateConfig(); err != nil {
		return nil, err
	}

	voice := req.Voice
	if voice == "" {
		voice = openAIDefaultVoice
	}

	speed := req.Speed
	if speed == 0 {
		speed = 1.0
	}

	format := req.Format
	if format == "" {
		format = openAIDefaultFormat
	}

	payload, err := json.Marshal(openAISpeechRequest{
		Model:          p.model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: format,
		Speed:          speed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &SynthesizeResponse{
		AudioData:   audioData,
		AudioFormat: audioFormatFor(format),
	}, nil
}

func audioFormatFor(format string) AudioFormat {
	switch format {
	case "opus":
		return AudioFormat{SampleRate: 24000, Channels: 1, MediaType: "audio/opus", Encoding: "opus"}
	case "mp3":
		return AudioFormat{SampleRate: 24000, Channels: 1, MediaType: "audio/mpeg", Encoding: "mp3"}
	case "wav":
		return AudioFormat{SampleRate: 24000, Channels: 1, MediaType: "audio/wav", Encoding: "wav"}
	default:
		return AudioFormat{SampleRate: openAIDefaultSampleRate, Channels: 1, MediaType: "audio/pcm", Encoding: "pcm_s16le"}
	}
}

func (p *OpenAIProvider) DefaultVoice() string {
	return openAIDefaultVoice
}

func (p *OpenAIProvider) ValidateConfig() error {
	if p.apiKey == "" {
		return fmt.Errorf("OpenAI API key is not set. Please set OPENAI_API_KEY environment variable")
	}
	return nil
}
