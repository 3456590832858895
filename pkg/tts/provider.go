// Package tts provides text-to-speech synthesis for the agent's spoken replies.
package tts

import (
	"context"
)

// AudioFormat describes synthesized audio.
type AudioFormat struct {
	SampleRate int    // Sample rate in Hz (e.g. 24000, 16000)
	Channels   int    // 1 for mono, 2 for stereo
	MediaType  string // MIME type, e.g. "audio/pcm"
	Encoding   string // Audio encoding, e.g. "pcm_s16le", "opus"
}

// SynthesizeRequest is a request to synthesize speech.
type SynthesizeRequest struct {
	Text   string  // Text to synthesize
	Voice  string  // Voice ID or name, provider default when empty
	Speed  float64 // Speaking speed, 1.0 when zero
	Format string  // Response format, provider default when empty
}

// SynthesizeResponse is the result of speech synthesis.
type SynthesizeResponse struct {
	AudioData   []byte
	AudioFormat AudioFormat
}

// Provider is the interface text-to-speech services implement.
type Provider interface {
	// Name returns the provider name (e.g. "openai").
	Name() string

	// Synthesize converts text to speech.
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error)

	// DefaultVoice returns the voice used when a request does not name one.
	DefaultVoice() string

	// ValidateConfig reports whether credentials and required settings are present.
	ValidateConfig() error
}
