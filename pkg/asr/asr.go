// Package asr provides speech recognition for the agent's inbound audio.
package asr

import (
	"context"
	"fmt"
	"io"
	"time"
)

// AudioConfig describes the raw audio handed to a provider.
type AudioConfig struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Encoding      string // "pcm" (default) or a container format
}

// RecognitionConfig holds per-request recognition options.
type RecognitionConfig struct {
	Model       string
	Language    string
	Prompt      string
	Temperature float32
}

// RecognitionResult is the outcome of a recognition request.
type RecognitionResult struct {
	Text      string
	IsFinal   bool
	Language  string
	Duration  time.Duration
	Timestamp time.Time
}

// Provider is the interface speech-to-text services implement.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Recognize performs speech recognition on a complete audio segment.
	Recognize(ctx context.Context, audio io.Reader, audioConfig AudioConfig, config RecognitionConfig) (*RecognitionResult, error)

	// Close releases any resources held by the provider.
	Close() error
}

// ErrCode classifies provider errors.
type ErrCode string

const (
	ErrCodeInvalidConfig ErrCode = "invalid_config"
	ErrCodeInvalidAudio  ErrCode = "invalid_audio"
	ErrCodeProviderError ErrCode = "provider_error"
)

// Error is a provider error with a classification code.
type Error struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("asr: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("asr: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
