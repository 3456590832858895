package elements

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectgen/liya/pkg/asr"
	"github.com/projectgen/liya/pkg/pipeline"
)

type fakeASRProvider struct {
	text     string
	received []byte
}

func (f *fakeASRProvider) Name() string { return "fake" }

func (f *fakeASRProvider) Recognize(ctx context.Context, audio io.Reader, audioConfig asr.AudioConfig, config asr.RecognitionConfig) (*asr.RecognitionResult, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return nil, err
	}
	f.received = data
	return &asr.RecognitionResult{Text: f.text, IsFinal: true, Timestamp: time.Now()}, nil
}

func (f *fakeASRProvider) Close() error { return nil }

func TestSTTElementFlushesOnSilence(t *testing.T) {
	provider := &fakeASRProvider{text: "hello liya"}
	elem := NewSTTElement(provider, STTConfig{
		SampleRate:   16000,
		SilenceFlush: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, elem.Start(ctx))
	defer elem.Stop()

	// 200ms of audio, above the minimum segment length.
	audio := make([]byte, 16000*2/5)
	elem.In() <- &pipeline.Message{
		Type: pipeline.MsgTypeAudio,
		AudioData: &pipeline.AudioData{
			Data:       audio,
			SampleRate: 16000,
			Channels:   1,
		},
	}

	select {
	case msg := <-elem.Out():
		require.NotNil(t, msg.TextData)
		assert.Equal(t, "hello liya", string(msg.TextData.Data))
		assert.Equal(t, pipeline.TextTypeUser, msg.TextData.TextType)
		assert.Equal(t, audio, provider.received)
	case <-time.After(2 * time.Second):
		t.Fatal("no recognition result emitted")
	}
}

func TestSTTElementIgnoresMismatchedSampleRate(t *testing.T) {
	provider := &fakeASRProvider{text: "should not appear"}
	elem := NewSTTElement(provider, STTConfig{
		SampleRate:   16000,
		SilenceFlush: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, elem.Start(ctx))
	defer elem.Stop()

	elem.In() <- &pipeline.Message{
		Type: pipeline.MsgTypeAudio,
		AudioData: &pipeline.AudioData{
			Data:       make([]byte, 9600),
			SampleRate: 48000,
			Channels:   1,
		},
	}

	select {
	case <-elem.Out():
		t.Fatal("mismatched audio should not be recognized")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSTTElementSkipsShortSegments(t *testing.T) {
	provider := &fakeASRProvider{text: "noise"}
	elem := NewSTTElement(provider, STTConfig{
		SampleRate:   16000,
		SilenceFlush: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, elem.Start(ctx))
	defer elem.Stop()

	// 50ms, below the 100ms minimum.
	elem.In() <- &pipeline.Message{
		Type: pipeline.MsgTypeAudio,
		AudioData: &pipeline.AudioData{
			Data:       make([]byte, 16000*2/20),
			SampleRate: 16000,
			Channels:   1,
		},
	}

	select {
	case <-elem.Out():
		t.Fatal("short segment should be skipped")
	case <-time.After(300 * time.Millisecond):
	}
}
