package elements

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectgen/liya/pkg/pipeline"
	"github.com/projectgen/liya/pkg/tts"
)

type fakeTTSProvider struct {
	audio      []byte
	sampleRate int
	lastText   string
}

func (f *fakeTTSProvider) Name() string { return "fake" }

func (f *fakeTTSProvider) DefaultVoice() string { return "test-voice" }

func (f *fakeTTSProvider) ValidateConfig() error { return nil }

func (f *fakeTTSProvider) Synthesize(ctx context.Context, req *tts.SynthesizeRequest) (*tts.SynthesizeResponse, error) {
	f.lastText = req.Text
	return &tts.SynthesizeResponse{
		AudioData: f.audio,
		AudioFormat: tts.AudioFormat{
			SampleRate: f.sampleRate,
			Channels:   1,
			MediaType:  "audio/pcm",
			Encoding:   "pcm_s16le",
		},
	}, nil
}

func TestTTSElementEmitsFixedFrames(t *testing.T) {
	// 100ms at 48kHz; should produce exactly five 20ms frames.
	provider := &fakeTTSProvider{
		audio:      make([]byte, 48000*2/10),
		sampleRate: 48000,
	}
	elem := NewTTSElement(provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, elem.Start(ctx))
	defer elem.Stop()

	elem.In() <- &pipeline.Message{
		Type: pipeline.MsgTypeData,
		TextData: &pipeline.TextData{
			Data:     []byte("hello"),
			TextType: pipeline.TextTypeFinal,
		},
	}

	frameBytes := 48000 * 2 / 50
	for i := 0; i < 5; i++ {
		select {
		case msg := <-elem.Out():
			require.NotNil(t, msg.AudioData)
			assert.Len(t, msg.AudioData.Data, frameBytes)
			assert.Equal(t, 48000, msg.AudioData.SampleRate)
		case <-time.After(time.Second):
			t.Fatalf("frame %d not emitted", i)
		}
	}
	assert.Equal(t, "hello", provider.lastText)
}

func TestTTSElementResamplesProviderOutput(t *testing.T) {
	// 100ms at 24kHz resamples to 100ms at 48kHz: five full frames.
	provider := &fakeTTSProvider{
		audio:      make([]byte, 24000*2/10),
		sampleRate: 24000,
	}
	elem := NewTTSElement(provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, elem.Start(ctx))
	defer elem.Stop()

	elem.In() <- &pipeline.Message{
		Type: pipeline.MsgTypeData,
		TextData: &pipeline.TextData{
			Data:     []byte("resample me"),
			TextType: pipeline.TextTypeSay,
		},
	}

	got := 0
	deadline := time.After(time.Second)
	for got < 5 {
		select {
		case msg := <-elem.Out():
			require.NotNil(t, msg.AudioData)
			assert.Equal(t, 48000, msg.AudioData.SampleRate)
			got++
		case <-deadline:
			t.Fatalf("only %d frames emitted", got)
		}
	}
}

func TestTTSElementSkipsUserText(t *testing.T) {
	provider := &fakeTTSProvider{audio: make([]byte, 1920), sampleRate: 48000}
	elem := NewTTSElement(provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, elem.Start(ctx))
	defer elem.Stop()

	elem.In() <- &pipeline.Message{
		Type: pipeline.MsgTypeData,
		TextData: &pipeline.TextData{
			Data:     []byte("user words"),
			TextType: pipeline.TextTypeUser,
		},
	}

	select {
	case <-elem.Out():
		t.Fatal("user text should not be synthesized")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestResamplePCM16(t *testing.T) {
	// Doubling the rate doubles the sample count.
	in := []byte{0x00, 0x10, 0x00, 0x20, 0x00, 0x30, 0x00, 0x40}
	out := resamplePCM16(in, 24000, 48000)
	assert.Len(t, out, len(in)*2)

	// Identity when rates match.
	assert.Equal(t, in, resamplePCM16(in, 48000, 48000))

	// Halving the rate halves the sample count.
	down := resamplePCM16(in, 48000, 24000)
	assert.Len(t, down, len(in)/2)
}
