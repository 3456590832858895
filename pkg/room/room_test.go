package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTrackSource(t *testing.T) {
	tests := []struct {
		streamID string
		trackID  string
		expected TrackSource
	}{
		{"screen-share-42", "", TrackSourceScreenShare},
		{"user-1", "screencast", TrackSourceScreenShare},
		{"camera-front", "", TrackSourceCamera},
		{"user-2", "Camera", TrackSourceCamera},
		{"mic-main", "", TrackSourceMicrophone},
		{"user-3", "audio-0", TrackSourceMicrophone},
		{"user-4", "t-9", TrackSourceUnknown},
		{"", "", TrackSourceUnknown},
	}

	for _, tt := range tests {
		result := classifyTrackSource(tt.streamID, tt.trackID)
		assert.Equal(t, tt.expected, result, "stream %q track %q", tt.streamID, tt.trackID)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "new", StateNew.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestPCMConversionRoundTrip(t *testing.T) {
	pcm := []int16{0, 1, -1, 32767, -32768, 1234, -4321}
	bytes := int16SliceToByteSlice(pcm)
	assert.Len(t, bytes, len(pcm)*2)

	back := byteSliceToInt16Slice(bytes)
	assert.Equal(t, pcm, back)
}
