// Package room provides abstractions for the real-time room transport the
// agent joins to talk with a student. Implementations include WebRTC and
// WebSocket transports.
package room

import (
	"strings"

	"github.com/projectgen/liya/pkg/pipeline"
)

// State represents the state of a room connection.
type State int

const (
	// StateNew - initial state, connection not yet started
	StateNew State = iota
	// StateConnecting - connection is being established
	StateConnecting
	// StateConnected - connection is established and ready
	StateConnected
	// StateDisconnected - connection temporarily lost (may reconnect)
	StateDisconnected
	// StateFailed - connection failed permanently
	StateFailed
	// StateClosed - connection closed by user or server
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TrackKind distinguishes audio and video tracks.
type TrackKind string

const (
	TrackKindAudio TrackKind = "audio"
	TrackKindVideo TrackKind = "video"
)

// TrackSource identifies what a published track captures.
type TrackSource string

const (
	TrackSourceUnknown     TrackSource = "unknown"
	TrackSourceMicrophone  TrackSource = "microphone"
	TrackSourceCamera      TrackSource = "camera"
	TrackSourceScreenShare TrackSource = "screen_share"
)

// TrackInfo describes a remote track the room has subscribed to.
type TrackInfo struct {
	ParticipantID string
	Kind          TrackKind
	Source        TrackSource
}

// classifyTrackSource derives the track source from the publisher's stream
// and track identifiers. Clients label their streams "screen"/"camera"/"mic"
// when publishing.
func classifyTrackSource(streamID, trackID string) TrackSource {
	id := strings.ToLower(streamID + " " + trackID)
	switch {
	case strings.Contains(id, "screen"):
		return TrackSourceScreenShare
	case strings.Contains(id, "camera"):
		return TrackSourceCamera
	case strings.Contains(id, "mic"), strings.Contains(id, "audio"):
		return TrackSourceMicrophone
	default:
		return TrackSourceUnknown
	}
}

// EventHandler receives room lifecycle and media events.
type EventHandler interface {
	// OnStateChange is called when the connection state changes.
	OnStateChange(state State)

	// OnData is called when a structured data packet arrives from a peer.
	OnData(data []byte)

	// OnAudio is called for each decoded remote audio frame.
	OnAudio(msg *pipeline.Message)

	// OnTrackSubscribed is called when a remote track becomes available.
	OnTrackSubscribed(info TrackInfo)

	// OnError is called when a transport error occurs.
	OnError(err error)
}

// NoOpEventHandler is a no-op implementation for convenience.
type NoOpEventHandler struct{}

func (h *NoOpEventHandler) OnStateChange(state State) {}

func (h *NoOpEventHandler) OnData(data []byte) {}

func (h *NoOpEventHandler) OnAudio(msg *pipeline.Message) {}

func (h *NoOpEventHandler) OnTrackSubscribed(info TrackInfo) {}

func (h *NoOpEventHandler) OnError(err error) {}

// Room represents one real-time session container joining the agent with a
// student's client.
type Room interface {
	// ID returns the unique identifier for this room.
	ID() string

	// RegisterEventHandler registers an event handler for room events.
	RegisterEventHandler(handler EventHandler)

	// SendData publishes a structured data packet to the room. When
	// reliable is true delivery is ordered and retransmitted.
	SendData(data []byte, reliable bool) error

	// SendAudio publishes an audio frame to the room.
	SendAudio(msg *pipeline.Message)

	// Close closes the room connection and releases resources.
	Close() error
}
