package room

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stateRecorder struct {
	NoOpEventHandler
	mu     sync.Mutex
	states []State
}

func (h *stateRecorder) OnStateChange(state State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, state)
}

func (h *stateRecorder) has(state State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.states {
		if s == state {
			return true
		}
	}
	return false
}

func TestWebSocketRoomReplaysConnectedState(t *testing.T) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	roomCh := make(chan Room, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		roomCh <- NewWebSocketRoom("ws-room", conn)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	var rm Room
	select {
	case rm = <-roomCh:
	case <-time.After(time.Second):
		t.Fatal("room not created")
	}
	defer rm.Close()

	// The handler is attached after the room already came up, exactly as
	// the session coordinator does in Run.
	rec := &stateRecorder{}
	rm.RegisterEventHandler(rec)

	require.Eventually(t, func() bool {
		return rec.has(StateConnected)
	}, time.Second, 10*time.Millisecond, "handler registered after room creation must observe StateConnected")
}

func TestWebRTCRoomReplaysStateToLateHandler(t *testing.T) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)

	rm, err := NewWebRTCRoom("rtc-room", pc)
	require.NoError(t, err)
	defer rm.Close()

	rm.(*webrtcRoom).setState(StateConnected)

	rec := &stateRecorder{}
	rm.RegisterEventHandler(rec)

	assert.True(t, rec.has(StateConnected))
}
