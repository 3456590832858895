package room

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/projectgen/liya/pkg/pipeline"
)

const (
	DefaultWSWriteWait  = 10 * time.Second
	DefaultWSPongWait   = 60 * time.Second
	DefaultWSPingPeriod = 54 * time.Second // Must be less than pongWait
)

// WebSocketConfig holds configuration for a WebSocket room.
type WebSocketConfig struct {
	SampleRate int
	Channels   int
	WriteWait  time.Duration
	PongWait   time.Duration
	PingPeriod time.Duration
}

// DefaultWebSocketConfig returns the default WebSocket configuration.
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		SampleRate: 48000,
		Channels:   1,
		WriteWait:  DefaultWSWriteWait,
		PongWait:   DefaultWSPongWait,
		PingPeriod: DefaultWSPingPeriod,
	}
}

// WSMessage is the JSON envelope for WebSocket room traffic.
type WSMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// WSAudioPayload carries audio data in WebSocket messages.
type WSAudioPayload struct {
	Data       string `json:"data"` // Base64 encoded PCM
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	MediaType  string `json:"media_type"`
}

// WSTrackPayload announces a client-side track (camera/screen share) over
// the WebSocket transport, which has no native media subscription.
type WSTrackPayload struct {
	ParticipantID string `json:"participant_id"`
	Kind          string `json:"kind"`
	Source        string `json:"source"`
}

type websocketRoom struct {
	id   string
	conn *websocket.Conn

	handler EventHandler
	state   State

	sampleRate int
	channels   int

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration

	outChan chan *WSMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex
}

var _ Room = (*websocketRoom)(nil)

// NewWebSocketRoom creates a WebSocket-backed room with default config.
func NewWebSocketRoom(id string, conn *websocket.Conn) Room {
	return NewWebSocketRoomWithConfig(id, conn, DefaultWebSocketConfig())
}

// NewWebSocketRoomWithConfig creates a WebSocket-backed room with custom config.
func NewWebSocketRoomWithConfig(id string, conn *websocket.Conn, cfg WebSocketConfig) Room {
	ctx, cancel := context.WithCancel(context.Background())

	r := &websocketRoom{
		id:         id,
		conn:       conn,
		handler:    &NoOpEventHandler{},
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		writeWait:  cfg.WriteWait,
		pongWait:   cfg.PongWait,
		pingPeriod: cfg.PingPeriod,
		outChan:    make(chan *WSMessage, 50),
		ctx:        ctx,
		cancel:     cancel,
	}

	r.start()

	return r
}

func (r *websocketRoom) ID() string {
	return r.id
}

func (r *websocketRoom) RegisterEventHandler(handler EventHandler) {
	r.mu.Lock()
	r.handler = handler
	state := r.state
	r.mu.Unlock()

	// Replay the current state: the connection may have come up before the
	// handler was attached, and the handler must still observe it.
	if state != StateNew {
		handler.OnStateChange(state)
	}
}

func (r *websocketRoom) setState(state State) {
	r.mu.Lock()
	r.state = state
	handler := r.handler
	r.mu.Unlock()
	handler.OnStateChange(state)
}

func (r *websocketRoom) eventHandler() EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handler
}

func (r *websocketRoom) start() {
	r.setState(StateConnected)

	r.conn.SetReadDeadline(time.Now().Add(r.pongWait))
	r.conn.SetPongHandler(func(string) error {
		r.conn.SetReadDeadline(time.Now().Add(r.pongWait))
		return nil
	})

	r.wg.Add(3)
	go r.readPump()
	go r.writePump()
	go r.pingPump()
}

func (r *websocketRoom) readPump() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			_, raw, err := r.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					r.eventHandler().OnError(err)
				}
				r.setState(StateClosed)
				return
			}

			var msg WSMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				log.Printf("[room %s] bad websocket envelope: %v", r.id, err)
				continue
			}

			switch msg.Type {
			case "audio":
				r.handleAudioPayload(msg.Payload)
			case "data":
				r.eventHandler().OnData(msg.Payload)
			case "track":
				r.handleTrackPayload(msg.Payload)
			default:
				log.Printf("[room %s] unknown websocket message type: %s", r.id, msg.Type)
			}
		}
	}
}

func (r *websocketRoom) handleAudioPayload(payload json.RawMessage) {
	var audio WSAudioPayload
	if err := json.Unmarshal(payload, &audio); err != nil {
		log.Printf("[room %s] bad audio payload: %v", r.id, err)
		return
	}

	data, err := base64.StdEncoding.DecodeString(audio.Data)
	if err != nil {
		log.Printf("[room %s] bad audio encoding: %v", r.id, err)
		return
	}

	sampleRate := audio.SampleRate
	if sampleRate == 0 {
		sampleRate = r.sampleRate
	}
	channels := audio.Channels
	if channels == 0 {
		channels = r.channels
	}

	r.eventHandler().OnAudio(&pipeline.Message{
		Type:      pipeline.MsgTypeAudio,
		SessionID: r.id,
		Timestamp: time.Now(),
		AudioData: &pipeline.AudioData{
			Data:       data,
			SampleRate: sampleRate,
			Channels:   channels,
			MediaType:  string(pipeline.AudioMediaTypeRaw),
			Timestamp:  time.Now(),
		},
	})
}

func (r *websocketRoom) handleTrackPayload(payload json.RawMessage) {
	var track WSTrackPayload
	if err := json.Unmarshal(payload, &track); err != nil {
		log.Printf("[room %s] bad track payload: %v", r.id, err)
		return
	}

	kind := TrackKind(track.Kind)
	source := TrackSource(track.Source)
	if source == "" {
		source = classifyTrackSource(track.ParticipantID, "")
	}

	r.eventHandler().OnTrackSubscribed(TrackInfo{
		ParticipantID: track.ParticipantID,
		Kind:          kind,
		Source:        source,
	})
}

func (r *websocketRoom) SendData(data []byte, reliable bool) error {
	// The WebSocket transport is reliable by nature; the flag only matters
	// for WebRTC.
	msg := &WSMessage{Type: "data", Payload: json.RawMessage(data)}
	select {
	case r.outChan <- msg:
		return nil
	default:
		return fmt.Errorf("outbound channel full")
	}
}

func (r *websocketRoom) SendAudio(msg *pipeline.Message) {
	if msg.AudioData == nil {
		return
	}

	payload, err := json.Marshal(WSAudioPayload{
		Data:       base64.StdEncoding.EncodeToString(msg.AudioData.Data),
		SampleRate: msg.AudioData.SampleRate,
		Channels:   msg.AudioData.Channels,
		MediaType:  msg.AudioData.MediaType,
	})
	if err != nil {
		log.Printf("[room %s] marshal audio payload: %v", r.id, err)
		return
	}

	select {
	case r.outChan <- &WSMessage{Type: "audio", Payload: payload}:
	default:
		log.Printf("[room %s] outbound channel full, dropping audio frame", r.id)
	}
}

func (r *websocketRoom) writePump() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case msg := <-r.outChan:
			r.conn.SetWriteDeadline(time.Now().Add(r.writeWait))
			if err := r.conn.WriteJSON(msg); err != nil {
				log.Printf("[room %s] websocket write error: %v", r.id, err)
				r.eventHandler().OnError(err)
				return
			}
		}
	}
}

func (r *websocketRoom) pingPump() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.conn.SetWriteDeadline(time.Now().Add(r.writeWait))
			if err := r.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (r *websocketRoom) Close() error {
	r.once.Do(func() {
		r.cancel()
		r.conn.Close()
		r.wg.Wait()
	})
	return nil
}
