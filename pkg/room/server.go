package room

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

// ServerConfig configures the room server.
type ServerConfig struct {
	// UDP port the WebRTC ICE mux listens on.
	RTCUDPPort int

	// ICELite enables ICE lite mode, default false.
	ICELite bool
}

// ServerEventHandler is notified when rooms are created or fail.
type ServerEventHandler interface {
	// OnRoomCreated is called once a room connection has been negotiated.
	OnRoomCreated(ctx context.Context, r Room)

	// OnRoomError is called when negotiation or setup fails.
	OnRoomError(ctx context.Context, roomID string, err error)
}

// NoOpServerEventHandler is a no-op implementation for convenience.
type NoOpServerEventHandler struct{}

func (h *NoOpServerEventHandler) OnRoomCreated(ctx context.Context, r Room) {}

func (h *NoOpServerEventHandler) OnRoomError(ctx context.Context, roomID string, err error) {}

// Server negotiates room connections over HTTP: WebRTC offers on the
// /session path, WebSocket upgrades on the /ws path.
type Server struct {
	sync.RWMutex

	config   *ServerConfig
	rooms    map[string]Room
	api      *webrtc.API
	handler  ServerEventHandler
	upgrader websocket.Upgrader
}

func NewServer(cfg *ServerConfig, handler ServerEventHandler) *Server {
	if handler == nil {
		handler = &NoOpServerEventHandler{}
	}
	return &Server{
		config:  cfg,
		handler: handler,
		rooms:   make(map[string]Room),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Start() error {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetFireOnTrackBeforeFirstRTP(true)

	if s.config.ICELite {
		settingEngine.SetLite(true)
	}

	settingEngine.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeTCP4,
	})

	udpListener, err := net.ListenUDP("udp", &net.UDPAddr{
		IP:   net.ParseIP("0.0.0.0"),
		Port: s.config.RTCUDPPort,
	})
	if err != nil {
		return err
	}

	udpMux := webrtc.NewICEUDPMux(nil, udpListener)
	settingEngine.SetICEUDPMux(udpMux)

	s.api = webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))

	return nil
}

// HandleNegotiate handles the /session route: a WebRTC offer comes in, an
// answer goes out, and a new Room is handed to the server event handler.
func (s *Server) HandleNegotiate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.Unmarshal(body, &offer); err != nil {
		http.Error(w, "Failed to parse offer", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	pc, err := s.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{},
	})
	if err != nil {
		s.handler.OnRoomError(ctx, "", err)
		http.Error(w, "Failed to create peer connection", http.StatusInternalServerError)
		return
	}

	roomID := uuid.New().String()
	rm, err := NewWebRTCRoom(roomID, pc)
	if err != nil {
		s.handler.OnRoomError(ctx, roomID, err)
		http.Error(w, "Failed to create room", http.StatusInternalServerError)
		return
	}

	s.Lock()
	s.rooms[roomID] = rm
	s.Unlock()

	s.handler.OnRoomCreated(context.Background(), rm)

	if err := pc.SetRemoteDescription(offer); err != nil {
		s.handler.OnRoomError(ctx, roomID, err)
		http.Error(w, "Failed to set remote description", http.StatusInternalServerError)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		s.handler.OnRoomError(ctx, roomID, err)
		http.Error(w, "Failed to create answer", http.StatusInternalServerError)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		s.handler.OnRoomError(ctx, roomID, err)
		http.Error(w, "Failed to set local description", http.StatusInternalServerError)
		return
	}

	// Wait for ICE gathering so the answer carries all candidates.
	gatherComplete := webrtc.GatheringCompletePromise(pc)
	<-gatherComplete

	w.Header().Set("Content-Type", "application/sdp")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(pc.LocalDescription())
}

// HandleWebSocket handles the /ws route for clients that cannot negotiate
// WebRTC.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[server] websocket upgrade failed: %v", err)
		return
	}

	roomID := uuid.New().String()
	rm := NewWebSocketRoom(roomID, conn)

	s.Lock()
	s.rooms[roomID] = rm
	s.Unlock()

	s.handler.OnRoomCreated(context.Background(), rm)
}

// RemoveRoom drops a room from the server's registry.
func (s *Server) RemoveRoom(roomID string) {
	s.Lock()
	defer s.Unlock()
	delete(s.rooms, roomID)
}
