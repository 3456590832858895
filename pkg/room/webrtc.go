package room

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/projectgen/liya/pkg/pipeline"
)

const (
	DefaultWebRTCSampleRate = 48000
	DefaultWebRTCChannels   = 1
	DefaultWebRTCBitRate    = 50000

	reliableChannelLabel = "liya-reliable"
	lossyChannelLabel    = "liya-lossy"
)

// WebRTCConfig holds configuration for a WebRTC room.
type WebRTCConfig struct {
	SampleRate int
	Channels   int
	BitRate    int
}

// DefaultWebRTCConfig returns the default WebRTC configuration.
func DefaultWebRTCConfig() WebRTCConfig {
	return WebRTCConfig{
		SampleRate: DefaultWebRTCSampleRate,
		Channels:   DefaultWebRTCChannels,
		BitRate:    DefaultWebRTCBitRate,
	}
}

type webrtcRoom struct {
	id string
	pc *webrtc.PeerConnection

	// Data channels: one ordered/retransmitted, one best-effort.
	reliableChannel *webrtc.DataChannel
	lossyChannel    *webrtc.DataChannel

	remoteAudioTrack *webrtc.TrackRemote
	localAudioTrack  *webrtc.TrackLocalStaticSample

	handler EventHandler
	state   State

	audioEncoder *opus.Encoder
	audioDecoder *opus.Decoder

	sampleRate int
	channels   int
	bitRate    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	mu     sync.RWMutex
}

var _ Room = (*webrtcRoom)(nil)

// NewWebRTCRoom creates a WebRTC-backed room with default config.
func NewWebRTCRoom(id string, pc *webrtc.PeerConnection) (Room, error) {
	return NewWebRTCRoomWithConfig(id, pc, DefaultWebRTCConfig())
}

// NewWebRTCRoomWithConfig creates a WebRTC-backed room with custom config.
func NewWebRTCRoomWithConfig(id string, pc *webrtc.PeerConnection, cfg WebRTCConfig) (Room, error) {
	audioEncoder, err := opus.NewEncoder(cfg.SampleRate, cfg.Channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	audioEncoder.SetBitrate(cfg.BitRate)
	audioEncoder.SetComplexity(10)
	audioEncoder.SetDTX(true)

	audioDecoder, err := opus.NewDecoder(cfg.SampleRate, cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	r := &webrtcRoom{
		id:           id,
		pc:           pc,
		handler:      &NoOpEventHandler{},
		audioEncoder: audioEncoder,
		audioDecoder: audioDecoder,
		sampleRate:   cfg.SampleRate,
		channels:     cfg.Channels,
		bitRate:      cfg.BitRate,
		ctx:          ctx,
		cancel:       cancel,
	}

	if err := r.start(); err != nil {
		cancel()
		return nil, err
	}

	return r, nil
}

func (r *webrtcRoom) ID() string {
	return r.id
}

func (r *webrtcRoom) RegisterEventHandler(handler EventHandler) {
	r.mu.Lock()
	r.handler = handler
	state := r.state
	r.mu.Unlock()

	// Replay the current state: negotiation can complete before the handler
	// is attached, and the handler must still observe it.
	if state != StateNew {
		handler.OnStateChange(state)
	}
}

func (r *webrtcRoom) setState(state State) {
	r.mu.Lock()
	r.state = state
	handler := r.handler
	r.mu.Unlock()
	handler.OnStateChange(state)
}

func (r *webrtcRoom) eventHandler() EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handler
}

func (r *webrtcRoom) start() error {
	r.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		r.setState(mapWebRTCState(state))
	})

	// Inbound structured messages arrive on whatever channel the client opens.
	r.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		log.Printf("[room %s] data channel opened by peer: %s", r.id, dc.Label())
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			r.eventHandler().OnData(msg.Data)
		})
	})

	ordered := true
	reliable, err := r.pc.CreateDataChannel(reliableChannelLabel, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return fmt.Errorf("create reliable data channel: %w", err)
	}
	r.reliableChannel = reliable

	var maxRetransmits uint16
	lossy, err := r.pc.CreateDataChannel(lossyChannelLabel, &webrtc.DataChannelInit{
		MaxRetransmits: &maxRetransmits,
	})
	if err != nil {
		return fmt.Errorf("create lossy data channel: %w", err)
	}
	r.lossyChannel = lossy

	transceiver, err := r.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionSendrecv,
	})
	if err != nil {
		return fmt.Errorf("add audio transceiver: %w", err)
	}

	if sender := transceiver.Sender(); sender != nil {
		if track := sender.Track(); track != nil {
			r.localAudioTrack = track.(*webrtc.TrackLocalStaticSample)
		}
	}

	r.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Printf("[room %s] OnTrack: %v, codec: %v", r.id, track.ID(), track.Codec().MimeType)

		info := TrackInfo{
			ParticipantID: track.StreamID(),
			Source:        classifyTrackSource(track.StreamID(), track.ID()),
		}

		switch track.Kind() {
		case webrtc.RTPCodecTypeAudio:
			info.Kind = TrackKindAudio
			r.mu.Lock()
			r.remoteAudioTrack = track
			r.mu.Unlock()

			r.wg.Add(1)
			go r.readRemoteAudio()
		case webrtc.RTPCodecTypeVideo:
			// Video frames are not decoded; the subscription itself is the
			// signal (screen share / camera presence).
			info.Kind = TrackKindVideo
		}

		r.eventHandler().OnTrackSubscribed(info)
	})

	return nil
}

func (r *webrtcRoom) readRemoteAudio() {
	defer r.wg.Done()

	pcmBuf := make([]int16, 1920) // 20ms at 48kHz stereo

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			r.mu.RLock()
			track := r.remoteAudioTrack
			r.mu.RUnlock()

			if track == nil {
				return
			}

			rtpPacket, _, err := track.ReadRTP()
			if err != nil {
				if err == io.EOF {
					log.Printf("[room %s] remote audio track closed", r.id)
					return
				}
				log.Printf("[room %s] RTP read error: %v", r.id, err)
				continue
			}

			if len(rtpPacket.Payload) == 0 {
				continue
			}

			n, err := r.audioDecoder.Decode(rtpPacket.Payload, pcmBuf)
			if err != nil {
				log.Printf("[room %s] opus decode error: %v", r.id, err)
				continue
			}

			r.eventHandler().OnAudio(&pipeline.Message{
				Type:      pipeline.MsgTypeAudio,
				SessionID: r.id,
				Timestamp: time.Now(),
				AudioData: &pipeline.AudioData{
					Data:       int16SliceToByteSlice(pcmBuf[:n]),
					SampleRate: r.sampleRate,
					Channels:   r.channels,
					MediaType:  string(pipeline.AudioMediaTypeRaw),
					Timestamp:  time.Now(),
				},
			})
		}
	}
}

func (r *webrtcRoom) SendData(data []byte, reliable bool) error {
	r.mu.RLock()
	dc := r.reliableChannel
	if !reliable {
		dc = r.lossyChannel
	}
	r.mu.RUnlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("data channel not open")
	}

	return dc.Send(data)
}

func (r *webrtcRoom) SendAudio(msg *pipeline.Message) {
	if msg.AudioData == nil || msg.AudioData.MediaType != string(pipeline.AudioMediaTypeRaw) {
		return
	}

	r.mu.RLock()
	track := r.localAudioTrack
	r.mu.RUnlock()

	if track == nil {
		return
	}

	opusBuf := make([]byte, 1275)
	pcm := byteSliceToInt16Slice(msg.AudioData.Data)

	n, err := r.audioEncoder.Encode(pcm, opusBuf)
	if err != nil {
		log.Printf("[room %s] opus encode error: %v", r.id, err)
		return
	}

	sample := media.Sample{
		Data:     opusBuf[:n],
		Duration: 20 * time.Millisecond,
	}

	if err := track.WriteSample(sample); err != nil {
		log.Printf("[room %s] failed to write audio sample: %v", r.id, err)
	}
}

func (r *webrtcRoom) Close() error {
	r.once.Do(func() {
		r.cancel()
		r.wg.Wait()
		if r.pc != nil {
			r.pc.Close()
		}
	})
	return nil
}

// mapWebRTCState maps a pion PeerConnectionState to a room State.
func mapWebRTCState(state webrtc.PeerConnectionState) State {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return StateNew
	case webrtc.PeerConnectionStateConnecting:
		return StateConnecting
	case webrtc.PeerConnectionStateConnected:
		return StateConnected
	case webrtc.PeerConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.PeerConnectionStateFailed:
		return StateFailed
	case webrtc.PeerConnectionStateClosed:
		return StateClosed
	default:
		return StateFailed
	}
}

func int16SliceToByteSlice(data []int16) []byte {
	out := make([]byte, len(data)*2)
	for i, v := range data {
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func byteSliceToInt16Slice(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return out
}
