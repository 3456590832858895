package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/projectgen/liya/pkg/assistant"
	"github.com/projectgen/liya/pkg/feedback"
	"github.com/projectgen/liya/pkg/pipeline"
	"github.com/projectgen/liya/pkg/room"
	"github.com/projectgen/liya/pkg/trace"
)

// State is the coordinator lifecycle state.
type State int32

const (
	// StateConnecting - waiting for the room transport to come up.
	StateConnecting State = iota
	// StateWaitingForContext - connected, polling for the student context.
	StateWaitingForContext
	// StateActive - speech pipeline running, session in progress.
	StateActive
	// StateTerminated - session over, resources released.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateWaitingForContext:
		return "waiting_for_context"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

const (
	defaultContextPollAttempts = 10
	defaultContextPollInterval = 500 * time.Millisecond
	defaultSettleDelay         = time.Second
)

// SpeechFactory builds the speech pipeline once the assistant is ready.
// Separated out so sessions can be driven without live providers in tests.
type SpeechFactory func(a *assistant.Assistant) (Speech, error)

// Config configures one session coordinator.
type Config struct {
	Room      room.Room
	Submitter *feedback.Submitter
	NewSpeech SpeechFactory

	// ContextPollAttempts and ContextPollInterval bound the wait for the
	// client to publish the student context after connecting.
	ContextPollAttempts int
	ContextPollInterval time.Duration

	// SettleDelay is how long to wait after the pipeline starts before
	// speaking the greeting, giving the client time to attach audio.
	SettleDelay time.Duration
}

// inboundMessage is the envelope clients publish on the data channel.
type inboundMessage struct {
	Type    string          `json:"type"`
	Context json.RawMessage `json:"context,omitempty"`
	Text    string          `json:"text,omitempty"`
}

type eventKind int

const (
	evState eventKind = iota
	evData
	evTrack
	evError
)

type roomEvent struct {
	kind  eventKind
	state room.State
	data  []byte
	track room.TrackInfo
	err   error
}

// Coordinator runs one session from room connection to teardown. It is the
// room's event handler; all event processing happens on the Run goroutine.
type Coordinator struct {
	cfg  Config
	room room.Room

	events chan roomEvent

	// audioSink receives decoded room audio once the pipeline is running.
	audioSink atomic.Value // Speech

	mu       sync.Mutex
	state    State
	student  *assistant.StudentContext
	hasCtx   bool
	speech   Speech
	greeted  bool
	lateNote bool
}

// NewCoordinator creates a coordinator for one room. Run must be called to
// drive the session.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.ContextPollAttempts <= 0 {
		cfg.ContextPollAttempts = defaultContextPollAttempts
	}
	if cfg.ContextPollInterval <= 0 {
		cfg.ContextPollInterval = defaultContextPollInterval
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	return &Coordinator{
		cfg:    cfg,
		room:   cfg.Room,
		events: make(chan roomEvent, 64),
	}
}

// State reports the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange implements room.EventHandler.
func (c *Coordinator) OnStateChange(state room.State) {
	c.post(roomEvent{kind: evState, state: state})
}

// OnData implements room.EventHandler.
func (c *Coordinator) OnData(data []byte) {
	c.post(roomEvent{kind: evData, data: data})
}

// OnAudio implements room.EventHandler. Audio is forwarded straight to the
// pipeline, not through the event queue, to keep the media path hot.
func (c *Coordinator) OnAudio(msg *pipeline.Message) {
	if sp, ok := c.audioSink.Load().(Speech); ok {
		sp.PushAudio(msg)
	}
}

// OnTrackSubscribed implements room.EventHandler.
func (c *Coordinator) OnTrackSubscribed(info room.TrackInfo) {
	c.post(roomEvent{kind: evTrack, track: info})
}

// OnError implements room.EventHandler.
func (c *Coordinator) OnError(err error) {
	c.post(roomEvent{kind: evError, err: err})
}

func (c *Coordinator) post(ev roomEvent) {
	select {
	case c.events <- ev:
	default:
		log.Printf("[Session %s] event queue full, dropping event", c.room.ID())
	}
}

// Run drives the session until the room disconnects or ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "session.run")
	defer span.End()
	span.SetAttributes(trace.SessionAttrs(c.room.ID(), StateConnecting.String())...)

	c.room.RegisterEventHandler(c)
	defer c.setState(StateTerminated)

	if err := c.waitConnected(ctx); err != nil {
		return err
	}

	c.setState(StateWaitingForContext)
	if err := c.waitForContext(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	student := c.student
	c.mu.Unlock()

	agent := assistant.New(student, c.room, c.cfg.Submitter)
	sp, err := c.cfg.NewSpeech(agent)
	if err != nil {
		return fmt.Errorf("build speech pipeline: %w", err)
	}
	if err := sp.Start(ctx); err != nil {
		return fmt.Errorf("start speech pipeline: %w", err)
	}
	defer sp.Stop()

	c.mu.Lock()
	c.speech = sp
	c.mu.Unlock()
	c.audioSink.Store(sp)
	c.setState(StateActive)
	span.SetAttributes(trace.SessionAttrs(c.room.ID(), StateActive.String())...)
	log.Print(trace.LogWithTrace(ctx, fmt.Sprintf("[Session %s] active, student=%s", c.room.ID(), student.GreetingName())))

	c.greet(ctx, sp, student)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			if done := c.handleEvent(ev); done {
				return nil
			}
		}
	}
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// waitConnected blocks until the room reports connected, processing data
// events that may arrive early.
func (c *Coordinator) waitConnected(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			if ev.kind == evState && ev.state == room.StateConnected {
				log.Printf("[Session %s] room connected", c.room.ID())
				return nil
			}
			if done := c.handleEvent(ev); done {
				return fmt.Errorf("room connection lost before session start")
			}
		}
	}
}

// waitForContext waits for the student context. The session proceeds
// without it once the poll window is exhausted.
func (c *Coordinator) waitForContext(ctx context.Context) error {
	window := time.Duration(c.cfg.ContextPollAttempts) * c.cfg.ContextPollInterval
	deadline := time.NewTimer(window)
	defer deadline.Stop()

	for {
		c.mu.Lock()
		have := c.hasCtx
		c.mu.Unlock()
		if have {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			if done := c.handleEvent(ev); done {
				return fmt.Errorf("room connection lost while waiting for context")
			}
		case <-deadline.C:
			log.Printf("[Session %s] no student context received, starting with defaults", c.room.ID())
			return nil
		}
	}
}

// greet waits for the settle delay and speaks the welcome message once.
func (c *Coordinator) greet(ctx context.Context, sp Speech, student *assistant.StudentContext) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(c.cfg.SettleDelay):
	}

	c.mu.Lock()
	if c.greeted {
		c.mu.Unlock()
		return
	}
	c.greeted = true
	c.mu.Unlock()

	if err := sp.Say(assistant.WelcomeMessage(student)); err != nil {
		log.Printf("[Session %s] greeting failed: %v", c.room.ID(), err)
	}
}

// handleEvent processes one room event. Returns true when the session is
// over.
func (c *Coordinator) handleEvent(ev roomEvent) bool {
	switch ev.kind {
	case evState:
		switch ev.state {
		case room.StateDisconnected, room.StateFailed, room.StateClosed:
			log.Printf("[Session %s] room %s, ending session", c.room.ID(), ev.state)
			return true
		}
	case evData:
		c.handleData(ev.data)
	case evTrack:
		c.handleTrack(ev.track)
	case evError:
		log.Printf("[Session %s] transport error: %v", c.room.ID(), ev.err)
	}
	return false
}

func (c *Coordinator) handleData(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[Session %s] malformed data message, ignoring: %v", c.room.ID(), err)
		return
	}

	switch msg.Type {
	case "student_context":
		c.handleStudentContext(msg.Context)
	case "text":
		c.handleText(msg.Text)
	default:
		log.Printf("[Session %s] unknown message type %q, ignoring", c.room.ID(), msg.Type)
	}
}

func (c *Coordinator) handleStudentContext(raw json.RawMessage) {
	student, err := assistant.ParseStudentContext(raw)
	if err != nil {
		log.Printf("[Session %s] invalid student context, ignoring: %v", c.room.ID(), err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.student = student
	c.hasCtx = true

	// Context arriving after the agent has started is stored for reference
	// but the running agent keeps its original instructions.
	if c.state == StateActive && !c.lateNote {
		c.lateNote = true
		log.Printf("[Session %s] student context arrived after session start; instructions unchanged", c.room.ID())
	} else {
		log.Printf("[Session %s] student context received for %s", c.room.ID(), student.GreetingName())
	}
}

func (c *Coordinator) handleText(text string) {
	if text == "" {
		return
	}

	c.mu.Lock()
	sp := c.speech
	c.mu.Unlock()

	if sp == nil {
		log.Printf("[Session %s] text received before pipeline start, dropping", c.room.ID())
		return
	}
	if err := sp.GenerateReply(text); err != nil {
		log.Printf("[Session %s] reply request failed: %v", c.room.ID(), err)
	}
}

func (c *Coordinator) handleTrack(info room.TrackInfo) {
	switch {
	case info.Kind == room.TrackKindVideo && info.Source == room.TrackSourceScreenShare:
		log.Printf("[Session %s] screen share started by %s, ready for presentation review", c.room.ID(), info.ParticipantID)
	case info.Kind == room.TrackKindVideo && info.Source == room.TrackSourceCamera:
		log.Printf("[Session %s] camera enabled by %s", c.room.ID(), info.ParticipantID)
	case info.Kind == room.TrackKindAudio:
		log.Printf("[Session %s] audio track subscribed from %s", c.room.ID(), info.ParticipantID)
	default:
		log.Printf("[Session %s] track subscribed from %s (%s/%s)", c.room.ID(), info.ParticipantID, info.Kind, info.Source)
	}
}
