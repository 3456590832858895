package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectgen/liya/pkg/assistant"
	"github.com/projectgen/liya/pkg/pipeline"
	"github.com/projectgen/liya/pkg/room"
)

type fakeRoom struct {
	mu      sync.Mutex
	handler room.EventHandler
	sent    [][]byte
}

func (f *fakeRoom) ID() string { return "test-room" }

func (f *fakeRoom) RegisterEventHandler(h room.EventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeRoom) SendData(data []byte, reliable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeRoom) SendAudio(msg *pipeline.Message) {}

func (f *fakeRoom) Close() error { return nil }

func (f *fakeRoom) emitState(s room.State) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h.OnStateChange(s)
}

func (f *fakeRoom) emitData(data []byte) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h.OnData(data)
}

func (f *fakeRoom) emitTrack(info room.TrackInfo) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h.OnTrackSubscribed(info)
}

type fakeSpeech struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	said     []string
	replies  []string
	startErr error
}

func (f *fakeSpeech) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeSpeech) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeSpeech) Say(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.said = append(f.said, text)
	return nil
}

func (f *fakeSpeech) GenerateReply(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeSpeech) PushAudio(msg *pipeline.Message) {}

func (f *fakeSpeech) saidTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.said...)
}

func (f *fakeSpeech) replyTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.replies...)
}

func newTestCoordinator(rm *fakeRoom, sp *fakeSpeech) *Coordinator {
	return NewCoordinator(Config{
		Room: rm,
		NewSpeech: func(a *assistant.Assistant) (Speech, error) {
			return sp, nil
		},
		ContextPollAttempts: 3,
		ContextPollInterval: 20 * time.Millisecond,
		SettleDelay:         10 * time.Millisecond,
	})
}

func contextPayload(t *testing.T, name string) []byte {
	t.Helper()
	msg := map[string]interface{}{
		"type": "student_context",
		"context": map[string]interface{}{
			"name":       name,
			"skillLevel": "Intermediate",
			"activeProjects": []map[string]interface{}{
				{"title": "Chat App", "domain": "Web Development", "progress": 40},
			},
		},
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func runCoordinator(t *testing.T, c *Coordinator) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	return cancel, done
}

func TestCoordinatorGreetsWithStudentContext(t *testing.T) {
	rm := &fakeRoom{}
	sp := &fakeSpeech{}
	c := newTestCoordinator(rm, sp)

	cancel, done := runCoordinator(t, c)
	defer cancel()

	require.Eventually(t, func() bool {
		rm.mu.Lock()
		defer rm.mu.Unlock()
		return rm.handler != nil
	}, time.Second, 5*time.Millisecond)

	rm.emitState(room.StateConnected)
	rm.emitData(contextPayload(t, "Asha"))

	require.Eventually(t, func() bool {
		return len(sp.saidTexts()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	greeting := sp.saidTexts()[0]
	assert.Contains(t, greeting, "Asha")
	assert.Contains(t, greeting, "Chat App")
	assert.Equal(t, StateActive, c.State())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, StateTerminated, c.State())
	assert.True(t, sp.stopped)
}

func TestCoordinatorGreetsWithoutContextAfterTimeout(t *testing.T) {
	rm := &fakeRoom{}
	sp := &fakeSpeech{}
	c := newTestCoordinator(rm, sp)

	cancel, done := runCoordinator(t, c)
	defer cancel()

	require.Eventually(t, func() bool {
		rm.mu.Lock()
		defer rm.mu.Unlock()
		return rm.handler != nil
	}, time.Second, 5*time.Millisecond)

	rm.emitState(room.StateConnected)
	// No context is ever published.

	require.Eventually(t, func() bool {
		return len(sp.saidTexts()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	greeting := sp.saidTexts()[0]
	assert.Contains(t, greeting, "there")
	assert.NotContains(t, greeting, "Chat App")

	cancel()
	require.NoError(t, <-done)
}

func TestCoordinatorGreetsExactlyOnce(t *testing.T) {
	rm := &fakeRoom{}
	sp := &fakeSpeech{}
	c := newTestCoordinator(rm, sp)

	cancel, done := runCoordinator(t, c)
	defer cancel()

	require.Eventually(t, func() bool {
		rm.mu.Lock()
		defer rm.mu.Unlock()
		return rm.handler != nil
	}, time.Second, 5*time.Millisecond)

	rm.emitState(room.StateConnected)
	rm.emitData(contextPayload(t, "Asha"))
	rm.emitData(contextPayload(t, "Asha"))
	rm.emitData(contextPayload(t, "Asha"))

	require.Eventually(t, func() bool {
		return len(sp.saidTexts()) >= 1
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, sp.saidTexts(), 1)

	cancel()
	require.NoError(t, <-done)
}

func TestCoordinatorForwardsTextToSpeech(t *testing.T) {
	rm := &fakeRoom{}
	sp := &fakeSpeech{}
	c := newTestCoordinator(rm, sp)

	cancel, done := runCoordinator(t, c)
	defer cancel()

	require.Eventually(t, func() bool {
		rm.mu.Lock()
		defer rm.mu.Unlock()
		return rm.handler != nil
	}, time.Second, 5*time.Millisecond)

	rm.emitState(room.StateConnected)
	rm.emitData(contextPayload(t, "Asha"))

	require.Eventually(t, func() bool {
		return c.State() == StateActive
	}, 2*time.Second, 10*time.Millisecond)

	rm.emitData([]byte(`{"type":"text","text":"explain goroutines"}`))

	require.Eventually(t, func() bool {
		replies := sp.replyTexts()
		return len(replies) == 1 && replies[0] == "explain goroutines"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestCoordinatorDropsTextBeforePipelineStart(t *testing.T) {
	rm := &fakeRoom{}
	sp := &fakeSpeech{}
	c := newTestCoordinator(rm, sp)

	cancel, done := runCoordinator(t, c)
	defer cancel()

	require.Eventually(t, func() bool {
		rm.mu.Lock()
		defer rm.mu.Unlock()
		return rm.handler != nil
	}, time.Second, 5*time.Millisecond)

	rm.emitState(room.StateConnected)
	rm.emitData([]byte(`{"type":"text","text":"too early"}`))
	rm.emitData(contextPayload(t, "Asha"))

	require.Eventually(t, func() bool {
		return c.State() == StateActive
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, sp.replyTexts())

	cancel()
	require.NoError(t, <-done)
}

func TestCoordinatorIgnoresMalformedData(t *testing.T) {
	rm := &fakeRoom{}
	sp := &fakeSpeech{}
	c := newTestCoordinator(rm, sp)

	cancel, done := runCoordinator(t, c)
	defer cancel()

	require.Eventually(t, func() bool {
		rm.mu.Lock()
		defer rm.mu.Unlock()
		return rm.handler != nil
	}, time.Second, 5*time.Millisecond)

	rm.emitState(room.StateConnected)
	rm.emitData([]byte(`{not json`))
	rm.emitData([]byte(`{"type":"mystery"}`))
	rm.emitData(contextPayload(t, "Asha"))

	require.Eventually(t, func() bool {
		return c.State() == StateActive
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestCoordinatorEndsOnDisconnect(t *testing.T) {
	rm := &fakeRoom{}
	sp := &fakeSpeech{}
	c := newTestCoordinator(rm, sp)

	cancel, done := runCoordinator(t, c)
	defer cancel()

	require.Eventually(t, func() bool {
		rm.mu.Lock()
		defer rm.mu.Unlock()
		return rm.handler != nil
	}, time.Second, 5*time.Millisecond)

	rm.emitState(room.StateConnected)
	rm.emitData(contextPayload(t, "Asha"))

	require.Eventually(t, func() bool {
		return c.State() == StateActive
	}, 2*time.Second, 10*time.Millisecond)

	rm.emitState(room.StateDisconnected)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not end on disconnect")
	}
	assert.Equal(t, StateTerminated, c.State())
	assert.True(t, sp.stopped)
}

func TestCoordinatorFailsWhenConnectionFails(t *testing.T) {
	rm := &fakeRoom{}
	sp := &fakeSpeech{}
	c := newTestCoordinator(rm, sp)

	cancel, done := runCoordinator(t, c)
	defer cancel()

	require.Eventually(t, func() bool {
		rm.mu.Lock()
		defer rm.mu.Unlock()
		return rm.handler != nil
	}, time.Second, 5*time.Millisecond)

	rm.emitState(room.StateFailed)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not fail on connection failure")
	}
	assert.Equal(t, StateTerminated, c.State())
	assert.False(t, sp.started)
}

func TestCoordinatorFailsWhenSpeechStartFails(t *testing.T) {
	rm := &fakeRoom{}
	sp := &fakeSpeech{startErr: fmt.Errorf("no audio device")}
	c := newTestCoordinator(rm, sp)

	cancel, done := runCoordinator(t, c)
	defer cancel()

	require.Eventually(t, func() bool {
		rm.mu.Lock()
		defer rm.mu.Unlock()
		return rm.handler != nil
	}, time.Second, 5*time.Millisecond)

	rm.emitState(room.StateConnected)
	rm.emitData(contextPayload(t, "Asha"))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "speech pipeline")
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not surface pipeline start failure")
	}
	assert.Equal(t, StateTerminated, c.State())
}

func TestCoordinatorHandlesTrackSubscriptions(t *testing.T) {
	rm := &fakeRoom{}
	sp := &fakeSpeech{}
	c := newTestCoordinator(rm, sp)

	cancel, done := runCoordinator(t, c)
	defer cancel()

	require.Eventually(t, func() bool {
		rm.mu.Lock()
		defer rm.mu.Unlock()
		return rm.handler != nil
	}, time.Second, 5*time.Millisecond)

	rm.emitState(room.StateConnected)
	rm.emitData(contextPayload(t, "Asha"))

	require.Eventually(t, func() bool {
		return c.State() == StateActive
	}, 2*time.Second, 10*time.Millisecond)

	// Track events are informational; the session must stay active.
	rm.emitTrack(room.TrackInfo{ParticipantID: "asha", Kind: room.TrackKindVideo, Source: room.TrackSourceScreenShare})
	rm.emitTrack(room.TrackInfo{ParticipantID: "asha", Kind: room.TrackKindVideo, Source: room.TrackSourceCamera})
	rm.emitTrack(room.TrackInfo{ParticipantID: "asha", Kind: room.TrackKindAudio, Source: room.TrackSourceMicrophone})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateActive, c.State())

	cancel()
	require.NoError(t, <-done)
}

func TestCoordinatorStoresLateContextWithoutRebuild(t *testing.T) {
	rm := &fakeRoom{}
	sp := &fakeSpeech{}
	c := NewCoordinator(Config{
		Room: rm,
		NewSpeech: func(a *assistant.Assistant) (Speech, error) {
			return sp, nil
		},
		ContextPollAttempts: 1,
		ContextPollInterval: 10 * time.Millisecond,
		SettleDelay:         5 * time.Millisecond,
	})

	cancel, done := runCoordinator(t, c)
	defer cancel()

	require.Eventually(t, func() bool {
		rm.mu.Lock()
		defer rm.mu.Unlock()
		return rm.handler != nil
	}, time.Second, 5*time.Millisecond)

	rm.emitState(room.StateConnected)

	// Context deliberately arrives after the session went active.
	require.Eventually(t, func() bool {
		return c.State() == StateActive
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(sp.saidTexts()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, sp.saidTexts()[0], "there")

	rm.emitData(contextPayload(t, "Asha"))

	// The late context is stored but triggers no second greeting.
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, sp.saidTexts(), 1)
	assert.Equal(t, StateActive, c.State())

	cancel()
	require.NoError(t, <-done)
}
