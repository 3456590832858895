package elements

import (
	"context"
	"log"
	"sync"

	"github.com/projectgen/liya/pkg/pipeline"
	"github.com/projectgen/liya/pkg/room"
)

var _ pipeline.Element = (*RoomSinkElement)(nil)

// RoomSinkElement terminates the pipeline at the room: audio messages are
// played into the room's outbound track, data messages are published as
// reliable structured messages.
type RoomSinkElement struct {
	*pipeline.BaseElement

	room room.Room

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRoomSinkElement(r room.Room) *RoomSinkElement {
	return &RoomSinkElement{
		BaseElement: pipeline.NewBaseElement("room-sink", 200),
		room:        r,
	}
}

func (e *RoomSinkElement) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.processLoop(ctx)
	}()

	log.Printf("[RoomSink] Started (room: %s)", e.room.ID())
	return nil
}

func (e *RoomSinkElement) Stop() error {
	if e.cancel != nil {
		e.cancel()
		e.wg.Wait()
		e.cancel = nil
	}
	log.Printf("[RoomSink] Stopped")
	return nil
}

func (e *RoomSinkElement) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-e.BaseElement.InChan:
			if !ok {
				return
			}

			switch msg.Type {
			case pipeline.MsgTypeAudio:
				if msg.AudioData != nil {
					e.room.SendAudio(msg)
				}
			case pipeline.MsgTypeData:
				if msg.TextData != nil {
					if err := e.room.SendData(msg.TextData.Data, true); err != nil {
						log.Printf("[RoomSink] Failed to send data message: %v", err)
					}
				}
			}
		}
	}
}
