package pipeline

import (
	"context"
)

// Element is a processing stage in the pipeline. Messages enter through
// In() and leave through Out(); elements run their own goroutines between
// Start and Stop.
type Element interface {
	Name() string
	In() chan<- *Message
	Out() <-chan *Message
	Start(ctx context.Context) error
	Stop() error

	SetBus(bus Bus)
}

// BaseElement provides the channel plumbing shared by all elements.
type BaseElement struct {
	name string
	bus  Bus

	InChan  chan *Message
	OutChan chan *Message
}

func NewBaseElement(name string, bufferSize int) *BaseElement {
	return &BaseElement{
		name:    name,
		InChan:  make(chan *Message, bufferSize),
		OutChan: make(chan *Message, bufferSize),
	}
}

func (b *BaseElement) Name() string {
	return b.name
}

func (b *BaseElement) In() chan<- *Message {
	return b.InChan
}

func (b *BaseElement) Out() <-chan *Message {
	return b.OutChan
}

func (b *BaseElement) Start(ctx context.Context) error {
	return nil
}

func (b *BaseElement) Stop() error {
	return nil
}

func (b *BaseElement) SetBus(bus Bus) {
	b.bus = bus
}

func (b *BaseElement) Bus() Bus {
	return b.bus
}
