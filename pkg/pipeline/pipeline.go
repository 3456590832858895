// Package pipeline provides the element/bus plumbing that carries audio
// and text between the room transport and the speech services.
package pipeline

import (
	"context"
	"log"
	"sync"
)

type Pipeline struct {
	sync.Mutex
	name     string
	bus      Bus
	elements []Element
}

func NewPipeline(name string) *Pipeline {
	return &Pipeline{
		name:     name,
		bus:      NewEventBus(),
		elements: []Element{},
	}
}

func (p *Pipeline) AddElement(element Element) {
	p.Lock()
	defer p.Unlock()
	element.SetBus(p.bus)
	p.elements = append(p.elements, element)
}

func (p *Pipeline) AddElements(elements []Element) {
	p.Lock()
	defer p.Unlock()
	for _, element := range elements {
		element.SetBus(p.bus)
	}
	p.elements = append(p.elements, elements...)
}

// Link forwards a's output into b's input until a's output closes.
func (p *Pipeline) Link(a, b Element) {
	go func() {
		for msg := range a.Out() {
			b.In() <- msg
		}
		close(b.In())
	}()
}

func (p *Pipeline) Bus() Bus {
	return p.bus
}

// Push feeds a message into the first element. Drops the message when the
// input channel is full rather than blocking the caller.
func (p *Pipeline) Push(msg *Message) {
	if len(p.elements) == 0 {
		return
	}
	select {
	case p.elements[0].In() <- msg:
	default:
		log.Printf("[pipeline %s] input channel full, dropping message", p.name)
	}
}

// Pull takes a message from the last element, blocking until one arrives.
func (p *Pipeline) Pull() *Message {
	if len(p.elements) == 0 {
		return nil
	}
	return <-p.elements[len(p.elements)-1].Out()
}

func (p *Pipeline) Start(ctx context.Context) error {
	for _, e := range p.elements {
		if err := e.Start(ctx); err != nil {
			return err
		}
	}
	return p.bus.Start(ctx)
}

func (p *Pipeline) Stop() error {
	p.Lock()
	defer p.Unlock()
	// Stop in reverse so downstream elements drain first.
	for i := len(p.elements) - 1; i >= 0; i-- {
		if err := p.elements[i].Stop(); err != nil {
			return err
		}
	}
	p.bus.Stop()
	return nil
}
