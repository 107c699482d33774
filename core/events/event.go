package events

import "usdacore/core/types"

// Event represents a structured state change emitted by the protocol.
type Event interface {
	EventType() string
}

// Convertible events render into the generic attribute form consumed by the
// journal and the websocket stream.
type Convertible interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// Buffer collects events in memory. The node uses it to hold a call's events
// until the state changes they describe are committed.
type Buffer struct {
	events []Event
}

func (b *Buffer) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	b.events = append(b.events, evt)
}

// Drain returns the buffered events and empties the buffer.
func (b *Buffer) Drain() []Event {
	if b == nil {
		return nil
	}
	out := b.events
	b.events = nil
	return out
}

// ToTypes converts an event to its generic form, returning nil when the event
// has no attribute rendering.
func ToTypes(evt Event) *types.Event {
	if c, ok := evt.(Convertible); ok {
		return c.Event()
	}
	return nil
}
