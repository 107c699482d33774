package core

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"usdacore/core/events"
	"usdacore/core/types"
)

const streamHistoryLimit = 2048

// StreamUpdate is one committed event as delivered to live subscribers.
type StreamUpdate struct {
	Sequence  uint64            `json:"sequence"`
	Cursor    string            `json:"cursor"`
	Type      string            `json:"type"`
	Attrs     map[string]string `json:"attributes,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

func cloneUpdate(update StreamUpdate) StreamUpdate {
	cloned := update
	if update.Attrs != nil {
		cloned.Attrs = make(map[string]string, len(update.Attrs))
		for k, v := range update.Attrs {
			cloned.Attrs[k] = v
		}
	}
	return cloned
}

// Stream fans committed events out to subscribers and keeps a bounded
// history so reconnecting clients can resume from a cursor.
type Stream struct {
	mu      sync.Mutex
	seq     uint64
	nextID  uint64
	history []StreamUpdate
	subs    map[uint64]chan StreamUpdate
	clock   func() time.Time
}

func NewStream() *Stream {
	return &Stream{subs: make(map[uint64]chan StreamUpdate), clock: time.Now}
}

// Publish implements EventSink. Slow subscribers miss updates rather than
// block the node.
func (s *Stream) Publish(_ context.Context, evts []events.Event) error {
	for _, evt := range evts {
		if evt == nil {
			continue
		}
		update := StreamUpdate{Type: evt.EventType()}
		if rendered := events.ToTypes(evt); rendered != nil {
			update.Attrs = rendered.Attributes
		}
		s.publish(update)
	}
	return nil
}

func (s *Stream) publish(update StreamUpdate) {
	s.mu.Lock()
	s.seq++
	update.Sequence = s.seq
	update.Cursor = strconv.FormatUint(update.Sequence, 10)
	update.Timestamp = s.clock().Unix()
	s.history = append(s.history, cloneUpdate(update))
	if len(s.history) > streamHistoryLimit {
		excess := len(s.history) - streamHistoryLimit
		trimmed := make([]StreamUpdate, streamHistoryLimit)
		copy(trimmed, s.history[excess:])
		s.history = trimmed
	}
	subscribers := make([]chan StreamUpdate, 0, len(s.subs))
	for _, ch := range s.subs {
		subscribers = append(subscribers, ch)
	}
	s.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- cloneUpdate(update):
		default:
		}
	}
}

// Subscribe registers a subscriber and returns the retained updates after
// cursor. Updates of other types are skipped when eventType is set. The
// channel closes on cancel or when ctx ends.
func (s *Stream) Subscribe(ctx context.Context, cursor, eventType string) (<-chan StreamUpdate, func(), []StreamUpdate) {
	updates := make(chan StreamUpdate, 32)

	var since uint64
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if parsed, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			since = parsed
		}
	}

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	raw := make(chan StreamUpdate, cap(updates))
	s.subs[id] = raw
	history := make([]StreamUpdate, len(s.history))
	copy(history, s.history)
	s.mu.Unlock()

	backlog := make([]StreamUpdate, 0, len(history))
	for _, entry := range history {
		if entry.Sequence > since && matches(entry, eventType) {
			backlog = append(backlog, cloneUpdate(entry))
		}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
			s.mu.Unlock()
		})
	}

	go func() {
		defer close(updates)
		for update := range raw {
			if matches(update, eventType) {
				select {
				case updates <- update:
				default:
				}
			}
		}
	}()
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog
}

func matches(update StreamUpdate, eventType string) bool {
	return eventType == "" || update.Type == eventType
}

// Latest returns the retained history as generic events, newest last.
func (s *Stream) Latest(limit int) []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := 0
	if limit > 0 && len(s.history) > limit {
		start = len(s.history) - limit
	}
	out := make([]types.Event, 0, len(s.history)-start)
	for _, entry := range s.history[start:] {
		out = append(out, types.Event{Type: entry.Type, Attributes: cloneUpdate(entry).Attrs})
	}
	return out
}
