package events

import (
	"sync"

	"crowdsale/core/types"
)

const subscriberBuffer = 64

// Log is the append-only event journal exposed to indexers. Entries receive a
// strictly increasing sequence number starting at 1.
type Log struct {
	mu          sync.RWMutex
	base        uint64
	entries     []*types.Event
	subscribers map[uint64]chan *types.Event
	nextSubID   uint64
}

// NewLog returns an empty event log.
func NewLog() *Log {
	return NewLogAfter(0)
}

// NewLogAfter returns an empty log whose first entry receives sequence
// last+1. It lets a restarted process continue the numbering of an index.
func NewLogAfter(last uint64) *Log {
	return &Log{base: last, subscribers: make(map[uint64]chan *types.Event)}
}

// Emit implements Emitter by appending the event payload.
func (l *Log) Emit(evt Event) {
	payload := Payload(evt)
	if l == nil || payload == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	payload.Sequence = l.base + uint64(len(l.entries)) + 1
	l.entries = append(l.entries, payload)
	for _, ch := range l.subscribers {
		select {
		case ch <- payload.Clone():
		default:
			// Slow subscribers miss live entries and catch up through Since.
		}
	}
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Last returns the sequence of the newest entry, or the starting point of an
// empty log.
func (l *Log) Last() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.base + uint64(len(l.entries))
}

// Since returns copies of all events with a sequence greater than cursor.
func (l *Log) Since(cursor uint64) []*types.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if cursor < l.base {
		cursor = l.base
	}
	offset := cursor - l.base
	if offset >= uint64(len(l.entries)) {
		return nil
	}
	out := make([]*types.Event, 0, uint64(len(l.entries))-offset)
	for _, evt := range l.entries[offset:] {
		out = append(out, evt.Clone())
	}
	return out
}

// Subscribe registers a live listener. The returned cancel function must be
// called to release the subscription.
func (l *Log) Subscribe() (<-chan *types.Event, func()) {
	ch := make(chan *types.Event, subscriberBuffer)
	l.mu.Lock()
	l.nextSubID++
	id := l.nextSubID
	l.subscribers[id] = ch
	l.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subscribers, id)
			l.mu.Unlock()
			close(ch)
		})
	}
}

// Fanout forwards every event to all configured emitters.
type Fanout []Emitter

// Emit implements Emitter.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
