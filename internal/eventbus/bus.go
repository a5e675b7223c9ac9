package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is one in-process notification.
//
// Type is a dotted name such as "scheduler.task.created". Data carries the
// event properties and must be JSON-serializable, since the global sink
// forwards it to SSE clients.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"properties"`
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event and the drop is counted.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
	Stats() Stats
}

// Stats is a point-in-time view of bus traffic, served under GET /status.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
}

const defaultBuffer = 8

// New returns an in-memory bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	// mu is held for reading across sends and for writing across close, so a
	// channel is never closed while Publish may still send on it.
	mu   sync.RWMutex
	subs map[uint64]chan Event
	next uint64

	published atomic.Uint64
	dropped   atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.next++
	id := b.next
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

func (b *memBus) Stats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return Stats{Subscribers: n, Published: b.published.Load(), Dropped: b.dropped.Load()}
}
