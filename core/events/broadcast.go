package events

import (
	"sync"

	"yieldsplit/core/types"
)

// Broadcaster delivers rendered events to live subscribers. Slow subscribers
// drop events instead of blocking the emitter.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan *types.Event
	buffer int
}

// NewBroadcaster returns a broadcaster whose subscriber channels hold buffer
// events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{subs: make(map[int]chan *types.Event), buffer: buffer}
}

// Emit implements the Emitter interface.
func (b *Broadcaster) Emit(e Event) {
	if b == nil || e == nil {
		return
	}
	rendered := e.Event()
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- rendered:
		default:
		}
	}
}

// Subscribe registers a subscriber. The returned cancel function closes the
// channel and must be called once the subscriber is done.
func (b *Broadcaster) Subscribe() (<-chan *types.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan *types.Event, b.buffer)
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers reports the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
