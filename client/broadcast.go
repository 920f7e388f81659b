package client

import (
	"sync"
	"time"
)

// Marker announces that one instance of a user released its session.
type Marker struct {
	UserID     string
	InstanceID string
	At         time.Time
}

// LocalBroadcaster connects sibling instances running in one process, the
// way tabs of one browser share local storage.
type LocalBroadcaster struct {
	mu   sync.Mutex
	subs map[int]func(Marker)
	next int
}

func NewLocalBroadcaster() *LocalBroadcaster {
	return &LocalBroadcaster{subs: make(map[int]func(Marker))}
}

// Subscribe registers fn and returns the function that removes it.
func (b *LocalBroadcaster) Subscribe(fn func(Marker)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish calls every subscriber, the publisher included, outside the lock.
func (b *LocalBroadcaster) Publish(m Marker) {
	b.mu.Lock()
	fns := make([]func(Marker), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(m)
	}
}
