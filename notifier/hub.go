package notifier

import (
	"sync"

	"github.com/Krish-Depani/session-admission/metrics"
	"github.com/Krish-Depani/session-admission/models"
)

const defaultSubscriptionBuffer = 64

// Hub fans events out to subscribers in this process (dashboard sockets).
// A subscriber that is not keeping up loses events rather than slowing
// the publisher; it reconciles by re-reading the store.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

type Subscription struct {
	C    <-chan models.SessionChangeEvent
	ch   chan models.SessionChangeEvent
	hub  *Hub
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a subscriber. It sees only events broadcast after
// this call; there is no replay.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultSubscriptionBuffer
	}
	ch := make(chan models.SessionChangeEvent, buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) Broadcast(event models.SessionChangeEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- event:
		default:
			metrics.EventsDropped.Inc()
		}
	}
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unregisters the subscription and closes C. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.ch)
	})
}
