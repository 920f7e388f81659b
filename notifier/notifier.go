// Package notifier fans session change events out to observers. Delivery
// is best-effort and at-most-once: an event is a hint to re-read the
// session store, never the state itself.
package notifier

import (
	"context"
	"sync"
	"time"

	"github.com/Krish-Depani/session-admission/metrics"
	"github.com/Krish-Depani/session-admission/models"
	log "github.com/sirupsen/logrus"
)

// publishTimeout bounds a single sink write. Close waits at most this long.
const publishTimeout = 5 * time.Second

// Publisher is one outbound sink (Redis, Kafka, NATS).
type Publisher interface {
	Name() string
	Publish(ctx context.Context, event models.SessionChangeEvent) error
	Close() error
}

type Notifier struct {
	hub           *Hub
	publishers    []Publisher
	localDelivery bool
	timeout       time.Duration
	wg            sync.WaitGroup
}

type Option func(*Notifier)

func WithPublisher(p Publisher) Option {
	return func(n *Notifier) {
		if p != nil {
			n.publishers = append(n.publishers, p)
		}
	}
}

// WithoutLocalDelivery skips the direct hand-off to the local hub. Used
// when the hub is fed by a relay that already carries this process's
// own events.
func WithoutLocalDelivery() Option {
	return func(n *Notifier) { n.localDelivery = false }
}

func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) { n.timeout = d }
}

func New(hub *Hub, opts ...Option) *Notifier {
	n := &Notifier{
		hub:           hub,
		localDelivery: true,
		timeout:       publishTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify hands event to every sink without blocking the caller. Sink
// failures are logged and counted, never returned.
func (n *Notifier) Notify(event models.SessionChangeEvent) {
	if n == nil {
		return
	}
	if n.localDelivery && n.hub != nil {
		n.hub.Broadcast(event)
	}
	for _, p := range n.publishers {
		n.wg.Add(1)
		go func(p Publisher) {
			defer n.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
			defer cancel()
			if err := p.Publish(ctx, event); err != nil {
				metrics.EventPublishFailures.WithLabelValues(p.Name()).Inc()
				log.WithFields(log.Fields{
					"sink":   p.Name(),
					"type":   event.Type,
					"userID": event.UserID,
				}).WithError(err).Warn("notifier: publish failed")
				return
			}
			metrics.EventsPublished.WithLabelValues(p.Name()).Inc()
		}(p)
	}
}

// Close waits for in-flight publishes (bounded by the publish timeout)
// and closes every sink.
func (n *Notifier) Close() error {
	if n == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(n.timeout):
		log.Warn("notifier: closing with publishes still in flight")
	}

	var firstErr error
	for _, p := range n.publishers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
