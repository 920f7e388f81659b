package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Krish-Depani/session-admission/models"
	"github.com/nats-io/nats.go"
)

// NATSPublisher publishes each event on <subject>.<type>, e.g.
// sessions.changes.deleted.
type NATSPublisher struct {
	nc      *nats.Conn
	subject string
}

func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("session-admission"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

func (p *NATSPublisher) Name() string { return "nats" }

func (p *NATSPublisher) Publish(ctx context.Context, event models.SessionChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.nc.Publish(fmt.Sprintf("%s.%s", p.subject, event.Type), payload)
}

func (p *NATSPublisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	p.nc.Close()
	return nil
}
