package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Krish-Depani/session-admission/models"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisBus is the subset of database.RedisClient the notifier needs.
type RedisBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) *redis.PubSub
}

// RedisPublisher publishes events on a Redis Pub/Sub channel. Every server
// instance relays that channel into its own hub, so dashboards attached
// to any instance see changes made through all of them.
type RedisPublisher struct {
	bus     RedisBus
	channel string
}

func NewRedisPublisher(bus RedisBus, channel string) *RedisPublisher {
	return &RedisPublisher{bus: bus, channel: channel}
}

func (p *RedisPublisher) Name() string { return "redis" }

func (p *RedisPublisher) Publish(ctx context.Context, event models.SessionChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.bus.Publish(ctx, p.channel, payload)
}

// Close is a no-op; the Redis client is owned by the caller.
func (p *RedisPublisher) Close() error { return nil }

// Relay forwards events from the Redis channel into hub until ctx ends.
// Undecodable payloads are logged and skipped.
func Relay(ctx context.Context, bus RedisBus, channel string, hub *Hub) error {
	pubsub := bus.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}
	log.WithField("channel", channel).Info("notifier: relaying session events from redis")

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			event, err := DecodeEvent([]byte(msg.Payload))
			if err != nil {
				log.WithError(err).Warn("notifier: dropping malformed event")
				continue
			}
			hub.Broadcast(event)
		}
	}
}

func DecodeEvent(payload []byte) (models.SessionChangeEvent, error) {
	var event models.SessionChangeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	switch event.Type {
	case models.ChangeInserted, models.ChangeUpdated, models.ChangeDeleted:
	default:
		return event, fmt.Errorf("unknown event type %q", event.Type)
	}
	return event, nil
}
