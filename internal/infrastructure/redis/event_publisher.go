package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"auction-engine/internal/domain"
)

// EventPublisher implements domain.Notifier over Redis pub/sub.
type EventPublisher struct {
	client  *redis.Client
	channel string
}

func NewEventPublisher(client *redis.Client, channel string) *EventPublisher {
	return &EventPublisher{client: client, channel: channel}
}

func (p *EventPublisher) Notify(ctx context.Context, event domain.EventType, payload interface{}) error {
	data, err := encodeEnvelope(event, payload, time.Now())
	if err != nil {
		return err
	}

	return p.client.Publish(ctx, p.channel, data).Err()
}
