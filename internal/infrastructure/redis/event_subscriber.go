package redis

import (
	"context"

	"github.com/go-redis/redis/v8"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

type EventSubscriber struct {
	client  *redis.Client
	channel string
	log     logger.Logger
}

func NewEventSubscriber(client *redis.Client, channel string, log logger.Logger) *EventSubscriber {
	return &EventSubscriber{
		client:  client,
		channel: channel,
		log:     log,
	}
}

// SubscribeToEvents blocks, handing every decoded envelope to handler,
// until ctx is done.
func (s *EventSubscriber) SubscribeToEvents(ctx context.Context, handler domain.EventHandler) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	s.log.Info("Subscribed to auction events", "channel", s.channel)

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				s.log.Info("Event channel closed")
				return nil
			}

			envelope, err := decodeEnvelope([]byte(msg.Payload))
			if err != nil {
				s.log.Error("Failed to parse event", "payload", msg.Payload, "error", err)
				continue
			}

			if err := handler(envelope); err != nil {
				s.log.Error("Failed to handle event", "event", envelope.Event, "id", envelope.ID, "error", err)
			}

		case <-ctx.Done():
			s.log.Info("Event subscriber stopped")
			return ctx.Err()
		}
	}
}
