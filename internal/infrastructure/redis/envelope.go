package redis

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"auction-engine/internal/domain"
)

// encodeEnvelope wraps payload in the bus envelope. Routing ids are lifted
// from known payload types so subscribers can route without decoding the
// payload.
func encodeEnvelope(event domain.EventType, payload interface{}, now time.Time) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}

	envelope := domain.EventEnvelope{
		ID:          uuid.NewString(),
		Event:       event,
		Payload:     raw,
		PublishedAt: now.UTC(),
	}

	switch p := payload.(type) {
	case *domain.AuctionUpdatePayload:
		envelope.AuctionID = p.AuctionID
	case *domain.AuctionClosedPayload:
		envelope.AuctionID = p.AuctionID
	case *domain.UserNotificationPayload:
		envelope.AuctionID = p.AuctionID
		envelope.UserID = p.UserID
	}

	return json.Marshal(envelope)
}

func decodeEnvelope(data []byte) (*domain.EventEnvelope, error) {
	var envelope domain.EventEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid event envelope: %w", err)
	}
	if envelope.Event == "" {
		return nil, fmt.Errorf("invalid event envelope: missing event type")
	}
	return &envelope, nil
}
