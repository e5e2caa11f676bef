package websocket

import (
	"encoding/json"
	"fmt"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// Message is the frame pushed to websocket clients.
type Message struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WebSocketNotifier routes bus envelopes to connected clients. Its
// HandleEnvelope method is a domain.EventHandler.
type WebSocketNotifier struct {
	connManager domain.ConnectionManager
	log         logger.Logger
}

func NewWebSocketNotifier(connManager domain.ConnectionManager, log logger.Logger) *WebSocketNotifier {
	return &WebSocketNotifier{connManager: connManager, log: log}
}

func (n *WebSocketNotifier) HandleEnvelope(envelope *domain.EventEnvelope) error {
	msg := Message{
		Type: string(envelope.Event),
		ID:   envelope.ID,
		Data: envelope.Payload,
	}

	switch envelope.Event {
	case domain.EventAuctionUpdate:
		if envelope.AuctionID == 0 {
			return fmt.Errorf("%s event %s has no auction id", envelope.Event, envelope.ID)
		}
		return n.connManager.BroadcastToAuction(envelope.AuctionID, msg)

	case domain.EventAuctionClosed:
		if envelope.AuctionID == 0 {
			return fmt.Errorf("%s event %s has no auction id", envelope.Event, envelope.ID)
		}
		if err := n.connManager.BroadcastToAuction(envelope.AuctionID, msg); err != nil {
			return err
		}
		return n.connManager.CloseAndUnregisterConnections(envelope.AuctionID)

	case domain.EventUserNotification:
		if envelope.UserID == 0 {
			return fmt.Errorf("%s event %s has no user id", envelope.Event, envelope.ID)
		}
		return n.connManager.NotifyUser(envelope.UserID, msg)

	default:
		n.log.Warn("Ignoring unknown event", "event", envelope.Event, "id", envelope.ID)
		return nil
	}
}
