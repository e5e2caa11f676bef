package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type EventType string

const (
	EventAuctionUpdate    EventType = "auction:update"
	EventAuctionClosed    EventType = "auction:closed"
	EventUserNotification EventType = "user:notification"
)

// AuctionUpdatePayload is emitted after a bid commits.
type AuctionUpdatePayload struct {
	AuctionID    int64           `json:"auction_id"`
	Bid          *Bid            `json:"bid"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	TotalBids    int64           `json:"total_bids"`
	Timestamp    time.Time       `json:"timestamp"`
}

// AuctionClosedPayload is emitted once per finalized auction.
type AuctionClosedPayload struct {
	AuctionID  int64           `json:"auction_id"`
	ProductID  int64           `json:"product_id"`
	SellerID   int64           `json:"seller_id"`
	FinalPrice decimal.Decimal `json:"final_price"`
	WinningBid *Bid            `json:"winning_bid"`
	ClosedAt   time.Time       `json:"closed_at"`
}

type NotificationKind string

const (
	NotificationAuctionWon       NotificationKind = "auction_won"
	NotificationAuctionSold      NotificationKind = "auction_sold"
	NotificationAuctionNoBids    NotificationKind = "auction_no_bids"
	NotificationBidRejected      NotificationKind = "bid_rejected"
	NotificationAuctionActivated NotificationKind = "auction_activated"
)

// UserNotificationPayload is addressed to a single user.
type UserNotificationPayload struct {
	UserID    int64            `json:"user_id"`
	AuctionID int64            `json:"auction_id"`
	Kind      NotificationKind `json:"kind"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
}

// EventEnvelope is the wire form of an event on the message bus.
type EventEnvelope struct {
	ID          string          `json:"id"`
	Event       EventType       `json:"event"`
	AuctionID   int64           `json:"auction_id,omitempty"`
	UserID      int64           `json:"user_id,omitempty"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"published_at"`
}
