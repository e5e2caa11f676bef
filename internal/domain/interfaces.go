package domain

import (
	"context"
	"time"
)

// Repository interfaces

// AuctionStore persists auctions and the bid ledger. Every mutation of
// current_price, status or the ledger goes through InTx.
type AuctionStore interface {
	// InTx runs fn inside a serializable transaction. The transaction commits
	// when fn returns nil and rolls back otherwise. Serialization failures are
	// retried a bounded number of times, so fn must not have side effects
	// outside tx.
	InTx(ctx context.Context, fn func(ctx context.Context, tx AuctionTx) error) error

	GetAuction(ctx context.Context, auctionID int64) (*Auction, error)
	// FindAuctionByProduct returns the most recent auction of the product, or
	// nil when there is none.
	FindAuctionByProduct(ctx context.Context, productID int64, includePending bool) (*Auction, error)
	ListAuctions(ctx context.Context, filter AuctionFilter) ([]*Auction, error)
	// ListBids returns the ledger newest first.
	ListBids(ctx context.Context, auctionID int64) ([]*Bid, error)

	// ListExpiredAuctions returns auctions stored as ACTIVE or SCHEDULED whose
	// end_time <= now.
	ListExpiredAuctions(ctx context.Context, now time.Time) ([]*Auction, error)
	// ListDueScheduledAuctions returns auctions stored as SCHEDULED whose
	// window contains now.
	ListDueScheduledAuctions(ctx context.Context, now time.Time) ([]*Auction, error)

	// CompareAndSetStatus flips the stored status from -> to and reports
	// whether the row still held from.
	CompareAndSetStatus(ctx context.Context, auctionID int64, from, to AuctionStatus, now time.Time) (bool, error)
}

// AuctionTx is the unit of atomicity handed to InTx callbacks.
type AuctionTx interface {
	// GetAuctionForUpdate loads the auction and locks its row until the
	// transaction ends.
	GetAuctionForUpdate(ctx context.Context, auctionID int64) (*Auction, error)
	GetProductForUpdate(ctx context.Context, productID int64) (*Product, error)
	// HasOpenAuction reports whether a non-terminal auction exists for the product.
	HasOpenAuction(ctx context.Context, productID int64) (bool, error)
	// InsertAuction stores a new auction and sets its ID.
	InsertAuction(ctx context.Context, auction *Auction) error
	UpdateAuction(ctx context.Context, auction *Auction) error
	// InsertBid appends to the ledger and sets the bid ID.
	InsertBid(ctx context.Context, bid *Bid) error
	CountBids(ctx context.Context, auctionID int64) (int64, error)
	ListBids(ctx context.Context, auctionID int64) ([]*Bid, error)
}

// Catalog lookups used to build auction summaries.
type ProductCatalog interface {
	GetProducts(ctx context.Context, productIDs []int64) (map[int64]*Product, error)
}

type UserDirectory interface {
	GetUsers(ctx context.Context, userIDs []int64) (map[int64]*User, error)
}

// Event interfaces

// Notifier delivers engine events. Callers treat delivery as fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, event EventType, payload interface{}) error
}

type EventSubscriber interface {
	SubscribeToEvents(ctx context.Context, handler EventHandler) error
}

type EventHandler func(envelope *EventEnvelope) error

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() int64
	AuctionID() int64
}

type ConnectionManager interface {
	RegisterConnection(userID, auctionID int64, conn WebSocketConnection) error
	UnregisterConnection(userID, auctionID int64) error
	GetConnectionsForAuction(auctionID int64) []WebSocketConnection
	GetConnectionsForUser(userID int64) []WebSocketConnection
	BroadcastToAuction(auctionID int64, message interface{}) error
	NotifyUser(userID int64, message interface{}) error
	CloseAndUnregisterConnections(auctionID int64) error
}
