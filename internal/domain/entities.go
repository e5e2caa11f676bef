package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Auction struct {
	ID               int64           `json:"id"`
	ProductID        int64           `json:"product_id"`
	SellerID         int64           `json:"seller_id"`
	StartingPrice    decimal.Decimal `json:"starting_price"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	MinimumIncrement decimal.Decimal `json:"minimum_increment"`
	StartTime        time.Time       `json:"start_time"`
	EndTime          time.Time       `json:"end_time"`
	Status           AuctionStatus   `json:"status"`
	TotalBids        int64           `json:"total_bids"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// MinimumAcceptedBid is the smallest amount the next bid may carry.
func (a *Auction) MinimumAcceptedBid() decimal.Decimal {
	return a.CurrentPrice.Add(a.MinimumIncrement)
}

// EffectiveStatus derives the status a reader should see at now.
func (a *Auction) EffectiveStatus(now time.Time) AuctionStatus {
	return ResolveStatus(a.Status, a.StartTime, a.EndTime, now)
}

type AuctionStatus string

const (
	AuctionPendingReview AuctionStatus = "pending_review"
	AuctionScheduled     AuctionStatus = "scheduled"
	AuctionActive        AuctionStatus = "active"
	AuctionCompleted     AuctionStatus = "completed"
	AuctionCancelled     AuctionStatus = "cancelled"
)

func (s AuctionStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status is frozen for good.
func (s AuctionStatus) IsTerminal() bool {
	return s == AuctionCompleted || s == AuctionCancelled
}

// Bid is an immutable ledger entry.
type Bid struct {
	ID        int64           `json:"id"`
	AuctionID int64           `json:"auction_id"`
	BidderID  int64           `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

type ProductStatus string

const (
	ProductDraft     ProductStatus = "draft"
	ProductPublished ProductStatus = "published"
	ProductArchived  ProductStatus = "archived"
)

// Product is the slice of the catalog the auction engine reads.
type Product struct {
	ID       int64
	SellerID int64
	Name     string
	Status   ProductStatus
}

type User struct {
	ID   int64
	Name string
}

// AuctionFilter narrows a store listing by stored columns. Nil pointers
// mean "any". Stored PENDING_REVIEW rows are skipped unless IncludePending.
type AuctionFilter struct {
	SellerID       *int64
	ProductID      *int64
	IncludePending bool
}

// AuctionPatch carries an administrative update. Nil fields are left alone.
type AuctionPatch struct {
	EndTime *time.Time
	Status  *string
}
