package services

import (
	"time"

	"github.com/shopspring/decimal"

	"auction-engine/internal/domain"
)

type ProductSummary struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

type SellerSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type BidderSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type WinnerView struct {
	BidID    int64           `json:"bid_id"`
	BidderID int64           `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
	Bidder   *BidderSummary  `json:"bidder"`
}

type BidView struct {
	ID        int64           `json:"id"`
	AuctionID int64           `json:"auction_id"`
	BidderID  int64           `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
	Bidder    *BidderSummary  `json:"bidder,omitempty"`
}

// AuctionView is the normalized auction returned to every caller. Status is
// the effective status at read time.
type AuctionView struct {
	ID               int64           `json:"id"`
	ProductID        int64           `json:"product_id"`
	SellerID         int64           `json:"seller_id"`
	StartingPrice    decimal.Decimal `json:"starting_price"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	MinimumIncrement decimal.Decimal `json:"minimum_increment"`
	StartTime        time.Time       `json:"start_time"`
	EndTime          time.Time       `json:"end_time"`
	Status           string          `json:"status"`
	TotalBids        int64           `json:"total_bids"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Product          *ProductSummary `json:"product"`
	Seller           *SellerSummary  `json:"seller"`
	Winner           *WinnerView     `json:"winner"`
	Bids             []BidView       `json:"bids,omitempty"`
}

// AuctionPricing is the price snapshot returned with an accepted bid.
type AuctionPricing struct {
	AuctionID        int64           `json:"auction_id"`
	CurrentPrice     decimal.Decimal `json:"current_price"`
	MinimumIncrement decimal.Decimal `json:"minimum_increment"`
	MinimumNextBid   decimal.Decimal `json:"minimum_next_bid"`
	TotalBids        int64           `json:"total_bids"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type PlaceBidResult struct {
	Bid     BidView        `json:"bid"`
	Auction AuctionPricing `json:"auction"`
}

func newProductSummary(p *domain.Product) *ProductSummary {
	if p == nil {
		return nil
	}
	return &ProductSummary{ID: p.ID, Name: p.Name, Status: string(p.Status)}
}

func newSellerSummary(u *domain.User) *SellerSummary {
	if u == nil {
		return nil
	}
	return &SellerSummary{ID: u.ID, Name: u.Name}
}

func newBidderSummary(u *domain.User) *BidderSummary {
	if u == nil {
		return nil
	}
	return &BidderSummary{ID: u.ID, Name: u.Name}
}

func newBidView(b *domain.Bid, bidder *domain.User) BidView {
	return BidView{
		ID:        b.ID,
		AuctionID: b.AuctionID,
		BidderID:  b.BidderID,
		Amount:    b.Amount,
		CreatedAt: b.CreatedAt,
		Bidder:    newBidderSummary(bidder),
	}
}

func newWinnerView(b *domain.Bid, bidder *domain.User) *WinnerView {
	if b == nil {
		return nil
	}
	return &WinnerView{
		BidID:    b.ID,
		BidderID: b.BidderID,
		Amount:   b.Amount,
		Bidder:   newBidderSummary(bidder),
	}
}

func newAuctionPricing(a *domain.Auction) AuctionPricing {
	return AuctionPricing{
		AuctionID:        a.ID,
		CurrentPrice:     a.CurrentPrice,
		MinimumIncrement: a.MinimumIncrement,
		MinimumNextBid:   a.MinimumAcceptedBid(),
		TotalBids:        a.TotalBids,
		UpdatedAt:        a.UpdatedAt,
	}
}

func newAuctionView(a *domain.Auction, status domain.AuctionStatus, product *domain.Product, seller *domain.User) *AuctionView {
	return &AuctionView{
		ID:               a.ID,
		ProductID:        a.ProductID,
		SellerID:         a.SellerID,
		StartingPrice:    a.StartingPrice,
		CurrentPrice:     a.CurrentPrice,
		MinimumIncrement: a.MinimumIncrement,
		StartTime:        a.StartTime,
		EndTime:          a.EndTime,
		Status:           string(status),
		TotalBids:        a.TotalBids,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
		Product:          newProductSummary(product),
		Seller:           newSellerSummary(seller),
	}
}
