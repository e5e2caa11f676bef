package services

import (
	"time"

	"github.com/shopspring/decimal"

	"auction-engine/internal/config"
	"auction-engine/internal/domain"
)

// CreateAuctionInput carries the seller's request for a new auction.
type CreateAuctionInput struct {
	SellerID         int64
	ProductID        int64
	StartingPrice    decimal.Decimal
	MinimumIncrement decimal.Decimal
	StartTime        time.Time
	EndTime          time.Time
}

// MoneyScale is the number of decimal places money columns are stored with.
const MoneyScale = 2

// hasMoneyScale reports whether d fits MoneyScale decimal places exactly.
func hasMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// AuctionRules holds the pricing and timing rules applied before any write.
type AuctionRules struct {
	MinDuration time.Duration
	MaxDuration time.Duration
}

func DefaultAuctionRules() AuctionRules {
	return AuctionRules{MinDuration: 2 * time.Hour, MaxDuration: 24 * time.Hour}
}

func NewAuctionRules(cfg config.AuctionConfig) AuctionRules {
	rules := DefaultAuctionRules()
	if cfg.MinDuration > 0 {
		rules.MinDuration = cfg.MinDuration
	}
	if cfg.MaxDuration > 0 {
		rules.MaxDuration = cfg.MaxDuration
	}
	return rules
}

func (r AuctionRules) ValidateCreate(in CreateAuctionInput, now time.Time) error {
	if !in.StartingPrice.IsPositive() {
		return domain.NewInvalidArgumentError("starting price must be positive")
	}
	if !hasMoneyScale(in.StartingPrice) {
		return domain.NewInvalidArgumentError("starting price must have at most %d decimal places", MoneyScale)
	}
	if !in.MinimumIncrement.IsPositive() {
		return domain.NewInvalidArgumentError("minimum increment must be positive")
	}
	if !hasMoneyScale(in.MinimumIncrement) {
		return domain.NewInvalidArgumentError("minimum increment must have at most %d decimal places", MoneyScale)
	}
	if !in.EndTime.After(in.StartTime) {
		return domain.NewInvalidArgumentError("end time must be after start time")
	}
	if !in.EndTime.After(now) {
		return domain.NewInvalidArgumentError("end time must be in the future")
	}

	duration := in.EndTime.Sub(in.StartTime)
	if duration < r.MinDuration || duration > r.MaxDuration {
		return domain.NewInvalidArgumentError("auction duration must be between %s and %s, got %s",
			r.MinDuration, r.MaxDuration, duration).
			WithDetail("min_duration", r.MinDuration.String()).
			WithDetail("max_duration", r.MaxDuration.String())
	}
	return nil
}

// ValidateBidAmount rejects amounts below current_price + minimum_increment
// and amounts the money columns cannot hold exactly.
func ValidateBidAmount(auction *domain.Auction, amount decimal.Decimal) error {
	if !hasMoneyScale(amount) {
		return domain.NewInvalidArgumentError("bid amount must have at most %d decimal places", MoneyScale)
	}

	minAccepted := auction.MinimumAcceptedBid()
	if amount.LessThan(minAccepted) {
		// rows written before the scale check may hold finer values
		shown := minAccepted.StringFixed(MoneyScale)
		if !hasMoneyScale(minAccepted) {
			shown = minAccepted.String()
		}
		return domain.NewInvalidArgumentError("bid must be at least %s", shown).
			WithDetail("min_accepted", shown)
	}
	return nil
}
