package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"auction-engine/internal/domain"
	"auction-engine/internal/services"
)

// Request bodies accept snake_case keys and their camelCase synonyms. When
// both are sent the snake_case key wins.

type CreateAuctionRequest struct {
	SellerID              *int64           `json:"seller_id"`
	SellerIDCamel         *int64           `json:"sellerId"`
	ProductID             *int64           `json:"product_id"`
	ProductIDCamel        *int64           `json:"productId"`
	StartingPrice         *decimal.Decimal `json:"starting_price"`
	StartingPriceCamel    *decimal.Decimal `json:"startingPrice"`
	MinimumIncrement      *decimal.Decimal `json:"minimum_increment"`
	MinimumIncrementCamel *decimal.Decimal `json:"minimumIncrement"`
	StartTime             *time.Time       `json:"start_time"`
	StartTimeCamel        *time.Time       `json:"startTime"`
	EndTime               *time.Time       `json:"end_time"`
	EndTimeCamel          *time.Time       `json:"endTime"`
}

// toInput builds the service input. Only admins may create on behalf of
// another seller.
func (r *CreateAuctionRequest) toInput(actor Actor) (services.CreateAuctionInput, error) {
	var in services.CreateAuctionInput

	in.SellerID = actor.UserID
	if seller := pick(r.SellerID, r.SellerIDCamel); seller != nil && *seller != actor.UserID {
		if !actor.IsAdmin() {
			return in, domain.NewInvalidArgumentError("seller_id must match the caller")
		}
		in.SellerID = *seller
	}

	product := pick(r.ProductID, r.ProductIDCamel)
	if product == nil {
		return in, domain.NewInvalidArgumentError("product_id is required")
	}
	in.ProductID = *product

	startingPrice := pick(r.StartingPrice, r.StartingPriceCamel)
	if startingPrice == nil {
		return in, domain.NewInvalidArgumentError("starting_price is required")
	}
	in.StartingPrice = *startingPrice

	increment := pick(r.MinimumIncrement, r.MinimumIncrementCamel)
	if increment == nil {
		return in, domain.NewInvalidArgumentError("minimum_increment is required")
	}
	in.MinimumIncrement = *increment

	start := pick(r.StartTime, r.StartTimeCamel)
	if start == nil {
		return in, domain.NewInvalidArgumentError("start_time is required")
	}
	in.StartTime = *start

	end := pick(r.EndTime, r.EndTimeCamel)
	if end == nil {
		return in, domain.NewInvalidArgumentError("end_time is required")
	}
	in.EndTime = *end

	return in, nil
}

type UpdateAuctionRequest struct {
	EndTime      *time.Time `json:"end_time"`
	EndTimeCamel *time.Time `json:"endTime"`
	Status       *string    `json:"status"`
}

func (r *UpdateAuctionRequest) toInput() services.UpdateAuctionInput {
	return services.UpdateAuctionInput{
		EndTime: pick(r.EndTime, r.EndTimeCamel),
		Status:  r.Status,
	}
}

type PlaceBidRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

func pick[T any](primary, synonym *T) *T {
	if primary != nil {
		return primary
	}
	return synonym
}
