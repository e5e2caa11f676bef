package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// BidService accepts bids. The read of current_price, the validation and
// both writes happen in one serializable transaction with the auction row
// locked, so two bidders can never be validated against the same price.
type BidService struct {
	store    domain.AuctionStore
	users    domain.UserDirectory
	notifier domain.Notifier
	clock    clock.Clock
	log      logger.Logger
}

func NewBidService(
	store domain.AuctionStore,
	users domain.UserDirectory,
	notifier domain.Notifier,
	clk clock.Clock,
	log logger.Logger,
) *BidService {
	return &BidService{
		store:    store,
		users:    users,
		notifier: notifier,
		clock:    clk,
		log:      log,
	}
}

func (s *BidService) PlaceBid(ctx context.Context, auctionID, bidderID int64, amount decimal.Decimal) (*PlaceBidResult, error) {
	s.log.Info("Placing bid", "auction_id", auctionID, "bidder_id", bidderID, "amount", amount.String())

	if !amount.IsPositive() {
		return nil, domain.NewInvalidArgumentError("bid amount must be positive")
	}

	var placed *domain.Bid
	var auction *domain.Auction

	err := s.store.InTx(ctx, func(ctx context.Context, tx domain.AuctionTx) error {
		placed, auction = nil, nil

		locked, err := tx.GetAuctionForUpdate(ctx, auctionID)
		if errors.Is(err, domain.ErrAuctionNotFound) {
			return domain.NewNotFoundError("auction %d not found", auctionID)
		}
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if locked.Status != domain.AuctionActive {
			return domain.NewInvalidStateError("auction %d is not active", auctionID).
				WithDetail("status", string(locked.Status))
		}
		if locked.StartTime.After(now) {
			return domain.NewInvalidStateError("auction %d has not started", auctionID)
		}
		if !locked.EndTime.After(now) {
			return domain.NewInvalidStateError("auction %d has ended", auctionID)
		}
		if locked.SellerID == bidderID {
			return domain.NewInvalidArgumentError("sellers cannot bid on their own auction")
		}
		if err := ValidateBidAmount(locked, amount); err != nil {
			return err
		}

		bid := &domain.Bid{
			AuctionID: locked.ID,
			BidderID:  bidderID,
			Amount:    amount,
			CreatedAt: now,
		}
		if err := tx.InsertBid(ctx, bid); err != nil {
			return err
		}

		total, err := tx.CountBids(ctx, locked.ID)
		if err != nil {
			return err
		}

		locked.CurrentPrice = amount
		locked.TotalBids = total
		locked.UpdatedAt = now
		if err := tx.UpdateAuction(ctx, locked); err != nil {
			return err
		}

		placed, auction = bid, locked
		return nil
	})
	if err != nil {
		s.rejected(ctx, auctionID, bidderID, err)
		return nil, storeError(err, "placing bid on auction %d", auctionID)
	}

	s.log.Info("Bid accepted",
		"auction_id", auction.ID,
		"bid_id", placed.ID,
		"bidder_id", bidderID,
		"current_price", auction.CurrentPrice.String(),
		"total_bids", auction.TotalBids)

	publish(ctx, s.notifier, s.log, domain.EventAuctionUpdate, &domain.AuctionUpdatePayload{
		AuctionID:    auction.ID,
		Bid:          placed,
		CurrentPrice: auction.CurrentPrice,
		TotalBids:    auction.TotalBids,
		Timestamp:    auction.UpdatedAt,
	})

	var bidder *domain.User
	if s.users != nil {
		users, err := s.users.GetUsers(ctx, []int64{bidderID})
		if err != nil {
			s.log.Warn("Failed to load bidder", "bidder_id", bidderID, "error", err)
		} else {
			bidder = users[bidderID]
		}
	}

	return &PlaceBidResult{
		Bid:     newBidView(placed, bidder),
		Auction: newAuctionPricing(auction),
	}, nil
}

// rejected tells the bidder why a bid was refused. Internal failures are
// not announced.
func (s *BidService) rejected(ctx context.Context, auctionID, bidderID int64, err error) {
	kind := domain.KindOf(err)
	if kind != domain.KindInvalidArgument && kind != domain.KindInvalidState {
		s.log.Error("Failed to place bid", "auction_id", auctionID, "bidder_id", bidderID, "error", err)
		return
	}

	s.log.Info("Bid rejected", "auction_id", auctionID, "bidder_id", bidderID, "reason", err)
	notifyUser(ctx, s.notifier, s.log, bidderID, auctionID, domain.NotificationBidRejected,
		fmt.Sprintf("Your bid on auction #%d was rejected: %s", auctionID, domain.AsError(err).Message),
		s.clock.Now())
}
