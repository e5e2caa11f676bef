package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// Finalizer closes auctions whose window has elapsed and opens scheduled
// auctions whose window has started.
type Finalizer struct {
	store    domain.AuctionStore
	notifier domain.Notifier
	clock    clock.Clock
	log      logger.Logger
}

func NewFinalizer(store domain.AuctionStore, notifier domain.Notifier, clk clock.Clock, log logger.Logger) *Finalizer {
	return &Finalizer{
		store:    store,
		notifier: notifier,
		clock:    clk,
		log:      log,
	}
}

// SweepResult summarizes one finalizer pass.
type SweepResult struct {
	Activated int
	Closed    int
	Failed    int
}

// Sweep runs ActivateDueAuctions and CloseExpiredAuctions. Listing errors
// are logged; the next sweep retries.
func (f *Finalizer) Sweep(ctx context.Context) SweepResult {
	var result SweepResult

	activated, failed, err := f.ActivateDueAuctions(ctx)
	if err != nil {
		f.log.Error("Failed to list due auctions", "error", err)
	}
	result.Activated += activated
	result.Failed += failed

	closed, failed, err := f.CloseExpiredAuctions(ctx)
	if err != nil {
		f.log.Error("Failed to list expired auctions", "error", err)
	}
	result.Closed += closed
	result.Failed += failed

	if result.Activated > 0 || result.Closed > 0 || result.Failed > 0 {
		f.log.Info("Finalizer sweep done",
			"activated", result.Activated,
			"closed", result.Closed,
			"failed", result.Failed)
	}
	return result
}

// CloseExpiredAuctions finalizes every auction stored as ACTIVE or
// SCHEDULED whose end time has passed. One auction failing does not stop
// the others.
func (f *Finalizer) CloseExpiredAuctions(ctx context.Context) (closed, failed int, err error) {
	expired, err := f.store.ListExpiredAuctions(ctx, f.clock.Now())
	if err != nil {
		return 0, 0, err
	}

	for _, candidate := range expired {
		if ctx.Err() != nil {
			return closed, failed, ctx.Err()
		}

		auction, err := f.CloseAuction(ctx, candidate.ID)
		if err != nil {
			failed++
			f.log.Error("Failed to finalize auction", "auction_id", candidate.ID, "error", err)
			continue
		}
		if auction != nil {
			closed++
		}
	}
	return closed, failed, nil
}

// CloseAuction completes a single expired auction. It re-checks expiry with
// the row locked, so it returns a nil auction when another sweep got there
// first or the auction is not expired.
func (f *Finalizer) CloseAuction(ctx context.Context, auctionID int64) (*domain.Auction, error) {
	var closed *domain.Auction
	var winner *domain.Bid

	err := f.store.InTx(ctx, func(ctx context.Context, tx domain.AuctionTx) error {
		closed, winner = nil, nil

		auction, err := tx.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}

		now := f.clock.Now()
		if !isExpired(auction, now) {
			return nil
		}

		winner, err = settle(ctx, tx, auction, now)
		if err != nil {
			return err
		}
		closed = auction
		return nil
	})
	if errors.Is(err, domain.ErrAuctionNotFound) {
		return nil, domain.NewNotFoundError("auction %d not found", auctionID)
	}
	if err != nil {
		return nil, domain.NewInternalError(err, "finalizing auction %d", auctionID)
	}

	if closed != nil {
		f.log.Info("Auction closed",
			"auction_id", closed.ID,
			"final_price", closed.CurrentPrice.String(),
			"has_winner", winner != nil)
		announceClosed(ctx, f.notifier, f.log, closed, winner)
	}
	return closed, nil
}

// ActivateDueAuctions promotes SCHEDULED auctions whose window has opened.
func (f *Finalizer) ActivateDueAuctions(ctx context.Context) (activated, failed int, err error) {
	now := f.clock.Now()
	due, err := f.store.ListDueScheduledAuctions(ctx, now)
	if err != nil {
		return 0, 0, err
	}

	for _, auction := range due {
		swapped, err := f.store.CompareAndSetStatus(ctx, auction.ID, domain.AuctionScheduled, domain.AuctionActive, now)
		if err != nil {
			failed++
			f.log.Error("Failed to activate auction", "auction_id", auction.ID, "error", err)
			continue
		}
		if !swapped {
			continue
		}

		activated++
		f.log.Info("Auction activated", "auction_id", auction.ID)
		notifyUser(ctx, f.notifier, f.log, auction.SellerID, auction.ID, domain.NotificationAuctionActivated,
			fmt.Sprintf("Auction #%d is now open for bidding", auction.ID), now)
	}
	return activated, failed, nil
}

func isExpired(auction *domain.Auction, now time.Time) bool {
	if auction.Status != domain.AuctionActive && auction.Status != domain.AuctionScheduled {
		return false
	}
	return !auction.EndTime.After(now)
}

// settle marks the locked auction COMPLETED and re-syncs its price and bid
// count from the ledger. It returns the winning bid, if any.
func settle(ctx context.Context, tx domain.AuctionTx, auction *domain.Auction, now time.Time) (*domain.Bid, error) {
	bids, err := tx.ListBids(ctx, auction.ID)
	if err != nil {
		return nil, err
	}

	winner := domain.ResolveWinner(bids)
	if winner != nil {
		auction.CurrentPrice = winner.Amount
	}
	auction.Status = domain.AuctionCompleted
	auction.TotalBids = int64(len(bids))
	auction.UpdatedAt = now

	if err := tx.UpdateAuction(ctx, auction); err != nil {
		return nil, err
	}
	return winner, nil
}
