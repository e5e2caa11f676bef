package services

import (
	"context"
	"errors"
	"time"

	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// AuctionManager owns the auction lifecycle: creation, administrative
// updates and every read path.
//
// Read paths resolve the effective status of each auction and persist it
// when it differs from the stored one. SCHEDULED/ACTIVE edges are written
// with a compare-and-set; an elapsed auction is closed through the
// Finalizer so its winner is settled and announced exactly once.
type AuctionManager struct {
	store     domain.AuctionStore
	catalog   domain.ProductCatalog
	users     domain.UserDirectory
	finalizer *Finalizer
	notifier  domain.Notifier
	rules     AuctionRules
	policy    TransitionPolicy
	clock     clock.Clock
	log       logger.Logger
}

func NewAuctionManager(
	store domain.AuctionStore,
	catalog domain.ProductCatalog,
	users domain.UserDirectory,
	finalizer *Finalizer,
	notifier domain.Notifier,
	rules AuctionRules,
	policy TransitionPolicy,
	clk clock.Clock,
	log logger.Logger,
) *AuctionManager {
	if policy == nil {
		policy = PermissivePolicy{}
	}
	return &AuctionManager{
		store:     store,
		catalog:   catalog,
		users:     users,
		finalizer: finalizer,
		notifier:  notifier,
		rules:     rules,
		policy:    policy,
		clock:     clk,
		log:       log,
	}
}

// ListAuctionsParams filters a listing. Status matches the effective status.
type ListAuctionsParams struct {
	Status         *domain.AuctionStatus
	SellerID       *int64
	ProductID      *int64
	IncludePending bool
}

// UpdateAuctionInput is an administrative patch. Status is parsed
// case-insensitively.
type UpdateAuctionInput struct {
	EndTime *time.Time
	Status  *string
}

func (am *AuctionManager) CreateAuction(ctx context.Context, in CreateAuctionInput) (*AuctionView, error) {
	if err := am.rules.ValidateCreate(in, am.clock.Now()); err != nil {
		return nil, err
	}

	var created *domain.Auction
	err := am.store.InTx(ctx, func(ctx context.Context, tx domain.AuctionTx) error {
		product, err := tx.GetProductForUpdate(ctx, in.ProductID)
		if errors.Is(err, domain.ErrProductNotFound) {
			return domain.NewNotFoundError("product %d not found", in.ProductID)
		}
		if err != nil {
			return err
		}
		if product.SellerID != in.SellerID {
			return domain.NewNotFoundError("product %d not found for seller %d", in.ProductID, in.SellerID)
		}
		if product.Status != domain.ProductPublished {
			return domain.NewInvalidStateError("product %d is %s, only published products can be auctioned",
				product.ID, product.Status)
		}

		open, err := tx.HasOpenAuction(ctx, product.ID)
		if err != nil {
			return err
		}
		if open {
			return domain.NewConflictError("product %d already has an open auction", product.ID)
		}

		now := am.clock.Now()
		auction := &domain.Auction{
			ProductID:        product.ID,
			SellerID:         in.SellerID,
			StartingPrice:    in.StartingPrice,
			CurrentPrice:     in.StartingPrice,
			MinimumIncrement: in.MinimumIncrement,
			StartTime:        in.StartTime,
			EndTime:          in.EndTime,
			Status:           domain.AuctionPendingReview,
			TotalBids:        0,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.InsertAuction(ctx, auction); err != nil {
			return err
		}
		created = auction
		return nil
	})
	if err != nil {
		return nil, storeError(err, "creating auction")
	}

	am.log.Info("Auction created",
		"auction_id", created.ID,
		"product_id", created.ProductID,
		"seller_id", created.SellerID)

	views, err := am.buildViews(ctx, []*domain.Auction{created})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// UpdateAuction applies an administrative change of end time and/or status.
// Moving an auction to COMPLETED settles its winner like the finalizer does.
func (am *AuctionManager) UpdateAuction(ctx context.Context, auctionID int64, in UpdateAuctionInput) (*AuctionView, error) {
	if in.EndTime == nil && in.Status == nil {
		return nil, domain.NewInvalidArgumentError("at least one of end_time or status is required")
	}

	var target *domain.AuctionStatus
	if in.Status != nil {
		status, err := domain.ParseStatus(*in.Status)
		if err != nil {
			return nil, err
		}
		target = &status
	}

	var updated *domain.Auction
	var winner *domain.Bid
	var settled bool

	err := am.store.InTx(ctx, func(ctx context.Context, tx domain.AuctionTx) error {
		updated, winner, settled = nil, nil, false

		auction, err := tx.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}

		now := am.clock.Now()
		from := auction.EffectiveStatus(now)

		if in.EndTime != nil {
			if !in.EndTime.After(auction.StartTime) {
				return domain.NewInvalidArgumentError("end time must be after start time")
			}
			if !in.EndTime.After(now) {
				return domain.NewInvalidArgumentError("end time must be in the future")
			}
			auction.EndTime = *in.EndTime
		}

		if target != nil {
			switch *target {
			case domain.AuctionActive:
				if !auction.EndTime.After(now) {
					return domain.NewInvalidStateError("cannot activate auction %d, its end time has passed", auction.ID)
				}
			case domain.AuctionScheduled:
				if !auction.StartTime.After(now) {
					return domain.NewInvalidStateError("cannot schedule auction %d, its start time is not in the future", auction.ID)
				}
			}

			if !am.policy.Allow(from, *target) {
				return domain.NewInvalidStateError("transition from %s to %s is not allowed", from, *target).
					WithDetail("policy", am.policy.Name())
			}

			if *target == domain.AuctionCompleted && !auction.Status.IsTerminal() {
				winner, err = settle(ctx, tx, auction, now)
				if err != nil {
					return err
				}
				settled = true
				updated = auction
				return nil
			}
			auction.Status = *target
		}

		auction.UpdatedAt = now
		if err := tx.UpdateAuction(ctx, auction); err != nil {
			return err
		}
		updated = auction
		return nil
	})
	if err != nil {
		return nil, storeError(err, "updating auction %d", auctionID)
	}

	am.log.Info("Auction updated",
		"auction_id", updated.ID,
		"status", updated.Status,
		"end_time", updated.EndTime)

	if settled {
		announceClosed(ctx, am.notifier, am.log, updated, winner)
	}

	views, err := am.buildViews(ctx, []*domain.Auction{updated})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// ListAuctions returns auctions newest first. Reading may persist status
// transitions, see AuctionManager.
func (am *AuctionManager) ListAuctions(ctx context.Context, params ListAuctionsParams) ([]*AuctionView, error) {
	auctions, err := am.store.ListAuctions(ctx, domain.AuctionFilter{
		SellerID:       params.SellerID,
		ProductID:      params.ProductID,
		IncludePending: params.IncludePending,
	})
	if err != nil {
		return nil, storeError(err, "listing auctions")
	}

	matched := make([]*domain.Auction, 0, len(auctions))
	for _, auction := range auctions {
		am.refreshStatus(ctx, auction)
		if params.Status != nil && auction.Status != *params.Status {
			continue
		}
		matched = append(matched, auction)
	}

	return am.buildViews(ctx, matched)
}

// GetAuction returns the auction with its bids, newest first, and its
// winner once completed. PENDING_REVIEW auctions are only visible when
// includePending is set.
func (am *AuctionManager) GetAuction(ctx context.Context, auctionID int64, includePending bool) (*AuctionView, error) {
	auction, err := am.loadVisible(ctx, auctionID, includePending)
	if err != nil {
		return nil, err
	}
	am.refreshStatus(ctx, auction)

	bids, err := am.store.ListBids(ctx, auction.ID)
	if err != nil {
		return nil, storeError(err, "listing bids of auction %d", auctionID)
	}

	views, err := am.buildViews(ctx, []*domain.Auction{auction})
	if err != nil {
		return nil, err
	}
	view := views[0]

	bidders, err := am.lookupUsers(ctx, bidderIDs(bids))
	if err != nil {
		return nil, err
	}
	view.Bids = make([]BidView, 0, len(bids))
	for _, bid := range bids {
		view.Bids = append(view.Bids, newBidView(bid, bidders[bid.BidderID]))
	}
	return view, nil
}

// GetAuctionByProduct returns the latest auction of the product, or nil.
func (am *AuctionManager) GetAuctionByProduct(ctx context.Context, productID int64, includePending bool) (*AuctionView, error) {
	auction, err := am.store.FindAuctionByProduct(ctx, productID, includePending)
	if err != nil {
		return nil, storeError(err, "finding auction of product %d", productID)
	}
	if auction == nil {
		return nil, nil
	}
	am.refreshStatus(ctx, auction)

	views, err := am.buildViews(ctx, []*domain.Auction{auction})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// ListBids returns the ledger of a visible auction, newest first.
func (am *AuctionManager) ListBids(ctx context.Context, auctionID int64, includePending bool) ([]BidView, error) {
	if _, err := am.loadVisible(ctx, auctionID, includePending); err != nil {
		return nil, err
	}

	bids, err := am.store.ListBids(ctx, auctionID)
	if err != nil {
		return nil, storeError(err, "listing bids of auction %d", auctionID)
	}

	bidders, err := am.lookupUsers(ctx, bidderIDs(bids))
	if err != nil {
		return nil, err
	}

	views := make([]BidView, 0, len(bids))
	for _, bid := range bids {
		views = append(views, newBidView(bid, bidders[bid.BidderID]))
	}
	return views, nil
}

func (am *AuctionManager) loadVisible(ctx context.Context, auctionID int64, includePending bool) (*domain.Auction, error) {
	auction, err := am.store.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, storeError(err, "loading auction %d", auctionID)
	}
	if auction.Status == domain.AuctionPendingReview && !includePending {
		return nil, domain.NewNotFoundError("auction %d not found", auctionID)
	}
	return auction, nil
}

// refreshStatus sets auction.Status to its effective value and persists the
// change. Persistence failures are logged; the caller still sees the
// effective status.
func (am *AuctionManager) refreshStatus(ctx context.Context, auction *domain.Auction) {
	now := am.clock.Now()
	effective := auction.EffectiveStatus(now)
	if effective == auction.Status {
		return
	}

	if effective == domain.AuctionCompleted && am.finalizer != nil {
		closed, err := am.finalizer.CloseAuction(ctx, auction.ID)
		if err != nil {
			am.log.Error("Failed to close auction on read", "auction_id", auction.ID, "error", err)
		}
		if closed != nil {
			*auction = *closed
			return
		}
		auction.Status = effective
		return
	}

	swapped, err := am.store.CompareAndSetStatus(ctx, auction.ID, auction.Status, effective, now)
	if err != nil {
		am.log.Error("Failed to persist auction status", "auction_id", auction.ID, "status", effective, "error", err)
	} else if swapped {
		am.log.Debug("Auction status persisted on read", "auction_id", auction.ID, "from", auction.Status, "to", effective)
		auction.UpdatedAt = now
	}
	auction.Status = effective
}

// buildViews attaches product, seller and winner summaries and reports the
// effective status of each auction.
func (am *AuctionManager) buildViews(ctx context.Context, auctions []*domain.Auction) ([]*AuctionView, error) {
	now := am.clock.Now()
	productIDs := make([]int64, 0, len(auctions))
	userIDs := make([]int64, 0, len(auctions))
	statuses := make(map[int64]domain.AuctionStatus, len(auctions))
	winners := make(map[int64]*domain.Bid)

	for _, auction := range auctions {
		productIDs = append(productIDs, auction.ProductID)
		userIDs = append(userIDs, auction.SellerID)

		status := auction.EffectiveStatus(now)
		statuses[auction.ID] = status
		if status != domain.AuctionCompleted || auction.TotalBids == 0 {
			continue
		}
		bids, err := am.store.ListBids(ctx, auction.ID)
		if err != nil {
			return nil, storeError(err, "listing bids of auction %d", auction.ID)
		}
		if winner := domain.ResolveWinner(bids); winner != nil {
			winners[auction.ID] = winner
			userIDs = append(userIDs, winner.BidderID)
		}
	}

	products := map[int64]*domain.Product{}
	if am.catalog != nil && len(productIDs) > 0 {
		var err error
		products, err = am.catalog.GetProducts(ctx, productIDs)
		if err != nil {
			return nil, domain.NewInternalError(err, "loading products")
		}
	}

	users, err := am.lookupUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	views := make([]*AuctionView, 0, len(auctions))
	for _, auction := range auctions {
		view := newAuctionView(auction, statuses[auction.ID], products[auction.ProductID], users[auction.SellerID])
		if winner, ok := winners[auction.ID]; ok {
			view.Winner = newWinnerView(winner, users[winner.BidderID])
		}
		views = append(views, view)
	}
	return views, nil
}

func (am *AuctionManager) lookupUsers(ctx context.Context, ids []int64) (map[int64]*domain.User, error) {
	if am.users == nil || len(ids) == 0 {
		return map[int64]*domain.User{}, nil
	}
	users, err := am.users.GetUsers(ctx, ids)
	if err != nil {
		return nil, domain.NewInternalError(err, "loading users")
	}
	return users, nil
}

func bidderIDs(bids []*domain.Bid) []int64 {
	seen := make(map[int64]bool, len(bids))
	ids := make([]int64, 0, len(bids))
	for _, bid := range bids {
		if !seen[bid.BidderID] {
			seen[bid.BidderID] = true
			ids = append(ids, bid.BidderID)
		}
	}
	return ids
}

// storeError passes engine errors through and classifies everything else.
func storeError(err error, format string, args ...interface{}) error {
	var engineErr *domain.Error
	switch {
	case errors.As(err, &engineErr):
		return engineErr
	case errors.Is(err, domain.ErrAuctionNotFound):
		return domain.NewNotFoundError("auction not found")
	case errors.Is(err, domain.ErrProductNotFound):
		return domain.NewNotFoundError("product not found")
	}
	return domain.NewInternalError(err, format, args...)
}
