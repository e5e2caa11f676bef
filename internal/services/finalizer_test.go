package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/pkg/logger"
)

func TestFinalizer_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.manager.CreateAuction(ctx, f.createInput(publishedProduct))
	require.NoError(t, err)
	_, err = f.manager.UpdateAuction(ctx, created.ID, UpdateAuctionInput{Status: strPtr("ACTIVE")})
	require.NoError(t, err)

	result, err := f.bids.PlaceBid(ctx, created.ID, aliceID, money("110"))
	require.NoError(t, err)
	assert.True(t, result.Auction.CurrentPrice.Equal(money("110")))

	_, err = f.bids.PlaceBid(ctx, created.ID, bobID, money("115"))
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidArgument, domain.KindOf(err))
	assert.Contains(t, err.Error(), "120.00")

	f.clock.Advance(time.Minute)
	result, err = f.bids.PlaceBid(ctx, created.ID, bobID, money("130"))
	require.NoError(t, err)
	assert.True(t, result.Auction.CurrentPrice.Equal(money("130")))
	winningBidID := result.Bid.ID

	f.clock.Advance(3 * time.Hour)
	closed, failed, err := f.finalizer.CloseExpiredAuctions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.Zero(t, failed)

	view, err := f.manager.GetAuction(ctx, created.ID, false)
	require.NoError(t, err)
	assert.Equal(t, string(domain.AuctionCompleted), view.Status)
	require.NotNil(t, view.Winner)
	assert.Equal(t, winningBidID, view.Winner.BidID)
	assert.True(t, view.Winner.Amount.Equal(money("130")))
	assert.True(t, view.CurrentPrice.Equal(money("130")))
}

func TestFinalizer_IdempotentAndNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	auction := f.createActive(t, publishedProduct)

	_, err := f.bids.PlaceBid(ctx, auction.ID, aliceID, money("250"))
	require.NoError(t, err)
	f.notifier.reset()

	f.clock.Advance(4 * time.Hour)

	first := f.finalizer.Sweep(ctx)
	assert.Equal(t, 1, first.Closed)

	second := f.finalizer.Sweep(ctx)
	assert.Equal(t, SweepResult{}, second)

	closedEvents := f.notifier.byType(domain.EventAuctionClosed)
	require.Len(t, closedEvents, 1)
	payload := closedEvents[0].Payload.(*domain.AuctionClosedPayload)
	assert.Equal(t, auction.ID, payload.AuctionID)
	require.NotNil(t, payload.WinningBid)
	assert.Equal(t, aliceID, payload.WinningBid.BidderID)
	assert.True(t, payload.FinalPrice.Equal(money("250")))

	notes := f.notifier.userNotifications()
	require.Len(t, notes, 2)
	assert.Equal(t, aliceID, notes[0].UserID)
	assert.Equal(t, domain.NotificationAuctionWon, notes[0].Kind)
	assert.Contains(t, notes[0].Message, "You won auction #")
	assert.Equal(t, sellerID, notes[1].UserID)
	assert.Equal(t, domain.NotificationAuctionSold, notes[1].Kind)
}

func TestFinalizer_NoBidsNotifiesSellerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	auction := f.createActive(t, publishedProduct)
	f.notifier.reset()

	f.clock.Advance(3 * time.Hour)
	closed, _, err := f.finalizer.CloseExpiredAuctions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	stored := f.storedAuction(t, auction.ID)
	assert.Equal(t, domain.AuctionCompleted, stored.Status)
	assert.True(t, stored.CurrentPrice.Equal(money("100")))

	notes := f.notifier.userNotifications()
	require.Len(t, notes, 1)
	assert.Equal(t, sellerID, notes[0].UserID)
	assert.Equal(t, domain.NotificationAuctionNoBids, notes[0].Kind)

	closedEvents := f.notifier.byType(domain.EventAuctionClosed)
	require.Len(t, closedEvents, 1)
	assert.Nil(t, closedEvents[0].Payload.(*domain.AuctionClosedPayload).WinningBid)
}

func TestFinalizer_ResyncsPriceFromLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	auction := f.createActive(t, publishedProduct)

	_, err := f.bids.PlaceBid(ctx, auction.ID, aliceID, money("180"))
	require.NoError(t, err)

	// simulate drift of the denormalized price
	err = f.store.InTx(ctx, func(ctx context.Context, tx domain.AuctionTx) error {
		locked, err := tx.GetAuctionForUpdate(ctx, auction.ID)
		require.NoError(t, err)
		locked.CurrentPrice = money("175")
		return tx.UpdateAuction(ctx, locked)
	})
	require.NoError(t, err)

	f.clock.Advance(3 * time.Hour)
	closedAuction, err := f.finalizer.CloseAuction(ctx, auction.ID)
	require.NoError(t, err)
	require.NotNil(t, closedAuction)
	assert.True(t, closedAuction.CurrentPrice.Equal(money("180")))
	assert.Equal(t, int64(1), closedAuction.TotalBids)
}

func TestFinalizer_CloseAuctionSkipsRunningAuction(t *testing.T) {
	f := newFixture(t)
	auction := f.createActive(t, publishedProduct)

	closed, err := f.finalizer.CloseAuction(context.Background(), auction.ID)
	require.NoError(t, err)
	assert.Nil(t, closed)
	assert.Equal(t, domain.AuctionActive, f.storedAuction(t, auction.ID).Status)

	_, err = f.finalizer.CloseAuction(context.Background(), 999)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

// flakyStore fails ledger reads of one auction.
type flakyStore struct {
	*memory.Store
	failFor int64
}

func (s *flakyStore) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.AuctionTx) error) error {
	return s.Store.InTx(ctx, func(ctx context.Context, tx domain.AuctionTx) error {
		return fn(ctx, &flakyTx{AuctionTx: tx, failFor: s.failFor})
	})
}

type flakyTx struct {
	domain.AuctionTx
	failFor int64
}

func (t *flakyTx) ListBids(ctx context.Context, auctionID int64) ([]*domain.Bid, error) {
	if auctionID == t.failFor {
		return nil, errors.New("ledger unavailable")
	}
	return t.AuctionTx.ListBids(ctx, auctionID)
}

func TestFinalizer_OneFailureDoesNotStopTheSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	broken := f.createActive(t, publishedProduct)
	healthy := f.createActive(t, otherProduct)

	finalizer := NewFinalizer(&flakyStore{Store: f.store, failFor: broken.ID}, f.notifier, f.clock, logger.NewNop())

	f.clock.Advance(3 * time.Hour)
	closed, failed, err := finalizer.CloseExpiredAuctions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.Equal(t, 1, failed)

	assert.Equal(t, domain.AuctionActive, f.storedAuction(t, broken.ID).Status, "rolled back, retried next sweep")
	assert.Equal(t, domain.AuctionCompleted, f.storedAuction(t, healthy.ID).Status)

	// next sweep with a healthy store picks up the leftover
	closed, failed, err = f.finalizer.CloseExpiredAuctions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.Zero(t, failed)
}

func TestFinalizer_ActivatesDueScheduledAuctions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.createInput(publishedProduct)
	in.StartTime = f.clock.Now().Add(30 * time.Minute)
	in.EndTime = in.StartTime.Add(3 * time.Hour)
	created, err := f.manager.CreateAuction(ctx, in)
	require.NoError(t, err)
	_, err = f.manager.UpdateAuction(ctx, created.ID, UpdateAuctionInput{Status: strPtr("scheduled")})
	require.NoError(t, err)

	assert.Equal(t, SweepResult{}, f.finalizer.Sweep(ctx))

	f.clock.Advance(30 * time.Minute)
	result := f.finalizer.Sweep(ctx)
	assert.Equal(t, 1, result.Activated)
	assert.Equal(t, domain.AuctionActive, f.storedAuction(t, created.ID).Status)

	notes := f.notifier.userNotifications()
	require.NotEmpty(t, notes)
	last := notes[len(notes)-1]
	assert.Equal(t, domain.NotificationAuctionActivated, last.Kind)
	assert.Equal(t, sellerID, last.UserID)

	_, err = f.bids.PlaceBid(ctx, created.ID, aliceID, money("110"))
	require.NoError(t, err)
}
