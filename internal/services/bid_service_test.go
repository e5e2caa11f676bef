package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

func TestPlaceBid_MonotonicPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	auction := f.createActive(t, publishedProduct)

	previous := auction.CurrentPrice
	for i, amount := range []string{"110", "125.50", "140", "1000"} {
		f.clock.Advance(time.Minute)
		bidder := aliceID
		if i%2 == 1 {
			bidder = bobID
		}

		result, err := f.bids.PlaceBid(ctx, auction.ID, bidder, money(amount))
		require.NoError(t, err)

		assert.True(t, result.Auction.CurrentPrice.Equal(money(amount)))
		assert.True(t, result.Auction.CurrentPrice.GreaterThan(previous))
		assert.Equal(t, int64(i+1), result.Auction.TotalBids)
		previous = result.Auction.CurrentPrice
	}

	stored := f.storedAuction(t, auction.ID)
	assert.True(t, stored.CurrentPrice.Equal(money("1000")))
	assert.Equal(t, int64(4), stored.TotalBids)
}

func TestPlaceBid_MinimumIncrementBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	auction := f.createActive(t, publishedProduct)

	_, err := f.bids.PlaceBid(ctx, auction.ID, aliceID, money("109.99"))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvalidArgument))
	assert.Equal(t, "110.00", domain.AsError(err).Details["min_accepted"])
	assert.Contains(t, err.Error(), "110.00")

	result, err := f.bids.PlaceBid(ctx, auction.ID, aliceID, money("110"))
	require.NoError(t, err)
	assert.True(t, result.Auction.MinimumNextBid.Equal(money("120")))
	assert.Equal(t, "Alice", result.Bid.Bidder.Name)

	stored := f.storedAuction(t, auction.ID)
	assert.Equal(t, int64(1), stored.TotalBids)
}

func TestPlaceBid_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending, err := f.manager.CreateAuction(ctx, f.createInput(otherProduct))
	require.NoError(t, err)
	active := f.createActive(t, publishedProduct)

	tests := []struct {
		name      string
		auctionID int64
		bidderID  int64
		amount    string
		kind      domain.ErrorKind
	}{
		{"unknown auction", 999, aliceID, "500", domain.KindNotFound},
		{"pending review", pending.ID, aliceID, "500", domain.KindInvalidState},
		{"seller bids on own auction", active.ID, sellerID, "500", domain.KindInvalidArgument},
		{"zero amount", active.ID, aliceID, "0", domain.KindInvalidArgument},
		{"negative amount", active.ID, aliceID, "-5", domain.KindInvalidArgument},
		{"below current price", active.ID, aliceID, "90", domain.KindInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.bids.PlaceBid(ctx, tt.auctionID, tt.bidderID, money(tt.amount))
			require.Error(t, err)
			assert.Equal(t, tt.kind, domain.KindOf(err))
		})
	}

	bids, err := f.store.ListBids(ctx, active.ID)
	require.NoError(t, err)
	assert.Empty(t, bids)
}

func TestPlaceBid_RejectsLapsedWindowBeforeFinalizer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	auction := f.createActive(t, publishedProduct)

	f.clock.Advance(3 * time.Hour)
	assert.Equal(t, domain.AuctionActive, f.storedAuction(t, auction.ID).Status, "status row not flipped yet")

	_, err := f.bids.PlaceBid(ctx, auction.ID, aliceID, money("500"))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvalidState))
}

func TestPlaceBid_RejectsBeforeStartTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.createInput(publishedProduct)
	in.StartTime = f.clock.Now().Add(time.Hour)
	in.EndTime = in.StartTime.Add(3 * time.Hour)
	created, err := f.manager.CreateAuction(ctx, in)
	require.NoError(t, err)

	// an admin may force the stored status ahead of the window
	_, err = f.manager.UpdateAuction(ctx, created.ID, UpdateAuctionInput{Status: strPtr("ACTIVE")})
	require.NoError(t, err)
	require.Equal(t, domain.AuctionActive, f.storedAuction(t, created.ID).Status)

	_, err = f.bids.PlaceBid(ctx, created.ID, aliceID, money("110"))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvalidState))
	assert.Contains(t, err.Error(), "has not started")

	stored := f.storedAuction(t, created.ID)
	assert.Equal(t, int64(0), stored.TotalBids)
	assert.True(t, stored.CurrentPrice.Equal(money("100")))

	f.clock.Advance(time.Hour)
	_, err = f.bids.PlaceBid(ctx, created.ID, aliceID, money("110"))
	require.NoError(t, err)
}

func TestPlaceBid_RejectsSubCentAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	auction := f.createActive(t, publishedProduct)

	_, err := f.bids.PlaceBid(ctx, auction.ID, aliceID, money("120.004"))
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.KindInvalidArgument))

	bids, err := f.store.ListBids(ctx, auction.ID)
	require.NoError(t, err)
	assert.Empty(t, bids)
}

func TestPlaceBid_PublishesUpdateAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	auction := f.createActive(t, publishedProduct)
	f.notifier.reset()

	result, err := f.bids.PlaceBid(ctx, auction.ID, aliceID, money("150"))
	require.NoError(t, err)

	updates := f.notifier.byType(domain.EventAuctionUpdate)
	require.Len(t, updates, 1)
	payload := updates[0].Payload.(*domain.AuctionUpdatePayload)
	assert.Equal(t, auction.ID, payload.AuctionID)
	assert.Equal(t, result.Bid.ID, payload.Bid.ID)
	assert.True(t, payload.CurrentPrice.Equal(money("150")))
	assert.Equal(t, int64(1), payload.TotalBids)
	assert.Equal(t, f.clock.Now(), payload.Timestamp)
}

func TestPlaceBid_RejectionNotifiesBidder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	auction := f.createActive(t, publishedProduct)
	f.notifier.reset()

	_, err := f.bids.PlaceBid(ctx, auction.ID, aliceID, money("101"))
	require.Error(t, err)

	assert.Empty(t, f.notifier.byType(domain.EventAuctionUpdate))
	notes := f.notifier.userNotifications()
	require.Len(t, notes, 1)
	assert.Equal(t, aliceID, notes[0].UserID)
	assert.Equal(t, domain.NotificationBidRejected, notes[0].Kind)
	assert.Contains(t, notes[0].Message, "110.00")
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, event domain.EventType, payload interface{}) error {
	args := m.Called(ctx, event, payload)
	return args.Error(0)
}

func TestPlaceBid_NotifierFailureKeepsBid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	auction := f.createActive(t, publishedProduct)

	failing := &mockNotifier{}
	failing.On("Notify", mock.Anything, domain.EventAuctionUpdate, mock.Anything).
		Return(errors.New("redis unavailable")).Once()

	service := NewBidService(f.store, f.store, failing, f.clock, logger.NewNop())
	result, err := service.PlaceBid(ctx, auction.ID, aliceID, money("120"))
	require.NoError(t, err)
	assert.True(t, result.Auction.CurrentPrice.Equal(money("120")))

	failing.AssertExpectations(t)
	assert.True(t, f.storedAuction(t, auction.ID).CurrentPrice.Equal(money("120")))
}

func TestPlaceBid_ConcurrentBidsLoseNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	auction := f.createActive(t, publishedProduct)

	const bidders = 40
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0

	start := make(chan struct{})
	for i := 1; i <= bidders; i++ {
		amount := money(fmt.Sprintf("%d", 100+10*i))
		bidder := int64(100 + i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.bids.PlaceBid(ctx, auction.ID, bidder, amount)
			if err != nil {
				assert.True(t, domain.IsKind(err, domain.KindInvalidArgument), "unexpected error: %v", err)
				return
			}
			mu.Lock()
			accepted++
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()

	stored := f.storedAuction(t, auction.ID)
	assert.True(t, stored.CurrentPrice.Equal(money(fmt.Sprintf("%d", 100+10*bidders))), "highest bid always wins its slot")
	assert.Equal(t, int64(accepted), stored.TotalBids)

	ledger, err := f.store.ListBids(ctx, auction.ID)
	require.NoError(t, err)
	require.Len(t, ledger, accepted)

	// ledger is newest first; walk it in acceptance order
	price := stored.StartingPrice
	for i := len(ledger) - 1; i >= 0; i-- {
		assert.True(t, ledger[i].Amount.GreaterThanOrEqual(price.Add(stored.MinimumIncrement)))
		price = ledger[i].Amount
	}
	assert.True(t, price.Equal(stored.CurrentPrice))
}
