package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"auction-engine/internal/clock"
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/pkg/logger"
)

const (
	sellerID         int64 = 1
	aliceID          int64 = 2
	bobID            int64 = 3
	publishedProduct int64 = 10
	draftProduct     int64 = 11
	otherProduct     int64 = 12
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type sentEvent struct {
	Event   domain.EventType
	Payload interface{}
}

// recordingNotifier keeps every event it is given.
type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, event domain.EventType, payload interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{Event: event, Payload: payload})
	return nil
}

func (n *recordingNotifier) byType(event domain.EventType) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) userNotifications() []*domain.UserNotificationPayload {
	var out []*domain.UserNotificationPayload
	for _, e := range n.byType(domain.EventUserNotification) {
		out = append(out, e.Payload.(*domain.UserNotificationPayload))
	}
	return out
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

type fixture struct {
	store     *memory.Store
	clock     *clock.FakeClock
	notifier  *recordingNotifier
	finalizer *Finalizer
	manager   *AuctionManager
	bids      *BidService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithPolicy(t, PermissivePolicy{})
}

func newFixtureWithPolicy(t *testing.T, policy TransitionPolicy) *fixture {
	t.Helper()

	store := memory.NewStore()
	store.AddUser(domain.User{ID: sellerID, Name: "Noura's Boutique"})
	store.AddUser(domain.User{ID: aliceID, Name: "Alice"})
	store.AddUser(domain.User{ID: bobID, Name: "Bob"})
	store.AddProduct(domain.Product{ID: publishedProduct, SellerID: sellerID, Name: "Vintage watch", Status: domain.ProductPublished})
	store.AddProduct(domain.Product{ID: draftProduct, SellerID: sellerID, Name: "Unfinished listing", Status: domain.ProductDraft})
	store.AddProduct(domain.Product{ID: otherProduct, SellerID: sellerID, Name: "Desk lamp", Status: domain.ProductPublished})

	clk := clock.Fake(baseTime)
	notifier := &recordingNotifier{}
	log := logger.NewNop()

	finalizer := NewFinalizer(store, notifier, clk, log)
	return &fixture{
		store:     store,
		clock:     clk,
		notifier:  notifier,
		finalizer: finalizer,
		manager:   NewAuctionManager(store, store, store, finalizer, notifier, DefaultAuctionRules(), policy, clk, log),
		bids:      NewBidService(store, store, notifier, clk, log),
	}
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func strPtr(s string) *string { return &s }

func (f *fixture) createInput(productID int64) CreateAuctionInput {
	now := f.clock.Now()
	return CreateAuctionInput{
		SellerID:         sellerID,
		ProductID:        productID,
		StartingPrice:    money("100"),
		MinimumIncrement: money("10"),
		StartTime:        now,
		EndTime:          now.Add(3 * time.Hour),
	}
}

// createActive creates an auction on productID and has an admin activate it.
func (f *fixture) createActive(t *testing.T, productID int64) *AuctionView {
	t.Helper()
	ctx := context.Background()

	created, err := f.manager.CreateAuction(ctx, f.createInput(productID))
	require.NoError(t, err)

	active, err := f.manager.UpdateAuction(ctx, created.ID, UpdateAuctionInput{Status: strPtr("ACTIVE")})
	require.NoError(t, err)
	require.Equal(t, string(domain.AuctionActive), active.Status)
	return active
}

func (f *fixture) storedAuction(t *testing.T, auctionID int64) *domain.Auction {
	t.Helper()
	auction, err := f.store.GetAuction(context.Background(), auctionID)
	require.NoError(t, err)
	return auction
}
