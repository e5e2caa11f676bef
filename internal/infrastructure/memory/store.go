// Package memory keeps auctions, the bid ledger and a small catalog in
// process. It backs local runs (storage.driver=memory) and the service
// tests. A single mutex serializes transactions, which trivially gives
// serializable isolation.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"auction-engine/internal/domain"
)

type state struct {
	auctions      map[int64]domain.Auction
	bids          map[int64][]domain.Bid
	products      map[int64]domain.Product
	users         map[int64]domain.User
	nextAuctionID int64
	nextBidID     int64
}

func newState() *state {
	return &state{
		auctions: make(map[int64]domain.Auction),
		bids:     make(map[int64][]domain.Bid),
		products: make(map[int64]domain.Product),
		users:    make(map[int64]domain.User),
	}
}

// clone copies everything a transaction may write. Products and users are
// read-only inside transactions and are shared. Clones only live while the
// store mutex is held.
func (s *state) clone() *state {
	c := &state{
		auctions:      make(map[int64]domain.Auction, len(s.auctions)),
		bids:          make(map[int64][]domain.Bid, len(s.bids)),
		products:      s.products,
		users:         s.users,
		nextAuctionID: s.nextAuctionID,
		nextBidID:     s.nextBidID,
	}
	for id, a := range s.auctions {
		c.auctions[id] = a
	}
	for id, ledger := range s.bids {
		c.bids[id] = ledger
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	state *state
}

func NewStore() *Store {
	return &Store{state: newState()}
}

// AddProduct seeds the catalog.
func (s *Store) AddProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[p.ID] = p
}

// AddUser seeds the user directory.
func (s *Store) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[u.ID] = u
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.AuctionTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &memoryTx{state: work}); err != nil {
		return err
	}

	// a caller that gave up before commit must not see its writes applied
	if err := ctx.Err(); err != nil {
		return err
	}

	s.state = work
	return nil
}

func (s *Store) GetAuction(ctx context.Context, auctionID int64) (*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.state.auctions[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return &a, nil
}

func (s *Store) FindAuctionByProduct(ctx context.Context, productID int64, includePending bool) (*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *domain.Auction
	for _, a := range s.state.auctions {
		if a.ProductID != productID {
			continue
		}
		if a.Status == domain.AuctionPendingReview && !includePending {
			continue
		}
		if found == nil || a.ID > found.ID {
			candidate := a
			found = &candidate
		}
	}
	return found, nil
}

func (s *Store) ListAuctions(ctx context.Context, filter domain.AuctionFilter) ([]*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var auctions []*domain.Auction
	for _, a := range s.state.auctions {
		if filter.SellerID != nil && a.SellerID != *filter.SellerID {
			continue
		}
		if filter.ProductID != nil && a.ProductID != *filter.ProductID {
			continue
		}
		if a.Status == domain.AuctionPendingReview && !filter.IncludePending {
			continue
		}
		candidate := a
		auctions = append(auctions, &candidate)
	}

	sortNewestFirst(auctions)
	return auctions, nil
}

func (s *Store) ListBids(ctx context.Context, auctionID int64) ([]*domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger := s.state.bids[auctionID]
	bids := make([]*domain.Bid, 0, len(ledger))
	for i := len(ledger) - 1; i >= 0; i-- {
		b := ledger[i]
		bids = append(bids, &b)
	}
	return bids, nil
}

func (s *Store) ListExpiredAuctions(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	return s.selectAuctions(func(a domain.Auction) bool {
		return (a.Status == domain.AuctionActive || a.Status == domain.AuctionScheduled) && !a.EndTime.After(now)
	}), nil
}

func (s *Store) ListDueScheduledAuctions(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	return s.selectAuctions(func(a domain.Auction) bool {
		return a.Status == domain.AuctionScheduled && !a.StartTime.After(now) && a.EndTime.After(now)
	}), nil
}

func (s *Store) CompareAndSetStatus(ctx context.Context, auctionID int64, from, to domain.AuctionStatus, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.state.auctions[auctionID]
	if !ok {
		return false, domain.ErrAuctionNotFound
	}
	if a.Status != from {
		return false, nil
	}

	a.Status = to
	a.UpdatedAt = now
	s.state.auctions[auctionID] = a
	return true, nil
}

// GetProducts implements domain.ProductCatalog.
func (s *Store) GetProducts(ctx context.Context, productIDs []int64) (map[int64]*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products := make(map[int64]*domain.Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := s.state.products[id]; ok {
			products[id] = &p
		}
	}
	return products, nil
}

// GetUsers implements domain.UserDirectory.
func (s *Store) GetUsers(ctx context.Context, userIDs []int64) (map[int64]*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make(map[int64]*domain.User, len(userIDs))
	for _, id := range userIDs {
		if u, ok := s.state.users[id]; ok {
			users[id] = &u
		}
	}
	return users, nil
}

func (s *Store) selectAuctions(match func(a domain.Auction) bool) []*domain.Auction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var auctions []*domain.Auction
	for _, a := range s.state.auctions {
		if match(a) {
			candidate := a
			auctions = append(auctions, &candidate)
		}
	}
	sort.Slice(auctions, func(i, j int) bool { return auctions[i].ID < auctions[j].ID })
	return auctions
}

func sortNewestFirst(auctions []*domain.Auction) {
	sort.Slice(auctions, func(i, j int) bool {
		if !auctions[i].CreatedAt.Equal(auctions[j].CreatedAt) {
			return auctions[i].CreatedAt.After(auctions[j].CreatedAt)
		}
		return auctions[i].ID > auctions[j].ID
	})
}

type memoryTx struct {
	state *state
}

func (tx *memoryTx) GetAuctionForUpdate(ctx context.Context, auctionID int64) (*domain.Auction, error) {
	a, ok := tx.state.auctions[auctionID]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return &a, nil
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, productID int64) (*domain.Product, error) {
	p, ok := tx.state.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (tx *memoryTx) HasOpenAuction(ctx context.Context, productID int64) (bool, error) {
	for _, a := range tx.state.auctions {
		if a.ProductID == productID && !a.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) InsertAuction(ctx context.Context, auction *domain.Auction) error {
	tx.state.nextAuctionID++
	auction.ID = tx.state.nextAuctionID
	tx.state.auctions[auction.ID] = *auction
	return nil
}

func (tx *memoryTx) UpdateAuction(ctx context.Context, auction *domain.Auction) error {
	if _, ok := tx.state.auctions[auction.ID]; !ok {
		return domain.ErrAuctionNotFound
	}
	tx.state.auctions[auction.ID] = *auction
	return nil
}

func (tx *memoryTx) InsertBid(ctx context.Context, bid *domain.Bid) error {
	if _, ok := tx.state.auctions[bid.AuctionID]; !ok {
		return domain.ErrAuctionNotFound
	}
	tx.state.nextBidID++
	bid.ID = tx.state.nextBidID

	ledger := tx.state.bids[bid.AuctionID]
	// copy before appending so the committed ledger never shares a backing array
	next := make([]domain.Bid, len(ledger), len(ledger)+1)
	copy(next, ledger)
	tx.state.bids[bid.AuctionID] = append(next, *bid)
	return nil
}

func (tx *memoryTx) CountBids(ctx context.Context, auctionID int64) (int64, error) {
	return int64(len(tx.state.bids[auctionID])), nil
}

func (tx *memoryTx) ListBids(ctx context.Context, auctionID int64) ([]*domain.Bid, error) {
	ledger := tx.state.bids[auctionID]
	bids := make([]*domain.Bid, 0, len(ledger))
	for i := range ledger {
		b := ledger[i]
		bids = append(bids, &b)
	}
	return bids, nil
}
