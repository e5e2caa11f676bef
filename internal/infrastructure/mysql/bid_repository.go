package mysql

import (
	"context"
	"fmt"

	"auction-engine/internal/domain"
)

func queryBids(ctx context.Context, q querier, query string, args ...interface{}) ([]*domain.Bid, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bids []*domain.Bid
	for rows.Next() {
		var bid domain.Bid
		err := rows.Scan(&bid.ID, &bid.AuctionID, &bid.BidderID, &bid.Amount, &bid.CreatedAt)
		if err != nil {
			return nil, err
		}
		bids = append(bids, &bid)
	}

	return bids, rows.Err()
}

// ListBids returns the ledger newest first.
func (s *Store) ListBids(ctx context.Context, auctionID int64) ([]*domain.Bid, error) {
	query := `
        SELECT id, auction_id, bidder_id, amount, created_at
        FROM bids
        WHERE auction_id = ?
        ORDER BY created_at DESC, id DESC
    `
	bids, err := queryBids(ctx, s.db, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("list bids for auction %d: %w", auctionID, err)
	}
	return bids, nil
}

func (t *mysqlTx) InsertBid(ctx context.Context, bid *domain.Bid) error {
	query := `
        INSERT INTO bids (auction_id, bidder_id, amount, created_at)
        VALUES (?, ?, ?, ?)
    `
	result, err := t.tx.ExecContext(ctx, query, bid.AuctionID, bid.BidderID, bid.Amount, bid.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert bid: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert bid: %w", err)
	}
	bid.ID = id
	return nil
}

func (t *mysqlTx) CountBids(ctx context.Context, auctionID int64) (int64, error) {
	var count int64
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bids WHERE auction_id = ?`, auctionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count bids for auction %d: %w", auctionID, err)
	}
	return count, nil
}

// ListBids inside a transaction returns the ledger in acceptance order.
func (t *mysqlTx) ListBids(ctx context.Context, auctionID int64) ([]*domain.Bid, error) {
	query := `
        SELECT id, auction_id, bidder_id, amount, created_at
        FROM bids
        WHERE auction_id = ?
        ORDER BY id ASC
    `
	bids, err := queryBids(ctx, t.tx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("list bids for auction %d: %w", auctionID, err)
	}
	return bids, nil
}
