package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"auction-engine/internal/domain"
)

const auctionColumns = `id, product_id, seller_id, starting_price, current_price, minimum_increment,
        start_time, end_time, status, total_bids, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var auction domain.Auction
	var status string

	err := row.Scan(
		&auction.ID, &auction.ProductID, &auction.SellerID,
		&auction.StartingPrice, &auction.CurrentPrice, &auction.MinimumIncrement,
		&auction.StartTime, &auction.EndTime, &status, &auction.TotalBids,
		&auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return nil, err
	}

	auction.Status = domain.AuctionStatus(status)
	return &auction, nil
}

func queryAuctions(ctx context.Context, q querier, query string, args ...interface{}) ([]*domain.Auction, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auctions []*domain.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, auction)
	}

	return auctions, rows.Err()
}

func getAuction(ctx context.Context, q querier, auctionID int64, lock bool) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`
	if lock {
		query += ` FOR UPDATE`
	}

	auction, err := scanAuction(q.QueryRowContext(ctx, query, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAuctionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get auction %d: %w", auctionID, err)
	}
	return auction, nil
}

func (s *Store) GetAuction(ctx context.Context, auctionID int64) (*domain.Auction, error) {
	return getAuction(ctx, s.db, auctionID, false)
}

func (s *Store) FindAuctionByProduct(ctx context.Context, productID int64, includePending bool) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE product_id = ?`
	args := []interface{}{productID}
	if !includePending {
		query += ` AND status <> ?`
		args = append(args, string(domain.AuctionPendingReview))
	}
	query += ` ORDER BY id DESC LIMIT 1`

	auction, err := scanAuction(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find auction for product %d: %w", productID, err)
	}
	return auction, nil
}

func (s *Store) ListAuctions(ctx context.Context, filter domain.AuctionFilter) ([]*domain.Auction, error) {
	var where []string
	var args []interface{}

	if filter.SellerID != nil {
		where = append(where, "seller_id = ?")
		args = append(args, *filter.SellerID)
	}
	if filter.ProductID != nil {
		where = append(where, "product_id = ?")
		args = append(args, *filter.ProductID)
	}
	if !filter.IncludePending {
		where = append(where, "status <> ?")
		args = append(args, string(domain.AuctionPendingReview))
	}

	query := `SELECT ` + auctionColumns + ` FROM auctions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	auctions, err := queryAuctions(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	return auctions, nil
}

func (s *Store) ListExpiredAuctions(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions
        WHERE status IN (?, ?) AND end_time <= ?
        ORDER BY id ASC`

	auctions, err := queryAuctions(ctx, s.db, query,
		string(domain.AuctionActive), string(domain.AuctionScheduled), now)
	if err != nil {
		return nil, fmt.Errorf("list expired auctions: %w", err)
	}
	return auctions, nil
}

func (s *Store) ListDueScheduledAuctions(ctx context.Context, now time.Time) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions
        WHERE status = ? AND start_time <= ? AND end_time > ?
        ORDER BY id ASC`

	auctions, err := queryAuctions(ctx, s.db, query, string(domain.AuctionScheduled), now, now)
	if err != nil {
		return nil, fmt.Errorf("list due auctions: %w", err)
	}
	return auctions, nil
}

func (s *Store) CompareAndSetStatus(ctx context.Context, auctionID int64, from, to domain.AuctionStatus, now time.Time) (bool, error) {
	query := `UPDATE auctions SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	result, err := s.db.ExecContext(ctx, query, string(to), now, auctionID, string(from))
	if err != nil {
		return false, fmt.Errorf("update auction %d status: %w", auctionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update auction %d status: %w", auctionID, err)
	}
	if affected == 1 {
		return true, nil
	}

	// zero rows: either the status moved on or the row is gone
	if _, err := getAuction(ctx, s.db, auctionID, false); err != nil {
		return false, err
	}
	return false, nil
}

func (t *mysqlTx) GetAuctionForUpdate(ctx context.Context, auctionID int64) (*domain.Auction, error) {
	return getAuction(ctx, t.tx, auctionID, true)
}

func (t *mysqlTx) HasOpenAuction(ctx context.Context, productID int64) (bool, error) {
	query := `SELECT COUNT(*) FROM auctions WHERE product_id = ? AND status NOT IN (?, ?) FOR UPDATE`

	var open int64
	err := t.tx.QueryRowContext(ctx, query, productID,
		string(domain.AuctionCompleted), string(domain.AuctionCancelled)).Scan(&open)
	if err != nil {
		return false, fmt.Errorf("count open auctions for product %d: %w", productID, err)
	}
	return open > 0, nil
}

func (t *mysqlTx) InsertAuction(ctx context.Context, auction *domain.Auction) error {
	query := `
        INSERT INTO auctions (product_id, seller_id, starting_price, current_price, minimum_increment,
            start_time, end_time, status, total_bids, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	result, err := t.tx.ExecContext(ctx, query,
		auction.ProductID, auction.SellerID,
		auction.StartingPrice, auction.CurrentPrice, auction.MinimumIncrement,
		auction.StartTime, auction.EndTime, string(auction.Status), auction.TotalBids,
		auction.CreatedAt, auction.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert auction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert auction: %w", err)
	}
	auction.ID = id
	return nil
}

func (t *mysqlTx) UpdateAuction(ctx context.Context, auction *domain.Auction) error {
	query := `
        UPDATE auctions
        SET current_price = ?, end_time = ?, status = ?, total_bids = ?, updated_at = ?
        WHERE id = ?
    `
	_, err := t.tx.ExecContext(ctx, query,
		auction.CurrentPrice, auction.EndTime, string(auction.Status), auction.TotalBids,
		auction.UpdatedAt, auction.ID)
	if err != nil {
		return fmt.Errorf("update auction %d: %w", auction.ID, err)
	}
	return nil
}
