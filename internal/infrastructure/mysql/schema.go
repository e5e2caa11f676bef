package mysql

import (
	"context"
	"database/sql"
	"fmt"
)

// The products and users tables belong to the marketplace. They are
// created here only so a fresh database can run the engine.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
        name VARCHAR(255) NOT NULL
    ) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS products (
        id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
        seller_id BIGINT NOT NULL,
        name VARCHAR(255) NOT NULL,
        status VARCHAR(32) NOT NULL,
        KEY idx_products_seller (seller_id)
    ) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS auctions (
        id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
        product_id BIGINT NOT NULL,
        seller_id BIGINT NOT NULL,
        starting_price DECIMAL(14,2) NOT NULL,
        current_price DECIMAL(14,2) NOT NULL,
        minimum_increment DECIMAL(14,2) NOT NULL,
        start_time DATETIME(6) NOT NULL,
        end_time DATETIME(6) NOT NULL,
        status VARCHAR(32) NOT NULL,
        total_bids BIGINT NOT NULL DEFAULT 0,
        created_at DATETIME(6) NOT NULL,
        updated_at DATETIME(6) NOT NULL,
        KEY idx_auctions_product (product_id),
        KEY idx_auctions_status_end (status, end_time),
        KEY idx_auctions_seller (seller_id)
    ) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS bids (
        id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
        auction_id BIGINT NOT NULL,
        bidder_id BIGINT NOT NULL,
        amount DECIMAL(14,2) NOT NULL,
        created_at DATETIME(6) NOT NULL,
        KEY idx_bids_auction (auction_id, created_at),
        CONSTRAINT fk_bids_auction FOREIGN KEY (auction_id) REFERENCES auctions (id)
    ) ENGINE=InnoDB`,
}

// Migrate creates the tables the engine needs when they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
