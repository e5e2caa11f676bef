package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"auction-engine/internal/domain"
)

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func (s *Store) GetProducts(ctx context.Context, productIDs []int64) (map[int64]*domain.Product, error) {
	products := make(map[int64]*domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return products, nil
	}

	query := `SELECT id, seller_id, name, status FROM products WHERE id IN (` + placeholders(len(productIDs)) + `)`
	rows, err := s.db.QueryContext(ctx, query, int64Args(productIDs)...)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var product domain.Product
		var status string
		if err := rows.Scan(&product.ID, &product.SellerID, &product.Name, &status); err != nil {
			return nil, fmt.Errorf("get products: %w", err)
		}
		product.Status = domain.ProductStatus(status)
		products[product.ID] = &product
	}

	return products, rows.Err()
}

func (s *Store) GetUsers(ctx context.Context, userIDs []int64) (map[int64]*domain.User, error) {
	users := make(map[int64]*domain.User, len(userIDs))
	if len(userIDs) == 0 {
		return users, nil
	}

	query := `SELECT id, name FROM users WHERE id IN (` + placeholders(len(userIDs)) + `)`
	rows, err := s.db.QueryContext(ctx, query, int64Args(userIDs)...)
	if err != nil {
		return nil, fmt.Errorf("get users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var user domain.User
		if err := rows.Scan(&user.ID, &user.Name); err != nil {
			return nil, fmt.Errorf("get users: %w", err)
		}
		users[user.ID] = &user
	}

	return users, rows.Err()
}

func (t *mysqlTx) GetProductForUpdate(ctx context.Context, productID int64) (*domain.Product, error) {
	query := `SELECT id, seller_id, name, status FROM products WHERE id = ? FOR UPDATE`

	var product domain.Product
	var status string
	err := t.tx.QueryRowContext(ctx, query, productID).Scan(&product.ID, &product.SellerID, &product.Name, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", productID, err)
	}

	product.Status = domain.ProductStatus(status)
	return &product, nil
}
