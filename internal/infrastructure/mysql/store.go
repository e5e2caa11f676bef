package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	gomysql "github.com/go-sql-driver/mysql"

	"auction-engine/internal/config"
	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

const (
	errLockDeadlock    = 1213
	errLockWaitTimeout = 1205
)

// querier is satisfied by both *sql.DB and *sql.Tx so reads can share scan code.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store implements domain.AuctionStore, domain.ProductCatalog and
// domain.UserDirectory on MySQL. Writes run in SERIALIZABLE transactions and
// lock the rows they validate against with SELECT ... FOR UPDATE.
type Store struct {
	db      *sql.DB
	retries uint64
	log     logger.Logger
}

func NewStore(db *sql.DB, retries uint64, log logger.Logger) *Store {
	return &Store{db: db, retries: retries, log: log}
}

// Open connects to MySQL with the pool settings from cfg and pings it.
func Open(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return db, nil
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx domain.AuctionTx) error) error {
	operation := func() error {
		err := s.runTx(ctx, fn)
		if err == nil || isSerializationFailure(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 250 * time.Millisecond

	err := backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, s.retries), ctx),
		func(err error, wait time.Duration) {
			s.log.Warn("Retrying transaction after write conflict", "error", err, "wait", wait)
		},
	)
	if err != nil && isSerializationFailure(err) {
		return fmt.Errorf("%w: %v", domain.ErrSerializationFailure, err)
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx domain.AuctionTx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, &mysqlTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Error("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// isSerializationFailure reports whether err is a lock conflict that
// InnoDB resolved by aborting this transaction.
func isSerializationFailure(err error) bool {
	var mysqlErr *gomysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return false
	}
	return mysqlErr.Number == errLockDeadlock || mysqlErr.Number == errLockWaitTimeout
}

type mysqlTx struct {
	tx *sql.Tx
}
