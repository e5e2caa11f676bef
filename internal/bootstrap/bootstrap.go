// Package bootstrap wires the engine from configuration. Both services
// build their dependencies through it.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"

	"auction-engine/internal/clock"
	"auction-engine/internal/config"
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/cache"
	"auction-engine/internal/infrastructure/memory"
	"auction-engine/internal/infrastructure/mysql"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
)

func NewLogger(cfg config.LogConfig) logger.Logger {
	return logger.NewWithConfig(logger.Options{
		Level:       cfg.Level,
		Development: cfg.Development,
	})
}

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Address, err)
	}
	return client, nil
}

// Backend is the storage the engine runs against.
type Backend struct {
	Store   domain.AuctionStore
	Catalog domain.ProductCatalog
	Users   domain.UserDirectory

	db *sql.DB
}

// OpenBackend opens the store selected by storage.driver. MySQL schemas are
// created first when mysql.auto_migrate is set.
func OpenBackend(ctx context.Context, cfg *config.Config, log logger.Logger) (*Backend, error) {
	switch cfg.Storage.Driver {
	case "memory":
		log.Warn("Using in-memory storage, state is lost on restart and not shared between services")
		store := memory.NewStore()
		return newBackend(store, store, store, nil)

	case "mysql":
		db, err := mysql.Open(ctx, cfg.MySQL)
		if err != nil {
			return nil, err
		}
		if cfg.MySQL.AutoMigrate {
			if err := mysql.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, err
			}
			log.Info("MySQL schema migrated")
		}
		store := mysql.NewStore(db, cfg.MySQL.TxRetries, log)
		return newBackend(store, store, store, db)
	}

	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func newBackend(store domain.AuctionStore, catalog domain.ProductCatalog, users domain.UserDirectory, db *sql.DB) (*Backend, error) {
	cached, err := cache.NewUserCache(users, cache.DefaultUserCacheSize)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}
	return &Backend{Store: store, Catalog: catalog, Users: cached, db: db}, nil
}

func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Engine is the set of lifecycle services built on a Backend.
type Engine struct {
	Finalizer *services.Finalizer
	Auctions  *services.AuctionManager
	Bids      *services.BidService
}

func NewEngine(cfg *config.Config, backend *Backend, notifier domain.Notifier, clk clock.Clock, log logger.Logger) (*Engine, error) {
	policy, err := services.ParseTransitionPolicy(cfg.Auction.TransitionPolicy)
	if err != nil {
		return nil, err
	}

	finalizer := services.NewFinalizer(backend.Store, notifier, clk, log)
	return &Engine{
		Finalizer: finalizer,
		Auctions: services.NewAuctionManager(
			backend.Store,
			backend.Catalog,
			backend.Users,
			finalizer,
			notifier,
			services.NewAuctionRules(cfg.Auction),
			policy,
			clk,
			log,
		),
		Bids: services.NewBidService(backend.Store, backend.Users, notifier, clk, log),
	}, nil
}
