package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"auction-engine/internal/api/handlers"
	"auction-engine/internal/bootstrap"
	"auction-engine/internal/clock"
	"auction-engine/internal/config"
	"auction-engine/internal/infrastructure/leader"
	"auction-engine/internal/infrastructure/redis"
	"auction-engine/internal/notify"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}

	log := bootstrap.NewLogger(cfg.Log).With("service", "auction-service", "instance_id", cfg.Instance.ID)
	log.Info("Starting auction service", "config", cfg.GetConfigString())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := bootstrap.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}
	defer rdb.Close()
	log.Info("Connected to Redis", "address", cfg.Redis.Address)

	backend, err := bootstrap.OpenBackend(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to open storage", "driver", cfg.Storage.Driver, "error", err)
	}
	defer backend.Close()

	dispatcher := notify.NewDispatcher(
		redis.NewEventPublisher(rdb, cfg.Redis.Channel),
		cfg.Notifier.QueueSize,
		log,
	)

	engine, err := bootstrap.NewEngine(cfg, backend, dispatcher, clock.Real(), log)
	if err != nil {
		log.Fatal("Failed to build engine", "error", err)
	}

	leaderElection := leader.NewRedisLeaderElection(rdb, cfg.Leader.Key, cfg.Leader.TTL, log)
	scheduler := services.NewFinalizerScheduler(
		engine.Finalizer,
		leaderElection,
		cfg.Instance.ID,
		cfg.Auction.FinalizerInterval,
		log,
	)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handlers.NewHTTPErrorHandler(log)

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: `{"time":"${time_rfc3339}","id":"${id}","remote_ip":"${remote_ip}","method":"${method}","uri":"${uri}","status":${status},"error":"${error}","latency_human":"${latency_human}","bytes_in":${bytes_in},"bytes_out":${bytes_out}}` + "\n",
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			handlers.HeaderUserID,
			handlers.HeaderUserRoles,
		},
		MaxAge: 86400,
	}))

	handlers.NewAuctionHandler(engine.Auctions, engine.Bids, log).Register(e.Group("/api/v1"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"service":     "auction-service",
			"instance_id": cfg.Instance.ID,
			"storage":     cfg.Storage.Driver,
			"finalizer":   scheduler.Running(),
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
		})
	})

	if err := scheduler.Start(context.Background()); err != nil {
		log.Fatal("Failed to start finalizer scheduler", "error", err)
	}

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("Starting HTTP server", "address", serverAddr)

	go func() {
		if err := e.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down auction service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := scheduler.Stop(); err != nil {
		log.Error("Failed to stop finalizer scheduler", "error", err)
	}
	if err := leaderElection.ReleaseLeadership(shutdownCtx, cfg.Instance.ID); err != nil {
		log.Error("Failed to release leadership", "error", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Error("Notifications dropped on shutdown", "error", err)
	}

	log.Info("Auction service stopped")
}
