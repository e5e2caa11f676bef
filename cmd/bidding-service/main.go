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

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"

	"auction-engine/internal/api/middleware"
	"auction-engine/internal/bootstrap"
	"auction-engine/internal/clock"
	"auction-engine/internal/config"
	"auction-engine/internal/domain"
	"auction-engine/internal/infrastructure/redis"
	"auction-engine/internal/infrastructure/websocket"
	"auction-engine/internal/notify"
	"auction-engine/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New().Fatal("Failed to load config", "error", err)
	}

	log := bootstrap.NewLogger(cfg.Log).With("service", "bidding-service", "instance_id", cfg.Instance.ID)
	log.Info("Starting bidding service", "config", cfg.GetConfigString())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rdb, err := bootstrap.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", "error", err)
	}
	defer rdb.Close()

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

	connManager := websocket.NewConnectionManager(log)
	wsNotifier := websocket.NewWebSocketNotifier(connManager, log)
	wsHandler := websocket.NewWebSocketHandler(engine.Auctions, engine.Bids, connManager, log)

	router := mux.NewRouter()
	router.Use(middleware.CORS(log))
	router.Use(middleware.RequestLogger(log))

	router.HandleFunc("/ws/auction/{auctionID:[0-9]+}", wsHandler.HandleConnection).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	listenCtx, stopListening := context.WithCancel(context.Background())
	subscriber := redis.NewEventSubscriber(rdb, cfg.Redis.Channel, log)
	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		listen(listenCtx, subscriber, wsNotifier.HandleEnvelope, log)
	}()

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.WSServer.Host, cfg.WSServer.Port),
		Handler: router,
	}

	go func() {
		log.Info("Starting websocket server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down bidding service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	stopListening()
	<-listenerDone

	// hijacked websocket connections are not tracked by Shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		log.Error("Notifications dropped on shutdown", "error", err)
	}

	log.Info("Bidding service stopped")
}

// listen keeps a bus subscription alive until ctx is cancelled,
// resubscribing with backoff after failures.
func listen(ctx context.Context, subscriber domain.EventSubscriber, handler domain.EventHandler, log logger.Logger) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0

	operation := func() error {
		err := subscriber.SubscribeToEvents(ctx, handler)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if err == nil {
			err = errors.New("subscription closed")
		}
		return err
	}

	onRetry := func(err error, wait time.Duration) {
		log.Warn("Event subscription lost, retrying", "error", err, "retry_in", wait)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), onRetry); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Event listener stopped", "error", err)
	}
}
