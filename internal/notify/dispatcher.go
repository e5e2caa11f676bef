// Package notify decouples the engine from event delivery. The engine calls
// Notify synchronously; the Dispatcher queues the event and a single worker
// hands it to the downstream notifier. Notify never blocks.
package notify

import (
	"context"
	"errors"
	"sync"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

var (
	ErrQueueFull = errors.New("notification queue full")
	ErrClosed    = errors.New("dispatcher closed")
)

type message struct {
	event   domain.EventType
	payload interface{}
}

type Dispatcher struct {
	next  domain.Notifier
	queue chan message
	log   logger.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(next domain.Notifier, queueSize int, log logger.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	d := &Dispatcher{
		next:  next,
		queue: make(chan message, queueSize),
		log:   log,
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues the event without blocking. The caller's context only
// scopes the enqueue; delivery uses its own context.
func (d *Dispatcher) Notify(ctx context.Context, event domain.EventType, payload interface{}) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- message{event: event, payload: payload}:
		return nil
	default:
		d.log.Warn("Dropping notification, queue full", "event", event)
		return ErrQueueFull
	}
}

// Close stops accepting events and waits until queued ones are delivered
// or ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for msg := range d.queue {
		if err := d.next.Notify(context.Background(), msg.event, msg.payload); err != nil {
			d.log.Error("Failed to deliver notification", "event", msg.event, "error", err)
		}
	}
}
