package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

type collector struct {
	mu     sync.Mutex
	events []domain.EventType
	gate   chan struct{}
	err    error
}

func (c *collector) Notify(ctx context.Context, event domain.EventType, payload interface{}) error {
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *collector) seen() []domain.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.EventType(nil), c.events...)
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	next := &collector{}
	d := NewDispatcher(next, 8, logger.NewNop())

	require.NoError(t, d.Notify(context.Background(), domain.EventAuctionUpdate, nil))
	require.NoError(t, d.Notify(context.Background(), domain.EventAuctionClosed, nil))
	require.NoError(t, d.Notify(context.Background(), domain.EventUserNotification, nil))

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []domain.EventType{
		domain.EventAuctionUpdate,
		domain.EventAuctionClosed,
		domain.EventUserNotification,
	}, next.seen())
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	next := &collector{gate: make(chan struct{})}
	d := NewDispatcher(next, 1, logger.NewNop())

	// first event is taken by the worker, which then blocks on the gate
	require.NoError(t, d.Notify(context.Background(), domain.EventAuctionUpdate, nil))
	require.Eventually(t, func() bool { return len(d.queue) == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, d.Notify(context.Background(), domain.EventAuctionUpdate, nil))
	assert.ErrorIs(t, d.Notify(context.Background(), domain.EventAuctionUpdate, nil), ErrQueueFull)

	close(next.gate)
	require.NoError(t, d.Close(context.Background()))
	assert.Len(t, next.seen(), 2)
}

func TestDispatcher_DownstreamErrorsAreSwallowed(t *testing.T) {
	next := &collector{err: errors.New("bus down")}
	d := NewDispatcher(next, 4, logger.NewNop())

	require.NoError(t, d.Notify(context.Background(), domain.EventAuctionClosed, nil))
	require.NoError(t, d.Close(context.Background()))
	assert.Len(t, next.seen(), 1)
}

func TestDispatcher_RejectsAfterClose(t *testing.T) {
	d := NewDispatcher(&collector{}, 4, logger.NewNop())
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	assert.ErrorIs(t, d.Notify(context.Background(), domain.EventAuctionUpdate, nil), ErrClosed)
}

func TestDispatcher_CloseHonorsContext(t *testing.T) {
	next := &collector{gate: make(chan struct{})}
	d := NewDispatcher(next, 4, logger.NewNop())
	require.NoError(t, d.Notify(context.Background(), domain.EventAuctionUpdate, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	close(next.gate)
}
