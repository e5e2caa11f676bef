package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

type fakeConn struct {
	userID    int64
	auctionID int64
	failSend  bool

	mu     sync.Mutex
	sent   []interface{}
	closed bool
}

func newFakeConn(userID, auctionID int64) *fakeConn {
	return &fakeConn{userID: userID, auctionID: auctionID}
}

func (c *fakeConn) Send(message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend {
		return errors.New("broken pipe")
	}
	c.sent = append(c.sent, message)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) UserID() int64    { return c.userID }
func (c *fakeConn) AuctionID() int64 { return c.auctionID }

func (c *fakeConn) messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Message
	for _, m := range c.sent {
		if msg, ok := m.(Message); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestConnectionManager_RegisterAndLookup(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())

	a := newFakeConn(2, 7)
	b := newFakeConn(3, 7)
	c := newFakeConn(2, 8)
	require.NoError(t, cm.RegisterConnection(2, 7, a))
	require.NoError(t, cm.RegisterConnection(3, 7, b))
	require.NoError(t, cm.RegisterConnection(2, 8, c))

	assert.Len(t, cm.GetConnectionsForAuction(7), 2)
	assert.Len(t, cm.GetConnectionsForAuction(8), 1)
	assert.Len(t, cm.GetConnectionsForUser(2), 2)
	assert.Empty(t, cm.GetConnectionsForAuction(99))

	require.NoError(t, cm.UnregisterConnection(2, 7))
	assert.Len(t, cm.GetConnectionsForAuction(7), 1)
	assert.Equal(t, []domain.WebSocketConnection{c}, cm.GetConnectionsForUser(2))
}

func TestConnectionManager_ReRegisterReplacesSocket(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())

	first := newFakeConn(2, 7)
	second := newFakeConn(2, 7)
	require.NoError(t, cm.RegisterConnection(2, 7, first))
	require.NoError(t, cm.RegisterConnection(2, 7, second))

	assert.True(t, first.isClosed())
	assert.Equal(t, []domain.WebSocketConnection{second}, cm.GetConnectionsForAuction(7))
	assert.Equal(t, []domain.WebSocketConnection{second}, cm.GetConnectionsForUser(2))

	// the replaced socket's read loop exiting must not evict its successor
	cm.unregisterIfCurrent(first)
	assert.Len(t, cm.GetConnectionsForAuction(7), 1)

	cm.unregisterIfCurrent(second)
	assert.Empty(t, cm.GetConnectionsForAuction(7))
	assert.Empty(t, cm.GetConnectionsForUser(2))
}

func TestConnectionManager_BroadcastSurvivesFailedSend(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())

	broken := newFakeConn(2, 7)
	broken.failSend = true
	healthy := newFakeConn(3, 7)
	other := newFakeConn(4, 8)
	require.NoError(t, cm.RegisterConnection(2, 7, broken))
	require.NoError(t, cm.RegisterConnection(3, 7, healthy))
	require.NoError(t, cm.RegisterConnection(4, 8, other))

	require.NoError(t, cm.BroadcastToAuction(7, Message{Type: "auction:update"}))

	assert.Len(t, healthy.messages(), 1)
	assert.Empty(t, other.messages())
}

func TestConnectionManager_CloseAndUnregister(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())

	a := newFakeConn(2, 7)
	b := newFakeConn(2, 8)
	require.NoError(t, cm.RegisterConnection(2, 7, a))
	require.NoError(t, cm.RegisterConnection(2, 8, b))

	require.NoError(t, cm.CloseAndUnregisterConnections(7))
	require.NoError(t, cm.CloseAndUnregisterConnections(7))

	assert.True(t, a.isClosed())
	assert.False(t, b.isClosed())
	assert.Empty(t, cm.GetConnectionsForAuction(7))
	assert.Equal(t, []domain.WebSocketConnection{b}, cm.GetConnectionsForUser(2))
}

func TestWebSocketNotifier_Routing(t *testing.T) {
	cm := NewConnectionManager(logger.NewNop())
	n := NewWebSocketNotifier(cm, logger.NewNop())

	alice := newFakeConn(2, 7)
	bob := newFakeConn(3, 7)
	elsewhere := newFakeConn(4, 8)
	require.NoError(t, cm.RegisterConnection(2, 7, alice))
	require.NoError(t, cm.RegisterConnection(3, 7, bob))
	require.NoError(t, cm.RegisterConnection(4, 8, elsewhere))

	payload := json.RawMessage(`{"auction_id":7,"current_price":"130"}`)
	require.NoError(t, n.HandleEnvelope(&domain.EventEnvelope{
		ID: "e1", Event: domain.EventAuctionUpdate, AuctionID: 7, Payload: payload,
	}))
	require.Len(t, alice.messages(), 1)
	assert.Equal(t, "auction:update", alice.messages()[0].Type)
	assert.JSONEq(t, string(payload), string(alice.messages()[0].Data))
	assert.Len(t, bob.messages(), 1)
	assert.Empty(t, elsewhere.messages())

	require.NoError(t, n.HandleEnvelope(&domain.EventEnvelope{
		ID: "e2", Event: domain.EventUserNotification, UserID: 3, AuctionID: 7, Payload: json.RawMessage(`{}`),
	}))
	assert.Len(t, alice.messages(), 1)
	assert.Len(t, bob.messages(), 2)

	require.NoError(t, n.HandleEnvelope(&domain.EventEnvelope{
		ID: "e3", Event: domain.EventAuctionClosed, AuctionID: 7, Payload: json.RawMessage(`{}`),
	}))
	assert.Equal(t, "auction:closed", alice.messages()[1].Type)
	assert.True(t, alice.isClosed())
	assert.True(t, bob.isClosed())
	assert.False(t, elsewhere.isClosed())
	assert.Empty(t, cm.GetConnectionsForAuction(7))
}

func TestWebSocketNotifier_RejectsUnroutable(t *testing.T) {
	n := NewWebSocketNotifier(NewConnectionManager(logger.NewNop()), logger.NewNop())

	assert.Error(t, n.HandleEnvelope(&domain.EventEnvelope{Event: domain.EventAuctionUpdate}))
	assert.Error(t, n.HandleEnvelope(&domain.EventEnvelope{Event: domain.EventUserNotification}))
	assert.NoError(t, n.HandleEnvelope(&domain.EventEnvelope{Event: "auction:unknown"}))
}
