package websocket

import (
	"sync"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

var _ domain.ConnectionManager = (*ConnectionManager)(nil)

// ConnectionManager indexes live sockets by auction and by user. A user has
// at most one socket per auction; registering again replaces the old one.
type ConnectionManager struct {
	connections map[int64]map[int64]domain.WebSocketConnection // auctionID -> userID -> connection
	userConns   map[int64][]domain.WebSocketConnection         // userID -> connections
	mutex       sync.RWMutex
	log         logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[int64]map[int64]domain.WebSocketConnection),
		userConns:   make(map[int64][]domain.WebSocketConnection),
		log:         log,
	}
}

func (cm *ConnectionManager) RegisterConnection(userID, auctionID int64, conn domain.WebSocketConnection) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.connections[auctionID] == nil {
		cm.connections[auctionID] = make(map[int64]domain.WebSocketConnection)
	}
	if previous, exists := cm.connections[auctionID][userID]; exists {
		cm.dropUserConn(userID, auctionID)
		if err := previous.Close(); err != nil {
			cm.log.Debug("Failed to close replaced connection", "user_id", userID, "auction_id", auctionID, "error", err)
		}
	}
	cm.connections[auctionID][userID] = conn
	cm.userConns[userID] = append(cm.userConns[userID], conn)

	cm.log.Info("Connection registered", "user_id", userID, "auction_id", auctionID)
	return nil
}

func (cm *ConnectionManager) UnregisterConnection(userID, auctionID int64) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if auctionConns, exists := cm.connections[auctionID]; exists {
		delete(auctionConns, userID)
		if len(auctionConns) == 0 {
			delete(cm.connections, auctionID)
		}
	}
	cm.dropUserConn(userID, auctionID)

	cm.log.Info("Connection unregistered", "user_id", userID, "auction_id", auctionID)
	return nil
}

// unregisterIfCurrent removes conn only if it is still the registered
// socket, so a replaced socket's read loop cannot evict its successor.
func (cm *ConnectionManager) unregisterIfCurrent(conn domain.WebSocketConnection) {
	cm.mutex.RLock()
	current := cm.connections[conn.AuctionID()][conn.UserID()]
	cm.mutex.RUnlock()

	if current == conn {
		cm.UnregisterConnection(conn.UserID(), conn.AuctionID())
	}
}

func (cm *ConnectionManager) CloseAndUnregisterConnections(auctionID int64) error {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	auctionConns, exists := cm.connections[auctionID]
	if !exists {
		return nil
	}

	for userID, conn := range auctionConns {
		if err := conn.Close(); err != nil {
			cm.log.Error("Failed to close connection", "user_id", userID, "auction_id", auctionID, "error", err)
		}
		cm.dropUserConn(userID, auctionID)
	}
	delete(cm.connections, auctionID)

	cm.log.Info("Connections closed for auction", "auction_id", auctionID, "count", len(auctionConns))
	return nil
}

// dropUserConn must be called with the write lock held.
func (cm *ConnectionManager) dropUserConn(userID, auctionID int64) {
	userConnections, exists := cm.userConns[userID]
	if !exists {
		return
	}

	var remaining []domain.WebSocketConnection
	for _, existing := range userConnections {
		if existing.AuctionID() != auctionID {
			remaining = append(remaining, existing)
		}
	}

	if len(remaining) == 0 {
		delete(cm.userConns, userID)
	} else {
		cm.userConns[userID] = remaining
	}
}

func (cm *ConnectionManager) GetConnectionsForAuction(auctionID int64) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	var connections []domain.WebSocketConnection
	for _, conn := range cm.connections[auctionID] {
		connections = append(connections, conn)
	}
	return connections
}

func (cm *ConnectionManager) GetConnectionsForUser(userID int64) []domain.WebSocketConnection {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	connections := cm.userConns[userID]
	out := make([]domain.WebSocketConnection, len(connections))
	copy(out, connections)
	return out
}

// BroadcastToAuction sends to every watcher of the auction. A failed send
// is logged and does not stop the fan-out.
func (cm *ConnectionManager) BroadcastToAuction(auctionID int64, message interface{}) error {
	connections := cm.GetConnectionsForAuction(auctionID)
	cm.log.Debug("Broadcasting to auction", "auction_id", auctionID, "connections", len(connections))

	for _, conn := range connections {
		if err := conn.Send(message); err != nil {
			cm.log.Error("Failed to send message", "user_id", conn.UserID(), "auction_id", auctionID, "error", err)
		}
	}
	return nil
}

func (cm *ConnectionManager) NotifyUser(userID int64, message interface{}) error {
	for _, conn := range cm.GetConnectionsForUser(userID) {
		if err := conn.Send(message); err != nil {
			cm.log.Error("Failed to send message", "user_id", userID, "auction_id", conn.AuctionID(), "error", err)
		}
	}
	return nil
}
