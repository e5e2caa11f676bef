package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"auction-engine/internal/domain"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
)

const (
	maxMessageSize = 4096
	bidTimeout     = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin checks belong to the gateway
	},
}

type AuctionReader interface {
	GetAuction(ctx context.Context, auctionID int64, includePending bool) (*services.AuctionView, error)
}

type BidPlacer interface {
	PlaceBid(ctx context.Context, auctionID, bidderID int64, amount decimal.Decimal) (*services.PlaceBidResult, error)
}

// clientMessage is a frame sent by a client. Amount accepts a JSON string
// or number.
type clientMessage struct {
	Type   string           `json:"type"`
	Amount *decimal.Decimal `json:"amount"`
}

type errorMessage struct {
	Type    string            `json:"type"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type bidAcceptedMessage struct {
	Type string                   `json:"type"`
	Data *services.PlaceBidResult `json:"data"`
}

type WebSocketHandler struct {
	auctions    AuctionReader
	bids        BidPlacer
	connManager *ConnectionManager
	log         logger.Logger
}

func NewWebSocketHandler(auctions AuctionReader, bids BidPlacer, connManager *ConnectionManager, log logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		auctions:    auctions,
		bids:        bids,
		connManager: connManager,
		log:         log,
	}
}

// HandleConnection serves GET /ws/auction/{auctionID}?user_id=. It blocks
// until the client disconnects or the auction closes.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	auctionID, err := strconv.ParseInt(mux.Vars(r)["auctionID"], 10, 64)
	if err != nil || auctionID <= 0 {
		http.Error(w, "invalid auction id", http.StatusBadRequest)
		return
	}

	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	auction, err := h.auctions.GetAuction(r.Context(), auctionID, false)
	if err != nil {
		if domain.IsKind(err, domain.KindNotFound) {
			http.Error(w, "auction not found", http.StatusNotFound)
			return
		}
		h.log.Error("Failed to load auction", "auction_id", auctionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	status := domain.AuctionStatus(auction.Status)
	if status.IsTerminal() {
		h.log.Info("Rejected connection, auction has ended", "auction_id", auctionID, "status", status)
		http.Error(w, "auction has already ended", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	wsConn := NewConnection(conn, userID, auctionID)
	if err := h.connManager.RegisterConnection(userID, auctionID, wsConn); err != nil {
		h.log.Error("Failed to register connection", "error", err)
		wsConn.Close()
		return
	}

	h.handleMessages(r.Context(), wsConn)
}

func (h *WebSocketHandler) handleMessages(ctx context.Context, conn *Connection) {
	defer func() {
		h.connManager.unregisterIfCurrent(conn)
		conn.Close()
	}()

	conn.conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("Connection closed unexpectedly", "user_id", conn.UserID(), "auction_id", conn.AuctionID(), "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			conn.Send(errorMessage{Type: "error", Code: string(domain.KindInvalidArgument), Message: "malformed message"})
			continue
		}

		switch msg.Type {
		case "place_bid":
			h.handleBidMessage(ctx, conn, msg)
		case "ping":
			conn.Send(map[string]string{"type": "pong"})
		default:
			conn.Send(errorMessage{Type: "error", Code: string(domain.KindInvalidArgument), Message: "unknown message type"})
		}
	}
}

func (h *WebSocketHandler) handleBidMessage(ctx context.Context, conn *Connection, msg clientMessage) {
	if msg.Amount == nil {
		conn.Send(errorMessage{Type: "error", Code: string(domain.KindInvalidArgument), Message: "amount is required"})
		return
	}

	bidCtx, cancel := context.WithTimeout(ctx, bidTimeout)
	defer cancel()

	result, err := h.bids.PlaceBid(bidCtx, conn.AuctionID(), conn.UserID(), *msg.Amount)
	if err != nil {
		derr := domain.AsError(err)
		conn.Send(errorMessage{
			Type:    "error",
			Code:    string(derr.Kind),
			Message: derr.Message,
			Details: derr.Details,
		})
		return
	}

	conn.Send(bidAcceptedMessage{Type: "bid_accepted", Data: result})
}
