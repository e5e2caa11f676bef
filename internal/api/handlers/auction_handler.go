package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"auction-engine/internal/domain"
	"auction-engine/internal/services"
	"auction-engine/pkg/logger"
)

type AuctionService interface {
	CreateAuction(ctx context.Context, in services.CreateAuctionInput) (*services.AuctionView, error)
	UpdateAuction(ctx context.Context, auctionID int64, in services.UpdateAuctionInput) (*services.AuctionView, error)
	ListAuctions(ctx context.Context, params services.ListAuctionsParams) ([]*services.AuctionView, error)
	GetAuction(ctx context.Context, auctionID int64, includePending bool) (*services.AuctionView, error)
	GetAuctionByProduct(ctx context.Context, productID int64, includePending bool) (*services.AuctionView, error)
	ListBids(ctx context.Context, auctionID int64, includePending bool) ([]services.BidView, error)
}

type BidService interface {
	PlaceBid(ctx context.Context, auctionID, bidderID int64, amount decimal.Decimal) (*services.PlaceBidResult, error)
}

type AuctionHandler struct {
	auctions AuctionService
	bids     BidService
	log      logger.Logger
}

func NewAuctionHandler(auctions AuctionService, bids BidService, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions: auctions,
		bids:     bids,
		log:      log,
	}
}

// Register mounts the REST routes on g, normally the /api/v1 group.
func (h *AuctionHandler) Register(g *echo.Group) {
	g.Use(ActorMiddleware())

	g.GET("/auctions", h.ListAuctions)
	g.POST("/auctions", h.CreateAuction, RequireUser)
	g.GET("/auctions/:id", h.GetAuction)
	g.PATCH("/auctions/:id", h.UpdateAuction, RequireAdmin)
	g.GET("/auctions/:id/bids", h.ListBids)
	g.POST("/auctions/:id/bids", h.PlaceBid, RequireUser)
	g.GET("/products/:id/auction", h.GetAuctionByProduct)
}

func (h *AuctionHandler) ListAuctions(c echo.Context) error {
	actor := ActorFrom(c)
	var params services.ListAuctionsParams

	if raw := c.QueryParam("status"); raw != "" {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			return err
		}
		params.Status = &status
	}

	var err error
	if params.SellerID, err = optionalID(c.QueryParam("seller_id"), "seller_id"); err != nil {
		return err
	}
	if params.ProductID, err = optionalID(c.QueryParam("product_id"), "product_id"); err != nil {
		return err
	}

	if raw := c.QueryParam("include_pending"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.NewInvalidArgumentError("include_pending must be a boolean")
		}
		params.IncludePending = include && actor.IsAdmin()
	}

	auctions, err := h.auctions.ListAuctions(c.Request().Context(), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, auctions)
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	auction, err := h.auctions.GetAuction(c.Request().Context(), id, ActorFrom(c).IsAdmin())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, auction)
}

// GetAuctionByProduct answers 200 with null when the product never had a
// visible auction.
func (h *AuctionHandler) GetAuctionByProduct(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	auction, err := h.auctions.GetAuctionByProduct(c.Request().Context(), id, ActorFrom(c).IsAdmin())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, auction)
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	var req CreateAuctionRequest
	if err := c.Bind(&req); err != nil {
		return domain.NewInvalidArgumentError("invalid request body")
	}

	in, err := req.toInput(ActorFrom(c))
	if err != nil {
		return err
	}

	auction, err := h.auctions.CreateAuction(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, auction)
}

func (h *AuctionHandler) UpdateAuction(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req UpdateAuctionRequest
	if err := c.Bind(&req); err != nil {
		return domain.NewInvalidArgumentError("invalid request body")
	}

	auction, err := h.auctions.UpdateAuction(c.Request().Context(), id, req.toInput())
	if err != nil {
		return err
	}

	h.log.Info("Auction updated by admin", "auction_id", id, "admin_id", ActorFrom(c).UserID)
	return c.JSON(http.StatusOK, auction)
}

func (h *AuctionHandler) ListBids(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	bids, err := h.auctions.ListBids(c.Request().Context(), id, ActorFrom(c).IsAdmin())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bids)
}

func (h *AuctionHandler) PlaceBid(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	var req PlaceBidRequest
	if err := c.Bind(&req); err != nil {
		return domain.NewInvalidArgumentError("invalid request body")
	}
	if req.Amount == nil {
		return domain.NewInvalidArgumentError("amount is required")
	}

	result, err := h.bids.PlaceBid(c.Request().Context(), id, ActorFrom(c).UserID, *req.Amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewInvalidArgumentError("invalid id %q", c.Param("id"))
	}
	return id, nil
}

func optionalID(raw, name string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, domain.NewInvalidArgumentError("%s must be a positive integer", name)
	}
	return &id, nil
}
