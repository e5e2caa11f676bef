package services

import (
	"context"
	"fmt"
	"time"

	"auction-engine/internal/domain"
	"auction-engine/pkg/logger"
)

// publish hands an event to the notifier. Delivery problems are logged and
// never reach the caller.
func publish(ctx context.Context, notifier domain.Notifier, log logger.Logger, event domain.EventType, payload interface{}) {
	if notifier == nil {
		return
	}
	if err := notifier.Notify(ctx, event, payload); err != nil {
		log.Error("Failed to publish event", "event", event, "error", err)
	}
}

func notifyUser(ctx context.Context, notifier domain.Notifier, log logger.Logger, userID, auctionID int64,
	kind domain.NotificationKind, message string, at time.Time) {
	publish(ctx, notifier, log, domain.EventUserNotification, &domain.UserNotificationPayload{
		UserID:    userID,
		AuctionID: auctionID,
		Kind:      kind,
		Message:   message,
		Timestamp: at,
	})
}

// announceClosed broadcasts the closing of an auction and tells the winner
// and the seller how it ended.
func announceClosed(ctx context.Context, notifier domain.Notifier, log logger.Logger, auction *domain.Auction, winner *domain.Bid) {
	closedAt := auction.UpdatedAt

	publish(ctx, notifier, log, domain.EventAuctionClosed, &domain.AuctionClosedPayload{
		AuctionID:  auction.ID,
		ProductID:  auction.ProductID,
		SellerID:   auction.SellerID,
		FinalPrice: auction.CurrentPrice,
		WinningBid: winner,
		ClosedAt:   closedAt,
	})

	if winner == nil {
		notifyUser(ctx, notifier, log, auction.SellerID, auction.ID, domain.NotificationAuctionNoBids,
			fmt.Sprintf("Auction #%d ended with no bids", auction.ID), closedAt)
		return
	}

	notifyUser(ctx, notifier, log, winner.BidderID, auction.ID, domain.NotificationAuctionWon,
		fmt.Sprintf("You won auction #%d with a bid of %s", auction.ID, winner.Amount.StringFixed(2)), closedAt)
	notifyUser(ctx, notifier, log, auction.SellerID, auction.ID, domain.NotificationAuctionSold,
		fmt.Sprintf("Auction #%d ended, winner selected", auction.ID), closedAt)
}
