package domain

import (
	"strings"
	"time"
)

// ResolveStatus maps a stored status and the auction window to the status
// observed at now. PENDING_REVIEW, COMPLETED and CANCELLED are never
// derived from time.
func ResolveStatus(stored AuctionStatus, startTime, endTime, now time.Time) AuctionStatus {
	switch stored {
	case AuctionPendingReview, AuctionCompleted, AuctionCancelled:
		return stored
	}

	if !endTime.After(now) {
		return AuctionCompleted
	}
	if startTime.After(now) {
		return AuctionScheduled
	}
	return AuctionActive
}

// ParseStatus accepts any known status case-insensitively. "pending" is
// accepted as a synonym of "pending_review".
func ParseStatus(raw string) (AuctionStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	switch normalized {
	case "pending", "pending_review":
		return AuctionPendingReview, nil
	case string(AuctionScheduled), string(AuctionActive), string(AuctionCompleted), string(AuctionCancelled):
		return AuctionStatus(normalized), nil
	}
	return "", NewInvalidArgumentError("unknown auction status %q", raw)
}
