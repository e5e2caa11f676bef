package services

import (
	"fmt"
	"strings"

	"auction-engine/internal/domain"
)

// TransitionPolicy decides which administrative status changes are legal.
type TransitionPolicy interface {
	Name() string
	Allow(from, to domain.AuctionStatus) bool
}

const (
	PolicyPermissive = "permissive"
	PolicyStrict     = "strict"
)

// PermissivePolicy lets admins move an auction to any status. Time checks
// still apply.
type PermissivePolicy struct{}

func (PermissivePolicy) Name() string { return PolicyPermissive }

func (PermissivePolicy) Allow(from, to domain.AuctionStatus) bool { return true }

// StrictPolicy only allows forward moves through the lifecycle. Terminal
// states are frozen.
type StrictPolicy struct{}

var strictTransitions = map[domain.AuctionStatus][]domain.AuctionStatus{
	domain.AuctionPendingReview: {domain.AuctionScheduled, domain.AuctionActive, domain.AuctionCancelled},
	domain.AuctionScheduled:     {domain.AuctionActive, domain.AuctionCompleted, domain.AuctionCancelled},
	domain.AuctionActive:        {domain.AuctionCompleted, domain.AuctionCancelled},
}

func (StrictPolicy) Name() string { return PolicyStrict }

func (StrictPolicy) Allow(from, to domain.AuctionStatus) bool {
	if from == to {
		return !from.IsTerminal()
	}
	for _, allowed := range strictTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func ParseTransitionPolicy(name string) (TransitionPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyPermissive:
		return PermissivePolicy{}, nil
	case PolicyStrict:
		return StrictPolicy{}, nil
	}
	return nil, fmt.Errorf("unknown transition policy %q", name)
}
