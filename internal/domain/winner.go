package domain

// ResolveWinner picks the best bid of a ledger: highest amount, then the
// earliest created_at among equal amounts. Equal amount and time fall back
// to the lower id, so the result never depends on slice order.
func ResolveWinner(bids []*Bid) *Bid {
	var best *Bid
	for _, candidate := range bids {
		if candidate == nil {
			continue
		}
		if best == nil || outranks(candidate, best) {
			best = candidate
		}
	}
	return best
}

func outranks(candidate, best *Bid) bool {
	switch cmp := candidate.Amount.Cmp(best.Amount); {
	case cmp > 0:
		return true
	case cmp < 0:
		return false
	}

	if !candidate.CreatedAt.Equal(best.CreatedAt) {
		return candidate.CreatedAt.Before(best.CreatedAt)
	}
	return candidate.ID < best.ID
}
