package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction-engine/internal/config"
	"auction-engine/internal/domain"
)

func TestNewAuctionRules(t *testing.T) {
	assert.Equal(t, DefaultAuctionRules(), NewAuctionRules(config.AuctionConfig{}))

	rules := NewAuctionRules(config.AuctionConfig{MinDuration: time.Hour, MaxDuration: 48 * time.Hour})
	assert.Equal(t, time.Hour, rules.MinDuration)
	assert.Equal(t, 48*time.Hour, rules.MaxDuration)
}

func TestValidateBidAmount(t *testing.T) {
	auction := &domain.Auction{CurrentPrice: money("99.99"), MinimumIncrement: money("0.01")}

	assert.NoError(t, ValidateBidAmount(auction, money("100.00")))
	assert.NoError(t, ValidateBidAmount(auction, money("100.5")))

	err := ValidateBidAmount(auction, money("99.98"))
	require.Error(t, err)
	assert.Equal(t, "100.00", domain.AsError(err).Details["min_accepted"])
	assert.Contains(t, err.Error(), "100.00")
}

func TestValidateBidAmount_RejectsSubCentAmounts(t *testing.T) {
	auction := &domain.Auction{CurrentPrice: money("99.99"), MinimumIncrement: money("0.01")}

	for _, amount := range []string{"100.001", "120.004", "99.999"} {
		err := ValidateBidAmount(auction, money(amount))
		require.Error(t, err, amount)
		assert.True(t, domain.IsKind(err, domain.KindInvalidArgument), amount)
		assert.Contains(t, err.Error(), "decimal places", amount)
	}

	assert.NoError(t, ValidateBidAmount(auction, money("100.000")), "trailing zeros fit the scale")
}

func TestValidateBidAmount_ReportsExactMinimum(t *testing.T) {
	auction := &domain.Auction{CurrentPrice: money("100"), MinimumIncrement: money("0.004")}

	err := ValidateBidAmount(auction, money("100.00"))
	require.Error(t, err)
	assert.Equal(t, "100.004", domain.AsError(err).Details["min_accepted"])
	assert.Contains(t, err.Error(), "100.004")
}

func TestValidateCreate_MoneyScale(t *testing.T) {
	rules := DefaultAuctionRules()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	valid := CreateAuctionInput{
		SellerID:         1,
		ProductID:        10,
		StartingPrice:    money("100.50"),
		MinimumIncrement: money("0.01"),
		StartTime:        now,
		EndTime:          now.Add(3 * time.Hour),
	}
	require.NoError(t, rules.ValidateCreate(valid, now))

	tests := []struct {
		name    string
		mutate  func(in *CreateAuctionInput)
		wantErr string
	}{
		{"sub-cent increment", func(in *CreateAuctionInput) { in.MinimumIncrement = money("0.004") }, "minimum increment"},
		{"sub-cent starting price", func(in *CreateAuctionInput) { in.StartingPrice = money("100.005") }, "starting price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			err := rules.ValidateCreate(in, now)
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.KindInvalidArgument))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTransitionPolicies(t *testing.T) {
	tests := []struct {
		from, to   domain.AuctionStatus
		permissive bool
		strict     bool
	}{
		{domain.AuctionPendingReview, domain.AuctionActive, true, true},
		{domain.AuctionPendingReview, domain.AuctionScheduled, true, true},
		{domain.AuctionScheduled, domain.AuctionActive, true, true},
		{domain.AuctionActive, domain.AuctionCompleted, true, true},
		{domain.AuctionActive, domain.AuctionActive, true, true},
		{domain.AuctionActive, domain.AuctionPendingReview, true, false},
		{domain.AuctionCompleted, domain.AuctionActive, true, false},
		{domain.AuctionCancelled, domain.AuctionCancelled, true, false},
		{domain.AuctionCancelled, domain.AuctionScheduled, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.permissive, PermissivePolicy{}.Allow(tt.from, tt.to))
			assert.Equal(t, tt.strict, StrictPolicy{}.Allow(tt.from, tt.to))
		})
	}
}

func TestParseTransitionPolicy(t *testing.T) {
	policy, err := ParseTransitionPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyPermissive, policy.Name())

	policy, err = ParseTransitionPolicy(" Strict ")
	require.NoError(t, err)
	assert.Equal(t, PolicyStrict, policy.Name())

	_, err = ParseTransitionPolicy("anything-goes")
	assert.Error(t, err)
}
