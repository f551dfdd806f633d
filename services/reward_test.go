package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/bottlecaps/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestStreakBonus(t *testing.T) {
	tests := []struct {
		streak int
		bonus  string
		reason string
	}{
		{0, "0", ""},
		{6, "0", ""},
		{7, "0.5", "7+ day streak"},
		{99, "0.5", "7+ day streak"},
		{100, "1", "100+ day streak"},
		{365, "1", "100+ day streak"},
	}
	for _, tt := range tests {
		bonus, reason := StreakBonus(tt.streak)
		assert.True(t, bonus.Equal(dec(tt.bonus)), "streak %d bonus %s", tt.streak, bonus)
		assert.Equal(t, tt.reason, reason)
	}
}

func TestStreakBonusIsMonotonic(t *testing.T) {
	prev := decimal.Zero
	for streak := 0; streak <= 150; streak++ {
		bonus, _ := StreakBonus(streak)
		assert.False(t, bonus.LessThan(prev), "bonus dropped at streak %d", streak)
		prev = bonus
	}
}

func TestCalculateReward_NoPromotion(t *testing.T) {
	r, err := CalculateReward(decimal.NewFromInt(1), 100, nil)
	require.NoError(t, err)
	assert.True(t, r.BonusAmount.Equal(dec("1")))
	assert.Equal(t, "100+ day streak", r.BonusReason)
	assert.True(t, r.Multiplier.Equal(dec("1")))
	assert.True(t, r.PromotionBonus.IsZero())
	assert.True(t, r.Total.Equal(dec("2")))
	assert.Empty(t, r.PromotionName)
}

func TestCalculateReward_PromotionsTakeMaximum(t *testing.T) {
	promos := []models.Promotion{
		{Name: "spring", Multiplier: dec("1.3")},
		{Name: "launch", Multiplier: dec("1.5")},
	}
	r, err := CalculateReward(decimal.NewFromInt(1), 1, promos)
	require.NoError(t, err)
	assert.True(t, r.Multiplier.Equal(dec("1.5")), "got %s", r.Multiplier)
	assert.Equal(t, "launch", r.PromotionName)
	assert.True(t, r.Total.Equal(dec("1.5")))
	assert.True(t, r.PromotionBonus.Equal(dec("0.5")))
}

func TestCalculateReward_MultiplierAppliesToBonus(t *testing.T) {
	promos := []models.Promotion{{Name: "double", Multiplier: dec("2")}}
	r, err := CalculateReward(decimal.NewFromInt(1), 7, promos)
	require.NoError(t, err)
	assert.True(t, r.Total.Equal(dec("3")))
	assert.True(t, r.PromotionBonus.Equal(dec("1.5")))
	assert.True(t, r.BaseAmount.Add(r.BonusAmount).Add(r.PromotionBonus).Equal(r.Total))
}

func TestCalculateReward_IgnoresWeakMultipliers(t *testing.T) {
	promos := []models.Promotion{{Name: "broken", Multiplier: dec("0.5")}}
	r, err := CalculateReward(decimal.NewFromInt(1), 1, promos)
	require.NoError(t, err)
	assert.True(t, r.Multiplier.Equal(dec("1")))
	assert.True(t, r.Total.Equal(dec("1")))
}

func TestCalculateReward_Validation(t *testing.T) {
	_, err := CalculateReward(decimal.NewFromInt(-1), 1, nil)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = CalculateReward(decimal.NewFromInt(1), -3, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStreakTiers_LowestFirst(t *testing.T) {
	tiers := StreakTiers()
	require.Len(t, tiers, 2)
	assert.Equal(t, 7, tiers[0].MinStreak)
	assert.Equal(t, 100, tiers[1].MinStreak)
	for _, tier := range tiers {
		bonus, reason := StreakBonus(tier.MinStreak)
		assert.True(t, bonus.Equal(tier.Bonus))
		assert.Equal(t, tier.Reason, reason)
	}
}
