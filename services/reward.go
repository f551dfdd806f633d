package services

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cppla/bottlecaps/models"
)

// Reward is the full breakdown of one claim payout.
type Reward struct {
	BaseAmount     decimal.Decimal `json:"base_amount"`
	BonusAmount    decimal.Decimal `json:"bonus_amount"`
	BonusReason    string          `json:"bonus_reason,omitempty"`
	Multiplier     decimal.Decimal `json:"multiplier"`
	PromotionName  string          `json:"promotion_name,omitempty"`
	PromotionBonus decimal.Decimal `json:"promotion_bonus"`
	Total          decimal.Decimal `json:"total"`
}

type streakTier struct {
	minStreak int
	bonus     decimal.Decimal
	reason    string
}

// Highest tier first; the first match wins.
var streakTiers = []streakTier{
	{minStreak: 100, bonus: decimal.NewFromInt(1), reason: "100+ day streak"},
	{minStreak: 7, bonus: decimal.RequireFromString("0.5"), reason: "7+ day streak"},
}

// StreakTier describes one streak bonus level for clients.
type StreakTier struct {
	MinStreak int             `json:"min_streak"`
	Bonus     decimal.Decimal `json:"bonus"`
	Reason    string          `json:"reason"`
}

// StreakTiers lists the bonus levels, lowest first.
func StreakTiers() []StreakTier {
	out := make([]StreakTier, 0, len(streakTiers))
	for i := len(streakTiers) - 1; i >= 0; i-- {
		t := streakTiers[i]
		out = append(out, StreakTier{MinStreak: t.minStreak, Bonus: t.bonus, Reason: t.reason})
	}
	return out
}

// StreakBonus returns the bonus and its reason for a streak length.
func StreakBonus(streak int) (decimal.Decimal, string) {
	for _, tier := range streakTiers {
		if streak >= tier.minStreak {
			return tier.bonus, tier.reason
		}
	}
	return decimal.Zero, ""
}

// PromotionMultiplier picks the strongest promotion. Multipliers never stack:
// the result is the maximum, floored at 1.
func PromotionMultiplier(promos []models.Promotion) (decimal.Decimal, string) {
	best, name := decimal.NewFromInt(1), ""
	for _, p := range promos {
		if p.Multiplier.GreaterThan(best) {
			best, name = p.Multiplier, p.Name
		}
	}
	return best, name
}

// CalculateReward computes the payout for a claim that leaves the user at
// streak, under the given active promotions.
func CalculateReward(base decimal.Decimal, streak int, promos []models.Promotion) (Reward, error) {
	if base.IsNegative() {
		return Reward{}, fmt.Errorf("%w: negative base amount %s", ErrValidation, base)
	}
	if streak < 0 {
		return Reward{}, fmt.Errorf("%w: negative streak %d", ErrValidation, streak)
	}

	bonus, reason := StreakBonus(streak)
	multiplier, promoName := PromotionMultiplier(promos)
	subtotal := base.Add(bonus)
	total := subtotal.Mul(multiplier)

	return Reward{
		BaseAmount:     base,
		BonusAmount:    bonus,
		BonusReason:    reason,
		Multiplier:     multiplier,
		PromotionName:  promoName,
		PromotionBonus: total.Sub(subtotal),
		Total:          total,
	}, nil
}
