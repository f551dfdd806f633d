package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cppla/bottlecaps/models"
	"github.com/cppla/bottlecaps/store"
)

// MaxAnalyticsDays bounds the claims-per-day window.
const MaxAnalyticsDays = 365

// DailyCount is the number of claims made on one UTC day.
type DailyCount struct {
	Day    string          `json:"day"`
	Claims int             `json:"claims"`
	Earned decimal.Decimal `json:"earned"`
}

// UserAnalytics summarises a user's claim history.
type UserAnalytics struct {
	TotalClaims    int64           `json:"total_claims"`
	TotalEarned    decimal.Decimal `json:"total_earned"`
	StreakBonuses  decimal.Decimal `json:"streak_bonuses"`
	PromoBonuses   decimal.Decimal `json:"promotion_bonuses"`
	GrantedBonuses decimal.Decimal `json:"granted_bonuses"`
	CurrentStreak  int             `json:"current_streak"`
	LongestStreak  int             `json:"longest_streak"`
	Balance        decimal.Decimal `json:"balance"`
	FirstClaim     *time.Time      `json:"first_claim,omitempty"`
	ClaimsPerDay   []DailyCount    `json:"claims_per_day"`
	WindowDays     int             `json:"window_days"`
}

// BuildUserAnalytics folds a complete claim history into UserAnalytics. The
// per-day series covers the last days UTC days ending at now, zero-filled.
func BuildUserAnalytics(user *models.User, claims []models.Claim, grants decimal.Decimal, now time.Time, days int) UserAnalytics {
	if days <= 0 {
		days = 30
	}
	if days > MaxAnalyticsDays {
		days = MaxAnalyticsDays
	}
	out := UserAnalytics{
		TotalClaims:    user.TotalClaims,
		TotalEarned:    decimal.Zero,
		StreakBonuses:  decimal.Zero,
		PromoBonuses:   decimal.Zero,
		GrantedBonuses: grants,
		CurrentStreak:  EffectiveStreak(user.Streak, user.LastClaim, now),
		Balance:        user.Balance,
		WindowDays:     days,
	}

	today := UTCDay(now)
	start := today.AddDate(0, 0, -(days - 1))
	buckets := make(map[time.Time]*DailyCount, days)
	out.ClaimsPerDay = make([]DailyCount, days)
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i)
		out.ClaimsPerDay[i] = DailyCount{Day: d.Format("2006-01-02"), Earned: decimal.Zero}
		buckets[d] = &out.ClaimsPerDay[i]
	}

	times := make([]time.Time, 0, len(claims))
	for _, c := range claims {
		times = append(times, c.ClaimedAt)
		out.TotalEarned = out.TotalEarned.Add(c.Total)
		out.StreakBonuses = out.StreakBonuses.Add(c.BonusAmount)
		out.PromoBonuses = out.PromoBonuses.Add(c.PromotionBonus)
		if out.FirstClaim == nil || c.ClaimedAt.Before(*out.FirstClaim) {
			t := c.ClaimedAt
			out.FirstClaim = &t
		}
		if b, ok := buckets[UTCDay(c.ClaimedAt)]; ok {
			b.Claims++
			b.Earned = b.Earned.Add(c.Total)
		}
	}
	out.LongestStreak = max(LongestStreak(times), out.CurrentStreak)
	return out
}

// AnalyticsService reads claim history for the analytics endpoints.
type AnalyticsService struct {
	store store.Store
	now   func() time.Time
}

// NewAnalyticsService builds an AnalyticsService.
func NewAnalyticsService(st store.Store) *AnalyticsService {
	return &AnalyticsService{store: st, now: time.Now}
}

// WithClock replaces the time source.
func (a *AnalyticsService) WithClock(now func() time.Time) *AnalyticsService {
	a.now = now
	return a
}

// ForUser returns the analytics of userID over the last days days.
func (a *AnalyticsService) ForUser(ctx context.Context, userID string, days int) (*UserAnalytics, error) {
	user, err := a.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	claims, err := a.allClaims(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	grants, err := a.store.SumBonusGrants(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	out := BuildUserAnalytics(user, claims, grants, a.now().UTC(), days)
	return &out, nil
}

func (a *AnalyticsService) allClaims(ctx context.Context, userID string) ([]models.Claim, error) {
	const pageSize = 100
	var all []models.Claim
	for page := 1; ; page++ {
		batch, total, err := a.store.ListClaims(ctx, userID, time.Time{}, store.Page{Page: page, PageSize: pageSize})
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < pageSize || int64(len(all)) >= total {
			return all, nil
		}
	}
}
