package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/bottlecaps/models"
)

func newUser(t *testing.T, s *MemoryStore, name string) *models.User {
	t.Helper()
	u := &models.User{Username: name, ReferralCode: "code-" + name}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func TestMemoryStore_CreateAndGetUser(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	u := newUser(t, s, "alice")
	require.NotEmpty(t, u.ID)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	byName, err := s.GetUserByUsername(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)

	byCode, err := s.GetUserByReferralCode(ctx, "code-alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byCode.ID)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.CreateUser(ctx, &models.User{Username: "Alice"})
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	u := newUser(t, s, "bob")

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	got.Streak = 42

	again, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Streak)
}

func TestMemoryStore_ConditionalUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	u := newUser(t, s, "carol")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	streak := 1

	err := s.UpdateUser(ctx, u.ID, UserUpdate{
		Streak:         &streak,
		LastClaim:      &now,
		AddTotalClaims: 1,
		AddBalance:     decimal.NewFromInt(1),
		CheckLastClaim: true,
	})
	require.NoError(t, err)

	// A writer that still expects "never claimed" lost the race.
	err = s.UpdateUser(ctx, u.ID, UserUpdate{AddTotalClaims: 1, CheckLastClaim: true})
	assert.ErrorIs(t, err, ErrConflict)

	later := now.Add(7 * time.Hour)
	err = s.UpdateUser(ctx, u.ID, UserUpdate{
		LastClaim:       &later,
		AddTotalClaims:  1,
		AddBalance:      decimal.RequireFromString("1.5"),
		CheckLastClaim:  true,
		ExpectLastClaim: &now,
	})
	require.NoError(t, err)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.TotalClaims)
	assert.True(t, got.Balance.Equal(decimal.RequireFromString("2.5")))
	require.NotNil(t, got.LastClaim)
	assert.True(t, got.LastClaim.Equal(later))

	assert.ErrorIs(t, s.UpdateUser(ctx, "missing", UserUpdate{}), ErrNotFound)
}

func TestMemoryStore_ConditionalRename(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	u := newUser(t, s, "quinn")
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Minute)

	name := "quinn2"
	require.NoError(t, s.UpdateUser(ctx, u.ID, UserUpdate{
		Username:               &name,
		UsernameChangedAt:      &first,
		CheckUsernameChangedAt: true,
	}))

	// Read before the first rename, so it still expects "never renamed".
	other := "quinn3"
	err := s.UpdateUser(ctx, u.ID, UserUpdate{
		Username:               &other,
		UsernameChangedAt:      &second,
		CheckUsernameChangedAt: true,
	})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "quinn2", got.Username)
	assert.True(t, got.UsernameChangedAt.Equal(first))

	require.NoError(t, s.UpdateUser(ctx, u.ID, UserUpdate{
		Username:                &other,
		UsernameChangedAt:       &second,
		CheckUsernameChangedAt:  true,
		ExpectUsernameChangedAt: &first,
	}))
}

func TestMemoryStore_WithinTxRollsBack(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	u := newUser(t, s, "dave")
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx Store) error {
		require.NoError(t, tx.UpdateUser(ctx, u.ID, UserUpdate{AddTotalClaims: 1, AddBalance: decimal.NewFromInt(3)}))
		require.NoError(t, tx.AppendClaim(ctx, &models.Claim{UserID: u.ID, Total: decimal.NewFromInt(3)}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.TotalClaims)
	assert.True(t, got.Balance.IsZero())

	claims, total, err := s.ListClaims(ctx, u.ID, time.Time{}, Page{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, claims)
}

func TestMemoryStore_WithinTxSerialisesWriters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	u := newUser(t, s, "erin")
	now := time.Now().UTC()

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.WithinTx(ctx, func(tx Store) error {
				return tx.UpdateUser(ctx, u.ID, UserUpdate{
					LastClaim:      &now,
					AddTotalClaims: 1,
					CheckLastClaim: true,
				})
			})
		}()
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, conflicts)
}

func TestMemoryStore_ClaimRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	claimedAt := time.Date(2026, 3, 8, 7, 15, 42, 123_000_000, time.UTC)
	in := &models.Claim{
		UserID:         "u1",
		Amount:         decimal.RequireFromString("2.5"),
		BonusAmount:    decimal.RequireFromString("0.25"),
		BonusReason:    "7+ day streak",
		Multiplier:     decimal.RequireFromString("1.5"),
		PromotionBonus: decimal.RequireFromString("1.375"),
		Total:          decimal.RequireFromString("4.125"),
		Streak:         9,
		ClaimedAt:      claimedAt,
	}
	require.NoError(t, s.AppendClaim(ctx, in))
	require.NotEmpty(t, in.ID)
	older := &models.Claim{UserID: "u1", Amount: decimal.NewFromInt(1), Total: decimal.NewFromInt(1), Streak: 8, ClaimedAt: claimedAt.Add(-24 * time.Hour)}
	require.NoError(t, s.AppendClaim(ctx, older))
	require.NoError(t, s.AppendClaim(ctx, &models.Claim{UserID: "u2", Total: decimal.NewFromInt(1), ClaimedAt: claimedAt}))

	claims, total, err := s.ListClaims(ctx, "u1", time.Time{}, Page{})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, claims, 2)
	assert.Equal(t, older.ID, claims[1].ID)

	got := claims[0]
	assert.Equal(t, in.ID, got.ID)
	assert.Equal(t, "u1", got.UserID)
	assert.True(t, got.Amount.Equal(in.Amount), "amount %s", got.Amount)
	assert.True(t, got.BonusAmount.Equal(in.BonusAmount), "bonus %s", got.BonusAmount)
	assert.Equal(t, "7+ day streak", got.BonusReason)
	assert.True(t, got.Multiplier.Equal(in.Multiplier), "multiplier %s", got.Multiplier)
	assert.True(t, got.PromotionBonus.Equal(in.PromotionBonus), "promotion bonus %s", got.PromotionBonus)
	assert.True(t, got.Total.Equal(in.Total), "total %s", got.Total)
	assert.Equal(t, 9, got.Streak)
	assert.True(t, got.ClaimedAt.Equal(claimedAt))

	recent, total, err := s.ListClaims(ctx, "u1", claimedAt, Page{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, recent, 1)
	assert.Equal(t, in.ID, recent[0].ID)

	assert.ErrorIs(t, s.AppendClaim(ctx, &models.Claim{ID: in.ID, UserID: "u1"}), ErrDuplicate)
}

func TestMemoryStore_ClaimLogsFilterAndOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := []models.ClaimLog{
		{UserID: "1", Username: "alice", Result: models.ClaimResultSuccess, Timestamp: base},
		{UserID: "1", Username: "alice", Result: models.ClaimResultAlreadyClaimed, Timestamp: base.Add(time.Hour)},
		{UserID: "2", Username: "bob", Result: models.ClaimResultSuccess, Timestamp: base.Add(2 * time.Hour)},
	}
	for i := range entries {
		require.NoError(t, s.AppendClaimLog(ctx, &entries[i]))
	}

	all, total, err := s.ListClaimLogs(ctx, ClaimLogFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, "bob", all[0].Username)

	logs, total, err := s.ListClaimLogs(ctx, ClaimLogFilter{Username: "alice", Result: models.ClaimResultSuccess})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, base, logs[0].Timestamp)
}

func TestMemoryStore_ActivePromotions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreatePromotion(ctx, &models.Promotion{Name: "live", Multiplier: decimal.RequireFromString("1.5"), StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour)}))
	require.NoError(t, s.CreatePromotion(ctx, &models.Promotion{Name: "edge", Multiplier: decimal.RequireFromString("1.3"), StartDate: now, EndDate: now}))
	require.NoError(t, s.CreatePromotion(ctx, &models.Promotion{Name: "future", Multiplier: decimal.NewFromInt(3), StartDate: now.Add(time.Hour), EndDate: now.Add(2 * time.Hour)}))

	active, err := s.ListActivePromotions(ctx, now)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "live", active[0].Name)
}

func TestMemoryStore_ReferralRewardedOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateReferral(ctx, &models.Referral{ReferrerID: "a", RefereeID: "b"}))
	assert.ErrorIs(t, s.CreateReferral(ctx, &models.Referral{ReferrerID: "c", RefereeID: "b"}), ErrDuplicate)

	now := time.Now()
	require.NoError(t, s.MarkReferralRewarded(ctx, "b", decimal.NewFromInt(5), now))
	assert.ErrorIs(t, s.MarkReferralRewarded(ctx, "b", decimal.NewFromInt(5), now), ErrConflict)
	assert.ErrorIs(t, s.MarkReferralRewarded(ctx, "zzz", decimal.NewFromInt(5), now), ErrNotFound)
}

func TestMemoryStore_ResetLapsedStreaks(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	fresh := newUser(t, s, "fresh")
	stale := newUser(t, s, "stale")

	for _, tc := range []struct {
		id   string
		last time.Time
	}{
		{fresh.ID, now.Add(-20 * time.Hour)},
		{stale.ID, now.Add(-72 * time.Hour)},
	} {
		last := tc.last
		streak := 4
		require.NoError(t, s.UpdateUser(ctx, tc.id, UserUpdate{Streak: &streak, LastClaim: &last}))
	}

	n, err := s.ResetLapsedStreaks(ctx, StartOfUTCDay(now).AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, _ := s.GetUser(ctx, stale.ID)
	assert.Equal(t, 0, got.Streak)
	got, _ = s.GetUser(ctx, fresh.ID)
	assert.Equal(t, 4, got.Streak)
}

func TestMemoryStore_StatsAndLeaderboard(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	a := newUser(t, s, "anna")
	b := newUser(t, s, "ben")
	admin := true
	require.NoError(t, s.UpdateUser(ctx, b.ID, UserUpdate{IsAdmin: &admin}))
	require.NoError(t, s.UpdateUser(ctx, a.ID, UserUpdate{AddTotalClaims: 2}))
	require.NoError(t, s.AppendClaim(ctx, &models.Claim{UserID: a.ID, Total: decimal.NewFromInt(1), ClaimedAt: now.Add(-30 * time.Hour)}))
	require.NoError(t, s.AppendClaim(ctx, &models.Claim{UserID: a.ID, Total: decimal.RequireFromString("1.5"), ClaimedAt: now.Add(-time.Hour)}))
	require.NoError(t, s.AppendBonusGrant(ctx, &models.BonusGrant{UserID: a.ID, Amount: decimal.NewFromInt(5)}))

	st, err := s.Stats(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.UserCount)
	assert.Equal(t, int64(2), st.ClaimCount)
	assert.Equal(t, int64(1), st.ClaimsToday)
	assert.True(t, st.TotalPaidOut.Equal(decimal.RequireFromString("7.5")))

	board, err := s.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "anna", board[0].Username)
}

func TestMemoryStore_Blacklist(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	e := &models.BlacklistEntry{Kind: models.BlacklistKindIP, Value: "10.0.0.1"}
	require.NoError(t, s.AddBlacklistEntry(ctx, e))
	assert.ErrorIs(t, s.AddBlacklistEntry(ctx, &models.BlacklistEntry{Kind: models.BlacklistKindIP, Value: "10.0.0.1"}), ErrDuplicate)

	hit, err := s.IsBlacklisted(ctx, models.BlacklistKindIP, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, hit)

	require.NoError(t, s.RemoveBlacklistEntry(ctx, e.ID))
	hit, err = s.IsBlacklisted(ctx, models.BlacklistKindIP, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.ErrorIs(t, s.RemoveBlacklistEntry(ctx, e.ID), ErrNotFound)
}
