package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/bottlecaps/models"
	"github.com/cppla/bottlecaps/store"
)

var testNow = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

func newTestService(st store.Store) *ClaimService {
	return NewClaimService(st, ClaimConfig{
		Cooldown:      DefaultCooldown,
		BaseAmount:    decimal.NewFromInt(1),
		ReferralBonus: decimal.NewFromInt(5),
	}, nil).WithClock(func() time.Time { return testNow })
}

func seedUser(t *testing.T, st store.Store, u models.User) *models.User {
	t.Helper()
	require.NoError(t, st.CreateUser(context.Background(), &u))
	return &u
}

func ago(d time.Duration) *time.Time {
	t := testNow.Add(-d)
	return &t
}

func claimLogs(t *testing.T, st store.Store, result string) []models.ClaimLog {
	t.Helper()
	logs, _, err := st.ListClaimLogs(context.Background(), store.ClaimLogFilter{Result: result})
	require.NoError(t, err)
	return logs
}

func TestClaim_FirstClaimRoundTrip(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(st)
	u := seedUser(t, st, models.User{Username: "alice"})

	res, err := svc.Claim(context.Background(), ClaimRequest{UserID: u.ID, SourceIP: "203.0.113.7"})
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	assert.True(t, res.Reward.Total.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 1, res.User.Streak)

	stored, err := st.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.TotalClaims)
	assert.Equal(t, 1, stored.Streak)
	require.NotNil(t, stored.LastClaim)
	assert.True(t, stored.LastClaim.Equal(testNow))
	assert.True(t, stored.Balance.Equal(decimal.NewFromInt(1)))

	claims, total, err := st.ListClaims(context.Background(), u.ID, time.Time{}, store.Page{})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.True(t, claims[0].Total.Equal(decimal.NewFromInt(1)))

	logs := claimLogs(t, st, models.ClaimResultSuccess)
	require.Len(t, logs, 1)
	assert.Equal(t, "alice", logs[0].Username)
	assert.Equal(t, "203.0.113.7", logs[0].SourceIP)
}

func TestClaim_InsideCooldown(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(st)
	u := seedUser(t, st, models.User{Username: "bob", Streak: 2, TotalClaims: 2, LastClaim: ago(5 * time.Hour)})

	res, err := svc.Claim(context.Background(), ClaimRequest{UserID: u.ID})
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
	assert.Equal(t, EligibilityAlreadyClaimed, res.Outcome)
	assert.ErrorIs(t, res.Outcome.Err(), ErrNotEligible)
	assert.Equal(t, time.Hour, res.RetryAfter)

	stored, err := st.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.TotalClaims)
	assert.Len(t, claimLogs(t, st, models.ClaimResultAlreadyClaimed), 1)
}

func TestClaim_StreakReachesHundred(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(st)
	u := seedUser(t, st, models.User{Username: "carol", Streak: 99, TotalClaims: 99, LastClaim: ago(20 * time.Hour)})

	res, err := svc.Claim(context.Background(), ClaimRequest{UserID: u.ID})
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	assert.Equal(t, 100, res.Claim.Streak)
	assert.Equal(t, "100+ day streak", res.Reward.BonusReason)
	assert.True(t, res.Reward.Total.Equal(decimal.NewFromInt(2)), "total %s", res.Reward.Total)
}

func TestClaim_GapResetsStreak(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(st)
	u := seedUser(t, st, models.User{Username: "dave", Streak: 6, TotalClaims: 6, LastClaim: ago(72 * time.Hour)})

	res, err := svc.Claim(context.Background(), ClaimRequest{UserID: u.ID})
	require.NoError(t, err)
	require.True(t, res.Succeeded())
	assert.Equal(t, 1, res.User.Streak)
	assert.True(t, res.Reward.BonusAmount.IsZero())
}

func TestClaim_UsesStrongestPromotion(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(st)
	ctx := context.Background()
	for _, p := range []models.Promotion{
		{Name: "spring", Multiplier: decimal.RequireFromString("1.3")},
		{Name: "launch", Multiplier: decimal.RequireFromString("1.5")},
	} {
		p.StartDate = testNow.Add(-time.Hour)
		p.EndDate = testNow.Add(time.Hour)
		require.NoError(t, st.CreatePromotion(ctx, &p))
	}
	u := seedUser(t, st, models.User{Username: "erin"})

	res, err := svc.Claim(ctx, ClaimRequest{UserID: u.ID})
	require.NoError(t, err)
	assert.True(t, res.Reward.Multiplier.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, res.Claim.Total.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, "launch", res.Reward.PromotionName)
}

func TestClaim_AdminForbidden(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(st)
	u := seedUser(t, st, models.User{Username: "root", IsAdmin: true})

	res, err := svc.Claim(context.Background(), ClaimRequest{UserID: u.ID})
	require.NoError(t, err)
	assert.Equal(t, EligibilityAdminForbidden, res.Outcome)
	assert.Len(t, claimLogs(t, st, models.ClaimResultAdminForbidden), 1)

	stored, _ := st.GetUser(context.Background(), u.ID)
	assert.Zero(t, stored.TotalClaims)
}

func TestClaim_BannedAndBlacklisted(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(st)
	ctx := context.Background()
	banned := seedUser(t, st, models.User{Username: "mallory", IsBanned: true})
	listed := seedUser(t, st, models.User{Username: "trudy"})
	require.NoError(t, st.AddBlacklistEntry(ctx, &models.BlacklistEntry{Kind: models.BlacklistKindUsername, Value: "Trudy"}))

	_, err := svc.Claim(ctx, ClaimRequest{UserID: banned.ID})
	assert.ErrorIs(t, err, ErrUserBanned)
	_, err = svc.Claim(ctx, ClaimRequest{UserID: listed.ID})
	assert.ErrorIs(t, err, ErrUserBanned)
	assert.Len(t, claimLogs(t, st, models.ClaimResultBanned), 2)
}

func TestClaim_UnknownUser(t *testing.T) {
	svc := newTestService(store.NewMemoryStore())
	_, err := svc.Claim(context.Background(), ClaimRequest{UserID: "nobody"})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestClaim_SecondClaimSameMomentRejected(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(st)
	u := seedUser(t, st, models.User{Username: "frank"})

	first, err := svc.Claim(context.Background(), ClaimRequest{UserID: u.ID})
	require.NoError(t, err)
	require.True(t, first.Succeeded())

	second, err := svc.Claim(context.Background(), ClaimRequest{UserID: u.ID})
	require.NoError(t, err)
	assert.Equal(t, EligibilityAlreadyClaimed, second.Outcome)
	assert.Equal(t, DefaultCooldown, second.RetryAfter)
}

func TestClaim_ReferralBonusOnFirstClaim(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(st)
	ctx := context.Background()
	referrer := seedUser(t, st, models.User{Username: "grace", ReferralCode: "GRACE1"})
	referee := seedUser(t, st, models.User{Username: "heidi", ReferredBy: &referrer.ID})
	require.NoError(t, st.CreateReferral(ctx, &models.Referral{ReferrerID: referrer.ID, RefereeID: referee.ID}))

	_, err := svc.Claim(ctx, ClaimRequest{UserID: referee.ID})
	require.NoError(t, err)

	got, err := st.GetUser(ctx, referrer.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(decimal.NewFromInt(5)))

	sum, err := st.SumBonusGrants(ctx, referrer.ID)
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(5)))

	ref, err := st.GetReferralByReferee(ctx, referee.ID)
	require.NoError(t, err)
	assert.NotNil(t, ref.RewardedAt)
}

// racingStore lets another claim land between the read and the conditional
// write of the first WithinTx call.
type racingStore struct {
	*store.MemoryStore
	userID string
	raced  bool
}

func (r *racingStore) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	if !r.raced {
		r.raced = true
		at := testNow.Add(-time.Minute)
		if err := r.MemoryStore.UpdateUser(ctx, r.userID, store.UserUpdate{LastClaim: &at, AddTotalClaims: 1}); err != nil {
			return err
		}
	}
	return r.MemoryStore.WithinTx(ctx, fn)
}

func TestClaim_LostRaceIsRetriedAndRejected(t *testing.T) {
	mem := store.NewMemoryStore()
	u := seedUser(t, mem, models.User{Username: "ivan"})
	st := &racingStore{MemoryStore: mem, userID: u.ID}
	svc := newTestService(st)

	res, err := svc.Claim(context.Background(), ClaimRequest{UserID: u.ID})
	require.NoError(t, err)
	assert.Equal(t, EligibilityAlreadyClaimed, res.Outcome)

	stored, _ := mem.GetUser(context.Background(), u.ID)
	assert.Equal(t, int64(1), stored.TotalClaims)
	claims, _, _ := mem.ListClaims(context.Background(), u.ID, time.Time{}, store.Page{})
	assert.Empty(t, claims)
}

type conflictingStore struct {
	*store.MemoryStore
	calls int
}

func (c *conflictingStore) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	c.calls++
	return store.ErrConflict
}

func TestClaim_RepeatedConflictSurfaces(t *testing.T) {
	mem := store.NewMemoryStore()
	u := seedUser(t, mem, models.User{Username: "judy"})
	st := &conflictingStore{MemoryStore: mem}

	_, err := newTestService(st).Claim(context.Background(), ClaimRequest{UserID: u.ID})
	assert.ErrorIs(t, err, ErrStoreConflict)
	assert.Equal(t, 2, st.calls)

	logs := claimLogs(t, mem, models.ClaimResultConflict)
	require.Len(t, logs, 1)
	assert.Equal(t, u.ID, logs[0].UserID)
	assert.Equal(t, "judy", logs[0].Username)
}

type failingTxStore struct {
	*store.MemoryStore
}

func (f *failingTxStore) WithinTx(ctx context.Context, fn func(tx store.Store) error) error {
	return f.MemoryStore.WithinTx(ctx, func(tx store.Store) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errors.New("connection reset")
	})
}

func TestClaim_StoreFailureCreditsNothing(t *testing.T) {
	mem := store.NewMemoryStore()
	u := seedUser(t, mem, models.User{Username: "ken"})

	_, err := newTestService(&failingTxStore{MemoryStore: mem}).Claim(context.Background(), ClaimRequest{UserID: u.ID})
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	stored, _ := mem.GetUser(context.Background(), u.ID)
	assert.Zero(t, stored.TotalClaims)
	assert.True(t, stored.Balance.IsZero())
	assert.Nil(t, stored.LastClaim)
	claims, _, _ := mem.ListClaims(context.Background(), u.ID, time.Time{}, store.Page{})
	assert.Empty(t, claims)
	assert.Empty(t, claimLogs(t, mem, models.ClaimResultSuccess))
	assert.Len(t, claimLogs(t, mem, models.ClaimResultError), 1)
}

func TestClaim_NegativeBaseAmountIsValidationError(t *testing.T) {
	st := store.NewMemoryStore()
	svc := NewClaimService(st, ClaimConfig{
		Cooldown:   DefaultCooldown,
		BaseAmount: decimal.NewFromInt(-1),
	}, nil).WithClock(func() time.Time { return testNow })
	u := seedUser(t, st, models.User{Username: "lena"})

	_, err := svc.Claim(context.Background(), ClaimRequest{UserID: u.ID, SourceIP: "198.51.100.4"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.NotErrorIs(t, err, ErrStoreUnavailable)

	stored, _ := st.GetUser(context.Background(), u.ID)
	assert.Zero(t, stored.TotalClaims)
	logs := claimLogs(t, st, models.ClaimResultError)
	require.Len(t, logs, 1)
	assert.Equal(t, "198.51.100.4", logs[0].SourceIP)
}

func TestStatus(t *testing.T) {
	st := store.NewMemoryStore()
	svc := newTestService(st)
	u := seedUser(t, st, models.User{Username: "liam", Streak: 6, TotalClaims: 6, LastClaim: ago(5 * time.Hour)})

	status, err := svc.Status(context.Background(), u.ID)
	require.NoError(t, err)
	assert.False(t, status.CanClaim)
	assert.Equal(t, int64(3600), status.SecondsUntil)
	assert.Equal(t, 6, status.Streak)
	require.NotNil(t, status.NextReward)
	// The next claim lands at 10:00 on the same UTC day, so the streak holds at 6.
	assert.True(t, status.NextReward.Total.Equal(decimal.NewFromInt(1)))
}
