// Package store is the persistence boundary for users, claims and the admin
// collections. Two backends implement Store: GormStore (MySQL/PostgreSQL) and
// MemoryStore (tests, local demos).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cppla/bottlecaps/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional update lost a race.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("duplicate record")
)

// UserUpdate lists the fields UpdateUser may change. Nil fields are left alone.
type UserUpdate struct {
	Username          *string
	UsernameChangedAt *time.Time
	Streak            *int
	LastClaim         *time.Time
	IsAdmin           *bool
	IsBanned          *bool

	// Increments are applied relative to the stored value.
	AddTotalClaims int64
	AddBalance     decimal.Decimal

	// CheckLastClaim makes the update conditional: it only applies when the
	// stored last_claim equals ExpectLastClaim (nil meaning "never claimed").
	CheckLastClaim  bool
	ExpectLastClaim *time.Time

	// CheckUsernameChangedAt does the same for username_changed_at, so two
	// renames racing inside one change window cannot both land.
	CheckUsernameChangedAt  bool
	ExpectUsernameChangedAt *time.Time
}

// Page is a 1-based pagination request.
type Page struct {
	Page     int
	PageSize int
	Search   string
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.PageSize
}

// ClaimLogFilter narrows ListClaimLogs.
type ClaimLogFilter struct {
	Page
	Username string
	Result   string
}

// Stats is the public aggregate view.
type Stats struct {
	UserCount    int64           `json:"user_count"`
	ClaimCount   int64           `json:"claim_count"`
	ClaimsToday  int64           `json:"claims_today"`
	TotalPaidOut decimal.Decimal `json:"total_paid_out"`
	ActivePromos int64           `json:"active_promotions"`
	BestStreak   int             `json:"best_streak"`
}

// LeaderboardEntry is one row of the leaderboard.
type LeaderboardEntry struct {
	UserID      string          `json:"user_id"`
	Username    string          `json:"username"`
	TotalClaims int64           `json:"total_claims"`
	Streak      int             `json:"streak"`
	Balance     decimal.Decimal `json:"balance"`
}

// UserStore covers identity and claim state.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) error
	ListUsers(ctx context.Context, page Page) ([]models.User, int64, error)
	// ResetLapsedStreaks zeroes the streak of users whose last claim is before cutoff.
	ResetLapsedStreaks(ctx context.Context, cutoff time.Time) (int64, error)
}

// ClaimStore covers the append-only claim history and audit log.
type ClaimStore interface {
	AppendClaim(ctx context.Context, c *models.Claim) error
	ListClaims(ctx context.Context, userID string, since time.Time, page Page) ([]models.Claim, int64, error)
	AppendClaimLog(ctx context.Context, l *models.ClaimLog) error
	ListClaimLogs(ctx context.Context, f ClaimLogFilter) ([]models.ClaimLog, int64, error)
}

// PromotionStore covers promotions.
type PromotionStore interface {
	CreatePromotion(ctx context.Context, p *models.Promotion) error
	GetPromotion(ctx context.Context, id string) (*models.Promotion, error)
	EndPromotion(ctx context.Context, id string, at time.Time) error
	ListPromotions(ctx context.Context, page Page) ([]models.Promotion, int64, error)
	ListActivePromotions(ctx context.Context, now time.Time) ([]models.Promotion, error)
}

// RewardStore covers referrals and bonus grants.
type RewardStore interface {
	CreateReferral(ctx context.Context, r *models.Referral) error
	GetReferralByReferee(ctx context.Context, refereeID string) (*models.Referral, error)
	ListReferrals(ctx context.Context, referrerID string) ([]models.Referral, error)
	MarkReferralRewarded(ctx context.Context, refereeID string, amount decimal.Decimal, at time.Time) error
	AppendBonusGrant(ctx context.Context, g *models.BonusGrant) error
	SumBonusGrants(ctx context.Context, userID string) (decimal.Decimal, error)
}

// AdminStore covers the blacklist and media library.
type AdminStore interface {
	AddBlacklistEntry(ctx context.Context, e *models.BlacklistEntry) error
	RemoveBlacklistEntry(ctx context.Context, id uint) error
	ListBlacklist(ctx context.Context) ([]models.BlacklistEntry, error)
	IsBlacklisted(ctx context.Context, kind, value string) (bool, error)
	CreateMedia(ctx context.Context, m *models.Media) error
	GetMedia(ctx context.Context, id string) (*models.Media, error)
	DeleteMedia(ctx context.Context, id string) error
	ListMedia(ctx context.Context, page Page) ([]models.Media, int64, error)
}

// AnalyticsStore covers aggregate reads.
type AnalyticsStore interface {
	Stats(ctx context.Context, now time.Time) (*Stats, error)
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// Store is the full persistence contract.
type Store interface {
	UserStore
	ClaimStore
	PromotionStore
	RewardStore
	AdminStore
	AnalyticsStore

	// WithinTx runs fn atomically; any error returned by fn rolls back every
	// write made through the Store handed to fn.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}

// StartOfUTCDay truncates t to midnight UTC.
func StartOfUTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func normalizePage(p Page) Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.PageSize > 100 {
		p.PageSize = 100
	}
	return p
}
