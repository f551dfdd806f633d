package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cppla/bottlecaps/models"
)

type memState struct {
	users      map[string]models.User
	claims     []models.Claim
	claimLogs  []models.ClaimLog
	promotions map[string]models.Promotion
	referrals  []models.Referral
	grants     []models.BonusGrant
	blacklist  []models.BlacklistEntry
	media      map[string]models.Media
	nextLogID  uint
	nextListID uint
	nextRefID  uint
}

func (s *memState) clone() *memState {
	c := &memState{
		users:      make(map[string]models.User, len(s.users)),
		claims:     append([]models.Claim(nil), s.claims...),
		claimLogs:  append([]models.ClaimLog(nil), s.claimLogs...),
		promotions: make(map[string]models.Promotion, len(s.promotions)),
		referrals:  append([]models.Referral(nil), s.referrals...),
		grants:     append([]models.BonusGrant(nil), s.grants...),
		blacklist:  append([]models.BlacklistEntry(nil), s.blacklist...),
		media:      make(map[string]models.Media, len(s.media)),
		nextLogID:  s.nextLogID,
		nextListID: s.nextListID,
		nextRefID:  s.nextRefID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.promotions {
		c.promotions[k] = v
	}
	for k, v := range s.media {
		c.media[k] = v
	}
	return c
}

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps everything in process memory. It is safe for concurrent
// use; WithinTx serialises the whole transaction and restores a snapshot on error.
type MemoryStore struct {
	mu   *sync.Mutex
	inTx bool
	st   *memState
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mu: &sync.Mutex{},
		st: &memState{
			users:      map[string]models.User{},
			promotions: map[string]models.Promotion{},
			media:      map[string]models.Media{},
		},
	}
}

func (m *MemoryStore) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// WithinTx implements Store.
func (m *MemoryStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	tx := &MemoryStore{mu: m.mu, inTx: true, st: m.st}
	if err := fn(tx); err != nil {
		*m.st = *snapshot
		return err
	}
	return nil
}

// Ping implements Store.
func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// CreateUser implements UserStore.
func (m *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	defer m.lock()()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	for _, existing := range m.st.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return ErrDuplicate
		}
		if u.ReferralCode != "" && existing.ReferralCode == u.ReferralCode {
			return ErrDuplicate
		}
	}
	if _, ok := m.st.users[u.ID]; ok {
		return ErrDuplicate
	}
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	m.st.users[u.ID] = *u
	return nil
}

// GetUser implements UserStore.
func (m *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	defer m.lock()()
	u, ok := m.st.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// GetUserByUsername implements UserStore. Usernames compare case-insensitively.
func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	defer m.lock()()
	for _, u := range m.st.users {
		if strings.EqualFold(u.Username, username) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

// GetUserByReferralCode implements UserStore.
func (m *MemoryStore) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	defer m.lock()()
	for _, u := range m.st.users {
		if code != "" && u.ReferralCode == code {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateUser implements UserStore.
func (m *MemoryStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) error {
	defer m.lock()()
	u, ok := m.st.users[id]
	if !ok {
		return ErrNotFound
	}
	if upd.CheckLastClaim && !sameInstant(u.LastClaim, upd.ExpectLastClaim) {
		return ErrConflict
	}
	if upd.CheckUsernameChangedAt && !sameInstant(u.UsernameChangedAt, upd.ExpectUsernameChangedAt) {
		return ErrConflict
	}
	if upd.Username != nil {
		for otherID, other := range m.st.users {
			if otherID != id && strings.EqualFold(other.Username, *upd.Username) {
				return ErrDuplicate
			}
		}
		u.Username = *upd.Username
	}
	if upd.UsernameChangedAt != nil {
		t := *upd.UsernameChangedAt
		u.UsernameChangedAt = &t
	}
	if upd.Streak != nil {
		u.Streak = *upd.Streak
	}
	if upd.LastClaim != nil {
		t := *upd.LastClaim
		u.LastClaim = &t
	}
	if upd.IsAdmin != nil {
		u.IsAdmin = *upd.IsAdmin
	}
	if upd.IsBanned != nil {
		u.IsBanned = *upd.IsBanned
	}
	u.TotalClaims += upd.AddTotalClaims
	if !upd.AddBalance.IsZero() {
		u.Balance = u.Balance.Add(upd.AddBalance)
	}
	u.UpdatedAt = time.Now()
	m.st.users[id] = u
	return nil
}

// ListUsers implements UserStore, newest first.
func (m *MemoryStore) ListUsers(ctx context.Context, page Page) ([]models.User, int64, error) {
	defer m.lock()()
	page = normalizePage(page)
	var all []models.User
	for _, u := range m.st.users {
		if page.Search != "" && !strings.Contains(strings.ToLower(u.Username), strings.ToLower(page.Search)) {
			continue
		}
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, page), int64(len(all)), nil
}

// ResetLapsedStreaks implements UserStore.
func (m *MemoryStore) ResetLapsedStreaks(ctx context.Context, cutoff time.Time) (int64, error) {
	defer m.lock()()
	var n int64
	for id, u := range m.st.users {
		if u.Streak > 0 && u.LastClaim != nil && u.LastClaim.Before(cutoff) {
			u.Streak = 0
			m.st.users[id] = u
			n++
		}
	}
	return n, nil
}

// AppendClaim implements ClaimStore.
func (m *MemoryStore) AppendClaim(ctx context.Context, c *models.Claim) error {
	defer m.lock()()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	for _, existing := range m.st.claims {
		if existing.ID == c.ID {
			return ErrDuplicate
		}
	}
	m.st.claims = append(m.st.claims, *c)
	return nil
}

// ListClaims implements ClaimStore, newest first.
func (m *MemoryStore) ListClaims(ctx context.Context, userID string, since time.Time, page Page) ([]models.Claim, int64, error) {
	defer m.lock()()
	page = normalizePage(page)
	var out []models.Claim
	for _, c := range m.st.claims {
		if c.UserID == userID && !c.ClaimedAt.Before(since) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ClaimedAt.After(out[j].ClaimedAt) })
	return paginate(out, page), int64(len(out)), nil
}

// AppendClaimLog implements ClaimStore.
func (m *MemoryStore) AppendClaimLog(ctx context.Context, l *models.ClaimLog) error {
	defer m.lock()()
	m.st.nextLogID++
	l.ID = m.st.nextLogID
	m.st.claimLogs = append(m.st.claimLogs, *l)
	return nil
}

// ListClaimLogs implements ClaimStore, newest first.
func (m *MemoryStore) ListClaimLogs(ctx context.Context, f ClaimLogFilter) ([]models.ClaimLog, int64, error) {
	defer m.lock()()
	page := normalizePage(f.Page)
	var out []models.ClaimLog
	for i := len(m.st.claimLogs) - 1; i >= 0; i-- {
		l := m.st.claimLogs[i]
		if f.Username != "" && !strings.EqualFold(l.Username, f.Username) {
			continue
		}
		if f.Result != "" && l.Result != f.Result {
			continue
		}
		out = append(out, l)
	}
	return paginate(out, page), int64(len(out)), nil
}

// CreatePromotion implements PromotionStore.
func (m *MemoryStore) CreatePromotion(ctx context.Context, p *models.Promotion) error {
	defer m.lock()()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.st.promotions[p.ID] = *p
	return nil
}

// GetPromotion implements PromotionStore.
func (m *MemoryStore) GetPromotion(ctx context.Context, id string) (*models.Promotion, error) {
	defer m.lock()()
	p, ok := m.st.promotions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

// EndPromotion implements PromotionStore.
func (m *MemoryStore) EndPromotion(ctx context.Context, id string, at time.Time) error {
	defer m.lock()()
	p, ok := m.st.promotions[id]
	if !ok {
		return ErrNotFound
	}
	if at.Before(p.EndDate) {
		p.EndDate = at
	}
	m.st.promotions[id] = p
	return nil
}

// ListPromotions implements PromotionStore, latest start first.
func (m *MemoryStore) ListPromotions(ctx context.Context, page Page) ([]models.Promotion, int64, error) {
	defer m.lock()()
	page = normalizePage(page)
	all := make([]models.Promotion, 0, len(m.st.promotions))
	for _, p := range m.st.promotions {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartDate.After(all[j].StartDate) })
	return paginate(all, page), int64(len(all)), nil
}

// ListActivePromotions implements PromotionStore.
func (m *MemoryStore) ListActivePromotions(ctx context.Context, now time.Time) ([]models.Promotion, error) {
	defer m.lock()()
	var out []models.Promotion
	for _, p := range m.st.promotions {
		if p.ActiveAt(now) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Multiplier.GreaterThan(out[j].Multiplier) })
	return out, nil
}

// CreateReferral implements RewardStore.
func (m *MemoryStore) CreateReferral(ctx context.Context, r *models.Referral) error {
	defer m.lock()()
	for _, existing := range m.st.referrals {
		if existing.RefereeID == r.RefereeID {
			return ErrDuplicate
		}
	}
	m.st.nextRefID++
	r.ID = m.st.nextRefID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.st.referrals = append(m.st.referrals, *r)
	return nil
}

// GetReferralByReferee implements RewardStore.
func (m *MemoryStore) GetReferralByReferee(ctx context.Context, refereeID string) (*models.Referral, error) {
	defer m.lock()()
	for _, r := range m.st.referrals {
		if r.RefereeID == refereeID {
			return &r, nil
		}
	}
	return nil, ErrNotFound
}

// ListReferrals implements RewardStore.
func (m *MemoryStore) ListReferrals(ctx context.Context, referrerID string) ([]models.Referral, error) {
	defer m.lock()()
	var out []models.Referral
	for _, r := range m.st.referrals {
		if r.ReferrerID == referrerID {
			out = append(out, r)
		}
	}
	return out, nil
}

// MarkReferralRewarded implements RewardStore. It fails with ErrConflict when
// the referral was already rewarded.
func (m *MemoryStore) MarkReferralRewarded(ctx context.Context, refereeID string, amount decimal.Decimal, at time.Time) error {
	defer m.lock()()
	for i, r := range m.st.referrals {
		if r.RefereeID != refereeID {
			continue
		}
		if r.RewardedAt != nil {
			return ErrConflict
		}
		t := at
		r.RewardedAt = &t
		r.BonusAwarded = amount
		m.st.referrals[i] = r
		return nil
	}
	return ErrNotFound
}

// AppendBonusGrant implements RewardStore.
func (m *MemoryStore) AppendBonusGrant(ctx context.Context, g *models.BonusGrant) error {
	defer m.lock()()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}
	m.st.grants = append(m.st.grants, *g)
	return nil
}

// SumBonusGrants implements RewardStore.
func (m *MemoryStore) SumBonusGrants(ctx context.Context, userID string) (decimal.Decimal, error) {
	defer m.lock()()
	sum := decimal.Zero
	for _, g := range m.st.grants {
		if g.UserID == userID {
			sum = sum.Add(g.Amount)
		}
	}
	return sum, nil
}

// AddBlacklistEntry implements AdminStore.
func (m *MemoryStore) AddBlacklistEntry(ctx context.Context, e *models.BlacklistEntry) error {
	defer m.lock()()
	for _, existing := range m.st.blacklist {
		if existing.Kind == e.Kind && strings.EqualFold(existing.Value, e.Value) {
			return ErrDuplicate
		}
	}
	m.st.nextListID++
	e.ID = m.st.nextListID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.st.blacklist = append(m.st.blacklist, *e)
	return nil
}

// RemoveBlacklistEntry implements AdminStore.
func (m *MemoryStore) RemoveBlacklistEntry(ctx context.Context, id uint) error {
	defer m.lock()()
	for i, e := range m.st.blacklist {
		if e.ID == id {
			m.st.blacklist = append(m.st.blacklist[:i:i], m.st.blacklist[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// ListBlacklist implements AdminStore.
func (m *MemoryStore) ListBlacklist(ctx context.Context) ([]models.BlacklistEntry, error) {
	defer m.lock()()
	return append([]models.BlacklistEntry(nil), m.st.blacklist...), nil
}

// IsBlacklisted implements AdminStore.
func (m *MemoryStore) IsBlacklisted(ctx context.Context, kind, value string) (bool, error) {
	defer m.lock()()
	for _, e := range m.st.blacklist {
		if e.Kind == kind && strings.EqualFold(e.Value, value) {
			return true, nil
		}
	}
	return false, nil
}

// CreateMedia implements AdminStore.
func (m *MemoryStore) CreateMedia(ctx context.Context, md *models.Media) error {
	defer m.lock()()
	if md.ID == "" {
		md.ID = uuid.NewString()
	}
	if md.CreatedAt.IsZero() {
		md.CreatedAt = time.Now()
	}
	m.st.media[md.ID] = *md
	return nil
}

// GetMedia implements AdminStore.
func (m *MemoryStore) GetMedia(ctx context.Context, id string) (*models.Media, error) {
	defer m.lock()()
	md, ok := m.st.media[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &md, nil
}

// DeleteMedia implements AdminStore.
func (m *MemoryStore) DeleteMedia(ctx context.Context, id string) error {
	defer m.lock()()
	if _, ok := m.st.media[id]; !ok {
		return ErrNotFound
	}
	delete(m.st.media, id)
	return nil
}

// ListMedia implements AdminStore, newest first.
func (m *MemoryStore) ListMedia(ctx context.Context, page Page) ([]models.Media, int64, error) {
	defer m.lock()()
	page = normalizePage(page)
	all := make([]models.Media, 0, len(m.st.media))
	for _, md := range m.st.media {
		all = append(all, md)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return paginate(all, page), int64(len(all)), nil
}

// Stats implements AnalyticsStore.
func (m *MemoryStore) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	defer m.lock()()
	today := StartOfUTCDay(now)
	s := &Stats{UserCount: int64(len(m.st.users)), TotalPaidOut: decimal.Zero}
	for _, c := range m.st.claims {
		s.ClaimCount++
		s.TotalPaidOut = s.TotalPaidOut.Add(c.Total)
		if !c.ClaimedAt.Before(today) {
			s.ClaimsToday++
		}
	}
	for _, g := range m.st.grants {
		s.TotalPaidOut = s.TotalPaidOut.Add(g.Amount)
	}
	for _, p := range m.st.promotions {
		if p.ActiveAt(now) {
			s.ActivePromos++
		}
	}
	for _, u := range m.st.users {
		if u.Streak > s.BestStreak {
			s.BestStreak = u.Streak
		}
	}
	return s, nil
}

// Leaderboard implements AnalyticsStore.
func (m *MemoryStore) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	defer m.lock()()
	var out []LeaderboardEntry
	for _, u := range m.st.users {
		if u.IsAdmin || u.IsBanned {
			continue
		}
		out = append(out, LeaderboardEntry{
			UserID:      u.ID,
			Username:    u.Username,
			TotalClaims: u.TotalClaims,
			Streak:      u.Streak,
			Balance:     u.Balance,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalClaims != out[j].TotalClaims {
			return out[i].TotalClaims > out[j].TotalClaims
		}
		return out[i].Username < out[j].Username
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func paginate[T any](items []T, page Page) []T {
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.PageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
