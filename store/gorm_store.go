package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cppla/bottlecaps/models"
)

var _ Store = (*GormStore)(nil)

// GormStore persists to MySQL or PostgreSQL through GORM.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps an opened GORM connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	}
	return err
}

// WithinTx implements Store.
func (s *GormStore) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// Ping implements Store.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) exists(ctx context.Context, model interface{}, query string, args ...interface{}) (bool, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(model).Where(query, args...).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateUser implements UserStore.
func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	return translate(s.db.WithContext(ctx).Create(u).Error)
}

// GetUser implements UserStore.
func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// GetUserByUsername implements UserStore.
func (s *GormStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("LOWER(username) = ?", strings.ToLower(username)).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// GetUserByReferralCode implements UserStore.
func (s *GormStore) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	var u models.User
	if err := s.db.WithContext(ctx).Where("referral_code = ?", code).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// UpdateUser implements UserStore. With CheckLastClaim set the UPDATE carries
// the expected last_claim in its WHERE clause, so a concurrent writer that got
// there first leaves zero affected rows and the call reports ErrConflict.
// CheckUsernameChangedAt guards username_changed_at the same way.
func (s *GormStore) UpdateUser(ctx context.Context, id string, upd UserUpdate) error {
	fields := map[string]interface{}{}
	if upd.Username != nil {
		fields["username"] = *upd.Username
	}
	if upd.UsernameChangedAt != nil {
		fields["username_changed_at"] = *upd.UsernameChangedAt
	}
	if upd.Streak != nil {
		fields["streak"] = *upd.Streak
	}
	if upd.LastClaim != nil {
		fields["last_claim"] = *upd.LastClaim
	}
	if upd.IsAdmin != nil {
		fields["is_admin"] = *upd.IsAdmin
	}
	if upd.IsBanned != nil {
		fields["is_banned"] = *upd.IsBanned
	}
	if upd.AddTotalClaims != 0 {
		fields["total_claims"] = gorm.Expr("total_claims + ?", upd.AddTotalClaims)
	}
	if !upd.AddBalance.IsZero() {
		fields["balance"] = gorm.Expr("balance + ?", upd.AddBalance)
	}
	if len(fields) == 0 {
		_, err := s.GetUser(ctx, id)
		return err
	}

	q := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id)
	if upd.CheckLastClaim {
		if upd.ExpectLastClaim == nil {
			q = q.Where("last_claim IS NULL")
		} else {
			q = q.Where("last_claim = ?", *upd.ExpectLastClaim)
		}
	}
	if upd.CheckUsernameChangedAt {
		if upd.ExpectUsernameChangedAt == nil {
			q = q.Where("username_changed_at IS NULL")
		} else {
			q = q.Where("username_changed_at = ?", *upd.ExpectUsernameChangedAt)
		}
	}
	res := q.Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	found, err := s.exists(ctx, &models.User{}, "id = ?", id)
	if err != nil {
		return err
	}
	switch {
	case !found:
		return ErrNotFound
	case upd.CheckLastClaim, upd.CheckUsernameChangedAt:
		return ErrConflict
	}
	return nil
}

// ListUsers implements UserStore.
func (s *GormStore) ListUsers(ctx context.Context, page Page) ([]models.User, int64, error) {
	page = normalizePage(page)
	q := s.db.WithContext(ctx).Model(&models.User{})
	if page.Search != "" {
		q = q.Where("LOWER(username) LIKE ?", "%"+strings.ToLower(page.Search)+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []models.User
	if err := q.Order("created_at DESC").Offset(page.Offset()).Limit(page.PageSize).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// ResetLapsedStreaks implements UserStore.
func (s *GormStore) ResetLapsedStreaks(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("streak > 0 AND last_claim < ?", cutoff).
		UpdateColumn("streak", 0)
	return res.RowsAffected, res.Error
}

// AppendClaim implements ClaimStore.
func (s *GormStore) AppendClaim(ctx context.Context, c *models.Claim) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return translate(s.db.WithContext(ctx).Create(c).Error)
}

// ListClaims implements ClaimStore.
func (s *GormStore) ListClaims(ctx context.Context, userID string, since time.Time, page Page) ([]models.Claim, int64, error) {
	page = normalizePage(page)
	q := s.db.WithContext(ctx).Model(&models.Claim{}).Where("user_id = ?", userID)
	if !since.IsZero() {
		q = q.Where("claimed_at >= ?", since)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var claims []models.Claim
	if err := q.Order("claimed_at DESC").Offset(page.Offset()).Limit(page.PageSize).Find(&claims).Error; err != nil {
		return nil, 0, err
	}
	return claims, total, nil
}

// AppendClaimLog implements ClaimStore.
func (s *GormStore) AppendClaimLog(ctx context.Context, l *models.ClaimLog) error {
	return translate(s.db.WithContext(ctx).Create(l).Error)
}

// ListClaimLogs implements ClaimStore.
func (s *GormStore) ListClaimLogs(ctx context.Context, f ClaimLogFilter) ([]models.ClaimLog, int64, error) {
	page := normalizePage(f.Page)
	q := s.db.WithContext(ctx).Model(&models.ClaimLog{})
	if f.Username != "" {
		q = q.Where("LOWER(username) = ?", strings.ToLower(f.Username))
	}
	if f.Result != "" {
		q = q.Where("result = ?", f.Result)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var logs []models.ClaimLog
	if err := q.Order("id DESC").Offset(page.Offset()).Limit(page.PageSize).Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// CreatePromotion implements PromotionStore.
func (s *GormStore) CreatePromotion(ctx context.Context, p *models.Promotion) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return translate(s.db.WithContext(ctx).Create(p).Error)
}

// GetPromotion implements PromotionStore.
func (s *GormStore) GetPromotion(ctx context.Context, id string) (*models.Promotion, error) {
	var p models.Promotion
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// EndPromotion implements PromotionStore. Promotions that already ended keep
// their original end date.
func (s *GormStore) EndPromotion(ctx context.Context, id string, at time.Time) error {
	if _, err := s.GetPromotion(ctx, id); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&models.Promotion{}).
		Where("id = ? AND end_date > ?", id, at).
		Update("end_date", at).Error
}

// ListPromotions implements PromotionStore.
func (s *GormStore) ListPromotions(ctx context.Context, page Page) ([]models.Promotion, int64, error) {
	page = normalizePage(page)
	q := s.db.WithContext(ctx).Model(&models.Promotion{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var promos []models.Promotion
	if err := q.Order("start_date DESC").Offset(page.Offset()).Limit(page.PageSize).Find(&promos).Error; err != nil {
		return nil, 0, err
	}
	return promos, total, nil
}

// ListActivePromotions implements PromotionStore.
func (s *GormStore) ListActivePromotions(ctx context.Context, now time.Time) ([]models.Promotion, error) {
	var promos []models.Promotion
	err := s.db.WithContext(ctx).
		Where("start_date <= ? AND end_date >= ?", now, now).
		Order("multiplier DESC").
		Find(&promos).Error
	return promos, err
}

// CreateReferral implements RewardStore.
func (s *GormStore) CreateReferral(ctx context.Context, r *models.Referral) error {
	return translate(s.db.WithContext(ctx).Create(r).Error)
}

// GetReferralByReferee implements RewardStore.
func (s *GormStore) GetReferralByReferee(ctx context.Context, refereeID string) (*models.Referral, error) {
	var r models.Referral
	if err := s.db.WithContext(ctx).Where("referee_id = ?", refereeID).First(&r).Error; err != nil {
		return nil, translate(err)
	}
	return &r, nil
}

// ListReferrals implements RewardStore.
func (s *GormStore) ListReferrals(ctx context.Context, referrerID string) ([]models.Referral, error) {
	var refs []models.Referral
	err := s.db.WithContext(ctx).Where("referrer_id = ?", referrerID).Order("created_at DESC").Find(&refs).Error
	return refs, err
}

// MarkReferralRewarded implements RewardStore.
func (s *GormStore) MarkReferralRewarded(ctx context.Context, refereeID string, amount decimal.Decimal, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.Referral{}).
		Where("referee_id = ? AND rewarded_at IS NULL", refereeID).
		Updates(map[string]interface{}{"rewarded_at": at, "bonus_awarded": amount})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	found, err := s.exists(ctx, &models.Referral{}, "referee_id = ?", refereeID)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return ErrConflict
}

// AppendBonusGrant implements RewardStore.
func (s *GormStore) AppendBonusGrant(ctx context.Context, g *models.BonusGrant) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return translate(s.db.WithContext(ctx).Create(g).Error)
}

// SumBonusGrants implements RewardStore.
func (s *GormStore) SumBonusGrants(ctx context.Context, userID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.WithContext(ctx).Model(&models.BonusGrant{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

// AddBlacklistEntry implements AdminStore.
func (s *GormStore) AddBlacklistEntry(ctx context.Context, e *models.BlacklistEntry) error {
	return translate(s.db.WithContext(ctx).Create(e).Error)
}

// RemoveBlacklistEntry implements AdminStore.
func (s *GormStore) RemoveBlacklistEntry(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.BlacklistEntry{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListBlacklist implements AdminStore.
func (s *GormStore) ListBlacklist(ctx context.Context) ([]models.BlacklistEntry, error) {
	var entries []models.BlacklistEntry
	err := s.db.WithContext(ctx).Order("id DESC").Find(&entries).Error
	return entries, err
}

// IsBlacklisted implements AdminStore.
func (s *GormStore) IsBlacklisted(ctx context.Context, kind, value string) (bool, error) {
	return s.exists(ctx, &models.BlacklistEntry{}, "kind = ? AND LOWER(value) = ?", kind, strings.ToLower(value))
}

// CreateMedia implements AdminStore.
func (s *GormStore) CreateMedia(ctx context.Context, m *models.Media) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return translate(s.db.WithContext(ctx).Create(m).Error)
}

// GetMedia implements AdminStore.
func (s *GormStore) GetMedia(ctx context.Context, id string) (*models.Media, error) {
	var m models.Media
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// DeleteMedia implements AdminStore.
func (s *GormStore) DeleteMedia(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Media{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMedia implements AdminStore.
func (s *GormStore) ListMedia(ctx context.Context, page Page) ([]models.Media, int64, error) {
	page = normalizePage(page)
	q := s.db.WithContext(ctx).Model(&models.Media{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var media []models.Media
	if err := q.Order("created_at DESC").Offset(page.Offset()).Limit(page.PageSize).Find(&media).Error; err != nil {
		return nil, 0, err
	}
	return media, total, nil
}

// Stats implements AnalyticsStore.
func (s *GormStore) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	db := s.db.WithContext(ctx)
	st := &Stats{}
	if err := db.Model(&models.User{}).Count(&st.UserCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Claim{}).Count(&st.ClaimCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Claim{}).Where("claimed_at >= ?", StartOfUTCDay(now)).Count(&st.ClaimsToday).Error; err != nil {
		return nil, err
	}
	var claimed, granted decimal.Decimal
	if err := db.Model(&models.Claim{}).Select("COALESCE(SUM(total), 0)").Scan(&claimed).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.BonusGrant{}).Select("COALESCE(SUM(amount), 0)").Scan(&granted).Error; err != nil {
		return nil, err
	}
	st.TotalPaidOut = claimed.Add(granted)
	if err := db.Model(&models.Promotion{}).Where("start_date <= ? AND end_date >= ?", now, now).Count(&st.ActivePromos).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.User{}).Select("COALESCE(MAX(streak), 0)").Scan(&st.BestStreak).Error; err != nil {
		return nil, err
	}
	return st, nil
}

// Leaderboard implements AnalyticsStore.
func (s *GormStore) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("is_admin = ? AND is_banned = ?", false, false).
		Order("total_claims DESC").Order("username ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	out := make([]LeaderboardEntry, 0, len(users))
	for _, u := range users {
		out = append(out, LeaderboardEntry{
			UserID:      u.ID,
			Username:    u.Username,
			TotalClaims: u.TotalClaims,
			Streak:      u.Streak,
			Balance:     u.Balance,
		})
	}
	return out, nil
}
