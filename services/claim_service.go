// Package services holds the claim rules: eligibility, streaks, rewards and
// the orchestrator that applies them to the store.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cppla/bottlecaps/models"
	"github.com/cppla/bottlecaps/store"
)

// ClaimConfig carries the tunables of the claim flow.
type ClaimConfig struct {
	Cooldown      time.Duration
	BaseAmount    decimal.Decimal
	ReferralBonus decimal.Decimal
}

// ClaimRequest is one claim attempt.
type ClaimRequest struct {
	UserID   string
	SourceIP string
}

// ClaimResult reports what happened. Rejections are results, not errors:
// Outcome says why and RetryAfter says how long until the next attempt can
// succeed. On success Reward, Claim and User describe the new state.
type ClaimResult struct {
	Outcome    Eligibility
	Reward     *Reward
	Claim      *models.Claim
	User       *models.User
	RetryAfter time.Duration
}

// Succeeded reports whether the claim was credited.
func (r *ClaimResult) Succeeded() bool {
	return r.Outcome == EligibilityAllowed && r.Claim != nil
}

// ClaimStatus is the advisory, read-only view of a user's claim state.
type ClaimStatus struct {
	CanClaim        bool              `json:"can_claim"`
	Eligibility     string            `json:"eligibility"`
	LastClaim       *time.Time        `json:"last_claim"`
	NextClaimAt     *time.Time        `json:"next_claim_at"`
	SecondsUntil    int64             `json:"seconds_until_next_claim"`
	Streak          int               `json:"streak"`
	TotalClaims     int64             `json:"total_claims"`
	Balance         decimal.Decimal   `json:"balance"`
	ActivePromotion *models.Promotion `json:"active_promotion,omitempty"`
	NextReward      *Reward           `json:"next_reward,omitempty"`
}

// ClaimService runs the claim flow against a store.
type ClaimService struct {
	store store.Store
	cfg   ClaimConfig
	now   func() time.Time
	log   *zap.Logger
}

// NewClaimService builds a ClaimService. A nil logger discards output.
func NewClaimService(st store.Store, cfg ClaimConfig, log *zap.Logger) *ClaimService {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &ClaimService{store: st, cfg: cfg, now: time.Now, log: log}
}

// WithClock replaces the time source; tests use it to pin "now".
func (s *ClaimService) WithClock(now func() time.Time) *ClaimService {
	s.now = now
	return s
}

// Cooldown returns the configured claim cooldown.
func (s *ClaimService) Cooldown() time.Duration { return s.cfg.Cooldown }

// Claim evaluates and, when allowed, credits one claim. A lost race on the
// conditional user update is retried once with fresh state; the retry usually
// ends as an already-claimed rejection.
func (s *ClaimService) Claim(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	res, err := s.attempt(ctx, req)
	if errors.Is(err, store.ErrConflict) {
		s.log.Info("claim conflict, retrying", zap.String("user_id", req.UserID))
		res, err = s.attempt(ctx, req)
		if errors.Is(err, store.ErrConflict) {
			s.log.Warn("claim conflict after retry", zap.String("user_id", req.UserID))
			s.auditFailure(ctx, req, models.ClaimResultConflict)
			return nil, fmt.Errorf("%w: %v", ErrStoreConflict, err)
		}
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrUserBanned), errors.Is(err, ErrUserNotFound):
			return nil, err
		case errors.Is(err, ErrValidation):
			s.log.Error("claim rejected by reward rules", zap.String("user_id", req.UserID), zap.Error(err))
			s.auditFailure(ctx, req, models.ClaimResultError)
			return nil, err
		}
		s.log.Error("claim failed", zap.String("user_id", req.UserID), zap.Error(err))
		s.auditFailure(ctx, req, models.ClaimResultError)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res, nil
}

// auditFailure records an attempt that ended in an error. The username is
// looked up again and left empty when the store cannot answer.
func (s *ClaimService) auditFailure(ctx context.Context, req ClaimRequest, result string) {
	user := &models.User{ID: req.UserID}
	if u, err := s.store.GetUser(ctx, req.UserID); err == nil {
		user = u
	}
	s.audit(ctx, user, result, req.SourceIP, s.now().UTC())
}

func (s *ClaimService) attempt(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	// Millisecond precision survives a round trip through every backend, which
	// keeps the conditional update on last_claim exact.
	now := s.now().UTC().Truncate(time.Millisecond)

	user, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	banned := user.IsBanned
	if !banned {
		if banned, err = s.store.IsBlacklisted(ctx, models.BlacklistKindUsername, user.Username); err != nil {
			return nil, err
		}
	}
	if banned {
		s.audit(ctx, user, models.ClaimResultBanned, req.SourceIP, now)
		return nil, ErrUserBanned
	}

	if elig := CheckEligibility(user, now, s.cfg.Cooldown); elig != EligibilityAllowed {
		s.audit(ctx, user, elig.String(), req.SourceIP, now)
		return &ClaimResult{
			Outcome:    elig,
			User:       user,
			RetryAfter: TimeUntilNextClaim(user.LastClaim, now, s.cfg.Cooldown),
		}, nil
	}

	streak, err := NextStreak(user.Streak, user.LastClaim, now)
	if err != nil {
		return nil, err
	}
	promos, err := s.store.ListActivePromotions(ctx, now)
	if err != nil {
		return nil, err
	}
	reward, err := CalculateReward(s.cfg.BaseAmount, streak, promos)
	if err != nil {
		return nil, err
	}

	claim := &models.Claim{
		UserID:         user.ID,
		Amount:         reward.BaseAmount,
		BonusAmount:    reward.BonusAmount,
		BonusReason:    reward.BonusReason,
		Multiplier:     reward.Multiplier,
		PromotionBonus: reward.PromotionBonus,
		Total:          reward.Total,
		Streak:         streak,
		ClaimedAt:      now,
	}
	err = s.store.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.UpdateUser(ctx, user.ID, store.UserUpdate{
			Streak:          &streak,
			LastClaim:       &now,
			AddTotalClaims:  1,
			AddBalance:      reward.Total,
			CheckLastClaim:  true,
			ExpectLastClaim: user.LastClaim,
		}); err != nil {
			return err
		}
		if err := tx.AppendClaim(ctx, claim); err != nil {
			return err
		}
		if user.TotalClaims == 0 && user.ReferredBy != nil {
			return s.awardReferral(ctx, tx, user, now)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, user, models.ClaimResultSuccess, req.SourceIP, now)
	s.log.Info("claim credited",
		zap.String("user_id", user.ID),
		zap.Int("streak", streak),
		zap.String("total", reward.Total.String()),
	)

	updated := *user
	updated.TotalClaims++
	updated.Streak = streak
	updated.LastClaim = &now
	updated.Balance = user.Balance.Add(reward.Total)
	return &ClaimResult{
		Outcome:    EligibilityAllowed,
		Reward:     &reward,
		Claim:      claim,
		User:       &updated,
		RetryAfter: s.cfg.Cooldown,
	}, nil
}

// awardReferral credits the referrer of a user making their first claim. A
// missing or already rewarded referral is not an error.
func (s *ClaimService) awardReferral(ctx context.Context, tx store.Store, referee *models.User, now time.Time) error {
	bonus := s.cfg.ReferralBonus
	if !bonus.IsPositive() {
		return nil
	}
	referrer, err := tx.GetUser(ctx, *referee.ReferredBy)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	switch err := tx.MarkReferralRewarded(ctx, referee.ID, bonus, now); {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrConflict):
		return nil
	case err != nil:
		return err
	}
	if err := tx.UpdateUser(ctx, referrer.ID, store.UserUpdate{AddBalance: bonus}); err != nil {
		return err
	}
	return tx.AppendBonusGrant(ctx, &models.BonusGrant{
		UserID:    referrer.ID,
		Amount:    bonus,
		Reason:    models.GrantReasonReferral,
		GrantedBy: referee.ID,
		CreatedAt: now,
	})
}

// audit appends a ClaimLog entry. The claim outcome stands even when the
// audit write fails, so the failure is only logged.
func (s *ClaimService) audit(ctx context.Context, user *models.User, result, ip string, at time.Time) {
	entry := &models.ClaimLog{
		UserID:    user.ID,
		Username:  user.Username,
		Result:    result,
		Timestamp: at,
		SourceIP:  ip,
	}
	if err := s.store.AppendClaimLog(ctx, entry); err != nil {
		s.log.Warn("append claim log failed",
			zap.String("user_id", user.ID),
			zap.String("result", result),
			zap.Error(err),
		)
	}
}

// Status returns the advisory claim state for userID, including a preview of
// the reward the next claim would pay.
func (s *ClaimService) Status(ctx context.Context, userID string) (*ClaimStatus, error) {
	now := s.now().UTC()
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	promos, err := s.store.ListActivePromotions(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	elig := CheckEligibility(user, now, s.cfg.Cooldown)
	st := &ClaimStatus{
		CanClaim:     elig == EligibilityAllowed,
		Eligibility:  elig.String(),
		LastClaim:    user.LastClaim,
		NextClaimAt:  NextClaimAt(user.LastClaim, s.cfg.Cooldown),
		SecondsUntil: int64(TimeUntilNextClaim(user.LastClaim, now, s.cfg.Cooldown).Seconds()),
		Streak:       EffectiveStreak(user.Streak, user.LastClaim, now),
		TotalClaims:  user.TotalClaims,
		Balance:      user.Balance,
	}
	if len(promos) > 0 {
		best := promos[0]
		for _, p := range promos[1:] {
			if p.Multiplier.GreaterThan(best.Multiplier) {
				best = p
			}
		}
		st.ActivePromotion = &best
	}
	if elig != EligibilityAdminForbidden {
		claimAt := now
		if next := st.NextClaimAt; next != nil && next.After(now) {
			claimAt = *next
		}
		if streak, err := NextStreak(user.Streak, user.LastClaim, claimAt); err == nil {
			if reward, err := CalculateReward(s.cfg.BaseAmount, streak, promos); err == nil {
				st.NextReward = &reward
			}
		}
	}
	return st, nil
}
