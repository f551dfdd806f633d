package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/cppla/bottlecaps/models"
	"github.com/cppla/bottlecaps/store"
)

// maxGrant caps a single manual bonus.
var maxGrant = decimal.NewFromInt(1_000_000)

// AdminService applies moderation actions to user accounts.
type AdminService struct {
	store store.Store
	now   func() time.Time
	log   *zap.Logger
}

// NewAdminService builds an AdminService. A nil logger discards output.
func NewAdminService(st store.Store, log *zap.Logger) *AdminService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminService{store: st, now: time.Now, log: log}
}

// WithClock replaces the time source.
func (a *AdminService) WithClock(now func() time.Time) *AdminService {
	a.now = now
	return a
}

// SetBanned bans or unbans target on behalf of actor.
func (a *AdminService) SetBanned(ctx context.Context, actorID, targetID string, banned bool) (*models.User, error) {
	if banned && actorID == targetID {
		return nil, ErrSelfAction
	}
	if err := a.update(ctx, targetID, store.UserUpdate{IsBanned: &banned}); err != nil {
		return nil, err
	}
	a.log.Info("user ban changed", zap.String("actor", actorID), zap.String("target", targetID), zap.Bool("banned", banned))
	return a.get(ctx, targetID)
}

// SetAdmin grants or revokes the admin flag. Admins cannot claim, so granting
// it also takes the user off the leaderboard.
func (a *AdminService) SetAdmin(ctx context.Context, actorID, targetID string, admin bool) (*models.User, error) {
	if !admin && actorID == targetID {
		return nil, ErrSelfAction
	}
	if err := a.update(ctx, targetID, store.UserUpdate{IsAdmin: &admin}); err != nil {
		return nil, err
	}
	a.log.Info("user admin flag changed", zap.String("actor", actorID), zap.String("target", targetID), zap.Bool("admin", admin))
	return a.get(ctx, targetID)
}

// ResetStreak zeroes the target's streak. Claim history is untouched.
func (a *AdminService) ResetStreak(ctx context.Context, actorID, targetID string) (*models.User, error) {
	zero := 0
	if err := a.update(ctx, targetID, store.UserUpdate{Streak: &zero}); err != nil {
		return nil, err
	}
	a.log.Info("user streak reset", zap.String("actor", actorID), zap.String("target", targetID))
	return a.get(ctx, targetID)
}

// GrantBonus credits amount to the target's balance and records a BonusGrant
// in the same transaction.
func (a *AdminService) GrantBonus(ctx context.Context, actorID, targetID string, amount decimal.Decimal, reason string) (*models.BonusGrant, error) {
	reason = strings.TrimSpace(reason)
	switch {
	case !amount.IsPositive():
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	case amount.GreaterThan(maxGrant):
		return nil, fmt.Errorf("%w: amount exceeds %s", ErrValidation, maxGrant)
	case reason == "":
		return nil, fmt.Errorf("%w: reason is required", ErrValidation)
	}

	grant := &models.BonusGrant{
		UserID:    targetID,
		Amount:    amount,
		Reason:    reason,
		GrantedBy: actorID,
		CreatedAt: a.now().UTC(),
	}
	err := a.store.WithinTx(ctx, func(tx store.Store) error {
		if err := tx.UpdateUser(ctx, targetID, store.UserUpdate{AddBalance: amount}); err != nil {
			return err
		}
		return tx.AppendBonusGrant(ctx, grant)
	})
	if err != nil {
		return nil, a.translate(err)
	}
	a.log.Info("bonus granted",
		zap.String("actor", actorID),
		zap.String("target", targetID),
		zap.String("amount", amount.String()),
	)
	return grant, nil
}

func (a *AdminService) update(ctx context.Context, id string, upd store.UserUpdate) error {
	return a.translate(a.store.UpdateUser(ctx, id, upd))
}

func (a *AdminService) get(ctx context.Context, id string) (*models.User, error) {
	u, err := a.store.GetUser(ctx, id)
	return u, a.translate(err)
}

func (a *AdminService) translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrUserNotFound
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
