package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/cppla/bottlecaps/store"
	"github.com/cppla/bottlecaps/utils"
)

// ReferralController shows the caller's referral code and referees.
type ReferralController struct {
	store store.Store
}

// NewReferralController creates a ReferralController.
func NewReferralController(st store.Store) *ReferralController {
	return &ReferralController{store: st}
}

// Mine returns the caller's code, the users who joined with it and the bonus earned.
func (r *ReferralController) Mine(ctx *gin.Context) {
	user, ok := loadUser(ctx, r.store)
	if !ok {
		return
	}
	c := ctx.Request.Context()
	refs, err := r.store.ListReferrals(c, user.ID)
	if err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, 50350, "failed to load referrals")
		return
	}

	earned := decimal.Zero
	items := make([]gin.H, 0, len(refs))
	for _, ref := range refs {
		earned = earned.Add(ref.BonusAwarded)
		username := ""
		if referee, err := r.store.GetUser(c, ref.RefereeID); err == nil {
			username = referee.Username
		}
		items = append(items, gin.H{
			"username":      username,
			"joined_at":     ref.CreatedAt,
			"rewarded":      ref.RewardedAt != nil,
			"bonus_awarded": ref.BonusAwarded,
		})
	}

	utils.Success(ctx, gin.H{
		"referral_code": user.ReferralCode,
		"referrals":     items,
		"total_bonus":   earned,
	})
}
