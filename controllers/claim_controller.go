package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/bottlecaps/middleware"
	"github.com/cppla/bottlecaps/services"
	"github.com/cppla/bottlecaps/store"
	"github.com/cppla/bottlecaps/utils"
)

// ClaimController handles the claim endpoints.
type ClaimController struct {
	claims  *services.ClaimService
	history store.ClaimStore
	lockTTL time.Duration
}

// NewClaimController creates a new controller instance.
func NewClaimController(claims *services.ClaimService, history store.ClaimStore, lockTTL time.Duration) *ClaimController {
	return &ClaimController{claims: claims, history: history, lockTTL: lockTTL}
}

// Claim credits the caller's claim when the cooldown allows it.
func (cc *ClaimController) Claim(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	release, ok := utils.TryClaimLock(ctx.Request.Context(), userID, cc.lockTTL)
	if !ok {
		utils.Error(ctx, http.StatusConflict, 40930, "a claim is already in progress")
		return
	}
	defer release()

	res, err := cc.claims.Claim(ctx.Request.Context(), services.ClaimRequest{
		UserID:   userID,
		SourceIP: middleware.ClientIP(ctx),
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserBanned):
			utils.Error(ctx, http.StatusForbidden, 40331, "account is banned")
		case errors.Is(err, services.ErrUserNotFound):
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
		case errors.Is(err, services.ErrStoreConflict):
			utils.Error(ctx, http.StatusConflict, 40930, "claim conflicted, try again")
		case errors.Is(err, services.ErrValidation):
			utils.Error(ctx, http.StatusInternalServerError, 50030, "claim rules are misconfigured")
		default:
			utils.Error(ctx, http.StatusServiceUnavailable, 50330, "claim could not be recorded")
		}
		return
	}

	switch res.Outcome {
	case services.EligibilityAlreadyClaimed:
		next := time.Now().UTC().Add(res.RetryAfter)
		if res.User != nil && res.User.LastClaim != nil {
			next = res.User.LastClaim.Add(cc.claims.Cooldown())
		}
		utils.ErrorWithData(ctx, http.StatusBadRequest, 40030, "already claimed, wait for the cooldown", gin.H{
			"retry_after_seconds": int64(res.RetryAfter.Seconds()),
			"next_claim_at":       next,
		})
		return
	case services.EligibilityAdminForbidden:
		utils.Error(ctx, http.StatusForbidden, 40330, "administrators cannot claim")
		return
	}

	utils.CacheDelete(utils.CacheKeyStats, utils.CacheKeyLeaderboard)
	utils.Success(ctx, gin.H{
		"reward":        res.Reward,
		"claim":         res.Claim,
		"user":          userResponse(*res.User),
		"next_claim_at": res.Claim.ClaimedAt.Add(cc.claims.Cooldown()),
	})
}

// Status returns the caller's advisory claim state.
func (cc *ClaimController) Status(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	st, err := cc.claims.Status(ctx.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
			return
		}
		utils.Error(ctx, http.StatusServiceUnavailable, 50331, "failed to load claim status")
		return
	}
	utils.Success(ctx, st)
}

// History pages through the caller's claims, newest first.
func (cc *ClaimController) History(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page := pageFromQuery(ctx)
	items, total, err := cc.history.ListClaims(ctx.Request.Context(), userID, time.Time{}, page)
	if err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, 50332, "failed to load claims")
		return
	}
	utils.Success(ctx, paginated(items, total, page))
}
