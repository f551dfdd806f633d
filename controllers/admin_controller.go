package controllers

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/cppla/bottlecaps/models"
	"github.com/cppla/bottlecaps/services"
	"github.com/cppla/bottlecaps/store"
	"github.com/cppla/bottlecaps/utils"
)

// AdminController exposes user moderation, claim logs and the blacklist.
type AdminController struct {
	store store.Store
	admin *services.AdminService
}

// NewAdminController creates an AdminController.
func NewAdminController(st store.Store, admin *services.AdminService) *AdminController {
	return &AdminController{store: st, admin: admin}
}

// ListUsers returns paginated users including register IP
func (a *AdminController) ListUsers(ctx *gin.Context) {
	page := pageFromQuery(ctx)
	users, total, err := a.store.ListUsers(ctx.Request.Context(), page)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50001, "failed to retrieve users")
		return
	}
	items := make([]gin.H, 0, len(users))
	for _, u := range users {
		row := userResponse(u)
		row["register_ip"] = u.RegisterIP
		items = append(items, row)
	}
	utils.Success(ctx, paginated(items, total, page))
}

// Ban blocks the user from claiming.
func (a *AdminController) Ban(ctx *gin.Context) { a.setBanned(ctx, true) }

// Unban lifts a ban.
func (a *AdminController) Unban(ctx *gin.Context) { a.setBanned(ctx, false) }

func (a *AdminController) setBanned(ctx *gin.Context, banned bool) {
	actorID, _ := getUserID(ctx)
	user, err := a.admin.SetBanned(ctx.Request.Context(), actorID, ctx.Param("id"), banned)
	a.respondUser(ctx, user, err)
}

// GrantAdmin makes the user an administrator.
func (a *AdminController) GrantAdmin(ctx *gin.Context) { a.setAdmin(ctx, true) }

// RevokeAdmin removes the admin flag.
func (a *AdminController) RevokeAdmin(ctx *gin.Context) { a.setAdmin(ctx, false) }

func (a *AdminController) setAdmin(ctx *gin.Context, admin bool) {
	actorID, _ := getUserID(ctx)
	user, err := a.admin.SetAdmin(ctx.Request.Context(), actorID, ctx.Param("id"), admin)
	if err == nil {
		utils.CacheDelete(utils.CacheKeyLeaderboard)
	}
	a.respondUser(ctx, user, err)
}

// ResetStreak zeroes the user's streak.
func (a *AdminController) ResetStreak(ctx *gin.Context) {
	actorID, _ := getUserID(ctx)
	user, err := a.admin.ResetStreak(ctx.Request.Context(), actorID, ctx.Param("id"))
	a.respondUser(ctx, user, err)
}

// GrantBonus credits caps to a user outside the claim flow.
func (a *AdminController) GrantBonus(ctx *gin.Context) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Reason string          `json:"reason"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40070, "invalid request payload")
		return
	}
	actorID, _ := getUserID(ctx)
	grant, err := a.admin.GrantBonus(ctx.Request.Context(), actorID, ctx.Param("id"), req.Amount, utils.SanitizeText(req.Reason))
	if err != nil {
		a.respondError(ctx, err)
		return
	}
	utils.CacheDelete(utils.CacheKeyStats, utils.CacheKeyLeaderboard)
	utils.Created(ctx, grant)
}

// ClaimLogs pages through the claim audit log, filtered by ?username= and ?result=.
func (a *AdminController) ClaimLogs(ctx *gin.Context) {
	page := pageFromQuery(ctx)
	logs, total, err := a.store.ListClaimLogs(ctx.Request.Context(), store.ClaimLogFilter{
		Page:     page,
		Username: strings.TrimSpace(ctx.Query("username")),
		Result:   strings.TrimSpace(ctx.Query("result")),
	})
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50071, "failed to load claim logs")
		return
	}
	utils.Success(ctx, paginated(logs, total, page))
}

// ListBlacklist returns every blacklist entry.
func (a *AdminController) ListBlacklist(ctx *gin.Context) {
	entries, err := a.store.ListBlacklist(ctx.Request.Context())
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50072, "failed to load blacklist")
		return
	}
	if entries == nil {
		entries = []models.BlacklistEntry{}
	}
	utils.Success(ctx, entries)
}

// AddBlacklist blocks an IP address or a username.
func (a *AdminController) AddBlacklist(ctx *gin.Context) {
	var req struct {
		Kind   string `json:"kind" binding:"required"`
		Value  string `json:"value" binding:"required"`
		Reason string `json:"reason"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40072, "invalid request payload")
		return
	}
	value := strings.TrimSpace(req.Value)
	switch req.Kind {
	case models.BlacklistKindIP:
		ip := net.ParseIP(value)
		if ip == nil {
			utils.Error(ctx, http.StatusBadRequest, 40073, "value is not an IP address")
			return
		}
		value = ip.String()
	case models.BlacklistKindUsername:
		if !usernamePattern.MatchString(value) {
			utils.Error(ctx, http.StatusBadRequest, 40073, "value is not a valid username")
			return
		}
	default:
		utils.Error(ctx, http.StatusBadRequest, 40074, "kind must be ip or username")
		return
	}

	actorID, _ := getUserID(ctx)
	entry := &models.BlacklistEntry{
		Kind:      req.Kind,
		Value:     value,
		Reason:    utils.SanitizeText(req.Reason),
		CreatedBy: actorID,
	}
	if err := a.store.AddBlacklistEntry(ctx.Request.Context(), entry); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			utils.Error(ctx, http.StatusConflict, 40970, "entry already exists")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50073, "failed to add blacklist entry")
		return
	}
	utils.Created(ctx, entry)
}

// RemoveBlacklist deletes a blacklist entry by id.
func (a *AdminController) RemoveBlacklist(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 64)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40075, "invalid id")
		return
	}
	if err := a.store.RemoveBlacklistEntry(ctx.Request.Context(), uint(id)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40470, "entry not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50074, "failed to remove blacklist entry")
		return
	}
	utils.Success(ctx, gin.H{"id": id})
}

func (a *AdminController) respondUser(ctx *gin.Context, user *models.User, err error) {
	if err != nil {
		a.respondError(ctx, err)
		return
	}
	utils.Success(ctx, userResponse(*user))
}

func (a *AdminController) respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSelfAction):
		utils.Error(ctx, http.StatusForbidden, 40370, err.Error())
	case errors.Is(err, services.ErrUserNotFound):
		utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
	case errors.Is(err, services.ErrValidation):
		utils.Error(ctx, http.StatusBadRequest, 40071, err.Error())
	default:
		utils.Error(ctx, http.StatusServiceUnavailable, 50370, "store unavailable")
	}
}
