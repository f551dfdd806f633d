package controllers

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cppla/bottlecaps/config"
	"github.com/cppla/bottlecaps/middleware"
	"github.com/cppla/bottlecaps/models"
	"github.com/cppla/bottlecaps/store"
	"github.com/cppla/bottlecaps/utils"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)

// AuthController handles registration, login and the caller's own account.
type AuthController struct {
	store store.Store
	now   func() time.Time
}

// NewAuthController creates an AuthController.
func NewAuthController(st store.Store) *AuthController {
	return &AuthController{store: st, now: time.Now}
}

// Register handles local account registration with bcrypt hashing.
func (a *AuthController) Register(ctx *gin.Context) {
	var req struct {
		Username     string `json:"username" binding:"required"`
		Password     string `json:"password" binding:"required"`
		ReferralCode string `json:"referral_code"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40001, "invalid request payload")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if !usernamePattern.MatchString(req.Username) {
		utils.Error(ctx, http.StatusBadRequest, 40002, "username must be 3-32 letters, digits, '_' or '-'")
		return
	}
	if len(req.Password) < utils.MinPasswordLength {
		utils.Error(ctx, http.StatusBadRequest, 40003, "password must be at least 6 characters")
		return
	}

	c := ctx.Request.Context()
	if blocked, err := a.store.IsBlacklisted(c, models.BlacklistKindUsername, req.Username); err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, 50301, "store unavailable")
		return
	} else if blocked {
		utils.Error(ctx, http.StatusForbidden, 40302, "username is not allowed")
		return
	}

	// Anti-abuse: cooldown and per-IP daily limit
	ip := middleware.ClientIP(ctx)
	if !utils.RegistrationCooldownTry(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42910, "too many attempts, try again later")
		return
	}
	if !utils.RegistrationDailyLimitCheck(ip) {
		utils.Error(ctx, http.StatusTooManyRequests, 42921, "daily registration limit reached")
		return
	}

	var referrer *models.User
	if code := strings.TrimSpace(req.ReferralCode); code != "" {
		r, err := a.store.GetUserByReferralCode(c, strings.ToUpper(code))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.Error(ctx, http.StatusBadRequest, 40004, "unknown referral code")
				return
			}
			utils.Error(ctx, http.StatusServiceUnavailable, 50301, "store unavailable")
			return
		}
		referrer = r
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40003, err.Error())
		return
	}

	cfg := config.Get()
	user := models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		IsAdmin:      cfg.IsAdminUsername(req.Username),
		ReferralCode: newReferralCode(),
		RegisterIP:   ip,
	}
	if referrer != nil {
		user.ReferredBy = &referrer.ID
	}

	err = a.store.WithinTx(c, func(tx store.Store) error {
		if err := tx.CreateUser(c, &user); err != nil {
			return err
		}
		if referrer == nil {
			return nil
		}
		return tx.CreateReferral(c, &models.Referral{ReferrerID: referrer.ID, RefereeID: user.ID})
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			utils.Error(ctx, http.StatusConflict, 40901, "username already exists")
			return
		}
		utils.Logger.Error("create user failed", zap.String("username", req.Username), zap.Error(err))
		utils.Error(ctx, http.StatusInternalServerError, 50002, "failed to create user")
		return
	}

	// record success for per-day limit
	utils.RegistrationDailyIncrement(ip)

	a.issueToken(ctx, user)
}

// Login verifies user credentials and issues a JWT.
func (a *AuthController) Login(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40005, "invalid request payload")
		return
	}

	c := ctx.Request.Context()
	user, err := a.store.GetUserByUsername(c, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
			return
		}
		utils.Error(ctx, http.StatusServiceUnavailable, 50301, "store unavailable")
		return
	}
	if !utils.CheckPassword(user.PasswordHash, req.Password) {
		utils.Error(ctx, http.StatusUnauthorized, 40106, "invalid username or password")
		return
	}
	if blocked, err := a.store.IsBlacklisted(c, models.BlacklistKindUsername, user.Username); err == nil && blocked {
		utils.Error(ctx, http.StatusForbidden, 40302, "username is not allowed")
		return
	}

	a.issueToken(ctx, *user)
}

func (a *AuthController) issueToken(ctx *gin.Context, user models.User) {
	token, expiresAt, err := utils.GenerateToken(user.ID, user.Username, config.Get().TokenTTL)
	if err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50003, "failed to generate token")
		return
	}
	utils.Success(ctx, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"user":       userResponse(user),
	})
}

// Logout revokes the bearer token until it would have expired.
func (a *AuthController) Logout(ctx *gin.Context) {
	token := ctx.GetString(middleware.ContextTokenKey)
	if token == "" {
		utils.Error(ctx, http.StatusUnauthorized, 40107, "invalid authorization header")
		return
	}
	expiresAt := a.now().Add(config.Get().TokenTTL)
	if v, ok := ctx.Get(middleware.ContextTokenExpiryKey); ok {
		if t, ok := v.(time.Time); ok {
			expiresAt = t
		}
	}
	utils.RevokeToken(token, expiresAt)
	utils.Success(ctx, gin.H{"message": "logged out"})
}

// Me returns the current authenticated user's information.
func (a *AuthController) Me(ctx *gin.Context) {
	user, ok := a.currentUser(ctx)
	if !ok {
		return
	}
	utils.Success(ctx, userResponse(*user))
}

// UpdateProfile renames the caller. A username may change once per
// UsernameChangeWindow.
func (a *AuthController) UpdateProfile(ctx *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40006, "invalid request payload")
		return
	}
	username := strings.TrimSpace(req.Username)
	if !usernamePattern.MatchString(username) {
		utils.Error(ctx, http.StatusBadRequest, 40002, "username must be 3-32 letters, digits, '_' or '-'")
		return
	}

	user, ok := a.currentUser(ctx)
	if !ok {
		return
	}
	if username == user.Username {
		utils.Success(ctx, userResponse(*user))
		return
	}

	now := a.now().UTC().Truncate(time.Millisecond)
	if user.UsernameChangedAt != nil {
		next := user.UsernameChangedAt.Add(config.Get().UsernameChangeWindow)
		if now.Before(next) {
			utils.ErrorWithData(ctx, http.StatusTooManyRequests, 42930, "username was changed recently",
				gin.H{"next_change_at": next})
			return
		}
	}

	c := ctx.Request.Context()
	if blocked, err := a.store.IsBlacklisted(c, models.BlacklistKindUsername, username); err != nil {
		utils.Error(ctx, http.StatusServiceUnavailable, 50301, "store unavailable")
		return
	} else if blocked {
		utils.Error(ctx, http.StatusForbidden, 40302, "username is not allowed")
		return
	}

	err := a.store.UpdateUser(c, user.ID, store.UserUpdate{
		Username:                &username,
		UsernameChangedAt:       &now,
		CheckUsernameChangedAt:  true,
		ExpectUsernameChangedAt: user.UsernameChangedAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicate):
			utils.Error(ctx, http.StatusConflict, 40901, "username already exists")
			return
		case errors.Is(err, store.ErrConflict):
			utils.Error(ctx, http.StatusTooManyRequests, 42930, "username was changed recently")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to update profile")
		return
	}
	user.Username = username
	user.UsernameChangedAt = &now
	utils.Success(ctx, userResponse(*user))
}

// currentUser loads the authenticated user or writes the error response.
func (a *AuthController) currentUser(ctx *gin.Context) (*models.User, bool) {
	return loadUser(ctx, a.store)
}

func loadUser(ctx *gin.Context, users store.UserStore) (*models.User, bool) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40108, "unauthorized")
		return nil, false
	}
	user, err := users.GetUser(ctx.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
			return nil, false
		}
		utils.Error(ctx, http.StatusServiceUnavailable, 50301, "store unavailable")
		return nil, false
	}
	return user, true
}

// newReferralCode returns an 8 character upper-case code.
func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
