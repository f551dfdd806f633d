package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/bottlecaps/store"
	"github.com/cppla/bottlecaps/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
	// ContextTokenKey keeps the raw bearer token so logout can revoke it.
	ContextTokenKey = "token"
	// ContextTokenExpiryKey holds the token's expiry as time.Time.
	ContextTokenExpiryKey = "token_expires_at"
)

// AuthRequired ensures the request is authenticated via JWT.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "authorization header missing")
			ctx.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.Error(ctx, http.StatusUnauthorized, 40102, "invalid authorization header format")
			ctx.Abort()
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40103, "empty bearer token")
			ctx.Abort()
			return
		}

		if utils.IsTokenRevoked(tokenString) {
			utils.Error(ctx, http.StatusUnauthorized, 40104, "token revoked")
			ctx.Abort()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextUsernameKey, claims.Username)
		ctx.Set(ContextTokenKey, tokenString)
		if claims.ExpiresAt != nil {
			ctx.Set(ContextTokenExpiryKey, claims.ExpiresAt.Time)
		}
		ctx.Next()
	}
}

// AdminRequired must run after AuthRequired. The admin flag is read from the
// store on every request so a revoked admin loses access before the token expires.
func AdminRequired(users store.UserStore) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		userID := ctx.GetString(ContextUserIDKey)
		if userID == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "authorization required")
			ctx.Abort()
			return
		}
		user, err := users.GetUser(ctx.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				utils.Error(ctx, http.StatusUnauthorized, 40106, "user no longer exists")
			} else {
				utils.Error(ctx, http.StatusServiceUnavailable, 50330, "store unavailable")
			}
			ctx.Abort()
			return
		}
		if !user.IsAdmin || user.IsBanned {
			utils.Error(ctx, http.StatusForbidden, 40320, "admin privileges required")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
