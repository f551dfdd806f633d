package utils

import (
	"context"
	"time"
)

const revokedTokenPrefix = "caps:jwt:revoked:"

// RevokeToken marks a token as revoked until its natural expiration to support
// logout semantics.
func RevokeToken(token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	// Prefer Redis: key with TTL until token expiration
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, revokedTokenPrefix+token, "1", ttl).Err(); err == nil {
			return
		}
	}
	localTTL.set(revokedTokenPrefix+token, ttl)
}

// IsTokenRevoked checks if a token was revoked before natural expiration.
func IsTokenRevoked(token string) bool {
	if localTTL.exists(revokedTokenPrefix + token) {
		return true
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := rc.Exists(ctx, revokedTokenPrefix+token).Result()
		// On Redis error fail open to avoid locking everyone out
		return err == nil && n > 0
	}
	return false
}
