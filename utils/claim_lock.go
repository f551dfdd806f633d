package utils

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const claimLockPrefix = "caps:claim:lock:"

// releaseClaimLock deletes the lock only while it still carries our token. A
// holder whose lock expired must not remove the next holder's lock.
var releaseClaimLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TryClaimLock takes a short per-user lock around a claim request so bursts
// from one client do not all reach the database. It fails open: when Redis
// errors the request proceeds and the store's conditional update still
// decides. The returned release func is always non-nil and only removes the
// lock this call acquired.
func TryClaimLock(ctx context.Context, userID string, ttl time.Duration) (release func(), ok bool) {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	key := claimLockPrefix + userID
	token := uuid.NewString()

	if rc := GetRedis(); rc != nil {
		lctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		acquired, err := rc.SetNX(lctx, key, token, ttl).Result()
		if err != nil {
			Logger.Warn("claim lock unavailable, proceeding without it", zap.String("user_id", userID), zap.Error(err))
			return func() {}, true
		}
		if !acquired {
			return func() {}, false
		}
		return func() {
			dctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()
			if err := releaseClaimLock.Run(dctx, rc, []string{key}, token).Err(); err != nil {
				Logger.Warn("claim lock release failed", zap.String("user_id", userID), zap.Error(err))
			}
		}, true
	}

	if !localTTL.setNXOwned(key, token, ttl) {
		return func() {}, false
	}
	return func() { localTTL.delOwned(key, token) }, true
}
