package utils

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cppla/bottlecaps/config"
)

func regKey(parts ...string) string {
	key := "caps:reg"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// RegistrationCooldownTry enforces a short cooldown between registration
// attempts per IP. It returns false while the IP is cooling down.
func RegistrationCooldownTry(ip string) bool {
	cooldown := config.Get().RegisterCooldown
	if cooldown <= 0 {
		return true
	}
	key := regKey("cooldown", ip)
	if cli := GetRedis(); cli != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		ok, err := cli.SetNX(ctx, key, "1", cooldown).Result()
		if err != nil {
			return true
		} // fail-open
		return ok
	}
	return localTTL.setNX(key, cooldown)
}

// RegistrationDailyLimitCheck allows up to N successful registrations per UTC day per IP.
func RegistrationDailyLimitCheck(ip string) bool {
	limit := config.Get().RegisterMaxPerIPPerDay
	if limit <= 0 {
		return true
	}
	key := regKey("succday", ip, time.Now().UTC().Format("20060102"))
	if cli := GetRedis(); cli != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		n, err := cli.Get(ctx, key).Int()
		if err == redis.Nil {
			n = 0
		} else if err != nil {
			return true
		}
		return n < limit
	}
	return localTTL.get(key) < int64(limit)
}

// RegistrationDailyIncrement increments the success counter for today.
func RegistrationDailyIncrement(ip string) {
	now := time.Now().UTC()
	key := regKey("succday", ip, now.Format("20060102"))
	ttl := now.Truncate(24 * time.Hour).Add(24 * time.Hour).Sub(now)
	if cli := GetRedis(); cli != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		if err := cli.Incr(ctx, key).Err(); err == nil {
			_ = cli.Expire(ctx, key, ttl).Err()
		}
		return
	}
	localTTL.incr(key, ttl)
}
