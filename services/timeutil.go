package services

import "time"

// DefaultCooldown is the minimum gap between two claims.
const DefaultCooldown = 6 * time.Hour

// IsClaimAllowed reports whether a user whose last claim was at lastClaim may
// claim at now. A user who never claimed may always claim.
func IsClaimAllowed(lastClaim *time.Time, now time.Time, cooldown time.Duration) bool {
	if lastClaim == nil {
		return true
	}
	return now.Sub(*lastClaim) >= cooldown
}

// TimeUntilNextClaim returns how long until the next claim is allowed, never
// negative.
func TimeUntilNextClaim(lastClaim *time.Time, now time.Time, cooldown time.Duration) time.Duration {
	if lastClaim == nil {
		return 0
	}
	remaining := lastClaim.Add(cooldown).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NextClaimAt returns the instant the next claim opens, or nil when the user
// never claimed.
func NextClaimAt(lastClaim *time.Time, cooldown time.Duration) *time.Time {
	if lastClaim == nil {
		return nil
	}
	t := lastClaim.Add(cooldown)
	return &t
}

// UTCDay truncates t to midnight of its UTC calendar day.
func UTCDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// daysBetween counts UTC calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return int(UTCDay(b).Sub(UTCDay(a)).Hours() / 24)
}
