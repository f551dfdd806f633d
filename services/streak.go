package services

import (
	"fmt"
	"sort"
	"time"
)

// NextStreak returns the streak a user holds after claiming at now.
//
// Streaks count consecutive UTC calendar days with at least one claim. A claim
// on the day after the previous one extends the streak, a second claim on the
// same day keeps it, and anything older starts over at 1.
func NextStreak(prevStreak int, lastClaim *time.Time, now time.Time) (int, error) {
	if prevStreak < 0 {
		return 0, fmt.Errorf("%w: negative streak %d", ErrValidation, prevStreak)
	}
	if lastClaim == nil {
		return 1, nil
	}
	switch days := daysBetween(*lastClaim, now); {
	case days <= 0:
		return max(prevStreak, 1), nil
	case days == 1:
		return prevStreak + 1, nil
	default:
		return 1, nil
	}
}

// EffectiveStreak is the streak the user still holds at now: zero once a whole
// UTC day passed without a claim.
func EffectiveStreak(streak int, lastClaim *time.Time, now time.Time) int {
	if lastClaim == nil || streak < 0 {
		return 0
	}
	if daysBetween(*lastClaim, now) > 1 {
		return 0
	}
	return streak
}

// LongestStreak is the longest run of consecutive UTC days found in a claim
// history. It is reported by analytics only and never feeds rewards.
func LongestStreak(claimTimes []time.Time) int {
	if len(claimTimes) == 0 {
		return 0
	}
	days := make([]time.Time, 0, len(claimTimes))
	seen := make(map[time.Time]struct{}, len(claimTimes))
	for _, t := range claimTimes {
		d := UTCDay(t)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		if daysBetween(days[i-1], days[i]) == 1 {
			run++
		} else {
			run = 1
		}
		longest = max(longest, run)
	}
	return longest
}
