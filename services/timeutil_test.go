package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsClaimAllowed(t *testing.T) {
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		t := now.Add(-d)
		return &t
	}

	tests := []struct {
		name string
		last *time.Time
		want bool
	}{
		{"never claimed", nil, true},
		{"just claimed", at(0), false},
		{"one nanosecond short", at(DefaultCooldown - time.Nanosecond), false},
		{"exactly at cooldown", at(DefaultCooldown), true},
		{"long ago", at(72 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsClaimAllowed(tt.last, now, DefaultCooldown))
		})
	}
}

func TestTimeUntilNextClaim(t *testing.T) {
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	assert.Zero(t, TimeUntilNextClaim(nil, now, DefaultCooldown))

	fiveHoursAgo := now.Add(-5 * time.Hour)
	assert.Equal(t, time.Hour, TimeUntilNextClaim(&fiveHoursAgo, now, DefaultCooldown))

	longAgo := now.Add(-10 * time.Hour)
	assert.Zero(t, TimeUntilNextClaim(&longAgo, now, DefaultCooldown))
}

func TestNextClaimAt(t *testing.T) {
	assert.Nil(t, NextClaimAt(nil, DefaultCooldown))

	last := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	next := NextClaimAt(&last, DefaultCooldown)
	require.NotNil(t, next)
	assert.Equal(t, last.Add(6*time.Hour), *next)
}

func TestUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 02:00 on the 3rd in UTC+9 is still the 2nd in UTC.
	local := time.Date(2026, 4, 3, 2, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC), UTCDay(local))
}
