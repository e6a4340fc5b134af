package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplicationLimitNeedsReset(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.Local)

	sameDay := ApplicationLimit{LastResetDate: time.Date(2025, 6, 15, 0, 0, 0, 0, time.Local)}
	assert.False(t, sameDay.NeedsReset(now))

	yesterday := ApplicationLimit{LastResetDate: time.Date(2025, 6, 14, 23, 59, 0, 0, time.Local)}
	assert.True(t, yesterday.NeedsReset(now))

	lastMonth := ApplicationLimit{LastResetDate: time.Date(2025, 5, 15, 0, 0, 0, 0, time.Local)}
	assert.True(t, lastMonth.NeedsReset(now))
}

func TestApplicationLimitRemaining(t *testing.T) {
	unpaid := ApplicationLimit{DailyLimit: 15, UsedToday: 0, HasPaid: false}
	assert.Equal(t, 0, unpaid.Remaining())

	paid := ApplicationLimit{DailyLimit: 15, UsedToday: 5, HasPaid: true}
	assert.Equal(t, 10, paid.Remaining())

	exhausted := ApplicationLimit{DailyLimit: 15, UsedToday: 15, HasPaid: true}
	assert.Equal(t, 0, exhausted.Remaining())

	// Counter may overshoot the allowance under legacy check/increment
	// callers; remaining still clamps at zero.
	overshot := ApplicationLimit{DailyLimit: 15, UsedToday: 17, HasPaid: true}
	assert.Equal(t, 0, overshot.Remaining())
}
