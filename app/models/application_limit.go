package models

import "time"

// DefaultDailyApplicationLimit is the allowance a lazily created limit
// row starts with. It only takes effect once a completed order flips
// HasPaid; an unpaid user can never consume applications.
const DefaultDailyApplicationLimit = 15

// ApplicationLimit is the per-user quota enforcement state: the daily
// allowance granted by the most recently completed order, the number of
// applications consumed today and the calendar date of the last reset.
// One row per user, created lazily, never deleted.
type ApplicationLimit struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	DailyLimit    int       `gorm:"not null;default:15" json:"daily_limit"`
	UsedToday     int       `gorm:"not null;default:0" json:"used_today"`
	LastResetDate time.Time `gorm:"type:date;not null" json:"last_reset_date"`
	HasPaid       bool      `gorm:"not null;default:false;index" json:"has_paid"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NeedsReset reports whether the stored reset date falls on a different
// calendar day than now. The comparison is by local date, not a rolling
// 24h window.
func (a *ApplicationLimit) NeedsReset(now time.Time) bool {
	y1, m1, d1 := a.LastResetDate.Date()
	y2, m2, d2 := now.Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

// Remaining returns how many applications the user may still submit
// today. Unpaid users always have zero remaining.
func (a *ApplicationLimit) Remaining() int {
	if !a.HasPaid {
		return 0
	}
	if a.UsedToday >= a.DailyLimit {
		return 0
	}
	return a.DailyLimit - a.UsedToday
}
