package quota

import (
	"context"
	"errors"
	"time"

	"github.com/jobhive/jobhive/app/models"
	"gorm.io/gorm"
)

var (
	// ErrLimitNotFound means the user has no application limit row yet.
	ErrLimitNotFound = errors.New("application limit not found")
)

// CheckResult is the enforcement gate's decision for one user.
type CheckResult struct {
	CanApply   bool `json:"can_apply"`
	Remaining  int  `json:"remaining"`
	DailyLimit int  `json:"daily_limit"`
	UsedToday  int  `json:"used_today"`
	HasPaid    bool `json:"has_paid"`
}

// Service tracks per-user daily application quotas and enforces them.
type Service struct {
	repo Repository
	// now is swapped in tests to pin the calendar day.
	now func() time.Time
}

// NewService creates a quota service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NewServiceFromDB creates a quota service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// Check reports whether the user may submit another application today.
// The limit row is created lazily with defaults; it grants nothing
// until a completed order flips the paid flag. A new calendar day
// resets the counter before the decision is made.
func (s *Service) Check(ctx context.Context, userID uint) (CheckResult, error) {
	limit, err := s.ensureLimit(userID)
	if err != nil {
		return CheckResult{}, err
	}

	if !limit.HasPaid {
		return resultFrom(limit, false), nil
	}

	if limit.NeedsReset(s.now()) {
		if err := s.repo.UpdateLocked(userID, func(l *models.ApplicationLimit) error {
			// Re-check under the row lock; a concurrent request may
			// have reset already.
			if l.NeedsReset(s.now()) {
				l.UsedToday = 0
				l.LastResetDate = s.today()
			}
			return nil
		}); err != nil {
			return CheckResult{}, err
		}
		limit, err = s.repo.GetByUserID(userID)
		if err != nil {
			return CheckResult{}, err
		}
	}

	return resultFrom(limit, limit.UsedToday < limit.DailyLimit), nil
}

// Increment consumes one application slot. Callers are expected to have
// seen CanApply=true from Check first; the two calls are not atomic
// together, so concurrent submitters can overshoot the allowance by the
// number of in-flight requests. Reserve is the strict alternative.
func (s *Service) Increment(ctx context.Context, userID uint) error {
	return s.repo.IncrementUsed(userID)
}

// Reserve atomically re-validates the quota and consumes one slot under
// the row lock, returning the decision together with the post-reserve
// state. Exhausted quota is a denial, not an error.
func (s *Service) Reserve(ctx context.Context, userID uint) (CheckResult, error) {
	if _, err := s.ensureLimit(userID); err != nil {
		return CheckResult{}, err
	}

	var out CheckResult
	err := s.repo.UpdateLocked(userID, func(l *models.ApplicationLimit) error {
		if l.NeedsReset(s.now()) {
			l.UsedToday = 0
			l.LastResetDate = s.today()
		}
		if !l.HasPaid || l.UsedToday >= l.DailyLimit {
			out = resultFrom(l, false)
			return nil
		}
		l.UsedToday++
		out = resultFrom(l, true)
		return nil
	})
	if err != nil {
		return CheckResult{}, err
	}
	return out, nil
}

// Grant marks the user as paid with the given allowance outside of any
// order reconciliation, creating the row if needed.
func (s *Service) Grant(ctx context.Context, userID uint, dailyLimit int) error {
	limit, err := s.ensureLimit(userID)
	if err != nil {
		return err
	}
	return s.repo.UpdateLocked(limit.UserID, func(l *models.ApplicationLimit) error {
		l.DailyLimit = dailyLimit
		l.HasPaid = true
		return nil
	})
}

// UpdateDailyLimit is the administrative allowance override. It applies
// only to an existing limit row; a user with no row has never completed
// an order nor hit the gate, and the override fails as not-found. The
// next completed order's grant overwrites the override with the plan's
// allowance.
func (s *Service) UpdateDailyLimit(ctx context.Context, userID uint, newLimit int) (*models.ApplicationLimit, error) {
	if err := s.repo.UpdateLocked(userID, func(l *models.ApplicationLimit) error {
		l.DailyLimit = newLimit
		return nil
	}); err != nil {
		return nil, err
	}
	return s.repo.GetByUserID(userID)
}

// ensureLimit lazily creates the user's limit row with defaults.
func (s *Service) ensureLimit(userID uint) (*models.ApplicationLimit, error) {
	limit, err := s.repo.GetByUserID(userID)
	if err == nil {
		return limit, nil
	}
	if !errors.Is(err, ErrLimitNotFound) {
		return nil, err
	}

	limit = &models.ApplicationLimit{
		UserID:        userID,
		DailyLimit:    models.DefaultDailyApplicationLimit,
		UsedToday:     0,
		LastResetDate: s.today(),
		HasPaid:       false,
	}
	if err := s.repo.Create(limit); err != nil {
		// A concurrent request may have created the row first.
		if existing, getErr := s.repo.GetByUserID(userID); getErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return limit, nil
}

func (s *Service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func resultFrom(l *models.ApplicationLimit, canApply bool) CheckResult {
	return CheckResult{
		CanApply:   canApply,
		Remaining:  l.Remaining(),
		DailyLimit: l.DailyLimit,
		UsedToday:  l.UsedToday,
		HasPaid:    l.HasPaid,
	}
}
