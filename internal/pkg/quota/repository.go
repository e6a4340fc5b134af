package quota

import (
	"errors"
	"time"

	"github.com/jobhive/jobhive/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the quota service. The
// ApplicationLimit row is the hottest shared resource per user, so all
// mutations run under row-level locking.
type Repository interface {
	GetByUserID(userID uint) (*models.ApplicationLimit, error)
	Create(limit *models.ApplicationLimit) error
	Save(limit *models.ApplicationLimit) error
	// UpdateLocked loads the user's row FOR UPDATE inside a
	// transaction, applies fn and persists the result. Concurrent
	// writers for the same user serialize; different users never
	// contend.
	UpdateLocked(userID uint, fn func(*models.ApplicationLimit) error) error
	IncrementUsed(userID uint) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a quota repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetByUserID(userID uint) (*models.ApplicationLimit, error) {
	var limit models.ApplicationLimit
	if err := r.db.Where("user_id = ?", userID).First(&limit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLimitNotFound
		}
		return nil, err
	}
	return &limit, nil
}

func (r *gormRepository) Create(limit *models.ApplicationLimit) error {
	return r.db.Create(limit).Error
}

func (r *gormRepository) Save(limit *models.ApplicationLimit) error {
	return r.db.Save(limit).Error
}

func (r *gormRepository) UpdateLocked(userID uint, fn func(*models.ApplicationLimit) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var limit models.ApplicationLimit
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&limit).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLimitNotFound
			}
			return err
		}
		if err := fn(&limit); err != nil {
			return err
		}
		return tx.Save(&limit).Error
	})
}

func (r *gormRepository) IncrementUsed(userID uint) error {
	res := r.db.Model(&models.ApplicationLimit{}).
		Where("user_id = ?", userID).
		UpdateColumn("used_today", gorm.Expr("used_today + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLimitNotFound
	}
	return nil
}

// GrantWithinTx upserts the user's application limit inside the given
// transaction: the row is created paid with the plan's allowance, or an
// existing row gets the new allowance and the paid flag while keeping
// today's counter and reset date. The reconciliation orchestrator calls
// this in the same transaction that completes the order.
func GrantWithinTx(tx *gorm.DB, userID uint, dailyLimit int) error {
	limit := &models.ApplicationLimit{
		UserID:        userID,
		DailyLimit:    dailyLimit,
		UsedToday:     0,
		LastResetDate: Today(),
		HasPaid:       true,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"daily_limit": dailyLimit,
			"has_paid":    true,
			"updated_at":  time.Now(),
		}),
	}).Create(limit).Error
}

// Today returns the current server-local calendar date at midnight.
func Today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
