package orders

import (
	"errors"
	"time"

	"github.com/jobhive/jobhive/app/models"
	"github.com/jobhive/jobhive/internal/pkg/quota"
	"gorm.io/gorm"
)

// Repository provides DB operations used by the order service. The
// completion paths bundle the order flip and the quota grant into one
// transaction so no observer can see one applied without the other.
type Repository interface {
	Create(order *models.Order) error
	GetByID(id uint) (*models.Order, error)
	GetByOrderNumber(orderNumber string) (*models.Order, error)
	GetByPaymentIntentID(intentID string) (*models.Order, error)
	LatestByUserID(userID uint) (*models.Order, error)
	// CreateCompletedWithGrant persists an already-completed order
	// (free/bypass activation) and grants the quota atomically.
	CreateCompletedWithGrant(order *models.Order, dailyLimit int) error
	// CompleteWithGrant flips a pending order to completed and grants
	// the quota in one transaction. The status guard in the UPDATE
	// makes the transition at-most-once: when the order was already
	// completed it reports false and performs no writes.
	CompleteWithGrant(order *models.Order, dailyLimit int) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an order repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

func (r *gormRepository) GetByID(id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.First(&order, id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &order, nil
}

func (r *gormRepository) GetByOrderNumber(orderNumber string) (*models.Order, error) {
	var order models.Order
	if err := r.db.Where("order_number = ?", orderNumber).First(&order).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &order, nil
}

func (r *gormRepository) GetByPaymentIntentID(intentID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.Where("stripe_payment_intent_id = ?", intentID).First(&order).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &order, nil
}

func (r *gormRepository) LatestByUserID(userID uint) (*models.Order, error) {
	var order models.Order
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").First(&order).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &order, nil
}

func (r *gormRepository) CreateCompletedWithGrant(order *models.Order, dailyLimit int) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(order).Error; err != nil {
			return err
		}
		return quota.GrantWithinTx(tx, order.UserID, dailyLimit)
	})
}

func (r *gormRepository) CompleteWithGrant(order *models.Order, dailyLimit int) (bool, error) {
	completedNow := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, models.OrderStatusPending).
			Updates(map[string]interface{}{
				"status":  models.OrderStatusCompleted,
				"paid_at": &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race or replayed delivery: the order is already
			// completed and the grant already happened.
			return nil
		}
		completedNow = true
		order.Status = models.OrderStatusCompleted
		order.PaidAt = &now
		return quota.GrantWithinTx(tx, order.UserID, dailyLimit)
	})
	return completedNow, err
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrOrderNotFound
	}
	return err
}
