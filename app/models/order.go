package models

import "time"

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
)

// Order is one purchase attempt against a plan. A paid order starts in
// pending with the Stripe payment intent attached; free and bypass
// orders are created completed with no external identifiers. Completed
// is terminal, orders are never deleted.
type Order struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	OrderNumber           string     `gorm:"type:varchar(36);not null;uniqueIndex" json:"order_number"`
	UserID                uint       `gorm:"not null;index" json:"user_id"`
	PlanID                uint       `gorm:"not null;index" json:"plan_id"`
	Amount                float64    `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency              string     `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Status                string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	StripePaymentIntentID string     `gorm:"type:varchar(191);default:null;uniqueIndex" json:"-"`
	StripeCustomerID      string     `gorm:"type:varchar(191);default:null" json:"-"`
	PaidAt                *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (o *Order) IsCompleted() bool {
	return o.Status == OrderStatusCompleted
}
