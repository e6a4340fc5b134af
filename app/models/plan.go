package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	PlanStatusActive   = "active"
	PlanStatusInactive = "inactive"
)

// BillingKind is the billing variant of a plan, decided once at creation
// time from price and the skip flag. Downstream code switches on the kind
// instead of re-deriving it from raw fields.
type BillingKind string

const (
	BillingKindFree     BillingKind = "free"
	BillingKindBypass   BillingKind = "bypass"
	BillingKindExternal BillingKind = "external"
)

// Plan is a purchasable tier defining the price and the daily number of
// job applications a candidate may submit. Paid plans mirror a Stripe
// product and a one-time price; free and bypass plans never carry
// external identifiers.
type Plan struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	Name                  string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Description           string    `gorm:"type:text" json:"description" validate:"max=2000"`
	Price                 float64   `gorm:"type:decimal(10,2);not null;default:0" json:"price" validate:"gte=0"`
	Currency              string    `gorm:"type:varchar(3);not null;default:'usd'" json:"currency" validate:"required,len=3"`
	DailyApplicationLimit int       `gorm:"not null;default:15" json:"daily_application_limit" validate:"gte=1"`
	SkipExternalBilling   bool      `gorm:"default:false" json:"skip_external_billing"`
	StripeProductID       string    `gorm:"type:varchar(191);default:null" json:"-"`
	StripePriceID         string    `gorm:"type:varchar(191);default:null" json:"-"`
	Status                string    `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Plan) Validate() error {
	v := validator.New()

	return v.Struct(p)
}

// BillingKind classifies the plan. Zero-cost plans are free, flagged
// plans bypass Stripe entirely, everything else is externally billed.
func (p *Plan) BillingKind() BillingKind {
	if p.Price == 0 {
		return BillingKindFree
	}
	if p.SkipExternalBilling {
		return BillingKindBypass
	}
	return BillingKindExternal
}

// IsPurchasableWithoutPayment reports whether the plan may be activated
// directly, with no payment intent involved.
func (p *Plan) IsPurchasableWithoutPayment() bool {
	return p.BillingKind() != BillingKindExternal
}

func (p *Plan) IsActive() bool {
	return p.Status == PlanStatusActive
}
