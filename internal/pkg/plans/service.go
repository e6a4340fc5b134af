package plans

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jobhive/jobhive/app/models"
	"github.com/jobhive/jobhive/internal/pkg/payment"
	"gorm.io/gorm"
)

var (
	// ErrPlanNotFound means the referenced plan does not exist.
	ErrPlanNotFound = errors.New("plan not found")
	// ErrPlanInactive means the plan exists but is no longer offered.
	ErrPlanInactive = errors.New("plan is not active")
)

// Service owns plan definitions and their mirrored Stripe
// product/price representation.
type Service struct {
	repo      Repository
	processor payment.Processor
	validate  *validator.Validate
}

// NewService creates a plan catalog service from injected dependencies.
func NewService(repo Repository, processor payment.Processor) *Service {
	return &Service{
		repo:      repo,
		processor: processor,
		validate:  validator.New(),
	}
}

// NewServiceFromDB creates a plan catalog service from a GORM handle
// and the Stripe processor configured from the environment.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), payment.NewStripeProcessorFromEnv())
}

// CreatePlanInput carries the admin-provided plan definition.
type CreatePlanInput struct {
	Name                  string  `json:"name" validate:"required,min=2,max=150"`
	Description           string  `json:"description" validate:"max=2000"`
	Price                 float64 `json:"price" validate:"gte=0"`
	Currency              string  `json:"currency" validate:"omitempty,len=3"`
	DailyApplicationLimit int     `json:"daily_application_limit" validate:"required,gte=1"`
	SkipExternalBilling   bool    `json:"skip_external_billing"`
}

// UpdatePlanInput is a partial patch; nil fields are left untouched.
type UpdatePlanInput struct {
	Name                  *string `json:"name" validate:"omitempty,min=2,max=150"`
	Description           *string `json:"description" validate:"omitempty,max=2000"`
	DailyApplicationLimit *int    `json:"daily_application_limit" validate:"omitempty,gte=1"`
}

// Create validates the input, provisions the mirrored Stripe product and
// one-time price for externally billed plans, and persists the plan. A
// Stripe failure aborts the whole operation with no local record.
func (s *Service) Create(ctx context.Context, in CreatePlanInput) (*models.Plan, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	currency := strings.ToLower(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "usd"
	}

	plan := &models.Plan{
		Name:                  strings.TrimSpace(in.Name),
		Description:           strings.TrimSpace(in.Description),
		Price:                 in.Price,
		Currency:              currency,
		DailyApplicationLimit: in.DailyApplicationLimit,
		SkipExternalBilling:   in.SkipExternalBilling,
		Status:                models.PlanStatusActive,
	}

	if plan.BillingKind() == models.BillingKindExternal {
		productID, err := s.processor.CreateProduct(ctx, plan.Name, plan.Description)
		if err != nil {
			return nil, err
		}
		priceID, err := s.processor.CreatePrice(ctx, productID, currency, payment.MinorUnits(plan.Price))
		if err != nil {
			// Don't leave an orphaned product behind.
			if archiveErr := s.processor.ArchiveProduct(ctx, productID); archiveErr != nil {
				log.Printf("plans: failed to archive orphaned stripe product %s: %v", productID, archiveErr)
			}
			return nil, err
		}
		plan.StripeProductID = productID
		plan.StripePriceID = priceID
	}

	if err := s.repo.Create(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// ListActive returns the active plans for the given page (1-based) and
// the total count of active plans.
func (s *Service) ListActive(ctx context.Context, page, limit int) ([]models.Plan, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.repo.ListActive((page-1)*limit, limit)
}

// Get returns a plan by id regardless of status.
func (s *Service) Get(ctx context.Context, id uint) (*models.Plan, error) {
	return s.repo.GetByID(id)
}

// Update applies the patch locally and mirrors name/description changes
// to Stripe best-effort. Stripe prices are immutable, so price changes
// are intentionally not automated here.
func (s *Service) Update(ctx context.Context, id uint, in UpdatePlanInput) (*models.Plan, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	plan, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		plan.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		plan.Description = strings.TrimSpace(*in.Description)
	}
	if in.DailyApplicationLimit != nil {
		plan.DailyApplicationLimit = *in.DailyApplicationLimit
	}

	if err := s.repo.Save(plan); err != nil {
		return nil, err
	}

	if plan.StripeProductID != "" && (in.Name != nil || in.Description != nil) {
		if err := s.processor.UpdateProduct(ctx, plan.StripeProductID, plan.Name, plan.Description); err != nil {
			log.Printf("plans: stripe product mirror update failed for plan %d: %v", plan.ID, err)
		}
	}

	return plan, nil
}

// Deactivate archives the mirrored Stripe price and product, then flips
// the local status to inactive. The external archival must succeed
// before the plan is hidden; archiving an already-inactive resource is
// treated as success by the processor.
func (s *Service) Deactivate(ctx context.Context, id uint) (*models.Plan, error) {
	plan, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if plan.Status == models.PlanStatusInactive {
		return plan, nil
	}

	if plan.StripePriceID != "" {
		if err := s.processor.ArchivePrice(ctx, plan.StripePriceID); err != nil {
			return nil, err
		}
	}
	if plan.StripeProductID != "" {
		if err := s.processor.ArchiveProduct(ctx, plan.StripeProductID); err != nil {
			return nil, err
		}
	}

	plan.Status = models.PlanStatusInactive
	if err := s.repo.Save(plan); err != nil {
		return nil, err
	}
	return plan, nil
}
