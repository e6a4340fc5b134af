package orders

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jobhive/jobhive/app/models"
	"github.com/jobhive/jobhive/internal/pkg/payment"
	"github.com/jobhive/jobhive/internal/pkg/plans"
	"gorm.io/gorm"
)

var (
	// ErrOrderNotFound means the referenced order (by id, number or
	// payment intent) does not exist.
	ErrOrderNotFound = errors.New("order not found")
	// ErrPlanRequiresPayment means a free activation was attempted
	// against a plan that is externally billed.
	ErrPlanRequiresPayment = errors.New("plan requires payment")
	// ErrPlanNotExternallyBilled means a payment intent was requested
	// for a free or bypass plan.
	ErrPlanNotExternallyBilled = errors.New("plan is not billed externally")
	// ErrPaymentNotSucceeded means manual confirmation found the
	// payment intent in a non-succeeded state at the processor.
	ErrPaymentNotSucceeded = errors.New("payment has not succeeded")
)

// UserStore is the slice of the user repository the order service
// needs: reading a user and persisting the external customer id.
type UserStore interface {
	GetByID(id uint) (*models.User, error)
	Update(user *models.User) error
}

// Service is the order ledger plus the reconciliation orchestrator: it
// creates orders, matches external payment confirmations to them and
// grants the application quota atomically with order completion.
type Service struct {
	repo      Repository
	plans     plans.Repository
	users     UserStore
	processor payment.Processor
}

// NewService creates an order service from injected dependencies.
func NewService(repo Repository, planRepo plans.Repository, users UserStore, processor payment.Processor) *Service {
	return &Service{
		repo:      repo,
		plans:     planRepo,
		users:     users,
		processor: processor,
	}
}

// NewServiceFromDB wires the service against GORM repositories and the
// Stripe processor configured from the environment.
func NewServiceFromDB(db *gorm.DB, users UserStore) *Service {
	return NewService(NewRepository(db), plans.NewRepository(db), users, payment.NewStripeProcessorFromEnv())
}

// CreateIntentResult is returned by CreatePaymentIntent; the client
// secret completes the payment out-of-band.
type CreateIntentResult struct {
	Order        *models.Order
	ClientSecret string
}

// CreatePaymentIntent starts the paid purchase flow: it ensures the
// user has a Stripe customer, opens a payment intent for the plan's
// price and records a pending order carrying the intent id.
func (s *Service) CreatePaymentIntent(ctx context.Context, userID, planID uint) (*CreateIntentResult, error) {
	plan, err := s.plans.GetByID(planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive() {
		return nil, plans.ErrPlanInactive
	}
	if plan.BillingKind() != models.BillingKindExternal {
		return nil, ErrPlanNotExternallyBilled
	}

	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user.StripeCustomerID == "" {
		customerID, err := s.processor.CreateCustomer(ctx, user.Email, user.Name, user.ID)
		if err != nil {
			return nil, err
		}
		user.StripeCustomerID = customerID
		if err := s.users.Update(user); err != nil {
			return nil, err
		}
	}

	orderNumber := uuid.NewString()
	intent, err := s.processor.CreatePaymentIntent(ctx, payment.IntentInput{
		CustomerID:  user.StripeCustomerID,
		Currency:    plan.Currency,
		AmountMinor: payment.MinorUnits(plan.Price),
		OrderNumber: orderNumber,
		UserID:      user.ID,
	})
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		OrderNumber:           orderNumber,
		UserID:                user.ID,
		PlanID:                plan.ID,
		Amount:                plan.Price,
		Currency:              plan.Currency,
		Status:                models.OrderStatusPending,
		StripePaymentIntentID: intent.ID,
		StripeCustomerID:      user.StripeCustomerID,
	}
	if err := s.repo.Create(order); err != nil {
		return nil, err
	}

	return &CreateIntentResult{Order: order, ClientSecret: intent.ClientSecret}, nil
}

// ActivateFreePlan creates a completed order for a free or bypass plan
// and grants the quota, both in one transaction. No external
// identifiers are involved.
func (s *Service) ActivateFreePlan(ctx context.Context, userID, planID uint) (*models.Order, error) {
	plan, err := s.plans.GetByID(planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive() {
		return nil, plans.ErrPlanInactive
	}
	if plan.BillingKind() == models.BillingKindExternal {
		return nil, ErrPlanRequiresPayment
	}

	if _, err := s.users.GetByID(userID); err != nil {
		return nil, err
	}

	now := time.Now()
	order := &models.Order{
		OrderNumber: uuid.NewString(),
		UserID:      userID,
		PlanID:      plan.ID,
		Amount:      plan.Price,
		Currency:    plan.Currency,
		Status:      models.OrderStatusCompleted,
		PaidAt:      &now,
	}
	if err := s.repo.CreateCompletedWithGrant(order, plan.DailyApplicationLimit); err != nil {
		return nil, err
	}
	return order, nil
}

// ConfirmByIntent reconciles an external payment confirmation with the
// local order carrying that intent id. It is safe to invoke any number
// of times: only the first call transitions the order and grants the
// quota, later calls return the completed order unchanged.
func (s *Service) ConfirmByIntent(ctx context.Context, intentID string) (*models.Order, error) {
	order, err := s.repo.GetByPaymentIntentID(intentID)
	if err != nil {
		return nil, err
	}
	return s.complete(order)
}

// ConfirmByOrderNumber is the manual confirmation path. It verifies
// with the processor that the payment intent actually succeeded before
// running the same reconciliation as the webhook path. Orders of other
// users are reported as not found.
func (s *Service) ConfirmByOrderNumber(ctx context.Context, userID uint, orderNumber string) (*models.Order, error) {
	order, err := s.repo.GetByOrderNumber(orderNumber)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	if order.IsCompleted() {
		return order, nil
	}

	if order.StripePaymentIntentID != "" {
		intent, err := s.processor.GetPaymentIntent(ctx, order.StripePaymentIntentID)
		if err != nil {
			return nil, err
		}
		if intent.Status != "succeeded" {
			return nil, ErrPaymentNotSucceeded
		}
	}

	return s.complete(order)
}

// LatestOrder returns the user's most recent order.
func (s *Service) LatestOrder(ctx context.Context, userID uint) (*models.Order, error) {
	return s.repo.LatestByUserID(userID)
}

// HandleWebhookEvent feeds a verified webhook event into the
// reconciliation flow. Events without a payment intent reference and
// intents with no matching order are acknowledged and logged, never
// surfaced as errors, so the processor does not retry forever.
func (s *Service) HandleWebhookEvent(ctx context.Context, event *payment.WebhookEvent) error {
	switch event.Type {
	case "payment_intent.succeeded", "checkout.session.completed":
	default:
		return nil
	}
	if event.PaymentIntentID == "" {
		log.Printf("orders: webhook event %s (%s) carries no payment intent, ignoring", event.ID, event.Type)
		return nil
	}

	_, err := s.ConfirmByIntent(ctx, event.PaymentIntentID)
	if errors.Is(err, ErrOrderNotFound) {
		log.Printf("orders: webhook event %s references unknown intent %s, ignoring", event.ID, event.PaymentIntentID)
		return nil
	}
	return err
}

// complete flips a pending order and grants the quota; an already
// completed order is a silent success.
func (s *Service) complete(order *models.Order) (*models.Order, error) {
	if order.IsCompleted() {
		return order, nil
	}

	plan, err := s.plans.GetByID(order.PlanID)
	if err != nil {
		return nil, err
	}

	completedNow, err := s.repo.CompleteWithGrant(order, plan.DailyApplicationLimit)
	if err != nil {
		return nil, err
	}
	if !completedNow {
		// Raced with another confirmation; reload the terminal state.
		return s.repo.GetByID(order.ID)
	}
	return order, nil
}
