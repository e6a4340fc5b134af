package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jobhive/jobhive/app/models"
	"github.com/jobhive/jobhive/internal/pkg/payment"
	"github.com/jobhive/jobhive/internal/pkg/plans"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderRepo struct {
	orders []*models.Order
	nextID uint
	// grants records the allowance granted per user, in call order.
	grants map[uint][]int
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{nextID: 1, grants: make(map[uint][]int)}
}

func (r *fakeOrderRepo) Create(order *models.Order) error {
	order.ID = r.nextID
	r.nextID++
	cp := *order
	r.orders = append(r.orders, &cp)
	return nil
}

func (r *fakeOrderRepo) GetByID(id uint) (*models.Order, error) {
	for _, o := range r.orders {
		if o.ID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (r *fakeOrderRepo) GetByOrderNumber(orderNumber string) (*models.Order, error) {
	for _, o := range r.orders {
		if o.OrderNumber == orderNumber {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (r *fakeOrderRepo) GetByPaymentIntentID(intentID string) (*models.Order, error) {
	for _, o := range r.orders {
		if o.StripePaymentIntentID == intentID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (r *fakeOrderRepo) LatestByUserID(userID uint) (*models.Order, error) {
	for i := len(r.orders) - 1; i >= 0; i-- {
		if r.orders[i].UserID == userID {
			cp := *r.orders[i]
			return &cp, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (r *fakeOrderRepo) CreateCompletedWithGrant(order *models.Order, dailyLimit int) error {
	if err := r.Create(order); err != nil {
		return err
	}
	r.grants[order.UserID] = append(r.grants[order.UserID], dailyLimit)
	return nil
}

func (r *fakeOrderRepo) CompleteWithGrant(order *models.Order, dailyLimit int) (bool, error) {
	for _, o := range r.orders {
		if o.ID == order.ID {
			if o.Status != models.OrderStatusPending {
				return false, nil
			}
			now := time.Now()
			o.Status = models.OrderStatusCompleted
			o.PaidAt = &now
			order.Status = o.Status
			order.PaidAt = o.PaidAt
			r.grants[o.UserID] = append(r.grants[o.UserID], dailyLimit)
			return true, nil
		}
	}
	return false, ErrOrderNotFound
}

type fakePlanRepo struct {
	plans map[uint]*models.Plan
}

func (r *fakePlanRepo) Create(plan *models.Plan) error { return nil }

func (r *fakePlanRepo) GetByID(id uint) (*models.Plan, error) {
	p, ok := r.plans[id]
	if !ok {
		return nil, plans.ErrPlanNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePlanRepo) ListActive(offset, limit int) ([]models.Plan, int64, error) {
	return nil, 0, nil
}

func (r *fakePlanRepo) Save(plan *models.Plan) error { return nil }

type fakeUserStore struct {
	users map[uint]*models.User
}

func (s *fakeUserStore) GetByID(id uint) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) Update(user *models.User) error {
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

type fakeProcessor struct {
	customers    int
	intents      int
	intentStatus string
	intentErr    error
}

func (f *fakeProcessor) CreateProduct(ctx context.Context, name, description string) (string, error) {
	return "prod_test", nil
}

func (f *fakeProcessor) UpdateProduct(ctx context.Context, productID, name, description string) error {
	return nil
}

func (f *fakeProcessor) ArchiveProduct(ctx context.Context, productID string) error { return nil }

func (f *fakeProcessor) CreatePrice(ctx context.Context, productID, currency string, amountMinor int64) (string, error) {
	return "price_test", nil
}

func (f *fakeProcessor) ArchivePrice(ctx context.Context, priceID string) error { return nil }

func (f *fakeProcessor) CreateCustomer(ctx context.Context, email, name string, userID uint) (string, error) {
	f.customers++
	return "cus_test", nil
}

func (f *fakeProcessor) CreatePaymentIntent(ctx context.Context, in payment.IntentInput) (*payment.Intent, error) {
	if f.intentErr != nil {
		return nil, f.intentErr
	}
	f.intents++
	return &payment.Intent{ID: "pi_test", ClientSecret: "pi_test_secret", CustomerID: in.CustomerID}, nil
}

func (f *fakeProcessor) GetPaymentIntent(ctx context.Context, id string) (*payment.Intent, error) {
	status := f.intentStatus
	if status == "" {
		status = "succeeded"
	}
	return &payment.Intent{ID: id, Status: status}, nil
}

func (f *fakeProcessor) ConstructWebhookEvent(payload []byte, sigHeader string) (*payment.WebhookEvent, error) {
	return nil, errors.New("not implemented")
}

func newTestService() (*Service, *fakeOrderRepo, *fakePlanRepo, *fakeUserStore, *fakeProcessor) {
	orderRepo := newFakeOrderRepo()
	planRepo := &fakePlanRepo{plans: map[uint]*models.Plan{
		1: {ID: 1, Name: "Starter", Price: 0, Currency: "usd", DailyApplicationLimit: 15, Status: models.PlanStatusActive},
		2: {ID: 2, Name: "Pro", Price: 9.99, Currency: "usd", DailyApplicationLimit: 50, Status: models.PlanStatusActive},
		3: {ID: 3, Name: "Comp", Price: 4.99, Currency: "usd", DailyApplicationLimit: 30, SkipExternalBilling: true, Status: models.PlanStatusActive},
	}}
	users := &fakeUserStore{users: map[uint]*models.User{
		7: {ID: 7, Name: "Alice Candidate", Email: "alice@example.com"},
	}}
	proc := &fakeProcessor{}
	svc := NewService(orderRepo, planRepo, users, proc)
	return svc, orderRepo, planRepo, users, proc
}

func TestActivateFreePlanGrantsQuota(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	order, err := svc.ActivateFreePlan(context.Background(), 7, 1)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.NotNil(t, order.PaidAt)
	assert.Empty(t, order.StripePaymentIntentID)
	assert.Empty(t, order.StripeCustomerID)
	assert.Equal(t, []int{15}, repo.grants[7])
}

func TestActivateFreePlanOnBypassPlan(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	order, err := svc.ActivateFreePlan(context.Background(), 7, 3)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.Empty(t, order.StripePaymentIntentID)
	assert.Equal(t, []int{30}, repo.grants[7])
}

func TestActivateFreePlanRejectsPaidPlan(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	_, err := svc.ActivateFreePlan(context.Background(), 7, 2)
	assert.ErrorIs(t, err, ErrPlanRequiresPayment)
	assert.Empty(t, repo.orders)
}

func TestCreatePaymentIntentLeavesQuotaUntouched(t *testing.T) {
	svc, repo, _, users, proc := newTestService()

	res, err := svc.CreatePaymentIntent(context.Background(), 7, 2)
	require.NoError(t, err)

	assert.Equal(t, "pi_test_secret", res.ClientSecret)
	assert.Equal(t, models.OrderStatusPending, res.Order.Status)
	assert.Equal(t, "pi_test", res.Order.StripePaymentIntentID)
	assert.Empty(t, repo.grants[7], "quota unaffected until reconciliation")

	// Customer was created once and persisted on the user.
	assert.Equal(t, 1, proc.customers)
	assert.Equal(t, "cus_test", users.users[7].StripeCustomerID)
}

func TestCreatePaymentIntentReusesStripeCustomer(t *testing.T) {
	svc, _, _, users, proc := newTestService()
	users.users[7].StripeCustomerID = "cus_existing"

	res, err := svc.CreatePaymentIntent(context.Background(), 7, 2)
	require.NoError(t, err)

	assert.Equal(t, 0, proc.customers)
	assert.Equal(t, "cus_existing", res.Order.StripeCustomerID)
}

func TestCreatePaymentIntentRejectsFreePlan(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	_, err := svc.CreatePaymentIntent(context.Background(), 7, 1)
	assert.ErrorIs(t, err, ErrPlanNotExternallyBilled)
}

func TestCreatePaymentIntentInactivePlan(t *testing.T) {
	svc, _, planRepo, _, _ := newTestService()
	planRepo.plans[2].Status = models.PlanStatusInactive

	_, err := svc.CreatePaymentIntent(context.Background(), 7, 2)
	assert.ErrorIs(t, err, plans.ErrPlanInactive)
}

func TestConfirmByIntentIsIdempotent(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	res, err := svc.CreatePaymentIntent(context.Background(), 7, 2)
	require.NoError(t, err)

	first, err := svc.ConfirmByIntent(context.Background(), "pi_test")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, first.Status)
	assert.Equal(t, []int{50}, repo.grants[7])

	// Second delivery of the same confirmation is a no-op.
	second, err := svc.ConfirmByIntent(context.Background(), "pi_test")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, second.Status)
	assert.Equal(t, []int{50}, repo.grants[7], "quota granted exactly once")
	assert.Equal(t, res.Order.ID, second.ID)
}

func TestConfirmByIntentUnknownIntent(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	_, err := svc.ConfirmByIntent(context.Background(), "pi_unknown")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestHandleWebhookEventUnmatchedIntentIsAcknowledged(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	err := svc.HandleWebhookEvent(context.Background(), &payment.WebhookEvent{
		ID:              "evt_1",
		Type:            "payment_intent.succeeded",
		PaymentIntentID: "pi_unknown",
	})
	assert.NoError(t, err, "unmatched events must not bubble up to the processor")
}

func TestHandleWebhookEventDeliveredTwice(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	_, err := svc.CreatePaymentIntent(context.Background(), 7, 2)
	require.NoError(t, err)

	event := &payment.WebhookEvent{ID: "evt_1", Type: "payment_intent.succeeded", PaymentIntentID: "pi_test"}
	require.NoError(t, svc.HandleWebhookEvent(context.Background(), event))
	require.NoError(t, svc.HandleWebhookEvent(context.Background(), event))

	assert.Equal(t, []int{50}, repo.grants[7])
	order, err := svc.ConfirmByIntent(context.Background(), "pi_test")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
}

func TestHandleWebhookEventIgnoresOtherTypes(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	err := svc.HandleWebhookEvent(context.Background(), &payment.WebhookEvent{
		ID:   "evt_2",
		Type: "customer.created",
	})
	assert.NoError(t, err)
	assert.Empty(t, repo.grants)
}

func TestConfirmByOrderNumberChecksProcessorStatus(t *testing.T) {
	svc, repo, _, _, proc := newTestService()

	res, err := svc.CreatePaymentIntent(context.Background(), 7, 2)
	require.NoError(t, err)

	proc.intentStatus = "requires_payment_method"
	_, err = svc.ConfirmByOrderNumber(context.Background(), 7, res.Order.OrderNumber)
	assert.ErrorIs(t, err, ErrPaymentNotSucceeded)
	assert.Empty(t, repo.grants[7])

	proc.intentStatus = "succeeded"
	order, err := svc.ConfirmByOrderNumber(context.Background(), 7, res.Order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.Equal(t, []int{50}, repo.grants[7])
}

func TestConfirmByOrderNumberHidesForeignOrders(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	res, err := svc.CreatePaymentIntent(context.Background(), 7, 2)
	require.NoError(t, err)

	_, err = svc.ConfirmByOrderNumber(context.Background(), 99, res.Order.OrderNumber)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestConfirmByOrderNumberAlreadyCompleted(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	order, err := svc.ActivateFreePlan(context.Background(), 7, 1)
	require.NoError(t, err)

	got, err := svc.ConfirmByOrderNumber(context.Background(), 7, order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, got.Status)
	assert.Equal(t, []int{15}, repo.grants[7], "no second grant")
}
