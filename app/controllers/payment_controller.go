package controllers

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jobhive/jobhive/app/models"
	"github.com/jobhive/jobhive/app/repository"
	"github.com/jobhive/jobhive/internal/pkg/database"
	"github.com/jobhive/jobhive/internal/pkg/orders"
	"github.com/jobhive/jobhive/internal/pkg/payment"
	"github.com/jobhive/jobhive/internal/pkg/plans"
	"github.com/jobhive/jobhive/internal/pkg/quota"
	"github.com/jobhive/jobhive/internal/pkg/usercontext"
)

type createIntentRequest struct {
	PlanID uint `json:"plan_id"`
}

type confirmPaymentRequest struct {
	OrderNumber string `json:"order_number"`
}

func orderServiceFromDB() *orders.Service {
	return orders.NewServiceFromDB(database.GetDB(), repository.GetGlobalFactory().GetUserRepository())
}

// HandleCreatePaymentIntent starts a purchase. Free and bypass plans
// are activated on the spot; externally billed plans get a Stripe
// payment intent whose client secret the frontend completes.
func HandleCreatePaymentIntent(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req createIntentRequest
	if err := c.BodyParser(&req); err != nil || req.PlanID == 0 {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "plan_id is required")
	}

	planSvc := plans.NewServiceFromDB(database.GetDB())
	plan, err := planSvc.Get(c.Context(), req.PlanID)
	if err != nil {
		if errors.Is(err, plans.ErrPlanNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "not_found", "Plan not found")
		}
		return errorJSON(c, fiber.StatusInternalServerError, "plan_get_failed", "Failed to load plan")
	}

	svc := orderServiceFromDB()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if plan.IsPurchasableWithoutPayment() {
		order, err := svc.ActivateFreePlan(ctx, userCtx.UserID, plan.ID)
		if err != nil {
			return mapOrderError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"order":         order,
			"client_secret": nil,
		})
	}

	res, err := svc.CreatePaymentIntent(ctx, userCtx.UserID, plan.ID)
	if err != nil {
		return mapOrderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order":         res.Order,
		"client_secret": res.ClientSecret,
	})
}

// HandleStripeWebhook receives asynchronous payment confirmations. The
// endpoint always acknowledges with 200 so Stripe stops redelivering;
// failures are logged for operator follow-up.
func HandleStripeWebhook(c *fiber.Ctx) error {
	return processWebhook(c, payment.NewStripeProcessorFromEnv(), orderServiceFromDB())
}

// webhookReconciler is the slice of the order service the webhook
// endpoint needs; tests substitute a fake.
type webhookReconciler interface {
	HandleWebhookEvent(ctx context.Context, event *payment.WebhookEvent) error
}

func processWebhook(c *fiber.Ctx, processor payment.Processor, svc webhookReconciler) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	event, err := processor.ConstructWebhookEvent(rawBody, signature)
	if err != nil {
		log.Printf("stripe webhook rejected: %v", err)
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := svc.HandleWebhookEvent(ctx, event); err != nil {
		log.Printf("stripe webhook %s (%s) processing failed: %v", event.ID, event.Type, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

// HandleConfirmPayment is the manual confirmation path: the same
// reconciliation as the webhook, triggered by the order's owner after
// checking with Stripe that the intent succeeded.
func HandleConfirmPayment(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req confirmPaymentRequest
	if err := c.BodyParser(&req); err != nil || req.OrderNumber == "" {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "order_number is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	order, err := orderServiceFromDB().ConfirmByOrderNumber(ctx, userCtx.UserID, req.OrderNumber)
	if err != nil {
		return mapOrderError(c, err)
	}
	return c.JSON(order)
}

// HandlePaymentStatus returns the user's latest order together with the
// current quota state.
func HandlePaymentStatus(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var latest *models.Order
	order, err := orderServiceFromDB().LatestOrder(c.Context(), userCtx.UserID)
	switch {
	case err == nil:
		latest = order
	case errors.Is(err, orders.ErrOrderNotFound):
		// No purchase yet; quota alone tells the story.
	default:
		return errorJSON(c, fiber.StatusInternalServerError, "status_failed", "Failed to load payment status")
	}

	limitState, err := quota.NewServiceFromDB(database.GetDB()).Check(c.Context(), userCtx.UserID)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "status_failed", "Failed to load application limit")
	}

	return c.JSON(fiber.Map{
		"latest_order":      latest,
		"application_limit": limitState,
	})
}

func mapOrderError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, plans.ErrPlanNotFound):
		return errorJSON(c, fiber.StatusNotFound, "not_found", "Plan not found")
	case errors.Is(err, orders.ErrOrderNotFound):
		return errorJSON(c, fiber.StatusNotFound, "not_found", "Order not found")
	case errors.Is(err, plans.ErrPlanInactive):
		return errorJSON(c, fiber.StatusUnprocessableEntity, "plan_inactive", "Plan is no longer offered")
	case errors.Is(err, orders.ErrPlanRequiresPayment):
		return errorJSON(c, fiber.StatusUnprocessableEntity, "plan_requires_payment", "Plan is not eligible for free activation")
	case errors.Is(err, orders.ErrPlanNotExternallyBilled):
		return errorJSON(c, fiber.StatusUnprocessableEntity, "plan_not_billable", "Plan does not require payment")
	case errors.Is(err, orders.ErrPaymentNotSucceeded):
		return errorJSON(c, fiber.StatusUnprocessableEntity, "payment_not_succeeded", "Payment has not succeeded yet")
	default:
		log.Printf("order operation failed: %v", err)
		return errorJSON(c, fiber.StatusInternalServerError, "order_failed", "Processor error - try again")
	}
}
