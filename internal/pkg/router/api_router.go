package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/jobhive/jobhive/app/controllers"
	"github.com/jobhive/jobhive/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Resolve the bearer token to a user context before any route guard runs.
	app.Use(middleware.UserContextMiddleware)

	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// Plan catalog
	plans := v1.Group("/plans")
	plans.Get("/", controllers.HandleListPlans)
	plans.Get("/:id", controllers.HandleGetPlan)
	plans.Post("/", middleware.RequireAdmin, controllers.HandleCreatePlan)
	plans.Put("/:id", middleware.RequireAdmin, controllers.HandleUpdatePlan)
	plans.Delete("/:id", middleware.RequireAdmin, controllers.HandleDeactivatePlan)

	// Payments. The webhook is signature-verified, not token-authenticated.
	payments := v1.Group("/payments")
	payments.Post("/webhook", controllers.HandleStripeWebhook)
	payments.Post("/intent", middleware.RequireAuth, controllers.HandleCreatePaymentIntent)
	payments.Post("/confirm", middleware.RequireAuth, controllers.HandleConfirmPayment)
	payments.Get("/status", middleware.RequireAuth, controllers.HandlePaymentStatus)

	// Application quota
	v1.Get("/applications/limit", middleware.RequireAuth, controllers.HandleCheckApplicationLimit)
	v1.Put("/users/:id/application-limit", middleware.RequireAdmin, controllers.HandleUpdateUserApplicationLimit)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
