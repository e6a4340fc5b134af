package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jobhive/jobhive/app/models"
	"github.com/jobhive/jobhive/internal/pkg/cache"
	"github.com/jobhive/jobhive/internal/pkg/database"
	"github.com/jobhive/jobhive/internal/pkg/plans"
)

const (
	planListCacheKeyFormat = "plans:active:p%d:l%d"
	planListCachePattern   = "plans:active:*"
	planListCacheTTL       = 5 * time.Minute
)

type planListResponse struct {
	Plans []models.Plan `json:"plans"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// HandleCreatePlan creates a plan, provisioning the mirrored Stripe
// product/price unless the plan is free or flagged to bypass billing.
func HandleCreatePlan(c *fiber.Ctx) error {
	var in plans.CreatePlanInput
	if err := c.BodyParser(&in); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	svc := plans.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	plan, err := svc.Create(ctx, in)
	if err != nil {
		if isValidationError(err) {
			return errorJSON(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
		}
		log.Printf("plan creation failed: %v", err)
		return errorJSON(c, fiber.StatusInternalServerError, "plan_create_failed", "Processor error - try again")
	}

	invalidatePlanListCache()
	return c.Status(fiber.StatusCreated).JSON(plan)
}

// HandleListPlans returns the active plans, paginated and cached.
func HandleListPlans(c *fiber.Ctx) error {
	page, limit := parsePagination(c)

	cacheKey := fmt.Sprintf(planListCacheKeyFormat, page, limit)
	if cached, err := cache.Get(cacheKey); err == nil {
		var resp planListResponse
		if json.Unmarshal([]byte(cached), &resp) == nil {
			return c.JSON(resp)
		}
	}

	svc := plans.NewServiceFromDB(database.GetDB())
	list, total, err := svc.ListActive(c.Context(), page, limit)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "plan_list_failed", "Failed to load plans")
	}
	if list == nil {
		list = []models.Plan{}
	}

	resp := planListResponse{Plans: list, Total: total, Page: page, Limit: limit}
	if payload, err := json.Marshal(resp); err == nil {
		if err := cache.Set(cacheKey, payload, planListCacheTTL); err != nil {
			log.Printf("plan list cache write failed: %v", err)
		}
	}
	return c.JSON(resp)
}

// HandleGetPlan returns a single plan by id.
func HandleGetPlan(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid plan id")
	}

	svc := plans.NewServiceFromDB(database.GetDB())
	plan, err := svc.Get(c.Context(), id)
	if err != nil {
		if errors.Is(err, plans.ErrPlanNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "not_found", "Plan not found")
		}
		return errorJSON(c, fiber.StatusInternalServerError, "plan_get_failed", "Failed to load plan")
	}
	return c.JSON(plan)
}

// HandleUpdatePlan patches a plan and mirrors name/description to
// Stripe best-effort.
func HandleUpdatePlan(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid plan id")
	}

	var in plans.UpdatePlanInput
	if err := c.BodyParser(&in); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	svc := plans.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	plan, err := svc.Update(ctx, id, in)
	if err != nil {
		if errors.Is(err, plans.ErrPlanNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "not_found", "Plan not found")
		}
		if isValidationError(err) {
			return errorJSON(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
		}
		return errorJSON(c, fiber.StatusInternalServerError, "plan_update_failed", "Failed to update plan")
	}

	invalidatePlanListCache()
	return c.JSON(plan)
}

// HandleDeactivatePlan archives the Stripe resources and hides the plan
// from new purchases. Orders keep referencing it.
func HandleDeactivatePlan(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid plan id")
	}

	svc := plans.NewServiceFromDB(database.GetDB())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	plan, err := svc.Deactivate(ctx, id)
	if err != nil {
		if errors.Is(err, plans.ErrPlanNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "not_found", "Plan not found")
		}
		log.Printf("plan deactivation failed: %v", err)
		return errorJSON(c, fiber.StatusInternalServerError, "plan_deactivate_failed", "Processor error - try again")
	}

	invalidatePlanListCache()
	return c.JSON(plan)
}

func invalidatePlanListCache() {
	if err := cache.DeleteByPattern(planListCachePattern); err != nil {
		log.Printf("plan list cache invalidation failed: %v", err)
	}
}
