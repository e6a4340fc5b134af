package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jobhive/jobhive/internal/pkg/database"
	"github.com/jobhive/jobhive/internal/pkg/quota"
	"github.com/jobhive/jobhive/internal/pkg/usercontext"
)

type updateLimitRequest struct {
	DailyLimit int `json:"daily_limit"`
}

// HandleCheckApplicationLimit reports whether the authenticated user
// may submit another application today. A stale counter is reset as a
// side effect when a new calendar day has started.
func HandleCheckApplicationLimit(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	res, err := quota.NewServiceFromDB(database.GetDB()).Check(c.Context(), userCtx.UserID)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "limit_check_failed", "Failed to check application limit")
	}
	return c.JSON(res)
}

// HandleUpdateUserApplicationLimit is the admin override of a user's
// daily allowance, independent of any plan purchase. It requires an
// existing limit row; the next completed order overwrites it again.
func HandleUpdateUserApplicationLimit(c *fiber.Ctx) error {
	userID, err := parseIDParam(c, "id")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "Invalid user id")
	}

	var req updateLimitRequest
	if err := c.BodyParser(&req); err != nil || req.DailyLimit < 1 {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "daily_limit must be at least 1")
	}

	limit, err := quota.NewServiceFromDB(database.GetDB()).UpdateDailyLimit(c.Context(), userID, req.DailyLimit)
	if err != nil {
		if errors.Is(err, quota.ErrLimitNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "not_found", "User has no application limit yet")
		}
		return errorJSON(c, fiber.StatusInternalServerError, "limit_update_failed", "Failed to update application limit")
	}
	return c.JSON(limit)
}
