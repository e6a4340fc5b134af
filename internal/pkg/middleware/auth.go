package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jobhive/jobhive/app/models"
	"github.com/jobhive/jobhive/app/repository"
	"github.com/jobhive/jobhive/internal/pkg/env"
	"github.com/jobhive/jobhive/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the Authorization bearer token (issued
// by the external auth service, HS256) to a user context. An absent or
// invalid token leaves the request anonymous; route guards decide
// whether that is acceptable.
func UserContextMiddleware(c *fiber.Ctx) error {
	token := bearerToken(c)
	if token == "" {
		return c.Next()
	}

	userID, err := parseSubject(token)
	if err != nil {
		return c.Next()
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userID)
	if err != nil || user.Status != models.STATUS_ACTIVE {
		return c.Next()
	}

	usercontext.SetUserContext(c, usercontext.UserContext{
		UserID:     user.ID,
		Email:      user.Email,
		IsLoggedIn: true,
		IsAdmin:    user.IsAdmin(),
	})
	return c.Next()
}

// RequireAuth ensures a logged-in user and returns JSON 401 otherwise.
func RequireAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

// RequireAdmin ensures a logged-in admin and returns JSON 403 otherwise.
func RequireAdmin(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	if !usercontext.IsAdmin(c) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "admin access required",
		})
	}
	return c.Next()
}

func bearerToken(c *fiber.Ctx) string {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func parseSubject(tokenString string) (uint, error) {
	secret := env.GetEnv("JWT_SECRET", "")
	if secret == "" {
		return 0, errors.New("jwt secret not configured")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return 0, errors.New("invalid token")
	}

	sub, ok := claims["sub"].(float64)
	if !ok || sub <= 0 {
		return 0, errors.New("missing subject claim")
	}
	return uint(sub), nil
}
