// middleware/bearer_auth.go
package middleware

import (
	"context"
	"log"
	"time"

	"pplp-service/services"

	"github.com/gofiber/fiber/v2"
)

// Fiber locals set by the auth middleware.
const (
	LocalUserID        = "user_id"
	LocalUserRoles     = "user_roles"
	LocalIsAdmin       = "is_admin"
	LocalServiceCaller = "service_caller"
)

const verifyTimeout = 10 * time.Second

// BearerAuthMiddleware validates the user's bearer token with the auth
// service and attaches the identity to the request.
func BearerAuthMiddleware(verifier services.TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing bearer token",
			})
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), verifyTimeout)
		defer cancel()

		resp, err := verifier.ValidateToken(ctx, token)
		if err != nil {
			log.Printf("[AUTH] ❌ Validation failed for token (prefix: %s...): %v", token[:min(6, len(token))], err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals(LocalUserID, resp.UserID)
		c.Locals(LocalUserRoles, resp.Roles)
		c.Locals(LocalIsAdmin, resp.IsAdmin())
		return c.Next()
	}
}

// UserID returns the authenticated user, or "" outside BearerAuthMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}
