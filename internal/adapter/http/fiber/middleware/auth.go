package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/ports"
)

// AuthRequired validates the bearer token and stores client_id in
// Locals for the handlers.
func AuthRequired(service ports.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return domain.ErrUnauthorized.WithMessage("missing authorization header")
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return domain.ErrUnauthorized.WithMessage("invalid authorization header format")
		}

		clientID, err := service.ValidateToken(c.Context(), parts[1])
		if err != nil {
			return err
		}

		c.Locals("client_id", clientID)
		return c.Next()
	}
}

// ClientID reads the authenticated client id set by AuthRequired.
func ClientID(c *fiber.Ctx) string {
	if id, ok := c.Locals("client_id").(string); ok {
		return id
	}
	return ""
}
