package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/domain"
)

// ErrorHandler maps domain errors to the wire envelope. Anything not a
// coded domain error comes out as internal_error.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var domainErr *domain.Error
		if errors.As(err, &domainErr) {
			body := fiber.Map{
				"success": false,
				"error":   domainErr.Code,
				"message": domainErr.Message,
			}
			if domainErr.Details != nil {
				body["details"] = domainErr.Details
			}
			return c.Status(domainErr.Status).JSON(body)
		}

		code := fiber.StatusInternalServerError
		message := "internal error"
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
			message = fiberErr.Message
		}

		if code == fiber.StatusInternalServerError {
			log.Error("Internal Server Error", zap.Error(err), zap.String("path", c.Path()))
		}

		return c.Status(code).JSON(fiber.Map{
			"success": false,
			"error":   "internal_error",
			"message": message,
		})
	}
}
