package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/ports"
)

type AuthHandler struct {
	service ports.AuthService
	log     *zap.Logger
}

func NewAuthHandler(service ports.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		log:     log,
	}
}

type RequestOTPRequest struct {
	Phone string `json:"phone"`
}

type VerifyOTPRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

// RequestOTP sends a one-time code to the phone. The code itself never
// appears in the response.
func (h *AuthHandler) RequestOTP(c *fiber.Ctx) error {
	var req RequestOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrInvalidRequest.WithMessage("invalid request body")
	}
	if domain.NormalizePhone(req.Phone) == "" {
		return domain.ErrInvalidRequest.WithMessage("phone is required")
	}

	// Delivery happens inside the service; dev builds without SMS
	// credentials surface the code in the logs only.
	code, err := h.service.RequestOTP(c.Context(), req.Phone)
	if err != nil {
		return err
	}
	h.log.Debug("OTP generated", zap.String("code", code))

	return c.JSON(fiber.Map{
		"success": true,
		"message": "code sent",
	})
}

func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var req VerifyOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrInvalidRequest.WithMessage("invalid request body")
	}

	token, err := h.service.VerifyOTP(c.Context(), req.Phone, req.Code)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"access_token": token,
		"token_type":   "Bearer",
	})
}

// Logout revokes the presented bearer token.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return domain.ErrUnauthorized.WithMessage("invalid authorization header format")
	}

	if err := h.service.Logout(c.Context(), parts[1]); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}
