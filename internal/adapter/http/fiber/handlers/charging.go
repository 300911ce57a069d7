package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/adapter/http/fiber/middleware"
	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/ports"
)

type ChargingHandler struct {
	service ports.ChargingService
	log     *zap.Logger
}

func NewChargingHandler(service ports.ChargingService, log *zap.Logger) *ChargingHandler {
	return &ChargingHandler{
		service: service,
		log:     log,
	}
}

type StartChargingRequest struct {
	StationID   string   `json:"station_id"`
	ConnectorID int      `json:"connector_id"`
	EnergyKwh   *float64 `json:"energy_kwh,omitempty"`
	AmountSom   *float64 `json:"amount_som,omitempty"`
}

type StopChargingRequest struct {
	SessionID string `json:"session_id"`
}

func (h *ChargingHandler) Start(c *fiber.Ctx) error {
	var req StartChargingRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrInvalidRequest.WithMessage("invalid request body")
	}
	if req.StationID == "" || req.ConnectorID < 1 {
		return domain.ErrInvalidRequest.WithMessage("station_id and connector_id are required")
	}
	if req.EnergyKwh != nil && *req.EnergyKwh <= 0 {
		return domain.ErrInvalidRequest.WithMessage("energy_kwh must be positive")
	}
	if req.AmountSom != nil && *req.AmountSom <= 0 {
		return domain.ErrInvalidRequest.WithMessage("amount_som must be positive")
	}

	result, err := h.service.StartCharging(c.Context(), middleware.ClientID(c), req.StationID, req.ConnectorID, req.EnergyKwh, req.AmountSom)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"session": result,
	})
}

func (h *ChargingHandler) Stop(c *fiber.Ctx) error {
	var req StopChargingRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrInvalidRequest.WithMessage("invalid request body")
	}
	if req.SessionID == "" {
		return domain.ErrInvalidRequest.WithMessage("session_id is required")
	}

	result, err := h.service.StopCharging(c.Context(), req.SessionID, middleware.ClientID(c))
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"result":  result,
	})
}

func (h *ChargingHandler) Status(c *fiber.Ctx) error {
	view, err := h.service.GetStatus(c.Context(), c.Params("id"), middleware.ClientID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"status":  view,
	})
}
