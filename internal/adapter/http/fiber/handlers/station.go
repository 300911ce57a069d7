package handlers

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/ports"
)

var allowedCommands = map[string]bool{
	domain.CmdRemoteStartTransaction: true,
	domain.CmdRemoteStopTransaction:  true,
	domain.CmdReset:                  true,
	domain.CmdUnlockConnector:        true,
	domain.CmdChangeAvailability:     true,
	domain.CmdChangeConfiguration:    true,
	domain.CmdGetConfiguration:       true,
	domain.CmdClearCache:             true,
	domain.CmdTriggerMessage:         true,
	domain.CmdGetDiagnostics:         true,
	domain.CmdUpdateFirmware:         true,
	domain.CmdSendLocalList:          true,
	domain.CmdGetLocalListVersion:    true,
}

type StationHandler struct {
	stations     ports.StationRepository
	availability ports.AvailabilityService
	stationAuth  ports.StationAuthService
	bus          ports.Bus
	log          *zap.Logger
}

func NewStationHandler(
	stations ports.StationRepository,
	availability ports.AvailabilityService,
	stationAuth ports.StationAuthService,
	bus ports.Bus,
	log *zap.Logger,
) *StationHandler {
	return &StationHandler{
		stations:     stations,
		availability: availability,
		stationAuth:  stationAuth,
		bus:          bus,
		log:          log,
	}
}

func (h *StationHandler) List(c *fiber.Ctx) error {
	stations, err := h.stations.FindAll(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"stations": stations,
	})
}

func (h *StationHandler) Get(c *fiber.Ctx) error {
	station, err := h.stations.FindByID(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	if station == nil {
		return domain.ErrStationNotFound
	}
	return c.JSON(fiber.Map{
		"success": true,
		"station": station,
	})
}

func (h *StationHandler) Health(c *fiber.Ctx) error {
	health, err := h.availability.StationHealth(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"health":  health,
	})
}

func (h *StationHandler) LocationStatus(c *fiber.Ctx) error {
	status, err := h.availability.LocationStatus(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"status":  status,
	})
}

type StationCommandRequest struct {
	Action        string          `json:"action"`
	ConnectorID   int             `json:"connector_id,omitempty"`
	TransactionID int             `json:"transaction_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Command publishes an operator command on the station's topic. The
// actor picks it up and translates it into an OCPP call.
func (h *StationHandler) Command(c *fiber.Ctx) error {
	stationID := c.Params("id")

	var req StationCommandRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrInvalidRequest.WithMessage("invalid request body")
	}
	if !allowedCommands[req.Action] {
		return domain.ErrInvalidRequest.WithMessage("unknown command action %q", req.Action)
	}

	station, err := h.stations.FindByID(c.Context(), stationID)
	if err != nil {
		return err
	}
	if station == nil {
		return domain.ErrStationNotFound
	}

	online := h.availability.IsOnline(c.Context(), stationID)
	cmd := &domain.StationCommand{
		Action:          req.Action,
		ConnectorNumber: req.ConnectorID,
		TransactionID:   req.TransactionID,
		Payload:         req.Payload,
	}
	if err := h.bus.Publish(c.Context(), ports.CommandTopic(stationID), cmd.Marshal()); err != nil {
		return err
	}

	h.log.Info("Station command published",
		zap.String("station_id", stationID),
		zap.String("action", req.Action),
		zap.Bool("station_online", online))

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":        true,
		"station_online": online,
	})
}

type IssueAPIKeyRequest struct {
	ExpiresInDays int `json:"expires_in_days,omitempty"`
}

// IssueAPIKey rotates the station's connection key. The plaintext key
// is returned once and only its stored copy is checked afterwards.
func (h *StationHandler) IssueAPIKey(c *fiber.Ctx) error {
	stationID := c.Params("id")

	var req IssueAPIKeyRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return domain.ErrInvalidRequest.WithMessage("invalid request body")
		}
	}

	station, err := h.stations.FindByID(c.Context(), stationID)
	if err != nil {
		return err
	}
	if station == nil {
		return domain.ErrStationNotFound
	}

	key := h.stationAuth.GenerateAPIKey(stationID)
	station.APIKey = key
	station.APIKeyExpiresAt = nil
	if req.ExpiresInDays > 0 {
		expires := time.Now().UTC().AddDate(0, 0, req.ExpiresInDays)
		station.APIKeyExpiresAt = &expires
	}
	station.UpdatedAt = time.Now().UTC()
	if err := h.stations.Save(c.Context(), station); err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":    true,
		"api_key":    key,
		"expires_at": station.APIKeyExpiresAt,
	})
}
