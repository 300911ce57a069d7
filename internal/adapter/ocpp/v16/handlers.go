package v16

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/observability/telemetry"
	"github.com/evpower/evpower-backend/internal/ports"
)

const heartbeatIntervalSeconds = 300

// ocppError becomes a CallError frame.
type ocppError struct {
	Code        string
	Description string
}

// Handlers answers station-initiated calls. Every handler returns the
// CallResult payload or an ocppError, never both.
type Handlers struct {
	charging     ports.ChargingService
	availability ports.AvailabilityService
	ocppRepo     ports.OcppRepository
	clients      ports.ClientRepository
	log          *zap.Logger
}

func NewHandlers(
	charging ports.ChargingService,
	availability ports.AvailabilityService,
	ocppRepo ports.OcppRepository,
	clients ports.ClientRepository,
	log *zap.Logger,
) *Handlers {
	return &Handlers{
		charging:     charging,
		availability: availability,
		ocppRepo:     ocppRepo,
		clients:      clients,
		log:          log,
	}
}

type bootNotificationReq struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber"`
	FirmwareVersion         string `json:"firmwareVersion"`
}

type idTagInfo struct {
	Status string `json:"status"`
}

type statusNotificationReq struct {
	ConnectorID int    `json:"connectorId"`
	ErrorCode   string `json:"errorCode"`
	Status      string `json:"status"`
	Info        string `json:"info"`
}

type authorizeReq struct {
	IdTag string `json:"idTag"`
}

type startTransactionReq struct {
	ConnectorID int    `json:"connectorId"`
	IdTag       string `json:"idTag"`
	MeterStart  int    `json:"meterStart"`
	Timestamp   string `json:"timestamp"`
}

type stopTransactionReq struct {
	TransactionID int    `json:"transactionId"`
	IdTag         string `json:"idTag"`
	MeterStop     *int   `json:"meterStop"`
	Timestamp     string `json:"timestamp"`
	Reason        string `json:"reason"`
}

type sampledValue struct {
	Value     string `json:"value"`
	Measurand string `json:"measurand"`
	Unit      string `json:"unit"`
}

type meterValueEntry struct {
	Timestamp    string         `json:"timestamp"`
	SampledValue []sampledValue `json:"sampledValue"`
}

type meterValuesReq struct {
	ConnectorID   int               `json:"connectorId"`
	TransactionID *int              `json:"transactionId"`
	MeterValue    []meterValueEntry `json:"meterValue"`
}

type statusOnlyReq struct {
	Status string `json:"status"`
}

// HandleCall dispatches a station-initiated call by action.
func (h *Handlers) HandleCall(ctx context.Context, stationID, action string, payload json.RawMessage) (interface{}, *ocppError) {
	switch action {
	case "BootNotification":
		return h.bootNotification(ctx, stationID, payload)
	case "Heartbeat":
		return h.heartbeat(ctx, stationID)
	case "StatusNotification":
		return h.statusNotification(ctx, stationID, payload)
	case "Authorize":
		return h.authorize(ctx, payload)
	case "StartTransaction":
		return h.startTransaction(ctx, stationID, payload)
	case "StopTransaction":
		return h.stopTransaction(ctx, stationID, payload)
	case "MeterValues":
		return h.meterValues(ctx, stationID, payload)
	case "DataTransfer":
		return map[string]interface{}{"status": "Accepted"}, nil
	case "DiagnosticsStatusNotification":
		return h.diagnosticsStatus(ctx, stationID, payload)
	case "FirmwareStatusNotification":
		return h.firmwareStatus(ctx, stationID, payload)
	default:
		h.log.Warn("Unsupported OCPP action",
			zap.String("station_id", stationID),
			zap.String("action", action))
		return nil, &ocppError{Code: "NotImplemented", Description: "action " + action + " is not supported"}
	}
}

func (h *Handlers) bootNotification(ctx context.Context, stationID string, payload json.RawMessage) (interface{}, *ocppError) {
	var req bootNotificationReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &ocppError{Code: "FormationViolation", Description: err.Error()}
	}

	h.log.Info("BootNotification",
		zap.String("station_id", stationID),
		zap.String("vendor", req.ChargePointVendor),
		zap.String("model", req.ChargePointModel),
		zap.String("firmware", req.FirmwareVersion))

	if err := h.availability.MarkOnline(ctx, stationID); err != nil {
		return nil, &ocppError{Code: "InternalError", Description: err.Error()}
	}

	if status, err := h.ocppRepo.FindStationStatus(ctx, stationID); err == nil {
		if status == nil {
			status = &domain.OcppStationStatus{StationID: stationID}
		}
		status.Vendor = req.ChargePointVendor
		status.Model = req.ChargePointModel
		status.FirmwareVersion = req.FirmwareVersion
		if err := h.ocppRepo.UpsertStationStatus(ctx, status); err != nil {
			h.log.Warn("Failed to record boot details", zap.String("station_id", stationID), zap.Error(err))
		}
	}

	if err := h.ocppRepo.SeedConfiguration(ctx, stationID, domain.DefaultConfigurationKeys()); err != nil {
		h.log.Warn("Failed to seed configuration keys", zap.String("station_id", stationID), zap.Error(err))
	}

	// A reboot drops any transaction the station was running, so
	// sessions waiting on this station are reconciled off-path.
	go func() {
		if err := h.charging.ReconcileStation(context.Background(), stationID); err != nil {
			h.log.Error("Station reconcile failed", zap.String("station_id", stationID), zap.Error(err))
		}
	}()

	return map[string]interface{}{
		"status":      "Accepted",
		"currentTime": time.Now().UTC().Format(time.RFC3339),
		"interval":    heartbeatIntervalSeconds,
	}, nil
}

func (h *Handlers) heartbeat(ctx context.Context, stationID string) (interface{}, *ocppError) {
	if err := h.availability.RefreshHeartbeat(ctx, stationID); err != nil {
		h.log.Warn("Heartbeat refresh failed", zap.String("station_id", stationID), zap.Error(err))
	}
	return map[string]interface{}{
		"currentTime": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (h *Handlers) statusNotification(ctx context.Context, stationID string, payload json.RawMessage) (interface{}, *ocppError) {
	var req statusNotificationReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &ocppError{Code: "FormationViolation", Description: err.Error()}
	}
	if err := h.availability.UpdateConnectorStatus(ctx, stationID, req.ConnectorID, req.Status, req.ErrorCode, req.Info); err != nil {
		h.log.Warn("Connector status update failed",
			zap.String("station_id", stationID),
			zap.Int("connector", req.ConnectorID),
			zap.Error(err))
	}
	return map[string]interface{}{}, nil
}

// authorize checks the local authorization list first, then falls back
// to matching the idTag against a client phone number.
func (h *Handlers) authorize(ctx context.Context, payload json.RawMessage) (interface{}, *ocppError) {
	var req authorizeReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &ocppError{Code: "FormationViolation", Description: err.Error()}
	}
	return map[string]interface{}{"idTagInfo": idTagInfo{Status: h.idTagStatus(ctx, req.IdTag)}}, nil
}

func (h *Handlers) idTagStatus(ctx context.Context, idTag string) string {
	tag, err := h.ocppRepo.FindAuthorizationTag(ctx, idTag)
	if err == nil && tag != nil {
		switch {
		case tag.Status == domain.IdTagStatusBlocked:
			return "Blocked"
		case tag.Status == domain.IdTagStatusExpired:
			return "Expired"
		case tag.ExpiresAt != nil && tag.ExpiresAt.Before(time.Now()):
			return "Expired"
		default:
			return "Accepted"
		}
	}

	client, err := h.clients.FindByPhone(ctx, domain.NormalizePhone(idTag))
	if err != nil || client == nil {
		return "Invalid"
	}
	if client.Status == domain.ClientStatusBlocked {
		return "Blocked"
	}
	return "Accepted"
}

func (h *Handlers) startTransaction(ctx context.Context, stationID string, payload json.RawMessage) (interface{}, *ocppError) {
	var req startTransactionReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &ocppError{Code: "FormationViolation", Description: err.Error()}
	}

	transactionID := int(time.Now().Unix())
	timestamp := parseOcppTime(req.Timestamp)

	if err := h.charging.BindStartTransaction(ctx, stationID, req.ConnectorID, transactionID, req.IdTag, req.MeterStart, timestamp); err != nil {
		h.log.Error("StartTransaction binding failed",
			zap.String("station_id", stationID),
			zap.Int("transaction_id", transactionID),
			zap.Error(err))
		return nil, &ocppError{Code: "InternalError", Description: "failed to record transaction"}
	}

	return map[string]interface{}{
		"transactionId": transactionID,
		"idTagInfo":     idTagInfo{Status: "Accepted"},
	}, nil
}

func (h *Handlers) stopTransaction(ctx context.Context, stationID string, payload json.RawMessage) (interface{}, *ocppError) {
	var req stopTransactionReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &ocppError{Code: "FormationViolation", Description: err.Error()}
	}

	// The station has physically stopped; a non-Accepted reply would only
	// confuse it. Settlement failures are logged and retried by the
	// hanging-session sweep.
	timestamp := parseOcppTime(req.Timestamp)
	if err := h.charging.SettleStopTransaction(ctx, stationID, req.TransactionID, req.MeterStop, req.Reason, timestamp); err != nil {
		h.log.Error("StopTransaction settlement failed",
			zap.String("station_id", stationID),
			zap.Int("transaction_id", req.TransactionID),
			zap.Error(err))
	}

	return map[string]interface{}{
		"idTagInfo": idTagInfo{Status: "Accepted"},
	}, nil
}

func (h *Handlers) meterValues(ctx context.Context, stationID string, payload json.RawMessage) (interface{}, *ocppError) {
	var req meterValuesReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &ocppError{Code: "FormationViolation", Description: err.Error()}
	}

	transactionID := 0
	if req.TransactionID != nil {
		transactionID = *req.TransactionID
	}

	var prevEnergyWh *float64
	if transactionID != 0 {
		if prev, err := h.ocppRepo.LastMeterValue(ctx, stationID, transactionID); err == nil && prev != nil {
			prevEnergyWh = prev.EnergyWh
		}
	}

	var lastEnergyWh *float64
	for _, entry := range req.MeterValue {
		mv := &domain.MeterValue{
			StationID:         stationID,
			OcppTransactionID: transactionID,
			ConnectorNumber:   req.ConnectorID,
			Timestamp:         parseOcppTime(entry.Timestamp),
		}
		for _, sv := range entry.SampledValue {
			value, err := strconv.ParseFloat(sv.Value, 64)
			if err != nil {
				continue
			}
			switch sv.Measurand {
			case "", "Energy.Active.Import.Register":
				energyWh := value
				if sv.Unit == "kWh" {
					energyWh = value * 1000
				}
				mv.EnergyWh = &energyWh
			case "Power.Active.Import":
				powerKw := value
				if sv.Unit == "W" {
					powerKw = value / 1000
				}
				mv.PowerKw = &powerKw
			case "SoC":
				soc := value
				mv.SoC = &soc
			case "Temperature":
				temp := value
				mv.TemperatureC = &temp
			}
		}
		if err := h.ocppRepo.SaveMeterValue(ctx, mv); err != nil {
			h.log.Warn("Failed to save meter value", zap.String("station_id", stationID), zap.Error(err))
		}
		if mv.EnergyWh != nil {
			lastEnergyWh = mv.EnergyWh
		}
	}

	if transactionID != 0 && lastEnergyWh != nil {
		if prevEnergyWh != nil && *lastEnergyWh > *prevEnergyWh {
			telemetry.EnergyDeliveredTotal.Add((*lastEnergyWh - *prevEnergyWh) / 1000)
		}

		tx, err := h.ocppRepo.FindTransaction(ctx, stationID, transactionID)
		if err == nil && tx != nil {
			deliveredKwh := (*lastEnergyWh - float64(tx.MeterStart)) / 1000
			if deliveredKwh < 0 {
				deliveredKwh = 0
			}
			if err := h.charging.CheckLimits(ctx, stationID, transactionID, deliveredKwh); err != nil {
				h.log.Warn("Limit check failed",
					zap.String("station_id", stationID),
					zap.Int("transaction_id", transactionID),
					zap.Error(err))
			}
		}
	}

	return map[string]interface{}{}, nil
}

func (h *Handlers) diagnosticsStatus(ctx context.Context, stationID string, payload json.RawMessage) (interface{}, *ocppError) {
	var req statusOnlyReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &ocppError{Code: "FormationViolation", Description: err.Error()}
	}
	if status, err := h.ocppRepo.FindStationStatus(ctx, stationID); err == nil && status != nil {
		status.DiagnosticsState = req.Status
		if err := h.ocppRepo.UpsertStationStatus(ctx, status); err != nil {
			h.log.Warn("Failed to record diagnostics state", zap.Error(err))
		}
	}
	return map[string]interface{}{}, nil
}

func (h *Handlers) firmwareStatus(ctx context.Context, stationID string, payload json.RawMessage) (interface{}, *ocppError) {
	var req statusOnlyReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &ocppError{Code: "FormationViolation", Description: err.Error()}
	}
	if status, err := h.ocppRepo.FindStationStatus(ctx, stationID); err == nil && status != nil {
		status.FirmwareState = req.Status
		if err := h.ocppRepo.UpsertStationStatus(ctx, status); err != nil {
			h.log.Warn("Failed to record firmware state", zap.Error(err))
		}
	}
	return map[string]interface{}{}, nil
}

func parseOcppTime(value string) time.Time {
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC()
	}
	return time.Now().UTC()
}
