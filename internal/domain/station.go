package domain

import (
	"time"
)

type StationStatus string

const (
	StationStatusActive      StationStatus = "active"
	StationStatusInactive    StationStatus = "inactive"
	StationStatusMaintenance StationStatus = "maintenance"
)

type ConnectorStatus string

const (
	ConnectorStatusAvailable   ConnectorStatus = "available"
	ConnectorStatusOccupied    ConnectorStatus = "occupied"
	ConnectorStatusFaulted     ConnectorStatus = "faulted"
	ConnectorStatusUnavailable ConnectorStatus = "unavailable"
)

// Station is a physical charger. Administrative status is set by admin
// CRUD; availability is derived from heartbeats by the availability
// tracker.
type Station struct {
	ID              string        `json:"id" gorm:"primaryKey"`
	SerialNumber    string        `json:"serial_number"`
	LocationID      string        `json:"location_id" gorm:"index"`
	Location        *Location     `json:"location,omitempty" gorm:"foreignKey:LocationID"`
	Status          StationStatus `json:"status"`
	IsAvailable     bool          `json:"is_available"`
	PricePerKwh     float64       `json:"price_per_kwh"`
	SessionFee      float64       `json:"session_fee"`
	TariffPlanID    *string       `json:"tariff_plan_id,omitempty"`
	FirmwareVersion string        `json:"firmware_version"`
	APIKey          string        `json:"-" gorm:"column:api_key"`
	APIKeyExpiresAt *time.Time    `json:"-"`
	LastAPIKeyUse   *time.Time    `json:"-"`
	Connectors      []Connector   `json:"connectors" gorm:"foreignKey:StationID"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Connector is one plug on a station. ConnectorNumber is the 1-based
// OCPP connector id.
type Connector struct {
	ID               uint            `json:"id" gorm:"primaryKey"`
	StationID        string          `json:"station_id" gorm:"index:idx_station_connector,unique"`
	ConnectorNumber  int             `json:"connector_number" gorm:"index:idx_station_connector,unique"`
	ConnectorType    string          `json:"connector_type"`
	PowerKw          float64         `json:"power_kw"`
	Status           ConnectorStatus `json:"status"`
	ErrorCode        string          `json:"error_code"`
	LastStatusUpdate time.Time       `json:"last_status_update"`
}

type Location struct {
	ID        string  `json:"id" gorm:"primaryKey"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type LocationStatus string

const (
	LocationStatusAvailable   LocationStatus = "available"
	LocationStatusPartial     LocationStatus = "partial"
	LocationStatusOccupied    LocationStatus = "occupied"
	LocationStatusMaintenance LocationStatus = "maintenance"
	LocationStatusOffline     LocationStatus = "offline"
)

// StationHealth is the heartbeat-derived view of one station.
type StationHealth struct {
	StationID             string     `json:"station_id"`
	SerialNumber          string     `json:"serial_number"`
	Status                string     `json:"status"`
	LastHeartbeat         *time.Time `json:"last_heartbeat,omitempty"`
	MinutesSinceHeartbeat *float64   `json:"minutes_since_heartbeat,omitempty"`
	HealthStatus          string     `json:"health_status"`
	AvailableConnectors   int        `json:"available_connectors"`
	TotalConnectors       int        `json:"total_connectors"`
}

const (
	HealthNeverConnected = "never_connected"
	HealthOffline        = "offline"
	HealthWarning        = "warning"
	HealthOnline         = "online"
)

// MapOcppConnectorStatus translates an OCPP 1.6 connector status into
// the internal set.
func MapOcppConnectorStatus(ocpp string) ConnectorStatus {
	switch ocpp {
	case "Available":
		return ConnectorStatusAvailable
	case "Preparing", "Charging", "SuspendedEV", "SuspendedEVSE", "Finishing", "Reserved":
		return ConnectorStatusOccupied
	case "Unavailable":
		return ConnectorStatusUnavailable
	case "Faulted":
		return ConnectorStatusFaulted
	default:
		return ConnectorStatusAvailable
	}
}
