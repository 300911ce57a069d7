package domain

import (
	"time"
)

type OcppTransactionStatus string

const (
	OcppTransactionStarted OcppTransactionStatus = "Started"
	OcppTransactionStopped OcppTransactionStatus = "Stopped"
)

// OcppTransaction is the station's view of a charging transaction.
// (StationID, TransactionID) is unique; StartTransaction replays must
// hit the existing row.
type OcppTransaction struct {
	ID                uint                  `json:"id" gorm:"primaryKey"`
	StationID         string                `json:"station_id" gorm:"index:idx_station_tx,unique"`
	TransactionID     int                   `json:"transaction_id" gorm:"index:idx_station_tx,unique"`
	ConnectorNumber   int                   `json:"connector_number"`
	IdTag             string                `json:"id_tag"`
	MeterStart        int                   `json:"meter_start"` // Wh
	MeterStop         *int                  `json:"meter_stop,omitempty"`
	StartTimestamp    time.Time             `json:"start_timestamp"`
	StopTimestamp     *time.Time            `json:"stop_timestamp,omitempty"`
	StopReason        string                `json:"stop_reason"`
	Status            OcppTransactionStatus `json:"status"`
	ChargingSessionID *string               `json:"charging_session_id,omitempty" gorm:"index"`
	CreatedAt         time.Time             `json:"created_at"`
}

// EnergyKwh returns delivered energy from the meter readings, clamped
// at zero to tolerate meter glitches.
func (t *OcppTransaction) EnergyKwh() float64 {
	if t.MeterStop == nil {
		return 0
	}
	delta := *t.MeterStop - t.MeterStart
	if delta < 0 {
		delta = 0
	}
	return float64(delta) / 1000
}

// MeterValue is one sampled measurand set, append-only from the actor.
type MeterValue struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	StationID         string    `json:"station_id" gorm:"index"`
	OcppTransactionID int       `json:"ocpp_transaction_id" gorm:"index"`
	ConnectorNumber   int       `json:"connector_number"`
	Timestamp         time.Time `json:"timestamp"`
	EnergyWh          *float64  `json:"energy_wh,omitempty"` // Energy.Active.Import.Register
	PowerKw           *float64  `json:"power_kw,omitempty"`
	SoC               *float64  `json:"soc,omitempty"`
	TemperatureC      *float64  `json:"temperature_c,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// OcppStationStatus is the per-station liveness record maintained by
// the actor on BootNotification and Heartbeat.
type OcppStationStatus struct {
	StationID        string     `json:"station_id" gorm:"primaryKey"`
	IsOnline         bool       `json:"is_online"`
	LastHeartbeat    *time.Time `json:"last_heartbeat,omitempty"`
	LastBoot         *time.Time `json:"last_boot,omitempty"`
	FirmwareVersion  string     `json:"firmware_version"`
	Vendor           string     `json:"vendor"`
	Model            string     `json:"model"`
	DiagnosticsState string     `json:"diagnostics_state"`
	FirmwareState    string     `json:"firmware_state"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type IdTagStatus string

const (
	IdTagStatusActive  IdTagStatus = "active"
	IdTagStatusBlocked IdTagStatus = "blocked"
	IdTagStatusExpired IdTagStatus = "expired"
)

// AuthorizationTag is the local authorization list entry checked by the
// Authorize handler and shipped to stations via SendLocalList.
type AuthorizationTag struct {
	IdTag     string      `json:"id_tag" gorm:"primaryKey"`
	ClientID  *string     `json:"client_id,omitempty" gorm:"index"`
	Status    IdTagStatus `json:"status"`
	ExpiresAt *time.Time  `json:"expires_at,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// StationConfigurationKey is one OCPP configuration entry mirrored per
// station. Defaults are seeded on the first BootNotification; later
// ChangeConfiguration commands and GetConfiguration replies keep the
// mirror current.
type StationConfigurationKey struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	StationID string    `json:"station_id" gorm:"index:idx_station_config,unique"`
	Key       string    `json:"key" gorm:"index:idx_station_config,unique"`
	Value     string    `json:"value"`
	Readonly  bool      `json:"readonly"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultConfigurationKeys are seeded for every station on boot.
func DefaultConfigurationKeys() map[string]string {
	return map[string]string{
		"HeartbeatInterval":        "300",
		"MeterValueSampleInterval": "60",
	}
}

// OcppMessageLog is the optional raw frame audit trail.
type OcppMessageLog struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	StationID string    `json:"station_id" gorm:"index"`
	Direction string    `json:"direction"` // "in" or "out"
	Action    string    `json:"action"`
	Payload   string    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}
