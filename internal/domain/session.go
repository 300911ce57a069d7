package domain

import (
	"time"
)

type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusStarted  SessionStatus = "started"
	SessionStatusStopping SessionStatus = "stopping"
	SessionStatusStopped  SessionStatus = "stopped"
	SessionStatusError    SessionStatus = "error"
)

// Terminal reports whether no further transitions are possible.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusStopped || s == SessionStatusError
}

type LimitType string

const (
	LimitTypeNone   LimitType = "none"
	LimitTypeEnergy LimitType = "energy"
	LimitTypeAmount LimitType = "amount"
)

// ChargingLimit is the caller's requested cap, resolved from the
// optional energy_kwh / amount_som request fields.
type ChargingLimit struct {
	Type  LimitType
	Value float64 // kWh for energy, soms for amount, 0 for none
}

// ChargingSession is the aggregate root of the session engine. The
// engine is the only writer of session rows and balance mutations;
// both always move in one database transaction.
type ChargingSession struct {
	ID                string        `json:"id" gorm:"primaryKey"`
	ClientID          string        `json:"client_id" gorm:"index"`
	StationID         string        `json:"station_id" gorm:"index"`
	ConnectorNumber   int           `json:"connector_number"`
	Status            SessionStatus `json:"status"`
	LimitType         LimitType     `json:"limit_type"`
	LimitValue        float64       `json:"limit_value"`
	ReservedAmount    Amount        `json:"reserved_amount"`
	FinalAmount       Amount        `json:"final_amount"`
	ActualEnergyKwh   float64       `json:"actual_energy_kwh"`
	StartTime         time.Time     `json:"start_time"`
	StopTime          *time.Time    `json:"stop_time,omitempty"`
	OcppTransactionID *int          `json:"ocpp_transaction_id,omitempty" gorm:"index"`
	PricingHistoryID  *string       `json:"pricing_history_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// SessionStatusView is the live view returned by the status endpoint.
type SessionStatusView struct {
	SessionID       string     `json:"session_id"`
	Status          string     `json:"status"`
	StationID       string     `json:"station_id"`
	ConnectorNumber int        `json:"connector_number"`
	StationOnline   bool       `json:"station_online"`
	EnergyKwh       float64    `json:"energy_kwh"`
	CurrentCost     float64    `json:"current_cost"`
	ReservedAmount  float64    `json:"reserved_amount"`
	LimitType       string     `json:"limit_type"`
	LimitValue      float64    `json:"limit_value"`
	ProgressPercent float64    `json:"progress_percent"`
	ChargingPowerKw float64    `json:"charging_power_kw"`
	SoC             *float64   `json:"soc,omitempty"`
	TemperatureC    *float64   `json:"temperature_c,omitempty"`
	MeterStart      *int       `json:"meter_start,omitempty"`
	MeterCurrent    *int       `json:"meter_current,omitempty"`
	HasMeterData    bool       `json:"has_meter_data"`
	StartTime       time.Time  `json:"start_time"`
	StopTime        *time.Time `json:"stop_time,omitempty"`
	DurationMinutes float64    `json:"duration_minutes"`
}

// StartChargingResult is returned to the HTTP layer after a session is
// created. StationOnline=false means the command was not published and
// the station will pick the session up when it reconnects.
type StartChargingResult struct {
	SessionID      string  `json:"session_id"`
	Status         string  `json:"status"`
	ReservedAmount float64 `json:"reserved_amount"`
	LimitType      string  `json:"limit_type"`
	LimitValue     float64 `json:"limit_value"`
	StationOnline  bool    `json:"station_online"`
}

// StopChargingResult reports the settlement outcome.
type StopChargingResult struct {
	SessionID    string  `json:"session_id"`
	Status       string  `json:"status"`
	EnergyKwh    float64 `json:"energy_kwh"`
	FinalAmount  float64 `json:"final_amount"`
	RefundAmount float64 `json:"refund_amount"`
	ExtraCharged float64 `json:"extra_charged"`
}
