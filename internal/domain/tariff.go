package domain

import (
	"time"
)

type TariffType string

const (
	TariffTypePerKwh     TariffType = "per_kwh"
	TariffTypePerMinute  TariffType = "per_minute"
	TariffTypeSessionFee TariffType = "session_fee"
	TariffTypeParkingFee TariffType = "parking_fee"
)

// DefaultRatePerKwh is the network-wide fallback when no plan, station
// price or client override matches.
const DefaultRatePerKwh = 13.5

const DefaultTariffDescription = "Базовый тариф"

type TariffPlan struct {
	ID          string       `json:"id" gorm:"primaryKey"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	IsActive    bool         `json:"is_active"`
	Rules       []TariffRule `json:"rules" gorm:"foreignKey:TariffPlanID"`
	CreatedAt   time.Time    `json:"created_at"`
}

// TariffRule is one pricing rule inside a plan. All filter fields are
// optional; an unset filter matches everything. Higher priority wins;
// ties break on most recent creation.
type TariffRule struct {
	ID            string     `json:"id" gorm:"primaryKey"`
	TariffPlanID  string     `json:"tariff_plan_id" gorm:"index"`
	TariffType    TariffType `json:"tariff_type"`
	Price         float64    `json:"price"`
	Currency      string     `json:"currency"`
	Description   string     `json:"description"`
	ConnectorType string     `json:"connector_type"` // "" or "ALL" matches any
	PowerRangeMin *float64   `json:"power_range_min,omitempty"`
	PowerRangeMax *float64   `json:"power_range_max,omitempty"`
	TimeStart     *string    `json:"time_start,omitempty"` // "HH:MM", window may cross midnight
	TimeEnd       *string    `json:"time_end,omitempty"`
	DaysOfWeek    string     `json:"days_of_week"` // comma-separated 0..6, Monday=0
	IsWeekend     *bool      `json:"is_weekend,omitempty"`
	ValidFrom     *time.Time `json:"valid_from,omitempty"`
	ValidUntil    *time.Time `json:"valid_until,omitempty"`
	Priority      int        `json:"priority"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
}

// TariffSnapshot is the immutable result of pricing resolution,
// captured at session start and persisted as pricing history.
type TariffSnapshot struct {
	RatePerKwh           float64    `json:"rate_per_kwh"`
	RatePerMinute        float64    `json:"rate_per_minute"`
	SessionFee           float64    `json:"session_fee"`
	ParkingFeePerMinute  float64    `json:"parking_fee_per_minute"`
	Currency             string     `json:"currency"`
	Description          string     `json:"active_rule_description"`
	RuleDetails          string     `json:"rule_details,omitempty"`
	TimeBased            bool       `json:"time_based"`
	NextRateChange       *time.Time `json:"next_rate_change,omitempty"`
	TariffPlanID         *string    `json:"tariff_plan_id,omitempty"`
	RuleID               *string    `json:"rule_id,omitempty"`
}

// EstimatedCost computes the reservation estimate for a requested
// energy amount assuming the given session duration.
func (s *TariffSnapshot) EstimatedCost(energyKwh float64, duration time.Duration) Amount {
	cost := MulRate(energyKwh, s.RatePerKwh)
	cost += AmountFromSom(s.SessionFee)
	cost += MulRate(duration.Minutes(), s.RatePerMinute)
	return cost
}

// CostFor computes the actual cost of delivered energy over the given
// duration.
func (s *TariffSnapshot) CostFor(energyKwh float64, duration time.Duration) Amount {
	if energyKwh < 0 {
		energyKwh = 0
	}
	return s.EstimatedCost(energyKwh, duration)
}

// PricingHistory is the persisted snapshot keyed to a charging session.
type PricingHistory struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	StationID     string    `json:"station_id" gorm:"index"`
	ClientID      string    `json:"client_id"`
	RatePerKwh    float64   `json:"rate_per_kwh"`
	RatePerMinute float64   `json:"rate_per_minute"`
	SessionFee    float64   `json:"session_fee"`
	Currency      string    `json:"currency"`
	Description   string    `json:"description"`
	TariffPlanID  *string   `json:"tariff_plan_id,omitempty"`
	RuleID        *string   `json:"rule_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
