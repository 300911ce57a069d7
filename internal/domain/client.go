package domain

import (
	"strings"
	"time"
)

type ClientStatus string

const (
	ClientStatusActive          ClientStatus = "active"
	ClientStatusInactive        ClientStatus = "inactive"
	ClientStatusBlocked         ClientStatus = "blocked"
	ClientStatusPendingDeletion ClientStatus = "pending_deletion"
)

// Client is an end-user wallet. Created on first OTP-verified login,
// never hard-deleted. Balance must stay non-negative after any
// committed transition.
type Client struct {
	ID        string       `json:"id" gorm:"primaryKey"`
	Phone     string       `json:"phone" gorm:"uniqueIndex"`
	Balance   Amount       `json:"balance"`
	Status    ClientStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NormalizePhone strips everything but digits. Stations report the
// client phone as the OCPP idTag, so both sides must normalize the
// same way before comparing.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ClientTariff is an optional pricing override for one client: either a
// fixed rate per kWh, or a plan reference with a percentage discount.
type ClientTariff struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	ClientID        string     `json:"client_id" gorm:"index"`
	RatePerKwh      *float64   `json:"rate_per_kwh,omitempty"`
	TariffPlanID    *string    `json:"tariff_plan_id,omitempty"`
	DiscountPercent float64    `json:"discount_percent"`
	ValidFrom       *time.Time `json:"valid_from,omitempty"`
	ValidUntil      *time.Time `json:"valid_until,omitempty"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ValidAt reports whether the override applies at the given time.
func (t *ClientTariff) ValidAt(at time.Time) bool {
	if !t.IsActive {
		return false
	}
	if t.ValidFrom != nil && at.Before(*t.ValidFrom) {
		return false
	}
	if t.ValidUntil != nil && at.After(*t.ValidUntil) {
		return false
	}
	return true
}
