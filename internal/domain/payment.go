package domain

import (
	"time"
)

type PaymentTransactionType string

const (
	PaymentTypeTopup         PaymentTransactionType = "topup"
	PaymentTypeChargeReserve PaymentTransactionType = "charge_reserve"
	PaymentTypeChargePayment PaymentTransactionType = "charge_payment"
	PaymentTypeChargeRefund  PaymentTransactionType = "charge_refund"
)

// PaymentTransaction is one row of the wallet audit ledger. Every
// balance move records the balance before and after so the history
// reconstructs the wallet exactly.
type PaymentTransaction struct {
	ID                string                 `json:"id" gorm:"primaryKey"`
	ClientID          string                 `json:"client_id" gorm:"index"`
	ChargingSessionID *string                `json:"charging_session_id,omitempty" gorm:"index"`
	Type              PaymentTransactionType `json:"type"`
	Amount            Amount                 `json:"amount"`
	BalanceBefore     Amount                 `json:"balance_before"`
	BalanceAfter      Amount                 `json:"balance_after"`
	Description       string                 `json:"description"`
	CreatedAt         time.Time              `json:"created_at"`
}
