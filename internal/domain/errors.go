package domain

import (
	"errors"
	"fmt"
)

// Error is a coded domain error. The HTTP layer maps Code to the wire
// error code and Status to the response status; Details carries
// structured context such as the current balance.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

// Is matches on the code so sentinel comparisons survive detail
// wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy carrying structured context.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// WithMessage returns a copy with a more specific message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	clone := *e
	clone.Message = fmt.Sprintf(format, args...)
	return &clone
}

func newError(code, message string, status int) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

var (
	ErrClientNotFound         = newError("client_not_found", "client not found", 404)
	ErrAccountDeletionPending = newError("account_deletion_pending", "account deletion pending", 403)
	ErrAccountBlocked         = newError("account_blocked", "account is blocked", 403)

	ErrStationNotFound       = newError("station_not_found", "station not found", 404)
	ErrStationOffline        = newError("station_offline", "station is offline", 409)
	ErrStationNeverConnected = newError("station_never_connected", "station has never connected", 409)

	ErrConnectorNotFound = newError("connector_not_found", "connector not found", 404)
	ErrConnectorOccupied = newError("connector_occupied", "connector is occupied", 409)

	ErrSessionAlreadyActive = newError("session_already_active", "client already has an active session", 409)
	ErrSessionNotFound      = newError("session_not_found", "session not found", 404)

	ErrInsufficientBalance = newError("insufficient_balance", "insufficient balance", 402)
	ErrAmountExceedsBalance = newError("amount_exceeds_balance", "requested amount exceeds balance", 402)
	ErrZeroBalance          = newError("zero_balance", "balance is zero", 402)
	ErrBalanceError         = newError("balance_error", "balance operation failed", 500)

	ErrInvalidRequest  = newError("invalid_request", "invalid request", 409)
	ErrInternal        = newError("internal_error", "internal error", 500)
	ErrTooManyRequests = newError("too_many_requests", "too many requests", 429)
	ErrUnauthorized    = newError("unauthorized", "unauthorized", 401)
	ErrCSRF            = newError("csrf_error", "CSRF token missing or invalid", 403)
)
