package ports

import (
	"context"
	"time"

	"github.com/evpower/evpower-backend/internal/domain"
)

type ChargingService interface {
	StartCharging(ctx context.Context, clientID, stationID string, connectorNumber int, energyKwh, amountSom *float64) (*domain.StartChargingResult, error)
	StopCharging(ctx context.Context, sessionID, clientID string) (*domain.StopChargingResult, error)
	GetStatus(ctx context.Context, sessionID, clientID string) (*domain.SessionStatusView, error)

	// Called from the OCPP actor.
	BindStartTransaction(ctx context.Context, stationID string, connectorNumber, transactionID int, idTag string, meterStart int, timestamp time.Time) error
	SettleStopTransaction(ctx context.Context, stationID string, transactionID int, meterStop *int, reason string, timestamp time.Time) error
	CheckLimits(ctx context.Context, stationID string, transactionID int, energyDeliveredKwh float64) error
	ReconcileStation(ctx context.Context, stationID string) error

	SweepHangingSessions(ctx context.Context) error
}

type PricingService interface {
	Resolve(ctx context.Context, stationID, connectorType string, powerKw float64, at time.Time, clientID string) (*domain.TariffSnapshot, error)
	ValidateRule(ctx context.Context, rule *domain.TariffRule) error
	Invalidate(stationID string)
}

type AvailabilityService interface {
	MarkOnline(ctx context.Context, stationID string) error
	RefreshHeartbeat(ctx context.Context, stationID string) error
	MarkOffline(ctx context.Context, stationID string) error
	IsOnline(ctx context.Context, stationID string) bool
	UpdateConnectorStatus(ctx context.Context, stationID string, connectorNumber int, ocppStatus, errorCode, info string) error
	LocationStatus(ctx context.Context, locationID string) (domain.LocationStatus, error)
	StationHealth(ctx context.Context, stationID string) (*domain.StationHealth, error)
	SweepStatuses(ctx context.Context) error
}

type StationAuthService interface {
	// VerifyConnection checks the station's right to open an OCPP
	// socket. Returns a coded domain error on refusal.
	VerifyConnection(ctx context.Context, stationID, apiKey string) error
	GenerateAPIKey(stationID string) string
}

type AuthService interface {
	// RequestOTP issues a one-time code for the phone; the returned
	// code goes to the SMS gateway, never to the HTTP response.
	RequestOTP(ctx context.Context, phone string) (string, error)
	// VerifyOTP exchanges a valid code for a bearer token, creating the
	// client on first login.
	VerifyOTP(ctx context.Context, phone, code string) (string, error)
	// ValidateToken parses a client bearer token and returns client_id.
	ValidateToken(ctx context.Context, token string) (string, error)
	IssueToken(ctx context.Context, clientID string) (string, error)
	// Logout revokes the presented token.
	Logout(ctx context.Context, token string) error
}

// SMSSender delivers one-time codes to client phones.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// Cache is a string-valued KV with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping() error
	Close() error
}
