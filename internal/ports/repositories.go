package ports

import (
	"context"
	"time"

	"github.com/evpower/evpower-backend/internal/domain"
)

type ClientRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Client, error)
	FindByPhone(ctx context.Context, phone string) (*domain.Client, error)
	Save(ctx context.Context, client *domain.Client) error
}

type StationRepository interface {
	FindByID(ctx context.Context, id string) (*domain.Station, error)
	FindByLocationID(ctx context.Context, locationID string) ([]domain.Station, error)
	FindAll(ctx context.Context) ([]domain.Station, error)
	Save(ctx context.Context, station *domain.Station) error
	UpdateAvailability(ctx context.Context, id string, available bool) error
	TouchAPIKeyUse(ctx context.Context, id string) error
}

type ConnectorRepository interface {
	Find(ctx context.Context, stationID string, connectorNumber int) (*domain.Connector, error)
	FindByStation(ctx context.Context, stationID string) ([]domain.Connector, error)
	UpdateStatus(ctx context.Context, stationID string, connectorNumber int, status domain.ConnectorStatus, errorCode string) error
	ReleaseAllOccupied(ctx context.Context, stationID string) error
}

type TariffRepository interface {
	FindPlanByID(ctx context.Context, id string) (*domain.TariffPlan, error)
	FindActiveRules(ctx context.Context, planID string) ([]domain.TariffRule, error)
	FindClientTariff(ctx context.Context, clientID string) (*domain.ClientTariff, error)
	SaveRule(ctx context.Context, rule *domain.TariffRule) error
	SavePricingHistory(ctx context.Context, history *domain.PricingHistory) error
	FindPricingHistoryByID(ctx context.Context, id string) (*domain.PricingHistory, error)
}

type SessionRepository interface {
	Save(ctx context.Context, session *domain.ChargingSession) error
	Update(ctx context.Context, session *domain.ChargingSession) error
	FindByID(ctx context.Context, id string) (*domain.ChargingSession, error)
	FindActiveByClient(ctx context.Context, clientID string) (*domain.ChargingSession, error)
	FindActiveByConnector(ctx context.Context, stationID string, connectorNumber int) (*domain.ChargingSession, error)
	// FindBindableByStation returns pending/started sessions on the
	// station without a bound OCPP transaction, newest first.
	FindBindableByStation(ctx context.Context, stationID string) ([]domain.ChargingSession, error)
	// FindOpenByStation returns every non-terminal session on the
	// station, bound or not.
	FindOpenByStation(ctx context.Context, stationID string) ([]domain.ChargingSession, error)
	FindStartedOlderThan(ctx context.Context, age time.Duration) ([]domain.ChargingSession, error)
	FindByOcppTransaction(ctx context.Context, stationID string, transactionID int) (*domain.ChargingSession, error)
}

type OcppRepository interface {
	SaveTransaction(ctx context.Context, tx *domain.OcppTransaction) error
	UpdateTransaction(ctx context.Context, tx *domain.OcppTransaction) error
	FindTransaction(ctx context.Context, stationID string, transactionID int) (*domain.OcppTransaction, error)
	SaveMeterValue(ctx context.Context, mv *domain.MeterValue) error
	LastMeterValue(ctx context.Context, stationID string, transactionID int) (*domain.MeterValue, error)
	UpsertStationStatus(ctx context.Context, status *domain.OcppStationStatus) error
	FindStationStatus(ctx context.Context, stationID string) (*domain.OcppStationStatus, error)
	FindStaleStationStatuses(ctx context.Context, olderThan time.Duration) ([]domain.OcppStationStatus, error)
	FindAuthorizationTag(ctx context.Context, idTag string) (*domain.AuthorizationTag, error)
	// SeedConfiguration inserts the given configuration keys for the
	// station, leaving keys that already exist untouched.
	SeedConfiguration(ctx context.Context, stationID string, defaults map[string]string) error
	FindConfiguration(ctx context.Context, stationID string) ([]domain.StationConfigurationKey, error)
	LogMessage(ctx context.Context, entry *domain.OcppMessageLog) error
}

// WalletRepository serializes all balance mutations. Each method runs
// in one database transaction with a row lock on the client, writing
// the ledger row and the session update together.
type WalletRepository interface {
	// Reserve debits amount and creates the session atomically.
	Reserve(ctx context.Context, clientID string, amount domain.Amount, session *domain.ChargingSession, history *domain.PricingHistory) error
	// Settle applies the settlement delta in one transaction with the
	// session update: charge_payment debits the client, capped at the
	// locked balance; charge_refund credits. Returns the amount
	// actually moved.
	Settle(ctx context.Context, clientID string, txType domain.PaymentTransactionType, amount domain.Amount, session *domain.ChargingSession, description string) (domain.Amount, error)
	// Refund credits the full reservation back and marks the session,
	// used by boot reconciliation.
	Refund(ctx context.Context, clientID string, amount domain.Amount, session *domain.ChargingSession, description string) error
	// Topup credits the wallet outside any session and returns the new
	// balance.
	Topup(ctx context.Context, clientID string, amount domain.Amount, description string) (domain.Amount, error)
	FindLedger(ctx context.Context, clientID string, limit int) ([]domain.PaymentTransaction, error)
}

type IdempotencyRepository interface {
	Find(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	Save(ctx context.Context, record *domain.IdempotencyRecord) error
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}
