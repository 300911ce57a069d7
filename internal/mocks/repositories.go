package mocks

import (
	"context"
	"time"

	"github.com/evpower/evpower-backend/internal/domain"
)

// MockClientRepository is a mock implementation of ClientRepository
type MockClientRepository struct {
	FindByIDFunc    func(ctx context.Context, id string) (*domain.Client, error)
	FindByPhoneFunc func(ctx context.Context, phone string) (*domain.Client, error)
	SaveFunc        func(ctx context.Context, client *domain.Client) error
}

func (m *MockClientRepository) FindByID(ctx context.Context, id string) (*domain.Client, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockClientRepository) FindByPhone(ctx context.Context, phone string) (*domain.Client, error) {
	if m.FindByPhoneFunc != nil {
		return m.FindByPhoneFunc(ctx, phone)
	}
	return nil, nil
}

func (m *MockClientRepository) Save(ctx context.Context, client *domain.Client) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, client)
	}
	return nil
}

// MockStationRepository is a mock implementation of StationRepository
type MockStationRepository struct {
	FindByIDFunc           func(ctx context.Context, id string) (*domain.Station, error)
	FindByLocationIDFunc   func(ctx context.Context, locationID string) ([]domain.Station, error)
	FindAllFunc            func(ctx context.Context) ([]domain.Station, error)
	SaveFunc               func(ctx context.Context, station *domain.Station) error
	UpdateAvailabilityFunc func(ctx context.Context, id string, available bool) error
	TouchAPIKeyUseFunc     func(ctx context.Context, id string) error
}

func (m *MockStationRepository) FindByID(ctx context.Context, id string) (*domain.Station, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockStationRepository) FindByLocationID(ctx context.Context, locationID string) ([]domain.Station, error) {
	if m.FindByLocationIDFunc != nil {
		return m.FindByLocationIDFunc(ctx, locationID)
	}
	return nil, nil
}

func (m *MockStationRepository) FindAll(ctx context.Context) ([]domain.Station, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc(ctx)
	}
	return nil, nil
}

func (m *MockStationRepository) Save(ctx context.Context, station *domain.Station) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, station)
	}
	return nil
}

func (m *MockStationRepository) UpdateAvailability(ctx context.Context, id string, available bool) error {
	if m.UpdateAvailabilityFunc != nil {
		return m.UpdateAvailabilityFunc(ctx, id, available)
	}
	return nil
}

func (m *MockStationRepository) TouchAPIKeyUse(ctx context.Context, id string) error {
	if m.TouchAPIKeyUseFunc != nil {
		return m.TouchAPIKeyUseFunc(ctx, id)
	}
	return nil
}

// MockConnectorRepository is a mock implementation of ConnectorRepository
type MockConnectorRepository struct {
	FindFunc               func(ctx context.Context, stationID string, connectorNumber int) (*domain.Connector, error)
	FindByStationFunc      func(ctx context.Context, stationID string) ([]domain.Connector, error)
	UpdateStatusFunc       func(ctx context.Context, stationID string, connectorNumber int, status domain.ConnectorStatus, errorCode string) error
	ReleaseAllOccupiedFunc func(ctx context.Context, stationID string) error
}

func (m *MockConnectorRepository) Find(ctx context.Context, stationID string, connectorNumber int) (*domain.Connector, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, stationID, connectorNumber)
	}
	return nil, nil
}

func (m *MockConnectorRepository) FindByStation(ctx context.Context, stationID string) ([]domain.Connector, error) {
	if m.FindByStationFunc != nil {
		return m.FindByStationFunc(ctx, stationID)
	}
	return nil, nil
}

func (m *MockConnectorRepository) UpdateStatus(ctx context.Context, stationID string, connectorNumber int, status domain.ConnectorStatus, errorCode string) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, stationID, connectorNumber, status, errorCode)
	}
	return nil
}

func (m *MockConnectorRepository) ReleaseAllOccupied(ctx context.Context, stationID string) error {
	if m.ReleaseAllOccupiedFunc != nil {
		return m.ReleaseAllOccupiedFunc(ctx, stationID)
	}
	return nil
}

// MockTariffRepository is a mock implementation of TariffRepository
type MockTariffRepository struct {
	FindPlanByIDFunc           func(ctx context.Context, id string) (*domain.TariffPlan, error)
	FindActiveRulesFunc        func(ctx context.Context, planID string) ([]domain.TariffRule, error)
	FindClientTariffFunc       func(ctx context.Context, clientID string) (*domain.ClientTariff, error)
	SaveRuleFunc               func(ctx context.Context, rule *domain.TariffRule) error
	SavePricingHistoryFunc     func(ctx context.Context, history *domain.PricingHistory) error
	FindPricingHistoryByIDFunc func(ctx context.Context, id string) (*domain.PricingHistory, error)
}

func (m *MockTariffRepository) FindPlanByID(ctx context.Context, id string) (*domain.TariffPlan, error) {
	if m.FindPlanByIDFunc != nil {
		return m.FindPlanByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockTariffRepository) FindActiveRules(ctx context.Context, planID string) ([]domain.TariffRule, error) {
	if m.FindActiveRulesFunc != nil {
		return m.FindActiveRulesFunc(ctx, planID)
	}
	return nil, nil
}

func (m *MockTariffRepository) FindClientTariff(ctx context.Context, clientID string) (*domain.ClientTariff, error) {
	if m.FindClientTariffFunc != nil {
		return m.FindClientTariffFunc(ctx, clientID)
	}
	return nil, nil
}

func (m *MockTariffRepository) SaveRule(ctx context.Context, rule *domain.TariffRule) error {
	if m.SaveRuleFunc != nil {
		return m.SaveRuleFunc(ctx, rule)
	}
	return nil
}

func (m *MockTariffRepository) SavePricingHistory(ctx context.Context, history *domain.PricingHistory) error {
	if m.SavePricingHistoryFunc != nil {
		return m.SavePricingHistoryFunc(ctx, history)
	}
	return nil
}

func (m *MockTariffRepository) FindPricingHistoryByID(ctx context.Context, id string) (*domain.PricingHistory, error) {
	if m.FindPricingHistoryByIDFunc != nil {
		return m.FindPricingHistoryByIDFunc(ctx, id)
	}
	return nil, nil
}

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	SaveFunc                  func(ctx context.Context, session *domain.ChargingSession) error
	UpdateFunc                func(ctx context.Context, session *domain.ChargingSession) error
	FindByIDFunc              func(ctx context.Context, id string) (*domain.ChargingSession, error)
	FindActiveByClientFunc    func(ctx context.Context, clientID string) (*domain.ChargingSession, error)
	FindActiveByConnectorFunc func(ctx context.Context, stationID string, connectorNumber int) (*domain.ChargingSession, error)
	FindBindableByStationFunc func(ctx context.Context, stationID string) ([]domain.ChargingSession, error)
	FindOpenByStationFunc     func(ctx context.Context, stationID string) ([]domain.ChargingSession, error)
	FindStartedOlderThanFunc  func(ctx context.Context, age time.Duration) ([]domain.ChargingSession, error)
	FindByOcppTransactionFunc func(ctx context.Context, stationID string, transactionID int) (*domain.ChargingSession, error)
}

func (m *MockSessionRepository) Save(ctx context.Context, session *domain.ChargingSession) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, session)
	}
	return nil
}

func (m *MockSessionRepository) Update(ctx context.Context, session *domain.ChargingSession) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, session)
	}
	return nil
}

func (m *MockSessionRepository) FindByID(ctx context.Context, id string) (*domain.ChargingSession, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockSessionRepository) FindActiveByClient(ctx context.Context, clientID string) (*domain.ChargingSession, error) {
	if m.FindActiveByClientFunc != nil {
		return m.FindActiveByClientFunc(ctx, clientID)
	}
	return nil, nil
}

func (m *MockSessionRepository) FindActiveByConnector(ctx context.Context, stationID string, connectorNumber int) (*domain.ChargingSession, error) {
	if m.FindActiveByConnectorFunc != nil {
		return m.FindActiveByConnectorFunc(ctx, stationID, connectorNumber)
	}
	return nil, nil
}

func (m *MockSessionRepository) FindBindableByStation(ctx context.Context, stationID string) ([]domain.ChargingSession, error) {
	if m.FindBindableByStationFunc != nil {
		return m.FindBindableByStationFunc(ctx, stationID)
	}
	return nil, nil
}

func (m *MockSessionRepository) FindOpenByStation(ctx context.Context, stationID string) ([]domain.ChargingSession, error) {
	if m.FindOpenByStationFunc != nil {
		return m.FindOpenByStationFunc(ctx, stationID)
	}
	return nil, nil
}

func (m *MockSessionRepository) FindStartedOlderThan(ctx context.Context, age time.Duration) ([]domain.ChargingSession, error) {
	if m.FindStartedOlderThanFunc != nil {
		return m.FindStartedOlderThanFunc(ctx, age)
	}
	return nil, nil
}

func (m *MockSessionRepository) FindByOcppTransaction(ctx context.Context, stationID string, transactionID int) (*domain.ChargingSession, error) {
	if m.FindByOcppTransactionFunc != nil {
		return m.FindByOcppTransactionFunc(ctx, stationID, transactionID)
	}
	return nil, nil
}

// MockOcppRepository is a mock implementation of OcppRepository
type MockOcppRepository struct {
	SaveTransactionFunc          func(ctx context.Context, tx *domain.OcppTransaction) error
	UpdateTransactionFunc        func(ctx context.Context, tx *domain.OcppTransaction) error
	FindTransactionFunc          func(ctx context.Context, stationID string, transactionID int) (*domain.OcppTransaction, error)
	SaveMeterValueFunc           func(ctx context.Context, mv *domain.MeterValue) error
	LastMeterValueFunc           func(ctx context.Context, stationID string, transactionID int) (*domain.MeterValue, error)
	UpsertStationStatusFunc      func(ctx context.Context, status *domain.OcppStationStatus) error
	FindStationStatusFunc        func(ctx context.Context, stationID string) (*domain.OcppStationStatus, error)
	FindStaleStationStatusesFunc func(ctx context.Context, olderThan time.Duration) ([]domain.OcppStationStatus, error)
	FindAuthorizationTagFunc     func(ctx context.Context, idTag string) (*domain.AuthorizationTag, error)
	SeedConfigurationFunc        func(ctx context.Context, stationID string, defaults map[string]string) error
	FindConfigurationFunc        func(ctx context.Context, stationID string) ([]domain.StationConfigurationKey, error)
	LogMessageFunc               func(ctx context.Context, entry *domain.OcppMessageLog) error
}

func (m *MockOcppRepository) SaveTransaction(ctx context.Context, tx *domain.OcppTransaction) error {
	if m.SaveTransactionFunc != nil {
		return m.SaveTransactionFunc(ctx, tx)
	}
	return nil
}

func (m *MockOcppRepository) UpdateTransaction(ctx context.Context, tx *domain.OcppTransaction) error {
	if m.UpdateTransactionFunc != nil {
		return m.UpdateTransactionFunc(ctx, tx)
	}
	return nil
}

func (m *MockOcppRepository) FindTransaction(ctx context.Context, stationID string, transactionID int) (*domain.OcppTransaction, error) {
	if m.FindTransactionFunc != nil {
		return m.FindTransactionFunc(ctx, stationID, transactionID)
	}
	return nil, nil
}

func (m *MockOcppRepository) SaveMeterValue(ctx context.Context, mv *domain.MeterValue) error {
	if m.SaveMeterValueFunc != nil {
		return m.SaveMeterValueFunc(ctx, mv)
	}
	return nil
}

func (m *MockOcppRepository) LastMeterValue(ctx context.Context, stationID string, transactionID int) (*domain.MeterValue, error) {
	if m.LastMeterValueFunc != nil {
		return m.LastMeterValueFunc(ctx, stationID, transactionID)
	}
	return nil, nil
}

func (m *MockOcppRepository) UpsertStationStatus(ctx context.Context, status *domain.OcppStationStatus) error {
	if m.UpsertStationStatusFunc != nil {
		return m.UpsertStationStatusFunc(ctx, status)
	}
	return nil
}

func (m *MockOcppRepository) FindStationStatus(ctx context.Context, stationID string) (*domain.OcppStationStatus, error) {
	if m.FindStationStatusFunc != nil {
		return m.FindStationStatusFunc(ctx, stationID)
	}
	return nil, nil
}

func (m *MockOcppRepository) FindStaleStationStatuses(ctx context.Context, olderThan time.Duration) ([]domain.OcppStationStatus, error) {
	if m.FindStaleStationStatusesFunc != nil {
		return m.FindStaleStationStatusesFunc(ctx, olderThan)
	}
	return nil, nil
}

func (m *MockOcppRepository) FindAuthorizationTag(ctx context.Context, idTag string) (*domain.AuthorizationTag, error) {
	if m.FindAuthorizationTagFunc != nil {
		return m.FindAuthorizationTagFunc(ctx, idTag)
	}
	return nil, nil
}

func (m *MockOcppRepository) SeedConfiguration(ctx context.Context, stationID string, defaults map[string]string) error {
	if m.SeedConfigurationFunc != nil {
		return m.SeedConfigurationFunc(ctx, stationID, defaults)
	}
	return nil
}

func (m *MockOcppRepository) FindConfiguration(ctx context.Context, stationID string) ([]domain.StationConfigurationKey, error) {
	if m.FindConfigurationFunc != nil {
		return m.FindConfigurationFunc(ctx, stationID)
	}
	return nil, nil
}

func (m *MockOcppRepository) LogMessage(ctx context.Context, entry *domain.OcppMessageLog) error {
	if m.LogMessageFunc != nil {
		return m.LogMessageFunc(ctx, entry)
	}
	return nil
}

// MockWalletRepository is a mock implementation of WalletRepository
type MockWalletRepository struct {
	ReserveFunc    func(ctx context.Context, clientID string, amount domain.Amount, session *domain.ChargingSession, history *domain.PricingHistory) error
	SettleFunc     func(ctx context.Context, clientID string, txType domain.PaymentTransactionType, amount domain.Amount, session *domain.ChargingSession, description string) (domain.Amount, error)
	RefundFunc     func(ctx context.Context, clientID string, amount domain.Amount, session *domain.ChargingSession, description string) error
	TopupFunc      func(ctx context.Context, clientID string, amount domain.Amount, description string) (domain.Amount, error)
	FindLedgerFunc func(ctx context.Context, clientID string, limit int) ([]domain.PaymentTransaction, error)
}

func (m *MockWalletRepository) Reserve(ctx context.Context, clientID string, amount domain.Amount, session *domain.ChargingSession, history *domain.PricingHistory) error {
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, clientID, amount, session, history)
	}
	return nil
}

func (m *MockWalletRepository) Settle(ctx context.Context, clientID string, txType domain.PaymentTransactionType, amount domain.Amount, session *domain.ChargingSession, description string) (domain.Amount, error) {
	if m.SettleFunc != nil {
		return m.SettleFunc(ctx, clientID, txType, amount, session, description)
	}
	return amount, nil
}

func (m *MockWalletRepository) Refund(ctx context.Context, clientID string, amount domain.Amount, session *domain.ChargingSession, description string) error {
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, clientID, amount, session, description)
	}
	return nil
}

func (m *MockWalletRepository) Topup(ctx context.Context, clientID string, amount domain.Amount, description string) (domain.Amount, error) {
	if m.TopupFunc != nil {
		return m.TopupFunc(ctx, clientID, amount, description)
	}
	return amount, nil
}

func (m *MockWalletRepository) FindLedger(ctx context.Context, clientID string, limit int) ([]domain.PaymentTransaction, error) {
	if m.FindLedgerFunc != nil {
		return m.FindLedgerFunc(ctx, clientID, limit)
	}
	return nil, nil
}

// MockIdempotencyRepository is a mock implementation of IdempotencyRepository
type MockIdempotencyRepository struct {
	FindFunc            func(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	SaveFunc            func(ctx context.Context, record *domain.IdempotencyRecord) error
	DeleteOlderThanFunc func(ctx context.Context, age time.Duration) (int64, error)
}

func (m *MockIdempotencyRepository) Find(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	if m.FindFunc != nil {
		return m.FindFunc(ctx, key)
	}
	return nil, nil
}

func (m *MockIdempotencyRepository) Save(ctx context.Context, record *domain.IdempotencyRecord) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, record)
	}
	return nil
}

func (m *MockIdempotencyRepository) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if m.DeleteOlderThanFunc != nil {
		return m.DeleteOlderThanFunc(ctx, age)
	}
	return 0, nil
}
