package mocks

import (
	"context"
	"time"

	"github.com/evpower/evpower-backend/internal/domain"
)

// MockChargingService is a mock implementation of ChargingService interface
type MockChargingService struct {
	StartChargingFunc         func(ctx context.Context, clientID, stationID string, connectorNumber int, energyKwh, amountSom *float64) (*domain.StartChargingResult, error)
	StopChargingFunc          func(ctx context.Context, sessionID, clientID string) (*domain.StopChargingResult, error)
	GetStatusFunc             func(ctx context.Context, sessionID, clientID string) (*domain.SessionStatusView, error)
	BindStartTransactionFunc  func(ctx context.Context, stationID string, connectorNumber, transactionID int, idTag string, meterStart int, timestamp time.Time) error
	SettleStopTransactionFunc func(ctx context.Context, stationID string, transactionID int, meterStop *int, reason string, timestamp time.Time) error
	CheckLimitsFunc           func(ctx context.Context, stationID string, transactionID int, energyDeliveredKwh float64) error
	ReconcileStationFunc      func(ctx context.Context, stationID string) error
	SweepHangingSessionsFunc  func(ctx context.Context) error
}

func (m *MockChargingService) StartCharging(ctx context.Context, clientID, stationID string, connectorNumber int, energyKwh, amountSom *float64) (*domain.StartChargingResult, error) {
	if m.StartChargingFunc != nil {
		return m.StartChargingFunc(ctx, clientID, stationID, connectorNumber, energyKwh, amountSom)
	}
	return nil, nil
}

func (m *MockChargingService) StopCharging(ctx context.Context, sessionID, clientID string) (*domain.StopChargingResult, error) {
	if m.StopChargingFunc != nil {
		return m.StopChargingFunc(ctx, sessionID, clientID)
	}
	return nil, nil
}

func (m *MockChargingService) GetStatus(ctx context.Context, sessionID, clientID string) (*domain.SessionStatusView, error) {
	if m.GetStatusFunc != nil {
		return m.GetStatusFunc(ctx, sessionID, clientID)
	}
	return nil, nil
}

func (m *MockChargingService) BindStartTransaction(ctx context.Context, stationID string, connectorNumber, transactionID int, idTag string, meterStart int, timestamp time.Time) error {
	if m.BindStartTransactionFunc != nil {
		return m.BindStartTransactionFunc(ctx, stationID, connectorNumber, transactionID, idTag, meterStart, timestamp)
	}
	return nil
}

func (m *MockChargingService) SettleStopTransaction(ctx context.Context, stationID string, transactionID int, meterStop *int, reason string, timestamp time.Time) error {
	if m.SettleStopTransactionFunc != nil {
		return m.SettleStopTransactionFunc(ctx, stationID, transactionID, meterStop, reason, timestamp)
	}
	return nil
}

func (m *MockChargingService) CheckLimits(ctx context.Context, stationID string, transactionID int, energyDeliveredKwh float64) error {
	if m.CheckLimitsFunc != nil {
		return m.CheckLimitsFunc(ctx, stationID, transactionID, energyDeliveredKwh)
	}
	return nil
}

func (m *MockChargingService) ReconcileStation(ctx context.Context, stationID string) error {
	if m.ReconcileStationFunc != nil {
		return m.ReconcileStationFunc(ctx, stationID)
	}
	return nil
}

func (m *MockChargingService) SweepHangingSessions(ctx context.Context) error {
	if m.SweepHangingSessionsFunc != nil {
		return m.SweepHangingSessionsFunc(ctx)
	}
	return nil
}

// MockPricingService is a mock implementation of PricingService interface
type MockPricingService struct {
	ResolveFunc      func(ctx context.Context, stationID, connectorType string, powerKw float64, at time.Time, clientID string) (*domain.TariffSnapshot, error)
	ValidateRuleFunc func(ctx context.Context, rule *domain.TariffRule) error
	InvalidateFunc   func(stationID string)
}

func (m *MockPricingService) Resolve(ctx context.Context, stationID, connectorType string, powerKw float64, at time.Time, clientID string) (*domain.TariffSnapshot, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, stationID, connectorType, powerKw, at, clientID)
	}
	return &domain.TariffSnapshot{
		RatePerKwh:  domain.DefaultRatePerKwh,
		Currency:    domain.Currency,
		Description: domain.DefaultTariffDescription,
	}, nil
}

func (m *MockPricingService) ValidateRule(ctx context.Context, rule *domain.TariffRule) error {
	if m.ValidateRuleFunc != nil {
		return m.ValidateRuleFunc(ctx, rule)
	}
	return nil
}

func (m *MockPricingService) Invalidate(stationID string) {
	if m.InvalidateFunc != nil {
		m.InvalidateFunc(stationID)
	}
}

// MockAvailabilityService is a mock implementation of AvailabilityService interface
type MockAvailabilityService struct {
	MarkOnlineFunc            func(ctx context.Context, stationID string) error
	RefreshHeartbeatFunc      func(ctx context.Context, stationID string) error
	MarkOfflineFunc           func(ctx context.Context, stationID string) error
	IsOnlineFunc              func(ctx context.Context, stationID string) bool
	UpdateConnectorStatusFunc func(ctx context.Context, stationID string, connectorNumber int, ocppStatus, errorCode, info string) error
	LocationStatusFunc        func(ctx context.Context, locationID string) (domain.LocationStatus, error)
	StationHealthFunc         func(ctx context.Context, stationID string) (*domain.StationHealth, error)
	SweepStatusesFunc         func(ctx context.Context) error
}

func (m *MockAvailabilityService) MarkOnline(ctx context.Context, stationID string) error {
	if m.MarkOnlineFunc != nil {
		return m.MarkOnlineFunc(ctx, stationID)
	}
	return nil
}

func (m *MockAvailabilityService) RefreshHeartbeat(ctx context.Context, stationID string) error {
	if m.RefreshHeartbeatFunc != nil {
		return m.RefreshHeartbeatFunc(ctx, stationID)
	}
	return nil
}

func (m *MockAvailabilityService) MarkOffline(ctx context.Context, stationID string) error {
	if m.MarkOfflineFunc != nil {
		return m.MarkOfflineFunc(ctx, stationID)
	}
	return nil
}

func (m *MockAvailabilityService) IsOnline(ctx context.Context, stationID string) bool {
	if m.IsOnlineFunc != nil {
		return m.IsOnlineFunc(ctx, stationID)
	}
	return false
}

func (m *MockAvailabilityService) UpdateConnectorStatus(ctx context.Context, stationID string, connectorNumber int, ocppStatus, errorCode, info string) error {
	if m.UpdateConnectorStatusFunc != nil {
		return m.UpdateConnectorStatusFunc(ctx, stationID, connectorNumber, ocppStatus, errorCode, info)
	}
	return nil
}

func (m *MockAvailabilityService) LocationStatus(ctx context.Context, locationID string) (domain.LocationStatus, error) {
	if m.LocationStatusFunc != nil {
		return m.LocationStatusFunc(ctx, locationID)
	}
	return domain.LocationStatusAvailable, nil
}

func (m *MockAvailabilityService) StationHealth(ctx context.Context, stationID string) (*domain.StationHealth, error) {
	if m.StationHealthFunc != nil {
		return m.StationHealthFunc(ctx, stationID)
	}
	return nil, nil
}

func (m *MockAvailabilityService) SweepStatuses(ctx context.Context) error {
	if m.SweepStatusesFunc != nil {
		return m.SweepStatusesFunc(ctx)
	}
	return nil
}

// MockStationAuthService is a mock implementation of StationAuthService interface
type MockStationAuthService struct {
	VerifyConnectionFunc func(ctx context.Context, stationID, apiKey string) error
	GenerateAPIKeyFunc   func(stationID string) string
}

func (m *MockStationAuthService) VerifyConnection(ctx context.Context, stationID, apiKey string) error {
	if m.VerifyConnectionFunc != nil {
		return m.VerifyConnectionFunc(ctx, stationID, apiKey)
	}
	return nil
}

func (m *MockStationAuthService) GenerateAPIKey(stationID string) string {
	if m.GenerateAPIKeyFunc != nil {
		return m.GenerateAPIKeyFunc(stationID)
	}
	return "evp_" + stationID + "_mock"
}

// MockAuthService is a mock implementation of AuthService interface
type MockAuthService struct {
	RequestOTPFunc    func(ctx context.Context, phone string) (string, error)
	VerifyOTPFunc     func(ctx context.Context, phone, code string) (string, error)
	ValidateTokenFunc func(ctx context.Context, token string) (string, error)
	IssueTokenFunc    func(ctx context.Context, clientID string) (string, error)
	LogoutFunc        func(ctx context.Context, token string) error
}

func (m *MockAuthService) RequestOTP(ctx context.Context, phone string) (string, error) {
	if m.RequestOTPFunc != nil {
		return m.RequestOTPFunc(ctx, phone)
	}
	return "123456", nil
}

func (m *MockAuthService) VerifyOTP(ctx context.Context, phone, code string) (string, error) {
	if m.VerifyOTPFunc != nil {
		return m.VerifyOTPFunc(ctx, phone, code)
	}
	return "mock-token", nil
}

func (m *MockAuthService) Logout(ctx context.Context, token string) error {
	if m.LogoutFunc != nil {
		return m.LogoutFunc(ctx, token)
	}
	return nil
}

func (m *MockAuthService) ValidateToken(ctx context.Context, token string) (string, error) {
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(ctx, token)
	}
	return "", nil
}

func (m *MockAuthService) IssueToken(ctx context.Context, clientID string) (string, error) {
	if m.IssueTokenFunc != nil {
		return m.IssueTokenFunc(ctx, clientID)
	}
	return "", nil
}

// MockSMSSender is a mock implementation of SMSSender
type MockSMSSender struct {
	SendSMSFunc func(ctx context.Context, to, message string) error
	Sent        []string
}

func (m *MockSMSSender) SendSMS(ctx context.Context, to, message string) error {
	if m.SendSMSFunc != nil {
		return m.SendSMSFunc(ctx, to, message)
	}
	m.Sent = append(m.Sent, message)
	return nil
}
