package postgres

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/ports"
)

var nonTerminalStatuses = []domain.SessionStatus{
	domain.SessionStatusPending,
	domain.SessionStatusStarted,
	domain.SessionStatusStopping,
}

type SessionRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSessionRepository(db *gorm.DB, log *zap.Logger) ports.SessionRepository {
	return &SessionRepository{db: db, log: log}
}

func (r *SessionRepository) Save(ctx context.Context, session *domain.ChargingSession) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *SessionRepository) Update(ctx context.Context, session *domain.ChargingSession) error {
	return r.db.WithContext(ctx).Save(session).Error
}

func (r *SessionRepository) FindByID(ctx context.Context, id string) (*domain.ChargingSession, error) {
	var session domain.ChargingSession
	err := r.db.WithContext(ctx).First(&session, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) FindActiveByClient(ctx context.Context, clientID string) (*domain.ChargingSession, error) {
	var session domain.ChargingSession
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND status IN ?", clientID, nonTerminalStatuses).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) FindActiveByConnector(ctx context.Context, stationID string, connectorNumber int) (*domain.ChargingSession, error) {
	var session domain.ChargingSession
	err := r.db.WithContext(ctx).
		Where("station_id = ? AND connector_number = ? AND status IN ?", stationID, connectorNumber, nonTerminalStatuses).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) FindBindableByStation(ctx context.Context, stationID string) ([]domain.ChargingSession, error) {
	var sessions []domain.ChargingSession
	err := r.db.WithContext(ctx).
		Where("station_id = ? AND status IN ? AND ocpp_transaction_id IS NULL",
			stationID,
			[]domain.SessionStatus{domain.SessionStatusPending, domain.SessionStatusStarted}).
		Order("created_at desc").
		Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) FindOpenByStation(ctx context.Context, stationID string) ([]domain.ChargingSession, error) {
	var sessions []domain.ChargingSession
	err := r.db.WithContext(ctx).
		Where("station_id = ? AND status IN ?", stationID, nonTerminalStatuses).
		Order("created_at desc").
		Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) FindStartedOlderThan(ctx context.Context, age time.Duration) ([]domain.ChargingSession, error) {
	var sessions []domain.ChargingSession
	cutoff := time.Now().Add(-age)
	err := r.db.WithContext(ctx).
		Where("status = ? AND start_time < ?", domain.SessionStatusStarted, cutoff).
		Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) FindByOcppTransaction(ctx context.Context, stationID string, transactionID int) (*domain.ChargingSession, error) {
	var session domain.ChargingSession
	err := r.db.WithContext(ctx).
		Where("station_id = ? AND ocpp_transaction_id = ?", stationID, transactionID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}
