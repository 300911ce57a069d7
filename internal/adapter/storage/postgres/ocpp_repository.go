package postgres

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/ports"
)

type OcppRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewOcppRepository(db *gorm.DB, log *zap.Logger) ports.OcppRepository {
	return &OcppRepository{db: db, log: log}
}

func (r *OcppRepository) SaveTransaction(ctx context.Context, tx *domain.OcppTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *OcppRepository) UpdateTransaction(ctx context.Context, tx *domain.OcppTransaction) error {
	return r.db.WithContext(ctx).Save(tx).Error
}

func (r *OcppRepository) FindTransaction(ctx context.Context, stationID string, transactionID int) (*domain.OcppTransaction, error) {
	var tx domain.OcppTransaction
	err := r.db.WithContext(ctx).
		Where("station_id = ? AND transaction_id = ?", stationID, transactionID).
		First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *OcppRepository) SaveMeterValue(ctx context.Context, mv *domain.MeterValue) error {
	return r.db.WithContext(ctx).Create(mv).Error
}

func (r *OcppRepository) LastMeterValue(ctx context.Context, stationID string, transactionID int) (*domain.MeterValue, error) {
	var mv domain.MeterValue
	err := r.db.WithContext(ctx).
		Where("station_id = ? AND ocpp_transaction_id = ?", stationID, transactionID).
		Order("timestamp desc").
		First(&mv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &mv, nil
}

func (r *OcppRepository) UpsertStationStatus(ctx context.Context, status *domain.OcppStationStatus) error {
	status.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).Save(status).Error
}

func (r *OcppRepository) FindStationStatus(ctx context.Context, stationID string) (*domain.OcppStationStatus, error) {
	var status domain.OcppStationStatus
	err := r.db.WithContext(ctx).First(&status, "station_id = ?", stationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &status, nil
}

func (r *OcppRepository) FindStaleStationStatuses(ctx context.Context, olderThan time.Duration) ([]domain.OcppStationStatus, error) {
	var statuses []domain.OcppStationStatus
	cutoff := time.Now().Add(-olderThan)
	err := r.db.WithContext(ctx).
		Where("last_heartbeat IS NULL OR last_heartbeat < ?", cutoff).
		Find(&statuses).Error
	return statuses, err
}

func (r *OcppRepository) FindAuthorizationTag(ctx context.Context, idTag string) (*domain.AuthorizationTag, error) {
	var tag domain.AuthorizationTag
	err := r.db.WithContext(ctx).First(&tag, "id_tag = ?", idTag).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tag, nil
}

func (r *OcppRepository) SeedConfiguration(ctx context.Context, stationID string, defaults map[string]string) error {
	for key, value := range defaults {
		row := &domain.StationConfigurationKey{
			StationID: stationID,
			Key:       key,
			Value:     value,
			UpdatedAt: time.Now(),
		}
		err := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "station_id"}, {Name: "key"}},
				DoNothing: true,
			}).
			Create(row).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *OcppRepository) FindConfiguration(ctx context.Context, stationID string) ([]domain.StationConfigurationKey, error) {
	var keys []domain.StationConfigurationKey
	err := r.db.WithContext(ctx).
		Where("station_id = ?", stationID).
		Order("key asc").
		Find(&keys).Error
	return keys, err
}

func (r *OcppRepository) LogMessage(ctx context.Context, entry *domain.OcppMessageLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
