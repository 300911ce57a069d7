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

type StationRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStationRepository(db *gorm.DB, log *zap.Logger) ports.StationRepository {
	return &StationRepository{db: db, log: log}
}

func (r *StationRepository) FindByID(ctx context.Context, id string) (*domain.Station, error) {
	var station domain.Station
	err := r.db.WithContext(ctx).Preload("Connectors").First(&station, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &station, nil
}

func (r *StationRepository) FindByLocationID(ctx context.Context, locationID string) ([]domain.Station, error) {
	var stations []domain.Station
	err := r.db.WithContext(ctx).Preload("Connectors").Where("location_id = ?", locationID).Find(&stations).Error
	return stations, err
}

func (r *StationRepository) FindAll(ctx context.Context) ([]domain.Station, error) {
	var stations []domain.Station
	err := r.db.WithContext(ctx).Find(&stations).Error
	return stations, err
}

func (r *StationRepository) Save(ctx context.Context, station *domain.Station) error {
	return r.db.WithContext(ctx).Save(station).Error
}

func (r *StationRepository) UpdateAvailability(ctx context.Context, id string, available bool) error {
	return r.db.WithContext(ctx).Model(&domain.Station{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_available": available, "updated_at": time.Now()}).Error
}

func (r *StationRepository) TouchAPIKeyUse(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&domain.Station{}).
		Where("id = ?", id).
		Update("last_api_key_use", &now).Error
}

type ConnectorRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewConnectorRepository(db *gorm.DB, log *zap.Logger) ports.ConnectorRepository {
	return &ConnectorRepository{db: db, log: log}
}

func (r *ConnectorRepository) Find(ctx context.Context, stationID string, connectorNumber int) (*domain.Connector, error) {
	var connector domain.Connector
	err := r.db.WithContext(ctx).
		Where("station_id = ? AND connector_number = ?", stationID, connectorNumber).
		First(&connector).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &connector, nil
}

func (r *ConnectorRepository) FindByStation(ctx context.Context, stationID string) ([]domain.Connector, error) {
	var connectors []domain.Connector
	err := r.db.WithContext(ctx).Where("station_id = ?", stationID).Order("connector_number").Find(&connectors).Error
	return connectors, err
}

func (r *ConnectorRepository) UpdateStatus(ctx context.Context, stationID string, connectorNumber int, status domain.ConnectorStatus, errorCode string) error {
	return r.db.WithContext(ctx).Model(&domain.Connector{}).
		Where("station_id = ? AND connector_number = ?", stationID, connectorNumber).
		Updates(map[string]interface{}{
			"status":             status,
			"error_code":         errorCode,
			"last_status_update": time.Now(),
		}).Error
}

func (r *ConnectorRepository) ReleaseAllOccupied(ctx context.Context, stationID string) error {
	return r.db.WithContext(ctx).Model(&domain.Connector{}).
		Where("station_id = ? AND status = ?", stationID, domain.ConnectorStatusOccupied).
		Updates(map[string]interface{}{
			"status":             domain.ConnectorStatusAvailable,
			"last_status_update": time.Now(),
		}).Error
}
