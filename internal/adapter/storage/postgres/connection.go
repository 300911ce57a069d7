package postgres

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/observability/telemetry"
)

// NewConnection initializes a new PostgreSQL connection using GORM
func NewConnection(url string, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// Set connection pool settings
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	if err := registerLatencyCallbacks(db); err != nil {
		return nil, fmt.Errorf("failed to register latency callbacks: %w", err)
	}

	log.Info("Successfully connected to PostgreSQL")
	return db, nil
}

const latencyStartKey = "telemetry:started_at"

// registerLatencyCallbacks feeds query timings into the database latency
// histogram.
func registerLatencyCallbacks(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(latencyStartKey, time.Now())
	}
	after := func(tx *gorm.DB) {
		if v, ok := tx.InstanceGet(latencyStartKey); ok {
			if started, ok := v.(time.Time); ok {
				telemetry.DatabaseLatency.Observe(time.Since(started).Seconds())
			}
		}
	}

	cb := db.Callback()
	for _, err := range []error{
		cb.Create().Before("gorm:create").Register("telemetry:before_create", before),
		cb.Create().After("gorm:create").Register("telemetry:after_create", after),
		cb.Query().Before("gorm:query").Register("telemetry:before_query", before),
		cb.Query().After("gorm:query").Register("telemetry:after_query", after),
		cb.Update().Before("gorm:update").Register("telemetry:before_update", before),
		cb.Update().After("gorm:update").Register("telemetry:after_update", after),
		cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", before),
		cb.Delete().After("gorm:delete").Register("telemetry:after_delete", after),
		cb.Row().Before("gorm:row").Register("telemetry:before_row", before),
		cb.Row().After("gorm:row").Register("telemetry:after_row", after),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// RunMigrations creates or updates the schema for all domain models.
func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&domain.Client{},
		&domain.ClientTariff{},
		&domain.Location{},
		&domain.Station{},
		&domain.Connector{},
		&domain.TariffPlan{},
		&domain.TariffRule{},
		&domain.PricingHistory{},
		&domain.ChargingSession{},
		&domain.OcppTransaction{},
		&domain.MeterValue{},
		&domain.OcppStationStatus{},
		&domain.StationConfigurationKey{},
		&domain.AuthorizationTag{},
		&domain.OcppMessageLog{},
		&domain.PaymentTransaction{},
		&domain.IdempotencyRecord{},
	)
	if err != nil {
		return err
	}

	// AutoMigrate cannot express partial unique indexes. These back the
	// one-active-session-per-client and one-active-session-per-connector
	// invariants against concurrent StartCharging calls.
	for _, stmt := range []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_one_active_session_per_client
			ON charging_sessions (client_id)
			WHERE status IN ('pending', 'started', 'stopping')`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_one_active_session_per_connector
			ON charging_sessions (station_id, connector_number)
			WHERE status IN ('pending', 'started', 'stopping')`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
