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

type TariffRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewTariffRepository(db *gorm.DB, log *zap.Logger) ports.TariffRepository {
	return &TariffRepository{db: db, log: log}
}

func (r *TariffRepository) FindPlanByID(ctx context.Context, id string) (*domain.TariffPlan, error) {
	var plan domain.TariffPlan
	err := r.db.WithContext(ctx).Preload("Rules").First(&plan, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

// FindActiveRules returns active rules highest priority first so the
// resolver can take the first match after filtering.
func (r *TariffRepository) FindActiveRules(ctx context.Context, planID string) ([]domain.TariffRule, error) {
	var rules []domain.TariffRule
	err := r.db.WithContext(ctx).
		Where("tariff_plan_id = ? AND is_active = ?", planID, true).
		Order("priority desc, created_at desc").
		Find(&rules).Error
	return rules, err
}

func (r *TariffRepository) FindClientTariff(ctx context.Context, clientID string) (*domain.ClientTariff, error) {
	var tariff domain.ClientTariff
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND is_active = ?", clientID, true).
		Order("created_at desc").
		First(&tariff).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tariff, nil
}

func (r *TariffRepository) SaveRule(ctx context.Context, rule *domain.TariffRule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	return r.db.WithContext(ctx).Save(rule).Error
}

func (r *TariffRepository) SavePricingHistory(ctx context.Context, history *domain.PricingHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

func (r *TariffRepository) FindPricingHistoryByID(ctx context.Context, id string) (*domain.PricingHistory, error) {
	var history domain.PricingHistory
	err := r.db.WithContext(ctx).First(&history, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &history, nil
}
