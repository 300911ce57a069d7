package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/ports"
)

type ClientRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewClientRepository(db *gorm.DB, log *zap.Logger) ports.ClientRepository {
	return &ClientRepository{db: db, log: log}
}

func (r *ClientRepository) FindByID(ctx context.Context, id string) (*domain.Client, error) {
	var client domain.Client
	err := r.db.WithContext(ctx).First(&client, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &client, nil
}

func (r *ClientRepository) FindByPhone(ctx context.Context, phone string) (*domain.Client, error) {
	var client domain.Client
	err := r.db.WithContext(ctx).First(&client, "phone = ?", phone).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &client, nil
}

func (r *ClientRepository) Save(ctx context.Context, client *domain.Client) error {
	return r.db.WithContext(ctx).Save(client).Error
}
