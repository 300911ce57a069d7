package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/ports"
)

// WalletRepository is the only writer of client balances. Every method
// takes a row lock on the client so concurrent start/stop on the same
// wallet serialize, and writes the ledger row, the balance and the
// session in one transaction.
type WalletRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewWalletRepository(db *gorm.DB, log *zap.Logger) ports.WalletRepository {
	return &WalletRepository{db: db, log: log}
}

func (r *WalletRepository) lockClient(tx *gorm.DB, clientID string) (*domain.Client, error) {
	var client domain.Client
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&client, "id = ?", clientID).Error
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (r *WalletRepository) Reserve(ctx context.Context, clientID string, amount domain.Amount, session *domain.ChargingSession, history *domain.PricingHistory) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := r.lockClient(tx, clientID)
		if err != nil {
			return err
		}
		if client.Balance < amount {
			return domain.ErrInsufficientBalance.WithDetails(map[string]interface{}{
				"current_balance": client.Balance.Som(),
				"required_amount": amount.Som(),
			})
		}

		before := client.Balance
		client.Balance -= amount
		client.UpdatedAt = time.Now()
		if err := tx.Save(client).Error; err != nil {
			return err
		}

		if history != nil {
			if err := tx.Create(history).Error; err != nil {
				return err
			}
			session.PricingHistoryID = &history.ID
		}
		if err := tx.Create(session).Error; err != nil {
			// The partial unique indexes reject a second active session
			// for the client or the connector; a concurrent start lost
			// the race.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrSessionAlreadyActive
			}
			return err
		}

		ledger := &domain.PaymentTransaction{
			ID:                uuid.New().String(),
			ClientID:          clientID,
			ChargingSessionID: &session.ID,
			Type:              domain.PaymentTypeChargeReserve,
			Amount:            amount,
			BalanceBefore:     before,
			BalanceAfter:      client.Balance,
			Description:       "charging reservation",
			CreatedAt:         time.Now(),
		}
		if err := tx.Create(ledger).Error; err != nil {
			return err
		}

		// The connector is taken in the same commit, guarded on its
		// current status so a concurrent start on it fails here rather
		// than double-booking the plug.
		res := tx.Model(&domain.Connector{}).
			Where("station_id = ? AND connector_number = ? AND status = ?",
				session.StationID, session.ConnectorNumber, domain.ConnectorStatusAvailable).
			Updates(map[string]interface{}{
				"status":             domain.ConnectorStatusOccupied,
				"last_status_update": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrConnectorOccupied
		}
		return nil
	})
}

func (r *WalletRepository) Settle(ctx context.Context, clientID string, txType domain.PaymentTransactionType, amount domain.Amount, session *domain.ChargingSession, description string) (domain.Amount, error) {
	var applied domain.Amount
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := r.lockClient(tx, clientID)
		if err != nil {
			return err
		}

		before := client.Balance
		switch txType {
		case domain.PaymentTypeChargePayment:
			// Overdraft past the reservation is capped at whatever the
			// wallet still holds; the shortfall is logged upstream.
			applied = domain.MinAmount(amount, client.Balance)
			client.Balance -= applied
		case domain.PaymentTypeChargeRefund:
			applied = amount
			client.Balance += applied
		default:
			return domain.ErrBalanceError.WithMessage("unsupported settlement type %q", txType)
		}
		client.UpdatedAt = time.Now()
		if err := tx.Save(client).Error; err != nil {
			return err
		}

		if applied != 0 {
			ledger := &domain.PaymentTransaction{
				ID:                uuid.New().String(),
				ClientID:          clientID,
				ChargingSessionID: &session.ID,
				Type:              txType,
				Amount:            applied,
				BalanceBefore:     before,
				BalanceAfter:      client.Balance,
				Description:       description,
				CreatedAt:         time.Now(),
			}
			if err := tx.Create(ledger).Error; err != nil {
				return err
			}
		}

		session.UpdatedAt = time.Now()
		return tx.Save(session).Error
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

func (r *WalletRepository) Refund(ctx context.Context, clientID string, amount domain.Amount, session *domain.ChargingSession, description string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := r.lockClient(tx, clientID)
		if err != nil {
			return err
		}

		before := client.Balance
		client.Balance += amount
		client.UpdatedAt = time.Now()
		if err := tx.Save(client).Error; err != nil {
			return err
		}

		ledger := &domain.PaymentTransaction{
			ID:                uuid.New().String(),
			ClientID:          clientID,
			ChargingSessionID: &session.ID,
			Type:              domain.PaymentTypeChargeRefund,
			Amount:            amount,
			BalanceBefore:     before,
			BalanceAfter:      client.Balance,
			Description:       description,
			CreatedAt:         time.Now(),
		}
		if err := tx.Create(ledger).Error; err != nil {
			return err
		}

		session.UpdatedAt = time.Now()
		return tx.Save(session).Error
	})
}

func (r *WalletRepository) Topup(ctx context.Context, clientID string, amount domain.Amount, description string) (domain.Amount, error) {
	var after domain.Amount
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		client, err := r.lockClient(tx, clientID)
		if err != nil {
			return err
		}

		before := client.Balance
		client.Balance += amount
		client.UpdatedAt = time.Now()
		if err := tx.Save(client).Error; err != nil {
			return err
		}
		after = client.Balance

		ledger := &domain.PaymentTransaction{
			ID:            uuid.New().String(),
			ClientID:      clientID,
			Type:          domain.PaymentTypeTopup,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  client.Balance,
			Description:   description,
			CreatedAt:     time.Now(),
		}
		return tx.Create(ledger).Error
	})
	if err != nil {
		return 0, err
	}
	return after, nil
}

func (r *WalletRepository) FindLedger(ctx context.Context, clientID string, limit int) ([]domain.PaymentTransaction, error) {
	var rows []domain.PaymentTransaction
	q := r.db.WithContext(ctx).Where("client_id = ?", clientID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}
