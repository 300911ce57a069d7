package charging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/adapter/queue"
	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/observability/telemetry"
	"github.com/evpower/evpower-backend/internal/ports"
)

const (
	// estimateDuration is the assumed session length when computing the
	// reservation from an energy limit.
	estimateDuration = 60 * time.Minute

	// unlimitedCapSom caps the reservation of a session started without
	// any limit, plus the session fee.
	unlimitedCapSom = 200.0

	// minReserveSom is the smallest reservation a no-limit session may
	// start with.
	minReserveSom = 10.0

	// pendingKeyTTL bounds how long a created session waits for the
	// station's StartTransaction before the bind falls back to matching
	// by id_tag.
	pendingKeyTTL = 10 * time.Minute

	energyLimitThreshold = 0.95
	amountLimitThreshold = 0.95
	reserveStopThreshold = 0.90
	warnThreshold        = 0.80

	// hangingSessionAge marks sessions the hourly sweep force-settles.
	hangingSessionAge = 12 * time.Hour
)

// Service is the charging session engine: the single owner of session
// state transitions and the only caller of wallet mutations.
type Service struct {
	clients    ports.ClientRepository
	stations   ports.StationRepository
	connectors ports.ConnectorRepository
	sessions   ports.SessionRepository
	ocpp       ports.OcppRepository
	wallet     ports.WalletRepository
	tariffs    ports.TariffRepository
	pricing    ports.PricingService
	bus        ports.Bus
	queue      queue.MessageQueue
	log        *zap.Logger
}

func NewService(
	clients ports.ClientRepository,
	stations ports.StationRepository,
	connectors ports.ConnectorRepository,
	sessions ports.SessionRepository,
	ocppRepo ports.OcppRepository,
	wallet ports.WalletRepository,
	tariffs ports.TariffRepository,
	pricing ports.PricingService,
	bus ports.Bus,
	mq queue.MessageQueue,
	log *zap.Logger,
) *Service {
	return &Service{
		clients:    clients,
		stations:   stations,
		connectors: connectors,
		sessions:   sessions,
		ocpp:       ocppRepo,
		wallet:     wallet,
		tariffs:    tariffs,
		pricing:    pricing,
		bus:        bus,
		queue:      mq,
		log:        log,
	}
}

func (s *Service) StartCharging(ctx context.Context, clientID, stationID string, connectorNumber int, energyKwh, amountSom *float64) (*domain.StartChargingResult, error) {
	client, err := s.clients.FindByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, domain.ErrClientNotFound
	}
	switch client.Status {
	case domain.ClientStatusActive:
	case domain.ClientStatusPendingDeletion:
		return nil, domain.ErrAccountDeletionPending
	default:
		return nil, domain.ErrAccountBlocked
	}

	station, err := s.stations.FindByID(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if station == nil {
		return nil, domain.ErrStationNotFound
	}
	if station.Status != domain.StationStatusActive {
		return nil, domain.ErrStationOffline.WithMessage("station %s is not in service", stationID)
	}

	// A station that never opened an OCPP socket cannot pick the session
	// up later; one that is merely offline can, so it only downgrades
	// the result to station_online=false.
	stationOnline, err := s.bus.IsOnline(ctx, stationID)
	if err != nil {
		s.log.Warn("Failed to check station presence", zap.String("station_id", stationID), zap.Error(err))
	}
	if !stationOnline {
		status, err := s.ocpp.FindStationStatus(ctx, stationID)
		if err != nil {
			return nil, err
		}
		if status == nil {
			return nil, domain.ErrStationNeverConnected
		}
	}

	connector, err := s.connectors.Find(ctx, stationID, connectorNumber)
	if err != nil {
		return nil, err
	}
	if connector == nil {
		return nil, domain.ErrConnectorNotFound
	}
	if connector.Status != domain.ConnectorStatusAvailable {
		return nil, domain.ErrConnectorOccupied.WithDetails(map[string]interface{}{
			"connector_status": string(connector.Status),
		})
	}
	if active, err := s.sessions.FindActiveByConnector(ctx, stationID, connectorNumber); err != nil {
		return nil, err
	} else if active != nil {
		return nil, domain.ErrConnectorOccupied
	}

	if active, err := s.sessions.FindActiveByClient(ctx, clientID); err != nil {
		return nil, err
	} else if active != nil {
		return nil, domain.ErrSessionAlreadyActive.WithDetails(map[string]interface{}{
			"session_id": active.ID,
		})
	}

	now := time.Now().UTC()
	snapshot, err := s.pricing.Resolve(ctx, stationID, connector.ConnectorType, connector.PowerKw, now, clientID)
	if err != nil {
		return nil, err
	}

	limit, reserved, err := s.reservation(snapshot, client.Balance, energyKwh, amountSom)
	if err != nil {
		return nil, err
	}

	history := &domain.PricingHistory{
		ID:            uuid.New().String(),
		StationID:     stationID,
		ClientID:      clientID,
		RatePerKwh:    snapshot.RatePerKwh,
		RatePerMinute: snapshot.RatePerMinute,
		SessionFee:    snapshot.SessionFee,
		Currency:      snapshot.Currency,
		Description:   snapshot.Description,
		TariffPlanID:  snapshot.TariffPlanID,
		RuleID:        snapshot.RuleID,
		CreatedAt:     now,
	}

	session := &domain.ChargingSession{
		ID:              uuid.New().String(),
		ClientID:        clientID,
		StationID:       stationID,
		ConnectorNumber: connectorNumber,
		Status:          domain.SessionStatusPending,
		LimitType:       limit.Type,
		LimitValue:      limit.Value,
		ReservedAmount:  reserved,
		StartTime:       now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.wallet.Reserve(ctx, clientID, reserved, session, history); err != nil {
		return nil, err
	}
	telemetry.ActiveChargingSessions.Inc()

	pendingKey := ports.PendingSessionKey(stationID, connectorNumber)
	if err := s.bus.Set(ctx, pendingKey, session.ID, pendingKeyTTL); err != nil {
		s.log.Warn("Failed to index pending session", zap.String("session_id", session.ID), zap.Error(err))
	}

	if stationOnline {
		cmd := &domain.StationCommand{
			Action:          domain.CmdRemoteStartTransaction,
			ConnectorNumber: connectorNumber,
			IdTag:           domain.NormalizePhone(client.Phone),
			SessionID:       session.ID,
			LimitType:       string(limit.Type),
			LimitValue:      limit.Value,
		}
		s.publishCommand(ctx, stationID, cmd)
	} else {
		s.log.Info("Station offline at start, session left pending",
			zap.String("session_id", session.ID),
			zap.String("station_id", stationID))
	}

	s.emit(domain.EventSessionStarted, map[string]interface{}{
		"session_id":      session.ID,
		"client_id":       clientID,
		"station_id":      stationID,
		"connector":       connectorNumber,
		"limit_type":      string(limit.Type),
		"limit_value":     limit.Value,
		"reserved_amount": reserved.Som(),
		"station_online":  stationOnline,
	})

	return &domain.StartChargingResult{
		SessionID:      session.ID,
		Status:         string(session.Status),
		ReservedAmount: reserved.Som(),
		LimitType:      string(limit.Type),
		LimitValue:     limit.Value,
		StationOnline:  stationOnline,
	}, nil
}

// reservation resolves the requested limits into the limit recorded on
// the session and the amount to hold from the wallet.
func (s *Service) reservation(snapshot *domain.TariffSnapshot, balance domain.Amount, energyKwh, amountSom *float64) (domain.ChargingLimit, domain.Amount, error) {
	switch {
	case energyKwh != nil && amountSom != nil:
		estimated := snapshot.EstimatedCost(*energyKwh, estimateDuration)
		reserved := domain.MinAmount(estimated, domain.AmountFromSom(*amountSom))
		return domain.ChargingLimit{Type: domain.LimitTypeEnergy, Value: *energyKwh}, reserved, nil

	case amountSom != nil:
		requested := domain.AmountFromSom(*amountSom)
		if requested > balance {
			return domain.ChargingLimit{}, 0, domain.ErrAmountExceedsBalance.WithDetails(map[string]interface{}{
				"current_balance":  balance.Som(),
				"requested_amount": requested.Som(),
			})
		}
		return domain.ChargingLimit{Type: domain.LimitTypeAmount, Value: *amountSom}, requested, nil

	case energyKwh != nil:
		estimated := snapshot.EstimatedCost(*energyKwh, estimateDuration)
		return domain.ChargingLimit{Type: domain.LimitTypeEnergy, Value: *energyKwh}, estimated, nil

	default:
		if balance == 0 {
			return domain.ChargingLimit{}, 0, domain.ErrZeroBalance
		}
		maxReserve := domain.AmountFromSom(unlimitedCapSom + snapshot.SessionFee)
		reserved := domain.MinAmount(balance, maxReserve)
		if reserved < domain.AmountFromSom(minReserveSom) {
			return domain.ChargingLimit{}, 0, domain.ErrInsufficientBalance.WithDetails(map[string]interface{}{
				"current_balance": balance.Som(),
				"required_amount": minReserveSom,
			})
		}
		return domain.ChargingLimit{Type: domain.LimitTypeNone}, reserved, nil
	}
}

func (s *Service) StopCharging(ctx context.Context, sessionID, clientID string) (*domain.StopChargingResult, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || (clientID != "" && session.ClientID != clientID) {
		return nil, domain.ErrSessionNotFound
	}
	if session.Status.Terminal() {
		return nil, domain.ErrSessionNotFound.WithMessage("session %s is already finished", sessionID)
	}

	// A pending session never started on the station: refund in full and
	// drop the pending index.
	if session.Status == domain.SessionStatusPending {
		return s.cancelPending(ctx, session)
	}

	energy, err := s.energyDelivered(ctx, session)
	if err != nil {
		return nil, err
	}

	result, err := s.settle(ctx, session, energy, time.Now().UTC(), "charging settlement")
	if err != nil {
		return nil, err
	}

	// Ask the station to stop; settlement does not depend on the reply.
	if session.OcppTransactionID != nil {
		if online, _ := s.bus.IsOnline(ctx, session.StationID); online {
			s.publishCommand(ctx, session.StationID, &domain.StationCommand{
				Action:        domain.CmdRemoteStopTransaction,
				TransactionID: *session.OcppTransactionID,
				SessionID:     session.ID,
				Reason:        "Remote",
			})
		}
	}
	return result, nil
}

func (s *Service) cancelPending(ctx context.Context, session *domain.ChargingSession) (*domain.StopChargingResult, error) {
	now := time.Now().UTC()
	reserved := session.ReservedAmount
	session.Status = domain.SessionStatusStopped
	session.StopTime = &now
	session.FinalAmount = 0
	if err := s.wallet.Refund(ctx, session.ClientID, reserved, session, "cancelled before start"); err != nil {
		return nil, err
	}
	telemetry.ActiveChargingSessions.Dec()
	s.releaseConnector(ctx, session)
	if err := s.bus.Delete(ctx, ports.PendingSessionKey(session.StationID, session.ConnectorNumber)); err != nil {
		s.log.Debug("Failed to drop pending session key", zap.Error(err))
	}
	s.emit(domain.EventSessionSettled, map[string]interface{}{
		"session_id":    session.ID,
		"client_id":     session.ClientID,
		"station_id":    session.StationID,
		"energy_kwh":    0.0,
		"final_amount":  0.0,
		"refund_amount": reserved.Som(),
	})
	return &domain.StopChargingResult{
		SessionID:    session.ID,
		Status:       string(session.Status),
		RefundAmount: reserved.Som(),
	}, nil
}

// settle closes the session financially: computes the actual cost from
// the persisted tariff snapshot, charges or refunds the difference
// against the reservation in one wallet transaction, and releases the
// connector.
func (s *Service) settle(ctx context.Context, session *domain.ChargingSession, energyKwh float64, stoppedAt time.Time, description string) (*domain.StopChargingResult, error) {
	snapshot, err := s.snapshotFor(ctx, session)
	if err != nil {
		return nil, err
	}

	duration := stoppedAt.Sub(session.StartTime)
	if duration < 0 {
		duration = 0
	}
	cost := snapshot.CostFor(energyKwh, duration)
	reserved := session.ReservedAmount

	session.Status = domain.SessionStatusStopped
	session.StopTime = &stoppedAt
	session.ActualEnergyKwh = energyKwh

	var refunded, extra domain.Amount
	if cost >= reserved {
		extra = cost - reserved
		session.FinalAmount = cost
		applied, err := s.wallet.Settle(ctx, session.ClientID, domain.PaymentTypeChargePayment, extra, session, description)
		if err != nil {
			return nil, err
		}
		if applied < extra {
			// Wallet could not cover the overrun; record what was
			// actually collected.
			s.log.Warn("Settlement overdraft capped at balance",
				zap.String("session_id", session.ID),
				zap.Float64("shortfall", (extra-applied).Som()))
			session.FinalAmount = reserved + applied
			if err := s.sessions.Update(ctx, session); err != nil {
				return nil, err
			}
		}
		extra = applied
	} else {
		refunded = reserved - cost
		session.FinalAmount = cost
		if _, err := s.wallet.Settle(ctx, session.ClientID, domain.PaymentTypeChargeRefund, refunded, session, description); err != nil {
			return nil, err
		}
	}

	telemetry.ActiveChargingSessions.Dec()
	telemetry.SettlementAmount.Observe(session.FinalAmount.Som())

	s.releaseConnector(ctx, session)
	if err := s.bus.Delete(ctx, ports.PendingSessionKey(session.StationID, session.ConnectorNumber)); err != nil {
		s.log.Debug("Failed to drop pending session key", zap.Error(err))
	}

	s.emit(domain.EventSessionSettled, map[string]interface{}{
		"session_id":    session.ID,
		"client_id":     session.ClientID,
		"station_id":    session.StationID,
		"energy_kwh":    energyKwh,
		"final_amount":  session.FinalAmount.Som(),
		"refund_amount": refunded.Som(),
		"extra_charged": extra.Som(),
	})

	s.log.Info("Session settled",
		zap.String("session_id", session.ID),
		zap.Float64("energy_kwh", energyKwh),
		zap.Float64("final_amount", session.FinalAmount.Som()),
		zap.Float64("refund", refunded.Som()))

	return &domain.StopChargingResult{
		SessionID:    session.ID,
		Status:       string(session.Status),
		EnergyKwh:    energyKwh,
		FinalAmount:  session.FinalAmount.Som(),
		RefundAmount: refunded.Som(),
		ExtraCharged: extra.Som(),
	}, nil
}

// energyDelivered resolves delivered energy from the best available
// source: the session's running total, the stop meter reading, the last
// sampled meter value, then zero.
func (s *Service) energyDelivered(ctx context.Context, session *domain.ChargingSession) (float64, error) {
	if session.ActualEnergyKwh > 0 {
		return session.ActualEnergyKwh, nil
	}
	if session.OcppTransactionID == nil {
		return 0, nil
	}
	tx, err := s.ocpp.FindTransaction(ctx, session.StationID, *session.OcppTransactionID)
	if err != nil {
		return 0, err
	}
	if tx == nil {
		return 0, nil
	}
	if tx.MeterStop != nil {
		return tx.EnergyKwh(), nil
	}
	last, err := s.ocpp.LastMeterValue(ctx, session.StationID, tx.TransactionID)
	if err != nil {
		return 0, err
	}
	if last != nil && last.EnergyWh != nil {
		delta := *last.EnergyWh - float64(tx.MeterStart)
		if delta > 0 {
			return delta / 1000, nil
		}
	}
	return 0, nil
}

// snapshotFor reloads the tariff captured at session start. Sessions
// without persisted pricing fall back to the network default.
func (s *Service) snapshotFor(ctx context.Context, session *domain.ChargingSession) (*domain.TariffSnapshot, error) {
	if session.PricingHistoryID != nil {
		history, err := s.tariffs.FindPricingHistoryByID(ctx, *session.PricingHistoryID)
		if err != nil {
			return nil, err
		}
		if history != nil {
			return &domain.TariffSnapshot{
				RatePerKwh:    history.RatePerKwh,
				RatePerMinute: history.RatePerMinute,
				SessionFee:    history.SessionFee,
				Currency:      history.Currency,
				Description:   history.Description,
				TariffPlanID:  history.TariffPlanID,
				RuleID:        history.RuleID,
			}, nil
		}
	}
	return &domain.TariffSnapshot{
		RatePerKwh:  domain.DefaultRatePerKwh,
		Currency:    domain.Currency,
		Description: domain.DefaultTariffDescription,
	}, nil
}

func (s *Service) GetStatus(ctx context.Context, sessionID, clientID string) (*domain.SessionStatusView, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || (clientID != "" && session.ClientID != clientID) {
		return nil, domain.ErrSessionNotFound
	}

	online, _ := s.bus.IsOnline(ctx, session.StationID)

	view := &domain.SessionStatusView{
		SessionID:       session.ID,
		Status:          string(session.Status),
		StationID:       session.StationID,
		ConnectorNumber: session.ConnectorNumber,
		StationOnline:   online,
		EnergyKwh:       session.ActualEnergyKwh,
		ReservedAmount:  session.ReservedAmount.Som(),
		LimitType:       string(session.LimitType),
		LimitValue:      session.LimitValue,
		StartTime:       session.StartTime,
		StopTime:        session.StopTime,
	}

	end := time.Now().UTC()
	if session.StopTime != nil {
		end = *session.StopTime
	}
	view.DurationMinutes = end.Sub(session.StartTime).Minutes()
	if view.DurationMinutes < 0 {
		view.DurationMinutes = 0
	}

	if session.OcppTransactionID != nil {
		tx, err := s.ocpp.FindTransaction(ctx, session.StationID, *session.OcppTransactionID)
		if err != nil {
			return nil, err
		}
		if tx != nil {
			view.MeterStart = &tx.MeterStart
			last, err := s.ocpp.LastMeterValue(ctx, session.StationID, tx.TransactionID)
			if err != nil {
				return nil, err
			}
			if last != nil {
				view.HasMeterData = true
				if last.EnergyWh != nil {
					current := int(*last.EnergyWh)
					view.MeterCurrent = &current
					if delta := *last.EnergyWh - float64(tx.MeterStart); delta > 0 {
						view.EnergyKwh = delta / 1000
					}
				}
				if last.PowerKw != nil {
					view.ChargingPowerKw = *last.PowerKw
				}
				view.SoC = last.SoC
				view.TemperatureC = last.TemperatureC
			}
		}
	}

	if session.Status.Terminal() {
		view.CurrentCost = session.FinalAmount.Som()
	} else {
		snapshot, err := s.snapshotFor(ctx, session)
		if err != nil {
			return nil, err
		}
		view.CurrentCost = snapshot.CostFor(view.EnergyKwh, end.Sub(session.StartTime)).Som()
	}

	view.ProgressPercent = progress(session, view.EnergyKwh, domain.AmountFromSom(view.CurrentCost))
	return view, nil
}

// progress estimates completion against the session's limit, or against
// the reservation when no limit was set.
func progress(session *domain.ChargingSession, energyKwh float64, cost domain.Amount) float64 {
	var p float64
	switch session.LimitType {
	case domain.LimitTypeEnergy:
		if session.LimitValue > 0 {
			p = energyKwh / session.LimitValue * 100
		}
	case domain.LimitTypeAmount:
		if session.LimitValue > 0 {
			p = cost.Som() / session.LimitValue * 100
		}
	default:
		if session.ReservedAmount > 0 {
			p = float64(cost) / float64(session.ReservedAmount) * 100
		}
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p
}

func (s *Service) releaseConnector(ctx context.Context, session *domain.ChargingSession) {
	err := s.connectors.UpdateStatus(ctx, session.StationID, session.ConnectorNumber, domain.ConnectorStatusAvailable, "")
	if err != nil {
		s.log.Warn("Failed to release connector",
			zap.String("station_id", session.StationID),
			zap.Int("connector", session.ConnectorNumber),
			zap.Error(err))
	}
}

// publishCommand waits for the station's actor to subscribe before
// publishing so a command sent right after connect is not lost.
func (s *Service) publishCommand(ctx context.Context, stationID string, cmd *domain.StationCommand) {
	topic := ports.CommandTopic(stationID)
	if !s.bus.WaitForSubscription(ctx, topic, ports.SubscriptionTimeout) {
		s.log.Warn("No subscriber on command topic",
			zap.String("station_id", stationID),
			zap.String("action", cmd.Action))
	}
	if err := s.bus.Publish(ctx, topic, cmd.Marshal()); err != nil {
		s.log.Error("Failed to publish station command",
			zap.String("station_id", stationID),
			zap.String("action", cmd.Action),
			zap.Error(err))
	}
}

func (s *Service) emit(subject string, payload map[string]interface{}) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.queue.Publish(subject, data); err != nil {
		s.log.Warn("Failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

var _ ports.ChargingService = (*Service)(nil)
