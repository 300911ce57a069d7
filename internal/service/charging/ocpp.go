package charging

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/observability/telemetry"
	"github.com/evpower/evpower-backend/internal/ports"
)

// BindStartTransaction records a station-reported StartTransaction and
// binds it to a waiting session. Replays of the same (station,
// transaction) pair are accepted without side effects.
func (s *Service) BindStartTransaction(ctx context.Context, stationID string, connectorNumber, transactionID int, idTag string, meterStart int, timestamp time.Time) error {
	existing, err := s.ocpp.FindTransaction(ctx, stationID, transactionID)
	if err != nil {
		return err
	}
	if existing != nil {
		s.log.Info("Duplicate StartTransaction ignored",
			zap.String("station_id", stationID),
			zap.Int("transaction_id", transactionID))
		return nil
	}

	tx := &domain.OcppTransaction{
		StationID:       stationID,
		TransactionID:   transactionID,
		ConnectorNumber: connectorNumber,
		IdTag:           idTag,
		MeterStart:      meterStart,
		StartTimestamp:  timestamp,
		Status:          domain.OcppTransactionStarted,
		CreatedAt:       time.Now().UTC(),
	}

	session, err := s.findBindableSession(ctx, stationID, connectorNumber, idTag)
	if err != nil {
		return err
	}
	if session == nil {
		s.log.Warn("StartTransaction without a matching session",
			zap.String("station_id", stationID),
			zap.Int("connector", connectorNumber),
			zap.String("id_tag", idTag))
		return s.ocpp.SaveTransaction(ctx, tx)
	}

	tx.ChargingSessionID = &session.ID
	if err := s.ocpp.SaveTransaction(ctx, tx); err != nil {
		return err
	}

	session.OcppTransactionID = &transactionID
	if session.Status == domain.SessionStatusPending {
		session.Status = domain.SessionStatusStarted
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return err
	}

	if err := s.connectors.UpdateStatus(ctx, stationID, connectorNumber, domain.ConnectorStatusOccupied, ""); err != nil {
		s.log.Warn("Failed to mark connector occupied", zap.Error(err))
	}
	if err := s.bus.Delete(ctx, ports.PendingSessionKey(stationID, connectorNumber)); err != nil {
		s.log.Debug("Failed to drop pending session key", zap.Error(err))
	}

	s.log.Info("Session bound to transaction",
		zap.String("session_id", session.ID),
		zap.String("station_id", stationID),
		zap.Int("transaction_id", transactionID))
	return nil
}

// findBindableSession resolves the session a StartTransaction belongs
// to: the pending index for the connector first, then a phone match
// against the id_tag, then the authorization list, accepting none.
func (s *Service) findBindableSession(ctx context.Context, stationID string, connectorNumber int, idTag string) (*domain.ChargingSession, error) {
	if pending, err := s.bus.Get(ctx, ports.PendingSessionKey(stationID, connectorNumber)); err == nil && pending != "" {
		session, err := s.sessions.FindByID(ctx, pending)
		if err != nil {
			return nil, err
		}
		if session != nil && !session.Status.Terminal() && session.OcppTransactionID == nil {
			return session, nil
		}
	}

	candidates, err := s.sessions.FindBindableByStation(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	normalized := domain.NormalizePhone(idTag)
	if normalized != "" {
		for i := range candidates {
			client, err := s.clients.FindByID(ctx, candidates[i].ClientID)
			if err != nil {
				return nil, err
			}
			if client != nil && domain.NormalizePhone(client.Phone) == normalized {
				return &candidates[i], nil
			}
		}
	}

	tag, err := s.ocpp.FindAuthorizationTag(ctx, idTag)
	if err != nil {
		return nil, err
	}
	if tag != nil && tag.ClientID != nil {
		for i := range candidates {
			if candidates[i].ClientID == *tag.ClientID {
				return &candidates[i], nil
			}
		}
	}
	return nil, nil
}

// SettleStopTransaction closes the transaction from the station side.
// Unknown transactions are logged and acknowledged; a bound session is
// settled exactly as a client-initiated stop, minus the remote stop.
func (s *Service) SettleStopTransaction(ctx context.Context, stationID string, transactionID int, meterStop *int, reason string, timestamp time.Time) error {
	tx, err := s.ocpp.FindTransaction(ctx, stationID, transactionID)
	if err != nil {
		return err
	}
	if tx == nil {
		s.log.Warn("StopTransaction for unknown transaction",
			zap.String("station_id", stationID),
			zap.Int("transaction_id", transactionID))
		return nil
	}
	if tx.Status == domain.OcppTransactionStopped {
		return nil
	}

	tx.MeterStop = meterStop
	tx.StopTimestamp = &timestamp
	tx.StopReason = reason
	tx.Status = domain.OcppTransactionStopped
	if err := s.ocpp.UpdateTransaction(ctx, tx); err != nil {
		return err
	}

	var session *domain.ChargingSession
	if tx.ChargingSessionID != nil {
		session, err = s.sessions.FindByID(ctx, *tx.ChargingSessionID)
	} else {
		session, err = s.sessions.FindByOcppTransaction(ctx, stationID, transactionID)
	}
	if err != nil {
		return err
	}
	if session == nil || session.Status.Terminal() {
		s.releaseConnectorNumber(ctx, stationID, tx.ConnectorNumber)
		return nil
	}

	energy := tx.EnergyKwh()
	if energy == 0 {
		energy, err = s.energyDelivered(ctx, session)
		if err != nil {
			return err
		}
	}

	_, err = s.settle(ctx, session, energy, timestamp.UTC(), "charging settlement ("+reason+")")
	return err
}

// CheckLimits is called on every meter sample. When the session crosses
// its limit threshold the engine asks the station to stop; crossing the
// warning threshold only logs.
func (s *Service) CheckLimits(ctx context.Context, stationID string, transactionID int, energyDeliveredKwh float64) error {
	session, err := s.sessions.FindByOcppTransaction(ctx, stationID, transactionID)
	if err != nil {
		return err
	}
	if session == nil || session.Status != domain.SessionStatusStarted {
		return nil
	}

	if energyDeliveredKwh > 0 && energyDeliveredKwh != session.ActualEnergyKwh {
		session.ActualEnergyKwh = energyDeliveredKwh
		if err := s.sessions.Update(ctx, session); err != nil {
			return err
		}
	}

	snapshot, err := s.snapshotFor(ctx, session)
	if err != nil {
		return err
	}
	cost := snapshot.CostFor(energyDeliveredKwh, time.Now().UTC().Sub(session.StartTime))

	var ratio float64
	var threshold, warn float64
	var reason string

	switch session.LimitType {
	case domain.LimitTypeEnergy:
		if session.LimitValue <= 0 {
			return nil
		}
		ratio = energyDeliveredKwh / session.LimitValue
		threshold = energyLimitThreshold
		reason = "EnergyLimitReached"
	case domain.LimitTypeAmount:
		limit := domain.AmountFromSom(session.LimitValue)
		if limit <= 0 {
			return nil
		}
		ratio = float64(cost) / float64(limit)
		threshold = amountLimitThreshold
		warn = warnThreshold
		reason = "AmountLimitReached"
	default:
		if session.ReservedAmount <= 0 {
			return nil
		}
		ratio = float64(cost) / float64(session.ReservedAmount)
		threshold = reserveStopThreshold
		warn = warnThreshold
		reason = "AmountLimitReached"
	}

	if ratio < threshold {
		if warn > 0 && ratio >= warn {
			s.log.Warn("Session approaching its limit",
				zap.String("session_id", session.ID),
				zap.Float64("ratio", ratio))
		}
		return nil
	}

	// Stopping marks intent once; further samples are ignored until the
	// station confirms with StopTransaction.
	session.Status = domain.SessionStatusStopping
	if err := s.sessions.Update(ctx, session); err != nil {
		return err
	}

	s.log.Info("Limit reached, stopping session",
		zap.String("session_id", session.ID),
		zap.String("reason", reason),
		zap.Float64("energy_kwh", energyDeliveredKwh),
		zap.Float64("cost", cost.Som()))

	s.publishCommand(ctx, stationID, &domain.StationCommand{
		Action:        domain.CmdRemoteStopTransaction,
		TransactionID: transactionID,
		SessionID:     session.ID,
		Reason:        reason,
	})
	return nil
}

// ReconcileStation runs on BootNotification: a reboot loses every
// transaction the station was running. Sessions that never got one are
// errored out and refunded in full; bound sessions are closed through
// the normal settlement path since the station has forgotten them.
func (s *Service) ReconcileStation(ctx context.Context, stationID string) error {
	open, err := s.sessions.FindOpenByStation(ctx, stationID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range open {
		session := &open[i]
		if session.OcppTransactionID == nil {
			s.refundOrphan(ctx, session, now)
			continue
		}
		s.settleLost(ctx, session, now)
	}

	if err := s.connectors.ReleaseAllOccupied(ctx, stationID); err != nil {
		return err
	}
	return nil
}

func (s *Service) refundOrphan(ctx context.Context, session *domain.ChargingSession, now time.Time) {
	reserved := session.ReservedAmount
	session.Status = domain.SessionStatusError
	session.StopTime = &now
	session.FinalAmount = 0
	if err := s.wallet.Refund(ctx, session.ClientID, reserved, session, "station reboot"); err != nil {
		s.log.Error("Failed to refund orphaned session",
			zap.String("session_id", session.ID),
			zap.Error(err))
		return
	}
	telemetry.ActiveChargingSessions.Dec()
	if err := s.bus.Delete(ctx, ports.PendingSessionKey(session.StationID, session.ConnectorNumber)); err != nil {
		s.log.Debug("Failed to drop pending session key", zap.Error(err))
	}
	s.emit(domain.EventChargingError, map[string]interface{}{
		"session_id": session.ID,
		"client_id":  session.ClientID,
		"station_id": session.StationID,
		"error":      "station_reboot",
		"refunded":   reserved.Som(),
	})
	s.log.Warn("Orphaned session refunded after station reboot",
		zap.String("session_id", session.ID),
		zap.String("station_id", session.StationID),
		zap.Float64("refunded", reserved.Som()))
}

func (s *Service) settleLost(ctx context.Context, session *domain.ChargingSession, now time.Time) {
	energy, err := s.energyDelivered(ctx, session)
	if err != nil {
		s.log.Error("Failed to resolve energy for lost session",
			zap.String("session_id", session.ID), zap.Error(err))
		return
	}
	if _, err := s.settle(ctx, session, energy, now, "station reboot"); err != nil {
		s.log.Error("Failed to settle lost session",
			zap.String("session_id", session.ID), zap.Error(err))
		return
	}
	tx, err := s.ocpp.FindTransaction(ctx, session.StationID, *session.OcppTransactionID)
	if err != nil || tx == nil || tx.Status == domain.OcppTransactionStopped {
		return
	}
	tx.Status = domain.OcppTransactionStopped
	tx.StopTimestamp = &now
	tx.StopReason = "PowerLoss"
	if err := s.ocpp.UpdateTransaction(ctx, tx); err != nil {
		s.log.Warn("Failed to close lost transaction",
			zap.String("session_id", session.ID), zap.Error(err))
	}
	s.log.Warn("Session settled after station reboot",
		zap.String("session_id", session.ID),
		zap.String("station_id", session.StationID),
		zap.Float64("energy_kwh", energy))
}

// SweepHangingSessions force-settles sessions charging for longer than
// the hard ceiling. Runs hourly.
func (s *Service) SweepHangingSessions(ctx context.Context) error {
	hanging, err := s.sessions.FindStartedOlderThan(ctx, hangingSessionAge)
	if err != nil {
		return err
	}
	for i := range hanging {
		session := &hanging[i]
		s.log.Warn("Force-settling hanging session",
			zap.String("session_id", session.ID),
			zap.String("station_id", session.StationID),
			zap.Time("started", session.StartTime))

		energy, err := s.energyDelivered(ctx, session)
		if err != nil {
			s.log.Error("Failed to resolve energy for hanging session",
				zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		if _, err := s.settle(ctx, session, energy, time.Now().UTC(), "hanging session sweep"); err != nil {
			s.log.Error("Failed to settle hanging session",
				zap.String("session_id", session.ID), zap.Error(err))
			continue
		}
		if session.OcppTransactionID != nil {
			if online, _ := s.bus.IsOnline(ctx, session.StationID); online {
				s.publishCommand(ctx, session.StationID, &domain.StationCommand{
					Action:        domain.CmdRemoteStopTransaction,
					TransactionID: *session.OcppTransactionID,
					SessionID:     session.ID,
					Reason:        "Other",
				})
			}
		}
	}
	return nil
}

func (s *Service) releaseConnectorNumber(ctx context.Context, stationID string, connectorNumber int) {
	if err := s.connectors.UpdateStatus(ctx, stationID, connectorNumber, domain.ConnectorStatusAvailable, ""); err != nil {
		s.log.Warn("Failed to release connector",
			zap.String("station_id", stationID),
			zap.Int("connector", connectorNumber),
			zap.Error(err))
	}
}
