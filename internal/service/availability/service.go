package availability

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/adapter/queue"
	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/ports"
)

const (
	// heartbeatTimeout marks a station offline; warningAfter only flags
	// it in the health view.
	heartbeatTimeout = 5 * time.Minute
	warningAfter     = 3 * time.Minute

	locationStatusTTL = 60 * time.Second
)

// Service tracks station presence and connector state. Presence lives
// in the bus TTL keys written by the OCPP actors; the sweeper reconciles
// the database view against them once a minute.
type Service struct {
	stations   ports.StationRepository
	connectors ports.ConnectorRepository
	ocpp       ports.OcppRepository
	sessions   ports.SessionRepository
	bus        ports.Bus
	cache      ports.Cache
	queue      queue.MessageQueue
	log        *zap.Logger
}

func NewService(
	stations ports.StationRepository,
	connectors ports.ConnectorRepository,
	ocppRepo ports.OcppRepository,
	sessions ports.SessionRepository,
	bus ports.Bus,
	cache ports.Cache,
	mq queue.MessageQueue,
	log *zap.Logger,
) *Service {
	return &Service{
		stations:   stations,
		connectors: connectors,
		ocpp:       ocppRepo,
		sessions:   sessions,
		bus:        bus,
		cache:      cache,
		queue:      mq,
		log:        log,
	}
}

// MarkOnline is called on BootNotification.
func (s *Service) MarkOnline(ctx context.Context, stationID string) error {
	if err := s.bus.SetOnline(ctx, stationID, ports.OnlineTTL); err != nil {
		return err
	}
	if err := s.stations.UpdateAvailability(ctx, stationID, true); err != nil {
		return err
	}
	now := time.Now().UTC()
	status, err := s.ocpp.FindStationStatus(ctx, stationID)
	if err != nil {
		return err
	}
	if status == nil {
		status = &domain.OcppStationStatus{StationID: stationID}
	}
	status.IsOnline = true
	status.LastBoot = &now
	status.LastHeartbeat = &now
	return s.ocpp.UpsertStationStatus(ctx, status)
}

// RefreshHeartbeat extends the presence TTL and records the heartbeat.
// A station the sweep had written off comes back available here.
func (s *Service) RefreshHeartbeat(ctx context.Context, stationID string) error {
	if err := s.bus.RefreshOnline(ctx, stationID, ports.OnlineTTL); err != nil {
		return err
	}
	now := time.Now().UTC()
	status, err := s.ocpp.FindStationStatus(ctx, stationID)
	if err != nil {
		return err
	}
	if status == nil {
		status = &domain.OcppStationStatus{StationID: stationID}
	}
	if !status.IsOnline {
		if err := s.stations.UpdateAvailability(ctx, stationID, true); err != nil {
			return err
		}
	}
	status.IsOnline = true
	status.LastHeartbeat = &now
	return s.ocpp.UpsertStationStatus(ctx, status)
}

// MarkOffline is called when the socket closes.
func (s *Service) MarkOffline(ctx context.Context, stationID string) error {
	if err := s.bus.SetOffline(ctx, stationID); err != nil {
		s.log.Warn("Failed to drop presence key", zap.String("station_id", stationID), zap.Error(err))
	}
	status, err := s.ocpp.FindStationStatus(ctx, stationID)
	if err != nil {
		return err
	}
	if status != nil {
		status.IsOnline = false
		if err := s.ocpp.UpsertStationStatus(ctx, status); err != nil {
			return err
		}
	}
	return s.stations.UpdateAvailability(ctx, stationID, false)
}

func (s *Service) IsOnline(ctx context.Context, stationID string) bool {
	online, err := s.bus.IsOnline(ctx, stationID)
	if err != nil {
		s.log.Warn("Failed to check presence", zap.String("station_id", stationID), zap.Error(err))
		return false
	}
	return online
}

// UpdateConnectorStatus applies a StatusNotification: persists the
// mapped status, invalidates the cached location rollup and fans the
// change out on the live-update topics. A reported error triggers a
// diagnostics pull from the station.
func (s *Service) UpdateConnectorStatus(ctx context.Context, stationID string, connectorNumber int, ocppStatus, errorCode, info string) error {
	// connectorId 0 refers to the charge point itself.
	if connectorNumber == 0 {
		return nil
	}

	mapped := domain.MapOcppConnectorStatus(ocppStatus)
	storedError := errorCode
	if storedError == "NoError" {
		storedError = ""
	}
	if err := s.connectors.UpdateStatus(ctx, stationID, connectorNumber, mapped, storedError); err != nil {
		return err
	}

	station, err := s.stations.FindByID(ctx, stationID)
	if err != nil {
		return err
	}
	if station != nil && station.LocationID != "" {
		if err := s.cache.Delete(ctx, locationStatusKey(station.LocationID)); err != nil {
			s.log.Debug("Failed to invalidate location status", zap.Error(err))
		}
		s.fanOut(ctx, station, connectorNumber, ocppStatus, errorCode)
	}

	if errorCode != "" && errorCode != "NoError" {
		s.reportFault(ctx, stationID, connectorNumber, ocppStatus, errorCode, info)
	}
	return nil
}

func (s *Service) fanOut(ctx context.Context, station *domain.Station, connectorNumber int, ocppStatus, errorCode string) {
	payload, err := json.Marshal(map[string]interface{}{
		"station_id":   station.ID,
		"location_id":  station.LocationID,
		"connector_id": connectorNumber,
		"status":       ocppStatus,
		"error_code":   errorCode,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	topics := []string{
		ports.ConnectorUpdatesTopic(station.ID, connectorNumber),
		ports.StationUpdatesTopic(station.ID),
		ports.LocationUpdatesTopic(station.LocationID),
		ports.TopicLocationUpdatesAll,
	}
	for _, topic := range topics {
		if err := s.bus.Publish(ctx, topic, payload); err != nil {
			s.log.Debug("Failed to publish status update", zap.String("topic", topic), zap.Error(err))
		}
	}
}

// reportFault emits the charging error event — aimed at the client
// whose session runs on the faulted connector when there is one — and
// asks the station for its configuration and diagnostics while the
// fault is fresh.
func (s *Service) reportFault(ctx context.Context, stationID string, connectorNumber int, ocppStatus, errorCode, info string) {
	s.log.Warn("Connector fault reported",
		zap.String("station_id", stationID),
		zap.Int("connector", connectorNumber),
		zap.String("status", ocppStatus),
		zap.String("error_code", errorCode),
		zap.String("info", info))

	event := map[string]interface{}{
		"station_id":   stationID,
		"connector_id": connectorNumber,
		"status":       ocppStatus,
		"error_code":   errorCode,
		"info":         info,
	}

	session, err := s.sessions.FindActiveByConnector(ctx, stationID, connectorNumber)
	if err != nil {
		s.log.Warn("Failed to resolve session on faulted connector",
			zap.String("station_id", stationID), zap.Error(err))
	}
	if session != nil {
		event["session_id"] = session.ID
		event["client_id"] = session.ClientID
	}

	payload, err := json.Marshal(event)
	if err == nil {
		if s.queue != nil {
			if err := s.queue.Publish(domain.EventChargingError, payload); err != nil {
				s.log.Warn("Failed to publish charging error", zap.Error(err))
			}
		}
		if session != nil {
			if err := s.bus.Publish(ctx, ports.ClientSessionsTopic(session.ClientID), payload); err != nil {
				s.log.Debug("Failed to notify session owner", zap.Error(err))
			}
		}
	}

	for _, action := range []string{domain.CmdGetConfiguration, domain.CmdGetDiagnostics} {
		cmd := &domain.StationCommand{Action: action, ConnectorNumber: connectorNumber}
		if err := s.bus.Publish(ctx, ports.CommandTopic(stationID), cmd.Marshal()); err != nil {
			s.log.Debug("Failed to request diagnostics", zap.Error(err))
		}
	}
}

func locationStatusKey(locationID string) string {
	return "location:status:" + locationID
}

// LocationStatus rolls the location's stations up into one status:
// offline when none respond, then maintenance, occupied, available and
// partial by connector counts.
func (s *Service) LocationStatus(ctx context.Context, locationID string) (domain.LocationStatus, error) {
	if cached, err := s.cache.Get(ctx, locationStatusKey(locationID)); err == nil && cached != "" {
		return domain.LocationStatus(cached), nil
	}

	stations, err := s.stations.FindByLocationID(ctx, locationID)
	if err != nil {
		return "", err
	}
	status := rollUp(ctx, s, stations)

	if err := s.cache.Set(ctx, locationStatusKey(locationID), string(status), locationStatusTTL); err != nil {
		s.log.Debug("Failed to cache location status", zap.Error(err))
	}
	return status, nil
}

func rollUp(ctx context.Context, s *Service, stations []domain.Station) domain.LocationStatus {
	if len(stations) == 0 {
		return domain.LocationStatusOffline
	}

	anyOnline := false
	anyInService := false
	available, total := 0, 0
	for i := range stations {
		st := &stations[i]
		if st.Status == domain.StationStatusActive {
			anyInService = true
		} else {
			continue
		}
		if s.IsOnline(ctx, st.ID) {
			anyOnline = true
		}
		for _, c := range st.Connectors {
			total++
			if c.Status == domain.ConnectorStatusAvailable {
				available++
			}
		}
	}

	switch {
	case !anyOnline:
		if !anyInService {
			return domain.LocationStatusMaintenance
		}
		return domain.LocationStatusOffline
	case total == 0 || available == 0:
		return domain.LocationStatusOccupied
	case available == total:
		return domain.LocationStatusAvailable
	default:
		return domain.LocationStatusPartial
	}
}

// StationHealth derives the heartbeat-based view used by the operator
// dashboard.
func (s *Service) StationHealth(ctx context.Context, stationID string) (*domain.StationHealth, error) {
	station, err := s.stations.FindByID(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if station == nil {
		return nil, domain.ErrStationNotFound
	}

	status, err := s.ocpp.FindStationStatus(ctx, stationID)
	if err != nil {
		return nil, err
	}

	health := &domain.StationHealth{
		StationID:    station.ID,
		SerialNumber: station.SerialNumber,
		Status:       string(station.Status),
	}
	for _, c := range station.Connectors {
		health.TotalConnectors++
		if c.Status == domain.ConnectorStatusAvailable {
			health.AvailableConnectors++
		}
	}

	switch {
	case status == nil || status.LastHeartbeat == nil:
		health.HealthStatus = domain.HealthNeverConnected
	default:
		health.LastHeartbeat = status.LastHeartbeat
		minutes := time.Since(*status.LastHeartbeat).Minutes()
		health.MinutesSinceHeartbeat = &minutes
		switch {
		case minutes > heartbeatTimeout.Minutes():
			health.HealthStatus = domain.HealthOffline
		case minutes > warningAfter.Minutes():
			health.HealthStatus = domain.HealthWarning
		default:
			health.HealthStatus = domain.HealthOnline
		}
	}
	return health, nil
}

// SweepStatuses runs every minute: stations whose heartbeat is older
// than the timeout are marked unavailable and their disappearance is
// published.
func (s *Service) SweepStatuses(ctx context.Context) error {
	stale, err := s.ocpp.FindStaleStationStatuses(ctx, heartbeatTimeout)
	if err != nil {
		return err
	}
	for i := range stale {
		status := &stale[i]
		online, err := s.bus.IsOnline(ctx, status.StationID)
		if err == nil && online {
			continue
		}
		if !status.IsOnline {
			continue
		}

		s.log.Warn("Station heartbeat timed out", zap.String("station_id", status.StationID))

		status.IsOnline = false
		if err := s.ocpp.UpsertStationStatus(ctx, status); err != nil {
			s.log.Error("Failed to mark station offline", zap.String("station_id", status.StationID), zap.Error(err))
			continue
		}
		if err := s.stations.UpdateAvailability(ctx, status.StationID, false); err != nil {
			s.log.Error("Failed to update station availability", zap.String("station_id", status.StationID), zap.Error(err))
			continue
		}

		if station, err := s.stations.FindByID(ctx, status.StationID); err == nil && station != nil && station.LocationID != "" {
			if err := s.cache.Delete(ctx, locationStatusKey(station.LocationID)); err != nil {
				s.log.Debug("Failed to invalidate location status", zap.Error(err))
			}
		}

		if s.queue != nil {
			payload, err := json.Marshal(map[string]interface{}{
				"station_id": status.StationID,
				"timestamp":  time.Now().UTC().Format(time.RFC3339),
			})
			if err == nil {
				if err := s.queue.Publish(domain.EventStationOffline, payload); err != nil {
					s.log.Warn("Failed to publish station offline event", zap.Error(err))
				}
			}
		}
	}
	return nil
}

var _ ports.AvailabilityService = (*Service)(nil)
