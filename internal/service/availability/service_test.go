package availability

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/mocks"
	"github.com/evpower/evpower-backend/internal/ports"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

type testDeps struct {
	stations   *mocks.MockStationRepository
	connectors *mocks.MockConnectorRepository
	ocpp       *mocks.MockOcppRepository
	sessions   *mocks.MockSessionRepository
	bus        *mocks.MockBus
	cache      *mocks.MockCache
	queue      *mocks.MockMessageQueue
}

func newTestService() (*Service, *testDeps) {
	d := &testDeps{
		stations:   &mocks.MockStationRepository{},
		connectors: &mocks.MockConnectorRepository{},
		ocpp:       &mocks.MockOcppRepository{},
		sessions:   &mocks.MockSessionRepository{},
		bus:        mocks.NewMockBus(),
		cache:      mocks.NewMockCache(),
		queue:      mocks.NewMockMessageQueue(),
	}
	svc := NewService(d.stations, d.connectors, d.ocpp, d.sessions, d.bus, d.cache, d.queue, newTestLogger())
	return svc, d
}

func TestMarkOnline_SetsPresenceAndBootRecord(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, d := newTestService()

	var upserted *domain.OcppStationStatus
	d.ocpp.UpsertStationStatusFunc = func(ctx context.Context, status *domain.OcppStationStatus) error {
		upserted = status
		return nil
	}
	var availability *bool
	d.stations.UpdateAvailabilityFunc = func(ctx context.Context, id string, available bool) error {
		availability = &available
		return nil
	}

	// Act
	err := svc.MarkOnline(ctx, "EVP-001")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !d.bus.Online["EVP-001"] {
		t.Error("expected presence key set")
	}
	if upserted == nil || !upserted.IsOnline || upserted.LastBoot == nil {
		t.Error("expected boot recorded")
	}
	if availability == nil || !*availability {
		t.Error("expected station marked available")
	}
}

func TestRefreshHeartbeat_RestoresAvailability(t *testing.T) {
	// Arrange: the sweep wrote the station off, then a heartbeat lands.
	ctx := context.Background()
	svc, d := newTestService()

	d.ocpp.FindStationStatusFunc = func(ctx context.Context, stationID string) (*domain.OcppStationStatus, error) {
		return &domain.OcppStationStatus{StationID: stationID, IsOnline: false}, nil
	}
	var availability *bool
	d.stations.UpdateAvailabilityFunc = func(ctx context.Context, id string, available bool) error {
		availability = &available
		return nil
	}
	var upserted *domain.OcppStationStatus
	d.ocpp.UpsertStationStatusFunc = func(ctx context.Context, status *domain.OcppStationStatus) error {
		upserted = status
		return nil
	}

	// Act
	err := svc.RefreshHeartbeat(ctx, "EVP-001")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if availability == nil || !*availability {
		t.Error("expected station marked available again")
	}
	if upserted == nil || !upserted.IsOnline || upserted.LastHeartbeat == nil {
		t.Error("expected heartbeat recorded with station online")
	}
}

func TestRefreshHeartbeat_OnlineStationSkipsAvailabilityWrite(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, d := newTestService()

	d.ocpp.FindStationStatusFunc = func(ctx context.Context, stationID string) (*domain.OcppStationStatus, error) {
		return &domain.OcppStationStatus{StationID: stationID, IsOnline: true}, nil
	}
	touched := false
	d.stations.UpdateAvailabilityFunc = func(ctx context.Context, id string, available bool) error {
		touched = true
		return nil
	}

	// Act
	err := svc.RefreshHeartbeat(ctx, "EVP-001")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if touched {
		t.Error("expected no availability write on a routine heartbeat")
	}
}

func TestUpdateConnectorStatus_MapsAndFansOut(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, d := newTestService()

	var gotStatus domain.ConnectorStatus
	d.connectors.UpdateStatusFunc = func(ctx context.Context, stationID string, n int, status domain.ConnectorStatus, errorCode string) error {
		gotStatus = status
		return nil
	}
	d.stations.FindByIDFunc = func(ctx context.Context, id string) (*domain.Station, error) {
		return &domain.Station{ID: id, LocationID: "loc-1", Status: domain.StationStatusActive}, nil
	}
	d.cache.Set(ctx, "location:status:loc-1", "available", time.Minute)

	// Act
	err := svc.UpdateConnectorStatus(ctx, "EVP-001", 1, "Charging", "NoError", "")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotStatus != domain.ConnectorStatusOccupied {
		t.Errorf("expected occupied, got %s", gotStatus)
	}
	if cached, _ := d.cache.Get(ctx, "location:status:loc-1"); cached != "" {
		t.Error("expected location status cache invalidated")
	}
	for _, topic := range []string{
		ports.ConnectorUpdatesTopic("EVP-001", 1),
		ports.StationUpdatesTopic("EVP-001"),
		ports.LocationUpdatesTopic("loc-1"),
		ports.TopicLocationUpdatesAll,
	} {
		if len(d.bus.Published[topic]) != 1 {
			t.Errorf("expected update on %s", topic)
		}
	}
}

func TestUpdateConnectorStatus_FaultTriggersDiagnostics(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, d := newTestService()
	d.stations.FindByIDFunc = func(ctx context.Context, id string) (*domain.Station, error) {
		return &domain.Station{ID: id, LocationID: "loc-1"}, nil
	}

	// Act
	err := svc.UpdateConnectorStatus(ctx, "EVP-001", 1, "Faulted", "GroundFailure", "relay stuck")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	cmds := d.bus.Published[ports.CommandTopic("EVP-001")]
	if len(cmds) != 2 {
		t.Fatalf("expected GetConfiguration and GetDiagnostics, got %d commands", len(cmds))
	}
	if len(d.queue.PublishedMessages[domain.EventChargingError]) != 1 {
		t.Error("expected charging error event")
	}
}

func TestUpdateConnectorStatus_FaultTargetsSessionOwner(t *testing.T) {
	// Arrange: a session is charging on the connector that faults.
	ctx := context.Background()
	svc, d := newTestService()
	d.stations.FindByIDFunc = func(ctx context.Context, id string) (*domain.Station, error) {
		return &domain.Station{ID: id, LocationID: "loc-1"}, nil
	}
	d.sessions.FindActiveByConnectorFunc = func(ctx context.Context, stationID string, connectorNumber int) (*domain.ChargingSession, error) {
		return &domain.ChargingSession{ID: "session-1", ClientID: "client-1"}, nil
	}

	// Act
	err := svc.UpdateConnectorStatus(ctx, "EVP-001", 1, "Faulted", "OverCurrentFailure", "")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	events := d.queue.PublishedMessages[domain.EventChargingError]
	if len(events) != 1 {
		t.Fatalf("expected 1 charging error event, got %d", len(events))
	}
	var event map[string]interface{}
	if err := json.Unmarshal(events[0], &event); err != nil {
		t.Fatal(err)
	}
	if event["session_id"] != "session-1" || event["client_id"] != "client-1" {
		t.Errorf("expected event aimed at the session owner, got %v", event)
	}
	if len(d.bus.Published[ports.ClientSessionsTopic("client-1")]) != 1 {
		t.Error("expected owner notified on their session topic")
	}
}

func TestUpdateConnectorStatus_ConnectorZeroIgnored(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, d := newTestService()
	called := false
	d.connectors.UpdateStatusFunc = func(ctx context.Context, stationID string, n int, status domain.ConnectorStatus, errorCode string) error {
		called = true
		return nil
	}

	// Act
	err := svc.UpdateConnectorStatus(ctx, "EVP-001", 0, "Available", "NoError", "")

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if called {
		t.Error("expected charge-point-level status to be skipped")
	}
}

func locationFixture(connStatuses ...domain.ConnectorStatus) []domain.Station {
	var conns []domain.Connector
	for i, st := range connStatuses {
		conns = append(conns, domain.Connector{ConnectorNumber: i + 1, Status: st})
	}
	return []domain.Station{{
		ID:         "EVP-001",
		LocationID: "loc-1",
		Status:     domain.StationStatusActive,
		Connectors: conns,
	}}
}

func TestLocationStatus_Rollup(t *testing.T) {
	cases := []struct {
		name     string
		stations []domain.Station
		online   bool
		want     domain.LocationStatus
	}{
		{"all available", locationFixture(domain.ConnectorStatusAvailable, domain.ConnectorStatusAvailable), true, domain.LocationStatusAvailable},
		{"partial", locationFixture(domain.ConnectorStatusAvailable, domain.ConnectorStatusOccupied), true, domain.LocationStatusPartial},
		{"occupied", locationFixture(domain.ConnectorStatusOccupied, domain.ConnectorStatusOccupied), true, domain.LocationStatusOccupied},
		{"offline", locationFixture(domain.ConnectorStatusAvailable), false, domain.LocationStatusOffline},
		{"maintenance", []domain.Station{{ID: "EVP-001", Status: domain.StationStatusMaintenance}}, false, domain.LocationStatusMaintenance},
		{"no stations", nil, false, domain.LocationStatusOffline},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			ctx := context.Background()
			svc, d := newTestService()
			d.stations.FindByLocationIDFunc = func(ctx context.Context, locationID string) ([]domain.Station, error) {
				return tc.stations, nil
			}
			if tc.online {
				d.bus.Online["EVP-001"] = true
			}

			// Act
			status, err := svc.LocationStatus(ctx, "loc-1")

			// Assert
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if status != tc.want {
				t.Errorf("expected %s, got %s", tc.want, status)
			}
		})
	}
}

func TestStationHealth_Statuses(t *testing.T) {
	recent := time.Now().Add(-1 * time.Minute)
	warning := time.Now().Add(-4 * time.Minute)
	stale := time.Now().Add(-10 * time.Minute)

	cases := []struct {
		name      string
		heartbeat *time.Time
		want      string
	}{
		{"never connected", nil, domain.HealthNeverConnected},
		{"online", &recent, domain.HealthOnline},
		{"warning", &warning, domain.HealthWarning},
		{"offline", &stale, domain.HealthOffline},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			ctx := context.Background()
			svc, d := newTestService()
			d.stations.FindByIDFunc = func(ctx context.Context, id string) (*domain.Station, error) {
				return &domain.Station{
					ID:     id,
					Status: domain.StationStatusActive,
					Connectors: []domain.Connector{
						{ConnectorNumber: 1, Status: domain.ConnectorStatusAvailable},
						{ConnectorNumber: 2, Status: domain.ConnectorStatusOccupied},
					},
				}, nil
			}
			d.ocpp.FindStationStatusFunc = func(ctx context.Context, stationID string) (*domain.OcppStationStatus, error) {
				if tc.heartbeat == nil {
					return nil, nil
				}
				return &domain.OcppStationStatus{StationID: stationID, LastHeartbeat: tc.heartbeat}, nil
			}

			// Act
			health, err := svc.StationHealth(ctx, "EVP-001")

			// Assert
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if health.HealthStatus != tc.want {
				t.Errorf("expected %s, got %s", tc.want, health.HealthStatus)
			}
			if health.TotalConnectors != 2 || health.AvailableConnectors != 1 {
				t.Errorf("unexpected connector counts: %d/%d", health.AvailableConnectors, health.TotalConnectors)
			}
		})
	}
}

func TestSweepStatuses_MarksStaleStationsOffline(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, d := newTestService()

	hb := time.Now().Add(-10 * time.Minute)
	d.ocpp.FindStaleStationStatusesFunc = func(ctx context.Context, olderThan time.Duration) ([]domain.OcppStationStatus, error) {
		return []domain.OcppStationStatus{{StationID: "EVP-001", IsOnline: true, LastHeartbeat: &hb}}, nil
	}
	var markedUnavailable bool
	d.stations.UpdateAvailabilityFunc = func(ctx context.Context, id string, available bool) error {
		markedUnavailable = !available
		return nil
	}
	d.stations.FindByIDFunc = func(ctx context.Context, id string) (*domain.Station, error) {
		return &domain.Station{ID: id, LocationID: "loc-1"}, nil
	}

	// Act
	err := svc.SweepStatuses(ctx)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !markedUnavailable {
		t.Error("expected station marked unavailable")
	}
	if len(d.queue.PublishedMessages[domain.EventStationOffline]) != 1 {
		t.Error("expected offline event")
	}
}

func TestSweepStatuses_SkipsStationsWithPresence(t *testing.T) {
	// Arrange
	ctx := context.Background()
	svc, d := newTestService()

	d.ocpp.FindStaleStationStatusesFunc = func(ctx context.Context, olderThan time.Duration) ([]domain.OcppStationStatus, error) {
		return []domain.OcppStationStatus{{StationID: "EVP-001", IsOnline: true}}, nil
	}
	d.bus.Online["EVP-001"] = true
	touched := false
	d.stations.UpdateAvailabilityFunc = func(ctx context.Context, id string, available bool) error {
		touched = true
		return nil
	}

	// Act
	err := svc.SweepStatuses(ctx)

	// Assert
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if touched {
		t.Error("expected station with live presence untouched")
	}
}
