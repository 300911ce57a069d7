package v16

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/mocks"
)

func newTestLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

type handlerDeps struct {
	charging     *mocks.MockChargingService
	availability *mocks.MockAvailabilityService
	ocpp         *mocks.MockOcppRepository
	clients      *mocks.MockClientRepository
}

func newTestHandlers() (*Handlers, *handlerDeps) {
	d := &handlerDeps{
		charging:     &mocks.MockChargingService{},
		availability: &mocks.MockAvailabilityService{},
		ocpp:         &mocks.MockOcppRepository{},
		clients:      &mocks.MockClientRepository{},
	}
	h := NewHandlers(d.charging, d.availability, d.ocpp, d.clients, newTestLogger())
	return h, d
}

func TestBootNotification_AcceptsAndMarksOnline(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h, d := newTestHandlers()

	markedOnline := ""
	d.availability.MarkOnlineFunc = func(ctx context.Context, stationID string) error {
		markedOnline = stationID
		return nil
	}
	var upserted *domain.OcppStationStatus
	d.ocpp.UpsertStationStatusFunc = func(ctx context.Context, status *domain.OcppStationStatus) error {
		upserted = status
		return nil
	}
	reconciled := make(chan string, 1)
	d.charging.ReconcileStationFunc = func(ctx context.Context, stationID string) error {
		reconciled <- stationID
		return nil
	}

	payload, _ := json.Marshal(map[string]string{
		"chargePointVendor": "Vendor",
		"chargePointModel":  "Model X",
		"firmwareVersion":   "1.2.3",
	})

	// Act
	result, ocppErr := h.HandleCall(ctx, "EVP-001", "BootNotification", payload)

	// Assert
	if ocppErr != nil {
		t.Fatalf("expected no error, got %v", ocppErr)
	}
	resp := result.(map[string]interface{})
	if resp["status"] != "Accepted" {
		t.Errorf("expected Accepted, got %v", resp["status"])
	}
	if resp["interval"] != heartbeatIntervalSeconds {
		t.Errorf("expected interval %d, got %v", heartbeatIntervalSeconds, resp["interval"])
	}
	if _, err := time.Parse(time.RFC3339, resp["currentTime"].(string)); err != nil {
		t.Errorf("currentTime is not RFC3339: %v", err)
	}
	if markedOnline != "EVP-001" {
		t.Errorf("expected station marked online, got %q", markedOnline)
	}
	if upserted == nil || upserted.Vendor != "Vendor" || upserted.FirmwareVersion != "1.2.3" {
		t.Error("expected boot details recorded")
	}
	select {
	case station := <-reconciled:
		if station != "EVP-001" {
			t.Errorf("expected reconcile for EVP-001, got %s", station)
		}
	case <-time.After(time.Second):
		t.Error("expected station reconcile to run")
	}
}

func TestHeartbeat_RefreshesPresence(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h, d := newTestHandlers()

	refreshed := ""
	d.availability.RefreshHeartbeatFunc = func(ctx context.Context, stationID string) error {
		refreshed = stationID
		return nil
	}

	// Act
	result, ocppErr := h.HandleCall(ctx, "EVP-001", "Heartbeat", json.RawMessage(`{}`))

	// Assert
	if ocppErr != nil {
		t.Fatalf("expected no error, got %v", ocppErr)
	}
	if refreshed != "EVP-001" {
		t.Errorf("expected heartbeat refresh, got %q", refreshed)
	}
	resp := result.(map[string]interface{})
	if _, err := time.Parse(time.RFC3339, resp["currentTime"].(string)); err != nil {
		t.Errorf("currentTime is not RFC3339: %v", err)
	}
}

func TestStatusNotification_ForwardsToAvailability(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h, d := newTestHandlers()

	var gotConnector int
	var gotStatus, gotError string
	d.availability.UpdateConnectorStatusFunc = func(ctx context.Context, stationID string, connectorNumber int, ocppStatus, errorCode, info string) error {
		gotConnector = connectorNumber
		gotStatus = ocppStatus
		gotError = errorCode
		return nil
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"connectorId": 2,
		"status":      "Charging",
		"errorCode":   "NoError",
	})

	// Act
	_, ocppErr := h.HandleCall(ctx, "EVP-001", "StatusNotification", payload)

	// Assert
	if ocppErr != nil {
		t.Fatalf("expected no error, got %v", ocppErr)
	}
	if gotConnector != 2 || gotStatus != "Charging" || gotError != "NoError" {
		t.Errorf("unexpected forward %d/%s/%s", gotConnector, gotStatus, gotError)
	}
}

func TestAuthorize_Statuses(t *testing.T) {
	blocked := domain.IdTagStatusBlocked
	past := time.Now().Add(-time.Hour)

	cases := []struct {
		name   string
		tag    *domain.AuthorizationTag
		client *domain.Client
		want   string
	}{
		{"active tag", &domain.AuthorizationTag{IdTag: "TAG1", Status: domain.IdTagStatusActive}, nil, "Accepted"},
		{"blocked tag", &domain.AuthorizationTag{IdTag: "TAG1", Status: blocked}, nil, "Blocked"},
		{"lapsed tag", &domain.AuthorizationTag{IdTag: "TAG1", Status: domain.IdTagStatusActive, ExpiresAt: &past}, nil, "Expired"},
		{"phone fallback", nil, &domain.Client{ID: "c1", Status: domain.ClientStatusActive}, "Accepted"},
		{"blocked client", nil, &domain.Client{ID: "c1", Status: domain.ClientStatusBlocked}, "Blocked"},
		{"unknown", nil, nil, "Invalid"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			ctx := context.Background()
			h, d := newTestHandlers()
			d.ocpp.FindAuthorizationTagFunc = func(ctx context.Context, idTag string) (*domain.AuthorizationTag, error) {
				return tc.tag, nil
			}
			d.clients.FindByPhoneFunc = func(ctx context.Context, phone string) (*domain.Client, error) {
				return tc.client, nil
			}

			// Act
			result, ocppErr := h.HandleCall(ctx, "EVP-001", "Authorize", json.RawMessage(`{"idTag":"TAG1"}`))

			// Assert
			if ocppErr != nil {
				t.Fatalf("expected no error, got %v", ocppErr)
			}
			info := result.(map[string]interface{})["idTagInfo"].(idTagInfo)
			if info.Status != tc.want {
				t.Errorf("expected %s, got %s", tc.want, info.Status)
			}
		})
	}
}

func TestStartTransaction_BindsAndReturnsTransactionID(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h, d := newTestHandlers()

	var boundTx, boundMeter int
	var boundTag string
	d.charging.BindStartTransactionFunc = func(ctx context.Context, stationID string, connectorNumber, transactionID int, idTag string, meterStart int, timestamp time.Time) error {
		boundTx = transactionID
		boundTag = idTag
		boundMeter = meterStart
		return nil
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"connectorId": 1,
		"idTag":       "996700123456",
		"meterStart":  1200,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})

	// Act
	result, ocppErr := h.HandleCall(ctx, "EVP-001", "StartTransaction", payload)

	// Assert
	if ocppErr != nil {
		t.Fatalf("expected no error, got %v", ocppErr)
	}
	resp := result.(map[string]interface{})
	if resp["transactionId"] != boundTx {
		t.Errorf("reply transactionId %v does not match bound %d", resp["transactionId"], boundTx)
	}
	if boundTx == 0 {
		t.Error("expected a non-zero transaction id")
	}
	if boundTag != "996700123456" || boundMeter != 1200 {
		t.Errorf("unexpected binding %s/%d", boundTag, boundMeter)
	}
	if resp["idTagInfo"].(idTagInfo).Status != "Accepted" {
		t.Error("expected Accepted idTagInfo")
	}
}

func TestStopTransaction_ForwardsSettlement(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h, d := newTestHandlers()

	var gotTx int
	var gotStop *int
	var gotReason string
	d.charging.SettleStopTransactionFunc = func(ctx context.Context, stationID string, transactionID int, meterStop *int, reason string, timestamp time.Time) error {
		gotTx = transactionID
		gotStop = meterStop
		gotReason = reason
		return nil
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"transactionId": 1755990000,
		"meterStop":     11200,
		"reason":        "Local",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})

	// Act
	_, ocppErr := h.HandleCall(ctx, "EVP-001", "StopTransaction", payload)

	// Assert
	if ocppErr != nil {
		t.Fatalf("expected no error, got %v", ocppErr)
	}
	if gotTx != 1755990000 || gotReason != "Local" {
		t.Errorf("unexpected settlement %d/%s", gotTx, gotReason)
	}
	if gotStop == nil || *gotStop != 11200 {
		t.Error("expected meterStop forwarded")
	}
}

func TestStopTransaction_AcceptsDespiteSettlementFailure(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h, d := newTestHandlers()

	d.charging.SettleStopTransactionFunc = func(ctx context.Context, stationID string, transactionID int, meterStop *int, reason string, timestamp time.Time) error {
		return errors.New("wallet unavailable")
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"transactionId": 1755990000,
		"meterStop":     11200,
		"reason":        "Local",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})

	// Act
	result, ocppErr := h.HandleCall(ctx, "EVP-001", "StopTransaction", payload)

	// Assert: the cable is already out, so the station still gets an
	// Accepted confirmation and settlement is retried off-path.
	if ocppErr != nil {
		t.Fatalf("expected no wire error, got %v", ocppErr)
	}
	info := result.(map[string]interface{})["idTagInfo"].(idTagInfo)
	if info.Status != "Accepted" {
		t.Errorf("expected Accepted, got %s", info.Status)
	}
}

func TestBootNotification_SeedsConfigurationDefaults(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h, d := newTestHandlers()

	seededStation := ""
	var seededDefaults map[string]string
	d.ocpp.SeedConfigurationFunc = func(ctx context.Context, stationID string, defaults map[string]string) error {
		seededStation = stationID
		seededDefaults = defaults
		return nil
	}

	payload, _ := json.Marshal(map[string]string{
		"chargePointVendor": "Vendor",
		"chargePointModel":  "Model X",
	})

	// Act
	_, ocppErr := h.HandleCall(ctx, "EVP-001", "BootNotification", payload)

	// Assert
	if ocppErr != nil {
		t.Fatalf("expected no error, got %v", ocppErr)
	}
	if seededStation != "EVP-001" {
		t.Errorf("expected defaults seeded for EVP-001, got %q", seededStation)
	}
	if seededDefaults["HeartbeatInterval"] != "300" || seededDefaults["MeterValueSampleInterval"] != "60" {
		t.Errorf("unexpected defaults %v", seededDefaults)
	}
}

func TestMeterValues_SavesSamplesAndChecksLimits(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h, d := newTestHandlers()

	var saved []*domain.MeterValue
	d.ocpp.SaveMeterValueFunc = func(ctx context.Context, mv *domain.MeterValue) error {
		saved = append(saved, mv)
		return nil
	}
	d.ocpp.FindTransactionFunc = func(ctx context.Context, stationID string, transactionID int) (*domain.OcppTransaction, error) {
		return &domain.OcppTransaction{StationID: stationID, TransactionID: transactionID, MeterStart: 1200}, nil
	}
	var checkedKwh float64
	d.charging.CheckLimitsFunc = func(ctx context.Context, stationID string, transactionID int, energyDeliveredKwh float64) error {
		checkedKwh = energyDeliveredKwh
		return nil
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"connectorId":   1,
		"transactionId": 1755990000,
		"meterValue": []map[string]interface{}{{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"sampledValue": []map[string]string{
				{"value": "6200", "measurand": "Energy.Active.Import.Register", "unit": "Wh"},
				{"value": "7000", "measurand": "Power.Active.Import", "unit": "W"},
				{"value": "55", "measurand": "SoC"},
			},
		}},
	})

	// Act
	_, ocppErr := h.HandleCall(ctx, "EVP-001", "MeterValues", payload)

	// Assert
	if ocppErr != nil {
		t.Fatalf("expected no error, got %v", ocppErr)
	}
	if len(saved) != 1 {
		t.Fatalf("expected 1 meter value, got %d", len(saved))
	}
	mv := saved[0]
	if mv.EnergyWh == nil || *mv.EnergyWh != 6200 {
		t.Error("expected energy sample 6200 Wh")
	}
	if mv.PowerKw == nil || *mv.PowerKw != 7 {
		t.Error("expected power converted to 7 kW")
	}
	if mv.SoC == nil || *mv.SoC != 55 {
		t.Error("expected SoC sample")
	}
	// (6200 - 1200) Wh = 5 kWh delivered.
	if checkedKwh != 5 {
		t.Errorf("expected limit check with 5 kWh, got %v", checkedKwh)
	}
}

func TestHandleCall_UnknownActionNotImplemented(t *testing.T) {
	// Arrange
	ctx := context.Background()
	h, _ := newTestHandlers()

	// Act
	_, ocppErr := h.HandleCall(ctx, "EVP-001", "SignCertificate", json.RawMessage(`{}`))

	// Assert
	if ocppErr == nil || ocppErr.Code != "NotImplemented" {
		t.Fatalf("expected NotImplemented, got %v", ocppErr)
	}
}

func TestCallPayload_TranslatesCommands(t *testing.T) {
	// Arrange
	start := &domain.StationCommand{
		Action:          domain.CmdRemoteStartTransaction,
		ConnectorNumber: 2,
		IdTag:           "996700123456",
	}
	stop := &domain.StationCommand{
		Action:        domain.CmdRemoteStopTransaction,
		TransactionID: 42,
	}

	// Act
	startPayload, err1 := callPayload(start)
	stopPayload, err2 := callPayload(stop)
	_, err3 := callPayload(&domain.StationCommand{Action: domain.CmdGetDiagnostics})

	// Assert
	if err1 != nil || err2 != nil {
		t.Fatalf("expected no errors, got %v %v", err1, err2)
	}
	sp := startPayload.(map[string]interface{})
	if sp["connectorId"] != 2 || sp["idTag"] != "996700123456" {
		t.Errorf("unexpected RemoteStart payload %v", sp)
	}
	if stopPayload.(map[string]interface{})["transactionId"] != 42 {
		t.Errorf("unexpected RemoteStop payload %v", stopPayload)
	}
	if err3 == nil {
		t.Error("expected GetDiagnostics without payload to fail")
	}
}

func newUpgradeRequest(protocols string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/ws/EVP-001", nil)
	if protocols != "" {
		r.Header.Set("Sec-WebSocket-Protocol", protocols)
	}
	return r
}

func TestNegotiateSubprotocol(t *testing.T) {
	cases := []struct {
		name    string
		offered string
		want    string
		ok      bool
	}{
		{"standard", "ocpp1.6", "ocpp1.6", true},
		{"json variant", "ocpp1.6j", "ocpp1.6j", true},
		{"mixed offer", "ocpp2.0.1, ocpp1.6", "ocpp1.6", true},
		{"none offered", "", "", true},
		{"foreign only", "ocpp2.0.1", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			r := newUpgradeRequest(tc.offered)

			// Act
			got, ok := negotiateSubprotocol(r)

			// Assert
			if ok != tc.ok || got != tc.want {
				t.Errorf("expected (%q,%v), got (%q,%v)", tc.want, tc.ok, got, ok)
			}
		})
	}
}
