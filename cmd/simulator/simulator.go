package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// SimulatorConfig holds the simulator configuration
type SimulatorConfig struct {
	ServerURL       string
	StationID       string
	APIKey          string
	Vendor          string
	Model           string
	SerialNumber    string
	FirmwareVersion string
	ConnectorCount  int
	PowerKw         float64
}

// ConnectorState represents a connector's state
type ConnectorState struct {
	ID      int
	Status  string // Available, Preparing, Charging, Finishing, Faulted
	MeterWh int
}

// Simulator simulates an OCPP 1.6-J charging station
type Simulator struct {
	config     *SimulatorConfig
	conn       *websocket.Conn
	log        *zap.Logger
	connectors []ConnectorState

	// Charging state
	activeTxID        int
	activeConnector   int
	heartbeatInterval int

	pendingMsgs map[string]chan []byte
	mu          sync.RWMutex
	writeMu     sync.Mutex

	stopChan     chan struct{}
	stopCharging chan struct{}
	wg           sync.WaitGroup
}

// NewSimulator creates a new charging station simulator
func NewSimulator(config *SimulatorConfig, log *zap.Logger) *Simulator {
	connectors := make([]ConnectorState, config.ConnectorCount)
	for i := 0; i < config.ConnectorCount; i++ {
		connectors[i] = ConnectorState{
			ID:     i + 1,
			Status: "Available",
		}
	}

	return &Simulator{
		config:            config,
		log:               log,
		connectors:        connectors,
		pendingMsgs:       make(map[string]chan []byte),
		stopChan:          make(chan struct{}),
		heartbeatInterval: 300,
	}
}

// Connect connects to the OCPP server
func (s *Simulator) Connect() error {
	url := fmt.Sprintf("%s/%s", s.config.ServerURL, s.config.StationID)

	dialer := websocket.Dialer{
		Subprotocols: []string{"ocpp1.6"},
	}
	var header http.Header
	if s.config.APIKey != "" {
		header = http.Header{"Authorization": []string{"Bearer " + s.config.APIKey}}
	}

	conn, _, err := dialer.Dial(url, header)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	s.conn = conn
	s.log.Info("Connected to OCPP server",
		zap.String("url", url),
		zap.String("station_id", s.config.StationID),
	)

	s.wg.Add(1)
	go s.readMessages()

	resp, err := s.sendBootNotification()
	if err != nil {
		s.log.Error("BootNotification failed", zap.Error(err))
	} else {
		s.log.Info("BootNotification response", zap.Any("response", resp))
		if interval, ok := resp["interval"].(float64); ok {
			s.heartbeatInterval = int(interval)
		}
	}

	for _, c := range s.connectors {
		s.sendStatusNotification(c.ID, c.Status, "NoError")
	}

	s.wg.Add(1)
	go s.heartbeatLoop()

	return nil
}

// Stop stops the simulator
func (s *Simulator) Stop() {
	close(s.stopChan)
	if s.conn != nil {
		s.conn.Close()
	}
	s.wg.Wait()
}

func (s *Simulator) readMessages() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopChan:
			return
		default:
			_, message, err := s.conn.ReadMessage()
			if err != nil {
				s.log.Error("Read error", zap.Error(err))
				return
			}
			s.handleMessage(message)
		}
	}
}

func (s *Simulator) handleMessage(data []byte) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || len(raw) < 3 {
		s.log.Error("Invalid message", zap.ByteString("data", data))
		return
	}

	var messageType int
	var uniqueID string
	json.Unmarshal(raw[0], &messageType)
	json.Unmarshal(raw[1], &uniqueID)

	switch messageType {
	case 2: // Call from the server
		var action string
		json.Unmarshal(raw[2], &action)
		var payload json.RawMessage
		if len(raw) > 3 {
			payload = raw[3]
		}
		s.handleCall(uniqueID, action, payload)

	case 3, 4: // CallResult / CallError
		s.mu.RLock()
		ch, ok := s.pendingMsgs[uniqueID]
		s.mu.RUnlock()
		if ok {
			ch <- data
		}
	}
}

func (s *Simulator) handleCall(uniqueID, action string, payload json.RawMessage) {
	s.log.Info("Received call", zap.String("action", action))

	switch action {
	case "RemoteStartTransaction":
		var req struct {
			ConnectorID int    `json:"connectorId"`
			IdTag       string `json:"idTag"`
		}
		json.Unmarshal(payload, &req)
		s.sendCallResult(uniqueID, map[string]string{"status": "Accepted"})
		go s.startCharging(req.ConnectorID, req.IdTag)

	case "RemoteStopTransaction":
		s.sendCallResult(uniqueID, map[string]string{"status": "Accepted"})
		go s.StopCharging("Remote")

	case "Reset":
		s.sendCallResult(uniqueID, map[string]string{"status": "Accepted"})
		go func() {
			s.StopCharging("Reboot")
			time.Sleep(time.Second)
			s.sendBootNotification()
		}()

	case "UnlockConnector":
		s.sendCallResult(uniqueID, map[string]string{"status": "Unlocked"})

	case "GetConfiguration":
		s.sendCallResult(uniqueID, map[string]interface{}{
			"configurationKey": []map[string]interface{}{
				{"key": "HeartbeatInterval", "readonly": false, "value": strconv.Itoa(s.heartbeatInterval)},
				{"key": "NumberOfConnectors", "readonly": true, "value": strconv.Itoa(len(s.connectors))},
			},
		})

	case "ChangeConfiguration", "ChangeAvailability", "ClearCache", "TriggerMessage":
		s.sendCallResult(uniqueID, map[string]string{"status": "Accepted"})

	case "GetDiagnostics":
		s.sendCallResult(uniqueID, map[string]string{"fileName": "diagnostics.log"})

	default:
		s.sendCallError(uniqueID, "NotImplemented", "action not supported by simulator")
	}
}

// sendCall sends a Call and waits for the reply
func (s *Simulator) sendCall(action string, payload interface{}) (map[string]interface{}, error) {
	uniqueID := uuid.New().String()
	frame := []interface{}{2, uniqueID, action, payload}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}

	ch := make(chan []byte, 1)
	s.mu.Lock()
	s.pendingMsgs[uniqueID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pendingMsgs, uniqueID)
		s.mu.Unlock()
	}()

	s.writeMu.Lock()
	err = s.conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	select {
	case reply := <-ch:
		var raw []json.RawMessage
		if err := json.Unmarshal(reply, &raw); err != nil || len(raw) < 3 {
			return nil, fmt.Errorf("malformed reply")
		}
		var messageType int
		json.Unmarshal(raw[0], &messageType)
		if messageType == 4 {
			var code string
			json.Unmarshal(raw[2], &code)
			return nil, fmt.Errorf("call error: %s", code)
		}
		var result map[string]interface{}
		json.Unmarshal(raw[2], &result)
		return result, nil
	case <-time.After(30 * time.Second):
		return nil, fmt.Errorf("timed out waiting for %s reply", action)
	case <-s.stopChan:
		return nil, fmt.Errorf("simulator stopped")
	}
}

func (s *Simulator) sendCallResult(uniqueID string, payload interface{}) {
	frame := []interface{}{3, uniqueID, payload}
	data, _ := json.Marshal(frame)
	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
}

func (s *Simulator) sendCallError(uniqueID, code, description string) {
	frame := []interface{}{4, uniqueID, code, description, map[string]string{}}
	data, _ := json.Marshal(frame)
	s.writeMu.Lock()
	s.conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
}

func (s *Simulator) sendBootNotification() (map[string]interface{}, error) {
	return s.sendCall("BootNotification", map[string]string{
		"chargePointVendor":       s.config.Vendor,
		"chargePointModel":        s.config.Model,
		"chargePointSerialNumber": s.config.SerialNumber,
		"firmwareVersion":         s.config.FirmwareVersion,
	})
}

func (s *Simulator) sendStatusNotification(connectorID int, status, errorCode string) {
	if _, err := s.sendCall("StatusNotification", map[string]interface{}{
		"connectorId": connectorID,
		"status":      status,
		"errorCode":   errorCode,
	}); err != nil {
		s.log.Error("StatusNotification failed", zap.Error(err))
	}
}

func (s *Simulator) heartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Duration(s.heartbeatInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			if _, err := s.sendCall("Heartbeat", map[string]string{}); err != nil {
				s.log.Error("Heartbeat failed", zap.Error(err))
			}
		}
	}
}

// startCharging runs a transaction: Authorize, StartTransaction and a
// meter value loop until stopped.
func (s *Simulator) startCharging(connectorID int, idTag string) {
	if connectorID < 1 || connectorID > len(s.connectors) {
		s.log.Error("Unknown connector", zap.Int("connector", connectorID))
		return
	}

	if resp, err := s.sendCall("Authorize", map[string]string{"idTag": idTag}); err != nil {
		s.log.Error("Authorize failed", zap.Error(err))
		return
	} else if info, ok := resp["idTagInfo"].(map[string]interface{}); ok && info["status"] != "Accepted" {
		s.log.Warn("Authorization refused", zap.Any("idTagInfo", info))
		return
	}

	s.setConnectorStatus(connectorID, "Preparing")

	meterStart := s.connectors[connectorID-1].MeterWh
	resp, err := s.sendCall("StartTransaction", map[string]interface{}{
		"connectorId": connectorID,
		"idTag":       idTag,
		"meterStart":  meterStart,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		s.log.Error("StartTransaction failed", zap.Error(err))
		s.setConnectorStatus(connectorID, "Available")
		return
	}

	txID, _ := resp["transactionId"].(float64)
	s.mu.Lock()
	s.activeTxID = int(txID)
	s.activeConnector = connectorID
	s.stopCharging = make(chan struct{})
	stop := s.stopCharging
	s.mu.Unlock()

	s.setConnectorStatus(connectorID, "Charging")
	s.log.Info("Charging started",
		zap.Int("transaction_id", int(txID)),
		zap.Int("connector", connectorID))

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			// 15 s of charging at the configured power.
			s.mu.Lock()
			s.connectors[connectorID-1].MeterWh += int(s.config.PowerKw * 1000 / 240)
			meterWh := s.connectors[connectorID-1].MeterWh
			s.mu.Unlock()

			s.sendMeterValue(connectorID, int(txID), meterWh)
		}
	}
}

func (s *Simulator) sendMeterValue(connectorID, txID, meterWh int) {
	if _, err := s.sendCall("MeterValues", map[string]interface{}{
		"connectorId":   connectorID,
		"transactionId": txID,
		"meterValue": []map[string]interface{}{{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"sampledValue": []map[string]string{
				{"value": strconv.Itoa(meterWh), "measurand": "Energy.Active.Import.Register", "unit": "Wh"},
				{"value": fmt.Sprintf("%.1f", s.config.PowerKw), "measurand": "Power.Active.Import", "unit": "kW"},
			},
		}},
	}); err != nil {
		s.log.Error("MeterValues failed", zap.Error(err))
	}
}

// StopCharging finishes the active transaction with the given reason.
func (s *Simulator) StopCharging(reason string) {
	s.mu.Lock()
	txID := s.activeTxID
	connectorID := s.activeConnector
	stop := s.stopCharging
	s.activeTxID = 0
	s.activeConnector = 0
	s.stopCharging = nil
	s.mu.Unlock()

	if txID == 0 {
		return
	}
	if stop != nil {
		close(stop)
	}

	s.setConnectorStatus(connectorID, "Finishing")

	if _, err := s.sendCall("StopTransaction", map[string]interface{}{
		"transactionId": txID,
		"meterStop":     s.connectors[connectorID-1].MeterWh,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"reason":        reason,
	}); err != nil {
		s.log.Error("StopTransaction failed", zap.Error(err))
	}

	s.setConnectorStatus(connectorID, "Available")
	s.log.Info("Charging stopped", zap.Int("transaction_id", txID), zap.String("reason", reason))
}

func (s *Simulator) setConnectorStatus(connectorID int, status string) {
	s.mu.Lock()
	s.connectors[connectorID-1].Status = status
	s.mu.Unlock()
	s.sendStatusNotification(connectorID, status, "NoError")
}

// RunInteractive reads commands from stdin until quit.
func (s *Simulator) RunInteractive() {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "start":
			connector := 1
			if len(parts) > 1 {
				connector, _ = strconv.Atoi(parts[1])
			}
			idTag := "996700123456"
			if len(parts) > 2 {
				idTag = parts[2]
			}
			go s.startCharging(connector, idTag)

		case "stop":
			s.StopCharging("Local")

		case "status":
			if len(parts) < 3 {
				fmt.Println("usage: status <connector> <Available|Charging|Faulted>")
				continue
			}
			connector, _ := strconv.Atoi(parts[1])
			s.setConnectorStatus(connector, parts[2])

		case "fault":
			connector := 1
			if len(parts) > 1 {
				connector, _ = strconv.Atoi(parts[1])
			}
			s.sendStatusNotification(connector, "Faulted", "GroundFailure")

		case "heartbeat":
			if _, err := s.sendCall("Heartbeat", map[string]string{}); err != nil {
				fmt.Println("heartbeat failed:", err)
			}

		case "meter":
			if len(parts) < 2 {
				fmt.Println("usage: meter <wh>")
				continue
			}
			wh, _ := strconv.Atoi(parts[1])
			s.mu.RLock()
			txID := s.activeTxID
			connector := s.activeConnector
			s.mu.RUnlock()
			if txID == 0 {
				fmt.Println("no active transaction")
				continue
			}
			s.connectors[connector-1].MeterWh = wh
			s.sendMeterValue(connector, txID, wh)

		case "quit", "exit":
			s.Stop()
			return

		default:
			fmt.Println("unknown command:", parts[0])
		}
	}
}
