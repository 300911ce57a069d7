package v16

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/domain"
	"github.com/evpower/evpower-backend/internal/observability/telemetry"
	"github.com/evpower/evpower-backend/internal/ports"
)

const callTimeout = 30 * time.Second

type callOutcome struct {
	payload json.RawMessage
	errCode string
	errDesc string
}

// actor owns one station socket. It is the only goroutine writing to
// the connection and the single consumer of the station's cmd topic,
// so outbound calls are naturally serialized.
type actor struct {
	stationID string
	conn      *websocket.Conn
	srv       *Server
	log       *zap.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan callOutcome

	closeOnce sync.Once
	done      chan struct{}
}

func newActor(stationID string, conn *websocket.Conn, srv *Server) *actor {
	return &actor{
		stationID: stationID,
		conn:      conn,
		srv:       srv,
		log:       srv.log.With(zap.String("station_id", stationID)),
		pending:   make(map[string]chan callOutcome),
		done:      make(chan struct{}),
	}
}

// run reads frames until the socket dies. The command consumer runs
// alongside and stops with the read loop.
func (a *actor) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer a.close(websocket.CloseNormalClosure, "")

	go a.consumeCommands(ctx)

	for {
		_, data, err := a.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.log.Debug("Read error", zap.Error(err))
			}
			return
		}
		a.handleFrame(ctx, data)
	}
}

func (a *actor) close(code int, reason string) {
	a.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		a.writeMu.Lock()
		_ = a.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		a.writeMu.Unlock()
		a.conn.Close()
		close(a.done)
	})
}

// consumeCommands translates StationCommand envelopes into OCPP calls.
func (a *actor) consumeCommands(ctx context.Context) {
	ch, cancel, err := a.srv.bus.Subscribe(ctx, ports.CommandTopic(a.stationID))
	if err != nil {
		a.log.Error("Failed to subscribe to command topic", zap.Error(err))
		return
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.done:
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			var cmd domain.StationCommand
			if err := json.Unmarshal(payload, &cmd); err != nil {
				a.log.Warn("Dropping malformed command", zap.Error(err))
				continue
			}
			a.executeCommand(&cmd)
		}
	}
}

func (a *actor) executeCommand(cmd *domain.StationCommand) {
	payload, err := callPayload(cmd)
	if err != nil {
		a.log.Warn("Dropping command", zap.String("action", cmd.Action), zap.Error(err))
		return
	}
	result, err := a.SendCall(cmd.Action, payload)
	if err != nil {
		a.log.Warn("Command failed",
			zap.String("action", cmd.Action),
			zap.String("session_id", cmd.SessionID),
			zap.Error(err))
		return
	}
	a.log.Info("Command acknowledged",
		zap.String("action", cmd.Action),
		zap.String("session_id", cmd.SessionID),
		zap.Any("result", result))
}

// SendCall issues an outbound Call and waits for the matching reply.
func (a *actor) SendCall(action string, payload interface{}) (interface{}, error) {
	uniqueID := uuid.New().String()
	frame := []interface{}{CallMessage, uniqueID, action, payload}
	data, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}

	ch := make(chan callOutcome, 1)
	a.pendingMu.Lock()
	a.pending[uniqueID] = ch
	a.pendingMu.Unlock()
	defer func() {
		a.pendingMu.Lock()
		delete(a.pending, uniqueID)
		a.pendingMu.Unlock()
	}()

	if err := a.write(data); err != nil {
		return nil, err
	}
	telemetry.OCPPMessagesTotal.WithLabelValues(action, "out").Inc()
	a.audit("out", action, data)

	select {
	case outcome := <-ch:
		if outcome.errCode != "" {
			return nil, fmt.Errorf("station returned %s: %s", outcome.errCode, outcome.errDesc)
		}
		var result interface{}
		if err := json.Unmarshal(outcome.payload, &result); err != nil {
			return nil, err
		}
		return result, nil
	case <-time.After(callTimeout):
		telemetry.OCPPCallTimeouts.WithLabelValues(action).Inc()
		return nil, fmt.Errorf("timed out waiting for %s reply", action)
	case <-a.done:
		return nil, fmt.Errorf("connection closed while awaiting %s reply", action)
	}
}

func (a *actor) write(data []byte) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.conn.WriteMessage(websocket.TextMessage, data)
}

func (a *actor) handleFrame(ctx context.Context, data []byte) {
	var frame []json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil || len(frame) < 3 {
		a.log.Warn("Malformed OCPP frame", zap.ByteString("data", data))
		return
	}

	var messageType int
	if err := json.Unmarshal(frame[0], &messageType); err != nil {
		a.log.Warn("Malformed message type", zap.ByteString("data", data))
		return
	}
	var uniqueID string
	if err := json.Unmarshal(frame[1], &uniqueID); err != nil {
		a.log.Warn("Malformed unique ID", zap.ByteString("data", data))
		return
	}

	switch messageType {
	case CallMessage:
		if len(frame) < 4 {
			a.sendCallError(uniqueID, "ProtocolError", "call frame needs 4 elements")
			return
		}
		var action string
		if err := json.Unmarshal(frame[2], &action); err != nil {
			a.sendCallError(uniqueID, "ProtocolError", "invalid action")
			return
		}
		a.handleCall(ctx, uniqueID, action, frame[3], data)

	case CallResultMessage:
		a.resolvePending(uniqueID, callOutcome{payload: frame[2]})

	case CallErrorMessage:
		outcome := callOutcome{errCode: "GenericError"}
		_ = json.Unmarshal(frame[2], &outcome.errCode)
		if len(frame) > 3 {
			_ = json.Unmarshal(frame[3], &outcome.errDesc)
		}
		a.resolvePending(uniqueID, outcome)

	default:
		a.log.Warn("Unknown message type", zap.Int("type", messageType))
	}
}

func (a *actor) handleCall(ctx context.Context, uniqueID, action string, payload json.RawMessage, raw []byte) {
	telemetry.OCPPMessagesTotal.WithLabelValues(action, "in").Inc()
	a.audit("in", action, raw)

	result, ocppErr := a.srv.handlers.HandleCall(ctx, a.stationID, action, payload)
	if ocppErr != nil {
		a.sendCallError(uniqueID, ocppErr.Code, ocppErr.Description)
		return
	}

	response := []interface{}{CallResultMessage, uniqueID, result}
	data, err := json.Marshal(response)
	if err != nil {
		a.log.Error("Failed to marshal call result", zap.String("action", action), zap.Error(err))
		return
	}
	if err := a.write(data); err != nil {
		a.log.Debug("Failed to write call result", zap.Error(err))
	}
}

func (a *actor) sendCallError(uniqueID, code, description string) {
	frame := []interface{}{CallErrorMessage, uniqueID, code, description, map[string]string{}}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	if err := a.write(data); err != nil {
		a.log.Debug("Failed to write call error", zap.Error(err))
	}
}

func (a *actor) resolvePending(uniqueID string, outcome callOutcome) {
	a.pendingMu.Lock()
	ch, ok := a.pending[uniqueID]
	a.pendingMu.Unlock()
	if !ok {
		a.log.Debug("Reply for unknown call", zap.String("unique_id", uniqueID))
		return
	}
	select {
	case ch <- outcome:
	default:
	}
}

// audit persists the raw frame when message logging is on.
func (a *actor) audit(direction, action string, raw []byte) {
	if !a.srv.logMessages {
		return
	}
	entry := &domain.OcppMessageLog{
		StationID: a.stationID,
		Direction: direction,
		Action:    action,
		Payload:   string(raw),
	}
	if err := a.srv.ocppRepo.LogMessage(context.Background(), entry); err != nil {
		a.log.Debug("Failed to log OCPP message", zap.Error(err))
	}
}
