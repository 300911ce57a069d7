package v16

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/evpower/evpower-backend/internal/observability/telemetry"
	"github.com/evpower/evpower-backend/internal/ports"
)

// OCPP 1.6 message types
const (
	CallMessage       = 2
	CallResultMessage = 3
	CallErrorMessage  = 4
)

// Subprotocols accepted for OCPP 1.6-J, in preference order.
var acceptedSubprotocols = []string{"ocpp1.6", "ocpp1.6j", "ocpp1.6-json"}

var upgrader = websocket.Upgrader{
	CheckOrigin:  func(r *http.Request) bool { return true },
	Subprotocols: acceptedSubprotocols,
}

// Server owns the OCPP 1.6-J WebSocket endpoint. Each accepted socket
// gets a dedicated actor; the actor is the only goroutine touching the
// connection and the only consumer of the station's command topic.
type Server struct {
	charging     ports.ChargingService
	availability ports.AvailabilityService
	stationAuth  ports.StationAuthService
	ocppRepo     ports.OcppRepository
	bus          ports.Bus
	handlers     *Handlers
	logMessages  bool
	log          *zap.Logger

	mu     sync.RWMutex
	actors map[string]*actor

	httpServer *http.Server
}

func NewServer(
	charging ports.ChargingService,
	availability ports.AvailabilityService,
	stationAuth ports.StationAuthService,
	ocppRepo ports.OcppRepository,
	clients ports.ClientRepository,
	bus ports.Bus,
	logMessages bool,
	log *zap.Logger,
) *Server {
	s := &Server{
		charging:     charging,
		availability: availability,
		stationAuth:  stationAuth,
		ocppRepo:     ocppRepo,
		bus:          bus,
		logMessages:  logMessages,
		log:          log,
		actors:       make(map[string]*actor),
	}
	s.handlers = NewHandlers(charging, availability, ocppRepo, clients, log)
	return s
}

// Start serves the OCPP endpoint on the given port. Blocks until Stop.
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", s.handleWebSocket)
	mux.HandleFunc("/ocpp/", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	s.log.Info("Starting OCPP 1.6 WebSocket server", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop closes every station socket with 1001 and shuts the listener
// down.
func (s *Server) Stop() {
	s.mu.Lock()
	actors := make([]*actor, 0, len(s.actors))
	for _, a := range s.actors {
		actors = append(actors, a)
	}
	s.mu.Unlock()

	for _, a := range actors {
		a.close(websocket.CloseGoingAway, "server shutting down")
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Warn("OCPP listener shutdown", zap.Error(err))
		}
	}
	s.log.Info("OCPP 1.6 server stopped")
}

// SendCall routes an ad-hoc call through the station's actor. Used by
// the command REST surface for stations connected to this instance.
func (s *Server) SendCall(stationID, action string, payload interface{}) (interface{}, error) {
	s.mu.RLock()
	a, ok := s.actors[stationID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("station %s is not connected here", stationID)
	}
	return a.SendCall(action, payload)
}

func stationIDFromPath(path string) string {
	for _, prefix := range []string{"/ws/", "/ocpp/"} {
		if strings.HasPrefix(path, prefix) {
			return strings.Trim(strings.TrimPrefix(path, prefix), "/")
		}
	}
	return ""
}

// apiKeyFromRequest pulls the station key from the Authorization header
// or the token query parameter.
func apiKeyFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if strings.HasPrefix(auth, "Bearer ") {
			return strings.TrimPrefix(auth, "Bearer ")
		}
		return auth
	}
	return r.URL.Query().Get("token")
}

// negotiateSubprotocol picks the OCPP subprotocol. Stations offering
// nothing are accepted for compatibility; stations offering only
// foreign protocols are refused.
func negotiateSubprotocol(r *http.Request) (string, bool) {
	offered := websocket.Subprotocols(r)
	if len(offered) == 0 {
		return "", true
	}
	for _, want := range acceptedSubprotocols {
		for _, got := range offered {
			if strings.EqualFold(got, want) {
				return want, true
			}
		}
	}
	return "", false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	stationID := stationIDFromPath(r.URL.Path)
	if stationID == "" {
		http.Error(w, "missing station ID", http.StatusBadRequest)
		return
	}

	subprotocol, ok := negotiateSubprotocol(r)
	if !ok {
		s.log.Warn("Station offered unsupported subprotocols",
			zap.String("station_id", stationID),
			zap.Strings("offered", websocket.Subprotocols(r)))
		http.Error(w, "unsupported subprotocol", http.StatusBadRequest)
		return
	}

	authErr := s.stationAuth.VerifyConnection(r.Context(), stationID, apiKeyFromRequest(r))

	var header http.Header
	if subprotocol != "" {
		header = http.Header{"Sec-WebSocket-Protocol": []string{subprotocol}}
	}
	conn, err := upgrader.Upgrade(w, r, header)
	if err != nil {
		s.log.Error("WebSocket upgrade failed", zap.String("station_id", stationID), zap.Error(err))
		return
	}

	// The handshake must complete before a close code can be delivered,
	// so authentication failures are reported post-upgrade with 1008.
	if authErr != nil {
		s.log.Warn("Station authentication failed",
			zap.String("station_id", stationID),
			zap.Error(authErr))
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	a := newActor(stationID, conn, s)

	// A station reconnecting supersedes its previous socket.
	s.mu.Lock()
	if prev, ok := s.actors[stationID]; ok {
		prev.close(websocket.CloseTryAgainLater, "superseded by new connection")
	}
	s.actors[stationID] = a
	s.mu.Unlock()
	telemetry.ConnectedStations.Inc()

	s.log.Info("Station connected",
		zap.String("station_id", stationID),
		zap.String("subprotocol", subprotocol))

	a.run()

	s.mu.Lock()
	if s.actors[stationID] == a {
		delete(s.actors, stationID)
	}
	s.mu.Unlock()
	telemetry.ConnectedStations.Dec()

	if err := s.availability.MarkOffline(context.Background(), stationID); err != nil {
		s.log.Warn("Failed to mark station offline", zap.String("station_id", stationID), zap.Error(err))
	}
	s.log.Info("Station disconnected", zap.String("station_id", stationID))
}
