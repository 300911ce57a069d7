package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveChargingSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evpower_active_charging_sessions",
		Help: "Number of charging sessions currently active",
	})

	ConnectedStations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evpower_connected_stations",
		Help: "Number of stations with an open OCPP socket",
	})

	EnergyDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evpower_energy_delivered_kwh_total",
		Help: "Total energy delivered in kWh",
	})

	OCPPMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evpower_ocpp_messages_total",
		Help: "Total OCPP messages by action and direction",
	}, []string{"action", "direction"})

	OCPPCallTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evpower_ocpp_call_timeouts_total",
		Help: "Outbound OCPP calls that timed out waiting for a reply",
	}, []string{"action"})

	SettlementAmount = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "evpower_settlement_amount_som",
		Help:    "Final session amounts in soms",
		Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600},
	})

	DatabaseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "evpower_database_latency_seconds",
		Help:    "Database query latency",
		Buckets: prometheus.DefBuckets,
	})
)
