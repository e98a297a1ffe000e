// Package metrics provides Prometheus instrumentation for the Orbit chat
// server: connection and room gauges, waiting pool size, relay throughput
// and match wait times.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbit_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// MessagesTotal counts relayed chat messages by outcome.
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_messages_total",
		Help: "Total number of chat messages handled by the relay",
	}, []string{"result"}) // result = "relayed", "dropped", "rate_limited"

	// MessageLatency records relay delivery latency in seconds.
	MessageLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbit_message_latency_seconds",
		Help:    "Relay delivery latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// MatchWait records how long the selected waiter sat in the pool.
	MatchWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbit_match_wait_seconds",
		Help:    "Time the matched waiter spent in the waiting pool",
		Buckets: []float64{.1, .5, 1, 2, 5, 10, 20, 30, 60, 120},
	})

	// MatchesTotal counts match attempts by outcome.
	MatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_matches_total",
		Help: "Search requests by outcome",
	}, []string{"result"}) // result = "matched", "waiting", "stale_partner"

	// ActiveRooms tracks the current number of paired rooms.
	ActiveRooms = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbit_active_rooms",
		Help: "Current number of active rooms",
	})

	// WaitingPoolSize tracks the current number of users waiting for a partner.
	WaitingPoolSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbit_waiting_pool_size",
		Help: "Current number of users in the waiting pool",
	})

	// EscalationsTotal counts escalated searches by outcome.
	EscalationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbit_escalations_total",
		Help: "Escalated searches by outcome",
	}, []string{"result"}) // result = "matched", "waiting", "ignored"

	// ReportsTotal counts reports accepted by the reporting hook.
	ReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbit_reports_total",
		Help: "Total number of partner reports received",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		MessagesTotal,
		MessageLatency,
		MatchWait,
		MatchesTotal,
		ActiveRooms,
		WaitingPoolSize,
		EscalationsTotal,
		ReportsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
