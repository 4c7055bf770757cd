package observability

import (
	"time"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration    *prometheus.HistogramVec
	gatewayCalls       *prometheus.CounterVec
	pairingEvents      *prometheus.CounterVec
	activePairings     prometheus.Gauge
	messagesDispatched *prometheus.CounterVec
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bfa_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		gatewayCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_gateway_calls_total",
				Help: "Evolution API calls by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		pairingEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_pairing_events_total",
				Help: "QR pairing lifecycle events.",
			},
			[]string{"event"},
		),
		activePairings: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bfa_pairing_sessions_active",
				Help: "Pairing sessions currently polling the gateway.",
			},
		),
		messagesDispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_messages_dispatched_total",
				Help: "Messages handed to the gateway by final status.",
			},
			[]string{"status"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// Pairing event labels.
const (
	PairingStarted   = "started"
	PairingConnected = "connected"
	PairingFailed    = "failed"
	PairingCancelled = "cancelled"
	PairingPollError = "poll_error"
)

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordGatewayCall counts one gateway call.
func (m *Metrics) RecordGatewayCall(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.gatewayCalls.WithLabelValues(operation, outcome).Inc()
}

// IncrPairing counts one pairing lifecycle event.
func (m *Metrics) IncrPairing(event string) {
	m.pairingEvents.WithLabelValues(event).Inc()
}

// PairingLoopStarted / PairingLoopStopped track running poll loops.
func (m *Metrics) PairingLoopStarted() { m.activePairings.Inc() }
func (m *Metrics) PairingLoopStopped() { m.activePairings.Dec() }

// IncrDispatched counts a message that reached a final delivery status.
func (m *Metrics) IncrDispatched(status string) {
	m.messagesDispatched.WithLabelValues(status).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// GetPairingSnapshot returns the cumulative pairing counters for
// GET /v1/metrics/pairing.
func (m *Metrics) GetPairingSnapshot() *domain.PairingMetrics {
	started := getCounterValue(m.pairingEvents, PairingStarted)
	connected := getCounterValue(m.pairingEvents, PairingConnected)

	rate := float64(0)
	if started > 0 {
		rate = connected / started
	}

	return &domain.PairingMetrics{
		Started:     int64(started),
		Connected:   int64(connected),
		Failed:      int64(getCounterValue(m.pairingEvents, PairingFailed)),
		Cancelled:   int64(getCounterValue(m.pairingEvents, PairingCancelled)),
		PollErrors:  int64(getCounterValue(m.pairingEvents, PairingPollError)),
		SuccessRate: rate,
		Period:      "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
