// Package telemetry provides Prometheus metrics, OpenTelemetry tracing setup,
// and the per-process run id attached to logs and status output.
package telemetry

import (
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once  sync.Once
	runID string

	// Counters
	PagesEmitted      prometheus.Counter
	MessagesDelivered prometheus.Counter
	EmptyPages        prometheus.Counter
	ReconnectAttempts prometheus.Counter
	StreamFaults      prometheus.Counter
	TokenRefreshes    prometheus.Counter
	DuplicateMessages prometheus.Counter
	TokenRegressions  prometheus.Counter

	// Gauges
	ConnectedGauge prometheus.Gauge
)

// Init registers metrics and assigns the run id (idempotent).
func Init() {
	once.Do(func() {
		runID = uuid.NewString()
		PagesEmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "chattap_pages_emitted_total", Help: "Pages appended to the output sink"})
		MessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{Name: "chattap_messages_delivered_total", Help: "Chat messages delivered across all pages"})
		EmptyPages = promauto.NewCounter(prometheus.CounterOpts{Name: "chattap_empty_pages_total", Help: "Heartbeat pages received with zero items"})
		ReconnectAttempts = promauto.NewCounter(prometheus.CounterOpts{Name: "chattap_reconnect_attempts_total", Help: "Stream reconnect attempts after a fault"})
		StreamFaults = promauto.NewCounter(prometheus.CounterOpts{Name: "chattap_stream_faults_total", Help: "Mid-stream faults (timeouts, resets, closed streams)"})
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "chattap_token_refreshes_total", Help: "OAuth token refresh exchanges performed"})
		DuplicateMessages = promauto.NewCounter(prometheus.CounterOpts{Name: "chattap_duplicate_messages_total", Help: "Messages whose id was already delivered (remote pagination anomaly)"})
		TokenRegressions = promauto.NewCounter(prometheus.CounterOpts{Name: "chattap_token_regressions_total", Help: "Pages whose next page token moved backwards"})
		ConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chattap_stream_connected", Help: "1 while a live stream connection is open"})
	})
}

// RunID returns the process run id (empty before Init).
func RunID() string { return runID }

// SetConnected flips the stream connection gauge.
func SetConnected(up bool) {
	if ConnectedGauge == nil {
		return
	}
	if up {
		ConnectedGauge.Set(1)
	} else {
		ConnectedGauge.Set(0)
	}
}
