// Package metrics exposes the process's Prometheus metrics: commands
// processed by name and outcome, WAL append/commit latency, and the
// number of live sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kvdb_commands_total",
			Help: "Total number of commands processed by name and outcome",
		},
		[]string{"command", "outcome"},
	)

	CommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kvdb_command_duration_seconds",
			Help:    "Command dispatch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	WALAppendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kvdb_wal_append_duration_seconds",
			Help:    "Time taken to append and fsync a WAL record in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EngineCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kvdb_engine_commit_duration_seconds",
			Help:    "Time taken to apply a committed batch to the engine in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kvdb_active_sessions",
			Help: "Number of currently connected sessions",
		},
	)

	ClusterReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kvdb_cluster_ready",
			Help: "Whether the server has completed its cluster handshake (1 = ready, 0 = not ready)",
		},
	)
)

func init() {
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(CommandDuration)
	prometheus.MustRegister(WALAppendDuration)
	prometheus.MustRegister(EngineCommitDuration)
	prometheus.MustRegister(ActiveSessions)
	prometheus.MustRegister(ClusterReady)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation's duration against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to any observer, including a
// bare Histogram or a HistogramVec's WithLabelValues result.
func (t *Timer) ObserveDuration(histogram prometheus.Observer) {
	histogram.Observe(time.Since(t.start).Seconds())
}
