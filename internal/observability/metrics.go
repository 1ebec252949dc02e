// Package observability exports run metrics as a Prometheus textfile for
// node_exporter's textfile collector.
package observability

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"

	"github.com/sells-group/f1-etl/internal/model"
)

const namespace = "f1_etl"

// Metrics holds the gauges written after each command run.
type Metrics struct {
	registry *prometheus.Registry

	RunSuccess       *prometheus.GaugeVec // labels: command
	RunDuration      *prometheus.GaugeVec // labels: command
	LastRunTimestamp *prometheus.GaugeVec // labels: command
	RowsWritten      *prometheus.GaugeVec // labels: command, output
	RecentRuns       *prometheus.GaugeVec // labels: status
	RecentFailRate   prometheus.Gauge
}

// NewMetrics creates the metrics on a private registry so repeated
// construction never collides with the default one.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success",
			Help:      "1 when the last run of the command succeeded, 0 otherwise.",
		}, []string{"command"}),
		RunDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run of the command.",
		}, []string{"command"}),
		LastRunTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run of the command finished.",
		}, []string{"command"}),
		RowsWritten: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rows_written",
			Help:      "Rows written per output file by the last run.",
		}, []string{"command", "output"}),
		RecentRuns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recent_runs",
			Help:      "Runs in the lookback window by status.",
		}, []string{"status"}),
		RecentFailRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recent_fail_rate",
			Help:      "Failed share of finished runs in the lookback window.",
		}),
	}
	m.registry.MustRegister(
		m.RunSuccess,
		m.RunDuration,
		m.LastRunTimestamp,
		m.RowsWritten,
		m.RecentRuns,
		m.RecentFailRate,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(run *model.Run) {
	success := 0.0
	if run.Status == model.RunStatusComplete {
		success = 1
	}
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	m.RunSuccess.WithLabelValues(run.Command).Set(success)
	m.RunDuration.WithLabelValues(run.Command).Set(finished.Sub(run.StartedAt).Seconds())
	m.LastRunTimestamp.WithLabelValues(run.Command).Set(float64(finished.Unix()))
	for output, n := range run.RowCounts {
		m.RowsWritten.WithLabelValues(run.Command, output).Set(float64(n))
	}
}

// ObserveSnapshot records run-log totals.
func (m *Metrics) ObserveSnapshot(s *Snapshot) {
	m.RecentRuns.WithLabelValues(string(model.RunStatusComplete)).Set(float64(s.Complete))
	m.RecentRuns.WithLabelValues(string(model.RunStatusFailed)).Set(float64(s.Failed))
	m.RecentRuns.WithLabelValues(string(model.RunStatusRunning)).Set(float64(s.Running))
	m.RecentFailRate.Set(s.FailRate)
}

// WriteTextfile writes every metric to path in the text exposition format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "observability: create dir for %s", path)
	}
	return eris.Wrapf(prometheus.WriteToTextfile(path, m.registry), "observability: write %s", path)
}
