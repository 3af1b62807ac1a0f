package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bdougie/barcode/internal/models"
)

// PromMetrics exports analyzer outcomes and channel throughput
type PromMetrics struct {
	analyzers *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	channels  *prometheus.CounterVec
	files     *prometheus.CounterVec
}

func NewPromMetrics() *PromMetrics {
	analyzers := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "barcode_analyzer_runs_total",
		Help: "Analyzer runs by module and outcome.",
	}, []string{"module", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "barcode_analyzer_duration_seconds",
		Help:    "Wall time of one analyzer on one channel.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"module"})
	channels := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "barcode_channels_total",
		Help: "Channels screened, by outcome (analyzed, blank, skipped_dim).",
	}, []string{"status"})
	files := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "barcode_files_total",
		Help: "Files processed, by outcome (ok, failed).",
	}, []string{"status"})

	prometheus.MustRegister(analyzers, latency, channels, files)

	return &PromMetrics{
		analyzers: analyzers,
		latency:   latency,
		channels:  channels,
		files:     files,
	}
}

func (p *PromMetrics) ObserveAnalyzer(module string, status models.Status, elapsed time.Duration) {
	p.analyzers.WithLabelValues(module, status.String()).Inc()
	p.latency.WithLabelValues(module).Observe(elapsed.Seconds())
}

func (p *PromMetrics) IncChannels(status string) {
	p.channels.WithLabelValues(status).Inc()
}

func (p *PromMetrics) IncFiles(status string) {
	p.files.WithLabelValues(status).Inc()
}
