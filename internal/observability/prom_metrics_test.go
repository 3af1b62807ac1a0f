package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bdougie/barcode/internal/models"
)

func TestPromMetrics(t *testing.T) {
	origReg := prometheus.DefaultRegisterer
	origGatherer := prometheus.DefaultGatherer
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGatherer
	})

	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg

	m := NewPromMetrics()

	m.ObserveAnalyzer("Binarization", models.StatusOK, 250*time.Millisecond)
	m.ObserveAnalyzer("Binarization", models.StatusOK, time.Second)
	m.ObserveAnalyzer("Optical Flow", models.StatusFailed, time.Millisecond)

	if got := testutil.ToFloat64(m.analyzers.WithLabelValues("Binarization", "ok")); got != 2 {
		t.Fatalf("expected 2 ok binarization runs, got %f", got)
	}
	if got := testutil.ToFloat64(m.analyzers.WithLabelValues("Optical Flow", "failed")); got != 1 {
		t.Fatalf("expected 1 failed flow run, got %f", got)
	}
	if samples := testutil.CollectAndCount(m.latency); samples != 2 {
		t.Fatalf("expected latency series for 2 modules, got %d", samples)
	}

	m.IncChannels("analyzed")
	m.IncChannels("blank")
	m.IncChannels("analyzed")
	if got := testutil.ToFloat64(m.channels.WithLabelValues("analyzed")); got != 2 {
		t.Fatalf("expected 2 analyzed channels, got %f", got)
	}

	m.IncFiles("failed")
	if got := testutil.ToFloat64(m.files.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected 1 failed file, got %f", got)
	}
}
