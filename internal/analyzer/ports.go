package analyzer

import (
	"errors"
	"time"

	"github.com/bdougie/barcode/internal/models"
)

var (
	ErrEmptyVideo    = errors.New("video has no frames")
	ErrInvalidStep   = errors.New("frame step must be positive")
	ErrShapeMismatch = errors.New("frame shapes differ")
	ErrNoPairs       = errors.New("fewer than two sampled frames, no flow pairs")
)

// FlowEstimator computes a dense per-pixel displacement field between two
// frames of the same shape. Implementations must be safe for concurrent use.
type FlowEstimator interface {
	Flow(prev, next models.Frame, winSize int) (models.FlowField, error)
}

// Labeler labels the foreground of a mask with 8-connectivity.
// Implementations must be safe for concurrent use.
type Labeler interface {
	Label(mask models.Mask) (models.Labels, error)
}

// Exporter receives per-frame intermediates when intermediate export is on.
// It never feeds back into aggregation.
type Exporter interface {
	BinarizationFrame(frameIdx int, mask models.Mask) error
	FlowPair(start, stop int, u, v models.Frame) error
	IntensityFrame(frameIdx int, values, probabilities []float64) error
	Close() error
}

// Renderer draws selected intermediates (first, middle, last sample) and the
// per-channel summary graphs. Analyzers of one channel share a Renderer
// concurrently.
type Renderer interface {
	BinarizationFrame(frameIdx int, original models.Frame, mask models.Mask) error
	FlowField(start, stop int, speed models.Frame) error
	// AreaTrend plots the largest void and island as a percentage of their
	// baseline size over the sampled frames
	AreaTrend(void, island models.Series) error
	// IntensityComparison plots the first and last sampled distributions
	IntensityComparison(first, last models.Series) error
	// Close writes the summary graphs collected for the channel
	Close() error
}

// ErrorLog records analyzer failures for later inspection
type ErrorLog interface {
	Record(path string, channel int, module string, err error) error
}

// Metrics observes analyzer outcomes and batch throughput
type Metrics interface {
	ObserveAnalyzer(module string, status models.Status, elapsed time.Duration)
	IncChannels(status string)
	IncFiles(status string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveAnalyzer(string, models.Status, time.Duration) {}
func (nopMetrics) IncChannels(string)                                  {}
func (nopMetrics) IncFiles(string)                                     {}
