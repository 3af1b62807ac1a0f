package analyzer

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bdougie/barcode/internal/config"
	"github.com/bdougie/barcode/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// floodLabeler is an 8-connected flood fill labeler
type floodLabeler struct{}

func (floodLabeler) Label(mask models.Mask) (models.Labels, error) {
	out := models.Labels{Rows: mask.Rows, Cols: mask.Cols, Grid: make([]int, mask.Len()), Areas: map[int]int{}}
	next := 0
	for start := range mask.Bits {
		if !mask.Bits[start] || out.Grid[start] != 0 {
			continue
		}
		next++
		out.Grid[start] = next
		queue := []int{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			out.Areas[next]++
			r, c := cur/mask.Cols, cur%mask.Cols
			for dr := -1; dr <= 1; dr++ {
				for dc := -1; dc <= 1; dc++ {
					nr, nc := r+dr, c+dc
					if nr < 0 || nc < 0 || nr >= mask.Rows || nc >= mask.Cols {
						continue
					}
					i := nr*mask.Cols + nc
					if mask.Bits[i] && out.Grid[i] == 0 {
						out.Grid[i] = next
						queue = append(queue, i)
					}
				}
			}
		}
	}
	return out, nil
}

// constantFlow returns the same displacement everywhere
type constantFlow struct {
	u, v float64
}

func (f constantFlow) Flow(prev, next models.Frame, winSize int) (models.FlowField, error) {
	field := models.FlowField{U: models.NewFrame(prev.Rows, prev.Cols), V: models.NewFrame(prev.Rows, prev.Cols)}
	for i := range field.U.Pix {
		field.U.Pix[i] = f.u
		field.V.Pix[i] = f.v
	}
	return field, nil
}

type failingFlow struct{}

func (failingFlow) Flow(models.Frame, models.Frame, int) (models.FlowField, error) {
	return models.FlowField{}, errors.New("estimator unavailable")
}

type panickingFlow struct{}

func (panickingFlow) Flow(models.Frame, models.Frame, int) (models.FlowField, error) {
	panic("index out of range")
}

type recordedFailure struct {
	path    string
	channel int
	module  string
	err     error
}

type memErrorLog struct {
	mu      sync.Mutex
	entries []recordedFailure
}

func (l *memErrorLog) Record(path string, channel int, module string, err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, recordedFailure{path, channel, module, err})
	return nil
}

type memMetrics struct {
	mu       sync.Mutex
	outcomes map[string]models.Status
	channels map[string]int
	files    map[string]int
}

func newMemMetrics() *memMetrics {
	return &memMetrics{outcomes: map[string]models.Status{}, channels: map[string]int{}, files: map[string]int{}}
}

func (m *memMetrics) ObserveAnalyzer(module string, status models.Status, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[module] = status
}

func (m *memMetrics) IncChannels(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[status]++
}

func (m *memMetrics) IncFiles(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[status]++
}

// rampVideo brightens by one per frame and increases across rows, so the
// bottom half of every frame is at or above its mean
func rampVideo(frames, rows, cols int) *models.Video {
	v := &models.Video{Path: "ramp.tif"}
	for t := 0; t < frames; t++ {
		f := models.NewFrame(rows, cols)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				f.Set(r, c, float64(t+r*cols+c+1))
			}
		}
		v.Frames = append(v.Frames, f)
	}
	return v
}

func zeroVideo(frames, rows, cols int) *models.Video {
	v := &models.Video{Path: "zero.tif"}
	for t := 0; t < frames; t++ {
		v.Frames = append(v.Frames, models.NewFrame(rows, cols))
	}
	return v
}

// testConfig is the small-video configuration: every frame sampled, raw
// thresholds, unique-value histograms and no flow downsampling
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Binarization.ThresholdOffset = 0
	cfg.Binarization.FrameStep = 1
	cfg.Flow.FrameStep = 1
	cfg.Flow.Downsample = 1
	cfg.Intensity.FrameStep = 1
	cfg.Intensity.BinSize = 1
	return cfg
}
