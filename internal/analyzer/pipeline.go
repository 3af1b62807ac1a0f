package analyzer

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/bdougie/barcode/internal/config"
	"github.com/bdougie/barcode/internal/models"
)

// ChannelOutputs are the optional side channels of one channel run
type ChannelOutputs struct {
	Exporter Exporter
	Renderer Renderer
}

// Pipeline runs the three analyzers on one channel. Analyzers are isolated:
// a failure in one leaves its outcome Failed and the others still run.
type Pipeline struct {
	reader       config.ReaderConfig
	binarization *BinarizationAnalyzer
	flow         *OpticalFlowAnalyzer
	intensity    *IntensityDistributionAnalyzer
	errLog       ErrorLog
	metrics      Metrics
	logger       *slog.Logger
}

// PipelineOption configures optional collaborators
type PipelineOption func(*Pipeline)

func WithErrorLog(l ErrorLog) PipelineOption {
	return func(p *Pipeline) { p.errLog = l }
}

func WithMetrics(m Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

func NewPipeline(cfg *config.Config, estimator FlowEstimator, labeler Labeler, logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		reader:       cfg.Reader,
		binarization: NewBinarizationAnalyzer(cfg.Binarization, labeler, logger),
		flow:         NewOpticalFlowAnalyzer(cfg.Flow, estimator, logger),
		intensity:    NewIntensityDistributionAnalyzer(cfg.Intensity, logger),
		metrics:      nopMetrics{},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsDim reports whether a channel has too little signal above its floor:
// 2·e⁻¹·mean <= min.
func IsDim(video *models.Video) bool {
	var sum float64
	minimum := math.Inf(1)
	count := 0
	for _, f := range video.Frames {
		for _, p := range f.Pix {
			sum += p
			minimum = math.Min(minimum, p)
			count++
		}
	}
	if count == 0 {
		return false
	}
	return 2*math.Exp(-1)*(sum/float64(count)) <= minimum
}

// RunOption adjusts a single Run
type RunOption func(*runOptions)

type runOptions struct {
	dim *bool
}

// WithDim supplies an IsDim result the caller already has, so the video is
// not scanned again
func WithDim(dim bool) RunOption {
	return func(o *runOptions) { o.dim = &dim }
}

// Run analyzes one channel. It only returns an error for fatal input problems;
// analyzer failures are reported in the result.
func (p *Pipeline) Run(video *models.Video, out ChannelOutputs, opts ...RunOption) (*models.ChannelResult, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	if video.Len() == 0 {
		return nil, fmt.Errorf("%w: %s channel %d", ErrEmptyVideo, video.Path, video.Channel)
	}
	if err := video.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}

	var dim bool
	if ro.dim != nil {
		dim = *ro.dim
	} else {
		dim = IsDim(video)
	}

	result := &models.ChannelResult{
		FilePath:  video.Path,
		Channel:   video.Channel,
		Dim:       dim,
		CreatedAt: time.Now(),
	}

	if video.Blank() {
		p.logger.Warn("video appears to be blank, check channel manually", "file", video.Path, "channel", video.Channel)
		if p.reader.Binarization {
			result.Binarization.Status = models.StatusNoData
		}
		if p.reader.Flow {
			result.Flow.Status = models.StatusNoData
		}
		if p.reader.IntensityDistribution {
			result.Intensity.Status = models.StatusNoData
		}
		p.metrics.IncChannels("blank")
		return result, nil
	}

	var wg sync.WaitGroup
	if p.reader.Binarization {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.Binarization = runAnalyzer(p, video, p.binarization.Name(), func() (models.BinarizationResults, error) {
				return p.binarization.Analyze(video, out.Exporter, out.Renderer)
			})
		}()
	}
	if p.reader.Flow {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.Flow = runAnalyzer(p, video, p.flow.Name(), func() (models.FlowResults, error) {
				return p.flow.Analyze(video, out.Exporter, out.Renderer)
			})
		}()
	}
	if p.reader.IntensityDistribution {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result.Intensity = runAnalyzer(p, video, p.intensity.Name(), func() (models.IntensityResults, error) {
				return p.intensity.Analyze(video, out.Exporter, out.Renderer)
			})
		}()
	}
	wg.Wait()

	p.metrics.IncChannels("analyzed")
	p.logger.Debug("channel screening completed", "file", video.Path, "channel", video.Channel)
	return result, nil
}

func runAnalyzer[T any](p *Pipeline, video *models.Video, module string, fn func() (T, error)) models.Outcome[T] {
	start := time.Now()
	outcome := guard(fn)
	p.metrics.ObserveAnalyzer(module, outcome.Status, time.Since(start))

	if outcome.Status == models.StatusFailed {
		p.logger.Error("analyzer failed", "file", video.Path, "channel", video.Channel, "module", module, "error", outcome.Err)
		if p.errLog != nil {
			if err := p.errLog.Record(video.Path, video.Channel, module, outcome.Err); err != nil {
				p.logger.Error("record analyzer failure", "error", err)
			}
		}
	}
	return outcome
}

func guard[T any](fn func() (T, error)) (out models.Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			out = models.Failed[T](fmt.Errorf("panic: %v", r))
		}
	}()

	m, err := fn()
	if err != nil {
		return models.Failed[T](err)
	}
	return models.Ok(m)
}
