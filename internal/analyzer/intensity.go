package analyzer

import (
	"fmt"
	"log/slog"

	"github.com/bdougie/barcode/internal/config"
	"github.com/bdougie/barcode/internal/models"
)

// saturationFlag marks a channel whose every sampled frame peaks at its
// brightest bin
const saturationFlag = 2

type IntensityDistributionAnalyzer struct {
	cfg    config.IntensityDistributionConfig
	logger *slog.Logger
}

func NewIntensityDistributionAnalyzer(cfg config.IntensityDistributionConfig, logger *slog.Logger) *IntensityDistributionAnalyzer {
	return &IntensityDistributionAnalyzer{cfg: cfg, logger: logger}
}

func (a *IntensityDistributionAnalyzer) Name() string { return "Intensity Distribution" }

// Analyze computes kurtosis and skewness per sampled frame and reduces them
// to top-decile maxima and final-minus-baseline changes. exp and rnd may be nil.
func (a *IntensityDistributionAnalyzer) Analyze(video *models.Video, exp Exporter, rnd Renderer) (models.IntensityResults, error) {
	a.logger.Debug("beginning intensity distribution analysis", "file", video.Path, "channel", video.Channel)

	frames, err := SampleFrames(video.Len(), a.cfg.FrameStep, a.logger)
	if err != nil {
		return models.IntensityResults{}, err
	}

	n := len(frames.Indices)
	kurtosis := make([]float64, 0, n)
	medianSkew := make([]float64, 0, n)
	modeSkew := make([]float64, 0, n)
	allSaturated := true
	var first, last Histogram

	for i, idx := range frames.Indices {
		h := BuildHistogram(video.Frames[idx], a.cfg.BinSize, a.cfg.NoiseThreshold)
		if i == 0 {
			first = h
		}
		last = h
		if exp != nil {
			if err := exp.IntensityFrame(idx, h.Values, h.Probabilities); err != nil {
				return models.IntensityResults{}, fmt.Errorf("export frame %d: %w", idx, err)
			}
		}

		m := ComputeMoments(h)
		kurtosis = append(kurtosis, m.Kurtosis)
		medianSkew = append(medianSkew, m.MedianSkewness)
		modeSkew = append(modeSkew, m.ModeSkewness)
		if !h.Saturated(m) {
			allSaturated = false
		}
	}

	if rnd != nil {
		lastIdx := frames.Indices[n-1]
		err := rnd.IntensityComparison(
			models.Series{Label: fmt.Sprintf("Frame %d Intensity Distribution", frames.Indices[0]), X: first.Values, Y: first.Probabilities},
			models.Series{Label: fmt.Sprintf("Frame %d Intensity Distribution", lastIdx), X: last.Values, Y: last.Probabilities},
		)
		if err != nil {
			a.logger.Warn("render intensity comparison", "error", err)
		}
	}

	flag := 0
	if allSaturated {
		flag = saturationFlag
	}

	evalPercent := a.cfg.PercentageFramesEvaluated
	return models.IntensityResults{
		MaxKurtosis:    AverageLargest(kurtosis, topFraction),
		MaxMedianSkew:  AverageLargest(medianSkew, topFraction),
		MaxModeSkew:    AverageLargest(modeSkew, topFraction),
		KurtosisDiff:   WindowDiff(kurtosis, evalPercent),
		MedianSkewDiff: WindowDiff(medianSkew, evalPercent),
		ModeSkewDiff:   WindowDiff(modeSkew, evalPercent),
		Flag:           flag,
	}, nil
}
