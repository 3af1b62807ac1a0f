package analyzer

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/bdougie/barcode/internal/config"
	"github.com/bdougie/barcode/internal/models"
)

// BlockMean downsamples by n with a true block average. Remainder rows and
// columns are dropped.
func BlockMean(frame models.Frame, n int) models.Frame {
	out := models.NewFrame(frame.Rows/n, frame.Cols/n)
	area := float64(n * n)
	for r := 0; r < out.Rows; r++ {
		for c := 0; c < out.Cols; c++ {
			var sum float64
			for dr := 0; dr < n; dr++ {
				for dc := 0; dc < n; dc++ {
					sum += frame.At(r*n+dr, c*n+dc)
				}
			}
			out.Set(r, c, sum/area)
		}
	}
	return out
}

// PhysicalVelocity flips both displacement channels vertically into
// Cartesian orientation, negates the vertical channel and converts pixels
// per frame interval into physical units per second.
func PhysicalVelocity(u, v models.Frame, frameGap int, exposureTime, unitsPerPixel float64) (models.Frame, models.Frame) {
	scale := 1 / exposureTime * 1 / float64(frameGap) * unitsPerPixel
	outU := models.NewFrame(u.Rows, u.Cols)
	outV := models.NewFrame(v.Rows, v.Cols)
	for r := 0; r < u.Rows; r++ {
		src := u.Rows - 1 - r
		for c := 0; c < u.Cols; c++ {
			outU.Set(r, c, u.At(src, c)*scale)
			outV.Set(r, c, -1*v.At(src, c)*scale)
		}
	}
	return outU, outV
}

// PairStats is the spatial reduction of one flow pair
type PairStats struct {
	// Vx and Vy are the means of the per-cell unit direction vectors.
	Vx    float64
	Vy    float64
	Speed float64
}

// ReducePair computes per-cell speed and direction and averages them. The
// returned speed grid is only used for rendering.
func ReducePair(u, v models.Frame) (PairStats, models.Frame) {
	speed := models.NewFrame(u.Rows, u.Cols)
	n := u.Len()
	if n == 0 {
		nan := math.NaN()
		return PairStats{Vx: nan, Vy: nan, Speed: nan}, speed
	}

	var sumCos, sumSin, sumSpeed float64
	for i := range u.Pix {
		du, dv := u.Pix[i], v.Pix[i]
		s := math.Sqrt(du*du + dv*dv)
		dir := math.Atan2(dv, du)
		speed.Pix[i] = s
		sumCos += math.Cos(dir)
		sumSin += math.Sin(dir)
		sumSpeed += s
	}
	return PairStats{
		Vx:    sumCos / float64(n),
		Vy:    sumSin / float64(n),
		Speed: sumSpeed / float64(n),
	}, speed
}

// CircularSpread is sqrt(-2 ln R) for a resultant length R. It is NaN for
// R = 0 (or NaN); R above 1 from rounding is treated as 1.
func CircularSpread(resultant float64) float64 {
	if math.IsNaN(resultant) || resultant <= 0 {
		return math.NaN()
	}
	if resultant > 1 {
		resultant = 1
	}
	return math.Sqrt(-2 * math.Log(resultant))
}

type OpticalFlowAnalyzer struct {
	cfg       config.OpticalFlowConfig
	estimator FlowEstimator
	logger    *slog.Logger
}

func NewOpticalFlowAnalyzer(cfg config.OpticalFlowConfig, estimator FlowEstimator, logger *slog.Logger) *OpticalFlowAnalyzer {
	return &OpticalFlowAnalyzer{cfg: cfg, estimator: estimator, logger: logger}
}

func (a *OpticalFlowAnalyzer) Name() string { return "Optical Flow" }

// Analyze estimates flow between consecutive sampled frames and reduces it
// to mean speed, speed change, mean direction and directional spread.
func (a *OpticalFlowAnalyzer) Analyze(video *models.Video, exp Exporter, rnd Renderer) (models.FlowResults, error) {
	a.logger.Debug("beginning optical flow analysis", "file", video.Path, "channel", video.Channel)

	frames, err := SampleFrames(video.Len(), a.cfg.FrameStep, a.logger)
	if err != nil {
		return models.FlowResults{}, err
	}
	pairs := frames.Pairs()
	if len(pairs) == 0 {
		return models.FlowResults{}, ErrNoPairs
	}
	mid := pairs[(len(pairs)-1)/2]
	render := map[[2]int]struct{}{pairs[0]: {}, mid: {}, pairs[len(pairs)-1]: {}}

	stats := make([]PairStats, 0, len(pairs))
	for _, pair := range pairs {
		start, stop := pair[0], pair[1]
		field, err := a.estimator.Flow(video.Frames[start], video.Frames[stop], a.cfg.WinSize)
		if err != nil {
			return models.FlowResults{}, fmt.Errorf("flow %d-%d: %w", start, stop, err)
		}

		u, v := PhysicalVelocity(
			BlockMean(field.U, a.cfg.Downsample),
			BlockMean(field.V, a.cfg.Downsample),
			stop-start, a.cfg.ExposureTime, a.cfg.UmPixelRatio,
		)

		if exp != nil {
			if err := exp.FlowPair(start, stop, u, v); err != nil {
				return models.FlowResults{}, fmt.Errorf("export flow %d-%d: %w", start, stop, err)
			}
		}

		pairStats, speed := ReducePair(u, v)
		if rnd != nil {
			if _, ok := render[pair]; ok {
				if err := rnd.FlowField(start, stop, speed); err != nil {
					a.logger.Warn("render flow field", "start", start, "stop", stop, "error", err)
				}
			}
		}
		stats = append(stats, pairStats)
	}

	return summarizeFlow(stats, a.cfg.PercentageFramesEvaluated), nil
}

func summarizeFlow(stats []PairStats, evalPercent float64) models.FlowResults {
	vx := make([]float64, len(stats))
	vy := make([]float64, len(stats))
	speeds := make([]float64, len(stats))
	spreads := make([]float64, len(stats))
	for i, s := range stats {
		vx[i], vy[i], speeds[i] = s.Vx, s.Vy, s.Speed
		spreads[i] = CircularSpread(math.Sqrt(s.Vx*s.Vx + s.Vy*s.Vy))
	}

	return models.FlowResults{
		MeanSpeed:      NanMean(speeds),
		DeltaSpeed:     WindowDiff(speeds, evalPercent),
		MeanTheta:      math.Atan2(NanMean(vy), NanMean(vx)),
		MeanSigmaTheta: NanMean(spreads),
	}
}
