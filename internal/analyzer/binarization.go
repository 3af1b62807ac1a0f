package analyzer

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/bdougie/barcode/internal/config"
	"github.com/bdougie/barcode/internal/models"
)

// binningFactor is the block size of the any-foreground downsample
const binningFactor = 2

// Binarize thresholds a frame at mean*(1+offset); pixels equal to the
// threshold are foreground.
func Binarize(frame models.Frame, offset float64) models.Mask {
	var sum float64
	for _, p := range frame.Pix {
		sum += p
	}
	threshold := sum / float64(len(frame.Pix)) * (1 + offset)

	mask := models.NewMask(frame.Rows, frame.Cols)
	for i, p := range frame.Pix {
		mask.Bits[i] = p >= threshold
	}
	return mask
}

// BlockMask downsamples by n: an output cell is foreground when any pixel of
// its n×n block is. Remainder rows and columns are dropped.
func BlockMask(mask models.Mask, n int) models.Mask {
	out := models.NewMask(mask.Rows/n, mask.Cols/n)
	for r := 0; r < out.Rows; r++ {
		for c := 0; c < out.Cols; c++ {
			hit := false
			for dr := 0; dr < n && !hit; dr++ {
				for dc := 0; dc < n; dc++ {
					if mask.At(r*n+dr, c*n+dc) {
						hit = true
						break
					}
				}
			}
			out.Set(r, c, hit)
		}
	}
	return out
}

// LargestRegions returns the k largest 8-connected region areas, descending.
// With findVoid the background is measured instead of the foreground.
// When fewer than k regions exist the list is padded with zero areas; when
// no region exists at all every slot holds the full cell count.
func LargestRegions(labeler Labeler, mask models.Mask, findVoid bool, k int) ([]int, error) {
	eval := mask
	if findVoid {
		eval = mask.Invert()
	}

	labels, err := labeler.Label(eval)
	if err != nil {
		return nil, fmt.Errorf("label regions: %w", err)
	}

	areas := make([]int, 0, len(labels.Areas))
	for label, area := range labels.Areas {
		if label == 0 || area == 0 {
			continue
		}
		areas = append(areas, area)
	}

	out := make([]int, k)
	if len(areas) == 0 {
		for i := range out {
			out[i] = mask.Len()
		}
		return out, nil
	}

	sort.Sort(sort.Reverse(sort.IntSlice(areas)))
	copy(out, areas)
	return out, nil
}

// Spans reports whether one foreground label touches both the first and last
// row, or both the first and last column.
func Spans(labels models.Labels) bool {
	if labels.Rows == 0 || labels.Cols == 0 {
		return false
	}

	touches := func(first, last func(i int) int, n int) bool {
		seen := make(map[int]struct{})
		for i := 0; i < n; i++ {
			if l := first(i); l != 0 {
				seen[l] = struct{}{}
			}
		}
		for i := 0; i < n; i++ {
			if _, ok := seen[last(i)]; ok {
				return true
			}
		}
		return false
	}

	topBottom := touches(
		func(c int) int { return labels.At(0, c) },
		func(c int) int { return labels.At(labels.Rows-1, c) },
		labels.Cols,
	)
	if topBottom {
		return true
	}
	return touches(
		func(r int) int { return labels.At(r, 0) },
		func(r int) int { return labels.At(r, labels.Cols-1) },
		labels.Rows,
	)
}

type BinarizationAnalyzer struct {
	cfg     config.BinarizationConfig
	labeler Labeler
	logger  *slog.Logger
}

func NewBinarizationAnalyzer(cfg config.BinarizationConfig, labeler Labeler, logger *slog.Logger) *BinarizationAnalyzer {
	return &BinarizationAnalyzer{cfg: cfg, labeler: labeler, logger: logger}
}

func (a *BinarizationAnalyzer) Name() string { return "Binarization" }

// Analyze tracks the largest void, the two largest islands and spanning
// connectivity over the sampled frames. exp and rnd may be nil.
func (a *BinarizationAnalyzer) Analyze(video *models.Video, exp Exporter, rnd Renderer) (models.BinarizationResults, error) {
	a.logger.Debug("beginning binarization analysis", "file", video.Path, "channel", video.Channel)

	frames, err := SampleFrames(video.Len(), a.cfg.FrameStep, a.logger)
	if err != nil {
		return models.BinarizationResults{}, err
	}
	save := selectedSet(frames.Indices[0], frames.Middle(), frames.Indices[len(frames.Indices)-1])

	n := len(frames.Indices)
	voids := make([]float64, 0, n)
	islands := make([]float64, 0, n)
	islands2 := make([]float64, 0, n)
	spanning := make([]float64, 0, n)
	fov := 0

	for _, idx := range frames.Indices {
		mask := BlockMask(Binarize(video.Frames[idx], a.cfg.ThresholdOffset), binningFactor)
		fov = mask.Len()

		if rnd != nil {
			if _, ok := save[idx]; ok {
				if err := rnd.BinarizationFrame(idx, video.Frames[idx], mask); err != nil {
					a.logger.Warn("render binarization frame", "frame", idx, "error", err)
				}
			}
		}
		if exp != nil {
			if err := exp.BinarizationFrame(idx, mask); err != nil {
				return models.BinarizationResults{}, fmt.Errorf("export frame %d: %w", idx, err)
			}
		}

		largestIslands, err := LargestRegions(a.labeler, mask, false, 2)
		if err != nil {
			return models.BinarizationResults{}, fmt.Errorf("frame %d islands: %w", idx, err)
		}
		largestVoids, err := LargestRegions(a.labeler, mask, true, 1)
		if err != nil {
			return models.BinarizationResults{}, fmt.Errorf("frame %d voids: %w", idx, err)
		}
		labels, err := a.labeler.Label(mask)
		if err != nil {
			return models.BinarizationResults{}, fmt.Errorf("frame %d spanning: %w", idx, err)
		}

		islands = append(islands, float64(largestIslands[0]))
		islands2 = append(islands2, float64(largestIslands[1]))
		voids = append(voids, float64(largestVoids[0]))
		if Spans(labels) {
			spanning = append(spanning, 1)
		} else {
			spanning = append(spanning, 0)
		}
	}

	if rnd != nil {
		x := make([]float64, n)
		for i, idx := range frames.Indices {
			x[i] = float64(idx)
		}
		evalPercent := a.cfg.PercentageFramesEvaluated
		void := models.Series{Label: "Original Void Size Proportion", X: x, Y: percentOf(voids, Baseline(voids, evalPercent))}
		island := models.Series{Label: "Original Island Size Proportion", X: x, Y: percentOf(islands, Baseline(islands, evalPercent))}
		if err := rnd.AreaTrend(void, island); err != nil {
			a.logger.Warn("render area trend", "error", err)
		}
	}

	return summarizeBinarization(voids, islands, islands2, spanning, float64(fov), a.cfg.PercentageFramesEvaluated), nil
}

func percentOf(series []float64, base float64) []float64 {
	out := make([]float64, len(series))
	for i, v := range series {
		out[i] = 100 * v / base
	}
	return out
}

func summarizeBinarization(voids, islands, islands2, spanning []float64, fov, evalPercent float64) models.BinarizationResults {
	voidInitial := Baseline(voids, evalPercent)
	islandInitial := Baseline(islands, evalPercent)
	islandInitial2 := Baseline(islands2, evalPercent)

	connected := 0
	for _, s := range spanning {
		if s == 1 {
			connected++
		}
	}

	return models.BinarizationResults{
		Connectivity:           float64(connected) / float64(len(spanning)),
		MaxIslandSize:          AverageLargest(islands, topFraction) / fov,
		MaxVoidSize:            AverageLargest(voids, topFraction) / fov,
		MaxIslandPercentChange: Final(islands, evalPercent) / islandInitial,
		MaxVoidPercentChange:   Final(voids, evalPercent) / voidInitial,
		IslandSizeInitial:      islandInitial / fov,
		IslandSizeInitial2:     islandInitial2 / fov,
		VoidSizeInitial:        voidInitial / fov,
	}
}

func selectedSet(indices ...int) map[int]struct{} {
	set := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		set[i] = struct{}{}
	}
	return set
}
