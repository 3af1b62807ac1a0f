package analyzer

import (
	"math"
	"sort"

	"github.com/bdougie/barcode/internal/models"
)

// Histogram pairs strictly increasing bin values with probabilities
type Histogram struct {
	Values        []float64
	Probabilities []float64
}

// Len is the number of retained bins
func (h Histogram) Len() int {
	return len(h.Values)
}

// BuildHistogram bins a frame and returns its noise-filtered distribution.
// With binCount 1 every unique intensity is its own bin; otherwise the range
// is split into binCount equal-width bins valued at their midpoints. Bins
// with probability <= noiseThreshold are dropped and the rest renormalized.
func BuildHistogram(frame models.Frame, binCount int, noiseThreshold float64) Histogram {
	var values, counts []float64
	if binCount == 1 {
		values, counts = uniqueCounts(frame.Pix)
	} else {
		values, counts = equalWidthCounts(frame.Pix, binCount)
	}

	probs := normalize(counts)
	h := Histogram{}
	for i, p := range probs {
		if p > noiseThreshold {
			h.Values = append(h.Values, values[i])
			h.Probabilities = append(h.Probabilities, p)
		}
	}
	h.Probabilities = normalize(h.Probabilities)
	return h
}

func normalize(counts []float64) []float64 {
	var total float64
	for _, c := range counts {
		total += c
	}
	out := make([]float64, len(counts))
	for i, c := range counts {
		out[i] = c / total
	}
	return out
}

func uniqueCounts(pix []float64) ([]float64, []float64) {
	sorted := append([]float64(nil), pix...)
	sort.Float64s(sorted)

	var values, counts []float64
	for i, p := range sorted {
		if i > 0 && p == sorted[i-1] {
			counts[len(counts)-1]++
			continue
		}
		values = append(values, p)
		counts = append(counts, 1)
	}
	return values, counts
}

// equalWidthCounts mirrors numpy's uniform binning: the last bin is closed,
// a constant frame gets the range [v-0.5, v+0.5], and float rounding of the
// computed index is corrected against the bin edges.
func equalWidthCounts(pix []float64, bins int) ([]float64, []float64) {
	if len(pix) == 0 {
		return nil, nil
	}
	lo, hi := pix[0], pix[0]
	for _, p := range pix {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}

	edges := make([]float64, bins+1)
	step := (hi - lo) / float64(bins)
	for i := range edges {
		edges[i] = lo + float64(i)*step
	}
	edges[bins] = hi

	counts := make([]float64, bins)
	norm := float64(bins) / (hi - lo)
	for _, p := range pix {
		idx := int((p - lo) * norm)
		if idx >= bins {
			idx = bins - 1
		}
		if idx > 0 && p < edges[idx] {
			idx--
		} else if idx < bins-1 && p >= edges[idx+1] {
			idx++
		}
		counts[idx]++
	}

	half := (edges[1] - edges[0]) / 2
	values := make([]float64, bins)
	for i := range values {
		values[i] = edges[i] + half
	}
	return values, counts
}

// Moments are the weighted statistics of a Histogram
type Moments struct {
	Mean           float64
	Stdev          float64
	Mode           float64
	Median         float64
	Kurtosis       float64
	ModeSkewness   float64
	MedianSkewness float64
}

// ComputeMoments evaluates the weighted moments. An empty histogram yields
// NaN everywhere; a zero deviation yields NaN or ±Inf ratios, never a panic.
func ComputeMoments(h Histogram) Moments {
	if h.Len() == 0 {
		nan := math.NaN()
		return Moments{nan, nan, nan, nan, nan, nan, nan}
	}

	var mean float64
	for i, v := range h.Values {
		mean += v * h.Probabilities[i]
	}

	var m2, m4 float64
	for i, v := range h.Values {
		d := v - mean
		m2 += d * d * h.Probabilities[i]
		m4 += d * d * d * d * h.Probabilities[i]
	}
	stdev := math.Sqrt(m2)

	mode := h.Values[0]
	best := h.Probabilities[0]
	for i, p := range h.Probabilities {
		if p > best {
			best = p
			mode = h.Values[i]
		}
	}

	median := math.NaN()
	var cumulative float64
	for i, p := range h.Probabilities {
		cumulative += p
		if cumulative >= 0.5 {
			median = h.Values[i]
			break
		}
	}

	return Moments{
		Mean:           mean,
		Stdev:          stdev,
		Mode:           mode,
		Median:         median,
		Kurtosis:       m4/math.Pow(stdev, 4) - 3,
		ModeSkewness:   (mean - mode) / stdev,
		MedianSkewness: 3 * (mean - median) / stdev,
	}
}

// Saturated reports whether the histogram's mode is its largest bin value
func (h Histogram) Saturated(m Moments) bool {
	if h.Len() == 0 {
		return false
	}
	return m.Mode == h.Values[h.Len()-1]
}
