package analyzer

import (
	"math"
	"sort"
)

// topFraction is the share of a series averaged by AverageLargest
const topFraction = 0.1

// NanMean averages the non-NaN values; it is NaN when none remain
func NanMean(series []float64) float64 {
	var sum float64
	n := 0
	for _, v := range series {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// AverageLargest sorts a copy of series descending and returns the NaN-ignoring
// mean of its first ceil(len*percent) elements. NaNs sort last.
func AverageLargest(series []float64, percent float64) float64 {
	if len(series) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), series...)
	sort.Slice(sorted, func(i, j int) bool {
		if math.IsNaN(sorted[i]) {
			return false
		}
		if math.IsNaN(sorted[j]) {
			return true
		}
		return sorted[i] > sorted[j]
	})
	top := int(math.Ceil(float64(len(sorted)) * percent))
	if top > len(sorted) {
		top = len(sorted)
	}
	return NanMean(sorted[:top])
}

// WindowSize is ceil(n * evalPercent), the length of the baseline and final
// windows of an n-long series.
func WindowSize(n int, evalPercent float64) int {
	w := int(math.Ceil(float64(n) * evalPercent))
	if w > n {
		w = n
	}
	return w
}

// Baseline is the NaN-ignoring mean of the first window
func Baseline(series []float64, evalPercent float64) float64 {
	w := WindowSize(len(series), evalPercent)
	return NanMean(series[:w])
}

// Final is the NaN-ignoring mean of the last window. The baseline and final
// windows overlap when evalPercent > 0.5.
func Final(series []float64, evalPercent float64) float64 {
	w := WindowSize(len(series), evalPercent)
	return NanMean(series[len(series)-w:])
}

// WindowDiff is Final minus Baseline
func WindowDiff(series []float64, evalPercent float64) float64 {
	return Final(series, evalPercent) - Baseline(series, evalPercent)
}
