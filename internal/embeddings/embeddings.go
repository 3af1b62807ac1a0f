package embeddings

import (
	"math"

	"github.com/bdougie/barcode/internal/models"
)

// Dimensions is the length of a barcode vector: every summary metric from
// Connectivity to Flow Directional Spread.
const Dimensions = 17

// Limit is the [Min, Max] range a metric is mapped onto [0, 1] from
type Limit struct {
	Min float64
	Max float64
}

// Limits are the static normalization ranges in summary column order.
// Area fractions and connectivity are bounded by definition; change ratios
// and moments are clamped to ranges wide enough for typical samples.
var Limits = [Dimensions]Limit{
	{0, 1},              // Connectivity
	{0, 1},              // Maximum Island Area
	{0, 1},              // Maximum Void Area
	{0, 2},              // Island Area Change
	{0, 2},              // Void Area Change
	{0, 1},              // Initial Maximum Island Area
	{0, 1},              // Initial 2nd Maximum Island Area
	{-3, 20},            // Maximum Kurtosis
	{-3, 3},             // Maximum Median Skewness
	{-3, 3},             // Maximum Mode Skewness
	{-10, 10},           // Kurtosis Change
	{-3, 3},             // Median Skewness Change
	{-3, 3},             // Mode Skewness Change
	{0, 10},             // Mean Speed
	{-5, 5},             // Speed Change
	{-math.Pi, math.Pi}, // Mean Flow Direction
	{0, math.Pi},        // Flow Directional Spread
}

// Vectorize maps a channel result onto [0,1]^Dimensions. Metrics that were
// not computed map to 0.
func Vectorize(result *models.ChannelResult) []float32 {
	return VectorizeMetrics(result.Metrics())
}

// VectorizeMetrics maps summary metrics, in column order from Connectivity,
// onto [0,1]^Dimensions. Missing trailing metrics map to 0.
func VectorizeMetrics(metrics []float64) []float32 {
	vec := make([]float32, Dimensions)
	for i := 0; i < Dimensions && i < len(metrics); i++ {
		vec[i] = float32(scale(metrics[i], Limits[i]))
	}
	return vec
}

func scale(v float64, l Limit) float64 {
	s := Normalize(v, l)
	if math.IsNaN(s) {
		return 0
	}
	return s
}

// Normalize maps v from l onto [0,1], clamping outliers. NaN stays NaN and
// an empty range maps everything to 0.
func Normalize(v float64, l Limit) float64 {
	if math.IsNaN(v) {
		return v
	}
	if !(l.Max > l.Min) {
		return 0
	}
	s := (v - l.Min) / (l.Max - l.Min)
	return math.Max(0, math.Min(1, s))
}

// staticDims keep their Limits whatever the data: area fractions,
// connectivity and the two angles.
var staticDims = map[int]bool{0: true, 1: true, 2: true, 5: true, 6: true, 15: true, 16: true}

// pivots are values a data-driven range always includes, so "no change"
// sits at the same colour in every figure.
var pivots = map[int]float64{3: 1, 4: 1, 7: 0, 8: 0, 9: 0, 10: 0, 11: 0, 12: 0, 14: 0}

// FigureLimits are the colour ranges of a barcode figure over rows of
// summary metrics. Static metrics use Limits. Metrics with a pivot span
// the data and the pivot; the rest span [0, data max]. A column with no
// finite value falls back to Limits.
func FigureLimits(rows [][]float64) [Dimensions]Limit {
	limits := Limits
	for i := 0; i < Dimensions; i++ {
		if staticDims[i] {
			continue
		}
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, row := range rows {
			if i >= len(row) || math.IsNaN(row[i]) || math.IsInf(row[i], 0) {
				continue
			}
			lo = math.Min(lo, row[i])
			hi = math.Max(hi, row[i])
		}
		if lo > hi {
			continue
		}
		if p, ok := pivots[i]; ok {
			limits[i] = Limit{math.Min(lo, p), math.Max(hi, p)}
		} else {
			limits[i] = Limit{0, hi}
		}
	}
	return limits
}
