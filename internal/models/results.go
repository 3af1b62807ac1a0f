package models

import (
	"math"
	"strconv"
	"time"
)

// Status tags the outcome of one analyzer on one channel
type Status int

const (
	// StatusSkipped means the analyzer was disabled by configuration
	StatusSkipped Status = iota
	// StatusOK means metrics were computed
	StatusOK
	// StatusNoData means the channel was blank and nothing was computed
	StatusNoData
	// StatusFailed means the analyzer returned an error or panicked
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusOK:
		return "ok"
	case StatusNoData:
		return "no_data"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the tagged result of one analyzer: Metrics is only meaningful
// when Status is StatusOK.
type Outcome[T any] struct {
	Status  Status
	Metrics T
	Err     error
}

// Ok wraps computed metrics
func Ok[T any](m T) Outcome[T] {
	return Outcome[T]{Status: StatusOK, Metrics: m}
}

// Failed wraps an analyzer error
func Failed[T any](err error) Outcome[T] {
	return Outcome[T]{Status: StatusFailed, Err: err}
}

// Computed reports whether metrics are available
func (o Outcome[T]) Computed() bool {
	return o.Status == StatusOK
}

// BinarizationResults are the connectivity and void/island metrics
type BinarizationResults struct {
	Connectivity           float64 `json:"connectivity"`
	MaxIslandSize          float64 `json:"max_island_size"`
	MaxVoidSize            float64 `json:"max_void_size"`
	MaxIslandPercentChange float64 `json:"max_island_percent_change"`
	MaxVoidPercentChange   float64 `json:"max_void_percent_change"`
	IslandSizeInitial      float64 `json:"island_size_initial"`
	IslandSizeInitial2     float64 `json:"island_size_initial2"`
	VoidSizeInitial        float64 `json:"void_size_initial"`
}

// FlowResults are the optical flow metrics
type FlowResults struct {
	MeanSpeed      float64 `json:"mean_speed"`
	DeltaSpeed     float64 `json:"delta_speed"`
	MeanTheta      float64 `json:"mean_theta"`
	MeanSigmaTheta float64 `json:"mean_sigma_theta"`
}

// IntensityResults are the intensity distribution metrics
type IntensityResults struct {
	MaxKurtosis    float64 `json:"max_kurtosis"`
	MaxMedianSkew  float64 `json:"max_median_skew"`
	MaxModeSkew    float64 `json:"max_mode_skew"`
	KurtosisDiff   float64 `json:"kurtosis_diff"`
	MedianSkewDiff float64 `json:"median_skew_diff"`
	ModeSkewDiff   float64 `json:"mode_skew_diff"`
	// Flag is 2 when every sampled frame is saturated, else 0.
	Flag int `json:"flag"`
}

// ChannelResult is the final record for one channel of one file
type ChannelResult struct {
	RunID        string
	FilePath     string
	Channel      int
	Dim          bool
	Binarization Outcome[BinarizationResults]
	Flow         Outcome[FlowResults]
	Intensity    Outcome[IntensityResults]
	CreatedAt    time.Time
}

// Flags combines the saturation flag (2) with the dim-channel flag (1).
// It is NaN when the intensity analysis did not produce a flag.
func (r *ChannelResult) Flags() float64 {
	if !r.Intensity.Computed() {
		return math.NaN()
	}
	flags := float64(r.Intensity.Metrics.Flag)
	if r.Dim {
		flags++
	}
	return flags
}

// SummaryHeaders is the column order of the summary CSV
var SummaryHeaders = []string{
	"Filepath", "Channel", "Flags", "Connectivity", "Maximum Island Area", "Maximum Void Area",
	"Island Area Change", "Void Area Change", "Initial Maximum Island Area",
	"Initial 2nd Maximum Island Area", "Maximum Kurtosis", "Maximum Median Skewness",
	"Maximum Mode Skewness", "Kurtosis Change", "Median Skewness Change",
	"Mode Skewness Change", "Mean Speed", "Speed Change",
	"Mean Flow Direction", "Flow Directional Spread", "Initial Void Area",
}

// Metrics returns the numeric columns from Connectivity through
// Initial Void Area, NaN where an analyzer did not compute.
func (r *ChannelResult) Metrics() []float64 {
	nan := math.NaN()
	out := make([]float64, 0, len(SummaryHeaders)-3)

	if r.Binarization.Computed() {
		b := r.Binarization.Metrics
		out = append(out, b.Connectivity, b.MaxIslandSize, b.MaxVoidSize,
			b.MaxIslandPercentChange, b.MaxVoidPercentChange, b.IslandSizeInitial, b.IslandSizeInitial2)
	} else {
		out = append(out, nan, nan, nan, nan, nan, nan, nan)
	}

	if r.Intensity.Computed() {
		i := r.Intensity.Metrics
		out = append(out, i.MaxKurtosis, i.MaxMedianSkew, i.MaxModeSkew,
			i.KurtosisDiff, i.MedianSkewDiff, i.ModeSkewDiff)
	} else {
		out = append(out, nan, nan, nan, nan, nan, nan)
	}

	if r.Flow.Computed() {
		f := r.Flow.Metrics
		out = append(out, f.MeanSpeed, f.DeltaSpeed, f.MeanTheta, f.MeanSigmaTheta)
	} else {
		out = append(out, nan, nan, nan, nan)
	}

	if r.Binarization.Computed() {
		out = append(out, r.Binarization.Metrics.VoidSizeInitial)
	} else {
		out = append(out, nan)
	}
	return out
}

// Row renders the result as one summary CSV row
func (r *ChannelResult) Row() []string {
	row := []string{r.FilePath, strconv.Itoa(r.Channel), FormatFloat(r.Flags())}
	for _, v := range r.Metrics() {
		row = append(row, FormatFloat(v))
	}
	return row
}

// FormatFloat writes NaN as an empty cell
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseFloat reads an empty cell back as NaN
func ParseFloat(s string) (float64, error) {
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// FrameSearchResult is a channel returned by a barcode similarity search
type FrameSearchResult struct {
	FilePath   string
	Channel    int
	Similarity float64
}
