// Package cv adapts OpenCV (through gocv) to the analyzer ports: dense
// optical flow, connected-component labeling, image stack decoding and
// figure rendering.
package cv

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"

	"github.com/bdougie/barcode/internal/models"
)

// Farneback estimates dense flow with OpenCV's Farneback algorithm
type Farneback struct{}

// Flow scales both frames jointly to 8 bits so their relative brightness is
// preserved, then returns the per-pixel (u, v) displacement in pixels.
func (Farneback) Flow(prev, next models.Frame, winSize int) (models.FlowField, error) {
	if prev.Rows != next.Rows || prev.Cols != next.Cols {
		return models.FlowField{}, fmt.Errorf("flow frames differ in shape: %dx%d vs %dx%d", prev.Rows, prev.Cols, next.Rows, next.Cols)
	}

	lo, hi := bounds(prev, next)
	prevImg := toGray8(prev, lo, hi)
	defer prevImg.Close()
	nextImg := toGray8(next, lo, hi)
	defer nextImg.Close()

	flow := gocv.NewMat()
	defer flow.Close()
	// pyr_scale=0.5, levels=3, iterations=3, poly_n=5, poly_sigma=1.2, flags=0
	gocv.CalcOpticalFlowFarneback(prevImg, nextImg, &flow, 0.5, 3, winSize, 3, 5, 1.2, 0)
	if flow.Empty() || flow.Type() != gocv.MatTypeCV32FC2 {
		return models.FlowField{}, fmt.Errorf("unexpected flow matrix type %v", flow.Type())
	}

	field := models.FlowField{U: models.NewFrame(prev.Rows, prev.Cols), V: models.NewFrame(prev.Rows, prev.Cols)}
	for r := 0; r < prev.Rows; r++ {
		for c := 0; c < prev.Cols; c++ {
			vec := flow.GetVecfAt(r, c)
			field.U.Set(r, c, float64(vec[0]))
			field.V.Set(r, c, float64(vec[1]))
		}
	}
	return field, nil
}

// Labeler labels mask foreground with 8-connectivity
type Labeler struct{}

func (Labeler) Label(mask models.Mask) (models.Labels, error) {
	src := gocv.NewMatWithSize(mask.Rows, mask.Cols, gocv.MatTypeCV8U)
	defer src.Close()
	for r := 0; r < mask.Rows; r++ {
		for c := 0; c < mask.Cols; c++ {
			var v uint8
			if mask.At(r, c) {
				v = 255
			}
			src.SetUCharAt(r, c, v)
		}
	}

	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(src, &labels, &stats, &centroids)
	if n < 1 {
		return models.Labels{}, fmt.Errorf("connected components returned %d labels", n)
	}

	out := models.Labels{
		Rows:  mask.Rows,
		Cols:  mask.Cols,
		Grid:  make([]int, mask.Len()),
		Areas: make(map[int]int, n-1),
	}
	for r := 0; r < mask.Rows; r++ {
		for c := 0; c < mask.Cols; c++ {
			out.Grid[r*mask.Cols+c] = int(labels.GetIntAt(r, c))
		}
	}
	for l := 1; l < n; l++ {
		out.Areas[l] = int(stats.GetIntAt(l, int(gocv.CC_STAT_AREA)))
	}
	return out, nil
}

func bounds(frames ...models.Frame) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, f := range frames {
		for _, p := range f.Pix {
			lo = math.Min(lo, p)
			hi = math.Max(hi, p)
		}
	}
	return lo, hi
}

// toGray8 maps [lo, hi] onto [0, 255]. A flat range maps to 0.
func toGray8(f models.Frame, lo, hi float64) gocv.Mat {
	img := gocv.NewMatWithSize(f.Rows, f.Cols, gocv.MatTypeCV8U)
	span := hi - lo
	for r := 0; r < f.Rows; r++ {
		for c := 0; c < f.Cols; c++ {
			var v float64
			if span > 0 {
				v = (f.At(r, c) - lo) / span * 255
			}
			img.SetUCharAt(r, c, uint8(math.Round(v)))
		}
	}
	return img
}
