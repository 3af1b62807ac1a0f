package cv

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"sync"

	"gocv.io/x/gocv"

	"github.com/bdougie/barcode/internal/models"
)

// Renderer writes PNG figures of sampled frames into a channel output
// directory. Summary graphs are held until Close.
type Renderer struct {
	dir string

	mu        sync.Mutex
	area      *gocv.Mat
	intensity *gocv.Mat
}

func NewRenderer(dir string) *Renderer {
	return &Renderer{dir: dir}
}

// BinarizationFrame writes the frame next to its binarized mask
func (r *Renderer) BinarizationFrame(frameIdx int, original models.Frame, mask models.Mask) error {
	lo, hi := bounds(original)
	left := toGray8(original, lo, hi)
	defer left.Close()

	right := gocv.NewMatWithSize(mask.Rows, mask.Cols, gocv.MatTypeCV8U)
	defer right.Close()
	for row := 0; row < mask.Rows; row++ {
		for col := 0; col < mask.Cols; col++ {
			var v uint8
			if mask.At(row, col) {
				v = 255
			}
			right.SetUCharAt(row, col, v)
		}
	}

	// The mask is block-downsampled, bring it back to the frame size
	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(right, &scaled, image.Pt(original.Cols, original.Rows), 0, 0, gocv.InterpolationNearestNeighbor)

	out := gocv.NewMat()
	defer out.Close()
	gocv.Hconcat(left, scaled, &out)

	return write(filepath.Join(r.dir, fmt.Sprintf("Binarization Frame %d Comparison.png", frameIdx)), out)
}

// FlowField writes the speed map of one frame pair with a jet colour map
func (r *Renderer) FlowField(start, stop int, speed models.Frame) error {
	lo, hi := bounds(speed)
	gray := toGray8(speed, lo, hi)
	defer gray.Close()

	colored := gocv.NewMat()
	defer colored.Close()
	gocv.ApplyColorMap(gray, &colored, gocv.ColormapJet)

	return write(filepath.Join(r.dir, fmt.Sprintf("Frame %d to %d Flow Field.png", start, stop)), colored)
}

// AreaTrend draws void and island size relative to their baseline
func (r *Renderer) AreaTrend(void, island models.Series) error {
	img := linePlot{
		xLabel: "Frames",
		yLabel: "Percentage of Original Size",
		series: []models.Series{void, island},
		colors: []color.RGBA{blue, red},
	}.draw()
	r.keep(&r.area, img)
	return nil
}

// IntensityComparison draws the first and last sampled distributions with
// their means
func (r *Renderer) IntensityComparison(first, last models.Series) error {
	img := linePlot{
		xLabel:    "Pixel intensity value",
		yLabel:    "Probability",
		logY:      true,
		markMeans: true,
		series:    []models.Series{first, last},
		colors:    []color.RGBA{darkRed, purple},
	}.draw()
	r.keep(&r.intensity, img)
	return nil
}

func (r *Renderer) keep(slot **gocv.Mat, img gocv.Mat) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if *slot != nil {
		(*slot).Close()
	}
	*slot = &img
}

// Close writes "Summary Graphs.png" from the graphs drawn so far, side by
// side, and releases them. Nothing is written when no graph was drawn.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var graphs []*gocv.Mat
	for _, g := range []*gocv.Mat{r.area, r.intensity} {
		if g != nil {
			graphs = append(graphs, g)
		}
	}
	defer func() {
		for _, g := range graphs {
			g.Close()
		}
		r.area, r.intensity = nil, nil
	}()

	path := filepath.Join(r.dir, "Summary Graphs.png")
	switch len(graphs) {
	case 0:
		return nil
	case 1:
		return write(path, *graphs[0])
	}
	out := gocv.NewMat()
	defer out.Close()
	gocv.Hconcat(*graphs[0], *graphs[1], &out)
	return write(path, out)
}

func write(path string, img gocv.Mat) error {
	if ok := gocv.IMWrite(path, img); !ok {
		return fmt.Errorf("failed to write %s", path)
	}
	return nil
}
