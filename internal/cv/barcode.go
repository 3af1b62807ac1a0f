package cv

import (
	"errors"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/bdougie/barcode/internal/embeddings"
)

const (
	barcodeCellWidth = 40 // Pixels per metric column
	barcodeRowHeight = 10 // Pixels per channel row

	// colormapPlasma is cv::COLORMAP_PLASMA, which gocv does not name
	colormapPlasma gocv.ColormapTypes = 15
)

// WriteBarcode renders summary metric rows as a PNG barcode: one band per
// channel, one column per metric. Colours come from the plasma map over
// embeddings.FigureLimits; metrics that were not computed are black.
func WriteBarcode(path string, rows [][]float64) error {
	if len(rows) == 0 {
		return errors.New("no channels to draw")
	}
	limits := embeddings.FigureLimits(rows)

	gray := gocv.NewMatWithSize(len(rows), embeddings.Dimensions, gocv.MatTypeCV8U)
	defer gray.Close()
	var missing []image.Point
	for r, row := range rows {
		for c := 0; c < embeddings.Dimensions; c++ {
			v := math.NaN()
			if c < len(row) {
				v = row[c]
			}
			n := embeddings.Normalize(v, limits[c])
			if math.IsNaN(n) {
				missing = append(missing, image.Pt(c, r))
				n = 0
			}
			gray.SetUCharAt(r, c, uint8(math.Round(n*255)))
		}
	}

	colored := gocv.NewMat()
	defer colored.Close()
	gocv.ApplyColorMap(gray, &colored, colormapPlasma)

	scaled := gocv.NewMat()
	defer scaled.Close()
	size := image.Pt(embeddings.Dimensions*barcodeCellWidth, len(rows)*barcodeRowHeight)
	gocv.Resize(colored, &scaled, size, 0, 0, gocv.InterpolationNearestNeighbor)

	for _, p := range missing {
		cell := image.Rect(p.X*barcodeCellWidth, p.Y*barcodeRowHeight,
			(p.X+1)*barcodeCellWidth, (p.Y+1)*barcodeRowHeight)
		gocv.Rectangle(&scaled, cell, black, -1)
	}
	return write(path, scaled)
}
