package cv

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/bdougie/barcode/internal/embeddings"
	"github.com/bdougie/barcode/internal/models"
)

func TestLabelerUsesEightConnectivity(t *testing.T) {
	mask := models.NewMask(4, 4)
	// Diagonal neighbours form one region
	mask.Set(0, 0, true)
	mask.Set(1, 1, true)
	// A separate 2-cell region
	mask.Set(3, 2, true)
	mask.Set(3, 3, true)

	labels, err := Labeler{}.Label(mask)
	require.NoError(t, err)
	require.Len(t, labels.Areas, 2)

	assert.Equal(t, labels.At(0, 0), labels.At(1, 1))
	assert.NotEqual(t, labels.At(0, 0), labels.At(3, 3))
	assert.Equal(t, 0, labels.At(2, 2))

	var areas []int
	for _, a := range labels.Areas {
		areas = append(areas, a)
	}
	sort.Ints(areas)
	assert.Equal(t, []int{2, 2}, areas)
}

func TestLabelerEmptyMask(t *testing.T) {
	labels, err := Labeler{}.Label(models.NewMask(3, 3))
	require.NoError(t, err)
	assert.Empty(t, labels.Areas)
}

func TestFarnebackShapeMismatch(t *testing.T) {
	_, err := Farneback{}.Flow(models.NewFrame(8, 8), models.NewFrame(8, 4), 15)
	assert.Error(t, err)
}

func TestFarnebackStaticScene(t *testing.T) {
	frame := models.NewFrame(32, 32)
	for r := 0; r < 32; r++ {
		for c := 0; c < 32; c++ {
			frame.Set(r, c, float64((r*7+c*3)%50))
		}
	}
	field, err := Farneback{}.Flow(frame, frame, 15)
	require.NoError(t, err)
	require.Equal(t, frame.Len(), field.U.Len())
	for i := range field.U.Pix {
		assert.InDelta(t, 0, field.U.Pix[i], 1e-3)
		assert.InDelta(t, 0, field.V.Pix[i], 1e-3)
	}
}

func TestToGray8FlatRange(t *testing.T) {
	f := models.NewFrame(2, 2)
	for i := range f.Pix {
		f.Pix[i] = 7
	}
	img := toGray8(f, 7, 7)
	defer img.Close()
	assert.Equal(t, uint8(0), img.GetUCharAt(1, 1))
}

func TestRendererWritesFigures(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(dir)

	frame := models.NewFrame(8, 8)
	frame.Set(3, 3, 10)
	mask := models.NewMask(4, 4)
	mask.Set(1, 1, true)

	require.NoError(t, r.BinarizationFrame(0, frame, mask))
	require.NoError(t, r.FlowField(0, 4, frame))

	for _, name := range []string{"Binarization Frame 0 Comparison.png", "Frame 0 to 4 Flow Field.png"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestRendererSummaryGraphs(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(dir)
	path := filepath.Join(dir, "Summary Graphs.png")

	// Nothing drawn, nothing written
	require.NoError(t, r.Close())
	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	x := []float64{0, 10, 20}
	require.NoError(t, r.AreaTrend(
		models.Series{Label: "void", X: x, Y: []float64{100, 120, 150}},
		models.Series{Label: "island", X: x, Y: []float64{100, 80, math.NaN()}},
	))
	require.NoError(t, r.IntensityComparison(
		models.Series{Label: "first", X: []float64{1, 2}, Y: []float64{0.25, 0.75}},
		models.Series{Label: "last", X: []float64{1, 2}, Y: []float64{0.5, 0.5}},
	))
	require.NoError(t, r.Close())

	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	require.False(t, img.Empty())
	assert.Equal(t, plotSize, img.Rows())
	assert.Equal(t, 2*plotSize, img.Cols(), "area trend beside the intensity comparison")
}

func TestWriteBarcode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cells Summary Barcode.png")
	rows := make([][]float64, 2)
	for i := range rows {
		rows[i] = make([]float64, embeddings.Dimensions+1)
		for j := range rows[i] {
			rows[i][j] = 0.5
		}
	}
	rows[1][13] = math.NaN() // mean speed not computed

	require.NoError(t, WriteBarcode(path, rows))

	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	require.False(t, img.Empty())
	assert.Equal(t, 2*barcodeRowHeight, img.Rows())
	assert.Equal(t, embeddings.Dimensions*barcodeCellWidth, img.Cols())

	missing := img.GetVecbAt(barcodeRowHeight+1, 13*barcodeCellWidth+1)
	assert.Equal(t, []uint8{0, 0, 0}, []uint8{missing[0], missing[1], missing[2]})
	present := img.GetVecbAt(1, 1)
	assert.NotEqual(t, []uint8{0, 0, 0}, []uint8{present[0], present[1], present[2]})

	assert.Error(t, WriteBarcode(path, nil))
}
