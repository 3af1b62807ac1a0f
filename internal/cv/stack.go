package cv

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/bdougie/barcode/internal/models"
)

// StackDecoder reads multipage TIFF stacks
type StackDecoder struct{}

// DecodeStack returns the frames of every channel, indexed [channel][frame].
// Pages keep their native bit depth. Colour pages are returned in RGB order.
func (StackDecoder) DecodeStack(path string) ([][]models.Frame, error) {
	pages := gocv.IMReadMulti(path, gocv.IMReadAnyDepth|gocv.IMReadAnyColor)
	defer func() {
		for i := range pages {
			pages[i].Close()
		}
	}()
	if len(pages) == 0 {
		return nil, fmt.Errorf("no readable pages in %s", path)
	}

	channels := pages[0].Channels()
	rows, cols := pages[0].Rows(), pages[0].Cols()
	out := make([][]models.Frame, channels)

	for i, page := range pages {
		if page.Channels() != channels || page.Rows() != rows || page.Cols() != cols {
			return nil, fmt.Errorf("page %d is %dx%dx%d, want %dx%dx%d",
				i, page.Rows(), page.Cols(), page.Channels(), rows, cols, channels)
		}
		planes := gocv.Split(page)
		for ch, plane := range planes {
			out[ch] = append(out[ch], matToFrame(plane))
			plane.Close()
		}
	}

	// OpenCV decodes colour as BGR(A)
	if channels >= 3 {
		out[0], out[2] = out[2], out[0]
	}
	return out, nil
}

func matToFrame(m gocv.Mat) models.Frame {
	f64 := gocv.NewMat()
	defer f64.Close()
	m.ConvertTo(&f64, gocv.MatTypeCV64F)

	f := models.NewFrame(m.Rows(), m.Cols())
	for r := 0; r < f.Rows; r++ {
		for c := 0; c < f.Cols; c++ {
			f.Set(r, c, f64.GetDoubleAt(r, c))
		}
	}
	return f
}
