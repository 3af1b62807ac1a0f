package cv

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/bdougie/barcode/internal/models"
)

const plotSize = 500 // Square side of one summary graph, in pixels

var (
	black    = color.RGBA{0, 0, 0, 255}
	dimGray  = color.RGBA{105, 105, 105, 255}
	blue     = color.RGBA{0, 0, 255, 255}
	red      = color.RGBA{255, 0, 0, 255}
	darkRed  = color.RGBA{139, 0, 0, 255}
	purple   = color.RGBA{128, 0, 128, 255}
	plotFont = gocv.FontHersheySimplex
)

// linePlot is a small line chart drawn straight into a Mat
type linePlot struct {
	xLabel    string
	yLabel    string
	logY      bool
	markMeans bool // vertical line at each series' weighted mean
	series    []models.Series
	colors    []color.RGBA
}

func (p linePlot) y(v float64) float64 {
	if p.logY {
		if v <= 0 {
			return math.NaN()
		}
		return math.Log10(v)
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (p linePlot) draw() gocv.Mat {
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), plotSize, plotSize, gocv.MatTypeCV8UC3)
	left, right, top, bottom := 70, plotSize-20, 20, plotSize-50

	xmin, xmax := math.Inf(1), math.Inf(-1)
	ymin, ymax := math.Inf(1), math.Inf(-1)
	for _, s := range p.series {
		for i := range s.X {
			if i >= len(s.Y) {
				break
			}
			x, y := s.X[i], p.y(s.Y[i])
			if !finite(x) || !finite(y) {
				continue
			}
			xmin, xmax = math.Min(xmin, x), math.Max(xmax, x)
			ymin, ymax = math.Min(ymin, y), math.Max(ymax, y)
		}
	}

	gocv.Line(&img, image.Pt(left, bottom), image.Pt(right, bottom), black, 1)
	gocv.Line(&img, image.Pt(left, top), image.Pt(left, bottom), black, 1)
	gocv.PutText(&img, p.xLabel, image.Pt((left+right)/2-60, plotSize-12), plotFont, 0.45, black, 1)
	yLabel := p.yLabel
	if p.logY {
		yLabel += " (log10)"
	}
	gocv.PutText(&img, yLabel, image.Pt(5, 12), plotFont, 0.4, black, 1)

	if xmin > xmax {
		return img
	}
	if xmax == xmin {
		xmax = xmin + 1
	}
	if ymax == ymin {
		ymin, ymax = ymin-0.5, ymax+0.5
	}
	px := func(x float64) int {
		return left + int(math.Round((x-xmin)/(xmax-xmin)*float64(right-left)))
	}
	py := func(y float64) int {
		return bottom - int(math.Round((y-ymin)/(ymax-ymin)*float64(bottom-top)))
	}

	// Axis extents
	gocv.PutText(&img, fmt.Sprintf("%.3g", xmin), image.Pt(left, bottom+16), plotFont, 0.35, dimGray, 1)
	gocv.PutText(&img, fmt.Sprintf("%.3g", xmax), image.Pt(right-30, bottom+16), plotFont, 0.35, dimGray, 1)
	gocv.PutText(&img, fmt.Sprintf("%.3g", ymin), image.Pt(5, bottom), plotFont, 0.35, dimGray, 1)
	gocv.PutText(&img, fmt.Sprintf("%.3g", ymax), image.Pt(5, top+10), plotFont, 0.35, dimGray, 1)

	for i, s := range p.series {
		c := p.colors[i%len(p.colors)]
		var prev image.Point
		connected := false
		for j := range s.X {
			if j >= len(s.Y) {
				break
			}
			y := p.y(s.Y[j])
			if !finite(s.X[j]) || !finite(y) {
				connected = false
				continue
			}
			pt := image.Pt(px(s.X[j]), py(y))
			if connected {
				gocv.Line(&img, prev, pt, c, 2)
			}
			prev, connected = pt, true
		}

		if p.markMeans {
			var mean float64
			for j := range s.X {
				if j < len(s.Y) && finite(s.X[j]) && finite(s.Y[j]) {
					mean += s.X[j] * s.Y[j]
				}
			}
			if finite(mean) {
				x := px(math.Max(xmin, math.Min(xmax, mean)))
				gocv.Line(&img, image.Pt(x, top), image.Pt(x, bottom), c, 1)
			}
		}

		gocv.PutText(&img, s.Label, image.Pt(left+10, top+15+16*i), plotFont, 0.4, c, 1)
	}
	return img
}
