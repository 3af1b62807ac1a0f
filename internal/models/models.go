package models

import "fmt"

// WorkItem represents a file to be processed
type WorkItem struct {
	FilePath string
	FileNum  int
	Total    int
}

// Frame is a single 2D grid of intensities stored row-major
type Frame struct {
	Rows int
	Cols int
	Pix  []float64
}

// NewFrame allocates a zeroed frame
func NewFrame(rows, cols int) Frame {
	return Frame{Rows: rows, Cols: cols, Pix: make([]float64, rows*cols)}
}

// At returns the intensity at row r, column c
func (f Frame) At(r, c int) float64 {
	return f.Pix[r*f.Cols+c]
}

// Set stores v at row r, column c
func (f Frame) Set(r, c int, v float64) {
	f.Pix[r*f.Cols+c] = v
}

// Len is the number of cells in the frame
func (f Frame) Len() int {
	return f.Rows * f.Cols
}

// Video is the ordered frame sequence of one channel of one file
type Video struct {
	Path    string
	Channel int
	Frames  []Frame
}

// Len is the number of frames
func (v *Video) Len() int {
	return len(v.Frames)
}

// Validate checks that the video holds frames of one fixed shape
func (v *Video) Validate() error {
	if len(v.Frames) == 0 {
		return fmt.Errorf("video %s channel %d has no frames", v.Path, v.Channel)
	}
	rows, cols := v.Frames[0].Rows, v.Frames[0].Cols
	for i, f := range v.Frames {
		if f.Rows != rows || f.Cols != cols || len(f.Pix) != rows*cols {
			return fmt.Errorf("frame %d has shape %dx%d, want %dx%d", i, f.Rows, f.Cols, rows, cols)
		}
	}
	return nil
}

// Blank reports whether every intensity in the video is zero
func (v *Video) Blank() bool {
	for _, f := range v.Frames {
		for _, p := range f.Pix {
			if p != 0 {
				return false
			}
		}
	}
	return true
}

// Mask is a boolean grid stored row-major
type Mask struct {
	Rows int
	Cols int
	Bits []bool
}

// NewMask allocates an all-background mask
func NewMask(rows, cols int) Mask {
	return Mask{Rows: rows, Cols: cols, Bits: make([]bool, rows*cols)}
}

// At returns the cell at row r, column c
func (m Mask) At(r, c int) bool {
	return m.Bits[r*m.Cols+c]
}

// Set stores b at row r, column c
func (m Mask) Set(r, c int, b bool) {
	m.Bits[r*m.Cols+c] = b
}

// Len is the number of cells in the mask
func (m Mask) Len() int {
	return m.Rows * m.Cols
}

// Invert returns the logical complement of the mask
func (m Mask) Invert() Mask {
	out := NewMask(m.Rows, m.Cols)
	for i, b := range m.Bits {
		out.Bits[i] = !b
	}
	return out
}

// Labels is the output of connected-component labeling. Label 0 is
// background; Areas[l] is the pixel count of label l.
type Labels struct {
	Rows  int
	Cols  int
	Grid  []int
	Areas map[int]int
}

// At returns the label at row r, column c
func (l Labels) At(r, c int) int {
	return l.Grid[r*l.Cols+c]
}

// FlowField is a per-pixel displacement field
type FlowField struct {
	U Frame
	V Frame
}

// Series is one labeled curve of a summary graph
type Series struct {
	Label string
	X     []float64
	Y     []float64
}
