package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/bdougie/barcode/internal/models"
)

// RDS file names inside a channel output directory
const (
	BinarizationRDS = "BinarizationData.csv"
	FlowRDS         = "OpticalFlow.csv"
	IntensityRDS    = "IntensityDistribution.csv"
)

// rdsFile is a lazily created CSV with its own lock, so the three analyzers
// of a channel can export concurrently.
type rdsFile struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *csv.Writer
}

func (f *rdsFile) write(rows ...[]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.w == nil {
		file, err := os.Create(f.path)
		if err != nil {
			return fmt.Errorf("create %s: %w", f.path, err)
		}
		f.file = file
		f.w = csv.NewWriter(file)
	}
	return f.w.WriteAll(rows)
}

func (f *rdsFile) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	f.w.Flush()
	err := errors.Join(f.w.Error(), f.file.Close())
	f.file, f.w = nil, nil
	return err
}

// RDSExporter writes the raw per-frame intermediates of one channel
type RDSExporter struct {
	binarization rdsFile
	flow         rdsFile
	intensity    rdsFile
}

// NewRDSExporter exports into dir, which must exist
func NewRDSExporter(dir string) *RDSExporter {
	e := &RDSExporter{}
	e.binarization.path = filepath.Join(dir, BinarizationRDS)
	e.flow.path = filepath.Join(dir, FlowRDS)
	e.intensity.path = filepath.Join(dir, IntensityRDS)
	return e
}

// BinarizationFrame writes the frame index, the downsampled mask and a blank row
func (e *RDSExporter) BinarizationFrame(frameIdx int, mask models.Mask) error {
	rows := make([][]string, 0, mask.Rows+2)
	rows = append(rows, []string{strconv.Itoa(frameIdx)})
	for r := 0; r < mask.Rows; r++ {
		row := make([]string, mask.Cols)
		for c := 0; c < mask.Cols; c++ {
			if mask.At(r, c) {
				row[c] = "1"
			} else {
				row[c] = "0"
			}
		}
		rows = append(rows, row)
	}
	rows = append(rows, []string{})
	return e.binarization.write(rows...)
}

// FlowPair writes both physical velocity channels of one frame pair
func (e *RDSExporter) FlowPair(start, stop int, u, v models.Frame) error {
	rows := [][]string{{fmt.Sprintf("Flow Field (%d - %d)", start, stop)}, {"X-Direction"}}
	rows = append(rows, frameRows(u)...)
	rows = append(rows, []string{"Y-Direction"})
	rows = append(rows, frameRows(v)...)
	return e.flow.write(rows...)
}

// IntensityFrame writes the retained histogram of one frame
func (e *RDSExporter) IntensityFrame(frameIdx int, values, probabilities []float64) error {
	return e.intensity.write(
		[]string{fmt.Sprintf("Frame %d", frameIdx)},
		floatRow(values),
		floatRow(probabilities),
		[]string{},
	)
}

func (e *RDSExporter) Close() error {
	return errors.Join(e.binarization.close(), e.flow.close(), e.intensity.close())
}

func frameRows(f models.Frame) [][]string {
	rows := make([][]string, f.Rows)
	for r := range rows {
		rows[r] = floatRow(f.Pix[r*f.Cols : (r+1)*f.Cols])
	}
	return rows
}

func floatRow(vals []float64) []string {
	row := make([]string, len(vals))
	for i, v := range vals {
		row[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return row
}
