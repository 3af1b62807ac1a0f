package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"sort"

	"github.com/bdougie/barcode/internal/models"
)

// Aggregate merges summary CSVs into output. When sortMetric names a
// column the rows are sorted ascending by it, NaN last. Inputs whose header
// does not match the summary header are rejected.
func Aggregate(inputs []string, output, sortMetric string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no summary files to aggregate")
	}

	sortCol := -1
	if sortMetric != "" {
		sortCol = slices.Index(models.SummaryHeaders, sortMetric)
		if sortCol < 3 {
			return fmt.Errorf("unknown sort metric %q", sortMetric)
		}
	}

	var rows [][]string
	for _, in := range inputs {
		r, err := ReadSummary(in)
		if err != nil {
			return fmt.Errorf("read %s: %w", in, err)
		}
		rows = append(rows, r...)
	}

	if sortCol >= 0 {
		key := func(row []string) float64 {
			if sortCol >= len(row) {
				return math.NaN()
			}
			v, err := models.ParseFloat(row[sortCol])
			if err != nil {
				return math.NaN()
			}
			return v
		}
		sort.SliceStable(rows, func(i, j int) bool {
			a, b := key(rows[i]), key(rows[j])
			if math.IsNaN(a) {
				return false
			}
			if math.IsNaN(b) {
				return true
			}
			return a < b
		})
	}

	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create aggregate file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(models.SummaryHeaders); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return file.Close()
}

// ReadSummary returns the data rows of a summary CSV after checking its header
func ReadSummary(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(header) > len(models.SummaryHeaders) || !slices.Equal(header, models.SummaryHeaders[:len(header)]) {
		return nil, fmt.Errorf("unexpected summary header %v", header)
	}
	return r.ReadAll()
}

// SummaryMetrics parses the metric columns, Connectivity onwards, of
// summary rows. Empty cells become NaN.
func SummaryMetrics(rows [][]string) ([][]float64, error) {
	out := make([][]float64, 0, len(rows))
	for _, row := range rows {
		if len(row) < 3 {
			return nil, fmt.Errorf("summary row has %d columns", len(row))
		}
		metrics := make([]float64, 0, len(row)-3)
		for _, cell := range row[3:] {
			v, err := models.ParseFloat(cell)
			if err != nil {
				return nil, fmt.Errorf("parse %q: %w", cell, err)
			}
			metrics = append(metrics, v)
		}
		out = append(out, metrics)
	}
	return out, nil
}
