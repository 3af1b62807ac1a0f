package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bdougie/barcode/internal/models"
)

const batchSize = 10 // Number of results to batch write

// Storage defines the interface for storing channel results
type Storage interface {
	// AddResult adds a single channel result
	AddResult(ctx context.Context, result *models.ChannelResult) error

	// Flush ensures all pending results are saved
	Flush() error
}

// CSVStorage batches results and appends them to a summary CSV
type CSVStorage struct {
	results []*models.ChannelResult
	mu      sync.Mutex
	path    string
	started bool
}

// NewCSVStorage creates a summary writer. The file is (re)created with a
// header on the first flush that has rows; a batch without results leaves
// no file behind.
func NewCSVStorage(path string) *CSVStorage {
	return &CSVStorage{path: path}
}

// Path is the summary file being written
func (s *CSVStorage) Path() string {
	return s.path
}

// AddResult adds a result to the batch and flushes if the batch is full
func (s *CSVStorage) AddResult(ctx context.Context, result *models.ChannelResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)

	if len(s.results) >= batchSize {
		return s.flush()
	}
	return nil
}

// Flush writes all pending results to disk
func (s *CSVStorage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

func (s *CSVStorage) flush() error {
	if len(s.results) == 0 {
		return nil
	}

	if !s.started {
		if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
			return fmt.Errorf("failed to create directory for results: %w", err)
		}
		file, err := os.Create(s.path)
		if err != nil {
			// An existing summary that cannot be overwritten (e.g. open in
			// a spreadsheet) is left alone and a numbered sibling is used.
			alt := AvailablePath(s.path)
			if alt == s.path {
				return fmt.Errorf("failed to create summary file: %w", err)
			}
			s.path = alt
			if file, err = os.Create(s.path); err != nil {
				return fmt.Errorf("failed to create summary file: %w", err)
			}
		}
		w := csv.NewWriter(file)
		if err := w.Write(models.SummaryHeaders); err != nil {
			file.Close()
			return err
		}
		w.Flush()
		if err := errors.Join(w.Error(), file.Close()); err != nil {
			return err
		}
		s.started = true
	}

	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open summary file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	for _, r := range s.results {
		if err := w.Write(r.Row()); err != nil {
			return fmt.Errorf("failed to write result row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	s.results = nil // Clear the batch
	return nil
}

// AvailablePath returns path if it does not exist yet, otherwise the first
// free "<base> (n)<ext>" variant.
func AvailablePath(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}

// Multi fans results out to several storages
type Multi []Storage

func (m Multi) AddResult(ctx context.Context, result *models.ChannelResult) error {
	var errs []error
	for _, s := range m {
		if err := s.AddResult(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Flush() error {
	var errs []error
	for _, s := range m {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
