package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bdougie/barcode/internal/config"
	"github.com/bdougie/barcode/internal/models"
	"github.com/bdougie/barcode/internal/storage"
)

const maxWorkers = 4 // Default number of files processed at once

// VideoSource opens every channel of a file
type VideoSource interface {
	Open(ctx context.Context, path string) ([]*models.Video, error)
}

// Report summarizes one batch
type Report struct {
	RunID    string
	Files    int
	Failed   int
	Channels int
}

// Processor runs the channel pipeline over a batch of files
type Processor struct {
	source      VideoSource
	pipeline    *Pipeline
	storage     storage.Storage
	channels    config.ChannelConfig
	reader      config.ReaderConfig
	writer      config.WriterConfig
	errLog      ErrorLog
	metrics     Metrics
	workers     int
	progress    func()
	newRenderer func(dir string) Renderer
	logger      *slog.Logger
}

// ProcessorOption configures optional collaborators
type ProcessorOption func(*Processor)

// WithWorkers bounds the number of files, and of channels per file, in flight
func WithWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithProgress is called once per finished file, failed or not
func WithProgress(fn func()) ProcessorOption {
	return func(p *Processor) { p.progress = fn }
}

// WithRenderer enables figures when writer.save_visualizations is on
func WithRenderer(fn func(dir string) Renderer) ProcessorOption {
	return func(p *Processor) { p.newRenderer = fn }
}

func WithProcessorErrorLog(l ErrorLog) ProcessorOption {
	return func(p *Processor) { p.errLog = l }
}

func WithProcessorMetrics(m Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

func NewProcessor(cfg *config.Config, source VideoSource, pipeline *Pipeline, store storage.Storage, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		source:   source,
		pipeline: pipeline,
		storage:  store,
		channels: cfg.Channels,
		reader:   cfg.Reader,
		writer:   cfg.Writer,
		metrics:  nopMetrics{},
		workers:  maxWorkers,
		progress: func() {},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SelectChannels returns the channels of an n-channel file to analyze.
// A negative selection counts from the end; one past the end clamps to the
// last channel.
func SelectChannels(n int, cfg config.ChannelConfig) []int {
	if n <= 0 {
		return nil
	}
	if cfg.ParseAllChannels {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	ch := cfg.SelectedChannel
	for ch < 0 {
		ch += n
	}
	if ch >= n {
		ch = n - 1
	}
	return []int{ch}
}

// Process analyzes every file. A file that cannot be read is recorded and
// skipped; only storage failures abort the batch.
func (p *Processor) Process(ctx context.Context, files []string) (Report, error) {
	report := Report{RunID: uuid.NewString(), Files: len(files)}
	if len(files) == 0 {
		return report, nil
	}

	workChan := make(chan models.WorkItem, len(files))
	resultsChan := make(chan *models.ChannelResult, p.workers)
	errorsChan := make(chan error, len(files))

	var wg sync.WaitGroup

	remainingFiles := atomic.Int64{}
	remainingFiles.Store(int64(len(files)))

	// Start worker pool
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workChan {
				results, err := p.processFile(ctx, report.RunID, work)
				if err != nil {
					p.recordFileFailure(work.FilePath, err)
					errorsChan <- fmt.Errorf("file %d/%d failed: %w", work.FileNum, work.Total, err)
				} else {
					p.metrics.IncFiles("ok")
				}
				for _, r := range results {
					resultsChan <- r
				}

				remaining := remainingFiles.Add(-1)
				p.logger.Debug("file finished", "file", work.FilePath, "remaining", remaining)
				p.progress()
			}
		}()
	}

	// Send work to workers
	go func() {
		for i, file := range files {
			workChan <- models.WorkItem{
				FilePath: file,
				FileNum:  i + 1,
				Total:    len(files),
			}
		}
		close(workChan)
	}()

	// Collect results
	var storeErr error
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for result := range resultsChan {
			report.Channels++
			if err := p.storage.AddResult(ctx, result); err != nil && storeErr == nil {
				storeErr = err
			}
		}
	}()

	// Wait for all workers to finish
	wg.Wait()
	close(resultsChan)
	close(errorsChan)
	<-collected

	report.Failed = len(errorsChan)

	// Flush any remaining results
	if err := errors.Join(storeErr, p.storage.Flush()); err != nil {
		return report, fmt.Errorf("failed to store results: %w", err)
	}
	return report, nil
}

func (p *Processor) recordFileFailure(path string, err error) {
	p.metrics.IncFiles("failed")
	p.logger.Error("file failed", "file", path, "error", err)
	if p.errLog != nil {
		if rerr := p.errLog.Record(path, -1, "", err); rerr != nil {
			p.logger.Error("record file failure", "error", rerr)
		}
	}
}

func (p *Processor) processFile(ctx context.Context, runID string, work models.WorkItem) ([]*models.ChannelResult, error) {
	start := time.Now()
	p.logger.Info("processing file", "file", work.FilePath, "num", work.FileNum, "total", work.Total)

	videos, err := p.source.Open(ctx, work.FilePath)
	if err != nil {
		return nil, err
	}
	if len(videos) > 0 && len(videos[0].Frames) > 0 {
		f := videos[0].Frames[0]
		p.logger.Debug("file dimensions", "frames", videos[0].Len(), "rows", f.Rows, "cols", f.Cols, "channels", len(videos))
	}

	selected := SelectChannels(len(videos), p.channels)
	results := make([]*models.ChannelResult, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, ch := range selected {
		video := videos[ch]
		dim := IsDim(video)
		if p.channels.ParseAllChannels && dim && !p.reader.AcceptDimChannels {
			p.logger.Debug("channel too dim, not enough signal, skipping", "file", work.FilePath, "channel", ch)
			p.metrics.IncChannels("skipped_dim")
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := p.processChannel(video, dim)
			if err != nil {
				return fmt.Errorf("channel %d: %w", video.Channel, err)
			}
			r.RunID = runID
			results[i] = r
			return nil
		})
	}
	err = g.Wait()

	var out []*models.ChannelResult
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}

	p.logger.Info("file processed", "file", work.FilePath, "channels", len(out), "elapsed", time.Since(start).Round(time.Millisecond))
	return out, err
}

func (p *Processor) processChannel(video *models.Video, dim bool) (*models.ChannelResult, error) {
	if dim {
		p.logger.Warn("channel is dim, accuracy of screening may be limited", "file", video.Path, "channel", video.Channel)
	}

	var out ChannelOutputs
	var exporter *storage.RDSExporter
	if p.writer.SaveRDS || (p.writer.SaveVisualizations && p.newRenderer != nil) {
		dir := storage.ChannelDir(video.Path, video.Channel)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory '%s': %w", dir, err)
		}
		if p.writer.SaveRDS {
			exporter = storage.NewRDSExporter(dir)
			out.Exporter = exporter
		}
		if p.writer.SaveVisualizations && p.newRenderer != nil {
			out.Renderer = p.newRenderer(dir)
		}
	}

	result, err := p.pipeline.Run(video, out, WithDim(dim))
	if exporter != nil {
		if cerr := exporter.Close(); cerr != nil {
			p.logger.Error("close intermediate export", "file", video.Path, "channel", video.Channel, "error", cerr)
		}
	}
	if out.Renderer != nil {
		if cerr := out.Renderer.Close(); cerr != nil {
			p.logger.Error("write summary graphs", "file", video.Path, "channel", video.Channel, "error", cerr)
		}
	}
	return result, err
}
