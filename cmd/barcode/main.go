package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"

	"github.com/bdougie/barcode/internal/analyzer"
	"github.com/bdougie/barcode/internal/config"
	"github.com/bdougie/barcode/internal/cv"
	"github.com/bdougie/barcode/internal/embeddings"
	"github.com/bdougie/barcode/internal/extractor"
	"github.com/bdougie/barcode/internal/observability"
	"github.com/bdougie/barcode/internal/storage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "aggregate":
		err = aggregateCommand(os.Args[2:])
	case "search":
		err = searchCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "barcode %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: barcode <command> [flags]

Commands:
  run        analyze a video file or a directory of videos
  aggregate  merge summary CSVs into one file
  search     find stored channels with a similar barcode
  validate   check a configuration file`)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		}),
	)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML configuration (defaults when empty)")
	workers := fs.Int("workers", 4, "Files, and channels per file, processed in parallel")
	metricsAddr := fs.String("metrics", "", "Serve Prometheus metrics on this address, e.g. :9100")
	verbose := fs.Bool("v", false, "Verbose (debug) logging")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: barcode run [flags] <file or directory>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errors.New("expected exactly one input path")
	}
	input := fs.Arg(0)

	logger := newLogger(*verbose)
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	files, err := extractor.FindFiles(input)
	if err != nil {
		return err
	}
	outputs, err := storage.OutputPaths(input)
	if err != nil {
		return err
	}
	logger.Info("starting analysis", "input", input, "files", len(files))

	metrics := observability.NewPromMetrics()
	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	summary := storage.NewCSVStorage(outputs.Summary)
	stores := storage.Multi{summary}
	if cfg.Storage.PostgresURL != "" {
		pg, err := openPostgres(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		defer pg.Close()
		stores = append(stores, pg)
	}

	errLog := storage.NewFileErrorLog(outputs.Failures)
	pipeline := analyzer.NewPipeline(cfg, cv.Farneback{}, cv.Labeler{}, logger,
		analyzer.WithErrorLog(errLog),
		analyzer.WithMetrics(metrics),
	)

	opts := []analyzer.ProcessorOption{
		analyzer.WithWorkers(*workers),
		analyzer.WithProcessorErrorLog(errLog),
		analyzer.WithProcessorMetrics(metrics),
		analyzer.WithRenderer(func(dir string) analyzer.Renderer { return cv.NewRenderer(dir) }),
	}
	if !*verbose {
		bar := progressbar.Default(int64(len(files)), "analyzing")
		opts = append(opts, analyzer.WithProgress(func() { _ = bar.Add(1) }))
	}

	start := time.Now()
	processor := analyzer.NewProcessor(cfg, extractor.New(cv.StackDecoder{}), pipeline, stores, logger, opts...)
	report, err := processor.Process(ctx, files)
	if err != nil {
		return err
	}

	if err := cfg.Save(outputs.Settings); err != nil {
		logger.Error("failed to save settings", "path", outputs.Settings, "error", err)
	}

	if cfg.Writer.GenerateBarcode && report.Channels > 0 {
		path, err := writeBarcode(summary.Path())
		if err != nil {
			logger.Error("unable to generate barcode", "error", err)
			if rerr := errLog.Record(summary.Path(), -1, "Barcode", err); rerr != nil {
				logger.Error("record barcode failure", "error", rerr)
			}
		} else {
			logger.Info("barcode written", "path", path)
		}
	}

	logger.Info("analysis completed",
		"run_id", report.RunID,
		"files", report.Files,
		"failed", report.Failed,
		"channels", report.Channels,
		"summary", summary.Path(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	if report.Failed > 0 {
		logger.Warn("some files could not be processed", "log", errLog.Path())
	}
	return nil
}

func openPostgres(ctx context.Context, cfg config.StorageConfig) (*storage.PostgresStorage, error) {
	db, err := storage.OpenPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	pg := storage.NewPostgresStorage(db, cfg.Table)
	if err := pg.InitSchema(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server stopped", "error", err)
	}
}

func aggregateCommand(args []string) error {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	output := fs.String("o", "Aggregate Summary.csv", "Output CSV path")
	sortMetric := fs.String("sort", "", "Sort rows ascending by this summary column")
	barcode := fs.Bool("barcode", false, "Also render the aggregate barcode figure")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: barcode aggregate [-o out.csv] [-sort header] <summary.csv>...")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := storage.Aggregate(fs.Args(), *output, *sortMetric); err != nil {
		return err
	}
	fmt.Printf("aggregated %d files into %s\n", fs.NArg(), *output)

	if *barcode {
		path, err := writeBarcode(*output)
		if err != nil {
			return fmt.Errorf("generate barcode: %w", err)
		}
		fmt.Printf("barcode written to %s\n", path)
	}
	return nil
}

// writeBarcode renders every row of a summary CSV next to it
func writeBarcode(summaryPath string) (string, error) {
	rows, err := storage.ReadSummary(summaryPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", summaryPath, err)
	}
	metrics, err := storage.SummaryMetrics(rows)
	if err != nil {
		return "", err
	}
	path := storage.BarcodePath(summaryPath)
	if err := cv.WriteBarcode(path, metrics); err != nil {
		return "", err
	}
	return path, nil
}

func searchCommand(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to YAML configuration with storage.postgres_url")
	summaryPath := fs.String("summary", "", "Summary CSV holding the query channel")
	file := fs.String("file", "", "Filepath column of the query row")
	channel := fs.Int("channel", 0, "Channel column of the query row")
	limit := fs.Int("limit", 5, "Number of matches")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if cfg.Storage.PostgresURL == "" {
		return errors.New("storage.postgres_url is not configured")
	}

	vec, err := queryVector(*summaryPath, *file, *channel)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pg, err := openPostgres(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer pg.Close()

	results, err := pg.SearchSimilar(ctx, vec, *limit)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%.4f  %s  channel %d\n", r.Similarity, r.FilePath, r.Channel)
	}
	return nil
}

// queryVector finds (file, channel) in a summary CSV and returns its barcode
func queryVector(summaryPath, file string, channel int) ([]float32, error) {
	rows, err := storage.ReadSummary(summaryPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", summaryPath, err)
	}
	for _, row := range rows {
		if len(row) < 3 || row[0] != file || row[1] != strconv.Itoa(channel) {
			continue
		}
		metrics, err := storage.SummaryMetrics([][]string{row})
		if err != nil {
			return nil, err
		}
		return embeddings.VectorizeMetrics(metrics[0]), nil
	}
	return nil, fmt.Errorf("no row for %s channel %d in %s", file, channel, summaryPath)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := config.Load(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}
