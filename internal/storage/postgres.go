package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bdougie/barcode/internal/embeddings"
	"github.com/bdougie/barcode/internal/models"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // Register the "pgx" database/sql driver
	"github.com/pgvector/pgvector-go"
)

// metricColumns mirror models.SummaryHeaders from Connectivity onwards
var metricColumns = []string{
	"connectivity", "max_island_area", "max_void_area",
	"island_area_change", "void_area_change", "initial_max_island_area",
	"initial_2nd_max_island_area", "max_kurtosis", "max_median_skewness",
	"max_mode_skewness", "kurtosis_change", "median_skewness_change",
	"mode_skewness_change", "mean_speed", "speed_change",
	"mean_flow_direction", "flow_directional_spread", "initial_void_area",
}

// PostgresStorage writes channel results and their barcode vectors to a
// pgvector-enabled table
type PostgresStorage struct {
	db    *sql.DB
	table string
}

// OpenPostgres connects through the pgx database/sql driver and verifies
// the connection
func OpenPostgres(ctx context.Context, url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewPostgresStorage stores results into table using db
func NewPostgresStorage(db *sql.DB, table string) *PostgresStorage {
	return &PostgresStorage{
		db:    db,
		table: pgx.Identifier{table}.Sanitize(),
	}
}

// Close closes the database connection
func (s *PostgresStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InitSchema creates the vector extension and the results table if missing
func (s *PostgresStorage) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	cols := make([]string, len(metricColumns))
	for i, c := range metricColumns {
		cols[i] = c + " DOUBLE PRECISION"
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            id SERIAL PRIMARY KEY,
            run_id UUID NOT NULL,
            file_path TEXT NOT NULL,
            channel INTEGER NOT NULL,
            flags DOUBLE PRECISION,
            %s,
            barcode vector(%d) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL
        )`, s.table, strings.Join(cols, ",\n            "), embeddings.Dimensions)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}
	return nil
}

// AddResult inserts one channel result. Metrics that were not computed are
// stored as NULL.
func (s *PostgresStorage) AddResult(ctx context.Context, result *models.ChannelResult) error {
	cols := append([]string{"run_id", "file_path", "channel", "flags"}, metricColumns...)
	cols = append(cols, "barcode", "created_at")

	args := []any{result.RunID, result.FilePath, result.Channel, nullable(result.Flags())}
	for _, v := range result.Metrics() {
		args = append(args, nullable(v))
	}
	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	args = append(args, pgvector.NewVector(embeddings.Vectorize(result)), createdAt)

	placeholders := make([]string, len(args))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to store channel result: %w", err)
	}
	return nil
}

// Flush implements the Storage interface - no-op for Postgres as we save immediately
func (s *PostgresStorage) Flush() error {
	return nil
}

// SearchSimilar returns the stored channels whose barcode is closest to vec
// by cosine distance
func (s *PostgresStorage) SearchSimilar(ctx context.Context, vec []float32, limit int) ([]models.FrameSearchResult, error) {
	query := fmt.Sprintf(`SELECT file_path, channel, 1 - (barcode <=> $1) AS similarity
        FROM %s
        ORDER BY barcode <=> $1
        LIMIT $2`, s.table)

	rows, err := s.db.QueryContext(ctx, query, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar barcodes: %w", err)
	}
	defer rows.Close()

	var results []models.FrameSearchResult
	for rows.Next() {
		var r models.FrameSearchResult
		if err := rows.Scan(&r.FilePath, &r.Channel, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}
