package storage

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/barcode/internal/embeddings"
	"github.com/bdougie/barcode/internal/models"
)

func sampleResult() *models.ChannelResult {
	return &models.ChannelResult{
		RunID:    "0b6b4c1e-6a55-4a4e-9a53-3c1f1b0e9d11",
		FilePath: "/data/sample.tif",
		Channel:  1,
		Binarization: models.Ok(models.BinarizationResults{
			Connectivity: 1, MaxIslandSize: 0.5, MaxVoidSize: 0.25,
			MaxIslandPercentChange: 1, MaxVoidPercentChange: 1,
			IslandSizeInitial: 0.5, IslandSizeInitial2: 0.1, VoidSizeInitial: 0.25,
		}),
		Flow:      models.Outcome[models.FlowResults]{Status: models.StatusSkipped},
		Intensity: models.Ok(models.IntensityResults{MaxKurtosis: 2, Flag: 2}),
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestPostgresStorageAddResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStorage(db, "channel_results")

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "channel_results" (run_id, file_path, channel, flags, connectivity,`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.AddResult(context.Background(), sampleResult()))
	require.NoError(t, store.Flush())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// insertArgs matches an insert whose barcode column holds result's vector
func insertArgs(t *testing.T, result *models.ChannelResult) []driver.Value {
	t.Helper()
	barcode, err := pgvector.NewVector(embeddings.Vectorize(result)).Value()
	require.NoError(t, err)

	n := 4 + len(metricColumns) + 2
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	args[n-2] = barcode
	return args
}

func TestPostgresStorageReanalyzedChannelGetsFreshBarcode(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStorage(db, "channel_results")
	first := sampleResult()
	second := sampleResult()
	second.Binarization.Metrics.Connectivity = 0.2

	insert := regexp.QuoteMeta(`INSERT INTO "channel_results"`)
	mock.ExpectExec(insert).WithArgs(insertArgs(t, first)...).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insert).WithArgs(insertArgs(t, second)...).WillReturnResult(sqlmock.NewResult(2, 1))

	require.NoError(t, store.AddResult(context.Background(), first))
	require.NoError(t, store.AddResult(context.Background(), second))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorageInitSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStorage(db, "results")

	mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "results" \(.*barcode vector\(17\) NOT NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorageSearchSimilar(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStorage(db, "channel_results")

	rows := sqlmock.NewRows([]string{"file_path", "channel", "similarity"}).
		AddRow("/data/a.tif", 0, 0.99).
		AddRow("/data/b.tif", 2, 0.75)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT file_path, channel, 1 - (barcode <=> $1) AS similarity`)).
		WithArgs(sqlmock.AnyArg(), 2).
		WillReturnRows(rows)

	results, err := store.SearchSimilar(context.Background(), make([]float32, 17), 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "/data/a.tif", results[0].FilePath)
	assert.Equal(t, 2, results[1].Channel)
	assert.InDelta(t, 0.75, results[1].Similarity, 1e-12)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNullableMapsNaNToNull(t *testing.T) {
	r := sampleResult()
	assert.False(t, nullable(r.Metrics()[13]).Valid, "flow metrics were skipped")
	got := nullable(r.Metrics()[0])
	assert.True(t, got.Valid)
	assert.Equal(t, 1.0, got.Float64)
}
