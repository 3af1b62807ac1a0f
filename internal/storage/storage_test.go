package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/barcode/internal/models"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVStorageWritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "summary.csv")
	s := NewCSVStorage(path)

	require.NoError(t, s.AddResult(context.Background(), sampleResult()))
	require.NoError(t, s.Flush())

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, models.SummaryHeaders, rows[0])
	assert.Equal(t, "/data/sample.tif", rows[1][0])
	assert.Equal(t, "1", rows[1][1])
	assert.Equal(t, "2", rows[1][2], "saturation flag without dim")
	assert.Equal(t, "", rows[1][16], "mean speed is blank when flow was skipped")
	assert.Equal(t, "0.25", rows[1][20])
}

func TestCSVStorageFlushesInBatches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.csv")
	s := NewCSVStorage(path)

	for i := 0; i < batchSize; i++ {
		require.NoError(t, s.AddResult(context.Background(), sampleResult()))
	}
	// The batch filled up, so rows are on disk before an explicit Flush
	assert.Len(t, readCSV(t, path), batchSize+1)

	require.NoError(t, s.AddResult(context.Background(), sampleResult()))
	require.NoError(t, s.Flush())
	assert.Len(t, readCSV(t, path), batchSize+2)
}

func TestCSVStorageEmptyFlushWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "summary.csv")
	s := NewCSVStorage(path)
	require.NoError(t, s.Flush())
	require.NoError(t, s.Flush())

	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Dir(path))
	assert.ErrorIs(t, err, os.ErrNotExist, "no output directory either")

	require.NoError(t, s.AddResult(context.Background(), sampleResult()))
	require.NoError(t, s.Flush())
	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, models.SummaryHeaders, rows[0])
}

func TestAvailablePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "summary.csv")
	assert.Equal(t, path, AvailablePath(path))

	require.NoError(t, os.WriteFile(path, nil, 0644))
	assert.Equal(t, filepath.Join(dir, "summary (1).csv"), AvailablePath(path))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "summary (1).csv"), nil, 0644))
	assert.Equal(t, filepath.Join(dir, "summary (2).csv"), AvailablePath(path))
}

type failingStorage struct{ err error }

func (f failingStorage) AddResult(context.Context, *models.ChannelResult) error { return f.err }
func (f failingStorage) Flush() error                                           { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	path := filepath.Join(t.TempDir(), "summary.csv")
	csvStore := NewCSVStorage(path)
	m := Multi{csvStore, failingStorage{err: boom}}

	err := m.AddResult(context.Background(), sampleResult())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, m.Flush(), boom)

	// The healthy storage still received the result
	assert.Len(t, readCSV(t, path), 2)
}

func TestAggregateSortsAscendingNaNLast(t *testing.T) {
	dir := t.TempDir()
	a := sampleResult()
	a.FilePath = "a.tif"
	a.Intensity.Metrics.MaxKurtosis = 5
	b := sampleResult()
	b.FilePath = "b.tif"
	b.Intensity.Metrics.MaxKurtosis = 1
	c := sampleResult()
	c.FilePath = "c.tif"
	c.Intensity = models.Failed[models.IntensityResults](errors.New("bad frame"))

	first := filepath.Join(dir, "first.csv")
	second := filepath.Join(dir, "second.csv")
	s1 := NewCSVStorage(first)
	require.NoError(t, s1.AddResult(context.Background(), c))
	require.NoError(t, s1.AddResult(context.Background(), a))
	require.NoError(t, s1.Flush())
	s2 := NewCSVStorage(second)
	require.NoError(t, s2.AddResult(context.Background(), b))
	require.NoError(t, s2.Flush())

	out := filepath.Join(dir, "combined.csv")
	require.NoError(t, Aggregate([]string{first, second}, out, "Maximum Kurtosis"))

	rows := readCSV(t, out)
	require.Len(t, rows, 4)
	assert.Equal(t, models.SummaryHeaders, rows[0])
	assert.Equal(t, "b.tif", rows[1][0])
	assert.Equal(t, "a.tif", rows[2][0])
	assert.Equal(t, "c.tif", rows[3][0])
}

func TestAggregateRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "combined.csv")

	assert.Error(t, Aggregate(nil, out, ""))

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("foo,bar\n1,2\n"), 0644))
	assert.Error(t, Aggregate([]string{bad}, out, ""))

	good := filepath.Join(dir, "good.csv")
	require.NoError(t, NewCSVStorage(good).Flush())
	assert.Error(t, Aggregate([]string{good}, out, "Filepath"))
	assert.Error(t, Aggregate([]string{good}, out, "Not A Metric"))
	assert.NoError(t, Aggregate([]string{good}, out, ""))
}

func TestRDSExporterWritesLazily(t *testing.T) {
	dir := t.TempDir()
	e := NewRDSExporter(dir)

	mask := models.NewMask(2, 2)
	mask.Set(0, 1, true)
	require.NoError(t, e.BinarizationFrame(3, mask))
	require.NoError(t, e.IntensityFrame(0, []float64{1, 2}, []float64{0.25, 0.75}))
	require.NoError(t, e.Close())

	bin := readCSV(t, filepath.Join(dir, BinarizationRDS))
	assert.Equal(t, [][]string{{"3"}, {"0", "1"}, {"0", "0"}}, bin)

	intensity := readCSV(t, filepath.Join(dir, IntensityRDS))
	assert.Equal(t, [][]string{{"Frame 0"}, {"1", "2"}, {"0.25", "0.75"}}, intensity)

	_, err := os.Stat(filepath.Join(dir, FlowRDS))
	assert.True(t, os.IsNotExist(err), "no flow pair exported so no file")
}

func TestRDSExporterFlowPair(t *testing.T) {
	dir := t.TempDir()
	e := NewRDSExporter(dir)

	u := models.NewFrame(1, 2)
	u.Set(0, 0, 1.5)
	v := models.NewFrame(1, 2)
	v.Set(0, 1, -2)
	require.NoError(t, e.FlowPair(0, 4, u, v))
	require.NoError(t, e.Close())

	rows := readCSV(t, filepath.Join(dir, FlowRDS))
	assert.Equal(t, [][]string{
		{"Flow Field (0 - 4)"}, {"X-Direction"}, {"1.5", "0"}, {"Y-Direction"}, {"0", "-2"},
	}, rows)
}

func TestFileErrorLogRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.txt")
	l := NewFileErrorLog(path)

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "log is created on first failure")

	require.NoError(t, l.Record("/data/a.tif", 2, "Optical Flow", errors.New("no pairs")))
	require.NoError(t, l.Record("/data/b.tif", -1, "", errors.New("unreadable")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, []string{
		"File: /data/a.tif, Channel 2, Module: Optical Flow, Exception: no pairs",
		"File: /data/b.tif, Exception: unreadable",
	}, lines)
}

func TestSummaryMetrics(t *testing.T) {
	got, err := SummaryMetrics([][]string{{"a.tif", "0", "", "0.5", "", "2"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.5, got[0][0])
	assert.True(t, math.IsNaN(got[0][1]))
	assert.Equal(t, 2.0, got[0][2])

	_, err = SummaryMetrics([][]string{{"a.tif", "0", "", "x"}})
	assert.Error(t, err)
	_, err = SummaryMetrics([][]string{{"a.tif"}})
	assert.Error(t, err)
}
