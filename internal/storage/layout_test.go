package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputPathsForFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "cells.tif")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	out, err := OutputPaths(file)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cells Summary.csv"), out.Summary)
	assert.Equal(t, filepath.Join(dir, "cells Settings.yaml"), out.Settings)
	assert.Equal(t, filepath.Join(dir, "cells_failed_files.txt"), out.Failures)
}

func TestOutputPathsForDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plate1")
	require.NoError(t, os.Mkdir(dir, 0755))

	out, err := OutputPaths(dir + string(filepath.Separator))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "plate1 Summary.csv"), out.Summary)
	assert.Equal(t, filepath.Join(dir, "plate1 Settings.yaml"), out.Settings)
	assert.Equal(t, filepath.Join(dir, "failed_files.txt"), out.Failures)

	_, err = OutputPaths(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestChannelDir(t *testing.T) {
	assert.Equal(t,
		filepath.Join("/data/cells BARCODE Output", "Channel 2"),
		ChannelDir("/data/cells.tif", 2))
}

func TestBarcodePath(t *testing.T) {
	assert.Equal(t, "/data/cells Summary Barcode.png", BarcodePath("/data/cells Summary.csv"))
	assert.Equal(t, "out/Aggregate Summary (1) Barcode.png", BarcodePath("out/Aggregate Summary (1).csv"))
}
