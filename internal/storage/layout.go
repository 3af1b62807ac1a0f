package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Outputs are the batch-level files written next to the input
type Outputs struct {
	Summary  string
	Settings string
	Failures string
}

// OutputPaths lays out the batch outputs. A single file writes
// "<name> Summary.csv" beside itself, a directory writes
// "<dirname> Summary.csv" inside itself.
func OutputPaths(input string) (Outputs, error) {
	info, err := os.Stat(input)
	if err != nil {
		return Outputs{}, fmt.Errorf("input does not exist at path: '%s'", input)
	}

	if info.IsDir() {
		dir := filepath.Clean(input)
		base := filepath.Base(dir)
		return Outputs{
			Summary:  filepath.Join(dir, base+" Summary.csv"),
			Settings: filepath.Join(dir, base+" Settings.yaml"),
			Failures: filepath.Join(dir, "failed_files.txt"),
		}, nil
	}

	dir := filepath.Dir(input)
	name := trimExt(filepath.Base(input))
	return Outputs{
		Summary:  filepath.Join(dir, name+" Summary.csv"),
		Settings: filepath.Join(dir, name+" Settings.yaml"),
		Failures: filepath.Join(dir, name+"_failed_files.txt"),
	}, nil
}

// ChannelDir is where per-channel intermediates and figures of file go
func ChannelDir(file string, channel int) string {
	return filepath.Join(trimExt(file)+" BARCODE Output", fmt.Sprintf("Channel %d", channel))
}

func trimExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// BarcodePath is the barcode figure that goes with a summary CSV:
// "x Summary.csv" becomes "x Summary Barcode.png"
func BarcodePath(summary string) string {
	return trimExt(summary) + " Barcode.png"
}
