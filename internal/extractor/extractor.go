package extractor

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/bdougie/barcode/internal/models"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrTooFewFrames      = errors.New("video needs at least two frames")
)

// Extensions are the file types read by the extractor
var Extensions = []string{".tif", ".tiff", ".avi", ".mp4", ".mov", ".mkv"}

// StackDecoder decodes a multipage image stack into [channel][frame]
type StackDecoder interface {
	DecodeStack(path string) ([][]models.Frame, error)
}

// Extractor turns files into per-channel videos. TIFF stacks go through the
// stack decoder, container formats through ffmpeg.
type Extractor struct {
	stack   StackDecoder
	ffmpeg  string
	ffprobe string
}

func New(stack StackDecoder) *Extractor {
	return &Extractor{stack: stack, ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
}

// IsSupported reports whether path has a readable extension. macOS resource
// fork files ("._name") are never supported.
func IsSupported(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, "._") {
		return false
	}
	return slices.Contains(Extensions, strings.ToLower(filepath.Ext(base)))
}

// FindFiles returns path itself if it is a file, or every supported file
// below it in lexical order
func FindFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("input does not exist at path: '%s'", path)
	}
	if !info.IsDir() {
		if !IsSupported(path) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
		}
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// Never descend into our own output folders
		if d.IsDir() && strings.HasSuffix(d.Name(), " BARCODE Output") {
			return filepath.SkipDir
		}
		if !d.IsDir() && IsSupported(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk '%s': %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}

// Open reads every channel of path
func (e *Extractor) Open(ctx context.Context, path string) ([]*models.Video, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("video file does not exist at path: '%s'", path)
	}
	if !IsSupported(path) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	var channels [][]models.Frame
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		channels, err = e.stack.DecodeStack(path)
	default:
		channels, err = e.decodeVideo(ctx, path)
	}
	if err != nil {
		return nil, err
	}
	if len(channels) == 0 || len(channels[0]) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrTooFewFrames, path)
	}

	videos := make([]*models.Video, len(channels))
	for ch, frames := range channels {
		videos[ch] = &models.Video{Path: path, Channel: ch, Frames: frames}
	}
	return videos, nil
}

type probe struct {
	width    int
	height   int
	channels int
}

func (e *Extractor) decodeVideo(ctx context.Context, path string) ([][]models.Frame, error) {
	probeCmd := exec.CommandContext(ctx, e.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,pix_fmt",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	var probeErr bytes.Buffer
	probeCmd.Stderr = &probeErr
	out, err := probeCmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w\nOutput: %s", err, probeErr.String())
	}
	p, err := parseProbe(out)
	if err != nil {
		return nil, err
	}

	pixFmt := "gray16le"
	if p.channels == 3 {
		pixFmt = "rgb48le"
	}
	cmd := exec.CommandContext(ctx, e.ffmpeg,
		"-v", "error",
		"-i", path,
		"-f", "rawvideo",
		"-pix_fmt", pixFmt,
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	raw, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, stderr.String())
	}
	return decodeRaw(raw, p)
}

// parseProbe reads ffprobe key=value output. Grey pixel formats decode to a
// single channel, everything else to RGB.
func parseProbe(out []byte) (probe, error) {
	p := probe{channels: 3}
	var err error
	for _, line := range strings.Split(string(out), "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		switch key {
		case "width":
			if p.width, err = strconv.Atoi(value); err != nil {
				return probe{}, fmt.Errorf("ffprobe width %q: %w", value, err)
			}
		case "height":
			if p.height, err = strconv.Atoi(value); err != nil {
				return probe{}, fmt.Errorf("ffprobe height %q: %w", value, err)
			}
		case "pix_fmt":
			if strings.HasPrefix(value, "gray") {
				p.channels = 1
			}
		}
	}
	if p.width <= 0 || p.height <= 0 {
		return probe{}, fmt.Errorf("ffprobe reported no video dimensions")
	}
	return p, nil
}

// decodeRaw splits interleaved little-endian 16-bit samples into
// [channel][frame]
func decodeRaw(raw []byte, p probe) ([][]models.Frame, error) {
	frameBytes := p.width * p.height * p.channels * 2
	if len(raw)%frameBytes != 0 {
		return nil, fmt.Errorf("raw stream of %d bytes is not a whole number of %dx%dx%d frames",
			len(raw), p.width, p.height, p.channels)
	}
	n := len(raw) / frameBytes

	out := make([][]models.Frame, p.channels)
	for ch := range out {
		out[ch] = make([]models.Frame, n)
		for i := range out[ch] {
			out[ch][i] = models.NewFrame(p.height, p.width)
		}
	}
	for i := 0; i < n; i++ {
		buf := raw[i*frameBytes : (i+1)*frameBytes]
		for px := 0; px < p.width*p.height; px++ {
			for ch := 0; ch < p.channels; ch++ {
				off := (px*p.channels + ch) * 2
				out[ch][i].Pix[px] = float64(binary.LittleEndian.Uint16(buf[off:]))
			}
		}
	}
	return out, nil
}
