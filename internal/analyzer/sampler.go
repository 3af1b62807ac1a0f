package analyzer

import (
	"fmt"
	"log/slog"
)

// FrameIndexSet is the strictly increasing list of sampled frame indices.
// It always starts at 0 and ends at the last frame of the video.
type FrameIndexSet struct {
	Indices []int
	// Step is the effective stride, which may be fractional after the
	// stride was reduced for a short video.
	Step float64
}

// Pairs returns consecutive (start, stop) index pairs
func (s FrameIndexSet) Pairs() [][2]int {
	if len(s.Indices) < 2 {
		return nil
	}
	pairs := make([][2]int, 0, len(s.Indices)-1)
	for i := 0; i+1 < len(s.Indices); i++ {
		pairs = append(pairs, [2]int{s.Indices[i], s.Indices[i+1]})
	}
	return pairs
}

// Middle returns the middle sampled index
func (s FrameIndexSet) Middle() int {
	return s.Indices[(len(s.Indices)-1)/2]
}

// SampleFrames picks the frames to analyze in a video of length frames.
// While the stride is not smaller than the video it is divided by 5.
// Fractional strides are truncated per index and duplicate indices dropped;
// the last frame is appended when the stride does not land on it.
func SampleFrames(length, step int, logger *slog.Logger) (FrameIndexSet, error) {
	if length <= 0 {
		return FrameIndexSet{}, ErrEmptyVideo
	}
	if step <= 0 {
		return FrameIndexSet{}, fmt.Errorf("%w: got %d", ErrInvalidStep, step)
	}

	stride := float64(step)
	for stride >= float64(length) {
		stride /= 5
		if logger != nil {
			logger.Debug("step size between frames too large for analysis", "new_step", stride)
		}
	}

	indices := make([]int, 0, int(float64(length)/stride)+2)
	for k := 0; ; k++ {
		idx := int(float64(k) * stride)
		if idx >= length {
			break
		}
		if len(indices) > 0 && indices[len(indices)-1] == idx {
			continue
		}
		indices = append(indices, idx)
	}
	if indices[len(indices)-1] != length-1 {
		indices = append(indices, length-1)
	}

	return FrameIndexSet{Indices: indices, Step: stride}, nil
}
