// Package stitch implements the stage that trims each decoded chunk down to
// the frames its core is responsible for.
package stitch

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/chunkdecode/pkg/pipeline"
	"github.com/user/chunkdecode/pkg/tensor"
)

// ErrNoFrames is returned when a result is requested before anything was appended.
var ErrNoFrames = errors.New("stitch: no frames appended")

// Stage extracts the valid slice of a decoded chunk.
type Stage struct{}

// NewStage creates a new stitch stage.
func NewStage() *Stage {
	return &Stage{}
}

// Execute returns the slice of input.Frames that belongs to the chunk core.
func (s *Stage) Execute(ctx context.Context, input pipeline.StitchInput) (pipeline.StitchResult, error) {
	return Slice(input.Frames, input.Chunk, input.TotalFrames, input.TimeScale)
}

// Bounds returns the front trim and the number of frames to keep from a
// chunk's decoded output. keep is -1 for the last chunk, which keeps
// everything after the trim.
//
// A sequence of n latents decodes to 1 + (n-1)*scale frames and the closing
// frame only exists at the end of the final chunk. Middle chunks map
// linearly, core frames * scale.
func Bounds(c pipeline.ChunkDescriptor, total, timeScale int) (front, keep int) {
	front = (c.CoreStart - c.CtxStart) * timeScale
	if c.CoreEnd == total {
		return front, -1
	}
	return front, c.CoreLen() * timeScale
}

// Slice trims a normalized [F, H, W, C] chunk to its core frames.
// A decoder that returned fewer frames than expected yields a shorter slice;
// the shortfall surfaces in the final length check instead of failing here.
func Slice(frames *tensor.Tensor, c pipeline.ChunkDescriptor, total, timeScale int) (pipeline.StitchResult, error) {
	if frames == nil {
		return pipeline.StitchResult{}, fmt.Errorf("stitch %s: nil frames", c)
	}
	if timeScale < 1 {
		return pipeline.StitchResult{}, fmt.Errorf("stitch %s: invalid time scale %d", c, timeScale)
	}

	front, keep := Bounds(c, total, timeScale)
	end := frames.Dim(0)
	expected := keep
	if keep >= 0 {
		end = front + keep
	} else {
		// The closing frame belongs to the last chunk only.
		expected = 1 + (c.CoreLen()-1)*timeScale
	}

	valid, err := frames.Narrow(0, front, end)
	if err != nil {
		return pipeline.StitchResult{}, fmt.Errorf("stitch %s: %w", c, err)
	}

	return pipeline.StitchResult{
		Frames:    valid,
		FrontTrim: front,
		Length:    valid.Dim(0),
		Expected:  expected,
	}, nil
}

// Accumulator collects valid slices in chunk order.
type Accumulator struct {
	parts  []*tensor.Tensor
	frames int
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append adds the next slice. Empty slices are skipped.
func (a *Accumulator) Append(frames *tensor.Tensor) {
	if frames == nil || frames.Dim(0) == 0 {
		return
	}
	a.parts = append(a.parts, frames)
	a.frames += frames.Dim(0)
}

// Frames returns the number of frames appended so far.
func (a *Accumulator) Frames() int {
	return a.frames
}

// Result concatenates all slices along the frame axis.
func (a *Accumulator) Result() (*tensor.Tensor, error) {
	if len(a.parts) == 0 {
		return nil, ErrNoFrames
	}
	if len(a.parts) == 1 {
		return a.parts[0], nil
	}
	return tensor.Concat(0, a.parts...)
}

// Reset discards everything appended so far.
func (a *Accumulator) Reset() {
	a.parts = nil
	a.frames = 0
}
