// Package normalize implements the stage that canonicalizes raw decoder
// output into a [F, H, W, C] frame sequence.
package normalize

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/tensor"
)

// MaxChannels is the number of color channels kept; alpha and auxiliary
// channels are dropped.
const MaxChannels = 3

var (
	// ErrEmptyOutput is returned when the decoder produced no tensor.
	ErrEmptyOutput = errors.New("normalize: decoder returned no output")
	// ErrBatchFold is returned for a 5-D result whose batch axis is not 1.
	ErrBatchFold = errors.New("normalize: cannot fold a batch larger than 1 into frames")
	// ErrNoChannelAxis is returned when no axis looks like a channel axis.
	ErrNoChannelAxis = errors.New("normalize: no channel axis found")
)

// Stage converts decoder output into normalized frames.
type Stage struct{}

// NewStage creates a new normalize stage.
func NewStage() *Stage {
	return &Stage{}
}

// Execute normalizes the first element of the decoder output.
func (s *Stage) Execute(ctx context.Context, input ports.DecodeOutput) (*tensor.Tensor, error) {
	return Output(input)
}

// Output unwraps an aggregate decoder result and normalizes its pixel tensor.
func Output(out ports.DecodeOutput) (*tensor.Tensor, error) {
	t, ok := out.First()
	if !ok {
		return nil, ErrEmptyOutput
	}
	return Tensor(t)
}

// Tensor normalizes a decoded tensor:
//   - 3-D [H, W, C] or [C, H, W] gains a leading frame axis
//   - channel-first layouts are permuted to channel-last
//   - 5-D results fold batch and frame into one axis (batch must be 1)
//   - values are clamped into [0, 1]
//   - channels beyond the first three are dropped
//
// Tensor is pure and idempotent: normalizing its own output is a no-op.
func Tensor(t *tensor.Tensor) (*tensor.Tensor, error) {
	if t == nil {
		return nil, ErrEmptyOutput
	}

	var err error
	switch t.Dims() {
	case 3:
		if t, err = t.Reshape(append([]int{1}, t.Shape()...)...); err != nil {
			return nil, err
		}
		t, err = channelLast4(t)
	case 4:
		t, err = channelLast4(t)
	case 5:
		t, err = fold5(t)
	default:
		return nil, fmt.Errorf("normalize: unsupported rank %d %v", t.Dims(), t.Shape())
	}
	if err != nil {
		return nil, err
	}

	if t.Dim(-1) > MaxChannels {
		if t, err = t.Narrow(-1, 0, MaxChannels); err != nil {
			return nil, err
		}
	}
	return t.Clamp(0, 1), nil
}

// IsChannelSize reports whether n is a plausible channel count
// (grayscale, RGB or RGBA).
func IsChannelSize(n int) bool {
	return n == 1 || n == 3 || n == 4
}

// channelLast4 returns a [F, H, W, C] view of a [F, H, W, C] or [F, C, H, W]
// tensor. A channel-sized trailing axis wins, which keeps the function
// idempotent.
func channelLast4(t *tensor.Tensor) (*tensor.Tensor, error) {
	switch {
	case IsChannelSize(t.Dim(3)):
		return t, nil
	case IsChannelSize(t.Dim(1)):
		return t.Permute(0, 2, 3, 1)
	}
	return nil, fmt.Errorf("%w in %v", ErrNoChannelAxis, t.Shape())
}

// fold5 turns [B, F, H, W, C], [B, C, F, H, W] or [B, F, C, H, W] into
// [B*F, H, W, C]. An axis of size 3 or 4 is taken as channels before an axis
// of size 1, so [1, 1, 3, H, W] reads as one RGB frame.
func fold5(t *tensor.Tensor) (*tensor.Tensor, error) {
	if t.Dim(0) != 1 {
		return nil, fmt.Errorf("%w: shape %v", ErrBatchFold, t.Shape())
	}

	channelAxis := -1
	for _, color := range []bool{true, false} {
		for _, ax := range []int{4, 1, 2} {
			d := t.Dim(ax)
			if (color && (d == 3 || d == 4)) || (!color && d == 1) {
				channelAxis = ax
				break
			}
		}
		if channelAxis >= 0 {
			break
		}
	}

	var err error
	switch channelAxis {
	case 4:
	case 1:
		t, err = t.Permute(0, 2, 3, 4, 1)
	case 2:
		t, err = t.Permute(0, 1, 3, 4, 2)
	default:
		err = fmt.Errorf("%w in %v", ErrNoChannelAxis, t.Shape())
	}
	if err != nil {
		return nil, err
	}

	s := t.Shape()
	return t.Reshape(s[0]*s[1], s[2], s[3], s[4])
}
