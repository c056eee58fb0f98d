// Package refdecoder provides a deterministic reference decoder.
//
// It upsamples latents with nearest-neighbour sampling along time and space,
// following the causal layout of temporal VAEs: the first latent frame maps
// to one output frame and every following latent frame to TimeScale frames.
// An optional memory budget makes oversized calls fail with an out-of-memory
// error, which exercises the invoke stage's degradation ladder.
package refdecoder

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/tensor"
)

// Default ratios of the reference decoder.
const (
	DefaultTimeScale    = 4
	DefaultSpatialScale = 8
	DefaultChannels     = 3
)

// Config configures the reference decoder.
type Config struct {
	TimeScale    int   // output frames per additional latent frame
	SpatialScale int   // output pixels per latent pixel
	Channels     int   // output channels
	MemoryBudget int64 // bytes per call, 0 = unlimited
	Declare      bool  // declare the time scale instead of requiring a probe
	ID           string
}

// DefaultConfig returns a decoder shaped like common video VAEs.
func DefaultConfig() Config {
	return Config{
		TimeScale:    DefaultTimeScale,
		SpatialScale: DefaultSpatialScale,
		Channels:     DefaultChannels,
	}
}

// Decoder is a nearest-neighbour latent decoder.
type Decoder struct {
	cfg   Config
	calls atomic.Int64
}

var (
	_ ports.LatentDecoder = (*Decoder)(nil)
	_ ports.TiledDecoder  = (*Decoder)(nil)
	_ ports.ScaleHinter   = (*Decoder)(nil)
	_ ports.Identifier    = (*Decoder)(nil)
)

// New creates a reference decoder. Non-positive ratios fall back to defaults.
func New(cfg Config) *Decoder {
	if cfg.TimeScale <= 0 {
		cfg.TimeScale = DefaultTimeScale
	}
	if cfg.SpatialScale <= 0 {
		cfg.SpatialScale = DefaultSpatialScale
	}
	if cfg.Channels <= 0 {
		cfg.Channels = DefaultChannels
	}
	return &Decoder{cfg: cfg}
}

// DecoderID identifies the decoder by its ratios unless an ID is configured.
func (d *Decoder) DecoderID() string {
	if d.cfg.ID != "" {
		return d.cfg.ID
	}
	return fmt.Sprintf("ref-t%d-s%d-c%d", d.cfg.TimeScale, d.cfg.SpatialScale, d.cfg.Channels)
}

// DeclaredTimeScale returns the time scale when Declare is set.
func (d *Decoder) DeclaredTimeScale() (int, bool) {
	return d.cfg.TimeScale, d.cfg.Declare
}

// Calls returns the number of decode calls, failed ones included.
func (d *Decoder) Calls() int {
	return int(d.calls.Load())
}

// Decode upsamples the whole input in one pass.
func (d *Decoder) Decode(ctx context.Context, latents *tensor.Tensor) (ports.DecodeOutput, error) {
	return d.decode(ctx, latents, 0, 0)
}

// DecodeTiled upsamples the input tile by tile. The result is identical to
// Decode; only the peak memory of the call is smaller.
func (d *Decoder) DecodeTiled(ctx context.Context, latents *tensor.Tensor, tileWidth, tileHeight int) (ports.DecodeOutput, error) {
	return d.decode(ctx, latents, tileWidth, tileHeight)
}

func (d *Decoder) decode(ctx context.Context, latents *tensor.Tensor, tileWidth, tileHeight int) (ports.DecodeOutput, error) {
	d.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return ports.DecodeOutput{}, err
	}

	shape, err := d.OutputShape(latents.Shape())
	if err != nil {
		return ports.DecodeOutput{}, err
	}
	if requested := d.peakBytes(shape, tileWidth, tileHeight); d.cfg.MemoryBudget > 0 && requested > d.cfg.MemoryBudget {
		return ports.DecodeOutput{}, &ports.OutOfMemoryError{Requested: requested, Available: d.cfg.MemoryBudget}
	}

	video := latents.Dims() == 5
	channels := latents.Dim(1)
	ts, s := d.cfg.TimeScale, d.cfg.SpatialScale

	out := tensor.FromFunc(shape, func(idx []int) float32 {
		src := []int{idx[0], idx[1] % channels}
		if video {
			src = append(src, SourceFrame(idx[2], ts))
		}
		src = append(src, idx[len(idx)-2]/s, idx[len(idx)-1]/s)
		return toPixel(latents.At(src...))
	})
	return ports.Single(out), nil
}

// OutputShape returns the channel-first shape decoded from a latent shape.
func (d *Decoder) OutputShape(latent []int) ([]int, error) {
	s := d.cfg.SpatialScale
	switch len(latent) {
	case 4:
		return []int{latent[0], d.cfg.Channels, latent[2] * s, latent[3] * s}, nil
	case 5:
		if latent[2] < 1 {
			return nil, fmt.Errorf("refdecoder: no latent frames in %v", latent)
		}
		frames := 1 + (latent[2]-1)*d.cfg.TimeScale
		return []int{latent[0], d.cfg.Channels, frames, latent[3] * s, latent[4] * s}, nil
	default:
		return nil, fmt.Errorf("refdecoder: expected 4 or 5 dimensions, got %v", latent)
	}
}

// peakBytes estimates the float32 allocation of a call. A tiled call only
// holds one tile of every frame at a time.
func (d *Decoder) peakBytes(shape []int, tileWidth, tileHeight int) int64 {
	h, w := shape[len(shape)-2], shape[len(shape)-1]
	if tileWidth > 0 && tileWidth < w {
		w = tileWidth
	}
	if tileHeight > 0 && tileHeight < h {
		h = tileHeight
	}
	n := int64(4 * h * w)
	for _, dim := range shape[:len(shape)-2] {
		n *= int64(dim)
	}
	return n
}

// SourceFrame returns the latent frame that output frame j is decoded from.
func SourceFrame(j, timeScale int) int {
	if j == 0 {
		return 0
	}
	return 1 + (j-1)/timeScale
}

// toPixel maps a latent value in [-1, 1] to [0, 1]; the normalizer clamps the rest.
func toPixel(v float32) float32 {
	return (v + 1) / 2
}

// Synthetic returns [1, channels, frames, h, w] latents with a moving diagonal
// gradient, for demos and end-to-end checks without a model file.
func Synthetic(channels, frames, h, w int) *tensor.Tensor {
	return tensor.FromFunc([]int{1, channels, frames, h, w}, func(idx []int) float32 {
		c, f, y, x := idx[1], idx[2], idx[3], idx[4]
		phase := float64(x+y)/float64(h+w)*2*math.Pi + float64(f)*0.4 + float64(c)*2*math.Pi/3
		return float32(math.Sin(phase))
	})
}
