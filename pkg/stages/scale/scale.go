// Package scale implements the stage that determines how many output frames
// and pixels a decoder produces per latent frame and pixel.
package scale

import (
	"context"
	"errors"
	"fmt"

	"github.com/user/chunkdecode/pkg/pipeline"
	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/stages/normalize"
)

const (
	// DefaultTimeScale is used when the probe fails.
	DefaultTimeScale = 1

	// ProbeFrames is the maximum number of leading latent frames probed.
	ProbeFrames = 5

	// ProbeSize is the edge of the latent crop probed, in latent pixels.
	ProbeSize = 16

	// RetryFrames and RetrySize shape the smaller crop tried once after the
	// first crop fails, for decoders under a tight memory budget. Two frames
	// are the fewest that show the temporal expansion.
	RetryFrames = 2
	RetrySize   = 2
)

// ErrEmptyProbe is returned when the probe decode produced no frames.
var ErrEmptyProbe = errors.New("scale: probe produced no frames")

// Estimator resolves the scale of a decoder. It never fails: any problem
// falls back to DefaultTimeScale.
type Estimator struct {
	cache  *Cache
	logger ports.Logger
}

// NewEstimator creates an estimator backed by cache. A nil cache disables
// caching.
func NewEstimator(cache *Cache, logger ports.Logger) *Estimator {
	return &Estimator{
		cache:  cache,
		logger: logger.WithComponent("scale"),
	}
}

// Execute implements pipeline.Stage. The returned error is always nil.
func (e *Estimator) Execute(ctx context.Context, input pipeline.ScaleInput) (pipeline.ScaleInfo, error) {
	return e.Estimate(ctx, input.Decoder, input.Latents, input.Override), nil
}

// Estimate returns the scale of decoder, in order of preference: the
// override, a cached entry, the decoder's declared ratio, an empirical probe
// on a crop of latents, and finally the default.
func (e *Estimator) Estimate(ctx context.Context, decoder ports.LatentDecoder, latents pipeline.Latents, override pipeline.ScaleOverride) pipeline.ScaleInfo {
	if override.TimeScale > 0 {
		e.logger.Debug("Scale override: time x%d", override.TimeScale)
		return pipeline.ScaleInfo{
			TimeScale:    override.TimeScale,
			SpatialScale: pipeline.DefaultSpatialScale,
			Source:       pipeline.ScaleFromOverride,
		}
	}

	if e.cache != nil {
		if info, ok := e.cache.Get(decoder); ok {
			e.logger.Debug("Scale cached: time x%d, spatial x%d", info.TimeScale, info.SpatialScale)
			info.Source = pipeline.ScaleFromCache
			return info
		}
	}

	if hinter, ok := decoder.(ports.ScaleHinter); ok {
		if ts, ok := hinter.DeclaredTimeScale(); ok && ts > 0 {
			e.logger.Debug("Scale declared by decoder: time x%d", ts)
			info := pipeline.ScaleInfo{
				TimeScale:    ts,
				SpatialScale: pipeline.DefaultSpatialScale,
				Source:       pipeline.ScaleFromMetadata,
			}
			e.store(decoder, info)
			return info
		}
	}

	info, err := Probe(ctx, decoder, latents)
	if err != nil && ctx.Err() == nil {
		e.logger.Debug("Scale measurement failed on a %d-frame crop, retrying with %d frames: %s", ProbeFrames, RetryFrames, err)
		info, err = Measure(ctx, decoder, latents, RetryFrames, RetrySize)
	}
	if err != nil {
		e.logger.Warn("Scale probe failed, assuming time x%d: %s", DefaultTimeScale, err)
		return pipeline.ScaleInfo{
			TimeScale:    DefaultTimeScale,
			SpatialScale: pipeline.DefaultSpatialScale,
			Source:       pipeline.ScaleFromDefault,
		}
	}
	e.logger.Debug("Scale probed: time x%d, spatial x%d", info.TimeScale, info.SpatialScale)
	e.store(decoder, info)
	return info
}

func (e *Estimator) store(decoder ports.LatentDecoder, info pipeline.ScaleInfo) {
	if e.cache != nil {
		e.cache.Put(decoder, info)
	}
}

// Probe decodes up to ProbeFrames leading frames of a ProbeSize x ProbeSize
// crop and derives the ratios from the output shape:
//
//	time_scale = max(1, (out-1)/(in-1))  when in > 1
//	time_scale = max(1, out)             otherwise
//
// The spatial scale is the ratio of output to input height, or
// pipeline.DefaultSpatialScale when that is not positive.
func Probe(ctx context.Context, decoder ports.LatentDecoder, latents pipeline.Latents) (pipeline.ScaleInfo, error) {
	return Measure(ctx, decoder, latents, ProbeFrames, ProbeSize)
}

// Measure decodes up to frames leading frames of a size x size crop and
// derives the ratios the way Probe does.
func Measure(ctx context.Context, decoder ports.LatentDecoder, latents pipeline.Latents, frames, size int) (pipeline.ScaleInfo, error) {
	crop, err := latents.Crop(frames, size, size)
	if err != nil {
		return pipeline.ScaleInfo{}, fmt.Errorf("crop probe: %w", err)
	}

	in := 1
	if !latents.IsStill() {
		in = crop.Dim(2)
	}

	out, err := decoder.Decode(ctx, crop)
	if err != nil {
		return pipeline.ScaleInfo{}, fmt.Errorf("decode probe: %w", err)
	}
	decoded, err := normalize.Output(out)
	if err != nil {
		return pipeline.ScaleInfo{}, fmt.Errorf("normalize probe: %w", err)
	}

	n := decoded.Dim(0)
	if n == 0 {
		return pipeline.ScaleInfo{}, ErrEmptyProbe
	}

	return pipeline.ScaleInfo{
		TimeScale:    TimeScale(in, n),
		SpatialScale: SpatialScale(crop.Dim(-2), decoded.Dim(1)),
		Source:       pipeline.ScaleFromProbe,
	}, nil
}

// TimeScale derives the temporal ratio from a decode of in latent frames
// into out frames.
func TimeScale(in, out int) int {
	ts := out
	if in > 1 {
		ts = (out - 1) / (in - 1)
	}
	return max(1, ts)
}

// SpatialScale derives the spatial ratio from latent and output heights.
func SpatialScale(inHeight, outHeight int) int {
	if inHeight <= 0 || outHeight <= 0 || outHeight/inHeight <= 0 {
		return pipeline.DefaultSpatialScale
	}
	return outHeight / inHeight
}
