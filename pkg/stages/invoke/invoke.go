// Package invoke implements the stage that calls the decoder for one chunk
// and degrades its parameters when the decoder runs out of memory.
package invoke

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/user/chunkdecode/pkg/pipeline"
	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/stages/normalize"
	"github.com/user/chunkdecode/pkg/stages/plan"
	"github.com/user/chunkdecode/pkg/stages/stitch"
	"github.com/user/chunkdecode/pkg/stages/tile"
	"github.com/user/chunkdecode/pkg/tensor"
)

const (
	// DefaultTileSize is used when tiling is enabled without a tile size.
	DefaultTileSize = 512

	// MinTileSize is the floor below which the tile size is not halved.
	MinTileSize = 256
)

// State is a rung of the degradation ladder.
type State int

const (
	StateDirect State = iota
	StateTiled
	StateReducedBatch
	StateReducedTile
	StateFatal
)

var stateNames = map[State]string{
	StateDirect:       "direct",
	StateTiled:        "tiled",
	StateReducedBatch: "reduced-batch",
	StateReducedTile:  "reduced-tile",
	StateFatal:        "fatal",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// FatalError is returned when a chunk cannot be decoded: the ladder is
// exhausted, or a non-memory failure persisted after one retry.
type FatalError struct {
	Label  string
	Steps  []string
	Params pipeline.DecodeParameters
	Err    error
}

func (e *FatalError) Error() string {
	steps := "none"
	if len(e.Steps) > 0 {
		steps = strings.Join(e.Steps, ", ")
	}
	return fmt.Sprintf("decode %s failed (steps: %s; batch %d, tiling %t, tile %d): %v",
		e.Label, steps, e.Params.BatchSize, e.Params.TilingEnabled, e.Params.TileSize, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Config controls the invoker.
type Config struct {
	// ManualTiling tiles latents in this package when the decoder has no
	// tiled decode of its own.
	ManualTiling bool
	// MinTileSize overrides the tile size floor when positive.
	MinTileSize int
}

// Invoker decodes one latent window, walking the degradation ladder on
// out-of-memory failures:
//
//	Direct -> Tiled -> ReducedBatch(n/2 ... 1) -> ReducedTile(t/2 ... floor) -> Fatal
//
// Each transition reclaims memory before retrying. Parameters are local to
// one Execute call.
type Invoker struct {
	reclaimer    ports.MemoryReclaimer
	logger       ports.Logger
	manualTiling bool
	minTileSize  int
}

// New creates an invoker. reclaimer may be nil.
func New(reclaimer ports.MemoryReclaimer, logger ports.Logger, cfg Config) *Invoker {
	minTile := cfg.MinTileSize
	if minTile <= 0 {
		minTile = MinTileSize
	}
	return &Invoker{
		reclaimer:    reclaimer,
		logger:       logger.WithComponent("invoke"),
		manualTiling: cfg.ManualTiling,
		minTileSize:  minTile,
	}
}

// Execute decodes input.Latents and returns the raw decoder output together
// with the parameters that finally succeeded.
func (iv *Invoker) Execute(ctx context.Context, input pipeline.InvokeInput) (pipeline.InvokeResult, error) {
	frames := latentFrames(input.Latents)
	params := initialParams(input.Params, frames)
	canTile := iv.canTile(input.Decoder)

	state := StateDirect
	if params.TilingEnabled {
		state = StateTiled
	}
	var steps []string
	retried := false

	for {
		out, err := iv.attempt(ctx, input, params, frames)
		if err == nil {
			if len(steps) > 0 {
				iv.logger.Debug("Decoded %s after %d steps (%s)", input.Label, len(steps), state)
			}
			return pipeline.InvokeResult{Output: out, Params: params, Steps: steps}, nil
		}

		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return pipeline.InvokeResult{}, fmt.Errorf("decode %s: %w", input.Label, err)
		}

		if !ports.IsOutOfMemory(err) {
			if retried {
				return pipeline.InvokeResult{}, &FatalError{Label: input.Label, Steps: steps, Params: params, Err: err}
			}
			retried = true
			steps = append(steps, "retry")
			iv.logger.Warn("Decode of %s failed, retrying once: %s", input.Label, err)
			continue
		}

		if iv.reclaimer != nil {
			iv.reclaimer.Reclaim()
		}

		next, step := iv.degrade(&params, canTile)
		if next == StateFatal {
			iv.logger.Warn("Out of memory on %s, no degradation left", input.Label)
			return pipeline.InvokeResult{}, &FatalError{Label: input.Label, Steps: steps, Params: params, Err: err}
		}
		state = next
		steps = append(steps, step)
		iv.logger.Warn("Out of memory on %s, retrying with %s", input.Label, step)
	}
}

// degrade applies the next ladder transition to p and describes it.
func (iv *Invoker) degrade(p *pipeline.DecodeParameters, canTile bool) (State, string) {
	switch {
	case !p.TilingEnabled && canTile:
		p.TilingEnabled = true
		return StateTiled, fmt.Sprintf("tiling %dpx", p.TileSize)
	case p.BatchSize > 1:
		p.BatchSize = max(1, p.BatchSize/2)
		p.Overlap = min(p.Overlap, p.BatchSize-1)
		return StateReducedBatch, fmt.Sprintf("batch %d", p.BatchSize)
	case p.TilingEnabled && canTile && p.TileSize > iv.minTileSize:
		p.TileSize = max(iv.minTileSize, p.TileSize/2)
		return StateReducedTile, fmt.Sprintf("tile %dpx", p.TileSize)
	}
	return StateFatal, ""
}

func (iv *Invoker) canTile(decoder ports.LatentDecoder) bool {
	if _, ok := decoder.(ports.TiledDecoder); ok {
		return true
	}
	return iv.manualTiling
}

// attempt decodes the whole window in one call, or in sub-windows of
// p.BatchSize frames once the batch has been reduced below the window.
func (iv *Invoker) attempt(ctx context.Context, input pipeline.InvokeInput, p pipeline.DecodeParameters, frames int) (ports.DecodeOutput, error) {
	if p.BatchSize >= frames || input.Latents.Dims() != 5 {
		return iv.call(ctx, input.Decoder, input.Latents, p, input.Scale)
	}

	ts := max(1, input.Scale.TimeScale)
	acc := stitch.NewAccumulator()
	for _, c := range SubPlan(frames, p.BatchSize, p.Overlap).Chunks {
		window, err := input.Latents.Narrow(2, c.CtxStart, c.CtxEnd)
		if err != nil {
			return ports.DecodeOutput{}, err
		}
		out, err := iv.call(ctx, input.Decoder, window, p, input.Scale)
		if err != nil {
			return ports.DecodeOutput{}, err
		}
		decoded, err := normalize.Output(out)
		if err != nil {
			return ports.DecodeOutput{}, fmt.Errorf("sub-batch %s: %w", c, err)
		}
		res, err := stitch.Slice(decoded, c, frames, ts)
		if err != nil {
			return ports.DecodeOutput{}, err
		}
		acc.Append(res.Frames)
	}

	joined, err := acc.Result()
	if err != nil {
		return ports.DecodeOutput{}, err
	}
	return ports.Single(joined), nil
}

// call performs one decoder call, tiled when p asks for it and the decoder
// can tile.
func (iv *Invoker) call(ctx context.Context, decoder ports.LatentDecoder, latents *tensor.Tensor, p pipeline.DecodeParameters, scale pipeline.ScaleInfo) (ports.DecodeOutput, error) {
	if p.TilingEnabled {
		if td, ok := decoder.(ports.TiledDecoder); ok {
			return td.DecodeTiled(ctx, latents, p.TileSize, p.TileSize)
		}
		if iv.manualTiling {
			return tile.NewDecoder(decoder, scale.SpatialScale).DecodeTiled(ctx, latents, p.TileSize, p.TileSize)
		}
	}
	return decoder.Decode(ctx, latents)
}

// SubPlan splits a window of frames latent frames into sub-windows of batch
// frames. Unlike a top-level plan, every sub-window but the last keeps at
// least one trailing context frame so a causal decoder emits all frames of
// its core even when overlap has been reduced to zero.
func SubPlan(frames, batch, overlap int) pipeline.ChunkPlan {
	p := plan.ComputePlan(frames, batch, overlap)
	for i := range p.Chunks {
		c := &p.Chunks[i]
		if c.CoreEnd < frames && c.CtxEnd == c.CoreEnd {
			c.CtxEnd++
		}
	}
	return p
}

func latentFrames(latents *tensor.Tensor) int {
	if latents.Dims() == 5 {
		return latents.Dim(2)
	}
	return 1
}

func initialParams(p pipeline.DecodeParameters, frames int) pipeline.DecodeParameters {
	if p.BatchSize <= 0 || p.BatchSize > frames {
		p.BatchSize = frames
	}
	p.Overlap = max(0, min(p.Overlap, p.BatchSize-1))
	if p.TileSize <= 0 {
		p.TileSize = DefaultTileSize
	}
	return p
}
