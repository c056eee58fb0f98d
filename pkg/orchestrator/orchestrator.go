// Package orchestrator coordinates the stages of a chunked decode.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ideamans/go-l10n"

	"github.com/user/chunkdecode/pkg/pipeline"
	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/stages/stitch"
	"github.com/user/chunkdecode/pkg/tensor"
)

// ErrCancelled is returned when the context is cancelled between chunks.
// The returned error also matches the context error.
var ErrCancelled = errors.New("decode cancelled")

// ChunkError reports a chunk that could not be decoded.
type ChunkError struct {
	Chunk pipeline.ChunkDescriptor
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Chunk, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Config contains the decode parameters for one run.
type Config struct {
	FramesPerBatch int  // latent frames per chunk core
	Overlap        int  // context frames on each side of a core
	TileMode       bool // start with tiled decoding
	TileSize       int  // tile edge in output pixels
	TimeScale      int  // > 0 overrides scale detection
	ReclaimEvery   int  // reclaim memory every N chunks, 0 disables
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		FramesPerBatch: 8,
		Overlap:        2,
		TileMode:       false,
		TileSize:       512,
		TimeScale:      0,
		ReclaimEvery:   2,
	}
}

// Orchestrator coordinates the execution of all pipeline stages.
type Orchestrator struct {
	scaleStage     pipeline.Stage[pipeline.ScaleInput, pipeline.ScaleInfo]
	planStage      pipeline.Stage[pipeline.PlanInput, pipeline.ChunkPlan]
	invokeStage    pipeline.Stage[pipeline.InvokeInput, pipeline.InvokeResult]
	normalizeStage pipeline.Stage[ports.DecodeOutput, *tensor.Tensor]
	stitchStage    pipeline.Stage[pipeline.StitchInput, pipeline.StitchResult]
	reclaimer      ports.MemoryReclaimer
	progress       ports.ProgressReporter
	sink           ports.DebugSink
	logger         ports.Logger
}

// New creates a new Orchestrator. reclaimer and progress may be nil.
func New(
	scaleStage pipeline.Stage[pipeline.ScaleInput, pipeline.ScaleInfo],
	planStage pipeline.Stage[pipeline.PlanInput, pipeline.ChunkPlan],
	invokeStage pipeline.Stage[pipeline.InvokeInput, pipeline.InvokeResult],
	normalizeStage pipeline.Stage[ports.DecodeOutput, *tensor.Tensor],
	stitchStage pipeline.Stage[pipeline.StitchInput, pipeline.StitchResult],
	reclaimer ports.MemoryReclaimer,
	progress ports.ProgressReporter,
	sink ports.DebugSink,
	logger ports.Logger,
) *Orchestrator {
	if reclaimer == nil {
		reclaimer = nopReclaimer{}
	}
	if progress == nil {
		progress = nopProgress{}
	}
	return &Orchestrator{
		scaleStage:     scaleStage,
		planStage:      planStage,
		invokeStage:    invokeStage,
		normalizeStage: normalizeStage,
		stitchStage:    stitchStage,
		reclaimer:      reclaimer,
		progress:       progress,
		sink:           sink,
		logger:         logger,
	}
}

// Run decodes latents with decoder. Chunks are decoded strictly in order on
// the calling goroutine. The only errors are ErrCancelled, a *ChunkError for
// a chunk that could not be decoded, and stage failures before the first
// chunk. A length mismatch is reported in the result, not as an error.
func (o *Orchestrator) Run(ctx context.Context, decoder ports.LatentDecoder, latents pipeline.Latents, config Config) (pipeline.DecodeResult, error) {
	started := time.Now()
	runID := uuid.NewString()
	o.logger.Info(l10n.F("Starting decode run %s", runID))

	var (
		result pipeline.DecodeResult
		err    error
	)
	if latents.IsStill() {
		result, err = o.runStill(ctx, decoder, latents, config)
	} else {
		result, err = o.runVideo(ctx, decoder, latents, config)
	}
	if err != nil {
		return pipeline.DecodeResult{}, err
	}

	result.RunID = runID
	result.DurationMs = time.Since(started).Milliseconds()

	if o.sink.Enabled() {
		if data, err := json.MarshalIndent(result, "", "  "); err == nil {
			o.sink.SaveReportJSON(data)
		}
	}

	o.logger.Info(l10n.F("Decode completed: %d frames in %d ms", result.Actual, result.DurationMs))
	return result, nil
}

func (o *Orchestrator) runVideo(ctx context.Context, decoder ports.LatentDecoder, latents pipeline.Latents, config Config) (pipeline.DecodeResult, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.DecodeResult{}, o.cancelled(err)
	}

	// 1. Scale estimation (never fails)
	scale, err := pipeline.Run(ctx, "scale", o.scaleStage, pipeline.ScaleInput{
		Decoder:  decoder,
		Latents:  latents,
		Override: pipeline.ScaleOverride{TimeScale: config.TimeScale},
	})
	if err != nil {
		return pipeline.DecodeResult{}, err
	}
	o.logger.Info(l10n.F("Scale: time x%d, spatial x%d (%s)", scale.TimeScale, scale.SpatialScale, scale.Source))

	if o.sink.Enabled() {
		if data, err := json.MarshalIndent(scale, "", "  "); err == nil {
			o.sink.SaveScaleJSON(data)
		}
	}

	// 2. Chunk plan, computed once
	total := latents.Frames()
	plan, err := pipeline.Run(ctx, "plan", o.planStage, pipeline.PlanInput{
		TotalFrames: total,
		BatchSize:   config.FramesPerBatch,
		Overlap:     config.Overlap,
	})
	if err != nil {
		return pipeline.DecodeResult{}, err
	}
	o.logger.Info(l10n.F("Planned %d chunks for %d latent frames (batch %d, overlap %d)",
		len(plan.Chunks), total, plan.BatchSize, plan.Overlap))

	if o.sink.Enabled() {
		if data, err := json.MarshalIndent(plan, "", "  "); err == nil {
			o.sink.SavePlanJSON(data)
		}
	}

	// 3. Decode chunks in order
	expected := scale.ExpectedFrames(total)
	acc := stitch.NewAccumulator()
	reports := make([]pipeline.ChunkReport, 0, len(plan.Chunks))

	o.progress.Start(total)
	defer o.progress.Finish()

	for i, chunk := range plan.Chunks {
		if err := ctx.Err(); err != nil {
			o.logger.Warn(l10n.F("Cancelled before chunk %d of %d, discarding %d frames", i+1, len(plan.Chunks), acc.Frames()))
			return pipeline.DecodeResult{}, o.cancelled(err)
		}

		report, err := o.decodeChunk(ctx, decoder, latents, chunk, plan, scale, config, acc)
		if err != nil {
			if isCancellation(err) {
				return pipeline.DecodeResult{}, o.cancelled(err)
			}
			o.logger.Error(l10n.F("Failed to decode chunk %d: %s", chunk.Index, err))
			return pipeline.DecodeResult{}, &ChunkError{Chunk: chunk, Err: err}
		}
		reports = append(reports, report)

		o.logger.Info(l10n.F("Chunk %d/%d: latent [%d,%d) -> %d frames",
			i+1, len(plan.Chunks), chunk.CoreStart, chunk.CoreEnd, report.KeptFrames))
		o.progress.Advance(chunk.CoreLen())

		if config.ReclaimEvery > 0 && (i+1)%config.ReclaimEvery == 0 {
			o.reclaimer.Reclaim()
		}
	}

	// 4. Join and check the length
	frames, err := acc.Result()
	if err != nil {
		return pipeline.DecodeResult{}, &pipeline.StageError{Stage: "stitch", Err: err}
	}

	result := pipeline.DecodeResult{
		Frames:   frames,
		Scale:    scale,
		Plan:     plan,
		Chunks:   reports,
		Expected: expected,
		Actual:   frames.Dim(0),
	}
	o.checkLength(&result)
	return result, nil
}

// decodeChunk runs invoke, normalize and stitch for one chunk and appends the
// valid slice to acc.
func (o *Orchestrator) decodeChunk(
	ctx context.Context,
	decoder ports.LatentDecoder,
	latents pipeline.Latents,
	chunk pipeline.ChunkDescriptor,
	plan pipeline.ChunkPlan,
	scale pipeline.ScaleInfo,
	config Config,
	acc *stitch.Accumulator,
) (pipeline.ChunkReport, error) {
	window, err := latents.Window(chunk.CtxStart, chunk.CtxEnd)
	if err != nil {
		return pipeline.ChunkReport{}, fmt.Errorf("window: %w", err)
	}

	invoked, err := pipeline.Run(ctx, "invoke", o.invokeStage, pipeline.InvokeInput{
		Decoder: decoder,
		Latents: window,
		Params: pipeline.DecodeParameters{
			BatchSize:     chunk.CtxLen(),
			Overlap:       plan.Overlap,
			TilingEnabled: config.TileMode,
			TileSize:      config.TileSize,
		},
		Scale: scale,
		Label: chunk.String(),
	})
	if err != nil {
		return pipeline.ChunkReport{}, err
	}

	frames, err := pipeline.Run(ctx, "normalize", o.normalizeStage, invoked.Output)
	if err != nil {
		return pipeline.ChunkReport{}, err
	}

	if o.sink.Enabled() {
		o.sink.SaveChunkFrames(chunk.Index, frames)
	}

	slice, err := pipeline.Run(ctx, "stitch", o.stitchStage, pipeline.StitchInput{
		Frames:      frames,
		Chunk:       chunk,
		TotalFrames: plan.TotalFrames,
		TimeScale:   scale.TimeScale,
	})
	if err != nil {
		return pipeline.ChunkReport{}, err
	}
	if slice.Length != slice.Expected {
		o.logger.Warn(l10n.F("%s kept %d frames, expected %d", chunk, slice.Length, slice.Expected))
	}
	acc.Append(slice.Frames)

	return pipeline.ChunkReport{
		Chunk:         chunk,
		DecodedFrames: frames.Dim(0),
		KeptFrames:    slice.Length,
		Params:        invoked.Params,
		Steps:         invoked.Steps,
	}, nil
}

// runStill decodes a still image with a single invocation.
func (o *Orchestrator) runStill(ctx context.Context, decoder ports.LatentDecoder, latents pipeline.Latents, config Config) (pipeline.DecodeResult, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.DecodeResult{}, o.cancelled(err)
	}
	o.logger.Info(l10n.T("Decoding still image"))

	scale := pipeline.ScaleInfo{
		TimeScale:    1,
		SpatialScale: pipeline.DefaultSpatialScale,
		Source:       pipeline.ScaleFromDefault,
	}
	invoked, err := pipeline.Run(ctx, "invoke", o.invokeStage, pipeline.InvokeInput{
		Decoder: decoder,
		Latents: latents.T,
		Params: pipeline.DecodeParameters{
			BatchSize:     1,
			TilingEnabled: config.TileMode,
			TileSize:      config.TileSize,
		},
		Scale: scale,
		Label: "still",
	})
	if err != nil {
		if isCancellation(err) {
			return pipeline.DecodeResult{}, o.cancelled(err)
		}
		return pipeline.DecodeResult{}, err
	}

	frames, err := pipeline.Run(ctx, "normalize", o.normalizeStage, invoked.Output)
	if err != nil {
		return pipeline.DecodeResult{}, err
	}

	result := pipeline.DecodeResult{
		Frames:   frames,
		Scale:    scale,
		Expected: latents.T.Dim(0),
		Actual:   frames.Dim(0),
		Still:    true,
		Chunks: []pipeline.ChunkReport{{
			DecodedFrames: frames.Dim(0),
			KeptFrames:    frames.Dim(0),
			Params:        invoked.Params,
			Steps:         invoked.Steps,
		}},
	}
	o.checkLength(&result)
	return result, nil
}

func (o *Orchestrator) checkLength(result *pipeline.DecodeResult) {
	if result.Actual != result.Expected {
		result.LengthMismatch = true
		o.logger.Warn(l10n.F("Length mismatch: got %d frames, expected %d (%+d)",
			result.Actual, result.Expected, result.Actual-result.Expected))
		return
	}
	o.logger.Info(l10n.F("Sync OK: %d frames", result.Actual))
}

func (o *Orchestrator) cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type nopReclaimer struct{}

func (nopReclaimer) Reclaim() {}

type nopProgress struct{}

func (nopProgress) Start(int)   {}
func (nopProgress) Advance(int) {}
func (nopProgress) Finish()     {}
