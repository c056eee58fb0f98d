// Package chunkdecode provides a high-level API for decoding long latent
// sequences in overlapping chunks under a memory budget.
package chunkdecode

import (
	"context"

	"github.com/user/chunkdecode/pkg/adapters/logger"
	"github.com/user/chunkdecode/pkg/adapters/nullsink"
	"github.com/user/chunkdecode/pkg/orchestrator"
	"github.com/user/chunkdecode/pkg/pipeline"
	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/stages/invoke"
	"github.com/user/chunkdecode/pkg/stages/normalize"
	"github.com/user/chunkdecode/pkg/stages/plan"
	"github.com/user/chunkdecode/pkg/stages/scale"
	"github.com/user/chunkdecode/pkg/stages/stitch"
	"github.com/user/chunkdecode/pkg/tensor"
)

// sharedCache remembers probed scales across Decode calls for the lifetime
// of the process.
var sharedCache = scale.NewCache()

// Pipeline is a wired decode pipeline. It can be reused across runs; the
// scale cache it holds spares repeated probes of the same decoder.
type Pipeline struct {
	orch    *orchestrator.Orchestrator
	options Options
}

// NewPipeline wires the stages for opts with its own scale cache.
func NewPipeline(opts Options) *Pipeline {
	return newPipeline(opts, scale.NewCache())
}

func newPipeline(opts Options, cache *scale.Cache) *Pipeline {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoop()
	}
	sink := opts.Sink
	if sink == nil {
		sink = nullsink.New()
	}

	orch := orchestrator.New(
		scale.NewEstimator(cache, log),
		plan.NewStage(),
		invoke.New(opts.Reclaimer, log, opts.ToInvokeConfig()),
		normalize.NewStage(),
		stitch.NewStage(),
		opts.Reclaimer,
		opts.Progress,
		sink,
		log,
	)
	return &Pipeline{orch: orch, options: opts}
}

// Decode decodes a [B, C, F, H, W] video or [B, C, H, W] still latent tensor
// into [F, H, W, C<=3] frames with values in [0, 1].
func (p *Pipeline) Decode(ctx context.Context, latents *tensor.Tensor, decoder ports.LatentDecoder) (pipeline.DecodeResult, error) {
	l, err := pipeline.NewLatents(latents)
	if err != nil {
		return pipeline.DecodeResult{}, err
	}
	return p.orch.Run(ctx, decoder, l, p.options.ToOrchestratorConfig())
}

// Decode decodes latents with decoder using opts. Scales probed here are
// shared between calls.
func Decode(ctx context.Context, latents *tensor.Tensor, decoder ports.LatentDecoder, opts Options) (pipeline.DecodeResult, error) {
	return newPipeline(opts, sharedCache).Decode(ctx, latents, decoder)
}
