// Package plan implements the chunk planning stage.
package plan

import (
	"context"

	"github.com/user/chunkdecode/pkg/pipeline"
)

// Stage splits a latent sequence into overlapping chunks.
// This is a pure function with no external dependencies.
type Stage struct{}

// NewStage creates a new plan stage.
func NewStage() *Stage {
	return &Stage{}
}

// Execute computes the chunk plan for the input parameters.
func (s *Stage) Execute(ctx context.Context, input pipeline.PlanInput) (pipeline.ChunkPlan, error) {
	return ComputePlan(input.TotalFrames, input.BatchSize, input.Overlap), nil
}

// Clamp returns the effective batch size and overlap for a sequence:
// batch in [1, total] and overlap in [0, batch-1]. An overlap that reached
// the batch size would leave a chunk without a core.
func Clamp(total, batch, overlap int) (int, int) {
	if total < 1 {
		total = 1
	}
	batch = max(1, min(batch, total))
	overlap = max(0, min(overlap, batch-1))
	return batch, overlap
}

// ComputePlan performs the planning.
// Cores walk 0, batch, 2*batch, ... and are contiguous and disjoint; each
// context extends its core by overlap frames on both sides, clamped to the
// sequence. The plan depends only on its inputs, never on decode outcomes.
func ComputePlan(total, batch, overlap int) pipeline.ChunkPlan {
	batch, overlap = Clamp(total, batch, overlap)
	p := pipeline.ChunkPlan{
		TotalFrames: max(total, 0),
		BatchSize:   batch,
		Overlap:     overlap,
	}
	if total <= 0 {
		return p
	}

	p.Chunks = make([]pipeline.ChunkDescriptor, 0, (total+batch-1)/batch)
	for start := 0; start < total; start += batch {
		end := min(start+batch, total)
		p.Chunks = append(p.Chunks, pipeline.ChunkDescriptor{
			Index:     len(p.Chunks),
			CoreStart: start,
			CoreEnd:   end,
			CtxStart:  max(0, start-overlap),
			CtxEnd:    min(total, end+overlap),
		})
	}
	return p
}
