package ports

import "github.com/user/chunkdecode/pkg/tensor"

// DebugSink receives intermediate results of a decode run for inspection.
type DebugSink interface {
	// Enabled returns true if debug output is enabled.
	Enabled() bool

	// SaveScaleJSON saves the detected scale information.
	SaveScaleJSON(data []byte) error

	// SavePlanJSON saves the chunk plan.
	SavePlanJSON(data []byte) error

	// SaveChunkFrames saves the normalized output of one chunk, context included.
	SaveChunkFrames(chunk int, frames *tensor.Tensor) error

	// SaveReportJSON saves the final run report.
	SaveReportJSON(data []byte) error
}
