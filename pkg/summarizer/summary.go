// Package summarizer provides summary generation for decode runs.
package summarizer

import (
	"time"

	"github.com/user/chunkdecode/pkg/pipeline"
)

// Summary contains all data collected during a decode run.
type Summary struct {
	// Metadata
	GeneratedAt time.Time `yaml:"generated_at"`
	RunID       string    `yaml:"run_id"`

	// Input latents
	Input InputInfo `yaml:"input"`

	// Decoder and detected scale
	Decoder DecoderInfo `yaml:"decoder"`

	// Decode settings
	Settings Settings `yaml:"settings"`

	// Run outcome
	Result ResultInfo `yaml:"result"`

	// Per-chunk details
	Chunks []ChunkInfo `yaml:"chunks"`

	// Written outputs
	Output OutputInfo `yaml:"output"`
}

// InputInfo describes the latent input.
type InputInfo struct {
	Path       string `yaml:"path"`
	TensorName string `yaml:"tensor_name"`
	DType      string `yaml:"dtype"`
	Shape      []int  `yaml:"shape"`
	Frames     int    `yaml:"frames"`
	Still      bool   `yaml:"still"`
}

// DecoderInfo describes the decoder and its scale.
type DecoderInfo struct {
	ID           string `yaml:"id"`
	TimeScale    int    `yaml:"time_scale"`
	SpatialScale int    `yaml:"spatial_scale"`
	ScaleSource  string `yaml:"scale_source"`
}

// Settings contains the decode configuration.
type Settings struct {
	FramesPerBatch int  `yaml:"frames_per_batch"`
	Overlap        int  `yaml:"overlap"`
	TileMode       bool `yaml:"tile_mode"`
	TileSize       int  `yaml:"tile_size"`
	ManualTiling   bool `yaml:"manual_tiling"`
}

// ResultInfo summarizes the decoded sequence.
type ResultInfo struct {
	Chunks         int   `yaml:"chunks"`
	ExpectedFrames int   `yaml:"expected_frames"`
	ActualFrames   int   `yaml:"actual_frames"`
	LengthMismatch bool  `yaml:"length_mismatch"`
	Degraded       bool  `yaml:"degraded"`
	DurationMs     int64 `yaml:"duration_ms"`
}

// ChunkInfo describes how one chunk was decoded.
type ChunkInfo struct {
	Index      int      `yaml:"index"`
	CoreStart  int      `yaml:"core_start"`
	CoreEnd    int      `yaml:"core_end"`
	CtxStart   int      `yaml:"ctx_start"`
	CtxEnd     int      `yaml:"ctx_end"`
	KeptFrames int      `yaml:"kept_frames"`
	Steps      []string `yaml:"steps"`
}

// OutputInfo describes the written files.
type OutputInfo struct {
	FramesDir       string `yaml:"frames_dir"`
	FrameCount      int    `yaml:"frame_count"`
	VideoPath       string `yaml:"video_path"`
	VideoSize       int64  `yaml:"video_size"`
	VideoDurationMs int64  `yaml:"video_duration_ms"`
	VideoSamples    int    `yaml:"video_samples"`     // samples found when the video was verified, 0 if not verified
	ContactSheet    string `yaml:"contact_sheet"`
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithInput sets input information.
func (b *Builder) WithInput(input InputInfo) *Builder {
	b.summary.Input = input
	return b
}

// WithDecoderID sets the decoder identity.
func (b *Builder) WithDecoderID(id string) *Builder {
	b.summary.Decoder.ID = id
	return b
}

// WithSettings sets decode settings.
func (b *Builder) WithSettings(settings Settings) *Builder {
	b.summary.Settings = settings
	return b
}

// WithResult copies the outcome of a decode run.
func (b *Builder) WithResult(r pipeline.DecodeResult) *Builder {
	s := b.summary
	s.RunID = r.RunID
	s.Decoder.TimeScale = r.Scale.TimeScale
	s.Decoder.SpatialScale = r.Scale.SpatialScale
	s.Decoder.ScaleSource = string(r.Scale.Source)
	s.Input.Still = r.Still

	s.Result = ResultInfo{
		Chunks:         len(r.Chunks),
		ExpectedFrames: r.Expected,
		ActualFrames:   r.Actual,
		LengthMismatch: r.LengthMismatch,
		Degraded:       r.Degraded(),
		DurationMs:     r.DurationMs,
	}

	s.Chunks = make([]ChunkInfo, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		s.Chunks = append(s.Chunks, ChunkInfo{
			Index:      c.Chunk.Index,
			CoreStart:  c.Chunk.CoreStart,
			CoreEnd:    c.Chunk.CoreEnd,
			CtxStart:   c.Chunk.CtxStart,
			CtxEnd:     c.Chunk.CtxEnd,
			KeptFrames: c.KeptFrames,
			Steps:      c.Steps,
		})
	}
	return b
}

// WithExport sets output information.
func (b *Builder) WithExport(e pipeline.ExportResult) *Builder {
	b.summary.Output.FrameCount = len(e.FramePaths)
	b.summary.Output.VideoPath = e.VideoPath
	b.summary.Output.VideoSize = e.VideoSize
	b.summary.Output.VideoDurationMs = e.VideoDurationMs
	b.summary.Output.ContactSheet = e.ContactSheetPath
	return b
}

// WithFramesDir sets the frame sequence directory.
func (b *Builder) WithFramesDir(dir string) *Builder {
	b.summary.Output.FramesDir = dir
	return b
}

// WithVideoSamples records the sample count found by verification.
func (b *Builder) WithVideoSamples(n int) *Builder {
	b.summary.Output.VideoSamples = n
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
