package pipeline

import (
	"fmt"

	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/tensor"
)

// DefaultSpatialScale is assumed when the spatial ratio is not measured.
const DefaultSpatialScale = 8

// =============================================================================
// Latents
// =============================================================================

// Latents is the compressed sequence consumed by a decoder: a 5-D
// [B, C, F, H, W] tensor, or a 4-D [B, C, H, W] still image.
type Latents struct {
	T *tensor.Tensor
}

// NewLatents validates the rank of t and wraps it.
func NewLatents(t *tensor.Tensor) (Latents, error) {
	if t == nil {
		return Latents{}, fmt.Errorf("latents: nil tensor")
	}
	if t.Dims() != 4 && t.Dims() != 5 {
		return Latents{}, fmt.Errorf("latents: expected 4 or 5 dimensions, got %v", t.Shape())
	}
	return Latents{T: t}, nil
}

// IsStill reports whether the latents have no temporal axis.
func (l Latents) IsStill() bool {
	return l.T.Dims() == 4
}

// Frames returns the number of latent frames (1 for a still).
func (l Latents) Frames() int {
	if l.IsStill() {
		return 1
	}
	return l.T.Dim(2)
}

// Height returns the latent height.
func (l Latents) Height() int {
	return l.T.Dim(-2)
}

// Width returns the latent width.
func (l Latents) Width() int {
	return l.T.Dim(-1)
}

// Window returns latent frames [start, end) as a 5-D tensor.
func (l Latents) Window(start, end int) (*tensor.Tensor, error) {
	if l.IsStill() {
		return l.T, nil
	}
	return l.T.Narrow(2, start, end)
}

// Crop returns the leading frames and the top-left h x w latent pixels,
// the sample used to probe a decoder.
func (l Latents) Crop(frames, h, w int) (*tensor.Tensor, error) {
	t := l.T
	var err error
	if !l.IsStill() {
		if t, err = t.Narrow(2, 0, frames); err != nil {
			return nil, err
		}
	}
	if t, err = t.Narrow(-2, 0, h); err != nil {
		return nil, err
	}
	return t.Narrow(-1, 0, w)
}

// =============================================================================
// Scale
// =============================================================================

// ScaleSource records how a ScaleInfo was obtained.
type ScaleSource string

const (
	ScaleFromOverride ScaleSource = "override"
	ScaleFromCache    ScaleSource = "cache"
	ScaleFromMetadata ScaleSource = "metadata"
	ScaleFromProbe    ScaleSource = "probe"
	ScaleFromDefault  ScaleSource = "default"
)

// ScaleInfo describes the upsampling ratios of a decoder.
type ScaleInfo struct {
	// TimeScale is the number of output frames per additional latent frame.
	TimeScale int `json:"time_scale"`
	// SpatialScale is the number of output pixels per latent pixel.
	SpatialScale int         `json:"spatial_scale"`
	Source       ScaleSource `json:"source"`
}

// ExpectedFrames returns the decoded length of n latent frames:
// 1 + (n-1) * TimeScale.
func (s ScaleInfo) ExpectedFrames(n int) int {
	if n <= 0 {
		return 0
	}
	return 1 + (n-1)*s.TimeScale
}

// ScaleOverride forces a time scale instead of detecting it.
type ScaleOverride struct {
	TimeScale int // > 0 to force
}

// ScaleInput contains parameters for scale estimation.
type ScaleInput struct {
	Decoder  ports.LatentDecoder
	Latents  Latents
	Override ScaleOverride
}

// =============================================================================
// Plan
// =============================================================================

// PlanInput contains parameters for chunk planning.
type PlanInput struct {
	TotalFrames int
	BatchSize   int
	Overlap     int
}

// ChunkDescriptor is one window of a plan, in latent-frame indices.
// 0 <= CtxStart <= CoreStart < CoreEnd <= CtxEnd <= total.
type ChunkDescriptor struct {
	Index     int `json:"index"`
	CoreStart int `json:"core_start"`
	CoreEnd   int `json:"core_end"`
	CtxStart  int `json:"ctx_start"`
	CtxEnd    int `json:"ctx_end"`
}

// CoreLen returns the number of latent frames the chunk is responsible for.
func (c ChunkDescriptor) CoreLen() int {
	return c.CoreEnd - c.CoreStart
}

// CtxLen returns the number of latent frames fed to the decoder.
func (c ChunkDescriptor) CtxLen() int {
	return c.CtxEnd - c.CtxStart
}

// String formats the descriptor for logs and errors.
func (c ChunkDescriptor) String() string {
	return fmt.Sprintf("chunk %d core [%d,%d) ctx [%d,%d)", c.Index, c.CoreStart, c.CoreEnd, c.CtxStart, c.CtxEnd)
}

// ChunkPlan is the ordered set of chunks for a sequence, with the effective
// (clamped) batch size and overlap it was built from.
type ChunkPlan struct {
	TotalFrames int               `json:"total_frames"`
	BatchSize   int               `json:"batch_size"`
	Overlap     int               `json:"overlap"`
	Chunks      []ChunkDescriptor `json:"chunks"`
}

// IsLast reports whether c is the final chunk of the plan.
func (p ChunkPlan) IsLast(c ChunkDescriptor) bool {
	return c.CoreEnd == p.TotalFrames
}

// =============================================================================
// Invoke
// =============================================================================

// DecodeParameters control how a single chunk is decoded.
type DecodeParameters struct {
	BatchSize     int  `json:"batch_size"` // latent frames per decoder call
	Overlap       int  `json:"overlap"`
	TilingEnabled bool `json:"tiling_enabled"`
	TileSize      int  `json:"tile_size"` // pixels
}

// InvokeInput contains parameters for decoding one latent window.
type InvokeInput struct {
	Decoder ports.LatentDecoder
	Latents *tensor.Tensor
	Params  DecodeParameters
	Scale   ScaleInfo
	Label   string // chunk description for diagnostics
}

// InvokeResult contains the raw output of a successful invocation.
type InvokeResult struct {
	Output ports.DecodeOutput
	Params DecodeParameters // parameters that finally succeeded
	Steps  []string         // degradation steps taken, in order
}

// =============================================================================
// Stitch
// =============================================================================

// StitchInput contains a normalized chunk and where it belongs.
type StitchInput struct {
	Frames      *tensor.Tensor
	Chunk       ChunkDescriptor
	TotalFrames int
	TimeScale   int
}

// StitchResult is the non-overlapping slice of a chunk's output.
type StitchResult struct {
	Frames    *tensor.Tensor
	FrontTrim int
	Length    int
	Expected  int // length the chunk should have contributed
}

// =============================================================================
// Decode
// =============================================================================

// ChunkReport summarizes how one chunk was decoded.
type ChunkReport struct {
	Chunk         ChunkDescriptor  `json:"chunk"`
	DecodedFrames int              `json:"decoded_frames"`
	KeptFrames    int              `json:"kept_frames"`
	Params        DecodeParameters `json:"params"`
	Steps         []string         `json:"steps,omitempty"`
}

// DecodeResult is the reconstructed frame sequence plus run diagnostics.
type DecodeResult struct {
	RunID          string         `json:"run_id"`
	Frames         *tensor.Tensor `json:"-"` // [F, H, W, C<=3]
	Scale          ScaleInfo      `json:"scale"`
	Plan           ChunkPlan      `json:"plan"`
	Chunks         []ChunkReport  `json:"chunks"`
	Expected       int            `json:"expected_frames"`
	Actual         int            `json:"actual_frames"`
	LengthMismatch bool           `json:"length_mismatch"`
	Still          bool           `json:"still"`
	DurationMs     int64          `json:"duration_ms"`
}

// Degraded reports whether any chunk needed the degradation ladder.
func (r DecodeResult) Degraded() bool {
	for _, c := range r.Chunks {
		if len(c.Steps) > 0 {
			return true
		}
	}
	return false
}

// =============================================================================
// Export
// =============================================================================

// ExportInput describes where decoded frames should be written. Empty paths
// skip the corresponding output.
type ExportInput struct {
	Frames *tensor.Tensor // [F, H, W, C<=3]

	// Image sequence
	FramesDir string
	Format    ports.ImageFormat
	Quality   int // JPEG quality

	// Video
	VideoPath string
	Video     ports.EncoderOptions

	// Contact sheet
	ContactSheetPath string
	ContactSheet     ports.ContactSheetOptions
}

// ExportResult lists what was written.
type ExportResult struct {
	FramePaths       []string `json:"frame_paths,omitempty"`
	VideoPath        string   `json:"video_path,omitempty"`
	VideoSize        int64    `json:"video_size,omitempty"`
	VideoDurationMs  int64    `json:"video_duration_ms,omitempty"`
	ContactSheetPath string   `json:"contact_sheet_path,omitempty"`
}
