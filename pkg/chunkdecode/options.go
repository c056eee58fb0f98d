package chunkdecode

import (
	"github.com/user/chunkdecode/pkg/orchestrator"
	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/stages/invoke"
)

// MemoryPreset names a starting point sized for the memory at hand.
type MemoryPreset string

const (
	MemoryLow    MemoryPreset = "low"
	MemoryMedium MemoryPreset = "medium"
	MemoryHigh   MemoryPreset = "high"
)

// MemorySettings contains the chunking parameters of a preset.
type MemorySettings struct {
	FramesPerBatch int
	Overlap        int
	TileMode       bool
	TileSize       int
}

// GetMemorySettings returns the settings for a preset. Unknown names get medium.
func GetMemorySettings(preset MemoryPreset) MemorySettings {
	switch preset {
	case MemoryLow:
		return MemorySettings{
			FramesPerBatch: 4,
			Overlap:        1,
			TileMode:       true,
			TileSize:       256,
		}
	case MemoryHigh:
		return MemorySettings{
			FramesPerBatch: 16,
			Overlap:        2,
			TileMode:       false,
			TileSize:       512,
		}
	default: // medium
		return MemorySettings{
			FramesPerBatch: 8,
			Overlap:        2,
			TileMode:       false,
			TileSize:       512,
		}
	}
}

// Options configures a decode.
type Options struct {
	// Chunking
	FramesPerBatch int // latent frames per chunk core (min: 1)
	Overlap        int // context frames on each side (min: 0)

	// Tiling
	TileMode     bool // start with tiled decoding
	TileSize     int  // tile edge in output pixels
	MinTileSize  int  // floor for tile halving
	ManualTiling bool // tile in Go when the decoder cannot

	// Scale
	TimeScale int // > 0 skips detection

	// Memory
	ReclaimEvery int // reclaim every N chunks, 0 disables

	// Collaborators, all optional
	Reclaimer ports.MemoryReclaimer
	Progress  ports.ProgressReporter
	Sink      ports.DebugSink
	Logger    ports.Logger
}

// OptionsBuilder provides a fluent interface for building Options.
type OptionsBuilder struct {
	options Options
}

// NewOptionsBuilder creates a builder with medium preset defaults.
func NewOptionsBuilder() *OptionsBuilder {
	return &OptionsBuilder{options: defaults()}
}

func defaults() Options {
	m := GetMemorySettings(MemoryMedium)
	return Options{
		FramesPerBatch: m.FramesPerBatch,
		Overlap:        m.Overlap,
		TileMode:       m.TileMode,
		TileSize:       m.TileSize,
		MinTileSize:    invoke.MinTileSize,
		ReclaimEvery:   orchestrator.DefaultConfig().ReclaimEvery,
	}
}

// Build returns the final Options, applying constraints.
func (b *OptionsBuilder) Build() Options {
	opts := b.options

	if opts.FramesPerBatch < 1 {
		opts.FramesPerBatch = 1
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	if opts.MinTileSize <= 0 {
		opts.MinTileSize = invoke.MinTileSize
	}
	if opts.TileSize <= 0 {
		opts.TileSize = invoke.DefaultTileSize
	}
	if opts.TileSize < opts.MinTileSize {
		opts.TileSize = opts.MinTileSize
	}
	if opts.TimeScale < 0 {
		opts.TimeScale = 0
	}
	if opts.ReclaimEvery < 0 {
		opts.ReclaimEvery = 0
	}

	return opts
}

// WithFramesPerBatch sets the latent frames per chunk core.
// Values below 1 will be forced to 1.
func (b *OptionsBuilder) WithFramesPerBatch(n int) *OptionsBuilder {
	b.options.FramesPerBatch = n
	return b
}

// WithOverlap sets the context frames on each side of a core.
func (b *OptionsBuilder) WithOverlap(n int) *OptionsBuilder {
	b.options.Overlap = n
	return b
}

// WithTileMode starts every chunk with tiled decoding.
func (b *OptionsBuilder) WithTileMode(enabled bool) *OptionsBuilder {
	b.options.TileMode = enabled
	return b
}

// WithTileSize sets the tile edge in output pixels.
func (b *OptionsBuilder) WithTileSize(px int) *OptionsBuilder {
	b.options.TileSize = px
	return b
}

// WithMinTileSize sets the floor for tile halving.
func (b *OptionsBuilder) WithMinTileSize(px int) *OptionsBuilder {
	b.options.MinTileSize = px
	return b
}

// WithManualTiling tiles latents in Go for decoders without tiled decode.
func (b *OptionsBuilder) WithManualTiling(enabled bool) *OptionsBuilder {
	b.options.ManualTiling = enabled
	return b
}

// WithTimeScale forces the temporal upsampling ratio. 0 detects it.
func (b *OptionsBuilder) WithTimeScale(scale int) *OptionsBuilder {
	b.options.TimeScale = scale
	return b
}

// WithReclaimEvery reclaims memory every n chunks. 0 disables.
func (b *OptionsBuilder) WithReclaimEvery(n int) *OptionsBuilder {
	b.options.ReclaimEvery = n
	return b
}

// WithMemoryPreset applies a preset (low, medium, high).
func (b *OptionsBuilder) WithMemoryPreset(preset MemoryPreset) *OptionsBuilder {
	m := GetMemorySettings(preset)
	b.options.FramesPerBatch = m.FramesPerBatch
	b.options.Overlap = m.Overlap
	b.options.TileMode = m.TileMode
	b.options.TileSize = m.TileSize
	return b
}

// WithReclaimer sets the memory reclaimer.
func (b *OptionsBuilder) WithReclaimer(r ports.MemoryReclaimer) *OptionsBuilder {
	b.options.Reclaimer = r
	return b
}

// WithProgress sets the progress reporter.
func (b *OptionsBuilder) WithProgress(p ports.ProgressReporter) *OptionsBuilder {
	b.options.Progress = p
	return b
}

// WithSink sets the debug sink.
func (b *OptionsBuilder) WithSink(s ports.DebugSink) *OptionsBuilder {
	b.options.Sink = s
	return b
}

// WithLogger sets the logger.
func (b *OptionsBuilder) WithLogger(l ports.Logger) *OptionsBuilder {
	b.options.Logger = l
	return b
}

// ToOrchestratorConfig converts Options to orchestrator.Config.
func (o Options) ToOrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		FramesPerBatch: o.FramesPerBatch,
		Overlap:        o.Overlap,
		TileMode:       o.TileMode,
		TileSize:       o.TileSize,
		TimeScale:      o.TimeScale,
		ReclaimEvery:   o.ReclaimEvery,
	}
}

// ToInvokeConfig converts Options to invoke.Config.
func (o Options) ToInvokeConfig() invoke.Config {
	return invoke.Config{
		ManualTiling: o.ManualTiling,
		MinTileSize:  o.MinTileSize,
	}
}
