// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/user/chunkdecode/pkg/adapters/refdecoder"
	"github.com/user/chunkdecode/pkg/chunkdecode"
	"github.com/user/chunkdecode/pkg/orchestrator"
	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/stages/invoke"
)

// Config represents the full configuration for chunkdecode.
type Config struct {
	// Chunking
	FramesPerBatch int    `yaml:"frames_per_batch"`
	Overlap        int    `yaml:"overlap"`
	MemoryPreset   string `yaml:"memory_preset"`

	// Tiling
	TileMode     bool `yaml:"tile_mode"`
	TileSize     int  `yaml:"tile_size"`
	MinTileSize  int  `yaml:"min_tile_size"`
	ManualTiling bool `yaml:"manual_tiling"`

	// Scale
	TimeScale int `yaml:"time_scale"`

	// Memory
	ReclaimEvery int `yaml:"reclaim_every"`

	// Input
	TensorName string `yaml:"tensor_name"`

	Decoder DecoderConfig `yaml:"decoder"`
	Output  OutputConfig  `yaml:"output"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Debug
	Debug    bool   `yaml:"debug"`
	DebugDir string `yaml:"debug_dir"`
}

// DecoderConfig configures the reference decoder.
type DecoderConfig struct {
	TimeScale    int    `yaml:"time_scale"`
	SpatialScale int    `yaml:"spatial_scale"`
	Channels     int    `yaml:"channels"`
	MemoryBudget int64  `yaml:"memory_budget"`
	Declare      bool   `yaml:"declare"`
	ID           string `yaml:"id"`
}

// OutputConfig configures what is written after decoding.
type OutputConfig struct {
	FramesDir    string  `yaml:"frames_dir"`
	Format       string  `yaml:"format"` // png or jpeg
	Quality      int     `yaml:"quality"`
	Video        string  `yaml:"video"`
	FPS          float64 `yaml:"fps"`
	CRF          int     `yaml:"crf"`
	Preset       string  `yaml:"preset"`
	Bitrate      int     `yaml:"bitrate"`
	FFmpegPath   string  `yaml:"ffmpeg_path"`
	ContactSheet string  `yaml:"contact_sheet"`
	SheetColumns int     `yaml:"sheet_columns"`
	SheetWidth   int     `yaml:"sheet_width"`
	SheetStep    int     `yaml:"sheet_step"`
	Workers      int     `yaml:"workers"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	run := orchestrator.DefaultConfig()
	dec := refdecoder.DefaultConfig()
	return Config{
		// Chunking
		FramesPerBatch: run.FramesPerBatch,
		Overlap:        run.Overlap,

		// Tiling
		TileMode:    run.TileMode,
		TileSize:    run.TileSize,
		MinTileSize: invoke.MinTileSize,

		// Memory
		ReclaimEvery: run.ReclaimEvery,

		Decoder: DecoderConfig{
			TimeScale:    dec.TimeScale,
			SpatialScale: dec.SpatialScale,
			Channels:     dec.Channels,
		},

		Output: OutputConfig{
			Format:       "png",
			Quality:      90,
			FPS:          24.0,
			CRF:          23,
			Preset:       "fast",
			SheetColumns: 8,
			SheetWidth:   160,
			SheetStep:    1,
			Workers:      4,
		},

		LogLevel: "info",
		DebugDir: "./debug",
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	if cfg.MemoryPreset != "" {
		cfg.applyPreset(chunkdecode.MemoryPreset(cfg.MemoryPreset))
	}

	return cfg, nil
}

// applyPreset fills chunking fields the file left at their defaults.
func (c *Config) applyPreset(preset chunkdecode.MemoryPreset) {
	d := Defaults()
	m := chunkdecode.GetMemorySettings(preset)
	if c.FramesPerBatch == d.FramesPerBatch {
		c.FramesPerBatch = m.FramesPerBatch
	}
	if c.Overlap == d.Overlap {
		c.Overlap = m.Overlap
	}
	if c.TileMode == d.TileMode {
		c.TileMode = m.TileMode
	}
	if c.TileSize == d.TileSize {
		c.TileSize = m.TileSize
	}
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.FramesPerBatch < 1 {
		errs = append(errs, fmt.Errorf("frames_per_batch must be at least 1, got %d", c.FramesPerBatch))
	}
	if c.Overlap < 0 {
		errs = append(errs, fmt.Errorf("overlap must not be negative, got %d", c.Overlap))
	}
	if c.TileSize < 1 {
		errs = append(errs, fmt.Errorf("tile_size must be positive, got %d", c.TileSize))
	}
	if c.MinTileSize < 1 || c.MinTileSize > c.TileSize {
		errs = append(errs, fmt.Errorf("min_tile_size must be in [1, tile_size], got %d", c.MinTileSize))
	}
	if c.TimeScale < 0 {
		errs = append(errs, fmt.Errorf("time_scale must not be negative, got %d", c.TimeScale))
	}
	if c.ReclaimEvery < 0 {
		errs = append(errs, fmt.Errorf("reclaim_every must not be negative, got %d", c.ReclaimEvery))
	}
	switch c.MemoryPreset {
	case "", string(chunkdecode.MemoryLow), string(chunkdecode.MemoryMedium), string(chunkdecode.MemoryHigh):
	default:
		errs = append(errs, fmt.Errorf("unknown memory_preset %q", c.MemoryPreset))
	}
	if c.Decoder.TimeScale < 1 || c.Decoder.SpatialScale < 1 {
		errs = append(errs, fmt.Errorf("decoder scales must be positive, got time %d spatial %d", c.Decoder.TimeScale, c.Decoder.SpatialScale))
	}
	if c.Decoder.MemoryBudget < 0 {
		errs = append(errs, fmt.Errorf("decoder.memory_budget must not be negative"))
	}
	if _, err := ParseImageFormat(c.Output.Format); err != nil {
		errs = append(errs, err)
	}
	if c.Output.FPS <= 0 {
		errs = append(errs, fmt.Errorf("output.fps must be positive, got %g", c.Output.FPS))
	}
	if c.Output.CRF < 0 || c.Output.CRF > 51 {
		errs = append(errs, fmt.Errorf("output.crf must be in [0, 51], got %d", c.Output.CRF))
	}
	if _, err := ports.LookupLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ParseImageFormat maps a format name to ports.ImageFormat.
func ParseImageFormat(name string) (ports.ImageFormat, error) {
	switch name {
	case "", "png":
		return ports.FormatPNG, nil
	case "jpeg", "jpg":
		return ports.FormatJPEG, nil
	}
	return ports.FormatPNG, fmt.Errorf("unknown output.format %q", name)
}

// ToDecodeOptions converts Config to chunkdecode.Options. Collaborators
// (logger, progress, sink, reclaimer) are left for the caller to set.
func (c Config) ToDecodeOptions() chunkdecode.Options {
	return chunkdecode.NewOptionsBuilder().
		WithFramesPerBatch(c.FramesPerBatch).
		WithOverlap(c.Overlap).
		WithTileMode(c.TileMode).
		WithTileSize(c.TileSize).
		WithMinTileSize(c.MinTileSize).
		WithManualTiling(c.ManualTiling).
		WithTimeScale(c.TimeScale).
		WithReclaimEvery(c.ReclaimEvery).
		Build()
}

// ToRunConfig converts Config to orchestrator.Config.
func (c Config) ToRunConfig() orchestrator.Config {
	return c.ToDecodeOptions().ToOrchestratorConfig()
}

// ToDecoderConfig converts Config to refdecoder.Config.
func (c Config) ToDecoderConfig() refdecoder.Config {
	return refdecoder.Config{
		TimeScale:    c.Decoder.TimeScale,
		SpatialScale: c.Decoder.SpatialScale,
		Channels:     c.Decoder.Channels,
		MemoryBudget: c.Decoder.MemoryBudget,
		Declare:      c.Decoder.Declare,
		ID:           c.Decoder.ID,
	}
}

// ToEncoderOptions converts the output section to ports.EncoderOptions.
func (c Config) ToEncoderOptions() ports.EncoderOptions {
	return ports.EncoderOptions{
		FPS:     c.Output.FPS,
		CRF:     c.Output.CRF,
		Preset:  c.Output.Preset,
		Bitrate: c.Output.Bitrate,
	}
}

// ToContactSheetOptions converts the output section to ports.ContactSheetOptions.
func (c Config) ToContactSheetOptions() ports.ContactSheetOptions {
	return ports.ContactSheetOptions{
		Columns:    c.Output.SheetColumns,
		ThumbWidth: c.Output.SheetWidth,
		Step:       c.Output.SheetStep,
		Label:      true,
	}
}
