package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/user/chunkdecode/pkg/orchestrator"
	"github.com/user/chunkdecode/pkg/ports"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if diff := cmp.Diff(orchestrator.DefaultConfig(), cfg.ToRunConfig()); diff != "" {
		t.Errorf("run config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
frames_per_batch: 4
overlap: 1
tile_mode: true
time_scale: 4
decoder:
  memory_budget: 1048576
output:
  video: out.mp4
  fps: 30
log_level: debug
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	want := orchestrator.Config{
		FramesPerBatch: 4,
		Overlap:        1,
		TileMode:       true,
		TileSize:       512,
		TimeScale:      4,
		ReclaimEvery:   2,
	}
	if diff := cmp.Diff(want, cfg.ToRunConfig()); diff != "" {
		t.Errorf("run config mismatch (-want +got):\n%s", diff)
	}

	// Unset keys keep their defaults.
	dec := cfg.ToDecoderConfig()
	if dec.TimeScale != 4 || dec.SpatialScale != 8 || dec.MemoryBudget != 1<<20 {
		t.Errorf("unexpected decoder config: %+v", dec)
	}
	enc := cfg.ToEncoderOptions()
	if diff := cmp.Diff(ports.EncoderOptions{FPS: 30, CRF: 23, Preset: "fast"}, enc); diff != "" {
		t.Errorf("encoder options mismatch (-want +got):\n%s", diff)
	}
	if cfg.Output.Video != "out.mp4" || cfg.LogLevel != "debug" {
		t.Errorf("unexpected output section: %+v", cfg.Output)
	}
}

func TestLoadFromFile_MemoryPreset(t *testing.T) {
	path := writeConfig(t, `
memory_preset: low
overlap: 0
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	// Explicit keys win over the preset.
	if cfg.FramesPerBatch != 4 || cfg.Overlap != 0 || !cfg.TileMode || cfg.TileSize != 256 {
		t.Errorf("preset not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadFromFile_Errors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeConfig(t, "frames_per_batch: [1, 2]\n")
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"batch", func(c *Config) { c.FramesPerBatch = 0 }, "frames_per_batch"},
		{"overlap", func(c *Config) { c.Overlap = -1 }, "overlap"},
		{"tile floor", func(c *Config) { c.MinTileSize = 1024 }, "min_tile_size"},
		{"time scale", func(c *Config) { c.TimeScale = -2 }, "time_scale"},
		{"preset", func(c *Config) { c.MemoryPreset = "huge" }, "memory_preset"},
		{"decoder", func(c *Config) { c.Decoder.SpatialScale = 0 }, "decoder scales"},
		{"format", func(c *Config) { c.Output.Format = "gif" }, "output.format"},
		{"crf", func(c *Config) { c.Output.CRF = 60 }, "output.crf"},
		{"log level", func(c *Config) { c.LogLevel = "verbose" }, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}

	t.Run("joined", func(t *testing.T) {
		cfg := Defaults()
		cfg.FramesPerBatch = 0
		cfg.Overlap = -1
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "frames_per_batch") || !strings.Contains(err.Error(), "overlap") {
			t.Errorf("expected both errors, got %v", err)
		}
	})
}

func TestParseImageFormat(t *testing.T) {
	for name, want := range map[string]ports.ImageFormat{
		"":     ports.FormatPNG,
		"png":  ports.FormatPNG,
		"jpeg": ports.FormatJPEG,
		"jpg":  ports.FormatJPEG,
	} {
		got, err := ParseImageFormat(name)
		if err != nil || got != want {
			t.Errorf("ParseImageFormat(%q) = %v, %v", name, got, err)
		}
	}
}

func TestToContactSheetOptions(t *testing.T) {
	got := Defaults().ToContactSheetOptions()
	want := ports.ContactSheetOptions{Columns: 8, ThumbWidth: 160, Step: 1, Label: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}
