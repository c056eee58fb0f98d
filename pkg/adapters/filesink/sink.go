// Package filesink provides a file-based debug sink implementation.
package filesink

import (
	"fmt"
	"path/filepath"

	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/tensor"
)

// Sink saves debug output to files.
type Sink struct {
	baseDir  string
	fs       ports.FileSystem
	renderer ports.Renderer
}

// New creates a new FileSink.
func New(baseDir string, fs ports.FileSystem, renderer ports.Renderer) *Sink {
	return &Sink{
		baseDir:  baseDir,
		fs:       fs,
		renderer: renderer,
	}
}

// Dir returns the directory output is written to.
func (s *Sink) Dir() string {
	return s.baseDir
}

// Enabled returns true as this sink saves output.
func (s *Sink) Enabled() bool {
	return true
}

// SaveScaleJSON saves the detected scale as JSON.
func (s *Sink) SaveScaleJSON(data []byte) error {
	path := filepath.Join(s.baseDir, "scale.json")
	return s.fs.WriteFile(path, data)
}

// SavePlanJSON saves the chunk plan as JSON.
func (s *Sink) SavePlanJSON(data []byte) error {
	path := filepath.Join(s.baseDir, "plan.json")
	return s.fs.WriteFile(path, data)
}

// SaveChunkFrames saves every decoded frame of a chunk, context included, as PNG.
func (s *Sink) SaveChunkFrames(chunk int, frames *tensor.Tensor) error {
	dir := filepath.Join(s.baseDir, "chunks", fmt.Sprintf("chunk-%03d", chunk))
	if err := s.fs.MkdirAll(dir); err != nil {
		return err
	}
	for i := 0; i < frames.Dim(0); i++ {
		img, err := s.renderer.FrameImage(frames, i)
		if err != nil {
			return fmt.Errorf("render chunk %d frame %d: %w", chunk, i, err)
		}
		data, err := s.renderer.EncodeImage(img, ports.FormatPNG, 0)
		if err != nil {
			return fmt.Errorf("encode chunk %d frame %d: %w", chunk, i, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("frame-%04d.png", i))
		if err := s.fs.WriteFile(path, data); err != nil {
			return err
		}
	}
	return nil
}

// SaveReportJSON saves the run report as JSON.
func (s *Sink) SaveReportJSON(data []byte) error {
	path := filepath.Join(s.baseDir, "report.json")
	return s.fs.WriteFile(path, data)
}

// Ensure Sink implements ports.DebugSink
var _ ports.DebugSink = (*Sink)(nil)
