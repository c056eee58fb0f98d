// Package nullsink provides a no-op debug sink implementation.
package nullsink

import (
	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/tensor"
)

// Sink is a no-op implementation of ports.DebugSink.
// It discards all debug output.
type Sink struct{}

// New creates a new NullSink.
func New() *Sink {
	return &Sink{}
}

// Enabled returns false as this sink discards all output.
func (s *Sink) Enabled() bool {
	return false
}

// SaveScaleJSON does nothing.
func (s *Sink) SaveScaleJSON(data []byte) error {
	return nil
}

// SavePlanJSON does nothing.
func (s *Sink) SavePlanJSON(data []byte) error {
	return nil
}

// SaveChunkFrames does nothing.
func (s *Sink) SaveChunkFrames(chunk int, frames *tensor.Tensor) error {
	return nil
}

// SaveReportJSON does nothing.
func (s *Sink) SaveReportJSON(data []byte) error {
	return nil
}

// Ensure Sink implements ports.DebugSink
var _ ports.DebugSink = (*Sink)(nil)
