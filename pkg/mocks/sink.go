package mocks

import (
	"sync"

	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/tensor"
)

// DebugSink is a mock implementation of ports.DebugSink.
type DebugSink struct {
	mu sync.RWMutex

	enabled bool

	ScaleJSON   []byte
	PlanJSON    []byte
	ReportJSON  []byte
	ChunkFrames map[int]*tensor.Tensor
}

// NewDebugSink creates a new mock DebugSink.
func NewDebugSink(enabled bool) *DebugSink {
	return &DebugSink{
		enabled:     enabled,
		ChunkFrames: make(map[int]*tensor.Tensor),
	}
}

func (m *DebugSink) Enabled() bool {
	return m.enabled
}

func (m *DebugSink) SaveScaleJSON(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ScaleJSON = data
	return nil
}

func (m *DebugSink) SavePlanJSON(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlanJSON = data
	return nil
}

func (m *DebugSink) SaveChunkFrames(chunk int, frames *tensor.Tensor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChunkFrames[chunk] = frames
	return nil
}

func (m *DebugSink) SaveReportJSON(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReportJSON = data
	return nil
}

var _ ports.DebugSink = (*DebugSink)(nil)

// NullSink is a no-op implementation of ports.DebugSink.
type NullSink struct{}

func (m *NullSink) Enabled() bool                                     { return false }
func (m *NullSink) SaveScaleJSON(data []byte) error                   { return nil }
func (m *NullSink) SavePlanJSON(data []byte) error                    { return nil }
func (m *NullSink) SaveChunkFrames(chunk int, f *tensor.Tensor) error { return nil }
func (m *NullSink) SaveReportJSON(data []byte) error                  { return nil }

var _ ports.DebugSink = (*NullSink)(nil)
