package mocks

import (
	"image"
	"sync"

	"github.com/user/chunkdecode/pkg/ports"
)

// VideoEncoder is a mock implementation of ports.VideoEncoder.
type VideoEncoder struct {
	mu sync.Mutex

	BeginFunc       func(width, height int, opts ports.EncoderOptions) error
	EncodeFrameFunc func(img image.Image) error
	EndFunc         func() ([]byte, error)

	// Recorded calls for verification
	BeginCalled  bool
	BeginOptions ports.EncoderOptions
	FrameCount   int
	EndCalled    bool
}

func (m *VideoEncoder) Begin(width, height int, opts ports.EncoderOptions) error {
	m.mu.Lock()
	m.BeginCalled = true
	m.BeginOptions = opts
	m.mu.Unlock()
	if m.BeginFunc != nil {
		return m.BeginFunc(width, height, opts)
	}
	return nil
}

func (m *VideoEncoder) EncodeFrame(img image.Image) error {
	m.mu.Lock()
	m.FrameCount++
	m.mu.Unlock()
	if m.EncodeFrameFunc != nil {
		return m.EncodeFrameFunc(img)
	}
	return nil
}

func (m *VideoEncoder) End() ([]byte, error) {
	m.mu.Lock()
	m.EndCalled = true
	m.mu.Unlock()
	if m.EndFunc != nil {
		return m.EndFunc()
	}
	// Return a minimal ftyp box
	return []byte{0, 0, 0, 8, 'f', 't', 'y', 'p'}, nil
}

var _ ports.VideoEncoder = (*VideoEncoder)(nil)
