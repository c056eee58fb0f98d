package mocks

import (
	"context"
	"sync"

	"github.com/user/chunkdecode/pkg/ports"
	"github.com/user/chunkdecode/pkg/tensor"
)

// Decoder is a mock implementation of ports.LatentDecoder.
// Set ID to give the decoder a stable identity for the scale cache.
type Decoder struct {
	mu sync.Mutex

	ID         string
	DecodeFunc func(ctx context.Context, latents *tensor.Tensor) (ports.DecodeOutput, error)

	// Recorded calls for verification
	Calls []DecodeCall
}

// DecodeCall records a call to Decode or DecodeTiled.
type DecodeCall struct {
	Shape      []int
	Tiled      bool
	TileWidth  int
	TileHeight int
}

func (m *Decoder) Decode(ctx context.Context, latents *tensor.Tensor) (ports.DecodeOutput, error) {
	m.record(DecodeCall{Shape: latents.Shape()})
	if m.DecodeFunc != nil {
		return m.DecodeFunc(ctx, latents)
	}
	return ports.Single(latents), nil
}

func (m *Decoder) DecoderID() string {
	return m.ID
}

// CallCount returns the number of decode calls so far.
func (m *Decoder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent call.
func (m *Decoder) LastCall() (DecodeCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return DecodeCall{}, false
	}
	return m.Calls[len(m.Calls)-1], true
}

func (m *Decoder) record(call DecodeCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, call)
}

var (
	_ ports.LatentDecoder = (*Decoder)(nil)
	_ ports.Identifier    = (*Decoder)(nil)
)

// TiledDecoder is a mock decoder that also implements ports.TiledDecoder.
type TiledDecoder struct {
	Decoder

	DecodeTiledFunc func(ctx context.Context, latents *tensor.Tensor, tileWidth, tileHeight int) (ports.DecodeOutput, error)
}

func (m *TiledDecoder) DecodeTiled(ctx context.Context, latents *tensor.Tensor, tileWidth, tileHeight int) (ports.DecodeOutput, error) {
	m.record(DecodeCall{Shape: latents.Shape(), Tiled: true, TileWidth: tileWidth, TileHeight: tileHeight})
	if m.DecodeTiledFunc != nil {
		return m.DecodeTiledFunc(ctx, latents, tileWidth, tileHeight)
	}
	return ports.Single(latents), nil
}

var _ ports.TiledDecoder = (*TiledDecoder)(nil)

// HintedDecoder is a mock decoder that declares its time scale.
type HintedDecoder struct {
	Decoder

	TimeScale int // 0 declares nothing
}

func (m *HintedDecoder) DeclaredTimeScale() (int, bool) {
	return m.TimeScale, m.TimeScale > 0
}

var _ ports.ScaleHinter = (*HintedDecoder)(nil)

// MemoryReclaimer is a mock implementation of ports.MemoryReclaimer.
type MemoryReclaimer struct {
	mu    sync.Mutex
	count int
}

func (m *MemoryReclaimer) Reclaim() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
}

// Count returns the number of Reclaim calls.
func (m *MemoryReclaimer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

var _ ports.MemoryReclaimer = (*MemoryReclaimer)(nil)

// ProgressReporter is a mock implementation of ports.ProgressReporter.
type ProgressReporter struct {
	mu sync.Mutex

	Total    int
	Advanced []int
	Finished bool
}

func (m *ProgressReporter) Start(total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Total = total
}

func (m *ProgressReporter) Advance(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Advanced = append(m.Advanced, n)
}

func (m *ProgressReporter) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Finished = true
}

// Sum returns the total progress reported through Advance.
func (m *ProgressReporter) Sum() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := 0
	for _, n := range m.Advanced {
		sum += n
	}
	return sum
}

var _ ports.ProgressReporter = (*ProgressReporter)(nil)
