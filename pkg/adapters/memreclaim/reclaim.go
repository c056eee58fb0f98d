// Package memreclaim releases memory held by the Go runtime between chunks.
package memreclaim

import (
	"runtime"
	"runtime/debug"
	"sync/atomic"

	"github.com/user/chunkdecode/pkg/ports"
)

// Runtime forces a garbage collection and returns freed pages to the OS.
type Runtime struct {
	count atomic.Int64
}

var _ ports.MemoryReclaimer = (*Runtime)(nil)

// New creates a runtime reclaimer.
func New() *Runtime {
	return &Runtime{}
}

// Reclaim runs the collector and scavenges the heap.
func (r *Runtime) Reclaim() {
	r.count.Add(1)
	runtime.GC()
	debug.FreeOSMemory()
}

// Count returns how many times Reclaim was called.
func (r *Runtime) Count() int {
	return int(r.count.Load())
}
