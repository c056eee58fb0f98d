package ports

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOutOfMemory classifies a decode failure caused by memory exhaustion.
// Decoders should return it (or an error that wraps it, or an
// OutOfMemoryError) so the invoke stage can degrade instead of failing.
var ErrOutOfMemory = errors.New("out of memory")

// OutOfMemoryError carries the allocation that could not be satisfied.
type OutOfMemoryError struct {
	Requested int64 // bytes the call tried to allocate
	Available int64 // bytes that were available, 0 if unknown
}

func (e *OutOfMemoryError) Error() string {
	if e.Available > 0 {
		return fmt.Sprintf("out of memory: requested %d bytes, %d available", e.Requested, e.Available)
	}
	return fmt.Sprintf("out of memory: requested %d bytes", e.Requested)
}

// Is makes errors.Is(err, ErrOutOfMemory) match.
func (e *OutOfMemoryError) Is(target error) bool {
	return target == ErrOutOfMemory
}

// IsOutOfMemory reports whether err is a memory-exhaustion failure.
// Errors from foreign runtimes that only carry the message are matched by text.
func IsOutOfMemory(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOutOfMemory) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "out of memory")
}

// MemoryReclaimer releases cached device or host memory on request.
// Implementations must be safe to call when there is nothing to reclaim.
type MemoryReclaimer interface {
	Reclaim()
}

// ProgressReporter receives progress in units of latent frames consumed.
type ProgressReporter interface {
	Start(total int)
	Advance(n int)
	Finish()
}
