// Package tensor wraps a dense float32 tensor used to carry latent and
// decoded frame data between pipeline stages.
//
// Data is stored row-major in a flat slice, the same layout decoders hand back
// as raw pixel buffers. Axis operations run on github.com/pdevine/tensor.
// Every operation returns a new tensor; inputs are never modified.
package tensor

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrShapeMismatch is returned when the data length does not match the shape.
	ErrShapeMismatch = errors.New("tensor: data length does not match shape")

	// ErrAxisOutOfRange is returned when an axis index is outside the tensor rank.
	ErrAxisOutOfRange = errors.New("tensor: axis out of range")

	// ErrBadRange is returned when a slice range is invalid for an axis.
	ErrBadRange = errors.New("tensor: invalid range")
)

// Tensor is a dense row-major float32 array.
type Tensor struct {
	shape []int
	data  []float32
}

// New creates a tensor over data with the given shape. The data slice is
// owned by the tensor afterwards.
func New(shape []int, data []float32) (*Tensor, error) {
	n, err := NumElements(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrShapeMismatch, shape, n, len(data))
	}
	return &Tensor{shape: append([]int(nil), shape...), data: data}, nil
}

// NumElements returns the product of shape. It fails on negative dimensions
// and on products that do not fit in an int.
func NumElements(shape []int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("%w: negative dimension in %v", ErrShapeMismatch, shape)
		}
		if d != 0 && n > math.MaxInt/d {
			return 0, fmt.Errorf("%w: shape %v overflows", ErrShapeMismatch, shape)
		}
		n *= d
	}
	return n, nil
}

// Zeros creates a zero-filled tensor. It panics on a shape NumElements rejects.
func Zeros(shape ...int) *Tensor {
	n, err := NumElements(shape)
	if err != nil {
		panic(err)
	}
	return &Tensor{shape: append([]int(nil), shape...), data: make([]float32, n)}
}

// FromFunc creates a tensor whose element at each index is f(index).
func FromFunc(shape []int, f func(idx []int) float32) *Tensor {
	t := Zeros(shape...)
	idx := make([]int, len(shape))
	for i := range t.data {
		t.data[i] = f(idx)
		for ax := len(idx) - 1; ax >= 0; ax-- {
			idx[ax]++
			if idx[ax] < shape[ax] {
				break
			}
			idx[ax] = 0
		}
	}
	return t
}

// Shape returns a copy of the tensor shape.
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Dims returns the tensor rank.
func (t *Tensor) Dims() int {
	return len(t.shape)
}

// Dim returns the size of an axis. Negative axes count from the end.
func (t *Tensor) Dim(axis int) int {
	ax, err := t.axis(axis)
	if err != nil {
		return 0
	}
	return t.shape[ax]
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return len(t.data)
}

// Data returns the underlying storage. Callers must not modify it.
func (t *Tensor) Data() []float32 {
	return t.data
}

// At returns the element at the given index.
func (t *Tensor) At(idx ...int) float32 {
	strides := t.strides()
	off := 0
	for i, v := range idx {
		off += v * strides[i]
	}
	return t.data[off]
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{shape: t.Shape(), data: append([]float32(nil), t.data...)}
}

// Equal reports whether both tensors have the same shape and elements.
func (t *Tensor) Equal(o *Tensor) bool {
	if t == nil || o == nil {
		return t == o
	}
	if len(t.shape) != len(o.shape) || len(t.data) != len(o.data) {
		return false
	}
	for i := range t.shape {
		if t.shape[i] != o.shape[i] {
			return false
		}
	}
	for i := range t.data {
		if t.data[i] != o.data[i] {
			return false
		}
	}
	return true
}

// String returns a short description such as "tensor[1 4 5 8 8]".
func (t *Tensor) String() string {
	parts := make([]string, len(t.shape))
	for i, d := range t.shape {
		parts[i] = fmt.Sprint(d)
	}
	return "tensor[" + strings.Join(parts, " ") + "]"
}

func (t *Tensor) axis(axis int) (int, error) {
	if axis < 0 {
		axis += len(t.shape)
	}
	if axis < 0 || axis >= len(t.shape) {
		return 0, fmt.Errorf("%w: %d for rank %d", ErrAxisOutOfRange, axis, len(t.shape))
	}
	return axis, nil
}

func (t *Tensor) strides() []int {
	strides := make([]int, len(t.shape))
	s := 1
	for i := len(t.shape) - 1; i >= 0; i-- {
		strides[i] = s
		s *= t.shape[i]
	}
	return strides
}
