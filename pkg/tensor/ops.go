package tensor

import (
	"fmt"

	dense "github.com/pdevine/tensor"
)

// toDense returns a *dense.Dense over a copy of the data. Transpose reorders
// the backing array in place, so the wrapper never hands out its own slice.
func (t *Tensor) toDense() *dense.Dense {
	return dense.New(
		dense.WithShape(t.Shape()...),
		dense.WithBacking(append([]float32(nil), t.data...)),
	)
}

// fromDense copies the elements of d into a tensor of the given shape.
// Single element results may come back as a scalar, so both forms are accepted.
func fromDense(d dense.Tensor, shape []int) (*Tensor, error) {
	var data []float32
	switch v := d.Data().(type) {
	case []float32:
		data = append([]float32(nil), v...)
	case float32:
		data = []float32{v}
	default:
		return nil, fmt.Errorf("%w: unexpected backing %T", ErrShapeMismatch, v)
	}
	return New(shape, data)
}

// Narrow returns the [start, end) range of an axis as a new tensor.
// Bounds are clamped to the axis size, so an empty range yields a tensor with
// a zero-length axis rather than an error.
func (t *Tensor) Narrow(axis, start, end int) (*Tensor, error) {
	ax, err := t.axis(axis)
	if err != nil {
		return nil, err
	}
	size := t.shape[ax]
	start = clamp(start, 0, size)
	end = clamp(end, start, size)

	shape := t.Shape()
	shape[ax] = end - start
	if start == 0 && end == size {
		return t.Clone(), nil
	}
	if len(t.data) == 0 || end == start {
		return Zeros(shape...), nil
	}

	slices := make([]dense.Slice, len(t.shape))
	slices[ax] = dense.S(start, end)
	v, err := t.toDense().Slice(slices...)
	if err != nil {
		return nil, fmt.Errorf("%w: axis %d [%d,%d): %v", ErrBadRange, ax, start, end, err)
	}
	return fromDense(dense.Materialize(v), shape)
}

// Permute reorders the axes. axes[i] names the source axis placed at position i.
func (t *Tensor) Permute(axes ...int) (*Tensor, error) {
	if len(axes) != len(t.shape) {
		return nil, fmt.Errorf("%w: permutation %v for rank %d", ErrAxisOutOfRange, axes, len(t.shape))
	}
	seen := make([]bool, len(axes))
	identity := true
	for i, a := range axes {
		if a < 0 || a >= len(axes) || seen[a] {
			return nil, fmt.Errorf("%w: invalid permutation %v", ErrAxisOutOfRange, axes)
		}
		seen[a] = true
		identity = identity && a == i
	}

	shape := make([]int, len(axes))
	for i, a := range axes {
		shape[i] = t.shape[a]
	}
	if identity {
		return t.Clone(), nil
	}
	if len(t.data) == 0 {
		return Zeros(shape...), nil
	}

	d := t.toDense()
	if err := d.T(axes...); err != nil {
		return nil, fmt.Errorf("%w: permutation %v: %v", ErrAxisOutOfRange, axes, err)
	}
	if err := d.Transpose(); err != nil {
		return nil, fmt.Errorf("tensor: transpose %v: %w", axes, err)
	}
	return fromDense(d, shape)
}

// Reshape returns a tensor with the same data and a new shape.
func (t *Tensor) Reshape(shape ...int) (*Tensor, error) {
	n, err := NumElements(shape)
	if err != nil {
		return nil, err
	}
	if n != len(t.data) {
		return nil, fmt.Errorf("%w: cannot reshape %v to %v", ErrShapeMismatch, t.shape, shape)
	}
	if n == 0 {
		return Zeros(shape...), nil
	}
	d := t.toDense()
	if err := d.Reshape(shape...); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
	}
	return fromDense(d, shape)
}

// Clamp limits every element to [lo, hi].
func (t *Tensor) Clamp(lo, hi float32) *Tensor {
	out := make([]float32, len(t.data))
	for i, v := range t.data {
		switch {
		case v < lo:
			out[i] = lo
		case v > hi:
			out[i] = hi
		default:
			out[i] = v
		}
	}
	return &Tensor{shape: t.Shape(), data: out}
}

// Concat joins tensors along an axis. All other axes must match.
func Concat(axis int, ts ...*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("%w: nothing to concatenate", ErrShapeMismatch)
	}
	first := ts[0]
	ax, err := first.axis(axis)
	if err != nil {
		return nil, err
	}

	total := 0
	var parts []*dense.Dense
	var only *Tensor
	for _, t := range ts {
		if len(t.shape) != len(first.shape) {
			return nil, fmt.Errorf("%w: rank %d vs %d", ErrShapeMismatch, len(t.shape), len(first.shape))
		}
		for i := range t.shape {
			if i != ax && t.shape[i] != first.shape[i] {
				return nil, fmt.Errorf("%w: %v vs %v on axis %d", ErrShapeMismatch, t.shape, first.shape, i)
			}
		}
		total += t.shape[ax]
		if len(t.data) > 0 {
			parts = append(parts, t.toDense())
			only = t
		}
	}

	shape := first.Shape()
	shape[ax] = total
	switch len(parts) {
	case 0:
		return Zeros(shape...), nil
	case 1:
		return only.Clone(), nil
	}

	out, err := parts[0].Concat(ax, parts[1:]...)
	if err != nil {
		return nil, fmt.Errorf("%w: concat on axis %d: %v", ErrShapeMismatch, ax, err)
	}
	return fromDense(out, shape)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
