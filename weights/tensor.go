package weights

import (
	"errors"
	"fmt"
	"slices"
)

// ErrPaddingShape is returned when a tensor dimension exceeds its padding
// target. Truncation is not a supported operation.
var ErrPaddingShape = errors.New("tensor exceeds padding target")

// Tensor is a dense numeric tensor: a shape and a row-major backing slice.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Elements returns the number of elements implied by the tensor shape. A
// rank-0 tensor holds a single element.
func (t Tensor) Elements() int {
	n := 1
	for _, dim := range t.Shape {
		n *= dim
	}
	return n
}

func (t Tensor) Clone() Tensor {
	return Tensor{
		Shape: slices.Clone(t.Shape),
		Data:  slices.Clone(t.Data),
	}
}

// PadToTarget grows t to the target shape, filling new positions with zeros.
// A tensor already at the target shape is returned unchanged. Any dimension
// larger than its target, or a rank mismatch, is an error: there is no
// truncation path.
func PadToTarget(t Tensor, target []int) (Tensor, error) {
	if len(t.Shape) != len(target) {
		return Tensor{}, fmt.Errorf("%w: rank %d does not match target rank %d", ErrPaddingShape, len(t.Shape), len(target))
	}

	for i, dim := range t.Shape {
		if dim > target[i] {
			return Tensor{}, fmt.Errorf("%w: dimension %d is %d, target %d", ErrPaddingShape, i, dim, target[i])
		}
	}

	if slices.Equal(t.Shape, target) {
		return t, nil
	}

	out := Tensor{
		Shape: slices.Clone(target),
		Data:  make([]float32, Tensor{Shape: target}.Elements()),
	}

	dstStrides := rowMajorStrides(target)

	// Walk every source index and copy it to the same coordinates in the
	// destination; untouched destination positions stay zero.
	idx := make([]int, len(t.Shape))
	for src := 0; src < len(t.Data); src++ {
		var dst int
		for d := range idx {
			dst += idx[d] * dstStrides[d]
		}
		out.Data[dst] = t.Data[src]
		advance(idx, t.Shape)
	}

	return out, nil
}

func advance(idx, shape []int) {
	for d := len(idx) - 1; d >= 0; d-- {
		idx[d]++
		if idx[d] < shape[d] {
			return
		}
		idx[d] = 0
	}
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}
