package tensor

import (
	"errors"
	"fmt"
)

// Tensor is a dense, row-major float32 tensor used by the native inference
// path (STFT filterbank, mask network, mask application).
type Tensor struct {
	shape []int64
	data  []float32
}

// New creates a tensor from data and shape.
func New(data []float32, shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if len(data) != total {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)", len(data), shape, total)
	}

	s := append([]int64(nil), shape...)
	d := append([]float32(nil), data...)

	return &Tensor{shape: s, data: d}, nil
}

// newOwned creates a Tensor taking ownership of the provided data and shape
// slices without copying. len(data) must equal the product of shape.
func newOwned(data []float32, shape []int64) *Tensor {
	return &Tensor{shape: shape, data: data}
}

// Zeros creates a zero-initialized tensor.
func Zeros(shape []int64) (*Tensor, error) {
	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	return &Tensor{
		shape: append([]int64(nil), shape...),
		data:  make([]float32, total),
	}, nil
}

// Full creates a tensor filled with value.
func Full(shape []int64, value float32) (*Tensor, error) {
	t, err := Zeros(shape)
	if err != nil {
		return nil, err
	}

	for i := range t.data {
		t.data[i] = value
	}

	return t, nil
}

func (t *Tensor) Shape() []int64 {
	if t == nil {
		return nil
	}

	return append([]int64(nil), t.shape...)
}

// Dim returns the size of dimension dim. Negative dims count from the end.
// It returns -1 when dim is out of range.
func (t *Tensor) Dim(dim int) int64 {
	if t == nil {
		return -1
	}

	d, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return -1
	}

	return t.shape[d]
}

// Data returns a copy of the underlying tensor data.
func (t *Tensor) Data() []float32 {
	if t == nil {
		return nil
	}

	return append([]float32(nil), t.data...)
}

// RawData returns the underlying data slice.
// Callers must treat it as read-only unless they created the tensor.
func (t *Tensor) RawData() []float32 {
	if t == nil {
		return nil
	}

	return t.data
}

func (t *Tensor) ElemCount() int {
	if t == nil {
		return 0
	}

	return len(t.data)
}

func (t *Tensor) Rank() int {
	if t == nil {
		return 0
	}

	return len(t.shape)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}

	return newOwned(append([]float32(nil), t.data...), append([]int64(nil), t.shape...))
}

// Reshape returns a tensor with a new shape and copied values.
func (t *Tensor) Reshape(shape []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: reshape on nil tensor")
	}

	total, err := shapeElemCount(shape)
	if err != nil {
		return nil, err
	}

	if total != len(t.data) {
		return nil, fmt.Errorf("tensor: cannot reshape %v (%d elements) to %v (%d elements)", t.shape, len(t.data), shape, total)
	}

	return &Tensor{shape: append([]int64(nil), shape...), data: append([]float32(nil), t.data...)}, nil
}

// Unsqueeze inserts a dimension of size 1 at dim. dim may be in [-rank-1, rank].
func (t *Tensor) Unsqueeze(dim int) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: unsqueeze on nil tensor")
	}

	d, err := normalizeDim(dim, len(t.shape)+1)
	if err != nil {
		return nil, fmt.Errorf("tensor: unsqueeze: %w", err)
	}

	shape := make([]int64, 0, len(t.shape)+1)
	shape = append(shape, t.shape[:d]...)
	shape = append(shape, 1)
	shape = append(shape, t.shape[d:]...)

	return t.Reshape(shape)
}

// Squeeze removes dimension dim, which must have size 1.
func (t *Tensor) Squeeze(dim int) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: squeeze on nil tensor")
	}

	d, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: squeeze: %w", err)
	}

	if t.shape[d] != 1 {
		return nil, fmt.Errorf("tensor: squeeze: dim %d has size %d, want 1", d, t.shape[d])
	}

	shape := make([]int64, 0, len(t.shape)-1)
	shape = append(shape, t.shape[:d]...)
	shape = append(shape, t.shape[d+1:]...)

	return t.Reshape(shape)
}
