// Package complexnn provides complex-valued tensors and the building blocks
// used to run real-valued operators in the complex domain: canonicalization
// of the three accepted complex layouts, component-wise wrappers, complex
// multiplication over real sub-operators and mask bounding.
package complexnn

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/example/go-dcunet/internal/runtime/tensor"
)

// ErrShapeMismatch is returned when real and imaginary parts (or two
// operands) do not have compatible shapes.
var ErrShapeMismatch = errors.New("complexnn: shape mismatch")

// Tensor is a dense, row-major complex64 tensor.
type Tensor struct {
	shape []int64
	data  []complex64
}

// New creates a complex tensor from data and shape. Both are copied.
func New(data []complex64, shape []int64) (*Tensor, error) {
	total, err := elemCount(shape)
	if err != nil {
		return nil, err
	}

	if len(data) != total {
		return nil, fmt.Errorf("complexnn: data length %d does not match shape %v (%d elements)", len(data), shape, total)
	}

	return &Tensor{
		shape: append([]int64(nil), shape...),
		data:  append([]complex64(nil), data...),
	}, nil
}

// Zeros creates a zero-initialized complex tensor.
func Zeros(shape []int64) (*Tensor, error) {
	total, err := elemCount(shape)
	if err != nil {
		return nil, err
	}

	return &Tensor{shape: append([]int64(nil), shape...), data: make([]complex64, total)}, nil
}

// Ones creates a complex tensor filled with 1+0i.
func Ones(shape []int64) (*Tensor, error) {
	t, err := Zeros(shape)
	if err != nil {
		return nil, err
	}

	for i := range t.data {
		t.data[i] = 1
	}

	return t, nil
}

// FromReIm builds re + i*im. Both parts must have the same shape; the
// result reproduces them exactly.
func FromReIm(re, im *tensor.Tensor) (*Tensor, error) {
	if re == nil || im == nil {
		return nil, errors.New("complexnn: real and imaginary parts must be non-nil")
	}

	if !tensor.EqualShape(re.Shape(), im.Shape()) {
		return nil, fmt.Errorf("%w: real %v vs imaginary %v", ErrShapeMismatch, re.Shape(), im.Shape())
	}

	reData := re.RawData()
	imData := im.RawData()
	out := make([]complex64, len(reData))

	for i := range out {
		out[i] = complex(reData[i], imData[i])
	}

	return &Tensor{shape: re.Shape(), data: out}, nil
}

// FromMagPhase builds mag * (cos(phase) + i*sin(phase)).
func FromMagPhase(mag, phase *tensor.Tensor) (*Tensor, error) {
	if mag == nil || phase == nil {
		return nil, errors.New("complexnn: magnitude and phase must be non-nil")
	}

	if !tensor.EqualShape(mag.Shape(), phase.Shape()) {
		return nil, fmt.Errorf("%w: magnitude %v vs phase %v", ErrShapeMismatch, mag.Shape(), phase.Shape())
	}

	magData := mag.RawData()
	phaseData := phase.RawData()
	out := make([]complex64, len(magData))

	for i := range out {
		out[i] = complex64(cmplx.Rect(float64(magData[i]), float64(phaseData[i])))
	}

	return &Tensor{shape: mag.Shape(), data: out}, nil
}

func (t *Tensor) Shape() []int64 {
	if t == nil {
		return nil
	}

	return append([]int64(nil), t.shape...)
}

// Dim returns the size of dimension dim, or -1 when out of range.
func (t *Tensor) Dim(dim int) int64 {
	if t == nil {
		return -1
	}

	d, err := tensor.NormalizeDim(dim, len(t.shape))
	if err != nil {
		return -1
	}

	return t.shape[d]
}

func (t *Tensor) Rank() int {
	if t == nil {
		return 0
	}

	return len(t.shape)
}

func (t *Tensor) ElemCount() int {
	if t == nil {
		return 0
	}

	return len(t.data)
}

// Data returns a copy of the values.
func (t *Tensor) Data() []complex64 {
	if t == nil {
		return nil
	}

	return append([]complex64(nil), t.data...)
}

// RawData returns the underlying slice. Callers must treat it as read-only
// unless they created the tensor.
func (t *Tensor) RawData() []complex64 {
	if t == nil {
		return nil
	}

	return t.data
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}

	return &Tensor{shape: t.Shape(), data: t.Data()}
}

// Real returns the real part as a real tensor.
func (t *Tensor) Real() *tensor.Tensor {
	return t.project(func(v complex64) float32 { return real(v) })
}

// Imag returns the imaginary part as a real tensor.
func (t *Tensor) Imag() *tensor.Tensor {
	return t.project(func(v complex64) float32 { return imag(v) })
}

// Abs returns the element-wise magnitude.
func (t *Tensor) Abs() *tensor.Tensor {
	return t.project(func(v complex64) float32 { return float32(cmplx.Abs(complex128(v))) })
}

// Angle returns the element-wise phase in (-pi, pi].
func (t *Tensor) Angle() *tensor.Tensor {
	return t.project(func(v complex64) float32 { return float32(cmplx.Phase(complex128(v))) })
}

// ReIm returns the real and imaginary parts.
func (t *Tensor) ReIm() (re, im *tensor.Tensor) {
	return t.Real(), t.Imag()
}

func (t *Tensor) project(fn func(complex64) float32) *tensor.Tensor {
	if t == nil {
		return nil
	}

	out := make([]float32, len(t.data))
	for i, v := range t.data {
		out[i] = fn(v)
	}

	// Shape and length agree by construction.
	r, _ := tensor.New(out, t.shape)

	return r
}

// Reshape returns a copy with a new shape.
func (t *Tensor) Reshape(shape []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("complexnn: reshape on nil tensor")
	}

	total, err := elemCount(shape)
	if err != nil {
		return nil, err
	}

	if total != len(t.data) {
		return nil, fmt.Errorf("complexnn: cannot reshape %v to %v", t.shape, shape)
	}

	return &Tensor{shape: append([]int64(nil), shape...), data: t.Data()}, nil
}

// Unsqueeze inserts a dimension of size 1 at dim.
func (t *Tensor) Unsqueeze(dim int) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("complexnn: unsqueeze on nil tensor")
	}

	d, err := tensor.NormalizeDim(dim, len(t.shape)+1)
	if err != nil {
		return nil, fmt.Errorf("complexnn: unsqueeze: %w", err)
	}

	shape := make([]int64, 0, len(t.shape)+1)
	shape = append(shape, t.shape[:d]...)
	shape = append(shape, 1)
	shape = append(shape, t.shape[d:]...)

	return t.Reshape(shape)
}

// Narrow returns a copy of x restricted to [start, start+length) along dim.
func (t *Tensor) Narrow(dim int, start, length int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("complexnn: narrow on nil tensor")
	}

	d, err := tensor.NormalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("complexnn: narrow: %w", err)
	}

	if start < 0 || length < 0 || start+length > t.shape[d] {
		return nil, fmt.Errorf("complexnn: narrow [%d, %d) out of range for dim %d of size %d", start, start+length, d, t.shape[d])
	}

	outer, inner := int64(1), int64(1)
	for i := range d {
		outer *= t.shape[i]
	}

	for i := d + 1; i < len(t.shape); i++ {
		inner *= t.shape[i]
	}

	shape := t.Shape()
	shape[d] = length
	out := make([]complex64, 0, outer*length*inner)

	for o := range outer {
		base := (o*t.shape[d] + start) * inner
		out = append(out, t.data[base:base+length*inner]...)
	}

	return &Tensor{shape: shape, data: out}, nil
}

// Mul multiplies a and b element-wise with NumPy-style broadcasting.
func Mul(a, b *Tensor) (*Tensor, error) {
	if a == nil || b == nil {
		return nil, errors.New("complexnn: mul requires non-nil inputs")
	}

	outShape, err := tensor.BroadcastShape(a.shape, b.shape)
	if err != nil {
		return nil, fmt.Errorf("complexnn: mul: %w", err)
	}

	aOff, err := tensor.BroadcastOffsets(a.shape, outShape)
	if err != nil {
		return nil, err
	}

	bOff, err := tensor.BroadcastOffsets(b.shape, outShape)
	if err != nil {
		return nil, err
	}

	out := make([]complex64, len(aOff))
	for i := range out {
		out[i] = a.data[aOff[i]] * b.data[bOff[i]]
	}

	return &Tensor{shape: outShape, data: out}, nil
}

// MapReIm applies fn to every (re, im) pair.
func MapReIm(x *Tensor, fn func(re, im float32) (float32, float32)) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("complexnn: map on nil tensor")
	}

	out := make([]complex64, len(x.data))
	for i, v := range x.data {
		re, im := fn(real(v), imag(v))
		out[i] = complex(re, im)
	}

	return &Tensor{shape: x.Shape(), data: out}, nil
}

func elemCount(shape []int64) (int, error) {
	total := int64(1)

	for i, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("complexnn: shape %v has negative dimension at %d", shape, i)
		}

		if d != 0 && total > math.MaxInt64/d {
			return 0, fmt.Errorf("complexnn: shape %v overflows", shape)
		}

		total *= d
	}

	return int(total), nil
}

// Concat joins complex tensors along dim.
func Concat(xs []*Tensor, dim int) (*Tensor, error) {
	res := make([]*tensor.Tensor, len(xs))
	ims := make([]*tensor.Tensor, len(xs))

	for i, x := range xs {
		if x == nil {
			return nil, fmt.Errorf("complexnn: concat tensor %d is nil", i)
		}

		res[i], ims[i] = x.ReIm()
	}

	re, err := tensor.Concat(res, dim)
	if err != nil {
		return nil, fmt.Errorf("complexnn: concat: %w", err)
	}

	im, err := tensor.Concat(ims, dim)
	if err != nil {
		return nil, fmt.Errorf("complexnn: concat: %w", err)
	}

	return FromReIm(re, im)
}

// PadDim zero-pads or truncates dim at its end to length.
func (t *Tensor) PadDim(dim int, length int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("complexnn: pad on nil tensor")
	}

	re, im := t.ReIm()

	re, err := re.PadDim(dim, length)
	if err != nil {
		return nil, fmt.Errorf("complexnn: %w", err)
	}

	im, err = im.PadDim(dim, length)
	if err != nil {
		return nil, fmt.Errorf("complexnn: %w", err)
	}

	return FromReIm(re, im)
}
