package complexnn

import (
	"errors"
	"fmt"

	"github.com/example/go-dcunet/internal/runtime/tensor"
)

// ErrUnsupportedLayout is returned when a single real tensor can be read
// neither as a paired last axis nor as a legacy split axis.
var ErrUnsupportedLayout = errors.New("complexnn: unsupported complex layout")

// DefaultLegacyDim is the axis that holds [real; imaginary] halves in the
// legacy single-tensor layout.
const DefaultLegacyDim = -2

// Kind identifies which representation an Input carries.
type Kind uint8

const (
	KindComplex Kind = iota
	KindPair
	KindReal
)

func (k Kind) String() string {
	switch k {
	case KindComplex:
		return "complex"
	case KindPair:
		return "pair"
	case KindReal:
		return "real"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Input is one of the three accepted complex representations. Build it with
// FromComplex, FromPair or FromReal.
type Input struct {
	kind      Kind
	complex   *Tensor
	re, im    *tensor.Tensor
	real      *tensor.Tensor
	legacyDim int
}

// FromComplex wraps a native complex tensor.
func FromComplex(x *Tensor) Input {
	return Input{kind: KindComplex, complex: x}
}

// FromPair wraps separate real and imaginary tensors.
func FromPair(re, im *tensor.Tensor) Input {
	return Input{kind: KindPair, re: re, im: im}
}

// FromReal wraps a single real tensor. The legacy axis is DefaultLegacyDim;
// use WithLegacyDim to change it.
func FromReal(x *tensor.Tensor) Input {
	return Input{kind: KindReal, real: x, legacyDim: DefaultLegacyDim}
}

// WithLegacyDim returns a copy of in that reads the legacy layout along dim.
// It has no effect on complex and pair inputs.
func (in Input) WithLegacyDim(dim int) Input {
	in.legacyDim = dim
	return in
}

func (in Input) Kind() Kind { return in.kind }

// Warning is a non-fatal signal returned alongside a successful conversion.
type Warning uint8

const (
	WarnNone Warning = iota
	// WarnAmbiguousLayout means a single real tensor was valid under both
	// the paired-last-axis and the legacy reading; the paired reading was used.
	WarnAmbiguousLayout
)

func (w Warning) String() string {
	switch w {
	case WarnNone:
		return "none"
	case WarnAmbiguousLayout:
		return "ambiguous complex layout: interpreted as paired last axis"
	default:
		return fmt.Sprintf("Warning(%d)", uint8(w))
	}
}

// AsComplex converts any accepted representation into a native complex
// tensor. A native complex input is returned unchanged.
//
// A single real tensor is read as paired last axis when its last dimension
// is 2, and as legacy layout when the legacy axis has even length (first half
// real, second half imaginary). If both readings are possible the paired one
// wins and WarnAmbiguousLayout is returned.
func AsComplex(in Input) (*Tensor, Warning, error) {
	switch in.kind {
	case KindComplex:
		if in.complex == nil {
			return nil, WarnNone, errors.New("complexnn: nil complex input")
		}

		return in.complex, WarnNone, nil
	case KindPair:
		out, err := FromReIm(in.re, in.im)
		return out, WarnNone, err
	case KindReal:
		return fromSingleReal(in.real, in.legacyDim)
	default:
		return nil, WarnNone, fmt.Errorf("complexnn: unknown input kind %s", in.kind)
	}
}

func fromSingleReal(x *tensor.Tensor, legacyDim int) (*Tensor, Warning, error) {
	if x == nil {
		return nil, WarnNone, errors.New("complexnn: nil real input")
	}

	shape := x.Shape()
	if len(shape) == 0 {
		return nil, WarnNone, fmt.Errorf("%w: scalar tensor", ErrUnsupportedLayout)
	}

	paired := shape[len(shape)-1] == 2

	legacy := false
	if d, err := tensor.NormalizeDim(legacyDim, len(shape)); err == nil {
		legacy = shape[d]%2 == 0
	}

	switch {
	case paired:
		out, err := fromPaired(x)
		if err != nil {
			return nil, WarnNone, err
		}

		if legacy {
			return out, WarnAmbiguousLayout, nil
		}

		return out, WarnNone, nil
	case legacy:
		out, err := fromLegacy(x, legacyDim)
		return out, WarnNone, err
	default:
		return nil, WarnNone, fmt.Errorf("%w: shape %v (legacy dim %d)", ErrUnsupportedLayout, shape, legacyDim)
	}
}

// fromPaired reads [..., 2] as (re, im) pairs.
func fromPaired(x *tensor.Tensor) (*Tensor, error) {
	shape := x.Shape()
	data := x.RawData()
	out := make([]complex64, len(data)/2)

	for i := range out {
		out[i] = complex(data[2*i], data[2*i+1])
	}

	return &Tensor{shape: shape[:len(shape)-1], data: out}, nil
}

func fromLegacy(x *tensor.Tensor, dim int) (*Tensor, error) {
	parts, err := x.Chunk(2, dim)
	if err != nil {
		return nil, fmt.Errorf("complexnn: split legacy layout: %w", err)
	}

	return FromReIm(parts[0], parts[1])
}

// ToLegacy concatenates the real and imaginary parts of x along dim, the
// inverse of reading a legacy layout.
func ToLegacy(x *Tensor, dim int) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("complexnn: nil tensor")
	}

	re, im := x.ReIm()

	out, err := tensor.Concat([]*tensor.Tensor{re, im}, dim)
	if err != nil {
		return nil, fmt.Errorf("complexnn: to legacy layout: %w", err)
	}

	return out, nil
}

// ToPaired interleaves real and imaginary parts into a trailing axis of size 2.
func ToPaired(x *Tensor) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("complexnn: nil tensor")
	}

	data := make([]float32, 2*len(x.data))
	for i, v := range x.data {
		data[2*i] = real(v)
		data[2*i+1] = imag(v)
	}

	return tensor.New(data, append(x.Shape(), 2))
}
