package masknet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/example/go-dcunet/internal/complexnn"
)

// ErrInputDims is returned when a spectrum cannot pass through the encoder
// strides without a remainder.
var ErrInputDims = errors.New("masknet: invalid input dimensions")

// FixLengthMode selects how a frame count that does not fit the time strides
// is handled.
type FixLengthMode string

const (
	FixLengthNone FixLengthMode = ""
	FixLengthPad  FixLengthMode = "pad"
	FixLengthTrim FixLengthMode = "trim"
)

// Options are the tunable mask-network arguments ("masknet_kwargs").
type Options struct {
	NSrc          int64
	FixLengthMode FixLengthMode
	MaskBound     complexnn.BoundType
}

// DefaultOptions returns one source, strict lengths and tanh-bounded masks.
func DefaultOptions() Options {
	return Options{NSrc: 1, MaskBound: complexnn.BoundTanh}
}

// ParseOptions reads masknet_kwargs. Missing keys keep their defaults and
// unknown keys are rejected.
func ParseOptions(kwargs map[string]any) (Options, error) {
	opts := DefaultOptions()

	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, key := range keys {
		v := kwargs[key]

		switch key {
		case "n_src":
			n, err := toInt(v)
			if err != nil || n < 1 {
				return Options{}, fmt.Errorf("masknet: n_src must be a positive integer, got %v", v)
			}

			opts.NSrc = n
		case "fix_length_mode":
			s, err := toOptionalString(v)
			if err != nil {
				return Options{}, fmt.Errorf("masknet: fix_length_mode: %w", err)
			}

			switch m := FixLengthMode(s); m {
			case FixLengthNone, FixLengthPad, FixLengthTrim:
				opts.FixLengthMode = m
			default:
				return Options{}, fmt.Errorf("masknet: unknown fix_length_mode %q", s)
			}
		case "mask_bound":
			s, err := toOptionalString(v)
			if err != nil {
				return Options{}, fmt.Errorf("masknet: mask_bound: %w", err)
			}

			b, err := complexnn.ParseBoundType(s)
			if err != nil {
				return Options{}, err
			}

			opts.MaskBound = b
		default:
			return Options{}, fmt.Errorf("masknet: unknown option %q", key)
		}
	}

	return opts, nil
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("not an integer: %v", n)
		}

		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

func toOptionalString(v any) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	default:
		return "", fmt.Errorf("expected string or null, got %T", v)
	}
}

// MaskNet estimates complex masks from a complex spectrum.
type MaskNet struct {
	arch       Architecture
	opts       Options
	strideProd [2]int64
	encoders   []*block
	decoders   []*block
	output     *block
}

// New builds the network for arch, loading weights from vb.
func New(arch Architecture, opts Options, vb *VarBuilder) (*MaskNet, error) {
	if len(arch.Encoders) == 0 {
		return nil, fmt.Errorf("masknet: architecture %q has no encoders", arch.Name)
	}

	if opts.NSrc < 1 {
		return nil, fmt.Errorf("masknet: n_src must be >= 1, got %d", opts.NSrc)
	}

	if _, err := complexnn.ParseBoundType(string(opts.MaskBound)); err != nil {
		return nil, err
	}

	m := &MaskNet{arch: arch, opts: opts, strideProd: arch.StrideProduct()}

	for i, spec := range arch.Encoders {
		b, err := newEncoderBlock(vb.Path("encoders", strconv.Itoa(i)), spec)
		if err != nil {
			return nil, fmt.Errorf("masknet: encoder %d: %w", i, err)
		}

		m.encoders = append(m.encoders, b)
	}

	decoders := arch.Decoders(opts.NSrc)
	for i, spec := range decoders[:len(decoders)-1] {
		b, err := newDecoderBlock(vb.Path("decoders", strconv.Itoa(i)), spec)
		if err != nil {
			return nil, fmt.Errorf("masknet: decoder %d: %w", i, err)
		}

		m.decoders = append(m.decoders, b)
	}

	out, err := newOutputLayer(vb.Path("output_layer"), decoders[len(decoders)-1])
	if err != nil {
		return nil, fmt.Errorf("masknet: output layer: %w", err)
	}

	m.output = out

	return m, nil
}

func (m *MaskNet) Architecture() Architecture { return m.arch }

func (m *MaskNet) Options() Options { return m.opts }

// Forward maps spec [batch, freq, frames] to masks [batch, n_src, freq, frames].
func (m *MaskNet) Forward(ctx context.Context, spec *complexnn.Tensor) (*complexnn.Tensor, error) {
	if spec == nil || spec.Rank() != 3 {
		return nil, fmt.Errorf("%w: expected [batch, freq, frames], got %v", ErrInputDims, spec.Shape())
	}

	frames := spec.Dim(-1)

	x, err := m.fixInputDims(spec)
	if err != nil {
		return nil, err
	}

	if x, err = x.Unsqueeze(1); err != nil {
		return nil, err
	}

	skips := make([]*complexnn.Tensor, 0, len(m.encoders))

	for i, enc := range m.encoders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if x, err = enc.Forward(x); err != nil {
			return nil, fmt.Errorf("masknet: encoder %d: %w", i, err)
		}

		skips = append(skips, x)
	}

	for i, dec := range m.decoders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if x, err = dec.Forward(x); err != nil {
			return nil, fmt.Errorf("masknet: decoder %d: %w", i, err)
		}

		skip := skips[len(skips)-2-i]
		if x, err = complexnn.Concat([]*complexnn.Tensor{x, skip}, 1); err != nil {
			return nil, fmt.Errorf("masknet: skip %d: %w", i, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if x, err = m.output.Forward(x); err != nil {
		return nil, fmt.Errorf("masknet: output layer: %w", err)
	}

	if x, err = x.PadDim(-1, frames); err != nil {
		return nil, err
	}

	return complexnn.BoundMask(x, m.opts.MaskBound)
}

func (m *MaskNet) fixInputDims(x *complexnn.Tensor) (*complexnn.Tensor, error) {
	freqProd, timeProd := m.strideProd[0], m.strideProd[1]

	if freq := x.Dim(1); freq < 1 || (freq-1)%freqProd != 0 {
		return nil, fmt.Errorf("%w: input shape must be [batch, freq + 1, time + 1] with freq divisible by %d, got %v", ErrInputDims, freqProd, x.Shape())
	}

	frames := x.Dim(2)
	if frames < 1 {
		return nil, fmt.Errorf("%w: no frames in %v", ErrInputDims, x.Shape())
	}

	rem := (frames - 1) % timeProd
	if rem == 0 {
		return x, nil
	}

	switch m.opts.FixLengthMode {
	case FixLengthPad:
		return x.PadDim(2, frames+timeProd-rem)
	case FixLengthTrim:
		return x.PadDim(2, frames-rem)
	default:
		return nil, fmt.Errorf("%w: input shape must be [batch, freq + 1, time + 1] with time divisible by %d, got %v (set fix_length_mode to pad or trim)", ErrInputDims, timeProd, x.Shape())
	}
}
