package onnx

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/go-dcunet/internal/complexnn"
	"github.com/example/go-dcunet/internal/config"
)

// MaskRunner runs an exported mask network graph. It satisfies the same
// Forward contract as the native mask network.
type MaskRunner struct {
	runner graphRunner
}

type graphRunner interface {
	Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error)
	Close()
}

// NewMaskRunner bootstraps ONNX Runtime from cfg and opens the graph at path.
func NewMaskRunner(path string, cfg config.RuntimeConfig) (*MaskRunner, error) {
	info, err := Bootstrap(cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap onnx runtime: %w", err)
	}

	meta, err := MaskSession(path)
	if err != nil {
		return nil, err
	}

	r, err := NewRunner(meta, info.LibraryPath, uint32(max(cfg.ORTAPIVersion, 0)))
	if err != nil {
		return nil, err
	}

	return &MaskRunner{runner: r}, nil
}

// Forward maps spec [batch, freq, frames] to masks [batch, n_src, freq, frames].
func (m *MaskRunner) Forward(ctx context.Context, spec *complexnn.Tensor) (*complexnn.Tensor, error) {
	in, err := PackSpec(spec)
	if err != nil {
		return nil, err
	}

	out, err := m.runner.Run(ctx, map[string]*Tensor{MaskInputName: in})
	if err != nil {
		return nil, err
	}

	masks, ok := out[MaskOutputName]
	if !ok {
		return nil, fmt.Errorf("onnx masker: missing %q output", MaskOutputName)
	}

	return UnpackMasks(masks)
}

func (m *MaskRunner) Close() {
	if m.runner != nil {
		m.runner.Close()
	}
}

// PackSpec converts a complex spectrum [batch, freq, frames] into the graph
// input [batch, 2, freq, frames] (real plane, then imaginary plane).
func PackSpec(spec *complexnn.Tensor) (*Tensor, error) {
	if spec == nil || spec.Rank() != 3 {
		return nil, errors.New("onnx masker: spectrum must be [batch, freq, frames]")
	}

	shape := spec.Shape()
	plane := int(shape[1] * shape[2])
	src := spec.RawData()
	out := make([]float32, 2*len(src))

	for b := range int(shape[0]) {
		vals := src[b*plane : (b+1)*plane]
		re := out[2*b*plane : (2*b+1)*plane]
		im := out[(2*b+1)*plane : (2*b+2)*plane]

		for i, v := range vals {
			re[i] = real(v)
			im[i] = imag(v)
		}
	}

	return NewTensor(out, []int64{shape[0], 2, shape[1], shape[2]})
}

// UnpackMasks converts the graph output [batch, n_src, 2, freq, frames] into
// complex masks [batch, n_src, freq, frames].
func UnpackMasks(t *Tensor) (*complexnn.Tensor, error) {
	shape := t.Shape()
	if len(shape) != 5 || shape[2] != 2 {
		return nil, fmt.Errorf("onnx masker: masks must be [batch, n_src, 2, freq, frames], got %v", shape)
	}

	data, err := t.Float32()
	if err != nil {
		return nil, fmt.Errorf("onnx masker: %w", err)
	}

	groups := int(shape[0] * shape[1])
	plane := int(shape[3] * shape[4])
	out := make([]complex64, groups*plane)

	for g := range groups {
		re := data[2*g*plane : (2*g+1)*plane]
		im := data[(2*g+1)*plane : (2*g+2)*plane]
		dst := out[g*plane : (g+1)*plane]

		for i := range dst {
			dst[i] = complex(re[i], im[i])
		}
	}

	return complexnn.New(out, []int64{shape[0], shape[1], shape[3], shape[4]})
}
