// Package masknet implements the Deep Complex U-Net mask estimator: a stack
// of complex convolution encoders mirrored by complex transposed-convolution
// decoders with skip connections, producing one bounded complex mask per
// source.
package masknet

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownArchitecture is returned for an architecture name not in the table.
var ErrUnknownArchitecture = errors.New("masknet: unknown architecture")

// BlockSpec describes one U-Net level. Padding is always kernel/2 per axis.
type BlockSpec struct {
	In     int64
	Out    int64
	Kernel [2]int64
	Stride [2]int64
}

// Padding returns the "auto" padding for the block.
func (b BlockSpec) Padding() [2]int64 {
	return [2]int64{b.Kernel[0] / 2, b.Kernel[1] / 2}
}

// Architecture is a named encoder stack. Decoders are derived from it.
type Architecture struct {
	Name     string
	Encoders []BlockSpec
}

func enc(in, out, kh, kw, sh, sw int64) BlockSpec {
	return BlockSpec{In: in, Out: out, Kernel: [2]int64{kh, kw}, Stride: [2]int64{sh, sw}}
}

var architectures = map[string]Architecture{
	"DCUNet-10": {Name: "DCUNet-10", Encoders: []BlockSpec{
		enc(1, 32, 7, 5, 2, 2),
		enc(32, 64, 7, 5, 2, 2),
		enc(64, 64, 5, 3, 2, 2),
		enc(64, 64, 5, 3, 2, 2),
		enc(64, 64, 5, 3, 2, 1),
	}},
	"DCUNet-16": {Name: "DCUNet-16", Encoders: []BlockSpec{
		enc(1, 32, 7, 5, 2, 2),
		enc(32, 32, 7, 5, 2, 1),
		enc(32, 64, 7, 5, 2, 2),
		enc(64, 64, 5, 3, 2, 1),
		enc(64, 64, 5, 3, 2, 2),
		enc(64, 64, 5, 3, 2, 1),
		enc(64, 64, 5, 3, 2, 2),
		enc(64, 64, 5, 3, 2, 1),
	}},
	"DCUNet-20": {Name: "DCUNet-20", Encoders: []BlockSpec{
		enc(1, 32, 7, 1, 1, 1),
		enc(32, 32, 1, 7, 1, 1),
		enc(32, 64, 7, 5, 2, 2),
		enc(64, 64, 7, 5, 2, 1),
		enc(64, 64, 5, 3, 2, 2),
		enc(64, 64, 5, 3, 2, 1),
		enc(64, 64, 5, 3, 2, 2),
		enc(64, 64, 5, 3, 2, 1),
		enc(64, 64, 5, 3, 2, 2),
		enc(64, 90, 5, 3, 2, 1),
	}},
	"Large-DCUNet-20": {Name: "Large-DCUNet-20", Encoders: []BlockSpec{
		enc(1, 45, 7, 1, 1, 1),
		enc(45, 45, 1, 7, 1, 1),
		enc(45, 90, 7, 5, 2, 2),
		enc(90, 90, 7, 5, 2, 1),
		enc(90, 90, 5, 3, 2, 2),
		enc(90, 90, 5, 3, 2, 1),
		enc(90, 90, 5, 3, 2, 2),
		enc(90, 90, 5, 3, 2, 1),
		enc(90, 90, 5, 3, 2, 2),
		enc(90, 128, 5, 3, 2, 1),
	}},
	// Small two-level network for tests and quick checks.
	"mini": {Name: "mini", Encoders: []BlockSpec{
		enc(1, 4, 7, 5, 2, 2),
		enc(4, 8, 5, 3, 2, 1),
	}},
}

// Lookup returns the architecture registered under name.
func Lookup(name string) (Architecture, error) {
	a, ok := architectures[name]
	if !ok {
		return Architecture{}, fmt.Errorf("%w: %q (known: %v)", ErrUnknownArchitecture, name, Names())
	}

	return a, nil
}

// Names lists the registered architectures.
func Names() []string {
	out := make([]string, 0, len(architectures))
	for name := range architectures {
		out = append(out, name)
	}

	sort.Strings(out)

	return out
}

// Decoders mirrors the encoders in reverse order. Every decoder but the
// first also receives the skip connection of the matching encoder, and the
// last one emits nSrc channels.
func (a Architecture) Decoders(nSrc int64) []BlockSpec {
	out := make([]BlockSpec, 0, len(a.Encoders))

	for i := len(a.Encoders) - 1; i >= 0; i-- {
		e := a.Encoders[i]

		in := e.Out
		if len(out) > 0 {
			in += e.Out
		}

		out = append(out, BlockSpec{In: in, Out: e.In, Kernel: e.Kernel, Stride: e.Stride})
	}

	out[len(out)-1].Out = nSrc

	return out
}

// StrideProduct multiplies the encoder strides per axis (freq, time).
func (a Architecture) StrideProduct() [2]int64 {
	p := [2]int64{1, 1}
	for _, e := range a.Encoders {
		p[0] *= e.Stride[0]
		p[1] *= e.Stride[1]
	}

	return p
}
