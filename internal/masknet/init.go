package masknet

import (
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/example/go-dcunet/internal/complexnn"
	"github.com/example/go-dcunet/internal/safetensors"
)

// InitTensors produces a full set of "masker."-prefixed weights for arch.
// Convolutions use uniform(-1/sqrt(fan_in), 1/sqrt(fan_in)); batch norms start
// as identity. The same seed always yields the same tensors.
func InitTensors(arch Architecture, opts Options, seed uint64) []safetensors.Tensor {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	var out []safetensors.Tensor

	uniform := func(name string, shape []int64, fanIn int64) {
		bound := 1 / math.Sqrt(float64(fanIn))
		data := make([]float32, shapeSize(shape))

		for i := range data {
			data[i] = float32((rng.Float64()*2 - 1) * bound)
		}

		out = append(out, safetensors.Tensor{Name: name, Shape: shape, Data: data})
	}

	constant := func(name string, n int64, v float32) {
		data := make([]float32, n)
		for i := range data {
			data[i] = v
		}

		out = append(out, safetensors.Tensor{Name: name, Shape: []int64{n}, Data: data})
	}

	conv := func(prefix string, spec BlockSpec, transposed bool) {
		for c := range 2 {
			p := prefix + "." + complexnn.ComponentName(c) + "."
			kArea := spec.Kernel[0] * spec.Kernel[1]

			if transposed {
				uniform(p+"weight", []int64{spec.In, spec.Out, spec.Kernel[0], spec.Kernel[1]}, spec.Out*kArea)
				uniform(p+"bias", []int64{spec.Out}, spec.Out*kArea)
			} else {
				uniform(p+"weight", []int64{spec.Out, spec.In, spec.Kernel[0], spec.Kernel[1]}, spec.In*kArea)
				uniform(p+"bias", []int64{spec.Out}, spec.In*kArea)
			}
		}
	}

	norm := func(prefix string, channels int64) {
		for c := range 2 {
			p := prefix + "." + complexnn.ComponentName(c) + "."
			constant(p+"weight", channels, 1)
			constant(p+"bias", channels, 0)
			constant(p+"running_mean", channels, 0)
			constant(p+"running_var", channels, 1)
		}
	}

	for i, spec := range arch.Encoders {
		p := WeightPrefix + "encoders." + strconv.Itoa(i)
		conv(p+".conv", spec, false)
		norm(p+".norm", spec.Out)
	}

	decoders := arch.Decoders(opts.NSrc)
	for i, spec := range decoders[:len(decoders)-1] {
		p := WeightPrefix + "decoders." + strconv.Itoa(i)
		conv(p+".deconv", spec, true)
		norm(p+".norm", spec.Out)
	}

	conv(WeightPrefix+"output_layer", decoders[len(decoders)-1], true)

	return out
}

func shapeSize(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}

	return n
}
