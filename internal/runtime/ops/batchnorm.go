package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-dcunet/internal/runtime/tensor"
)

// BatchNorm applies inference-mode batch normalization over dim 1 using
// running statistics:
//
//	y = (x - mean) / sqrt(var + eps) * weight + bias
//
// input: [batch, channels, ...]; mean/variance/weight/bias: [channels].
// weight and bias may be nil (affine=false).
func BatchNorm(input, mean, variance, weight, bias *tensor.Tensor, eps float32) (*tensor.Tensor, error) {
	if input == nil || mean == nil || variance == nil {
		return nil, errors.New("ops: batchnorm requires non-nil input/mean/variance")
	}

	if eps <= 0 {
		return nil, errors.New("ops: batchnorm eps must be > 0")
	}

	shape := input.Shape()
	if len(shape) < 2 {
		return nil, fmt.Errorf("ops: batchnorm expects rank >= 2, got %v", shape)
	}

	channels := shape[1]
	for name, p := range map[string]*tensor.Tensor{"mean": mean, "var": variance, "weight": weight, "bias": bias} {
		if p == nil {
			continue
		}

		if ps := p.Shape(); len(ps) != 1 || ps[0] != channels {
			return nil, fmt.Errorf("ops: batchnorm %s shape %v does not match channels %d", name, ps, channels)
		}
	}

	scale := make([]float32, channels)
	shift := make([]float32, channels)
	meanData := mean.RawData()
	varData := variance.RawData()

	for c := range channels {
		inv := float32(1 / math.Sqrt(float64(varData[c])+float64(eps)))

		w := float32(1)
		if weight != nil {
			w = weight.RawData()[c]
		}

		b := float32(0)
		if bias != nil {
			b = bias.RawData()[c]
		}

		scale[c] = inv * w
		shift[c] = b - meanData[c]*inv*w
	}

	inner := int64(1)
	for _, d := range shape[2:] {
		inner *= d
	}

	out := input.Clone()
	data := out.RawData()

	for n := range shape[0] {
		for c := range channels {
			base := (n*channels + c) * inner
			row := data[base : base+inner]

			for i := range row {
				row[i] = row[i]*scale[c] + shift[c]
			}
		}
	}

	return out, nil
}
