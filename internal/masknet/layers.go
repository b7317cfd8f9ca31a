package masknet

import (
	"fmt"

	"github.com/example/go-dcunet/internal/complexnn"
	"github.com/example/go-dcunet/internal/runtime/ops"
	"github.com/example/go-dcunet/internal/runtime/tensor"
)

const (
	// WeightPrefix scopes mask-network tensors inside a full model checkpoint.
	WeightPrefix = "masker."

	batchNormEps   = 1e-5
	leakyReLUSlope = 0.01
)

type conv2d struct {
	weight *tensor.Tensor
	bias   *tensor.Tensor
	params ops.Conv2DParams
}

func (c *conv2d) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.Conv2D(x, c.weight, c.bias, c.params)
}

type convTranspose2d struct {
	weight *tensor.Tensor
	bias   *tensor.Tensor
	packed []float32
	params ops.Conv2DParams
}

func (c *convTranspose2d) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.ConvTranspose2DPrePacked(x, c.weight, c.bias, c.packed, c.params)
}

type batchNorm2d struct {
	mean, variance *tensor.Tensor
	weight, bias   *tensor.Tensor
}

func (b *batchNorm2d) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.BatchNorm(x, b.mean, b.variance, b.weight, b.bias, batchNormEps)
}

func loadConv2d(vb *VarBuilder, spec BlockSpec) (complexnn.Module, error) {
	w, err := vb.Tensor("weight", spec.Out, spec.In, spec.Kernel[0], spec.Kernel[1])
	if err != nil {
		return nil, err
	}

	b, _, err := vb.TensorMaybe("bias", spec.Out)
	if err != nil {
		return nil, err
	}

	return &conv2d{
		weight: w,
		bias:   b,
		params: ops.Conv2DParams{Stride: spec.Stride, Padding: spec.Padding()},
	}, nil
}

func loadConvTranspose2d(vb *VarBuilder, spec BlockSpec) (complexnn.Module, error) {
	w, err := vb.Tensor("weight", spec.In, spec.Out, spec.Kernel[0], spec.Kernel[1])
	if err != nil {
		return nil, err
	}

	b, _, err := vb.TensorMaybe("bias", spec.Out)
	if err != nil {
		return nil, err
	}

	return &convTranspose2d{
		weight: w,
		bias:   b,
		packed: ops.RepackConvTranspose2DKernel(w),
		params: ops.Conv2DParams{Stride: spec.Stride, Padding: spec.Padding()},
	}, nil
}

func loadBatchNorm2d(vb *VarBuilder, channels int64) (complexnn.Module, error) {
	bn := &batchNorm2d{}

	var err error

	if bn.mean, err = vb.Tensor("running_mean", channels); err != nil {
		return nil, err
	}

	if bn.variance, err = vb.Tensor("running_var", channels); err != nil {
		return nil, err
	}

	if bn.weight, _, err = vb.TensorMaybe("weight", channels); err != nil {
		return nil, err
	}

	if bn.bias, _, err = vb.TensorMaybe("bias", channels); err != nil {
		return nil, err
	}

	return bn, nil
}

// perComponent turns a loader into a factory reading "<prefix>.re_module"
// and "<prefix>.im_module".
func perComponent(vb *VarBuilder, load func(*VarBuilder) (complexnn.Module, error)) complexnn.Factory {
	return func(c int) (complexnn.Module, error) {
		return load(vb.Path(complexnn.ComponentName(c)))
	}
}

var leakyReLU = complexnn.NewOnReImFunc(func(x *tensor.Tensor) (*tensor.Tensor, error) {
	return tensor.LeakyReLU(x, leakyReLUSlope)
})

// block is conv -> norm -> activation in the complex domain. The output
// layer has no norm or activation.
type block struct {
	conv *complexnn.ComplexMultiplication
	norm *complexnn.OnReIm
	act  *complexnn.OnReIm
}

func newEncoderBlock(vb *VarBuilder, spec BlockSpec) (*block, error) {
	conv, err := complexnn.NewComplexMultiplication(perComponent(vb.Path("conv"), func(v *VarBuilder) (complexnn.Module, error) {
		return loadConv2d(v, spec)
	}))
	if err != nil {
		return nil, err
	}

	norm, err := complexnn.NewOnReIm(perComponent(vb.Path("norm"), func(v *VarBuilder) (complexnn.Module, error) {
		return loadBatchNorm2d(v, spec.Out)
	}))
	if err != nil {
		return nil, err
	}

	return &block{conv: conv, norm: norm, act: leakyReLU}, nil
}

func newDecoderBlock(vb *VarBuilder, spec BlockSpec) (*block, error) {
	conv, err := complexnn.NewComplexMultiplication(perComponent(vb.Path("deconv"), func(v *VarBuilder) (complexnn.Module, error) {
		return loadConvTranspose2d(v, spec)
	}))
	if err != nil {
		return nil, err
	}

	norm, err := complexnn.NewOnReIm(perComponent(vb.Path("norm"), func(v *VarBuilder) (complexnn.Module, error) {
		return loadBatchNorm2d(v, spec.Out)
	}))
	if err != nil {
		return nil, err
	}

	return &block{conv: conv, norm: norm, act: leakyReLU}, nil
}

func newOutputLayer(vb *VarBuilder, spec BlockSpec) (*block, error) {
	conv, err := complexnn.NewComplexMultiplication(perComponent(vb, func(v *VarBuilder) (complexnn.Module, error) {
		return loadConvTranspose2d(v, spec)
	}))
	if err != nil {
		return nil, err
	}

	return &block{conv: conv}, nil
}

func (b *block) Forward(x *complexnn.Tensor) (*complexnn.Tensor, error) {
	out, err := b.conv.Forward(x)
	if err != nil {
		return nil, err
	}

	if b.norm != nil {
		if out, err = b.norm.Forward(out); err != nil {
			return nil, fmt.Errorf("norm: %w", err)
		}
	}

	if b.act != nil {
		if out, err = b.act.Forward(out); err != nil {
			return nil, fmt.Errorf("activation: %w", err)
		}
	}

	return out, nil
}
