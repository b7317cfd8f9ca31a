package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-dcunet/internal/runtime/tensor"
)

// Conv2DParams holds per-axis (height, width) convolution hyperparameters.
type Conv2DParams struct {
	Stride        [2]int64
	Padding       [2]int64
	Dilation      [2]int64
	OutputPadding [2]int64 // transposed convolution only
}

// withDefaults fills zero stride/dilation with 1.
func (p Conv2DParams) withDefaults() Conv2DParams {
	for i := range 2 {
		if p.Stride[i] == 0 {
			p.Stride[i] = 1
		}

		if p.Dilation[i] == 0 {
			p.Dilation[i] = 1
		}
	}

	return p
}

type conv2DShape struct {
	batch      int64
	inChannels int64
	inH, inW   int64
	outCh      int64
	kH, kW     int64
	outH, outW int64
}

// Conv2D performs a deterministic CPU Conv2d with groups=1.
// input: [batch, in_channels, height, width]
// kernel: [out_channels, in_channels, kernel_h, kernel_w]
//
// The convolution is lowered to a GEMM over an im2col patch matrix of shape
// [outH*outW, inCh*kH*kW] so every output value is one contiguous dot
// product between a kernel row and a patch row.
func Conv2D(input, kernel, bias *tensor.Tensor, params Conv2DParams) (*tensor.Tensor, error) {
	params = params.withDefaults()

	s, out, biasData, err := prepareConv2D(input, kernel, bias, params)
	if err != nil {
		return nil, err
	}

	inputData := input.RawData()
	kernelData := kernel.RawData()
	outData := out.RawData()

	patchLen := int(s.inChannels * s.kH * s.kW)
	positions := int(s.outH * s.outW)

	imcol := borrow(positions * patchLen)
	defer giveBack(imcol)

	outChI := int(s.outCh)
	inPlane := int(s.inH * s.inW)

	for b := range s.batch {
		if b > 0 {
			for i := range imcol {
				imcol[i] = 0
			}
		}

		for ic := range s.inChannels {
			inBase := int(b*s.inChannels+ic) * inPlane

			for ky := range s.kH {
				for kx := range s.kW {
					col := int((ic*s.kH+ky)*s.kW + kx)

					for oy := range s.outH {
						iy := oy*params.Stride[0] - params.Padding[0] + ky*params.Dilation[0]
						if iy < 0 || iy >= s.inH {
							continue
						}

						rowBase := inBase + int(iy*s.inW)
						for ox := range s.outW {
							ix := ox*params.Stride[1] - params.Padding[1] + kx*params.Dilation[1]
							if ix < 0 || ix >= s.inW {
								continue
							}

							imcol[int(oy*s.outW+ox)*patchLen+col] = inputData[rowBase+int(ix)]
						}
					}
				}
			}
		}

		outBase := int(b) * outChI * positions
		splitChannels(outChI, convWorkers(), func(ocLo, ocHi int) {
			for oc := ocLo; oc < ocHi; oc++ {
				kernelRow := kernelData[oc*patchLen : (oc+1)*patchLen]

				biasVal := float32(0)
				if biasData != nil {
					biasVal = biasData[oc]
				}

				outOC := outData[outBase+oc*positions : outBase+(oc+1)*positions]
				for p := range positions {
					outOC[p] = tensor.DotProduct(kernelRow, imcol[p*patchLen:(p+1)*patchLen]) + biasVal
				}
			}
		})
	}

	return out, nil
}

func prepareConv2D(input, kernel, bias *tensor.Tensor, params Conv2DParams) (conv2DShape, *tensor.Tensor, []float32, error) {
	if input == nil || kernel == nil {
		return conv2DShape{}, nil, nil, errors.New("ops: conv2d requires non-nil input/kernel")
	}

	if err := validateConv2DParams("conv2d", params); err != nil {
		return conv2DShape{}, nil, nil, err
	}

	inShape := input.Shape()
	kShape := kernel.Shape()

	if len(inShape) != 4 || len(kShape) != 4 {
		return conv2DShape{}, nil, nil, fmt.Errorf("ops: conv2d expects input/kernel rank 4, got %v and %v", inShape, kShape)
	}

	s := conv2DShape{
		batch:      inShape[0],
		inChannels: inShape[1],
		inH:        inShape[2],
		inW:        inShape[3],
		outCh:      kShape[0],
		kH:         kShape[2],
		kW:         kShape[3],
	}

	if kShape[1] != s.inChannels {
		return conv2DShape{}, nil, nil, fmt.Errorf("ops: conv2d kernel in_channels mismatch: got %d want %d", kShape[1], s.inChannels)
	}

	biasData, err := checkBias("conv2d", bias, s.outCh)
	if err != nil {
		return conv2DShape{}, nil, nil, err
	}

	s.outH = (s.inH+2*params.Padding[0]-params.Dilation[0]*(s.kH-1)-1)/params.Stride[0] + 1
	s.outW = (s.inW+2*params.Padding[1]-params.Dilation[1]*(s.kW-1)-1)/params.Stride[1] + 1

	if s.outH <= 0 || s.outW <= 0 {
		return conv2DShape{}, nil, nil, fmt.Errorf("ops: conv2d produced non-positive output size %dx%d for input %v", s.outH, s.outW, inShape)
	}

	out, err := tensor.Zeros([]int64{s.batch, s.outCh, s.outH, s.outW})
	if err != nil {
		return conv2DShape{}, nil, nil, err
	}

	return s, out, biasData, nil
}

func validateConv2DParams(op string, params Conv2DParams) error {
	for i := range 2 {
		if params.Stride[i] <= 0 || params.Dilation[i] <= 0 {
			return fmt.Errorf("ops: %s stride/dilation must be > 0, got %v/%v", op, params.Stride, params.Dilation)
		}

		if params.Padding[i] < 0 {
			return fmt.Errorf("ops: %s padding must be >= 0, got %v", op, params.Padding)
		}
	}

	return nil
}

func checkBias(op string, bias *tensor.Tensor, outChannels int64) ([]float32, error) {
	if bias == nil {
		return nil, nil
	}

	bShape := bias.Shape()
	if len(bShape) != 1 || bShape[0] != outChannels {
		return nil, fmt.Errorf("ops: %s bias shape %v does not match out_channels %d", op, bShape, outChannels)
	}

	return bias.RawData(), nil
}
