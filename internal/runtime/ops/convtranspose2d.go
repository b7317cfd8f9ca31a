package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-dcunet/internal/runtime/tensor"
)

// RepackConvTranspose2DKernel repacks a ConvTranspose2D weight tensor from
// the standard [inCh, outCh, kH, kW] layout to [kH, kW, outCh, inCh] so that
// each (ky, kx, oc) slice is contiguous over input channels.
//
// Call this once at model load time and pass the result to
// ConvTranspose2DPrePacked to avoid the per-call repack cost.
func RepackConvTranspose2DKernel(kernel *tensor.Tensor) []float32 {
	s := kernel.Shape()
	inCh, outCh, kH, kW := int(s[0]), int(s[1]), int(s[2]), int(s[3])
	data := kernel.RawData()

	packed := make([]float32, kH*kW*outCh*inCh)
	for ic := range inCh {
		for oc := range outCh {
			for ky := range kH {
				for kx := range kW {
					src := ((ic*outCh+oc)*kH+ky)*kW + kx
					dst := ((ky*kW+kx)*outCh+oc)*inCh + ic
					packed[dst] = data[src]
				}
			}
		}
	}

	return packed
}

// ConvTranspose2D performs a deterministic CPU ConvTranspose2d with groups=1.
// input: [batch, in_channels, height, width]
// kernel: [in_channels, out_channels, kernel_h, kernel_w]
func ConvTranspose2D(input, kernel, bias *tensor.Tensor, params Conv2DParams) (*tensor.Tensor, error) {
	return ConvTranspose2DPrePacked(input, kernel, bias, nil, params)
}

// ConvTranspose2DPrePacked is like ConvTranspose2D but accepts a kernel
// already repacked by RepackConvTranspose2DKernel. A nil packed kernel is
// repacked on the fly.
func ConvTranspose2DPrePacked(input, kernel, bias *tensor.Tensor, packed []float32, params Conv2DParams) (*tensor.Tensor, error) {
	params = params.withDefaults()

	s, out, biasData, err := prepareConvTranspose2D(input, kernel, bias, params)
	if err != nil {
		return nil, err
	}

	inChI := int(s.inChannels)
	outChI := int(s.outCh)
	kHI, kWI := int(s.kH), int(s.kW)

	if packed == nil {
		packed = borrow(kHI * kWI * outChI * inChI)
		defer giveBack(packed)

		kData := kernel.RawData()
		for ic := range inChI {
			for oc := range outChI {
				for ky := range kHI {
					for kx := range kWI {
						packed[((ky*kWI+kx)*outChI+oc)*inChI+ic] = kData[((ic*outChI+oc)*kHI+ky)*kWI+kx]
					}
				}
			}
		}
	} else if len(packed) != kHI*kWI*outChI*inChI {
		return nil, fmt.Errorf("ops: prepacked convtranspose2d kernel length mismatch: got %d want %d", len(packed), kHI*kWI*outChI*inChI)
	}

	inPlane := int(s.inH * s.inW)
	outPlane := int(s.outH * s.outW)
	inputData := input.RawData()
	outData := out.RawData()

	// inputT holds one batch item as [inH*inW, inCh].
	inputT := borrow(inPlane * inChI)
	defer giveBack(inputT)

	for b := range int(s.batch) {
		for ic := range inChI {
			src := inputData[(b*inChI+ic)*inPlane : (b*inChI+ic+1)*inPlane]
			for p, v := range src {
				inputT[p*inChI+ic] = v
			}
		}

		outBatch := outData[b*outChI*outPlane : (b+1)*outChI*outPlane]
		splitChannels(outChI, convWorkers(), func(ocLo, ocHi int) {
			for oc := ocLo; oc < ocHi; oc++ {
				outPlaneOC := outBatch[oc*outPlane : (oc+1)*outPlane]

				for ky := range s.kH {
					for kx := range s.kW {
						kOff := ((int(ky)*kWI+int(kx))*outChI + oc) * inChI
						kRow := packed[kOff : kOff+inChI]

						for iy := range s.inH {
							oy := iy*params.Stride[0] - params.Padding[0] + ky*params.Dilation[0]
							if oy < 0 || oy >= s.outH {
								continue
							}

							for ix := range s.inW {
								ox := ix*params.Stride[1] - params.Padding[1] + kx*params.Dilation[1]
								if ox < 0 || ox >= s.outW {
									continue
								}

								p := int(iy*s.inW + ix)
								outPlaneOC[oy*s.outW+ox] += tensor.DotProduct(kRow, inputT[p*inChI:(p+1)*inChI])
							}
						}
					}
				}

				if biasData != nil {
					bv := biasData[oc]
					for i := range outPlaneOC {
						outPlaneOC[i] += bv
					}
				}
			}
		})
	}

	return out, nil
}

func prepareConvTranspose2D(input, kernel, bias *tensor.Tensor, params Conv2DParams) (conv2DShape, *tensor.Tensor, []float32, error) {
	if input == nil || kernel == nil {
		return conv2DShape{}, nil, nil, errors.New("ops: convtranspose2d requires non-nil input/kernel")
	}

	if err := validateConv2DParams("convtranspose2d", params); err != nil {
		return conv2DShape{}, nil, nil, err
	}

	for i := range 2 {
		if params.OutputPadding[i] < 0 || params.OutputPadding[i] >= max(params.Stride[i], params.Dilation[i]) {
			return conv2DShape{}, nil, nil, fmt.Errorf("ops: convtranspose2d output_padding must be in [0, max(stride, dilation)), got %v", params.OutputPadding)
		}
	}

	inShape := input.Shape()
	kShape := kernel.Shape()

	if len(inShape) != 4 || len(kShape) != 4 {
		return conv2DShape{}, nil, nil, fmt.Errorf("ops: convtranspose2d expects input/kernel rank 4, got %v and %v", inShape, kShape)
	}

	s := conv2DShape{
		batch:      inShape[0],
		inChannels: inShape[1],
		inH:        inShape[2],
		inW:        inShape[3],
		outCh:      kShape[1],
		kH:         kShape[2],
		kW:         kShape[3],
	}

	if kShape[0] != s.inChannels {
		return conv2DShape{}, nil, nil, fmt.Errorf("ops: convtranspose2d kernel in_channels mismatch %d vs %d", kShape[0], s.inChannels)
	}

	biasData, err := checkBias("convtranspose2d", bias, s.outCh)
	if err != nil {
		return conv2DShape{}, nil, nil, err
	}

	s.outH = (s.inH-1)*params.Stride[0] - 2*params.Padding[0] + params.Dilation[0]*(s.kH-1) + params.OutputPadding[0] + 1
	s.outW = (s.inW-1)*params.Stride[1] - 2*params.Padding[1] + params.Dilation[1]*(s.kW-1) + params.OutputPadding[1] + 1

	if s.outH <= 0 || s.outW <= 0 {
		return conv2DShape{}, nil, nil, fmt.Errorf("ops: convtranspose2d produced non-positive output size %dx%d", s.outH, s.outW)
	}

	out, err := tensor.Zeros([]int64{s.batch, s.outCh, s.outH, s.outW})
	if err != nil {
		return conv2DShape{}, nil, nil, err
	}

	return s, out, biasData, nil
}
