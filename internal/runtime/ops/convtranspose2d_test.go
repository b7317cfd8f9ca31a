package ops

import (
	"testing"

	"github.com/example/go-dcunet/internal/runtime/tensor"
)

func naiveConvTranspose2D(in, k, bias []float32, inShape, kShape []int64, p Conv2DParams) ([]float32, []int64) {
	p = p.withDefaults()
	b, ic, h, w := inShape[0], inShape[1], inShape[2], inShape[3]
	oc, kh, kw := kShape[1], kShape[2], kShape[3]
	oh := (h-1)*p.Stride[0] - 2*p.Padding[0] + p.Dilation[0]*(kh-1) + p.OutputPadding[0] + 1
	ow := (w-1)*p.Stride[1] - 2*p.Padding[1] + p.Dilation[1]*(kw-1) + p.OutputPadding[1] + 1
	out := make([]float32, b*oc*oh*ow)

	for n := range b {
		for c := range ic {
			for y := range h {
				for x := range w {
					v := in[((n*ic+c)*h+y)*w+x]

					for o := range oc {
						for ky := range kh {
							for kx := range kw {
								oy := y*p.Stride[0] - p.Padding[0] + ky*p.Dilation[0]
								ox := x*p.Stride[1] - p.Padding[1] + kx*p.Dilation[1]

								if oy < 0 || oy >= oh || ox < 0 || ox >= ow {
									continue
								}

								out[((n*oc+o)*oh+oy)*ow+ox] += v * k[((c*oc+o)*kh+ky)*kw+kx]
							}
						}
					}
				}
			}
		}
	}

	if bias != nil {
		for n := range b {
			for o := range oc {
				for i := range oh * ow {
					out[(n*oc+o)*oh*ow+i] += bias[o]
				}
			}
		}
	}

	return out, []int64{b, oc, oh, ow}
}

func TestConvTranspose2DSimple(t *testing.T) {
	input := mustTensorT(t, []float32{1, 2, 3, 4}, []int64{1, 1, 2, 2})
	kernel := mustTensorT(t, []float32{1, 1, 1, 1}, []int64{1, 1, 2, 2})

	out, err := ConvTranspose2D(input, kernel, nil, Conv2DParams{})
	if err != nil {
		t.Fatalf("convtranspose2d: %v", err)
	}

	want := []float32{
		1, 3, 2,
		4, 10, 6,
		3, 7, 4,
	}
	if got := out.Data(); !equalApprox(got, want, 0) {
		t.Fatalf("convtranspose2d = %v, want %v", got, want)
	}
}

func TestConvTranspose2DMatchesNaive(t *testing.T) {
	tol, err := kernelTolerance("convtranspose2d")
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		inShape []int64
		kShape  []int64
		params  Conv2DParams
	}{
		{
			name:    "mirror of stride2 conv",
			inShape: []int64{2, 4, 5, 4},
			kShape:  []int64{4, 3, 5, 3},
			params:  Conv2DParams{Stride: [2]int64{2, 2}, Padding: [2]int64{2, 1}},
		},
		{
			name:    "asymmetric stride with output padding",
			inShape: []int64{1, 3, 4, 6},
			kShape:  []int64{3, 2, 5, 3},
			params:  Conv2DParams{Stride: [2]int64{2, 1}, Padding: [2]int64{2, 1}, OutputPadding: [2]int64{1, 0}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inData := seqDataT(int(tc.inShape[0] * tc.inShape[1] * tc.inShape[2] * tc.inShape[3]))
			kData := seqDataT(int(tc.kShape[0] * tc.kShape[1] * tc.kShape[2] * tc.kShape[3]))
			bData := seqDataT(int(tc.kShape[1]))

			kernel := mustTensorT(t, kData, tc.kShape)

			got, err := ConvTranspose2D(
				mustTensorT(t, inData, tc.inShape),
				kernel,
				mustTensorT(t, bData, []int64{tc.kShape[1]}),
				tc.params,
			)
			if err != nil {
				t.Fatalf("convtranspose2d: %v", err)
			}

			want, wantShape := naiveConvTranspose2D(inData, kData, bData, tc.inShape, tc.kShape, tc.params)
			if !tensor.EqualShape(got.Shape(), wantShape) {
				t.Fatalf("shape = %v, want %v", got.Shape(), wantShape)
			}

			for i, v := range got.RawData() {
				if !tol.Within(float64(v), float64(want[i])) {
					t.Fatalf("out[%d] = %v, want %v", i, v, want[i])
				}
			}

			packed, err := ConvTranspose2DPrePacked(
				mustTensorT(t, inData, tc.inShape),
				kernel,
				mustTensorT(t, bData, []int64{tc.kShape[1]}),
				RepackConvTranspose2DKernel(kernel),
				tc.params,
			)
			if err != nil {
				t.Fatalf("prepacked: %v", err)
			}

			if !equalApprox(packed.Data(), got.Data(), 0) {
				t.Fatal("prepacked output differs from on-the-fly repack")
			}
		})
	}
}

func TestConvTranspose2DErrors(t *testing.T) {
	input := mustTensorT(t, make([]float32, 4), []int64{1, 1, 2, 2})
	kernel := mustTensorT(t, make([]float32, 4), []int64{1, 1, 2, 2})

	_, err := ConvTranspose2D(input, mustTensorT(t, make([]float32, 8), []int64{2, 1, 2, 2}), nil, Conv2DParams{})
	assertErrContains(t, err, "in_channels mismatch")

	_, err = ConvTranspose2D(input, kernel, nil, Conv2DParams{OutputPadding: [2]int64{1, 0}})
	assertErrContains(t, err, "output_padding")

	_, err = ConvTranspose2DPrePacked(input, kernel, nil, []float32{1}, Conv2DParams{})
	assertErrContains(t, err, "length mismatch")
}

func TestBatchNorm(t *testing.T) {
	input := mustTensorT(t, []float32{
		1, 2, // c0
		3, 4, // c1
	}, []int64{1, 2, 2})
	mean := mustTensorT(t, []float32{1, 2}, []int64{2})
	variance := mustTensorT(t, []float32{4, 1}, []int64{2})
	weight := mustTensorT(t, []float32{2, 1}, []int64{2})
	bias := mustTensorT(t, []float32{0, 1}, []int64{2})

	tol, err := kernelTolerance("batchnorm")
	if err != nil {
		t.Fatal(err)
	}

	out, err := BatchNorm(input, mean, variance, weight, bias, 1e-5)
	if err != nil {
		t.Fatalf("batchnorm: %v", err)
	}

	want := []float32{0, 1, 2, 3}
	if got := out.Data(); !equalApprox(got, want, tol.Abs*10) {
		t.Fatalf("batchnorm = %v, want %v", got, want)
	}

	_, err = BatchNorm(input, mustTensorT(t, []float32{1}, []int64{1}), variance, nil, nil, 1e-5)
	assertErrContains(t, err, "does not match channels")
}
