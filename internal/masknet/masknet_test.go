package masknet

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/example/go-dcunet/internal/complexnn"
	"github.com/example/go-dcunet/internal/runtime/tensor"
	"github.com/example/go-dcunet/internal/safetensors"
)

func mustArch(t *testing.T, name string) Architecture {
	t.Helper()

	a, err := Lookup(name)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", name, err)
	}

	return a
}

func newTestNet(t *testing.T, arch string, opts Options, seed uint64) *MaskNet {
	t.Helper()

	a := mustArch(t, arch)

	m, err := New(a, opts, NewVarBuilderFromTensors(InitTensors(a, opts, seed)))
	if err != nil {
		t.Fatalf("New(%s): %v", arch, err)
	}

	return m
}

func synthSpec(t *testing.T, batch, freq, frames int64) *complexnn.Tensor {
	t.Helper()

	data := make([]complex64, batch*freq*frames)
	for i := range data {
		f := float64(i)
		data[i] = complex(float32(math.Sin(0.37*f)), float32(math.Cos(0.11*f)))
	}

	x, err := complexnn.New(data, []int64{batch, freq, frames})
	if err != nil {
		t.Fatal(err)
	}

	return x
}

func TestLookup(t *testing.T) {
	for _, name := range []string{"DCUNet-10", "DCUNet-16", "DCUNet-20", "Large-DCUNet-20", "mini"} {
		if _, err := Lookup(name); err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
	}

	if _, err := Lookup("DCUNet-99"); !errors.Is(err, ErrUnknownArchitecture) {
		t.Fatalf("err = %v, want ErrUnknownArchitecture", err)
	}

	if got := len(Names()); got != 5 {
		t.Fatalf("Names() has %d entries, want 5", got)
	}
}

func TestDecodersMirrorEncoders(t *testing.T) {
	a := mustArch(t, "DCUNet-10")
	dec := a.Decoders(3)

	if len(dec) != len(a.Encoders) {
		t.Fatalf("decoder count = %d, want %d", len(dec), len(a.Encoders))
	}

	want := []BlockSpec{
		{In: 64, Out: 64, Kernel: [2]int64{5, 3}, Stride: [2]int64{2, 1}},
		{In: 128, Out: 64, Kernel: [2]int64{5, 3}, Stride: [2]int64{2, 2}},
		{In: 128, Out: 64, Kernel: [2]int64{5, 3}, Stride: [2]int64{2, 2}},
		{In: 128, Out: 32, Kernel: [2]int64{7, 5}, Stride: [2]int64{2, 2}},
		{In: 64, Out: 3, Kernel: [2]int64{7, 5}, Stride: [2]int64{2, 2}},
	}

	for i := range want {
		if dec[i] != want[i] {
			t.Fatalf("decoder %d = %+v, want %+v", i, dec[i], want[i])
		}
	}

	if p := (BlockSpec{Kernel: [2]int64{7, 1}}).Padding(); p != [2]int64{3, 0} {
		t.Fatalf("auto padding = %v, want [3 0]", p)
	}
}

func TestStrideProduct(t *testing.T) {
	cases := map[string][2]int64{
		"DCUNet-10":       {32, 16},
		"DCUNet-16":       {256, 16},
		"DCUNet-20":       {256, 16},
		"Large-DCUNet-20": {256, 16},
		"mini":            {4, 2},
	}

	for name, want := range cases {
		if got := mustArch(t, name).StrideProduct(); got != want {
			t.Fatalf("%s stride product = %v, want %v", name, got, want)
		}
	}
}

func TestParseOptions(t *testing.T) {
	opts, err := ParseOptions(nil)
	if err != nil || opts != DefaultOptions() {
		t.Fatalf("ParseOptions(nil) = %+v, %v", opts, err)
	}

	opts, err = ParseOptions(map[string]any{"n_src": 2.0, "fix_length_mode": "pad", "mask_bound": "BDSS"})
	if err != nil {
		t.Fatalf("ParseOptions: %v", err)
	}

	if opts.NSrc != 2 || opts.FixLengthMode != FixLengthPad || opts.MaskBound != complexnn.BoundBDSS {
		t.Fatalf("opts = %+v", opts)
	}

	opts, err = ParseOptions(map[string]any{"mask_bound": nil, "fix_length_mode": nil})
	if err != nil || opts.MaskBound != complexnn.BoundNone || opts.FixLengthMode != FixLengthNone {
		t.Fatalf("null options = %+v, %v", opts, err)
	}

	bad := []map[string]any{
		{"n_src": 0},
		{"n_src": 1.5},
		{"fix_length_mode": "stretch"},
		{"mask_bound": "relu"},
		{"hidden": 3},
	}
	for _, kw := range bad {
		if _, err := ParseOptions(kw); err == nil {
			t.Fatalf("ParseOptions(%v) expected error", kw)
		}
	}

	if _, err := ParseOptions(map[string]any{"mask_bound": "relu"}); !errors.Is(err, complexnn.ErrUnrecognizedBound) {
		t.Fatalf("bad bound err = %v, want ErrUnrecognizedBound", err)
	}
}

func TestForwardShapes(t *testing.T) {
	cases := []struct {
		arch   string
		nSrc   int64
		batch  int64
		freq   int64
		frames int64
	}{
		{arch: "mini", nSrc: 1, batch: 2, freq: 9, frames: 5},
		{arch: "mini", nSrc: 2, batch: 1, freq: 17, frames: 9},
		{arch: "DCUNet-10", nSrc: 1, batch: 1, freq: 33, frames: 17},
	}

	for _, tc := range cases {
		t.Run(tc.arch, func(t *testing.T) {
			opts := DefaultOptions()
			opts.NSrc = tc.nSrc
			m := newTestNet(t, tc.arch, opts, 7)

			masks, err := m.Forward(context.Background(), synthSpec(t, tc.batch, tc.freq, tc.frames))
			if err != nil {
				t.Fatalf("Forward: %v", err)
			}

			want := []int64{tc.batch, tc.nSrc, tc.freq, tc.frames}
			if !tensor.EqualShape(masks.Shape(), want) {
				t.Fatalf("mask shape = %v, want %v", masks.Shape(), want)
			}

			for i, v := range masks.RawData() {
				if real(v) < -1 || real(v) > 1 || imag(v) < -1 || imag(v) > 1 {
					t.Fatalf("mask %d = %v outside tanh bound", i, v)
				}
			}
		})
	}
}

func TestForwardDeterministic(t *testing.T) {
	spec := synthSpec(t, 1, 9, 5)

	a, err := newTestNet(t, "mini", DefaultOptions(), 3).Forward(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}

	b, err := newTestNet(t, "mini", DefaultOptions(), 3).Forward(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}

	c, err := newTestNet(t, "mini", DefaultOptions(), 4).Forward(context.Background(), spec)
	if err != nil {
		t.Fatal(err)
	}

	same, differs := true, false

	for i := range a.RawData() {
		if a.RawData()[i] != b.RawData()[i] {
			same = false
		}

		if a.RawData()[i] != c.RawData()[i] {
			differs = true
		}
	}

	if !same || !differs {
		t.Fatalf("same seed equal=%v, different seed differs=%v", same, differs)
	}
}

func TestFixLengthModes(t *testing.T) {
	// mini needs (frames-1) % 2 == 0; 6 frames leaves a remainder.
	spec := synthSpec(t, 1, 9, 6)

	_, err := newTestNet(t, "mini", DefaultOptions(), 1).Forward(context.Background(), spec)
	if !errors.Is(err, ErrInputDims) {
		t.Fatalf("strict mode err = %v, want ErrInputDims", err)
	}

	for _, mode := range []FixLengthMode{FixLengthPad, FixLengthTrim} {
		t.Run(string(mode), func(t *testing.T) {
			opts := DefaultOptions()
			opts.FixLengthMode = mode

			masks, err := newTestNet(t, "mini", opts, 1).Forward(context.Background(), spec)
			if err != nil {
				t.Fatalf("Forward: %v", err)
			}

			if !tensor.EqualShape(masks.Shape(), []int64{1, 1, 9, 6}) {
				t.Fatalf("shape = %v, want [1 1 9 6]", masks.Shape())
			}

			if mode == FixLengthTrim {
				// Trimmed frames come back as zero masks.
				last, _ := masks.Narrow(-1, 5, 1)
				for _, v := range last.RawData() {
					if v != 0 {
						t.Fatalf("trimmed frame mask = %v, want 0", v)
					}
				}
			}
		})
	}

	_, err = newTestNet(t, "mini", DefaultOptions(), 1).Forward(context.Background(), synthSpec(t, 1, 10, 5))
	if !errors.Is(err, ErrInputDims) {
		t.Fatalf("bad freq err = %v, want ErrInputDims", err)
	}
}

func TestForwardCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestNet(t, "mini", DefaultOptions(), 1).Forward(ctx, synthSpec(t, 1, 9, 5))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestZeroWeightsGiveBoundOfZero(t *testing.T) {
	a := mustArch(t, "mini")
	opts := DefaultOptions()
	opts.MaskBound = complexnn.BoundSigmoid

	weights := InitTensors(a, opts, 1)
	for i := range weights {
		clear(weights[i].Data)
	}

	m, err := New(a, opts, NewVarBuilderFromTensors(weights))
	if err != nil {
		t.Fatal(err)
	}

	masks, err := m.Forward(context.Background(), synthSpec(t, 1, 9, 5))
	if err != nil {
		t.Fatal(err)
	}

	// Batch norm running_var is zeroed too, so outputs are 0 and sigmoid(0)=0.5.
	for i, v := range masks.RawData() {
		if math.Abs(float64(real(v))-0.5) > 1e-6 || imag(v) != 0 {
			t.Fatalf("mask %d = %v, want 0.5", i, v)
		}
	}
}

func TestNewFromCheckpointFile(t *testing.T) {
	a := mustArch(t, "mini")
	path := filepath.Join(t.TempDir(), "mini.safetensors")

	if err := safetensors.WriteFile(path, InitTensors(a, DefaultOptions(), 11), nil); err != nil {
		t.Fatal(err)
	}

	vb, store, err := OpenVarBuilder(path)
	if err != nil {
		t.Fatalf("OpenVarBuilder: %v", err)
	}
	defer store.Close()

	if !vb.Path("encoders", "0", "conv").Has("re_module.weight") {
		t.Fatal("prefixed weight not resolved")
	}

	if _, err := New(a, DefaultOptions(), vb); err != nil {
		t.Fatalf("New: %v", err)
	}

	// Wrong architecture for these weights fails on shape.
	if _, err := New(mustArch(t, "DCUNet-10"), DefaultOptions(), vb); err == nil {
		t.Fatal("expected shape mismatch for DCUNet-10")
	}

	// Weights for one source cannot serve two.
	two := DefaultOptions()
	two.NSrc = 2

	if _, err := New(a, two, vb); err == nil {
		t.Fatal("expected output layer shape mismatch for n_src=2")
	}
}
