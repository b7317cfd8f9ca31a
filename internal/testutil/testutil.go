// Package testutil provides shared fixtures and skip helpers for tests that
// need a model checkpoint or an ONNX Runtime library.
//
// Typical usage:
//
//	func TestEnhance(t *testing.T) {
//	    ckpt := testutil.MiniCheckpoint(t, 2)
//	    ...
//	}
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-dcunet/internal/dcunet"
)

// Mini model geometry: a 16-point STFT (9 bins, hop 8) at 8 kHz.
const (
	MiniKernelSize = 16
	MiniStride     = 8
	MiniSampleRate = 8000
)

// MiniArgs describes the two-level test network with nSrc sources.
func MiniArgs(nSrc int) dcunet.Args {
	stride := MiniStride
	return dcunet.Args{
		Architecture:   "mini",
		STFTKernelSize: MiniKernelSize,
		STFTStride:     &stride,
		SampleRate:     MiniSampleRate,
		MasknetKwargs:  map[string]any{"n_src": nSrc, "fix_length_mode": "pad"},
	}
}

// MiniCheckpoint writes a freshly initialized mini checkpoint into a
// temporary directory and returns its path.
func MiniCheckpoint(tb testing.TB, nSrc int) string {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "mini.safetensors")
	if err := dcunet.InitCheckpoint(path, MiniArgs(nSrc), 1); err != nil {
		tb.Fatalf("init mini checkpoint: %v", err)
	}

	return path
}

// Tone returns n samples of a sine at freq Hz and amplitude 0.3.
func Tone(n, sampleRate int, freq float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.3 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}

	return out
}

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can be
// located. It checks DCUNET_ORT_LIB, then ORT_LIBRARY_PATH, then common
// system library paths, and returns the path found.
func RequireONNXRuntime(tb testing.TB) string {
	tb.Helper()

	for _, env := range []string{"DCUNET_ORT_LIB", "ORT_LIBRARY_PATH"} {
		if p := os.Getenv(env); p != "" {
			if _, err := os.Stat(p); err == nil {
				return p
			}

			tb.Skipf("ONNX Runtime library not found at %s=%q", env, p)
		}
	}

	for _, p := range []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	tb.Skip("ONNX Runtime shared library not found; set DCUNET_ORT_LIB or ORT_LIBRARY_PATH")

	return ""
}

// RequireFile skips the test if path does not exist.
func RequireFile(tb testing.TB, path string) {
	tb.Helper()

	if _, err := os.Stat(path); err != nil {
		tb.Skipf("fixture not available at %q: %v", path, err)
	}
}
