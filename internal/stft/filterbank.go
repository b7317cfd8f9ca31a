// Package stft implements the short-time Fourier transform encoder and its
// overlap-add inverse. Spectra use the stacked real layout
// [..., 2*freq, frames]: real parts for every bin, then imaginary parts.
package stft

import (
	"errors"
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/window"
)

// ErrTooShort is returned when a waveform is shorter than one frame.
var ErrTooShort = errors.New("stft: input shorter than kernel")

// Filterbank holds the framing parameters shared by Encoder and Decoder.
type Filterbank struct {
	kernelSize int
	stride     int
	sampleRate float64
	window     []float64
}

// NewFilterbank builds a square-root periodic Hann filterbank. stride <= 0
// selects kernelSize/2.
func NewFilterbank(kernelSize, stride int, sampleRate float64) (*Filterbank, error) {
	if kernelSize < 2 || kernelSize%2 != 0 {
		return nil, fmt.Errorf("stft: kernel size must be even and >= 2, got %d", kernelSize)
	}

	if stride <= 0 {
		stride = kernelSize / 2
	}

	if stride > kernelSize {
		return nil, fmt.Errorf("stft: stride %d exceeds kernel size %d", stride, kernelSize)
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("stft: sample rate must be > 0, got %g", sampleRate)
	}

	// window.Hann is symmetric over its length; dropping the last point of an
	// (n+1)-point window gives the periodic form.
	hann := window.Hann(kernelSize + 1)[:kernelSize]
	w := make([]float64, kernelSize)

	for i, v := range hann {
		w[i] = math.Sqrt(max(v, 0))
	}

	return &Filterbank{
		kernelSize: kernelSize,
		stride:     stride,
		sampleRate: sampleRate,
		window:     w,
	}, nil
}

func (fb *Filterbank) KernelSize() int { return fb.kernelSize }

func (fb *Filterbank) Stride() int { return fb.stride }

func (fb *Filterbank) SampleRate() float64 { return fb.sampleRate }

// FreqBins is the number of non-negative frequency bins, kernelSize/2 + 1.
func (fb *Filterbank) FreqBins() int { return fb.kernelSize/2 + 1 }

// Frames returns how many frames a signal of length time produces.
func (fb *Filterbank) Frames(time int) (int, error) {
	if time < fb.kernelSize {
		return 0, fmt.Errorf("%w: %d < %d", ErrTooShort, time, fb.kernelSize)
	}

	return (time-fb.kernelSize)/fb.stride + 1, nil
}

// OutputLength is the signal length the decoder produces for frames frames.
func (fb *Filterbank) OutputLength(frames int) int {
	if frames <= 0 {
		return 0
	}

	return (frames-1)*fb.stride + fb.kernelSize
}

// Window returns a copy of the analysis/synthesis window.
func (fb *Filterbank) Window() []float64 {
	return append([]float64(nil), fb.window...)
}
