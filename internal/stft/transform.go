package stft

import (
	"errors"
	"fmt"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"

	"github.com/example/go-dcunet/internal/runtime/tensor"
)

// wsumFloor keeps the overlap-add normalization away from division by zero
// at the signal edges.
const wsumFloor = 1e-8

// Encoder maps waveforms [..., time] to spectra [..., 2*freq, frames].
type Encoder struct {
	fb *Filterbank
}

func NewEncoder(fb *Filterbank) *Encoder { return &Encoder{fb: fb} }

func (e *Encoder) Filterbank() *Filterbank { return e.fb }

// Forward runs the analysis transform. All leading dimensions are treated as
// batch dimensions.
func (e *Encoder) Forward(wav *tensor.Tensor) (*tensor.Tensor, error) {
	if wav == nil {
		return nil, errors.New("stft: encoder input is nil")
	}

	shape := wav.Shape()
	if len(shape) == 0 {
		return nil, errors.New("stft: encoder input must have rank >= 1")
	}

	time := int(shape[len(shape)-1])

	frames, err := e.fb.Frames(time)
	if err != nil {
		return nil, err
	}

	k := e.fb.kernelSize
	freq := e.fb.FreqBins()
	batch := len(wav.RawData()) / time
	src := wav.RawData()

	outShape := append(append([]int64(nil), shape[:len(shape)-1]...), int64(2*freq), int64(frames))
	out := make([]float32, batch*2*freq*frames)
	buf := make([]float64, k)

	for b := range batch {
		sig := src[b*time : (b+1)*time]
		dst := out[b*2*freq*frames : (b+1)*2*freq*frames]

		for f := range frames {
			start := f * e.fb.stride
			for i := range k {
				buf[i] = float64(sig[start+i]) * e.fb.window[i]
			}

			spec := fft.FFTReal(buf)
			for bin := range freq {
				dst[bin*frames+f] = float32(real(spec[bin]))
				dst[(freq+bin)*frames+f] = float32(imag(spec[bin]))
			}
		}
	}

	return tensor.New(out, outShape)
}

// Decoder maps spectra [..., 2*freq, frames] back to waveforms [..., time].
type Decoder struct {
	fb *Filterbank
}

func NewDecoder(fb *Filterbank) *Decoder { return &Decoder{fb: fb} }

func (d *Decoder) Filterbank() *Filterbank { return d.fb }

// Forward runs the inverse transform with windowed overlap-add, normalized by
// the summed squared window.
func (d *Decoder) Forward(spec *tensor.Tensor) (*tensor.Tensor, error) {
	if spec == nil {
		return nil, errors.New("stft: decoder input is nil")
	}

	shape := spec.Shape()
	if len(shape) < 2 {
		return nil, fmt.Errorf("stft: decoder expects [..., 2*freq, frames], got %v", shape)
	}

	k := d.fb.kernelSize
	freq := d.fb.FreqBins()

	if shape[len(shape)-2] != int64(2*freq) {
		return nil, fmt.Errorf("stft: decoder expects %d stacked bins, got shape %v", 2*freq, shape)
	}

	frames := int(shape[len(shape)-1])
	if frames == 0 {
		return nil, errors.New("stft: decoder input has no frames")
	}

	time := d.fb.OutputLength(frames)
	batch := len(spec.RawData()) / (2 * freq * frames)
	src := spec.RawData()

	wsum := make([]float64, time)
	for f := range frames {
		start := f * d.fb.stride
		for i, w := range d.fb.window {
			wsum[start+i] += w * w
		}
	}

	outShape := append(append([]int64(nil), shape[:len(shape)-2]...), int64(time))
	out := make([]float32, batch*time)
	full := make([]complex128, k)
	acc := make([]float64, time)

	for b := range batch {
		in := src[b*2*freq*frames : (b+1)*2*freq*frames]
		clear(acc)

		for f := range frames {
			for bin := range freq {
				full[bin] = complex(float64(in[bin*frames+f]), float64(in[(freq+bin)*frames+f]))
			}

			// Hermitian symmetry for a real frame.
			for bin := 1; bin < k-freq+1; bin++ {
				full[k-bin] = cmplx.Conj(full[bin])
			}

			frame := fft.IFFT(full)
			start := f * d.fb.stride

			for i := range k {
				acc[start+i] += real(frame[i]) * d.fb.window[i]
			}
		}

		dst := out[b*time : (b+1)*time]
		for i, v := range acc {
			if wsum[i] > wsumFloor {
				v /= wsum[i]
			}

			dst[i] = float32(v)
		}
	}

	return tensor.New(out, outShape)
}
