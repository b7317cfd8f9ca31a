package audio

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
)

// DC blocking high-pass corner and quality factor.
const (
	dcCutoffHz   = 20.0
	butterworthQ = 1 / math.Sqrt2
)

// PeakNormalize scales samples in place so the peak amplitude reaches 1.0.
// Silence is returned unchanged.
func PeakNormalize(samples []float32) []float32 {
	var peak float32
	for _, v := range samples {
		peak = max(peak, float32(math.Abs(float64(v))))
	}

	if peak == 0 {
		return samples
	}

	gain := 1 / peak
	for i := range samples {
		samples[i] *= gain
	}

	return samples
}

// DCBlock removes DC offset with a second-order Butterworth high-pass at
// dcCutoffHz. Rates too low to place the cutoff below Nyquist are left
// untouched.
func DCBlock(samples []float32, sampleRate int) []float32 {
	if len(samples) == 0 || float64(sampleRate) <= 2*dcCutoffHz {
		return samples
	}

	hp := biquad.NewSection(design.Highpass(dcCutoffHz, butterworthQ, float64(sampleRate)))
	for i, v := range samples {
		samples[i] = float32(hp.ProcessSample(float64(v)))
	}

	return samples
}

// FadeIn applies a linear fade-in ramp over ms milliseconds.
func FadeIn(samples []float32, sampleRate int, ms float64) []float32 {
	n := fadeLength(len(samples), sampleRate, ms)
	for i := range n {
		samples[i] *= float32(i) / float32(n)
	}

	return samples
}

// FadeOut applies a linear fade-out ramp over ms milliseconds ending at zero.
func FadeOut(samples []float32, sampleRate int, ms float64) []float32 {
	n := fadeLength(len(samples), sampleRate, ms)
	last := len(samples) - 1
	for i := range n {
		samples[last-i] *= float32(i) / float32(n)
	}

	return samples
}

func fadeLength(total, sampleRate int, ms float64) int {
	if ms <= 0 || sampleRate < 1 {
		return 0
	}

	return min(int(ms/1000*float64(sampleRate)), total)
}
