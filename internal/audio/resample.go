package audio

import (
	"fmt"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

const resampleQuality = resampling.QualityHigh

// resampleDelays caches the measured filter delay, in output samples, per
// rate pair.
var resampleDelays sync.Map

// Resample converts mono samples from one sample rate to another, keeping
// duration and time alignment. Equal rates return a copy.
func Resample(samples []float32, from, to int) ([]float32, error) {
	if from < 1 || to < 1 {
		return nil, fmt.Errorf("resample: invalid rates %d -> %d", from, to)
	}

	if from == to || len(samples) == 0 {
		return append([]float32(nil), samples...), nil
	}

	delay, err := resampleDelay(from, to)
	if err != nil {
		return nil, err
	}

	input := make([]float64, len(samples))
	for i, v := range samples {
		input[i] = float64(v)
	}

	full, err := resampling.ResampleMono(input, float64(from), float64(to), resampleQuality)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	want := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float32, want)
	for i := range out {
		if j := i + delay; j >= 0 && j < len(full) {
			out[i] = float32(full[j])
		}
	}

	return out, nil
}

// resampleDelay measures how far an impulse is moved by the resampler. The
// impulse sits on a sample whose position maps to a whole output index.
func resampleDelay(from, to int) (int, error) {
	key := [2]int{from, to}
	if d, ok := resampleDelays.Load(key); ok {
		return d.(int), nil
	}

	unit := from / gcd(from, to)
	pos := unit * max(1, 4096/unit)

	impulse := make([]float64, 2*pos)
	impulse[pos] = 1

	out, err := resampling.ResampleMono(impulse, float64(from), float64(to), resampleQuality)
	if err != nil {
		return 0, fmt.Errorf("resample: measure delay: %w", err)
	}

	peak := 0
	for i, v := range out {
		if v*v > out[peak]*out[peak] {
			peak = i
		}
	}

	d := peak - int(int64(pos)*int64(to)/int64(from))
	resampleDelays.Store(key, d)

	return d, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}

	return a
}
