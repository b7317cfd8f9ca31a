package audio

// Hook transforms a block of samples. Hooks may modify their input in place.
type Hook func(samples []float32) []float32

func ApplyHooks(samples []float32, hooks ...Hook) []float32 {
	out := samples
	for _, hook := range hooks {
		out = hook(out)
	}

	return out
}

// PostProcess selects the output hooks applied after enhancement.
type PostProcess struct {
	DCBlock       bool
	PeakNormalize bool
	FadeMS        float64
}

// Hooks returns the enabled hooks in application order: DC removal, peak
// normalization, then fades.
func (p PostProcess) Hooks(sampleRate int) []Hook {
	var hooks []Hook

	if p.DCBlock {
		hooks = append(hooks, func(s []float32) []float32 { return DCBlock(s, sampleRate) })
	}

	if p.PeakNormalize {
		hooks = append(hooks, PeakNormalize)
	}

	if p.FadeMS > 0 {
		hooks = append(hooks,
			func(s []float32) []float32 { return FadeIn(s, sampleRate, p.FadeMS) },
			func(s []float32) []float32 { return FadeOut(s, sampleRate, p.FadeMS) },
		)
	}

	return hooks
}
