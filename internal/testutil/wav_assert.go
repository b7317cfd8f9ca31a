package testutil

import (
	"testing"

	"github.com/example/go-dcunet/internal/audio"
)

// EncodeWAV encodes samples or fails the test.
func EncodeWAV(tb testing.TB, samples []float32, sampleRate int) []byte {
	tb.Helper()

	data, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		tb.Fatalf("encode WAV: %v", err)
	}

	return data
}

// AssertWAV checks that data decodes as mono PCM at sampleRate with exactly
// samples frames, and returns the decoded samples.
func AssertWAV(tb testing.TB, data []byte, sampleRate, samples int) []float32 {
	tb.Helper()

	got, rate, err := audio.DecodeWAV(data)
	if err != nil {
		tb.Fatalf("decode WAV: %v", err)
	}

	if rate != sampleRate {
		tb.Fatalf("WAV: sample rate %d, want %d", rate, sampleRate)
	}

	if len(got) != samples {
		tb.Fatalf("WAV: %d samples, want %d", len(got), samples)
	}

	return got
}
