// Package bench measures enhancement latency and realtime factor for the
// dcunet bench command.
package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"
)

// RunResult holds the timing of a single enhancement pass.
type RunResult struct {
	Index   int
	Cold    bool // first pass, includes one-off allocations
	Elapsed time.Duration
	Audio   time.Duration
	RTF     float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min    time.Duration
	Median time.Duration
	Mean   time.Duration
	Max    time.Duration
}

// ComputeStats aggregates the elapsed times of runs. An empty slice gives
// zero stats.
func ComputeStats(runs []RunResult) Stats {
	if len(runs) == 0 {
		return Stats{}
	}

	sorted := make([]time.Duration, len(runs))
	var sum time.Duration
	for i, r := range runs {
		sorted[i] = r.Elapsed
		sum += r.Elapsed
	}
	slices.Sort(sorted)

	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return Stats{
		Min:    sorted[0],
		Median: median,
		Mean:   sum / time.Duration(n),
		Max:    sorted[n-1],
	}
}

// MeanRTF averages the realtime factor over runs.
func MeanRTF(runs []RunResult) float64 {
	if len(runs) == 0 {
		return 0
	}

	var total float64
	for _, r := range runs {
		total += r.RTF
	}
	return total / float64(len(runs))
}

// CalcRTF returns processing time over audio time; 0 when audio is empty.
func CalcRTF(elapsed, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}
	return float64(elapsed) / float64(audioDur)
}

// AudioDuration is the playback length of n samples at sampleRate.
func AudioDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 || n <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(sampleRate))
}

// Measure calls fn runs times and times each call against audioDur.
func Measure(ctx context.Context, runs int, audioDur time.Duration, fn func(context.Context) error) ([]RunResult, error) {
	if runs < 1 {
		return nil, errors.New("runs must be at least 1")
	}

	results := make([]RunResult, 0, runs)
	for i := range runs {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		start := time.Now()
		if err := fn(ctx); err != nil {
			return results, fmt.Errorf("run %d failed: %w", i+1, err)
		}
		elapsed := time.Since(start)

		results = append(results, RunResult{
			Index:   i,
			Cold:    i == 0,
			Elapsed: elapsed,
			Audio:   audioDur,
			RTF:     CalcRTF(elapsed, audioDur),
		})
	}
	return results, nil
}

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}
	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %12s  %8s\n", "Run", "Cold", "MS", "Audio(ms)", "RTF")
	fmt.Fprintln(sb, strings.Repeat("-", 48))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %12.1f  %8.3f\n",
			r.Index+1,
			cold,
			ms(r.Elapsed),
			ms(r.Audio),
			r.RTF,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 48))
	for _, row := range []struct {
		label string
		d     time.Duration
	}{
		{"min", stats.Min},
		{"median", stats.Median},
		{"mean", stats.Mean},
		{"max", stats.Max},
	} {
		fmt.Fprintf(sb, "%-12s  %10.1f\n", row.label, ms(row.d))
	}
	fmt.Fprintf(sb, "%-12s  %10.3f\n", "mean rtf", MeanRTF(runs))

	fmt.Fprint(w, sb.String())
}

type jsonReport struct {
	Runs    []jsonRun `json:"runs"`
	Stats   jsonStats `json:"stats"`
	MeanRTF float64   `json:"mean_rtf"`
}

type jsonRun struct {
	Index     int     `json:"index"`
	Cold      bool    `json:"cold"`
	ElapsedMS float64 `json:"elapsed_ms"`
	AudioMS   float64 `json:"audio_ms"`
	RTF       float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS    float64 `json:"min_ms"`
	MedianMS float64 `json:"median_ms"`
	MeanMS   float64 `json:"mean_ms"`
	MaxMS    float64 `json:"max_ms"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) error {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:    ms(stats.Min),
			MedianMS: ms(stats.Median),
			MeanMS:   ms(stats.Mean),
			MaxMS:    ms(stats.Max),
		},
		MeanRTF: MeanRTF(runs),
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:     r.Index,
			Cold:      r.Cold,
			ElapsedMS: ms(r.Elapsed),
			AudioMS:   ms(r.Audio),
			RTF:       r.RTF,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jr)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
