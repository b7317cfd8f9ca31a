package bench_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/go-dcunet/internal/bench"
)

func runsOf(elapsed ...time.Duration) []bench.RunResult {
	runs := make([]bench.RunResult, len(elapsed))
	for i, d := range elapsed {
		runs[i] = bench.RunResult{Index: i, Cold: i == 0, Elapsed: d, Audio: time.Second, RTF: bench.CalcRTF(d, time.Second)}
	}
	return runs
}

// ---------------------------------------------------------------------------
// Aggregation
// ---------------------------------------------------------------------------

func TestComputeStats(t *testing.T) {
	tests := []struct {
		name string
		runs []bench.RunResult
		want bench.Stats
	}{
		{
			"odd count",
			runsOf(300*time.Millisecond, 100*time.Millisecond, 200*time.Millisecond),
			bench.Stats{Min: 100 * time.Millisecond, Median: 200 * time.Millisecond, Mean: 200 * time.Millisecond, Max: 300 * time.Millisecond},
		},
		{
			"even count",
			runsOf(100*time.Millisecond, 400*time.Millisecond, 200*time.Millisecond, 300*time.Millisecond),
			bench.Stats{Min: 100 * time.Millisecond, Median: 250 * time.Millisecond, Mean: 250 * time.Millisecond, Max: 400 * time.Millisecond},
		},
		{
			"single",
			runsOf(42 * time.Millisecond),
			bench.Stats{Min: 42 * time.Millisecond, Median: 42 * time.Millisecond, Mean: 42 * time.Millisecond, Max: 42 * time.Millisecond},
		},
		{"empty", nil, bench.Stats{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bench.ComputeStats(tt.runs); got != tt.want {
				t.Errorf("ComputeStats = %+v; want %+v", got, tt.want)
			}
		})
	}
}

func TestMeanRTF(t *testing.T) {
	runs := runsOf(500*time.Millisecond, 1500*time.Millisecond)
	if got := bench.MeanRTF(runs); got != 1.0 {
		t.Errorf("MeanRTF = %v; want 1.0", got)
	}

	if got := bench.MeanRTF(nil); got != 0 {
		t.Errorf("MeanRTF(nil) = %v; want 0", got)
	}
}

// ---------------------------------------------------------------------------
// RTF and durations
// ---------------------------------------------------------------------------

func TestCalcRTF(t *testing.T) {
	if got := bench.CalcRTF(500*time.Millisecond, 2*time.Second); got != 0.25 {
		t.Errorf("CalcRTF = %v; want 0.25", got)
	}

	if got := bench.CalcRTF(time.Second, 0); got != 0 {
		t.Errorf("CalcRTF with zero audio = %v; want 0", got)
	}
}

func TestAudioDuration(t *testing.T) {
	tests := []struct {
		n, rate int
		want    time.Duration
	}{
		{16000, 16000, time.Second},
		{8000, 16000, 500 * time.Millisecond},
		{0, 16000, 0},
		{100, 0, 0},
	}

	for _, tt := range tests {
		if got := bench.AudioDuration(tt.n, tt.rate); got != tt.want {
			t.Errorf("AudioDuration(%d, %d) = %v; want %v", tt.n, tt.rate, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Measure
// ---------------------------------------------------------------------------

func TestMeasure(t *testing.T) {
	calls := 0
	runs, err := bench.Measure(context.Background(), 3, time.Second, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}

	if calls != 3 || len(runs) != 3 {
		t.Fatalf("calls = %d, runs = %d; want 3", calls, len(runs))
	}

	if !runs[0].Cold || runs[1].Cold {
		t.Errorf("only the first run should be cold: %+v", runs)
	}

	if runs[2].Index != 2 || runs[2].Audio != time.Second {
		t.Errorf("run 3 = %+v", runs[2])
	}
}

func TestMeasure_Errors(t *testing.T) {
	if _, err := bench.Measure(context.Background(), 0, time.Second, nil); err == nil {
		t.Error("want error for zero runs")
	}

	boom := errors.New("boom")
	calls := 0
	runs, err := bench.Measure(context.Background(), 5, time.Second, func(context.Context) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v; want boom", err)
	}
	if len(runs) != 1 {
		t.Errorf("completed runs = %d; want 1", len(runs))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := bench.Measure(ctx, 2, time.Second, func(context.Context) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v; want context.Canceled", err)
	}
}

// ---------------------------------------------------------------------------
// RTF threshold gate
// ---------------------------------------------------------------------------

func TestCheckRTFThreshold(t *testing.T) {
	tests := []struct {
		name      string
		mean, max float64
		wantErr   bool
	}{
		{"exceeds", 1.2, 1.0, true},
		{"below", 0.8, 1.0, false},
		{"exactly at", 1.0, 1.0, false},
		{"disabled", 99, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bench.CheckRTFThreshold(tt.mean, tt.max)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckRTFThreshold(%v, %v) = %v; wantErr %v", tt.mean, tt.max, err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Output formatting
// ---------------------------------------------------------------------------

func TestFormatTable_ContainsHeaders(t *testing.T) {
	runs := runsOf(800*time.Millisecond, 500*time.Millisecond)

	var buf strings.Builder
	bench.FormatTable(runs, bench.ComputeStats(runs), &buf)
	out := strings.ToLower(buf.String())

	for _, want := range []string{"run", "cold", "ms", "rtf", "median", "mean rtf"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatJSON_IsValidJSON(t *testing.T) {
	runs := runsOf(800 * time.Millisecond)

	var buf bytes.Buffer
	if err := bench.FormatJSON(runs, bench.ComputeStats(runs), &buf); err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}

	var out struct {
		Runs    []map[string]any `json:"runs"`
		MeanRTF float64          `json:"mean_rtf"`
	}

	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("FormatJSON produced invalid JSON: %v\n%s", err, buf.String())
	}

	if len(out.Runs) != 1 || out.MeanRTF != 0.8 {
		t.Errorf("report = %+v", out)
	}
}
