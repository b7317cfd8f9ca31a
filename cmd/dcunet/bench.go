package main

import (
	"context"
	"fmt"

	"github.com/example/go-dcunet/internal/audio"
	"github.com/example/go-dcunet/internal/bench"
	"github.com/example/go-dcunet/internal/enhance"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		in           string
		runs         int
		format       string
		rtfThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark enhancement latency and realtime factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			data, err := readInput(in, cmd.InOrStdin())
			if err != nil {
				return err
			}

			samples, rate, err := audio.DecodeWAV(data)
			if err != nil {
				return err
			}

			svc, err := enhance.NewService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			results, err := bench.Measure(cmd.Context(), runs, bench.AudioDuration(len(samples), rate),
				func(ctx context.Context) error {
					_, err := svc.EnhanceSamples(ctx, samples, rate, 0)
					return err
				})
			if err != nil {
				return err
			}

			stats := bench.ComputeStats(results)

			switch format {
			case "json":
				if err := bench.FormatJSON(results, stats, cmd.OutOrStdout()); err != nil {
					return err
				}
			default:
				bench.FormatTable(results, stats, cmd.OutOrStdout())
			}

			return bench.CheckRTFThreshold(bench.MeanRTF(results), rtfThreshold)
		},
	}

	cmd.Flags().StringVar(&in, "input", "", "WAV file to enhance on each run ('-' for stdin)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of enhancement runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}
