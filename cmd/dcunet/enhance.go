package main

import (
	"fmt"
	"io"
	"os"

	"github.com/example/go-dcunet/internal/enhance"
	"github.com/spf13/cobra"
)

func newEnhanceCmd() *cobra.Command {
	var (
		in     string
		out    string
		source int
	)

	cmd := &cobra.Command{
		Use:   "enhance",
		Short: "Enhance a noisy WAV file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			data, err := readInput(in, cmd.InOrStdin())
			if err != nil {
				return err
			}

			svc, err := enhance.NewService(cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			wav, err := svc.EnhanceWAV(cmd.Context(), data, source)
			if err != nil {
				return err
			}

			return writeOutput(out, wav, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&in, "input", "", "Input WAV path ('-' for stdin)")
	cmd.Flags().StringVar(&out, "output", "enhanced.wav", "Output WAV path ('-' for stdout)")
	cmd.Flags().IntVar(&source, "source", 0, "Index of the estimated source to write")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}

func writeOutput(path string, data []byte, stdout io.Writer) error {
	if path == "-" {
		_, err := stdout.Write(data)
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
