package main

import (
	"errors"
	"fmt"

	"github.com/example/go-dcunet/internal/config"
	"github.com/example/go-dcunet/internal/dcunet"
	"github.com/example/go-dcunet/internal/doctor"
	"github.com/example/go-dcunet/internal/onnx"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	var inputs []string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and model checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			backend, err := config.NormalizeBackend(cfg.Runtime.Backend)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "backend: %s\n", backend)

			result := doctor.Run(doctorConfig(cfg, backend, inputs), out)
			if result.Failed() {
				return errors.New("doctor checks failed")
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&inputs, "input", nil, "WAV files that must exist")

	return cmd
}

func doctorConfig(cfg config.Config, backend string, inputs []string) doctor.Config {
	dcfg := doctor.Config{InputFiles: inputs}

	if backend == config.BackendONNX {
		dcfg.ORTVersion = func() (string, error) {
			info, err := onnx.DetectRuntime(cfg.Runtime)
			return info.Version, err
		}
		dcfg.ONNXModelPath = cfg.Paths.ONNXModelPath
		return dcfg
	}

	dcfg.SkipORT = true
	dcfg.CheckpointPath = cfg.Paths.ModelPath
	dcfg.ValidateCheckpoint = func(path string) (string, error) {
		m, err := dcunet.NewFromCheckpoint(path)
		if err != nil {
			return "", err
		}
		args := m.ModelArgs()
		return fmt.Sprintf("%s, stft %d/%d @ %g Hz", args.Architecture, args.STFTKernelSize, args.Stride(), args.SampleRate), nil
	}
	return dcfg
}
