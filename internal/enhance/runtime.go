package enhance

import (
	"fmt"
	"log/slog"

	"github.com/example/go-dcunet/internal/config"
	"github.com/example/go-dcunet/internal/dcunet"
	"github.com/example/go-dcunet/internal/onnx"
)

// ArgsFromConfig builds model args from the [model] config section. A zero
// stride keeps the kernel/2 default.
func ArgsFromConfig(mc config.ModelConfig) (dcunet.Args, error) {
	args := dcunet.Args{
		Architecture:   mc.Architecture,
		STFTKernelSize: mc.STFTKernelSize,
		SampleRate:     mc.SampleRate,
	}

	if mc.STFTStride > 0 {
		stride := mc.STFTStride
		args.STFTStride = &stride
	}

	kwargs := map[string]any{}
	if mc.NSrc > 0 {
		kwargs["n_src"] = mc.NSrc
	}

	if mc.MaskBound != "" {
		kwargs["mask_bound"] = mc.MaskBound
	}

	if mc.FixLengthMode != "" {
		kwargs["fix_length_mode"] = mc.FixLengthMode
	}

	if len(kwargs) > 0 {
		args.MasknetKwargs = kwargs
	}

	if err := args.Validate(); err != nil {
		return dcunet.Args{}, err
	}

	return args, nil
}

// loadModel builds the model for the configured backend. The returned
// function releases backend resources.
func loadModel(cfg config.Config) (*dcunet.Model, string, func(), error) {
	backend, err := config.NormalizeBackend(cfg.Runtime.Backend)
	if err != nil {
		return nil, "", nil, err
	}

	switch backend {
	case config.BackendONNX:
		args, err := ArgsFromConfig(cfg.Model)
		if err != nil {
			return nil, "", nil, fmt.Errorf("model config: %w", err)
		}

		runner, err := onnx.NewMaskRunner(cfg.Paths.ONNXModelPath, cfg.Runtime)
		if err != nil {
			return nil, "", nil, err
		}

		model, err := dcunet.New(args, runner)
		if err != nil {
			runner.Close()
			return nil, "", nil, err
		}

		slog.Info("loaded onnx mask network", "path", cfg.Paths.ONNXModelPath, "architecture", args.Architecture)

		return model, backend, runner.Close, nil
	default:
		model, err := dcunet.NewFromCheckpoint(cfg.Paths.ModelPath)
		if err != nil {
			return nil, "", nil, err
		}

		slog.Info("loaded checkpoint", "path", cfg.Paths.ModelPath, "architecture", model.ModelArgs().Architecture)

		return model, backend, func() {}, nil
	}
}
