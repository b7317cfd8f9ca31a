package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths    PathsConfig   `mapstructure:"paths"`
	Model    ModelConfig   `mapstructure:"model"`
	Runtime  RuntimeConfig `mapstructure:"runtime"`
	Server   ServerConfig  `mapstructure:"server"`
	Audio    AudioConfig   `mapstructure:"audio"`
	LogLevel string        `mapstructure:"log_level"`
}

type PathsConfig struct {
	ModelPath     string `mapstructure:"model_path"`
	ONNXModelPath string `mapstructure:"onnx_model_path"`
}

// ModelConfig describes the model when it is not read from a checkpoint:
// for "model init" and for the ONNX backend.
type ModelConfig struct {
	Architecture   string  `mapstructure:"architecture"`
	STFTKernelSize int     `mapstructure:"stft_kernel_size"`
	STFTStride     int     `mapstructure:"stft_stride"`
	SampleRate     float64 `mapstructure:"sample_rate"`
	NSrc           int     `mapstructure:"n_src"`
	MaskBound      string  `mapstructure:"mask_bound"`
	FixLengthMode  string  `mapstructure:"fix_length_mode"`
	Seed           uint64  `mapstructure:"seed"`
}

type RuntimeConfig struct {
	Backend        string `mapstructure:"backend"`
	Workers        int    `mapstructure:"workers"`
	ORTLibraryPath string `mapstructure:"ort_library_path"`
	ORTVersion     string `mapstructure:"ort_version"`
	ORTAPIVersion  int    `mapstructure:"ort_api_version"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
	MaxBodyBytes    int64  `mapstructure:"max_body_bytes"`
}

// AudioConfig selects the post-processing applied to enhanced output.
type AudioConfig struct {
	PeakNormalize bool    `mapstructure:"peak_normalize"`
	DCBlock       bool    `mapstructure:"dc_block"`
	FadeMS        float64 `mapstructure:"fade_ms"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelPath:     "models/dcunet.safetensors",
			ONNXModelPath: "models/dcunet_masker.onnx",
		},
		Model: ModelConfig{
			Architecture:   "DCUNet-10",
			STFTKernelSize: 512,
			STFTStride:     0,
			SampleRate:     16000,
			NSrc:           1,
			MaskBound:      "tanh",
			FixLengthMode:  "pad",
			Seed:           0,
		},
		Runtime: RuntimeConfig{
			Backend:        BackendNative,
			Workers:        1,
			ORTLibraryPath: "",
			ORTVersion:     "",
			ORTAPIVersion:  23,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         2,
			ShutdownTimeout: 30,
			RequestTimeout:  60,
			MaxBodyBytes:    32 << 20,
		},
		Audio: AudioConfig{
			PeakNormalize: false,
			DCBlock:       false,
			FadeMS:        0,
		},
		LogLevel: "info",
	}
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("paths-model-path", defaults.Paths.ModelPath, "Path to safetensors checkpoint")
	fs.String("paths-onnx-model-path", defaults.Paths.ONNXModelPath, "Path to ONNX mask network graph")
	fs.String("model-architecture", defaults.Model.Architecture, "Mask network architecture")
	fs.Int("model-stft-kernel-size", defaults.Model.STFTKernelSize, "STFT frame length")
	fs.Int("model-stft-stride", defaults.Model.STFTStride, "STFT hop length (0 = kernel/2)")
	fs.Float64("model-sample-rate", defaults.Model.SampleRate, "Model sample rate in Hz")
	fs.Int("model-n-src", defaults.Model.NSrc, "Number of estimated sources")
	fs.String("model-mask-bound", defaults.Model.MaskBound, "Mask bound (none|sigmoid|BDSS|tanh|BDT|UBD)")
	fs.String("model-fix-length-mode", defaults.Model.FixLengthMode, "Frame count fix-up (\"\"|pad|trim)")
	fs.Uint64("model-seed", defaults.Model.Seed, "Seed for fresh checkpoint weights")
	fs.String("backend", defaults.Runtime.Backend, "Mask network backend (native|onnx)")
	fs.Int("runtime-workers", defaults.Runtime.Workers, "Goroutines per convolution kernel")
	fs.String("runtime-ort-library-path", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library")
	fs.String("ort-lib", defaults.Runtime.ORTLibraryPath, "Path to ONNX Runtime shared library (alias for --runtime-ort-library-path)")
	fs.String("runtime-ort-version", defaults.Runtime.ORTVersion, "Expected ONNX Runtime version")
	fs.Int("runtime-ort-api-version", defaults.Runtime.ORTAPIVersion, "ONNX Runtime C API version")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("workers", defaults.Server.Workers, "Max concurrent enhancement requests")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request enhancement timeout in seconds (0 disables)")
	fs.Int64("server-max-body-bytes", defaults.Server.MaxBodyBytes, "Maximum accepted WAV upload size")
	fs.Bool("audio-peak-normalize", defaults.Audio.PeakNormalize, "Peak-normalize enhanced audio")
	fs.Bool("audio-dc-block", defaults.Audio.DCBlock, "Remove DC offset from enhanced audio")
	fs.Float64("audio-fade-ms", defaults.Audio.FadeMS, "Fade-in/fade-out length in milliseconds")
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	v.SetEnvPrefix("DCUNET")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	if err := v.BindEnv("runtime.ort_library_path", "DCUNET_ORT_LIB", "ORT_LIBRARY_PATH"); err != nil {
		return Config{}, fmt.Errorf("bind ort env vars: %w", err)
	}
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("dcunet")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

// flagKeys maps config keys to their command-line flags.
var flagKeys = []struct{ key, flag string }{
	{"paths.model_path", "paths-model-path"},
	{"paths.onnx_model_path", "paths-onnx-model-path"},
	{"model.architecture", "model-architecture"},
	{"model.stft_kernel_size", "model-stft-kernel-size"},
	{"model.stft_stride", "model-stft-stride"},
	{"model.sample_rate", "model-sample-rate"},
	{"model.n_src", "model-n-src"},
	{"model.mask_bound", "model-mask-bound"},
	{"model.fix_length_mode", "model-fix-length-mode"},
	{"model.seed", "model-seed"},
	{"runtime.backend", "backend"},
	{"runtime.workers", "runtime-workers"},
	{"runtime.ort_library_path", "runtime-ort-library-path"},
	{"runtime.ort_version", "runtime-ort-version"},
	{"runtime.ort_api_version", "runtime-ort-api-version"},
	{"server.listen_addr", "server-listen-addr"},
	{"server.workers", "workers"},
	{"server.shutdown_timeout", "server-shutdown-timeout"},
	{"server.request_timeout", "server-request-timeout"},
	{"server.max_body_bytes", "server-max-body-bytes"},
	{"audio.peak_normalize", "audio-peak-normalize"},
	{"audio.dc_block", "audio-dc-block"},
	{"audio.fade_ms", "audio-fade-ms"},
	{"log_level", "log-level"},
}

// bindFlags binds every registered flag to its nested key. Flags missing
// from fs are skipped so subcommands may register a subset.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, fk := range flagKeys {
		f := fs.Lookup(fk.flag)
		if f == nil {
			continue
		}

		if err := v.BindPFlag(fk.key, f); err != nil {
			return err
		}
	}

	if f := fs.Lookup("ort-lib"); f != nil && f.Changed {
		if err := v.BindPFlag("runtime.ort_library_path", f); err != nil {
			return err
		}
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_path", c.Paths.ModelPath)
	v.SetDefault("paths.onnx_model_path", c.Paths.ONNXModelPath)
	v.SetDefault("model.architecture", c.Model.Architecture)
	v.SetDefault("model.stft_kernel_size", c.Model.STFTKernelSize)
	v.SetDefault("model.stft_stride", c.Model.STFTStride)
	v.SetDefault("model.sample_rate", c.Model.SampleRate)
	v.SetDefault("model.n_src", c.Model.NSrc)
	v.SetDefault("model.mask_bound", c.Model.MaskBound)
	v.SetDefault("model.fix_length_mode", c.Model.FixLengthMode)
	v.SetDefault("model.seed", c.Model.Seed)
	v.SetDefault("runtime.backend", c.Runtime.Backend)
	v.SetDefault("runtime.workers", c.Runtime.Workers)
	v.SetDefault("runtime.ort_library_path", c.Runtime.ORTLibraryPath)
	v.SetDefault("runtime.ort_version", c.Runtime.ORTVersion)
	v.SetDefault("runtime.ort_api_version", c.Runtime.ORTAPIVersion)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.max_body_bytes", c.Server.MaxBodyBytes)
	v.SetDefault("audio.peak_normalize", c.Audio.PeakNormalize)
	v.SetDefault("audio.dc_block", c.Audio.DCBlock)
	v.SetDefault("audio.fade_ms", c.Audio.FadeMS)
	v.SetDefault("log_level", c.LogLevel)
}
