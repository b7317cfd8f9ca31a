package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

// newFlagBinder creates a FlagSet with all config flags registered and args parsed.
func newFlagBinder(t *testing.T, defaults Config, args ...string) *fakeBinder {
	t.Helper()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%v): %v", args, err)
	}

	return &fakeBinder{fs: fs}
}

// chdirTemp runs the test from an empty directory so a stray dcunet.yaml
// cannot leak into Load.
func chdirTemp(t *testing.T) {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}

	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { _ = os.Chdir(wd) })
}

// --- DefaultConfig ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Paths.ModelPath != "models/dcunet.safetensors" {
		t.Errorf("ModelPath = %q; want %q", cfg.Paths.ModelPath, "models/dcunet.safetensors")
	}

	if cfg.Model.Architecture != "DCUNet-10" {
		t.Errorf("Model.Architecture = %q; want DCUNet-10", cfg.Model.Architecture)
	}

	if cfg.Model.STFTKernelSize != 512 || cfg.Model.SampleRate != 16000 {
		t.Errorf("Model STFT = %d @ %v; want 512 @ 16000", cfg.Model.STFTKernelSize, cfg.Model.SampleRate)
	}

	if cfg.Model.MaskBound != "tanh" {
		t.Errorf("Model.MaskBound = %q; want tanh", cfg.Model.MaskBound)
	}

	if cfg.Runtime.Backend != BackendNative {
		t.Errorf("Runtime.Backend = %q; want %q", cfg.Runtime.Backend, BackendNative)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":8080")
	}

	if cfg.Server.Workers != 2 {
		t.Errorf("Server.Workers = %d; want 2", cfg.Server.Workers)
	}

	if cfg.Server.ShutdownTimeout != 30 || cfg.Server.RequestTimeout != 60 {
		t.Errorf("Server timeouts = %d/%d; want 30/60", cfg.Server.ShutdownTimeout, cfg.Server.RequestTimeout)
	}

	if cfg.Server.MaxBodyBytes != 32<<20 {
		t.Errorf("Server.MaxBodyBytes = %d; want %d", cfg.Server.MaxBodyBytes, 32<<20)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "info")
	}
}

// --- NormalizeBackend ---

func TestNormalizeBackend(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"native canonical", "native", "native", false},
		{"onnx canonical", "onnx", "onnx", false},
		{"native uppercase", "NATIVE", "native", false},
		{"onnx with spaces", "  onnx  ", "onnx", false},
		{"safetensors alias", "native-safetensors", "native", false},
		{"ort alias", "ort", "onnx", false},
		{"empty defaults to native", "", "native", false},
		{"whitespace defaults to native", "   ", "native", false},
		{"invalid value", "cli", "", true},
		{"invalid with spaces", "  bad  ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeBackend(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("NormalizeBackend(%q) = %q, nil; want error", tt.input, got)
				}

				return
			}

			if err != nil {
				t.Errorf("NormalizeBackend(%q) unexpected error: %v", tt.input, err)
				return
			}

			if got != tt.want {
				t.Errorf("NormalizeBackend(%q) = %q; want %q", tt.input, got, tt.want)
			}
		})
	}
}

// --- RegisterFlags ---

func TestRegisterFlags(t *testing.T) {
	defaults := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	checks := []struct {
		flag string
		want string
	}{
		{"paths-model-path", "models/dcunet.safetensors"},
		{"model-architecture", "DCUNet-10"},
		{"model-stft-kernel-size", "512"},
		{"server-listen-addr", ":8080"},
		{"backend", "native"},
		{"log-level", "info"},
	}

	for _, c := range checks {
		f := fs.Lookup(c.flag)
		if f == nil {
			t.Errorf("flag %q not registered", c.flag)
			continue
		}

		if f.DefValue != c.want {
			t.Errorf("flag %q default = %q; want %q", c.flag, f.DefValue, c.want)
		}
	}
}

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:      newFlagBinder(t, defaults),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg != defaults {
		t.Errorf("Load() = %+v; want defaults %+v", cfg, defaults)
	}
}

func TestLoad_FlagOverride(t *testing.T) {
	chdirTemp(t)

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd: newFlagBinder(t, defaults,
			"--backend=onnx",
			"--workers=8",
			"--log-level=debug",
			"--model-architecture=DCUNet-20",
			"--model-stft-stride=128",
		),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Runtime.Backend != "onnx" {
		t.Errorf("Runtime.Backend = %q; want %q", cfg.Runtime.Backend, "onnx")
	}

	if cfg.Server.Workers != 8 {
		t.Errorf("Server.Workers = %d; want 8", cfg.Server.Workers)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "debug")
	}

	if cfg.Model.Architecture != "DCUNet-20" || cfg.Model.STFTStride != 128 {
		t.Errorf("Model = %+v; want DCUNet-20 with stride 128", cfg.Model)
	}
}

func TestLoad_ORTLibAlias(t *testing.T) {
	chdirTemp(t)

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:      newFlagBinder(t, defaults, "--ort-lib=/opt/ort/libonnxruntime.so"),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Runtime.ORTLibraryPath != "/opt/ort/libonnxruntime.so" {
		t.Errorf("ORTLibraryPath = %q; want alias value", cfg.Runtime.ORTLibraryPath)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DCUNET_LOG_LEVEL", "warn")
	t.Setenv("DCUNET_SERVER_LISTEN_ADDR", ":9999")
	t.Setenv("DCUNET_ORT_LIB", "/env/libonnxruntime.so")

	cfg, err := Load(LoadOptions{
		Defaults: DefaultConfig(),
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want %q", cfg.LogLevel, "warn")
	}

	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("Server.ListenAddr = %q; want %q", cfg.Server.ListenAddr, ":9999")
	}

	if cfg.Runtime.ORTLibraryPath != "/env/libonnxruntime.so" {
		t.Errorf("ORTLibraryPath = %q; want env value", cfg.Runtime.ORTLibraryPath)
	}
}

func TestLoad_Precedence(t *testing.T) {
	chdirTemp(t)

	cfgFile := filepath.Join(t.TempDir(), "dcunet.yaml")
	content := `
log_level: error
server:
  workers: 16
  listen_addr: ":7777"
model:
  architecture: DCUNet-16
runtime:
  backend: onnx
`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("DCUNET_SERVER_WORKERS", "4")

	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:        newFlagBinder(t, defaults, "--server-listen-addr=:6666"),
		ConfigFile: cfgFile,
		Defaults:   defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"file over default", cfg.LogLevel, "error"},
		{"file nested", cfg.Model.Architecture, "DCUNet-16"},
		{"env over file", cfg.Server.Workers, 4},
		{"flag over file", cfg.Server.ListenAddr, ":6666"},
		{"file backend", cfg.Runtime.Backend, "onnx"},
		{"default kept", cfg.Model.STFTKernelSize, 512},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v; want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	cfgFile := filepath.Join(t.TempDir(), "bad.yaml")

	err := os.WriteFile(cfgFile, []byte(":\t:bad yaml:::"), 0o644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err = Load(LoadOptions{
		ConfigFile: cfgFile,
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for invalid config file")
	}
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load(LoadOptions{
		ConfigFile: "/nonexistent/path/dcunet.yaml",
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for missing explicit config file")
	}
}

func TestLoad_ImplicitConfigFileInWorkingDir(t *testing.T) {
	chdirTemp(t)

	if err := os.WriteFile("dcunet.yaml", []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want debug", cfg.LogLevel)
	}
}
