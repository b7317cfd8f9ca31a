package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/example/go-dcunet/internal/config"
)

// RuntimeInfo describes the ONNX Runtime shared library in use.
type RuntimeInfo struct {
	LibraryPath string
	Version     string
	Initialized bool
}

var versionPattern = regexp.MustCompile(`([0-9]+\.[0-9]+\.[0-9]+)`)

// libraryCandidates are tried when neither config nor environment name a
// library.
var libraryCandidates = []string{
	"/usr/lib/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"/opt/homebrew/lib/libonnxruntime.dylib",
	"C:/onnxruntime/lib/onnxruntime.dll",
}

var (
	bootstrapMu   sync.Mutex
	bootstrapInfo RuntimeInfo
)

// Bootstrap resolves the runtime library once per process. Later calls
// return the first result regardless of cfg.
func Bootstrap(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	bootstrapMu.Lock()
	defer bootstrapMu.Unlock()

	if bootstrapInfo.Initialized {
		return bootstrapInfo, nil
	}

	info, err := DetectRuntime(cfg)
	if err != nil {
		return RuntimeInfo{}, err
	}

	info.Initialized = true
	bootstrapInfo = info

	slog.Debug("onnx runtime detected", "path", info.LibraryPath, "version", info.Version)

	return info, nil
}

// Shutdown forgets the bootstrapped runtime so a later Bootstrap detects
// it again.
func Shutdown() error {
	bootstrapMu.Lock()
	defer bootstrapMu.Unlock()

	bootstrapInfo = RuntimeInfo{}

	return nil
}

// DetectRuntime resolves the library path from cfg, DCUNET_ORT_LIB,
// ORT_LIBRARY_PATH and finally well-known install locations.
func DetectRuntime(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	path := cfg.ORTLibraryPath
	if path == "" {
		path = os.Getenv("DCUNET_ORT_LIB")
	}

	if path == "" {
		path = os.Getenv("ORT_LIBRARY_PATH")
	}

	if path == "" {
		for _, c := range libraryCandidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	if path == "" {
		return RuntimeInfo{LibraryPath: "not found", Version: "unknown"}, errors.New("unable to detect ONNX Runtime library path")
	}

	if _, err := os.Stat(path); err != nil {
		return RuntimeInfo{LibraryPath: path, Version: "unknown"}, fmt.Errorf("onnx runtime library path check failed: %w", err)
	}

	version := cfg.ORTVersion
	if version == "" {
		version = os.Getenv("ORT_VERSION")
	}

	if version == "" {
		version = inferVersionFromPath(path)
	}

	if version == "" {
		version = "unknown"
	}

	return RuntimeInfo{LibraryPath: path, Version: version}, nil
}

func inferVersionFromPath(path string) string {
	name := filepath.Base(path)
	if m := versionPattern.FindStringSubmatch(name); len(m) == 2 {
		return m[1]
	}

	return ""
}
