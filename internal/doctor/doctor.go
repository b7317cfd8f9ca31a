// Package doctor provides environment preflight checks for dcunet.
package doctor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Oldest ONNX Runtime release whose C API the onnx backend is built against.
const (
	minORTMajor = 1
	minORTMinor = 17
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// CheckpointFunc loads a checkpoint and returns a one-line summary of it.
type CheckpointFunc func(path string) (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// ORTVersion returns the detected ONNX Runtime version.
	ORTVersion VersionFunc
	// SkipORT skips the runtime check (native backend).
	SkipORT bool
	// CheckpointPath is the safetensors checkpoint for the native backend.
	CheckpointPath string
	// ValidateCheckpoint, when set, loads CheckpointPath after the stat check.
	ValidateCheckpoint CheckpointFunc
	// ONNXModelPath is the mask network graph for the onnx backend.
	ONNXModelPath string
	// InputFiles are WAV files that must exist on disk.
	InputFiles []string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- ONNX Runtime -----------------------------------------------------
	switch {
	case cfg.SkipORT:
		fmt.Fprintf(w, "%s onnx runtime: skipped\n", PassMark)
	case cfg.ORTVersion == nil:
		res.fail("onnx runtime: no version check configured")
		fmt.Fprintf(w, "%s onnx runtime: no version check configured\n", FailMark)
	default:
		ver, err := cfg.ORTVersion()
		if err != nil {
			res.fail(fmt.Sprintf("onnx runtime: %v", err))
			fmt.Fprintf(w, "%s onnx runtime: not found (%v)\n", FailMark, err)
		} else if ver == "" || ver == "unknown" {
			fmt.Fprintf(w, "%s onnx runtime: found (version unknown)\n", PassMark)
		} else if verErr := checkORTVersion(ver); verErr != nil {
			res.fail(fmt.Sprintf("onnx runtime: %v", verErr))
			fmt.Fprintf(w, "%s onnx runtime %s: %v\n", FailMark, ver, verErr)
		} else {
			fmt.Fprintf(w, "%s onnx runtime: %s\n", PassMark, ver)
		}
	}

	// ---- checkpoint -------------------------------------------------------
	if cfg.CheckpointPath != "" {
		checkFile(&res, w, "checkpoint", cfg.CheckpointPath)

		if cfg.ValidateCheckpoint != nil && !res.hasPrefix("checkpoint") {
			summary, err := cfg.ValidateCheckpoint(cfg.CheckpointPath)
			if err != nil {
				res.fail(fmt.Sprintf("checkpoint load: %v", err))
				fmt.Fprintf(w, "%s checkpoint load: %v\n", FailMark, err)
			} else {
				fmt.Fprintf(w, "%s checkpoint load: %s\n", PassMark, summary)
			}
		}
	}

	// ---- ONNX graph -------------------------------------------------------
	if cfg.ONNXModelPath != "" {
		checkFile(&res, w, "onnx graph", cfg.ONNXModelPath)
	}

	// ---- input files ------------------------------------------------------
	for _, path := range cfg.InputFiles {
		checkFile(&res, w, "input file", path)
	}

	return res
}

func checkFile(res *Result, w io.Writer, label, path string) {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		res.fail(fmt.Sprintf("%s %q: %v", label, path, err))
		fmt.Fprintf(w, "%s %s %s: not found\n", FailMark, label, path)
	case info.IsDir():
		res.fail(fmt.Sprintf("%s %q: is a directory", label, path))
		fmt.Fprintf(w, "%s %s %s: is a directory\n", FailMark, label, path)
	default:
		fmt.Fprintf(w, "%s %s: %s\n", PassMark, label, path)
	}
}

func (r *Result) hasPrefix(prefix string) bool {
	for _, f := range r.failures {
		if strings.HasPrefix(f, prefix) {
			return true
		}
	}
	return false
}

// checkORTVersion returns an error if ver is older than 1.17 or not a 1.x
// release. ver is expected to be a string like "1.23.0".
func checkORTVersion(ver string) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major != minORTMajor {
		return fmt.Errorf("requires ONNX Runtime 1.x, got %d", major)
	}
	if minor < minORTMinor {
		return fmt.Errorf("requires ONNX Runtime >=%d.%d, got 1.%d", minORTMajor, minORTMinor, minor)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(strings.TrimPrefix(strings.TrimSpace(ver), "v"), ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
