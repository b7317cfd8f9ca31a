package config

import (
	"fmt"
	"strings"
)

const (
	BackendNative = "native"
	BackendONNX   = "onnx"
)

// NormalizeBackend canonicalizes a backend name. Empty selects the native
// Go mask network.
func NormalizeBackend(raw string) (string, error) {
	backend := strings.ToLower(strings.TrimSpace(raw))
	if backend == "" {
		backend = BackendNative
	}
	switch backend {
	case BackendNative, BackendONNX:
		return backend, nil
	case "native-safetensors", "go":
		return BackendNative, nil
	case "ort", "native-onnx":
		return BackendONNX, nil
	default:
		return "", fmt.Errorf(
			"invalid backend %q (expected %s|%s)",
			raw,
			BackendNative,
			BackendONNX,
		)
	}
}
