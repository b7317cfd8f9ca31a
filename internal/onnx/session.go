package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Names of the mask graph's input and output nodes.
const (
	MaskInputName  = "spec"
	MaskOutputName = "masks"
)

type NodeInfo struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
	Shape []any  `json:"shape"`
}

// Session describes one ONNX graph on disk and its expected signature.
type Session struct {
	Name string
	Path string

	Inputs  []NodeInfo
	Outputs []NodeInfo
}

// MaskSession describes a mask network graph exported with input
// "spec" [batch, 2, freq, frames] and output "masks"
// [batch, n_src, 2, freq, frames].
func MaskSession(path string) (Session, error) {
	if strings.TrimSpace(path) == "" {
		return Session{}, errors.New("onnx mask graph path is required")
	}

	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return Session{}, fmt.Errorf("onnx mask graph: %w", err)
	}

	return Session{
		Name: "masker",
		Path: path,
		Inputs: []NodeInfo{
			{Name: MaskInputName, DType: "float", Shape: []any{"batch", 2.0, "freq", "frames"}},
		},
		Outputs: []NodeInfo{
			{Name: MaskOutputName, DType: "float", Shape: []any{"batch", "n_src", 2.0, "freq", "frames"}},
		},
	}, nil
}

func (s Session) InputNames() []string { return nodeNames(s.Inputs) }

func (s Session) OutputNames() []string { return nodeNames(s.Outputs) }

func nodeNames(nodes []NodeInfo) []string {
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}

	return names
}
