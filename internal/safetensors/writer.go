package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EncodeTensors serializes float32 tensors, sorted by name, with optional
// string metadata stored under "__metadata__".
func EncodeTensors(tensors []Tensor, metadata map[string]string) ([]byte, error) {
	if len(tensors) == 0 {
		return nil, errors.New("safetensors: no tensors to encode")
	}

	sorted := append([]Tensor(nil), tensors...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	header := make(map[string]any, len(sorted)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	total := 0
	for _, t := range sorted {
		total += 4 * len(t.Data)
	}

	raw := make([]byte, 0, total)

	for _, t := range sorted {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, errors.New("safetensors: tensor name must not be empty")
		}

		if name == metadataKey {
			return nil, fmt.Errorf("safetensors: tensor name %q is reserved", name)
		}

		if _, dup := header[name]; dup {
			return nil, fmt.Errorf("safetensors: duplicate tensor name %q", name)
		}

		count, err := shapeElementCount(t.Shape)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}

		if int64(len(t.Data)) != count {
			return nil, fmt.Errorf("safetensors: tensor %q shape %v expects %d elements, got %d", name, t.Shape, count, len(t.Data))
		}

		start := len(raw)
		for _, v := range t.Data {
			raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(v))
		}

		shape := t.Shape
		if shape == nil {
			shape = []int64{}
		}

		header[name] = headerEntry{DType: dtypeF32, Shape: shape, Offsets: [2]int{start, len(raw)}}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("safetensors: encode header: %w", err)
	}

	// Pad the header with spaces so tensor data starts 8-byte aligned.
	if pad := (8 - len(headerJSON)%8) % 8; pad > 0 {
		headerJSON = append(headerJSON, []byte(strings.Repeat(" ", pad))...)
	}

	out := make([]byte, 8, 8+len(headerJSON)+len(raw))
	binary.LittleEndian.PutUint64(out, uint64(len(headerJSON)))
	out = append(out, headerJSON...)
	out = append(out, raw...)

	return out, nil
}

// WriteFile encodes tensors and writes them to path through a temporary file
// in the same directory, so readers never observe a partial checkpoint.
func WriteFile(path string, tensors []Tensor, metadata map[string]string) error {
	data, err := EncodeTensors(tensors, metadata)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".safetensors-*")
	if err != nil {
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	tmpName := tmp.Name()

	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	return nil
}
