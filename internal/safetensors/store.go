// Package safetensors reads and writes model checkpoints in the safetensors
// format: an 8-byte little-endian header length, a JSON header describing
// every tensor plus an optional "__metadata__" string map, then raw data.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
)

const (
	dtypeF32  = "F32"
	dtypeF16  = "F16"
	dtypeBF16 = "BF16"

	metadataKey = "__metadata__"
)

// Tensor is one named float32 tensor.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// KeyMapper renames a stored tensor; keep=false drops it.
type KeyMapper func(name string) (mapped string, keep bool)

// StripPrefix keeps only tensors under prefix and removes the prefix.
func StripPrefix(prefix string) KeyMapper {
	return func(name string) (string, bool) {
		return strings.CutPrefix(name, prefix)
	}
}

type RemapMode string

const (
	RemapLenient RemapMode = "lenient"
	RemapStrict  RemapMode = "strict"
)

type StoreOptions struct {
	KeyMapper KeyMapper
	RemapMode RemapMode
}

// Store is an opened checkpoint. Tensor data is decoded lazily.
type Store struct {
	raw      []byte
	entries  map[string]storeEntry
	names    []string
	metadata map[string]string
}

type storeEntry struct {
	source string
	dtype  string
	shape  []int64
	start  int
	end    int
}

type headerEntry struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets [2]int  `json:"data_offsets"`
}

func OpenStore(path string, opts StoreOptions) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("safetensors: read %s: %w", path, err)
	}

	return OpenStoreFromBytes(data, opts)
}

func OpenStoreFromBytes(data []byte, opts StoreOptions) (*Store, error) {
	mapper := opts.KeyMapper
	if mapper == nil {
		mapper = func(name string) (string, bool) { return name, true }
	}

	strict := opts.RemapMode == RemapStrict

	dataStart, header, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	s := &Store{
		raw:      data,
		entries:  make(map[string]storeEntry, len(header)),
		metadata: map[string]string{},
	}

	if rawMeta, ok := header[metadataKey]; ok {
		if err := json.Unmarshal(rawMeta, &s.metadata); err != nil {
			return nil, fmt.Errorf("safetensors: decode %s: %w", metadataKey, err)
		}
	}

	keys := make([]string, 0, len(header))
	for name := range header {
		if name != metadataKey {
			keys = append(keys, name)
		}
	}

	sort.Strings(keys)

	for _, source := range keys {
		var h headerEntry
		if err := json.Unmarshal(header[source], &h); err != nil {
			return nil, fmt.Errorf("safetensors: decode header entry %q: %w", source, err)
		}

		entry, err := layoutEntry(source, h, dataStart, len(data))
		if err != nil {
			return nil, err
		}

		name, keep := mapper(source)
		name = strings.TrimSpace(name)

		switch {
		case !keep && strict:
			return nil, fmt.Errorf("safetensors: strict remap rejected tensor %q", source)
		case !keep:
			continue
		case name == "":
			return nil, fmt.Errorf("safetensors: remapped tensor name for %q is empty", source)
		}

		if _, dup := s.entries[name]; dup {
			if strict {
				return nil, fmt.Errorf("safetensors: strict remap collision for %q", name)
			}

			continue
		}

		s.entries[name] = entry
		s.names = append(s.names, name)
	}

	if len(s.entries) == 0 {
		return nil, errors.New("safetensors: no tensors found")
	}

	sort.Strings(s.names)

	return s, nil
}

// layoutEntry validates one header entry and resolves its absolute byte range.
func layoutEntry(source string, h headerEntry, dataStart, fileSize int) (storeEntry, error) {
	dtype := strings.ToUpper(h.DType)

	elemBytes, err := dtypeBytes(dtype)
	if err != nil {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q: %w", source, err)
	}

	if h.Offsets[0] < 0 || h.Offsets[1] < h.Offsets[0] {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q has invalid data offsets %v", source, h.Offsets)
	}

	count, err := shapeElementCount(h.Shape)
	if err != nil {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q: %w", source, err)
	}

	start := dataStart + h.Offsets[0]
	end := dataStart + h.Offsets[1]

	if end > fileSize {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q data [%d:%d] exceeds file size %d", source, start, end, fileSize)
	}

	if need := int(count) * elemBytes; end-start < need {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q needs %d bytes but data has %d", source, need, end-start)
	}

	return storeEntry{
		source: source,
		dtype:  dtype,
		shape:  append([]int64(nil), h.Shape...),
		start:  start,
		end:    end,
	}, nil
}

func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

func (s *Store) Has(name string) bool {
	_, ok := s.entries[name]
	return ok
}

// Shape returns the stored shape of name without decoding its data.
func (s *Store) Shape(name string) ([]int64, bool) {
	e, ok := s.entries[name]
	if !ok {
		return nil, false
	}

	return append([]int64(nil), e.shape...), true
}

// Metadata returns a copy of the header's string metadata.
func (s *Store) Metadata() map[string]string {
	out := make(map[string]string, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}

	return out
}

// MetadataValue returns one metadata entry.
func (s *Store) MetadataValue(key string) (string, bool) {
	v, ok := s.metadata[key]
	return v, ok
}

func (s *Store) Tensor(name string) (*Tensor, error) {
	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("safetensors: tensor %q not found (available: %s)", name, summarizeNames(s.names))
	}

	data, err := decodeTensorData(s.raw[e.start:e.end], e.dtype, e.shape)
	if err != nil {
		return nil, fmt.Errorf("safetensors: tensor %q decode: %w", name, err)
	}

	return &Tensor{Name: name, Shape: append([]int64(nil), e.shape...), Data: data}, nil
}

func (s *Store) TensorWithShape(name string, wantShape []int64) (*Tensor, error) {
	t, err := s.Tensor(name)
	if err != nil {
		return nil, err
	}

	if !equalShape(t.Shape, wantShape) {
		return nil, fmt.Errorf("safetensors: tensor %q shape %v does not match expected %v", name, t.Shape, wantShape)
	}

	return t, nil
}

func (s *Store) ReadAll() (map[string]*Tensor, error) {
	out := make(map[string]*Tensor, len(s.names))
	for _, name := range s.names {
		t, err := s.Tensor(name)
		if err != nil {
			return nil, err
		}

		out[name] = t
	}

	return out, nil
}

func (s *Store) Close() {
	s.raw = nil
	s.entries = nil
	s.names = nil
	s.metadata = nil
}

func decodeHeader(data []byte) (int, map[string]json.RawMessage, error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("safetensors: file too short (%d bytes)", len(data))
	}

	n := binary.LittleEndian.Uint64(data[:8])
	if n > uint64(len(data)-8) {
		return 0, nil, fmt.Errorf("safetensors: header length %d exceeds file size %d", n, len(data))
	}

	end := 8 + int(n)

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:end], &header); err != nil {
		return 0, nil, fmt.Errorf("safetensors: parse header: %w", err)
	}

	return end, header, nil
}

func shapeElementCount(shape []int64) (int64, error) {
	total := int64(1)

	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension %d", d)
		}

		if d == 0 {
			return 0, nil
		}

		if total > math.MaxInt64/d {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}

		total *= d
	}

	return total, nil
}

func dtypeBytes(dtype string) (int, error) {
	switch dtype {
	case dtypeF32:
		return 4, nil
	case dtypeF16, dtypeBF16:
		return 2, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %q", dtype)
	}
}

func decodeTensorData(raw []byte, dtype string, shape []int64) ([]float32, error) {
	count, err := shapeElementCount(shape)
	if err != nil {
		return nil, err
	}

	width, err := dtypeBytes(dtype)
	if err != nil {
		return nil, err
	}

	n := int(count)
	if len(raw) < n*width {
		return nil, fmt.Errorf("need %d bytes for %s, got %d", n*width, dtype, len(raw))
	}

	out := make([]float32, n)

	switch dtype {
	case dtypeF32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case dtypeF16:
		for i := range out {
			out[i] = float16ToFloat32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
	case dtypeBF16:
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[i*2:])) << 16)
		}
	}

	return out, nil
}

func float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h & 0x03ff)

	var bits uint32

	switch exp {
	case 0:
		if frac == 0 {
			bits = sign << 31
			break
		}

		// Subnormal: shift until the implicit bit appears.
		e := int32(-14)
		for frac&0x0400 == 0 {
			frac <<= 1
			e--
		}

		frac &= 0x03ff
		bits = (sign << 31) | (uint32(e+127) << 23) | (frac << 13)
	case 0x1f:
		bits = (sign << 31) | 0x7f800000 | (frac << 13)
	default:
		bits = (sign << 31) | ((exp + 127 - 15) << 23) | (frac << 13)
	}

	return math.Float32frombits(bits)
}

func equalShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func summarizeNames(names []string) string {
	if len(names) == 0 {
		return "none"
	}

	const maxNames = 8
	if len(names) <= maxNames {
		return strings.Join(names, ", ")
	}

	return strings.Join(names[:maxNames], ", ") + ", ..."
}
