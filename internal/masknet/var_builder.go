package masknet

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/go-dcunet/internal/runtime/tensor"
	"github.com/example/go-dcunet/internal/safetensors"
)

// tensorSource is the lookup surface shared by checkpoint stores and
// in-memory weight maps.
type tensorSource interface {
	Has(name string) bool
	Tensor(name string) (*safetensors.Tensor, error)
}

// VarBuilder resolves dotted parameter names ("encoders.0.conv.re_module.weight")
// against a tensor source.
type VarBuilder struct {
	src    tensorSource
	prefix string
}

// OpenVarBuilder opens a checkpoint and scopes it to the mask network's
// "masker." prefix.
func OpenVarBuilder(path string) (*VarBuilder, *safetensors.Store, error) {
	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{KeyMapper: safetensors.StripPrefix(WeightPrefix)})
	if err != nil {
		return nil, nil, err
	}

	return NewVarBuilder(store), store, nil
}

// NewVarBuilder serves weights from an open checkpoint store.
func NewVarBuilder(store *safetensors.Store) *VarBuilder {
	return &VarBuilder{src: store}
}

// NewVarBuilderFromTensors serves weights from memory. Names may carry the
// "masker." prefix or not.
func NewVarBuilderFromTensors(tensors []safetensors.Tensor) *VarBuilder {
	m := make(mapSource, len(tensors))
	for i := range tensors {
		t := tensors[i]
		m[strings.TrimPrefix(t.Name, WeightPrefix)] = &t
	}

	return &VarBuilder{src: m}
}

func (vb *VarBuilder) Path(parts ...string) *VarBuilder {
	if vb == nil {
		return nil
	}

	prefix := vb.prefix

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if prefix == "" {
			prefix = part
		} else {
			prefix += "." + part
		}
	}

	return &VarBuilder{src: vb.src, prefix: prefix}
}

func (vb *VarBuilder) Has(name string) bool {
	if vb == nil || vb.src == nil {
		return false
	}

	return vb.src.Has(vb.resolve(name))
}

// Tensor loads name and checks its shape when wantShape is given.
func (vb *VarBuilder) Tensor(name string, wantShape ...int64) (*tensor.Tensor, error) {
	if vb == nil || vb.src == nil {
		return nil, errors.New("masknet varbuilder: uninitialized source")
	}

	full := vb.resolve(name)

	st, err := vb.src.Tensor(full)
	if err != nil {
		return nil, err
	}

	if len(wantShape) > 0 && !tensor.EqualShape(st.Shape, wantShape) {
		return nil, fmt.Errorf("masknet varbuilder: tensor %q shape %v does not match expected %v", full, st.Shape, wantShape)
	}

	t, err := tensor.New(st.Data, st.Shape)
	if err != nil {
		return nil, fmt.Errorf("masknet varbuilder: tensor %q: %w", full, err)
	}

	return t, nil
}

// TensorMaybe is like Tensor but reports absence instead of failing.
func (vb *VarBuilder) TensorMaybe(name string, wantShape ...int64) (*tensor.Tensor, bool, error) {
	if !vb.Has(name) {
		return nil, false, nil
	}

	t, err := vb.Tensor(name, wantShape...)
	if err != nil {
		return nil, true, err
	}

	return t, true, nil
}

func (vb *VarBuilder) resolve(name string) string {
	name = strings.TrimSpace(name)
	if vb == nil || vb.prefix == "" {
		return name
	}

	if name == "" {
		return vb.prefix
	}

	return vb.prefix + "." + name
}

type mapSource map[string]*safetensors.Tensor

func (m mapSource) Has(name string) bool {
	_, ok := m[name]
	return ok
}

func (m mapSource) Tensor(name string) (*safetensors.Tensor, error) {
	t, ok := m[name]
	if !ok {
		names := make([]string, 0, len(m))
		for k := range m {
			names = append(names, k)
		}

		sort.Strings(names)

		if len(names) > 8 {
			names = append(names[:8], "...")
		}

		return nil, fmt.Errorf("masknet varbuilder: tensor %q not found (available: %s)", name, strings.Join(names, ", "))
	}

	return t, nil
}
