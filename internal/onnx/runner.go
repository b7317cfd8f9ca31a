package onnx

import (
	"context"
	"errors"
	"fmt"

	ort "github.com/shota3506/onnxruntime-purego/onnxruntime"
)

// DefaultAPIVersion is the ORT C API version requested when none is set.
const DefaultAPIVersion = 23

// Runner owns one ORT session together with the runtime and environment it
// was created in.
type Runner struct {
	meta    Session
	rt      *ort.Runtime
	release []func()
	session *ort.Session
}

// NewRunner loads the ORT library at libraryPath and opens the graph
// described by meta. An apiVersion of zero selects DefaultAPIVersion.
func NewRunner(meta Session, libraryPath string, apiVersion uint32) (*Runner, error) {
	if apiVersion == 0 {
		apiVersion = DefaultAPIVersion
	}

	r := &Runner{meta: meta}

	rt, err := ort.NewRuntime(libraryPath, apiVersion)
	if err != nil {
		return nil, fmt.Errorf("onnx %s: load runtime: %w", meta.Name, err)
	}
	r.rt = rt
	r.release = append(r.release, func() { _ = rt.Close() })

	env, err := rt.NewEnv("dcunet-"+meta.Name, ort.LoggingLevelWarning)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("onnx %s: create env: %w", meta.Name, err)
	}
	r.release = append(r.release, func() { env.Close() })

	session, err := rt.NewSession(env, meta.Path, nil)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("onnx %s: open %s: %w", meta.Name, meta.Path, err)
	}
	r.session = session
	r.release = append(r.release, func() { session.Close() })

	return r, nil
}

// Run feeds the named inputs to the graph. Every input declared by the
// session must be present.
func (r *Runner) Run(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	if r.session == nil {
		return nil, errors.New("onnx: runner is closed")
	}

	for _, name := range r.meta.InputNames() {
		if _, ok := inputs[name]; !ok {
			return nil, fmt.Errorf("onnx %s: missing input %q", r.meta.Name, name)
		}
	}

	feed := make(map[string]*ort.Value, len(inputs))
	defer freeValues(feed)

	for name, t := range inputs {
		v, err := r.toValue(t)
		if err != nil {
			return nil, fmt.Errorf("onnx %s: input %q: %w", r.meta.Name, name, err)
		}
		feed[name] = v
	}

	fetched, err := r.session.Run(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("onnx %s: run: %w", r.meta.Name, err)
	}
	defer freeValues(fetched)

	out := make(map[string]*Tensor, len(fetched))
	for name, v := range fetched {
		t, err := fromValue(v)
		if err != nil {
			return nil, fmt.Errorf("onnx %s: output %q: %w", r.meta.Name, name, err)
		}
		out[name] = t
	}

	return out, nil
}

// Close releases the session, environment and runtime in reverse creation
// order. Further calls are no-ops.
func (r *Runner) Close() {
	for i := len(r.release) - 1; i >= 0; i-- {
		r.release[i]()
	}

	r.release = nil
	r.session = nil
	r.rt = nil
}

// Session returns the graph description the runner was opened with.
func (r *Runner) Session() Session { return r.meta }

func (r *Runner) toValue(t *Tensor) (*ort.Value, error) {
	if t == nil {
		return nil, errors.New("nil tensor")
	}

	switch data := t.data.(type) {
	case []float32:
		return ort.NewTensorValue(r.rt, data, t.Shape())
	case []int64:
		return ort.NewTensorValue(r.rt, data, t.Shape())
	}

	return nil, fmt.Errorf("unsupported dtype %q", t.dtype)
}

func fromValue(v *ort.Value) (*Tensor, error) {
	kind, err := v.GetTensorElementType()
	if err != nil {
		return nil, err
	}

	switch kind {
	case ort.ONNXTensorElementDataTypeFloat:
		return readValue[float32](v)
	case ort.ONNXTensorElementDataTypeInt64:
		return readValue[int64](v)
	}

	return nil, fmt.Errorf("unsupported element type %d", kind)
}

func readValue[T float32 | int64](v *ort.Value) (*Tensor, error) {
	data, shape, err := ort.GetTensorData[T](v)
	if err != nil {
		return nil, err
	}

	return NewTensor(data, shape)
}

func freeValues(vals map[string]*ort.Value) {
	for _, v := range vals {
		if v != nil {
			v.Close()
		}
	}
}
