package complexnn

import (
	"errors"
	"fmt"

	"github.com/example/go-dcunet/internal/runtime/tensor"
)

// Module is a real-valued operator.
type Module interface {
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)
}

// ModuleFunc adapts a plain function to Module.
type ModuleFunc func(x *tensor.Tensor) (*tensor.Tensor, error)

func (f ModuleFunc) Forward(x *tensor.Tensor) (*tensor.Tensor, error) { return f(x) }

// Factory builds one independent Module instance per call. The component
// index (0 for real, 1 for imaginary) lets factories name their parameters.
type Factory func(component int) (Module, error)

const (
	ComponentRe = 0
	ComponentIm = 1
)

// ComponentName returns the parameter prefix used for component c.
func ComponentName(c int) string {
	if c == ComponentIm {
		return "im_module"
	}

	return "re_module"
}

// OnReIm applies one operator to the real part and another to the
// imaginary part: f_re(re) + i f_im(im).
type OnReIm struct {
	re Module
	im Module
}

// NewOnReImFunc applies the same function to both parts.
func NewOnReImFunc(f func(*tensor.Tensor) (*tensor.Tensor, error)) *OnReIm {
	m := ModuleFunc(f)
	return &OnReIm{re: m, im: m}
}

// NewOnReIm builds two independent instances from factory. Both are created
// here; no instance is shared between the parts.
func NewOnReIm(factory Factory) (*OnReIm, error) {
	re, im, err := buildPair(factory)
	if err != nil {
		return nil, fmt.Errorf("complexnn: on_reim: %w", err)
	}

	return NewOnReImModules(re, im), nil
}

// NewOnReImModules wraps two already-built modules.
func NewOnReImModules(re, im Module) *OnReIm {
	return &OnReIm{re: re, im: im}
}

func (m *OnReIm) Forward(x *Tensor) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("complexnn: on_reim: nil input")
	}

	re, im := x.ReIm()

	outRe, err := m.re.Forward(re)
	if err != nil {
		return nil, fmt.Errorf("complexnn: on_reim real part: %w", err)
	}

	outIm, err := m.im.Forward(im)
	if err != nil {
		return nil, fmt.Errorf("complexnn: on_reim imaginary part: %w", err)
	}

	return FromReIm(outRe, outIm)
}

// ComplexMultiplication runs a real operator as a complex one:
//
//	(g_re(re) - g_im(im)) + i (g_re(im) + g_im(re))
//
// For linear g this is multiplication by the complex weight g_re + i g_im.
type ComplexMultiplication struct {
	re Module
	im Module
}

// NewComplexMultiplication builds g_re and g_im as two instances from factory.
func NewComplexMultiplication(factory Factory) (*ComplexMultiplication, error) {
	re, im, err := buildPair(factory)
	if err != nil {
		return nil, fmt.Errorf("complexnn: complex multiplication: %w", err)
	}

	return NewComplexMultiplicationModules(re, im), nil
}

// NewSharedComplexMultiplication uses g for both g_re and g_im.
func NewSharedComplexMultiplication(g Module) *ComplexMultiplication {
	return &ComplexMultiplication{re: g, im: g}
}

// NewComplexMultiplicationModules wraps two already-built modules.
func NewComplexMultiplicationModules(re, im Module) *ComplexMultiplication {
	return &ComplexMultiplication{re: re, im: im}
}

func (m *ComplexMultiplication) Forward(x *Tensor) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("complexnn: complex multiplication: nil input")
	}

	re, im := x.ReIm()

	reRe, err := m.re.Forward(re)
	if err != nil {
		return nil, fmt.Errorf("complexnn: g_re(re): %w", err)
	}

	imIm, err := m.im.Forward(im)
	if err != nil {
		return nil, fmt.Errorf("complexnn: g_im(im): %w", err)
	}

	reIm, err := m.re.Forward(im)
	if err != nil {
		return nil, fmt.Errorf("complexnn: g_re(im): %w", err)
	}

	imRe, err := m.im.Forward(re)
	if err != nil {
		return nil, fmt.Errorf("complexnn: g_im(re): %w", err)
	}

	outRe, err := tensor.BroadcastSub(reRe, imIm)
	if err != nil {
		return nil, fmt.Errorf("complexnn: complex multiplication real part: %w", err)
	}

	outIm, err := tensor.BroadcastAdd(reIm, imRe)
	if err != nil {
		return nil, fmt.Errorf("complexnn: complex multiplication imaginary part: %w", err)
	}

	return FromReIm(outRe, outIm)
}

func buildPair(factory Factory) (Module, Module, error) {
	if factory == nil {
		return nil, nil, errors.New("nil factory")
	}

	re, err := factory(ComponentRe)
	if err != nil {
		return nil, nil, fmt.Errorf("build %s: %w", ComponentName(ComponentRe), err)
	}

	im, err := factory(ComponentIm)
	if err != nil {
		return nil, nil, fmt.Errorf("build %s: %w", ComponentName(ComponentIm), err)
	}

	return re, im, nil
}
