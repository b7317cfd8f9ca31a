package tensor

import (
	"errors"
	"math"
)

// Map applies fn to every element and returns a new tensor.
func Map(x *Tensor, fn func(float32) float32) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: map on nil tensor")
	}

	out := make([]float32, len(x.data))
	for i, v := range x.data {
		out[i] = fn(v)
	}

	return newOwned(out, append([]int64(nil), x.shape...)), nil
}

// Sigmoid applies the logistic function element-wise.
func Sigmoid(x *Tensor) (*Tensor, error) {
	return Map(x, sigmoid)
}

// Tanh applies the hyperbolic tangent element-wise.
func Tanh(x *Tensor) (*Tensor, error) {
	return Map(x, func(v float32) float32 { return float32(math.Tanh(float64(v))) })
}

// ReLU clamps negative values to zero.
func ReLU(x *Tensor) (*Tensor, error) {
	return Map(x, func(v float32) float32 { return max(v, 0) })
}

// LeakyReLU scales negative values by slope.
func LeakyReLU(x *Tensor, slope float32) (*Tensor, error) {
	return Map(x, func(v float32) float32 {
		if v < 0 {
			return v * slope
		}

		return v
	})
}

// Abs returns the element-wise absolute value.
func Abs(x *Tensor) (*Tensor, error) {
	return Map(x, func(v float32) float32 { return float32(math.Abs(float64(v))) })
}

// AddScalar adds s to every element.
func AddScalar(x *Tensor, s float32) (*Tensor, error) {
	return Map(x, func(v float32) float32 { return v + s })
}

func sigmoid(v float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(v))))
}
