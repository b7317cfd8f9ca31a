package tensor

import "math"

func equalI64(a, b []int64) bool {
	return EqualShape(a, b)
}

func equalF32(a, b []float32, tol float64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if tol == 0 {
			if a[i] != b[i] {
				return false
			}

			continue
		}

		if math.Abs(float64(a[i]-b[i])) > tol {
			return false
		}
	}

	return true
}

func mustNew(data []float32, shape []int64) *Tensor {
	t, err := New(data, shape)
	if err != nil {
		panic(err)
	}

	return t
}
