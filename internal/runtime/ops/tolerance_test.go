package ops

import (
	"fmt"
	"math"
)

// tolerance bounds the drift of an optimized kernel from its naive
// reference loop.
type tolerance struct {
	Abs float64
	Rel float64
}

var kernelTolerances = map[string]tolerance{
	"conv2d":          {Abs: 1e-4, Rel: 1e-4},
	"convtranspose2d": {Abs: 1e-4, Rel: 1e-4},
	"batchnorm":       {Abs: 1e-5, Rel: 1e-5},
}

func kernelTolerance(name string) (tolerance, error) {
	t, ok := kernelTolerances[name]
	if !ok {
		return tolerance{}, fmt.Errorf("no tolerance for kernel %q", name)
	}

	return t, nil
}

func (t tolerance) Within(got, want float64) bool {
	return math.Abs(got-want) <= t.Abs+t.Rel*math.Abs(want)
}
