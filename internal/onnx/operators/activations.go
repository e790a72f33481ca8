package operators

import (
	"math"
)

// registerActivations adds activation operators to the registry.
func (r *Registry) registerActivations() {
	r.define("Relu", func(v VersionInfo) Version {
		types := floatTypes
		if v.Since >= 14 {
			types = signedNumericTypes
		}
		return unaryVersion("Relu", types, unaryKernel{
			float: func(x float64) float64 { return math.Max(x, 0) },
			int:   func(x int64) int64 { return max(x, 0) },
		})(v)
	}, 6, 13, 14)

	r.define("Sigmoid", unaryVersion("Sigmoid", floatTypes, unaryKernel{float: sigmoid}), 6, 13)
	r.define("Tanh", unaryVersion("Tanh", floatTypes, unaryKernel{float: math.Tanh}), 6, 13)
	r.define("Asinh", unaryVersion("Asinh", floatTypes, unaryKernel{float: math.Asinh}), 9)
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	// Stable form for large negative inputs.
	e := math.Exp(x)
	return e / (1 + e)
}
