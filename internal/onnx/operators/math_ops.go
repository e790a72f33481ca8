package operators

import (
	"fmt"
	"math"

	"github.com/born-ml/onnxrun/internal/tensor"
)

// registerMathOps adds arithmetic operators to the registry.
func (r *Registry) registerMathOps() {
	r.define("Add", arithmeticVersion("Add", binaryKernel{
		float: func(a, b float64) float64 { return a + b },
		int:   func(a, b int64) int64 { return a + b },
	}), 7, 13, 14)
	r.define("Sub", arithmeticVersion("Sub", binaryKernel{
		float: func(a, b float64) float64 { return a - b },
		int:   func(a, b int64) int64 { return a - b },
	}), 7, 13, 14)
	r.define("Mul", arithmeticVersion("Mul", binaryKernel{
		float: func(a, b float64) float64 { return a * b },
		int:   func(a, b int64) int64 { return a * b },
	}), 7, 13, 14)
	r.define("Div", arithmeticVersion("Div", binaryKernel{
		float: func(a, b float64) float64 { return a / b },
		int:   func(a, b int64) int64 { return a / b },
	}), 7, 13, 14)

	r.define("Neg", unaryVersion("Neg", signedNumericTypes, unaryKernel{
		float: func(x float64) float64 { return -x },
		int:   func(x int64) int64 { return -x },
	}), 6, 13)
	r.define("Abs", unaryVersion("Abs", numericTypes, unaryKernel{
		float: math.Abs,
		int: func(x int64) int64 {
			if x < 0 {
				return -x
			}
			return x
		},
	}), 6, 13)
	r.define("Sqrt", unaryVersion("Sqrt", floatTypes, unaryKernel{float: math.Sqrt}), 6, 13)
	r.define("Exp", unaryVersion("Exp", floatTypes, unaryKernel{float: math.Exp}), 6, 13)
	r.define("Log", unaryVersion("Log", floatTypes, unaryKernel{float: math.Log}), 6, 13)

	r.define("Sum", func(v VersionInfo) Version {
		types := floatTypes
		return funcVersion(&Info{
			Version: v,
			Inputs:  []IOInfo{{Index: 0, Name: "data_0", Types: types, Variadic: true, MinArity: 1}},
			Outputs: []IOInfo{{Index: 0, Name: "sum", Types: types}},
		}, handleSum)
	}, 8, 13)
}

// arithmeticVersion builds a broadcasting binary operator version. Opset 14
// widens the accepted types to 8 and 16 bit integers.
func arithmeticVersion(name string, k binaryKernel) func(v VersionInfo) Version {
	return func(v VersionInfo) Version {
		types := arithTypes
		if v.Since >= 14 {
			types = numericTypes
		}
		info := &Info{
			Version: v,
			Inputs: []IOInfo{
				{Index: 0, Name: "A", Types: types},
				{Index: 1, Name: "B", Types: types},
			},
			Outputs: []IOInfo{{Index: 0, Name: "C", Types: types}},
		}
		return funcVersion(info, func(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
			if name == "Div" && !inputs[1].DType().Float() {
				if err := checkNonZero(inputs[1]); err != nil {
					return nil, fmt.Errorf("div: %w", err)
				}
			}
			result, err := binary(ctx, name, inputs[0], inputs[1], k)
			if err != nil {
				return nil, err
			}
			return []*tensor.Tensor{result}, nil
		})
	}
}

func unaryVersion(name string, types []tensor.DataType, k unaryKernel) func(v VersionInfo) Version {
	return func(v VersionInfo) Version {
		info := &Info{
			Version: v,
			Inputs:  []IOInfo{{Index: 0, Name: "X", Types: types}},
			Outputs: []IOInfo{{Index: 0, Name: "Y", Types: types}},
		}
		return funcVersion(info, func(ctx *Context, _ *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
			result, err := unary(ctx, name, inputs[0], k)
			if err != nil {
				return nil, err
			}
			return []*tensor.Tensor{result}, nil
		})
	}
}

func handleSum(ctx *Context, _ *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	add := binaryKernel{float: func(a, b float64) float64 { return a + b }}
	acc := inputs[0]
	for _, in := range inputs[1:] {
		next, err := binary(ctx, "Sum", acc, in, add)
		if err != nil {
			return nil, err
		}
		if acc != inputs[0] {
			// Partial sums are scratch buffers of this node.
			ctx.release(acc, nil)
		}
		acc = next
	}
	if acc == inputs[0] {
		return []*tensor.Tensor{acc.Rename("")}, nil
	}
	return []*tensor.Tensor{acc}, nil
}

func checkNonZero(t *tensor.Tensor) error {
	arr := t.Array()
	for i := 0; i < t.NumElements(); i++ {
		if arr.Int64(i) == 0 {
			return fmt.Errorf("integer division by zero at element %d", i)
		}
	}
	return nil
}
