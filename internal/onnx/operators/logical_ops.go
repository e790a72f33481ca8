package operators

import (
	"github.com/born-ml/onnxrun/internal/memory"
	"github.com/born-ml/onnxrun/internal/tensor"
)

// registerLogicalOps adds comparison and boolean operators to the registry.
func (r *Registry) registerLogicalOps() {
	r.define("Less", compareVersion("Less", compareTypes, compareKernel{
		float: func(a, b float64) bool { return a < b },
		int:   func(a, b int64) bool { return a < b },
	}), 7, 9, 13)
	r.define("Greater", compareVersion("Greater", compareTypes, compareKernel{
		float: func(a, b float64) bool { return a > b },
		int:   func(a, b int64) bool { return a > b },
	}), 7, 9, 13)
	r.define("Equal", compareVersion("Equal", equalTypes, compareKernel{
		float: func(a, b float64) bool { return a == b },
		int:   func(a, b int64) bool { return a == b },
	}), 7, 9, 13)

	r.define("And", logicalVersion("And", func(a, b bool) bool { return a && b }), 7)
	r.define("Or", logicalVersion("Or", func(a, b bool) bool { return a || b }), 7)

	r.define("Not", func(v VersionInfo) Version {
		return unaryVersion("Not", boolTypes, unaryKernel{
			int: func(x int64) int64 { return boolInt(x == 0) },
		})(v)
	}, 1)
}

func compareVersion(name string, types []tensor.DataType, k compareKernel) func(v VersionInfo) Version {
	return func(v VersionInfo) Version {
		accepted := types
		if v.Since < 9 {
			// Opset 7 compares floats only (Equal: bool and 32/64 bit ints).
			if name == "Equal" {
				accepted = []tensor.DataType{tensor.Bool, tensor.Int32, tensor.Int64}
			} else {
				accepted = floatTypes
			}
		}
		info := &Info{
			Version: v,
			Inputs: []IOInfo{
				{Index: 0, Name: "A", Types: accepted},
				{Index: 1, Name: "B", Types: accepted},
			},
			Outputs: []IOInfo{{Index: 0, Name: "C", Types: boolTypes}},
		}
		return funcVersion(info, func(ctx *Context, _ *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
			result, err := compare(ctx, name, inputs[0], inputs[1], k)
			if err != nil {
				return nil, err
			}
			return []*tensor.Tensor{result}, nil
		})
	}
}

func logicalVersion(name string, f func(a, b bool) bool) func(v VersionInfo) Version {
	return func(v VersionInfo) Version {
		info := &Info{
			Version: v,
			Inputs: []IOInfo{
				{Index: 0, Name: "A", Types: boolTypes},
				{Index: 1, Name: "B", Types: boolTypes},
			},
			Outputs: []IOInfo{{Index: 0, Name: "C", Types: boolTypes}},
		}
		return funcVersion(info, func(ctx *Context, _ *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
			a, b := inputs[0], inputs[1]
			x, y := a.Array(), b.Array()
			result, err := broadcast(ctx, name, a, b, tensor.Bool, func(dst memory.Array, o, ia, ib int) {
				dst.SetInt64(o, boolInt(f(x.Int64(ia) != 0, y.Int64(ib) != 0)))
			})
			if err != nil {
				return nil, err
			}
			return []*tensor.Tensor{result}, nil
		})
	}
}
