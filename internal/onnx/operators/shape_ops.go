package operators

import (
	"fmt"

	"github.com/born-ml/onnxrun/internal/tensor"
)

// registerShapeOps adds shape manipulation operators to the registry.
func (r *Registry) registerShapeOps() {
	r.define("Reshape", func(v VersionInfo) Version {
		info := &Info{
			Version: v,
			Inputs: []IOInfo{
				{Index: 0, Name: "data", Types: allTypes},
				{Index: 1, Name: "shape", Types: int64Types},
			},
			Outputs: []IOInfo{{Index: 0, Name: "reshaped", Types: allTypes}},
		}
		if v.Since >= 14 {
			info.Attributes = []AttributeInfo{{Name: "allowzero", Types: []AttributeType{AttrInt}}}
		}
		return funcVersion(info, handleReshape)
	}, 5, 13, 14)

	r.define("Unsqueeze", func(v VersionInfo) Version {
		info := &Info{
			Version: v,
			Inputs:  []IOInfo{{Index: 0, Name: "data", Types: allTypes}},
			Outputs: []IOInfo{{Index: 0, Name: "expanded", Types: allTypes}},
		}
		if v.Since >= 13 {
			// Opset 13 moved axes from an attribute to an input.
			info.Inputs = append(info.Inputs, IOInfo{Index: 1, Name: "axes", Types: int64Types})
		} else {
			info.Attributes = []AttributeInfo{{Name: "axes", Types: []AttributeType{AttrInts}, Required: true}}
		}
		return funcVersion(info, handleUnsqueeze)
	}, 1, 11, 13)

	r.define("Concat", func(v VersionInfo) Version {
		return funcVersion(&Info{
			Version:    v,
			Attributes: []AttributeInfo{{Name: "axis", Types: []AttributeType{AttrInt}, Required: true}},
			Inputs:     []IOInfo{{Index: 0, Name: "inputs", Types: allTypes, Variadic: true, MinArity: 1}},
			Outputs:    []IOInfo{{Index: 0, Name: "concat_result", Types: allTypes}},
		}, handleConcat)
	}, 4, 11, 13)

	r.define("Split", func(v VersionInfo) Version {
		info := &Info{
			Version:    v,
			Attributes: []AttributeInfo{{Name: "axis", Types: []AttributeType{AttrInt}}},
			Inputs:     []IOInfo{{Index: 0, Name: "input", Types: allTypes}},
			Outputs:    []IOInfo{{Index: 0, Name: "outputs", Types: allTypes, Variadic: true, MinArity: 1}},
		}
		if v.Since >= 13 {
			// Opset 13 moved split from an attribute to an input.
			info.Inputs = append(info.Inputs, IOInfo{Index: 1, Name: "split", Types: int64Types, Optional: true})
		} else {
			info.Attributes = append(info.Attributes, AttributeInfo{Name: "split", Types: []AttributeType{AttrInts}})
		}
		if v.Since >= 18 {
			info.Attributes = append(info.Attributes, AttributeInfo{Name: "num_outputs", Types: []AttributeType{AttrInt}})
		}
		return funcVersion(info, handleSplit)
	}, 2, 11, 13, 18)
}

func handleReshape(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	allowZero := GetAttrInt(node, "allowzero", 0) != 0
	shape, err := tensor.ResolveReshape(inputs[0].Shape(), inputs[1].Int64s(), allowZero)
	if err != nil {
		return nil, err
	}
	result, err := inputs[0].Reshape(shape)
	if err != nil {
		return nil, fmt.Errorf("reshape: %w", err)
	}
	return []*tensor.Tensor{result.Rename("")}, nil
}

func handleUnsqueeze(_ *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	axes := GetAttrInts(node, "axes")
	if len(inputs) >= 2 && inputs[1] != nil {
		axes = inputs[1].Int64s()
	}
	shape, err := tensor.UnsqueezeShape(inputs[0].Shape(), axes)
	if err != nil {
		return nil, err
	}
	result, err := inputs[0].Reshape(shape)
	if err != nil {
		return nil, fmt.Errorf("unsqueeze: %w", err)
	}
	return []*tensor.Tensor{result.Rename("")}, nil
}

func handleConcat(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	axis := int(GetAttrInt(node, "axis", 0))
	bound := make([]*tensor.Tensor, 0, len(inputs))
	for _, in := range inputs {
		if in != nil {
			bound = append(bound, in)
		}
	}
	result, err := tensor.Concat(ctx.Arena, bound, axis)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{result}, nil
}

func handleSplit(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	x := inputs[0]
	axis, err := tensor.NormalizeAxis(int(GetAttrInt(node, "axis", 0)), x.Rank())
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	dim := x.Shape()[axis]

	split := GetAttrInts(node, "split")
	if len(inputs) >= 2 && inputs[1] != nil {
		split = inputs[1].Int64s()
	}
	var sizes []int
	switch {
	case len(split) > 0:
		if len(split) != len(node.Outputs) {
			return nil, fmt.Errorf("split: %d sizes for %d outputs", len(split), len(node.Outputs))
		}
		sizes = make([]int, len(split))
		for i, n := range split {
			sizes[i] = int(n)
		}
	case GetAttrInt(node, "num_outputs", 0) > 0:
		// The last part takes the remainder when the axis does not divide.
		n := int(GetAttrInt(node, "num_outputs", 0))
		if n != len(node.Outputs) {
			return nil, fmt.Errorf("split: num_outputs %d, node has %d outputs", n, len(node.Outputs))
		}
		chunk := (dim + n - 1) / n
		sizes = make([]int, n)
		for i := range sizes {
			sizes[i] = max(min(chunk, dim-i*chunk), 0)
		}
	default:
		n := len(node.Outputs)
		if dim%n != 0 {
			return nil, fmt.Errorf("split: dimension %d does not divide into %d outputs", dim, n)
		}
		sizes = make([]int, n)
		for i := range sizes {
			sizes[i] = dim / n
		}
	}
	return tensor.Split(ctx.Arena, x, axis, sizes)
}
