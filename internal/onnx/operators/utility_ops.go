package operators

import (
	"fmt"
	"strconv"

	"github.com/born-ml/onnxrun/internal/tensor"
)

// registerUtilityOps adds utility operators to the registry.
func (r *Registry) registerUtilityOps() {
	r.define("Identity", func(v VersionInfo) Version {
		return funcVersion(&Info{
			Version: v,
			Inputs:  []IOInfo{{Index: 0, Name: "input", Types: allTypes}},
			Outputs: []IOInfo{{Index: 0, Name: "output", Types: allTypes}},
		}, handleIdentity)
	}, 1, 13, 14)

	r.define("Constant", constantVersion, 9, 11, 13)

	r.define("Cast", func(v VersionInfo) Version {
		info := &Info{
			Version:    v,
			Attributes: []AttributeInfo{{Name: "to", Types: []AttributeType{AttrInt}, Required: true}},
			Inputs:     []IOInfo{{Index: 0, Name: "input", Types: allTypes}},
			Outputs:    []IOInfo{{Index: 0, Name: "output", Types: allTypes}},
		}
		return Version{Info: info, New: newCast}
	}, 6, 13)

	r.define("Shape", func(v VersionInfo) Version {
		info := &Info{
			Version: v,
			Inputs:  []IOInfo{{Index: 0, Name: "data", Types: allTypes}},
			Outputs: []IOInfo{{Index: 0, Name: "shape", Types: int64Types}},
		}
		if v.Since >= 15 {
			info.Attributes = []AttributeInfo{
				{Name: "start", Types: []AttributeType{AttrInt}},
				{Name: "end", Types: []AttributeType{AttrInt}},
			}
		}
		return funcVersion(info, handleShape)
	}, 1, 13, 15)

	r.define("Size", func(v VersionInfo) Version {
		return funcVersion(&Info{
			Version: v,
			Inputs:  []IOInfo{{Index: 0, Name: "data", Types: allTypes}},
			Outputs: []IOInfo{{Index: 0, Name: "size", Types: int64Types}},
		}, handleSize)
	}, 1, 13)
}

func handleIdentity(_ *Context, _ *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	// Identity just passes through; the output shares the input buffer.
	return []*tensor.Tensor{inputs[0].Rename("")}, nil
}

func constantVersion(v VersionInfo) Version {
	attrs := []AttributeInfo{{Name: "value", Types: []AttributeType{AttrTensor}, Required: v.Since < 11}}
	if v.Since >= 11 {
		attrs = append(attrs, AttributeInfo{Name: "sparse_value"})
	}
	if v.Since >= 13 {
		attrs = append(attrs,
			AttributeInfo{Name: "value_float", Types: []AttributeType{AttrFloat}},
			AttributeInfo{Name: "value_floats", Types: []AttributeType{AttrFloats}},
			AttributeInfo{Name: "value_int", Types: []AttributeType{AttrInt}},
			AttributeInfo{Name: "value_ints", Types: []AttributeType{AttrInts}},
			AttributeInfo{Name: "value_string", Types: []AttributeType{AttrString}},
			AttributeInfo{Name: "value_strings", Types: []AttributeType{AttrStrings}},
		)
	}
	info := &Info{
		Version:    v,
		Attributes: attrs,
		Outputs:    []IOInfo{{Index: 0, Name: "output", Types: allTypes}},
	}
	return Version{Info: info, New: newConstant}
}

type constant struct {
	info  *Info
	node  *Node
	value *tensor.Tensor
}

// newConstant decodes the single value attribute once at construction.
func newConstant(info *Info, node *Node) (Operator, error) {
	if len(node.Attributes) != 1 {
		return nil, &ContractError{OpType: node.OpType, Node: node.Name,
			Reason: fmt.Sprintf("exactly one value attribute required, got %d", len(node.Attributes))}
	}
	attr := &node.Attributes[0]
	var (
		value *tensor.Tensor
		err   error
	)
	switch attr.Name {
	case "value":
		if attr.T == nil {
			err = fmt.Errorf("value attribute holds no tensor")
		}
		value = attr.T
	case "value_float":
		value = tensor.Scalar(attr.F)
	case "value_floats":
		value, err = tensor.FromSlice(attr.Floats, tensor.Shape{len(attr.Floats)})
	case "value_int":
		value = tensor.Scalar(attr.I)
	case "value_ints":
		value, err = tensor.FromSlice(attr.Ints, tensor.Shape{len(attr.Ints)})
	case "value_string":
		value, err = tensor.FromStrings([]string{string(attr.S)}, tensor.Shape{})
	case "value_strings":
		strs := make([]string, len(attr.Strings))
		for i, s := range attr.Strings {
			strs[i] = string(s)
		}
		value, err = tensor.FromStrings(strs, tensor.Shape{len(strs)})
	default:
		err = fmt.Errorf("%s is not supported", attr.Name)
	}
	if err != nil {
		return nil, &ContractError{OpType: node.OpType, Node: node.Name, Reason: err.Error()}
	}
	return &constant{info: info, node: node, value: value}, nil
}

func (c *constant) Info() *Info { return c.info }
func (c *constant) Node() *Node { return c.node }

// Apply copies the value into the arena so callers never alias the graph's copy.
func (c *constant) Apply(ctx *Context, _ []*tensor.Tensor) ([]*tensor.Tensor, error) {
	out, err := c.value.Clone(ctx.Arena)
	if err != nil {
		return nil, fmt.Errorf("constant: %w", err)
	}
	return []*tensor.Tensor{out.Rename("")}, nil
}

type cast struct {
	info *Info
	node *Node
	to   tensor.DataType
}

func newCast(info *Info, node *Node) (Operator, error) {
	to, err := tensor.FromONNX(int32(GetAttrInt(node, "to", 0)))
	if err != nil {
		return nil, &ContractError{OpType: node.OpType, Node: node.Name, Reason: err.Error()}
	}
	return &cast{info: info, node: node, to: to}, nil
}

func (c *cast) Info() *Info { return c.info }
func (c *cast) Node() *Node { return c.node }

func (c *cast) Apply(ctx *Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	result, err := Cast(ctx, inputs[0], c.to)
	if err != nil {
		return nil, err
	}
	return []*tensor.Tensor{result}, nil
}

// Cast converts x to the given data type. Float to integer conversion
// truncates toward zero; any non-zero value becomes true.
func Cast(ctx *Context, x *tensor.Tensor, to tensor.DataType) (*tensor.Tensor, error) {
	out, err := tensor.New(ctx.Arena, to, x.Shape())
	if err != nil {
		return nil, fmt.Errorf("cast: %w", err)
	}
	n := x.NumElements()
	from := x.DType()
	switch {
	case from == tensor.String && to == tensor.String:
		copy(out.Strings(), x.Strings())
	case from == tensor.String:
		for i, s := range x.Strings() {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("cast: element %d: %w", i, err)
			}
			out.SetAt(i, f)
		}
	case to == tensor.String:
		strs := out.Strings()
		for i := range n {
			if from.Float() {
				strs[i] = strconv.FormatFloat(x.At(i), 'g', -1, 64)
			} else {
				strs[i] = strconv.FormatInt(x.Int64At(i), 10)
			}
		}
	case to == tensor.Bool:
		for i := range n {
			out.SetInt64At(i, boolInt(x.At(i) != 0))
		}
	case from.Float():
		for i := range n {
			if to.Float() {
				out.SetAt(i, x.At(i))
			} else {
				out.SetInt64At(i, int64(x.At(i)))
			}
		}
	default:
		for i := range n {
			out.SetInt64At(i, x.Int64At(i))
		}
	}
	return out, nil
}

func handleShape(ctx *Context, node *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	dims := tensor.ShapeOf(inputs[0])
	rank := int64(len(dims))
	clamp := func(v int64) int64 {
		if v < 0 {
			v += rank
		}
		return min(max(v, 0), rank)
	}
	start := clamp(GetAttrInt(node, "start", 0))
	end := clamp(GetAttrInt(node, "end", rank))
	if end < start {
		end = start
	}
	dims = dims[start:end]

	result, err := int64Tensor(ctx, dims, tensor.Shape{len(dims)})
	if err != nil {
		return nil, fmt.Errorf("shape: %w", err)
	}
	return []*tensor.Tensor{result}, nil
}

func handleSize(ctx *Context, _ *Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	result, err := int64Tensor(ctx, []int64{int64(inputs[0].NumElements())}, tensor.Shape{})
	if err != nil {
		return nil, fmt.Errorf("size: %w", err)
	}
	return []*tensor.Tensor{result}, nil
}
