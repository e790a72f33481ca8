package operators

import (
	"fmt"
	"slices"

	"github.com/born-ml/onnxrun/internal/tensor"
)

// DefaultDomain is the canonical name of the standard ONNX operator set.
const DefaultDomain = "ai.onnx"

// NormalizeDomain maps the empty domain onto DefaultDomain.
func NormalizeDomain(domain string) string {
	if domain == "" {
		return DefaultDomain
	}
	return domain
}

// VersionInfo is an inclusive opset range. Until 0 leaves the range open.
type VersionInfo struct {
	Since int
	Until int
}

// Contains reports whether opset v falls inside the range.
func (v VersionInfo) Contains(opset int) bool {
	return opset >= v.Since && (v.Until == 0 || opset <= v.Until)
}

func (v VersionInfo) String() string {
	if v.Until == 0 {
		return fmt.Sprintf("%d+", v.Since)
	}
	return fmt.Sprintf("%d-%d", v.Since, v.Until)
}

// versions turns ascending since-versions into contiguous ranges, the last open.
func versions(since ...int) []VersionInfo {
	out := make([]VersionInfo, len(since))
	for i, s := range since {
		out[i] = VersionInfo{Since: s}
		if i+1 < len(since) {
			out[i].Until = since[i+1] - 1
		}
	}
	return out
}

// AttributeInfo declares one attribute an operator accepts.
type AttributeInfo struct {
	Name     string
	Types    []AttributeType
	Required bool
}

// IOInfo declares one input or output slot.
//
// A variadic slot must be last and absorbs every remaining position; it
// requires at least MinArity values. Optional slots may be omitted or bound to
// the empty name.
type IOInfo struct {
	Index    int
	Name     string
	Types    []tensor.DataType
	Optional bool
	Variadic bool
	MinArity int
	Scalar   bool
}

// Accepts reports whether dt satisfies the slot's type constraint.
func (io IOInfo) Accepts(dt tensor.DataType) bool {
	return len(io.Types) == 0 || slices.Contains(io.Types, dt)
}

// Info is the declared contract of one operator version.
type Info struct {
	Name       string
	Domain     string
	Version    VersionInfo
	Attributes []AttributeInfo
	Inputs     []IOInfo
	Outputs    []IOInfo

	// OpenAttributes disables attribute name checks (custom operators).
	OpenAttributes bool
}

// Validate checks node against the declared attribute schema and arity.
// It runs once, when the operator is constructed.
func (info *Info) Validate(node *Node) error {
	fail := func(format string, args ...any) error {
		return &ContractError{OpType: node.OpType, Node: node.Name, Reason: fmt.Sprintf(format, args...)}
	}

	seen := make(map[string]bool, len(node.Attributes))
	for i := range node.Attributes {
		attr := &node.Attributes[i]
		if seen[attr.Name] {
			return fail("duplicate attribute %q", attr.Name)
		}
		seen[attr.Name] = true
		if info.OpenAttributes {
			continue
		}
		ai := info.attribute(attr.Name)
		if ai == nil {
			return fail("unknown attribute %q", attr.Name)
		}
		if len(ai.Types) > 0 && !slices.Contains(ai.Types, attr.Type) {
			return fail("attribute %q has type %s, expected one of %v", attr.Name, attr.Type, ai.Types)
		}
	}
	for _, ai := range info.Attributes {
		if ai.Required && !seen[ai.Name] {
			return fail("missing required attribute %q", ai.Name)
		}
	}

	if err := checkArity(info.Inputs, node.Inputs); err != nil {
		return fail("inputs: %v", err)
	}
	if err := checkArity(info.Outputs, node.Outputs); err != nil {
		return fail("outputs: %v", err)
	}
	return nil
}

func (info *Info) attribute(name string) *AttributeInfo {
	for i := range info.Attributes {
		if info.Attributes[i].Name == name {
			return &info.Attributes[i]
		}
	}
	return nil
}

func checkArity(slots []IOInfo, names []string) error {
	for i, slot := range slots {
		if slot.Variadic {
			bound := 0
			for _, n := range names[min(i, len(names)):] {
				if n != "" {
					bound++
				}
			}
			if bound < slot.MinArity {
				return fmt.Errorf("variadic %q needs at least %d values, got %d", slot.Name, slot.MinArity, bound)
			}
			return nil
		}
		if !slot.Optional && (i >= len(names) || names[i] == "") {
			return fmt.Errorf("required %q (position %d) is missing", slot.Name, i)
		}
	}
	if len(names) > len(slots) {
		return fmt.Errorf("expected at most %d, got %d", len(slots), len(names))
	}
	return nil
}

// slot returns the declaration governing position i, if any.
func slot(slots []IOInfo, i int) (IOInfo, bool) {
	for _, s := range slots {
		if s.Index == i || (s.Variadic && i >= s.Index) {
			return s, true
		}
	}
	return IOInfo{}, false
}

// CheckTypes verifies the runtime element types of bound inputs.
func (info *Info) CheckTypes(node *Node, inputs []*tensor.Tensor) error {
	for i, in := range inputs {
		if in == nil {
			continue
		}
		s, ok := slot(info.Inputs, i)
		if !ok {
			continue
		}
		name := s.Name
		if i < len(node.Inputs) {
			name = node.Inputs[i]
		}
		if !s.Accepts(in.DType()) {
			return &TypeError{OpType: node.OpType, Node: node.Name, Input: name, Type: in.DType()}
		}
		if s.Scalar && in.NumElements() != 1 {
			return &TypeError{OpType: node.OpType, Node: node.Name, Input: name, Type: in.DType(),
				Reason: fmt.Sprintf("expected a single element, got shape %v", in.Shape())}
		}
	}
	return nil
}

// Element type groups used by the built-in contracts.
var (
	floatTypes    = []tensor.DataType{tensor.Float16, tensor.Float32, tensor.Float64}
	signedTypes   = []tensor.DataType{tensor.Int8, tensor.Int16, tensor.Int32, tensor.Int64}
	unsignedTypes = []tensor.DataType{tensor.Uint8, tensor.Uint16, tensor.Uint32, tensor.Uint64}
	intTypes      = slices.Concat(signedTypes, unsignedTypes)
	numericTypes  = slices.Concat(floatTypes, intTypes)
	allTypes      = tensor.DataTypes()
	boolTypes     = []tensor.DataType{tensor.Bool}
	int64Types    = []tensor.DataType{tensor.Int64}
	// arithmetic types exclude 8/16-bit integers before opset 13/14.
	arithTypes = []tensor.DataType{tensor.Float16, tensor.Float32, tensor.Float64,
		tensor.Int32, tensor.Int64, tensor.Uint32, tensor.Uint64}
	signedNumericTypes = slices.Concat(floatTypes, signedTypes)
	compareTypes       = numericTypes
	equalTypes         = slices.Concat(boolTypes, intTypes, floatTypes)
)
