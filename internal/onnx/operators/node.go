package operators

import (
	"github.com/born-ml/onnxrun/internal/tensor"
)

// AttributeType mirrors AttributeProto.AttributeType.
type AttributeType int32

// Attribute kinds.
const (
	AttrUndefined AttributeType = 0
	AttrFloat     AttributeType = 1
	AttrInt       AttributeType = 2
	AttrString    AttributeType = 3
	AttrTensor    AttributeType = 4
	AttrGraph     AttributeType = 5
	AttrFloats    AttributeType = 6
	AttrInts      AttributeType = 7
	AttrStrings   AttributeType = 8
	AttrTensors   AttributeType = 9
	AttrGraphs    AttributeType = 10
)

func (t AttributeType) String() string {
	switch t {
	case AttrFloat:
		return "FLOAT"
	case AttrInt:
		return "INT"
	case AttrString:
		return "STRING"
	case AttrTensor:
		return "TENSOR"
	case AttrGraph:
		return "GRAPH"
	case AttrFloats:
		return "FLOATS"
	case AttrInts:
		return "INTS"
	case AttrStrings:
		return "STRINGS"
	case AttrTensors:
		return "TENSORS"
	case AttrGraphs:
		return "GRAPHS"
	default:
		return "UNDEFINED"
	}
}

// Node represents an ONNX operation node.
// This is a local copy of the relevant fields from onnx.NodeProto
// to avoid import cycles between onnx and operators packages.
type Node struct {
	Name       string      // Node name (optional)
	OpType     string      // Operation type (e.g., "Add", "Loop")
	Inputs     []string    // Input tensor names; "" marks an omitted optional input
	Outputs    []string    // Output tensor names
	Attributes []Attribute // Operation attributes
	Domain     string      // Custom domain (empty for default)
}

// Attribute represents a node attribute.
// Graph-valued attributes hold already compiled subgraphs.
type Attribute struct {
	Name    string        // Attribute name
	Type    AttributeType // Attribute type
	F       float32       // FLOAT value
	I       int64         // INT value
	S       []byte        // STRING value
	T       *tensor.Tensor
	G       Subgraph
	Floats  []float32 // FLOATS array
	Ints    []int64   // INTS array
	Strings [][]byte  // STRINGS array
	Tensors []*tensor.Tensor
	Graphs  []Subgraph
}

// Attr returns the named attribute, or nil.
func (n *Node) Attr(name string) *Attribute {
	for i := range n.Attributes {
		if n.Attributes[i].Name == name {
			return &n.Attributes[i]
		}
	}
	return nil
}

// HasInput reports whether input i is bound to a value.
func (n *Node) HasInput(i int) bool {
	return i < len(n.Inputs) && n.Inputs[i] != ""
}

// GetAttrInt returns an integer attribute or default value.
func GetAttrInt(node *Node, name string, defaultVal int64) int64 {
	if a := node.Attr(name); a != nil {
		return a.I
	}
	return defaultVal
}

// GetAttrInts returns an integer array attribute.
func GetAttrInts(node *Node, name string) []int64 {
	if a := node.Attr(name); a != nil {
		return a.Ints
	}
	return nil
}

// GetAttrFloat returns a float attribute or default value.
func GetAttrFloat(node *Node, name string, defaultVal float32) float32 {
	if a := node.Attr(name); a != nil {
		return a.F
	}
	return defaultVal
}

// GetAttrString returns a string attribute or default value.
func GetAttrString(node *Node, name, defaultVal string) string {
	if a := node.Attr(name); a != nil {
		return string(a.S)
	}
	return defaultVal
}

// GetAttrGraph returns a graph attribute, or nil.
func GetAttrGraph(node *Node, name string) Subgraph {
	if a := node.Attr(name); a != nil {
		return a.G
	}
	return nil
}
