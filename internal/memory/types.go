// Package memory implements the context-scoped buffer arena used by the graph runtime.
//
// Buffers are typed primitive arrays grouped by element type and exact length
// (size class). Each size class keeps two FIFO queues per operator context:
// buffers checked out by that context and buffers available for reuse.
// Operator contexts form a dot-joined path (for example "main.Loop_0.body.Add_1")
// maintained by Enter/Exit around every node invocation.
//
// An Arena is not safe for concurrent use. Each graph-execution session owns
// its own Arena.
package memory

import (
	"github.com/x448/float16"
)

// Type is the closed set of numeric element kinds the arena can pool.
type Type int

// Supported element kinds.
const (
	Float32 Type = iota
	Float64
	Float16
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Bool

	numTypes int = iota
)

// Types returns every element kind in declaration order.
func Types() []Type {
	out := make([]Type, numTypes)
	for i := range out {
		out[i] = Type(i)
	}
	return out
}

// Valid reports whether t is one of the known element kinds.
func (t Type) Valid() bool {
	return t >= 0 && int(t) < numTypes
}

// Size returns the byte size of one element.
func (t Type) Size() int {
	switch t {
	case Float64, Int64, Uint64:
		return 8
	case Float32, Int32, Uint32:
		return 4
	case Float16, Int16, Uint16:
		return 2
	case Int8, Uint8, Bool:
		return 1
	default:
		panic("unknown element type")
	}
}

// String returns a human-readable name for the element kind.
func (t Type) String() string {
	switch t {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Float16:
		return "float16"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// Element is the set of Go types backing the element kinds.
type Element interface {
	float32 | float64 | float16.Float16 |
		int8 | int16 | int32 | int64 |
		uint8 | uint16 | uint32 | uint64 |
		bool
}

// TypeOf returns the element kind for a Go element type.
func TypeOf[T Element]() Type {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case float16.Float16:
		return Float16
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case bool:
		return Bool
	default:
		panic("unsupported element type")
	}
}

// Marker tracks where a pooled buffer currently is in its lifecycle.
type Marker int

// Buffer usage markers.
const (
	// Unused buffers sit in an available queue.
	Unused Marker = iota
	// Used buffers are checked out by the context that acquired them.
	Used
	// ContextOutput buffers are results of a finished context, kept for the parent.
	ContextOutput
	// GlobalOutput buffers are final graph outputs, handed to the caller.
	GlobalOutput
)

// String returns the marker name.
func (m Marker) String() string {
	switch m {
	case Unused:
		return "unused"
	case Used:
		return "used"
	case ContextOutput:
		return "context-output"
	case GlobalOutput:
		return "global-output"
	default:
		return "unknown"
	}
}
