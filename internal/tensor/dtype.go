// Package tensor provides the tensor type exchanged between the graph runtime,
// its operators and callers.
package tensor

import (
	"fmt"
	"strings"

	"github.com/born-ml/onnxrun/internal/memory"
)

// DataType represents runtime type information for tensors.
type DataType int

// Supported data types for tensors.
const (
	Float32 DataType = iota
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
	String
)

var dataTypeInfo = [...]struct {
	name  string
	onnx  int32
	array memory.Type
}{
	Float32: {"float32", 1, memory.Float32},
	Float64: {"float64", 11, memory.Float64},
	Float16: {"float16", 10, memory.Float16},
	Int8:    {"int8", 3, memory.Int8},
	Int16:   {"int16", 5, memory.Int16},
	Int32:   {"int32", 6, memory.Int32},
	Int64:   {"int64", 7, memory.Int64},
	Uint8:   {"uint8", 2, memory.Uint8},
	Uint16:  {"uint16", 4, memory.Uint16},
	Uint32:  {"uint32", 12, memory.Uint32},
	Uint64:  {"uint64", 13, memory.Uint64},
	Bool:    {"bool", 9, memory.Bool},
	String:  {"string", 8, -1},
}

// DataTypes returns every supported data type.
func DataTypes() []DataType {
	out := make([]DataType, len(dataTypeInfo))
	for i := range out {
		out[i] = DataType(i)
	}
	return out
}

// Valid reports whether dt is a known data type.
func (dt DataType) Valid() bool {
	return dt >= 0 && int(dt) < len(dataTypeInfo)
}

// Numeric reports whether dt is backed by an arena buffer.
func (dt DataType) Numeric() bool {
	return dt.Valid() && dt != String
}

// Float reports whether dt is a floating point type.
func (dt DataType) Float() bool {
	return dt == Float32 || dt == Float64 || dt == Float16
}

// Size returns the byte size of the data type. Strings have no fixed size.
func (dt DataType) Size() int {
	if !dt.Numeric() {
		return 0
	}
	return dt.ArrayType().Size()
}

// ArrayType returns the arena element kind backing dt.
// It panics for String, which is not pooled.
func (dt DataType) ArrayType() memory.Type {
	if !dt.Numeric() {
		panic(fmt.Sprintf("data type %s has no array representation", dt))
	}
	return dataTypeInfo[dt].array
}

// ONNX returns the TensorProto.DataType code.
func (dt DataType) ONNX() int32 {
	if !dt.Valid() {
		return 0
	}
	return dataTypeInfo[dt].onnx
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	if !dt.Valid() {
		return "unknown"
	}
	return dataTypeInfo[dt].name
}

// FromArrayType maps an arena element kind back to its data type.
func FromArrayType(t memory.Type) DataType {
	for i, info := range dataTypeInfo {
		if info.array == t && DataType(i) != String {
			return DataType(i)
		}
	}
	panic(fmt.Sprintf("unknown array type %s", t))
}

// FromONNX maps a TensorProto.DataType code to a data type.
func FromONNX(code int32) (DataType, error) {
	for i, info := range dataTypeInfo {
		if info.onnx == code {
			return DataType(i), nil
		}
	}
	return 0, fmt.Errorf("unsupported ONNX data type %d", code)
}

// ParseDataType parses a data type name such as "float32" or "int64".
// The ONNX spellings "float", "double" and "half" are accepted too.
func ParseDataType(s string) (DataType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "float":
		return Float32, nil
	case "double":
		return Float64, nil
	case "half":
		return Float16, nil
	}
	for i, info := range dataTypeInfo {
		if info.name == name {
			return DataType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown data type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (dt DataType) MarshalText() ([]byte, error) {
	if !dt.Valid() {
		return nil, fmt.Errorf("invalid data type %d", int(dt))
	}
	return []byte(dt.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (dt *DataType) UnmarshalText(b []byte) error {
	v, err := ParseDataType(string(b))
	if err != nil {
		return err
	}
	*dt = v
	return nil
}
