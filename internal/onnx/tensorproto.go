package onnx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/x448/float16"

	"github.com/born-ml/onnxrun/internal/tensor"
)

// ErrExternalData is returned for tensors whose data lives in a side file.
var ErrExternalData = errors.New("external tensor data is not supported")

// tensorFromProto converts a TensorProto into a detached tensor.
func tensorFromProto(proto *TensorProto) (*tensor.Tensor, error) {
	if proto.DataLocation == DataLocationExternal {
		return nil, fmt.Errorf("tensor %q: %w", proto.Name, ErrExternalData)
	}
	dtype, err := tensor.FromONNX(proto.DataType)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", proto.Name, err)
	}
	shape := make(tensor.Shape, len(proto.Dims))
	for i, dim := range proto.Dims {
		if dim < 0 || dim > math.MaxInt32 {
			return nil, fmt.Errorf("tensor %q: invalid dimension %d", proto.Name, dim)
		}
		shape[i] = int(dim)
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("tensor %q: %w", proto.Name, err)
	}
	n := shape.NumElements()

	if dtype == tensor.String {
		if len(proto.StringData) != n {
			return nil, fmt.Errorf("tensor %q: %d strings for shape %v", proto.Name, len(proto.StringData), shape)
		}
		strs := make([]string, n)
		for i, s := range proto.StringData {
			strs[i] = string(s)
		}
		t, err := tensor.FromStrings(strs, shape)
		if err != nil {
			return nil, err
		}
		return t.Rename(proto.Name), nil
	}

	// Counts are checked before allocating so corrupt dims never reach the
	// allocator.
	raw := len(proto.RawData) > 0
	if raw {
		size := dtype.Size()
		if len(proto.RawData)%size != 0 || len(proto.RawData)/size != n {
			return nil, fmt.Errorf("tensor %q: raw data has %d bytes, shape %v of %s needs %d elements",
				proto.Name, len(proto.RawData), shape, dtype, n)
		}
	} else if got := typedLen(dtype, proto); got != n {
		return nil, fmt.Errorf("tensor %q: %d values for shape %v", proto.Name, got, shape)
	}

	t, err := tensor.New(nil, dtype, shape)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", proto.Name, err)
	}
	if raw {
		decodeRaw(t, proto.RawData)
	} else {
		decodeTyped(t, proto)
	}
	return t.Rename(proto.Name), nil
}

// decodeRaw fills t from little-endian raw bytes of the right length.
func decodeRaw(t *tensor.Tensor, raw []byte) {
	le := binary.LittleEndian
	switch t.DType() {
	case tensor.Float32:
		fill(tensor.Data[float32](t), raw, 4, func(b []byte) float32 { return math.Float32frombits(le.Uint32(b)) })
	case tensor.Float64:
		fill(tensor.Data[float64](t), raw, 8, func(b []byte) float64 { return math.Float64frombits(le.Uint64(b)) })
	case tensor.Float16:
		fill(tensor.Data[float16.Float16](t), raw, 2, func(b []byte) float16.Float16 { return float16.Frombits(le.Uint16(b)) })
	case tensor.Int8:
		fill(tensor.Data[int8](t), raw, 1, func(b []byte) int8 { return int8(b[0]) }) //nolint:gosec // G115: two's complement reinterpretation.
	case tensor.Int16:
		fill(tensor.Data[int16](t), raw, 2, func(b []byte) int16 { return int16(le.Uint16(b)) }) //nolint:gosec // G115
	case tensor.Int32:
		fill(tensor.Data[int32](t), raw, 4, func(b []byte) int32 { return int32(le.Uint32(b)) }) //nolint:gosec // G115
	case tensor.Int64:
		fill(tensor.Data[int64](t), raw, 8, func(b []byte) int64 { return int64(le.Uint64(b)) }) //nolint:gosec // G115
	case tensor.Uint8:
		copy(tensor.Data[uint8](t), raw)
	case tensor.Uint16:
		fill(tensor.Data[uint16](t), raw, 2, le.Uint16)
	case tensor.Uint32:
		fill(tensor.Data[uint32](t), raw, 4, le.Uint32)
	case tensor.Uint64:
		fill(tensor.Data[uint64](t), raw, 8, le.Uint64)
	case tensor.Bool:
		fill(tensor.Data[bool](t), raw, 1, func(b []byte) bool { return b[0] != 0 })
	}
}

func fill[T any](dst []T, raw []byte, size int, read func([]byte) T) {
	for i := range dst {
		dst[i] = read(raw[i*size:])
	}
}

// typedLen returns the length of the repeated field carrying dtype's values.
func typedLen(dtype tensor.DataType, proto *TensorProto) int {
	switch dtype {
	case tensor.Float32:
		return len(proto.FloatData)
	case tensor.Float64:
		return len(proto.DoubleData)
	case tensor.Int64:
		return len(proto.Int64Data)
	case tensor.Uint32, tensor.Uint64:
		return len(proto.Uint64Data)
	default:
		// float16, int32, int16, int8, uint16, uint8 and bool share int32_data.
		return len(proto.Int32Data)
	}
}

// decodeTyped fills t from the typed repeated fields. The field length was
// checked by typedLen.
func decodeTyped(t *tensor.Tensor, proto *TensorProto) {
	switch t.DType() {
	case tensor.Float32:
		copy(tensor.Data[float32](t), proto.FloatData)
	case tensor.Float64:
		copy(tensor.Data[float64](t), proto.DoubleData)
	case tensor.Int64:
		copy(tensor.Data[int64](t), proto.Int64Data)
	case tensor.Uint32, tensor.Uint64:
		arr := t.Array()
		for i, v := range proto.Uint64Data {
			arr.SetInt64(i, int64(v)) //nolint:gosec // G115: narrowed back by the array.
		}
	case tensor.Float16:
		// float16 values travel as their bit patterns.
		dst := tensor.Data[float16.Float16](t)
		for i, v := range proto.Int32Data {
			dst[i] = float16.Frombits(uint16(v)) //nolint:gosec // G115
		}
	default:
		arr := t.Array()
		for i, v := range proto.Int32Data {
			arr.SetInt64(i, int64(v))
		}
	}
}

// elemType returns the declared element type of a value, if it is a tensor
// with a known type.
func elemType(vi *ValueInfoProto) (tensor.DataType, bool) {
	if vi.Type == nil || vi.Type.TensorType == nil {
		return 0, false
	}
	dt, err := tensor.FromONNX(vi.Type.TensorType.ElemType)
	if err != nil {
		return 0, false
	}
	return dt, true
}
