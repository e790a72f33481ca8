package memory

import (
	"fmt"

	"github.com/x448/float16"
)

// Array is a host tensor-array primitive: a fixed-length typed buffer.
//
// Hosts may store elements however they like; the arena only needs to reset
// and close arrays, while kernels read and write elements either through the
// typed accessors or, when the host exposes one, a Go slice (see Data).
type Array interface {
	Type() Type
	Len() int

	Float64(i int) float64
	SetFloat64(i int, v float64)
	Int64(i int) int64
	SetInt64(i int, v int64)

	// Reset restores every element to its neutral (zero) value.
	Reset()
	// Close releases host resources. The array must not be used afterwards.
	Close()
}

// Slicer is implemented by arrays that expose their storage as a Go slice.
type Slicer[T Element] interface {
	Slice() []T
}

// Host allocates arrays for one execution environment.
type Host interface {
	Name() string
	Allocate(t Type, size int) Array
}

// Native is the default host backed by Go slices.
var Native Host = nativeHost{}

type nativeHost struct{}

func (nativeHost) Name() string { return "native" }

func (nativeHost) Allocate(t Type, size int) Array {
	switch t {
	case Float32:
		return newNative[float32](t, size)
	case Float64:
		return newNative[float64](t, size)
	case Float16:
		return newNative[float16.Float16](t, size)
	case Int8:
		return newNative[int8](t, size)
	case Int16:
		return newNative[int16](t, size)
	case Int32:
		return newNative[int32](t, size)
	case Int64:
		return newNative[int64](t, size)
	case Uint8:
		return newNative[uint8](t, size)
	case Uint16:
		return newNative[uint16](t, size)
	case Uint32:
		return newNative[uint32](t, size)
	case Uint64:
		return newNative[uint64](t, size)
	case Bool:
		return newNative[bool](t, size)
	default:
		panic(&InvariantError{Op: "allocate", Reason: fmt.Sprintf("unknown element type %d", int(t))})
	}
}

// nativeArray stores elements in a Go slice.
type nativeArray[T Element] struct {
	typ  Type
	data []T
}

func newNative[T Element](t Type, size int) *nativeArray[T] {
	return &nativeArray[T]{typ: t, data: make([]T, size)}
}

// Wrap builds an array over an existing slice without copying.
func Wrap[T Element](data []T) Array {
	return &nativeArray[T]{typ: TypeOf[T](), data: data}
}

func (a *nativeArray[T]) Type() Type { return a.typ }
func (a *nativeArray[T]) Len() int    { return len(a.data) }
func (a *nativeArray[T]) Slice() []T { return a.data }
func (a *nativeArray[T]) Close()     { a.data = nil }
func (a *nativeArray[T]) Reset()     { clear(a.data) }
func (a *nativeArray[T]) String() string {
	return fmt.Sprintf("%s[%d]", a.typ, len(a.data))
}

func (a *nativeArray[T]) Float64(i int) float64       { return toFloat64(a.data[i]) }
func (a *nativeArray[T]) SetFloat64(i int, v float64) { a.data[i] = fromFloat64[T](v) }
func (a *nativeArray[T]) Int64(i int) int64           { return toInt64(a.data[i]) }
func (a *nativeArray[T]) SetInt64(i int, v int64)     { a.data[i] = fromInt64[T](v) }

// Data returns the Go slice backing a, panicking if the array holds a
// different element type or its host does not expose slices.
func Data[T Element](a Array) []T {
	s, ok := a.(Slicer[T])
	if !ok {
		var zero T
		panic(fmt.Sprintf("array of %s cannot be viewed as []%T", a.Type(), zero))
	}
	return s.Slice()
}

// CopyInto copies every element of src into dst starting at offset.
// Both arrays must hold the same element type.
func CopyInto(dst Array, offset int, src Array) {
	CopyRange(dst, offset, src, 0, src.Len())
}

// CopyRange copies n elements of src starting at srcOff into dst at dstOff.
func CopyRange(dst Array, dstOff int, src Array, srcOff, n int) {
	if dst.Type() != src.Type() {
		panic(fmt.Sprintf("copy between %s and %s", src.Type(), dst.Type()))
	}
	switch src.Type() {
	case Float32:
		copyTyped[float32](dst, dstOff, src, srcOff, n)
	case Float64:
		copyTyped[float64](dst, dstOff, src, srcOff, n)
	case Float16:
		copyTyped[float16.Float16](dst, dstOff, src, srcOff, n)
	case Int8:
		copyTyped[int8](dst, dstOff, src, srcOff, n)
	case Int16:
		copyTyped[int16](dst, dstOff, src, srcOff, n)
	case Int32:
		copyTyped[int32](dst, dstOff, src, srcOff, n)
	case Int64:
		copyTyped[int64](dst, dstOff, src, srcOff, n)
	case Uint8:
		copyTyped[uint8](dst, dstOff, src, srcOff, n)
	case Uint16:
		copyTyped[uint16](dst, dstOff, src, srcOff, n)
	case Uint32:
		copyTyped[uint32](dst, dstOff, src, srcOff, n)
	case Uint64:
		copyTyped[uint64](dst, dstOff, src, srcOff, n)
	case Bool:
		copyTyped[bool](dst, dstOff, src, srcOff, n)
	}
}

func copyTyped[T Element](dst Array, dstOff int, src Array, srcOff, n int) {
	d, dok := dst.(Slicer[T])
	s, sok := src.(Slicer[T])
	if dok && sok {
		copy(d.Slice()[dstOff:dstOff+n], s.Slice()[srcOff:srcOff+n])
		return
	}
	// Hosts without slice access fall back to element accessors.
	switch src.Type() {
	case Float32, Float64, Float16:
		for i := 0; i < n; i++ {
			dst.SetFloat64(dstOff+i, src.Float64(srcOff+i))
		}
	default:
		for i := 0; i < n; i++ {
			dst.SetInt64(dstOff+i, src.Int64(srcOff+i))
		}
	}
}

func toFloat64[T Element](v T) float64 {
	switch x := any(v).(type) {
	case float32:
		return float64(x)
	case float64:
		return x
	case float16.Float16:
		return float64(x.Float32())
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	}
	return 0
}

func fromFloat64[T Element](v float64) T {
	var out T
	switch p := any(&out).(type) {
	case *float32:
		*p = float32(v)
	case *float64:
		*p = v
	case *float16.Float16:
		*p = float16.Fromfloat32(float32(v))
	case *int8:
		*p = int8(v)
	case *int16:
		*p = int16(v)
	case *int32:
		*p = int32(v)
	case *int64:
		*p = int64(v)
	case *uint8:
		*p = uint8(v)
	case *uint16:
		*p = uint16(v)
	case *uint32:
		*p = uint32(v)
	case *uint64:
		*p = uint64(v)
	case *bool:
		*p = v != 0
	}
	return out
}

func toInt64[T Element](v T) int64 {
	switch x := any(v).(type) {
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x) //nolint:gosec // G115: wraps like a C cast, matching ONNX Cast.
	case bool:
		if x {
			return 1
		}
		return 0
	}
	return int64(toFloat64(v))
}

func fromInt64[T Element](v int64) T {
	var out T
	switch p := any(&out).(type) {
	case *int8:
		*p = int8(v) //nolint:gosec // G115: truncating conversion is the intended semantics.
	case *int16:
		*p = int16(v) //nolint:gosec // G115: truncating conversion is the intended semantics.
	case *int32:
		*p = int32(v) //nolint:gosec // G115: truncating conversion is the intended semantics.
	case *int64:
		*p = v
	case *uint8:
		*p = uint8(v) //nolint:gosec // G115: truncating conversion is the intended semantics.
	case *uint16:
		*p = uint16(v) //nolint:gosec // G115: truncating conversion is the intended semantics.
	case *uint32:
		*p = uint32(v) //nolint:gosec // G115: truncating conversion is the intended semantics.
	case *uint64:
		*p = uint64(v) //nolint:gosec // G115: truncating conversion is the intended semantics.
	case *bool:
		*p = v != 0
	default:
		return fromFloat64[T](float64(v))
	}
	return out
}
