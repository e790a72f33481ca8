package tensor

import (
	"fmt"
	"slices"

	"github.com/born-ml/onnxrun/internal/memory"
)

// New creates a zero-valued tensor of the given type and shape.
//
// Numeric buffers come from arena under its current context; a nil arena
// allocates a detached buffer from the native host instead.
func New(arena *memory.Arena, dtype DataType, shape Shape) (*Tensor, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("invalid data type %d", int(dtype))
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	t := &Tensor{shape: shape.Clone(), dtype: dtype}
	n := shape.NumElements()
	switch {
	case dtype == String:
		t.strs = make([]string, n)
	case arena == nil:
		t.buf = memory.Detached(memory.Native.Allocate(dtype.ArrayType(), n))
	default:
		t.buf = arena.Acquire(dtype.ArrayType(), n)
	}
	return t, nil
}

// NewN creates count zero-valued tensors of one type and shape. With an
// arena the buffers are checked out together.
func NewN(arena *memory.Arena, dtype DataType, shape Shape, count int) ([]*Tensor, error) {
	if count < 0 {
		return nil, fmt.Errorf("negative tensor count %d", count)
	}
	if arena == nil || dtype == String {
		out := make([]*Tensor, count)
		for i := range out {
			t, err := New(arena, dtype, shape)
			if err != nil {
				return nil, err
			}
			out[i] = t
		}
		return out, nil
	}
	if !dtype.Valid() {
		return nil, fmt.Errorf("invalid data type %d", int(dtype))
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	bufs := arena.AcquireN(dtype.ArrayType(), shape.NumElements(), count)
	out := make([]*Tensor, count)
	for i, buf := range bufs {
		out[i] = &Tensor{shape: shape.Clone(), dtype: dtype, buf: buf}
	}
	return out, nil
}

// MustNew is like New but panics on error.
func MustNew(arena *memory.Arena, dtype DataType, shape Shape) *Tensor {
	t, err := New(arena, dtype, shape)
	if err != nil {
		panic(err)
	}
	return t
}

// FromSlice creates a detached tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice[T memory.Element](data []T, shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	arr := memory.Wrap(slices.Clone(data))
	return &Tensor{
		shape: shape.Clone(),
		dtype: FromArrayType(arr.Type()),
		buf:   memory.Detached(arr),
	}, nil
}

// MustFromSlice is like FromSlice but panics on error.
func MustFromSlice[T memory.Element](data []T, shape Shape) *Tensor {
	t, err := FromSlice(data, shape)
	if err != nil {
		panic(err)
	}
	return t
}

// FromStrings creates a string tensor. The slice is not copied.
func FromStrings(data []string, shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	return &Tensor{shape: shape.Clone(), dtype: String, strs: data}, nil
}

// Scalar creates a detached rank-0 tensor holding v.
func Scalar[T memory.Element](v T) *Tensor {
	return MustFromSlice([]T{v}, Shape{})
}

// FromArray wraps an existing container as a tensor of the given shape.
func FromArray(c *memory.Container, shape Shape) (*Tensor, error) {
	if shape.NumElements() != c.Len() {
		return nil, fmt.Errorf("shape %v requires %d elements, but buffer holds %d", shape, shape.NumElements(), c.Len())
	}
	return &Tensor{shape: shape.Clone(), dtype: FromArrayType(c.Type()), buf: c}, nil
}
