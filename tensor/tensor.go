// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/onnxrun/internal/memory"
	"github.com/born-ml/onnxrun/internal/tensor"
)

// Tensor is an n-dimensional array of one data type.
type Tensor = tensor.Tensor

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Float16 DataType = tensor.Float16
	Int8    DataType = tensor.Int8
	Int16   DataType = tensor.Int16
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Uint16  DataType = tensor.Uint16
	Uint32  DataType = tensor.Uint32
	Uint64  DataType = tensor.Uint64
	Bool    DataType = tensor.Bool
	String  DataType = tensor.String
)

// Shape represents the dimensions of a tensor.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
// The empty shape is a scalar.
type Shape = tensor.Shape

// Element is the constraint for Go types that back numeric tensors.
type Element = memory.Element

// New creates a zero-valued tensor. A nil arena allocates a detached buffer.
func New(arena *Arena, dtype DataType, shape Shape) (*Tensor, error) {
	return tensor.New(arena, dtype, shape)
}

// FromSlice creates a detached tensor holding a copy of data.
//
// Example:
//
//	x, err := tensor.FromSlice([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
func FromSlice[T Element](data []T, shape Shape) (*Tensor, error) {
	return tensor.FromSlice(data, shape)
}

// MustFromSlice is like FromSlice but panics on error.
func MustFromSlice[T Element](data []T, shape Shape) *Tensor {
	return tensor.MustFromSlice(data, shape)
}

// FromStrings creates a string tensor. The slice is not copied.
func FromStrings(data []string, shape Shape) (*Tensor, error) {
	return tensor.FromStrings(data, shape)
}

// Scalar creates a detached rank-0 tensor.
//
// Example:
//
//	tripCount := tensor.Scalar(int64(10))
//	keepGoing := tensor.Scalar(true)
func Scalar[T Element](v T) *Tensor {
	return tensor.Scalar(v)
}

// Data returns the typed slice backing t. It panics if T does not match the
// tensor's data type.
func Data[T Element](t *Tensor) []T {
	return tensor.Data[T](t)
}

// ParseDataType parses a data type name such as "float32" or "int64".
func ParseDataType(s string) (DataType, error) {
	return tensor.ParseDataType(s)
}
