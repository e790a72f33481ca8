// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the tensors exchanged with onnxrun models.
//
// A Tensor holds a shape, a data type and either an arena-backed numeric
// buffer or a slice of strings. Tensors created by callers with FromSlice or
// Scalar are detached: no arena owns them and the runtime never recycles
// their buffers. Tensors returned by a model run are detached as well and
// stay valid after later runs.
//
// # Example
//
//	x := tensor.MustFromSlice([]float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	m := tensor.Scalar(int64(5))
//	fmt.Println(x.Shape(), x.DType(), m.Int64s())
//
// # Data Types
//
// Float32, Float64, Float16, Int8, Int16, Int32, Int64, Uint8, Uint16,
// Uint32, Uint64, Bool and String. Float16 elements are stored as
// IEEE 754 half precision values.
package tensor
