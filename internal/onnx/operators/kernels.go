package operators

import (
	"fmt"

	"github.com/born-ml/onnxrun/internal/memory"
	"github.com/born-ml/onnxrun/internal/parallel"
	"github.com/born-ml/onnxrun/internal/tensor"
)

// Elementwise kernels go through memory.Array accessors, so they work on any
// host. Floating point types compute in float64, integer and bool types in
// int64.

type unaryKernel struct {
	float func(x float64) float64
	int   func(x int64) int64
}

func unary(ctx *Context, op string, x *tensor.Tensor, k unaryKernel) (*tensor.Tensor, error) {
	isFloat := x.DType().Float()
	if (isFloat && k.float == nil) || (!isFloat && k.int == nil) {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrUnsupportedType, x.DType())
	}
	out, err := tensor.New(ctx.Arena, x.DType(), x.Shape())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	in, dst := x.Array(), out.Array()
	if isFloat {
		parallel.For(x.NumElements(), func(i int) {
			dst.SetFloat64(i, k.float(in.Float64(i)))
		}, ctx.parallelConfig())
	} else {
		parallel.For(x.NumElements(), func(i int) {
			dst.SetInt64(i, k.int(in.Int64(i)))
		}, ctx.parallelConfig())
	}
	return out, nil
}

// broadcast allocates the broadcast result of a and b and calls kernel with
// the flat output index and the matching flat input indices.
func broadcast(ctx *Context, op string, a, b *tensor.Tensor, dtype tensor.DataType,
	kernel func(dst memory.Array, o, ia, ib int),
) (*tensor.Tensor, error) {
	shape, needs, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	out, err := tensor.New(ctx.Arena, dtype, shape)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	dst := out.Array()
	n := shape.NumElements()
	cfg := ctx.parallelConfig()
	if !needs {
		parallel.For(n, func(i int) { kernel(dst, i, i, i) }, cfg)
		return out, nil
	}

	outStrides := shape.ComputeStrides()
	aShape, bShape := a.Shape(), b.Shape()
	aStrides, bStrides := aShape.ComputeStrides(), bShape.ComputeStrides()
	parallel.For(n, func(i int) {
		kernel(dst, i,
			tensor.BroadcastIndex(i, shape, outStrides, aShape, aStrides),
			tensor.BroadcastIndex(i, shape, outStrides, bShape, bStrides))
	}, cfg)
	return out, nil
}

type binaryKernel struct {
	float func(a, b float64) float64
	int   func(a, b int64) int64
}

func binary(ctx *Context, op string, a, b *tensor.Tensor, k binaryKernel) (*tensor.Tensor, error) {
	if a.DType() != b.DType() {
		return nil, fmt.Errorf("%s: mismatched element types %s and %s", op, a.DType(), b.DType())
	}
	x, y := a.Array(), b.Array()
	if a.DType().Float() {
		return broadcast(ctx, op, a, b, a.DType(), func(dst memory.Array, o, ia, ib int) {
			dst.SetFloat64(o, k.float(x.Float64(ia), y.Float64(ib)))
		})
	}
	return broadcast(ctx, op, a, b, a.DType(), func(dst memory.Array, o, ia, ib int) {
		dst.SetInt64(o, k.int(x.Int64(ia), y.Int64(ib)))
	})
}

type compareKernel struct {
	float func(a, b float64) bool
	int   func(a, b int64) bool
}

func compare(ctx *Context, op string, a, b *tensor.Tensor, k compareKernel) (*tensor.Tensor, error) {
	if a.DType() != b.DType() {
		return nil, fmt.Errorf("%s: mismatched element types %s and %s", op, a.DType(), b.DType())
	}
	x, y := a.Array(), b.Array()
	if a.DType().Float() {
		return broadcast(ctx, op, a, b, tensor.Bool, func(dst memory.Array, o, ia, ib int) {
			dst.SetInt64(o, boolInt(k.float(x.Float64(ia), y.Float64(ib))))
		})
	}
	return broadcast(ctx, op, a, b, tensor.Bool, func(dst memory.Array, o, ia, ib int) {
		dst.SetInt64(o, boolInt(k.int(x.Int64(ia), y.Int64(ib))))
	})
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// int64Tensor builds a tensor of int64 values under the current arena context.
func int64Tensor(ctx *Context, values []int64, shape tensor.Shape) (*tensor.Tensor, error) {
	out, err := tensor.New(ctx.Arena, tensor.Int64, shape)
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		out.SetInt64At(i, v)
	}
	return out, nil
}
