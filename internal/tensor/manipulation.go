package tensor

import (
	"fmt"
	"slices"

	"github.com/born-ml/onnxrun/internal/memory"
)

// Stack joins equally shaped tensors along a new leading axis.
//
// For N inputs of shape S the result has shape (N, *S) with the inputs laid
// out in order. The buffer comes from arena (detached when arena is nil).
//
// Example:
//
//	a := tensor.MustFromSlice([]float32{1, 2}, Shape{2})
//	b := tensor.MustFromSlice([]float32{3, 4}, Shape{2})
//	s, _ := tensor.Stack(nil, []*Tensor{a, b}) // Shape: [2, 2]
func Stack(arena *memory.Arena, tensors []*Tensor) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("stack: at least one tensor required")
	}
	first := tensors[0]
	for i, t := range tensors[1:] {
		if t.dtype != first.dtype {
			return nil, fmt.Errorf("stack: tensor %d has type %s, expected %s", i+1, t.dtype, first.dtype)
		}
		if !t.shape.Equal(first.shape) {
			return nil, fmt.Errorf("stack: tensor %d has shape %v, expected %v", i+1, t.shape, first.shape)
		}
	}

	shape := append(Shape{len(tensors)}, first.shape...)
	if first.dtype == String {
		strs := make([]string, 0, shape.NumElements())
		for _, t := range tensors {
			strs = append(strs, t.strs...)
		}
		return FromStrings(strs, shape)
	}

	out, err := New(arena, first.dtype, shape)
	if err != nil {
		return nil, err
	}
	step := first.NumElements()
	for i, t := range tensors {
		memory.CopyRange(out.Array(), i*step, t.Array(), 0, step)
	}
	return out, nil
}

// Concat joins tensors along an existing axis.
//
// All tensors must have the same shape except along the concatenation axis.
// Supports negative axis indexing (-1 = last dimension).
func Concat(arena *memory.Arena, tensors []*Tensor, axis int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, fmt.Errorf("concat: at least one tensor required")
	}
	first := tensors[0]
	rank := first.Rank()
	axis, err := NormalizeAxis(axis, rank)
	if err != nil {
		return nil, fmt.Errorf("concat: %w", err)
	}

	shape := first.shape.Clone()
	shape[axis] = 0
	for i, t := range tensors {
		if t.dtype != first.dtype {
			return nil, fmt.Errorf("concat: tensor %d has type %s, expected %s", i, t.dtype, first.dtype)
		}
		if t.Rank() != rank {
			return nil, fmt.Errorf("concat: tensor %d has rank %d, expected %d", i, t.Rank(), rank)
		}
		for d := range rank {
			if d != axis && t.shape[d] != first.shape[d] {
				return nil, fmt.Errorf("concat: tensor %d has shape %v, incompatible with %v on axis %d", i, t.shape, first.shape, axis)
			}
		}
		shape[axis] += t.shape[axis]
	}

	outer := Shape(first.shape[:axis]).NumElements()
	if first.dtype == String {
		strs := make([]string, 0, shape.NumElements())
		for o := range outer {
			for _, t := range tensors {
				inner := Shape(t.shape[axis:]).NumElements()
				strs = append(strs, t.strs[o*inner:(o+1)*inner]...)
			}
		}
		return FromStrings(strs, shape)
	}

	out, err := New(arena, first.dtype, shape)
	if err != nil {
		return nil, err
	}
	offset := 0
	for o := range outer {
		for _, t := range tensors {
			inner := Shape(t.shape[axis:]).NumElements()
			memory.CopyRange(out.Array(), offset, t.Array(), o*inner, inner)
			offset += inner
		}
	}
	return out, nil
}

// Split cuts t along axis into consecutive parts of the given sizes, which
// must sum to the axis length. Equal parts share one batched acquisition.
func Split(arena *memory.Arena, t *Tensor, axis int, sizes []int) ([]*Tensor, error) {
	axis, err := NormalizeAxis(axis, t.Rank())
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("split: at least one part required")
	}
	total, equal := 0, true
	for i, n := range sizes {
		if n < 0 {
			return nil, fmt.Errorf("split: part %d has negative size %d", i, n)
		}
		total += n
		equal = equal && n == sizes[0]
	}
	if dim := t.shape[axis]; total != dim {
		return nil, fmt.Errorf("split: sizes %v do not sum to dimension %d of %v", sizes, dim, t.shape)
	}

	shapes := make([]Shape, len(sizes))
	for i, n := range sizes {
		shapes[i] = t.shape.Clone()
		shapes[i][axis] = n
	}
	var parts []*Tensor
	if equal {
		parts, err = NewN(arena, t.dtype, shapes[0], len(sizes))
	} else {
		parts = make([]*Tensor, len(sizes))
		for i := range parts {
			if parts[i], err = New(arena, t.dtype, shapes[i]); err != nil {
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}

	outer := Shape(t.shape[:axis]).NumElements()
	inner := Shape(t.shape[axis+1:]).NumElements()
	stride := t.shape[axis] * inner
	start := 0
	for i, part := range parts {
		chunk := sizes[i] * inner
		for o := range outer {
			src := o*stride + start*inner
			if t.dtype == String {
				copy(part.strs[o*chunk:], t.strs[src:src+chunk])
			} else {
				memory.CopyRange(part.Array(), o*chunk, t.Array(), src, chunk)
			}
		}
		start += sizes[i]
	}
	return parts, nil
}

// UnsqueezeShape inserts size-1 dimensions at the given output axes.
// Axes may be negative and refer to the output rank.
func UnsqueezeShape(shape Shape, axes []int64) (Shape, error) {
	rank := len(shape) + len(axes)
	insert := make([]bool, rank)
	for _, a := range axes {
		axis, err := NormalizeAxis(int(a), rank)
		if err != nil {
			return nil, fmt.Errorf("unsqueeze: %w", err)
		}
		if insert[axis] {
			return nil, fmt.Errorf("unsqueeze: duplicate axis %d", a)
		}
		insert[axis] = true
	}
	out := make(Shape, 0, rank)
	src := 0
	for d := range rank {
		if insert[d] {
			out = append(out, 1)
			continue
		}
		out = append(out, shape[src])
		src++
	}
	return out, nil
}

// ResolveReshape computes the target shape for an ONNX Reshape request.
// A 0 copies the input dimension (unless allowZero is set) and a single -1
// is inferred from the remaining elements.
func ResolveReshape(in Shape, requested []int64, allowZero bool) (Shape, error) {
	out := make(Shape, len(requested))
	infer := -1
	known := 1
	for i, d := range requested {
		switch {
		case d == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("reshape: more than one -1 in %v", requested)
			}
			infer = i
			continue
		case d == 0 && !allowZero:
			if i >= len(in) {
				return nil, fmt.Errorf("reshape: dimension %d copies from input rank %d", i, len(in))
			}
			out[i] = in[i]
		case d < 0:
			return nil, fmt.Errorf("reshape: invalid dimension %d", d)
		default:
			out[i] = int(d)
		}
		known *= out[i]
	}
	if infer >= 0 {
		if known == 0 || in.NumElements()%known != 0 {
			return nil, fmt.Errorf("reshape: cannot infer dimension for %v from %v", requested, in)
		}
		out[infer] = in.NumElements() / known
	}
	if out.NumElements() != in.NumElements() {
		return nil, fmt.Errorf("reshape: %v does not match %d elements", out, in.NumElements())
	}
	return out, nil
}

// ShapeOf returns a copy of the shape as int64 values.
func ShapeOf(t *Tensor) []int64 {
	out := make([]int64, len(t.shape))
	for i, d := range t.shape {
		out[i] = int64(d)
	}
	return out
}

// SameBuffer reports whether a and b share a backing container.
func SameBuffer(a, b *Tensor) bool {
	return a.buf != nil && a.buf == b.buf
}

// Containers returns the distinct containers behind ts, skipping strings.
func Containers(ts []*Tensor) []*memory.Container {
	var out []*memory.Container
	for _, t := range ts {
		if t == nil || t.buf == nil || slices.Contains(out, t.buf) {
			continue
		}
		out = append(out, t.buf)
	}
	return out
}
