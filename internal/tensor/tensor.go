package tensor

import (
	"fmt"
	"strings"

	"github.com/born-ml/onnxrun/internal/memory"
)

// Tensor is a named, shaped view over one arena buffer.
//
// Numeric tensors keep their elements in a memory.Container, which is either
// pooled by a session arena or detached (caller-owned). String tensors hold a
// plain []string and are never pooled.
//
// Several tensors may share one container (Identity, Reshape and renamed
// outputs are views); the executor tracks aliases before releasing buffers.
type Tensor struct {
	name  string
	shape Shape
	dtype DataType
	buf   *memory.Container
	strs  []string
}

// Name returns the value name the tensor is bound to, if any.
func (t *Tensor) Name() string { return t.name }

// Shape returns the tensor's shape. Callers must not modify it.
func (t *Tensor) Shape() Shape { return t.shape }

// DType returns the tensor's data type.
func (t *Tensor) DType() DataType { return t.dtype }

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int { return len(t.shape) }

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int { return t.shape.NumElements() }

// Container returns the backing buffer, or nil for string tensors.
func (t *Tensor) Container() *memory.Container { return t.buf }

// Array returns the backing host array, or nil for string tensors.
func (t *Tensor) Array() memory.Array {
	if t.buf == nil {
		return nil
	}
	return t.buf.Array()
}

// Strings returns the elements of a string tensor.
func (t *Tensor) Strings() []string { return t.strs }

// Rename returns a view of t bound to a different name. The buffer is shared.
func (t *Tensor) Rename(name string) *Tensor {
	v := *t
	v.name = name
	return &v
}

// At returns element i converted to float64.
func (t *Tensor) At(i int) float64 { return t.Array().Float64(i) }

// SetAt stores v at element i, converting to the tensor's data type.
func (t *Tensor) SetAt(i int, v float64) { t.Array().SetFloat64(i, v) }

// Int64At returns element i converted to int64.
func (t *Tensor) Int64At(i int) int64 { return t.Array().Int64(i) }

// SetInt64At stores v at element i, converting to the tensor's data type.
func (t *Tensor) SetInt64At(i int, v int64) { t.Array().SetInt64(i, v) }

// ScalarBool reads a single-element tensor as a boolean.
func (t *Tensor) ScalarBool() (bool, error) {
	if t.NumElements() != 1 || !t.dtype.Numeric() {
		return false, fmt.Errorf("tensor %q: expected one numeric element, got %s%v", t.name, t.dtype, t.shape)
	}
	return t.Int64At(0) != 0, nil
}

// ScalarInt64 reads a single-element tensor as an int64.
func (t *Tensor) ScalarInt64() (int64, error) {
	if t.NumElements() != 1 || !t.dtype.Numeric() {
		return 0, fmt.Errorf("tensor %q: expected one numeric element, got %s%v", t.name, t.dtype, t.shape)
	}
	return t.Int64At(0), nil
}

// Int64s copies the elements into a new []int64, converting as needed.
func (t *Tensor) Int64s() []int64 {
	out := make([]int64, t.NumElements())
	arr := t.Array()
	for i := range out {
		out[i] = arr.Int64(i)
	}
	return out
}

// Float64s copies the elements into a new []float64, converting as needed.
func (t *Tensor) Float64s() []float64 {
	out := make([]float64, t.NumElements())
	arr := t.Array()
	for i := range out {
		out[i] = arr.Float64(i)
	}
	return out
}

// Data returns the typed slice backing t. It panics if T does not match the
// tensor's data type.
func Data[T memory.Element](t *Tensor) []T {
	return memory.Data[T](t.Array())
}

// Reshape returns a view of t with a new shape. The element count must match.
func (t *Tensor) Reshape(shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if shape.NumElements() != t.NumElements() {
		return nil, fmt.Errorf("cannot reshape %v (%d elements) to %v (%d elements)",
			t.shape, t.NumElements(), shape, shape.NumElements())
	}
	v := *t
	v.shape = shape.Clone()
	return &v, nil
}

// Clone copies t into a fresh buffer acquired from arena (detached when arena
// is nil).
func (t *Tensor) Clone(arena *memory.Arena) (*Tensor, error) {
	if t.dtype == String {
		return FromStrings(append([]string(nil), t.strs...), t.shape)
	}
	out, err := New(arena, t.dtype, t.shape)
	if err != nil {
		return nil, err
	}
	memory.CopyInto(out.Array(), 0, t.Array())
	out.name = t.name
	return out, nil
}

// String returns a short description with up to eight elements.
func (t *Tensor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%v[", t.dtype, []int(t.shape))
	n := min(t.NumElements(), 8)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(" ")
		}
		switch {
		case t.dtype == String:
			fmt.Fprintf(&b, "%q", t.strs[i])
		case t.dtype.Float():
			fmt.Fprintf(&b, "%g", t.At(i))
		default:
			fmt.Fprintf(&b, "%d", t.Int64At(i))
		}
	}
	if t.NumElements() > n {
		b.WriteString(" ...")
	}
	b.WriteString("]")
	return b.String()
}
