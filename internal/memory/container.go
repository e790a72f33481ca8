package memory

// Container owns one primitive array plus its pooling state.
type Container struct {
	array   Array
	marker  Marker
	context string
	owner   *Arena
}

// Detached wraps an array in a container that is never pooled.
// Caller-supplied tensors and initializers use detached containers.
func Detached(a Array) *Container {
	return &Container{array: a, marker: GlobalOutput}
}

// Array returns the underlying host array.
func (c *Container) Array() Array { return c.array }

// Type returns the element kind.
func (c *Container) Type() Type { return c.array.Type() }

// Len returns the number of elements.
func (c *Container) Len() int { return c.array.Len() }

// Marker returns the current usage marker.
func (c *Container) Marker() Marker { return c.marker }

// Context returns the context path the buffer was acquired in.
// Detached buffers have an empty context.
func (c *Container) Context() string { return c.context }

// Pooled reports whether an arena still tracks this buffer.
func (c *Container) Pooled() bool { return c.owner != nil }
