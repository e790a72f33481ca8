package memory

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/eapache/queue"
)

// Stats counts arena activity since creation.
type Stats struct {
	Allocated  int // Host allocations (pool misses).
	Reused     int // Exact-size hits served from an available queue.
	Released   int // Explicit early releases.
	Detached   int // Global outputs handed to callers.
	Rebalances int
}

// SizeClass describes one tracked buffer length.
type SizeClass struct {
	Size  int
	Usage int
}

type options struct {
	host   Host
	logger *slog.Logger
}

// Option configures an Arena.
type Option func(*options)

// WithHost selects the host that allocates arrays. Defaults to Native.
func WithHost(h Host) Option {
	return func(o *options) {
		if h != nil {
			o.host = h
		}
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Arena recycles primitive buffers across operator invocations, partitioned
// by element type, exact size and operator context.
type Arena struct {
	host   Host
	logger *slog.Logger
	stack  *contextStack
	tables [numTypes]*sizeTable
	stats  Stats
}

// NewArena creates an empty arena with only the root context declared.
func NewArena(opts ...Option) *Arena {
	o := options{host: Native, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	a := &Arena{
		host:   o.host,
		logger: o.logger,
		stack:  newContextStack(),
	}
	for i := range a.tables {
		a.tables[i] = newSizeTable()
	}
	return a
}

// Host returns the host that allocates this arena's arrays.
func (a *Arena) Host() Host { return a.host }

// RegisterContexts declares context paths that may pool buffers.
// Called outside any operator, names are taken as absolute paths; called
// while a context is active, they are namespaced under the current path.
func (a *Arena) RegisterContexts(names ...string) {
	for _, name := range names {
		path := a.stack.qualify(name)
		if a.stack.declared.Contains(path) {
			continue
		}
		a.stack.declared.Add(path)
		for _, t := range a.tables {
			t.ensure(path)
		}
	}
}

// Contexts returns every declared context path, sorted.
func (a *Arena) Contexts() []string {
	out := a.stack.declared.Values()
	slices.Sort(out)
	return out
}

// Current returns the active context path.
func (a *Arena) Current() string { return a.stack.current }

// Depth returns the number of contexts entered and not yet exited.
func (a *Arena) Depth() int { return a.stack.depth() }

// Enter pushes name onto the context path.
func (a *Arena) Enter(name string) {
	a.stack.push(name)
}

// Exit reclaims the current context's checked-out buffers and pops it.
// Buffers marked ContextOutput or GlobalOutput stay parked so the parent
// context can still read them.
func (a *Arena) Exit() {
	if a.stack.depth() == 0 {
		panic(&InvariantError{Op: "exit", Context: a.stack.current, Reason: "no matching enter"})
	}
	ctx := a.stack.current
	for _, t := range a.tables {
		for i := 0; i < t.n; i++ {
			used, unused := t.used[i][ctx], t.unused[i][ctx]
			if used == nil {
				continue
			}
			drain(used, func(c *Container) bool {
				if c.marker == ContextOutput || c.marker == GlobalOutput {
					return true
				}
				c.marker = Unused
				unused.Add(c)
				return false
			})
		}
	}
	a.stack.pop()
}

// Acquire returns a buffer of the given type and length checked out by the
// current context. Reused buffers are reset to zero; fresh buffers come from
// the host.
func (a *Arena) Acquire(typ Type, size int) *Container {
	if !typ.Valid() {
		panic(&InvariantError{Op: "acquire", Context: a.stack.current, Reason: fmt.Sprintf("unknown element type %d", int(typ))})
	}
	ctx := a.stack.current
	if !a.stack.declared.Contains(ctx) {
		panic(&InvariantError{Op: "acquire", Context: ctx, Reason: "context was never registered"})
	}

	t := a.tables[typ]
	if i := t.index(size); i >= 0 {
		if available := t.unused[i][ctx]; available.Length() > 0 {
			c := available.Remove().(*Container)
			c.marker = Used
			c.array.Reset()
			t.used[i][ctx].Add(c)
			t.usage[i]++
			a.stats.Reused++
			return c
		}
	}

	c := &Container{
		array:   a.host.Allocate(typ, size),
		marker:  Used,
		context: ctx,
		owner:   a,
	}
	i := t.index(size)
	if i < 0 {
		i = t.add(size, a.stack.declared.Values())
	}
	t.used[i][ctx].Add(c)
	a.stats.Allocated++
	return c
}

// AcquireN checks out count buffers of one type and length for the current
// context, as for count calls to Acquire.
func (a *Arena) AcquireN(typ Type, size, count int) []*Container {
	out := make([]*Container, count)
	for i := range out {
		out[i] = a.Acquire(typ, size)
	}
	return out
}

// Release returns one checked-out buffer to its context's available queue
// before the context exits. Buffers this arena does not track are ignored.
func (a *Arena) Release(c *Container) {
	if c == nil || c.owner != a || c.marker == Unused || c.marker == GlobalOutput {
		return
	}
	used, unused := a.queues(c)
	found := false
	drain(used, func(other *Container) bool {
		if other == c {
			found = true
			return false
		}
		return true
	})
	if !found {
		panic(&InvariantError{Op: "release", Context: c.context, Reason: "buffer missing from its checked-out queue"})
	}
	c.marker = Unused
	unused.Add(c)
	a.stats.Released++
}

// MarkContextOutput flags c as the result of the context that produced it.
func (a *Arena) MarkContextOutput(c *Container) {
	if c != nil && c.owner == a && c.marker == Used {
		c.marker = ContextOutput
	}
}

// MarkGlobalOutput flags c as a final graph output. The next
// ReleaseGraphOutputs detaches it permanently.
func (a *Arena) MarkGlobalOutput(c *Container) {
	if c != nil && c.owner == a && c.marker != Unused {
		c.marker = GlobalOutput
	}
}

// InScope reports whether c was acquired in the current context or one of
// its descendants.
func (a *Arena) InScope(c *Container) bool {
	return c != nil && c.owner == a && within(c.context, a.stack.current)
}

// ReleaseGraphOutputs finishes one full graph execution: context outputs
// become available again, global outputs leave the pool for good, and size
// classes are reordered by usage with decayed counters.
func (a *Arena) ReleaseGraphOutputs() {
	for _, t := range a.tables {
		for i := 0; i < t.n; i++ {
			for ctx, used := range t.used[i] {
				unused := t.unused[i][ctx]
				drain(used, func(c *Container) bool {
					switch c.marker {
					case ContextOutput:
						c.marker = Unused
						unused.Add(c)
						return false
					case GlobalOutput:
						c.owner = nil
						a.stats.Detached++
						return false
					default:
						return true
					}
				})
			}
		}
	}
	a.rebalance()
}

func (a *Arena) rebalance() {
	for typ, t := range a.tables {
		if t.rebalance() {
			a.logger.Debug("arena size classes reordered", "type", Type(typ), "classes", t.n)
		}
	}
	a.stats.Rebalances++
}

// SizeClasses returns the live size classes of typ in probe order.
func (a *Arena) SizeClasses(typ Type) []SizeClass {
	t := a.tables[typ]
	out := make([]SizeClass, t.n)
	for i := range out {
		out[i] = SizeClass{Size: t.sizes[i], Usage: t.usage[i]}
	}
	return out
}

// Pooled returns the number of checked-out and available buffers for one
// (type, size, context) partition.
func (a *Arena) Pooled(typ Type, size int, ctx string) (used, available int) {
	t := a.tables[typ]
	i := t.index(size)
	if i < 0 {
		return 0, 0
	}
	if q := t.used[i][ctx]; q != nil {
		used = q.Length()
	}
	if q := t.unused[i][ctx]; q != nil {
		available = q.Length()
	}
	return used, available
}

// Stats returns a snapshot of the arena counters.
func (a *Arena) Stats() Stats { return a.stats }

// Close disposes every pooled array and forgets all contexts. Buffers already
// handed to callers as global outputs are not affected.
func (a *Arena) Close() {
	for i, t := range a.tables {
		for j := 0; j < t.n; j++ {
			for _, p := range []partition{t.used[j], t.unused[j]} {
				for _, q := range p {
					drain(q, func(c *Container) bool {
						c.owner = nil
						c.array.Close()
						return false
					})
				}
			}
		}
		a.tables[i] = newSizeTable()
	}
	a.stack = newContextStack()
}

func (a *Arena) queues(c *Container) (used, unused *queue.Queue) {
	t := a.tables[c.array.Type()]
	i := t.index(c.array.Len())
	if i < 0 {
		panic(&InvariantError{Op: "release", Context: c.context, Reason: "size class vanished"})
	}
	return t.used[i][c.context], t.unused[i][c.context]
}
