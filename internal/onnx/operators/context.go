package operators

import (
	"context"
	"log/slog"

	"github.com/born-ml/onnxrun/internal/memory"
	"github.com/born-ml/onnxrun/internal/parallel"
	"github.com/born-ml/onnxrun/internal/tensor"
)

// Context carries the per-run state operators need: the session arena, the
// runner for nested graphs and the enclosing value scope.
type Context struct {
	Ctx      context.Context
	Arena    *memory.Arena
	Runner   GraphRunner
	Scope    Scope
	Logger   *slog.Logger
	Parallel parallel.Config
}

// Subgraph is a compiled nested graph bound to a GRAPH attribute.
type Subgraph interface {
	Name() string
	InputNames() []string
	OutputNames() []string
	// OutputType returns the declared element type of output i, if known.
	OutputType(i int) (tensor.DataType, bool)
}

// GraphRunner executes nested graphs on behalf of control-flow operators.
//
// RunGraph pushes contextName under the current arena context, binds inputs
// positionally to g's inputs, resolves any other free names through
// ctx.Scope and returns g's outputs in declared order.
type GraphRunner interface {
	RunGraph(ctx *Context, g Subgraph, contextName string, inputs []*tensor.Tensor) ([]*tensor.Tensor, error)
}

// Scope resolves value names visible to the running graph, including values
// of enclosing graphs.
type Scope interface {
	Lookup(name string) (*tensor.Tensor, bool)
}

func (c *Context) context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

func (c *Context) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Context) parallelConfig() parallel.Config {
	if c.Parallel.NumWorkers == 0 {
		return parallel.DefaultConfig()
	}
	return c.Parallel
}

// release returns t's buffer to the arena early when it was acquired under
// the current context and is not listed in keep.
func (c *Context) release(t *tensor.Tensor, keep map[*memory.Container]bool) {
	if c.Arena == nil || t == nil {
		return
	}
	buf := t.Container()
	if buf == nil || keep[buf] || !c.Arena.InScope(buf) {
		return
	}
	c.Arena.Release(buf)
}
