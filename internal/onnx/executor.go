package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/born-ml/onnxrun/internal/logutil"
	"github.com/born-ml/onnxrun/internal/memory"
	"github.com/born-ml/onnxrun/internal/onnx/operators"
	"github.com/born-ml/onnxrun/internal/tensor"
)

// ErrUnboundValue is returned when a node reads a name nothing has produced.
var ErrUnboundValue = errors.New("value is not bound")

// NodeError reports a failure while running one node.
type NodeError struct {
	Node    string // context name of the node
	OpType  string
	Context string // arena context path at the time of failure
	Err     error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %v", e.Node, e.OpType, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// env is the value scope of one graph run. Lookups fall through to the
// enclosing graph's scope.
type env struct {
	values map[string]*tensor.Tensor
	parent operators.Scope
}

func (e *env) Lookup(name string) (*tensor.Tensor, bool) {
	if t, ok := e.values[name]; ok {
		return t, true
	}
	if e.parent != nil {
		return e.parent.Lookup(name)
	}
	return nil, false
}

// liveness counts the live names referencing each buffer produced during a
// graph run. Pinned buffers belong to the caller and are never released.
type liveness struct {
	arena  *memory.Arena
	refs   map[*memory.Container]int
	pinned map[*memory.Container]bool
}

func newLiveness(arena *memory.Arena) *liveness {
	return &liveness{
		arena:  arena,
		refs:   make(map[*memory.Container]int),
		pinned: make(map[*memory.Container]bool),
	}
}

func (l *liveness) pin(t *tensor.Tensor) {
	if buf := t.Container(); buf != nil {
		l.pinned[buf] = true
	}
}

func (l *liveness) retain(t *tensor.Tensor) {
	if buf := t.Container(); buf != nil {
		l.refs[buf]++
	}
}

// drop forgets one reference and recycles the buffer once nothing names it.
func (l *liveness) drop(t *tensor.Tensor) bool {
	buf := t.Container()
	if buf == nil || l.pinned[buf] {
		return false
	}
	l.refs[buf]--
	if l.refs[buf] > 0 {
		return false
	}
	delete(l.refs, buf)
	if l.arena == nil || !l.arena.InScope(buf) {
		return false
	}
	l.arena.Release(buf)
	return true
}

// executor runs compiled graphs. It implements operators.GraphRunner so
// control-flow operators can run their nested graphs through it.
type executor struct {
	logger *slog.Logger
}

func (x *executor) RunGraph(ctx *operators.Context, sg operators.Subgraph, contextName string, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	g, ok := sg.(*graph)
	if !ok {
		return nil, fmt.Errorf("cannot run subgraph of type %T", sg)
	}
	if len(inputs) != len(g.inputs) {
		return nil, &operators.ArityError{OpType: "graph", Node: contextName, What: "graph inputs",
			Want: len(g.inputs), Got: len(inputs)}
	}

	if ctx.Arena != nil {
		ctx.Arena.Enter(contextName)
		defer ctx.Arena.Exit()
	}
	out, err := x.run(ctx, g, inputs)
	if err != nil {
		return nil, err
	}
	if ctx.Arena != nil {
		for _, t := range out {
			ctx.Arena.MarkContextOutput(t.Container())
		}
	}
	return out, nil
}

// run executes g in the current arena context with inputs bound
// positionally and returns its outputs in declared order.
func (x *executor) run(ctx *operators.Context, g *graph, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	scope := &env{
		values: make(map[string]*tensor.Tensor, len(g.inputs)+len(g.initializers)+len(g.nodes)),
		parent: ctx.Scope,
	}
	live := newLiveness(ctx.Arena)
	for name, t := range g.initializers {
		scope.values[name] = t
		live.pin(t)
	}
	for i, name := range g.inputs {
		if inputs[i] == nil {
			return nil, fmt.Errorf("graph %q: input %q: %w", g.name, name, ErrUnboundValue)
		}
		scope.values[name] = inputs[i]
		live.pin(inputs[i])
	}

	inner := *ctx
	inner.Scope = scope
	if inner.Logger == nil {
		inner.Logger = x.logger
	}
	base := inner.Ctx
	if base == nil {
		base = context.Background()
	}

	for _, n := range g.nodes {
		if err := base.Err(); err != nil {
			return nil, err
		}
		outs, err := x.runNode(&inner, n, scope)
		if err != nil {
			return nil, err
		}
		for i, name := range n.proto.Outputs {
			if name == "" || i >= len(outs) {
				continue
			}
			t := outs[i]
			scope.values[name] = t
			live.retain(t)
			if g.unused(name) {
				live.drop(t)
				delete(scope.values, name)
			}
		}
		for _, name := range g.lastUse[n.index] {
			t, ok := scope.values[name]
			if !ok {
				// Outer-scope value; the enclosing graph owns it.
				continue
			}
			if live.drop(t) {
				inner.Logger.Debug("released value", "graph", g.name, "value", name, "node", n.context)
			}
			delete(scope.values, name)
		}
	}

	out := make([]*tensor.Tensor, len(g.outputs))
	for i, name := range g.outputs {
		t, ok := scope.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("graph %q: output %q: %w", g.name, name, ErrUnboundValue)
		}
		out[i] = t
	}
	return out, nil
}

// runNode runs one node under its own arena context. The context is exited
// on every path, including failures.
func (x *executor) runNode(ctx *operators.Context, n *node, scope operators.Scope) ([]*tensor.Tensor, error) {
	if ctx.Arena != nil {
		ctx.Arena.Enter(n.context)
		defer ctx.Arena.Exit()
	}
	fail := func(err error) error {
		e := &NodeError{Node: n.context, OpType: n.proto.OpType, Err: err}
		if ctx.Arena != nil {
			e.Context = ctx.Arena.Current()
		}
		return e
	}

	inputs := make([]*tensor.Tensor, len(n.proto.Inputs))
	for i, name := range n.proto.Inputs {
		if name == "" {
			continue
		}
		t, ok := scope.Lookup(name)
		if !ok {
			return nil, fail(fmt.Errorf("input %q: %w", name, ErrUnboundValue))
		}
		inputs[i] = t
	}
	if err := n.op.Info().CheckTypes(n.op.Node(), inputs); err != nil {
		return nil, fail(err)
	}

	outs, err := n.op.Apply(ctx, inputs)
	if err != nil {
		return nil, fail(err)
	}
	logutil.Trace(x.logger, "node finished", "node", n.context, "op", n.proto.OpType, "outputs", len(outs))
	for i, name := range n.proto.Outputs {
		if name != "" && (i >= len(outs) || outs[i] == nil) {
			return nil, fail(fmt.Errorf("output %q was not produced", name))
		}
	}
	if ctx.Arena != nil {
		for _, t := range outs {
			if t != nil {
				ctx.Arena.MarkContextOutput(t.Container())
			}
		}
	}
	return outs, nil
}
