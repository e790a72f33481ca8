package operators

import (
	"fmt"

	"github.com/born-ml/onnxrun/internal/memory"
	"github.com/born-ml/onnxrun/internal/tensor"
)

// BodyContext is the context name pushed around every Loop body run.
const BodyContext = "body"

func (r *Registry) registerControlFlow() {
	r.define("Loop", func(v VersionInfo) Version {
		info := &Info{
			Version:    v,
			Attributes: []AttributeInfo{{Name: "body", Types: []AttributeType{AttrGraph}, Required: true}},
			Inputs: []IOInfo{
				{Index: 0, Name: "M", Types: int64Types, Optional: true, Scalar: true},
				{Index: 1, Name: "cond", Types: boolTypes, Optional: true, Scalar: true},
				{Index: 2, Name: "v_initial", Types: allTypes, Variadic: true},
			},
			Outputs: []IOInfo{{Index: 0, Name: "v_final_and_scan_outputs", Types: allTypes, Variadic: true, MinArity: 1}},
		}
		return Version{Info: info, New: newLoop}
	}, 1, 11, 13)

	r.define("If", func(v VersionInfo) Version {
		info := &Info{
			Version: v,
			Attributes: []AttributeInfo{
				{Name: ThenBranch, Types: []AttributeType{AttrGraph}, Required: true},
				{Name: ElseBranch, Types: []AttributeType{AttrGraph}, Required: true},
			},
			Inputs:  []IOInfo{{Index: 0, Name: "cond", Types: boolTypes, Scalar: true}},
			Outputs: []IOInfo{{Index: 0, Name: "outputs", Types: allTypes, Variadic: true, MinArity: 1}},
		}
		return Version{Info: info, New: newIf}
	}, 1, 11, 13)
}

// loop runs its body graph repeatedly, threading carried values between
// iterations and collecting per-iteration scan outputs.
type loop struct {
	info *Info
	node *Node
	body Subgraph
}

func newLoop(info *Info, node *Node) (Operator, error) {
	body := GetAttrGraph(node, "body")
	if body == nil {
		return nil, &ContractError{OpType: node.OpType, Node: node.Name, Reason: "body attribute holds no graph"}
	}
	return &loop{info: info, node: node, body: body}, nil
}

func (l *loop) Info() *Info { return l.info }
func (l *loop) Node() *Node { return l.node }

// Body returns the compiled loop body.
func (l *loop) Body() Subgraph { return l.body }

// loopState is the per-invocation state machine.
type loopState struct {
	l         *loop
	ctx       *Context
	counter   int64
	condition bool
	carried   []*tensor.Tensor
	scans     [][]*tensor.Tensor
	// held marks buffers referenced by scan entries; they survive until stacking.
	held map[*memory.Container]bool
}

// Apply executes the loop. The termination policy depends on which of the
// trip count M and the initial condition are supplied:
//
//	neither:  run until the body reports false (no built-in bound)
//	M only:   exactly M iterations, the body condition is ignored
//	cond:     while the condition holds
//	both:     while the condition holds and fewer than M iterations ran
func (l *loop) Apply(ctx *Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	var (
		tripCount *int64
		keepGoing *bool
	)
	if len(inputs) > 0 && inputs[0] != nil {
		m, err := inputs[0].ScalarInt64()
		if err != nil {
			return nil, fmt.Errorf("loop: M: %w", err)
		}
		tripCount = &m
	}
	if len(inputs) > 1 && inputs[1] != nil {
		c, err := inputs[1].ScalarBool()
		if err != nil {
			return nil, fmt.Errorf("loop: cond: %w", err)
		}
		keepGoing = &c
	}

	var carried []*tensor.Tensor
	if len(inputs) > 2 {
		carried = inputs[2:]
	}
	for i, c := range carried {
		if c == nil {
			return nil, &ContractError{OpType: l.node.OpType, Node: l.node.Name,
				Reason: fmt.Sprintf("loop-carried input %d is not bound", i)}
		}
	}
	if want := 2 + len(carried); len(l.body.InputNames()) != want {
		return nil, &ArityError{OpType: l.node.OpType, Node: l.node.Name, What: "body inputs", Want: want, Got: len(l.body.InputNames())}
	}
	scanCount := len(l.body.OutputNames()) - 1 - len(carried)
	if scanCount < 0 {
		return nil, &ArityError{OpType: l.node.OpType, Node: l.node.Name, What: "body outputs",
			Want: 1 + len(carried), Got: len(l.body.OutputNames())}
	}

	s := &loopState{
		l:         l,
		ctx:       ctx,
		condition: true,
		carried:   carried,
		scans:     make([][]*tensor.Tensor, scanCount),
		held:      make(map[*memory.Container]bool),
	}
	if keepGoing != nil {
		s.condition = *keepGoing
	}

	var err error
	switch {
	case tripCount == nil:
		// Without cond the first iteration always runs.
		for err == nil && s.condition {
			err = s.step()
		}
	case keepGoing == nil:
		for err == nil && s.counter < *tripCount {
			err = s.step()
		}
	default:
		for err == nil && s.condition && s.counter < *tripCount {
			err = s.step()
		}
	}
	if err != nil {
		return nil, err
	}

	ctx.logger().Debug("loop finished", "node", l.node.Name, "iterations", s.counter, "scans", scanCount)
	return s.finish()
}

// step runs the body once and adopts its outputs.
func (s *loopState) step() error {
	ctx, l := s.ctx, s.l
	if err := ctx.context().Err(); err != nil {
		return err
	}

	counter, err := tensor.New(ctx.Arena, tensor.Int64, tensor.Shape{})
	if err != nil {
		return err
	}
	counter.SetInt64At(0, s.counter)
	cond, err := tensor.New(ctx.Arena, tensor.Bool, tensor.Shape{})
	if err != nil {
		return err
	}
	cond.SetInt64At(0, boolInt(s.condition))

	names := l.body.InputNames()
	in := make([]*tensor.Tensor, 0, len(names))
	in = append(in, counter.Rename(names[0]), cond.Rename(names[1]))
	for i, c := range s.carried {
		in = append(in, c.Rename(names[2+i]))
	}

	out, err := ctx.Runner.RunGraph(ctx, l.body, BodyContext, in)
	if err != nil {
		return fmt.Errorf("loop %q iteration %d: %w", l.node.Name, s.counter, err)
	}
	if want := 1 + len(s.carried) + len(s.scans); len(out) != want {
		return &ArityError{OpType: l.node.OpType, Node: l.node.Name, What: "body outputs", Want: want, Got: len(out)}
	}
	next, err := out[0].ScalarBool()
	if err != nil {
		return fmt.Errorf("loop %q iteration %d: condition: %w", l.node.Name, s.counter, err)
	}

	// Buffers still referenced after this step must not be recycled.
	keep := make(map[*memory.Container]bool, len(out)+len(s.held))
	for buf := range s.held {
		keep[buf] = true
	}
	for _, t := range out[1:] {
		if buf := t.Container(); buf != nil {
			keep[buf] = true
		}
	}
	for _, t := range s.carried {
		ctx.release(t, keep)
	}
	ctx.release(counter, keep)
	ctx.release(cond, keep)
	ctx.release(out[0], keep)

	s.carried = out[1 : 1+len(s.carried)]
	for j, t := range out[1+len(s.carried):] {
		s.scans[j] = append(s.scans[j], t)
		if buf := t.Container(); buf != nil {
			s.held[buf] = true
		}
	}
	s.condition = next
	s.counter++
	return nil
}

// finish stacks scan outputs and releases the per-iteration entries.
func (s *loopState) finish() ([]*tensor.Tensor, error) {
	ctx, l := s.ctx, s.l
	outputs := make([]*tensor.Tensor, 0, len(s.carried)+len(s.scans))
	outputs = append(outputs, s.carried...)

	keep := make(map[*memory.Container]bool, len(s.carried))
	for _, t := range s.carried {
		if buf := t.Container(); buf != nil {
			keep[buf] = true
		}
	}

	for j, scan := range s.scans {
		var (
			stacked *tensor.Tensor
			err     error
		)
		if len(scan) == 0 {
			dtype, ok := l.body.OutputType(1 + len(s.carried) + j)
			if !ok {
				dtype = tensor.Float32
			}
			stacked, err = tensor.New(ctx.Arena, dtype, tensor.Shape{0})
		} else {
			stacked, err = tensor.Stack(ctx.Arena, scan)
		}
		if err != nil {
			return nil, fmt.Errorf("loop %q: scan output %d: %w", l.node.Name, j, err)
		}
		outputs = append(outputs, stacked)
	}
	for _, scan := range s.scans {
		for _, t := range scan {
			ctx.release(t, keep)
		}
	}
	return outputs, nil
}
