package operators

import (
	"fmt"

	"github.com/born-ml/onnxrun/internal/tensor"
)

// Branch attribute names of If; each is also the context name its graph runs under.
const (
	ThenBranch = "then_branch"
	ElseBranch = "else_branch"
)

type ifOp struct {
	info       *Info
	node       *Node
	thenBranch Subgraph
	elseBranch Subgraph
}

func newIf(info *Info, node *Node) (Operator, error) {
	op := &ifOp{
		info:       info,
		node:       node,
		thenBranch: GetAttrGraph(node, ThenBranch),
		elseBranch: GetAttrGraph(node, ElseBranch),
	}
	if op.thenBranch == nil || op.elseBranch == nil {
		return nil, &ContractError{OpType: node.OpType, Node: node.Name, Reason: "branch attribute holds no graph"}
	}
	for _, g := range []Subgraph{op.thenBranch, op.elseBranch} {
		if len(g.InputNames()) != 0 {
			return nil, &ContractError{OpType: node.OpType, Node: node.Name,
				Reason: fmt.Sprintf("branch %q declares %d inputs, expected none", g.Name(), len(g.InputNames()))}
		}
	}
	return op, nil
}

func (o *ifOp) Info() *Info { return o.info }
func (o *ifOp) Node() *Node { return o.node }

// Branches returns the then and else graphs.
func (o *ifOp) Branches() (Subgraph, Subgraph) { return o.thenBranch, o.elseBranch }

func (o *ifOp) Apply(ctx *Context, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	cond, err := inputs[0].ScalarBool()
	if err != nil {
		return nil, fmt.Errorf("if: cond: %w", err)
	}
	branch, name := o.thenBranch, ThenBranch
	if !cond {
		branch, name = o.elseBranch, ElseBranch
	}

	out, err := ctx.Runner.RunGraph(ctx, branch, name, nil)
	if err != nil {
		return nil, fmt.Errorf("if %q %s: %w", o.node.Name, name, err)
	}
	if len(out) != len(o.node.Outputs) {
		return nil, &ArityError{OpType: o.node.OpType, Node: o.node.Name, What: name + " outputs", Want: len(o.node.Outputs), Got: len(out)}
	}
	return out, nil
}
