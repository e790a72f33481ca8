package operators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxrun/internal/tensor"
)

func constGraph(name string, values ...float32) *fakeGraph {
	outputs := make([]string, len(values))
	for i := range outputs {
		outputs[i] = name + "_out"
	}
	return &fakeGraph{
		name:    name,
		outputs: outputs,
		fn: func(*Context, []*tensor.Tensor) ([]*tensor.Tensor, error) {
			out := make([]*tensor.Tensor, len(values))
			for i, v := range values {
				out[i] = tensor.Scalar(v)
			}
			return out, nil
		},
	}
}

func ifNode(thenG, elseG Subgraph, outputs ...string) *Node {
	return &Node{
		Name:    "if",
		OpType:  "If",
		Inputs:  []string{"cond"},
		Outputs: outputs,
		Attributes: []Attribute{
			{Name: ThenBranch, Type: AttrGraph, G: thenG},
			{Name: ElseBranch, Type: AttrGraph, G: elseG},
		},
	}
}

func TestIfSelectsBranch(t *testing.T) {
	op, err := NewRegistry().Resolve(ifNode(constGraph("then", 1), constGraph("else", 2), "y"), 13)
	require.NoError(t, err)

	for _, tt := range []struct {
		cond    bool
		want    float32
		context string
	}{
		{true, 1, ThenBranch},
		{false, 2, ElseBranch},
	} {
		runner := &fakeRunner{}
		out, err := op.Apply(&Context{Runner: runner}, []*tensor.Tensor{tensor.Scalar(tt.cond)})
		require.NoError(t, err)
		assert.Equal(t, []float32{tt.want}, tensor.Data[float32](out[0]))
		assert.Equal(t, []string{tt.context}, runner.calls)
	}
}

func TestIfBranchArityMismatch(t *testing.T) {
	op, err := NewRegistry().Resolve(ifNode(constGraph("then", 1, 2), constGraph("else", 3), "y"), 13)
	require.NoError(t, err)

	_, err = op.Apply(&Context{Runner: &fakeRunner{}}, []*tensor.Tensor{tensor.Scalar(true)})
	var ae *ArityError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 1, ae.Want)
	assert.Equal(t, 2, ae.Got)

	// The else branch matches and runs fine.
	out, err := op.Apply(&Context{Runner: &fakeRunner{}}, []*tensor.Tensor{tensor.Scalar(false)})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestIfRejectsBranchInputs(t *testing.T) {
	withInputs := constGraph("then", 1)
	withInputs.inputs = []string{"x"}

	_, err := NewRegistry().Resolve(ifNode(withInputs, constGraph("else", 2), "y"), 13)
	assert.ErrorIs(t, err, ErrContract)

	_, err = NewRegistry().Resolve(ifNode(nil, constGraph("else", 2), "y"), 13)
	assert.ErrorIs(t, err, ErrContract)
}
