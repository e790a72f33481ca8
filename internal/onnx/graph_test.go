package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/onnxrun/internal/onnx/operators"
	"github.com/born-ml/onnxrun/internal/tensor"
)

func compileGraph(t *testing.T, proto *ModelProto) *graph {
	t.Helper()
	c := newCompiler(operators.NewRegistry(), proto.OpsetImport)
	g, err := c.compile(proto.Graph)
	require.NoError(t, err)
	return g
}

func TestCompileLiveness(t *testing.T) {
	g := compileGraph(t, reluChainModel())

	require.Len(t, g.nodes, 3)
	assert.Equal(t, []uint32{0}, g.consumers["x"].ToArray())
	assert.Equal(t, []uint32{1}, g.consumers["a"].ToArray())
	assert.Nil(t, g.consumers["c"], "graph outputs have no readers")
	assert.Equal(t, [][]string{{"x"}, {"a"}, {"b"}}, g.lastUse)
	assert.False(t, g.unused("c"))
	assert.Empty(t, g.free)
}

func TestCompileFreeNames(t *testing.T) {
	g := compileGraph(t, accumulateLoopModel())

	loop := g.nodes[0]
	require.Len(t, loop.subgraphs, 1)
	body := loop.subgraphs[0].graph
	assert.Equal(t, "body", loop.subgraphs[0].context)
	assert.Equal(t, []string{"step"}, body.free)
	assert.Equal(t, []string{"M", "x", "step"}, loop.reads, "the body's outer reads count as loop reads")
	assert.Equal(t, []uint32{0}, g.consumers["step"].ToArray())

	assert.Equal(t, []string{"iter", "cond_in", "acc_in"}, body.InputNames())
	dt, ok := body.OutputType(2)
	assert.True(t, ok)
	assert.Equal(t, tensor.Float32, dt)
	_, ok = body.OutputType(5)
	assert.False(t, ok)
}

func TestCompileNestedFreeNamesPropagate(t *testing.T) {
	// The inner branch reads "w" from the main graph through the loop body.
	inner := &GraphProto{
		Outputs: []ValueInfoProto{{Name: "y"}},
		Nodes:   []NodeProto{opNode("use", "Identity", []string{"w"}, []string{"y"})},
	}
	body := &GraphProto{
		Inputs:  []ValueInfoProto{{Name: "i"}, {Name: "c"}},
		Outputs: []ValueInfoProto{{Name: "c_out"}, {Name: "y_out"}},
		Nodes: []NodeProto{
			opNode("keep", "Identity", []string{"c"}, []string{"c_out"}),
			opNode("pick", "If", []string{"c"}, []string{"y_out"},
				graphAttr(operators.ThenBranch, inner), graphAttr(operators.ElseBranch, inner)),
		},
	}
	proto := modelOf(&GraphProto{
		Inputs:       []ValueInfoProto{{Name: "M"}},
		Outputs:      []ValueInfoProto{{Name: "ys"}},
		Initializers: []TensorProto{floatInit("w", []int64{1}, 3)},
		Nodes:        []NodeProto{opNode("loop", "Loop", []string{"M", ""}, []string{"ys"}, graphAttr("body", body))},
	}, 13)

	g := compileGraph(t, proto)
	bodyGraph := g.nodes[0].subgraphs[0].graph
	assert.Equal(t, []string{"w"}, bodyGraph.free)
	assert.Empty(t, g.free, "w is an initializer of the main graph")
	assert.Contains(t, g.contexts("main"), "main.loop.body.pick.else_branch.use")
}

func TestCompileRejectsCycle(t *testing.T) {
	proto := modelOf(&GraphProto{
		Outputs: []ValueInfoProto{{Name: "a"}},
		Nodes: []NodeProto{
			opNode("A", "Relu", []string{"b"}, []string{"a"}),
			opNode("B", "Relu", []string{"a"}, []string{"b"}),
		},
	}, 14)
	c := newCompiler(operators.NewRegistry(), proto.OpsetImport)
	_, err := c.compile(proto.Graph)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestCompileRejectsContractViolation(t *testing.T) {
	proto := modelOf(&GraphProto{
		Inputs:  []ValueInfoProto{{Name: "x"}},
		Outputs: []ValueInfoProto{{Name: "y"}},
		Nodes: []NodeProto{
			opNode("bad", "Relu", []string{"x"}, []string{"y"},
				AttributeProto{Name: "alpha", Type: AttributeProtoFloat, F: 1}),
		},
	}, 14)
	c := newCompiler(operators.NewRegistry(), proto.OpsetImport)
	_, err := c.compile(proto.Graph)
	assert.ErrorIs(t, err, operators.ErrContract)
	assert.ErrorContains(t, err, "bad")
}

func TestCompileDomainOpsets(t *testing.T) {
	c := newCompiler(operators.NewRegistry(), []OperatorSetID{{Domain: "ai.onnx", Version: 12}, {Domain: "com.example", Version: 3}})
	assert.Equal(t, 12, c.opsets[operators.DefaultDomain])
	assert.Equal(t, 3, c.opsets["com.example"])
}
