package onnx

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/born-ml/onnxrun/internal/onnx/operators"
	"github.com/born-ml/onnxrun/internal/tensor"
)

// ErrCycle is returned for graphs whose nodes depend on each other cyclically.
var ErrCycle = errors.New("graph contains a cycle")

// graph is a compiled GraphProto: nodes in execution order, bound to
// operator versions, with liveness information for early buffer release.
// It implements operators.Subgraph.
type graph struct {
	name         string
	inputs       []string
	inputTypes   map[int]tensor.DataType
	outputs      []string
	outputTypes  map[int]tensor.DataType
	initializers map[string]*tensor.Tensor
	nodes        []*node

	// consumers maps a value name to the indices of the nodes that read it,
	// including reads made by nested graphs of those nodes.
	consumers map[string]*roaring.Bitmap
	// lastUse[i] lists the values whose final reader is node i.
	lastUse  [][]string
	isOutput map[string]bool
	// free lists names this graph reads from enclosing scopes.
	free []string
}

// node is one compiled operator invocation.
type node struct {
	index     int
	context   string
	proto     *NodeProto
	op        operators.Operator
	reads     []string
	subgraphs []subgraph
	produced  int
}

// subgraph is a GRAPH attribute together with the context name it runs under.
type subgraph struct {
	context string
	graph   *graph
}

func (g *graph) Name() string          { return g.name }
func (g *graph) InputNames() []string  { return g.inputs }
func (g *graph) OutputNames() []string { return g.outputs }

func (g *graph) OutputType(i int) (tensor.DataType, bool) {
	dt, ok := g.outputTypes[i]
	return dt, ok
}

// contexts enumerates every context path a run of g under path can enter.
func (g *graph) contexts(path string) []string {
	out := []string{path}
	for _, n := range g.nodes {
		np := path + "." + n.context
		out = append(out, np)
		for _, sub := range n.subgraphs {
			out = append(out, sub.graph.contexts(np+"."+sub.context)...)
		}
	}
	return out
}

// compiler turns GraphProtos into executable graphs.
type compiler struct {
	registry *operators.Registry
	opsets   map[string]int
}

func newCompiler(registry *operators.Registry, imports []OperatorSetID) *compiler {
	c := &compiler{registry: registry, opsets: make(map[string]int, len(imports))}
	for _, imp := range imports {
		c.opsets[operators.NormalizeDomain(imp.Domain)] = int(imp.Version)
	}
	return c
}

func (c *compiler) compile(gp *GraphProto) (*graph, error) {
	g := &graph{
		name:         gp.Name,
		inputTypes:   make(map[int]tensor.DataType),
		outputTypes:  make(map[int]tensor.DataType),
		initializers: make(map[string]*tensor.Tensor, len(gp.Initializers)),
		consumers:    make(map[string]*roaring.Bitmap),
		isOutput:     make(map[string]bool, len(gp.Outputs)),
	}

	// Load initializers (weights)
	for i := range gp.Initializers {
		init := &gp.Initializers[i]
		t, err := tensorFromProto(init)
		if err != nil {
			return nil, fmt.Errorf("failed to load initializer %s: %w", init.Name, err)
		}
		g.initializers[init.Name] = t
	}

	// Inputs are graph inputs minus initializers
	for i := range gp.Inputs {
		vi := &gp.Inputs[i]
		if _, ok := g.initializers[vi.Name]; ok {
			continue
		}
		if dt, ok := elemType(vi); ok {
			g.inputTypes[len(g.inputs)] = dt
		}
		g.inputs = append(g.inputs, vi.Name)
	}
	for i := range gp.Outputs {
		vi := &gp.Outputs[i]
		if dt, ok := elemType(vi); ok {
			g.outputTypes[i] = dt
		}
		g.outputs = append(g.outputs, vi.Name)
		g.isOutput[vi.Name] = true
	}

	// Nested graphs compile first: their free names are implicit inputs of
	// the owning node and take part in ordering.
	attrs := make([][]operators.Attribute, len(gp.Nodes))
	subs := make([][]subgraph, len(gp.Nodes))
	reads := make([][]string, len(gp.Nodes))
	for i := range gp.Nodes {
		np := &gp.Nodes[i]
		var err error
		attrs[i], subs[i], err = c.attributes(np)
		if err != nil {
			return nil, fmt.Errorf("node %s (%s): %w", displayName(np, i), np.OpType, err)
		}
		reads[i] = nodeReads(np, subs[i])
	}

	order, err := topologicalSort(gp.Nodes, func(i int) []string { return reads[i] })
	if err != nil {
		return nil, fmt.Errorf("graph %q: %w", gp.Name, err)
	}

	names := contextNames(gp.Nodes)
	for pos, i := range order {
		np := &gp.Nodes[i]
		opNode := &operators.Node{
			Name:       np.Name,
			OpType:     np.OpType,
			Inputs:     np.Inputs,
			Outputs:    np.Outputs,
			Attributes: attrs[i],
			Domain:     np.Domain,
		}
		op, err := c.registry.Resolve(opNode, c.opsets[operators.NormalizeDomain(np.Domain)])
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", names[i], err)
		}
		n := &node{
			index:     pos,
			context:   names[i],
			proto:     np,
			op:        op,
			reads:     reads[i],
			subgraphs: subs[i],
		}
		for _, out := range np.Outputs {
			if out != "" {
				n.produced++
			}
		}
		g.nodes = append(g.nodes, n)
	}

	g.computeLiveness()
	g.free = g.freeNames()
	return g, nil
}

// attributes converts attribute protos, compiling GRAPH values.
func (c *compiler) attributes(np *NodeProto) ([]operators.Attribute, []subgraph, error) {
	attrs := make([]operators.Attribute, len(np.Attributes))
	var subs []subgraph
	for i := range np.Attributes {
		a := &np.Attributes[i]
		attr := operators.Attribute{
			Name:    a.Name,
			Type:    operators.AttributeType(a.Type),
			F:       a.F,
			I:       a.I,
			S:       a.S,
			Floats:  a.Floats,
			Ints:    a.Ints,
			Strings: a.Strings,
		}
		if a.T != nil {
			t, err := tensorFromProto(a.T)
			if err != nil {
				return nil, nil, fmt.Errorf("attribute %s: %w", a.Name, err)
			}
			attr.T = t
		}
		for j := range a.Tensors {
			t, err := tensorFromProto(&a.Tensors[j])
			if err != nil {
				return nil, nil, fmt.Errorf("attribute %s[%d]: %w", a.Name, j, err)
			}
			attr.Tensors = append(attr.Tensors, t)
		}
		if a.G != nil {
			sub, err := c.compile(a.G)
			if err != nil {
				return nil, nil, fmt.Errorf("attribute %s: %w", a.Name, err)
			}
			attr.G = sub
			subs = append(subs, subgraph{context: a.Name, graph: sub})
		}
		for j := range a.Graphs {
			sub, err := c.compile(&a.Graphs[j])
			if err != nil {
				return nil, nil, fmt.Errorf("attribute %s[%d]: %w", a.Name, j, err)
			}
			attr.Graphs = append(attr.Graphs, sub)
			subs = append(subs, subgraph{context: fmt.Sprintf("%s_%d", a.Name, j), graph: sub})
		}
		attrs[i] = attr
	}
	return attrs, subs, nil
}

// nodeReads returns the distinct values a node reads: its bound inputs
// followed by the free names of its nested graphs.
func nodeReads(np *NodeProto, subs []subgraph) []string {
	var reads []string
	for _, in := range np.Inputs {
		if in != "" && !slices.Contains(reads, in) {
			reads = append(reads, in)
		}
	}
	for _, sub := range subs {
		for _, name := range sub.graph.free {
			if !slices.Contains(reads, name) {
				reads = append(reads, name)
			}
		}
	}
	return reads
}

// computeLiveness records, per value, the nodes reading it and the node
// after which it is no longer needed. Graph outputs never die.
func (g *graph) computeLiveness() {
	for _, n := range g.nodes {
		for _, name := range n.reads {
			bm, ok := g.consumers[name]
			if !ok {
				bm = roaring.New()
				g.consumers[name] = bm
			}
			bm.Add(uint32(n.index)) //nolint:gosec // G115: node counts fit in uint32.
		}
	}
	g.lastUse = make([][]string, len(g.nodes))
	for name, bm := range g.consumers {
		if g.isOutput[name] {
			continue
		}
		last := bm.Maximum()
		g.lastUse[last] = append(g.lastUse[last], name)
	}
	for _, names := range g.lastUse {
		slices.Sort(names)
	}
}

// unused reports whether a value produced inside g has no reader at all.
func (g *graph) unused(name string) bool {
	_, read := g.consumers[name]
	return !read && !g.isOutput[name]
}

// freeNames returns the names read in g (or its nested graphs) that g does
// not define itself.
func (g *graph) freeNames() []string {
	defined := make(map[string]bool, len(g.inputs)+len(g.initializers))
	for _, in := range g.inputs {
		defined[in] = true
	}
	for name := range g.initializers {
		defined[name] = true
	}
	for _, n := range g.nodes {
		for _, out := range n.proto.Outputs {
			defined[out] = true
		}
	}
	var free []string
	add := func(name string) {
		if name != "" && !defined[name] && !slices.Contains(free, name) {
			free = append(free, name)
		}
	}
	for _, n := range g.nodes {
		for _, name := range n.reads {
			add(name)
		}
	}
	for _, out := range g.outputs {
		add(out)
	}
	slices.Sort(free)
	return free
}

// displayName returns the node name, or OpType_i when the node has none.
func displayName(np *NodeProto, i int) string {
	if np.Name != "" {
		return np.Name
	}
	return fmt.Sprintf("%s_%d", np.OpType, i)
}

// contextNames assigns every node a unique context name. Dots separate
// context path segments, so they are replaced in node names.
func contextNames(nodes []NodeProto) []string {
	names := make([]string, len(nodes))
	used := make(map[string]bool, len(nodes))
	for i := range nodes {
		base := strings.ReplaceAll(displayName(&nodes[i], i), ".", "_")
		name := base
		for k := 1; used[name]; k++ {
			name = fmt.Sprintf("%s_%d", base, k)
		}
		used[name] = true
		names[i] = name
	}
	return names
}

// topologicalSort sorts nodes in execution order.
// Ensures dependencies are executed before dependents; independent nodes
// keep their file order. It returns node indices.
func topologicalSort(nodes []NodeProto, reads func(i int) []string) ([]int, error) {
	// Build output-to-node map
	outputToNode := make(map[string]int)
	for i := range nodes {
		for _, output := range nodes[i].Outputs {
			if output != "" {
				outputToNode[output] = i
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(nodes))
	result := make([]int, 0, len(nodes))

	var visit func(i int) error
	visit = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w at node %s", ErrCycle, displayName(&nodes[i], i))
		}
		state[i] = visiting

		// Visit dependencies first
		for _, input := range reads(i) {
			if depIdx, ok := outputToNode[input]; ok && depIdx != i {
				if err := visit(depIdx); err != nil {
					return err
				}
			}
		}

		state[i] = done
		result = append(result, i)
		return nil
	}

	// Visit all nodes
	for i := range nodes {
		if err := visit(i); err != nil {
			return nil, err
		}
	}

	return result, nil
}
