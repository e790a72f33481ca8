package onnx

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/born-ml/onnxrun/internal/onnx/operators"
	"github.com/born-ml/onnxrun/internal/tensor"
)

// mainContext names the top-level graph context when the graph is unnamed.
const mainContext = "main"

// Model represents a loaded ONNX model ready for inference.
// A model is immutable once loaded and may be shared by any number of
// sessions.
type Model struct {
	proto        *ModelProto
	registry     *operators.Registry
	main         *graph
	contextName  string
	contexts     []string
	opsetVersion int64
	opts         LoadOptions
	logger       *slog.Logger
	pool         *Pool
}

// InputNames returns the names of model inputs.
func (m *Model) InputNames() []string {
	return m.main.inputs
}

// OutputNames returns the names of model outputs.
func (m *Model) OutputNames() []string {
	return m.main.outputs
}

// InputType returns the declared element type of a model input.
func (m *Model) InputType(name string) (tensor.DataType, bool) {
	for i, in := range m.main.inputs {
		if in == name {
			dt, ok := m.main.inputTypes[i]
			return dt, ok
		}
	}
	return 0, false
}

// OpsetVersion returns the ONNX opset version.
func (m *Model) OpsetVersion() int64 {
	return m.opsetVersion
}

// Contexts returns every arena context path a run of this model can enter.
func (m *Model) Contexts() []string {
	return m.contexts
}

// Registry returns the operator registry the model was resolved against.
func (m *Model) Registry() *operators.Registry {
	return m.registry
}

// Metadata returns model metadata as key-value pairs.
func (m *Model) Metadata() map[string]string {
	meta := make(map[string]string)
	for _, prop := range m.proto.MetadataProps {
		meta[prop.Key] = prop.Value
	}
	meta["producer_name"] = m.proto.ProducerName
	meta["producer_version"] = m.proto.ProducerVersion
	meta["domain"] = m.proto.Domain
	return meta
}

// Proto returns the parsed model the runtime was built from.
func (m *Model) Proto() *ModelProto {
	return m.proto
}

// Info summarizes the model.
func (m *Model) Info() *ModelInfo {
	return InfoFromProto(m.proto)
}

// Pool returns the shared session pool used by Forward and ForwardNamed.
func (m *Model) Pool() *Pool {
	return m.pool
}

// Close closes every pooled session.
func (m *Model) Close() {
	m.pool.Close()
}

// Forward runs inference with a single input tensor.
// For models with multiple inputs, use ForwardNamed.
func (m *Model) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(m.main.inputs) != 1 {
		return nil, fmt.Errorf("model has %d inputs, use ForwardNamed", len(m.main.inputs))
	}

	outputs, err := m.ForwardNamed(map[string]*tensor.Tensor{
		m.main.inputs[0]: input,
	})
	if err != nil {
		return nil, err
	}

	if len(m.main.outputs) != 1 {
		return nil, fmt.Errorf("model has %d outputs, access via ForwardNamed result", len(m.main.outputs))
	}

	return outputs[m.main.outputs[0]], nil
}

// ForwardNamed runs inference with named inputs.
// Returns a map of output name to tensor.
func (m *Model) ForwardNamed(inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	out, err := m.Run(context.Background(), inputs)
	if err != nil {
		return nil, err
	}
	result := make(map[string]*tensor.Tensor, out.Len())
	for pair := out.Oldest(); pair != nil; pair = pair.Next() {
		result[pair.Key] = pair.Value
	}
	return result, nil
}

// Run executes the model on a pooled session and returns outputs in
// declared order.
func (m *Model) Run(ctx context.Context, inputs map[string]*tensor.Tensor) (*Outputs, error) {
	return m.pool.Run(ctx, inputs)
}

// compile prepares the model for inference.
func (m *Model) compile() error {
	gp := m.proto.Graph
	if gp == nil {
		return fmt.Errorf("model has no graph")
	}

	// Get opset version
	for _, opset := range m.proto.OpsetImport {
		if operators.NormalizeDomain(opset.Domain) == operators.DefaultDomain {
			m.opsetVersion = opset.Version
			break
		}
	}

	c := newCompiler(m.registry, m.proto.OpsetImport)
	g, err := c.compile(gp)
	if err != nil {
		return err
	}
	if len(g.free) > 0 {
		if m.opts.StrictMode {
			return fmt.Errorf("%w: graph reads %s", ErrUnboundValue, strings.Join(g.free, ", "))
		}
		m.logger.Warn("graph reads values nothing produces", "values", g.free)
	}

	m.main = g
	m.contextName = mainContext
	if g.name != "" {
		m.contextName = strings.ReplaceAll(g.name, ".", "_")
	}
	m.contexts = g.contexts(m.contextName)
	m.logger.Debug("model compiled", "graph", m.contextName, "nodes", len(g.nodes), "contexts", len(m.contexts))
	return nil
}
