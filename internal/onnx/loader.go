package onnx

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"

	"github.com/born-ml/onnxrun/internal/memory"
	"github.com/born-ml/onnxrun/internal/onnx/operators"
	"github.com/born-ml/onnxrun/internal/parallel"
)

// LoadOptions configures model loading behavior.
type LoadOptions struct {
	// StrictMode rejects graphs that read values nothing produces
	// (default: false = warn and fail at run time).
	StrictMode bool

	// CustomOps provides custom operator handlers, keyed by op type in the
	// default domain.
	CustomOps map[string]operators.OpHandler

	// Logger receives load and run diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// MaxSessions bounds the sessions Forward and Run use concurrently.
	MaxSessions int

	// Parallel configures elementwise kernels. The zero value uses
	// parallel.DefaultConfig.
	Parallel parallel.Config

	// Host allocates arena arrays. Defaults to memory.Native.
	Host memory.Host

	// S3 configures access to s3:// model locations.
	S3 S3Config
}

// DefaultLoadOptions returns default loading options.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		StrictMode:  false,
		CustomOps:   nil,
		MaxSessions: runtime.GOMAXPROCS(0),
		Host:        memory.Native,
	}
}

func resolveOptions(opts []LoadOptions) LoadOptions {
	opt := DefaultLoadOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.MaxSessions < 1 {
		opt.MaxSessions = runtime.GOMAXPROCS(0)
	}
	if opt.Host == nil {
		opt.Host = memory.Native
	}
	return opt
}

// Load loads an ONNX model and prepares it for inference. The location is a
// file path or s3://bucket/key; .gz, .zst and .lz4 files are decompressed.
//
// Example:
//
//	model, err := onnx.Load("loop.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer model.Close()
//	output, err := model.Forward(input)
func Load(location string, opts ...LoadOptions) (*Model, error) {
	return LoadContext(context.Background(), location, opts...)
}

// LoadContext is like Load but bounds remote reads by ctx.
func LoadContext(ctx context.Context, location string, opts ...LoadOptions) (*Model, error) {
	opt := resolveOptions(opts)

	data, err := readModel(ctx, location, opt.S3)
	if err != nil {
		return nil, err
	}

	// Parse ONNX data
	proto, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ONNX file: %w", err)
	}

	opt.Logger.Debug("model read", "location", location, "bytes", len(data), "compression", CompressionFor(location))
	return LoadFromProto(proto, opt)
}

// LoadFromBytes loads an ONNX model from bytes.
func LoadFromBytes(data []byte, opts ...LoadOptions) (*Model, error) {
	// Parse ONNX data
	proto, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ONNX data: %w", err)
	}

	return LoadFromProto(proto, resolveOptions(opts))
}

// LoadFromProto loads a model from parsed ModelProto.
// Every node is resolved against the registry up front, so unsupported
// operators and contract violations surface here rather than mid-run.
func LoadFromProto(proto *ModelProto, opt LoadOptions) (*Model, error) {
	opt = resolveOptions([]LoadOptions{opt})

	// Create operator registry
	registry := operators.NewRegistry()

	// Add custom operators
	for opType, handler := range opt.CustomOps {
		registry.RegisterFunc(opType, handler)
	}

	// Create model
	model := &Model{
		proto:    proto,
		registry: registry,
		opts:     opt,
		logger:   opt.Logger,
	}

	// Compile model
	if err := model.compile(); err != nil {
		return nil, fmt.Errorf("failed to compile model: %w", err)
	}
	model.pool = newPool(model, opt.MaxSessions)

	return model, nil
}

// ModelInfo contains basic information about an ONNX model without fully loading it.
type ModelInfo struct {
	IRVersion       int64            `json:"ir_version"`
	OpsetVersion    int64            `json:"opset_version"`
	Opsets          map[string]int64 `json:"opsets"`
	ProducerName    string           `json:"producer_name"`
	ProducerVersion string           `json:"producer_version"`
	GraphName       string           `json:"graph_name"`
	InputNames      []string         `json:"inputs"`
	OutputNames     []string         `json:"outputs"`
	NodeCount       int              `json:"nodes"`
	WeightCount     int              `json:"weights"`
	// OpTypes lists distinct operator types, including nested graphs.
	OpTypes []string `json:"op_types"`
}

// GetModelInfo extracts basic info from an ONNX file.
func GetModelInfo(location string, opts ...LoadOptions) (*ModelInfo, error) {
	opt := resolveOptions(opts)
	data, err := readModel(context.Background(), location, opt.S3)
	if err != nil {
		return nil, err
	}
	proto, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return InfoFromProto(proto), nil
}

// InfoFromProto summarizes a parsed model.
func InfoFromProto(proto *ModelProto) *ModelInfo {
	info := &ModelInfo{
		IRVersion:       proto.IRVersion,
		ProducerName:    proto.ProducerName,
		ProducerVersion: proto.ProducerVersion,
		Opsets:          make(map[string]int64, len(proto.OpsetImport)),
	}

	// Get opset version
	for _, opset := range proto.OpsetImport {
		domain := operators.NormalizeDomain(opset.Domain)
		info.Opsets[domain] = opset.Version
		if domain == operators.DefaultDomain {
			info.OpsetVersion = opset.Version
		}
	}

	if proto.Graph != nil {
		graph := proto.Graph
		info.GraphName = graph.Name

		// Get inputs (excluding initializers)
		initNames := make(map[string]bool)
		for i := range graph.Initializers {
			initNames[graph.Initializers[i].Name] = true
		}
		for i := range graph.Inputs {
			if !initNames[graph.Inputs[i].Name] {
				info.InputNames = append(info.InputNames, graph.Inputs[i].Name)
			}
		}

		// Get outputs
		for _, output := range graph.Outputs {
			info.OutputNames = append(info.OutputNames, output.Name)
		}

		info.NodeCount = len(graph.Nodes)
		info.WeightCount = len(graph.Initializers)
		info.OpTypes = collectOpTypes(graph, nil)
		slices.Sort(info.OpTypes)
	}

	return info
}

// collectOpTypes appends the distinct op types of g and its nested graphs.
func collectOpTypes(g *GraphProto, seen []string) []string {
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if !slices.Contains(seen, n.OpType) {
			seen = append(seen, n.OpType)
		}
		for j := range n.Attributes {
			a := &n.Attributes[j]
			if a.G != nil {
				seen = collectOpTypes(a.G, seen)
			}
			for k := range a.Graphs {
				seen = collectOpTypes(&a.Graphs[k], seen)
			}
		}
	}
	return seen
}

// ListSupportedOps returns all supported ONNX operators.
func ListSupportedOps() []string {
	registry := operators.NewRegistry()
	return registry.SupportedOps()
}
