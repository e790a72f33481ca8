// Package onnx loads ONNX models and runs them with a context-scoped memory
// arena.
//
// Graphs may contain Loop and If nodes whose bodies are themselves graphs.
// Every node runs inside a named arena context, so buffers acquired by a node
// are recycled when the next invocation of the same node asks for them, and
// intermediate values are released as soon as their last reader has run.
//
// # Example Usage
//
//	import (
//	    "github.com/born-ml/onnxrun/onnx"
//	    "github.com/born-ml/onnxrun/tensor"
//	)
//
//	model, err := onnx.Load("loop.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer model.Close()
//
//	outputs, err := model.Run(ctx, map[string]*tensor.Tensor{
//	    "M": tensor.Scalar(int64(10)),
//	    "x": tensor.MustFromSlice([]float32{1, 2}, tensor.Shape{2}),
//	})
//
// Models may be plain files, .gz/.zst/.lz4 compressed files or s3://bucket/key
// locations (see [S3Config]).
//
// # Supported Operators
//
//   - Control flow: Loop, If
//   - Arithmetic: Add, Sub, Mul, Div, Neg
//   - Comparison: Less, Greater, Equal
//   - Activation: Relu
//   - Other: Identity
//
// Use [ListSupportedOps] to get the complete list of supported operators.
package onnx

import (
	"context"

	internalonnx "github.com/born-ml/onnxrun/internal/onnx"
)

// LoadOptions configures ONNX model loading behavior.
type LoadOptions = internalonnx.LoadOptions

// S3Config points the loader at an S3-compatible object store.
type S3Config = internalonnx.S3Config

// Outputs maps output names to tensors in the model's declared order.
type Outputs = internalonnx.Outputs

// Session runs a model on one arena. A session is not safe for concurrent
// use; use [Pool] or Model.Run for that.
type Session = internalonnx.Session

// Pool lends a bounded number of sessions to concurrent callers.
type Pool = internalonnx.Pool

// NodeError reports the node, operator and arena context of a failed run.
type NodeError = internalonnx.NodeError

// Errors returned by sessions and pools.
var (
	ErrMissingInput  = internalonnx.ErrMissingInput
	ErrUnknownInput  = internalonnx.ErrUnknownInput
	ErrInputType     = internalonnx.ErrInputType
	ErrSessionClosed = internalonnx.ErrSessionClosed
	ErrPoolClosed    = internalonnx.ErrPoolClosed
	ErrUnboundValue  = internalonnx.ErrUnboundValue
	ErrNotFound      = internalonnx.ErrNotFound
)

// DefaultLoadOptions returns the default options for loading ONNX models.
//
// Default configuration:
//   - Strict mode: disabled (graphs reading undefined values load with a warning)
//   - Sessions: GOMAXPROCS
func DefaultLoadOptions() LoadOptions {
	return internalonnx.DefaultLoadOptions()
}

// Load loads an ONNX model from a file path or s3:// location.
//
// Every node is resolved against the operator registry for the model's
// opset, so unsupported operators fail here rather than during a run.
//
// Example:
//
//	model, err := onnx.Load("model.onnx.zst")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Inputs:", model.InputNames())
//	fmt.Println("Outputs:", model.OutputNames())
//	fmt.Println("Opset:", model.OpsetVersion())
func Load(location string, opts ...LoadOptions) (Model, error) {
	return LoadContext(context.Background(), location, opts...)
}

// LoadContext is like Load but bounds remote reads by ctx.
func LoadContext(ctx context.Context, location string, opts ...LoadOptions) (Model, error) {
	m, err := internalonnx.LoadContext(ctx, location, opts...)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// LoadFromBytes loads an ONNX model from raw bytes.
//
// This is useful when the model is embedded in the binary or loaded
// from a network source.
func LoadFromBytes(data []byte, opts ...LoadOptions) (Model, error) {
	m, err := internalonnx.LoadFromBytes(data, opts...)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ModelInfo contains metadata about an ONNX model without preparing it.
//
// Use [GetModelInfo] to quickly inspect a model file before loading.
type ModelInfo = internalonnx.ModelInfo

// GetModelInfo extracts metadata from an ONNX file without compiling it.
//
// Example:
//
//	info, err := onnx.GetModelInfo("model.onnx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Producer: %s\n", info.ProducerName)
//	fmt.Printf("Opset: %d\n", info.OpsetVersion)
//	fmt.Printf("Operators: %v\n", info.OpTypes)
func GetModelInfo(location string, opts ...LoadOptions) (*ModelInfo, error) {
	return internalonnx.GetModelInfo(location, opts...)
}

// ListSupportedOps returns the operators the runtime can resolve.
// Operators outside the default domain are prefixed with their domain.
func ListSupportedOps() []string {
	return internalonnx.ListSupportedOps()
}
