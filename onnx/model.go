package onnx

import (
	"context"

	"github.com/born-ml/onnxrun/internal/tensor"
)

// Model represents a loaded ONNX model ready for inference.
//
// This interface hides the internal implementation and allows for:
//   - Easy mocking in tests
//   - Decoupling from internal package structure
//
// A model is immutable and safe for concurrent use. Forward, ForwardNamed
// and Run borrow a session from the model's pool for each call.
type Model interface {
	// Forward runs inference with a single input tensor.
	// For models with multiple inputs, use ForwardNamed.
	//
	// Returns an error if the model does not have exactly one input
	// or one output. In such cases, use ForwardNamed instead.
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)

	// ForwardNamed runs inference with named inputs.
	// Returns a map of output name to tensor.
	//
	// Example:
	//
	//	outputs, err := model.ForwardNamed(map[string]*tensor.Tensor{
	//	    "M":    tripCount,
	//	    "cond": keepGoing,
	//	})
	//	if err != nil {
	//	    log.Fatal(err)
	//	}
	//	total := outputs["total"]
	ForwardNamed(inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error)

	// Run runs inference under ctx and returns outputs in declared order.
	// Cancelling ctx stops the run between nodes.
	Run(ctx context.Context, inputs map[string]*tensor.Tensor) (*Outputs, error)

	// NewSession returns a session with its own arena. The caller closes it.
	NewSession() *Session

	// InputNames returns the names of model inputs.
	InputNames() []string

	// OutputNames returns the names of model outputs.
	OutputNames() []string

	// OpsetVersion returns the default-domain opset version of the model.
	OpsetVersion() int64

	// Contexts returns the arena context paths a run can enter, such as
	// "main.loop.body.add".
	Contexts() []string

	// Metadata returns model metadata as key-value pairs.
	//
	// Common metadata keys:
	//   - "producer_name": Framework that exported the model (e.g., "pytorch")
	//   - "producer_version": Version of the exporter
	//   - "domain": Domain of the model (usually "")
	//   - Custom keys from model.metadata_props
	Metadata() map[string]string

	// Close closes every pooled session. Tensors already returned stay valid.
	Close()
}
