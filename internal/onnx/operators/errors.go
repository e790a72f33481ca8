package operators

import (
	"errors"
	"fmt"

	"github.com/born-ml/onnxrun/internal/tensor"
)

var (
	// ErrUnknownOperator is returned when no descriptor exists for an operator name.
	ErrUnknownOperator = errors.New("unknown operator")
	// ErrUnsupportedVersion is returned when no version range contains the requested opset.
	ErrUnsupportedVersion = errors.New("unsupported operator version")
	// ErrContract is returned when a node does not satisfy its operator's declared schema.
	ErrContract = errors.New("operator contract violated")
	// ErrUnsupportedType is returned when an input has an element type the operator does not accept.
	ErrUnsupportedType = errors.New("unsupported element type")
	// ErrArity is returned when a nested graph produces the wrong number of values.
	ErrArity = errors.New("arity mismatch")
)

// ResolutionError reports that a node could not be mapped to an implementation.
//
// The cause (ErrUnknownOperator or ErrUnsupportedVersion) can be accessed via errors.Unwrap.
type ResolutionError struct {
	Domain  string
	OpType  string
	Version int
	Err     error
}

func (e *ResolutionError) Error() string {
	op := e.OpType
	if e.Domain != "" {
		op = e.Domain + "." + op
	}
	if e.Version == 0 {
		return fmt.Sprintf("resolve %s: %v", op, e.Err)
	}
	return fmt.Sprintf("resolve %s version %d: %v", op, e.Version, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ContractError reports a construction-time schema violation: an unknown or
// missing attribute, an attribute of the wrong kind, or a bad input/output count.
type ContractError struct {
	OpType string
	Node   string
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s node %q: %s", e.OpType, e.Node, e.Reason)
}

func (e *ContractError) Unwrap() error { return ErrContract }

// TypeError reports an input whose element type the operator does not accept.
type TypeError struct {
	OpType string
	Node   string
	Input  string
	Type   tensor.DataType
	Reason string
}

func (e *TypeError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "unsupported element type"
	}
	return fmt.Sprintf("%s node %q: input %q (%s): %s", e.OpType, e.Node, e.Input, e.Type, reason)
}

func (e *TypeError) Unwrap() error { return ErrUnsupportedType }

// ArityError reports a runtime count mismatch, typically between a nested
// graph's outputs and what its control-flow operator expects.
type ArityError struct {
	OpType string
	Node   string
	What   string
	Want   int
	Got    int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("%s node %q: %s: expected %d, got %d", e.OpType, e.Node, e.What, e.Want, e.Got)
}

func (e *ArityError) Unwrap() error { return ErrArity }
