// Package api holds the JSON wire types of the onnxrun server and a client
// for them.
package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/born-ml/onnxrun/internal/onnx"
	"github.com/born-ml/onnxrun/internal/tensor"
)

// StatusError is an error with an HTTP status code and message.
type StatusError struct {
	StatusCode   int
	Status       string
	ErrorMessage string `json:"error"`
}

func (e StatusError) Error() string {
	switch {
	case e.Status != "" && e.ErrorMessage != "":
		return fmt.Sprintf("%s: %s", e.Status, e.ErrorMessage)
	case e.Status != "":
		return e.Status
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return http.StatusText(e.StatusCode)
	}
}

// Tensor is the JSON form of a tensor. Data holds the elements in row-major
// order as numbers, booleans or strings depending on DType.
type Tensor struct {
	DType tensor.DataType `json:"dtype"`
	Shape []int           `json:"shape"`
	Data  json.RawMessage `json:"data"`
}

// FromTensor encodes t.
func FromTensor(t *tensor.Tensor) (Tensor, error) {
	var data any
	switch dt := t.DType(); {
	case dt == tensor.String:
		data = t.Strings()
	case dt == tensor.Bool:
		vals := t.Int64s()
		bs := make([]bool, len(vals))
		for i, v := range vals {
			bs[i] = v != 0
		}
		data = bs
	case dt == tensor.Uint64:
		data = tensor.Data[uint64](t)
	case dt.Float():
		vals := t.Float64s()
		for i, v := range vals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return Tensor{}, fmt.Errorf("tensor %q: element %d is %v, which JSON cannot carry", t.Name(), i, v)
			}
		}
		data = vals
	default:
		data = t.Int64s()
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return Tensor{}, err
	}
	shape := t.Shape()
	if shape == nil {
		shape = tensor.Shape{}
	}
	return Tensor{DType: t.DType(), Shape: shape, Data: raw}, nil
}

// ToTensor decodes t into a detached tensor.
func (t Tensor) ToTensor() (*tensor.Tensor, error) {
	shape := tensor.Shape(t.Shape)
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if !t.DType.Valid() {
		return nil, fmt.Errorf("invalid data type %d", int(t.DType))
	}

	switch dt := t.DType; {
	case dt == tensor.String:
		var vals []string
		if err := json.Unmarshal(t.Data, &vals); err != nil {
			return nil, fmt.Errorf("%s data: %w", dt, err)
		}
		return tensor.FromStrings(vals, shape)
	case dt == tensor.Bool:
		var vals []bool
		if err := json.Unmarshal(t.Data, &vals); err != nil {
			return nil, fmt.Errorf("%s data: %w", dt, err)
		}
		return tensor.FromSlice(vals, shape)
	case dt == tensor.Uint64:
		var vals []uint64
		if err := json.Unmarshal(t.Data, &vals); err != nil {
			return nil, fmt.Errorf("%s data: %w", dt, err)
		}
		return tensor.FromSlice(vals, shape)
	case dt.Float():
		var vals []float64
		if err := json.Unmarshal(t.Data, &vals); err != nil {
			return nil, fmt.Errorf("%s data: %w", dt, err)
		}
		return fill(dt, shape, len(vals), func(out *tensor.Tensor, i int) { out.SetAt(i, vals[i]) })
	default:
		var vals []int64
		if err := json.Unmarshal(t.Data, &vals); err != nil {
			return nil, fmt.Errorf("%s data: %w", dt, err)
		}
		return fill(dt, shape, len(vals), func(out *tensor.Tensor, i int) { out.SetInt64At(i, vals[i]) })
	}
}

func fill(dt tensor.DataType, shape tensor.Shape, n int, set func(*tensor.Tensor, int)) (*tensor.Tensor, error) {
	if shape.NumElements() != n {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), n)
	}
	out, err := tensor.New(nil, dt, shape)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		set(out, i)
	}
	return out, nil
}

// Tensors maps names to tensors in a stable order.
type Tensors = orderedmap.OrderedMap[string, Tensor]

// RunRequest is the body of POST /api/run.
type RunRequest struct {
	Inputs map[string]Tensor `json:"inputs"`
}

// Decode converts the request inputs into runtime tensors.
func (r RunRequest) Decode() (map[string]*tensor.Tensor, error) {
	out := make(map[string]*tensor.Tensor, len(r.Inputs))
	for name, in := range r.Inputs {
		t, err := in.ToTensor()
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

// RunResponse is the reply to POST /api/run. Outputs keep the model's
// declared output order.
type RunResponse struct {
	Outputs  *Tensors      `json:"outputs"`
	Session  string        `json:"session,omitempty"`
	Duration time.Duration `json:"duration"`
}

// EncodeOutputs converts run outputs to their JSON form.
func EncodeOutputs(outputs *onnx.Outputs) (*Tensors, error) {
	out := orderedmap.New[string, Tensor](outputs.Len())
	for pair := outputs.Oldest(); pair != nil; pair = pair.Next() {
		t, err := FromTensor(pair.Value)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", pair.Key, err)
		}
		out.Set(pair.Key, t)
	}
	return out, nil
}

// InfoResponse is the reply to GET /api/info.
type InfoResponse struct {
	onnx.ModelInfo
	InputTypes map[string]tensor.DataType `json:"input_types,omitempty"`
	Contexts   []string                   `json:"contexts"`
	Sessions   int                        `json:"max_sessions"`
}

// OpInfo describes one registered operator.
type OpInfo struct {
	Name     string   `json:"name"`
	Domain   string   `json:"domain"`
	Versions []string `json:"versions"`
}

// OpsResponse is the reply to GET /api/ops.
type OpsResponse struct {
	Ops []OpInfo `json:"ops"`
}

// VersionResponse is the reply to GET /api/version.
type VersionResponse struct {
	Version string `json:"version"`
}
