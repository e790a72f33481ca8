package onnx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/x448/float16"

	"github.com/born-ml/onnxrun/internal/onnx/operators"
	"github.com/born-ml/onnxrun/internal/tensor"
)

func TestListSupportedOps(t *testing.T) {
	ops := ListSupportedOps()

	// Should have at least basic ops
	if len(ops) < 10 {
		t.Errorf("Expected at least 10 supported ops, got %d", len(ops))
	}

	// Check for essential operators
	essentialOps := []string{"Add", "Identity", "If", "Loop", "Relu", "Reshape"}
	for _, essential := range essentialOps {
		if !slices.Contains(ops, essential) {
			t.Errorf("Missing essential operator: %s", essential)
		}
	}
}

func TestTopologicalSort(t *testing.T) {
	// Create test nodes with dependencies:
	// A -> B -> C
	//      B -> D
	nodes := []NodeProto{
		{Name: "C", Inputs: []string{"b_out"}, Outputs: []string{"c_out"}},
		{Name: "A", Inputs: []string{"input"}, Outputs: []string{"a_out"}},
		{Name: "D", Inputs: []string{"b_out"}, Outputs: []string{"d_out"}},
		{Name: "B", Inputs: []string{"a_out"}, Outputs: []string{"b_out"}},
	}

	sorted, err := topologicalSort(nodes, func(i int) []string { return nodes[i].Inputs })
	if err != nil {
		t.Fatalf("topologicalSort failed: %v", err)
	}

	// Build position map
	positions := make(map[string]int)
	for pos, i := range sorted {
		positions[nodes[i].Name] = pos
	}

	// A must come before B
	if positions["A"] >= positions["B"] {
		t.Error("A should come before B")
	}

	// B must come before C and D
	if positions["B"] >= positions["C"] {
		t.Error("B should come before C")
	}
	if positions["B"] >= positions["D"] {
		t.Error("B should come before D")
	}
}

// TestTopologicalSortImplicitReads checks that values read only by nested
// graphs still order their producers first.
func TestTopologicalSortImplicitReads(t *testing.T) {
	nodes := []NodeProto{
		{Name: "loop", Inputs: []string{"x"}, Outputs: []string{"y"}},
		{Name: "step", Inputs: []string{"x"}, Outputs: []string{"s"}},
	}
	reads := [][]string{{"x", "s"}, {"x"}}
	sorted, err := topologicalSort(nodes, func(i int) []string { return reads[i] })
	if err != nil {
		t.Fatalf("topologicalSort failed: %v", err)
	}
	if !slices.Equal(sorted, []int{1, 0}) {
		t.Errorf("order = %v, expected [1 0]", sorted)
	}
}

func TestTopologicalSortCycle(t *testing.T) {
	nodes := []NodeProto{
		{Name: "A", Inputs: []string{"b"}, Outputs: []string{"a"}},
		{Name: "B", Inputs: []string{"a"}, Outputs: []string{"b"}},
	}
	_, err := topologicalSort(nodes, func(i int) []string { return nodes[i].Inputs })
	if !errors.Is(err, ErrCycle) {
		t.Errorf("expected ErrCycle, got %v", err)
	}
}

func TestContextNames(t *testing.T) {
	nodes := []NodeProto{
		{Name: "enc.block", OpType: "Add"},
		{OpType: "Relu"},
		{Name: "dup", OpType: "Add"},
		{Name: "dup", OpType: "Add"},
		{Name: "Relu_1", OpType: "Relu"},
	}
	got := contextNames(nodes)
	want := []string{"enc_block", "Relu_1", "dup", "dup_1", "Relu_1_1"}
	if !slices.Equal(got, want) {
		t.Errorf("contextNames = %v, expected %v", got, want)
	}
}

func TestTensorFromProto(t *testing.T) {
	// Test float32 tensor
	proto := &TensorProto{
		Name:      "test_tensor",
		DataType:  TensorProtoFloat,
		Dims:      []int64{2, 3},
		FloatData: []float32{1, 2, 3, 4, 5, 6},
	}

	result, err := tensorFromProto(proto)
	if err != nil {
		t.Fatalf("Failed to create tensor: %v", err)
	}

	if !result.Shape().Equal(tensor.Shape{2, 3}) {
		t.Errorf("Wrong shape: %v", result.Shape())
	}
	if result.Name() != "test_tensor" {
		t.Errorf("Wrong name: %q", result.Name())
	}

	data := tensor.Data[float32](result)
	expected := []float32{1, 2, 3, 4, 5, 6}
	for i, v := range expected {
		if data[i] != v {
			t.Errorf("data[%d] = %v, expected %v", i, data[i], v)
		}
	}
}

func TestTensorFromProtoRawData(t *testing.T) {
	// Test raw binary data (little-endian float32)
	rawData := []byte{
		0x00, 0x00, 0x80, 0x3f, // 1.0
		0x00, 0x00, 0x00, 0x40, // 2.0
		0x00, 0x00, 0x40, 0x40, // 3.0
	}

	proto := &TensorProto{
		Name:     "raw_tensor",
		DataType: TensorProtoFloat,
		Dims:     []int64{3},
		RawData:  rawData,
	}

	result, err := tensorFromProto(proto)
	if err != nil {
		t.Fatalf("Failed to create tensor: %v", err)
	}

	data := tensor.Data[float32](result)
	expected := []float32{1.0, 2.0, 3.0}
	for i, v := range expected {
		if data[i] != v {
			t.Errorf("data[%d] = %v, expected %v", i, data[i], v)
		}
	}
}

func TestTensorFromProtoTypes(t *testing.T) {
	tests := []struct {
		name  string
		proto TensorProto
		dtype tensor.DataType
		want  []float64
	}{
		{"int64 raw", TensorProto{DataType: TensorProtoInt64, Dims: []int64{2},
			RawData: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 2, 0, 0, 0, 0, 0, 0, 0}},
			tensor.Int64, []float64{-1, 2}},
		{"int8 int32_data", TensorProto{DataType: TensorProtoInt8, Dims: []int64{2}, Int32Data: []int32{-3, 4}},
			tensor.Int8, []float64{-3, 4}},
		{"bool int32_data", TensorProto{DataType: TensorProtoBool, Dims: []int64{3}, Int32Data: []int32{1, 0, 1}},
			tensor.Bool, []float64{1, 0, 1}},
		{"double", TensorProto{DataType: TensorProtoDouble, Dims: []int64{1}, DoubleData: []float64{0.125}},
			tensor.Float64, []float64{0.125}},
		{"uint32 uint64_data", TensorProto{DataType: TensorProtoUint32, Dims: []int64{1}, Uint64Data: []uint64{7}},
			tensor.Uint32, []float64{7}},
		{"float16 bits", TensorProto{DataType: TensorProtoFloat16, Dims: []int64{2},
			Int32Data: []int32{int32(float16.Fromfloat32(1.5).Bits()), int32(float16.Fromfloat32(-2).Bits())}},
			tensor.Float16, []float64{1.5, -2}},
		{"scalar", TensorProto{DataType: TensorProtoFloat, FloatData: []float32{4}},
			tensor.Float32, []float64{4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tensorFromProto(&tt.proto)
			if err != nil {
				t.Fatalf("tensorFromProto failed: %v", err)
			}
			if result.DType() != tt.dtype {
				t.Errorf("dtype = %s, expected %s", result.DType(), tt.dtype)
			}
			if got := result.Float64s(); !slices.Equal(got, tt.want) {
				t.Errorf("values = %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestTensorFromProtoStrings(t *testing.T) {
	result, err := tensorFromProto(&TensorProto{
		Name: "words", DataType: TensorProtoString, Dims: []int64{2},
		StringData: [][]byte{[]byte("a"), []byte("bc")},
	})
	if err != nil {
		t.Fatalf("tensorFromProto failed: %v", err)
	}
	if !slices.Equal(result.Strings(), []string{"a", "bc"}) {
		t.Errorf("strings = %v", result.Strings())
	}
}

func TestTensorFromProtoErrors(t *testing.T) {
	tests := []struct {
		name  string
		proto TensorProto
		want  string
	}{
		{"external", TensorProto{DataType: TensorProtoFloat, DataLocation: DataLocationExternal}, "external"},
		{"unknown type", TensorProto{DataType: TensorProtoComplex64, Dims: []int64{1}}, ""},
		{"negative dim", TensorProto{DataType: TensorProtoFloat, Dims: []int64{-1}}, "invalid dimension"},
		{"raw length", TensorProto{DataType: TensorProtoFloat, Dims: []int64{2}, RawData: []byte{0, 0, 0, 0}}, "raw data"},
		{"value count", TensorProto{DataType: TensorProtoFloat, Dims: []int64{3}, FloatData: []float32{1}}, "values for shape"},
		{"string count", TensorProto{DataType: TensorProtoString, Dims: []int64{2}, StringData: [][]byte{[]byte("a")}}, "strings for shape"},
		{"dims overflow", TensorProto{DataType: TensorProtoFloat, Dims: []int64{math.MaxInt32, math.MaxInt32, math.MaxInt32}, FloatData: []float32{1}}, "overflows"},
		{"huge dims typed", TensorProto{DataType: TensorProtoFloat, Dims: []int64{math.MaxInt32, math.MaxInt32}, FloatData: []float32{1}}, "values for shape"},
		{"huge dims raw", TensorProto{DataType: TensorProtoInt64, Dims: []int64{math.MaxInt32, math.MaxInt32}, RawData: make([]byte, 8)}, "raw data"},
		{"raw remainder", TensorProto{DataType: TensorProtoFloat, Dims: []int64{1}, RawData: []byte{0, 0, 0, 0, 0}}, "raw data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tensorFromProto(&tt.proto)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
	if _, err := tensorFromProto(&TensorProto{DataLocation: DataLocationExternal}); !errors.Is(err, ErrExternalData) {
		t.Errorf("expected ErrExternalData, got %v", err)
	}
}

func TestLoadFromBytesCorruptInitializer(t *testing.T) {
	proto := modelOf(&GraphProto{
		Inputs:  []ValueInfoProto{tensorValue("input", TensorProtoFloat, 1)},
		Outputs: []ValueInfoProto{tensorValue("output", TensorProtoFloat, 1)},
		Initializers: []TensorProto{{
			Name:      "weight",
			DataType:  TensorProtoFloat,
			Dims:      []int64{math.MaxInt32, math.MaxInt32, math.MaxInt32},
			FloatData: []float32{1},
		}},
		Nodes: []NodeProto{
			opNode("add_node", "Add", []string{"input", "weight"}, []string{"output"}),
		},
	}, 13)

	_, err := LoadFromBytes(Marshal(proto))
	if err == nil {
		t.Fatal("expected error for corrupt initializer")
	}
	if !strings.Contains(err.Error(), "weight") {
		t.Errorf("error %q does not name the initializer", err)
	}
}

// addModel computes output = input + weight.
func addModel(opset int64) *ModelProto {
	return modelOf(&GraphProto{
		Inputs:       []ValueInfoProto{tensorValue("input", TensorProtoFloat, 3)},
		Outputs:      []ValueInfoProto{tensorValue("output", TensorProtoFloat, 3)},
		Initializers: []TensorProto{floatInit("weight", []int64{3}, 1, 1, 1)},
		Nodes: []NodeProto{
			opNode("add_node", "Add", []string{"input", "weight"}, []string{"output"}),
		},
	}, opset)
}

func TestModelCompileSimple(t *testing.T) {
	// Create a simple model: Add(a, b) -> output
	proto := &ModelProto{
		IRVersion: 7,
		OpsetImport: []OperatorSetID{
			{Domain: "", Version: 17},
		},
		Graph: &GraphProto{
			Inputs: []ValueInfoProto{
				{Name: "a"},
				{Name: "b"},
			},
			Outputs: []ValueInfoProto{
				{Name: "output"},
			},
			Nodes: []NodeProto{
				{
					Name:    "add_node",
					OpType:  "Add",
					Inputs:  []string{"a", "b"},
					Outputs: []string{"output"},
				},
			},
		},
	}

	model, err := LoadFromProto(proto, DefaultLoadOptions())
	if err != nil {
		t.Fatalf("Failed to load model: %v", err)
	}
	defer model.Close()

	// Verify structure
	if len(model.InputNames()) != 2 {
		t.Errorf("Expected 2 inputs, got %d", len(model.InputNames()))
	}
	if len(model.OutputNames()) != 1 {
		t.Errorf("Expected 1 output, got %d", len(model.OutputNames()))
	}
	if model.OpsetVersion() != 17 {
		t.Errorf("Expected opset 17, got %d", model.OpsetVersion())
	}
	if want := []string{"main", "main.add_node"}; !slices.Equal(model.Contexts(), want) {
		t.Errorf("contexts = %v, expected %v", model.Contexts(), want)
	}
}

func TestModelForward(t *testing.T) {
	model, err := LoadFromProto(addModel(17), DefaultLoadOptions())
	if err != nil {
		t.Fatalf("Failed to load model: %v", err)
	}
	defer model.Close()

	input := tensor.MustFromSlice([]float32{1, 2, 3}, tensor.Shape{3})
	output, err := model.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	expected := []float32{2, 3, 4}
	data := tensor.Data[float32](output)
	for i, v := range expected {
		if data[i] != v {
			t.Errorf("output[%d] = %v, expected %v", i, data[i], v)
		}
	}
}

func TestModelForwardNamed(t *testing.T) {
	// Chain: Relu(a - b) * b
	proto := modelOf(&GraphProto{
		Inputs: []ValueInfoProto{
			tensorValue("a", TensorProtoFloat, 2),
			tensorValue("b", TensorProtoFloat, 2),
		},
		Outputs: []ValueInfoProto{tensorValue("out", TensorProtoFloat, 2)},
		Nodes: []NodeProto{
			opNode("mul", "Mul", []string{"r", "b"}, []string{"out"}),
			opNode("sub", "Sub", []string{"a", "b"}, []string{"d"}),
			opNode("relu", "Relu", []string{"d"}, []string{"r"}),
		},
	}, 14)

	model, err := LoadFromProto(proto, DefaultLoadOptions())
	if err != nil {
		t.Fatalf("Failed to load model: %v", err)
	}
	defer model.Close()

	outputs, err := model.ForwardNamed(map[string]*tensor.Tensor{
		"a": tensor.MustFromSlice([]float32{5, 1}, tensor.Shape{2}),
		"b": tensor.MustFromSlice([]float32{2, 3}, tensor.Shape{2}),
	})
	if err != nil {
		t.Fatalf("ForwardNamed failed: %v", err)
	}

	out, ok := outputs["out"]
	if !ok {
		t.Fatal("missing output")
	}
	if got := out.Float64s(); !slices.Equal(got, []float64{6, 0}) {
		t.Errorf("out = %v, expected [6 0]", got)
	}
}

func TestLoadUnsupportedOperator(t *testing.T) {
	proto := modelOf(&GraphProto{
		Inputs:  []ValueInfoProto{{Name: "x"}},
		Outputs: []ValueInfoProto{{Name: "y"}},
		Nodes:   []NodeProto{opNode("conv", "Conv", []string{"x"}, []string{"y"})},
	}, 13)
	_, err := LoadFromProto(proto, DefaultLoadOptions())
	if !errors.Is(err, operators.ErrUnknownOperator) {
		t.Errorf("expected ErrUnknownOperator, got %v", err)
	}

	// Add has no version before opset 7.
	_, err = LoadFromProto(addModel(6), DefaultLoadOptions())
	if !errors.Is(err, operators.ErrUnsupportedVersion) {
		t.Errorf("expected ErrUnsupportedVersion, got %v", err)
	}
}

func TestLoadStrictMode(t *testing.T) {
	proto := modelOf(&GraphProto{
		Inputs:  []ValueInfoProto{{Name: "x"}},
		Outputs: []ValueInfoProto{{Name: "y"}},
		Nodes:   []NodeProto{opNode("add", "Add", []string{"x", "ghost"}, []string{"y"})},
	}, 13)

	opts := DefaultLoadOptions()
	opts.StrictMode = true
	if _, err := LoadFromProto(proto, opts); !errors.Is(err, ErrUnboundValue) {
		t.Errorf("strict load: expected ErrUnboundValue, got %v", err)
	}

	model, err := LoadFromProto(proto, DefaultLoadOptions())
	if err != nil {
		t.Fatalf("lenient load failed: %v", err)
	}
	defer model.Close()
	_, err = model.Forward(tensor.MustFromSlice([]float32{1}, tensor.Shape{1}))
	if !errors.Is(err, ErrUnboundValue) {
		t.Errorf("run: expected ErrUnboundValue, got %v", err)
	}
}

func TestLoadCustomOp(t *testing.T) {
	proto := modelOf(&GraphProto{
		Inputs:  []ValueInfoProto{{Name: "x"}},
		Outputs: []ValueInfoProto{{Name: "y"}},
		Nodes: []NodeProto{opNode("double", "Double", []string{"x"}, []string{"y"},
			AttributeProto{Name: "factor", Type: AttributeProtoFloat, F: 2})},
	}, 13)

	opts := DefaultLoadOptions()
	opts.CustomOps = map[string]operators.OpHandler{
		"Double": func(ctx *operators.Context, node *operators.Node, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
			factor := float64(operators.GetAttrFloat(node, "factor", 1))
			out, err := tensor.New(ctx.Arena, inputs[0].DType(), inputs[0].Shape())
			if err != nil {
				return nil, err
			}
			for i := range out.NumElements() {
				out.SetAt(i, inputs[0].At(i)*factor)
			}
			return []*tensor.Tensor{out}, nil
		},
	}
	model, err := LoadFromProto(proto, opts)
	if err != nil {
		t.Fatalf("Failed to load model: %v", err)
	}
	defer model.Close()

	out, err := model.Forward(tensor.MustFromSlice([]int32{3, -4}, tensor.Shape{2}))
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if got := out.Float64s(); !slices.Equal(got, []float64{6, -8}) {
		t.Errorf("out = %v, expected [6 -8]", got)
	}
}

func TestLoadCompressed(t *testing.T) {
	raw := Marshal(addModel(13))
	writers := map[string]func(w io.Writer) (io.WriteCloser, error){
		"model.onnx": func(w io.Writer) (io.WriteCloser, error) { return nopWriteCloser{w}, nil },
		"model.onnx.gz": func(w io.Writer) (io.WriteCloser, error) {
			return gzip.NewWriter(w), nil
		},
		"model.onnx.zst": func(w io.Writer) (io.WriteCloser, error) {
			return zstd.NewWriter(w)
		},
		"model.onnx.lz4": func(w io.Writer) (io.WriteCloser, error) {
			return lz4.NewWriter(w), nil
		},
	}

	dir := t.TempDir()
	for name, newWriter := range writers {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := newWriter(&buf)
			if err != nil {
				t.Fatalf("writer: %v", err)
			}
			if _, err := w.Write(raw); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
				t.Fatalf("Failed to write temp file: %v", err)
			}

			model, err := LoadContext(context.Background(), path)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			defer model.Close()

			out, err := model.Forward(tensor.MustFromSlice([]float32{0, 1, 2}, tensor.Shape{3}))
			if err != nil {
				t.Fatalf("Forward failed: %v", err)
			}
			if got := out.Float64s(); !slices.Equal(got, []float64{1, 2, 3}) {
				t.Errorf("out = %v, expected [1 2 3]", got)
			}
		})
	}
}

func TestWriteModel(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"plain.onnx", "packed.onnx.gz", "packed.onnx.zst", "packed.onnx.lz4"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			n, err := WriteModel(path, addModel(13))
			if err != nil {
				t.Fatalf("WriteModel failed: %v", err)
			}
			st, err := os.Stat(path)
			if err != nil {
				t.Fatal(err)
			}
			if st.Size() != n {
				t.Errorf("reported %d bytes, file has %d", n, st.Size())
			}

			info, err := GetModelInfo(path)
			if err != nil {
				t.Fatalf("GetModelInfo failed: %v", err)
			}
			if info.NodeCount != 1 || info.OpsetVersion != 13 {
				t.Errorf("unexpected info %+v", info)
			}
		})
	}

	if _, err := WriteModel("s3://bucket/model.onnx", addModel(13)); err == nil {
		t.Error("expected error writing to s3")
	}
}

func TestCompressionFor(t *testing.T) {
	tests := map[string]Compression{
		"model.onnx":             CompressionNone,
		"model.onnx.gz":          CompressionGzip,
		"MODEL.ONNX.GZIP":        CompressionGzip,
		"s3://b/model.onnx.zst":  CompressionZstd,
		"model.zstd":             CompressionZstd,
		"model.onnx.lz4":         CompressionLZ4,
		"dir.gz/model.onnx":      CompressionNone,
		"s3://b/dir/model.onnx":  CompressionNone,
		"model.onnx.lz4.partial": CompressionNone,
	}
	for location, want := range tests {
		if got := CompressionFor(location); got != want {
			t.Errorf("CompressionFor(%q) = %s, expected %s", location, got, want)
		}
	}
}

func TestSplitS3(t *testing.T) {
	bucket, key, err := splitS3("s3://models/team/loop.onnx.zst")
	if err != nil {
		t.Fatalf("splitS3 failed: %v", err)
	}
	if bucket != "models" || key != "team/loop.onnx.zst" {
		t.Errorf("got bucket %q key %q", bucket, key)
	}
	for _, bad := range []string{"s3://", "s3://bucket", "s3://bucket/", "s3:///key"} {
		if _, _, err := splitS3(bad); err == nil {
			t.Errorf("splitS3(%q) succeeded, expected error", bad)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.onnx")); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing file: expected ErrNotFound, got %v", err)
	}
	if _, err := Load("s3://models/loop.onnx"); err == nil || !strings.Contains(err.Error(), "endpoint") {
		t.Errorf("s3 without endpoint: got %v", err)
	}

	path := filepath.Join(t.TempDir(), "broken.onnx.gz")
	if err := os.WriteFile(path, []byte("not gzip"), 0o600); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "gzip") {
		t.Errorf("corrupt gzip: got %v", err)
	}
}

func TestInfoFromProto(t *testing.T) {
	info := InfoFromProto(richModel())

	if info.OpsetVersion != 13 || info.Opsets["com.example"] != 2 {
		t.Errorf("opsets = %v (default %d)", info.Opsets, info.OpsetVersion)
	}
	if info.GraphName != "main" || info.NodeCount != 2 || info.WeightCount != 5 {
		t.Errorf("graph %q nodes %d weights %d", info.GraphName, info.NodeCount, info.WeightCount)
	}
	if !slices.Equal(info.InputNames, []string{"M", "x"}) {
		t.Errorf("inputs = %v", info.InputNames)
	}
	if want := []string{"Add", "Custom", "Identity", "Loop"}; !slices.Equal(info.OpTypes, want) {
		t.Errorf("op types = %v, expected %v", info.OpTypes, want)
	}
}

func TestGetModelInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "add.onnx")
	if err := os.WriteFile(path, Marshal(addModel(13)), 0o600); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	info, err := GetModelInfo(path)
	if err != nil {
		t.Fatalf("GetModelInfo failed: %v", err)
	}
	if info.ProducerName != "onnxrun-test" || info.WeightCount != 1 {
		t.Errorf("info = %+v", info)
	}
	if !slices.Equal(info.InputNames, []string{"input"}) {
		t.Errorf("inputs = %v (initializers must be excluded)", info.InputNames)
	}
}
