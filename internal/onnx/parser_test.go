package onnx

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// richModel exercises every field the parser understands.
func richModel() *ModelProto {
	body := &GraphProto{
		Name: "body",
		Nodes: []NodeProto{
			opNode("cond", "Identity", []string{"cond_in"}, []string{"cond_out"}),
			opNode("acc", "Add", []string{"acc_in", "step"}, []string{"acc_out"}),
		},
		Inputs: []ValueInfoProto{
			tensorValue("iter", TensorProtoInt64),
			tensorValue("cond_in", TensorProtoBool),
			tensorValue("acc_in", TensorProtoFloat, 2),
		},
		Outputs: []ValueInfoProto{
			tensorValue("cond_out", TensorProtoBool),
			tensorValue("acc_out", TensorProtoFloat, 2),
		},
	}
	return &ModelProto{
		IRVersion:       8,
		ProducerName:    "onnxrun-test",
		ProducerVersion: "1.2.3",
		Domain:          "ai.example",
		ModelVersion:    4,
		DocString:       "round trip",
		OpsetImport:     []OperatorSetID{{Domain: "", Version: 13}, {Domain: "com.example", Version: 2}},
		MetadataProps:   []StringStringEntry{{Key: "author", Value: "tests"}},
		Graph: &GraphProto{
			Name:      "main",
			DocString: "graph doc",
			Nodes: []NodeProto{
				{
					Name:    "loop",
					OpType:  "Loop",
					Inputs:  []string{"M", "", "x"},
					Outputs: []string{"y"},
					Attributes: []AttributeProto{
						graphAttr("body", body),
					},
					DocString: "node doc",
				},
				{
					Name:    "attrs",
					OpType:  "Custom",
					Domain:  "com.example",
					Inputs:  []string{"y"},
					Outputs: []string{"z"},
					Attributes: []AttributeProto{
						{Name: "f", Type: AttributeProtoFloat, F: -1.5},
						{Name: "i", Type: AttributeProtoInt, I: -7},
						{Name: "s", Type: AttributeProtoString, S: []byte("hello")},
						{Name: "floats", Type: AttributeProtoFloats, Floats: []float32{1, 2.5}},
						{Name: "ints", Type: AttributeProtoInts, Ints: []int64{-1, 0, 300}},
						{Name: "strings", Type: AttributeProtoStrings, Strings: [][]byte{[]byte("a"), []byte("")}},
						{Name: "t", Type: AttributeProtoTensor, T: &TensorProto{DataType: TensorProtoInt64, Dims: []int64{2}, Int64Data: []int64{3, -4}}},
						{Name: "tensors", Type: AttributeProtoTensors, Tensors: []TensorProto{
							{DataType: TensorProtoDouble, Dims: []int64{1}, DoubleData: []float64{0.25}},
							{DataType: TensorProtoUint64, Dims: []int64{1}, Uint64Data: []uint64{1 << 40}},
						}},
						{Name: "graphs", Type: AttributeProtoGraphs, Graphs: []GraphProto{{Name: "g0"}, {Name: "g1"}}},
					},
				},
			},
			Initializers: []TensorProto{
				floatInit("step", []int64{2}, 0.5, 1),
				{Name: "raw", DataType: TensorProtoInt32, Dims: []int64{2}, RawData: []byte{1, 0, 0, 0, 2, 0, 0, 0}},
				{Name: "words", DataType: TensorProtoString, Dims: []int64{2}, StringData: [][]byte{[]byte("x"), []byte("yz")}},
				{Name: "half", DataType: TensorProtoFloat16, Dims: []int64{1}, Int32Data: []int32{0x3c00}},
				{Name: "far", DataType: TensorProtoFloat, Dims: []int64{1}, DataLocation: DataLocationExternal},
			},
			Inputs: []ValueInfoProto{
				tensorValue("M", TensorProtoInt64),
				{Name: "x", Type: &TypeProto{TensorType: &TensorTypeProto{
					ElemType: TensorProtoFloat,
					Shape:    &TensorShapeProto{Dims: []DimensionProto{{DimParam: "batch"}, {DimValue: 2}}},
				}, Denotation: "TENSOR"}, DocString: "input doc"},
			},
			Outputs:   []ValueInfoProto{tensorValue("z", TensorProtoFloat, 2)},
			ValueInfo: []ValueInfoProto{tensorValue("y", TensorProtoFloat, 2)},
		},
	}
}

func TestParseRoundTrip(t *testing.T) {
	want := richModel()
	got, err := Parse(Marshal(want))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("model mismatch (-want +got):\n%s", diff)
	}
}

// TestParseUnpackedRepeated checks that repeated numeric fields are accepted
// in both packed and unpacked encodings.
func TestParseUnpackedRepeated(t *testing.T) {
	var tw protoWriter
	tw.int(1, 2) // dims, unpacked
	tw.int(1, 3)
	tw.int(2, TensorProtoInt64)
	tw.int(7, 5) // int64_data, unpacked
	tw.packedInts(7, []int64{6, 7, 8, 9, 10})
	tw.str(8, "w")

	var gw protoWriter
	gw.bytes(5, tw.buf)
	var mw protoWriter
	mw.bytes(7, gw.buf)

	m, err := Parse(mw.buf)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	init := m.Graph.Initializers[0]
	if diff := cmp.Diff([]int64{2, 3}, init.Dims); diff != "" {
		t.Errorf("dims (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{5, 6, 7, 8, 9, 10}, init.Int64Data); diff != "" {
		t.Errorf("int64_data (-want +got):\n%s", diff)
	}
}

func TestParseSkipsUnknownFields(t *testing.T) {
	var w protoWriter
	w.int(1, 7)
	w.str(99, "future field")
	w.tag(98, wire64Bit)
	w.buf = append(w.buf, make([]byte, 8)...)
	w.tag(97, wire32Bit)
	w.buf = append(w.buf, make([]byte, 4)...)
	w.str(2, "producer")

	m, err := Parse(w.buf)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.IRVersion != 7 || m.ProducerName != "producer" {
		t.Errorf("got ir_version %d producer %q", m.IRVersion, m.ProducerName)
	}
}

func TestParseTruncated(t *testing.T) {
	data := Marshal(richModel())
	for _, n := range []int{1, len(data) / 2, len(data) - 1} {
		_, err := Parse(data[:n])
		if err == nil {
			t.Errorf("Parse(%d of %d bytes) succeeded, want error", n, len(data))
			continue
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Logf("truncated at %d: %v", n, err)
		}
	}
}

func TestParseBadPackedLength(t *testing.T) {
	var tw protoWriter
	tw.bytes(4, []byte{1, 2, 3}) // float_data not a multiple of 4
	var gw protoWriter
	gw.bytes(5, tw.buf)
	var mw protoWriter
	mw.bytes(7, gw.buf)

	if _, err := Parse(mw.buf); err == nil || !strings.Contains(err.Error(), "multiple of 4") {
		t.Errorf("expected packed length error, got %v", err)
	}
}

func TestParseGraphDepthLimit(t *testing.T) {
	g := &GraphProto{Name: "leaf"}
	for i := 0; i < maxGraphDepth+1; i++ {
		g = &GraphProto{Nodes: []NodeProto{{OpType: "If", Attributes: []AttributeProto{graphAttr("then_branch", g)}}}}
	}
	_, err := Parse(Marshal(modelOf(g, 13)))
	if err == nil || !strings.Contains(err.Error(), "nesting") {
		t.Errorf("expected nesting error, got %v", err)
	}
}

// TestParseFile tests parsing from file.
func TestParseFile(t *testing.T) {
	tmpFile := filepath.Join(t.TempDir(), "test.onnx")
	if err := os.WriteFile(tmpFile, Marshal(richModel()), 0o600); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}

	model, err := ParseFile(tmpFile)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if model.Graph == nil {
		t.Fatal("Graph is nil")
	}
	if len(model.Graph.Nodes) != 2 {
		t.Errorf("Expected 2 nodes, got %d", len(model.Graph.Nodes))
	}
}

// TestParseInvalidFile tests error handling for non-existent file.
func TestParseInvalidFile(t *testing.T) {
	_, err := ParseFile("/nonexistent/file.onnx")
	if err == nil {
		t.Error("Expected error for non-existent file, got nil")
	}
}

// TestParseEmptyData checks that an empty buffer is an empty model.
func TestParseEmptyData(t *testing.T) {
	m, err := Parse([]byte{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Graph != nil {
		t.Errorf("expected no graph, got %+v", m.Graph)
	}
}
