package onnx

import (
	"encoding/binary"
	"math"
)

// protoWriter encodes the proto structs in the protobuf wire format read by
// Parse. Zero scalars are omitted.
type protoWriter struct {
	buf []byte
}

func (w *protoWriter) tag(field, wire int) {
	w.varint(uint64(field<<3 | wire)) //nolint:gosec // G115: small field numbers.
}

func (w *protoWriter) varint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

func (w *protoWriter) int(field int, v int64) {
	if v == 0 {
		return
	}
	w.tag(field, wireVarint)
	w.varint(uint64(v)) //nolint:gosec // G115: two's complement as on the wire.
}

func (w *protoWriter) bytes(field int, b []byte) {
	w.tag(field, wireBytes)
	w.varint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *protoWriter) str(field int, s string) {
	if s != "" {
		w.bytes(field, []byte(s))
	}
}

func (w *protoWriter) msg(field int, enc func(w *protoWriter)) {
	var sub protoWriter
	enc(&sub)
	w.bytes(field, sub.buf)
}

func (w *protoWriter) float(field int, v float32) {
	if v == 0 {
		return
	}
	w.tag(field, wire32Bit)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
}

func (w *protoWriter) packedInts(field int, vs []int64) {
	if len(vs) == 0 {
		return
	}
	var sub protoWriter
	for _, v := range vs {
		sub.varint(uint64(v)) //nolint:gosec // G115
	}
	w.bytes(field, sub.buf)
}

func (w *protoWriter) packedFloats(field int, vs []float32) {
	if len(vs) == 0 {
		return
	}
	var sub protoWriter
	for _, v := range vs {
		sub.buf = binary.LittleEndian.AppendUint32(sub.buf, math.Float32bits(v))
	}
	w.bytes(field, sub.buf)
}

func (w *protoWriter) packedDoubles(field int, vs []float64) {
	if len(vs) == 0 {
		return
	}
	var sub protoWriter
	for _, v := range vs {
		sub.buf = binary.LittleEndian.AppendUint64(sub.buf, math.Float64bits(v))
	}
	w.bytes(field, sub.buf)
}

// Marshal encodes m in the ONNX protobuf format.
func Marshal(m *ModelProto) []byte {
	var w protoWriter
	w.int(1, m.IRVersion)
	w.str(2, m.ProducerName)
	w.str(3, m.ProducerVersion)
	w.str(4, m.Domain)
	w.int(5, m.ModelVersion)
	w.str(6, m.DocString)
	if m.Graph != nil {
		w.msg(7, func(w *protoWriter) { w.graph(m.Graph) })
	}
	for _, op := range m.OpsetImport {
		w.msg(8, func(w *protoWriter) {
			w.str(1, op.Domain)
			w.int(2, op.Version)
		})
	}
	for _, e := range m.MetadataProps {
		w.msg(14, func(w *protoWriter) {
			w.str(1, e.Key)
			w.str(2, e.Value)
		})
	}
	return w.buf
}

func (w *protoWriter) graph(g *GraphProto) {
	for i := range g.Nodes {
		w.msg(1, func(w *protoWriter) { w.node(&g.Nodes[i]) })
	}
	w.str(2, g.Name)
	for i := range g.Initializers {
		w.msg(5, func(w *protoWriter) { w.tensor(&g.Initializers[i]) })
	}
	w.str(10, g.DocString)
	for i := range g.Inputs {
		w.msg(11, func(w *protoWriter) { w.valueInfo(&g.Inputs[i]) })
	}
	for i := range g.Outputs {
		w.msg(12, func(w *protoWriter) { w.valueInfo(&g.Outputs[i]) })
	}
	for i := range g.ValueInfo {
		w.msg(13, func(w *protoWriter) { w.valueInfo(&g.ValueInfo[i]) })
	}
}

func (w *protoWriter) node(n *NodeProto) {
	// Empty names mark omitted inputs and are kept.
	for _, in := range n.Inputs {
		w.bytes(1, []byte(in))
	}
	for _, out := range n.Outputs {
		w.bytes(2, []byte(out))
	}
	w.str(3, n.Name)
	w.str(4, n.OpType)
	for i := range n.Attributes {
		w.msg(5, func(w *protoWriter) { w.attribute(&n.Attributes[i]) })
	}
	w.str(6, n.DocString)
	w.str(7, n.Domain)
}

func (w *protoWriter) tensor(t *TensorProto) {
	w.packedInts(1, t.Dims)
	w.int(2, int64(t.DataType))
	w.packedFloats(4, t.FloatData)
	int32s := make([]int64, len(t.Int32Data))
	for i, v := range t.Int32Data {
		int32s[i] = int64(v)
	}
	w.packedInts(5, int32s)
	for _, s := range t.StringData {
		w.bytes(6, s)
	}
	w.packedInts(7, t.Int64Data)
	w.str(8, t.Name)
	if len(t.RawData) > 0 {
		w.bytes(9, t.RawData)
	}
	w.packedDoubles(10, t.DoubleData)
	uint64s := make([]int64, len(t.Uint64Data))
	for i, v := range t.Uint64Data {
		uint64s[i] = int64(v) //nolint:gosec // G115
	}
	w.packedInts(11, uint64s)
	w.str(12, t.DocString)
	w.int(14, int64(t.DataLocation))
}

func (w *protoWriter) valueInfo(vi *ValueInfoProto) {
	w.str(1, vi.Name)
	if vi.Type != nil {
		w.msg(2, func(w *protoWriter) {
			if tt := vi.Type.TensorType; tt != nil {
				w.msg(1, func(w *protoWriter) {
					w.int(1, int64(tt.ElemType))
					if tt.Shape != nil {
						w.msg(2, func(w *protoWriter) {
							for _, d := range tt.Shape.Dims {
								w.msg(1, func(w *protoWriter) {
									w.int(1, d.DimValue)
									w.str(2, d.DimParam)
								})
							}
						})
					}
				})
			}
			w.str(6, vi.Type.Denotation)
		})
	}
	w.str(3, vi.DocString)
}

func (w *protoWriter) attribute(a *AttributeProto) {
	w.str(1, a.Name)
	w.float(2, a.F)
	w.int(3, a.I)
	if a.S != nil {
		w.bytes(4, a.S)
	}
	if a.T != nil {
		w.msg(5, func(w *protoWriter) { w.tensor(a.T) })
	}
	if a.G != nil {
		w.msg(6, func(w *protoWriter) { w.graph(a.G) })
	}
	w.packedFloats(7, a.Floats)
	w.packedInts(8, a.Ints)
	for _, s := range a.Strings {
		w.bytes(9, s)
	}
	for i := range a.Tensors {
		w.msg(10, func(w *protoWriter) { w.tensor(&a.Tensors[i]) })
	}
	for i := range a.Graphs {
		w.msg(11, func(w *protoWriter) { w.graph(&a.Graphs[i]) })
	}
	w.str(13, a.DocString)
	w.int(20, int64(a.Type))
}
