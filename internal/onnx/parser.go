package onnx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// maxGraphDepth bounds GRAPH attribute nesting.
const maxGraphDepth = 64

// ParseFile parses an uncompressed ONNX model from a local file.
// Use Load for remote or compressed sources.
//
//nolint:gosec // G304: Path is provided by user, file inclusion is intentional for ONNX model loading
func ParseFile(path string) (*ModelProto, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data)
}

// Parse parses an ONNX model from bytes.
func Parse(data []byte) (*ModelProto, error) {
	p := &parser{data: data}
	model := &ModelProto{}
	if err := p.readModelProto(model); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	return model, nil
}

// parser implements a minimal protobuf wire format decoder.
type parser struct {
	data  []byte
	pos   int
	depth int
}

// Protobuf wire types.
const (
	wireVarint = 0 // int32, int64, uint32, uint64, sint32, sint64, bool, enum
	wire64Bit  = 1 // fixed64, sfixed64, double
	wireBytes  = 2 // string, bytes, embedded messages, packed repeated fields
	wire32Bit  = 5 // fixed32, sfixed32, float
)

// fields calls visit for every field tag until the message is exhausted.
func (p *parser) fields(visit func(field, wire int) error) error {
	for p.pos < len(p.data) {
		field, wire, err := p.readTag()
		if err != nil {
			return err
		}
		if err := visit(field, wire); err != nil {
			return err
		}
	}
	return nil
}

// sub reads a length-delimited embedded message.
func (p *parser) sub() (*parser, error) {
	data, err := p.readBytes()
	if err != nil {
		return nil, err
	}
	return &parser{data: data, depth: p.depth}, nil
}

func (p *parser) readString() (string, error) {
	data, err := p.readBytes()
	return string(data), err
}

// readModelProto reads ModelProto message.
func (p *parser) readModelProto(m *ModelProto) error {
	return p.fields(func(field, wire int) error {
		var err error
		switch field {
		case 1: // ir_version
			m.IRVersion, err = p.readVarint()
		case 2: // producer_name
			m.ProducerName, err = p.readString()
		case 3: // producer_version
			m.ProducerVersion, err = p.readString()
		case 4: // domain
			m.Domain, err = p.readString()
		case 5: // model_version
			m.ModelVersion, err = p.readVarint()
		case 6: // doc_string
			m.DocString, err = p.readString()
		case 7: // graph
			var sub *parser
			if sub, err = p.sub(); err == nil {
				m.Graph = &GraphProto{}
				err = sub.readGraphProto(m.Graph)
			}
		case 8: // opset_import
			var sub *parser
			if sub, err = p.sub(); err == nil {
				var opset OperatorSetID
				err = sub.readOperatorSetID(&opset)
				m.OpsetImport = append(m.OpsetImport, opset)
			}
		case 14: // metadata_props
			var sub *parser
			if sub, err = p.sub(); err == nil {
				var entry StringStringEntry
				err = sub.readStringStringEntry(&entry)
				m.MetadataProps = append(m.MetadataProps, entry)
			}
		default:
			err = p.skipField(wire)
		}
		return err
	})
}

// readGraphProto reads GraphProto message.
func (p *parser) readGraphProto(m *GraphProto) error {
	p.depth++
	if p.depth > maxGraphDepth {
		return fmt.Errorf("graph nesting exceeds %d levels", maxGraphDepth)
	}
	readValueInfo := func(dst *[]ValueInfoProto) error {
		sub, err := p.sub()
		if err != nil {
			return err
		}
		var vi ValueInfoProto
		if err := sub.readValueInfoProto(&vi); err != nil {
			return err
		}
		*dst = append(*dst, vi)
		return nil
	}
	return p.fields(func(field, wire int) error {
		var err error
		switch field {
		case 1: // node
			var sub *parser
			if sub, err = p.sub(); err == nil {
				var node NodeProto
				err = sub.readNodeProto(&node)
				m.Nodes = append(m.Nodes, node)
			}
		case 2: // name
			m.Name, err = p.readString()
		case 5: // initializer
			var sub *parser
			if sub, err = p.sub(); err == nil {
				var t TensorProto
				err = sub.readTensorProto(&t)
				m.Initializers = append(m.Initializers, t)
			}
		case 10: // doc_string
			m.DocString, err = p.readString()
		case 11: // input
			err = readValueInfo(&m.Inputs)
		case 12: // output
			err = readValueInfo(&m.Outputs)
		case 13: // value_info
			err = readValueInfo(&m.ValueInfo)
		default:
			err = p.skipField(wire)
		}
		return err
	})
}

// readNodeProto reads NodeProto message.
func (p *parser) readNodeProto(m *NodeProto) error {
	return p.fields(func(field, wire int) error {
		var (
			s   string
			err error
		)
		switch field {
		case 1: // input
			s, err = p.readString()
			m.Inputs = append(m.Inputs, s)
		case 2: // output
			s, err = p.readString()
			m.Outputs = append(m.Outputs, s)
		case 3: // name
			m.Name, err = p.readString()
		case 4: // op_type
			m.OpType, err = p.readString()
		case 5: // attribute
			var sub *parser
			if sub, err = p.sub(); err == nil {
				var attr AttributeProto
				err = sub.readAttributeProto(&attr)
				m.Attributes = append(m.Attributes, attr)
			}
		case 6: // doc_string
			m.DocString, err = p.readString()
		case 7: // domain
			m.Domain, err = p.readString()
		default:
			err = p.skipField(wire)
		}
		return err
	})
}

// readTensorProto reads TensorProto message.
func (p *parser) readTensorProto(m *TensorProto) error {
	return p.fields(func(field, wire int) error {
		var err error
		switch field {
		case 1: // dims
			err = p.readVarints(wire, func(v int64) { m.Dims = append(m.Dims, v) })
		case 2: // data_type
			m.DataType, err = p.readInt32()
		case 4: // float_data
			err = p.readFixed32s(wire, func(v uint32) { m.FloatData = append(m.FloatData, math.Float32frombits(v)) })
		case 5: // int32_data
			//nolint:gosec // G115: ONNX protobuf varint fits in int32.
			err = p.readVarints(wire, func(v int64) { m.Int32Data = append(m.Int32Data, int32(v)) })
		case 6: // string_data
			var data []byte
			data, err = p.readBytes()
			m.StringData = append(m.StringData, data)
		case 7: // int64_data
			err = p.readVarints(wire, func(v int64) { m.Int64Data = append(m.Int64Data, v) })
		case 8: // name
			m.Name, err = p.readString()
		case 9: // raw_data
			m.RawData, err = p.readBytes()
		case 10: // double_data
			err = p.readFixed64s(wire, func(v uint64) { m.DoubleData = append(m.DoubleData, math.Float64frombits(v)) })
		case 11: // uint64_data
			//nolint:gosec // G115: uint64 values travel as varints.
			err = p.readVarints(wire, func(v int64) { m.Uint64Data = append(m.Uint64Data, uint64(v)) })
		case 12: // doc_string
			m.DocString, err = p.readString()
		case 14: // data_location
			m.DataLocation, err = p.readInt32()
		default:
			err = p.skipField(wire)
		}
		return err
	})
}

// readValueInfoProto reads ValueInfoProto message.
func (p *parser) readValueInfoProto(m *ValueInfoProto) error {
	return p.fields(func(field, wire int) error {
		var err error
		switch field {
		case 1: // name
			m.Name, err = p.readString()
		case 2: // type
			var sub *parser
			if sub, err = p.sub(); err == nil {
				m.Type = &TypeProto{}
				err = sub.readTypeProto(m.Type)
			}
		case 3: // doc_string
			m.DocString, err = p.readString()
		default:
			err = p.skipField(wire)
		}
		return err
	})
}

// readTypeProto reads TypeProto message. Sequence, map and optional types
// are skipped.
func (p *parser) readTypeProto(m *TypeProto) error {
	return p.fields(func(field, wire int) error {
		var err error
		switch field {
		case 1: // tensor_type
			var sub *parser
			if sub, err = p.sub(); err == nil {
				m.TensorType = &TensorTypeProto{}
				err = sub.readTensorTypeProto(m.TensorType)
			}
		case 6: // denotation
			m.Denotation, err = p.readString()
		default:
			err = p.skipField(wire)
		}
		return err
	})
}

// readTensorTypeProto reads TensorTypeProto message.
func (p *parser) readTensorTypeProto(m *TensorTypeProto) error {
	return p.fields(func(field, wire int) error {
		var err error
		switch field {
		case 1: // elem_type
			m.ElemType, err = p.readInt32()
		case 2: // shape
			var sub *parser
			if sub, err = p.sub(); err == nil {
				m.Shape = &TensorShapeProto{}
				err = sub.readTensorShapeProto(m.Shape)
			}
		default:
			err = p.skipField(wire)
		}
		return err
	})
}

// readTensorShapeProto reads TensorShapeProto message.
func (p *parser) readTensorShapeProto(m *TensorShapeProto) error {
	return p.fields(func(field, wire int) error {
		if field != 1 { // dim
			return p.skipField(wire)
		}
		sub, err := p.sub()
		if err != nil {
			return err
		}
		var dim DimensionProto
		if err := sub.readDimensionProto(&dim); err != nil {
			return err
		}
		m.Dims = append(m.Dims, dim)
		return nil
	})
}

// readDimensionProto reads DimensionProto message.
func (p *parser) readDimensionProto(m *DimensionProto) error {
	return p.fields(func(field, wire int) error {
		var err error
		switch field {
		case 1: // dim_value
			m.DimValue, err = p.readVarint()
		case 2: // dim_param
			m.DimParam, err = p.readString()
		default:
			err = p.skipField(wire)
		}
		return err
	})
}

// readAttributeProto reads AttributeProto message.
func (p *parser) readAttributeProto(m *AttributeProto) error {
	return p.fields(func(field, wire int) error {
		var err error
		switch field {
		case 1: // name
			m.Name, err = p.readString()
		case 2: // f
			m.F, err = p.readFloat32()
		case 3: // i
			m.I, err = p.readVarint()
		case 4: // s
			m.S, err = p.readBytes()
		case 5: // t
			var sub *parser
			if sub, err = p.sub(); err == nil {
				m.T = &TensorProto{}
				err = sub.readTensorProto(m.T)
			}
		case 6: // g
			var sub *parser
			if sub, err = p.sub(); err == nil {
				m.G = &GraphProto{}
				err = sub.readGraphProto(m.G)
			}
		case 7: // floats
			err = p.readFixed32s(wire, func(v uint32) { m.Floats = append(m.Floats, math.Float32frombits(v)) })
		case 8: // ints
			err = p.readVarints(wire, func(v int64) { m.Ints = append(m.Ints, v) })
		case 9: // strings
			var data []byte
			data, err = p.readBytes()
			m.Strings = append(m.Strings, data)
		case 10: // tensors
			var sub *parser
			if sub, err = p.sub(); err == nil {
				var t TensorProto
				err = sub.readTensorProto(&t)
				m.Tensors = append(m.Tensors, t)
			}
		case 11: // graphs
			var sub *parser
			if sub, err = p.sub(); err == nil {
				var g GraphProto
				err = sub.readGraphProto(&g)
				m.Graphs = append(m.Graphs, g)
			}
		case 13: // doc_string
			m.DocString, err = p.readString()
		case 20: // type
			m.Type, err = p.readInt32()
		default:
			err = p.skipField(wire)
		}
		return err
	})
}

// readOperatorSetID reads OperatorSetID message.
func (p *parser) readOperatorSetID(m *OperatorSetID) error {
	return p.fields(func(field, wire int) error {
		var err error
		switch field {
		case 1: // domain
			m.Domain, err = p.readString()
		case 2: // version
			m.Version, err = p.readVarint()
		default:
			err = p.skipField(wire)
		}
		return err
	})
}

// readStringStringEntry reads StringStringEntry message.
func (p *parser) readStringStringEntry(m *StringStringEntry) error {
	return p.fields(func(field, wire int) error {
		var err error
		switch field {
		case 1: // key
			m.Key, err = p.readString()
		case 2: // value
			m.Value, err = p.readString()
		default:
			err = p.skipField(wire)
		}
		return err
	})
}

// readVarints reads a repeated varint field in packed or unpacked encoding.
func (p *parser) readVarints(wire int, add func(int64)) error {
	if wire != wireBytes {
		v, err := p.readVarint()
		if err != nil {
			return err
		}
		add(v)
		return nil
	}
	sub, err := p.sub()
	if err != nil {
		return err
	}
	for sub.pos < len(sub.data) {
		v, err := sub.readVarint()
		if err != nil {
			return err
		}
		add(v)
	}
	return nil
}

// readFixed32s reads a repeated 32-bit field in packed or unpacked encoding.
func (p *parser) readFixed32s(wire int, add func(uint32)) error {
	if wire != wireBytes {
		if p.pos+4 > len(p.data) {
			return io.ErrUnexpectedEOF
		}
		add(binary.LittleEndian.Uint32(p.data[p.pos:]))
		p.pos += 4
		return nil
	}
	data, err := p.readBytes()
	if err != nil {
		return err
	}
	if len(data)%4 != 0 {
		return fmt.Errorf("packed fixed32 length %d is not a multiple of 4", len(data))
	}
	for i := 0; i < len(data); i += 4 {
		add(binary.LittleEndian.Uint32(data[i:]))
	}
	return nil
}

// readFixed64s reads a repeated 64-bit field in packed or unpacked encoding.
func (p *parser) readFixed64s(wire int, add func(uint64)) error {
	if wire != wireBytes {
		if p.pos+8 > len(p.data) {
			return io.ErrUnexpectedEOF
		}
		add(binary.LittleEndian.Uint64(p.data[p.pos:]))
		p.pos += 8
		return nil
	}
	data, err := p.readBytes()
	if err != nil {
		return err
	}
	if len(data)%8 != 0 {
		return fmt.Errorf("packed fixed64 length %d is not a multiple of 8", len(data))
	}
	for i := 0; i < len(data); i += 8 {
		add(binary.LittleEndian.Uint64(data[i:]))
	}
	return nil
}

// readTag reads a protobuf field tag.
func (p *parser) readTag() (fieldNum, wireType int, err error) {
	if p.pos >= len(p.data) {
		return 0, 0, io.EOF
	}
	tag, err := p.readVarint()
	if err != nil {
		return 0, 0, err
	}
	fieldNum = int(tag >> 3)
	wireType = int(tag & 0x7)
	return fieldNum, wireType, nil
}

// readVarint reads a varint-encoded int64.
func (p *parser) readVarint() (int64, error) {
	var result uint64
	var shift uint
	for {
		if p.pos >= len(p.data) {
			return 0, io.ErrUnexpectedEOF
		}
		b := p.data[p.pos]
		p.pos++
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 64 {
			return 0, errors.New("varint overflow")
		}
	}
	return int64(result), nil //nolint:gosec // G115: Protobuf varint fits in int64.
}

// readInt32 reads a varint-encoded int32.
func (p *parser) readInt32() (int32, error) {
	v, err := p.readVarint()
	if err != nil {
		return 0, err
	}
	return int32(v), nil //nolint:gosec // G115: Protobuf varint fits in int32.
}

// readBytes reads a length-delimited byte slice.
func (p *parser) readBytes() ([]byte, error) {
	length, err := p.readVarint()
	if err != nil {
		return nil, err
	}
	if length < 0 || length > int64(len(p.data)-p.pos) {
		return nil, io.ErrUnexpectedEOF
	}
	end := p.pos + int(length)
	result := p.data[p.pos:end]
	p.pos = end
	return result, nil
}

// readFloat32 reads a 32-bit float.
func (p *parser) readFloat32() (float32, error) {
	if p.pos+4 > len(p.data) {
		return 0, io.ErrUnexpectedEOF
	}
	bits := binary.LittleEndian.Uint32(p.data[p.pos:])
	p.pos += 4
	return math.Float32frombits(bits), nil
}

// skipField skips a field based on wire type.
func (p *parser) skipField(wireType int) error {
	switch wireType {
	case wireVarint:
		_, err := p.readVarint()
		return err
	case wire64Bit:
		if p.pos+8 > len(p.data) {
			return io.ErrUnexpectedEOF
		}
		p.pos += 8
		return nil
	case wireBytes:
		_, err := p.readBytes()
		return err
	case wire32Bit:
		if p.pos+4 > len(p.data) {
			return io.ErrUnexpectedEOF
		}
		p.pos += 4
		return nil
	default:
		return fmt.Errorf("unknown wire type: %d", wireType)
	}
}
