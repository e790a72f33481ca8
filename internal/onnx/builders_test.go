package onnx

// Builders for test graphs.

func tensorValue(name string, elem int32, dims ...int64) ValueInfoProto {
	shape := &TensorShapeProto{}
	for _, d := range dims {
		shape.Dims = append(shape.Dims, DimensionProto{DimValue: d})
	}
	return ValueInfoProto{Name: name, Type: &TypeProto{TensorType: &TensorTypeProto{ElemType: elem, Shape: shape}}}
}

func opNode(name, opType string, inputs, outputs []string, attrs ...AttributeProto) NodeProto {
	return NodeProto{Name: name, OpType: opType, Inputs: inputs, Outputs: outputs, Attributes: attrs}
}

func graphAttr(name string, g *GraphProto) AttributeProto {
	return AttributeProto{Name: name, Type: AttributeProtoGraph, G: g}
}

func floatInit(name string, dims []int64, values ...float32) TensorProto {
	return TensorProto{Name: name, DataType: TensorProtoFloat, Dims: dims, FloatData: values}
}

func modelOf(g *GraphProto, opset int64) *ModelProto {
	return &ModelProto{
		IRVersion:    8,
		ProducerName: "onnxrun-test",
		OpsetImport:  []OperatorSetID{{Domain: "", Version: opset}},
		Graph:        g,
	}
}
