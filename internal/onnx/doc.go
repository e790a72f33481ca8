// Package onnx loads ONNX models and runs them on a context-scoped arena.
//
// The package implements a hand-written protobuf parser for .onnx files,
// compiles the graph (including Loop and If subgraphs) against a versioned
// operator registry, and executes it through sessions that recycle tensor
// buffers between operator invocations.
//
// Key components:
//   - ModelProto: Top-level ONNX model structure with metadata and graph
//   - Model: Compiled, immutable graph shared by sessions
//   - Session: One arena plus an executor; not safe for concurrent use
//   - Pool: Bounded set of sessions for concurrent callers
//
// Arena contexts mirror the graph: the main graph runs under its name (or
// "main"), each node under "<graph>.<node>", and nested graphs under the
// attribute that holds them, e.g. "main.loop_1.body".
//
// Supported data types:
//   - float16, float32, float64
//   - int8, int16, int32, int64
//   - uint8, uint16, uint32, uint64
//   - bool, string
//
// Example usage:
//
//	model, err := onnx.Load("model.onnx.zst")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer model.Close()
//
//	out, err := model.Run(ctx, map[string]*tensor.Tensor{"x": x})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for pair := out.Oldest(); pair != nil; pair = pair.Next() {
//	    fmt.Println(pair.Key, pair.Value)
//	}
package onnx
