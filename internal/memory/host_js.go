//go:build js && wasm

package memory

import (
	"encoding/binary"
	"math"
	"syscall/js"
)

// ToJS copies an array into a new JavaScript typed array of the matching
// element kind. Float16 is widened to Float32Array and Bool becomes Uint8Array.
func ToJS(a Array) js.Value {
	n := a.Len()
	size := a.Type().Size()
	ctor := "Uint8Array"
	switch a.Type() {
	case Float32, Float16:
		ctor, size = "Float32Array", 4
	case Float64:
		ctor = "Float64Array"
	case Int8:
		ctor = "Int8Array"
	case Int16:
		ctor = "Int16Array"
	case Int32:
		ctor = "Int32Array"
	case Int64:
		ctor = "BigInt64Array"
	case Uint16:
		ctor = "Uint16Array"
	case Uint32:
		ctor = "Uint32Array"
	case Uint64:
		ctor = "BigUint64Array"
	}

	raw := make([]byte, n*size)
	for i := 0; i < n; i++ {
		off := i * size
		switch a.Type() {
		case Float32, Float16:
			binary.LittleEndian.PutUint32(raw[off:], math.Float32bits(float32(a.Float64(i))))
		case Float64:
			binary.LittleEndian.PutUint64(raw[off:], math.Float64bits(a.Float64(i)))
		case Int8, Uint8, Bool:
			raw[off] = byte(a.Int64(i))
		case Int16, Uint16:
			binary.LittleEndian.PutUint16(raw[off:], uint16(a.Int64(i)))
		case Int32, Uint32:
			binary.LittleEndian.PutUint32(raw[off:], uint32(a.Int64(i)))
		case Int64, Uint64:
			binary.LittleEndian.PutUint64(raw[off:], uint64(a.Int64(i)))
		}
	}

	bytes := js.Global().Get("Uint8Array").New(len(raw))
	js.CopyBytesToJS(bytes, raw)
	return js.Global().Get(ctor).New(bytes.Get("buffer"), 0, n)
}
