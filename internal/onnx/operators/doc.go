// Package operators implements the ONNX operator registry, its version
// resolver and the built-in operators.
//
// Every operator name maps to a Descriptor holding one or more versions. A
// version pairs a declared contract (Info: attribute schema, input/output
// arity and element types, version range) with a factory building the
// concrete Operator. Resolution picks the version whose range contains the
// graph's opset, validates the node against that contract and constructs the
// operator once at graph load.
//
// Control-flow operators (Loop, If) run nested graphs through the
// GraphRunner supplied in the execution Context.
package operators
