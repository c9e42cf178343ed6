// Package vm defines the compiled form of a script: the opcode set and its
// encodings, source notes, try notes, the Script container, a decoder and
// disassembler, and a content-addressed script index.
//
// The package has no interpreter. Scripts produced by the compiler package
// are handed to an engine, serialized with vm/dist, or inspected with
// Disassemble.
package vm
