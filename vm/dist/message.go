// Package dist defines the wire format used to move compiled scripts and
// compile requests between processes. Messages are CBOR encoded in
// canonical mode so that equal values encode to equal bytes.
package dist

import (
	"github.com/chazu/jsbc/vm"
)

// WireVersion is bumped whenever the message layout changes.
const WireVersion = 1

// CompileOptions mirrors the compiler options a client may set.
type CompileOptions struct {
	FirstLine    int  `cbor:"1,keyasint,omitempty"`
	CompileAndGo bool `cbor:"2,keyasint,omitempty"`
	NoScriptRval bool `cbor:"3,keyasint,omitempty"`
	Strict       bool `cbor:"4,keyasint,omitempty"`
	MaxDepth     int  `cbor:"5,keyasint,omitempty"`
}

// CompileRequest asks for one unit to be compiled. AST holds the program
// as ESTree JSON.
type CompileRequest struct {
	Version  byte           `cbor:"1,keyasint"`
	Filename string         `cbor:"2,keyasint,omitempty"`
	AST      []byte         `cbor:"3,keyasint"`
	Options  CompileOptions `cbor:"4,keyasint"`
}

// Diagnostic is a compiler warning or error in transit.
type Diagnostic struct {
	Line    int    `cbor:"1,keyasint"`
	Column  int    `cbor:"2,keyasint,omitempty"`
	Message string `cbor:"3,keyasint"`
	Warning bool   `cbor:"4,keyasint,omitempty"`
}

// CompileResponse carries the result of one unit. Script is nil when
// compilation failed; the failure is the last entry of Diagnostics.
type CompileResponse struct {
	UnitID      string       `cbor:"1,keyasint"`
	Script      *vm.Script   `cbor:"2,keyasint,omitempty"`
	Hash        [32]byte     `cbor:"3,keyasint"`
	Functions   [][32]byte   `cbor:"4,keyasint,omitempty"` // nested function script hashes
	Diagnostics []Diagnostic `cbor:"5,keyasint,omitempty"`
	Cached      bool         `cbor:"6,keyasint,omitempty"`
}

// Failed reports whether the unit did not compile.
func (r *CompileResponse) Failed() bool {
	return r.Script == nil
}

// BatchRequest compiles several independent units.
type BatchRequest struct {
	Units []CompileRequest `cbor:"1,keyasint"`
}

// BatchResponse holds one response per request unit, in request order.
type BatchResponse struct {
	Results []CompileResponse `cbor:"1,keyasint"`
}
