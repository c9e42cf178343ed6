package dist

import (
	"errors"
	"fmt"

	"github.com/chazu/jsbc/vm"
	"github.com/fxamacker/cbor/v2"
)

// ErrHashMismatch is returned when a script's declared hash does not match
// its content.
var ErrHashMismatch = errors.New("dist: hash mismatch")

// cborEncMode encodes in canonical mode for deterministic output.
var cborEncMode cbor.EncMode

// cborDecMode bounds nesting so a hostile script tree cannot exhaust the
// stack.
var cborDecMode cbor.DecMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	dm, err := cbor.DecOptions{MaxNestedLevels: 256}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR dec mode: %v", err))
	}
	cborDecMode = dm
}

// MarshalScript serializes a Script, nested function scripts included.
func MarshalScript(s *vm.Script) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalScript deserializes a Script. The hash is not checked; use
// VerifyScript for untrusted input.
func UnmarshalScript(data []byte) (*vm.Script, error) {
	var s vm.Script
	if err := cborDecMode.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("dist: unmarshal script: %w", err)
	}
	return &s, nil
}

// MarshalCompileRequest serializes a CompileRequest.
func MarshalCompileRequest(r *CompileRequest) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalCompileRequest deserializes a CompileRequest.
func UnmarshalCompileRequest(data []byte) (*CompileRequest, error) {
	var r CompileRequest
	if err := cborDecMode.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("dist: unmarshal compile request: %w", err)
	}
	return &r, nil
}

// MarshalCompileResponse serializes a CompileResponse.
func MarshalCompileResponse(r *CompileResponse) ([]byte, error) {
	return cborEncMode.Marshal(r)
}

// UnmarshalCompileResponse deserializes a CompileResponse.
func UnmarshalCompileResponse(data []byte) (*CompileResponse, error) {
	var r CompileResponse
	if err := cborDecMode.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("dist: unmarshal compile response: %w", err)
	}
	return &r, nil
}

// Marshal serializes any dist message in canonical mode.
func Marshal(v any) ([]byte, error) {
	return cborEncMode.Marshal(v)
}

// Unmarshal deserializes a dist message into v.
func Unmarshal(data []byte, v any) error {
	if err := cborDecMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("dist: unmarshal %T: %w", v, err)
	}
	return nil
}

// VerifyScript recomputes the hash of s and of every nested function
// script, innermost first, and compares each with its declared hash.
func VerifyScript(s *vm.Script) error {
	for _, o := range s.Objects {
		if o == nil {
			return fmt.Errorf("dist: script %x has a nil object", s.Hash)
		}
		if o.Kind == vm.ObjectFunction && o.Script != nil {
			if err := VerifyScript(o.Script); err != nil {
				return fmt.Errorf("dist: function %s: %w", o.Name, err)
			}
		}
	}
	for _, o := range s.Regexps {
		if o == nil {
			return fmt.Errorf("dist: script %x has a nil regexp", s.Hash)
		}
	}
	computed := s.ComputeHash()
	if computed != s.Hash {
		return fmt.Errorf("%w: declared %x, computed %x", ErrHashMismatch, s.Hash, computed)
	}
	return nil
}

// VerifyResponse checks that a successful response's script matches its
// declared hash.
func VerifyResponse(r *CompileResponse) error {
	if r.Failed() {
		return nil
	}
	if r.Script.Hash != r.Hash {
		return fmt.Errorf("%w: response declares %x, script carries %x", ErrHashMismatch, r.Hash, r.Script.Hash)
	}
	return VerifyScript(r.Script)
}
