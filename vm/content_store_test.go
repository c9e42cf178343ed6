package vm

import (
	"bytes"
	"testing"
)

func testScript(code ...byte) *Script {
	s := &Script{Code: code, Notes: []byte{0}}
	s.Hash = s.ComputeHash()
	return s
}

func TestContentStore_IndexAndLookupScript(t *testing.T) {
	cs := NewContentStore()
	s := testScript(byte(OpZero), byte(OpPopv), byte(OpStop))

	cs.IndexScript(s)

	if !cs.HasHash(s.Hash) {
		t.Error("HasHash should return true for indexed script")
	}
	if got := cs.LookupScript(s.Hash); got != s {
		t.Error("LookupScript should return the indexed script")
	}
	if cs.Count() != 1 {
		t.Errorf("Count: got %d, want 1", cs.Count())
	}
}

func TestContentStore_IgnoresZeroHash(t *testing.T) {
	cs := NewContentStore()
	cs.IndexScript(&Script{Code: []byte{byte(OpStop)}})
	if cs.Count() != 0 {
		t.Errorf("Should not index script with zero hash, got count %d", cs.Count())
	}
}

func TestContentStore_IndexesNestedFunctions(t *testing.T) {
	cs := NewContentStore()
	inner := testScript(byte(OpPush), byte(OpReturn), byte(OpStop))
	outer := &Script{
		Code:    []byte{byte(OpStop)},
		Notes:   []byte{0},
		Objects: []*Object{{Kind: ObjectFunction, Name: "f", Script: inner}},
	}
	outer.Hash = outer.ComputeHash()

	cs.IndexScript(outer)

	if cs.Count() != 2 {
		t.Fatalf("Count: got %d, want 2", cs.Count())
	}
	if cs.LookupScript(inner.Hash) != inner {
		t.Error("nested function script should be indexed")
	}
}

func TestContentStore_HashesSorted(t *testing.T) {
	cs := NewContentStore()
	for i := 0; i < 5; i++ {
		cs.IndexScript(testScript(byte(OpInt8), byte(i), byte(OpPopv), byte(OpStop)))
	}
	hs := cs.Hashes()
	if len(hs) != 5 {
		t.Fatalf("Hashes: got %d, want 5", len(hs))
	}
	for i := 1; i < len(hs); i++ {
		if bytes.Compare(hs[i-1][:], hs[i][:]) >= 0 {
			t.Fatalf("hashes not sorted at %d", i)
		}
	}
}

func TestComputeHash_IgnoresFilename(t *testing.T) {
	a := &Script{Code: []byte{byte(OpStop)}, Filename: "a.js", LineBase: 1}
	b := &Script{Code: []byte{byte(OpStop)}, Filename: "b.js", LineBase: 7}
	if a.ComputeHash() != b.ComputeHash() {
		t.Error("hash should not depend on filename or line base")
	}
	c := &Script{Code: []byte{byte(OpNop), byte(OpStop)}}
	if a.ComputeHash() == c.ComputeHash() {
		t.Error("hash should depend on code")
	}
}
