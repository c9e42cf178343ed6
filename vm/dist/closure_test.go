package dist

import (
	"testing"

	"github.com/chazu/jsbc/vm"
)

func TestFunctionHashes(t *testing.T) {
	s := sampleScript()
	inner := s.Objects[0].Script

	// The same function referenced twice is listed once.
	s.Objects = append(s.Objects, &vm.Object{Kind: vm.ObjectFunction, Name: "g", Script: inner})
	s.Objects = append(s.Objects, &vm.Object{Kind: vm.ObjectBlock, Names: []string{"a"}})

	got := FunctionHashes(s)
	if len(got) != 1 || got[0] != inner.Hash {
		t.Errorf("got %x, want [%x]", got, inner.Hash)
	}
}

func TestFunctionHashes_Nested(t *testing.T) {
	leaf := &vm.Script{Code: []byte{byte(vm.OpStop)}, Notes: []byte{0}, Flags: vm.ScriptFunction}
	leaf.Hash = leaf.ComputeHash()
	mid := &vm.Script{
		Code:    []byte{byte(vm.OpNop), byte(vm.OpStop)},
		Notes:   []byte{0},
		Flags:   vm.ScriptFunction,
		Objects: []*vm.Object{{Kind: vm.ObjectFunction, Name: "leaf", Script: leaf}},
	}
	mid.Hash = mid.ComputeHash()
	top := &vm.Script{
		Code:    []byte{byte(vm.OpStop)},
		Notes:   []byte{0},
		Objects: []*vm.Object{{Kind: vm.ObjectFunction, Name: "mid", Script: mid}},
	}
	top.Hash = top.ComputeHash()

	got := FunctionHashes(top)
	if len(got) != 2 || got[0] != mid.Hash || got[1] != leaf.Hash {
		t.Errorf("got %x, want [mid leaf]", got)
	}
}

func TestVerifyClosure(t *testing.T) {
	s := sampleScript()
	deps := FunctionHashes(s)

	store := vm.NewContentStore()
	if err := VerifyClosure(deps, store); err == nil {
		t.Error("expected missing dependency error on empty store")
	}
	store.IndexScript(s)
	if err := VerifyClosure(deps, store); err != nil {
		t.Errorf("VerifyClosure: %v", err)
	}
}
