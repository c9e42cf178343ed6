package dist

import (
	"fmt"

	"github.com/chazu/jsbc/vm"
)

// FunctionHashes returns the hashes of every function script nested in s,
// depth first in object order, each hash once.
func FunctionHashes(s *vm.Script) [][32]byte {
	seen := make(map[[32]byte]bool)
	var result [][32]byte
	var walk func(*vm.Script)

	walk = func(s *vm.Script) {
		for _, o := range s.Objects {
			if o.Kind != vm.ObjectFunction || o.Script == nil {
				continue
			}
			h := o.Script.Hash
			if !seen[h] {
				seen[h] = true
				result = append(result, h)
			}
			walk(o.Script)
		}
	}

	walk(s)
	return result
}

// VerifyClosure checks that every hash in deps is present in store, as
// when a peer sends a response listing function hashes it expects the
// receiver to already hold.
func VerifyClosure(deps [][32]byte, store *vm.ContentStore) error {
	for _, dep := range deps {
		if !store.HasHash(dep) {
			return fmt.Errorf("dist: missing function script %x", dep)
		}
	}
	return nil
}
