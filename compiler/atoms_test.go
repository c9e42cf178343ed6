package compiler

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/chazu/jsbc/vm"
)

func TestMapAtomTableIntern(t *testing.T) {
	tab := NewMapAtomTable()
	a, _ := tab.Intern(vm.StringAtom("x"))
	b, _ := tab.Intern(vm.StringAtom("x"))
	if a != b {
		t.Errorf("same string interned as %d and %d", a, b)
	}

	// A number and a string with the same spelling are distinct atoms.
	n, _ := tab.Intern(vm.NumberAtom(1))
	s, _ := tab.Intern(vm.StringAtom("1"))
	if n == s {
		t.Error("number 1 and string \"1\" share an atom")
	}

	// Zero and negative zero are different numbers.
	z, _ := tab.Intern(vm.NumberAtom(0))
	nz, _ := tab.Intern(vm.NumberAtom(math.Copysign(0, -1)))
	if z == nz {
		t.Error("0 and -0 share an atom")
	}

	if got := tab.Atom(a); got != vm.StringAtom("x") {
		t.Errorf("Atom(%d) = %+v, want \"x\"", a, got)
	}
	if tab.Len() != 5 {
		t.Errorf("Len = %d, want 5", tab.Len())
	}
}

func TestMapAtomTableConcurrent(t *testing.T) {
	tab := NewMapAtomTable()
	var wg sync.WaitGroup
	ids := make([][]AtomID, 8)
	for w := range ids {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id, err := tab.Intern(vm.StringAtom(fmt.Sprintf("name%d", i)))
				if err != nil {
					t.Error(err)
					return
				}
				ids[w] = append(ids[w], id)
			}
		}(w)
	}
	wg.Wait()
	if tab.Len() != 100 {
		t.Errorf("Len = %d, want 100", tab.Len())
	}
	for w := 1; w < len(ids); w++ {
		for i := range ids[w] {
			if ids[w][i] != ids[0][i] {
				t.Fatalf("worker %d got id %d for name%d, worker 0 got %d", w, ids[w][i], i, ids[0][i])
			}
		}
	}
}

func TestAtomListIndexes(t *testing.T) {
	var l AtomList
	for i := 0; i < atomListHashThreshold; i++ {
		if got := l.Add(AtomID(100 + i)); got != i {
			t.Fatalf("Add = %d, want %d", got, i)
		}
	}
	if l.Hashed() {
		t.Error("list hashed at the threshold")
	}
	l.Add(AtomID(500))
	if !l.Hashed() {
		t.Error("list not hashed past the threshold")
	}

	// Re-adding returns the original index on both sides of the switch.
	if got := l.Add(AtomID(103)); got != 3 {
		t.Errorf("re-Add = %d, want 3", got)
	}
	if got, ok := l.Lookup(AtomID(500)); !ok || got != atomListHashThreshold {
		t.Errorf("Lookup = %d, %v, want %d, true", got, ok, atomListHashThreshold)
	}
	if _, ok := l.Lookup(AtomID(7)); ok {
		t.Error("Lookup found an atom never added")
	}

	ids := l.IDs()
	if len(ids) != l.Len() || ids[0] != 100 || ids[len(ids)-1] != 500 {
		t.Errorf("IDs = %v", ids)
	}
}

func TestScriptAtomsInFirstUseOrder(t *testing.T) {
	s := compileProgram(t, Options{}, callStmt("b"), callStmt("a"), callStmt("b"))
	want := []vm.Atom{vm.StringAtom("b"), vm.StringAtom("a")}
	if len(s.Atoms) != len(want) {
		t.Fatalf("atoms = %+v, want %+v", s.Atoms, want)
	}
	for i := range want {
		if s.Atoms[i] != want[i] {
			t.Errorf("atom %d = %+v, want %+v", i, s.Atoms[i], want[i])
		}
	}
}
