package compiler

import (
	"encoding/binary"
	"math"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/chazu/jsbc/vm"
)

// ---------------------------------------------------------------------------
// Atom table: process-wide interning of identifiers and literals
// ---------------------------------------------------------------------------

// AtomID identifies an interned atom. IDs are stable for the table's life.
type AtomID uint32

// AtomTable interns strings and numbers. Implementations must be safe for
// concurrent use by independent compilations.
type AtomTable interface {
	Intern(a vm.Atom) (AtomID, error)
	Atom(id AtomID) vm.Atom
}

// MapAtomTable is an in-memory AtomTable. Atoms are bucketed by an xxh3
// digest of their kind and payload.
type MapAtomTable struct {
	mu      sync.RWMutex
	atoms   []vm.Atom
	buckets map[uint64][]AtomID
}

// NewMapAtomTable creates an empty table.
func NewMapAtomTable() *MapAtomTable {
	return &MapAtomTable{buckets: make(map[uint64][]AtomID)}
}

func atomDigest(a vm.Atom) uint64 {
	if a.Kind == vm.AtomNumber {
		var buf [9]byte
		buf[0] = byte(vm.AtomNumber)
		binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(a.Num))
		return xxh3.Hash(buf[:])
	}
	return xxh3.HashString(a.Str)
}

func sameAtom(a, b vm.Atom) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == vm.AtomNumber {
		return math.Float64bits(a.Num) == math.Float64bits(b.Num)
	}
	return a.Str == b.Str
}

// Intern returns the ID of a, adding it if needed.
func (t *MapAtomTable) Intern(a vm.Atom) (AtomID, error) {
	h := atomDigest(a)
	t.mu.RLock()
	for _, id := range t.buckets[h] {
		if sameAtom(t.atoms[id], a) {
			t.mu.RUnlock()
			return id, nil
		}
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range t.buckets[h] {
		if sameAtom(t.atoms[id], a) {
			return id, nil
		}
	}
	id := AtomID(len(t.atoms))
	t.atoms = append(t.atoms, a)
	t.buckets[h] = append(t.buckets[h], id)
	return id, nil
}

// Atom returns the atom for id.
func (t *MapAtomTable) Atom(id AtomID) vm.Atom {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.atoms[id]
}

// Len returns the number of interned atoms.
func (t *MapAtomTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.atoms)
}

// ---------------------------------------------------------------------------
// AtomList: per-script atom indexing
// ---------------------------------------------------------------------------

// atomListHashThreshold is the entry count above which an AtomList switches
// from a linear list to a hash index.
const atomListHashThreshold = 12

type atomEntry struct {
	id    AtomID
	index int
	next  *atomEntry
}

// AtomList assigns dense script-local indexes to atoms in first-use order.
// Small lists are searched linearly; larger ones are hashed.
type AtomList struct {
	head  *atomEntry
	table map[AtomID]*atomEntry
	count int
}

// Lookup returns the index of id if it has been added.
func (l *AtomList) Lookup(id AtomID) (int, bool) {
	if l.table != nil {
		if e, ok := l.table[id]; ok {
			return e.index, true
		}
		return 0, false
	}
	for e := l.head; e != nil; e = e.next {
		if e.id == id {
			return e.index, true
		}
	}
	return 0, false
}

// Add returns the index of id, assigning the next index when it is new.
func (l *AtomList) Add(id AtomID) int {
	if index, ok := l.Lookup(id); ok {
		return index
	}
	e := &atomEntry{id: id, index: l.count, next: l.head}
	l.head = e
	l.count++
	if l.table != nil {
		l.table[id] = e
	} else if l.count > atomListHashThreshold {
		l.table = make(map[AtomID]*atomEntry, l.count*2)
		for x := l.head; x != nil; x = x.next {
			l.table[x.id] = x
		}
	}
	return e.index
}

// Len returns the number of atoms in the list.
func (l *AtomList) Len() int {
	return l.count
}

// Hashed reports whether the list has switched to its hash index.
func (l *AtomList) Hashed() bool {
	return l.table != nil
}

// IDs returns the atom IDs in index order.
func (l *AtomList) IDs() []AtomID {
	ids := make([]AtomID, l.count)
	for e := l.head; e != nil; e = e.next {
		ids[e.index] = e.id
	}
	return ids
}
