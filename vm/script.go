package vm

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// ---------------------------------------------------------------------------
// Script: the compiled artifact of one function or top-level unit
// ---------------------------------------------------------------------------

// Script is an immutable compiled unit. Code holds the prolog followed by
// the main bytecode; execution starts at MainOffset.
type Script struct {
	Code       []byte
	MainOffset int
	Notes      []byte // terminated source note vector
	TryNotes   []TryNote

	Atoms   []Atom    // indexed by atom operands
	Objects []*Object // functions and block scopes, indexed by object operands
	Regexps []*Object // regexp literals, indexed by REGEXP operands
	Upvars  []uint32  // upvar cookies, indexed by GETUPVAR operands

	Filename      string
	LineBase      int
	MaxStackDepth int
	FixedSlots    int // local variable slots (or declared globals at top level)
	NArgs         int
	Flags         ScriptFlags

	Hash [32]byte
}

// ScriptFlags records properties of a compiled unit.
type ScriptFlags uint16

const (
	ScriptFunction ScriptFlags = 1 << iota
	ScriptNoScriptRval
	ScriptCompileAndGo
	ScriptGenerator
	ScriptHeavyweight
	ScriptUsesArguments
)

// Main returns the main bytecode region.
func (s *Script) Main() []byte {
	return s.Code[s.MainOffset:]
}

// Prolog returns the prolog bytecode region.
func (s *Script) Prolog() []byte {
	return s.Code[:s.MainOffset]
}

// Line returns the source line of the instruction at pc.
func (s *Script) Line(pc int) int {
	return LineForPC(s.Notes, s.LineBase, pc)
}

// ---------------------------------------------------------------------------
// Try notes
// ---------------------------------------------------------------------------

// TryNoteKind says how the unwinder treats a try region.
type TryNoteKind uint8

const (
	TryCatch TryNoteKind = iota
	TryFinally
	TryIter
)

func (k TryNoteKind) String() string {
	switch k {
	case TryCatch:
		return "catch"
	case TryFinally:
		return "finally"
	case TryIter:
		return "iter"
	}
	return "unknown"
}

// TryNote describes a region of bytecode guarded by a handler. Start and
// Length are relative to MainOffset.
type TryNote struct {
	Kind       TryNoteKind
	StackDepth uint16
	Start      uint32
	Length     uint32
}

// ---------------------------------------------------------------------------
// Atoms and nested objects
// ---------------------------------------------------------------------------

// AtomKind distinguishes interned strings from interned numbers.
type AtomKind uint8

const (
	AtomString AtomKind = iota
	AtomNumber
)

// Atom is an interned identifier, string literal or number.
type Atom struct {
	Kind AtomKind
	Str  string
	Num  float64
}

// StringAtom makes a string atom.
func StringAtom(s string) Atom { return Atom{Kind: AtomString, Str: s} }

// NumberAtom makes a number atom.
func NumberAtom(n float64) Atom { return Atom{Kind: AtomNumber, Num: n} }

// ObjectKind distinguishes nested object descriptors.
type ObjectKind uint8

const (
	ObjectFunction ObjectKind = iota
	ObjectBlock
	ObjectRegExp
)

// Object describes a function, block scope or regexp literal referenced by
// index from bytecode. Native carries the host object model's value.
type Object struct {
	Kind ObjectKind

	// Function
	Name   string
	Params []string
	Lambda bool
	Script *Script

	// Block scope: bound names in slot order and the stack depth of the
	// first slot.
	Names []string
	Depth int

	// RegExp
	Source   string
	RegFlags string

	Native any `cbor:"-"`
}

// Count returns the number of slots a block scope binds.
func (o *Object) Count() int {
	return len(o.Names)
}

// ---------------------------------------------------------------------------
// Upvar cookies
// ---------------------------------------------------------------------------

// UpvarCookie packs a static-level skip count and a slot.
func UpvarCookie(skip, slot int) uint32 {
	return uint32(skip)<<16 | uint32(slot&0xffff)
}

// UpvarSkip returns the skip count of a cookie.
func UpvarSkip(cookie uint32) int { return int(cookie >> 16) }

// UpvarSlot returns the slot of a cookie.
func UpvarSlot(cookie uint32) int { return int(cookie & 0xffff) }

// ---------------------------------------------------------------------------
// Content hashing
// ---------------------------------------------------------------------------

// ComputeHash returns a digest over everything that determines execution:
// code, notes, try notes, atoms, nested objects and slot counts. Filenames
// and line bases are excluded so identical code hashes identically.
func (s *Script) ComputeHash() [32]byte {
	h := sha256.New()
	var buf [8]byte
	putInt := func(v int) {
		binary.BigEndian.PutUint64(buf[:], uint64(v))
		h.Write(buf[:])
	}
	putBytes := func(b []byte) {
		putInt(len(b))
		h.Write(b)
	}

	putBytes(s.Code)
	putInt(s.MainOffset)
	putBytes(s.Notes)
	putInt(len(s.TryNotes))
	for _, tn := range s.TryNotes {
		putInt(int(tn.Kind))
		putInt(int(tn.StackDepth))
		putInt(int(tn.Start))
		putInt(int(tn.Length))
	}
	putInt(len(s.Atoms))
	for _, a := range s.Atoms {
		putInt(int(a.Kind))
		if a.Kind == AtomNumber {
			binary.BigEndian.PutUint64(buf[:], math.Float64bits(a.Num))
			h.Write(buf[:])
		} else {
			putBytes([]byte(a.Str))
		}
	}
	for _, list := range [][]*Object{s.Objects, s.Regexps} {
		putInt(len(list))
		for _, o := range list {
			putInt(int(o.Kind))
			putBytes([]byte(o.Name))
			putInt(len(o.Names))
			for _, n := range o.Names {
				putBytes([]byte(n))
			}
			putBytes([]byte(o.Source))
			putBytes([]byte(o.RegFlags))
			if o.Script != nil {
				sub := o.Script.Hash
				if sub == [32]byte{} {
					sub = o.Script.ComputeHash()
				}
				h.Write(sub[:])
			}
		}
	}
	putInt(len(s.Upvars))
	for _, c := range s.Upvars {
		putInt(int(c))
	}
	putInt(s.MaxStackDepth)
	putInt(s.FixedSlots)
	putInt(s.NArgs)
	putInt(int(s.Flags))

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
