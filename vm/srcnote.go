package vm

// ---------------------------------------------------------------------------
// Source notes
//
// A note is one byte: 5 bits of type and 3 bits of delta from the previous
// note's bytecode offset. Deltas too large for 3 bits are carried by
// preceding XDELTA notes (2 set high bits, 6 delta bits). Operands follow
// the note byte, one byte each when <= 0x7f, otherwise three bytes with the
// high bit of the first set.
// ---------------------------------------------------------------------------

// SrcNoteType identifies a source note. Some values are shared by notes
// that never annotate the same opcode.
type SrcNoteType uint8

const (
	SrcNull        SrcNoteType = 0  // terminates a note vector
	SrcIf          SrcNoteType = 1  // IFEQ from an if-then
	SrcBreak       SrcNoteType = 1  // GOTO is a break
	SrcInitProp    SrcNoteType = 1  // numeric key in an object initializer
	SrcGenExp      SrcNoteType = 1  // LAMBDA of a generator expression
	SrcIfElse      SrcNoteType = 2  // IFEQ from an if-then-else
	SrcForIn       SrcNoteType = 2  // GOTO to a for-in loop condition
	SrcFor         SrcNoteType = 3  // NOP or POP in a for(;;) loop head
	SrcWhile       SrcNoteType = 4  // GOTO to a for or while loop condition
	SrcContinue    SrcNoteType = 5  // GOTO is a continue
	SrcDecl        SrcNoteType = 6  // declaration kind operand
	SrcDestruct    SrcNoteType = 6  // DUP starting a destructuring assignment
	SrcPCDelta     SrcNoteType = 7  // comma operator distance
	SrcGroupAssign SrcNoteType = 7  // [a, b] = [c, d] lowering
	SrcAssignOp    SrcNoteType = 8  // compound assignment operator follows
	SrcCond        SrcNoteType = 9  // IFEQ from ?:
	SrcBrace       SrcNoteType = 10 // mandatory brace
	SrcHidden      SrcNoteType = 11 // opcode is not decompiled
	SrcPCBase      SrcNoteType = 12 // distance back to the base of a reference
	SrcLabel       SrcNoteType = 13 // NOP for a label with atom operand
	SrcLabelBrace  SrcNoteType = 14 // NOP for a braced labeled statement
	SrcEndBrace    SrcNoteType = 15 // NOP closing a labeled brace
	SrcBreak2Label SrcNoteType = 16 // GOTO for break label
	SrcCont2Label  SrcNoteType = 17 // GOTO for continue label
	SrcSwitch      SrcNoteType = 18 // switch end offset and first case offset
	SrcFuncDef     SrcNoteType = 19 // NOP for a hoisted function definition
	SrcCatch       SrcNoteType = 20 // catch block
	SrcExtended    SrcNoteType = 21 // reserved
	SrcNewline     SrcNoteType = 22 // bytecode follows a source newline
	SrcSetLine     SrcNoteType = 23 // absolute line number
	SrcXDelta      SrcNoteType = 24 // 24-31 are extended delta notes
)

// Declaration kinds carried by SrcDecl and SrcDestruct notes.
const (
	SrcDeclVar   = 0
	SrcDeclConst = 1
	SrcDeclLet   = 2
	SrcDeclNone  = 3
)

// SrcNoteSpec describes a note type. IsSpanDep is 1 or -1 when the note's
// operands measure bytecode distances that widening can stretch, the sign
// giving the direction from the annotated pc (plus OffsetBias).
type SrcNoteSpec struct {
	Name       string
	Arity      int
	OffsetBias int
	IsSpanDep  int
}

// SrcNoteSpecs is indexed by SrcNoteType.
var SrcNoteSpecs = [...]SrcNoteSpec{
	{"null", 0, 0, 0},
	{"if", 0, 0, 0},
	{"if-else", 2, 0, 1},
	{"for", 3, 1, 1},
	{"while", 1, 0, 1},
	{"continue", 0, 0, 0},
	{"decl", 1, 1, 1},
	{"pcdelta", 1, 0, 1},
	{"assignop", 0, 0, 0},
	{"cond", 1, 0, 1},
	{"brace", 1, 0, 1},
	{"hidden", 0, 0, 0},
	{"pcbase", 1, 0, -1},
	{"label", 1, 0, 0},
	{"labelbrace", 1, 0, 0},
	{"endbrace", 0, 0, 0},
	{"break2label", 1, 0, 0},
	{"cont2label", 1, 0, 0},
	{"switch", 2, 0, 1},
	{"funcdef", 1, 0, 0},
	{"catch", 1, 0, 1},
	{"extended", -1, 0, 0},
	{"newline", 0, 0, 0},
	{"setline", 1, 0, 0},
	{"xdelta", 0, 0, 0},
}

const (
	SNTypeBits   = 5
	SNDeltaBits  = 3
	SNXDeltaBits = 6

	SNDeltaMask  = 1<<SNDeltaBits - 1
	SNXDeltaMask = 1<<SNXDeltaBits - 1

	SNDeltaLimit  = 1 << SNDeltaBits
	SNXDeltaLimit = 1 << SNXDeltaBits

	SN3ByteOffsetFlag = 0x80
	SN3ByteOffsetMask = 0x7f
	// SNOffsetLimit bounds any note operand.
	SNOffsetLimit = SN3ByteOffsetFlag << 16
)

// MakeNote encodes a note byte.
func MakeNote(t SrcNoteType, delta int) byte {
	return byte(t)<<SNDeltaBits | byte(delta&SNDeltaMask)
}

// MakeXDelta encodes an extended delta note byte.
func MakeXDelta(delta int) byte {
	return byte(SrcXDelta)<<SNDeltaBits | byte(delta&SNXDeltaMask)
}

// NoteIsXDelta reports whether sn is an extended delta note.
func NoteIsXDelta(sn byte) bool {
	return SrcNoteType(sn>>SNDeltaBits) >= SrcXDelta
}

// NoteType returns the type of the note byte sn.
func NoteType(sn byte) SrcNoteType {
	if NoteIsXDelta(sn) {
		return SrcXDelta
	}
	return SrcNoteType(sn >> SNDeltaBits)
}

// NoteDelta returns the bytecode delta carried by sn.
func NoteDelta(sn byte) int {
	if NoteIsXDelta(sn) {
		return int(sn & SNXDeltaMask)
	}
	return int(sn & SNDeltaMask)
}

// SetNoteDelta returns sn with its delta replaced.
func SetNoteDelta(sn byte, delta int) byte {
	if NoteIsXDelta(sn) {
		return MakeXDelta(delta)
	}
	return MakeNote(NoteType(sn), delta)
}

// NoteIsGettable reports whether sn can annotate an opcode (it is not a
// line or delta note).
func NoteIsGettable(sn byte) bool {
	return NoteType(sn) < SrcNewline
}

// NoteLength returns the byte length of the note at notes[i], operands
// included.
func NoteLength(notes []byte, i int) int {
	arity := SrcNoteSpecs[NoteType(notes[i])].Arity
	n := 1
	for ; arity > 0; arity-- {
		if notes[i+n]&SN3ByteOffsetFlag != 0 {
			n += 3
		} else {
			n++
		}
	}
	return n
}

// NoteOffset returns operand which of the note at notes[i].
func NoteOffset(notes []byte, i int, which int) int {
	p := i + 1
	for ; which > 0; which-- {
		if notes[p]&SN3ByteOffsetFlag != 0 {
			p += 3
		} else {
			p++
		}
	}
	if notes[p]&SN3ByteOffsetFlag != 0 {
		return int(notes[p]&SN3ByteOffsetMask)<<16 | int(notes[p+1])<<8 | int(notes[p+2])
	}
	return int(notes[p])
}

// SrcNote is a decoded note.
type SrcNote struct {
	Index   int // byte index in the note vector
	Type    SrcNoteType
	Offset  int // absolute bytecode offset annotated
	Operand []int
}

// Name returns the note type's name.
func (n SrcNote) Name() string {
	return SrcNoteSpecs[n.Type].Name
}

// DecodeNotes walks a terminated note vector and returns its notes,
// extended deltas folded into offsets.
func DecodeNotes(notes []byte) []SrcNote {
	var out []SrcNote
	offset := 0
	for i := 0; i < len(notes) && notes[i] != byte(SrcNull); {
		sn := notes[i]
		offset += NoteDelta(sn)
		t := NoteType(sn)
		n := SrcNote{Index: i, Type: t, Offset: offset}
		for w := 0; w < SrcNoteSpecs[t].Arity; w++ {
			n.Operand = append(n.Operand, NoteOffset(notes, i, w))
		}
		if t != SrcXDelta {
			out = append(out, n)
		}
		i += NoteLength(notes, i)
	}
	return out
}

// LineForPC maps a bytecode offset to a source line using the line notes.
func LineForPC(notes []byte, lineBase int, pc int) int {
	line := lineBase
	offset := 0
	for i := 0; i < len(notes) && notes[i] != byte(SrcNull); i += NoteLength(notes, i) {
		sn := notes[i]
		offset += NoteDelta(sn)
		if offset > pc {
			break
		}
		switch NoteType(sn) {
		case SrcSetLine:
			line = NoteOffset(notes, i, 0)
		case SrcNewline:
			line++
		}
	}
	return line
}
