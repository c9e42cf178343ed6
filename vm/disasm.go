package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Instruction decoding
// ---------------------------------------------------------------------------

// Instruction is one decoded bytecode instruction.
type Instruction struct {
	PC      int
	Op      Opcode
	Length  int
	Operand int   // immediate operand, jump offset or index
	Slot    int   // DEFLOCALFUN slot
	Targets []int // absolute jump targets: the jump, or default then cases
	Keys    []int // LOOKUPSWITCH atom indexes, TABLESWITCH low..high
}

// Decode decodes the instruction at pc.
func Decode(code []byte, pc int) Instruction {
	op := Opcode(code[pc])
	info := op.Info()
	in := Instruction{PC: pc, Op: op, Length: InstructionLength(code, pc)}
	switch info.Format {
	case FormatJump:
		in.Operand = JumpOffset(code, pc)
		in.Targets = []int{pc + in.Operand}
	case FormatJumpX:
		in.Operand = JumpXOffset(code, pc)
		in.Targets = []int{pc + in.Operand}
	case FormatTableSwitch, FormatTableSwitchX:
		jmplen, get := jumpReader(info.Format == FormatTableSwitchX)
		p := pc
		in.Targets = append(in.Targets, pc+get(code, p))
		p += jmplen
		low := JumpOffset(code, p)
		p += JumpOffsetLen
		high := JumpOffset(code, p)
		p += JumpOffsetLen
		for i := low; i <= high; i++ {
			off := get(code, p)
			in.Keys = append(in.Keys, i)
			if off == 0 {
				in.Targets = append(in.Targets, in.Targets[0])
			} else {
				in.Targets = append(in.Targets, pc+off)
			}
			p += jmplen
		}
	case FormatLookupSwitch, FormatLookupSwitchX:
		jmplen, get := jumpReader(info.Format == FormatLookupSwitchX)
		p := pc
		in.Targets = append(in.Targets, pc+get(code, p))
		p += jmplen
		npairs := Uint16At(code, p)
		p += Uint16Len
		for i := 0; i < npairs; i++ {
			in.Keys = append(in.Keys, Uint16At(code, p))
			p += IndexLen
			in.Targets = append(in.Targets, pc+get(code, p))
			p += jmplen
		}
	case FormatAtom, FormatObject, FormatRegExp, FormatUint16, FormatArg, FormatLocal:
		in.Operand = Uint16At(code, pc)
	case FormatSlotObject:
		in.Slot = Uint16At(code, pc)
		in.Operand = Uint16At(code, pc+2)
	case FormatUint8:
		in.Operand = int(code[pc+1])
	case FormatInt8:
		in.Operand = int(int8(code[pc+1]))
	case FormatUint24:
		in.Operand = Uint24At(code, pc)
	case FormatInt32:
		in.Operand = int(int32(uint32(code[pc+1])<<24 | uint32(code[pc+2])<<16 | uint32(code[pc+3])<<8 | uint32(code[pc+4])))
	}
	return in
}

func jumpReader(extended bool) (int, func([]byte, int) int) {
	if extended {
		return JumpXOffsetLen, JumpXOffset
	}
	return JumpOffsetLen, JumpOffset
}

// DecodeAll decodes every instruction in code.
func DecodeAll(code []byte) []Instruction {
	var out []Instruction
	for pc := 0; pc < len(code); {
		in := Decode(code, pc)
		out = append(out, in)
		pc += in.Length
	}
	return out
}

// ---------------------------------------------------------------------------
// Disassembler
// ---------------------------------------------------------------------------

// DisassembleInstruction formats one instruction. Atom and object operands
// are resolved against s when it is non-nil.
func DisassembleInstruction(s *Script, in Instruction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%05d  %s", in.PC, in.Op.Name())
	info := in.Op.Info()
	switch info.Format {
	case FormatJump, FormatJumpX:
		fmt.Fprintf(&b, " %d (-> %05d)", in.Operand, in.Targets[0])
	case FormatTableSwitch, FormatTableSwitchX:
		fmt.Fprintf(&b, " default -> %05d", in.Targets[0])
		for i, k := range in.Keys {
			fmt.Fprintf(&b, "\n         %d: %05d", k, in.Targets[i+1])
		}
	case FormatLookupSwitch, FormatLookupSwitchX:
		fmt.Fprintf(&b, " default -> %05d", in.Targets[0])
		for i, k := range in.Keys {
			fmt.Fprintf(&b, "\n         %s: %05d", atomString(s, k), in.Targets[i+1])
		}
	case FormatAtom:
		fmt.Fprintf(&b, " %s", atomString(s, in.Operand))
	case FormatObject:
		fmt.Fprintf(&b, " %s", objectString(s, in.Operand, false))
	case FormatRegExp:
		fmt.Fprintf(&b, " %s", objectString(s, in.Operand, true))
	case FormatSlotObject:
		fmt.Fprintf(&b, " %d %s", in.Slot, objectString(s, in.Operand, false))
	case FormatUint8, FormatUint16, FormatUint24, FormatInt8, FormatInt32, FormatArg, FormatLocal:
		fmt.Fprintf(&b, " %d", in.Operand)
	}
	return b.String()
}

func atomString(s *Script, i int) string {
	if s == nil || i >= len(s.Atoms) {
		return "#" + strconv.Itoa(i)
	}
	a := s.Atoms[i]
	if a.Kind == AtomNumber {
		return strconv.FormatFloat(a.Num, 'g', -1, 64)
	}
	return strconv.Quote(a.Str)
}

func objectString(s *Script, i int, regexp bool) string {
	list := []*Object(nil)
	if s != nil {
		list = s.Objects
		if regexp {
			list = s.Regexps
		}
	}
	if i >= len(list) {
		return "#" + strconv.Itoa(i)
	}
	o := list[i]
	switch o.Kind {
	case ObjectFunction:
		if o.Name == "" {
			return "function"
		}
		return "function " + o.Name
	case ObjectBlock:
		return "block {" + strings.Join(o.Names, ", ") + "}"
	case ObjectRegExp:
		return "/" + o.Source + "/" + o.RegFlags
	}
	return "#" + strconv.Itoa(i)
}

// Disassemble returns a listing of the whole script, prolog first, with the
// source notes annotating each main instruction.
func Disassemble(s *Script) string {
	var b strings.Builder
	notesAt := make(map[int][]SrcNote)
	for _, n := range DecodeNotes(s.Notes) {
		notesAt[n.Offset] = append(notesAt[n.Offset], n)
	}
	if s.MainOffset > 0 {
		b.WriteString("prolog:\n")
		for _, in := range DecodeAll(s.Prolog()) {
			b.WriteString(DisassembleInstruction(s, in))
			b.WriteByte('\n')
		}
		b.WriteString("main:\n")
	}
	for _, in := range DecodeAll(s.Main()) {
		b.WriteString(DisassembleInstruction(s, in))
		for _, n := range notesAt[in.PC+s.MainOffset] {
			if n.Type == SrcNewline || n.Type == SrcSetLine {
				continue
			}
			fmt.Fprintf(&b, "  ; %s", n.Name())
			for _, o := range n.Operand {
				fmt.Fprintf(&b, " %d", o)
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// DumpNotes lists the decoded source notes.
func DumpNotes(s *Script) string {
	var b strings.Builder
	for _, n := range DecodeNotes(s.Notes) {
		fmt.Fprintf(&b, "%3d: %5d [%s]", n.Index, n.Offset, n.Name())
		for _, o := range n.Operand {
			fmt.Fprintf(&b, " %d", o)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// DumpTryNotes lists the try notes.
func DumpTryNotes(s *Script) string {
	var b strings.Builder
	for _, tn := range s.TryNotes {
		fmt.Fprintf(&b, "%-7s depth=%d start=%d end=%d\n", tn.Kind, tn.StackDepth, tn.Start, tn.Start+tn.Length)
	}
	return b.String()
}
