package compiler

import (
	"math/bits"

	"github.com/chazu/jsbc/vm"
)

// ---------------------------------------------------------------------------
// Source notes: building the delta-encoded annotation stream
// ---------------------------------------------------------------------------

// growNotes makes room for delta more note bytes in r.
func (cg *CodeGenerator) growNotes(r *region, delta int) error {
	need := len(r.notes) + delta
	if need <= cap(r.notes) {
		return nil
	}
	size := srcNoteChunk
	if need > srcNoteChunk {
		size = 1 << bits.Len(uint(need-1))
	}
	var (
		buf []byte
		err error
	)
	if cap(r.notes) == 0 {
		buf, err = cg.arena.Alloc(size)
		buf = buf[:0]
	} else {
		buf, err = cg.arena.Grow(r.notes, size-cap(r.notes))
	}
	if err != nil {
		return cg.outOfMemory(err)
	}
	r.notes = buf
	return nil
}

// allocSrcNote appends one zero note byte to the current region and returns
// its index.
func (cg *CodeGenerator) allocSrcNote() (int, error) {
	r := cg.current
	if err := cg.growNotes(r, 1); err != nil {
		return -1, err
	}
	index := len(r.notes)
	r.notes = r.notes[:index+1]
	r.notes[index] = 0
	return index, nil
}

// NewSrcNote appends a note of type t annotating the current offset and
// returns its index. Deltas too large for the note are carried by leading
// XDELTA notes; operand bytes are reserved as zeros.
func (cg *CodeGenerator) NewSrcNote(t vm.SrcNoteType) (int, error) {
	index, err := cg.allocSrcNote()
	if err != nil {
		return -1, err
	}
	r := cg.current
	off := len(r.code)
	delta := off - r.lastNoteOffset
	r.lastNoteOffset = off
	for delta >= vm.SNDeltaLimit {
		xdelta := min(delta, vm.SNXDeltaMask)
		r.notes[index] = vm.MakeXDelta(xdelta)
		delta -= xdelta
		if index, err = cg.allocSrcNote(); err != nil {
			return -1, err
		}
	}
	r.notes[index] = vm.MakeNote(t, delta)
	for n := vm.SrcNoteSpecs[t].Arity; n > 0; n-- {
		if _, err := cg.allocSrcNote(); err != nil {
			return -1, err
		}
	}
	return index, nil
}

// NewSrcNote2 appends a note with one operand.
func (cg *CodeGenerator) NewSrcNote2(t vm.SrcNoteType, offset int) (int, error) {
	index, err := cg.NewSrcNote(t)
	if err != nil {
		return -1, err
	}
	if err := cg.SetSrcNoteOffset(index, 0, offset); err != nil {
		return -1, err
	}
	return index, nil
}

// NewSrcNote3 appends a note with two operands.
func (cg *CodeGenerator) NewSrcNote3(t vm.SrcNoteType, offset1, offset2 int) (int, error) {
	index, err := cg.NewSrcNote(t)
	if err != nil {
		return -1, err
	}
	if err := cg.SetSrcNoteOffset(index, 0, offset1); err != nil {
		return -1, err
	}
	if err := cg.SetSrcNoteOffset(index, 1, offset2); err != nil {
		return -1, err
	}
	return index, nil
}

// SetSrcNoteOffset sets operand which of the note at index in the current
// region. An operand above 0x7f is widened in place to three bytes.
func (cg *CodeGenerator) SetSrcNoteOffset(index, which, offset int) error {
	return cg.setNoteOffset(cg.current, index, which, offset)
}

func (cg *CodeGenerator) setNoteOffset(r *region, index, which, offset int) error {
	if offset < 0 || offset >= vm.SNOffsetLimit {
		return cg.tooLarge()
	}
	p := index + 1
	for ; which > 0; which-- {
		if r.notes[p]&vm.SN3ByteOffsetFlag != 0 {
			p += 3
		} else {
			p++
		}
	}
	if offset > vm.SN3ByteOffsetMask {
		if r.notes[p]&vm.SN3ByteOffsetFlag == 0 {
			if err := cg.growNotes(r, 2); err != nil {
				return err
			}
			n := len(r.notes)
			r.notes = r.notes[:n+2]
			copy(r.notes[p+3:], r.notes[p+1:n])
		}
		r.notes[p] = byte(vm.SN3ByteOffsetFlag | offset>>16)
		r.notes[p+1] = byte(offset >> 8)
		p += 2
	}
	r.notes[p] = byte(offset)
	return nil
}

// noteOffset reads operand which of the note at index in r.
func noteOffset(r *region, index, which int) int {
	return vm.NoteOffset(r.notes, index, which)
}

// AddToSrcNoteDelta adds a small delta to the main-region note at index. If
// the note's delta field overflows, an XDELTA note carrying delta is
// inserted before it; the note's new index is returned.
func (cg *CodeGenerator) AddToSrcNoteDelta(index, delta int) (int, error) {
	r := &cg.main
	sn := r.notes[index]
	limit := vm.SNDeltaLimit
	if vm.NoteIsXDelta(sn) {
		limit = vm.SNXDeltaLimit
	}
	if nd := vm.NoteDelta(sn) + delta; nd < limit {
		r.notes[index] = vm.SetNoteDelta(sn, nd)
		return index, nil
	}
	if err := cg.growNotes(r, 1); err != nil {
		return -1, err
	}
	n := len(r.notes)
	r.notes = r.notes[:n+1]
	copy(r.notes[index+1:], r.notes[index:n])
	r.notes[index] = vm.MakeXDelta(delta)
	return index + 1, nil
}

// FinishTakingSrcNotes concatenates the prolog and main notes into a
// terminated vector. The seam gets a SETLINE when the prolog ends on a line
// other than the first; otherwise the first main note's delta absorbs the
// prolog bytes emitted after the last prolog note.
func (cg *CodeGenerator) FinishTakingSrcNotes() ([]byte, error) {
	if len(cg.prolog.notes) > 0 && cg.prolog.currentLine != cg.firstLine {
		cg.switchToProlog()
		_, err := cg.NewSrcNote2(vm.SrcSetLine, cg.firstLine)
		cg.switchToMain()
		if err != nil {
			return nil, err
		}
	} else {
		offset := len(cg.prolog.code) - cg.prolog.lastNoteOffset
		if offset > 0 && len(cg.main.notes) > 0 {
			sn := cg.main.notes[0]
			var delta int
			if vm.NoteIsXDelta(sn) {
				delta = vm.SNXDeltaMask - int(sn&vm.SNXDeltaMask)
			} else {
				delta = vm.SNDeltaMask - int(sn&vm.SNDeltaMask)
			}
			delta = min(delta, offset)
			for {
				if _, err := cg.AddToSrcNoteDelta(0, delta); err != nil {
					return nil, err
				}
				offset -= delta
				if offset == 0 {
					break
				}
				delta = min(offset, vm.SNXDeltaMask)
			}
		}
	}

	notes := make([]byte, 0, len(cg.prolog.notes)+len(cg.main.notes)+1)
	notes = append(notes, cg.prolog.notes...)
	notes = append(notes, cg.main.notes...)
	notes = append(notes, byte(vm.SrcNull))
	return notes, nil
}
