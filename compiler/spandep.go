package compiler

import (
	"unsafe"

	"github.com/chazu/jsbc/vm"
)

// ---------------------------------------------------------------------------
// Span dependencies: optimistic short jumps, widened after the fact
//
// Jumps are emitted with 16-bit operands. The first time an offset does not
// fit, the main bytecode emitted since spanDepTodo is scanned and every jump
// operand gets a spanDep record; from then on each new jump adds one. When
// the outermost emitTree returns, optimizeSpanDeps picks the jumps that must
// become 32-bit, moves code to make room, and fixes up the source notes and
// try notes that measure distances across the moved code.
//
// Jumps are only ever emitted into the main region.
// ---------------------------------------------------------------------------

// jumpResolution is a span dependency's destination. Until a backpatch chain
// is resolved it holds the delta to the previous link; afterwards it names a
// shared jump target. A resolved dependency with no target has span 0.
type jumpResolution struct {
	jt       *jumpTarget
	bpdelta  int
	resolved bool
}

func unresolved(bpdelta int) jumpResolution {
	return jumpResolution{bpdelta: bpdelta}
}

func resolvedTo(jt *jumpTarget) jumpResolution {
	return jumpResolution{jt: jt, resolved: true}
}

// span is the distance from pivot to the target.
func (r jumpResolution) span(pivot int) int {
	if !r.resolved || r.jt == nil {
		return 0
	}
	return r.jt.offset - pivot
}

// spanDep records one jump operand. top is the offset of the instruction;
// before is the offset of the byte preceding the operand (equal to top for
// the first operand); offset is where that byte ends up after widening.
type spanDep struct {
	top    int
	offset int
	before int
	target jumpResolution
}

const (
	spanDepsMin = 256
	// bpdeltaMax bounds a backpatch chain link.
	bpdeltaMax = vm.JumpXOffsetMax
	// jumpGrowth is the size increase of one widened operand.
	jumpGrowth = vm.JumpXOffsetLen - vm.JumpOffsetLen
)

// setSpanDepTarget resolves sd to the target off bytes from its instruction.
func (cg *CodeGenerator) setSpanDepTarget(sd *spanDep, off int) error {
	if off < vm.JumpXOffsetMin || off > vm.JumpXOffsetMax {
		return cg.tooLarge()
	}
	jt, err := cg.addJumpTarget(sd.top + off)
	if err != nil {
		return err
	}
	sd.target = resolvedTo(jt)
	return nil
}

// spanDepSize is the arena charge of one spanDep record.
const spanDepSize = int(unsafe.Sizeof(spanDep{}))

// startSpanDeps makes the span dependency table live, reusing the storage
// of a retired table when there is one.
func (cg *CodeGenerator) startSpanDeps() error {
	if cg.spanDeps != nil {
		return nil
	}
	if cap(cg.spanDepPool) > 0 {
		cg.spanDeps, cg.spanDepPool = cg.spanDepPool[:0], nil
		return nil
	}
	return cg.growSpanDeps()
}

// growSpanDeps doubles the table's capacity, charging the new records to
// the arena.
func (cg *CodeGenerator) growSpanDeps() error {
	n := max(2*cap(cg.spanDeps), spanDepsMin)
	if err := cg.reserve((n - cap(cg.spanDeps)) * spanDepSize); err != nil {
		return err
	}
	sds := make([]spanDep, len(cg.spanDeps), n)
	copy(sds, cg.spanDeps)
	cg.spanDeps = sds
	return nil
}

// retireSpanDeps ends span dependency tracking and recycles the table and
// the jump target tree.
func (cg *CodeGenerator) retireSpanDeps() {
	cg.freeJumpTargets(cg.jumpTargets)
	cg.jumpTargets = nil
	cg.numJumpTargets = 0
	cg.spanDepPool = cg.spanDeps[:0]
	cg.spanDeps = nil
}

// reserve charges n bytes of transient tables to the arena.
func (cg *CodeGenerator) reserve(n int) error {
	if err := cg.arena.Reserve(n); err != nil {
		return cg.outOfMemory(err)
	}
	cg.reserved += n
	return nil
}

// addSpanDep appends the record for the operand after pc2 of the
// instruction at pc, whose current operand value is off.
func (cg *CodeGenerator) addSpanDep(pc, pc2, off int) error {
	if err := cg.startSpanDeps(); err != nil {
		return err
	}
	if len(cg.spanDeps) == cap(cg.spanDeps) {
		if err := cg.growSpanDeps(); err != nil {
			return err
		}
	}
	cg.spanDeps = append(cg.spanDeps, spanDep{top: pc, offset: pc2, before: pc2})
	sd := &cg.spanDeps[len(cg.spanDeps)-1]

	op := vm.Opcode(cg.main.code[pc])
	switch {
	case op.Info().Flags&vm.FlagBackpatch != 0:
		if off > bpdeltaMax {
			return cg.tooLarge()
		}
		sd.target = unresolved(off)
	case off == 0:
		sd.target = resolvedTo(nil)
	default:
		return cg.setSpanDepTarget(sd, off)
	}
	return nil
}

// addSwitchSpanDeps adds records for every operand of the switch at pc and
// returns the offset of the next instruction.
func (cg *CodeGenerator) addSwitchSpanDeps(pc int) (int, error) {
	code := cg.main.code
	op := vm.Opcode(code[pc])
	pc2 := pc
	if err := cg.addSpanDep(pc, pc2, vm.JumpOffset(code, pc2)); err != nil {
		return -1, err
	}
	pc2 += vm.JumpOffsetLen

	var njumps, indexlen int
	if op == vm.OpTableSwitch {
		low := vm.JumpOffset(code, pc2)
		pc2 += vm.JumpOffsetLen
		high := vm.JumpOffset(code, pc2)
		pc2 += vm.JumpOffsetLen
		njumps = max(high-low+1, 0)
	} else {
		njumps = vm.Uint16At(code, pc2)
		pc2 += vm.Uint16Len
		indexlen = vm.IndexLen
	}
	for ; njumps > 0; njumps-- {
		pc2 += indexlen
		if err := cg.addSpanDep(pc, pc2, vm.JumpOffset(code, pc2)); err != nil {
			return -1, err
		}
		pc2 += vm.JumpOffsetLen
	}
	return pc2 + 1, nil
}

// buildSpanDepTable scans main code emitted since spanDepTodo and records
// every jump operand found.
func (cg *CodeGenerator) buildSpanDepTable() error {
	if err := cg.startSpanDeps(); err != nil {
		return err
	}
	code := cg.main.code
	for pc := cg.spanDepTodo; pc < len(code); {
		op := vm.Opcode(code[pc])
		switch op.Info().Format {
		case vm.FormatTableSwitch, vm.FormatLookupSwitch:
			next, err := cg.addSwitchSpanDeps(pc)
			if err != nil {
				return err
			}
			pc = next
		case vm.FormatJump:
			if err := cg.addSpanDep(pc, pc, vm.JumpOffset(code, pc)); err != nil {
				return err
			}
			pc += op.Info().Length
		default:
			pc += vm.InstructionLength(code, pc)
		}
	}
	return nil
}

// getSpanDep finds the index of the record whose operand follows pc.
func (cg *CodeGenerator) getSpanDep(pc int) (int, error) {
	lo, hi := 0, len(cg.spanDeps)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		sd := &cg.spanDeps[mid]
		switch {
		case sd.before == pc:
			return mid, nil
		case sd.before < pc:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return -1, cg.errorf(ErrInternal, "no jump operand at offset %d", pc)
}

// findNearestSpanDep returns the index of the first record at or above
// offset, searching from lo, and the record itself; guard stands in for a
// record past the end.
func (cg *CodeGenerator) findNearestSpanDep(offset, lo int, guard *spanDep) (int, *spanDep) {
	num := len(cg.spanDeps)
	hi := num - 1
	for lo <= hi {
		mid := (lo + hi) / 2
		sd := &cg.spanDeps[mid]
		switch {
		case sd.before == offset:
			return mid, sd
		case sd.before < offset:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	if lo >= num {
		return num, guard
	}
	return lo, &cg.spanDeps[lo]
}

// ---------------------------------------------------------------------------
// Jump operand access
// ---------------------------------------------------------------------------

// getJumpOffset reads the jump operand after pc, which is a backpatch delta
// for a pending chain link.
func (cg *CodeGenerator) getJumpOffset(pc int) (int, error) {
	if cg.spanDeps == nil {
		return vm.JumpOffset(cg.main.code, pc), nil
	}
	i, err := cg.getSpanDep(pc)
	if err != nil {
		return 0, err
	}
	sd := &cg.spanDeps[i]
	if !sd.target.resolved {
		return sd.target.bpdelta, nil
	}
	for i > 0 && cg.spanDeps[i-1].top == sd.top {
		i--
	}
	return sd.target.span(cg.spanDeps[i].offset), nil
}

// SetJumpOffset points the jump operand after pc off bytes from its
// instruction, switching to span-dependency tracking if off does not fit.
func (cg *CodeGenerator) SetJumpOffset(pc, off int) error {
	if cg.spanDeps == nil {
		if off >= vm.JumpOffsetMin && off <= vm.JumpOffsetMax {
			vm.SetJumpOffset(cg.main.code, pc, off)
			return nil
		}
		if err := cg.buildSpanDepTable(); err != nil {
			return err
		}
	}
	i, err := cg.getSpanDep(pc)
	if err != nil {
		return err
	}
	return cg.setSpanDepTarget(&cg.spanDeps[i], off)
}

// EmitJump emits a jump with operand off and returns its offset.
func (cg *CodeGenerator) EmitJump(op vm.Opcode, off int) (int, error) {
	extend := off < vm.JumpOffsetMin || off > vm.JumpOffsetMax
	if extend && cg.spanDeps == nil {
		if err := cg.buildSpanDepTable(); err != nil {
			return -1, err
		}
	}
	jmp, err := cg.Emit3(op, byte(off>>8), byte(off))
	if err != nil {
		return -1, err
	}
	if extend || cg.spanDeps != nil {
		if err := cg.addSpanDep(jmp, jmp, off); err != nil {
			return -1, err
		}
	}
	return jmp, nil
}

// setBackPatchDelta stores a chain link delta in the placeholder at pc.
func (cg *CodeGenerator) setBackPatchDelta(pc, delta int) error {
	if cg.spanDeps == nil && delta < vm.JumpOffsetMax {
		vm.SetJumpOffset(cg.main.code, pc, delta)
		return nil
	}
	if delta > bpdeltaMax {
		return cg.tooLarge()
	}
	if cg.spanDeps == nil {
		if err := cg.buildSpanDepTable(); err != nil {
			return err
		}
	}
	i, err := cg.getSpanDep(pc)
	if err != nil {
		return err
	}
	cg.spanDeps[i].target = unresolved(delta)
	return nil
}

// ---------------------------------------------------------------------------
// Widening
// ---------------------------------------------------------------------------

// optimizeSpanDeps widens every jump whose span does not fit in 16 bits,
// then retires the span-dependency table.
func (cg *CodeGenerator) optimizeSpanDeps() error {
	r := &cg.main
	sds := cg.spanDeps
	offset := len(r.code)
	growth := 0

	for done := false; !done; {
		done = true
		delta := 0
		top, pivot := -1, -1
		sdtop := 0
		var op vm.Opcode

		for i := 0; i < len(sds); i++ {
			sd := &sds[i]
			sd.offset += delta

			if sd.top != top {
				sdtop = i
				top = sd.top
				pivot = sd.offset
				op = vm.Opcode(r.code[top])
			}
			if op.IsExtendedJump() {
				continue
			}

			span := sd.target.span(pivot)
			if span >= vm.JumpOffsetMin && span <= vm.JumpOffsetMax {
				continue
			}
			done = false
			xop, ok := op.Extended()
			if !ok {
				return cg.tooLarge()
			}
			r.code[top] = byte(xop)

			deltaFromTop := 0
			j := sdtop
			for ; j < len(sds) && sds[j].top == top; j++ {
				sd2 := &sds[j]
				if j <= i {
					sd2.offset += deltaFromTop
					deltaFromTop += jumpGrowth
				} else {
					sd2.offset += delta
				}
				delta += jumpGrowth
				updateJumpTargets(cg.jumpTargets, sd2.offset, jumpGrowth)
			}
			i = j - 1
			op = xop
		}
		growth += delta
	}

	var guard spanDep
	if growth > 0 {
		if err := cg.growCode(r, growth); err != nil {
			return err
		}
		r.code = r.code[:offset+growth]
		guard = spanDep{top: -1, offset: offset + growth, before: offset}
	}

	// Walk backwards, moving each run of code between widened operands up
	// to its final position and rewriting every operand.
	top, pivot := -1, 0
	var op vm.Opcode
	for i := len(sds) - 1; i >= 0; i-- {
		sd := &sds[i]
		if sd.top != top {
			top = sd.top
			op = vm.Opcode(r.code[top])
			j := i
			for j > 0 && sds[j-1].top == top {
				j--
			}
			pivot = sds[j].offset
		}

		oldpc := sd.before
		span := sd.target.span(pivot)
		if !op.IsExtendedJump() {
			vm.SetJumpOffset(r.code, oldpc, span)
			continue
		}

		pc := sd.offset
		delta := offset - sd.before
		offset = sd.before + 1
		if size := delta - (1 + vm.JumpOffsetLen); size > 0 {
			src := oldpc + 1 + vm.JumpOffsetLen
			copy(r.code[pc+1+vm.JumpXOffsetLen:], r.code[src:src+size])
		}
		vm.SetJumpXOffset(r.code, pc, span)
	}

	if growth > 0 {
		if err := cg.fixNotesAfterWidening(&guard); err != nil {
			return err
		}
		cg.fixTryNotesAfterWidening(&guard)
		log.Debugf("%s:%d: %d/%d jumps extended (%d+%d bytes)",
			cg.opts.Filename, cg.firstLine, growth/jumpGrowth, len(sds), guard.before, growth)
	}

	cg.retireSpanDeps()
	cg.spanDepTodo = len(r.code)
	return nil
}

// fixNotesAfterWidening grows main note deltas that cross a widened operand
// and stretches span-dependent note operands.
func (cg *CodeGenerator) fixNotesAfterWidening(guard *spanDep) error {
	r := &cg.main
	sds := cg.spanDeps
	offset, growth := 0, 0
	si := 0
	for idx := 0; idx < len(r.notes); idx += vm.NoteLength(r.notes, idx) {
		offset += vm.NoteDelta(r.notes[idx])
		for si < len(sds) && sds[si].before < offset {
			sd2 := guard
			if si+1 < len(sds) {
				sd2 = &sds[si+1]
			}
			if delta := sd2.offset - (sd2.before + growth); delta > 0 {
				var err error
				if idx, err = cg.AddToSrcNoteDelta(idx, delta); err != nil {
					return err
				}
				growth += delta
			}
			si++
		}

		spec := vm.SrcNoteSpecs[vm.NoteType(r.notes[idx])]
		if spec.IsSpanDep == 0 {
			continue
		}
		pivot := offset + spec.OffsetBias
		for w := 0; w < spec.Arity; w++ {
			span := vm.NoteOffset(r.notes, idx, w)
			if span == 0 {
				continue
			}
			target := pivot + span*spec.IsSpanDep
			lo := 0
			if target >= pivot {
				lo = si
			}
			_, sd2 := cg.findNearestSpanDep(target, lo, guard)
			target += sd2.offset - sd2.before
			span = (target - (pivot + growth)) * spec.IsSpanDep
			if err := cg.setNoteOffset(r, idx, w, span); err != nil {
				return err
			}
		}
	}
	r.lastNoteOffset += growth
	return nil
}

// fixTryNotesAfterWidening moves try note starts and stretches lengths.
func (cg *CodeGenerator) fixTryNotesAfterWidening(guard *spanDep) {
	for k := range cg.tryNotes {
		tn := &cg.tryNotes[k]
		start := int(tn.Start)
		si, sd := cg.findNearestSpanDep(start, 0, guard)
		delta := sd.offset - sd.before
		tn.Start = uint32(start + delta)

		length := int(tn.Length)
		_, sd2 := cg.findNearestSpanDep(start+length, si, guard)
		if sd2 != sd {
			tn.Length = uint32(length + sd2.offset - sd2.before - delta)
		}
	}
}
