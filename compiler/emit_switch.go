package compiler

import (
	"github.com/chazu/jsbc/vm"
)

// ---------------------------------------------------------------------------
// Switch
//
// A switch becomes TABLESWITCH when every case is a distinct small integer
// and the range is at most half empty, LOOKUPSWITCH when every case is a
// number or string constant, and CONDSWITCH (a CASE per test) otherwise.
// ---------------------------------------------------------------------------

// caseValue is a case test reduced to a constant.
type caseValue struct {
	isInt bool
	i     int
	atom  vm.Atom
	konst string // name of a propagated const, if any
}

func (v caseValue) key() vm.Atom {
	if v.isInt {
		return vm.NumberAtom(float64(v.i))
	}
	return v.atom
}

// intCaseLimit bounds the integers kept as int case values.
const intCaseLimit = 1 << 30

func intCase(d float64) (caseValue, bool) {
	if i, ok := int32Value(d); ok && i > -intCaseLimit && i < intCaseLimit {
		return caseValue{isInt: true, i: int(i)}, true
	}
	return caseValue{}, false
}

// caseConstant reduces a case test to a constant. ok is false when the
// test must be evaluated at run time.
func (cg *CodeGenerator) caseConstant(test Expr) (v caseValue, ok bool) {
	switch t := test.(type) {
	case *NumberLiteral:
		if v, ok := intCase(t.Value); ok {
			return v, true
		}
		return caseValue{atom: vm.NumberAtom(t.Value)}, true
	case *StringLiteral:
		return caseValue{atom: vm.StringAtom(t.Value)}, true
	case *Identifier:
		a, found := cg.lookupCompileTimeConstant(t.Name)
		if !found {
			return caseValue{}, false
		}
		if a.Kind == vm.AtomNumber {
			if v, ok := intCase(a.Num); ok {
				v.konst = t.Name
				return v, true
			}
		}
		return caseValue{atom: a, konst: t.Name}, true
	}
	return caseValue{}, false
}

func (cg *CodeGenerator) emitSwitch(n *SwitchStmt) error {
	var bodies []Stmt
	for _, c := range n.Cases {
		bodies = append(bodies, c.Body...)
	}
	names := letNames(bodies)

	var (
		stmt     *stmtInfo
		blockObj *vm.Object
	)
	if len(names) > 0 {
		// The block's slots lie under the discriminant, so ENTERBLOCK comes
		// first, and the discriminant is evaluated in the block's scope.
		var err error
		if blockObj, err = cg.objects.NewBlockScope(names); err != nil {
			return cg.outOfMemory(err)
		}
		stmt = cg.pushBlockScope(blockObj, -1)
		stmt.kind = stmtSwitch
		if err := cg.emitObjectOp(vm.OpEnterBlock, blockObj); err != nil {
			return err
		}
		if err := cg.emitTree(n.Discriminant); err != nil {
			return err
		}
	} else if err := cg.emitTree(n.Discriminant); err != nil {
		return err
	}

	top := cg.offset()
	if stmt != nil {
		stmt.update = top
	} else {
		stmt = cg.pushStatement(stmtSwitch, top)
	}

	// Pick the dispatch strategy.
	switchOp := vm.OpTableSwitch
	caseCount := len(n.Cases)
	hasDefault := false
	low, high := 0, -1
	values := make([]caseValue, len(n.Cases))
	constPropagated := false
	tableLength := 0

	if caseCount == 0 || (caseCount == 1 && n.Cases[0].Test == nil) {
		hasDefault = caseCount == 1
		caseCount = 0
	} else {
		low, high = 1<<31-1, -1<<31
		seen := make(map[int]bool)
		for i, c := range n.Cases {
			if c.Test == nil {
				hasDefault = true
				caseCount--
				continue
			}
			if switchOp == vm.OpCondSwitch {
				continue
			}
			v, ok := cg.caseConstant(c.Test)
			if !ok {
				switchOp = vm.OpCondSwitch
				continue
			}
			values[i] = v
			if v.konst != "" {
				constPropagated = true
			}
			if switchOp != vm.OpTableSwitch {
				continue
			}
			if !v.isInt || v.i < -1<<15 || v.i >= 1<<15 || seen[v.i] {
				switchOp = vm.OpLookupSwitch
				continue
			}
			seen[v.i] = true
			low = min(low, v.i)
			high = max(high, v.i)
		}

		switch switchOp {
		case vm.OpTableSwitch:
			tableLength = high - low + 1
			if tableLength >= 1<<16 || tableLength > 2*caseCount {
				switchOp = vm.OpLookupSwitch
				tableLength = 0
			}
		case vm.OpLookupSwitch:
			// Conservatively bound the atom indexes the pairs will need.
			if caseCount+cg.atomList.Len() > 1<<16 {
				switchOp = vm.OpCondSwitch
			}
		}
	}

	// The note's operands are the switch length and, for CONDSWITCH, the
	// offset of the first CASE.
	noteIndex, err := cg.NewSrcNote3(vm.SrcSwitch, 0, 0)
	if err != nil {
		return err
	}
	var switchSize int
	switch switchOp {
	case vm.OpTableSwitch:
		switchSize = vm.JumpOffsetLen * (3 + tableLength)
	case vm.OpLookupSwitch:
		switchSize = vm.JumpOffsetLen + vm.IndexLen + (vm.IndexLen+vm.JumpOffsetLen)*caseCount
	}
	if _, err := cg.EmitN(switchOp, switchSize); err != nil {
		return err
	}

	caseJumps := make([]int, len(n.Cases))
	defaultOffset := -1
	if switchOp == vm.OpCondSwitch {
		if defaultOffset, err = cg.emitCaseTests(n, top, noteIndex, hasDefault, caseJumps); err != nil {
			return err
		}
	} else if err := cg.emitSwitchTable(n, switchOp, top, low, high, caseCount, values, constPropagated); err != nil {
		return err
	}

	// Case bodies, in source order.
	starts := make([]int, len(n.Cases))
	off := -1
	for i, c := range n.Cases {
		if switchOp == vm.OpCondSwitch && c.Test != nil {
			if err := cg.setJumpHere(caseJumps[i]); err != nil {
				return err
			}
		}
		starts[i] = cg.offset()
		if err := cg.emitStatementList(c.Body); err != nil {
			return err
		}
		if c.Test == nil {
			off = starts[i] - top
		}
	}
	if !hasDefault {
		off = cg.offset() - top
	}

	if switchOp == vm.OpCondSwitch {
		err = cg.SetJumpOffset(defaultOffset, off-(defaultOffset-top))
	} else {
		err = cg.SetJumpOffset(top, off)
	}
	if err != nil {
		return err
	}
	if err := cg.SetSrcNoteOffset(noteIndex, 0, cg.offset()-top); err != nil {
		return err
	}

	switch switchOp {
	case vm.OpTableSwitch:
		table := make([]int, tableLength)
		for i, c := range n.Cases {
			if c.Test != nil {
				table[values[i].i-low] = starts[i] - top
			}
		}
		pc := top + 3*vm.JumpOffsetLen
		for _, target := range table {
			if err := cg.SetJumpOffset(pc, target); err != nil {
				return err
			}
			pc += vm.JumpOffsetLen
		}
	case vm.OpLookupSwitch:
		pc := top + vm.JumpOffsetLen + vm.IndexLen
		for i, c := range n.Cases {
			if c.Test == nil {
				continue
			}
			index, err := cg.indexAtom(values[i].key())
			if err != nil {
				return err
			}
			vm.SetUint16At(cg.main.code, pc, index)
			pc += vm.IndexLen
			if err := cg.SetJumpOffset(pc, starts[i]-top); err != nil {
				return err
			}
			pc += vm.JumpOffsetLen
		}
	}

	if err := cg.popStatementCG(); err != nil {
		return err
	}
	if blockObj != nil {
		if _, err := cg.emitUint16(vm.OpLeaveBlock, blockObj.Count()); err != nil {
			return err
		}
	}
	return nil
}

// emitCaseTests emits the CASE dispatch of a CONDSWITCH and returns the
// offset of its DEFAULT jump. caseJumps receives each case's CASE offset.
func (cg *CodeGenerator) emitCaseTests(n *SwitchStmt, top, noteIndex int, hasDefault bool, caseJumps []int) (int, error) {
	caseNote, off := -1, -1
	beforeCases := true
	for i, c := range n.Cases {
		if c.Test != nil {
			if err := cg.emitTree(c.Test); err != nil {
				return -1, err
			}
		}
		if caseNote >= 0 {
			// Link the previous CASE to the next test.
			if err := cg.SetSrcNoteOffset(caseNote, 0, cg.offset()-off); err != nil {
				return -1, err
			}
		}
		if c.Test == nil {
			continue
		}
		var err error
		if caseNote, err = cg.NewSrcNote2(vm.SrcPCDelta, 0); err != nil {
			return -1, err
		}
		if off, err = cg.EmitJump(vm.OpCase, 0); err != nil {
			return -1, err
		}
		caseJumps[i] = off
		if beforeCases {
			// Widening the switch note's operand can insert bytes before
			// caseNote.
			before := len(cg.main.notes)
			if err := cg.SetSrcNoteOffset(noteIndex, 1, off-top); err != nil {
				return -1, err
			}
			caseNote += len(cg.main.notes) - before
			beforeCases = false
		}
	}
	if !hasDefault && caseNote >= 0 {
		if err := cg.SetSrcNoteOffset(caseNote, 0, cg.offset()-off); err != nil {
			return -1, err
		}
	}
	return cg.EmitJump(vm.OpDefault, 0)
}

// emitSwitchTable fills the bounds or pair count of a TABLESWITCH or
// LOOKUPSWITCH at top and notes propagated constants by name.
func (cg *CodeGenerator) emitSwitchTable(n *SwitchStmt, switchOp vm.Opcode, top, low, high, caseCount int, values []caseValue, constPropagated bool) error {
	code := cg.main.code
	pc := top + vm.JumpOffsetLen
	if switchOp == vm.OpTableSwitch {
		vm.SetJumpOffset(code, pc, low)
		pc += vm.JumpOffsetLen
		vm.SetJumpOffset(code, pc, high)
		pc += vm.JumpOffsetLen
	} else {
		vm.SetUint16At(code, pc, caseCount)
		pc += vm.IndexLen
	}

	if cg.spanDeps != nil {
		if _, err := cg.addSwitchSpanDeps(top); err != nil {
			return err
		}
	}
	if !constPropagated {
		return nil
	}

	// Notes for propagated constants annotate the table entries, so the
	// cursor is moved back to each entry while its note is added.
	var entries []int
	if switchOp == vm.OpTableSwitch {
		byValue := make(map[int]int)
		for i, c := range n.Cases {
			if c.Test != nil {
				byValue[values[i].i] = i
			}
		}
		for v := low; v <= high; v++ {
			i, ok := byValue[v]
			if !ok || values[i].konst == "" {
				entries = append(entries, -1)
				continue
			}
			entries = append(entries, i)
		}
	} else {
		for i, c := range n.Cases {
			if c.Test == nil {
				continue
			}
			entries = append(entries, i)
		}
	}

	saved := cg.main.code
	defer func() { cg.main.code = saved }()
	step := vm.JumpOffsetLen
	if switchOp == vm.OpLookupSwitch {
		step = vm.IndexLen + vm.JumpOffsetLen
	}
	for _, i := range entries {
		if i >= 0 && values[i].konst != "" {
			index, err := cg.indexAtom(vm.StringAtom(values[i].konst))
			if err != nil {
				return err
			}
			cg.main.code = saved[:pc]
			if _, err := cg.NewSrcNote2(vm.SrcLabel, index); err != nil {
				return err
			}
		}
		pc += step
	}
	return nil
}
