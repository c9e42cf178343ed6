package compiler

import (
	"github.com/chazu/jsbc/vm"
)

// ---------------------------------------------------------------------------
// Statement stack: break/continue chains, scopes and non-local jumps
// ---------------------------------------------------------------------------

type stmtKind uint8

// The order matters: the predicates below test ranges of kinds.
const (
	stmtLabel stmtKind = iota
	stmtIf
	stmtElse
	stmtSeq
	stmtBlock
	stmtSwitch
	stmtWith
	stmtCatch
	stmtTry
	stmtFinally
	stmtSubroutine
	stmtDoLoop
	stmtForLoop
	stmtForInLoop
	stmtWhileLoop
)

var stmtNames = [...]string{
	stmtLabel:      "label statement",
	stmtIf:         "if statement",
	stmtElse:       "else statement",
	stmtSeq:        "destructuring body",
	stmtBlock:      "block",
	stmtSwitch:     "switch statement",
	stmtWith:       "with statement",
	stmtCatch:      "catch block",
	stmtTry:        "try block",
	stmtFinally:    "finally block",
	stmtSubroutine: "finally block",
	stmtDoLoop:     "do loop",
	stmtForLoop:    "for loop",
	stmtForInLoop:  "for/in loop",
	stmtWhileLoop:  "while loop",
}

func (k stmtKind) String() string {
	return stmtNames[k]
}

type stmtFlags uint8

const (
	sifScope stmtFlags = 1 << iota // binds let variables in blockObj
)

// stmtInfo is one entry on the statement stack. Chains are -1 terminated
// offsets of the last BACKPATCH placeholder.
type stmtInfo struct {
	kind  stmtKind
	flags stmtFlags

	top    int // offset of the statement's first instruction
	update int // loop update target for continue

	breaks    int // break chain
	continues int // continue chain
	gosubs    int // finally: GOSUB chain
	catchNote int // catch: SRC_CATCH note index
	guardJump int // catch: offset of the guard's IFEQ, or -1

	label    string
	blockObj *vm.Object

	down      *stmtInfo
	downScope *stmtInfo
}

func (s *stmtInfo) isLoop() bool {
	return s.kind >= stmtDoLoop
}

func (s *stmtInfo) isTrying() bool {
	return s.kind >= stmtTry && s.kind <= stmtSubroutine
}

func (s *stmtInfo) maybeScope() bool {
	return s.kind != stmtWith && s.kind >= stmtBlock && s.kind <= stmtSubroutine
}

func (s *stmtInfo) linksScope() bool {
	return (s.kind >= stmtWith && s.kind <= stmtCatch) || s.flags&sifScope != 0
}

// pushStatement pushes a new statement starting at top.
func (cg *CodeGenerator) pushStatement(kind stmtKind, top int) *stmtInfo {
	stmt := &stmtInfo{
		kind:      kind,
		top:       top,
		update:    top,
		breaks:    -1,
		continues: -1,
		gosubs:    -1,
		catchNote: -1,
		guardJump: -1,
		down:      cg.topStmt,
	}
	cg.topStmt = stmt
	if stmt.linksScope() {
		stmt.downScope = cg.topScopeStmt
		cg.topScopeStmt = stmt
	}
	return stmt
}

// pushBlockScope pushes a block statement that binds the names of blockObj.
func (cg *CodeGenerator) pushBlockScope(blockObj *vm.Object, top int) *stmtInfo {
	stmt := cg.pushStatement(stmtBlock, top)
	stmt.flags |= sifScope
	stmt.downScope = cg.topScopeStmt
	cg.topScopeStmt = stmt
	stmt.blockObj = blockObj
	return stmt
}

// popStatement pops the top statement without patching its chains.
func (cg *CodeGenerator) popStatement() {
	stmt := cg.topStmt
	cg.topStmt = stmt.down
	if stmt.linksScope() {
		cg.topScopeStmt = stmt.downScope
	}
}

// popStatementCG pops the top statement, resolving its break chain to the
// current offset and its continue chain to the update target.
func (cg *CodeGenerator) popStatementCG() error {
	stmt := cg.topStmt
	if !stmt.isTrying() {
		if err := cg.backPatch(stmt.breaks, cg.offset(), vm.OpGoto); err != nil {
			return err
		}
		if err := cg.backPatch(stmt.continues, stmt.update, vm.OpGoto); err != nil {
			return err
		}
	}
	cg.popStatement()
	return nil
}

// inStatement reports whether a statement of kind encloses the current
// position.
func (cg *CodeGenerator) inStatement(kind stmtKind) bool {
	for stmt := cg.topStmt; stmt != nil; stmt = stmt.down {
		if stmt.kind == kind {
			return true
		}
	}
	return false
}

// statementName names the innermost statement for overflow reports.
func (cg *CodeGenerator) statementName() string {
	if cg.topStmt == nil {
		return "script"
	}
	return cg.topStmt.kind.String()
}

// lexicalLookup finds the innermost block scope binding name. It stops at a
// with statement, which it returns with slot -1. The slot is the block's
// stack depth plus the name's index.
func (cg *CodeGenerator) lexicalLookup(name string) (stmt *stmtInfo, slot int) {
	for stmt = cg.topScopeStmt; stmt != nil; stmt = stmt.downScope {
		if stmt.kind == stmtWith {
			return stmt, -1
		}
		if stmt.flags&sifScope == 0 {
			continue
		}
		for i, n := range stmt.blockObj.Names {
			if n == name {
				return stmt, stmt.blockObj.Depth + i
			}
		}
	}
	return nil, -1
}

// ---------------------------------------------------------------------------
// Backpatch chains
// ---------------------------------------------------------------------------

// emitBackPatchOp emits a placeholder linked to the previous one in the
// chain at *last.
func (cg *CodeGenerator) emitBackPatchOp(op vm.Opcode, last *int) (int, error) {
	offset := cg.offset()
	delta := offset - *last
	*last = offset
	return cg.EmitJump(op, delta)
}

// backPatch walks the chain ending at last, pointing every placeholder at
// target and replacing it with op.
func (cg *CodeGenerator) backPatch(last, target int, op vm.Opcode) error {
	for pc := last; pc != -1; {
		delta, err := cg.getJumpOffset(pc)
		if err != nil {
			return err
		}
		if err := cg.SetJumpOffset(pc, target-pc); err != nil {
			return err
		}
		// The op is replaced after the offset so a table built by
		// SetJumpOffset still sees the placeholder.
		cg.main.code[pc] = byte(op)
		if delta <= 0 {
			return cg.errorf(ErrInternal, "broken backpatch chain at offset %d", pc)
		}
		pc -= delta
	}
	return nil
}

// ---------------------------------------------------------------------------
// Non-local jumps
// ---------------------------------------------------------------------------

func (cg *CodeGenerator) flushPops(npops *int) error {
	if *npops == 0 {
		return nil
	}
	if _, err := cg.NewSrcNote(vm.SrcHidden); err != nil {
		return err
	}
	if _, err := cg.emitUint16(vm.OpPopN, *npops); err != nil {
		return err
	}
	*npops = 0
	return nil
}

// emitNonLocalJumpFixup unwinds every statement between the top of the
// stack and toStmt: finally blocks are called, with objects, iterators and
// block locals popped. The stack depth is left as it was, since the code
// duplicates balanced exits emitted elsewhere.
func (cg *CodeGenerator) emitNonLocalJumpFixup(toStmt *stmtInfo) error {
	depth := cg.stackDepth
	npops := 0

	for stmt := cg.topStmt; stmt != toStmt; stmt = stmt.down {
		switch stmt.kind {
		case stmtFinally:
			if err := cg.flushPops(&npops); err != nil {
				return err
			}
			if _, err := cg.NewSrcNote(vm.SrcHidden); err != nil {
				return err
			}
			if _, err := cg.emitBackPatchOp(vm.OpBackpatch, &stmt.gosubs); err != nil {
				return err
			}
		case stmtWith:
			if err := cg.flushPops(&npops); err != nil {
				return err
			}
			if err := cg.emitHidden(vm.OpLeaveWith); err != nil {
				return err
			}
		case stmtForInLoop:
			if err := cg.flushPops(&npops); err != nil {
				return err
			}
			if err := cg.emitHidden(vm.OpEndIter); err != nil {
				return err
			}
		case stmtSubroutine:
			// [exception or hole, retsub pc] pair
			npops += 2
		}

		if stmt.flags&sifScope != 0 {
			if err := cg.flushPops(&npops); err != nil {
				return err
			}
			if _, err := cg.NewSrcNote(vm.SrcHidden); err != nil {
				return err
			}
			if _, err := cg.emitUint16(vm.OpLeaveBlock, stmt.blockObj.Count()); err != nil {
				return err
			}
		}
	}

	if err := cg.flushPops(&npops); err != nil {
		return err
	}
	cg.stackDepth = depth
	return nil
}

func (cg *CodeGenerator) emitHidden(op vm.Opcode) error {
	if _, err := cg.NewSrcNote(vm.SrcHidden); err != nil {
		return err
	}
	_, err := cg.Emit1(op)
	return err
}

// emitGoto emits an unwinding jump to toStmt, linked into the chain at
// *last. A non-empty label is recorded in a noteType note.
func (cg *CodeGenerator) emitGoto(toStmt *stmtInfo, last *int, label string, noteType vm.SrcNoteType) (int, error) {
	if err := cg.emitNonLocalJumpFixup(toStmt); err != nil {
		return -1, err
	}
	switch {
	case label != "":
		index, err := cg.indexAtom(vm.StringAtom(label))
		if err != nil {
			return -1, err
		}
		if _, err := cg.NewSrcNote2(noteType, index); err != nil {
			return -1, err
		}
	case noteType != vm.SrcNull:
		if _, err := cg.NewSrcNote(noteType); err != nil {
			return -1, err
		}
	}
	return cg.emitBackPatchOp(vm.OpBackpatch, last)
}
