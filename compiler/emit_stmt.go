package compiler

import (
	"github.com/chazu/jsbc/vm"
)

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// emitStatements emits a statement list without opening a block.
func (cg *CodeGenerator) emitStatements(list []Stmt) error {
	for _, st := range list {
		if err := cg.emitTree(st); err != nil {
			return err
		}
	}
	return nil
}

// emitStatementList emits list as a plain block statement.
func (cg *CodeGenerator) emitStatementList(list []Stmt) error {
	cg.pushStatement(stmtBlock, cg.offset())
	if err := cg.emitStatements(list); err != nil {
		return err
	}
	return cg.popStatementCG()
}

func (cg *CodeGenerator) emitBlock(n *BlockStmt) error {
	names := letNames(n.Body)
	if len(names) == 0 {
		return cg.emitStatementList(n.Body)
	}
	return cg.emitLexicalScope(names, scopeBlock, func(*stmtInfo) error {
		return cg.emitStatementList(n.Body)
	})
}

// scopeKind selects how emitLexicalScope brackets its body.
type scopeKind uint8

const (
	scopeBlock scopeKind = iota // braced block, may carry a SRC_BRACE note
	scopeHead                   // loop head or catch clause
	scopeExpr                   // let expression; the body's value survives
)

// emitLexicalScope binds names in a new block scope around body. The
// block's slots are pushed by ENTERBLOCK and popped by LEAVEBLOCK, or by
// LEAVEBLOCKEXPR which keeps the expression value on top.
func (cg *CodeGenerator) emitLexicalScope(names []string, kind scopeKind, body func(*stmtInfo) error) error {
	blockObj, err := cg.objects.NewBlockScope(names)
	if err != nil {
		return cg.outOfMemory(err)
	}
	top := cg.offset()
	stmt := cg.pushBlockScope(blockObj, top)

	noteIndex := -1
	tmp := cg.offset()
	if kind == scopeBlock {
		down := stmt.down
		if (down == nil && !cg.inFunction()) || (down != nil && down.kind == stmtBlock) {
			if noteIndex, err = cg.NewSrcNote2(vm.SrcBrace, 0); err != nil {
				return err
			}
			if _, err := cg.Emit1(vm.OpNop); err != nil {
				return err
			}
		}
	}

	if err := cg.emitObjectOp(vm.OpEnterBlock, blockObj); err != nil {
		return err
	}
	if err := body(stmt); err != nil {
		return err
	}

	op := vm.OpLeaveBlock
	if kind == scopeExpr {
		op = vm.OpLeaveBlockExpr
		if _, err := cg.NewSrcNote2(vm.SrcPCBase, cg.offset()-top); err != nil {
			return err
		}
	} else if noteIndex >= 0 {
		if err := cg.SetSrcNoteOffset(noteIndex, 0, cg.offset()-tmp); err != nil {
			return err
		}
	}
	if _, err := cg.emitUint16(op, blockObj.Count()); err != nil {
		return err
	}
	return cg.popStatementCG()
}

// hideScope removes the innermost statement and block scope from view so
// that an initializer is evaluated outside the bindings it initializes.
// The returned func restores them.
func (cg *CodeGenerator) hideScope() func() {
	stmt, scope := cg.topStmt, cg.topScopeStmt
	if stmt != nil {
		cg.topStmt = stmt.down
	}
	if scope != nil {
		cg.topScopeStmt = scope.downScope
	}
	return func() {
		cg.topStmt, cg.topScopeStmt = stmt, scope
	}
}

// setLoopUpdate points continue at the current offset, for stmt and the
// labels directly enclosing it.
func (cg *CodeGenerator) setLoopUpdate(stmt *stmtInfo) {
	off := cg.offset()
	for s := stmt; ; {
		s.update = off
		s = s.down
		if s == nil || s.kind != stmtLabel {
			return
		}
	}
}

// setJumpHere points the jump at off to the current offset.
func (cg *CodeGenerator) setJumpHere(off int) error {
	return cg.SetJumpOffset(off, cg.offset()-off)
}

// ---------------------------------------------------------------------------
// Expression statements
// ---------------------------------------------------------------------------

func (cg *CodeGenerator) emitExprStmt(n *ExprStmt) error {
	wantval := !cg.inFunction() && !cg.opts.NoScriptRval
	useful := wantval
	if !useful {
		var err error
		if useful, err = cg.checkSideEffects(n.Expr); err != nil {
			return err
		}
	}

	// A labeled expression statement is kept even when useless.
	top := cg.topStmt
	if !useful && (top == nil || top.kind != stmtLabel || top.update < cg.offset()) {
		return cg.warnf(n.Expr.Span().Start, "useless expression")
	}

	op := vm.OpPop
	if wantval {
		op = vm.OpPopv
	} else if a, ok := n.Expr.(*AssignExpr); ok {
		grouped, err := cg.maybeEmitGroupAssignment(vm.SrcDeclNone, a)
		if err != nil {
			return err
		}
		if grouped {
			op = vm.OpNop
		}
	}
	if op == vm.OpNop {
		return nil
	}
	if err := cg.emitTree(n.Expr); err != nil {
		return err
	}
	_, err := cg.Emit1(op)
	return err
}

// ---------------------------------------------------------------------------
// Conditionals and loops
// ---------------------------------------------------------------------------

func (cg *CodeGenerator) emitIf(n *IfStmt) error {
	var stmt *stmtInfo
	beq, jmp, noteIndex := -1, -1, -1

	for {
		if err := cg.emitTree(n.Test); err != nil {
			return err
		}
		top := cg.offset()
		if stmt == nil {
			stmt = cg.pushStatement(stmtIf, top)
		} else {
			// else if: reuse the record and note where the chain goes.
			stmt.kind = stmtIf
			stmt.update = top
			if err := cg.SetSrcNoteOffset(noteIndex, 0, jmp-beq); err != nil {
				return err
			}
			if err := cg.SetSrcNoteOffset(noteIndex, 1, top-jmp); err != nil {
				return err
			}
		}

		noteType := vm.SrcIf
		if n.Else != nil {
			noteType = vm.SrcIfElse
		}
		var err error
		if noteIndex, err = cg.NewSrcNote(noteType); err != nil {
			return err
		}
		if beq, err = cg.EmitJump(vm.OpIfEq, 0); err != nil {
			return err
		}
		if err := cg.emitTree(n.Then); err != nil {
			return err
		}

		if n.Else == nil {
			if err := cg.setJumpHere(beq); err != nil {
				return err
			}
			break
		}

		stmt.kind = stmtElse
		if jmp, err = cg.emitGoto(stmt, &stmt.breaks, "", vm.SrcNull); err != nil {
			return err
		}
		if err := cg.setJumpHere(beq); err != nil {
			return err
		}
		if elif, ok := n.Else.(*IfStmt); ok {
			n = elif
			continue
		}
		if err := cg.emitTree(n.Else); err != nil {
			return err
		}
		if err := cg.SetSrcNoteOffset(noteIndex, 0, jmp-beq); err != nil {
			return err
		}
		break
	}
	return cg.popStatementCG()
}

// emitWhile tests at the bottom: goto cond; body; cond; ifne body.
func (cg *CodeGenerator) emitWhile(n *WhileStmt) error {
	cg.pushStatement(stmtWhileLoop, cg.offset())
	noteIndex, err := cg.NewSrcNote(vm.SrcWhile)
	if err != nil {
		return err
	}
	jmp, err := cg.EmitJump(vm.OpGoto, 0)
	if err != nil {
		return err
	}
	top := cg.offset()
	if err := cg.emitTree(n.Body); err != nil {
		return err
	}
	if err := cg.setJumpHere(jmp); err != nil {
		return err
	}
	if err := cg.emitTree(n.Test); err != nil {
		return err
	}
	beq, err := cg.EmitJump(vm.OpIfNe, top-cg.offset())
	if err != nil {
		return err
	}
	if err := cg.SetSrcNoteOffset(noteIndex, 0, beq-jmp); err != nil {
		return err
	}
	return cg.popStatementCG()
}

func (cg *CodeGenerator) emitDoWhile(n *DoWhileStmt) error {
	noteIndex, err := cg.NewSrcNote(vm.SrcWhile)
	if err != nil {
		return err
	}
	if _, err := cg.Emit1(vm.OpNop); err != nil {
		return err
	}
	top := cg.offset()
	stmt := cg.pushStatement(stmtDoLoop, top)
	if err := cg.emitTree(n.Body); err != nil {
		return err
	}
	cg.setLoopUpdate(stmt)
	if err := cg.emitTree(n.Test); err != nil {
		return err
	}
	beq, err := cg.EmitJump(vm.OpIfNe, top-cg.offset())
	if err != nil {
		return err
	}
	// IFNE serves other statements too; the note tells them apart.
	if err := cg.SetSrcNoteOffset(noteIndex, 0, 1+(beq-top)); err != nil {
		return err
	}
	return cg.popStatementCG()
}

func (cg *CodeGenerator) emitFor(n *ForStmt) error {
	if vd, ok := n.Init.(*VarDecl); ok && vd.Kind == DeclLet {
		return cg.emitLexicalScope(declNames(vd.Decls), scopeHead, func(*stmtInfo) error {
			return cg.emitForLoop(n)
		})
	}
	return cg.emitForLoop(n)
}

func (cg *CodeGenerator) emitForLoop(n *ForStmt) error {
	stmt := cg.pushStatement(stmtForLoop, cg.offset())

	op := vm.OpPop
	switch init := n.Init.(type) {
	case nil:
		op = vm.OpNop
	case *VarDecl:
		if err := cg.updateLineNumberNotes(init.Span().Start.Line); err != nil {
			return err
		}
		_, grouped, err := cg.emitVariables(init, varForInit)
		if err != nil {
			return err
		}
		if grouped {
			op = vm.OpNop
		}
	case Expr:
		if a, ok := init.(*AssignExpr); ok {
			grouped, err := cg.maybeEmitGroupAssignment(vm.SrcDeclNone, a)
			if err != nil {
				return err
			}
			if grouped {
				op = vm.OpNop
			}
		}
		if op == vm.OpPop {
			if err := cg.emitTree(init); err != nil {
				return err
			}
		}
	default:
		return cg.errorf(ErrSyntax, "invalid for loop initializer %T", init)
	}

	// SRC_FOR operands are relative to tmp, just past the POP or NOP.
	noteIndex, err := cg.NewSrcNote(vm.SrcFor)
	if err != nil {
		return err
	}
	if _, err := cg.Emit1(op); err != nil {
		return err
	}
	tmp := cg.offset()

	jmp := -1
	if n.Test != nil {
		if jmp, err = cg.EmitJump(vm.OpGoto, 0); err != nil {
			return err
		}
	}
	top := cg.offset()
	stmt.top, stmt.update = top, top

	if err := cg.emitTree(n.Body); err != nil {
		return err
	}
	if err := cg.SetSrcNoteOffset(noteIndex, 1, cg.offset()-tmp); err != nil {
		return err
	}
	cg.setLoopUpdate(stmt)

	if n.Update != nil {
		op = vm.OpPop
		if a, ok := n.Update.(*AssignExpr); ok {
			grouped, err := cg.maybeEmitGroupAssignment(vm.SrcDeclNone, a)
			if err != nil {
				return err
			}
			if grouped {
				op = vm.OpNop
			}
		}
		if op == vm.OpPop {
			if err := cg.emitTree(n.Update); err != nil {
				return err
			}
		}
		if _, err := cg.Emit1(op); err != nil {
			return err
		}
		// The update may sit on an earlier line than the body's end.
		if line := n.Span().End.Line; line > 0 && cg.current.currentLine != line {
			if _, err := cg.NewSrcNote2(vm.SrcSetLine, line); err != nil {
				return err
			}
			cg.current.currentLine = line
		}
	}

	if err := cg.SetSrcNoteOffset(noteIndex, 0, cg.offset()-tmp); err != nil {
		return err
	}
	if n.Test != nil {
		if err := cg.setJumpHere(jmp); err != nil {
			return err
		}
		if err := cg.emitTree(n.Test); err != nil {
			return err
		}
	}
	if err := cg.SetSrcNoteOffset(noteIndex, 2, cg.offset()-tmp); err != nil {
		return err
	}

	closeOp := vm.OpGoto
	if n.Test != nil {
		closeOp = vm.OpIfNe
	}
	if _, err := cg.EmitJump(closeOp, top-cg.offset()); err != nil {
		return err
	}
	return cg.popStatementCG()
}

func (cg *CodeGenerator) emitForIn(n *ForInStmt) error {
	vd, ok := n.Left.(*VarDecl)
	if !ok || vd.Kind != DeclLet {
		return cg.emitForInLoop(n)
	}
	if len(vd.Decls) != 1 {
		return cg.errorf(ErrSyntax, "invalid for/in left-hand side")
	}
	// The let's initializer runs once, outside the loop's scope.
	if init := vd.Decls[0].Init; init != nil {
		if err := cg.emitTree(init); err != nil {
			return err
		}
		if _, err := cg.Emit1(vm.OpPop); err != nil {
			return err
		}
	}
	return cg.emitLexicalScope(declNames(vd.Decls), scopeHead, func(*stmtInfo) error {
		return cg.emitForInLoop(n)
	})
}

func (cg *CodeGenerator) emitForInLoop(n *ForInStmt) error {
	stmt := cg.pushStatement(stmtForInLoop, cg.offset())

	var (
		decl   *VarDecl
		target Expr
	)
	switch left := n.Left.(type) {
	case *VarDecl:
		if len(left.Decls) != 1 {
			return cg.errorf(ErrSyntax, "invalid for/in left-hand side")
		}
		decl = left
		d := left.Decls[0]
		target = d.Target
		switch {
		case d.Init == nil:
			if _, _, err := cg.emitVariables(left, varForIn); err != nil {
				return err
			}
		case left.Kind != DeclLet:
			// for (var x = i in o) runs var x = i once, before the loop.
			if _, _, err := cg.emitVariables(left, varPop); err != nil {
				return err
			}
		}
	case Expr:
		target = left
	default:
		return cg.errorf(ErrSyntax, "invalid for/in left-hand side")
	}

	if err := cg.emitTree(n.Right); err != nil {
		return err
	}
	flags := byte(vm.IterEnumerate)
	if n.Each {
		flags |= vm.IterForEach
	}
	if _, err := cg.Emit2(vm.OpIter, flags); err != nil {
		return err
	}

	noteIndex, err := cg.NewSrcNote(vm.SrcForIn)
	if err != nil {
		return err
	}
	jmp, err := cg.EmitJump(vm.OpGoto, 0)
	if err != nil {
		return err
	}
	top := cg.offset()
	stmt.top, stmt.update = top, top

	if err := cg.emitForInTarget(decl, target); err != nil {
		return err
	}
	if err := cg.SetSrcNoteOffset(noteIndex, 0, cg.offset()-jmp); err != nil {
		return err
	}

	if err := cg.emitTree(n.Body); err != nil {
		return err
	}
	cg.setLoopUpdate(stmt)

	if err := cg.setJumpHere(jmp); err != nil {
		return err
	}
	if _, err := cg.Emit1(vm.OpNextIter); err != nil {
		return err
	}
	beq, err := cg.EmitJump(vm.OpIfNe, top-cg.offset())
	if err != nil {
		return err
	}
	if err := cg.SetSrcNoteOffset(noteIndex, 1, beq-jmp); err != nil {
		return err
	}

	// Breaks land on ENDITER, inside the iterator's try note.
	if err := cg.popStatementCG(); err != nil {
		return err
	}
	if err := cg.newTryNote(vm.TryIter, cg.stackDepth, top, cg.offset()); err != nil {
		return err
	}
	_, err = cg.Emit1(vm.OpEndIter)
	return err
}

// emitForInTarget stores the next enumerated value into the loop's left
// side. The stack is balanced across the sequence.
func (cg *CodeGenerator) emitForInTarget(decl *VarDecl, target Expr) error {
	declType := vm.SrcDeclNone
	if decl != nil {
		declType = declNoteType(decl.Kind)
	}

	switch t := target.(type) {
	case *Identifier:
		if decl != nil && (decl.Kind == DeclLet || (decl.Kind == DeclVar && decl.Decls[0].Init == nil)) {
			if _, err := cg.NewSrcNote2(vm.SrcDecl, declType); err != nil {
				return err
			}
		}
		b, err := cg.bindNameToSlot(t.Name, vm.OpForName)
		if err != nil {
			return err
		}
		if b.slot >= 0 && b.isConst {
			return cg.errorf(ErrSyntax, "invalid for/in left-hand side")
		}
		return cg.emitBoundName(b, t.Name)

	case *MemberExpr:
		// FORPROP needs the object evaluated on every iteration.
		useful, err := cg.checkSideEffects(t.Object)
		if err != nil {
			return err
		}
		if !useful {
			return cg.emitPropOp(t, vm.OpForProp, false)
		}

	case *ArrayLiteral, *ObjectLiteral:
		if _, err := cg.Emit1(vm.OpForElem); err != nil {
			return err
		}
		if err := cg.emitDestructuringOps(declType, t); err != nil {
			return err
		}
		_, err := cg.Emit1(vm.OpPop)
		return err

	case *IndexExpr:
	default:
		return cg.errorf(ErrSyntax, "invalid for/in left-hand side")
	}

	if _, err := cg.Emit1(vm.OpForElem); err != nil {
		return err
	}
	return cg.emitElemOp(target, vm.OpEnumElem)
}

// ---------------------------------------------------------------------------
// Jumps
// ---------------------------------------------------------------------------

func (cg *CodeGenerator) emitBreak(n *BreakStmt) error {
	stmt := cg.topStmt
	noteType := vm.SrcBreak2Label
	if n.Label != "" {
		for stmt != nil && (stmt.kind != stmtLabel || stmt.label != n.Label) {
			stmt = stmt.down
		}
		if stmt == nil {
			return cg.errorf(ErrSyntax, "label %s not found", n.Label)
		}
	} else {
		for stmt != nil && !stmt.isLoop() && stmt.kind != stmtSwitch {
			stmt = stmt.down
		}
		if stmt == nil {
			return cg.errorf(ErrSyntax, "break outside of loop or switch")
		}
		noteType = vm.SrcBreak
		if stmt.kind == stmtSwitch {
			noteType = vm.SrcNull
		}
	}
	_, err := cg.emitGoto(stmt, &stmt.breaks, n.Label, noteType)
	return err
}

func (cg *CodeGenerator) emitContinue(n *ContinueStmt) error {
	stmt := cg.topStmt
	noteType := vm.SrcContinue
	if n.Label != "" {
		// Find the loop the label names.
		var loop *stmtInfo
		for stmt != nil && (stmt.kind != stmtLabel || stmt.label != n.Label) {
			if stmt.isLoop() {
				loop = stmt
			}
			stmt = stmt.down
		}
		if stmt == nil || loop == nil {
			return cg.errorf(ErrSyntax, "label %s does not name a loop", n.Label)
		}
		stmt = loop
		noteType = vm.SrcCont2Label
	} else {
		for stmt != nil && !stmt.isLoop() {
			stmt = stmt.down
		}
		if stmt == nil {
			return cg.errorf(ErrSyntax, "continue outside of loop")
		}
	}
	_, err := cg.emitGoto(stmt, &stmt.continues, n.Label, noteType)
	return err
}

// emitReturn returns through any open finally blocks. When unwinding code
// follows, RETURN becomes SETRVAL and a RETRVAL ends the sequence.
func (cg *CodeGenerator) emitReturn(n *ReturnStmt) error {
	if !cg.inFunction() {
		return cg.errorf(ErrSyntax, "return not in function")
	}
	if n.Value != nil {
		if err := cg.emitTree(n.Value); err != nil {
			return err
		}
	} else if _, err := cg.Emit1(vm.OpPush); err != nil {
		return err
	}

	top := cg.offset()
	if _, err := cg.Emit1(vm.OpReturn); err != nil {
		return err
	}
	if err := cg.emitNonLocalJumpFixup(nil); err != nil {
		return err
	}
	if cg.offset() != top+1 {
		cg.code()[top] = byte(vm.OpSetRval)
		if _, err := cg.Emit1(vm.OpRetRval); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// With and labels
// ---------------------------------------------------------------------------

func (cg *CodeGenerator) emitWith(n *WithStmt) error {
	if err := cg.emitTree(n.Object); err != nil {
		return err
	}
	if cg.inFunction() {
		cg.flags |= cgHeavyweight
	}
	cg.pushStatement(stmtWith, cg.offset())
	if _, err := cg.Emit1(vm.OpEnterWith); err != nil {
		return err
	}
	if err := cg.emitTree(n.Body); err != nil {
		return err
	}
	if _, err := cg.Emit1(vm.OpLeaveWith); err != nil {
		return err
	}
	return cg.popStatementCG()
}

func (cg *CodeGenerator) emitLabeled(n *LabeledStmt) error {
	index, err := cg.indexAtom(vm.StringAtom(n.Label))
	if err != nil {
		return err
	}
	noteType := vm.SrcLabel
	if _, ok := n.Body.(*BlockStmt); ok {
		noteType = vm.SrcLabelBrace
	}
	if _, err := cg.NewSrcNote2(noteType, index); err != nil {
		return err
	}
	if _, err := cg.Emit1(vm.OpNop); err != nil {
		return err
	}

	stmt := cg.pushStatement(stmtLabel, cg.offset())
	stmt.label = n.Label
	if err := cg.emitTree(n.Body); err != nil {
		return err
	}
	if err := cg.popStatementCG(); err != nil {
		return err
	}

	if noteType == vm.SrcLabelBrace {
		if _, err := cg.NewSrcNote(vm.SrcEndBrace); err != nil {
			return err
		}
		if _, err := cg.Emit1(vm.OpNop); err != nil {
			return err
		}
	}
	return nil
}
