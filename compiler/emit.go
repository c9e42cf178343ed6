package compiler

import (
	"github.com/chazu/jsbc/vm"
)

// ---------------------------------------------------------------------------
// Emitter: tree walk entry point
// ---------------------------------------------------------------------------

// emitTree emits the code for n. Line changes are noted before the node's
// first instruction. When the outermost call returns, span dependencies
// recorded along the way are resolved and any overflowing jumps widened.
// A script's top-level statements are each an outermost call.
func (cg *CodeGenerator) emitTree(n Node) error {
	cg.treeDepth++
	defer func() { cg.treeDepth-- }()
	if cg.treeDepth > cg.opts.MaxDepth {
		return cg.errorf(ErrRecursion, "too much recursion")
	}

	cg.emitLevel++
	pos := n.Span().Start
	if pos.Line > 0 {
		cg.pos = pos
	}
	err := cg.updateLineNumberNotes(pos.Line)
	if err == nil {
		err = cg.emitNode(n)
	}
	cg.emitLevel--

	if err == nil && cg.emitLevel == 0 {
		if cg.spanDeps != nil {
			err = cg.optimizeSpanDeps()
		} else {
			// Every jump emitted so far is resolved and short.
			cg.spanDepTodo = len(cg.main.code)
		}
	}
	return err
}

func (cg *CodeGenerator) emitNode(n Node) error {
	switch n := n.(type) {
	case *Program:
		return cg.emitStatements(n.Body)
	case *FunctionNode:
		return cg.emitFunctionBody(n)

	// Statements
	case *ExprStmt:
		return cg.emitExprStmt(n)
	case *VarDecl:
		_, _, err := cg.emitVariables(n, varPop)
		return err
	case *FunctionDecl:
		return cg.emitFunctionDecl(n)
	case *BlockStmt:
		return cg.emitBlock(n)
	case *EmptyStmt:
		return nil
	case *IfStmt:
		return cg.emitIf(n)
	case *WhileStmt:
		return cg.emitWhile(n)
	case *DoWhileStmt:
		return cg.emitDoWhile(n)
	case *ForStmt:
		return cg.emitFor(n)
	case *ForInStmt:
		return cg.emitForIn(n)
	case *BreakStmt:
		return cg.emitBreak(n)
	case *ContinueStmt:
		return cg.emitContinue(n)
	case *ReturnStmt:
		return cg.emitReturn(n)
	case *WithStmt:
		return cg.emitWith(n)
	case *SwitchStmt:
		return cg.emitSwitch(n)
	case *ThrowStmt:
		if err := cg.emitTree(n.Value); err != nil {
			return err
		}
		_, err := cg.Emit1(vm.OpThrow)
		return err
	case *TryStmt:
		return cg.emitTry(n)
	case *LabeledStmt:
		return cg.emitLabeled(n)
	case *DebuggerStmt:
		_, err := cg.Emit1(vm.OpDebugger)
		return err

	// Expressions
	case *NumberLiteral:
		return cg.emitNumberOp(n.Value)
	case *StringLiteral:
		return cg.emitAtomOp(vm.OpString, vm.StringAtom(n.Value))
	case *BooleanLiteral:
		op := vm.OpFalse
		if n.Value {
			op = vm.OpTrue
		}
		_, err := cg.Emit1(op)
		return err
	case *NullLiteral:
		_, err := cg.Emit1(vm.OpNull)
		return err
	case *ThisExpr:
		_, err := cg.Emit1(vm.OpThis)
		return err
	case *Hole:
		_, err := cg.Emit1(vm.OpHole)
		return err
	case *RegExpLiteral:
		return cg.emitRegExp(n)
	case *Identifier:
		_, err := cg.emitNameOp(vm.OpName, n.Name)
		return err
	case *ArrayLiteral:
		return cg.emitArrayLiteral(n)
	case *ObjectLiteral:
		return cg.emitObjectLiteral(n)
	case *FunctionExpr:
		return cg.emitFunctionExpr(n)
	case *UnaryExpr:
		return cg.emitUnary(n)
	case *UpdateExpr:
		return cg.emitUpdate(n)
	case *DeleteExpr:
		return cg.emitDelete(n)
	case *BinaryExpr:
		return cg.emitBinary(n)
	case *LogicalExpr:
		return cg.emitLogical(n)
	case *ConditionalExpr:
		return cg.emitConditional(n)
	case *AssignExpr:
		return cg.emitAssign(n)
	case *SequenceExpr:
		return cg.emitSequence(n)
	case *MemberExpr:
		return cg.emitPropOp(n, vm.OpGetProp, false)
	case *IndexExpr:
		return cg.emitElemOp(n, vm.OpGetElem)
	case *CallExpr:
		return cg.emitCall(vm.OpCall, n.Callee, n.Args)
	case *NewExpr:
		return cg.emitCall(vm.OpNew, n.Callee, n.Args)
	case *YieldExpr:
		return cg.emitYield(n)
	case *LetExpr:
		return cg.emitLetExpr(n)
	}
	return cg.errorf(ErrSyntax, "cannot emit %T", n)
}

// ---------------------------------------------------------------------------
// Side effects
// ---------------------------------------------------------------------------

// checkSideEffects reports whether evaluating e could be observed. It errs
// on the side of true; name lookups that could hit a getter count.
func (cg *CodeGenerator) checkSideEffects(e Expr) (bool, error) {
	switch e := e.(type) {
	case nil:
		return false, nil

	case *FunctionExpr:
		// A named function expression binds its name when evaluated.
		return e.Func.Name != "", nil

	case *LogicalExpr:
		return cg.anySideEffects(e.Operands)
	case *SequenceExpr:
		return cg.anySideEffects(e.Exprs)
	case *BinaryExpr:
		// Only the strict comparisons are free of conversions.
		if e.Op == BinStrictEq || e.Op == BinStrictNe {
			return cg.anySideEffects(e.Operands)
		}
		return true, nil
	case *ConditionalExpr:
		return cg.anySideEffects([]Expr{e.Test, e.Consequent, e.Alternate})

	case *ArrayLiteral, *ObjectLiteral, *CallExpr, *NewExpr,
		*UpdateExpr, *YieldExpr, *LetExpr:
		return true, nil

	case *AssignExpr:
		id, ok := e.Target.(*Identifier)
		if !ok {
			return true, nil
		}
		b, err := cg.bindNameToSlot(id.Name, vm.OpSetName)
		if err != nil {
			return false, err
		}
		useful, err := cg.checkSideEffects(e.Value)
		if err != nil || useful {
			return useful, err
		}
		// Plain assignment to a const slot is a no-op store.
		return !(e.Op == AssignPlain && b.slot >= 0 && b.isConst), nil

	case *UnaryExpr:
		if e.Op == UnaryNot {
			return cg.checkSideEffects(e.Operand)
		}
		return true, nil

	case *DeleteExpr:
		switch e.Target.(type) {
		case *Identifier, *MemberExpr, *IndexExpr:
			return true, nil
		}
		return cg.checkSideEffects(e.Target)

	case *Identifier:
		b, err := cg.bindNameToSlot(e.Name, vm.OpName)
		if err != nil {
			return false, err
		}
		return b.slot < 0 && b.op != vm.OpArguments, nil

	case *MemberExpr:
		if id, ok := e.Object.(*Identifier); ok && e.Property == "length" {
			b, err := cg.bindNameToSlot(id.Name, vm.OpName)
			if err != nil {
				return false, err
			}
			if b.op == vm.OpArguments {
				return false, nil
			}
		}
		if _, err := cg.checkSideEffects(e.Object); err != nil {
			return false, err
		}
		return true, nil
	case *IndexExpr:
		return true, nil
	}
	return false, nil
}

func (cg *CodeGenerator) anySideEffects(list []Expr) (bool, error) {
	for _, e := range list {
		useful, err := cg.checkSideEffects(e)
		if err != nil || useful {
			return useful, err
		}
	}
	return false, nil
}
