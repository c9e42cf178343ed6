package compiler

import (
	"github.com/chazu/jsbc/vm"
)

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

var unaryOps = [...]vm.Opcode{
	UnaryNot:    vm.OpNot,
	UnaryBitNot: vm.OpBitNot,
	UnaryNeg:    vm.OpNeg,
	UnaryPos:    vm.OpPos,
	UnaryTypeOf: vm.OpTypeOf,
	UnaryVoid:   vm.OpVoid,
}

var assignOps = [...]vm.Opcode{
	AssignPlain:  vm.OpNop,
	AssignBitOr:  vm.OpBitOr,
	AssignBitXor: vm.OpBitXor,
	AssignBitAnd: vm.OpBitAnd,
	AssignLsh:    vm.OpLsh,
	AssignRsh:    vm.OpRsh,
	AssignUrsh:   vm.OpUrsh,
	AssignAdd:    vm.OpAdd,
	AssignSub:    vm.OpSub,
	AssignMul:    vm.OpMul,
	AssignDiv:    vm.OpDiv,
	AssignMod:    vm.OpMod,
}

// getOps maps a slot store to the load of the same slot.
var getOps = map[vm.Opcode]vm.Opcode{
	vm.OpSetLocal: vm.OpGetLocal,
	vm.OpSetArg:   vm.OpGetArg,
	vm.OpSetGVar:  vm.OpGetGVar,
}

// callOps maps a name load to its call-context form, which pushes the
// callee and its this.
var callOps = map[vm.Opcode]vm.Opcode{
	vm.OpName:     vm.OpCallName,
	vm.OpGetGVar:  vm.OpCallGVar,
	vm.OpGetArg:   vm.OpCallArg,
	vm.OpGetLocal: vm.OpCallLocal,
	vm.OpGetUpvar: vm.OpCallUpvar,
}

// incDecOp picks among the four forms {prefix, postfix} x {inc, dec}.
func incDecOp(n *UpdateExpr, incPre, incPost, decPre, decPost vm.Opcode) vm.Opcode {
	switch {
	case n.Increment && n.Prefix:
		return incPre
	case n.Increment:
		return incPost
	case n.Prefix:
		return decPre
	}
	return decPost
}

func (cg *CodeGenerator) emitRegExp(n *RegExpLiteral) error {
	obj, err := cg.objects.NewRegExp(n.Pattern, n.Flags)
	if err != nil {
		return cg.outOfMemory(err)
	}
	// With a fixed global the literal can be cloned once, at compile time.
	if cg.opts.CompileAndGo {
		return cg.emitObjectOp(vm.OpObject, obj)
	}
	return cg.emitIndexOp(vm.OpRegExp, cg.indexRegExp(obj))
}

func (cg *CodeGenerator) emitArrayLiteral(n *ArrayLiteral) error {
	if _, err := cg.Emit2(vm.OpNewInit, 0); err != nil {
		return err
	}
	for i, el := range n.Elements {
		if err := cg.emitNumberOp(float64(i)); err != nil {
			return err
		}
		if err := cg.emitTree(el); err != nil {
			return err
		}
		if _, err := cg.Emit1(vm.OpInitElem); err != nil {
			return err
		}
	}
	_, err := cg.Emit1(vm.OpEndInit)
	return err
}

func (cg *CodeGenerator) emitObjectLiteral(n *ObjectLiteral) error {
	if _, err := cg.Emit2(vm.OpNewInit, 1); err != nil {
		return err
	}
	for _, p := range n.Properties {
		index := -1
		switch key := p.Key.(type) {
		case *NumberLiteral:
			if err := cg.emitNumberOp(key.Value); err != nil {
				return err
			}
		case *Identifier, *StringLiteral:
			var err error
			if index, err = cg.indexAtom(vm.StringAtom(propertyKey(key))); err != nil {
				return err
			}
		default:
			return cg.errorf(ErrSyntax, "invalid property key %T", key)
		}

		if err := cg.emitTree(p.Value); err != nil {
			return err
		}
		switch p.Kind {
		case PropGet:
			if _, err := cg.Emit1(vm.OpGetter); err != nil {
				return err
			}
		case PropSet:
			if _, err := cg.Emit1(vm.OpSetter); err != nil {
				return err
			}
		}

		if index < 0 {
			if _, err := cg.NewSrcNote(vm.SrcInitProp); err != nil {
				return err
			}
			if _, err := cg.Emit1(vm.OpInitElem); err != nil {
				return err
			}
		} else if err := cg.emitIndexOp(vm.OpInitProp, index); err != nil {
			return err
		}
	}
	_, err := cg.Emit1(vm.OpEndInit)
	return err
}

func propertyKey(key Expr) string {
	switch key := key.(type) {
	case *Identifier:
		return key.Name
	case *StringLiteral:
		return key.Value
	}
	return ""
}

func (cg *CodeGenerator) emitUnary(n *UnaryExpr) error {
	op := unaryOps[n.Op]
	if op == vm.OpTypeOf {
		if _, ok := n.Operand.(*Identifier); !ok {
			op = vm.OpTypeOfExpr
		}
	}
	if err := cg.emitTree(n.Operand); err != nil {
		return err
	}
	_, err := cg.Emit1(op)
	return err
}

func (cg *CodeGenerator) emitUpdate(n *UpdateExpr) error {
	switch t := n.Target.(type) {
	case *Identifier:
		op := incDecOp(n, vm.OpIncName, vm.OpNameInc, vm.OpDecName, vm.OpNameDec)
		b, err := cg.bindNameToSlot(t.Name, op)
		if err != nil {
			return err
		}
		if b.slot >= 0 && b.isConst {
			// A const cannot change; the expression is just its value.
			if b, err = cg.bindNameToSlot(t.Name, vm.OpName); err != nil {
				return err
			}
		}
		return cg.emitBoundName(b, t.Name)
	case *MemberExpr:
		return cg.emitPropOp(t, incDecOp(n, vm.OpIncProp, vm.OpPropInc, vm.OpDecProp, vm.OpPropDec), false)
	case *IndexExpr:
		return cg.emitElemOp(t, incDecOp(n, vm.OpIncElem, vm.OpElemInc, vm.OpDecElem, vm.OpElemDec))
	}
	return cg.errorf(ErrSyntax, "invalid increment operand")
}

func (cg *CodeGenerator) emitDelete(n *DeleteExpr) error {
	switch t := n.Target.(type) {
	case *Identifier:
		_, err := cg.emitNameOp(vm.OpDelName, t.Name)
		return err
	case *MemberExpr:
		return cg.emitPropOp(t, vm.OpDelProp, false)
	case *IndexExpr:
		return cg.emitElemOp(t, vm.OpDelElem)
	}

	// delete of a non-reference evaluates it for effect and yields true.
	useful, err := cg.checkSideEffects(n.Target)
	if err != nil {
		return err
	}
	off, noteIndex := -1, -1
	if useful {
		if err := cg.emitTree(n.Target); err != nil {
			return err
		}
		off = cg.offset()
		if noteIndex, err = cg.NewSrcNote2(vm.SrcPCDelta, 0); err != nil {
			return err
		}
		if _, err := cg.Emit1(vm.OpPop); err != nil {
			return err
		}
	}
	if _, err := cg.Emit1(vm.OpTrue); err != nil {
		return err
	}
	if noteIndex >= 0 {
		return cg.SetSrcNoteOffset(noteIndex, 0, cg.offset()-off)
	}
	return nil
}

func (cg *CodeGenerator) emitBinary(n *BinaryExpr) error {
	if len(n.Operands) < 2 {
		return cg.errorf(ErrInternal, "binary expression with %d operands", len(n.Operands))
	}
	op := vm.OpBitOr + vm.Opcode(n.Op)
	if err := cg.emitTree(n.Operands[0]); err != nil {
		return err
	}
	for _, e := range n.Operands[1:] {
		if err := cg.emitTree(e); err != nil {
			return err
		}
		if _, err := cg.Emit1(op); err != nil {
			return err
		}
	}
	return nil
}

// emitLogical emits a && b && c as a chain of placeholder jumps linked by
// forward deltas, then points each at the end and fixes its opcode.
func (cg *CodeGenerator) emitLogical(n *LogicalExpr) error {
	if len(n.Operands) < 2 {
		return cg.errorf(ErrInternal, "logical expression with %d operands", len(n.Operands))
	}
	op := vm.OpOr
	if n.Op == LogicalAnd {
		op = vm.OpAnd
	}

	if err := cg.emitTree(n.Operands[0]); err != nil {
		return err
	}
	top, err := cg.EmitJump(vm.OpBackpatchPop, 0)
	if err != nil {
		return err
	}
	jmp := top
	last := len(n.Operands) - 1
	for _, e := range n.Operands[1:last] {
		if err := cg.emitTree(e); err != nil {
			return err
		}
		off, err := cg.EmitJump(vm.OpBackpatchPop, 0)
		if err != nil {
			return err
		}
		if err := cg.setBackPatchDelta(jmp, off-jmp); err != nil {
			return err
		}
		jmp = off
	}
	if err := cg.emitTree(n.Operands[last]); err != nil {
		return err
	}

	end := cg.offset()
	pc := top
	for i := 0; i < last; i++ {
		delta, err := cg.getJumpOffset(pc)
		if err != nil {
			return err
		}
		if err := cg.SetJumpOffset(pc, end-pc); err != nil {
			return err
		}
		cg.main.code[pc] = byte(op)
		pc += delta
	}
	return nil
}

func (cg *CodeGenerator) emitConditional(n *ConditionalExpr) error {
	if err := cg.emitTree(n.Test); err != nil {
		return err
	}
	noteIndex, err := cg.NewSrcNote(vm.SrcCond)
	if err != nil {
		return err
	}
	beq, err := cg.EmitJump(vm.OpIfEq, 0)
	if err != nil {
		return err
	}
	if err := cg.emitTree(n.Consequent); err != nil {
		return err
	}
	jmp, err := cg.EmitJump(vm.OpGoto, 0)
	if err != nil {
		return err
	}
	if err := cg.setJumpHere(beq); err != nil {
		return err
	}

	// Only one arm's value is ever on the stack.
	cg.stackDepth--
	if err := cg.emitTree(n.Alternate); err != nil {
		return err
	}
	if err := cg.setJumpHere(jmp); err != nil {
		return err
	}
	return cg.SetSrcNoteOffset(noteIndex, 0, jmp-beq)
}

func (cg *CodeGenerator) emitSequence(n *SequenceExpr) error {
	off, noteIndex := -1, -1
	for i, e := range n.Exprs {
		if err := cg.emitTree(e); err != nil {
			return err
		}
		tmp := cg.offset()
		if noteIndex >= 0 {
			if err := cg.SetSrcNoteOffset(noteIndex, 0, tmp-off); err != nil {
				return err
			}
		}
		if i == len(n.Exprs)-1 {
			break
		}
		off = tmp
		var err error
		if noteIndex, err = cg.NewSrcNote2(vm.SrcPCDelta, 0); err != nil {
			return err
		}
		if _, err := cg.Emit1(vm.OpPop); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Assignment
// ---------------------------------------------------------------------------

func (cg *CodeGenerator) emitAssign(n *AssignExpr) error {
	top := cg.offset()
	var (
		b   nameBinding
		err error
	)

	// Push the reference's base.
	switch t := n.Target.(type) {
	case *Identifier:
		if b, err = cg.bindNameToSlot(t.Name, vm.OpSetName); err != nil {
			return err
		}
		if b.slot < 0 {
			if err := cg.emitAtomOp(vm.OpBindName, vm.StringAtom(t.Name)); err != nil {
				return err
			}
		}
	case *MemberExpr:
		if err := cg.emitTree(t.Object); err != nil {
			return err
		}
	case *IndexExpr:
		if err := cg.emitTree(t.Object); err != nil {
			return err
		}
		if err := cg.emitTree(t.Index); err != nil {
			return err
		}
	case *ArrayLiteral, *ObjectLiteral:
		if n.Op != AssignPlain {
			return cg.errorf(ErrSyntax, "invalid assignment left-hand side")
		}
	default:
		return cg.errorf(ErrSyntax, "invalid assignment left-hand side")
	}

	// Compound assignment loads the current value first.
	binop := assignOps[n.Op]
	if binop != vm.OpNop {
		switch t := n.Target.(type) {
		case *Identifier:
			if b.slot >= 0 {
				get := nameBinding{op: getOps[b.op], slot: b.slot}
				if err := cg.emitBoundName(get, t.Name); err != nil {
					return err
				}
			} else {
				if _, err := cg.Emit1(vm.OpDup); err != nil {
					return err
				}
				index, err := cg.indexAtom(vm.StringAtom(t.Name))
				if err != nil {
					return err
				}
				if err := cg.emitIndexOp(vm.OpGetProp, index); err != nil {
					return err
				}
			}
		case *MemberExpr:
			if _, err := cg.Emit1(vm.OpDup); err != nil {
				return err
			}
			if err := cg.emitAtomOp(vm.OpGetProp, vm.StringAtom(t.Property)); err != nil {
				return err
			}
		case *IndexExpr:
			if _, err := cg.Emit1(vm.OpDup2); err != nil {
				return err
			}
			if _, err := cg.Emit1(vm.OpGetElem); err != nil {
				return err
			}
		}
	}

	if err := cg.emitTree(n.Value); err != nil {
		return err
	}

	id, isName := n.Target.(*Identifier)
	constSlot := isName && b.slot >= 0 && b.isConst
	if binop != vm.OpNop {
		if !constSlot {
			if _, err := cg.NewSrcNote(vm.SrcAssignOp); err != nil {
				return err
			}
		}
		if _, err := cg.Emit1(binop); err != nil {
			return err
		}
	}

	switch t := n.Target.(type) {
	case *Identifier:
		if constSlot {
			return nil
		}
		return cg.emitBoundName(b, id.Name)
	case *MemberExpr:
		if _, err := cg.NewSrcNote2(vm.SrcPCBase, cg.offset()-top); err != nil {
			return err
		}
		index, err := cg.indexAtom(vm.StringAtom(t.Property))
		if err != nil {
			return err
		}
		return cg.emitIndexOp(vm.OpSetProp, index)
	case *IndexExpr:
		if _, err := cg.NewSrcNote2(vm.SrcPCBase, cg.offset()-top); err != nil {
			return err
		}
		_, err := cg.Emit1(vm.OpSetElem)
		return err
	}
	return cg.emitDestructuringOps(vm.SrcDeclNone, n.Target)
}

// ---------------------------------------------------------------------------
// References
// ---------------------------------------------------------------------------

// emitPropOp emits op on a property reference. A chain a.b.c is walked
// iteratively; every link carries a SRC_PCBASE note back to the start of
// the chain.
func (cg *CodeGenerator) emitPropOp(n *MemberExpr, op vm.Opcode, callContext bool) error {
	if callContext {
		op = vm.OpCallProp
	}
	top := cg.offset()

	chain := []*MemberExpr{n}
	base := n.Object
	for {
		m, ok := base.(*MemberExpr)
		if !ok {
			break
		}
		chain = append(chain, m)
		base = m.Object
	}
	if err := cg.emitTree(base); err != nil {
		return err
	}
	for i := len(chain) - 1; i > 0; i-- {
		if _, err := cg.NewSrcNote2(vm.SrcPCBase, cg.offset()-top); err != nil {
			return err
		}
		if err := cg.emitAtomOp(vm.OpGetProp, vm.StringAtom(chain[i].Property)); err != nil {
			return err
		}
	}
	if _, err := cg.NewSrcNote2(vm.SrcPCBase, cg.offset()-top); err != nil {
		return err
	}
	return cg.emitAtomOp(op, vm.StringAtom(n.Property))
}

// emitElemOp emits op on an element reference. target is an *IndexExpr, a
// *MemberExpr whose name is the key, or an *Identifier addressed through
// the object its name binds in.
func (cg *CodeGenerator) emitElemOp(target Expr, op vm.Opcode) error {
	top := cg.offset()
	switch t := target.(type) {
	case *IndexExpr:
		if err := cg.emitTree(t.Object); err != nil {
			return err
		}
		if err := cg.emitTree(t.Index); err != nil {
			return err
		}
	case *MemberExpr:
		if err := cg.emitTree(t.Object); err != nil {
			return err
		}
		if err := cg.emitAtomOp(vm.OpString, vm.StringAtom(t.Property)); err != nil {
			return err
		}
	case *Identifier:
		if err := cg.emitAtomOp(vm.OpBindName, vm.StringAtom(t.Name)); err != nil {
			return err
		}
		if err := cg.emitAtomOp(vm.OpString, vm.StringAtom(t.Name)); err != nil {
			return err
		}
	default:
		return cg.errorf(ErrSyntax, "invalid element reference %T", target)
	}
	if _, err := cg.NewSrcNote2(vm.SrcPCBase, cg.offset()-top); err != nil {
		return err
	}
	_, err := cg.Emit1(op)
	return err
}

// emitCall pushes the callee and its this, the arguments, then CALL or NEW.
func (cg *CodeGenerator) emitCall(op vm.Opcode, callee Expr, args []Expr) error {
	top := cg.offset()
	callop := op == vm.OpCall

	switch c := callee.(type) {
	case *Identifier:
		if !callop {
			if err := cg.emitTree(c); err != nil {
				return err
			}
			break
		}
		b, err := cg.bindNameToSlot(c.Name, vm.OpName)
		if err != nil {
			return err
		}
		if xop, ok := callOps[b.op]; ok {
			b.op = xop
			if err := cg.emitBoundName(b, c.Name); err != nil {
				return err
			}
			break
		}
		if err := cg.emitBoundName(b, c.Name); err != nil {
			return err
		}
		callop = false
	case *MemberExpr:
		if err := cg.emitPropOp(c, vm.OpGetProp, callop); err != nil {
			return err
		}
	case *IndexExpr:
		elemOp := vm.OpGetElem
		if callop {
			elemOp = vm.OpCallElem
		}
		if err := cg.emitElemOp(c, elemOp); err != nil {
			return err
		}
	default:
		if err := cg.emitTree(callee); err != nil {
			return err
		}
		callop = false
	}
	if !callop {
		if _, err := cg.Emit1(vm.OpNull); err != nil {
			return err
		}
	}

	argc := len(args)
	if argc >= vm.ArgcLimit {
		return cg.errorf(ErrOverflow, "too many function arguments")
	}
	for _, a := range args {
		if err := cg.emitTree(a); err != nil {
			return err
		}
	}
	if _, err := cg.NewSrcNote2(vm.SrcPCBase, cg.offset()-top); err != nil {
		return err
	}
	_, err := cg.emitUint16(op, argc)
	return err
}

func (cg *CodeGenerator) emitYield(n *YieldExpr) error {
	if !cg.inFunction() {
		return cg.errorf(ErrSyntax, "yield not in function")
	}
	if n.Value != nil {
		if err := cg.emitTree(n.Value); err != nil {
			return err
		}
	} else if _, err := cg.Emit1(vm.OpPush); err != nil {
		return err
	}
	_, err := cg.Emit1(vm.OpYield)
	return err
}
