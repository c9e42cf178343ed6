package compiler

import (
	"github.com/chazu/jsbc/vm"
)

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// varFlags select the context a declaration list is emitted in.
type varFlags uint8

const (
	varPop     varFlags = 1 << iota // statement: pop the last value
	varLetHead                      // head of a let expression
	varForInit                      // for loop initializer
	varForIn                        // for-in left side: bind, do not store
)

func declNoteType(kind DeclKind) int {
	switch kind {
	case DeclConst:
		return vm.SrcDeclConst
	case DeclLet:
		return vm.SrcDeclLet
	}
	return vm.SrcDeclVar
}

func declPrologOp(kind DeclKind) vm.Opcode {
	if kind == DeclConst {
		return vm.OpDefConst
	}
	return vm.OpDefVar
}

// declNames returns the names bound by decls in order.
func declNames(decls []*Declarator) []string {
	var names []string
	for _, d := range decls {
		names = appendUnique(names, patternNames(d.Target)...)
	}
	return names
}

// emitVariables emits a declaration list. Declarators are separated by POPs
// carrying SRC_PCDELTA notes. For a let head it returns the index of the
// SRC_DECL note that the caller sets to the body length. grouped reports
// that a sole destructuring initializer was lowered to a group assignment,
// which leaves nothing on the stack.
func (cg *CodeGenerator) emitVariables(n *VarDecl, flags varFlags) (headNote int, grouped bool, err error) {
	headNote = -1
	letHead := flags&varLetHead != 0
	forIn := flags&varForIn != 0
	popScope := letHead || (n.Kind == DeclLet && flags&varForInit != 0)
	popVar := flags&varPop != 0 || letHead

	declType := declNoteType(n.Kind)
	prologOp := declPrologOp(n.Kind)
	off, noteIndex := -1, -1

	for i, d := range n.Decls {
		switch target := d.Target.(type) {
		case *ArrayLiteral, *ObjectLiteral:
			if forIn {
				return headNote, false, cg.emitDestructuringDecls(prologOp, target)
			}
			if d.Init == nil {
				return headNote, false, cg.errorf(ErrSyntax, "missing initializer in destructuring declaration")
			}
			if len(n.Decls) == 1 {
				groupType := declType
				if letHead {
					groupType = vm.SrcDeclNone
				}
				ok, err := cg.emitGroupAssignment(groupType, target, d.Init)
				if err != nil {
					return headNote, false, err
				}
				if ok {
					grouped = true
					popVar = false
					break
				}
			}
			if err := cg.emitDestructuringDecls(prologOp, target); err != nil {
				return headNote, false, err
			}
			if err := cg.emitInitializer(d.Init, popScope); err != nil {
				return headNote, false, err
			}
			opType := declType
			if letHead {
				opType = vm.SrcDeclNone
			}
			if err := cg.emitDestructuringOps(opType, target); err != nil {
				return headNote, false, err
			}

		case *Identifier:
			name := target.Name
			bindOp := vm.OpName
			if d.Init != nil {
				bindOp = vm.OpSetName
				if n.Kind == DeclConst {
					bindOp = vm.OpSetConst
				}
			}
			b, err := cg.bindNameToSlot(name, bindOp)
			if err != nil {
				return headNote, false, err
			}
			if b.op != vm.OpArguments {
				if err := cg.maybeEmitVarDecl(prologOp, b, name, target.SpanVal.Start.Line); err != nil {
					return headNote, false, err
				}
				if d.Init != nil {
					if b.op == vm.OpSetName && b.slot < 0 {
						if err := cg.emitAtomOp(vm.OpBindName, vm.StringAtom(name)); err != nil {
							return headNote, false, err
						}
					}
					if n.Kind == DeclConst {
						cg.defineCompileTimeConstant(name, d.Init)
					}
					if err := cg.emitInitializer(d.Init, popScope); err != nil {
						return headNote, false, err
					}
				}
			}
			if forIn {
				return headNote, false, nil
			}
			if i == 0 && !letHead {
				if _, err := cg.NewSrcNote2(vm.SrcDecl, declType); err != nil {
					return headNote, false, err
				}
			}
			if err := cg.emitBoundName(b, name); err != nil {
				return headNote, false, err
			}

		default:
			return headNote, false, cg.errorf(ErrSyntax, "invalid declaration target %T", target)
		}

		if grouped {
			break
		}
		tmp := cg.offset()
		if noteIndex >= 0 {
			if err := cg.SetSrcNoteOffset(noteIndex, 0, tmp-off); err != nil {
				return headNote, false, err
			}
		}
		if i == len(n.Decls)-1 {
			break
		}
		off = tmp
		if noteIndex, err = cg.NewSrcNote2(vm.SrcPCDelta, 0); err != nil {
			return headNote, false, err
		}
		if _, err := cg.Emit1(vm.OpPop); err != nil {
			return headNote, false, err
		}
	}

	if letHead {
		if headNote, err = cg.NewSrcNote(vm.SrcDecl); err != nil {
			return headNote, grouped, err
		}
		if !popVar {
			_, err = cg.Emit1(vm.OpNop)
			return headNote, grouped, err
		}
	}
	if popVar {
		_, err = cg.Emit1(vm.OpPop)
	}
	return headNote, grouped, err
}

// emitInitializer emits a declarator's value. Let initializers in a loop
// head or let expression cannot see the bindings they initialize.
func (cg *CodeGenerator) emitInitializer(init Expr, popScope bool) error {
	if popScope {
		restore := cg.hideScope()
		defer restore()
	}
	return cg.emitTree(init)
}

func (cg *CodeGenerator) emitLetExpr(n *LetExpr) error {
	return cg.emitLexicalScope(declNames(n.Decls), scopeExpr, func(*stmtInfo) error {
		head := &VarDecl{SpanVal: n.SpanVal, Kind: DeclLet, Decls: n.Decls}
		headNote, _, err := cg.emitVariables(head, varLetHead)
		if err != nil {
			return err
		}
		tmp := cg.offset()
		if err := cg.emitTree(n.Body); err != nil {
			return err
		}
		return cg.SetSrcNoteOffset(headNote, 0, cg.offset()-tmp)
	})
}

// ---------------------------------------------------------------------------
// Destructuring
// ---------------------------------------------------------------------------

// emitDestructuringDecls binds the names of a pattern, hoisting DEFVAR or
// DEFCONST for those that need one.
func (cg *CodeGenerator) emitDestructuringDecls(prologOp vm.Opcode, pattern Expr) error {
	bindOp := vm.OpSetName
	if prologOp == vm.OpDefConst {
		bindOp = vm.OpSetConst
	}
	var walk func(e Expr) error
	walk = func(e Expr) error {
		switch e := e.(type) {
		case *Identifier:
			b, err := cg.bindNameToSlot(e.Name, bindOp)
			if err != nil {
				return err
			}
			return cg.maybeEmitVarDecl(prologOp, b, e.Name, e.SpanVal.Start.Line)
		case *ArrayLiteral:
			for _, el := range e.Elements {
				if err := walk(el); err != nil {
					return err
				}
			}
		case *ObjectLiteral:
			for _, p := range e.Properties {
				if err := walk(p.Value); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(pattern)
}

// emitDestructuringOps destructures the value on top of the stack into
// pattern, leaving the value in place.
func (cg *CodeGenerator) emitDestructuringOps(declType int, pattern Expr) error {
	if _, err := cg.NewSrcNote2(vm.SrcDestruct, declType); err != nil {
		return err
	}
	return cg.emitDestructuringPattern(pattern)
}

func (cg *CodeGenerator) emitDestructuringPattern(pattern Expr) error {
	var elems []Expr
	switch p := pattern.(type) {
	case *ArrayLiteral:
		elems = p.Elements
	case *ObjectLiteral:
		for _, prop := range p.Properties {
			elems = append(elems, prop.Value)
		}
	default:
		return cg.errorf(ErrSyntax, "invalid destructuring target %T", pattern)
	}

	// An empty pattern still evaluates, and discards, a copy.
	if len(elems) == 0 {
		if _, err := cg.Emit1(vm.OpDup); err != nil {
			return err
		}
		_, err := cg.Emit1(vm.OpPop)
		return err
	}

	for i, target := range elems {
		if _, err := cg.Emit1(vm.OpDup); err != nil {
			return err
		}
		if err := cg.emitPatternKey(pattern, i); err != nil {
			return err
		}
		if _, hole := target.(*Hole); hole {
			if _, err := cg.Emit1(vm.OpPop); err != nil {
				return err
			}
			continue
		}
		if err := cg.emitDestructuringLHS(target); err != nil {
			return err
		}
	}
	return nil
}

// emitPatternKey fetches element i of the object on top of the stack.
func (cg *CodeGenerator) emitPatternKey(pattern Expr, i int) error {
	obj, ok := pattern.(*ObjectLiteral)
	if !ok {
		if err := cg.emitNumberOp(float64(i)); err != nil {
			return err
		}
		_, err := cg.Emit1(vm.OpGetElem)
		return err
	}
	switch key := obj.Properties[i].Key.(type) {
	case *NumberLiteral:
		if _, err := cg.NewSrcNote(vm.SrcInitProp); err != nil {
			return err
		}
		if err := cg.emitNumberOp(key.Value); err != nil {
			return err
		}
		_, err := cg.Emit1(vm.OpGetElem)
		return err
	case *Identifier:
		return cg.emitAtomOp(vm.OpGetProp, vm.StringAtom(key.Name))
	case *StringLiteral:
		return cg.emitAtomOp(vm.OpGetProp, vm.StringAtom(key.Value))
	}
	return cg.errorf(ErrSyntax, "invalid property key %T", obj.Properties[i].Key)
}

// emitDestructuringLHS stores the value on top of the stack into target and
// pops it.
func (cg *CodeGenerator) emitDestructuringLHS(target Expr) error {
	switch t := target.(type) {
	case *ArrayLiteral, *ObjectLiteral:
		if err := cg.emitDestructuringPattern(t); err != nil {
			return err
		}
		_, err := cg.Emit1(vm.OpPop)
		return err

	case *Identifier:
		b, err := cg.bindNameToSlot(t.Name, vm.OpSetName)
		if err != nil {
			return err
		}
		switch {
		case b.slot < 0 && (b.op == vm.OpSetName || b.op == vm.OpSetConst):
			op := vm.OpEnumElem
			if b.op == vm.OpSetConst {
				op = vm.OpEnumConst
			}
			return cg.emitElemOp(t, op)
		case b.op == vm.OpSetLocal:
			_, err := cg.emitUint16(vm.OpSetLocalPop, b.slot)
			return err
		default:
			if err := cg.emitBoundName(b, t.Name); err != nil {
				return err
			}
			_, err := cg.Emit1(vm.OpPop)
			return err
		}

	case *MemberExpr, *IndexExpr:
		return cg.emitElemOp(t, vm.OpEnumElem)
	}
	return cg.errorf(ErrSyntax, "invalid destructuring target %T", target)
}

// ---------------------------------------------------------------------------
// Group assignment
// ---------------------------------------------------------------------------

// maybeEmitGroupAssignment lowers [a, b] = [c, d] used for effect.
func (cg *CodeGenerator) maybeEmitGroupAssignment(declType int, a *AssignExpr) (bool, error) {
	if a.Op != AssignPlain {
		return false, nil
	}
	return cg.emitGroupAssignment(declType, a.Target, a.Value)
}

// emitGroupAssignment pushes every right-hand element, stores each one from
// its stack slot into the matching left-hand target, then pops them all.
// It applies only when both sides are array literals and the left is no
// longer than the right.
func (cg *CodeGenerator) emitGroupAssignment(declType int, lhs, rhs Expr) (bool, error) {
	left, ok := lhs.(*ArrayLiteral)
	if !ok {
		return false, nil
	}
	right, ok := rhs.(*ArrayLiteral)
	if !ok || len(left.Elements) > len(right.Elements) {
		return false, nil
	}

	depth := cg.stackDepth
	limit := depth
	for _, el := range right.Elements {
		if limit == vm.ArrayInitLimit {
			return false, cg.errorf(ErrOverflow, "array initializer too big")
		}
		if _, hole := el.(*Hole); hole {
			if _, err := cg.Emit1(vm.OpPush); err != nil {
				return false, err
			}
		} else if err := cg.emitTree(el); err != nil {
			return false, err
		}
		limit++
	}

	if _, err := cg.NewSrcNote2(vm.SrcGroupAssign, declType); err != nil {
		return false, err
	}

	slot := depth
	for _, el := range left.Elements {
		if slot < limit {
			local, err := cg.adjustBlockSlot(slot)
			if err != nil {
				return false, err
			}
			if _, err := cg.emitUint16(vm.OpGetLocal, local); err != nil {
				return false, err
			}
		} else if _, err := cg.Emit1(vm.OpPush); err != nil {
			return false, err
		}
		if _, hole := el.(*Hole); hole {
			if _, err := cg.Emit1(vm.OpPop); err != nil {
				return false, err
			}
		} else if err := cg.emitDestructuringLHS(el); err != nil {
			return false, err
		}
		slot++
	}

	if _, err := cg.emitUint16(vm.OpPopN, limit-depth); err != nil {
		return false, err
	}
	cg.stackDepth = depth
	return true, nil
}
