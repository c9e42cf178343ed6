package compiler

import (
	"math"

	"github.com/chazu/jsbc/vm"
)

// ---------------------------------------------------------------------------
// Literal indexes: atoms, objects and regexps referenced by operand
// ---------------------------------------------------------------------------

// indexAtom interns a and returns its script-local index.
func (cg *CodeGenerator) indexAtom(a vm.Atom) (int, error) {
	id, err := cg.atoms.Intern(a)
	if err != nil {
		return -1, cg.outOfMemory(err)
	}
	return cg.atomList.Add(id), nil
}

// indexObject appends obj to the object list and returns its index.
func (cg *CodeGenerator) indexObject(obj *vm.Object) int {
	cg.objectList = append(cg.objectList, obj)
	return len(cg.objectList) - 1
}

// indexRegExp appends obj to the regexp list and returns its index.
func (cg *CodeGenerator) indexRegExp(obj *vm.Object) int {
	cg.regexpList = append(cg.regexpList, obj)
	return len(cg.regexpList) - 1
}

// emitBigIndexPrefix emits the segment prefix an index above 16 bits needs
// and returns the suffix that restores segment zero, or OpNop.
func (cg *CodeGenerator) emitBigIndexPrefix(index int) (vm.Opcode, error) {
	if index < 1<<16 {
		return vm.OpNop, nil
	}
	base := index >> 16
	if base <= int(vm.OpIndexBase3-vm.OpIndexBase1)+1 {
		if _, err := cg.Emit1(vm.OpIndexBase1 + vm.Opcode(base-1)); err != nil {
			return vm.OpNop, err
		}
		return vm.OpResetBase0, nil
	}
	if index >= vm.IndexLimit {
		return vm.OpNop, cg.errorf(ErrOverflow, "too many literals")
	}
	if _, err := cg.Emit2(vm.OpIndexBase, byte(base)); err != nil {
		return vm.OpNop, err
	}
	return vm.OpResetBase, nil
}

// emitIndexOp emits op with a 16-bit index operand, prefixed as needed.
func (cg *CodeGenerator) emitIndexOp(op vm.Opcode, index int) error {
	suffix, err := cg.emitBigIndexPrefix(index)
	if err != nil {
		return err
	}
	if _, err := cg.emitUint16(op, index&0xffff); err != nil {
		return err
	}
	if suffix != vm.OpNop {
		_, err = cg.Emit1(suffix)
	}
	return err
}

// emitAtomOp emits op naming a. A property get of "length" becomes LENGTH.
func (cg *CodeGenerator) emitAtomOp(op vm.Opcode, a vm.Atom) error {
	if op == vm.OpGetProp && a.Kind == vm.AtomString && a.Str == "length" {
		_, err := cg.Emit1(vm.OpLength)
		return err
	}
	index, err := cg.indexAtom(a)
	if err != nil {
		return err
	}
	return cg.emitIndexOp(op, index)
}

// emitObjectOp indexes obj and emits op referring to it.
func (cg *CodeGenerator) emitObjectOp(op vm.Opcode, obj *vm.Object) error {
	return cg.emitIndexOp(op, cg.indexObject(obj))
}

// emitSlotIndexOp emits op with a 16-bit slot followed by an index.
func (cg *CodeGenerator) emitSlotIndexOp(op vm.Opcode, slot, index int) error {
	suffix, err := cg.emitBigIndexPrefix(index)
	if err != nil {
		return err
	}
	off, err := cg.EmitN(op, vm.Uint16Len+vm.IndexLen)
	if err != nil {
		return err
	}
	code := cg.code()
	vm.SetUint16At(code, off, slot)
	vm.SetUint16At(code, off+vm.Uint16Len, index&0xffff)
	if suffix != vm.OpNop {
		_, err = cg.Emit1(suffix)
	}
	return err
}

// emitNumberOp pushes d using the shortest immediate form.
func (cg *CodeGenerator) emitNumberOp(d float64) error {
	if ival, ok := int32Value(d); ok {
		var err error
		switch {
		case ival == 0:
			_, err = cg.Emit1(vm.OpZero)
		case ival == 1:
			_, err = cg.Emit1(vm.OpOne)
		case int32(int8(ival)) == ival:
			_, err = cg.Emit2(vm.OpInt8, byte(int8(ival)))
		case ival > 0 && ival < 1<<16:
			_, err = cg.emitUint16(vm.OpUint16, int(ival))
		case ival > 0 && ival < 1<<24:
			var off int
			if off, err = cg.EmitN(vm.OpUint24, 3); err == nil {
				code := cg.code()
				code[off+1] = byte(ival >> 16)
				code[off+2] = byte(ival >> 8)
				code[off+3] = byte(ival)
			}
		default:
			var off int
			if off, err = cg.EmitN(vm.OpInt32, 4); err == nil {
				code := cg.code()
				u := uint32(ival)
				code[off+1] = byte(u >> 24)
				code[off+2] = byte(u >> 16)
				code[off+3] = byte(u >> 8)
				code[off+4] = byte(u)
			}
		}
		return err
	}
	return cg.emitAtomOp(vm.OpDouble, vm.NumberAtom(d))
}

// int32Value reports whether d is an int32 other than negative zero.
func int32Value(d float64) (int32, bool) {
	if d != math.Trunc(d) || d < math.MinInt32 || d > math.MaxInt32 {
		return 0, false
	}
	if d == 0 && math.Signbit(d) {
		return 0, false
	}
	return int32(d), true
}

// ---------------------------------------------------------------------------
// Name binding
// ---------------------------------------------------------------------------

// nameBinding is the result of resolving an identifier for one access.
// slot < 0 means op takes an atom operand naming the identifier.
type nameBinding struct {
	op      vm.Opcode
	slot    int
	isConst bool
}

var (
	localOps = map[vm.Opcode]vm.Opcode{
		vm.OpName:     vm.OpGetLocal,
		vm.OpSetName:  vm.OpSetLocal,
		vm.OpSetConst: vm.OpSetLocal,
		vm.OpIncName:  vm.OpIncLocal,
		vm.OpNameInc:  vm.OpLocalInc,
		vm.OpDecName:  vm.OpDecLocal,
		vm.OpNameDec:  vm.OpLocalDec,
		vm.OpForName:  vm.OpForLocal,
		vm.OpDelName:  vm.OpFalse,
		vm.OpCallName: vm.OpCallLocal,
	}
	argOps = map[vm.Opcode]vm.Opcode{
		vm.OpName:     vm.OpGetArg,
		vm.OpSetName:  vm.OpSetArg,
		vm.OpIncName:  vm.OpIncArg,
		vm.OpNameInc:  vm.OpArgInc,
		vm.OpDecName:  vm.OpDecArg,
		vm.OpNameDec:  vm.OpArgDec,
		vm.OpForName:  vm.OpForArg,
		vm.OpDelName:  vm.OpFalse,
		vm.OpCallName: vm.OpCallArg,
	}
	gvarOps = map[vm.Opcode]vm.Opcode{
		vm.OpName:     vm.OpGetGVar,
		vm.OpSetName:  vm.OpSetGVar,
		vm.OpIncName:  vm.OpIncGVar,
		vm.OpNameInc:  vm.OpGVarInc,
		vm.OpDecName:  vm.OpDecGVar,
		vm.OpNameDec:  vm.OpGVarDec,
		vm.OpCallName: vm.OpCallGVar,
	}
	upvarOps = map[vm.Opcode]vm.Opcode{
		vm.OpName:     vm.OpGetUpvar,
		vm.OpCallName: vm.OpCallUpvar,
	}
)

// bindNameToSlot resolves name for an access through op, one of the NAME
// family, and returns the specialized op and its slot if any.
func (cg *CodeGenerator) bindNameToSlot(name string, op vm.Opcode) (nameBinding, error) {
	dynamic := nameBinding{op: op, slot: -1}

	if stmt, slot := cg.lexicalLookup(name); stmt != nil {
		if stmt.kind == stmtWith {
			return dynamic, nil
		}
		xop, ok := localOps[op]
		if !ok {
			return dynamic, nil
		}
		slot, err := cg.adjustBlockSlot(slot)
		if err != nil {
			return dynamic, err
		}
		return nameBinding{op: xop, slot: slot}, nil
	}

	if !cg.inFunction() {
		if !cg.opts.CompileAndGo || cg.flags&cgHasWith != 0 {
			return dynamic, nil
		}
		if _, declared := cg.scope.vars[name]; !declared {
			return dynamic, nil
		}
		isConst := cg.scope.consts[name]
		index, err := cg.indexAtom(vm.StringAtom(name))
		if err != nil {
			return dynamic, err
		}
		if (index+1)>>16 != 0 {
			return dynamic, nil
		}
		cg.ngvars = max(cg.ngvars, index+1)
		xop, ok := gvarOps[op]
		if !ok {
			return nameBinding{op: op, slot: -1, isConst: isConst}, nil
		}
		return nameBinding{op: xop, slot: index, isConst: isConst}, nil
	}

	if slot, ok := cg.scope.params[name]; ok {
		if xop, ok := argOps[op]; ok {
			return nameBinding{op: xop, slot: slot}, nil
		}
		return dynamic, nil
	}
	if slot, ok := cg.scope.vars[name]; ok {
		if xop, ok := localOps[op]; ok {
			return nameBinding{op: xop, slot: slot, isConst: cg.scope.consts[name]}, nil
		}
		return dynamic, nil
	}
	cg.flags |= cgUsesNonlocals

	if xop, ok := upvarOps[op]; ok {
		index, found, err := cg.bindUpvar(name)
		if err != nil {
			return dynamic, err
		}
		if found {
			return nameBinding{op: xop, slot: index}, nil
		}
	}

	if op == vm.OpName && name == "arguments" {
		cg.flags |= cgUsesArguments
		return nameBinding{op: vm.OpArguments, slot: -1}, nil
	}
	return dynamic, nil
}

// adjustBlockSlot moves a block-local slot past the function's variables,
// which share the local index space.
func (cg *CodeGenerator) adjustBlockSlot(slot int) (int, error) {
	if cg.inFunction() {
		slot += len(cg.scope.varNames)
		if slot >= vm.SlotLimit {
			return -1, cg.errorf(ErrOverflow, "too many local variables")
		}
	}
	return slot, nil
}

// bindUpvar looks name up in the enclosing functions and returns the index
// of its upvar cookie. Names that a with statement, a let block or eval
// could intercept are left to dynamic lookup.
func (cg *CodeGenerator) bindUpvar(name string) (int, bool, error) {
	if index, ok := cg.upvarIndex[name]; ok {
		return index, true, nil
	}
	if cg.scope.hasWith || cg.scope.usesEval {
		return 0, false, nil
	}
	for p := cg.parent; p != nil && p.inFunction(); p = p.parent {
		if stmt, _ := p.lexicalLookup(name); stmt != nil {
			return 0, false, nil
		}
		slot := -1
		if i, ok := p.scope.params[name]; ok {
			slot = i
		} else if i, ok := p.scope.vars[name]; ok {
			slot = len(p.fun.Params) + i
		}
		if slot < 0 {
			if p.scope.hasWith || p.scope.usesEval {
				return 0, false, nil
			}
			continue
		}
		if slot >= vm.SlotLimit || len(cg.upvars) >= vm.SlotLimit {
			return 0, false, nil
		}
		if cg.upvarIndex == nil {
			cg.upvarIndex = make(map[string]int)
		}
		index := len(cg.upvars)
		cg.upvars = append(cg.upvars, vm.UpvarCookie(cg.staticDepth-p.staticDepth, slot))
		cg.upvarIndex[name] = index
		return index, true, nil
	}
	return 0, false, nil
}

// emitNameOp emits a NAME-family op for name after binding it. It returns
// the binding used.
func (cg *CodeGenerator) emitNameOp(op vm.Opcode, name string) (nameBinding, error) {
	b, err := cg.bindNameToSlot(name, op)
	if err != nil {
		return b, err
	}
	return b, cg.emitBoundName(b, name)
}

// emitBoundName emits the instruction for a resolved binding.
func (cg *CodeGenerator) emitBoundName(b nameBinding, name string) error {
	switch {
	case b.op == vm.OpArguments || b.op == vm.OpFalse:
		_, err := cg.Emit1(b.op)
		return err
	case b.slot < 0:
		return cg.emitAtomOp(b.op, vm.StringAtom(name))
	case b.op.Info().Format == vm.FormatAtom:
		return cg.emitIndexOp(b.op, b.slot)
	default:
		_, err := cg.emitUint16(b.op, b.slot)
		return err
	}
}

// maybeEmitVarDecl hoists a DEFVAR or DEFCONST into the prolog for a
// declaration whose accesses go through the name's atom.
func (cg *CodeGenerator) maybeEmitVarDecl(prologOp vm.Opcode, b nameBinding, name string, line int) error {
	if b.slot >= 0 && b.op.Info().Format != vm.FormatAtom {
		return nil
	}
	if cg.inFunction() && cg.flags&cgHeavyweight == 0 {
		return nil
	}
	cg.switchToProlog()
	defer cg.switchToMain()
	if err := cg.updateLineNumberNotes(line); err != nil {
		return err
	}
	return cg.emitAtomOp(prologOp, vm.StringAtom(name))
}

// ---------------------------------------------------------------------------
// Compile-time constants
// ---------------------------------------------------------------------------

// defineCompileTimeConstant records a const initialized with a literal so
// that later uses can be folded.
func (cg *CodeGenerator) defineCompileTimeConstant(name string, init Expr) {
	switch v := init.(type) {
	case *NumberLiteral:
		cg.constList[name] = vm.NumberAtom(v.Value)
	case *StringLiteral:
		cg.constList[name] = vm.StringAtom(v.Value)
	}
}

// lookupCompileTimeConstant searches this generator and its parents for a
// constant value of name. Let bindings and function locals shadow it.
func (cg *CodeGenerator) lookupCompileTimeConstant(name string) (vm.Atom, bool) {
	for c := cg; c != nil; c = c.parent {
		if !c.inFunction() && !c.opts.CompileAndGo {
			continue
		}
		if stmt, _ := c.lexicalLookup(name); stmt != nil {
			return vm.Atom{}, false
		}
		if v, ok := c.constList[name]; ok {
			return v, true
		}
		if c.inFunction() {
			if _, ok := c.scope.params[name]; ok {
				break
			}
			if _, ok := c.scope.vars[name]; ok {
				break
			}
		}
	}
	return vm.Atom{}, false
}
