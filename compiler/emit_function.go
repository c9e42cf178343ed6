package compiler

import (
	"github.com/chazu/jsbc/vm"
)

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// maxStaticDepth bounds function nesting; upvar cookies carry the skip
// count in 16 bits.
const maxStaticDepth = 0xffff

// emitFunctionBody emits a function's statements. Function declarations
// directly in the body are defined first, in source order; their original
// positions get a SRC_FUNCDEF NOP.
func (cg *CodeGenerator) emitFunctionBody(fn *FunctionNode) error {
	if cg.flags&cgGenerator != 0 {
		cg.switchToProlog()
		_, err := cg.Emit1(vm.OpGenerator)
		cg.switchToMain()
		if err != nil {
			return err
		}
	}

	cg.pushStatement(stmtBlock, cg.offset())
	for _, decl := range cg.scope.funDecls {
		if err := cg.hoistLocalFunction(decl); err != nil {
			return err
		}
	}
	if err := cg.emitStatements(fn.Body); err != nil {
		return err
	}
	return cg.popStatementCG()
}

// hoistLocalFunction compiles decl and binds it to its local slot with
// DEFLOCALFUN. A declaration named like a parameter overwrites the
// argument instead.
func (cg *CodeGenerator) hoistLocalFunction(decl *FunctionDecl) error {
	if err := cg.updateLineNumberNotes(decl.SpanVal.Start.Line); err != nil {
		return err
	}
	obj, err := cg.compileFunction(decl.Func, false)
	if err != nil {
		return err
	}
	index := cg.indexObject(obj)
	cg.funDefs[decl] = index

	name := decl.Func.Name
	if slot, ok := cg.scope.vars[name]; ok {
		return cg.emitSlotIndexOp(vm.OpDefLocalFun, slot, index)
	}
	if slot, ok := cg.scope.params[name]; ok {
		if err := cg.emitIndexOp(vm.OpLambda, index); err != nil {
			return err
		}
		if _, err := cg.emitUint16(vm.OpSetArg, slot); err != nil {
			return err
		}
		_, err := cg.Emit1(vm.OpPop)
		return err
	}
	return cg.errorf(ErrInternal, "function %s has no local slot", name)
}

func (cg *CodeGenerator) emitFunctionDefNop(index int) error {
	if _, err := cg.NewSrcNote2(vm.SrcFuncDef, index); err != nil {
		return err
	}
	_, err := cg.Emit1(vm.OpNop)
	return err
}

// emitFunctionDecl defines a declared function. Top-level script functions
// are defined in the prolog; functions declared inside blocks are defined
// when control reaches them.
func (cg *CodeGenerator) emitFunctionDecl(n *FunctionDecl) error {
	if index, ok := cg.funDefs[n]; ok {
		return cg.emitFunctionDefNop(index)
	}

	obj, err := cg.compileFunction(n.Func, false)
	if err != nil {
		return err
	}
	index := cg.indexObject(obj)

	if !cg.inFunction() && cg.topStmt == nil {
		cg.switchToProlog()
		err := cg.emitIndexOp(vm.OpDefFun, index)
		cg.switchToMain()
		if err != nil {
			return err
		}
		return cg.emitFunctionDefNop(index)
	}

	// A conditional definition mutates the variable object at run time.
	if cg.inFunction() {
		cg.flags |= cgHeavyweight
	}
	return cg.emitIndexOp(vm.OpDefFun, index)
}

// emitFunctionExpr pushes a closure for a function expression.
func (cg *CodeGenerator) emitFunctionExpr(n *FunctionExpr) error {
	obj, err := cg.compileFunction(n.Func, true)
	if err != nil {
		return err
	}
	return cg.emitIndexOp(vm.OpLambda, cg.indexObject(obj))
}

// compileFunction compiles fn with a child generator and returns its
// function object. The child shares the atom table, object model and
// arena; its arena memory is released once the script is assembled.
func (cg *CodeGenerator) compileFunction(fn *FunctionNode, lambda bool) (*vm.Object, error) {
	if cg.staticDepth+1 > maxStaticDepth {
		return nil, cg.errorf(ErrOverflow, "functions nested too deeply")
	}

	opts := cg.opts
	if line := fn.SpanVal.Start.Line; line > 0 {
		opts.FirstLine = line
	}
	child := newCodeGenerator(opts, cg.atoms, cg.objects, cg.arena)
	defer child.Close()
	child.parent = cg
	child.staticDepth = cg.staticDepth + 1
	child.treeDepth = cg.treeDepth
	child.initFunction(fn)

	script, err := child.finishUnit(func() error { return child.emitTree(fn) })
	if err != nil {
		return nil, err
	}

	// The enclosing function must keep a call object for the closure.
	if child.flags&(cgUsesNonlocals|cgHeavyweight) != 0 && cg.inFunction() {
		cg.flags |= cgHeavyweight
	}
	cg.diagnostics = append(cg.diagnostics, child.diagnostics...)

	obj, err := cg.objects.NewFunction(fn, script)
	if err != nil {
		return nil, cg.outOfMemory(err)
	}
	obj.Lambda = lambda
	return obj, nil
}

// initFunction analyzes fn and sets the unit flags its body implies.
func (cg *CodeGenerator) initFunction(fn *FunctionNode) {
	cg.fun = fn
	sa := NewSemanticAnalyzer(true)
	cg.scope = sa.AnalyzeFunction(fn)
	cg.diagnostics = append(cg.diagnostics, sa.Diagnostics()...)

	cg.flags |= cgInFunction
	if cg.scope.generator {
		cg.flags |= cgGenerator
	}
	if cg.scope.hasWith {
		cg.flags |= cgHasWith
	}
	if cg.scope.usesEval || cg.scope.hasWith {
		cg.flags |= cgHeavyweight
	}
	if cg.scope.usesArguments {
		cg.flags |= cgUsesArguments
	}
}
