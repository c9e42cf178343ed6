package compiler

import (
	"strings"
	"testing"

	"github.com/chazu/jsbc/vm"
)

// AST shorthands for hand-built test programs.

func id(name string) *Identifier { return &Identifier{Name: name} }

func num(v float64) *NumberLiteral { return &NumberLiteral{Value: v} }

func str(s string) *StringLiteral { return &StringLiteral{Value: s} }

func call(callee Expr, args ...Expr) *CallExpr {
	return &CallExpr{Callee: callee, Args: args}
}

func callStmt(name string, args ...Expr) *ExprStmt {
	return &ExprStmt{Expr: call(id(name), args...)}
}

func exprStmt(e Expr) *ExprStmt { return &ExprStmt{Expr: e} }

func bin(op BinaryOp, operands ...Expr) *BinaryExpr {
	return &BinaryExpr{Op: op, Operands: operands}
}

func assign(target, value Expr) *AssignExpr {
	return &AssignExpr{Op: AssignPlain, Target: target, Value: value}
}

func array(elems ...Expr) *ArrayLiteral { return &ArrayLiteral{Elements: elems} }

func block(stmts ...Stmt) *BlockStmt { return &BlockStmt{Body: stmts} }

func varDecl(kind DeclKind, name string, init Expr) *VarDecl {
	return &VarDecl{Kind: kind, Decls: []*Declarator{{Target: id(name), Init: init}}}
}

func program(stmts ...Stmt) *Program { return &Program{Body: stmts} }

func function(name string, params []string, body ...Stmt) *FunctionNode {
	return &FunctionNode{Name: name, Params: params, Body: body}
}

// Compilation and inspection helpers.

func compileProgram(t *testing.T, opts Options, stmts ...Stmt) *vm.Script {
	t.Helper()
	s, err := NewCompiler(nil, nil, nil).CompileProgram(program(stmts...), opts)
	if err != nil {
		t.Fatalf("CompileProgram: %v", err)
	}
	return s
}

func compileFunction(t *testing.T, fn *FunctionNode) *vm.Script {
	t.Helper()
	s, err := NewCompiler(nil, nil, nil).CompileFunction(fn, Options{})
	if err != nil {
		t.Fatalf("CompileFunction: %v", err)
	}
	return s
}

func mainOps(s *vm.Script) []vm.Opcode {
	var ops []vm.Opcode
	for _, in := range vm.DecodeAll(s.Main()) {
		ops = append(ops, in.Op)
	}
	return ops
}

func prologOps(s *vm.Script) []vm.Opcode {
	var ops []vm.Opcode
	for _, in := range vm.DecodeAll(s.Prolog()) {
		ops = append(ops, in.Op)
	}
	return ops
}

func opNames(ops []vm.Opcode) string {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.Name()
	}
	return strings.Join(names, " ")
}

func countOp(s *vm.Script, op vm.Opcode) int {
	n := 0
	for _, in := range vm.DecodeAll(s.Main()) {
		if in.Op == op {
			n++
		}
	}
	return n
}

func findOp(s *vm.Script, op vm.Opcode) (vm.Instruction, bool) {
	for _, in := range vm.DecodeAll(s.Main()) {
		if in.Op == op {
			return in, true
		}
	}
	return vm.Instruction{}, false
}

// checkJumps verifies that every jump in main lands on an instruction
// boundary inside the main code.
func checkJumps(t *testing.T, s *vm.Script) {
	t.Helper()
	main := s.Main()
	boundaries := make(map[int]bool)
	ins := vm.DecodeAll(main)
	for _, in := range ins {
		boundaries[in.PC] = true
	}
	boundaries[len(main)] = true
	for _, in := range ins {
		if in.Op == vm.OpBackpatch || in.Op == vm.OpBackpatchPop {
			t.Errorf("unpatched %s at %d", in.Op, in.PC)
		}
		for _, target := range in.Targets {
			if !boundaries[target] {
				t.Errorf("%s at %d targets %d, not an instruction boundary", in.Op, in.PC, target)
			}
		}
	}
}

// checkNotes verifies that every note annotates an offset inside the code.
func checkNotes(t *testing.T, s *vm.Script) {
	t.Helper()
	if len(s.Notes) == 0 || s.Notes[len(s.Notes)-1] != byte(vm.SrcNull) {
		t.Fatalf("note vector is not terminated")
	}
	for _, n := range vm.DecodeNotes(s.Notes) {
		if n.Offset > len(s.Code) {
			t.Errorf("note %s at index %d annotates %d, past code end %d", n.Name(), n.Index, n.Offset, len(s.Code))
		}
	}
}

// newTestGenerator returns a script-level generator ready for emission.
func newTestGenerator(opts Options) *CodeGenerator {
	cg := newCodeGenerator(opts, NewMapAtomTable(), DescriptorModel{}, NewArena(0, 0))
	cg.scope = NewSemanticAnalyzer(false).AnalyzeProgram(&Program{})
	return cg
}
