package compiler

import (
	"strings"
	"testing"

	"github.com/chazu/jsbc/vm"
)

// ---------------------------------------------------------------------------
// End-to-end emission
// ---------------------------------------------------------------------------

func TestEmitAddition(t *testing.T) {
	s := compileProgram(t, Options{}, exprStmt(bin(BinAdd, num(1), num(2))))

	got := opNames(mainOps(s))
	want := "ONE INT8 ADD POPV STOP"
	if got != want {
		t.Errorf("main = %q, want %q", got, want)
	}
	if len(s.Prolog()) != 0 {
		t.Errorf("prolog length = %d, want 0", len(s.Prolog()))
	}
	if s.MaxStackDepth != 2 {
		t.Errorf("MaxStackDepth = %d, want 2", s.MaxStackDepth)
	}
	in, _ := findOp(s, vm.OpInt8)
	if in.Operand != 2 {
		t.Errorf("INT8 operand = %d, want 2", in.Operand)
	}
	checkNotes(t, s)
}

func TestEmitIfElse(t *testing.T) {
	s := compileProgram(t, Options{}, &IfStmt{
		Test: id("a"),
		Then: callStmt("b"),
		Else: callStmt("c"),
	})

	got := opNames(mainOps(s))
	want := "NAME IFEQ CALLNAME CALL POPV GOTO CALLNAME CALL POPV STOP"
	if got != want {
		t.Fatalf("main = %q, want %q", got, want)
	}

	ins := vm.DecodeAll(s.Main())
	ifeq, jump := ins[1], ins[5]
	if ifeq.PC != 3 || ifeq.Targets[0] != 16 {
		t.Errorf("IFEQ at %d targets %d, want 3 -> 16", ifeq.PC, ifeq.Targets[0])
	}
	if jump.PC != 13 || jump.Targets[0] != 23 {
		t.Errorf("GOTO at %d targets %d, want 13 -> 23", jump.PC, jump.Targets[0])
	}

	var ifElse []vm.SrcNote
	for _, n := range vm.DecodeNotes(s.Notes) {
		if n.Type == vm.SrcIfElse {
			ifElse = append(ifElse, n)
		}
	}
	if len(ifElse) != 1 {
		t.Fatalf("got %d if-else notes, want 1", len(ifElse))
	}
	if ifElse[0].Offset != 3 {
		t.Errorf("if-else note annotates %d, want 3", ifElse[0].Offset)
	}
	if got := ifElse[0].Operand[0]; got != 10 {
		t.Errorf("if-else operand = %d, want 10", got)
	}
	checkJumps(t, s)
	checkNotes(t, s)
}

func TestEmitForLoop(t *testing.T) {
	loop := &ForStmt{
		Init:   varDecl(DeclVar, "i", num(0)),
		Test:   bin(BinLt, id("i"), num(10)),
		Update: &UpdateExpr{Target: id("i"), Increment: true},
		Body:   callStmt("x"),
	}
	s := compileProgram(t, Options{}, loop)

	if got := opNames(prologOps(s)); got != "DEFVAR" {
		t.Errorf("prolog = %q, want %q", got, "DEFVAR")
	}
	got := opNames(mainOps(s))
	want := "BINDNAME ZERO SETNAME POP GOTO CALLNAME CALL POPV NAMEINC POP NAME INT8 LT IFNE STOP"
	if got != want {
		t.Fatalf("main = %q, want %q", got, want)
	}

	ins := vm.DecodeAll(s.Main())
	jump, back := ins[4], ins[13]
	if jump.PC != 8 || jump.Targets[0] != 22 {
		t.Errorf("GOTO at %d targets %d, want 8 -> 22", jump.PC, jump.Targets[0])
	}
	if back.PC != 28 || back.Targets[0] != 11 {
		t.Errorf("IFNE at %d targets %d, want 28 -> 11", back.PC, back.Targets[0])
	}

	var found bool
	for _, n := range vm.DecodeNotes(s.Notes) {
		if n.Type == vm.SrcFor {
			found = true
			if len(n.Operand) != 3 {
				t.Errorf("for note has %d operands, want 3", len(n.Operand))
			}
		}
	}
	if !found {
		t.Error("no for note")
	}
	checkJumps(t, s)
	checkNotes(t, s)
}

// longWhile builds while (c) { x = 1; ... } with n assignments of 8 bytes
// each.
func longWhile(n int) *WhileStmt {
	body := make([]Stmt, n)
	for i := range body {
		body[i] = exprStmt(assign(id("x"), num(1)))
	}
	return &WhileStmt{Test: id("c"), Body: block(body...)}
}

func TestEmitShortJumps(t *testing.T) {
	s := compileProgram(t, Options{}, longWhile(10))

	ops := mainOps(s)
	if ops[0] != vm.OpGoto {
		t.Errorf("first op = %s, want GOTO", ops[0])
	}
	if countOp(s, vm.OpGotoX) != 0 || countOp(s, vm.OpIfNeX) != 0 {
		t.Error("short loop was widened")
	}
	// goto(3) + 10 assignments + name(3) + ifne(3) + stop(1)
	if got, want := len(s.Main()), 3+80+3+3+1; got != want {
		t.Errorf("main length = %d, want %d", got, want)
	}
	checkJumps(t, s)
	checkNotes(t, s)
}

func TestEmitWidenedJumps(t *testing.T) {
	const n = 5000
	s := compileProgram(t, Options{}, longWhile(n))

	ins := vm.DecodeAll(s.Main())
	first := ins[0]
	if first.Op != vm.OpGotoX {
		t.Fatalf("first op = %s, want GOTOX", first.Op)
	}
	bodyStart := first.Length
	test := bodyStart + 8*n
	if first.Targets[0] != test {
		t.Errorf("GOTOX targets %d, want %d", first.Targets[0], test)
	}
	if ins[len(ins)-1].Op != vm.OpStop {
		t.Fatalf("last op = %s, want STOP", ins[len(ins)-1].Op)
	}
	back := ins[len(ins)-2]
	if back.Op != vm.OpIfNeX {
		t.Fatalf("loop close = %s, want IFNEX", back.Op)
	}
	if back.Targets[0] != bodyStart {
		t.Errorf("IFNEX targets %d, want %d", back.Targets[0], bodyStart)
	}

	// Each widened jump grows by two bytes.
	unwidened := 3 + 8*n + 3 + 3 + 1
	if got, want := len(s.Main()), unwidened+2*2; got != want {
		t.Errorf("main length = %d, want %d", got, want)
	}
	checkJumps(t, s)
	checkNotes(t, s)

	var while []vm.SrcNote
	for _, note := range vm.DecodeNotes(s.Notes) {
		if note.Type == vm.SrcWhile {
			while = append(while, note)
		}
	}
	if len(while) != 1 {
		t.Fatalf("got %d while notes, want 1", len(while))
	}
	if while[0].Offset != first.PC {
		t.Errorf("while note annotates %d, want %d", while[0].Offset, first.PC)
	}
	if got, want := while[0].Operand[0], back.PC-first.PC; got != want {
		t.Errorf("while note operand = %d, want %d", got, want)
	}
}

func TestEmitReturnThroughFinally(t *testing.T) {
	fn := function("f", nil, &TryStmt{
		Block:   block(callStmt("a"), &ReturnStmt{}),
		Finally: block(callStmt("b")),
	})
	s := compileFunction(t, fn)

	got := opNames(mainOps(s))
	if !strings.Contains(got, "PUSH SETRVAL GOSUB RETRVAL") {
		t.Errorf("main = %q, want a PUSH SETRVAL GOSUB RETRVAL sequence", got)
	}
	if n := countOp(s, vm.OpFinally); n != 1 {
		t.Fatalf("got %d FINALLY, want 1", n)
	}
	finally, _ := findOp(s, vm.OpFinally)
	gosubs := 0
	for _, in := range vm.DecodeAll(s.Main()) {
		if in.Op != vm.OpGosub {
			continue
		}
		gosubs++
		if in.Targets[0] != finally.PC {
			t.Errorf("GOSUB at %d targets %d, want FINALLY at %d", in.PC, in.Targets[0], finally.PC)
		}
	}
	if gosubs < 2 {
		t.Errorf("got %d GOSUB, want the return's and the fall-through's", gosubs)
	}

	// The finally body is emitted once and called as a subroutine.
	calls := 0
	for _, in := range vm.DecodeAll(s.Main()) {
		if in.Op == vm.OpCallName && s.Atoms[in.Operand] == vm.StringAtom("b") {
			calls++
		}
	}
	if calls != 1 {
		t.Errorf("finally body emitted %d times, want 1", calls)
	}

	if len(s.TryNotes) != 1 || s.TryNotes[0].Kind != vm.TryFinally {
		t.Fatalf("TryNotes = %+v, want one finally note", s.TryNotes)
	}
	if s.Flags&vm.ScriptFunction == 0 {
		t.Error("function flag not set")
	}
	checkJumps(t, s)
	checkNotes(t, s)
}

func TestEmitGroupAssignment(t *testing.T) {
	stmt := exprStmt(assign(array(id("a"), id("b")), array(id("c"), id("d"))))
	s := compileProgram(t, Options{NoScriptRval: true}, stmt)

	if n := countOp(s, vm.OpDup); n != 0 {
		t.Errorf("got %d DUP, want 0", n)
	}
	if n := countOp(s, vm.OpGetLocal); n != 2 {
		t.Errorf("got %d GETLOCAL, want 2", n)
	}
	ins := vm.DecodeAll(s.Main())
	last := ins[len(ins)-2]
	if last.Op != vm.OpPopN || last.Operand != 2 {
		t.Errorf("last op = %s %d, want POPN 2", last.Op, last.Operand)
	}
	if n := countOp(s, vm.OpPopv); n != 0 {
		t.Errorf("got %d POPV, want 0", n)
	}
	checkNotes(t, s)
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func TestStackBalance(t *testing.T) {
	tests := []struct {
		name string
		stmt Stmt
	}{
		{"expression", exprStmt(bin(BinMul, id("a"), num(3)))},
		{"var", varDecl(DeclVar, "v", str("s"))},
		{"if", &IfStmt{Test: id("a"), Then: callStmt("f")}},
		{"else if", &IfStmt{
			Test: id("a"), Then: callStmt("f"),
			Else: &IfStmt{Test: id("b"), Then: callStmt("g"), Else: callStmt("h")},
		}},
		{"while", &WhileStmt{Test: id("a"), Body: callStmt("f")}},
		{"do while", &DoWhileStmt{Body: callStmt("f"), Test: id("a")}},
		{"for", &ForStmt{
			Init: assign(id("i"), num(0)),
			Test: bin(BinLt, id("i"), num(3)),
			Body: block(&IfStmt{Test: id("a"), Then: &BreakStmt{}, Else: &ContinueStmt{}}),
		}},
		{"for in", &ForInStmt{
			Left:  varDecl(DeclVar, "k", nil),
			Right: id("o"),
			Body:  callStmt("f", id("k")),
		}},
		{"switch", &SwitchStmt{Discriminant: id("x"), Cases: []*SwitchCase{
			{Test: num(1), Body: []Stmt{callStmt("f"), &BreakStmt{}}},
			{Test: num(2), Body: []Stmt{callStmt("g")}},
			{Body: []Stmt{callStmt("h")}},
		}}},
		{"condswitch", &SwitchStmt{Discriminant: id("x"), Cases: []*SwitchCase{
			{Test: id("y"), Body: []Stmt{callStmt("f")}},
			{Test: call(id("z")), Body: []Stmt{callStmt("g"), &BreakStmt{}}},
		}}},
		{"try catch", &TryStmt{
			Block:   block(callStmt("f")),
			Catches: []*CatchClause{{Param: id("e"), Body: block(callStmt("g", id("e")))}},
		}},
		{"try catch finally", &TryStmt{
			Block:   block(callStmt("f")),
			Catches: []*CatchClause{{Param: id("e"), Body: block(callStmt("g"))}},
			Finally: block(callStmt("h")),
		}},
		{"guarded catches", &TryStmt{
			Block: block(callStmt("f")),
			Catches: []*CatchClause{
				{Param: id("e"), Guard: id("p"), Body: block(callStmt("g"))},
				{Param: id("e"), Guard: id("q"), Body: block(callStmt("h"))},
			},
		}},
		{"let block", block(varDecl(DeclLet, "l", num(1)), callStmt("f", id("l")))},
		{"with", &WithStmt{Object: id("o"), Body: callStmt("f")}},
		{"labeled", &LabeledStmt{Label: "out", Body: &WhileStmt{
			Test: id("a"),
			Body: &BreakStmt{Label: "out"},
		}}},
		{"throw", &ThrowStmt{Value: str("boom")}},
		{"logical", exprStmt(&LogicalExpr{Op: LogicalOr, Operands: []Expr{id("a"), id("b"), id("c")}})},
		{"conditional", exprStmt(&ConditionalExpr{Test: id("a"), Consequent: num(1), Alternate: num(2)})},
		{"member assign", exprStmt(&AssignExpr{
			Op:     AssignAdd,
			Target: &MemberExpr{Object: id("o"), Property: "p"},
			Value:  num(1),
		})},
		{"index update", exprStmt(&UpdateExpr{Target: &IndexExpr{Object: id("o"), Index: id("i")}})},
		{"method call", exprStmt(call(&MemberExpr{Object: id("o"), Property: "m"}, num(1), num(2)))},
		{"new", exprStmt(&NewExpr{Callee: id("C"), Args: []Expr{num(1)}})},
		{"literals", exprStmt(array(num(1), &ObjectLiteral{Properties: []*Property{
			{Key: id("k"), Value: str("v")},
		}}))},
		{"delete", exprStmt(&DeleteExpr{Target: &MemberExpr{Object: id("o"), Property: "p"}})},
		{"typeof", exprStmt(&UnaryExpr{Op: UnaryTypeOf, Operand: id("u")})},
		{"sequence", exprStmt(&SequenceExpr{Exprs: []Expr{call(id("f")), call(id("g"))}})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cg := newTestGenerator(Options{})
			defer cg.Close()
			if err := cg.emitTree(tt.stmt); err != nil {
				t.Fatalf("emitTree: %v", err)
			}
			if cg.stackDepth != 0 {
				t.Errorf("stack depth after statement = %d, want 0", cg.stackDepth)
			}
			if cg.maxStackDepth <= 0 {
				t.Errorf("maxStackDepth = %d, want > 0", cg.maxStackDepth)
			}
		})
	}
}

func TestTryNotesInnermostLast(t *testing.T) {
	inner := &TryStmt{
		Block:   block(callStmt("a")),
		Catches: []*CatchClause{{Param: id("e"), Body: block(callStmt("b"))}},
	}
	outer := &TryStmt{
		Block:   block(inner),
		Finally: block(callStmt("c")),
	}
	s := compileProgram(t, Options{}, outer)

	if len(s.TryNotes) != 2 {
		t.Fatalf("got %d try notes, want 2", len(s.TryNotes))
	}
	o, i := s.TryNotes[0], s.TryNotes[1]
	if o.Kind != vm.TryFinally {
		t.Errorf("first note kind = %s, want finally", o.Kind)
	}
	if i.Kind != vm.TryCatch {
		t.Errorf("second note kind = %s, want catch", i.Kind)
	}
	if i.Start < o.Start || i.Start+i.Length > o.Start+o.Length {
		t.Errorf("inner [%d,+%d) not within outer [%d,+%d)", i.Start, i.Length, o.Start, o.Length)
	}

	main := s.Main()
	for _, tn := range s.TryNotes {
		if int(tn.Start+tn.Length) > len(main) {
			t.Errorf("try note %+v runs past main length %d", tn, len(main))
		}
		if vm.Opcode(main[tn.Start-1]) != vm.OpTry {
			t.Errorf("try note at %d does not follow a TRY", tn.Start)
		}
	}
	checkJumps(t, s)
	checkNotes(t, s)
}

func TestUselessExpressionWarning(t *testing.T) {
	fn := function("f", nil, varDecl(DeclVar, "a", nil), exprStmt(id("a")))

	c := NewCompiler(nil, nil, nil)
	s, err := c.CompileFunction(fn, Options{})
	if err != nil {
		t.Fatalf("CompileFunction: %v", err)
	}
	var warned bool
	for _, d := range c.Diagnostics() {
		if d.Warning && d.Msg == "useless expression" {
			warned = true
		}
	}
	if !warned {
		t.Errorf("diagnostics = %v, want a useless expression warning", c.Diagnostics())
	}
	// The statement emits nothing.
	if n := countOp(s, vm.OpGetLocal); n != 1 {
		t.Errorf("got %d GETLOCAL, want only the declaration's", n)
	}

	_, err = NewCompiler(nil, nil, nil).CompileFunction(fn, Options{Strict: true})
	if !IsKind(err, ErrSyntax) {
		t.Errorf("strict error = %v, want a syntax error", err)
	}
}

func TestLabeledExpressionKept(t *testing.T) {
	fn := function("f", nil, varDecl(DeclVar, "a", nil), &LabeledStmt{Label: "l", Body: exprStmt(id("a"))})
	c := NewCompiler(nil, nil, nil)
	s, err := c.CompileFunction(fn, Options{})
	if err != nil {
		t.Fatalf("CompileFunction: %v", err)
	}
	if n := countOp(s, vm.OpGetLocal); n != 2 {
		t.Errorf("got %d GETLOCAL, want 2", n)
	}
}

func TestSwitchStrategies(t *testing.T) {
	cases := func(tests ...Expr) []*SwitchCase {
		var out []*SwitchCase
		for _, test := range tests {
			out = append(out, &SwitchCase{Test: test, Body: []Stmt{callStmt("f"), &BreakStmt{}}})
		}
		return out
	}
	tests := []struct {
		name  string
		cases []*SwitchCase
		want  vm.Opcode
		npair int // targets excluding the default
	}{
		{"dense ints", cases(num(1), num(2), num(3)), vm.OpTableSwitch, 3},
		{"sparse ints", cases(num(1), num(100)), vm.OpLookupSwitch, 2},
		{"strings", cases(str("a"), str("b")), vm.OpLookupSwitch, 2},
		{"fractions", cases(num(0.5), num(1.5)), vm.OpLookupSwitch, 2},
		{"duplicate ints", cases(num(1), num(1)), vm.OpLookupSwitch, 2},
		{"names", cases(id("y"), num(2)), vm.OpCondSwitch, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := compileProgram(t, Options{}, &SwitchStmt{Discriminant: id("x"), Cases: tt.cases})
			in, ok := findOp(s, tt.want)
			if !ok {
				t.Fatalf("no %s in %q", tt.want, opNames(mainOps(s)))
			}
			if tt.want == vm.OpCondSwitch {
				if n := countOp(s, vm.OpCase); n != len(tt.cases) {
					t.Errorf("got %d CASE, want %d", n, len(tt.cases))
				}
				if n := countOp(s, vm.OpDefault); n != 1 {
					t.Errorf("got %d DEFAULT, want 1", n)
				}
			} else if got := len(in.Targets) - 1; got != tt.npair {
				t.Errorf("got %d case targets, want %d", got, tt.npair)
			}
			checkJumps(t, s)
			checkNotes(t, s)
		})
	}
}

func TestTableSwitchTargets(t *testing.T) {
	sw := &SwitchStmt{Discriminant: id("x"), Cases: []*SwitchCase{
		{Test: num(1), Body: []Stmt{callStmt("f"), &BreakStmt{}}},
		{Test: num(3), Body: []Stmt{callStmt("g"), &BreakStmt{}}},
		{Body: []Stmt{callStmt("h")}},
	}}
	s := compileProgram(t, Options{}, sw)

	in, ok := findOp(s, vm.OpTableSwitch)
	if !ok {
		t.Fatalf("no TABLESWITCH in %q", opNames(mainOps(s)))
	}
	if len(in.Keys) != 3 || in.Keys[0] != 1 || in.Keys[2] != 3 {
		t.Fatalf("keys = %v, want [1 2 3]", in.Keys)
	}
	// The gap at 2 falls to the default.
	if in.Targets[2] != in.Targets[0] {
		t.Errorf("case 2 targets %d, want the default %d", in.Targets[2], in.Targets[0])
	}
	ins := vm.DecodeAll(s.Main())
	at := make(map[int]vm.Instruction)
	for _, x := range ins {
		at[x.PC] = x
	}
	for i, target := range in.Targets {
		if at[target].Op != vm.OpCallName {
			t.Errorf("target %d lands on %s, want CALLNAME", i, at[target].Op)
		}
	}
}

func TestLookupSwitchAtoms(t *testing.T) {
	sw := &SwitchStmt{Discriminant: id("x"), Cases: []*SwitchCase{
		{Test: str("a"), Body: []Stmt{callStmt("f")}},
		{Test: str("b"), Body: []Stmt{callStmt("g")}},
	}}
	s := compileProgram(t, Options{}, sw)

	in, ok := findOp(s, vm.OpLookupSwitch)
	if !ok {
		t.Fatalf("no LOOKUPSWITCH in %q", opNames(mainOps(s)))
	}
	want := []string{"a", "b"}
	for i, k := range in.Keys {
		if s.Atoms[k] != vm.StringAtom(want[i]) {
			t.Errorf("pair %d key = %+v, want %q", i, s.Atoms[k], want[i])
		}
	}
	// No default: the default target is the end of the switch.
	end := in.PC + in.Length
	for _, x := range vm.DecodeAll(s.Main()) {
		if x.PC > in.PC && x.Op == vm.OpPopv {
			end = x.PC + x.Length
		}
	}
	if in.Targets[0] != end {
		t.Errorf("default targets %d, want %d", in.Targets[0], end)
	}
}

func TestSwitchConstantPropagation(t *testing.T) {
	decl := varDecl(DeclConst, "K", num(2))
	sw := &SwitchStmt{Discriminant: id("x"), Cases: []*SwitchCase{
		{Test: num(1), Body: []Stmt{callStmt("f")}},
		{Test: id("K"), Body: []Stmt{callStmt("g")}},
	}}
	s := compileProgram(t, Options{CompileAndGo: true}, decl, sw)

	if _, ok := findOp(s, vm.OpTableSwitch); !ok {
		t.Fatalf("const case not folded: %q", opNames(mainOps(s)))
	}
	var labeled bool
	for _, n := range vm.DecodeNotes(s.Notes) {
		if n.Type == vm.SrcLabel && s.Atoms[n.Operand[0]] == vm.StringAtom("K") {
			labeled = true
		}
	}
	if !labeled {
		t.Error("no label note naming the propagated constant")
	}
}

func TestHoistedLocalFunction(t *testing.T) {
	inner := &FunctionDecl{Func: function("inner", nil, &ReturnStmt{Value: id("x")})}
	outer := function("outer", nil,
		varDecl(DeclVar, "x", num(1)),
		inner,
		&ReturnStmt{Value: id("inner")},
	)
	s := compileFunction(t, outer)

	ins := vm.DecodeAll(s.Main())
	if ins[0].Op != vm.OpDefLocalFun {
		t.Fatalf("first op = %s, want DEFLOCALFUN", ins[0].Op)
	}
	if ins[0].Slot != 1 {
		t.Errorf("DEFLOCALFUN slot = %d, want 1", ins[0].Slot)
	}
	obj := s.Objects[ins[0].Operand]
	if obj.Kind != vm.ObjectFunction || obj.Name != "inner" {
		t.Fatalf("object = %+v, want function inner", obj)
	}
	if countOp(s, vm.OpNop) < 1 {
		t.Error("no NOP at the declaration's position")
	}
	if s.FixedSlots != 2 {
		t.Errorf("FixedSlots = %d, want 2", s.FixedSlots)
	}
	if s.Flags&vm.ScriptHeavyweight == 0 {
		t.Error("outer should be heavyweight: inner reads its variables")
	}

	child := obj.Script
	up, ok := findOp(child, vm.OpGetUpvar)
	if !ok {
		t.Fatalf("inner has no GETUPVAR: %q", opNames(mainOps(child)))
	}
	cookie := child.Upvars[up.Operand]
	if vm.UpvarSkip(cookie) != 1 || vm.UpvarSlot(cookie) != 0 {
		t.Errorf("upvar cookie = (%d, %d), want (1, 0)", vm.UpvarSkip(cookie), vm.UpvarSlot(cookie))
	}
}

func TestTopLevelFunctionInProlog(t *testing.T) {
	decl := &FunctionDecl{Func: function("f", []string{"a"}, &ReturnStmt{Value: id("a")})}
	s := compileProgram(t, Options{}, decl, callStmt("f", num(1)))

	if got := opNames(prologOps(s)); got != "DEFFUN" {
		t.Errorf("prolog = %q, want DEFFUN", got)
	}
	if ops := mainOps(s); ops[0] != vm.OpNop {
		t.Errorf("first main op = %s, want NOP", ops[0])
	}
	fn := s.Objects[0].Script
	if fn.NArgs != 1 {
		t.Errorf("NArgs = %d, want 1", fn.NArgs)
	}
	if _, ok := findOp(fn, vm.OpGetArg); !ok {
		t.Errorf("parameter read is not GETARG: %q", opNames(mainOps(fn)))
	}
	if s.Flags&vm.ScriptFunction != 0 {
		t.Error("script flagged as a function")
	}
}

func TestCompileAndGoGlobals(t *testing.T) {
	s := compileProgram(t, Options{CompileAndGo: true},
		varDecl(DeclVar, "g", num(5)),
		callStmt("f", id("g")),
	)
	if _, ok := findOp(s, vm.OpSetGVar); !ok {
		t.Errorf("declared global not bound to a GVAR slot: %q", opNames(mainOps(s)))
	}
	if s.FixedSlots < 1 {
		t.Errorf("FixedSlots = %d, want >= 1", s.FixedSlots)
	}
	if s.Flags&vm.ScriptCompileAndGo == 0 {
		t.Error("compile-and-go flag not set")
	}
}

func TestReturnOutsideFunction(t *testing.T) {
	_, err := Compile(program(&ReturnStmt{}), Options{})
	if !IsKind(err, ErrSyntax) {
		t.Errorf("err = %v, want a syntax error", err)
	}
}

func TestBreakOutsideLoop(t *testing.T) {
	_, err := Compile(program(&BreakStmt{}), Options{})
	if !IsKind(err, ErrSyntax) {
		t.Errorf("err = %v, want a syntax error", err)
	}
}

func TestRecursionLimit(t *testing.T) {
	var e Expr = num(1)
	for i := 0; i < 50; i++ {
		e = bin(BinAdd, e, num(1))
	}
	_, err := Compile(program(exprStmt(e)), Options{MaxDepth: 10})
	if !IsKind(err, ErrRecursion) {
		t.Errorf("err = %v, want a recursion error", err)
	}
}

func TestLineNotes(t *testing.T) {
	at := func(line int, s Stmt) Stmt {
		es := s.(*ExprStmt)
		es.SpanVal = Span{Start: Position{Line: line}}
		return es
	}
	s := compileProgram(t, Options{},
		at(1, callStmt("a")),
		at(2, callStmt("b")),
		at(40, callStmt("c")),
	)
	ins := vm.DecodeAll(s.Main())
	lines := map[string]int{}
	for _, in := range ins {
		if in.Op == vm.OpCallName {
			lines[s.Atoms[in.Operand].Str] = s.Line(s.MainOffset + in.PC)
		}
	}
	want := map[string]int{"a": 1, "b": 2, "c": 40}
	for name, line := range want {
		if lines[name] != line {
			t.Errorf("line of %s = %d, want %d", name, lines[name], line)
		}
	}
}

func TestHashStable(t *testing.T) {
	build := func() *Program {
		return program(
			varDecl(DeclVar, "x", num(1)),
			&IfStmt{Test: id("x"), Then: callStmt("f")},
		)
	}
	a, err := Compile(build(), Options{Filename: "a.js"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compile(build(), Options{Filename: "b.js"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Hash != b.Hash {
		t.Error("identical code hashed differently")
	}
	c, err := Compile(program(callStmt("g")), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if a.Hash == c.Hash {
		t.Error("different code hashed identically")
	}
}

func TestDisassembleCompiled(t *testing.T) {
	s := compileProgram(t, Options{}, &IfStmt{Test: id("a"), Then: callStmt("b")})
	out := vm.Disassemble(s)
	for _, want := range []string{"ifeq", "callname", `"b"`} {
		if !strings.Contains(strings.ToLower(out), strings.ToLower(want)) {
			t.Errorf("disassembly missing %s:\n%s", want, out)
		}
	}
}

// A switch body with let declarations enters its block before the
// discriminant, which is evaluated in that block's scope.
func TestSwitchLexicalScope(t *testing.T) {
	sw := &SwitchStmt{Discriminant: id("x"), Cases: []*SwitchCase{
		{Test: num(1), Body: []Stmt{varDecl(DeclLet, "x", num(2)), callStmt("f", id("x")), &BreakStmt{}}},
	}}
	s := compileProgram(t, Options{}, sw)
	ins := vm.DecodeAll(s.Main())
	if len(ins) < 2 || ins[0].Op != vm.OpEnterBlock || ins[1].Op != vm.OpGetLocal {
		t.Fatalf("got %q, want ENTERBLOCK GETLOCAL first", opNames(mainOps(s)))
	}
	// The block's only slot sits at the bottom of the stack.
	if ins[1].Operand != 0 {
		t.Errorf("discriminant reads slot %d, want 0", ins[1].Operand)
	}
	if countOp(s, vm.OpName) != 0 {
		t.Errorf("discriminant looked up by name: %q", opNames(mainOps(s)))
	}
	ops := mainOps(s)
	if ops[len(ops)-2] != vm.OpLeaveBlock {
		t.Errorf("got %q, want LEAVEBLOCK before STOP", opNames(ops))
	}
	checkJumps(t, s)
	checkNotes(t, s)
}

// Without let declarations the discriminant is a plain free-name lookup.
func TestSwitchWithoutBlockScope(t *testing.T) {
	sw := &SwitchStmt{Discriminant: id("x"), Cases: []*SwitchCase{
		{Test: num(1), Body: []Stmt{callStmt("f", id("x")), &BreakStmt{}}},
	}}
	s := compileProgram(t, Options{}, sw)
	if ops := mainOps(s); ops[0] != vm.OpName {
		t.Errorf("got %q, want NAME first", opNames(ops))
	}
	if _, ok := findOp(s, vm.OpEnterBlock); ok {
		t.Error("ENTERBLOCK without let declarations")
	}
}
