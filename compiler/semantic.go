package compiler

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Semantic Analyzer: declaration hoisting before codegen
// ---------------------------------------------------------------------------

// funcScope records the hoisted declarations of one function or script body.
type funcScope struct {
	params   map[string]int // formal name -> argument slot
	vars     map[string]int // var, const and function name -> declaration index
	varNames []string       // declaration order
	consts   map[string]bool

	// Function declarations directly in the body, defined before any other
	// code runs.
	funDecls []*FunctionDecl

	usesArguments bool
	usesEval      bool
	hasWith       bool
	generator     bool
}

// SemanticAnalyzer collects the declarations of a body without descending
// into nested functions, and reports non-fatal problems.
type SemanticAnalyzer struct {
	scope       *funcScope
	inFunction  bool
	diagnostics []Diagnostic
}

// NewSemanticAnalyzer creates an analyzer for a function body when
// inFunction is set, otherwise for a script.
func NewSemanticAnalyzer(inFunction bool) *SemanticAnalyzer {
	return &SemanticAnalyzer{
		inFunction: inFunction,
		scope: &funcScope{
			params: make(map[string]int),
			vars:   make(map[string]int),
			consts: make(map[string]bool),
		},
	}
}

// Diagnostics returns accumulated warnings.
func (s *SemanticAnalyzer) Diagnostics() []Diagnostic {
	return s.diagnostics
}

// warnAt records a warning with position information.
func (s *SemanticAnalyzer) warnAt(node Node, format string, args ...interface{}) {
	s.diagnostics = append(s.diagnostics, Diagnostic{
		Pos:     node.Span().Start,
		Msg:     fmt.Sprintf(format, args...),
		Warning: true,
	})
}

// AnalyzeFunction analyzes a function's parameters and body.
func (s *SemanticAnalyzer) AnalyzeFunction(fn *FunctionNode) *funcScope {
	for i, p := range fn.Params {
		if _, dup := s.scope.params[p]; dup {
			s.warnAt(fn, "duplicate formal argument %s", p)
		}
		s.scope.params[p] = i
	}
	s.scope.generator = fn.Generator
	s.analyzeBody(fn.Body)
	return s.scope
}

// AnalyzeProgram analyzes a top-level script.
func (s *SemanticAnalyzer) AnalyzeProgram(prog *Program) *funcScope {
	s.analyzeBody(prog.Body)
	return s.scope
}

func (s *SemanticAnalyzer) analyzeBody(body []Stmt) {
	for _, st := range body {
		switch st := st.(type) {
		case *FunctionDecl:
			if s.inFunction {
				s.scope.funDecls = append(s.scope.funDecls, st)
			}
		case *VarDecl:
			// A let at body level binds like a var.
			if st.Kind == DeclLet {
				for _, d := range st.Decls {
					for _, name := range patternNames(d.Target) {
						s.declare(name, DeclVar)
					}
				}
			}
		}
	}
	for _, st := range body {
		Inspect(st, s.visit)
	}
	s.checkUnreachableCode(body)
}

// declare adds a hoisted binding. Parameters shadow vars of the same name.
func (s *SemanticAnalyzer) declare(name string, kind DeclKind) {
	if _, isParam := s.scope.params[name]; isParam && s.inFunction {
		return
	}
	if _, ok := s.scope.vars[name]; !ok {
		s.scope.vars[name] = len(s.scope.varNames)
		s.scope.varNames = append(s.scope.varNames, name)
	}
	if kind == DeclConst {
		s.scope.consts[name] = true
	}
}

func (s *SemanticAnalyzer) visit(n Node) bool {
	switch n := n.(type) {
	case *FunctionNode:
		return false
	case *FunctionDecl:
		s.declare(n.Func.Name, DeclVar)
		return false
	case *VarDecl:
		if n.Kind != DeclLet {
			for _, d := range n.Decls {
				for _, name := range patternNames(d.Target) {
					s.declare(name, n.Kind)
				}
			}
		}
	case *WithStmt:
		s.scope.hasWith = true
	case *Identifier:
		if n.Name == "arguments" {
			s.scope.usesArguments = true
		}
	case *CallExpr:
		if id, ok := n.Callee.(*Identifier); ok && id.Name == "eval" {
			s.scope.usesEval = true
		}
	case *YieldExpr:
		s.scope.generator = true
	case *BlockStmt:
		s.checkUnreachableCode(n.Body)
	}
	return true
}

// checkUnreachableCode warns once about statements following an
// unconditional transfer of control.
func (s *SemanticAnalyzer) checkUnreachableCode(stmts []Stmt) {
	for i, st := range stmts {
		switch st.(type) {
		case *ReturnStmt, *ThrowStmt, *BreakStmt, *ContinueStmt:
			for _, next := range stmts[i+1:] {
				if _, ok := next.(*FunctionDecl); ok {
					continue
				}
				s.warnAt(next, "unreachable code")
				return
			}
			return
		}
	}
}

// patternNames returns the names bound by a declaration target, which is an
// identifier or a destructuring pattern.
func patternNames(target Expr) []string {
	var names []string
	var walk func(e Expr)
	walk = func(e Expr) {
		switch e := e.(type) {
		case *Identifier:
			names = append(names, e.Name)
		case *ArrayLiteral:
			for _, el := range e.Elements {
				walk(el)
			}
		case *ObjectLiteral:
			for _, p := range e.Properties {
				walk(p.Value)
			}
		}
	}
	walk(target)
	return names
}

// letNames returns the names bound by let declarations directly in stmts.
func letNames(stmts []Stmt) []string {
	var names []string
	for _, st := range stmts {
		if vd, ok := st.(*VarDecl); ok && vd.Kind == DeclLet {
			for _, d := range vd.Decls {
				names = appendUnique(names, patternNames(d.Target)...)
			}
		}
	}
	return names
}

func appendUnique(list []string, names ...string) []string {
outer:
	for _, n := range names {
		for _, have := range list {
			if have == n {
				continue outer
			}
		}
		list = append(list, n)
	}
	return list
}
