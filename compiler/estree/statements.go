package estree

import (
	"github.com/chazu/jsbc/compiler"
)

func (d *decoder) statement(n *node) (compiler.Stmt, error) {
	if n == nil {
		return nil, &Error{Type: "Statement", Err: errNull}
	}
	sp := span(n)
	switch n.Type {
	case "EmptyStatement":
		return &compiler.EmptyStmt{SpanVal: sp}, nil

	case "DebuggerStatement":
		return &compiler.DebuggerStmt{SpanVal: sp}, nil

	case "ExpressionStatement":
		en, err := decodeNode(n.Expression)
		if err != nil || en == nil {
			return nil, malformed(n, "expression")
		}
		e, err := d.expression(en)
		if err != nil {
			return nil, err
		}
		return &compiler.ExprStmt{SpanVal: sp, Expr: e}, nil

	case "BlockStatement":
		return d.block(n)

	case "VariableDeclaration":
		return d.varDecl(n)

	case "FunctionDeclaration":
		fn, err := d.function(n)
		if err != nil {
			return nil, err
		}
		if fn.Name == "" {
			return nil, malformed(n, "id")
		}
		return &compiler.FunctionDecl{SpanVal: sp, Func: fn}, nil

	case "IfStatement":
		test, err := d.requiredExpr(n, n.Test, "test")
		if err != nil {
			return nil, err
		}
		cn, err := decodeNode(n.Consequent)
		if err != nil || cn == nil {
			return nil, malformed(n, "consequent")
		}
		then, err := d.statement(cn)
		if err != nil {
			return nil, err
		}
		s := &compiler.IfStmt{SpanVal: sp, Test: test, Then: then}
		if n.Alternate != nil {
			if s.Else, err = d.statement(n.Alternate); err != nil {
				return nil, err
			}
		}
		return s, nil

	case "WhileStatement":
		test, err := d.requiredExpr(n, n.Test, "test")
		if err != nil {
			return nil, err
		}
		body, err := d.bodyStatement(n)
		if err != nil {
			return nil, err
		}
		return &compiler.WhileStmt{SpanVal: sp, Test: test, Body: body}, nil

	case "DoWhileStatement":
		body, err := d.bodyStatement(n)
		if err != nil {
			return nil, err
		}
		test, err := d.requiredExpr(n, n.Test, "test")
		if err != nil {
			return nil, err
		}
		return &compiler.DoWhileStmt{SpanVal: sp, Body: body, Test: test}, nil

	case "ForStatement":
		return d.forStmt(n)

	case "ForInStatement":
		return d.forInStmt(n, n.Each)

	case "ForEachStatement":
		return d.forInStmt(n, true)

	case "BreakStatement":
		label, err := optionalIdentifier(n.Label)
		if err != nil {
			return nil, err
		}
		return &compiler.BreakStmt{SpanVal: sp, Label: label}, nil

	case "ContinueStatement":
		label, err := optionalIdentifier(n.Label)
		if err != nil {
			return nil, err
		}
		return &compiler.ContinueStmt{SpanVal: sp, Label: label}, nil

	case "ReturnStatement":
		s := &compiler.ReturnStmt{SpanVal: sp}
		if n.Argument != nil {
			v, err := d.expression(n.Argument)
			if err != nil {
				return nil, err
			}
			s.Value = v
		}
		return s, nil

	case "WithStatement":
		obj, err := d.requiredExpr(n, n.Object, "object")
		if err != nil {
			return nil, err
		}
		body, err := d.bodyStatement(n)
		if err != nil {
			return nil, err
		}
		return &compiler.WithStmt{SpanVal: sp, Object: obj, Body: body}, nil

	case "SwitchStatement":
		return d.switchStmt(n)

	case "ThrowStatement":
		v, err := d.requiredExpr(n, n.Argument, "argument")
		if err != nil {
			return nil, err
		}
		return &compiler.ThrowStmt{SpanVal: sp, Value: v}, nil

	case "TryStatement":
		return d.tryStmt(n)

	case "LabeledStatement":
		label, err := optionalIdentifier(n.Label)
		if err != nil {
			return nil, err
		}
		if label == "" {
			return nil, malformed(n, "label")
		}
		body, err := d.bodyStatement(n)
		if err != nil {
			return nil, err
		}
		return &compiler.LabeledStmt{SpanVal: sp, Label: label, Body: body}, nil
	}
	return nil, unsupported(n)
}

// bodyStatement decodes a body field holding a single statement.
func (d *decoder) bodyStatement(n *node) (compiler.Stmt, error) {
	bn, err := decodeNode(n.Body)
	if err != nil || bn == nil {
		return nil, malformed(n, "body")
	}
	return d.statement(bn)
}

func (d *decoder) block(n *node) (*compiler.BlockStmt, error) {
	if n.Type != "BlockStatement" {
		return nil, fail(n, "expected BlockStatement")
	}
	list, err := decodeList(n.Body)
	if err != nil {
		return nil, fail(n, "body: %v", err)
	}
	body, err := d.statements(list)
	if err != nil {
		return nil, err
	}
	return &compiler.BlockStmt{SpanVal: span(n), Body: body}, nil
}

func declKind(n *node) (compiler.DeclKind, error) {
	switch n.Kind {
	case "", "var":
		return compiler.DeclVar, nil
	case "let":
		return compiler.DeclLet, nil
	case "const":
		return compiler.DeclConst, nil
	}
	return 0, fail(n, "unknown declaration kind %q", n.Kind)
}

func (d *decoder) varDecl(n *node) (*compiler.VarDecl, error) {
	kind, err := declKind(n)
	if err != nil {
		return nil, err
	}
	decls, err := d.declarators(n, n.Declarations)
	if err != nil {
		return nil, err
	}
	return &compiler.VarDecl{SpanVal: span(n), Kind: kind, Decls: decls}, nil
}

func (d *decoder) declarators(parent *node, list []*node) ([]*compiler.Declarator, error) {
	if len(list) == 0 {
		return nil, malformed(parent, "declarations")
	}
	out := make([]*compiler.Declarator, 0, len(list))
	for _, dn := range list {
		if dn == nil || dn.ID == nil {
			return nil, malformed(parent, "declarator id")
		}
		target, err := d.pattern(dn.ID)
		if err != nil {
			return nil, err
		}
		decl := &compiler.Declarator{SpanVal: span(dn), Target: target}
		if dn.Init != nil {
			if decl.Init, err = d.expression(dn.Init); err != nil {
				return nil, err
			}
		}
		out = append(out, decl)
	}
	return out, nil
}

func (d *decoder) forStmt(n *node) (compiler.Stmt, error) {
	s := &compiler.ForStmt{SpanVal: span(n)}
	var err error
	if n.Init != nil {
		if n.Init.Type == "VariableDeclaration" {
			s.Init, err = d.varDecl(n.Init)
		} else {
			s.Init, err = d.expression(n.Init)
		}
		if err != nil {
			return nil, err
		}
	}
	if n.Test != nil {
		if s.Test, err = d.expression(n.Test); err != nil {
			return nil, err
		}
	}
	if n.Update != nil {
		if s.Update, err = d.expression(n.Update); err != nil {
			return nil, err
		}
	}
	if s.Body, err = d.bodyStatement(n); err != nil {
		return nil, err
	}
	return s, nil
}

func (d *decoder) forInStmt(n *node, each bool) (compiler.Stmt, error) {
	if n.Left == nil {
		return nil, malformed(n, "left")
	}
	s := &compiler.ForInStmt{SpanVal: span(n), Each: each}
	var err error
	if n.Left.Type == "VariableDeclaration" {
		decl, err := d.varDecl(n.Left)
		if err != nil {
			return nil, err
		}
		if len(decl.Decls) != 1 {
			return nil, fail(n, "for-in declares %d variables", len(decl.Decls))
		}
		s.Left = decl
	} else if s.Left, err = d.pattern(n.Left); err != nil {
		return nil, err
	}
	if s.Right, err = d.requiredExpr(n, n.Right, "right"); err != nil {
		return nil, err
	}
	if s.Body, err = d.bodyStatement(n); err != nil {
		return nil, err
	}
	return s, nil
}

func (d *decoder) switchStmt(n *node) (compiler.Stmt, error) {
	disc, err := d.requiredExpr(n, n.Discriminant, "discriminant")
	if err != nil {
		return nil, err
	}
	s := &compiler.SwitchStmt{SpanVal: span(n), Discriminant: disc}
	for _, cn := range n.Cases {
		if cn == nil {
			return nil, malformed(n, "case")
		}
		c := &compiler.SwitchCase{SpanVal: span(cn)}
		if cn.Test != nil {
			if c.Test, err = d.expression(cn.Test); err != nil {
				return nil, err
			}
		}
		list, err := decodeList(cn.Consequent)
		if err != nil {
			return nil, fail(cn, "consequent: %v", err)
		}
		if c.Body, err = d.statements(list); err != nil {
			return nil, err
		}
		s.Cases = append(s.Cases, c)
	}
	return s, nil
}

// tryStmt accepts both the standard single handler and SpiderMonkey's
// guardedHandlers plus handler, or the older handlers array.
func (d *decoder) tryStmt(n *node) (compiler.Stmt, error) {
	if n.Block == nil {
		return nil, malformed(n, "block")
	}
	block, err := d.block(n.Block)
	if err != nil {
		return nil, err
	}
	s := &compiler.TryStmt{SpanVal: span(n), Block: block}

	handlers := append([]*node{}, n.Guarded...)
	handlers = append(handlers, n.Handlers...)
	if n.Handler != nil {
		handlers = append(handlers, n.Handler)
	}
	for _, hn := range handlers {
		c, err := d.catchClause(hn)
		if err != nil {
			return nil, err
		}
		s.Catches = append(s.Catches, c)
	}
	if n.Finalizer != nil {
		if s.Finally, err = d.block(n.Finalizer); err != nil {
			return nil, err
		}
	}
	if len(s.Catches) == 0 && s.Finally == nil {
		return nil, fail(n, "try without catch or finally")
	}
	return s, nil
}

func (d *decoder) catchClause(n *node) (*compiler.CatchClause, error) {
	if n.Type != "CatchClause" {
		return nil, fail(n, "expected CatchClause")
	}
	if n.Param == nil {
		return nil, malformed(n, "param")
	}
	param, err := d.pattern(n.Param)
	if err != nil {
		return nil, err
	}
	c := &compiler.CatchClause{SpanVal: span(n), Param: param}
	if n.Guard != nil {
		if c.Guard, err = d.expression(n.Guard); err != nil {
			return nil, err
		}
	}
	bn, err := decodeNode(n.Body)
	if err != nil || bn == nil {
		return nil, malformed(n, "body")
	}
	if c.Body, err = d.block(bn); err != nil {
		return nil, err
	}
	return c, nil
}

// function decodes a function declaration or expression. Expression
// closures, whose body is an expression, become a single return.
func (d *decoder) function(n *node) (*compiler.FunctionNode, error) {
	name, err := optionalIdentifier(n.ID)
	if err != nil {
		return nil, err
	}
	fn := &compiler.FunctionNode{SpanVal: span(n), Name: name, Generator: n.Generator}
	for _, p := range n.Params {
		if p == nil || p.Type != "Identifier" {
			return nil, &Error{Pos: position(n), Type: "parameter pattern", Err: ErrUnsupported}
		}
		fn.Params = append(fn.Params, p.Name)
	}

	bn, err := decodeNode(n.Body)
	if err != nil || bn == nil {
		return nil, malformed(n, "body")
	}
	if bn.Type == "BlockStatement" {
		b, err := d.block(bn)
		if err != nil {
			return nil, err
		}
		fn.Body = b.Body
		return fn, nil
	}
	e, err := d.expression(bn)
	if err != nil {
		return nil, err
	}
	fn.Body = []compiler.Stmt{&compiler.ReturnStmt{SpanVal: span(bn), Value: e}}
	return fn, nil
}
