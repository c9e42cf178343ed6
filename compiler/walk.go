package compiler

// Inspect traverses the tree rooted at n in depth-first order, calling f for
// each node. If f returns false the node's children are skipped. Nested
// functions are visited through their *FunctionNode.
func Inspect(n Node, f func(Node) bool) {
	if n == nil || !f(n) {
		return
	}
	switch n := n.(type) {
	case *Program:
		inspectStmts(n.Body, f)
	case *FunctionNode:
		inspectStmts(n.Body, f)

	case *ArrayLiteral:
		inspectExprs(n.Elements, f)
	case *ObjectLiteral:
		for _, p := range n.Properties {
			inspectExpr(p.Key, f)
			inspectExpr(p.Value, f)
		}
	case *FunctionExpr:
		Inspect(n.Func, f)
	case *UnaryExpr:
		inspectExpr(n.Operand, f)
	case *UpdateExpr:
		inspectExpr(n.Target, f)
	case *DeleteExpr:
		inspectExpr(n.Target, f)
	case *BinaryExpr:
		inspectExprs(n.Operands, f)
	case *LogicalExpr:
		inspectExprs(n.Operands, f)
	case *ConditionalExpr:
		inspectExpr(n.Test, f)
		inspectExpr(n.Consequent, f)
		inspectExpr(n.Alternate, f)
	case *AssignExpr:
		inspectExpr(n.Target, f)
		inspectExpr(n.Value, f)
	case *SequenceExpr:
		inspectExprs(n.Exprs, f)
	case *MemberExpr:
		inspectExpr(n.Object, f)
	case *IndexExpr:
		inspectExpr(n.Object, f)
		inspectExpr(n.Index, f)
	case *CallExpr:
		inspectExpr(n.Callee, f)
		inspectExprs(n.Args, f)
	case *NewExpr:
		inspectExpr(n.Callee, f)
		inspectExprs(n.Args, f)
	case *YieldExpr:
		inspectExpr(n.Value, f)
	case *LetExpr:
		inspectDecls(n.Decls, f)
		inspectExpr(n.Body, f)

	case *ExprStmt:
		inspectExpr(n.Expr, f)
	case *VarDecl:
		inspectDecls(n.Decls, f)
	case *FunctionDecl:
		Inspect(n.Func, f)
	case *BlockStmt:
		inspectStmts(n.Body, f)
	case *IfStmt:
		inspectExpr(n.Test, f)
		inspectStmt(n.Then, f)
		inspectStmt(n.Else, f)
	case *WhileStmt:
		inspectExpr(n.Test, f)
		inspectStmt(n.Body, f)
	case *DoWhileStmt:
		inspectStmt(n.Body, f)
		inspectExpr(n.Test, f)
	case *ForStmt:
		if n.Init != nil {
			Inspect(n.Init, f)
		}
		inspectExpr(n.Test, f)
		inspectExpr(n.Update, f)
		inspectStmt(n.Body, f)
	case *ForInStmt:
		if n.Left != nil {
			Inspect(n.Left, f)
		}
		inspectExpr(n.Right, f)
		inspectStmt(n.Body, f)
	case *ReturnStmt:
		inspectExpr(n.Value, f)
	case *WithStmt:
		inspectExpr(n.Object, f)
		inspectStmt(n.Body, f)
	case *SwitchStmt:
		inspectExpr(n.Discriminant, f)
		for _, c := range n.Cases {
			inspectExpr(c.Test, f)
			inspectStmts(c.Body, f)
		}
	case *ThrowStmt:
		inspectExpr(n.Value, f)
	case *TryStmt:
		inspectStmt(n.Block, f)
		for _, c := range n.Catches {
			inspectExpr(c.Param, f)
			inspectExpr(c.Guard, f)
			inspectStmt(c.Body, f)
		}
		if n.Finally != nil {
			inspectStmt(n.Finally, f)
		}
	case *LabeledStmt:
		inspectStmt(n.Body, f)
	}
}

func inspectExpr(e Expr, f func(Node) bool) {
	if e != nil {
		Inspect(e, f)
	}
}

func inspectStmt(s Stmt, f func(Node) bool) {
	if s != nil {
		Inspect(s, f)
	}
}

func inspectExprs(list []Expr, f func(Node) bool) {
	for _, e := range list {
		inspectExpr(e, f)
	}
}

func inspectStmts(list []Stmt, f func(Node) bool) {
	for _, s := range list {
		inspectStmt(s, f)
	}
}

func inspectDecls(list []*Declarator, f func(Node) bool) {
	for _, d := range list {
		inspectExpr(d.Target, f)
		inspectExpr(d.Init, f)
	}
}
