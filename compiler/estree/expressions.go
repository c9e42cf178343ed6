package estree

import (
	"errors"

	json "github.com/goccy/go-json"

	"github.com/chazu/jsbc/compiler"
)

var errNull = errors.New("null node")

var binaryOps = map[string]compiler.BinaryOp{
	"|":          compiler.BinBitOr,
	"^":          compiler.BinBitXor,
	"&":          compiler.BinBitAnd,
	"==":         compiler.BinEq,
	"!=":         compiler.BinNe,
	"===":        compiler.BinStrictEq,
	"!==":        compiler.BinStrictNe,
	"<":          compiler.BinLt,
	"<=":         compiler.BinLe,
	">":          compiler.BinGt,
	">=":         compiler.BinGe,
	"<<":         compiler.BinLsh,
	">>":         compiler.BinRsh,
	">>>":        compiler.BinUrsh,
	"+":          compiler.BinAdd,
	"-":          compiler.BinSub,
	"*":          compiler.BinMul,
	"/":          compiler.BinDiv,
	"%":          compiler.BinMod,
	"in":         compiler.BinIn,
	"instanceof": compiler.BinInstanceOf,
}

var unaryOps = map[string]compiler.UnaryOp{
	"!":      compiler.UnaryNot,
	"~":      compiler.UnaryBitNot,
	"-":      compiler.UnaryNeg,
	"+":      compiler.UnaryPos,
	"typeof": compiler.UnaryTypeOf,
	"void":   compiler.UnaryVoid,
}

var assignOps = map[string]compiler.AssignOp{
	"=":    compiler.AssignPlain,
	"|=":   compiler.AssignBitOr,
	"^=":   compiler.AssignBitXor,
	"&=":   compiler.AssignBitAnd,
	"<<=":  compiler.AssignLsh,
	">>=":  compiler.AssignRsh,
	">>>=": compiler.AssignUrsh,
	"+=":   compiler.AssignAdd,
	"-=":   compiler.AssignSub,
	"*=":   compiler.AssignMul,
	"/=":   compiler.AssignDiv,
	"%=":   compiler.AssignMod,
}

func (d *decoder) requiredExpr(parent, child *node, field string) (compiler.Expr, error) {
	if child == nil {
		return nil, malformed(parent, field)
	}
	return d.expression(child)
}

func (d *decoder) expressions(list []*node) ([]compiler.Expr, error) {
	out := make([]compiler.Expr, 0, len(list))
	for _, n := range list {
		if n == nil {
			return nil, &Error{Type: "Expression", Err: errNull}
		}
		e, err := d.expression(n)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// pattern decodes a binding or assignment target. Array and object
// patterns share the literal node types.
func (d *decoder) pattern(n *node) (compiler.Expr, error) {
	switch n.Type {
	case "Identifier", "ArrayPattern", "ObjectPattern", "ArrayExpression",
		"ObjectExpression", "MemberExpression":
		return d.expression(n)
	}
	return nil, unsupported(n)
}

func (d *decoder) expression(n *node) (compiler.Expr, error) {
	sp := span(n)
	switch n.Type {
	case "Identifier":
		if n.Name == "" {
			return nil, malformed(n, "name")
		}
		return &compiler.Identifier{SpanVal: sp, Name: n.Name}, nil

	case "Literal":
		return d.literal(n)

	case "ThisExpression":
		return &compiler.ThisExpr{SpanVal: sp}, nil

	case "ArrayExpression", "ArrayPattern":
		a := &compiler.ArrayLiteral{SpanVal: sp}
		for _, en := range n.Elements {
			if en == nil {
				a.Elements = append(a.Elements, &compiler.Hole{SpanVal: sp})
				continue
			}
			e, err := d.expression(en)
			if err != nil {
				return nil, err
			}
			a.Elements = append(a.Elements, e)
		}
		return a, nil

	case "ObjectExpression", "ObjectPattern":
		return d.object(n)

	case "FunctionExpression":
		fn, err := d.function(n)
		if err != nil {
			return nil, err
		}
		return &compiler.FunctionExpr{SpanVal: sp, Func: fn}, nil

	case "UnaryExpression":
		arg, err := d.requiredExpr(n, n.Argument, "argument")
		if err != nil {
			return nil, err
		}
		if n.Operator == "delete" {
			return &compiler.DeleteExpr{SpanVal: sp, Target: arg}, nil
		}
		op, ok := unaryOps[n.Operator]
		if !ok {
			return nil, fail(n, "unknown operator %q", n.Operator)
		}
		return &compiler.UnaryExpr{SpanVal: sp, Op: op, Operand: arg}, nil

	case "UpdateExpression":
		arg, err := d.requiredExpr(n, n.Argument, "argument")
		if err != nil {
			return nil, err
		}
		if n.Operator != "++" && n.Operator != "--" {
			return nil, fail(n, "unknown operator %q", n.Operator)
		}
		return &compiler.UpdateExpr{SpanVal: sp, Increment: n.Operator == "++", Prefix: n.Prefix, Target: arg}, nil

	case "BinaryExpression":
		op, ok := binaryOps[n.Operator]
		if !ok {
			return nil, fail(n, "unknown operator %q", n.Operator)
		}
		left, right, err := d.operands(n)
		if err != nil {
			return nil, err
		}
		// Left-associative chains of one operator share a node.
		if chain, ok := left.(*compiler.BinaryExpr); ok && chain.Op == op {
			chain.Operands = append(chain.Operands, right)
			chain.SpanVal.End = sp.End
			return chain, nil
		}
		return &compiler.BinaryExpr{SpanVal: sp, Op: op, Operands: []compiler.Expr{left, right}}, nil

	case "LogicalExpression":
		var op compiler.LogicalOp
		switch n.Operator {
		case "||":
			op = compiler.LogicalOr
		case "&&":
			op = compiler.LogicalAnd
		default:
			return nil, fail(n, "unknown operator %q", n.Operator)
		}
		left, right, err := d.operands(n)
		if err != nil {
			return nil, err
		}
		if chain, ok := left.(*compiler.LogicalExpr); ok && chain.Op == op {
			chain.Operands = append(chain.Operands, right)
			chain.SpanVal.End = sp.End
			return chain, nil
		}
		return &compiler.LogicalExpr{SpanVal: sp, Op: op, Operands: []compiler.Expr{left, right}}, nil

	case "ConditionalExpression":
		test, err := d.requiredExpr(n, n.Test, "test")
		if err != nil {
			return nil, err
		}
		cn, err := decodeNode(n.Consequent)
		if err != nil || cn == nil {
			return nil, malformed(n, "consequent")
		}
		cons, err := d.expression(cn)
		if err != nil {
			return nil, err
		}
		alt, err := d.requiredExpr(n, n.Alternate, "alternate")
		if err != nil {
			return nil, err
		}
		return &compiler.ConditionalExpr{SpanVal: sp, Test: test, Consequent: cons, Alternate: alt}, nil

	case "AssignmentExpression":
		op, ok := assignOps[n.Operator]
		if !ok {
			return nil, fail(n, "unknown operator %q", n.Operator)
		}
		if n.Left == nil {
			return nil, malformed(n, "left")
		}
		target, err := d.pattern(n.Left)
		if err != nil {
			return nil, err
		}
		value, err := d.requiredExpr(n, n.Right, "right")
		if err != nil {
			return nil, err
		}
		return &compiler.AssignExpr{SpanVal: sp, Op: op, Target: target, Value: value}, nil

	case "SequenceExpression":
		exprs, err := d.expressions(n.Expressions)
		if err != nil {
			return nil, err
		}
		return &compiler.SequenceExpr{SpanVal: sp, Exprs: exprs}, nil

	case "MemberExpression":
		obj, err := d.requiredExpr(n, n.Object, "object")
		if err != nil {
			return nil, err
		}
		if n.Property == nil {
			return nil, malformed(n, "property")
		}
		if !n.Computed {
			if n.Property.Type != "Identifier" {
				return nil, fail(n, "non-computed property is %s", n.Property.Type)
			}
			return &compiler.MemberExpr{SpanVal: sp, Object: obj, Property: n.Property.Name}, nil
		}
		index, err := d.expression(n.Property)
		if err != nil {
			return nil, err
		}
		return &compiler.IndexExpr{SpanVal: sp, Object: obj, Index: index}, nil

	case "CallExpression", "NewExpression":
		callee, err := d.requiredExpr(n, n.Callee, "callee")
		if err != nil {
			return nil, err
		}
		args, err := d.expressions(n.Arguments)
		if err != nil {
			return nil, err
		}
		if n.Type == "NewExpression" {
			return &compiler.NewExpr{SpanVal: sp, Callee: callee, Args: args}, nil
		}
		return &compiler.CallExpr{SpanVal: sp, Callee: callee, Args: args}, nil

	case "YieldExpression":
		y := &compiler.YieldExpr{SpanVal: sp}
		if n.Argument != nil {
			v, err := d.expression(n.Argument)
			if err != nil {
				return nil, err
			}
			y.Value = v
		}
		return y, nil

	case "LetExpression":
		decls, err := d.declarators(n, n.Head)
		if err != nil {
			return nil, err
		}
		bn, err := decodeNode(n.Body)
		if err != nil || bn == nil {
			return nil, malformed(n, "body")
		}
		body, err := d.expression(bn)
		if err != nil {
			return nil, err
		}
		return &compiler.LetExpr{SpanVal: sp, Decls: decls, Body: body}, nil
	}
	return nil, unsupported(n)
}

func (d *decoder) operands(n *node) (compiler.Expr, compiler.Expr, error) {
	left, err := d.requiredExpr(n, n.Left, "left")
	if err != nil {
		return nil, nil, err
	}
	right, err := d.requiredExpr(n, n.Right, "right")
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (d *decoder) literal(n *node) (compiler.Expr, error) {
	sp := span(n)
	if n.Regex != nil {
		return &compiler.RegExpLiteral{SpanVal: sp, Pattern: n.Regex.Pattern, Flags: n.Regex.Flags}, nil
	}
	if isNull(n.Value) {
		return &compiler.NullLiteral{SpanVal: sp}, nil
	}
	var v any
	if err := json.Unmarshal(n.Value, &v); err != nil {
		return nil, fail(n, "value: %v", err)
	}
	switch v := v.(type) {
	case float64:
		return &compiler.NumberLiteral{SpanVal: sp, Value: v}, nil
	case string:
		return &compiler.StringLiteral{SpanVal: sp, Value: v}, nil
	case bool:
		return &compiler.BooleanLiteral{SpanVal: sp, Value: v}, nil
	}
	// A RegExp object serialized without its regex field.
	return nil, fail(n, "literal value has no JSON representation")
}

func (d *decoder) object(n *node) (compiler.Expr, error) {
	o := &compiler.ObjectLiteral{SpanVal: span(n)}
	for _, pn := range n.Properties {
		if pn == nil || pn.Key == nil {
			return nil, malformed(n, "property key")
		}
		if pn.Computed || pn.Type != "Property" {
			return nil, unsupported(pn)
		}
		key, err := d.propertyKey(pn.Key)
		if err != nil {
			return nil, err
		}
		vn, err := decodeNode(pn.Value)
		if err != nil || vn == nil {
			return nil, malformed(pn, "value")
		}
		value, err := d.expression(vn)
		if err != nil {
			return nil, err
		}
		p := &compiler.Property{SpanVal: span(pn), Key: key, Value: value}
		switch pn.Kind {
		case "", "init":
			p.Kind = compiler.PropInit
		case "get":
			p.Kind = compiler.PropGet
		case "set":
			p.Kind = compiler.PropSet
		default:
			return nil, fail(pn, "unknown property kind %q", pn.Kind)
		}
		o.Properties = append(o.Properties, p)
	}
	return o, nil
}

func (d *decoder) propertyKey(n *node) (compiler.Expr, error) {
	switch n.Type {
	case "Identifier":
		return &compiler.Identifier{SpanVal: span(n), Name: n.Name}, nil
	case "Literal":
		key, err := d.literal(n)
		if err != nil {
			return nil, err
		}
		switch key.(type) {
		case *compiler.StringLiteral, *compiler.NumberLiteral:
			return key, nil
		}
	}
	return nil, fail(n, "invalid property key")
}
