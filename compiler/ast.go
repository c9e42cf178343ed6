package compiler

// ---------------------------------------------------------------------------
// AST: validated JavaScript syntax tree consumed by the code generator
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

// Expr is the interface for expression nodes.
type Expr interface {
	Node
	expr() // marker method
}

// Stmt is the interface for statement nodes.
type Stmt interface {
	Node
	stmt() // marker method
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// BinaryOp is a binary operator.
type BinaryOp uint8

const (
	BinBitOr BinaryOp = iota
	BinBitXor
	BinBitAnd
	BinEq
	BinNe
	BinStrictEq
	BinStrictNe
	BinLt
	BinLe
	BinGt
	BinGe
	BinLsh
	BinRsh
	BinUrsh
	BinAdd
	BinSub
	BinMul
	BinDiv
	BinMod
	BinIn
	BinInstanceOf
)

// LogicalOp is a short-circuit operator.
type LogicalOp uint8

const (
	LogicalOr LogicalOp = iota
	LogicalAnd
)

// UnaryOp is a prefix operator other than delete and ++/--.
type UnaryOp uint8

const (
	UnaryNot UnaryOp = iota
	UnaryBitNot
	UnaryNeg
	UnaryPos
	UnaryTypeOf
	UnaryVoid
)

// AssignOp is = or a compound assignment operator.
type AssignOp uint8

const (
	AssignPlain AssignOp = iota
	AssignBitOr
	AssignBitXor
	AssignBitAnd
	AssignLsh
	AssignRsh
	AssignUrsh
	AssignAdd
	AssignSub
	AssignMul
	AssignDiv
	AssignMod
)

// DeclKind is the keyword of a declaration.
type DeclKind uint8

const (
	DeclVar DeclKind = iota
	DeclConst
	DeclLet
)

func (k DeclKind) String() string {
	switch k {
	case DeclConst:
		return "const"
	case DeclLet:
		return "let"
	}
	return "var"
}

// ---------------------------------------------------------------------------
// Expression nodes
// ---------------------------------------------------------------------------

// NumberLiteral represents a numeric literal.
type NumberLiteral struct {
	SpanVal Span
	Value   float64
}

func (n *NumberLiteral) Span() Span { return n.SpanVal }
func (n *NumberLiteral) node()      {}
func (n *NumberLiteral) expr()      {}

// StringLiteral represents a string literal.
type StringLiteral struct {
	SpanVal Span
	Value   string
}

func (n *StringLiteral) Span() Span { return n.SpanVal }
func (n *StringLiteral) node()      {}
func (n *StringLiteral) expr()      {}

// BooleanLiteral represents true or false.
type BooleanLiteral struct {
	SpanVal Span
	Value   bool
}

func (n *BooleanLiteral) Span() Span { return n.SpanVal }
func (n *BooleanLiteral) node()      {}
func (n *BooleanLiteral) expr()      {}

// NullLiteral represents null.
type NullLiteral struct {
	SpanVal Span
}

func (n *NullLiteral) Span() Span { return n.SpanVal }
func (n *NullLiteral) node()      {}
func (n *NullLiteral) expr()      {}

// ThisExpr represents this.
type ThisExpr struct {
	SpanVal Span
}

func (n *ThisExpr) Span() Span { return n.SpanVal }
func (n *ThisExpr) node()      {}
func (n *ThisExpr) expr()      {}

// RegExpLiteral represents /pattern/flags.
type RegExpLiteral struct {
	SpanVal Span
	Pattern string
	Flags   string
}

func (n *RegExpLiteral) Span() Span { return n.SpanVal }
func (n *RegExpLiteral) node()      {}
func (n *RegExpLiteral) expr()      {}

// Identifier represents a name reference or binding target.
type Identifier struct {
	SpanVal Span
	Name    string
}

func (n *Identifier) Span() Span { return n.SpanVal }
func (n *Identifier) node()      {}
func (n *Identifier) expr()      {}

// Hole is an elided array element, as in [a, , b].
type Hole struct {
	SpanVal Span
}

func (n *Hole) Span() Span { return n.SpanVal }
func (n *Hole) node()      {}
func (n *Hole) expr()      {}

// ArrayLiteral is an array initializer, or an array pattern when it is the
// target of an assignment or declaration.
type ArrayLiteral struct {
	SpanVal  Span
	Elements []Expr
}

func (n *ArrayLiteral) Span() Span { return n.SpanVal }
func (n *ArrayLiteral) node()      {}
func (n *ArrayLiteral) expr()      {}

// PropertyKind distinguishes data properties from accessors.
type PropertyKind uint8

const (
	PropInit PropertyKind = iota
	PropGet
	PropSet
)

// Property is one entry of an object initializer. Key is an *Identifier,
// *StringLiteral or *NumberLiteral.
type Property struct {
	SpanVal Span
	Key     Expr
	Value   Expr
	Kind    PropertyKind
}

// ObjectLiteral is an object initializer, or an object pattern when it is the
// target of an assignment or declaration.
type ObjectLiteral struct {
	SpanVal    Span
	Properties []*Property
}

func (n *ObjectLiteral) Span() Span { return n.SpanVal }
func (n *ObjectLiteral) node()      {}
func (n *ObjectLiteral) expr()      {}

// FunctionExpr is a function expression.
type FunctionExpr struct {
	SpanVal Span
	Func    *FunctionNode
}

func (n *FunctionExpr) Span() Span { return n.SpanVal }
func (n *FunctionExpr) node()      {}
func (n *FunctionExpr) expr()      {}

// UnaryExpr is a prefix operator application.
type UnaryExpr struct {
	SpanVal Span
	Op      UnaryOp
	Operand Expr
}

func (n *UnaryExpr) Span() Span { return n.SpanVal }
func (n *UnaryExpr) node()      {}
func (n *UnaryExpr) expr()      {}

// UpdateExpr is ++ or -- in prefix or postfix position.
type UpdateExpr struct {
	SpanVal   Span
	Increment bool
	Prefix    bool
	Target    Expr
}

func (n *UpdateExpr) Span() Span { return n.SpanVal }
func (n *UpdateExpr) node()      {}
func (n *UpdateExpr) expr()      {}

// DeleteExpr is delete target.
type DeleteExpr struct {
	SpanVal Span
	Target  Expr
}

func (n *DeleteExpr) Span() Span { return n.SpanVal }
func (n *DeleteExpr) node()      {}
func (n *DeleteExpr) expr()      {}

// BinaryExpr is a left-associative chain of one operator: a+b+c is one node
// with three operands.
type BinaryExpr struct {
	SpanVal  Span
	Op       BinaryOp
	Operands []Expr
}

func (n *BinaryExpr) Span() Span { return n.SpanVal }
func (n *BinaryExpr) node()      {}
func (n *BinaryExpr) expr()      {}

// LogicalExpr is a chain of && or ||.
type LogicalExpr struct {
	SpanVal  Span
	Op       LogicalOp
	Operands []Expr
}

func (n *LogicalExpr) Span() Span { return n.SpanVal }
func (n *LogicalExpr) node()      {}
func (n *LogicalExpr) expr()      {}

// ConditionalExpr is test ? consequent : alternate.
type ConditionalExpr struct {
	SpanVal    Span
	Test       Expr
	Consequent Expr
	Alternate  Expr
}

func (n *ConditionalExpr) Span() Span { return n.SpanVal }
func (n *ConditionalExpr) node()      {}
func (n *ConditionalExpr) expr()      {}

// AssignExpr is target op= value.
type AssignExpr struct {
	SpanVal Span
	Op      AssignOp
	Target  Expr
	Value   Expr
}

func (n *AssignExpr) Span() Span { return n.SpanVal }
func (n *AssignExpr) node()      {}
func (n *AssignExpr) expr()      {}

// SequenceExpr is the comma operator.
type SequenceExpr struct {
	SpanVal Span
	Exprs   []Expr
}

func (n *SequenceExpr) Span() Span { return n.SpanVal }
func (n *SequenceExpr) node()      {}
func (n *SequenceExpr) expr()      {}

// MemberExpr is object.property.
type MemberExpr struct {
	SpanVal  Span
	Object   Expr
	Property string
}

func (n *MemberExpr) Span() Span { return n.SpanVal }
func (n *MemberExpr) node()      {}
func (n *MemberExpr) expr()      {}

// IndexExpr is object[index].
type IndexExpr struct {
	SpanVal Span
	Object  Expr
	Index   Expr
}

func (n *IndexExpr) Span() Span { return n.SpanVal }
func (n *IndexExpr) node()      {}
func (n *IndexExpr) expr()      {}

// CallExpr is callee(args).
type CallExpr struct {
	SpanVal Span
	Callee  Expr
	Args    []Expr
}

func (n *CallExpr) Span() Span { return n.SpanVal }
func (n *CallExpr) node()      {}
func (n *CallExpr) expr()      {}

// NewExpr is new callee(args).
type NewExpr struct {
	SpanVal Span
	Callee  Expr
	Args    []Expr
}

func (n *NewExpr) Span() Span { return n.SpanVal }
func (n *NewExpr) node()      {}
func (n *NewExpr) expr()      {}

// YieldExpr is yield value inside a generator.
type YieldExpr struct {
	SpanVal Span
	Value   Expr // nil for a bare yield
}

func (n *YieldExpr) Span() Span { return n.SpanVal }
func (n *YieldExpr) node()      {}
func (n *YieldExpr) expr()      {}

// LetExpr is let (bindings) body: the bindings are scoped to body.
type LetExpr struct {
	SpanVal Span
	Decls   []*Declarator
	Body    Expr
}

func (n *LetExpr) Span() Span { return n.SpanVal }
func (n *LetExpr) node()      {}
func (n *LetExpr) expr()      {}

// ---------------------------------------------------------------------------
// Statement nodes
// ---------------------------------------------------------------------------

// Program is a top-level script.
type Program struct {
	SpanVal Span
	Body    []Stmt
}

func (n *Program) Span() Span { return n.SpanVal }
func (n *Program) node()      {}

// FunctionNode is the shared payload of function declarations and
// expressions.
type FunctionNode struct {
	SpanVal   Span
	Name      string
	Params    []string
	Body      []Stmt
	Generator bool
}

func (n *FunctionNode) Span() Span { return n.SpanVal }
func (n *FunctionNode) node()      {}

// ExprStmt is an expression evaluated for effect.
type ExprStmt struct {
	SpanVal Span
	Expr    Expr
}

func (n *ExprStmt) Span() Span { return n.SpanVal }
func (n *ExprStmt) node()      {}
func (n *ExprStmt) stmt()      {}

// Declarator binds Target (an *Identifier or a pattern) to Init.
type Declarator struct {
	SpanVal Span
	Target  Expr
	Init    Expr
}

// VarDecl is a var, const or let declaration.
type VarDecl struct {
	SpanVal Span
	Kind    DeclKind
	Decls   []*Declarator
}

func (n *VarDecl) Span() Span { return n.SpanVal }
func (n *VarDecl) node()      {}
func (n *VarDecl) stmt()      {}

// FunctionDecl is a function declaration.
type FunctionDecl struct {
	SpanVal Span
	Func    *FunctionNode
}

func (n *FunctionDecl) Span() Span { return n.SpanVal }
func (n *FunctionDecl) node()      {}
func (n *FunctionDecl) stmt()      {}

// BlockStmt is a braced statement list. A block containing let
// declarations introduces a lexical scope.
type BlockStmt struct {
	SpanVal Span
	Body    []Stmt
}

func (n *BlockStmt) Span() Span { return n.SpanVal }
func (n *BlockStmt) node()      {}
func (n *BlockStmt) stmt()      {}

// EmptyStmt is a lone semicolon.
type EmptyStmt struct {
	SpanVal Span
}

func (n *EmptyStmt) Span() Span { return n.SpanVal }
func (n *EmptyStmt) node()      {}
func (n *EmptyStmt) stmt()      {}

// IfStmt is if (test) then else alt.
type IfStmt struct {
	SpanVal Span
	Test    Expr
	Then    Stmt
	Else    Stmt // may be nil
}

func (n *IfStmt) Span() Span { return n.SpanVal }
func (n *IfStmt) node()      {}
func (n *IfStmt) stmt()      {}

// WhileStmt is while (test) body.
type WhileStmt struct {
	SpanVal Span
	Test    Expr
	Body    Stmt
}

func (n *WhileStmt) Span() Span { return n.SpanVal }
func (n *WhileStmt) node()      {}
func (n *WhileStmt) stmt()      {}

// DoWhileStmt is do body while (test).
type DoWhileStmt struct {
	SpanVal Span
	Body    Stmt
	Test    Expr
}

func (n *DoWhileStmt) Span() Span { return n.SpanVal }
func (n *DoWhileStmt) node()      {}
func (n *DoWhileStmt) stmt()      {}

// ForStmt is for (init; test; update) body. Init is an Expr, a *VarDecl
// or nil.
type ForStmt struct {
	SpanVal Span
	Init    Node
	Test    Expr
	Update  Expr
	Body    Stmt
}

func (n *ForStmt) Span() Span { return n.SpanVal }
func (n *ForStmt) node()      {}
func (n *ForStmt) stmt()      {}

// ForInStmt is for (left in right) body or for each. Left is a *VarDecl
// with one declarator, or an assignment target expression.
type ForInStmt struct {
	SpanVal Span
	Left    Node
	Right   Expr
	Body    Stmt
	Each    bool
}

func (n *ForInStmt) Span() Span { return n.SpanVal }
func (n *ForInStmt) node()      {}
func (n *ForInStmt) stmt()      {}

// BreakStmt is break, optionally labeled.
type BreakStmt struct {
	SpanVal Span
	Label   string
}

func (n *BreakStmt) Span() Span { return n.SpanVal }
func (n *BreakStmt) node()      {}
func (n *BreakStmt) stmt()      {}

// ContinueStmt is continue, optionally labeled.
type ContinueStmt struct {
	SpanVal Span
	Label   string
}

func (n *ContinueStmt) Span() Span { return n.SpanVal }
func (n *ContinueStmt) node()      {}
func (n *ContinueStmt) stmt()      {}

// ReturnStmt is return with an optional value.
type ReturnStmt struct {
	SpanVal Span
	Value   Expr
}

func (n *ReturnStmt) Span() Span { return n.SpanVal }
func (n *ReturnStmt) node()      {}
func (n *ReturnStmt) stmt()      {}

// WithStmt is with (object) body.
type WithStmt struct {
	SpanVal Span
	Object  Expr
	Body    Stmt
}

func (n *WithStmt) Span() Span { return n.SpanVal }
func (n *WithStmt) node()      {}
func (n *WithStmt) stmt()      {}

// SwitchCase is one case clause; Test is nil for default.
type SwitchCase struct {
	SpanVal Span
	Test    Expr
	Body    []Stmt
}

// SwitchStmt is switch (discriminant) { cases }. Let declarations directly
// in case bodies scope to the whole switch body.
type SwitchStmt struct {
	SpanVal      Span
	Discriminant Expr
	Cases        []*SwitchCase
}

func (n *SwitchStmt) Span() Span { return n.SpanVal }
func (n *SwitchStmt) node()      {}
func (n *SwitchStmt) stmt()      {}

// ThrowStmt is throw value.
type ThrowStmt struct {
	SpanVal Span
	Value   Expr
}

func (n *ThrowStmt) Span() Span { return n.SpanVal }
func (n *ThrowStmt) node()      {}
func (n *ThrowStmt) stmt()      {}

// CatchClause is catch (param if guard) body.
type CatchClause struct {
	SpanVal Span
	Param   Expr // *Identifier or pattern
	Guard   Expr // may be nil
	Body    *BlockStmt
}

// TryStmt is try/catch/finally. Finally may be nil; Catches may be empty
// only when Finally is set.
type TryStmt struct {
	SpanVal Span
	Block   *BlockStmt
	Catches []*CatchClause
	Finally *BlockStmt
}

func (n *TryStmt) Span() Span { return n.SpanVal }
func (n *TryStmt) node()      {}
func (n *TryStmt) stmt()      {}

// LabeledStmt is label: body.
type LabeledStmt struct {
	SpanVal Span
	Label   string
	Body    Stmt
}

func (n *LabeledStmt) Span() Span { return n.SpanVal }
func (n *LabeledStmt) node()      {}
func (n *LabeledStmt) stmt()      {}

// DebuggerStmt is debugger.
type DebuggerStmt struct {
	SpanVal Span
}

func (n *DebuggerStmt) Span() Span { return n.SpanVal }
func (n *DebuggerStmt) node()      {}
func (n *DebuggerStmt) stmt()      {}
