package compiler_test

import (
	"testing"

	"github.com/chazu/jsbc/compiler"
	"github.com/chazu/jsbc/compiler/estree"
)

// ---------------------------------------------------------------------------
// FuzzCompile: decoded trees compile without panics into well-formed code.
// ---------------------------------------------------------------------------

func FuzzCompile(f *testing.F) {
	// Seed corpus: ESTree programs covering each statement form
	seeds := []string{
		`{"type":"Program","body":[]}`,
		// Expressions
		`{"type":"Program","body":[{"type":"ExpressionStatement","expression":
		  {"type":"BinaryExpression","operator":"*","left":{"type":"Identifier","name":"a"},"right":{"type":"Literal","value":3}}}]}`,
		`{"type":"Program","body":[{"type":"ExpressionStatement","expression":
		  {"type":"LogicalExpression","operator":"||","left":{"type":"Identifier","name":"a"},"right":{"type":"Identifier","name":"b"}}}]}`,
		`{"type":"Program","body":[{"type":"ExpressionStatement","expression":
		  {"type":"ConditionalExpression","test":{"type":"Identifier","name":"a"},
		   "consequent":{"type":"Literal","value":1},"alternate":{"type":"Literal","value":"s"}}}]}`,
		`{"type":"Program","body":[{"type":"ExpressionStatement","expression":
		  {"type":"ArrayExpression","elements":[{"type":"Literal","value":1},null,{"type":"Literal","value":true}]}}]}`,
		`{"type":"Program","body":[{"type":"ExpressionStatement","expression":
		  {"type":"ObjectExpression","properties":[{"type":"Property","kind":"init",
		   "key":{"type":"Identifier","name":"k"},"value":{"type":"Literal","value":"v"}}]}}]}`,
		// Declarations
		`{"type":"Program","body":[{"type":"VariableDeclaration","kind":"var","declarations":[
		  {"type":"VariableDeclarator","id":{"type":"Identifier","name":"v"},"init":{"type":"Literal","value":1}}]}]}`,
		`{"type":"Program","body":[{"type":"FunctionDeclaration","id":{"type":"Identifier","name":"f"},
		  "params":[{"type":"Identifier","name":"a"}],
		  "body":{"type":"BlockStatement","body":[{"type":"ReturnStatement",
		   "argument":{"type":"Identifier","name":"a"}}]}}]}`,
		// Control flow
		`{"type":"Program","body":[{"type":"IfStatement","test":{"type":"Identifier","name":"a"},
		  "consequent":{"type":"ExpressionStatement","expression":{"type":"CallExpression",
		   "callee":{"type":"Identifier","name":"f"},"arguments":[]}},"alternate":null}]}`,
		`{"type":"Program","body":[{"type":"WhileStatement","test":{"type":"Identifier","name":"a"},
		  "body":{"type":"BreakStatement","label":null}}]}`,
		`{"type":"Program","body":[{"type":"ForInStatement","each":false,
		  "left":{"type":"VariableDeclaration","kind":"var","declarations":[
		   {"type":"VariableDeclarator","id":{"type":"Identifier","name":"k"},"init":null}]},
		  "right":{"type":"Identifier","name":"o"},
		  "body":{"type":"ExpressionStatement","expression":{"type":"Identifier","name":"k"}}}]}`,
		`{"type":"Program","body":[{"type":"SwitchStatement","discriminant":{"type":"Identifier","name":"x"},
		  "cases":[{"type":"SwitchCase","test":{"type":"Literal","value":1},"consequent":[
		   {"type":"BreakStatement","label":null}]},
		  {"type":"SwitchCase","test":null,"consequent":[]}]}]}`,
		`{"type":"Program","body":[{"type":"TryStatement",
		  "block":{"type":"BlockStatement","body":[]},
		  "handler":{"type":"CatchClause","param":{"type":"Identifier","name":"e"},
		   "body":{"type":"BlockStatement","body":[]}},
		  "finalizer":{"type":"BlockStatement","body":[]}}]}`,
		// Malformed
		`{"type":"Program"}`,
		`{"type":"ReturnStatement"}`,
		`[]`,
		``,
	}
	for _, s := range seeds {
		f.Add([]byte(s))
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("compiler panicked on input %q: %v", data, r)
			}
		}()

		prog, err := estree.Decode(data)
		if err != nil {
			return
		}
		c := compiler.NewCompiler(nil, nil, compiler.NewArena(0, 1<<24))
		s, err := c.CompileProgram(prog, compiler.Options{})
		if err != nil {
			return
		}
		compiler.CheckJumps(t, s)
		compiler.CheckNotes(t, s)
		if d := c.FinalStackDepth(); d != 0 {
			t.Errorf("stack depth %d at the end of the script", d)
		}
	})
}
