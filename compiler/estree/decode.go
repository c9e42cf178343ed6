package estree

import (
	"errors"
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"github.com/chazu/jsbc/compiler"
)

// ErrUnsupported is wrapped by errors for node types and forms the
// compiler does not lower.
var ErrUnsupported = errors.New("unsupported")

// Error reports a malformed or unsupported node.
type Error struct {
	Pos  compiler.Position
	Type string
	Err  error
}

func (e *Error) Error() string {
	if e.Pos.Line > 0 {
		return fmt.Sprintf("estree: %d:%d: %s: %v", e.Pos.Line, e.Pos.Column, e.Type, e.Err)
	}
	return fmt.Sprintf("estree: %s: %v", e.Type, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Decode converts an ESTree Program into a compiler Program.
func Decode(data []byte) (*compiler.Program, error) {
	var root node
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("estree: decode: %w", err)
	}
	if root.Type != "Program" {
		return nil, &Error{Pos: position(&root), Type: root.Type, Err: errors.New("root is not a Program")}
	}
	var d decoder
	return d.program(&root)
}

// DecodeFile reads and decodes an ESTree JSON file.
func DecodeFile(path string) (*compiler.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

type decoder struct{}

func position(n *node) compiler.Position {
	var p compiler.Position
	if n.Loc != nil {
		p.Line = n.Loc.Start.Line
		p.Column = n.Loc.Start.Column + 1
	}
	switch {
	case n.Start != nil:
		p.Offset = *n.Start
	case len(n.Range) == 2:
		p.Offset = n.Range[0]
	}
	return p
}

func span(n *node) compiler.Span {
	s := compiler.Span{Start: position(n)}
	if n.Loc != nil {
		s.End = compiler.Position{Line: n.Loc.End.Line, Column: n.Loc.End.Column + 1}
		if len(n.Range) == 2 {
			s.End.Offset = n.Range[1]
		}
	}
	return s
}

func fail(n *node, format string, args ...any) error {
	return &Error{Pos: position(n), Type: n.Type, Err: fmt.Errorf(format, args...)}
}

func unsupported(n *node) error {
	return &Error{Pos: position(n), Type: n.Type, Err: ErrUnsupported}
}

func malformed(n *node, field string) error {
	return fail(n, "missing %s", field)
}

func (d *decoder) program(n *node) (*compiler.Program, error) {
	list, err := decodeList(n.Body)
	if err != nil {
		return nil, fail(n, "body: %v", err)
	}
	body, err := d.statements(list)
	if err != nil {
		return nil, err
	}
	return &compiler.Program{SpanVal: span(n), Body: body}, nil
}

func (d *decoder) statements(list []*node) ([]compiler.Stmt, error) {
	out := make([]compiler.Stmt, 0, len(list))
	for _, n := range list {
		s, err := d.statement(n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// optionalIdentifier returns the name of an optional Identifier child.
func optionalIdentifier(n *node) (string, error) {
	if n == nil {
		return "", nil
	}
	if n.Type != "Identifier" {
		return "", fail(n, "expected Identifier")
	}
	return n.Name, nil
}
