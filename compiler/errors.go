package compiler

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a compilation failure.
type ErrorKind int

const (
	ErrOutOfMemory ErrorKind = iota // arena or quota exhaustion
	ErrOverflow                     // an offset, index or count exceeds its encoding
	ErrSyntax                       // a construct the emitter cannot lower
	ErrRecursion                    // nesting exceeds Options.MaxDepth
	ErrInternal                     // compiler bug
)

func (k ErrorKind) String() string {
	switch k {
	case ErrOutOfMemory:
		return "out of memory"
	case ErrOverflow:
		return "overflow"
	case ErrSyntax:
		return "syntax error"
	case ErrRecursion:
		return "recursion"
	case ErrInternal:
		return "internal error"
	}
	return "unknown"
}

// Error is a fatal diagnostic for one compilation unit.
type Error struct {
	Kind     ErrorKind
	Filename string
	Pos      Position
	Stmt     string // innermost statement kind, for overflow reports
	Msg      string
	Err      error // underlying cause, if any
}

func (e *Error) Error() string {
	loc := e.Filename
	if loc == "" {
		loc = "<script>"
	}
	if e.Pos.Line > 0 {
		loc = fmt.Sprintf("%s:%d", loc, e.Pos.Line)
	}
	return fmt.Sprintf("%s: %s", loc, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a compiler Error of kind k.
func IsKind(err error, k ErrorKind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == k
}

// Diagnostic is a recorded warning or error message.
type Diagnostic struct {
	Pos     Position
	Msg     string
	Warning bool
}

func (d Diagnostic) String() string {
	prefix := "error"
	if d.Warning {
		prefix = "warning"
	}
	return fmt.Sprintf("%d:%d: %s: %s", d.Pos.Line, d.Pos.Column, prefix, d.Msg)
}

// Options controls one compilation.
type Options struct {
	Filename     string
	FirstLine    int  // line of the first token; defaults to 1
	CompileAndGo bool // the scope chain is fixed at compile time
	NoScriptRval bool // the top-level completion value is not wanted
	Strict       bool // warnings are errors
	MaxDepth     int  // tree nesting limit; defaults to DefaultMaxDepth
}

// DefaultMaxDepth bounds emitter recursion when Options.MaxDepth is unset.
const DefaultMaxDepth = 1000

func (o Options) withDefaults() Options {
	if o.FirstLine <= 0 {
		o.FirstLine = 1
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	return o
}
