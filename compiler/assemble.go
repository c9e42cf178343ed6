package compiler

import (
	"slices"

	"github.com/chazu/jsbc/vm"
)

// ---------------------------------------------------------------------------
// Script assembly
// ---------------------------------------------------------------------------

// Finish assembles the generator's output into a Script: the prolog and
// main code, the terminated note vector, try notes outermost first, and
// the literal tables in index order. The generator must not be used for
// further emission afterwards.
func (cg *CodeGenerator) Finish() (*vm.Script, error) {
	prologLength := len(cg.prolog.code)
	mainLength := len(cg.main.code)
	if prologLength+mainLength > 1<<31-1 {
		return nil, cg.tooLarge()
	}

	notes, err := cg.FinishTakingSrcNotes()
	if err != nil {
		return nil, err
	}

	code := make([]byte, 0, prologLength+mainLength)
	code = append(code, cg.prolog.code...)
	code = append(code, cg.main.code...)

	tryNotes := slices.Clone(cg.tryNotes)
	slices.Reverse(tryNotes)

	ids := cg.atomList.IDs()
	atoms := make([]vm.Atom, len(ids))
	for i, id := range ids {
		atoms[i] = cg.atoms.Atom(id)
	}

	script := &vm.Script{
		Code:          code,
		MainOffset:    prologLength,
		Notes:         notes,
		TryNotes:      tryNotes,
		Atoms:         atoms,
		Objects:       slices.Clone(cg.objectList),
		Regexps:       slices.Clone(cg.regexpList),
		Upvars:        slices.Clone(cg.upvars),
		Filename:      cg.opts.Filename,
		LineBase:      cg.firstLine,
		MaxStackDepth: cg.maxStackDepth,
		Flags:         cg.scriptFlags(),
	}
	if cg.inFunction() {
		script.FixedSlots = len(cg.scope.varNames)
		script.NArgs = len(cg.fun.Params)
	} else {
		script.FixedSlots = cg.ngvars
	}
	script.Hash = script.ComputeHash()

	name := "script"
	if cg.fun != nil && cg.fun.Name != "" {
		name = cg.fun.Name
	}
	log.Debugf("%s:%d: assembled %s: %d+%d code bytes, %d notes, %d try notes, depth %d",
		cg.opts.Filename, cg.firstLine, name, prologLength, mainLength,
		len(notes), len(tryNotes), cg.maxStackDepth)
	return script, nil
}

func (cg *CodeGenerator) scriptFlags() vm.ScriptFlags {
	var f vm.ScriptFlags
	if cg.inFunction() {
		f |= vm.ScriptFunction
	}
	if cg.opts.NoScriptRval {
		f |= vm.ScriptNoScriptRval
	}
	if cg.opts.CompileAndGo {
		f |= vm.ScriptCompileAndGo
	}
	if cg.flags&cgGenerator != 0 {
		f |= vm.ScriptGenerator
	}
	if cg.flags&cgHeavyweight != 0 {
		f |= vm.ScriptHeavyweight
	}
	if cg.flags&cgUsesArguments != 0 {
		f |= vm.ScriptUsesArguments
	}
	return f
}

// ---------------------------------------------------------------------------
// Compiler: public entry points
// ---------------------------------------------------------------------------

// Compiler compiles programs and functions against shared collaborators.
// A Compiler is not safe for concurrent use; independent compilations
// each need their own Compiler (and Arena), but may share an AtomTable.
type Compiler struct {
	atoms       AtomTable
	objects     ObjectModel
	arena       *Arena
	diagnostics []Diagnostic
	finalDepth  int // operand stack depth at the end of the last unit
}

// NewCompiler creates a compiler. Nil collaborators are replaced by a
// fresh MapAtomTable, DescriptorModel and unlimited Arena.
func NewCompiler(atoms AtomTable, objects ObjectModel, arena *Arena) *Compiler {
	if atoms == nil {
		atoms = NewMapAtomTable()
	}
	if objects == nil {
		objects = DescriptorModel{}
	}
	if arena == nil {
		arena = NewArena(DefaultArenaChunk, 0)
	}
	return &Compiler{atoms: atoms, objects: objects, arena: arena}
}

// Diagnostics returns the warnings of the last compilation.
func (c *Compiler) Diagnostics() []Diagnostic {
	return c.diagnostics
}

// CompileProgram compiles a top-level script.
func (c *Compiler) CompileProgram(prog *Program, opts Options) (*vm.Script, error) {
	c.diagnostics = nil
	cg := newCodeGenerator(opts, c.atoms, c.objects, c.arena)
	defer cg.Close()

	sa := NewSemanticAnalyzer(false)
	cg.scope = sa.AnalyzeProgram(prog)
	cg.diagnostics = append(cg.diagnostics, sa.Diagnostics()...)
	if cg.scope.hasWith {
		cg.flags |= cgHasWith
	}

	script, err := cg.finishUnit(func() error { return cg.emitTopLevel(prog) })
	c.diagnostics = cg.diagnostics
	c.finalDepth = cg.stackDepth
	return script, err
}

// emitTopLevel emits each statement of prog from emit level zero, so span
// dependencies are widened and the jump target tree is recycled statement
// by statement rather than once for the whole script.
func (cg *CodeGenerator) emitTopLevel(prog *Program) error {
	if err := cg.updateLineNumberNotes(prog.SpanVal.Start.Line); err != nil {
		return err
	}
	return cg.emitStatements(prog.Body)
}

// CompileFunction compiles fn as a standalone function body, as for the
// Function constructor.
func (c *Compiler) CompileFunction(fn *FunctionNode, opts Options) (*vm.Script, error) {
	c.diagnostics = nil
	cg := newCodeGenerator(opts, c.atoms, c.objects, c.arena)
	defer cg.Close()
	cg.initFunction(fn)

	script, err := cg.finishUnit(func() error { return cg.emitTree(fn) })
	c.diagnostics = cg.diagnostics
	c.finalDepth = cg.stackDepth
	return script, err
}

// finishUnit runs emit, terminates the main code with STOP and assembles
// the script.
func (cg *CodeGenerator) finishUnit(emit func() error) (*vm.Script, error) {
	if err := emit(); err != nil {
		return nil, err
	}
	if _, err := cg.Emit1(vm.OpStop); err != nil {
		return nil, err
	}
	return cg.Finish()
}

// Compile compiles prog with default collaborators.
func Compile(prog *Program, opts Options) (*vm.Script, error) {
	return NewCompiler(nil, nil, nil).CompileProgram(prog, opts)
}
