package compiler

import (
	"fmt"
	"math/bits"

	"github.com/tliron/commonlog"

	"github.com/chazu/jsbc/vm"
)

// ---------------------------------------------------------------------------
// Codegen: bytecode buffers, stack depth and emission primitives
// ---------------------------------------------------------------------------

var log = commonlog.GetLogger("jsbc.compiler")

const (
	bytecodeChunk = 256 // first code allocation
	srcNoteChunk  = 64  // first note allocation
)

// region is one of the generator's two output streams.
type region struct {
	code           []byte
	notes          []byte
	lastNoteOffset int
	currentLine    int
}

// cgFlags records facts learned while emitting a unit.
type cgFlags uint16

const (
	cgInFunction cgFlags = 1 << iota
	cgHeavyweight
	cgUsesNonlocals
	cgUsesArguments
	cgGenerator
	cgHasWith
)

// CodeGenerator emits the bytecode of one function or top-level script.
// Nested functions get child generators linked through parent.
type CodeGenerator struct {
	opts    Options
	atoms   AtomTable
	objects ObjectModel
	arena   *Arena

	arenaMark ArenaMark
	prolog    region
	main      region
	current   *region
	firstLine int

	stackDepth    int
	maxStackDepth int
	staticDepth   int
	emitLevel     int
	treeDepth     int
	pos           Position

	topStmt      *stmtInfo
	topScopeStmt *stmtInfo

	atomList   AtomList
	constList  map[string]vm.Atom
	objectList []*vm.Object
	regexpList []*vm.Object
	tryNotes   []vm.TryNote // append order; reversed by Finish

	spanDeps       []spanDep
	spanDepPool    []spanDep // storage of the last retired table
	jumpTargets    *jumpTarget
	jtFreeList     *jumpTarget
	jtSlab         []jumpTarget // unused nodes of the last slab
	reserved       int          // arena bytes charged for spanDeps and jtSlab
	numJumpTargets int
	spanDepTodo    int

	flags  cgFlags
	fun    *FunctionNode
	scope  *funcScope
	parent *CodeGenerator

	upvarIndex map[string]int
	upvars     []uint32
	ngvars     int // top-level vars bound to GVAR slots

	funDefs     map[*FunctionDecl]int // object index of hoisted local functions
	diagnostics []Diagnostic
}

// newCodeGenerator creates a generator whose buffers come from arena. The
// arena is marked so that Close releases everything the unit allocated.
func newCodeGenerator(opts Options, atoms AtomTable, objects ObjectModel, arena *Arena) *CodeGenerator {
	opts = opts.withDefaults()
	cg := &CodeGenerator{
		opts:      opts,
		atoms:     atoms,
		objects:   objects,
		arena:     arena,
		arenaMark: arena.Mark(),
		firstLine: opts.FirstLine,
		constList: make(map[string]vm.Atom),
		funDefs:   make(map[*FunctionDecl]int),
	}
	cg.prolog.currentLine = opts.FirstLine
	cg.main.currentLine = opts.FirstLine
	cg.current = &cg.main
	return cg
}

// Close releases the generator's arena memory. Buffers must not be used
// afterwards.
func (cg *CodeGenerator) Close() {
	cg.arena.Unreserve(cg.reserved)
	cg.reserved = 0
	cg.arena.Release(cg.arenaMark)
	cg.prolog = region{}
	cg.main = region{}
	cg.spanDeps = nil
	cg.jumpTargets = nil
	cg.spanDepPool = nil
	cg.jtFreeList = nil
	cg.jtSlab = nil
}

// Diagnostics returns the warnings recorded so far.
func (cg *CodeGenerator) Diagnostics() []Diagnostic {
	return cg.diagnostics
}

func (cg *CodeGenerator) inFunction() bool {
	return cg.flags&cgInFunction != 0
}

// switchToProlog directs emission to the prolog region.
func (cg *CodeGenerator) switchToProlog() {
	cg.current = &cg.prolog
}

// switchToMain directs emission to the main region.
func (cg *CodeGenerator) switchToMain() {
	cg.current = &cg.main
}

func (cg *CodeGenerator) inProlog() bool {
	return cg.current == &cg.prolog
}

// offset returns the current region's write cursor.
func (cg *CodeGenerator) offset() int {
	return len(cg.current.code)
}

// code returns the current region's bytecode.
func (cg *CodeGenerator) code() []byte {
	return cg.current.code
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func (cg *CodeGenerator) errorf(kind ErrorKind, format string, args ...interface{}) error {
	return &Error{
		Kind:     kind,
		Filename: cg.opts.Filename,
		Pos:      cg.pos,
		Stmt:     cg.statementName(),
		Msg:      fmt.Sprintf(format, args...),
	}
}

// tooLarge reports an encoding overflow naming the innermost statement.
func (cg *CodeGenerator) tooLarge() error {
	return cg.errorf(ErrOverflow, "%s too large", cg.statementName())
}

func (cg *CodeGenerator) outOfMemory(err error) error {
	e := cg.errorf(ErrOutOfMemory, "out of memory").(*Error)
	e.Err = err
	return e
}

// warnf records a warning, or fails when warnings are errors.
func (cg *CodeGenerator) warnf(pos Position, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if cg.opts.Strict {
		return &Error{Kind: ErrSyntax, Filename: cg.opts.Filename, Pos: pos, Stmt: cg.statementName(), Msg: msg}
	}
	cg.diagnostics = append(cg.diagnostics, Diagnostic{Pos: pos, Msg: msg, Warning: true})
	return nil
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

// growCode makes room for delta more bytes in the current region. The first
// allocation is bytecodeChunk bytes; later ones round up to a power of two.
func (cg *CodeGenerator) growCode(r *region, delta int) error {
	need := len(r.code) + delta
	if need <= cap(r.code) {
		return nil
	}
	size := bytecodeChunk
	if need > bytecodeChunk {
		size = 1 << bits.Len(uint(need-1))
	}
	var (
		buf []byte
		err error
	)
	if cap(r.code) == 0 {
		buf, err = cg.arena.Alloc(size)
		buf = buf[:0]
	} else {
		buf, err = cg.arena.Grow(r.code, size-cap(r.code))
	}
	if err != nil {
		return cg.outOfMemory(err)
	}
	r.code = buf
	return nil
}

// emitCheck reserves delta bytes and returns the offset they start at.
func (cg *CodeGenerator) emitCheck(delta int) (int, error) {
	off := len(cg.current.code)
	if err := cg.growCode(cg.current, delta); err != nil {
		return -1, err
	}
	cg.current.code = cg.current.code[:off+delta]
	return off, nil
}

// updateDepth applies the stack effect of the instruction at target.
func (cg *CodeGenerator) updateDepth(target int) {
	code := cg.current.code
	op := vm.Opcode(code[target])
	info := op.Info()

	nuses := info.Uses
	if nuses < 0 {
		nuses = variableStackUses(op, code, target)
	}
	cg.stackDepth -= nuses
	if cg.stackDepth < 0 {
		_ = cg.warnf(cg.pos, "stack underflow at %s offset %d", cg.opts.Filename, target)
		cg.stackDepth = 0
	}

	ndefs := info.Defs
	if ndefs < 0 {
		// ENTERBLOCK: the block object was just indexed.
		blockObj := cg.objectList[len(cg.objectList)-1]
		blockObj.Depth = cg.stackDepth
		ndefs = blockObj.Count()
	}
	cg.stackDepth += ndefs
	if cg.stackDepth > cg.maxStackDepth {
		cg.maxStackDepth = cg.stackDepth
	}
}

// variableStackUses reads the use count carried in an instruction operand.
func variableStackUses(op vm.Opcode, code []byte, pc int) int {
	switch op {
	case vm.OpPopN, vm.OpLeaveBlock:
		return vm.Uint16At(code, pc)
	case vm.OpLeaveBlockExpr:
		// the block's slots plus the expression result above them
		return vm.Uint16At(code, pc) + 1
	case vm.OpCall, vm.OpNew:
		return 2 + vm.Uint16At(code, pc)
	}
	return 0
}

// Emit1 emits an opcode with no immediate operand.
func (cg *CodeGenerator) Emit1(op vm.Opcode) (int, error) {
	off, err := cg.emitCheck(1)
	if err != nil {
		return -1, err
	}
	cg.current.code[off] = byte(op)
	cg.updateDepth(off)
	return off, nil
}

// Emit2 emits an opcode with one immediate byte.
func (cg *CodeGenerator) Emit2(op vm.Opcode, op1 byte) (int, error) {
	off, err := cg.emitCheck(2)
	if err != nil {
		return -1, err
	}
	code := cg.current.code
	code[off] = byte(op)
	code[off+1] = op1
	cg.updateDepth(off)
	return off, nil
}

// Emit3 emits an opcode with two immediate bytes.
func (cg *CodeGenerator) Emit3(op vm.Opcode, op1, op2 byte) (int, error) {
	off, err := cg.emitCheck(3)
	if err != nil {
		return -1, err
	}
	code := cg.current.code
	code[off] = byte(op)
	code[off+1] = op1
	code[off+2] = op2
	cg.updateDepth(off)
	return off, nil
}

// EmitN emits an opcode followed by extra zeroed bytes. Opcodes whose use
// count lives in those bytes must have their depth updated by the caller.
func (cg *CodeGenerator) EmitN(op vm.Opcode, extra int) (int, error) {
	off, err := cg.emitCheck(1 + extra)
	if err != nil {
		return -1, err
	}
	code := cg.current.code
	code[off] = byte(op)
	clear(code[off+1 : off+1+extra])
	if op.Info().Uses >= 0 {
		cg.updateDepth(off)
	}
	return off, nil
}

// emitUint16 emits op with a big-endian 16-bit immediate.
func (cg *CodeGenerator) emitUint16(op vm.Opcode, v int) (int, error) {
	return cg.Emit3(op, byte(v>>8), byte(v))
}

// ---------------------------------------------------------------------------
// Speculative emission
// ---------------------------------------------------------------------------

type regionMark struct {
	code, notes    int
	lastNoteOffset int
	currentLine    int
}

// Mark records the generator's write position for a later Release.
type Mark struct {
	prolog, main regionMark
	stackDepth   int
	tryNotes     int
	spanDeps     int
	spanDepsNil  bool
	spanDepTodo  int
}

func markRegion(r *region) regionMark {
	return regionMark{len(r.code), len(r.notes), r.lastNoteOffset, r.currentLine}
}

func releaseRegion(r *region, m regionMark) {
	r.code = r.code[:m.code]
	r.notes = r.notes[:m.notes]
	r.lastNoteOffset = m.lastNoteOffset
	r.currentLine = m.currentLine
}

// Mark snapshots both regions, the stack depth and the note tables.
func (cg *CodeGenerator) Mark() Mark {
	return Mark{
		prolog:      markRegion(&cg.prolog),
		main:        markRegion(&cg.main),
		stackDepth:  cg.stackDepth,
		tryNotes:    len(cg.tryNotes),
		spanDeps:    len(cg.spanDeps),
		spanDepsNil: cg.spanDeps == nil,
		spanDepTodo: cg.spanDepTodo,
	}
}

// Release discards everything emitted since m.
func (cg *CodeGenerator) Release(m Mark) {
	releaseRegion(&cg.prolog, m.prolog)
	releaseRegion(&cg.main, m.main)
	cg.stackDepth = m.stackDepth
	cg.tryNotes = cg.tryNotes[:m.tryNotes]
	switch {
	case m.spanDepsNil && cg.spanDeps != nil:
		// The table was built after the mark: go back to reading jump
		// operands from the code.
		cg.retireSpanDeps()
	case len(cg.spanDeps) > m.spanDeps:
		cg.spanDeps = cg.spanDeps[:m.spanDeps]
	}
	cg.spanDepTodo = m.spanDepTodo
}

// ---------------------------------------------------------------------------
// Try notes
// ---------------------------------------------------------------------------

// newTryNote records a guarded region of main code. Notes are kept in
// emission order, which is innermost first for nested regions.
func (cg *CodeGenerator) newTryNote(kind vm.TryNoteKind, stackDepth, start, end int) error {
	if stackDepth > 0xffff || end < start {
		return cg.tooLarge()
	}
	cg.tryNotes = append(cg.tryNotes, vm.TryNote{
		Kind:       kind,
		StackDepth: uint16(stackDepth),
		Start:      uint32(start),
		Length:     uint32(end - start),
	})
	return nil
}

// ---------------------------------------------------------------------------
// Lines
// ---------------------------------------------------------------------------

// updateLineNumberNotes records a change of source line with NEWLINE notes
// or a single SETLINE, whichever is shorter. Backward changes always use
// SETLINE.
func (cg *CodeGenerator) updateLineNumberNotes(line int) error {
	if line <= 0 {
		return nil
	}
	delta := line - cg.current.currentLine
	if delta == 0 {
		return nil
	}
	cg.current.currentLine = line
	threshold := 2
	if line > vm.SN3ByteOffsetMask {
		threshold = 4
	}
	if delta < 0 || delta >= threshold {
		_, err := cg.NewSrcNote2(vm.SrcSetLine, line)
		return err
	}
	for ; delta > 0; delta-- {
		if _, err := cg.NewSrcNote(vm.SrcNewline); err != nil {
			return err
		}
	}
	return nil
}
