package compiler

// Test hooks for the compiler_test package.

var (
	CheckJumps = checkJumps
	CheckNotes = checkNotes
)

// FinalStackDepth returns the operand stack depth left at the end of the
// last compiled unit.
func (c *Compiler) FinalStackDepth() int {
	return c.finalDepth
}
