package compiler

import (
	"github.com/chazu/jsbc/vm"
)

// ---------------------------------------------------------------------------
// Try, catch and finally
//
// Layout:
//
//	try
//	  <try block>
//	  [gosub finally]
//	  goto end
//	<catch 1: enterblock, exception, [dup, guard, ifeq next, pop], body, leaveblock>
//	  [gosub finally]
//	  goto end
//	...
//	[throw, when the last catch is guarded]
//	<finally: finally, body, retsub>
//	end:
//
// Try notes are added after the body so that inner regions precede outer
// ones in emission order.
// ---------------------------------------------------------------------------

func (cg *CodeGenerator) emitTry(n *TryStmt) error {
	kind := stmtTry
	if n.Finally != nil {
		kind = stmtFinally
	}
	stmt := cg.pushStatement(kind, cg.offset())

	// Exceptions unwind the operand stack to the depth at try entry.
	depth := cg.stackDepth
	if _, err := cg.Emit1(vm.OpTry); err != nil {
		return err
	}
	tryStart := cg.offset()
	if err := cg.emitTree(n.Block); err != nil {
		return err
	}

	if n.Finally != nil {
		if _, err := cg.NewSrcNote(vm.SrcHidden); err != nil {
			return err
		}
		if _, err := cg.emitBackPatchOp(vm.OpBackpatch, &stmt.gosubs); err != nil {
			return err
		}
	}
	catchJump := -1
	if _, err := cg.NewSrcNote(vm.SrcHidden); err != nil {
		return err
	}
	if _, err := cg.emitBackPatchOp(vm.OpBackpatch, &catchJump); err != nil {
		return err
	}
	tryEnd := cg.offset()

	count := 0
	for _, c := range n.Catches {
		if stmt.guardJump != -1 {
			// The previous guard failed: its block and the duplicated
			// exception are still on the stack. Put the exception back and
			// try the next catch.
			if err := cg.setJumpHere(stmt.guardJump); err != nil {
				return err
			}
			cg.stackDepth = depth + count + 1
			if err := cg.emitHidden(vm.OpThrowing); err != nil {
				return err
			}
			if _, err := cg.NewSrcNote(vm.SrcHidden); err != nil {
				return err
			}
			if _, err := cg.emitUint16(vm.OpLeaveBlock, count); err != nil {
				return err
			}
			stmt.guardJump = -1
		}

		var err error
		if stmt.catchNote, err = cg.NewSrcNote2(vm.SrcCatch, 0); err != nil {
			return err
		}
		if count, err = cg.emitCatch(stmt, c); err != nil {
			return err
		}

		if n.Finally != nil {
			if _, err := cg.emitBackPatchOp(vm.OpBackpatch, &stmt.gosubs); err != nil {
				return err
			}
		}
		if _, err := cg.NewSrcNote(vm.SrcHidden); err != nil {
			return err
		}
		if _, err := cg.emitBackPatchOp(vm.OpBackpatch, &catchJump); err != nil {
			return err
		}
	}

	// No guard matched: rethrow, leaving any finally to the unwinder.
	if len(n.Catches) > 0 && n.Catches[len(n.Catches)-1].Guard != nil {
		if err := cg.setJumpHere(stmt.guardJump); err != nil {
			return err
		}
		cg.stackDepth = depth + 1
		if err := cg.emitHidden(vm.OpThrow); err != nil {
			return err
		}
	}

	finallyStart := -1
	if n.Finally != nil {
		if err := cg.backPatch(stmt.gosubs, cg.offset(), vm.OpGosub); err != nil {
			return err
		}
		finallyStart = cg.offset()
		stmt.kind = stmtSubroutine
		if err := cg.updateLineNumberNotes(n.Finally.SpanVal.Start.Line); err != nil {
			return err
		}
		if _, err := cg.Emit1(vm.OpFinally); err != nil {
			return err
		}
		if err := cg.emitTree(n.Finally); err != nil {
			return err
		}
		if _, err := cg.Emit1(vm.OpRetSub); err != nil {
			return err
		}
	}

	if err := cg.popStatementCG(); err != nil {
		return err
	}
	if _, err := cg.NewSrcNote(vm.SrcEndBrace); err != nil {
		return err
	}
	if _, err := cg.Emit1(vm.OpNop); err != nil {
		return err
	}
	if err := cg.backPatch(catchJump, cg.offset(), vm.OpGoto); err != nil {
		return err
	}

	if len(n.Catches) > 0 {
		if err := cg.newTryNote(vm.TryCatch, depth, tryStart, tryEnd); err != nil {
			return err
		}
	}
	if n.Finally != nil {
		if err := cg.newTryNote(vm.TryFinally, depth, tryStart, finallyStart); err != nil {
			return err
		}
	}
	return nil
}

// emitCatch emits one catch clause in its own block scope, binding the
// pending exception to the clause's parameter. It returns the number of
// slots the scope binds.
func (cg *CodeGenerator) emitCatch(tryStmt *stmtInfo, c *CatchClause) (int, error) {
	names := patternNames(c.Param)
	if len(names) == 0 {
		return 0, cg.errorf(ErrSyntax, "invalid catch parameter")
	}
	count := 0
	err := cg.emitLexicalScope(names, scopeHead, func(scope *stmtInfo) error {
		scope.kind = stmtCatch
		catchStart := scope.update
		count = scope.blockObj.Count()

		if _, err := cg.Emit1(vm.OpException); err != nil {
			return err
		}
		// A guard keeps a copy to rethrow when it fails.
		if c.Guard != nil {
			if _, err := cg.Emit1(vm.OpDup); err != nil {
				return err
			}
		}

		switch p := c.Param.(type) {
		case *Identifier:
			slot, err := cg.adjustBlockSlot(scope.blockObj.Depth)
			if err != nil {
				return err
			}
			if _, err := cg.emitUint16(vm.OpSetLocalPop, slot); err != nil {
				return err
			}
		default:
			if err := cg.emitDestructuringOps(vm.SrcDeclLet, p); err != nil {
				return err
			}
			if _, err := cg.Emit1(vm.OpPop); err != nil {
				return err
			}
		}

		if c.Guard != nil {
			if err := cg.emitTree(c.Guard); err != nil {
				return err
			}
			if err := cg.SetSrcNoteOffset(tryStmt.catchNote, 0, cg.offset()-catchStart); err != nil {
				return err
			}
			guardJump, err := cg.EmitJump(vm.OpIfEq, 0)
			if err != nil {
				return err
			}
			tryStmt.guardJump = guardJump
			if _, err := cg.Emit1(vm.OpPop); err != nil {
				return err
			}
		}

		if err := cg.emitTree(c.Body); err != nil {
			return err
		}
		// Annotates the LEAVEBLOCK that closes the scope.
		_, err := cg.NewSrcNote2(vm.SrcCatch, cg.stackDepth)
		return err
	})
	return count, err
}
