package compiler

import "unsafe"

// ---------------------------------------------------------------------------
// Jump targets: an AVL tree of shared destinations of span-dependent jumps
// ---------------------------------------------------------------------------

const (
	jtLeft  = 0
	jtRight = 1
)

// jumpTarget is a bytecode offset that one or more jumps land on. Widening
// moves targets, so span dependencies point here rather than holding
// offsets of their own. balance is the right height minus the left height.
type jumpTarget struct {
	offset  int
	balance int
	kids    [2]*jumpTarget
}

// balanceJumpTargets rotates the subtree at *jtp if it is out of balance and
// reports whether its height changed.
func balanceJumpTargets(jtp **jumpTarget) int {
	jt := *jtp
	var dir int
	var doubleRotate bool
	switch {
	case jt.balance < -1:
		dir = jtRight
		doubleRotate = jt.kids[jtLeft].balance > 0
	case jt.balance > 1:
		dir = jtLeft
		doubleRotate = jt.kids[jtRight].balance < 0
	default:
		return 0
	}

	otherDir := 1 - dir
	var root *jumpTarget
	heightChanged := 1
	if doubleRotate {
		jt2 := jt.kids[otherDir]
		root = jt2.kids[dir]
		*jtp = root

		jt.kids[otherDir] = root.kids[dir]
		root.kids[dir] = jt

		jt2.kids[dir] = root.kids[otherDir]
		root.kids[otherDir] = jt2

		root.kids[jtLeft].balance = -max(root.balance, 0)
		root.kids[jtRight].balance = -min(root.balance, 0)
		root.balance = 0
	} else {
		root = jt.kids[otherDir]
		*jtp = root
		jt.kids[otherDir] = root.kids[dir]
		root.kids[dir] = jt

		if root.balance == 0 {
			heightChanged = 0
		}
		if dir == jtLeft {
			root.balance--
		} else {
			root.balance++
		}
		jt.balance = -root.balance
	}
	return heightChanged
}

// Nodes are cut from slabs whose size is charged to the arena, and
// recycled through jtFreeList between widening episodes.
const (
	jumpTargetSlab = 64
	jumpTargetSize = int(unsafe.Sizeof(jumpTarget{}))
)

// addJumpTarget finds or inserts the target at off and returns it.
func (cg *CodeGenerator) addJumpTarget(off int) (*jumpTarget, error) {
	if cg.jtFreeList == nil && len(cg.jtSlab) == 0 {
		if err := cg.reserve(jumpTargetSlab * jumpTargetSize); err != nil {
			return nil, err
		}
		cg.jtSlab = make([]jumpTarget, jumpTargetSlab)
	}
	var node *jumpTarget
	cg.insertJumpTarget(&cg.jumpTargets, off, &node)
	return node, nil
}

// insertJumpTarget returns the height change of the subtree at *jtp.
func (cg *CodeGenerator) insertJumpTarget(jtp **jumpTarget, off int, node **jumpTarget) int {
	jt := *jtp
	if jt == nil {
		jt = cg.jtFreeList
		if jt != nil {
			cg.jtFreeList = jt.kids[jtLeft]
		} else {
			jt = &cg.jtSlab[0]
			cg.jtSlab = cg.jtSlab[1:]
		}
		*jt = jumpTarget{offset: off}
		cg.numJumpTargets++
		*node = jt
		*jtp = jt
		return 1
	}

	if jt.offset == off {
		*node = jt
		return 0
	}

	var balanceDelta int
	if off < jt.offset {
		balanceDelta = -cg.insertJumpTarget(&jt.kids[jtLeft], off, node)
	} else {
		balanceDelta = cg.insertJumpTarget(&jt.kids[jtRight], off, node)
	}

	jt.balance += balanceDelta
	if balanceDelta != 0 && jt.balance != 0 {
		return 1 - balanceJumpTargets(jtp)
	}
	return 0
}

// updateJumpTargets adds delta to every target beyond pivot.
func updateJumpTargets(jt *jumpTarget, pivot, delta int) {
	for jt != nil {
		if jt.offset > pivot {
			jt.offset += delta
			updateJumpTargets(jt.kids[jtLeft], pivot, delta)
		}
		jt = jt.kids[jtRight]
	}
}

// freeJumpTargets moves every node of the tree onto the free list.
func (cg *CodeGenerator) freeJumpTargets(jt *jumpTarget) {
	if jt == nil {
		return
	}
	cg.freeJumpTargets(jt.kids[jtLeft])
	cg.freeJumpTargets(jt.kids[jtRight])
	jt.kids[jtRight] = nil
	jt.kids[jtLeft] = cg.jtFreeList
	cg.jtFreeList = jt
}

// avlCheck returns the height of the tree at jt, or -1 if a balance factor
// is wrong or out of range.
func avlCheck(jt *jumpTarget) int {
	if jt == nil {
		return 0
	}
	if jt.balance < -1 || jt.balance > 1 {
		return -1
	}
	lh := avlCheck(jt.kids[jtLeft])
	rh := avlCheck(jt.kids[jtRight])
	if lh < 0 || rh < 0 || jt.balance != rh-lh {
		return -1
	}
	return 1 + max(lh, rh)
}
