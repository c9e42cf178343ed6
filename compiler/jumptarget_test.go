package compiler

import (
	"math/rand"
	"testing"
)

func addTarget(t *testing.T, cg *CodeGenerator, off int) *jumpTarget {
	t.Helper()
	jt, err := cg.addJumpTarget(off)
	if err != nil {
		t.Fatalf("addJumpTarget(%d): %v", off, err)
	}
	return jt
}

func collectOffsets(jt *jumpTarget, out *[]int) {
	if jt == nil {
		return
	}
	collectOffsets(jt.kids[jtLeft], out)
	*out = append(*out, jt.offset)
	collectOffsets(jt.kids[jtRight], out)
}

func TestJumpTargetsBalanced(t *testing.T) {
	orders := map[string]func(i int) int{
		"ascending":  func(i int) int { return i * 3 },
		"descending": func(i int) int { return 3000 - i*3 },
		"zigzag": func(i int) int {
			if i%2 == 0 {
				return i
			}
			return 5000 - i
		},
	}
	for name, offset := range orders {
		t.Run(name, func(t *testing.T) {
			cg := &CodeGenerator{}
			for i := 0; i < 1000; i++ {
				addTarget(t, cg, offset(i))
				if avlCheck(cg.jumpTargets) < 0 {
					t.Fatalf("tree unbalanced after %d inserts", i+1)
				}
			}
			if cg.numJumpTargets != 1000 {
				t.Errorf("numJumpTargets = %d, want 1000", cg.numJumpTargets)
			}
			// 1.44 log2(n) bounds an AVL tree's height.
			if h := avlCheck(cg.jumpTargets); h > 15 {
				t.Errorf("height = %d, want <= 15", h)
			}
		})
	}
}

func TestJumpTargetsRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cg := &CodeGenerator{}
	seen := make(map[int]*jumpTarget)
	for i := 0; i < 2000; i++ {
		off := rng.Intn(5000)
		jt := addTarget(t, cg, off)
		if jt.offset != off {
			t.Fatalf("addJumpTarget(%d) returned offset %d", off, jt.offset)
		}
		if prev, ok := seen[off]; ok && prev != jt {
			t.Fatalf("duplicate node for offset %d", off)
		}
		seen[off] = jt
	}
	if avlCheck(cg.jumpTargets) < 0 {
		t.Fatal("tree unbalanced")
	}
	if cg.numJumpTargets != len(seen) {
		t.Errorf("numJumpTargets = %d, want %d", cg.numJumpTargets, len(seen))
	}
	var offsets []int
	collectOffsets(cg.jumpTargets, &offsets)
	for i := 1; i < len(offsets); i++ {
		if offsets[i-1] >= offsets[i] {
			t.Fatalf("in-order walk not sorted at %d: %d >= %d", i, offsets[i-1], offsets[i])
		}
	}
}

func TestUpdateJumpTargets(t *testing.T) {
	cg := &CodeGenerator{}
	for _, off := range []int{10, 20, 30, 40, 50, 60, 70} {
		addTarget(t, cg, off)
	}
	updateJumpTargets(cg.jumpTargets, 35, 2)

	var got []int
	collectOffsets(cg.jumpTargets, &got)
	want := []int{10, 20, 30, 42, 52, 62, 72}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("offsets = %v, want %v", got, want)
			break
		}
	}
}

func TestJumpTargetFreeListReuse(t *testing.T) {
	cg := &CodeGenerator{}
	nodes := make(map[*jumpTarget]bool)
	for i := 0; i < 8; i++ {
		nodes[addTarget(t, cg, i*10)] = true
	}
	cg.freeJumpTargets(cg.jumpTargets)
	cg.jumpTargets = nil

	for i := 0; i < 8; i++ {
		jt := addTarget(t, cg, i * 7)
		if !nodes[jt] {
			t.Errorf("insert %d allocated a new node instead of reusing a freed one", i)
		}
		if jt.kids[jtLeft] != nil && jt.kids[jtLeft].offset > jt.offset {
			t.Errorf("reused node kept a stale child")
		}
	}
	if cg.jtFreeList != nil {
		t.Error("free list not drained")
	}
	if avlCheck(cg.jumpTargets) < 0 {
		t.Error("tree unbalanced after reuse")
	}
}
