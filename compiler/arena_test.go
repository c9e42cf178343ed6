package compiler

import (
	"errors"
	"testing"

	"github.com/chazu/jsbc/vm"
)

func TestArenaAllocZeroed(t *testing.T) {
	a := NewArena(64, 0)
	b, err := a.Alloc(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 10 || cap(b) != 10 {
		t.Errorf("len/cap = %d/%d, want 10/10", len(b), cap(b))
	}
	for i := range b {
		b[i] = 0xff
	}

	m := a.Mark()
	c, err := a.Alloc(20)
	if err != nil {
		t.Fatal(err)
	}
	for i := range c {
		c[i] = 0xee
	}
	a.Release(m)

	d, err := a.Alloc(20)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range d {
		if v != 0 {
			t.Fatalf("byte %d = %#x after release, want 0", i, v)
		}
	}
	if b[0] != 0xff {
		t.Error("allocation before the mark was clobbered")
	}
}

func TestArenaGrowInPlace(t *testing.T) {
	a := NewArena(64, 0)
	b, err := a.Alloc(8)
	if err != nil {
		t.Fatal(err)
	}
	b = b[:3]
	copy(b, "abc")

	g, err := a.Grow(b, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(g) != 3 || cap(g) != 16 {
		t.Errorf("len/cap = %d/%d, want 3/16", len(g), cap(g))
	}
	if string(g) != "abc" {
		t.Errorf("contents = %q, want %q", g, "abc")
	}
	if &g[0] != &b[0] {
		t.Error("most recent allocation was not grown in place")
	}
}

func TestArenaGrowCopies(t *testing.T) {
	a := NewArena(64, 0)
	b, _ := a.Alloc(4)
	copy(b, "wxyz")
	if _, err := a.Alloc(4); err != nil {
		t.Fatal(err)
	}

	g, err := a.Grow(b, 100)
	if err != nil {
		t.Fatal(err)
	}
	if string(g) != "wxyz" || cap(g) != 104 {
		t.Errorf("got %q cap %d, want %q cap 104", g, cap(g), "wxyz")
	}
}

func TestArenaQuota(t *testing.T) {
	a := NewArena(64, 128)
	if _, err := a.Alloc(100); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Alloc(50); !errors.Is(err, ErrArenaExhausted) {
		t.Errorf("err = %v, want ErrArenaExhausted", err)
	}
	if a.Used() > 128 {
		t.Errorf("Used = %d, want <= 128", a.Used())
	}
}

func TestArenaReleaseReusesChunks(t *testing.T) {
	a := NewArena(32, 0)
	m := a.Mark()
	for i := 0; i < 4; i++ {
		if _, err := a.Alloc(32); err != nil {
			t.Fatal(err)
		}
	}
	used := a.Used()
	a.Release(m)
	if a.Used() >= used {
		t.Errorf("Used = %d after release, want < %d", a.Used(), used)
	}
	for i := 0; i < 4; i++ {
		if _, err := a.Alloc(32); err != nil {
			t.Fatal(err)
		}
	}
	if a.Used() != used {
		t.Errorf("Used = %d after reuse, want %d", a.Used(), used)
	}
}

func TestCompileArenaExhausted(t *testing.T) {
	c := NewCompiler(nil, nil, NewArena(64, 64))
	_, err := c.CompileProgram(program(longWhile(100)), Options{})
	if !IsKind(err, ErrOutOfMemory) {
		t.Fatalf("err = %v, want an out of memory error", err)
	}
	if !errors.Is(err, ErrArenaExhausted) {
		t.Errorf("err = %v does not wrap ErrArenaExhausted", err)
	}
}

func TestCompileReleasesArena(t *testing.T) {
	arena := NewArena(0, 0)
	c := NewCompiler(nil, nil, arena)
	before := arena.Mark()
	if _, err := c.CompileProgram(program(longWhile(50)), Options{}); err != nil {
		t.Fatal(err)
	}
	if arena.Mark() != before {
		t.Errorf("mark = %d after compile, want %d", arena.Mark(), before)
	}
}

func TestArenaReserve(t *testing.T) {
	a := NewArena(64, 128)
	if _, err := a.Alloc(40); err != nil {
		t.Fatal(err)
	}
	if err := a.Reserve(64); err != nil {
		t.Fatalf("Reserve(64): %v", err)
	}
	if got := a.Used(); got != 128 {
		t.Errorf("Used = %d, want 128", got)
	}
	// The chunk is full and the rest of the quota is reserved.
	if _, err := a.Alloc(40); !errors.Is(err, ErrArenaExhausted) {
		t.Errorf("Alloc past reservation: err = %v, want ErrArenaExhausted", err)
	}
	if err := a.Reserve(1); !errors.Is(err, ErrArenaExhausted) {
		t.Errorf("Reserve past quota: err = %v, want ErrArenaExhausted", err)
	}
	a.Unreserve(64)
	if got := a.Used(); got != 64 {
		t.Errorf("Used after Unreserve = %d, want 64", got)
	}

	var none *Arena
	if err := none.Reserve(1 << 20); err != nil {
		t.Errorf("nil arena Reserve: %v", err)
	}
	none.Unreserve(1 << 20)
}

func TestSpanDepsChargedToArena(t *testing.T) {
	arena := NewArena(0, 0)
	cg := newCodeGenerator(Options{}, NewMapAtomTable(), DescriptorModel{}, arena)
	if _, err := cg.EmitJump(vm.OpGoto, 40000); err != nil {
		t.Fatal(err)
	}
	want := spanDepsMin*spanDepSize + jumpTargetSlab*jumpTargetSize
	if arena.reserved != want {
		t.Errorf("reserved = %d, want %d", arena.reserved, want)
	}
	cg.Close()
	if arena.reserved != 0 {
		t.Errorf("reserved after Close = %d, want 0", arena.reserved)
	}

	// A quota too small for the table fails the jump, not the process.
	small := NewArena(0, 1024)
	cg = newCodeGenerator(Options{}, NewMapAtomTable(), DescriptorModel{}, small)
	defer cg.Close()
	_, err := cg.EmitJump(vm.OpGoto, 40000)
	if !IsKind(err, ErrOutOfMemory) || !errors.Is(err, ErrArenaExhausted) {
		t.Errorf("err = %v, want an out of memory error wrapping ErrArenaExhausted", err)
	}
}
