package compiler

import "errors"

// ---------------------------------------------------------------------------
// Arena: scoped bump allocator for transient compiler buffers
// ---------------------------------------------------------------------------

// ErrArenaExhausted is returned when an allocation would exceed the arena's
// quota.
var ErrArenaExhausted = errors.New("arena quota exhausted")

// DefaultArenaChunk is the size of a freshly allocated arena chunk.
const DefaultArenaChunk = 8192

// ArenaMark is a release point: the arena's allocation offset at the time
// Mark was called.
type ArenaMark int

type arenaChunk struct {
	buf  []byte // len is the bytes handed out, cap the chunk size
	base int    // offset of buf[0] in the arena's address space
}

// Arena hands out byte slices in LIFO order. Release truncates everything
// allocated after a mark, so buffers obtained before Release must not be used
// after it. An Arena is not safe for concurrent use.
type Arena struct {
	chunks    []arenaChunk
	spare     [][]byte
	chunkSize int
	limit     int // 0 means unlimited
	size      int // sum of live chunk capacities
	reserved  int // bytes of typed data charged with Reserve
	last      int // start of the most recent allocation in the last chunk
}

// NewArena creates an arena. A limit of zero disables the quota.
func NewArena(chunkSize, limit int) *Arena {
	if chunkSize <= 0 {
		chunkSize = DefaultArenaChunk
	}
	return &Arena{chunkSize: chunkSize, limit: limit, last: -1}
}

// Mark returns the current allocation offset.
func (a *Arena) Mark() ArenaMark {
	if len(a.chunks) == 0 {
		return 0
	}
	c := a.chunks[len(a.chunks)-1]
	return ArenaMark(c.base + len(c.buf))
}

// Release frees every allocation made after m.
func (a *Arena) Release(m ArenaMark) {
	for len(a.chunks) > 0 {
		c := &a.chunks[len(a.chunks)-1]
		if c.base <= int(m) {
			clear(c.buf[int(m)-c.base:])
			c.buf = c.buf[:int(m)-c.base]
			break
		}
		a.size -= cap(c.buf)
		a.spare = append(a.spare, c.buf[:0])
		a.chunks = a.chunks[:len(a.chunks)-1]
	}
	a.last = -1
}

// Used returns the number of bytes held by live chunks plus those charged
// with Reserve.
func (a *Arena) Used() int {
	return a.size + a.reserved
}

// Reserve charges n bytes of transient data kept outside the chunks, such
// as pointer-carrying records, against the quota. A nil Arena accepts any
// reservation.
func (a *Arena) Reserve(n int) error {
	if a == nil {
		return nil
	}
	if n < 0 || a.limit > 0 && a.size+a.reserved+n > a.limit {
		return ErrArenaExhausted
	}
	a.reserved += n
	return nil
}

// Unreserve returns n bytes charged with Reserve.
func (a *Arena) Unreserve(n int) {
	if a == nil {
		return
	}
	a.reserved = max(a.reserved-n, 0)
}

// Alloc returns a zeroed slice of n bytes whose capacity is exactly n.
func (a *Arena) Alloc(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrArenaExhausted
	}
	if len(a.chunks) > 0 {
		c := &a.chunks[len(a.chunks)-1]
		if cap(c.buf)-len(c.buf) >= n {
			start := len(c.buf)
			c.buf = c.buf[:start+n]
			a.last = start
			return c.buf[start : start+n : start+n], nil
		}
	}
	if err := a.newChunk(n); err != nil {
		return nil, err
	}
	c := &a.chunks[len(a.chunks)-1]
	c.buf = c.buf[:n]
	a.last = 0
	return c.buf[0:n:n], nil
}

// Grow returns b with its capacity extended by extra bytes. When b is the
// most recent allocation and its chunk has room it grows in place; otherwise
// the contents are copied to a new allocation.
func (a *Arena) Grow(b []byte, extra int) ([]byte, error) {
	if extra <= 0 {
		return b, nil
	}
	if len(a.chunks) > 0 && cap(b) > 0 {
		c := &a.chunks[len(a.chunks)-1]
		full := b[:cap(b)]
		if a.last >= 0 && a.last < len(c.buf) && &c.buf[a.last] == &full[0] &&
			a.last+cap(b) == len(c.buf) && cap(c.buf)-len(c.buf) >= extra {
			n := cap(b) + extra
			c.buf = c.buf[:a.last+n]
			return c.buf[a.last : a.last+len(b) : a.last+n], nil
		}
	}
	nb, err := a.Alloc(cap(b) + extra)
	if err != nil {
		return nil, err
	}
	copy(nb, b)
	return nb[:len(b)], nil
}

func (a *Arena) newChunk(n int) error {
	size := a.chunkSize
	if n > size {
		size = n
	}
	if a.limit > 0 && a.size+a.reserved+size > a.limit {
		room := a.limit - a.size - a.reserved
		if n > room {
			return ErrArenaExhausted
		}
		size = room
	}
	base := 0
	if len(a.chunks) > 0 {
		c := a.chunks[len(a.chunks)-1]
		base = c.base + cap(c.buf)
	}
	var buf []byte
	for i := len(a.spare) - 1; i >= 0; i-- {
		if cap(a.spare[i]) >= size {
			buf = a.spare[i][:0]
			clear(buf[:cap(buf)])
			a.spare = append(a.spare[:i], a.spare[i+1:]...)
			break
		}
	}
	if buf == nil {
		buf = make([]byte, 0, size)
	}
	a.chunks = append(a.chunks, arenaChunk{buf: buf, base: base})
	a.size += cap(buf)
	return nil
}
