package native

import (
	"encoding/binary"
	"math"
)

const (
	pageSize  = 64 * 1024
	alignment = 8
)

type span struct {
	off, size int
}

// memory is the engine's linear arena. Growing swaps the backing slice, so
// any slice taken before a grow is detached from engine state.
type memory struct {
	buf   []byte
	top   int
	live  map[uint32]int
	free  []span
	inUse int
	grows int
}

func newMemory(pages int) *memory {
	if pages < 1 {
		pages = 1
	}
	return &memory{
		buf:  make([]byte, pages*pageSize),
		top:  alignment, // offset 0 is null
		live: make(map[uint32]int),
	}
}

func align(n int) int {
	if n <= 0 {
		return alignment
	}
	return (n + alignment - 1) &^ (alignment - 1)
}

func (m *memory) alloc(n int) uint32 {
	n = align(n)
	for i, s := range m.free {
		if s.size < n {
			continue
		}
		if s.size == n {
			m.free = append(m.free[:i], m.free[i+1:]...)
		} else {
			m.free[i] = span{off: s.off + n, size: s.size - n}
		}
		return m.claim(s.off, n)
	}
	if m.top+n > len(m.buf) {
		m.grow(m.top + n)
	}
	off := m.top
	m.top += n
	return m.claim(off, n)
}

func (m *memory) claim(off, n int) uint32 {
	clear(m.buf[off : off+n])
	m.live[uint32(off)] = n
	m.inUse += n
	return uint32(off)
}

func (m *memory) grow(need int) {
	size := len(m.buf) * 2
	for size < need {
		size *= 2
	}
	size = (size + pageSize - 1) / pageSize * pageSize
	buf := make([]byte, size)
	copy(buf, m.buf[:m.top])
	m.buf = buf
	m.grows++
}

func (m *memory) release(off uint32) {
	n, ok := m.live[off]
	if !ok {
		return
	}
	delete(m.live, off)
	m.inUse -= n
	m.free = append(m.free, span{off: int(off), size: n})
}

// realloc returns a block of at least n bytes holding the old contents. The
// block moves when it has to grow.
func (m *memory) realloc(off uint32, n int) uint32 {
	if off == 0 {
		return m.alloc(n)
	}
	old := m.live[off]
	if old >= align(n) {
		return off
	}
	moved := m.alloc(n)
	copy(m.buf[moved:int(moved)+old], m.buf[off:int(off)+old])
	m.release(off)
	return moved
}

func (m *memory) reset() {
	m.top = alignment
	m.live = make(map[uint32]int)
	m.free = nil
	m.inUse = 0
	clear(m.buf)
}

func (m *memory) putF64(off uint32, i int, v float64) {
	binary.LittleEndian.PutUint64(m.buf[int(off)+8*i:], math.Float64bits(v))
}

func (m *memory) f64(off uint32, i int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(m.buf[int(off)+8*i:]))
}

func (m *memory) putI32(off uint32, i int, v int32) {
	binary.LittleEndian.PutUint32(m.buf[int(off)+4*i:], uint32(v))
}

func (m *memory) i32(off uint32, i int) int32 {
	return int32(binary.LittleEndian.Uint32(m.buf[int(off)+4*i:]))
}
