package native

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAlloc(t *testing.T) {
	m := newMemory(1)
	a := m.alloc(12)
	b := m.alloc(8)

	assert.NotZero(t, a)
	assert.Zero(t, a%alignment)
	assert.Equal(t, a+16, b)
	assert.Equal(t, 24, m.inUse)

	m.release(a)
	assert.Equal(t, 8, m.inUse)
	assert.Equal(t, a, m.alloc(16), "freed span is reused")
}

func TestMemoryGrowRelocates(t *testing.T) {
	m := newMemory(1)
	off := m.alloc(64)
	m.putF64(off, 0, 3.5)
	before := m.buf

	big := m.alloc(2 * pageSize)
	assert.Equal(t, 1, m.grows)
	assert.NotSame(t, &before[0], &m.buf[0])
	assert.Equal(t, 3.5, m.f64(off, 0))
	assert.Zero(t, len(m.buf)%pageSize)
	assert.NotZero(t, big)
}

func TestMemoryRealloc(t *testing.T) {
	m := newMemory(1)
	off := m.alloc(16)
	m.putI32(off, 3, 42)

	assert.Equal(t, off, m.realloc(off, 8), "shrinking keeps the block")

	m.alloc(8)
	moved := m.realloc(off, 64)
	require.NotEqual(t, off, moved)
	assert.EqualValues(t, 42, m.i32(moved, 3))
	assert.Equal(t, 64+8, m.inUse)
}

func TestMemoryReset(t *testing.T) {
	m := newMemory(1)
	m.alloc(100)
	m.reset()
	assert.Zero(t, m.inUse)
	assert.EqualValues(t, alignment, m.alloc(8))
}

func TestParallelForCoversRange(t *testing.T) {
	for _, workers := range []int{1, 2, 8} {
		seen := make([]int, 1000)
		parallelFor(len(seen), 16, workers, func(start, end int) {
			for i := start; i < end; i++ {
				seen[i]++
			}
		})
		for i, n := range seen {
			require.Equal(t, 1, n, "index %d with %d workers", i, workers)
		}
	}
}
