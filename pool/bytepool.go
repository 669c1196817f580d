// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
//
// Size-classed byte buffer pool. Each class holds buffers of one power-of-two
// capacity; requests above the largest class are allocated directly.

package pool

import (
	"math/bits"

	"go.uber.org/atomic"

	"github.com/momentics/perfnet/api"
)

const (
	minClassShift = 6  // 64 B
	maxClassShift = 16 // 64 KiB
)

// BytePool recycles []byte buffers in size classes.
type BytePool struct {
	classes [maxClassShift - minClassShift + 1]*SyncPool[*[]byte]

	totalFree atomic.Uint64
	oversize  atomic.Uint64
}

var _ api.BytePool = (*BytePool)(nil)

// NewBytePool creates an empty pool.
func NewBytePool() *BytePool {
	bp := &BytePool{}
	for i := range bp.classes {
		size := 1 << (minClassShift + i)
		bp.classes[i] = NewSyncPool(func() *[]byte {
			b := make([]byte, size)
			return &b
		}, restoreLen)
	}
	return bp
}

// classIndex returns the class for n bytes, or -1 when n exceeds every class.
func classIndex(n int) int {
	if n <= 1<<minClassShift {
		return 0
	}
	shift := bits.Len(uint(n - 1))
	if shift > maxClassShift {
		return -1
	}
	return shift - minClassShift
}

// restoreLen re-extends a returned buffer to its class capacity.
func restoreLen(b *[]byte) { *b = (*b)[:cap(*b)] }

// Acquire returns a slice of exactly n bytes. Contents are unspecified.
func (bp *BytePool) Acquire(n int) []byte {
	if n < 0 {
		n = 0
	}
	idx := classIndex(n)
	if idx < 0 {
		bp.oversize.Inc()
		return make([]byte, n)
	}
	return (*bp.classes[idx].Get())[:n]
}

// Release returns buf to its class. Buffers not produced by Acquire are
// accepted when their capacity matches a class exactly, and dropped otherwise.
func (bp *BytePool) Release(buf []byte) {
	c := cap(buf)
	if c == 0 || c&(c-1) != 0 {
		return
	}
	idx := classIndex(c)
	if idx < 0 {
		return
	}
	bp.totalFree.Inc()
	bp.classes[idx].Put(&buf)
}

// BytePoolStats reports allocation counters.
type BytePoolStats struct {
	TotalAlloc uint64 `json:"total_alloc"`
	TotalFree  uint64 `json:"total_free"`
	Oversize   uint64 `json:"oversize"`
}

// Stats returns a snapshot of counters.
func (bp *BytePool) Stats() BytePoolStats {
	var allocs uint64
	for _, c := range bp.classes {
		allocs += c.Allocations()
	}
	return BytePoolStats{
		TotalAlloc: allocs,
		TotalFree:  bp.totalFree.Load(),
		Oversize:   bp.oversize.Load(),
	}
}
