// File: api/pool.go
// Author: momentics <momentics@gmail.com>
//
// Pooling contracts: reusable sockets and reusable byte buffers.

package api

// SocketHandle identifies a claimed pool slot together with the descriptor
// the caller observed when it claimed it.
type SocketHandle struct {
	Class PoolClass
	Slot  int
	FD    int
	Lease uint64 // claim number of the slot; 0 matches the current claim
}

// Valid reports whether h refers to a descriptor.
func (h SocketHandle) Valid() bool { return h.FD != InvalidFD }

// SocketPool hands out reusable outbound sockets per traffic class.
type SocketPool interface {
	// Acquire claims a free slot; ok is false when the class is exhausted.
	Acquire(class PoolClass) (h SocketHandle, ok bool)
	// MarkUnhealthy invalidates the slot's descriptor; exactly one caller closes it.
	MarkUnhealthy(h SocketHandle)
	// Release returns the slot to the pool after a health probe.
	Release(h SocketHandle)
	// Teardown closes every live descriptor exactly once.
	Teardown()
}

// BytePool provides reusable []byte buffers for all high-intensity operations
type BytePool interface {
	// Acquire returns a slice of exactly n bytes.
	Acquire(n int) []byte

	// Release returns a buffer to the pool
	Release(buf []byte)
}
