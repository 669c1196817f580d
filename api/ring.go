// Package api
// Author: momentics@gmail.com
//
// Packet ring contract for cross-thread producer/consumer hand-off.

package api

// PacketMeta travels with every packet stored in a ring.
type PacketMeta struct {
	TimestampNs uint64
	Length      uint32
	Flags       uint16
	QueueID     uint16
}

// Packet flag bits understood by the substrate.
const (
	FlagEncrypted uint16 = 1 << 0
	FlagPriority  uint16 = 1 << 1
)

// PacketRing is a bounded, non-blocking packet ring.
type PacketRing interface {
	// Write copies data into the ring; returns an error when full or closed.
	Write(data []byte, flags, queue uint16) error
	// Read copies the oldest packet into dst.
	Read(dst []byte) (PacketMeta, error)
	// Len returns the number of unread packets.
	Len() int
	// Cap returns the slot capacity.
	Cap() int
	// Destroy releases the ring. Callers must have stopped all readers and writers.
	Destroy()
}
