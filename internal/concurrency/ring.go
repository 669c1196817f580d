// File: internal/concurrency/ring.go
// Package concurrency implements lock-free packet rings.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// SequencedRing is a single-producer/single-consumer packet ring. Each slot
// carries a sequence number that encodes both its state and its generation,
// so a reader never consumes a slot that belongs to another lap (ABA).
// Payload bytes live in a ring-owned arena addressed by masked cursors.

package concurrency

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/momentics/perfnet/api"
)

// Ensure compile-time interface compliance.
var _ api.PacketRing = (*SequencedRing)(nil)

// Slot sequence protocol for a slot reached by cursor c:
//
//	seq == c      free, writable by the producer at cursor c
//	seq == c+1    published, readable by the consumer at cursor c
//	seq == c+size recycled for the next lap
type ringSlot struct {
	seq    atomic.Uint64
	meta   api.PacketMeta
	offset uint64 // arena cursor of the first payload byte
}

// SequencedRing is a bounded SPSC packet ring with ABA-safe slots.
type SequencedRing struct {
	writeCursor atomic.Uint64
	arenaWrite  uint64 // producer-owned
	writing     atomic.Bool
	_           [64]byte // Padding for hot/cold separation

	readCursor atomic.Uint64
	arenaRead  atomic.Uint64 // published by the consumer after copy-out
	reading    atomic.Bool
	_          [64]byte // Padding to separate reader state from shared data

	mask      uint64
	arenaMask uint64
	slots     []ringSlot
	arena     []byte
	closed    atomic.Bool
	clock     func() uint64
}

// NewSequencedRing allocates a ring with slotCount slots and arenaBytes of
// payload storage. Both must be powers of two.
func NewSequencedRing(slotCount, arenaBytes int) (*SequencedRing, error) {
	if !isPowerOfTwo(slotCount) {
		return nil, fmt.Errorf("ring slots %d: %w", slotCount, ErrNotPowerOfTwo)
	}
	if !isPowerOfTwo(arenaBytes) {
		return nil, fmt.Errorf("ring arena %d: %w", arenaBytes, ErrNotPowerOfTwo)
	}
	r := &SequencedRing{
		mask:      uint64(slotCount - 1),
		arenaMask: uint64(arenaBytes - 1),
		slots:     make([]ringSlot, slotCount),
		arena:     make([]byte, arenaBytes),
		clock:     func() uint64 { return uint64(time.Now().UnixNano()) },
	}
	for i := range r.slots {
		r.slots[i].seq.Store(uint64(i))
	}
	return r, nil
}

// Write copies data into the ring with the given metadata. It never blocks:
// a full ring returns ErrRingFull and leaves unread packets untouched.
func (r *SequencedRing) Write(data []byte, flags, queue uint16) error {
	if r.closed.Load() {
		return ErrRingClosed
	}
	n := uint64(len(data))
	if n > uint64(len(r.arena)) {
		return fmt.Errorf("packet of %d bytes exceeds arena of %d: %w", n, len(r.arena), ErrPacketTooLarge)
	}
	if !r.writing.CompareAndSwap(false, true) {
		return ErrRingBusy
	}
	defer r.writing.Store(false)

	w := r.writeCursor.Load()
	s := &r.slots[w&r.mask]
	if s.seq.Load() != w {
		return ErrRingFull
	}
	aw := r.arenaWrite
	if aw+n-r.arenaRead.Load() > uint64(len(r.arena)) {
		return ErrRingFull
	}

	r.copyIn(aw, data)
	s.offset = aw
	s.meta = api.PacketMeta{
		TimestampNs: r.clock(),
		Length:      uint32(n),
		Flags:       flags,
		QueueID:     queue,
	}
	r.arenaWrite = aw + n

	// Publish: payload and metadata become visible to the reader here.
	s.seq.Store(w + 1)
	r.writeCursor.Store(w + 1)
	return nil
}

// Read copies the oldest packet into dst and returns its metadata.
// An empty ring returns ErrRingEmpty; a slot whose sequence belongs to a
// different generation than the reader expects returns ErrStaleSlot.
func (r *SequencedRing) Read(dst []byte) (api.PacketMeta, error) {
	if r.closed.Load() {
		return api.PacketMeta{}, ErrRingClosed
	}
	if !r.reading.CompareAndSwap(false, true) {
		return api.PacketMeta{}, ErrRingBusy
	}
	defer r.reading.Store(false)

	rc := r.readCursor.Load()
	s := &r.slots[rc&r.mask]
	seq := s.seq.Load()
	switch {
	case seq == rc+1:
	case seq <= rc:
		return api.PacketMeta{}, ErrRingEmpty
	default:
		return api.PacketMeta{}, fmt.Errorf("slot %d seq %d, reader expects %d: %w", rc&r.mask, seq, rc+1, ErrStaleSlot)
	}

	meta := s.meta
	if len(dst) < int(meta.Length) {
		return meta, fmt.Errorf("need %d bytes, have %d: %w", meta.Length, len(dst), ErrShortBuffer)
	}
	r.copyOut(dst[:meta.Length], s.offset)

	r.arenaRead.Store(s.offset + uint64(meta.Length))
	s.seq.Store(rc + uint64(len(r.slots)))
	r.readCursor.Store(rc + 1)
	return meta, nil
}

func (r *SequencedRing) copyIn(cursor uint64, data []byte) {
	pos := cursor & r.arenaMask
	n := copy(r.arena[pos:], data)
	if n < len(data) {
		copy(r.arena, data[n:])
	}
}

func (r *SequencedRing) copyOut(dst []byte, cursor uint64) {
	pos := cursor & r.arenaMask
	n := copy(dst, r.arena[pos:])
	if n < len(dst) {
		copy(dst[n:], r.arena)
	}
}

// Len returns the number of unread packets.
func (r *SequencedRing) Len() int {
	return int(r.writeCursor.Load() - r.readCursor.Load())
}

// Cap returns the slot capacity.
func (r *SequencedRing) Cap() int {
	return len(r.slots)
}

// ArenaCap returns the payload capacity in bytes.
func (r *SequencedRing) ArenaCap() int {
	return len(r.arena)
}

// Destroy closes the ring. Writers and readers must have stopped; any later
// call is refused with ErrRingClosed.
func (r *SequencedRing) Destroy() {
	r.closed.Store(true)
}

// Closed reports whether Destroy has run.
func (r *SequencedRing) Closed() bool {
	return r.closed.Load()
}

func isPowerOfTwo(v int) bool {
	return v > 0 && v&(v-1) == 0
}

// NextPowerOfTwo rounds v up to a power of two; zero becomes one.
func NextPowerOfTwo(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
