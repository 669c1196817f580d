// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared tagged variants and constants of the native interface.

package api

import "fmt"

// InvalidFD marks a socket slot that owns no descriptor.
const InvalidFD = -1

// PoolClass selects the traffic class a pooled socket belongs to.
type PoolClass int32

const (
	ClassH2Stream PoolClass = iota
	ClassVision
	ClassReserve

	numPoolClasses
)

// PoolClasses lists every class in index order.
func PoolClasses() []PoolClass {
	return []PoolClass{ClassH2Stream, ClassVision, ClassReserve}
}

// NumPoolClasses is the number of defined classes.
func NumPoolClasses() int { return int(numPoolClasses) }

// Valid reports whether c is a defined class.
func (c PoolClass) Valid() bool {
	return c >= 0 && c < numPoolClasses
}

func (c PoolClass) String() string {
	switch c {
	case ClassH2Stream:
		return "h2-stream"
	case ClassVision:
		return "vision"
	case ClassReserve:
		return "reserve"
	default:
		return fmt.Sprintf("class(%d)", int32(c))
	}
}

// ParsePoolClass converts an FFI class id.
func ParsePoolClass(id int32) (PoolClass, error) {
	c := PoolClass(id)
	if !c.Valid() {
		return 0, fmt.Errorf("pool class %d: %w", id, ErrInvalidArgument)
	}
	return c, nil
}

// NetworkType is the radio/link kind reported by the control layer.
type NetworkType int32

const (
	NetworkLTE NetworkType = iota
	Network5G
	NetworkWiFi
)

// OptimalMTU returns the tunnel MTU tuned for the link kind.
// Unknown kinds fall back to the LTE value.
func (n NetworkType) OptimalMTU() int {
	switch n {
	case Network5G:
		return 1460
	case NetworkWiFi:
		return 1500
	default:
		// 1500 minus IPv6 header with options and tunnel overhead.
		return 1436
	}
}

func (n NetworkType) String() string {
	switch n {
	case NetworkLTE:
		return "lte"
	case Network5G:
		return "5g"
	case NetworkWiFi:
		return "wifi"
	default:
		return fmt.Sprintf("network(%d)", int32(n))
	}
}

// Interest and readiness bits. Values match epoll(7) so masks cross the
// boundary unchanged.
const (
	EventRead  uint32 = 0x001
	EventPri   uint32 = 0x002
	EventWrite uint32 = 0x004
	EventError uint32 = 0x008
	EventHup   uint32 = 0x010
	EventRDHup uint32 = 0x2000
)

// Event is a readiness notification for one descriptor.
type Event struct {
	Fd   int32
	Mask uint32
}

// Pack encodes the event as fd<<32 | mask.
func (e Event) Pack() int64 {
	return int64(e.Fd)<<32 | int64(e.Mask)
}

// UnpackEvent reverses Pack.
func UnpackEvent(v int64) Event {
	return Event{Fd: int32(v >> 32), Mask: uint32(v)}
}
