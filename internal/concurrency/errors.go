// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import (
	"errors"
	"fmt"

	"github.com/momentics/perfnet/api"
)

var (
	// ErrNotPowerOfTwo indicates a ring dimension that cannot be masked
	ErrNotPowerOfTwo = fmt.Errorf("size must be a power of two: %w", api.ErrInvalidArgument)

	// ErrPacketTooLarge indicates a packet that can never fit the arena
	ErrPacketTooLarge = fmt.Errorf("packet too large: %w", api.ErrInvalidArgument)

	// ErrShortBuffer indicates a destination smaller than the next packet
	ErrShortBuffer = fmt.Errorf("destination buffer too small: %w", api.ErrInvalidArgument)

	// ErrRingFull indicates no free slot or arena space
	ErrRingFull = fmt.Errorf("ring full: %w", api.ErrResourceExhausted)

	// ErrRingEmpty indicates no published packet
	ErrRingEmpty = errors.New("ring empty")

	// ErrStaleSlot indicates a slot from a different generation than expected
	ErrStaleSlot = errors.New("stale ring slot")

	// ErrRingBusy indicates an overlapping second producer or consumer
	ErrRingBusy = fmt.Errorf("ring accessed by concurrent producer or consumer: %w", api.ErrInvalidArgument)

	// ErrRingClosed indicates use after Destroy
	ErrRingClosed = fmt.Errorf("ring destroyed: %w", api.ErrClosed)

	// ErrLoopClosed indicates an event loop that is shutting down or destroyed
	ErrLoopClosed = fmt.Errorf("event loop closed: %w", api.ErrClosed)

	// ErrInvalidDescriptor indicates a negative descriptor
	ErrInvalidDescriptor = fmt.Errorf("invalid descriptor: %w", api.ErrInvalidArgument)

	// ErrAlreadyRegistered indicates a descriptor registered twice
	ErrAlreadyRegistered = fmt.Errorf("descriptor already registered: %w", api.ErrAlreadyExists)

	// ErrNotRegistered indicates removal of an unknown descriptor
	ErrNotRegistered = fmt.Errorf("descriptor not registered: %w", api.ErrNotFound)
)
