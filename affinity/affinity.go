// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files guarded by build tags.

package affinity

import (
	"fmt"

	"github.com/momentics/perfnet/api"
)

// ErrNotSupported is returned where the kernel offers no thread affinity call.
var ErrNotSupported = fmt.Errorf("affinity: %w", api.ErrNotSupported)

// SetAffinity pins the current OS thread to a given logical CPU.
// The caller must hold runtime.LockOSThread for the pin to stay meaningful.
func SetAffinity(cpuID int) error {
	if cpuID < 0 || cpuID >= 64 {
		return fmt.Errorf("affinity: cpu %d: %w", cpuID, api.ErrInvalidArgument)
	}
	return SetMask(uint64(1) << uint(cpuID))
}

// SetMask pins the current OS thread to every CPU whose bit is set in mask.
func SetMask(mask uint64) error {
	if mask == 0 {
		return fmt.Errorf("affinity: empty mask: %w", api.ErrInvalidArgument)
	}
	return setMaskPlatform(mask)
}

// CurrentCPU returns the CPU the calling thread is running on.
func CurrentCPU() (int, error) {
	return currentCPUPlatform()
}
