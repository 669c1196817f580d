//go:build !linux
// +build !linux

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package affinity

func setMaskPlatform(mask uint64) error {
	return ErrNotSupported
}

func currentCPUPlatform() (int, error) {
	return -1, ErrNotSupported
}
