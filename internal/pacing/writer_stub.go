//go:build !linux
// +build !linux

// File: internal/pacing/writer_stub.go
// Author: momentics <momentics@gmail.com>

package pacing

import (
	"fmt"

	"github.com/momentics/perfnet/api"
)

// SocketWriter is unavailable outside Linux.
func SocketWriter(fd int, p []byte) error {
	return fmt.Errorf("paced socket write: %w", api.ErrNotSupported)
}
