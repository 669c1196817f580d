//go:build linux
// +build linux

// File: internal/pacing/writer_linux.go
// Author: momentics <momentics@gmail.com>

package pacing

import (
	"errors"

	"golang.org/x/sys/unix"
)

// SocketWriter sends without blocking and without raising SIGPIPE.
func SocketWriter(fd int, p []byte) error {
	_, err := unix.SendmsgN(fd, p, nil, nil, unix.MSG_DONTWAIT|unix.MSG_NOSIGNAL)
	if errors.Is(err, unix.EAGAIN) {
		return ErrWouldBlock
	}
	return err
}
