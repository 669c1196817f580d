//go:build !linux
// +build !linux

// File: pool/zerocopy_stub.go
// Author: momentics <momentics@gmail.com>
//
// Direct socket I/O is Linux-only.

package pool

import (
	"fmt"

	"github.com/momentics/perfnet/api"
)

const (
	ZeroCopyThreshold = 10 * 1024
	MaxIOVecs         = 1024
)

var ErrPeerClosed = fmt.Errorf("peer closed: %w", api.ErrClosed)

type ZeroCopyCompletions struct {
	Completed int
	Copied    int
}

func EnableZeroCopy(fd int) error { return errNoSockets }

func SendZeroCopy(fd int, p []byte) (int, bool, error) { return 0, false, errNoSockets }

func ReapZeroCopy(fd int) (ZeroCopyCompletions, error) { return ZeroCopyCompletions{}, errNoSockets }

func RecvDirect(fd int, p []byte) (int, error) { return 0, errNoSockets }

func RecvMsg(fd int, bufs [][]byte) (int, error) { return 0, errNoSockets }

func Peek(fd int, p []byte) (int, error) { return 0, errNoSockets }

func Pending(fd int) (int, error) { return 0, errNoSockets }
