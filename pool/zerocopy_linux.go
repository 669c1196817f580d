//go:build linux
// +build linux

// File: pool/zerocopy_linux.go
// Author: momentics <momentics@gmail.com>
//
// Direct socket I/O for pooled descriptors: MSG_ZEROCOPY sends with their
// completion queue, scatter-gather receive and non-consuming peeks. Every call
// is non-blocking; "would block" is reported as zero bytes.

package pool

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/perfnet/api"
)

// ZeroCopyThreshold is the smallest payload sent with MSG_ZEROCOPY. Page
// pinning costs more than a copy below it.
const ZeroCopyThreshold = 10 * 1024

// MaxIOVecs bounds the segment count of one scatter-gather receive.
const MaxIOVecs = 1024

// ErrPeerClosed reports an orderly shutdown by the peer.
var ErrPeerClosed = fmt.Errorf("peer closed: %w", api.ErrClosed)

// ZeroCopyCompletions summarises drained MSG_ZEROCOPY notifications.
type ZeroCopyCompletions struct {
	Completed int // sends whose pages the kernel released
	Copied    int // of those, sends the kernel fell back to copying
}

// EnableZeroCopy sets SO_ZEROCOPY so SendZeroCopy can pin pages instead of
// copying them.
func EnableZeroCopy(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ZEROCOPY, 1); err != nil {
		return fmt.Errorf("SO_ZEROCOPY fd=%d: %w", fd, mapSockoptErr(err))
	}
	return nil
}

// SendZeroCopy sends p without blocking. Payloads of ZeroCopyThreshold bytes
// or more go out with MSG_ZEROCOPY; the kernel then owns the pages until
// ReapZeroCopy reports them complete, so p must not be modified before that.
// It returns the bytes accepted, whether zero-copy was requested, and 0 with
// no error when the socket would block.
func SendZeroCopy(fd int, p []byte) (int, bool, error) {
	flags := unix.MSG_DONTWAIT | unix.MSG_NOSIGNAL
	zc := len(p) >= ZeroCopyThreshold
	if zc {
		n, err := unix.SendmsgN(fd, p, nil, nil, flags|unix.MSG_ZEROCOPY)
		switch {
		case err == nil:
			return n, true, nil
		case errors.Is(err, unix.ENOBUFS), errors.Is(err, unix.EOPNOTSUPP), errors.Is(err, unix.EINVAL):
			// optmem exhausted or unsupported: fall through to a copying send
			zc = false
		default:
			return wouldBlock(fd, "sendmsg", err)
		}
	}
	n, err := unix.SendmsgN(fd, p, nil, nil, flags)
	if err != nil {
		n, _, err = wouldBlock(fd, "sendmsg", err)
	}
	return n, zc, err
}

// ReapZeroCopy drains the socket error queue and counts finished zero-copy
// sends. Callers reuse buffers only after their sends completed.
func ReapZeroCopy(fd int) (ZeroCopyCompletions, error) {
	var out ZeroCopyCompletions
	// sock_extended_err plus the offender address, IPv6 being the larger
	oob := make([]byte, unix.CmsgSpace(16+unix.SizeofSockaddrInet6))
	for {
		_, oobn, _, _, err := unix.Recvmsg(fd, nil, oob, unix.MSG_ERRQUEUE|unix.MSG_DONTWAIT)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
				return out, nil
			}
			return out, fmt.Errorf("errqueue fd=%d: %w", fd, mapSockoptErr(err))
		}
		msgs, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return out, fmt.Errorf("errqueue fd=%d: %w", fd, err)
		}
		for _, m := range msgs {
			ee, ok := extendedErr(m)
			if !ok || ee.Origin != unix.SO_EE_ORIGIN_ZEROCOPY {
				continue
			}
			// Info..Data is the inclusive range of completed send sequence numbers.
			count := int(ee.Data - ee.Info + 1)
			out.Completed += count
			if ee.Code&unix.SO_EE_CODE_ZEROCOPY_COPIED != 0 {
				out.Copied += count
			}
		}
	}
}

func extendedErr(m unix.SocketControlMessage) (unix.SockExtendedErr, bool) {
	var ee unix.SockExtendedErr
	recverr := (m.Header.Level == unix.SOL_IP && m.Header.Type == unix.IP_RECVERR) ||
		(m.Header.Level == unix.SOL_IPV6 && m.Header.Type == unix.IPV6_RECVERR)
	if !recverr || len(m.Data) < 16 {
		return ee, false
	}
	ee.Errno = binary.NativeEndian.Uint32(m.Data[0:])
	ee.Origin = m.Data[4]
	ee.Type = m.Data[5]
	ee.Code = m.Data[6]
	ee.Info = binary.NativeEndian.Uint32(m.Data[8:])
	ee.Data = binary.NativeEndian.Uint32(m.Data[12:])
	return ee, true
}

// RecvDirect reads into p without blocking. It returns 0 when nothing is
// queued and ErrPeerClosed after the peer shut down.
func RecvDirect(fd int, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, fmt.Errorf("recv: empty buffer: %w", api.ErrInvalidArgument)
	}
	n, _, err := unix.Recvfrom(fd, p, unix.MSG_DONTWAIT)
	if err != nil {
		n, _, err = wouldBlock(fd, "recv", err)
		return n, err
	}
	if n == 0 {
		return 0, ErrPeerClosed
	}
	return n, nil
}

// RecvMsg scatters one non-blocking receive across bufs and returns the total
// byte count, filling each buffer before the next.
func RecvMsg(fd int, bufs [][]byte) (int, error) {
	if len(bufs) == 0 || len(bufs) > MaxIOVecs {
		return 0, fmt.Errorf("recvmsg: %d buffers: %w", len(bufs), api.ErrInvalidArgument)
	}
	total := 0
	for _, b := range bufs {
		total += len(b)
	}
	if total == 0 {
		return 0, fmt.Errorf("recvmsg: empty buffers: %w", api.ErrInvalidArgument)
	}
	n, _, _, _, err := unix.RecvmsgBuffers(fd, bufs, nil, unix.MSG_DONTWAIT)
	if err != nil {
		n, _, err = wouldBlock(fd, "recvmsg", err)
		return n, err
	}
	if n == 0 {
		return 0, ErrPeerClosed
	}
	return n, nil
}

// Peek copies queued bytes into p without consuming them, priming the
// kernel receive path ahead of the real read. 0 means nothing is queued.
func Peek(fd int, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, fmt.Errorf("peek: empty buffer: %w", api.ErrInvalidArgument)
	}
	n, _, err := unix.Recvfrom(fd, p, unix.MSG_PEEK|unix.MSG_DONTWAIT)
	if err != nil {
		n, _, err = wouldBlock(fd, "peek", err)
	}
	return n, err
}

// Pending reports how many bytes are queued for reading on fd.
func Pending(fd int) (int, error) {
	n, err := unix.IoctlGetInt(fd, unix.SIOCINQ)
	if err != nil {
		return 0, fmt.Errorf("SIOCINQ fd=%d: %w", fd, mapSockoptErr(err))
	}
	return n, nil
}

func wouldBlock(fd int, op string, err error) (int, bool, error) {
	if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
		return 0, false, nil
	}
	if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET) {
		return 0, false, fmt.Errorf("%s fd=%d: %w: %v", op, fd, ErrPeerClosed, err)
	}
	return 0, false, fmt.Errorf("%s fd=%d: %w", op, fd, mapSockoptErr(err))
}
