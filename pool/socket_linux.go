//go:build linux
// +build linux

// File: pool/socket_linux.go
// Author: momentics <momentics@gmail.com>
//
// Kernel-backed SocketOps.

package pool

import (
	"errors"
	"fmt"
	"net/netip"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/momentics/perfnet/api"
	"github.com/momentics/perfnet/internal/logging"
)

type unixSocketOps struct{}

// NewSocketOps returns the kernel-backed implementation.
func NewSocketOps() SocketOps { return unixSocketOps{} }

// Open creates a dual-stack non-blocking TCP socket. IPv6 sockets with
// IPV6_V6ONLY cleared accept IPv4 peers through mapped addresses.
func (unixSocketOps) Open(opts SocketOptions) (int, error) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err == nil {
		if serr := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); serr != nil {
			unix.Close(fd)
			err = serr
		}
	}
	if err != nil {
		// Kernels without IPv6 still get an IPv4 socket.
		fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
		if err != nil {
			return api.InvalidFD, fmt.Errorf("socket: %w", err)
		}
	}
	applyOptions(fd, opts)
	return fd, nil
}

// applyOptions is best effort: an unsupported option leaves a usable socket.
func applyOptions(fd int, opts SocketOptions) {
	log := logging.Named("pool")
	try := func(name string, err error) {
		if err != nil {
			log.Debug("socket option unavailable", zap.String("option", name), zap.Int("fd", fd), zap.Error(err))
		}
	}
	try("SO_REUSEADDR", unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1))
	if opts.NoDelay {
		try("TCP_NODELAY", EnableLowLatency(fd))
	}
	if opts.FastOpen {
		try("TCP_FASTOPEN_CONNECT", EnableFastOpen(fd))
	}
	if opts.KeepAlive {
		try("SO_KEEPALIVE", OptimizeKeepAlive(fd))
	}
	if opts.SendBuffer > 0 || opts.RecvBuffer > 0 {
		try("SO_SNDBUF/SO_RCVBUF", SetBuffers(fd, opts.SendBuffer, opts.RecvBuffer))
	}
	if opts.Priority >= 0 {
		try("SO_PRIORITY", SetPriority(fd, opts.Priority))
	}
	if opts.TOS >= 0 {
		try("IP_TOS", SetTOS(fd, opts.TOS))
	}
}

// Probe checks SO_ERROR, then peeks one byte without blocking: EOF means the
// peer closed, EAGAIN means idle and healthy.
func (unixSocketOps) Probe(fd int) error {
	soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return fmt.Errorf("probe fd=%d: %w", fd, err)
	}
	if soErr != 0 {
		return fmt.Errorf("probe fd=%d: %w", fd, unix.Errno(soErr))
	}
	var b [1]byte
	n, _, err := unix.Recvfrom(fd, b[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
	switch {
	case err == nil && n == 0:
		return fmt.Errorf("probe fd=%d: %w", fd, ErrPeerClosed)
	case err == nil:
		return nil
	case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.ENOTCONN):
		// Idle, or never connected: the socket itself is fine.
		return nil
	default:
		return fmt.Errorf("probe fd=%d: %w", fd, err)
	}
}

func (unixSocketOps) Connect(fd int, addr netip.AddrPort) error {
	var sa unix.Sockaddr
	domain, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_DOMAIN)
	if err != nil {
		return fmt.Errorf("connect fd=%d: %w", fd, err)
	}
	ip := addr.Addr()
	switch {
	case domain == unix.AF_INET6:
		sa = &unix.SockaddrInet6{Port: int(addr.Port()), Addr: ip.As16()}
	case ip.Is4():
		sa = &unix.SockaddrInet4{Port: int(addr.Port()), Addr: ip.As4()}
	default:
		return fmt.Errorf("connect fd=%d to %s on an IPv4 socket: %w", fd, addr, api.ErrNotSupported)
	}
	err = unix.Connect(fd, sa)
	if err == nil || errors.Is(err, unix.EINPROGRESS) || errors.Is(err, unix.EALREADY) || errors.Is(err, unix.EISCONN) {
		return nil
	}
	return fmt.Errorf("connect fd=%d to %s: %w", fd, addr, err)
}

func (unixSocketOps) Close(fd int) error {
	return unix.Close(fd)
}
