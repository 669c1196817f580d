//go:build linux
// +build linux

// File: pool/sockopt_linux.go
// Author: momentics <momentics@gmail.com>
//
// Socket tuning: fast open, QoS marks, low latency, keepalive, buffer sizes
// and interface MTU.

package pool

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/momentics/perfnet/api"
)

// EnableFastOpen turns on client-side TCP Fast Open so the first connect
// carries data in the SYN.
func EnableFastOpen(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_FASTOPEN_CONNECT, 1); err != nil {
		return fmt.Errorf("TCP_FASTOPEN_CONNECT fd=%d: %w", fd, mapSockoptErr(err))
	}
	return nil
}

// FastOpenSupported probes TFO on a throwaway socket.
func FastOpenSupported() bool {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return false
	}
	defer unix.Close(fd)
	return EnableFastOpen(fd) == nil
}

// SetPriority sets SO_PRIORITY (0-6; higher is more important).
func SetPriority(fd, priority int) error {
	if priority < 0 || priority > 6 {
		return fmt.Errorf("SO_PRIORITY %d: %w", priority, api.ErrInvalidArgument)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_PRIORITY, priority); err != nil {
		return fmt.Errorf("SO_PRIORITY fd=%d: %w", fd, mapSockoptErr(err))
	}
	return nil
}

// SetTOS sets the IPv4 TOS byte and the IPv6 traffic class, whichever the
// socket family accepts.
func SetTOS(fd, tos int) error {
	if tos < 0 || tos > 0xff {
		return fmt.Errorf("IP_TOS %d: %w", tos, api.ErrInvalidArgument)
	}
	err4 := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, tos)
	err6 := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tos)
	if err4 != nil && err6 != nil {
		return fmt.Errorf("IP_TOS fd=%d: %w", fd, mapSockoptErr(err4))
	}
	return nil
}

// EnableLowLatency sets TCP_NODELAY and requests quick ACKs.
func EnableLowLatency(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		return fmt.Errorf("TCP_NODELAY fd=%d: %w", fd, mapSockoptErr(err))
	}
	// Quick ACK is a hint the kernel resets on its own.
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_QUICKACK, 1)
	return nil
}

// OptimizeKeepAlive enables keepalive with KeepAliveParams.
func OptimizeKeepAlive(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
		return fmt.Errorf("SO_KEEPALIVE fd=%d: %w", fd, mapSockoptErr(err))
	}
	p := KeepAliveParams
	return errors.Join(
		unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, int(p.Idle.Seconds())),
		unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, int(p.Interval.Seconds())),
		unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPCNT, p.Count),
	)
}

// SetBuffers sets SO_SNDBUF and SO_RCVBUF; zero leaves a side untouched.
func SetBuffers(fd, send, recv int) error {
	var errs []error
	if send > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, send); err != nil {
			errs = append(errs, fmt.Errorf("SO_SNDBUF fd=%d: %w", fd, mapSockoptErr(err)))
		}
	}
	if recv > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, recv); err != nil {
			errs = append(errs, fmt.Errorf("SO_RCVBUF fd=%d: %w", fd, mapSockoptErr(err)))
		}
	}
	return errors.Join(errs...)
}

// OptimizeBuffers applies the buffer sizes tuned for the link kind.
func OptimizeBuffers(fd int, network api.NetworkType) error {
	n := SocketBufferSize(network)
	return SetBuffers(fd, n, n)
}

// SetInterfaceMTU sets the MTU of interface name through the control socket fd.
func SetInterfaceMTU(fd int, name string, mtu int) error {
	if mtu < 576 || mtu > 65535 {
		return fmt.Errorf("mtu %d: %w", mtu, api.ErrInvalidArgument)
	}
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return fmt.Errorf("ifreq %q: %w", name, api.ErrInvalidArgument)
	}
	ifr.SetUint32(uint32(mtu))
	if err := unix.IoctlIfreq(fd, unix.SIOCSIFMTU, ifr); err != nil {
		return fmt.Errorf("SIOCSIFMTU %s: %w", name, mapSockoptErr(err))
	}
	return nil
}

// InterfaceMTU reads the MTU of interface name.
func InterfaceMTU(fd int, name string) (int, error) {
	ifr, err := unix.NewIfreq(name)
	if err != nil {
		return 0, fmt.Errorf("ifreq %q: %w", name, api.ErrInvalidArgument)
	}
	if err := unix.IoctlIfreq(fd, unix.SIOCGIFMTU, ifr); err != nil {
		return 0, fmt.Errorf("SIOCGIFMTU %s: %w", name, mapSockoptErr(err))
	}
	return int(ifr.Uint32()), nil
}

func mapSockoptErr(err error) error {
	switch {
	case errors.Is(err, unix.ENOPROTOOPT), errors.Is(err, unix.EOPNOTSUPP):
		return fmt.Errorf("%w: %v", api.ErrNotSupported, err)
	case errors.Is(err, unix.EBADF), errors.Is(err, unix.ENOTSOCK), errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENODEV):
		return fmt.Errorf("%w: %v", api.ErrInvalidArgument, err)
	default:
		return err
	}
}
