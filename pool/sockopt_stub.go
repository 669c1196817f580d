//go:build !linux
// +build !linux

// File: pool/sockopt_stub.go
// Author: momentics <momentics@gmail.com>
//
// Socket tuning is Linux-only.

package pool

import "github.com/momentics/perfnet/api"

func EnableFastOpen(fd int) error { return errNoSockets }

func FastOpenSupported() bool { return false }

func SetPriority(fd, priority int) error { return errNoSockets }

func SetTOS(fd, tos int) error { return errNoSockets }

func EnableLowLatency(fd int) error { return errNoSockets }

func OptimizeKeepAlive(fd int) error { return errNoSockets }

func SetBuffers(fd, send, recv int) error { return errNoSockets }

func OptimizeBuffers(fd int, network api.NetworkType) error { return errNoSockets }

func SetInterfaceMTU(fd int, name string, mtu int) error { return errNoSockets }

func InterfaceMTU(fd int, name string) (int, error) { return 0, errNoSockets }
