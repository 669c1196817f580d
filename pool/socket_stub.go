//go:build !linux
// +build !linux

// File: pool/socket_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub SocketOps for unsupported platforms.

package pool

import (
	"fmt"
	"net/netip"

	"github.com/momentics/perfnet/api"
)

var errNoSockets = fmt.Errorf("pool: raw sockets: %w", api.ErrNotSupported)

type stubSocketOps struct{}

// NewSocketOps returns an implementation that refuses every call.
func NewSocketOps() SocketOps { return stubSocketOps{} }

func (stubSocketOps) Open(SocketOptions) (int, error) { return api.InvalidFD, errNoSockets }
func (stubSocketOps) Probe(int) error { return errNoSockets }
func (stubSocketOps) Connect(int, netip.AddrPort) error { return errNoSockets }
func (stubSocketOps) Close(int) error { return errNoSockets }
