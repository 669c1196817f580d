//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import "github.com/momentics/perfnet/api"

type epollPoller struct{}

// NewPoller returns ErrUnsupported outside Linux.
func NewPoller(maxEvents int) (api.Poller, error) {
	return nil, ErrUnsupported
}

func (p *epollPoller) Add(fd int, mask uint32) error { return ErrUnsupported }
func (p *epollPoller) Remove(fd int) error { return ErrUnsupported }
func (p *epollPoller) Wait(events []api.Event, timeoutMs int) (int, error) { return 0, ErrUnsupported }
func (p *epollPoller) Wake() error { return ErrUnsupported }
func (p *epollPoller) Close() error { return nil }
