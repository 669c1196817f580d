//go:build linux
// +build linux

// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - Linux epoll implementation.

package reactor

import (
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/perfnet/api"
)

// epollPoller implements api.Poller using Linux epoll.
type epollPoller struct {
	epfd      int // epoll file descriptor
	wakefd    int // eventfd; stays readable once signalled
	maxEvents int
	closed    atomic.Bool
}

// Add registers fd with the interest mask. Masks use epoll bit values.
func (p *epollPoller) Add(fd int, mask uint32) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd == p.wakefd {
		return fmt.Errorf("epoll ctl add fd=%d: %w", fd, api.ErrInvalidArgument)
	}
	ev := unix.EpollEvent{Events: mask, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add fd=%d: %w", fd, mapErrno(err))
	}
	return nil
}

// Remove deletes fd from the watch list.
func (p *epollPoller) Remove(fd int) error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	if fd < 0 || fd == p.wakefd {
		return fmt.Errorf("epoll ctl del fd=%d: %w", fd, api.ErrInvalidArgument)
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("epoll ctl del fd=%d: %w", fd, mapErrno(err))
	}
	return nil
}

// Wait blocks up to timeoutMs (negative blocks indefinitely) and fills events.
// The wake eventfd is never reported. EINTR yields zero events.
func (p *epollPoller) Wait(events []api.Event, timeoutMs int) (int, error) {
	if p.closed.Load() {
		return 0, ErrPollerClosed
	}
	if len(events) == 0 {
		return 0, nil
	}
	limit := len(events)
	if limit > p.maxEvents {
		limit = p.maxEvents
	}
	if timeoutMs < 0 {
		timeoutMs = -1
	}
	// One extra slot so the wake descriptor cannot crowd out a ready fd.
	raw := make([]unix.EpollEvent, limit+1)
	n, err := unix.EpollWait(p.epfd, raw, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}
	out := 0
	for i := 0; i < n && out < limit; i++ {
		if int(raw[i].Fd) == p.wakefd {
			continue
		}
		events[out] = api.Event{Fd: raw[i].Fd, Mask: raw[i].Events}
		out++
	}
	return out, nil
}

// Wake signals the eventfd. It is never drained, so every later Wait returns
// immediately.
func (p *epollPoller) Wake() error {
	if p.closed.Load() {
		return ErrPollerClosed
	}
	var buf [8]byte
	buf[0] = 1
	if _, err := unix.Write(p.wakefd, buf[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

// Close releases the epoll and eventfd descriptors exactly once.
func (p *epollPoller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	errWake := unix.Close(p.wakefd)
	errPoll := unix.Close(p.epfd)
	return errors.Join(errPoll, errWake)
}

func mapErrno(err error) error {
	switch {
	case errors.Is(err, unix.EEXIST):
		return fmt.Errorf("%w: %v", api.ErrAlreadyExists, err)
	case errors.Is(err, unix.ENOENT):
		return fmt.Errorf("%w: %v", api.ErrNotFound, err)
	case errors.Is(err, unix.EBADF), errors.Is(err, unix.EPERM), errors.Is(err, unix.EINVAL):
		return fmt.Errorf("%w: %v", api.ErrInvalidArgument, err)
	default:
		return err
	}
}
