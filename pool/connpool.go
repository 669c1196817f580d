// File: pool/connpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ConnPool keeps a fixed number of reusable TCP sockets per traffic class.
//
// Ownership rules:
//   - a slot is claimed by exactly one caller through CAS on inUse;
//   - a descriptor leaves its slot through CAS (or Swap at teardown) to
//     InvalidFD before it is closed, so only the winner of that exchange
//     ever calls close.

package pool

import (
	"fmt"
	"sync/atomic"
	"time"

	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/momentics/perfnet/api"
	"github.com/momentics/perfnet/internal/logging"
)

// DefaultSizePerClass is the slot count per class when none is configured.
const DefaultSizePerClass = 3

// MaxSizePerClass bounds a class so scans stay cheap.
const MaxSizePerClass = 64

// ErrPoolClosed is returned after Teardown.
var ErrPoolClosed = fmt.Errorf("connection pool torn down: %w", api.ErrClosed)

// connSlot is one reusable socket.
type connSlot struct {
	fd        atomic.Int64
	inUse     atomic.Bool
	connected atomic.Bool
	lastUsed  atomic.Int64  // unix nanos
	lease     atomic.Uint64 // bumped on every claim
	_         [24]byte      // keep neighbouring slots off one cache line
}

// Options configures a ConnPool.
type Options struct {
	SizePerClass int
	Socket       SocketOptions
}

// ConnPool implements api.SocketPool.
type ConnPool struct {
	classes [][]connSlot
	ops     SocketOps
	opts    SocketOptions
	closed  atomic.Bool
	log     *zap.Logger
	now     func() time.Time

	acquired     uatomic.Int64
	exhausted    uatomic.Int64
	released     uatomic.Int64
	invalidated  uatomic.Int64
	closeCalls   uatomic.Int64
	openFailures uatomic.Int64
	staleReturns uatomic.Int64
}

var _ api.SocketPool = (*ConnPool)(nil)

// NewConnPool creates a pool with opts.SizePerClass slots for every class.
// Sockets are opened lazily on first acquisition. ops nil selects the
// kernel-backed implementation.
func NewConnPool(opts Options, ops SocketOps) (*ConnPool, error) {
	if opts.SizePerClass <= 0 || opts.SizePerClass > MaxSizePerClass {
		return nil, fmt.Errorf("pool size %d: %w", opts.SizePerClass, api.ErrInvalidArgument)
	}
	if ops == nil {
		ops = NewSocketOps()
	}
	p := &ConnPool{
		classes: make([][]connSlot, api.NumPoolClasses()),
		ops:     ops,
		opts:    opts.Socket,
		log:     logging.Named("pool"),
		now:     time.Now,
	}
	for c := range p.classes {
		p.classes[c] = make([]connSlot, opts.SizePerClass)
		for i := range p.classes[c] {
			p.classes[c][i].fd.Store(api.InvalidFD)
		}
	}
	return p, nil
}

// SizePerClass returns the slot count of each class.
func (p *ConnPool) SizePerClass() int { return len(p.classes[0]) }

func (p *ConnPool) slot(class api.PoolClass, idx int) (*connSlot, bool) {
	if !class.Valid() || idx < 0 || idx >= len(p.classes[class]) {
		return nil, false
	}
	return &p.classes[class][idx], true
}

// Acquire claims a free slot of class, opening its socket on first use.
// ok is false when every slot is claimed, the class is unknown, or the pool
// is torn down.
func (p *ConnPool) Acquire(class api.PoolClass) (api.SocketHandle, bool) {
	none := api.SocketHandle{Class: class, Slot: -1, FD: api.InvalidFD}
	if p.closed.Load() || !class.Valid() {
		return none, false
	}
	slots := p.classes[class]
	for i := range slots {
		s := &slots[i]
		if !s.inUse.CompareAndSwap(false, true) {
			continue
		}
		fd := s.fd.Load()
		if fd == api.InvalidFD {
			nfd, err := p.ops.Open(p.opts)
			if err != nil {
				s.inUse.Store(false)
				p.openFailures.Inc()
				p.log.Warn("socket open failed", zap.Stringer("class", class), zap.Error(err))
				return none, false
			}
			if !s.fd.CompareAndSwap(api.InvalidFD, int64(nfd)) {
				// Teardown raced us; the new socket never became visible.
				p.closeFD(nfd)
				s.inUse.Store(false)
				return none, false
			}
			if p.closed.Load() {
				p.invalidate(s, int64(nfd))
				return none, false
			}
			s.connected.Store(false)
			fd = int64(nfd)
		}
		s.lastUsed.Store(p.now().UnixNano())
		p.acquired.Inc()
		return api.SocketHandle{Class: class, Slot: i, FD: int(fd), Lease: s.lease.Add(1)}, true
	}
	p.exhausted.Inc()
	p.log.Debug("pool exhausted", zap.Stringer("class", class), zap.Int("size", len(slots)))
	return none, false
}

// AcquireFD is Acquire in descriptor form: the fd or InvalidFD.
func (p *ConnPool) AcquireFD(class api.PoolClass) int {
	h, ok := p.Acquire(class)
	if !ok {
		return api.InvalidFD
	}
	return h.FD
}

// invalidate moves s from observed to InvalidFD and closes observed. Only the
// caller whose exchange succeeds closes and frees the slot; every other caller
// sees a different value and backs off.
func (p *ConnPool) invalidate(s *connSlot, observed int64) bool {
	if observed == api.InvalidFD {
		return false
	}
	for {
		cur := s.fd.Load()
		if cur != observed {
			return false
		}
		if s.fd.CompareAndSwap(observed, api.InvalidFD) {
			break
		}
	}
	s.connected.Store(false)
	p.closeFD(int(observed))
	p.invalidated.Inc()
	s.inUse.Store(false)
	return true
}

func (p *ConnPool) closeFD(fd int) {
	p.closeCalls.Inc()
	if err := p.ops.Close(fd); err != nil {
		p.log.Warn("close failed", zap.Int("fd", fd), zap.Error(err))
	}
}

// MarkUnhealthy closes the handle's descriptor and frees its slot. Concurrent
// calls on the same handle close the descriptor once.
func (p *ConnPool) MarkUnhealthy(h api.SocketHandle) {
	s, ok := p.slot(h.Class, h.Slot)
	if !ok {
		p.log.Debug("mark unhealthy: unknown slot", zap.Stringer("class", h.Class), zap.Int("slot", h.Slot))
		return
	}
	if p.invalidate(s, int64(h.FD)) {
		p.log.Debug("socket invalidated", zap.Stringer("class", h.Class), zap.Int("fd", h.FD))
	}
}

// Release returns a claimed slot. The descriptor is probed first; a failed
// probe invalidates it so the next Acquire opens a fresh socket. Returning a
// slot that is free, or that a later claim now holds, is ignored.
func (p *ConnPool) Release(h api.SocketHandle) {
	s, ok := p.slot(h.Class, h.Slot)
	if !ok || !h.Valid() || s.fd.Load() != int64(h.FD) {
		p.staleReturns.Inc()
		p.log.Debug("release of stale handle", zap.Stringer("class", h.Class), zap.Int("slot", h.Slot), zap.Int("fd", h.FD))
		return
	}
	if !s.inUse.Load() || (h.Lease != 0 && h.Lease != s.lease.Load()) {
		p.staleReturns.Inc()
		p.log.Debug("release of unclaimed slot", zap.Stringer("class", h.Class), zap.Int("slot", h.Slot), zap.Uint64("lease", h.Lease))
		return
	}
	if err := p.ops.Probe(h.FD); err != nil {
		p.log.Debug("health probe failed", zap.Int("fd", h.FD), zap.Error(err))
		p.invalidate(s, int64(h.FD))
		return
	}
	s.lastUsed.Store(p.now().UnixNano())
	p.released.Inc()
	s.inUse.Store(false)
}

// find locates the slot currently holding fd in class.
func (p *ConnPool) find(class api.PoolClass, fd int) (api.SocketHandle, bool) {
	if !class.Valid() || fd < 0 {
		return api.SocketHandle{}, false
	}
	for i := range p.classes[class] {
		s := &p.classes[class][i]
		if s.fd.Load() == int64(fd) {
			return api.SocketHandle{Class: class, Slot: i, FD: fd, Lease: s.lease.Load()}, true
		}
	}
	return api.SocketHandle{}, false
}

// ReturnFD releases the slot holding fd. Unknown or already invalidated
// descriptors are ignored.
func (p *ConnPool) ReturnFD(class api.PoolClass, fd int) {
	h, ok := p.find(class, fd)
	if !ok {
		p.staleReturns.Inc()
		p.log.Debug("return of unknown descriptor", zap.Stringer("class", class), zap.Int("fd", fd))
		return
	}
	p.Release(h)
}

// Connect starts a non-blocking connect on a claimed handle.
func (p *ConnPool) Connect(h api.SocketHandle, host string, port int) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	s, ok := p.slot(h.Class, h.Slot)
	if !ok || !h.Valid() || s.fd.Load() != int64(h.FD) {
		return fmt.Errorf("connect: stale handle fd=%d: %w", h.FD, api.ErrInvalidHandle)
	}
	addr, err := ParseRemote(host, port)
	if err != nil {
		return err
	}
	if err := p.ops.Connect(h.FD, addr); err != nil {
		return err
	}
	s.connected.Store(true)
	return nil
}

// ConnectFD is Connect addressed by descriptor.
func (p *ConnPool) ConnectFD(class api.PoolClass, fd int, host string, port int) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	h, ok := p.find(class, fd)
	if !ok {
		return fmt.Errorf("connect: unknown descriptor %d: %w", fd, api.ErrInvalidHandle)
	}
	return p.Connect(h, host, port)
}

// Teardown closes every live descriptor exactly once and refuses further
// acquisitions. Callers must have returned all handles; outstanding handles
// become stale.
func (p *ConnPool) Teardown() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	closed := 0
	for c := range p.classes {
		for i := range p.classes[c] {
			s := &p.classes[c][i]
			if fd := s.fd.Swap(api.InvalidFD); fd != api.InvalidFD {
				p.closeFD(int(fd))
				closed++
			}
			s.connected.Store(false)
			s.inUse.Store(false)
		}
	}
	p.log.Info("pool torn down", zap.Int("closed", closed))
}

// Closed reports whether Teardown has run.
func (p *ConnPool) Closed() bool { return p.closed.Load() }

// ClassStats describes one class.
type ClassStats struct {
	Size      int `json:"size"`
	InUse     int `json:"in_use"`
	Live      int `json:"live"`
	Connected int `json:"connected"`
}

// PoolStats is a snapshot of pool counters.
type PoolStats struct {
	Acquired     int64                 `json:"acquired"`
	Exhausted    int64                 `json:"exhausted"`
	Released     int64                 `json:"released"`
	Invalidated  int64                 `json:"invalidated"`
	CloseCalls   int64                 `json:"close_calls"`
	OpenFailures int64                 `json:"open_failures"`
	StaleReturns int64                 `json:"stale_returns"`
	Classes      map[string]ClassStats `json:"classes"`
}

// Stats returns a snapshot of counters and slot occupancy.
func (p *ConnPool) Stats() PoolStats {
	st := PoolStats{
		Acquired:     p.acquired.Load(),
		Exhausted:    p.exhausted.Load(),
		Released:     p.released.Load(),
		Invalidated:  p.invalidated.Load(),
		CloseCalls:   p.closeCalls.Load(),
		OpenFailures: p.openFailures.Load(),
		StaleReturns: p.staleReturns.Load(),
		Classes:      make(map[string]ClassStats, len(p.classes)),
	}
	for _, class := range api.PoolClasses() {
		cs := ClassStats{Size: len(p.classes[class])}
		for i := range p.classes[class] {
			s := &p.classes[class][i]
			if s.inUse.Load() {
				cs.InUse++
			}
			if s.fd.Load() != api.InvalidFD {
				cs.Live++
			}
			if s.connected.Load() {
				cs.Connected++
			}
		}
		st.Classes[class.String()] = cs
	}
	return st
}
