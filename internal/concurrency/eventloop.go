// File: internal/concurrency/eventloop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventLoop multiplexes readiness for registered descriptors on behalf of host
// threads. Every Wait attaches the calling thread to the host runtime only when
// it is not attached already, and detaches only what it attached.

package concurrency

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/momentics/perfnet/affinity"
	"github.com/momentics/perfnet/api"
	"github.com/momentics/perfnet/internal/logging"
	"github.com/momentics/perfnet/reactor"
)

// LoopState is the lifecycle position of an EventLoop.
type LoopState int32

const (
	StateUninitialized LoopState = iota
	StateCreated
	StateRunning
	StateShuttingDown
	StateDestroyed
)

func (s LoopState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting-down"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// LoopConfig tunes one EventLoop.
type LoopConfig struct {
	MaxEvents   int           // upper bound of events per Wait
	WaitTimeout time.Duration // dispatcher wait timeout used by Run
	CPUAffinity bool          // pin the Run dispatcher thread
	CPU         int           // target CPU when CPUAffinity is set
}

// DefaultLoopConfig mirrors the kernel batch and timeout the mobile client uses.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxEvents:   256,
		WaitTimeout: 100 * time.Millisecond,
	}
}

// LoopStats is a snapshot of loop counters.
type LoopStats struct {
	State         string `json:"state"`
	Registered    int64  `json:"registered"`
	Waits         int64  `json:"waits"`
	Events        int64  `json:"events"`
	SelfAttached  int64  `json:"self_attached"`
	Detached      int64  `json:"detached"`
	HostFailures  int64  `json:"host_failures"`
	HandlerPanics int64  `json:"handler_panics"`
}

// EventLoop owns one poller and the set of descriptors registered on it.
type EventLoop struct {
	state    atomic.Int32
	inflight atomic.Int32
	cfg      LoopConfig
	poller   api.Poller
	host     api.HostRuntime
	log      *zap.Logger

	registered sync.Map // int -> uint32 interest mask
	regCount   uatomic.Int64

	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}

	waits         uatomic.Int64
	events        uatomic.Int64
	selfAttached  uatomic.Int64
	detached      uatomic.Int64
	hostFailures  uatomic.Int64
	handlerPanics uatomic.Int64
}

// NewEventLoop creates a loop over a fresh epoll poller. host may be nil when no
// managed runtime needs attaching.
func NewEventLoop(cfg LoopConfig, host api.HostRuntime) (*EventLoop, error) {
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = DefaultLoopConfig().MaxEvents
	}
	p, err := reactor.NewPoller(cfg.MaxEvents)
	if err != nil {
		return nil, fmt.Errorf("event loop: %w", err)
	}
	return NewEventLoopWithPoller(cfg, host, p), nil
}

// NewEventLoopWithPoller creates a loop over an existing poller. The loop takes
// ownership and closes it on Destroy.
func NewEventLoopWithPoller(cfg LoopConfig, host api.HostRuntime, p api.Poller) *EventLoop {
	def := DefaultLoopConfig()
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = def.MaxEvents
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = def.WaitTimeout
	}
	l := &EventLoop{
		cfg:    cfg,
		poller: p,
		host:   host,
		log:    logging.Named("loop"),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	l.state.Store(int32(StateCreated))
	return l
}

// State returns the current lifecycle state.
func (l *EventLoop) State() LoopState { return LoopState(l.state.Load()) }

// enter admits an operation in Created or Running. The inflight counter is
// raised before the state check so Destroy never closes the poller under it.
func (l *EventLoop) enter() bool {
	l.inflight.Add(1)
	switch l.State() {
	case StateCreated, StateRunning:
		return true
	}
	l.inflight.Add(-1)
	return false
}

func (l *EventLoop) leave() { l.inflight.Add(-1) }

// Register adds fd with the interest mask.
func (l *EventLoop) Register(fd int, mask uint32) error {
	if fd < 0 {
		return ErrInvalidDescriptor
	}
	if !l.enter() {
		return ErrLoopClosed
	}
	defer l.leave()

	if _, dup := l.registered.LoadOrStore(fd, mask); dup {
		return ErrAlreadyRegistered
	}
	if err := l.poller.Add(fd, mask); err != nil {
		l.registered.Delete(fd)
		if errors.Is(err, api.ErrAlreadyExists) {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("register fd=%d: %w", fd, err)
	}
	l.regCount.Inc()
	return nil
}

// Deregister removes fd.
func (l *EventLoop) Deregister(fd int) error {
	if fd < 0 {
		return ErrInvalidDescriptor
	}
	if !l.enter() {
		return ErrLoopClosed
	}
	defer l.leave()

	if _, ok := l.registered.LoadAndDelete(fd); !ok {
		return ErrNotRegistered
	}
	l.regCount.Dec()
	if err := l.poller.Remove(fd); err != nil {
		// A descriptor closed before deregistration has already left the
		// epoll set; the bookkeeping removal above stands.
		if errors.Is(err, api.ErrNotFound) || errors.Is(err, api.ErrInvalidArgument) {
			l.log.Debug("deregister of closed descriptor", zap.Int("fd", fd), zap.Error(err))
			return nil
		}
		return fmt.Errorf("deregister fd=%d: %w", fd, err)
	}
	return nil
}

// Wait blocks up to timeoutMs for readiness. maxEvents <= 0 or above the
// configured bound is clamped to the bound. A timeout yields no events and no error.
func (l *EventLoop) Wait(maxEvents, timeoutMs int) ([]api.Event, error) {
	if !l.enter() {
		return nil, ErrLoopClosed
	}
	defer l.leave()

	if maxEvents <= 0 || maxEvents > l.cfg.MaxEvents {
		maxEvents = l.cfg.MaxEvents
	}

	// Attachment is a property of the OS thread, so the goroutine stays on
	// it from the attach check until the matching detach.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	scope, err := api.EnterHost(l.host)
	if err != nil {
		l.hostFailures.Inc()
		return nil, fmt.Errorf("attach thread: %w: %v", api.ErrHostInterop, err)
	}
	if scope.AttachedBySelf() {
		l.selfAttached.Inc()
	}

	buf := make([]api.Event, maxEvents)
	n, waitErr := l.poller.Wait(buf, timeoutMs)

	if scope.AttachedBySelf() {
		if err := scope.Exit(); err != nil {
			l.hostFailures.Inc()
			l.log.Warn("detach failed", zap.Error(err))
		} else {
			l.detached.Inc()
		}
	}

	l.waits.Inc()
	if waitErr != nil {
		if errors.Is(waitErr, api.ErrClosed) {
			return nil, ErrLoopClosed
		}
		return nil, fmt.Errorf("wait: %w", waitErr)
	}
	l.events.Add(int64(n))
	return buf[:n], nil
}

// Run starts a dispatcher goroutine that waits in a loop and hands every event
// to handler. Panics in handler are recovered and counted. A loop runs its
// dispatcher at most once; Run after Stop fails with ErrLoopClosed.
func (l *EventLoop) Run(handler func(api.Event)) error {
	if handler == nil {
		return fmt.Errorf("run: nil handler: %w", api.ErrInvalidArgument)
	}
	if !l.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return ErrLoopClosed
	}
	if !l.running.CompareAndSwap(false, true) {
		l.state.CompareAndSwap(int32(StateRunning), int32(StateCreated))
		return fmt.Errorf("run: dispatcher already stopped: %w", ErrLoopClosed)
	}
	go l.dispatch(handler)
	return nil
}

func (l *EventLoop) dispatch(handler func(api.Event)) {
	defer close(l.doneCh)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if l.cfg.CPUAffinity {
		if err := affinity.SetAffinity(l.cfg.CPU); err != nil {
			l.log.Warn("pinning dispatcher failed", zap.Int("cpu", l.cfg.CPU), zap.Error(err))
		}
	}
	timeoutMs := int(l.cfg.WaitTimeout / time.Millisecond)
	for {
		select {
		case <-l.stopCh:
			return
		default:
		}
		evs, err := l.Wait(l.cfg.MaxEvents, timeoutMs)
		if err != nil {
			if errors.Is(err, ErrLoopClosed) {
				return
			}
			l.log.Warn("dispatcher wait failed", zap.Error(err))
			time.Sleep(time.Millisecond)
			continue
		}
		for _, ev := range evs {
			l.safeHandle(handler, ev)
		}
	}
}

func (l *EventLoop) safeHandle(handler func(api.Event), ev api.Event) {
	defer func() {
		if r := recover(); r != nil {
			l.handlerPanics.Inc()
			l.log.Error("event handler panic", zap.Int32("fd", ev.Fd), zap.Any("panic", r))
		}
	}()
	handler(ev)
}

// Stop ends the dispatcher started by Run and waits for it to exit. The loop
// returns to Created so host threads may keep calling Wait.
func (l *EventLoop) Stop() {
	if !l.running.Load() {
		return
	}
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.doneCh
	l.state.CompareAndSwap(int32(StateRunning), int32(StateCreated))
}

// Destroy moves the loop to ShuttingDown, wakes blocked waits, waits for every
// in-flight operation to leave, then closes the poller. Later calls are no-ops.
func (l *EventLoop) Destroy() error {
	for {
		s := l.State()
		if s == StateShuttingDown || s == StateDestroyed {
			return nil
		}
		if l.state.CompareAndSwap(int32(s), int32(StateShuttingDown)) {
			break
		}
	}
	l.stopOnce.Do(func() { close(l.stopCh) })
	if err := l.poller.Wake(); err != nil {
		l.log.Warn("wake failed", zap.Error(err))
	}
	for l.inflight.Load() > 0 {
		time.Sleep(time.Microsecond)
	}
	if l.running.Load() {
		<-l.doneCh
	}
	err := l.poller.Close()
	l.registered.Range(func(k, _ any) bool {
		l.registered.Delete(k)
		return true
	})
	l.regCount.Store(0)
	l.state.Store(int32(StateDestroyed))
	l.log.Debug("event loop destroyed", zap.Int64("waits", l.waits.Load()))
	return err
}

// Stats returns a snapshot of counters.
func (l *EventLoop) Stats() LoopStats {
	return LoopStats{
		State:         l.State().String(),
		Registered:    l.regCount.Load(),
		Waits:         l.waits.Load(),
		Events:        l.events.Load(),
		SelfAttached:  l.selfAttached.Load(),
		Detached:      l.detached.Load(),
		HostFailures:  l.hostFailures.Load(),
		HandlerPanics: l.handlerPanics.Load(),
	}
}
