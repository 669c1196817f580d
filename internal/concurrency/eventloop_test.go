//go:build linux
// +build linux

package concurrency

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sys/unix"

	"github.com/momentics/perfnet/api"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeHost tracks attachment per OS thread id.
type fakeHost struct {
	mu        sync.Mutex
	attached  map[int]bool
	attaches  int
	detaches  int
	attachErr error
}

func newFakeHost() *fakeHost {
	return &fakeHost{attached: make(map[int]bool)}
}

func (h *fakeHost) IsAttached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attached[unix.Gettid()]
}

func (h *fakeHost) Attach() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.attachErr != nil {
		return h.attachErr
	}
	tid := unix.Gettid()
	if h.attached[tid] {
		return errors.New("double attach")
	}
	h.attached[tid] = true
	h.attaches++
	return nil
}

func (h *fakeHost) Detach() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	tid := unix.Gettid()
	if !h.attached[tid] {
		return errors.New("detach of unattached thread")
	}
	delete(h.attached, tid)
	h.detaches++
	return nil
}

func (h *fakeHost) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attaches, h.detaches
}

// fakePoller returns queued events and honours Wake.
type fakePoller struct {
	mu     sync.Mutex
	fds    map[int]uint32
	ready  []api.Event
	woken  chan struct{}
	once   sync.Once
	closed bool
	closes int
}

func newFakePoller() *fakePoller {
	return &fakePoller{fds: make(map[int]uint32), woken: make(chan struct{})}
}

func (p *fakePoller) Add(fd int, mask uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.fds[fd]; ok {
		return api.ErrAlreadyExists
	}
	p.fds[fd] = mask
	return nil
}

func (p *fakePoller) Remove(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.fds[fd]; !ok {
		return api.ErrNotFound
	}
	delete(p.fds, fd)
	return nil
}

func (p *fakePoller) push(ev api.Event) {
	p.mu.Lock()
	p.ready = append(p.ready, ev)
	p.mu.Unlock()
}

func (p *fakePoller) Wait(events []api.Event, timeoutMs int) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, api.ErrClosed
	}
	n := copy(events, p.ready)
	p.ready = p.ready[n:]
	p.mu.Unlock()
	if n > 0 {
		return n, nil
	}
	select {
	case <-p.woken:
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
	}
	return 0, nil
}

func (p *fakePoller) Wake() error {
	p.once.Do(func() { close(p.woken) })
	return nil
}

func (p *fakePoller) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.closes++
	return nil
}

// A fresh thread with no attachment waits 50ms on an empty set, returns no
// events, and leaves the thread detached.
func TestEventLoopWaitFromUnattachedThread(t *testing.T) {
	host := newFakeHost()
	loop, err := NewEventLoop(DefaultLoopConfig(), host)
	require.NoError(t, err)
	defer loop.Destroy()

	type result struct {
		n      int
		err    error
		before bool
		after  bool
		took   time.Duration
	}
	ch := make(chan result, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		var r result
		r.before = host.IsAttached()
		start := time.Now()
		evs, err := loop.Wait(16, 50)
		r.took = time.Since(start)
		r.n, r.err = len(evs), err
		r.after = host.IsAttached()
		ch <- r
	}()

	r := <-ch
	require.NoError(t, r.err)
	assert.Zero(t, r.n)
	assert.False(t, r.before)
	assert.False(t, r.after)
	assert.GreaterOrEqual(t, r.took, 40*time.Millisecond)

	attaches, detaches := host.counts()
	assert.Equal(t, 1, attaches)
	assert.Equal(t, 1, detaches)
	assert.EqualValues(t, 1, loop.Stats().SelfAttached)
}

func TestEventLoopWaitKeepsExistingAttachment(t *testing.T) {
	host := newFakeHost()
	loop := NewEventLoopWithPoller(DefaultLoopConfig(), host, newFakePoller())
	defer loop.Destroy()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	require.NoError(t, host.Attach())

	_, err := loop.Wait(4, 1)
	require.NoError(t, err)
	assert.True(t, host.IsAttached())

	attaches, detaches := host.counts()
	assert.Equal(t, 1, attaches)
	assert.Zero(t, detaches)
	require.NoError(t, host.Detach())
}

func TestEventLoopWaitAttachFailure(t *testing.T) {
	host := newFakeHost()
	host.attachErr = errors.New("vm gone")
	loop := NewEventLoopWithPoller(DefaultLoopConfig(), host, newFakePoller())
	defer loop.Destroy()

	_, err := loop.Wait(4, 1)
	assert.ErrorIs(t, err, api.ErrHostInterop)
	assert.EqualValues(t, 1, loop.Stats().HostFailures)
}

func TestEventLoopRegistration(t *testing.T) {
	loop := NewEventLoopWithPoller(DefaultLoopConfig(), nil, newFakePoller())
	defer loop.Destroy()

	assert.ErrorIs(t, loop.Register(-1, api.EventRead), ErrInvalidDescriptor)
	require.NoError(t, loop.Register(7, api.EventRead))
	assert.ErrorIs(t, loop.Register(7, api.EventRead), ErrAlreadyRegistered)
	assert.EqualValues(t, 1, loop.Stats().Registered)
	require.NoError(t, loop.Deregister(7))
	assert.ErrorIs(t, loop.Deregister(7), ErrNotRegistered)
	assert.ErrorIs(t, loop.Deregister(-3), ErrInvalidDescriptor)
}

func TestEventLoopRunDispatches(t *testing.T) {
	p := newFakePoller()
	cfg := DefaultLoopConfig()
	cfg.WaitTimeout = 5 * time.Millisecond
	loop := NewEventLoopWithPoller(cfg, nil, p)
	defer loop.Destroy()

	got := make(chan api.Event, 4)
	require.NoError(t, loop.Run(func(ev api.Event) {
		if ev.Fd == 13 {
			panic("boom")
		}
		got <- ev
	}))
	assert.Equal(t, StateRunning, loop.State())
	assert.ErrorIs(t, loop.Run(func(api.Event) {}), ErrLoopClosed)

	p.push(api.Event{Fd: 13, Mask: api.EventRead})
	p.push(api.Event{Fd: 9, Mask: api.EventWrite})
	select {
	case ev := <-got:
		assert.EqualValues(t, 9, ev.Fd)
	case <-time.After(2 * time.Second):
		t.Fatal("event not dispatched")
	}
	loop.Stop()
	assert.Equal(t, StateCreated, loop.State())
	assert.EqualValues(t, 1, loop.Stats().HandlerPanics)
}

func TestEventLoopDestroyWakesBlockedWait(t *testing.T) {
	p := newFakePoller()
	loop := NewEventLoopWithPoller(DefaultLoopConfig(), nil, p)

	done := make(chan error, 1)
	go func() {
		_, err := loop.Wait(4, 60_000)
		done <- err
	}()
	require.Eventually(t, func() bool { return loop.inflight.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, loop.Destroy())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("destroy did not wake the wait")
	}
	assert.Equal(t, StateDestroyed, loop.State())
	assert.Equal(t, 1, p.closes)

	require.NoError(t, loop.Destroy())
	assert.Equal(t, 1, p.closes)
	_, err := loop.Wait(1, 0)
	assert.ErrorIs(t, err, ErrLoopClosed)
	assert.ErrorIs(t, loop.Register(3, api.EventRead), ErrLoopClosed)
	assert.ErrorIs(t, loop.Deregister(3), ErrLoopClosed)
}

func TestEventLoopDestroyStopsDispatcher(t *testing.T) {
	loop := NewEventLoopWithPoller(DefaultLoopConfig(), nil, newFakePoller())
	require.NoError(t, loop.Run(func(api.Event) {}))
	require.NoError(t, loop.Destroy())
	assert.Equal(t, StateDestroyed, loop.State())
	loop.Stop()
}

func TestEventLoopRunAfterStopIsRejected(t *testing.T) {
	p := newFakePoller()
	cfg := DefaultLoopConfig()
	cfg.WaitTimeout = 5 * time.Millisecond
	loop := NewEventLoopWithPoller(cfg, nil, p)

	require.NoError(t, loop.Run(func(api.Event) {}))
	loop.Stop()
	assert.ErrorIs(t, loop.Run(func(api.Event) {}), ErrLoopClosed)
	assert.Equal(t, StateCreated, loop.State())
	loop.Stop()

	p.push(api.Event{Fd: 4, Mask: api.EventRead})
	evs, err := loop.Wait(4, 0)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.EqualValues(t, 4, evs[0].Fd)

	require.NoError(t, loop.Destroy())
	assert.Equal(t, StateDestroyed, loop.State())
	assert.ErrorIs(t, loop.Run(func(api.Event) {}), ErrLoopClosed)
}

func TestEventLoopEpollReadiness(t *testing.T) {
	loop, err := NewEventLoop(LoopConfig{MaxEvents: 8}, nil)
	require.NoError(t, err)
	defer loop.Destroy()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	require.NoError(t, loop.Register(fds[0], api.EventRead))
	_, err = unix.Write(fds[1], []byte("ping"))
	require.NoError(t, err)

	evs, err := loop.Wait(8, 1000)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.EqualValues(t, fds[0], evs[0].Fd)
	assert.Equal(t, api.Event{Fd: int32(fds[0]), Mask: evs[0].Mask}, api.UnpackEvent(evs[0].Pack()))
	require.NoError(t, loop.Deregister(fds[0]))
}
