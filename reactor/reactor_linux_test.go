//go:build linux
// +build linux

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/perfnet/api"
)

func socketPair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestPollerReportsReadable(t *testing.T) {
	p, err := NewPoller(16)
	require.NoError(t, err)
	defer p.Close()

	a, b := socketPair(t)
	require.NoError(t, p.Add(a, api.EventRead))

	events := make([]api.Event, 8)
	n, err := p.Wait(events, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = unix.Write(b, []byte("x"))
	require.NoError(t, err)
	n, err = p.Wait(events, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.EqualValues(t, a, events[0].Fd)
	assert.NotZero(t, events[0].Mask&api.EventRead)
}

func TestPollerAddRemoveErrors(t *testing.T) {
	p, err := NewPoller(0)
	require.NoError(t, err)
	defer p.Close()

	a, _ := socketPair(t)
	assert.ErrorIs(t, p.Add(-1, api.EventRead), api.ErrInvalidArgument)
	require.NoError(t, p.Add(a, api.EventRead))
	assert.ErrorIs(t, p.Add(a, api.EventRead), api.ErrAlreadyExists)
	require.NoError(t, p.Remove(a))
	assert.ErrorIs(t, p.Remove(a), api.ErrNotFound)
}

func TestPollerWakeInterruptsBlockedWait(t *testing.T) {
	p, err := NewPoller(4)
	require.NoError(t, err)
	defer p.Close()

	done := make(chan int, 1)
	go func() {
		n, _ := p.Wait(make([]api.Event, 4), -1)
		done <- n
	}()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Wake())
	select {
	case n := <-done:
		assert.Zero(t, n)
	case <-time.After(2 * time.Second):
		t.Fatal("wake did not interrupt wait")
	}

	// The wake stays armed.
	start := time.Now()
	n, err := p.Wait(make([]api.Event, 4), 5000)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPollerCloseIsIdempotent(t *testing.T) {
	p, err := NewPoller(4)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	_, err = p.Wait(make([]api.Event, 1), 0)
	assert.ErrorIs(t, err, api.ErrClosed)
	assert.ErrorIs(t, p.Add(3, api.EventRead), api.ErrClosed)
}
