//go:build linux

// File: mobile/mobile_linux_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package mobile

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/perfnet/api"
)

func TestEpollWaitAttachesUnattachedThread(t *testing.T) {
	host := &countingHost{}
	load(t, host, "")

	h := CreateEpoll()
	require.NotZero(t, h)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])
	require.Equal(t, int32(0), EpollAdd(h, int32(fds[0]), int32(api.EventRead)))
	assert.Equal(t, int32(-1), EpollAdd(h, int32(fds[0]), int32(api.EventRead)))

	out := make([]byte, 4*PackedEventSize)
	assert.Equal(t, int32(0), EpollWait(h, out, 50))
	assert.Equal(t, int32(-1), EpollWait(h, out[:4], 50), "buffer too small for one event")

	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)
	n := EpollWait(h, out, 1000)
	require.Equal(t, int32(1), n)
	packed := int64(binary.LittleEndian.Uint64(out))
	assert.Equal(t, int32(fds[0]), EventFD(packed))
	assert.NotZero(t, EventMask(packed)&int32(api.EventRead))

	host.mu.Lock()
	assert.Equal(t, 2, host.attaches, "each wait attached the unattached thread")
	assert.Equal(t, 2, host.detaches, "and detached it before returning")
	assert.False(t, host.attached)
	host.mu.Unlock()

	require.Equal(t, int32(0), EpollRemove(h, int32(fds[0])))
	DestroyEpoll(h)
	assert.Equal(t, int32(-1), EpollWait(h, out, 10))
}

func TestStartEpollLoopDeliversToHandler(t *testing.T) {
	load(t, &countingHost{}, "")
	h := CreateEpoll()
	require.NotZero(t, h)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])
	require.Equal(t, int32(0), EpollAdd(h, int32(fds[0]), int32(api.EventRead)))

	assert.Equal(t, int32(api.CodeInvalidArgument), StartEpollLoop(h, nil))
	handler := make(chanHandler, 8)
	require.Equal(t, int32(0), StartEpollLoop(h, handler))

	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)
	select {
	case ev := <-handler:
		assert.Equal(t, int32(fds[0]), ev[0])
		assert.NotZero(t, ev[1]&int32(api.EventRead))
	case <-time.After(2 * time.Second):
		t.Fatal("handler saw no event")
	}

	StopEpollLoop(h)
	assert.Equal(t, int32(api.CodeClosed), StartEpollLoop(h, handler))
	DestroyEpoll(h)
}

func TestDirectIOEntryPoints(t *testing.T) {
	load(t, nil, "")
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])
	rx, tx := int32(fds[0]), int32(fds[1])

	buf := make([]byte, 16)
	assert.Equal(t, int32(0), RecvDirect(rx, buf), "would block")
	require.Equal(t, int32(11), SendZeroCopy(tx, []byte("hello world")))
	assert.Equal(t, int32(11), PendingBytes(rx))

	require.Equal(t, int32(5), PeekSocket(rx, buf[:5]))
	assert.Equal(t, "hello", string(buf[:5]))

	clear(buf)
	require.Equal(t, int32(11), RecvMsg(rx, buf, 4))
	assert.Equal(t, "hello world", string(buf[:11]))
	assert.Equal(t, int32(api.CodeInvalidArgument), RecvMsg(rx, buf, 0))
	assert.Equal(t, int32(0), ReapZeroCopy(tx), "nothing sent with zero-copy")

	require.NoError(t, unix.Shutdown(fds[1], unix.SHUT_WR))
	assert.Equal(t, int32(api.CodeClosed), RecvDirect(rx, buf))

	rt, err := liveRuntime()
	require.NoError(t, err)
	assert.EqualValues(t, 11, rt.Metrics().Counter("io.bytes.send"))
	assert.EqualValues(t, 1, rt.Metrics().Counter("io.failures.recv"))
}
