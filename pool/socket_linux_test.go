//go:build linux
// +build linux

package pool

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/perfnet/api"
)

func TestSocketOpsOpenProbeClose(t *testing.T) {
	ops := NewSocketOps()
	fd, err := ops.Open(DefaultSocketOptions())
	require.NoError(t, err)

	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	require.NoError(t, err)
	assert.NotZero(t, flags&unix.O_NONBLOCK)

	nodelay, err := unix.GetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY)
	require.NoError(t, err)
	assert.Equal(t, 1, nodelay)

	assert.NoError(t, ops.Probe(fd))
	require.NoError(t, ops.Close(fd))
}

func TestSocketOpsDetectsPeerClose(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	p, err := NewConnPool(Options{SizePerClass: 1, Socket: DefaultSocketOptions()}, nil)
	require.NoError(t, err)
	defer p.Teardown()

	h, ok := p.Acquire(api.ClassVision)
	require.True(t, ok)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, p.Connect(h, "127.0.0.1", port))

	var peer net.Conn
	select {
	case peer = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("no connection accepted")
	}
	require.NoError(t, NewSocketOps().Probe(h.FD))

	peer.Close()
	require.Eventually(t, func() bool {
		return NewSocketOps().Probe(h.FD) != nil
	}, 2*time.Second, 10*time.Millisecond)

	p.Release(h)
	st := p.Stats()
	assert.EqualValues(t, 1, st.Invalidated)
	assert.Zero(t, st.Classes["vision"].Live)
}

func TestSocketTuningHelpers(t *testing.T) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fd)

	require.NoError(t, SetPriority(fd, 4))
	prio, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_PRIORITY)
	require.NoError(t, err)
	assert.Equal(t, 4, prio)
	assert.ErrorIs(t, SetPriority(fd, 7), api.ErrInvalidArgument)

	require.NoError(t, SetTOS(fd, 0x10))
	tos, err := unix.GetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS)
	require.NoError(t, err)
	assert.Equal(t, 0x10, tos)
	assert.ErrorIs(t, SetTOS(fd, 256), api.ErrInvalidArgument)

	require.NoError(t, OptimizeKeepAlive(fd))
	ka, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE)
	require.NoError(t, err)
	assert.Equal(t, 1, ka)

	require.NoError(t, OptimizeBuffers(fd, api.NetworkLTE))
	assert.ErrorIs(t, SetInterfaceMTU(fd, "lo", 10), api.ErrInvalidArgument)
	assert.Error(t, EnableLowLatency(-1))
}

func TestSocketBufferSizes(t *testing.T) {
	assert.Equal(t, 256*1024, SocketBufferSize(api.NetworkLTE))
	assert.Equal(t, 1024*1024, SocketBufferSize(api.Network5G))
	assert.Equal(t, 512*1024, SocketBufferSize(api.NetworkWiFi))
}
