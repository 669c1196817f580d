// File: mobile/directio.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking direct socket I/O entry points. Byte counts are non-negative,
// 0 means the call would block, failures are negative error codes.

package mobile

import (
	"sync"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/momentics/perfnet/api"
	"github.com/momentics/perfnet/pool"
)

func ioResult(op string, fd int32, n int, err error) int32 {
	if err != nil {
		logger().Debug("direct io failed", zap.String("op", op), zap.Int32("fd", fd), zap.Error(err))
		if rt, rerr := liveRuntime(); rerr == nil {
			rt.Metrics().Inc("io.failures." + op)
		}
		return code(api.CodeOf(err))
	}
	if rt, rerr := liveRuntime(); rerr == nil {
		rt.Metrics().Add("io.bytes."+op, int64(n))
	}
	return int32(n)
}

// EnableZeroCopy allows SendZeroCopy on fd to pin pages instead of copying.
func EnableZeroCopy(fd int32) int32 {
	return tuneResult("zerocopy", fd, pool.EnableZeroCopy(int(fd)))
}

// zcInFlight keeps zero-copy payloads reachable until the kernel reports
// their pages released, so the collector cannot recycle pinned memory.
var zcInFlight sync.Map // int32 fd -> *inFlight

type inFlight struct {
	mu sync.Mutex
	q  *queue.Queue
}

func retainSend(fd int32, p []byte) {
	v, _ := zcInFlight.LoadOrStore(fd, &inFlight{q: queue.New()})
	f := v.(*inFlight)
	f.mu.Lock()
	f.q.Add(p)
	f.mu.Unlock()
}

// releaseSends drops the n oldest retained payloads of fd and returns how many
// are still held. Completions arrive in send order.
func releaseSends(fd int32, n int) int {
	v, ok := zcInFlight.Load(fd)
	if !ok {
		return 0
	}
	f := v.(*inFlight)
	f.mu.Lock()
	defer f.mu.Unlock()
	for ; n > 0 && f.q.Length() > 0; n-- {
		f.q.Remove()
	}
	return f.q.Length()
}

// SendZeroCopy sends data without blocking and returns the bytes accepted.
// Large payloads use MSG_ZEROCOPY when enabled on fd; the native side holds
// them until ReapZeroCopy sees the kernel finish.
func SendZeroCopy(fd int32, data []byte) int32 {
	n, zc, err := pool.SendZeroCopy(int(fd), data)
	if err == nil && zc && n > 0 {
		retainSend(fd, data[:n])
	}
	return ioResult("send", fd, n, err)
}

// ReapZeroCopy drains zero-copy completions on fd and returns their count.
func ReapZeroCopy(fd int32) int32 {
	done, err := pool.ReapZeroCopy(int(fd))
	if err == nil {
		releaseSends(fd, done.Completed)
	}
	return ioResult("reap", fd, done.Completed, err)
}

// RecvDirect reads into buf without blocking. 0 means nothing is queued;
// a closed peer reports CodeClosed.
func RecvDirect(fd int32, buf []byte) int32 {
	n, err := pool.RecvDirect(int(fd), buf)
	return ioResult("recv", fd, n, err)
}

// RecvMsg scatters one receive across consecutive segment-byte slices of buf
// and returns the total byte count.
func RecvMsg(fd int32, buf []byte, segment int32) int32 {
	if segment <= 0 || len(buf) == 0 {
		return code(api.CodeInvalidArgument)
	}
	bufs := make([][]byte, 0, (len(buf)+int(segment)-1)/int(segment))
	for off := 0; off < len(buf); off += int(segment) {
		end := min(off+int(segment), len(buf))
		bufs = append(bufs, buf[off:end])
	}
	n, err := pool.RecvMsg(int(fd), bufs)
	return ioResult("recvmsg", fd, n, err)
}

// PeekSocket copies queued bytes into buf without consuming them.
func PeekSocket(fd int32, buf []byte) int32 {
	n, err := pool.Peek(int(fd), buf)
	return ioResult("peek", fd, n, err)
}

// PendingBytes returns the number of bytes queued for reading on fd.
func PendingBytes(fd int32) int32 {
	n, err := pool.Pending(int(fd))
	return ioResult("pending", fd, n, err)
}
