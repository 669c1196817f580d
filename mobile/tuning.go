// File: mobile/tuning.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-socket and per-link tuning entry points.

package mobile

import (
	"go.uber.org/zap"

	"github.com/momentics/perfnet/api"
	"github.com/momentics/perfnet/pool"
)

func tuneResult(op string, fd int32, err error) int32 {
	if err != nil {
		logger().Debug("socket tuning failed", zap.String("op", op), zap.Int32("fd", fd), zap.Error(err))
		if rt, rerr := liveRuntime(); rerr == nil {
			rt.Metrics().Inc("tuning.failures." + op)
		}
		return code(api.CodeOf(err))
	}
	return code(api.CodeOK)
}

// OptimalMTU returns the tunnel MTU for a NetworkType value.
func OptimalMTU(networkType int32) int32 {
	return int32(api.NetworkType(networkType).OptimalMTU())
}

// EnableFastOpen enables TCP Fast Open on fd.
func EnableFastOpen(fd int32) int32 {
	return tuneResult("fast_open", fd, pool.EnableFastOpen(int(fd)))
}

// SetSocketPriority sets SO_PRIORITY (0..6) on fd.
func SetSocketPriority(fd, priority int32) int32 {
	return tuneResult("priority", fd, pool.SetPriority(int(fd), int(priority)))
}

// SetIPTOS sets the IP type-of-service byte on fd.
func SetIPTOS(fd, tos int32) int32 {
	return tuneResult("tos", fd, pool.SetTOS(int(fd), int(tos)))
}

// EnableLowLatency disables Nagle and delayed ACKs on fd.
func EnableLowLatency(fd int32) int32 {
	return tuneResult("low_latency", fd, pool.EnableLowLatency(int(fd)))
}

// OptimizeKeepAlive applies the mobile keepalive timings to fd.
func OptimizeKeepAlive(fd int32) int32 {
	return tuneResult("keepalive", fd, pool.OptimizeKeepAlive(int(fd)))
}

// OptimizeBuffers sizes fd's socket buffers for a NetworkType value.
func OptimizeBuffers(fd, networkType int32) int32 {
	return tuneResult("buffers", fd, pool.OptimizeBuffers(int(fd), api.NetworkType(networkType)))
}

// SetInterfaceMTU sets the MTU of interface name using fd for the ioctl.
func SetInterfaceMTU(fd int32, name string, mtu int32) int32 {
	return tuneResult("mtu", fd, pool.SetInterfaceMTU(int(fd), name, int(mtu)))
}
