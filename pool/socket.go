// File: pool/socket.go
// Author: momentics <momentics@gmail.com>
//
// Socket operations the connection pool depends on. The platform
// implementation talks to the kernel; tests inject their own.

package pool

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/momentics/perfnet/api"
)

// SocketOptions tunes every socket the pool opens.
type SocketOptions struct {
	NoDelay    bool
	FastOpen   bool
	KeepAlive  bool
	SendBuffer int // bytes; 0 keeps the kernel default
	RecvBuffer int // bytes; 0 keeps the kernel default
	Priority   int // SO_PRIORITY, -1 leaves it unset
	TOS        int // IP_TOS, -1 leaves it unset
}

// DefaultSocketOptions returns the options the mobile client runs with.
func DefaultSocketOptions() SocketOptions {
	return SocketOptions{
		NoDelay:   true,
		KeepAlive: true,
		Priority:  -1,
		TOS:       -1,
	}
}

// KeepAliveParams are the probe timings applied by OptimizeKeepAlive.
var KeepAliveParams = struct {
	Idle     time.Duration
	Interval time.Duration
	Count    int
}{
	Idle:     60 * time.Second,
	Interval: 10 * time.Second,
	Count:    3,
}

// SocketOps opens, probes, connects and closes pooled descriptors.
type SocketOps interface {
	// Open creates a non-blocking TCP socket tuned with opts.
	Open(opts SocketOptions) (int, error)
	// Probe returns nil when fd is still usable.
	Probe(fd int) error
	// Connect starts a non-blocking connect; in-progress counts as success.
	Connect(fd int, addr netip.AddrPort) error
	// Close releases fd.
	Close(fd int) error
}

// ParseRemote converts a host literal and port to an address. Only IP
// literals are accepted; name resolution belongs to the proxy core.
func ParseRemote(host string, port int) (netip.AddrPort, error) {
	if port <= 0 || port > 0xffff {
		return netip.AddrPort{}, fmt.Errorf("port %d: %w", port, api.ErrInvalidArgument)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("host %q: %w", host, api.ErrInvalidArgument)
	}
	return netip.AddrPortFrom(addr.Unmap(), uint16(port)), nil
}
