// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral poller construction.

package reactor

import (
	"fmt"

	"github.com/momentics/perfnet/api"
)

// DefaultMaxEvents bounds one Wait call when the caller passes no limit.
const DefaultMaxEvents = 256

var (
	// ErrPollerClosed indicates use after Close.
	ErrPollerClosed = fmt.Errorf("poller closed: %w", api.ErrClosed)

	// ErrUnsupported indicates a platform without epoll.
	ErrUnsupported = fmt.Errorf("reactor: this platform is not supported: %w", api.ErrNotSupported)
)

// Ensure the platform poller satisfies the shared contract.
var _ api.Poller = (*epollPoller)(nil)
