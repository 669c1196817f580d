// File: mobile/host.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package mobile

import (
	"sync/atomic"

	"github.com/momentics/perfnet/api"
	"github.com/momentics/perfnet/internal/logging"
)

// HostRuntime is implemented by the managed runtime that loads the library.
// All methods act on the calling OS thread.
type HostRuntime interface {
	IsAttached() bool
	Attach() error
	Detach() error
}

type hostBox struct{ rt HostRuntime }

// hostBinding is the process-wide interop handle. It is written at most once.
var hostBinding atomic.Pointer[hostBox]

// bindHost publishes h unless a binding already exists and returns the
// binding in effect.
func bindHost(h HostRuntime) api.HostRuntime {
	if h != nil && hostBinding.CompareAndSwap(nil, &hostBox{rt: h}) {
		return h
	}
	box := hostBinding.Load()
	if box == nil {
		return nil
	}
	if h != nil && box.rt != h {
		logging.Named("mobile").Warn("host runtime already bound, keeping the first binding")
	}
	return box.rt
}

// boundHost returns the published binding or nil.
func boundHost() api.HostRuntime {
	if box := hostBinding.Load(); box != nil {
		return box.rt
	}
	return nil
}

// HostBound reports whether a host runtime has been bound.
func HostBound() bool { return boundHost() != nil }
