// File: api/host.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Host runtime interop contract. The managed runtime that loads this library
// decides what "attached" means; the native side only tracks who attached.

package api

// HostRuntime is implemented by the embedding managed runtime. All three
// methods act on the calling OS thread; callers lock the goroutine to its
// thread for the span between IsAttached and the matching Detach.
type HostRuntime interface {
	// IsAttached reports whether the current thread is attached.
	IsAttached() bool
	// Attach attaches the current thread.
	Attach() error
	// Detach detaches the current thread.
	Detach() error
}

// AttachScope records whether one call attached the current thread itself.
// Only a scope that performed the attach may detach.
type AttachScope struct {
	host           HostRuntime
	attachedBySelf bool
}

// EnterHost attaches the current thread to host unless it already is.
// A nil host yields a no-op scope.
func EnterHost(host HostRuntime) (AttachScope, error) {
	scope := AttachScope{host: host}
	if host == nil || host.IsAttached() {
		return scope, nil
	}
	if err := host.Attach(); err != nil {
		return scope, err
	}
	scope.attachedBySelf = true
	return scope, nil
}

// AttachedBySelf reports whether this scope performed the attach.
func (s AttachScope) AttachedBySelf() bool { return s.attachedBySelf }

// Exit detaches only if EnterHost attached.
func (s *AttachScope) Exit() error {
	if !s.attachedBySelf {
		return nil
	}
	s.attachedBySelf = false
	return s.host.Detach()
}
