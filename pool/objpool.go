// File: pool/objpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Typed sync.Pool used by the byte size classes.

package pool

import (
	"sync"

	"go.uber.org/atomic"
)

// SyncPool is a typed sync.Pool that counts fresh allocations. A non-nil
// reset runs on every object handed to Put.
type SyncPool[T any] struct {
	pool   sync.Pool
	reset  func(T)
	allocs atomic.Uint64
}

// NewSyncPool builds a pool over newFn; reset may be nil.
func NewSyncPool[T any](newFn func() T, reset func(T)) *SyncPool[T] {
	sp := &SyncPool[T]{reset: reset}
	sp.pool.New = func() any {
		sp.allocs.Inc()
		return newFn()
	}
	return sp
}

func (sp *SyncPool[T]) Get() T {
	return sp.pool.Get().(T)
}

func (sp *SyncPool[T]) Put(obj T) {
	if sp.reset != nil {
		sp.reset(obj)
	}
	sp.pool.Put(obj)
}

// Allocations reports how many objects newFn has built.
func (sp *SyncPool[T]) Allocations() uint64 {
	return sp.allocs.Load()
}
