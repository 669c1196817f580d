// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown is implemented by components with an explicit teardown.
type GracefulShutdown interface {
	// Shutdown stops internal services and releases resources.
	// It is safe to call more than once.
	Shutdown() error
}
