// Package api
// Author: momentics
//
// Readiness-multiplexing contract shared by the reactor and the event loop.

package api

// Poller multiplexes readiness of many descriptors.
type Poller interface {
	// Add registers fd with the given interest mask.
	Add(fd int, mask uint32) error
	// Remove deregisters fd.
	Remove(fd int) error
	// Wait blocks up to timeoutMs and fills events; returns the number filled.
	Wait(events []Event, timeoutMs int) (int, error)
	// Wake interrupts a blocked Wait and keeps every later Wait from blocking.
	Wake() error
	// Close releases the poll handle.
	Close() error
}
