// Package control
// Author: momentics <momentics@gmail.com>
//
// Configuration, runtime metrics and debug introspection for the perfnet
// substrate.
//
// Provides concurrent-safe state handling primitives including:
//   - Typed YAML configuration with validation and reload listeners
//   - Counter and gauge metrics
//   - Probe registration, state export and an HTTP debug router
package control
