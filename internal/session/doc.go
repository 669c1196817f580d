// Package session
// Author: momentics <momentics@gmail.com>
//
// TLS session-ticket cache for connection resumption.
// Tickets are owned by the cache as private copies, expire lazily on lookup,
// and are evicted oldest-first when a shard reaches capacity.

package session
