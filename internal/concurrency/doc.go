// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives of the perfnet substrate: the sequenced SPSC packet
// ring and the epoll event loop that tracks host thread attachment per wait.
package concurrency
