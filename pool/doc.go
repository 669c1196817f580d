// Package pool
// Author: momentics <momentics@gmail.com>
//
// Socket and memory pooling for the perfnet substrate.
// ConnPool keeps per-class outbound TCP sockets alive across tunnel streams and
// guarantees that every descriptor it owns is closed exactly once.
// BytePool recycles packet buffers in power-of-two size classes.
// Socket tuning helpers (fast open, QoS marks, keepalive, buffers, MTU) live
// in the sockopt files.
package pool
