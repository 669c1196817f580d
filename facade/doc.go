// Package facade
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Runtime is the explicit lifecycle object of the native substrate. It owns
// the connection pool, the event loop, packet rings, the session ticket
// cache, the crypto accelerator and the pacer, and tears all of them down
// exactly once. Every method has the integer-or-sentinel shape of
// api.NativeAPI so the mobile binding is a thin translation layer.
package facade
