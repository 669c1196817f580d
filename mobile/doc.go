// Package mobile
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// gomobile-bindable entry points of the perfnet substrate. Every function
// takes and returns only types gomobile can bridge and reports failures as
// api.ErrorCode values or the documented sentinels (-1 descriptors, 0
// handles, nil byte slices). No function panics across the boundary.
//
// Build with:
//
//	gomobile bind -target=android -o perfnet.aar github.com/momentics/perfnet/mobile
package mobile
