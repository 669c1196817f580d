// File: pool/sockopt.go
// Author: momentics <momentics@gmail.com>

package pool

import "github.com/momentics/perfnet/api"

// SocketBufferSize returns the send/receive buffer size tuned for the link kind.
func SocketBufferSize(network api.NetworkType) int {
	switch network {
	case api.NetworkWiFi:
		return 512 * 1024
	case api.Network5G:
		return 1024 * 1024
	default:
		return 256 * 1024
	}
}
