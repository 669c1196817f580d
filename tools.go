//go:build tools

// File: tools.go
// Author: momentics <momentics@gmail.com>
//
// Pins the gomobile binding generator used to build the mobile package.

package perfnet

import (
	_ "golang.org/x/mobile/bind"
)
