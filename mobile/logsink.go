// File: mobile/logsink.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package mobile

import (
	"sync/atomic"

	"github.com/momentics/perfnet/internal/logging"
)

// LogSink receives native log entries in the host runtime.
type LogSink interface {
	Log(level string, message string)
}

// sinkInstalled stops Load from replacing a host sink with stderr logging.
var sinkInstalled atomic.Bool

// SetLogSink routes native logging to sink at level. A nil sink reverts to
// JSON logging on stderr. The switch reaches components that already exist.
func SetLogSink(sink LogSink, level string) error {
	if sink == nil {
		l, err := logging.NewProduction(level)
		if err != nil {
			return err
		}
		logging.SetLogger(l)
		sinkInstalled.Store(false)
		return nil
	}
	l, err := logging.NewSinkLogger(sink, level)
	if err != nil {
		return err
	}
	logging.SetLogger(l)
	sinkInstalled.Store(true)
	return nil
}

// SetLogLevel changes the level of every native logger.
func SetLogLevel(level string) error {
	return logging.SetLevel(level)
}
