// File: internal/logging/logging.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process logger shared by every component. The logger is swapped atomically
// and component loggers resolve it on every entry, so a host-installed sink
// takes effect on all goroutines at once, including components built earlier.

package logging

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	current atomic.Pointer[zap.Logger]
	level   = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	current.Store(zap.NewNop())
}

// SetLogger installs l as the process logger. A nil logger disables logging.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// L returns the process logger.
func L() *zap.Logger {
	return current.Load()
}

// Named returns a child logger for a component. It writes through whichever
// logger is installed at the time of each entry.
func Named(component string) *zap.Logger {
	return zap.New(liveCore{}, zap.AddCaller()).Named(component)
}

// liveCore delegates to the core of the current process logger.
type liveCore struct {
	fields []zapcore.Field
}

func (c liveCore) resolve() zapcore.Core {
	core := current.Load().Core()
	if len(c.fields) > 0 {
		core = core.With(c.fields)
	}
	return core
}

func (c liveCore) Enabled(lvl zapcore.Level) bool {
	return current.Load().Core().Enabled(lvl)
}

func (c liveCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return liveCore{fields: merged}
}

func (c liveCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	return c.resolve().Check(ent, ce)
}

func (c liveCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.resolve().Write(ent, fields)
}

func (c liveCore) Sync() error {
	return current.Load().Core().Sync()
}

// ParseLevel accepts zap level names case-insensitively; empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(strings.ToLower(level))
}

// SetLevel changes the level of every logger built by this package.
func SetLevel(name string) error {
	lvl, err := ParseLevel(name)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}

// Level returns the current shared level.
func Level() zapcore.Level {
	return level.Level()
}

// NewProduction builds a JSON logger writing to stderr at the shared level,
// first setting that level to name.
func NewProduction(name string) (*zap.Logger, error) {
	if err := SetLevel(name); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Sampling = nil
	return cfg.Build()
}
