// File: internal/logging/sink.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// zapcore.Core that forwards rendered entries to a host-provided sink.

package logging

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Sink receives one rendered line per log entry.
type Sink interface {
	Log(level string, message string)
}

// NewSinkLogger returns a logger whose entries at or above the shared level
// reach sink, first setting that level to name.
func NewSinkLogger(sink Sink, name string) (*zap.Logger, error) {
	if err := SetLevel(name); err != nil {
		return nil, err
	}
	core := &sinkCore{sink: sink, minLevel: level}
	return zap.New(core, zap.AddCaller()), nil
}

type sinkCore struct {
	sink     Sink
	minLevel zapcore.LevelEnabler
	fields   []zapcore.Field
}

func (c *sinkCore) Enabled(level zapcore.Level) bool {
	return c.minLevel.Enabled(level)
}

func (c *sinkCore) With(fields []zapcore.Field) zapcore.Core {
	base := make([]zapcore.Field, len(c.fields), len(c.fields)+len(fields))
	copy(base, c.fields)
	base = append(base, fields...)
	return &sinkCore{sink: c.sink, minLevel: c.minLevel, fields: base}
}

func (c *sinkCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *sinkCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range c.fields {
		field.AddTo(enc)
	}
	for _, field := range fields {
		field.AddTo(enc)
	}

	payload := strings.TrimSpace(ent.Message)
	if payload == "" {
		payload = ent.Level.String()
	}
	if ent.LoggerName != "" {
		payload = "[" + ent.LoggerName + "] " + payload
	}
	if len(enc.Fields) > 0 {
		payload += " " + formatFields(enc.Fields)
	}

	c.sink.Log(ent.Level.String(), payload)
	return nil
}

func (c *sinkCore) Sync() error { return nil }

func formatFields(values map[string]interface{}) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("[")
	for i, key := range keys {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(key)
		b.WriteString("=")
		if s, ok := values[key].(string); ok {
			b.WriteString(s)
		} else {
			b.WriteString(fmt.Sprint(values[key]))
		}
	}
	b.WriteString("]")
	return b.String()
}
