package logging

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu     sync.Mutex
	levels []string
	lines  []string
}

func (s *recordingSink) Log(level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels = append(s.levels, level)
	s.lines = append(s.lines, message)
}

func TestSinkLoggerFiltersAndFormats(t *testing.T) {
	sink := &recordingSink{}
	l, err := NewSinkLogger(sink, "WARN")
	require.NoError(t, err)

	l.Named("pool").Info("dropped")
	l.Named("pool").Warn("exhausted", zap.String("class", "vision"), zap.Int("size", 3))

	require.Len(t, sink.lines, 1)
	assert.Equal(t, "warn", sink.levels[0])
	assert.Equal(t, "[pool] exhausted [class=vision size=3]", sink.lines[0])
}

func TestSinkLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := NewSinkLogger(&recordingSink{}, "loud")
	assert.Error(t, err)
}

func TestSetLoggerNilFallsBackToNop(t *testing.T) {
	SetLogger(nil)
	assert.NotNil(t, L())
	Named("x").Info("discarded")
}

func TestSetLevelAppliesToExistingLoggers(t *testing.T) {
	sink := &recordingSink{}
	l, err := NewSinkLogger(sink, "error")
	require.NoError(t, err)
	defer SetLevel("info")

	l.Warn("hidden")
	require.NoError(t, SetLevel("debug"))
	l.Debug("shown")
	assert.Equal(t, []string{"shown"}, sink.lines)
	assert.Error(t, SetLevel("chatty"))
}

func TestNamedFollowsLaterSetLogger(t *testing.T) {
	defer SetLogger(nil)
	SetLogger(nil)
	early := Named("loop").With(zap.Int("loop", 1))
	early.Info("before sink")

	sink := &recordingSink{}
	l, err := NewSinkLogger(sink, "debug")
	require.NoError(t, err)
	defer SetLevel("info")
	SetLogger(l)

	early.Debug("after sink", zap.String("op", "wait"))
	require.Len(t, sink.lines, 1)
	assert.Equal(t, "[loop] after sink [loop=1 op=wait]", sink.lines[0])

	SetLogger(nil)
	early.Error("dropped")
	assert.Len(t, sink.lines, 1)
}
