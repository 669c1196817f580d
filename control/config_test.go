// control/config_test.go
// Author: momentics <momentics@gmail.com>

package control

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/perfnet/api"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestParseConfigEmptyYieldsDefaults(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfigOverridesAndSizes(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
pool:
  size_per_class: 8
  fast_open: true
  send_buffer: 512KiB
  recv_buffer: 1048576
ring:
  slots: 1024
  arena: 1MiB
loop:
  wait_timeout: 250ms
tickets:
  ttl: 30m
crypto:
  backend: chacha20poly1305
log:
  level: debug
`))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Pool.SizePerClass)
	assert.True(t, cfg.Pool.FastOpen)
	assert.True(t, cfg.Pool.NoDelay, "unset keys keep defaults")
	assert.Equal(t, ByteSize(512*1024), cfg.Pool.SendBuffer)
	assert.Equal(t, ByteSize(1<<20), cfg.Pool.RecvBuffer)
	assert.Equal(t, 1024, cfg.Ring.Slots)
	assert.Equal(t, ByteSize(1<<20), cfg.Ring.Arena)
	assert.Equal(t, 250*time.Millisecond, cfg.Loop.WaitTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Tickets.TTL)
	assert.Equal(t, "chacha20poly1305", cfg.Crypto.Backend)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestParseConfigRejectsUnknownKeys(t *testing.T) {
	_, err := ParseConfig([]byte("pool:\n  sizes: 3\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
}

func TestParseConfigRejectsBadSize(t *testing.T) {
	_, err := ParseConfig([]byte("ring:\n  arena: lots\n"))
	require.Error(t, err)
}

func TestValidateRanges(t *testing.T) {
	cases := map[string]func(*Config){
		"slots not power of two": func(c *Config) { c.Ring.Slots = 100 },
		"arena not power of two": func(c *Config) { c.Ring.Arena = 3000 },
		"pool too large":         func(c *Config) { c.Pool.SizePerClass = 65 },
		"priority out of range":  func(c *Config) { c.Pool.Priority = 7 },
		"tos out of range":       func(c *Config) { c.Pool.TOS = 256 },
		"zero ttl":               func(c *Config) { c.Tickets.TTL = 0 },
		"unknown backend":        func(c *Config) { c.Crypto.Backend = "rot13" },
		"negative pps":           func(c *Config) { c.Pacing.PacketsPerSecond = -1 },
		"cpu out of range":       func(c *Config) { c.Loop.CPU = 64 },
		"unknown log level":      func(c *Config) { c.Log.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, api.CodeInvalidArgument, api.CodeOf(err))
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perfnet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tickets:\n  max_entries: 10\n"), 0o600))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Tickets.MaxEntries)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMarshalRoundTripsSizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ring.Arena = 1 << 20
	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "arena: 1MiB")

	back, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
}

func TestConfigStoreReload(t *testing.T) {
	store := NewConfigStore(nil)
	var got []*Config
	store.OnReload(func(c *Config) { got = append(got, c) })

	bad := DefaultConfig()
	bad.Ring.Slots = 3
	require.Error(t, store.SetConfig(bad))
	assert.Empty(t, got, "invalid config must not reach listeners")
	assert.Equal(t, 256, store.GetSnapshot().Ring.Slots)

	next := DefaultConfig()
	next.Log.Level = "warn"
	require.NoError(t, store.SetConfig(next))
	require.Len(t, got, 1)
	assert.Equal(t, "warn", got[0].Log.Level)
	assert.Equal(t, "warn", store.GetSnapshot().Log.Level)

	snap := store.GetSnapshot()
	snap.Log.Level = "error"
	assert.Equal(t, "warn", store.GetSnapshot().Log.Level, "snapshots are copies")

	assert.ErrorIs(t, store.SetConfig(nil), api.ErrInvalidArgument)
}

func TestByteSizeMarshalKeepsOddValuesExact(t *testing.T) {
	v, err := ByteSize(1000000).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), v)

	v, err = ByteSize(64 * 1024).MarshalYAML()
	require.NoError(t, err)
	assert.Equal(t, "64KiB", v)
}
