// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Typed configuration, YAML loading and a thread-safe store with reload
// propagation.

package control

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/momentics/perfnet/api"
	"github.com/momentics/perfnet/internal/logging"
)

// PoolConfig tunes the connection pool and the sockets it opens.
type PoolConfig struct {
	SizePerClass int      `yaml:"size_per_class" json:"size_per_class"`
	NoDelay      bool     `yaml:"no_delay" json:"no_delay"`
	FastOpen     bool     `yaml:"fast_open" json:"fast_open"`
	KeepAlive    bool     `yaml:"keepalive" json:"keepalive"`
	SendBuffer   ByteSize `yaml:"send_buffer" json:"send_buffer"`
	RecvBuffer   ByteSize `yaml:"recv_buffer" json:"recv_buffer"`
	Priority     int      `yaml:"priority" json:"priority"` // -1 leaves SO_PRIORITY unset
	TOS          int      `yaml:"tos" json:"tos"`           // -1 leaves IP_TOS unset
}

// RingConfig sizes packet rings created without an explicit capacity.
type RingConfig struct {
	Slots int      `yaml:"slots" json:"slots"`
	Arena ByteSize `yaml:"arena" json:"arena"`
}

// LoopConfig tunes the event loop.
type LoopConfig struct {
	MaxEvents   int           `yaml:"max_events" json:"max_events"`
	WaitTimeout time.Duration `yaml:"wait_timeout" json:"wait_timeout"`
	CPUAffinity bool          `yaml:"cpu_affinity" json:"cpu_affinity"`
	CPU         int           `yaml:"cpu" json:"cpu"`
}

// TicketConfig bounds the session ticket cache.
type TicketConfig struct {
	TTL        time.Duration `yaml:"ttl" json:"ttl"`
	MaxEntries int           `yaml:"max_entries" json:"max_entries"`
	Shards     int           `yaml:"shards" json:"shards"`
}

// CryptoConfig selects the AEAD backend: auto, chacha20poly1305, aes-gcm or none.
type CryptoConfig struct {
	Backend string `yaml:"backend" json:"backend"`
}

// PacingConfig tunes the packet pacer.
type PacingConfig struct {
	QueueSize        int     `yaml:"queue_size" json:"queue_size"`
	PacketsPerSecond float64 `yaml:"packets_per_second" json:"packets_per_second"`
	Burst            int     `yaml:"burst" json:"burst"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// DebugConfig enables the debug HTTP endpoint when Addr is set.
type DebugConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// Config holds every tunable of the runtime.
type Config struct {
	Pool    PoolConfig   `yaml:"pool" json:"pool"`
	Ring    RingConfig   `yaml:"ring" json:"ring"`
	Loop    LoopConfig   `yaml:"loop" json:"loop"`
	Tickets TicketConfig `yaml:"tickets" json:"tickets"`
	Crypto  CryptoConfig `yaml:"crypto" json:"crypto"`
	Pacing  PacingConfig `yaml:"pacing" json:"pacing"`
	Log     LogConfig    `yaml:"log" json:"log"`
	Debug   DebugConfig  `yaml:"debug" json:"debug"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		Pool: PoolConfig{
			SizePerClass: 3,
			NoDelay:      true,
			KeepAlive:    true,
			Priority:     -1,
			TOS:          -1,
		},
		Ring: RingConfig{
			Slots: 256,
			Arena: 256 * 1024,
		},
		Loop: LoopConfig{
			MaxEvents:   256,
			WaitTimeout: 100 * time.Millisecond,
		},
		Tickets: TicketConfig{
			TTL:        time.Hour,
			MaxEntries: 100,
			Shards:     4,
		},
		Crypto: CryptoConfig{Backend: "auto"},
		Pacing: PacingConfig{
			QueueSize: 1024,
			Burst:     16,
		},
		Log: LogConfig{Level: "info"},
	}
}

func isPowerOfTwo(v int) bool { return v > 0 && v&(v-1) == 0 }

// Validate checks ranges and power-of-two sizes.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Pool.SizePerClass > 0 && c.Pool.SizePerClass <= 64, "pool.size_per_class %d out of 1..64", c.Pool.SizePerClass)
	check(c.Pool.SendBuffer >= 0 && c.Pool.RecvBuffer >= 0, "pool buffers must not be negative")
	check(c.Pool.Priority >= -1 && c.Pool.Priority <= 6, "pool.priority %d out of -1..6", c.Pool.Priority)
	check(c.Pool.TOS >= -1 && c.Pool.TOS <= 255, "pool.tos %d out of -1..255", c.Pool.TOS)
	check(isPowerOfTwo(c.Ring.Slots), "ring.slots %d is not a power of two", c.Ring.Slots)
	check(isPowerOfTwo(c.Ring.Arena.Int()), "ring.arena %s is not a power of two", c.Ring.Arena)
	check(c.Loop.MaxEvents > 0 && c.Loop.MaxEvents <= 4096, "loop.max_events %d out of 1..4096", c.Loop.MaxEvents)
	check(c.Loop.WaitTimeout >= 0, "loop.wait_timeout must not be negative")
	check(c.Loop.CPU >= 0 && c.Loop.CPU < 64, "loop.cpu %d out of 0..63", c.Loop.CPU)
	check(c.Tickets.TTL > 0, "tickets.ttl must be positive")
	check(c.Tickets.MaxEntries > 0, "tickets.max_entries must be positive")
	check(c.Tickets.Shards > 0, "tickets.shards must be positive")
	switch c.Crypto.Backend {
	case "auto", "chacha20poly1305", "aes-gcm", "none":
	default:
		check(false, "crypto.backend %q unknown", c.Crypto.Backend)
	}
	check(c.Pacing.QueueSize > 0, "pacing.queue_size must be positive")
	check(c.Pacing.PacketsPerSecond >= 0, "pacing.packets_per_second must not be negative")
	check(c.Pacing.Burst >= 0, "pacing.burst must not be negative")
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		check(false, "log.level %q unknown", c.Log.Level)
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %w: %w", api.ErrInvalidArgument, errors.Join(errs...))
}

// ParseConfig decodes YAML over DefaultConfig. Unknown keys are rejected.
// Empty input yields the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config: %w: %v", api.ErrInvalidArgument, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig reads and parses a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return ParseConfig(data)
}

// Marshal renders cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// ConfigStore holds the active configuration and notifies listeners on change.
type ConfigStore struct {
	mu        sync.RWMutex
	config    *Config
	listeners []func(*Config)
}

// NewConfigStore initializes a store with cfg, or defaults when nil.
func NewConfigStore(cfg *Config) *ConfigStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &ConfigStore{config: cfg.Clone()}
}

// GetSnapshot returns a copy of the active configuration.
func (cs *ConfigStore) GetSnapshot() *Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config.Clone()
}

// SetConfig validates cfg, installs it and runs listeners synchronously.
func (cs *ConfigStore) SetConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("set config: nil: %w", api.ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.config = cfg.Clone()
	listeners := append([]func(*Config){}, cs.listeners...)
	cs.mu.Unlock()
	cs.dispatchReload(cfg, listeners)
	return nil
}

// OnReload registers a listener hook called on config changes.
func (cs *ConfigStore) OnReload(fn func(*Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}

// dispatchReload invokes all listeners with private copies.
func (cs *ConfigStore) dispatchReload(cfg *Config, listeners []func(*Config)) {
	for _, fn := range listeners {
		fn(cfg.Clone())
	}
}
