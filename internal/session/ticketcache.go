// File: internal/session/ticketcache.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe TicketCache keyed by server host.

package session

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/eapache/queue"
	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/momentics/perfnet/api"
	"github.com/momentics/perfnet/internal/logging"
)

// ErrCacheClosed is returned by Store after Close.
var ErrCacheClosed = fmt.Errorf("ticket cache closed: %w", api.ErrClosed)

// Options configures a TicketCache.
type Options struct {
	TTL        time.Duration
	MaxEntries int
	Shards     int
	Clock      func() time.Time
}

// DefaultOptions keeps at most 100 tickets for one hour each.
func DefaultOptions() Options {
	return Options{
		TTL:        time.Hour,
		MaxEntries: 100,
		Shards:     4,
	}
}

type ticketEntry struct {
	ticket     []byte
	insertedAt time.Time
	gen        uint64
}

// insertion is one FIFO record; it is stale once the host was overwritten.
type insertion struct {
	host string
	gen  uint64
}

type ticketShard struct {
	mu      sync.Mutex
	entries map[string]ticketEntry
	order   *queue.Queue
	nextGen uint64
}

// TicketCache stores session tickets per host with last-write-wins semantics.
type TicketCache struct {
	shards   []*ticketShard
	mask     uint32
	perShard int
	ttl      time.Duration
	clock    func() time.Time
	log      *zap.Logger

	closeOnce sync.Once
	closed    uatomic.Bool

	stores    uatomic.Int64
	hits      uatomic.Int64
	misses    uatomic.Int64
	expired   uatomic.Int64
	evictions uatomic.Int64
}

// NewTicketCache constructs a cache. Shards is rounded up to a power of two.
func NewTicketCache(opts Options) (*TicketCache, error) {
	def := DefaultOptions()
	if opts.TTL < 0 || opts.MaxEntries < 0 || opts.Shards < 0 {
		return nil, fmt.Errorf("ticket cache options %+v: %w", opts, api.ErrInvalidArgument)
	}
	if opts.TTL == 0 {
		opts.TTL = def.TTL
	}
	if opts.MaxEntries == 0 {
		opts.MaxEntries = def.MaxEntries
	}
	if opts.Shards == 0 {
		opts.Shards = def.Shards
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	m := nextPowerOfTwo(uint32(opts.Shards))
	if int(m) > opts.MaxEntries {
		m = 1
	}
	perShard := (opts.MaxEntries + int(m) - 1) / int(m)
	shards := make([]*ticketShard, m)
	for i := range shards {
		shards[i] = &ticketShard{entries: make(map[string]ticketEntry), order: queue.New()}
	}
	return &TicketCache{
		shards:   shards,
		mask:     m - 1,
		perShard: perShard,
		ttl:      opts.TTL,
		clock:    opts.Clock,
		log:      logging.Named("tickets"),
	}, nil
}

// shard picks the correct shard for a given host.
func (c *TicketCache) shard(host string) *ticketShard {
	return c.shards[fnv32(host)&c.mask]
}

// Store saves a private copy of ticket for host, replacing any previous ticket
// and restarting its TTL.
func (c *TicketCache) Store(host string, ticket []byte) error {
	if host == "" || len(ticket) == 0 {
		return fmt.Errorf("store ticket: empty host or ticket: %w", api.ErrInvalidArgument)
	}
	if c.closed.Load() {
		return ErrCacheClosed
	}
	cp := make([]byte, len(ticket))
	copy(cp, ticket)

	sh := c.shard(host)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	// Close may have drained this shard while we waited for the lock.
	if c.closed.Load() {
		return ErrCacheClosed
	}
	sh.nextGen++
	sh.entries[host] = ticketEntry{ticket: cp, insertedAt: c.clock(), gen: sh.nextGen}
	sh.order.Add(insertion{host: host, gen: sh.nextGen})
	c.evictLocked(sh)
	c.stores.Inc()
	return nil
}

// evictLocked drops the oldest live entries until the shard fits. Records of
// overwritten or expired entries are stale and skipped.
func (c *TicketCache) evictLocked(sh *ticketShard) {
	for sh.order.Length() > 0 {
		rec := sh.order.Peek().(insertion)
		live := sh.live(rec)
		if live && len(sh.entries) <= c.perShard {
			break
		}
		sh.order.Remove()
		if live {
			delete(sh.entries, rec.host)
			c.evictions.Inc()
			c.log.Debug("ticket evicted", zap.String("host", rec.host))
		}
	}
	if sh.order.Length() > 2*c.perShard {
		sh.compact()
	}
}

func (sh *ticketShard) live(rec insertion) bool {
	e, ok := sh.entries[rec.host]
	return ok && e.gen == rec.gen
}

// compact rebuilds the FIFO from live records, preserving order.
func (sh *ticketShard) compact() {
	q := queue.New()
	for i := 0; i < sh.order.Length(); i++ {
		if rec := sh.order.Get(i).(insertion); sh.live(rec) {
			q.Add(rec)
		}
	}
	sh.order = q
}

// Lookup returns a copy of the ticket for host. Expired entries are removed
// and reported as a miss.
func (c *TicketCache) Lookup(host string) ([]byte, bool) {
	if host == "" || c.closed.Load() {
		c.misses.Inc()
		return nil, false
	}
	sh := c.shard(host)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[host]
	if !ok {
		c.misses.Inc()
		return nil, false
	}
	if c.clock().Sub(e.insertedAt) >= c.ttl {
		delete(sh.entries, host)
		c.expired.Inc()
		c.misses.Inc()
		return nil, false
	}
	c.hits.Inc()
	out := make([]byte, len(e.ticket))
	copy(out, e.ticket)
	return out, true
}

// Remove drops host's ticket.
func (c *TicketCache) Remove(host string) {
	sh := c.shard(host)
	sh.mu.Lock()
	delete(sh.entries, host)
	sh.mu.Unlock()
}

// Clear drops every ticket.
func (c *TicketCache) Clear() {
	for _, sh := range c.shards {
		sh.mu.Lock()
		for host, e := range sh.entries {
			wipe(e.ticket)
			delete(sh.entries, host)
		}
		sh.order = queue.New()
		sh.mu.Unlock()
	}
}

// Close is the unload hook: it runs once, wipes every ticket, and turns later
// lookups into misses and later stores into ErrCacheClosed.
func (c *TicketCache) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.Clear()
		c.log.Debug("ticket cache closed")
	})
}

// Len counts stored entries, expired ones included until looked up.
func (c *TicketCache) Len() int {
	n := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		n += len(sh.entries)
		sh.mu.Unlock()
	}
	return n
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries   int   `json:"entries"`
	Stores    int64 `json:"stores"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Expired   int64 `json:"expired"`
	Evictions int64 `json:"evictions"`
	Closed    bool  `json:"closed"`
}

// Stats returns current counters.
func (c *TicketCache) Stats() Stats {
	return Stats{
		Entries:   c.Len(),
		Stores:    c.stores.Load(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Expired:   c.expired.Load(),
		Evictions: c.evictions.Load(),
		Closed:    c.closed.Load(),
	}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// fnv32 hashes a string to uint32.
func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
