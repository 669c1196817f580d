package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/perfnet/api"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newClockedCache(t *testing.T, opts Options) (*TicketCache, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	opts.Clock = clk.Now
	c, err := NewTicketCache(opts)
	require.NoError(t, err)
	return c, clk
}

// A ticket with a one second TTL is served immediately and missed 1.5s later.
func TestTicketCacheTTLRealClock(t *testing.T) {
	c, err := NewTicketCache(Options{TTL: time.Second})
	require.NoError(t, err)

	require.NoError(t, c.Store("example.test", []byte("ticket-1")))
	got, ok := c.Lookup("example.test")
	require.True(t, ok)
	assert.Equal(t, []byte("ticket-1"), got)

	time.Sleep(1500 * time.Millisecond)
	_, ok = c.Lookup("example.test")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
	assert.EqualValues(t, 1, c.Stats().Expired)
}

func TestTicketCacheTTLFakeClock(t *testing.T) {
	c, clk := newClockedCache(t, Options{TTL: time.Minute})
	require.NoError(t, c.Store("a.test", []byte{1}))

	clk.Advance(59 * time.Second)
	_, ok := c.Lookup("a.test")
	assert.True(t, ok)

	// Overwrite restarts the TTL.
	require.NoError(t, c.Store("a.test", []byte{2}))
	clk.Advance(30 * time.Second)
	got, ok := c.Lookup("a.test")
	require.True(t, ok)
	assert.Equal(t, []byte{2}, got)

	clk.Advance(30 * time.Second)
	_, ok = c.Lookup("a.test")
	assert.False(t, ok)
}

func TestTicketCacheOwnsCopies(t *testing.T) {
	c, _ := newClockedCache(t, Options{})
	in := []byte("secret")
	require.NoError(t, c.Store("h", in))
	in[0] = 'X'

	out, ok := c.Lookup("h")
	require.True(t, ok)
	assert.Equal(t, []byte("secret"), out)
	out[0] = 'Y'
	again, _ := c.Lookup("h")
	assert.Equal(t, []byte("secret"), again)
}

func TestTicketCacheRejectsEmpty(t *testing.T) {
	c, _ := newClockedCache(t, Options{})
	assert.ErrorIs(t, c.Store("", []byte{1}), api.ErrInvalidArgument)
	assert.ErrorIs(t, c.Store("h", nil), api.ErrInvalidArgument)
	_, ok := c.Lookup("")
	assert.False(t, ok)
}

func TestTicketCacheEvictsOldestFirst(t *testing.T) {
	c, clk := newClockedCache(t, Options{MaxEntries: 3, Shards: 1})
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Store(fmt.Sprintf("h%d", i), []byte{byte(i)}))
		clk.Advance(time.Second)
	}
	// Refreshing h0 moves it behind h1 and h2.
	require.NoError(t, c.Store("h0", []byte{9}))
	require.NoError(t, c.Store("h3", []byte{3}))

	_, ok := c.Lookup("h1")
	assert.False(t, ok, "h1 is the oldest live entry")
	for _, h := range []string{"h0", "h2", "h3"} {
		_, ok := c.Lookup(h)
		assert.True(t, ok, h)
	}
	assert.Equal(t, 3, c.Len())
	assert.EqualValues(t, 1, c.Stats().Evictions)
}

func TestTicketCacheOverwriteKeepsQueueBounded(t *testing.T) {
	c, _ := newClockedCache(t, Options{MaxEntries: 4, Shards: 1})
	require.NoError(t, c.Store("pinned", []byte{1}))
	for i := 0; i < 1000; i++ {
		require.NoError(t, c.Store("hot", []byte{byte(i)}))
	}
	sh := c.shards[0]
	assert.LessOrEqual(t, sh.order.Length(), 2*c.perShard+1)
	_, ok := c.Lookup("pinned")
	assert.True(t, ok)
}

func TestTicketCacheCloseMissesEverything(t *testing.T) {
	c, _ := newClockedCache(t, Options{})
	hosts := []string{"a.test", "b.test", "c.test"}
	for _, h := range hosts {
		require.NoError(t, c.Store(h, []byte(h)))
	}
	c.Close()
	c.Close()
	for _, h := range hosts {
		_, ok := c.Lookup(h)
		assert.False(t, ok, h)
	}
	assert.ErrorIs(t, c.Store("a.test", []byte{1}), api.ErrClosed)
	assert.True(t, c.Stats().Closed)
}

func TestTicketCacheClear(t *testing.T) {
	c, _ := newClockedCache(t, Options{})
	require.NoError(t, c.Store("a", []byte{1}))
	c.Clear()
	_, ok := c.Lookup("a")
	assert.False(t, ok)
	require.NoError(t, c.Store("a", []byte{2}))
	_, ok = c.Lookup("a")
	assert.True(t, ok)
}

func TestTicketCacheConcurrentAccess(t *testing.T) {
	c, _ := newClockedCache(t, Options{MaxEntries: 64, Shards: 8})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				h := fmt.Sprintf("h%d", (g*31+i)%100)
				_ = c.Store(h, []byte(h))
				if got, ok := c.Lookup(h); ok {
					assert.Equal(t, []byte(h), got)
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 64)
}
