// File: facade/runtime.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/momentics/perfnet/api"
	"github.com/momentics/perfnet/control"
	"github.com/momentics/perfnet/internal/concurrency"
	"github.com/momentics/perfnet/internal/cryptoaccel"
	"github.com/momentics/perfnet/internal/logging"
	"github.com/momentics/perfnet/internal/pacing"
	"github.com/momentics/perfnet/internal/session"
	"github.com/momentics/perfnet/pool"
)

// ErrRuntimeClosed is returned by every operation after Shutdown.
var ErrRuntimeClosed = fmt.Errorf("runtime shut down: %w", api.ErrClosed)

// ErrPoolNotInitialized is returned by socket operations before InitPool.
var ErrPoolNotInitialized = fmt.Errorf("connection pool not initialized: %w", api.ErrInvalidHandle)

const debugShutdownTimeout = 2 * time.Second

// Option customises a Runtime.
type Option func(*Runtime)

// WithSocketOps replaces the kernel socket implementation used by the pool.
func WithSocketOps(ops pool.SocketOps) Option {
	return func(r *Runtime) { r.socketOps = ops }
}

// WithPacketWriter replaces the socket writer used by the pacer.
func WithPacketWriter(w pacing.Writer) Option {
	return func(r *Runtime) { r.packetWriter = w }
}

// Runtime aggregates all native components behind api.NativeAPI.
type Runtime struct {
	id      uuid.UUID
	host    api.HostRuntime
	store   *control.ConfigStore
	metrics *control.MetricsRegistry
	probes  *control.DebugProbes
	log     *zap.Logger

	socketOps    pool.SocketOps
	packetWriter pacing.Writer

	poolMu sync.Mutex
	pool   atomic.Pointer[pool.ConnPool]

	// Handles for loops and rings share one counter so a handle never
	// resolves to the wrong kind.
	nextHandle uatomic.Int64
	loopMu     sync.Mutex
	loop       int64    // handle of the live loop, 0 if none
	loops      sync.Map // int64 -> *concurrency.EventLoop
	rings      sync.Map // int64 -> *concurrency.SequencedRing
	ringCount  uatomic.Int64

	tickets *session.TicketCache
	crypto  *cryptoaccel.Accelerator

	pacerMu sync.Mutex
	pacer   *pacing.Pacer

	ctx    context.Context
	cancel context.CancelFunc

	debugSrv *http.Server
	debugLn  net.Listener

	closed   atomic.Bool
	shutdown sync.Once
}

var _ api.NativeAPI = (*Runtime)(nil)

// New builds a Runtime from cfg, or defaults when nil. host may be nil when
// no managed runtime needs attaching. A crypto backend that fails its self-test
// does not fail construction: the accelerator refuses every call instead.
func New(cfg *control.Config, host api.HostRuntime, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		cfg = control.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logging.SetLevel(cfg.Log.Level); err != nil {
		return nil, fmt.Errorf("log level %q: %w: %v", cfg.Log.Level, api.ErrInvalidArgument, err)
	}

	r := &Runtime{
		id:      uuid.New(),
		host:    host,
		store:   control.NewConfigStore(cfg),
		metrics: control.NewMetricsRegistry(),
		probes:  control.NewDebugProbes(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logging.Named("runtime").With(zap.String("instance", r.id.String()))
	r.ctx, r.cancel = context.WithCancel(context.Background())

	tickets, err := session.NewTicketCache(session.Options{
		TTL:        cfg.Tickets.TTL,
		MaxEntries: cfg.Tickets.MaxEntries,
		Shards:     cfg.Tickets.Shards,
	})
	if err != nil {
		r.cancel()
		return nil, err
	}
	r.tickets = tickets

	crypto, err := cryptoaccel.NewFromConfig(cfg.Crypto.Backend)
	if err != nil {
		r.log.Error("crypto accelerator will refuse all calls", zap.Error(err))
		r.metrics.Inc("crypto.install_failures")
	}
	r.crypto = crypto

	r.store.OnReload(r.applyConfig)
	r.registerProbes()

	if cfg.Debug.Addr != "" {
		if err := r.startDebug(cfg.Debug.Addr); err != nil {
			r.tickets.Close()
			r.cancel()
			return nil, err
		}
	}

	r.log.Info("runtime created",
		zap.Int("api_version", api.APIVersion),
		zap.String("crypto", r.crypto.Backend()),
		zap.String("debug_addr", r.DebugAddr()))
	return r, nil
}

// ID returns the instance id used in logs and stats.
func (r *Runtime) ID() string { return r.id.String() }

// Config returns a snapshot of the active configuration.
func (r *Runtime) Config() *control.Config { return r.store.GetSnapshot() }

// Metrics exposes the metrics registry.
func (r *Runtime) Metrics() *control.MetricsRegistry { return r.metrics }

// Probes exposes the debug probe registry.
func (r *Runtime) Probes() *control.DebugProbes { return r.probes }

// Reload validates and applies cfg. Only the log level and the crypto
// backend take effect on a live runtime; sizes apply to components created
// afterwards.
func (r *Runtime) Reload(cfg *control.Config) error {
	if r.closed.Load() {
		return ErrRuntimeClosed
	}
	return r.store.SetConfig(cfg)
}

func (r *Runtime) applyConfig(cfg *control.Config) {
	r.metrics.Inc("config.reloads")
	if err := logging.SetLevel(cfg.Log.Level); err != nil {
		r.log.Warn("log level not applied", zap.Error(err))
	}
	if cfg.Crypto.Backend == r.crypto.Backend() {
		return
	}
	b, err := cryptoaccel.Lookup(cfg.Crypto.Backend)
	switch {
	case err != nil:
		r.log.Warn("crypto backend not applied", zap.Error(err))
	case b == nil:
		r.crypto.Uninstall()
		r.log.Warn("crypto backend disabled by reload")
	default:
		if err := r.crypto.Install(b); err != nil {
			r.metrics.Inc("crypto.install_failures")
		}
	}
}

// fail records err under op and returns its code.
func (r *Runtime) fail(op string, err error) api.ErrorCode {
	code := api.CodeOf(err)
	r.metrics.Inc("ffi.errors." + code.String())
	r.log.Debug("native call failed", zap.String("op", op), zap.Stringer("code", code), zap.Error(err))
	return code
}

// ---- connection pool ----

// InitPool creates the connection pool. Later calls are no-ops that succeed,
// whatever size they ask for.
func (r *Runtime) InitPool(sizePerClass int) api.ErrorCode {
	if r.closed.Load() {
		return r.fail("init_pool", ErrRuntimeClosed)
	}
	r.poolMu.Lock()
	defer r.poolMu.Unlock()
	if p := r.pool.Load(); p != nil {
		if p.SizePerClass() != sizePerClass {
			r.log.Info("pool already initialized", zap.Int("size", p.SizePerClass()), zap.Int("requested", sizePerClass))
		}
		return api.CodeOK
	}
	if sizePerClass <= 0 {
		sizePerClass = r.store.GetSnapshot().Pool.SizePerClass
	}
	p, err := pool.NewConnPool(pool.Options{
		SizePerClass: sizePerClass,
		Socket:       r.socketOptions(),
	}, r.socketOps)
	if err != nil {
		return r.fail("init_pool", err)
	}
	r.pool.Store(p)
	r.log.Info("pool initialized", zap.Int("size_per_class", sizePerClass))
	return api.CodeOK
}

func (r *Runtime) socketOptions() pool.SocketOptions {
	pc := r.store.GetSnapshot().Pool
	return pool.SocketOptions{
		NoDelay:    pc.NoDelay,
		FastOpen:   pc.FastOpen,
		KeepAlive:  pc.KeepAlive,
		SendBuffer: pc.SendBuffer.Int(),
		RecvBuffer: pc.RecvBuffer.Int(),
		Priority:   pc.Priority,
		TOS:        pc.TOS,
	}
}

func (r *Runtime) connPool() (*pool.ConnPool, error) {
	if r.closed.Load() {
		return nil, ErrRuntimeClosed
	}
	p := r.pool.Load()
	if p == nil {
		return nil, ErrPoolNotInitialized
	}
	return p, nil
}

// AcquireSocket returns a pooled descriptor or -1 when the class is exhausted.
func (r *Runtime) AcquireSocket(class api.PoolClass) int {
	p, err := r.connPool()
	if err != nil {
		r.fail("acquire_socket", err)
		return api.InvalidFD
	}
	fd := p.AcquireFD(class)
	if fd == api.InvalidFD {
		r.metrics.Inc("pool.acquire_misses")
	}
	return fd
}

// ConnectSocket starts a non-blocking connect of a pooled descriptor.
func (r *Runtime) ConnectSocket(class api.PoolClass, fd int, host string, port int) api.ErrorCode {
	p, err := r.connPool()
	if err == nil {
		err = p.ConnectFD(class, fd, host, port)
	}
	if err != nil {
		return r.fail("connect_socket", err)
	}
	return api.CodeOK
}

// ReturnSocket hands a descriptor back to the pool. Unknown descriptors are ignored.
func (r *Runtime) ReturnSocket(class api.PoolClass, fd int) {
	p, err := r.connPool()
	if err != nil {
		r.fail("return_socket", err)
		return
	}
	p.ReturnFD(class, fd)
}

// ---- event loop ----

// CreateEpoll returns the handle of the live event loop, creating it on first
// use. At most one loop is live per runtime. 0 means failure.
func (r *Runtime) CreateEpoll() int64 {
	if r.closed.Load() {
		r.fail("create_epoll", ErrRuntimeClosed)
		return 0
	}
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.loop != 0 {
		return r.loop
	}
	lc := r.store.GetSnapshot().Loop
	l, err := concurrency.NewEventLoop(concurrency.LoopConfig{
		MaxEvents:   lc.MaxEvents,
		WaitTimeout: lc.WaitTimeout,
		CPUAffinity: lc.CPUAffinity,
		CPU:         lc.CPU,
	}, r.host)
	if err != nil {
		r.fail("create_epoll", err)
		return 0
	}
	h := r.nextHandle.Inc()
	r.loops.Store(h, l)
	r.loop = h
	r.log.Debug("event loop created", zap.Int64("handle", h))
	return h
}

func (r *Runtime) eventLoop(handle int64) (*concurrency.EventLoop, error) {
	if r.closed.Load() {
		return nil, ErrRuntimeClosed
	}
	v, ok := r.loops.Load(handle)
	if !ok {
		return nil, fmt.Errorf("loop handle %d: %w", handle, api.ErrInvalidHandle)
	}
	return v.(*concurrency.EventLoop), nil
}

// EpollAdd registers fd with interest mask.
func (r *Runtime) EpollAdd(handle int64, fd int, mask uint32) api.ErrorCode {
	l, err := r.eventLoop(handle)
	if err == nil {
		err = l.Register(fd, mask)
	}
	if err != nil {
		return r.fail("epoll_add", err)
	}
	return api.CodeOK
}

// EpollRemove deregisters fd.
func (r *Runtime) EpollRemove(handle int64, fd int) api.ErrorCode {
	l, err := r.eventLoop(handle)
	if err == nil {
		err = l.Deregister(fd)
	}
	if err != nil {
		return r.fail("epoll_remove", err)
	}
	return api.CodeOK
}

// EpollWait blocks up to timeoutMs and returns ready events.
func (r *Runtime) EpollWait(handle int64, maxEvents, timeoutMs int) ([]api.Event, api.ErrorCode) {
	l, err := r.eventLoop(handle)
	if err != nil {
		return nil, r.fail("epoll_wait", err)
	}
	events, err := l.Wait(maxEvents, timeoutMs)
	if err != nil {
		return nil, r.fail("epoll_wait", err)
	}
	return events, api.CodeOK
}

// StartEpollLoop runs the loop's dispatcher thread, which waits continuously
// and hands every ready event to handler. A loop dispatches at most once;
// restarting after StopEpollLoop reports CodeClosed.
func (r *Runtime) StartEpollLoop(handle int64, handler func(api.Event)) api.ErrorCode {
	l, err := r.eventLoop(handle)
	if err == nil && handler == nil {
		err = fmt.Errorf("start loop: nil handler: %w", api.ErrInvalidArgument)
	}
	if err == nil {
		err = l.Run(func(ev api.Event) {
			r.metrics.Inc("loop.dispatched")
			handler(ev)
		})
	}
	if err != nil {
		return r.fail("start_epoll_loop", err)
	}
	r.log.Debug("event loop dispatching", zap.Int64("handle", handle))
	return api.CodeOK
}

// StopEpollLoop ends the dispatcher and waits for it to exit. Host threads may
// keep calling EpollWait on the same handle. Unknown handles are ignored.
func (r *Runtime) StopEpollLoop(handle int64) {
	if l, err := r.eventLoop(handle); err == nil {
		l.Stop()
	}
}

// DestroyEpoll destroys the loop; waits blocked in it return first.
// Unknown handles are ignored.
func (r *Runtime) DestroyEpoll(handle int64) {
	v, ok := r.loops.LoadAndDelete(handle)
	if !ok {
		return
	}
	r.loopMu.Lock()
	if r.loop == handle {
		r.loop = 0
	}
	r.loopMu.Unlock()
	if err := v.(*concurrency.EventLoop).Destroy(); err != nil {
		r.log.Warn("event loop destroy", zap.Int64("handle", handle), zap.Error(err))
	}
}

// ---- rings ----

// CreateRing creates a packet ring whose arena holds capacity bytes, rounded
// up to a power of two. The slot count comes from configuration and is
// capped by the arena size. 0 means failure.
func (r *Runtime) CreateRing(capacity int) int64 {
	if r.closed.Load() {
		r.fail("create_ring", ErrRuntimeClosed)
		return 0
	}
	if capacity <= 0 || capacity > 1<<30 {
		r.fail("create_ring", fmt.Errorf("ring capacity %d: %w", capacity, api.ErrInvalidArgument))
		return 0
	}
	arena := int(concurrency.NextPowerOfTwo(uint32(capacity)))
	slots := r.store.GetSnapshot().Ring.Slots
	if slots > arena {
		slots = arena
	}
	ring, err := concurrency.NewSequencedRing(slots, arena)
	if err != nil {
		r.fail("create_ring", err)
		return 0
	}
	h := r.nextHandle.Inc()
	r.rings.Store(h, ring)
	r.ringCount.Inc()
	return h
}

func (r *Runtime) ring(handle int64) (*concurrency.SequencedRing, error) {
	if r.closed.Load() {
		return nil, ErrRuntimeClosed
	}
	v, ok := r.rings.Load(handle)
	if !ok {
		return nil, fmt.Errorf("ring handle %d: %w", handle, api.ErrInvalidHandle)
	}
	return v.(*concurrency.SequencedRing), nil
}

// RingWrite copies data into the ring. It returns len(data), 0 when the ring
// is full, or a negative ErrorCode.
func (r *Runtime) RingWrite(handle int64, data []byte) int {
	ring, err := r.ring(handle)
	if err == nil {
		err = ring.Write(data, 0, 0)
	}
	switch {
	case err == nil:
		return len(data)
	case errors.Is(err, concurrency.ErrRingFull):
		r.metrics.Inc("ring.full")
		return 0
	default:
		return int(r.fail("ring_write", err))
	}
}

// RingRead copies the oldest packet into dst. It returns the packet length,
// 0 when the ring is empty, or a negative ErrorCode.
func (r *Runtime) RingRead(handle int64, dst []byte) int {
	ring, err := r.ring(handle)
	if err != nil {
		return int(r.fail("ring_read", err))
	}
	meta, err := ring.Read(dst)
	switch {
	case err == nil:
		return int(meta.Length)
	case errors.Is(err, concurrency.ErrRingEmpty):
		return 0
	case errors.Is(err, concurrency.ErrStaleSlot):
		r.metrics.Inc("ring.stale")
		return int(r.fail("ring_read", fmt.Errorf("%w: %v", api.ErrInvalidHandle, err)))
	default:
		return int(r.fail("ring_read", err))
	}
}

// DestroyRing releases a ring. The caller must have stopped its producer and
// consumer. Unknown handles are ignored.
func (r *Runtime) DestroyRing(handle int64) {
	v, ok := r.rings.LoadAndDelete(handle)
	if !ok {
		return
	}
	v.(*concurrency.SequencedRing).Destroy()
	r.ringCount.Dec()
}

// ---- tickets ----

// StoreTicket saves a session ticket for host.
func (r *Runtime) StoreTicket(host string, ticket []byte) api.ErrorCode {
	if r.closed.Load() {
		return r.fail("store_ticket", ErrRuntimeClosed)
	}
	if err := r.tickets.Store(host, ticket); err != nil {
		return r.fail("store_ticket", err)
	}
	return api.CodeOK
}

// GetTicket returns a copy of the live ticket for host.
func (r *Runtime) GetTicket(host string) ([]byte, bool) {
	if r.closed.Load() {
		return nil, false
	}
	return r.tickets.Lookup(host)
}

// ClearTicketCache drops every ticket.
func (r *Runtime) ClearTicketCache() {
	r.tickets.Clear()
}

// ---- crypto ----

// Encrypt seals plaintext with the verified backend or refuses.
func (r *Runtime) Encrypt(plaintext, key, nonce []byte) ([]byte, error) {
	if r.closed.Load() {
		r.fail("encrypt", ErrRuntimeClosed)
		return nil, ErrRuntimeClosed
	}
	out, err := r.crypto.Encrypt(plaintext, key, nonce)
	if err != nil {
		r.fail("encrypt", err)
	}
	return out, err
}

// Decrypt opens ciphertext with the verified backend or refuses.
func (r *Runtime) Decrypt(ciphertext, key, nonce []byte) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrRuntimeClosed
	}
	out, err := r.crypto.Decrypt(ciphertext, key, nonce)
	if err != nil {
		r.fail("decrypt", err)
	}
	return out, err
}

// ---- pacing ----

// InitPacing replaces the pacer. Zero arguments take configured values.
func (r *Runtime) InitPacing(queueSize int, packetsPerSecond float64, burst int) api.ErrorCode {
	if r.closed.Load() {
		return r.fail("init_pacing", ErrRuntimeClosed)
	}
	pc := r.store.GetSnapshot().Pacing
	if queueSize == 0 {
		queueSize = pc.QueueSize
	}
	if packetsPerSecond == 0 {
		packetsPerSecond = pc.PacketsPerSecond
	}
	if burst == 0 {
		burst = pc.Burst
	}
	opts := pacing.DefaultOptions()
	opts.QueueSize = queueSize
	opts.PacketsPerSecond = packetsPerSecond
	opts.Burst = burst
	opts.Writer = r.packetWriter
	p, err := pacing.New(opts)
	if err != nil {
		return r.fail("init_pacing", err)
	}

	r.pacerMu.Lock()
	old := r.pacer
	r.pacer = p
	r.pacerMu.Unlock()
	if old != nil {
		old.Close()
	}
	return api.CodeOK
}

func (r *Runtime) currentPacer() (*pacing.Pacer, error) {
	if r.closed.Load() {
		return nil, ErrRuntimeClosed
	}
	r.pacerMu.Lock()
	defer r.pacerMu.Unlock()
	if r.pacer == nil {
		return nil, fmt.Errorf("pacer not initialized: %w", api.ErrInvalidHandle)
	}
	return r.pacer, nil
}

// EnqueuePacket queues a copy of data for paced transmission on fd.
func (r *Runtime) EnqueuePacket(fd int, data []byte) api.ErrorCode {
	p, err := r.currentPacer()
	if err == nil {
		err = p.Enqueue(fd, data)
	}
	if err != nil {
		return r.fail("enqueue_packet", err)
	}
	return api.CodeOK
}

// StartPacing starts draining the pacer. It stops on Shutdown.
func (r *Runtime) StartPacing() api.ErrorCode {
	p, err := r.currentPacer()
	if err == nil {
		err = p.Start(r.ctx)
	}
	if err != nil {
		return r.fail("start_pacing", err)
	}
	return api.CodeOK
}

// DestroyPacing stops the pacer and drops pending packets.
func (r *Runtime) DestroyPacing() {
	r.pacerMu.Lock()
	p := r.pacer
	r.pacer = nil
	r.pacerMu.Unlock()
	if p != nil {
		p.Close()
	}
}

// ---- debug ----

func (r *Runtime) startDebug(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("debug listener %s: %w", addr, err)
	}
	r.debugLn = ln
	r.debugSrv = &http.Server{
		Handler:           control.NewDebugRouter(r.probes, r.metrics, r.store),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := r.debugSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Warn("debug server stopped", zap.Error(err))
		}
	}()
	return nil
}

// DebugAddr returns the bound debug address, empty when disabled.
func (r *Runtime) DebugAddr() string {
	if r.debugLn == nil {
		return ""
	}
	return r.debugLn.Addr().String()
}

func (r *Runtime) registerProbes() {
	control.RegisterPlatformProbes(r.probes)
	r.probes.RegisterProbe("runtime.instance", func() any { return r.id.String() })
	r.probes.RegisterProbe("runtime.api_version", func() any { return api.APIVersion })
	r.probes.RegisterProbe("pool", func() any {
		if p := r.pool.Load(); p != nil {
			return p.Stats()
		}
		return nil
	})
	r.probes.RegisterProbe("loops", func() any { return r.loopStats() })
	r.probes.RegisterProbe("rings", func() any { return r.ringCount.Load() })
	r.probes.RegisterProbe("tickets", func() any { return r.tickets.Stats() })
	r.probes.RegisterProbe("crypto", func() any { return r.crypto.Stats() })
	r.probes.RegisterProbe("pacing", func() any {
		r.pacerMu.Lock()
		p := r.pacer
		r.pacerMu.Unlock()
		if p == nil {
			return nil
		}
		return p.Stats()
	})
}

func (r *Runtime) loopStats() map[string]concurrency.LoopStats {
	out := make(map[string]concurrency.LoopStats)
	r.loops.Range(func(k, v any) bool {
		out[strconv.FormatInt(k.(int64), 10)] = v.(*concurrency.EventLoop).Stats()
		return true
	})
	return out
}

// ---- stats ----

// Stats is a point-in-time view of every component.
type Stats struct {
	Instance   string                           `json:"instance"`
	APIVersion int                              `json:"api_version"`
	Closed     bool                             `json:"closed"`
	Pool       *pool.PoolStats                  `json:"pool,omitempty"`
	Loops      map[string]concurrency.LoopStats `json:"loops"`
	Rings      int64                            `json:"rings"`
	Tickets    session.Stats                    `json:"tickets"`
	Crypto     cryptoaccel.Stats                `json:"crypto"`
	Pacing     *pacing.Stats                    `json:"pacing,omitempty"`
	Metrics    map[string]any                   `json:"metrics"`
}

// Stats collects component statistics.
func (r *Runtime) Stats() Stats {
	st := Stats{
		Instance:   r.id.String(),
		APIVersion: api.APIVersion,
		Closed:     r.closed.Load(),
		Loops:      r.loopStats(),
		Rings:      r.ringCount.Load(),
		Tickets:    r.tickets.Stats(),
		Crypto:     r.crypto.Stats(),
		Metrics:    r.metrics.GetSnapshot(),
	}
	if p := r.pool.Load(); p != nil {
		ps := p.Stats()
		st.Pool = &ps
	}
	r.pacerMu.Lock()
	if r.pacer != nil {
		ps := r.pacer.Stats()
		st.Pacing = &ps
	}
	r.pacerMu.Unlock()
	return st
}

// StatsJSON renders Stats as JSON.
func (r *Runtime) StatsJSON() ([]byte, error) {
	return json.Marshal(r.Stats())
}

// ---- teardown ----

// Closed reports whether Shutdown has run.
func (r *Runtime) Closed() bool { return r.closed.Load() }

// Shutdown tears every component down exactly once. Later calls are no-ops.
// Sockets must not be held by callers at this point.
func (r *Runtime) Shutdown() error {
	var errs []error
	r.shutdown.Do(func() {
		r.closed.Store(true)
		r.cancel()

		if r.debugSrv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), debugShutdownTimeout)
			if err := r.debugSrv.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("debug server: %w", err))
			}
			cancel()
		}

		r.DestroyPacing()

		r.loops.Range(func(k, _ any) bool {
			r.DestroyEpoll(k.(int64))
			return true
		})
		r.rings.Range(func(k, _ any) bool {
			r.DestroyRing(k.(int64))
			return true
		})

		r.poolMu.Lock()
		if p := r.pool.Load(); p != nil {
			p.Teardown()
		}
		r.poolMu.Unlock()

		r.tickets.Close()
		r.crypto.Uninstall()
		r.log.Info("runtime shut down")
	})
	return errors.Join(errs...)
}
