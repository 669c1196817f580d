// File: internal/pacing/pacer.go
// Package pacing smooths outbound packet bursts.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pacer is a bounded FIFO of packets drained by one worker at a limiter-driven
// rate, in batches, so bursts leave the device evenly spaced.

package pacing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/momentics/perfnet/api"
	"github.com/momentics/perfnet/internal/logging"
	"github.com/momentics/perfnet/pool"
)

var (
	// ErrQueueFull rejects a packet when the FIFO holds QueueSize packets.
	ErrQueueFull = fmt.Errorf("pacing queue full: %w", api.ErrResourceExhausted)

	// ErrPacerClosed is returned after Close.
	ErrPacerClosed = fmt.Errorf("pacer closed: %w", api.ErrClosed)

	// ErrWouldBlock is returned by a Writer whose socket buffer is full.
	ErrWouldBlock = errors.New("write would block")
)

// Writer sends one packet on fd.
type Writer func(fd int, p []byte) error

// Options configures a Pacer.
type Options struct {
	QueueSize        int
	PacketsPerSecond float64 // 0 disables rate limiting
	Burst            int
	BatchSize        int
	IdleInterval     time.Duration
	Writer           Writer
}

// DefaultOptions drains 16 packets per millisecond tick.
func DefaultOptions() Options {
	return Options{
		QueueSize:    1024,
		Burst:        16,
		BatchSize:    16,
		IdleInterval: time.Millisecond,
	}
}

type packet struct {
	fd         int
	data       []byte
	enqueuedAt time.Time
}

// Pacer owns its queued packet copies until they are written or dropped.
type Pacer struct {
	mu      sync.Mutex
	q       *queue.Queue
	max     int
	batch   int
	idle    time.Duration
	limiter *rate.Limiter
	write   Writer
	bufs    *pool.BytePool
	notify  chan struct{}
	log     *zap.Logger

	closed  bool
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	queued      uatomic.Int64
	sent        uatomic.Int64
	dropped     uatomic.Int64
	wouldBlock  uatomic.Int64
	writeErrors uatomic.Int64
	maxDelayNs  uatomic.Int64
}

// New creates a stopped pacer.
func New(opts Options) (*Pacer, error) {
	def := DefaultOptions()
	if opts.QueueSize <= 0 {
		return nil, fmt.Errorf("pacing queue size %d: %w", opts.QueueSize, api.ErrInvalidArgument)
	}
	if opts.PacketsPerSecond < 0 {
		return nil, fmt.Errorf("pacing rate %v: %w", opts.PacketsPerSecond, api.ErrInvalidArgument)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Burst <= 0 {
		opts.Burst = opts.BatchSize
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = def.IdleInterval
	}
	if opts.Writer == nil {
		opts.Writer = SocketWriter
	}
	limit := rate.Inf
	if opts.PacketsPerSecond > 0 {
		limit = rate.Limit(opts.PacketsPerSecond)
	}
	return &Pacer{
		q:       queue.New(),
		max:     opts.QueueSize,
		batch:   opts.BatchSize,
		idle:    opts.IdleInterval,
		limiter: rate.NewLimiter(limit, opts.Burst),
		write:   opts.Writer,
		bufs:    pool.NewBytePool(),
		notify:  make(chan struct{}, 1),
		log:     logging.Named("pacing"),
	}, nil
}

// Enqueue copies data and appends it to the FIFO.
func (p *Pacer) Enqueue(fd int, data []byte) error {
	if fd < 0 || len(data) == 0 {
		return fmt.Errorf("enqueue fd=%d len=%d: %w", fd, len(data), api.ErrInvalidArgument)
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPacerClosed
	}
	if p.q.Length() >= p.max {
		p.mu.Unlock()
		p.dropped.Inc()
		return ErrQueueFull
	}
	buf := p.bufs.Acquire(len(data))
	copy(buf, data)
	p.q.Add(packet{fd: fd, data: buf, enqueuedAt: time.Now()})
	p.mu.Unlock()

	p.queued.Inc()
	select {
	case p.notify <- struct{}{}:
	default:
	}
	return nil
}

// Start launches the worker. Starting a running pacer is a no-op.
func (p *Pacer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPacerClosed
	}
	if p.running {
		return nil
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.running = true
	go p.run(ctx, p.done)
	return nil
}

func (p *Pacer) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	batch := make([]packet, 0, p.batch)
	ticker := time.NewTicker(p.idle)
	defer ticker.Stop()
	for {
		batch = p.take(batch[:0])
		for i, pkt := range batch {
			if err := p.limiter.Wait(ctx); err != nil {
				for _, rest := range batch[i:] {
					p.release(rest)
					p.dropped.Inc()
				}
				return
			}
			p.send(pkt)
		}
		if len(batch) == p.batch {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-p.notify:
		case <-ticker.C:
		}
	}
}

func (p *Pacer) take(dst []packet) []packet {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(dst) < p.batch && p.q.Length() > 0 {
		dst = append(dst, p.q.Remove().(packet))
	}
	return dst
}

func (p *Pacer) send(pkt packet) {
	if d := time.Since(pkt.enqueuedAt).Nanoseconds(); d > p.maxDelayNs.Load() {
		p.maxDelayNs.Store(d)
	}
	err := p.write(pkt.fd, pkt.data)
	p.release(pkt)
	switch {
	case err == nil:
		p.sent.Inc()
	case errors.Is(err, ErrWouldBlock):
		p.wouldBlock.Inc()
	default:
		p.writeErrors.Inc()
		p.log.Debug("paced send failed", zap.Int("fd", pkt.fd), zap.Error(err))
	}
}

func (p *Pacer) release(pkt packet) {
	p.bufs.Release(pkt.data)
}

// Stop halts the worker. Queued packets stay queued; a batch the worker had
// already dequeued is dropped.
func (p *Pacer) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
}

// Close stops the worker and drops every pending packet.
func (p *Pacer) Close() {
	p.Stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for p.q.Length() > 0 {
		p.release(p.q.Remove().(packet))
		p.dropped.Inc()
	}
}

// Len returns the number of queued packets.
func (p *Pacer) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.q.Length()
}

// Stats is a snapshot of pacer counters.
type Stats struct {
	Pending     int           `json:"pending"`
	Queued      int64         `json:"queued"`
	Sent        int64         `json:"sent"`
	Dropped     int64         `json:"dropped"`
	WouldBlock  int64         `json:"would_block"`
	WriteErrors int64         `json:"write_errors"`
	MaxDelay    time.Duration `json:"max_delay_ns"`
}

// Stats returns current counters.
func (p *Pacer) Stats() Stats {
	return Stats{
		Pending:     p.Len(),
		Queued:      p.queued.Load(),
		Sent:        p.sent.Load(),
		Dropped:     p.dropped.Load(),
		WouldBlock:  p.wouldBlock.Load(),
		WriteErrors: p.writeErrors.Load(),
		MaxDelay:    time.Duration(p.maxDelayNs.Load()),
	}
}
