// File: mobile/mobile.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package mobile

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/momentics/perfnet/api"
	"github.com/momentics/perfnet/control"
	"github.com/momentics/perfnet/facade"
	"github.com/momentics/perfnet/internal/logging"
)

// ErrNotLoaded is reported by every entry point before Load or after Unload.
var ErrNotLoaded = fmt.Errorf("native library not loaded: %w", api.ErrClosed)

// PackedEventSize is the byte width of one event written by EpollWait.
const PackedEventSize = 8

var (
	current atomic.Pointer[facade.Runtime]
	loadMu  sync.Mutex

	// runtimeOptions is consulted by Load; tests substitute fakes here.
	runtimeOptions []facade.Option
)

func code(c api.ErrorCode) int32 { return int32(c) }

func logger() *zap.Logger { return logging.Named("mobile") }

// liveRuntime returns the live runtime or ErrNotLoaded.
func liveRuntime() (*facade.Runtime, error) {
	rt := current.Load()
	if rt == nil {
		return nil, ErrNotLoaded
	}
	return rt, nil
}

// Load binds host and creates the runtime from configYAML (empty means
// defaults). Without a host log sink it installs JSON logging on stderr at
// log.level. Loading while a runtime is live is a no-op.
func Load(host HostRuntime, configYAML []byte) int32 {
	loadMu.Lock()
	defer loadMu.Unlock()
	if current.Load() != nil {
		return code(api.CodeOK)
	}
	cfg, err := control.ParseConfig(configYAML)
	if err != nil {
		logger().Error("load: bad configuration", zap.Error(err))
		return code(api.CodeOf(err))
	}
	if !sinkInstalled.Load() {
		l, err := logging.NewProduction(cfg.Log.Level)
		if err != nil {
			return code(api.CodeOf(fmt.Errorf("load: %w: %v", api.ErrInvalidArgument, err)))
		}
		logging.SetLogger(l)
	}
	rt, err := facade.New(cfg, bindHost(host), runtimeOptions...)
	if err != nil {
		logger().Error("load failed", zap.Error(err))
		return code(api.CodeOf(err))
	}
	current.Store(rt)
	logger().Info("native library loaded", zap.String("instance", rt.ID()), zap.Bool("host_bound", HostBound()))
	return code(api.CodeOK)
}

// Unload runs teardown of the live runtime exactly once.
func Unload() {
	loadMu.Lock()
	defer loadMu.Unlock()
	rt := current.Swap(nil)
	if rt == nil {
		return
	}
	if err := rt.Shutdown(); err != nil {
		logger().Warn("unload", zap.Error(err))
	}
}

// Loaded reports whether a runtime is live.
func Loaded() bool { return current.Load() != nil }

// ReloadConfig validates configYAML and applies it to the live runtime.
func ReloadConfig(configYAML []byte) int32 {
	rt, err := liveRuntime()
	if err != nil {
		return code(api.CodeOf(err))
	}
	cfg, err := control.ParseConfig(configYAML)
	if err == nil {
		err = rt.Reload(cfg)
	}
	if err != nil {
		logger().Warn("reload rejected", zap.Error(err))
		return code(api.CodeOf(err))
	}
	return code(api.CodeOK)
}

// ---- connection pool ----

// InitPool creates the connection pool; later calls succeed without effect.
func InitPool(sizePerClass int32) int32 {
	rt, err := liveRuntime()
	if err != nil {
		return code(api.CodeOf(err))
	}
	return code(rt.InitPool(int(sizePerClass)))
}

// AcquireSocket returns a pooled descriptor or -1.
func AcquireSocket(class int32) int32 {
	rt, err := liveRuntime()
	if err != nil {
		return api.InvalidFD
	}
	c, err := api.ParsePoolClass(class)
	if err != nil {
		logger().Debug("acquire socket", zap.Error(err))
		return api.InvalidFD
	}
	return int32(rt.AcquireSocket(c))
}

// ConnectSocket starts a non-blocking connect to an IP literal. 0 or -1.
func ConnectSocket(class, fd int32, host string, port int32) int32 {
	rt, err := liveRuntime()
	if err != nil {
		return -1
	}
	c, err := api.ParsePoolClass(class)
	if err != nil {
		return -1
	}
	if rc := rt.ConnectSocket(c, int(fd), host, int(port)); rc != api.CodeOK {
		return -1
	}
	return 0
}

// ReturnSocket hands fd back to the pool.
func ReturnSocket(class, fd int32) {
	rt, err := liveRuntime()
	if err != nil {
		return
	}
	c, err := api.ParsePoolClass(class)
	if err != nil {
		return
	}
	rt.ReturnSocket(c, int(fd))
}

// ---- event loop ----

// CreateEpoll returns the event loop handle, 0 on failure.
func CreateEpoll() int64 {
	rt, err := liveRuntime()
	if err != nil {
		return 0
	}
	return rt.CreateEpoll()
}

// EpollAdd registers fd with interest mask. 0 or -1.
func EpollAdd(handle int64, fd, mask int32) int32 {
	rt, err := liveRuntime()
	if err != nil || rt.EpollAdd(handle, int(fd), uint32(mask)) != api.CodeOK {
		return -1
	}
	return 0
}

// EpollRemove deregisters fd. 0 or -1.
func EpollRemove(handle int64, fd int32) int32 {
	rt, err := liveRuntime()
	if err != nil || rt.EpollRemove(handle, int(fd)) != api.CodeOK {
		return -1
	}
	return 0
}

// EpollWait waits up to timeoutMs and writes ready events into out as
// little-endian int64 values of fd<<32|mask, PackedEventSize bytes each.
// The capacity of out bounds the event count. It returns the number of
// events or -1.
func EpollWait(handle int64, out []byte, timeoutMs int32) int32 {
	rt, err := liveRuntime()
	if err != nil {
		return -1
	}
	maxEvents := len(out) / PackedEventSize
	if maxEvents == 0 {
		return -1
	}
	events, rc := rt.EpollWait(handle, maxEvents, int(timeoutMs))
	if rc != api.CodeOK {
		return -1
	}
	for i, ev := range events {
		binary.LittleEndian.PutUint64(out[i*PackedEventSize:], uint64(ev.Pack()))
	}
	return int32(len(events))
}

// EventHandler receives ready events from a dispatching event loop. Calls
// arrive on one native thread, in order.
type EventHandler interface {
	OnEvent(fd int32, mask int32)
}

// StartEpollLoop starts a native thread that waits on the loop and calls
// handler for every ready event. 0 or a negative error code.
func StartEpollLoop(handle int64, handler EventHandler) int32 {
	rt, err := liveRuntime()
	if err != nil {
		return code(api.CodeOf(err))
	}
	if handler == nil {
		return code(api.CodeInvalidArgument)
	}
	return code(rt.StartEpollLoop(handle, func(ev api.Event) {
		handler.OnEvent(ev.Fd, int32(ev.Mask))
	}))
}

// StopEpollLoop stops the dispatcher; EpollWait keeps working on the handle.
func StopEpollLoop(handle int64) {
	if rt, err := liveRuntime(); err == nil {
		rt.StopEpollLoop(handle)
	}
}

// EventFD extracts the descriptor of a packed event.
func EventFD(packed int64) int32 { return api.UnpackEvent(packed).Fd }

// EventMask extracts the readiness mask of a packed event.
func EventMask(packed int64) int32 { return int32(api.UnpackEvent(packed).Mask) }

// DestroyEpoll destroys the event loop; blocked waits return first.
func DestroyEpoll(handle int64) {
	if rt, err := liveRuntime(); err == nil {
		rt.DestroyEpoll(handle)
	}
}

// ---- rings ----

// CreateRing creates a packet ring of capacity bytes. 0 on failure.
func CreateRing(capacity int32) int64 {
	rt, err := liveRuntime()
	if err != nil {
		return 0
	}
	return rt.CreateRing(int(capacity))
}

// RingWrite copies buf into the ring: len(buf), 0 when full, or -1.
func RingWrite(handle int64, buf []byte) int32 {
	rt, err := liveRuntime()
	if err != nil {
		return -1
	}
	if n := rt.RingWrite(handle, buf); n >= 0 {
		return int32(n)
	}
	return -1
}

// RingRead copies the oldest packet into buf: its length, 0 when empty, or -1.
func RingRead(handle int64, buf []byte) int32 {
	rt, err := liveRuntime()
	if err != nil {
		return -1
	}
	if n := rt.RingRead(handle, buf); n >= 0 {
		return int32(n)
	}
	return -1
}

// DestroyRing releases a ring whose producer and consumer have stopped.
func DestroyRing(handle int64) {
	if rt, err := liveRuntime(); err == nil {
		rt.DestroyRing(handle)
	}
}

// ---- tickets ----

// StoreTicket saves a session ticket. 0 or -1.
func StoreTicket(host string, ticket []byte) int32 {
	rt, err := liveRuntime()
	if err != nil || rt.StoreTicket(host, ticket) != api.CodeOK {
		return -1
	}
	return 0
}

// GetTicket returns the live ticket for host or nil.
func GetTicket(host string) []byte {
	rt, err := liveRuntime()
	if err != nil {
		return nil
	}
	t, ok := rt.GetTicket(host)
	if !ok {
		return nil
	}
	return t
}

// ClearTicketCache drops every ticket.
func ClearTicketCache() {
	if rt, err := liveRuntime(); err == nil {
		rt.ClearTicketCache()
	}
}

// ---- crypto ----

// Encrypt seals plaintext with the verified backend. Without one it fails.
func Encrypt(plaintext, key, nonce []byte) ([]byte, error) {
	rt, err := liveRuntime()
	if err != nil {
		return nil, err
	}
	return rt.Encrypt(plaintext, key, nonce)
}

// Decrypt opens ciphertext produced by Encrypt.
func Decrypt(ciphertext, key, nonce []byte) ([]byte, error) {
	rt, err := liveRuntime()
	if err != nil {
		return nil, err
	}
	return rt.Decrypt(ciphertext, key, nonce)
}

// ---- pacing ----

// InitPacing replaces the pacer. Zero arguments take configured values.
func InitPacing(queueSize int32, packetsPerSecond float64, burst int32) int32 {
	rt, err := liveRuntime()
	if err != nil {
		return code(api.CodeOf(err))
	}
	return code(rt.InitPacing(int(queueSize), packetsPerSecond, int(burst)))
}

// EnqueuePacket queues a copy of data for paced transmission on fd.
func EnqueuePacket(fd int32, data []byte) int32 {
	rt, err := liveRuntime()
	if err != nil {
		return code(api.CodeOf(err))
	}
	return code(rt.EnqueuePacket(int(fd), data))
}

// StartPacing starts draining queued packets.
func StartPacing() int32 {
	rt, err := liveRuntime()
	if err != nil {
		return code(api.CodeOf(err))
	}
	return code(rt.StartPacing())
}

// DestroyPacing stops the pacer and drops pending packets.
func DestroyPacing() {
	if rt, err := liveRuntime(); err == nil {
		rt.DestroyPacing()
	}
}

// ---- introspection ----

// Stats returns a JSON snapshot of every component, or "{}" when not loaded.
func Stats() string {
	rt, err := liveRuntime()
	if err != nil {
		return "{}"
	}
	raw, err := rt.StatsJSON()
	if err != nil {
		logger().Warn("stats", zap.Error(err))
		return "{}"
	}
	return string(raw)
}

// APIVersion returns the native interface version.
func APIVersion() int32 { return api.APIVersion }
