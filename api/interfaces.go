// File: api/interfaces.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// NativeAPI is the fixed, versioned surface the control layer programs against.

package api

// APIVersion is bumped on any change to NativeAPI or to ErrorCode values.
const APIVersion = 1

// NativeAPI lists the native entry points. Integer returns follow the
// sentinel conventions of the host binding: descriptors and byte counts are
// non-negative, failures are negative ErrorCode values, handles are non-zero.
type NativeAPI interface {
	InitPool(sizePerClass int) ErrorCode
	AcquireSocket(class PoolClass) int
	ConnectSocket(class PoolClass, fd int, host string, port int) ErrorCode
	ReturnSocket(class PoolClass, fd int)

	CreateEpoll() int64
	EpollAdd(handle int64, fd int, mask uint32) ErrorCode
	EpollRemove(handle int64, fd int) ErrorCode
	EpollWait(handle int64, maxEvents, timeoutMs int) ([]Event, ErrorCode)
	DestroyEpoll(handle int64)

	CreateRing(capacity int) int64
	RingWrite(handle int64, data []byte) int
	RingRead(handle int64, dst []byte) int
	DestroyRing(handle int64)

	StoreTicket(host string, ticket []byte) ErrorCode
	GetTicket(host string) ([]byte, bool)
	ClearTicketCache()

	Encrypt(plaintext, key, nonce []byte) ([]byte, error)

	GracefulShutdown
}
