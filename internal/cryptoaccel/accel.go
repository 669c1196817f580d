// File: internal/cryptoaccel/accel.go
// Author: momentics <momentics@gmail.com>
//
// Accelerator installs at most one verified backend and refuses to encrypt
// without it.

package cryptoaccel

import (
	"crypto/cipher"
	"fmt"
	"sync/atomic"

	uatomic "go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/momentics/perfnet/api"
	"github.com/momentics/perfnet/internal/logging"
)

var (
	// ErrNoVerifiedBackend is returned for every call while no backend passed
	// its self-test.
	ErrNoVerifiedBackend = fmt.Errorf("no verified crypto backend: %w", api.ErrSecurity)

	// ErrBadKey indicates a key of the wrong length.
	ErrBadKey = fmt.Errorf("bad key size: %w", api.ErrInvalidArgument)

	// ErrBadNonce indicates a nonce of the wrong length.
	ErrBadNonce = fmt.Errorf("bad nonce size: %w", api.ErrInvalidArgument)

	// ErrAuthFailed indicates a ciphertext that failed authentication.
	ErrAuthFailed = fmt.Errorf("message authentication failed: %w", api.ErrSecurity)
)

// Accelerator encrypts with the installed backend.
type Accelerator struct {
	backend atomic.Pointer[backendBox]
	log     *zap.Logger

	sealed   uatomic.Int64
	opened   uatomic.Int64
	refusals uatomic.Int64
}

type backendBox struct{ b Backend }

// New returns an Accelerator with no backend installed.
func New() *Accelerator {
	return &Accelerator{log: logging.Named("crypto")}
}

// NewFromConfig resolves name, self-tests the backend and installs it. "none"
// yields an accelerator that refuses every call. A backend failing its
// self-test is an error; the returned accelerator is still usable and fails
// closed.
func NewFromConfig(name string) (*Accelerator, error) {
	a := New()
	b, err := Lookup(name)
	if err != nil {
		return a, err
	}
	if b == nil {
		a.log.Warn("crypto backend disabled by configuration")
		return a, nil
	}
	return a, a.Install(b)
}

// Install self-tests b and makes it the active backend on success.
func (a *Accelerator) Install(b Backend) error {
	if err := SelfTest(b); err != nil {
		a.log.Error("crypto backend rejected", zap.Error(err))
		return fmt.Errorf("install backend: %w: %v", api.ErrSecurity, err)
	}
	a.backend.Store(&backendBox{b: b})
	a.log.Info("crypto backend verified", zap.String("backend", b.Name()), zap.Bool("hardware_aes", HardwareAES()))
	return nil
}

// Uninstall removes the active backend.
func (a *Accelerator) Uninstall() {
	a.backend.Store(nil)
}

// Backend returns the active backend name, or "" when none is verified.
func (a *Accelerator) Backend() string {
	if box := a.backend.Load(); box != nil {
		return box.b.Name()
	}
	return ""
}

func (a *Accelerator) active() (Backend, error) {
	box := a.backend.Load()
	if box == nil {
		a.refusals.Inc()
		return nil, ErrNoVerifiedBackend
	}
	return box.b, nil
}

// Encrypt seals plaintext under key and nonce. The result is ciphertext with
// the authentication tag appended.
func (a *Accelerator) Encrypt(plaintext, key, nonce []byte) ([]byte, error) {
	b, err := a.active()
	if err != nil {
		return nil, err
	}
	aead, err := a.aead(b, key, nonce)
	if err != nil {
		return nil, err
	}
	a.sealed.Inc()
	return aead.Seal(make([]byte, 0, len(plaintext)+aead.Overhead()), nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt.
func (a *Accelerator) Decrypt(ciphertext, key, nonce []byte) ([]byte, error) {
	b, err := a.active()
	if err != nil {
		return nil, err
	}
	aead, err := a.aead(b, key, nonce)
	if err != nil {
		return nil, err
	}
	out, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	a.opened.Inc()
	return out, nil
}

func (a *Accelerator) aead(b Backend, key, nonce []byte) (cipher.AEAD, error) {
	if len(key) != b.KeySize() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadKey, len(key), b.KeySize())
	}
	if len(nonce) != b.NonceSize() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrBadNonce, len(nonce), b.NonceSize())
	}
	return b.New(key)
}

// Stats is a snapshot of accelerator counters.
type Stats struct {
	Backend  string `json:"backend"`
	Sealed   int64  `json:"sealed"`
	Opened   int64  `json:"opened"`
	Refusals int64  `json:"refusals"`
}

// Stats returns current counters.
func (a *Accelerator) Stats() Stats {
	return Stats{
		Backend:  a.Backend(),
		Sealed:   a.sealed.Load(),
		Opened:   a.opened.Load(),
		Refusals: a.refusals.Load(),
	}
}
