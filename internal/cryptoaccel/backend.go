// File: internal/cryptoaccel/backend.go
// Author: momentics <momentics@gmail.com>
//
// AEAD backends.

package cryptoaccel

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/sys/cpu"

	"github.com/momentics/perfnet/api"
)

// Backend names accepted by configuration.
const (
	BackendAuto             = "auto"
	BackendChaCha20Poly1305 = "chacha20poly1305"
	BackendAESGCM           = "aes-gcm"
	BackendNone             = "none"
)

// Backend builds an AEAD for a key.
type Backend interface {
	Name() string
	KeySize() int
	NonceSize() int
	Overhead() int
	New(key []byte) (cipher.AEAD, error)
}

type chachaBackend struct{}

func (chachaBackend) Name() string   { return BackendChaCha20Poly1305 }
func (chachaBackend) KeySize() int   { return chacha20poly1305.KeySize }
func (chachaBackend) NonceSize() int { return chacha20poly1305.NonceSize }
func (chachaBackend) Overhead() int  { return chacha20poly1305.Overhead }

func (chachaBackend) New(key []byte) (cipher.AEAD, error) {
	return chacha20poly1305.New(key)
}

type aesGCMBackend struct{}

func (aesGCMBackend) Name() string   { return BackendAESGCM }
func (aesGCMBackend) KeySize() int   { return 32 }
func (aesGCMBackend) NonceSize() int { return 12 }
func (aesGCMBackend) Overhead() int  { return 16 }

func (aesGCMBackend) New(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// HardwareAES reports whether the CPU accelerates AES-GCM.
func HardwareAES() bool {
	switch {
	case cpu.X86.HasAES && cpu.X86.HasPCLMULQDQ:
		return true
	case cpu.ARM64.HasAES && cpu.ARM64.HasPMULL:
		return true
	case cpu.S390X.HasAES && cpu.S390X.HasGHASH:
		return true
	default:
		return false
	}
}

// Lookup resolves a backend name. "auto" prefers AES-GCM on CPUs with AES
// instructions and ChaCha20-Poly1305 elsewhere. "none" returns nil.
func Lookup(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendAuto:
		if HardwareAES() {
			return aesGCMBackend{}, nil
		}
		return chachaBackend{}, nil
	case BackendChaCha20Poly1305:
		return chachaBackend{}, nil
	case BackendAESGCM:
		return aesGCMBackend{}, nil
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("crypto backend %q: %w", name, api.ErrInvalidArgument)
	}
}
