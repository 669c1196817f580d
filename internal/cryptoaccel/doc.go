// Package cryptoaccel
// Author: momentics <momentics@gmail.com>
//
// Fail-closed AEAD accelerator. A backend is installed only after it passes a
// behavioural self-test; without one, every call fails with ErrNoVerifiedBackend.
// There is no fallback transform of any kind.
package cryptoaccel
