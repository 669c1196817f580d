package cryptoaccel

import (
	"bytes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/perfnet/api"
)

func testKey(n int) []byte {
	k := make([]byte, n)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestAcceleratorFailsClosedWithoutBackend(t *testing.T) {
	a := New()
	inputs := [][]byte{nil, {}, []byte("x"), bytes.Repeat([]byte{1}, 4096)}
	for _, pt := range inputs {
		ct, err := a.Encrypt(pt, testKey(32), testKey(12))
		assert.Nil(t, ct)
		assert.ErrorIs(t, err, ErrNoVerifiedBackend)
		assert.ErrorIs(t, err, api.ErrSecurity)
		assert.Equal(t, api.CodeSecurity, api.CodeOf(err))
	}
	// Bad parameters do not bypass the refusal.
	_, err := a.Encrypt([]byte("x"), nil, nil)
	assert.ErrorIs(t, err, ErrNoVerifiedBackend)
	assert.EqualValues(t, len(inputs)+1, a.Stats().Refusals)
}

func TestAcceleratorNoneBackend(t *testing.T) {
	a, err := NewFromConfig(BackendNone)
	require.NoError(t, err)
	assert.Empty(t, a.Backend())
	_, err = a.Encrypt(nil, testKey(32), testKey(12))
	assert.ErrorIs(t, err, ErrNoVerifiedBackend)
}

func TestAcceleratorRoundTrip(t *testing.T) {
	for _, name := range []string{BackendChaCha20Poly1305, BackendAESGCM, BackendAuto} {
		t.Run(name, func(t *testing.T) {
			a, err := NewFromConfig(name)
			require.NoError(t, err)
			require.NotEmpty(t, a.Backend())

			key, nonce := testKey(32), testKey(12)
			for _, pt := range [][]byte{{}, []byte("hello tunnel")} {
				ct, err := a.Encrypt(pt, key, nonce)
				require.NoError(t, err)
				assert.Len(t, ct, len(pt)+16)

				out, err := a.Decrypt(ct, key, nonce)
				require.NoError(t, err)
				assert.Equal(t, len(pt), len(out))
				assert.True(t, bytes.Equal(pt, out))

				ct[0] ^= 0xff
				_, err = a.Decrypt(ct, key, nonce)
				assert.ErrorIs(t, err, ErrAuthFailed)
			}
		})
	}
}

func TestAcceleratorRejectsBadParameters(t *testing.T) {
	a, err := NewFromConfig(BackendChaCha20Poly1305)
	require.NoError(t, err)

	_, err = a.Encrypt([]byte("x"), testKey(16), testKey(12))
	assert.ErrorIs(t, err, ErrBadKey)
	_, err = a.Encrypt([]byte("x"), testKey(32), testKey(8))
	assert.ErrorIs(t, err, ErrBadNonce)
	assert.Equal(t, api.CodeInvalidArgument, api.CodeOf(err))
}

func TestLookupUnknownBackend(t *testing.T) {
	_, err := Lookup("rot13")
	assert.ErrorIs(t, err, api.ErrInvalidArgument)
	b, err := Lookup("NONE")
	require.NoError(t, err)
	assert.Nil(t, b)
}

// identityBackend passes plaintext through; it must never be installed.
type identityBackend struct{ chachaBackend }

func (identityBackend) Name() string { return "identity" }

func (identityBackend) New([]byte) (cipher.AEAD, error) { return identityAEAD{}, nil }

type identityAEAD struct{}

func (identityAEAD) NonceSize() int { return 12 }
func (identityAEAD) Overhead() int  { return 16 }

func (identityAEAD) Seal(dst, _, pt, _ []byte) []byte {
	return append(append(dst, pt...), make([]byte, 16)...)
}

func (identityAEAD) Open(dst, _, ct, _ []byte) ([]byte, error) {
	if len(ct) < 16 {
		return nil, errors.New("short")
	}
	return append(dst, ct[:len(ct)-16]...), nil
}

func TestInstallRejectsBackendFailingSelfTest(t *testing.T) {
	a := New()
	err := a.Install(identityBackend{})
	assert.ErrorIs(t, err, api.ErrSecurity)
	assert.Empty(t, a.Backend())
	_, err = a.Encrypt([]byte("x"), testKey(32), testKey(12))
	assert.ErrorIs(t, err, ErrNoVerifiedBackend)
}

func TestUninstallFailsClosed(t *testing.T) {
	a, err := NewFromConfig(BackendAESGCM)
	require.NoError(t, err)
	a.Uninstall()
	_, err = a.Encrypt([]byte("x"), testKey(32), testKey(12))
	assert.ErrorIs(t, err, ErrNoVerifiedBackend)
}

// xorAEAD xors with a fixed pad and appends a zero tag. It hides
// the plaintext and round trips, so only known answers can catch it.
type xorAEAD struct{}

func (xorAEAD) NonceSize() int { return 12 }
func (xorAEAD) Overhead() int  { return 16 }

func (xorAEAD) Seal(dst, nonce, pt, _ []byte) []byte {
	for i, c := range pt {
		dst = append(dst, c^0x5a^nonce[i%len(nonce)])
	}
	return append(dst, make([]byte, 16)...)
}

func (xorAEAD) Open(dst, nonce, ct, _ []byte) ([]byte, error) {
	if len(ct) < 16 || !bytes.Equal(ct[len(ct)-16:], make([]byte, 16)) {
		return nil, errors.New("auth")
	}
	for i, c := range ct[:len(ct)-16] {
		dst = append(dst, c^0x5a^nonce[i%len(nonce)])
	}
	return dst, nil
}

type xorBackend struct {
	chachaBackend
	name string
}

func (b xorBackend) Name() string { return b.name }

func (xorBackend) New([]byte) (cipher.AEAD, error) { return xorAEAD{}, nil }

func TestSelfTestRejectsWeakCipher(t *testing.T) {
	for _, name := range []string{"xor", BackendChaCha20Poly1305, BackendAESGCM} {
		t.Run(name, func(t *testing.T) {
			b := xorBackend{name: name}
			assert.Error(t, SelfTest(b))

			a := New()
			assert.ErrorIs(t, a.Install(b), api.ErrSecurity)
			assert.Empty(t, a.Backend())
			ct, err := a.Encrypt([]byte("secret"), testKey(32), testKey(12))
			assert.Nil(t, ct)
			assert.ErrorIs(t, err, ErrNoVerifiedBackend)
		})
	}
}

// aadBlindAEAD is a real cipher that drops associated data.
type aadBlindAEAD struct{ cipher.AEAD }

func (a aadBlindAEAD) Seal(dst, nonce, pt, _ []byte) []byte { return a.AEAD.Seal(dst, nonce, pt, nil) }

func (a aadBlindAEAD) Open(dst, nonce, ct, _ []byte) ([]byte, error) {
	return a.AEAD.Open(dst, nonce, ct, nil)
}

type aadBlindBackend struct{ chachaBackend }

func (b aadBlindBackend) New(key []byte) (cipher.AEAD, error) {
	inner, err := b.chachaBackend.New(key)
	if err != nil {
		return nil, err
	}
	return aadBlindAEAD{inner}, nil
}

func TestSelfTestRejectsCipherIgnoringAssociatedData(t *testing.T) {
	assert.Error(t, SelfTest(aadBlindBackend{}))
}

func TestSelfTestAcceptsBuiltinBackends(t *testing.T) {
	assert.NoError(t, SelfTest(chachaBackend{}))
	assert.NoError(t, SelfTest(aesGCMBackend{}))
	assert.Error(t, SelfTest(nil))
}

func TestKnownAnswerChaCha20Poly1305(t *testing.T) {
	v := knownAnswers[BackendChaCha20Poly1305][0]
	aead, err := chachaBackend{}.New(mustHex(v.key))
	require.NoError(t, err)
	sealed := aead.Seal(nil, mustHex(v.nonce), mustHex(v.plaintext), mustHex(v.aad))
	assert.Equal(t, "1ae10b594f09e26a7e902ecbd0600691", hex.EncodeToString(sealed[len(sealed)-16:]))
	assert.Equal(t, v.sealed, hex.EncodeToString(sealed))
}
