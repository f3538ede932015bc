package crypto

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

func TestSealOpen_RoundTrip(t *testing.T) {
	c, err := NewPayloadCipher(testKey())
	require.NoError(t, err)

	for _, text := range []string{"", "READY", "alice: hello", strings.Repeat("x", 4096)} {
		sealed, err := c.Seal([]byte(text))
		require.NoError(t, err)
		require.Len(t, sealed, NonceSize+len(text))

		opened, err := c.Open(sealed)
		require.NoError(t, err)
		assert.Equal(t, text, string(opened))
	}
}

func TestSeal_FreshNoncePerFrame(t *testing.T) {
	c, err := NewPayloadCipher(testKey())
	require.NoError(t, err)

	a, err := c.Seal([]byte("FIRE B5"))
	require.NoError(t, err)
	b, err := c.Seal([]byte("FIRE B5"))
	require.NoError(t, err)

	assert.False(t, bytes.Equal(a[:NonceSize], b[:NonceSize]), "nonces must differ")
	assert.False(t, bytes.Equal(a[NonceSize:], b[NonceSize:]), "ciphertexts must differ")
}

func TestOpen_TooShort(t *testing.T) {
	c, err := NewPayloadCipher(testKey())
	require.NoError(t, err)

	_, err = c.Open(make([]byte, NonceSize-1))
	require.ErrorIs(t, err, ErrPayloadTooShort)
}

func TestNewPayloadCipher_KeyLength(t *testing.T) {
	_, err := NewPayloadCipher([]byte("short"))
	require.Error(t, err)
}

func TestNewPayloadCipherHex(t *testing.T) {
	_, err := NewPayloadCipherHex(strings.Repeat("ab", KeySize))
	require.NoError(t, err)

	_, err = NewPayloadCipherHex("zz")
	require.Error(t, err)
}
