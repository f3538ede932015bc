package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20"
)

const (
	// KeySize is the shared-secret length in bytes.
	KeySize = chacha20.KeySize
	// NonceSize is the per-frame nonce length prepended to each sealed payload.
	NonceSize = chacha20.NonceSize
)

var ErrPayloadTooShort = errors.New("crypto: payload shorter than nonce")

// PayloadCipher encrypts frame payloads with ChaCha20 keyed by a shared secret.
// Each sealed payload starts with a fresh random nonce, so the frame checksum
// covers nonce+ciphertext. Both endpoints must agree on the key out of band.
type PayloadCipher struct {
	key [KeySize]byte
}

// NewPayloadCipher creates a cipher from a raw 32-byte key.
func NewPayloadCipher(key []byte) (*PayloadCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("crypto: key must be %d bytes, got %d", KeySize, len(key))
	}
	c := &PayloadCipher{}
	copy(c.key[:], key)
	return c, nil
}

// NewPayloadCipherHex creates a cipher from a hex-encoded key (64 hex chars).
func NewPayloadCipherHex(hexKey string) (*PayloadCipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: decoding hex key: %w", err)
	}
	return NewPayloadCipher(key)
}

// Seal encrypts plaintext and returns nonce‖ciphertext.
func (c *PayloadCipher) Seal(plaintext []byte) ([]byte, error) {
	out := make([]byte, NonceSize+len(plaintext))
	if _, err := rand.Read(out[:NonceSize]); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}

	stream, err := chacha20.NewUnauthenticatedCipher(c.key[:], out[:NonceSize])
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	stream.XORKeyStream(out[NonceSize:], plaintext)
	return out, nil
}

// Open decrypts a nonce‖ciphertext payload produced by Seal.
func (c *PayloadCipher) Open(payload []byte) ([]byte, error) {
	if len(payload) < NonceSize {
		return nil, ErrPayloadTooShort
	}

	stream, err := chacha20.NewUnauthenticatedCipher(c.key[:], payload[:NonceSize])
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	out := make([]byte, len(payload)-NonceSize)
	stream.XORKeyStream(out, payload[NonceSize:])
	return out, nil
}
