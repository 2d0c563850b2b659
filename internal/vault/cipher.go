// Package vault encrypts OAuth tokens at rest and hands out decrypted
// tokens for a (user, provider) pair.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	keySize = 32
	ivSize  = 16
	tagSize = 16
)

var (
	// ErrMalformedCiphertext is returned when a stored value is not iv:tag:ciphertext hex.
	ErrMalformedCiphertext = errors.New("vault: malformed ciphertext")
	// ErrDecrypt is returned when authentication fails (wrong key or tampered value).
	ErrDecrypt = errors.New("vault: decryption failed")
)

// Cipher performs AES-256-GCM with a 16-byte IV. Encrypted values are
// serialized as "iv_hex:authTag_hex:ciphertext_hex".
type Cipher struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewCipher derives a 32-byte key from the passphrase: padded with '0' when
// shorter, truncated when longer.
func NewCipher(passphrase string) (*Cipher, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, errors.New("vault: encryption key required")
	}
	block, err := aes.NewCipher(deriveKey(passphrase))
	if err != nil {
		return nil, fmt.Errorf("vault: creating AES cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("vault: creating GCM: %w", err)
	}
	return &Cipher{aead: aead, rand: rand.Reader}, nil
}

func deriveKey(passphrase string) []byte {
	key := []byte(passphrase)
	if len(key) >= keySize {
		return key[:keySize]
	}
	padded := make([]byte, keySize)
	copy(padded, key)
	for i := len(key); i < keySize; i++ {
		padded[i] = '0'
	}
	return padded
}

// Encrypt returns the serialized ciphertext for plaintext. Each call uses a fresh IV.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return "", fmt.Errorf("vault: generating iv: %w", err)
	}
	// Seal appends the tag after the ciphertext.
	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt.
func (c *Cipher) Decrypt(serialized string) (string, error) {
	parts := strings.Split(serialized, ":")
	if len(parts) != 3 {
		return "", ErrMalformedCiphertext
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", ErrMalformedCiphertext
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", ErrMalformedCiphertext
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", ErrMalformedCiphertext
	}

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}
