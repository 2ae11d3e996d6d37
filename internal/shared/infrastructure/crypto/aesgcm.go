package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks a column value written by FieldSealer.Seal.
const sealedPrefix = "gcm1:"

var (
	ErrEmptyKey       = errors.New("encryption key is empty")
	ErrKeySize        = errors.New("encryption key must be 32 bytes")
	ErrCiphertextSize = errors.New("ciphertext too short")
)

// FieldSealer protects individual text columns such as patient contact
// details. Values are stored as a prefixed base64 string.
type FieldSealer interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, error)
}

// AESFieldSealer seals fields with AES-256-GCM and a random nonce.
type AESFieldSealer struct {
	aead cipher.AEAD
}

// NewFieldSealer builds an AESFieldSealer from a base64-encoded 32-byte key.
func NewFieldSealer(encodedKey string) (*AESFieldSealer, error) {
	if encodedKey == "" {
		return nil, ErrEmptyKey
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(key) != 32 {
		return nil, ErrKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESFieldSealer{aead: aead}, nil
}

// Seal encrypts plaintext. Empty values stay empty so optional columns
// remain distinguishable.
func (s *AESFieldSealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the prefix were written before a key
// was configured and are returned unchanged.
func (s *AESFieldSealer) Open(stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, sealedPrefix)
	if !ok {
		return stored, nil
	}
	raw, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decode sealed field: %w", err)
	}
	nonceSize := s.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", ErrCiphertextSize
	}
	plain, err := s.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed field: %w", err)
	}
	return string(plain), nil
}

// PlainSealer stores values as given. It is used when no key is configured.
type PlainSealer struct{}

func (PlainSealer) Seal(plaintext string) (string, error) { return plaintext, nil }

func (PlainSealer) Open(stored string) (string, error) { return stored, nil }
