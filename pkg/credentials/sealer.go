package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the length of an AES-256 key.
const KeySize = 32

var (
	// ErrInvalidKey is returned for keys that are not KeySize bytes long.
	ErrInvalidKey = errors.New("encryption key must be 32 bytes (AES-256)")
	// ErrDecrypt is returned when no configured key opens a value.
	ErrDecrypt = errors.New("decryption failed with all available keys")
)

// Sealer encrypts and decrypts short secrets.
type Sealer struct {
	active   []byte
	fallback [][]byte
}

// NewSealer creates a Sealer. Fallback keys are only used to open values.
func NewSealer(active []byte, fallback ...[]byte) (*Sealer, error) {
	if len(active) != KeySize {
		return nil, ErrInvalidKey
	}
	for i, k := range fallback {
		if len(k) != KeySize {
			return nil, fmt.Errorf("fallback key %d: %w", i, ErrInvalidKey)
		}
	}
	return &Sealer{active: active, fallback: fallback}, nil
}

// ParseKey decodes a base64 key, accepting a raw 32-character string as well.
func ParseKey(s string) ([]byte, error) {
	if key, err := base64.StdEncoding.DecodeString(s); err == nil && len(key) == KeySize {
		return key, nil
	}
	if len(s) == KeySize {
		return []byte(s), nil
	}
	return nil, ErrInvalidKey
}

// GenerateKey returns a random key encoded as base64.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// SealBytes encrypts plaintext with the active key. The nonce is prepended.
func (s *Sealer) SealBytes(plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(s.active)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// OpenBytes decrypts a value produced by SealBytes with any known key.
func (s *Sealer) OpenBytes(ciphertext []byte) ([]byte, error) {
	if plain, err := open(ciphertext, s.active); err == nil {
		return plain, nil
	}
	for _, key := range s.fallback {
		if plain, err := open(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, ErrDecrypt
}

// Seal encrypts a string and returns it base64 encoded.
func (s *Sealer) Seal(plaintext string) (string, error) {
	out, err := s.SealBytes([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}
	plain, err := s.OpenBytes(raw)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Rotate re-seals a value with the active key.
func (s *Sealer) Rotate(token string) (string, error) {
	plain, err := s.Open(token)
	if err != nil {
		return "", err
	}
	return s.Seal(plain)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func open(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, body := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}
