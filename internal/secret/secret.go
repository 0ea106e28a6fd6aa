// Package secret encrypts option values at rest with NaCl secretbox.
package secret

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/shineum/easysmtp/internal/store"
)

// KeyOption is the store name of the generated encryption key.
const KeyOption = "easy_wp_smtp_mail_key"

const nonceSize = 24

var (
	ErrInvalidKey  = errors.New("invalid encryption key")
	ErrCiphertext  = errors.New("malformed ciphertext")
	ErrDecryptAuth = errors.New("ciphertext failed authentication")
)

// Box seals and opens strings with a 32-byte key.
type Box struct {
	key [32]byte
}

// NewBox returns a Box using key.
func NewBox(key [32]byte) *Box {
	return &Box{key: key}
}

// ParseKey decodes a base64 key of exactly 32 bytes.
func ParseKey(encoded string) ([32]byte, error) {
	var key [32]byte
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != len(key) {
		return key, ErrInvalidKey
	}
	copy(key[:], raw)
	return key, nil
}

// LoadOrCreateKey returns the key kept under KeyOption, generating and
// storing a fresh one on first use.
func LoadOrCreateKey(ctx context.Context, s store.Store) ([32]byte, error) {
	var key [32]byte

	raw, ok, err := s.Get(ctx, KeyOption)
	if err != nil {
		return key, fmt.Errorf("failed to read encryption key: %w", err)
	}
	if ok {
		return ParseKey(string(raw))
	}

	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return key, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	if err := s.Set(ctx, KeyOption, []byte(base64.StdEncoding.EncodeToString(key[:]))); err != nil {
		return key, fmt.Errorf("failed to store encryption key: %w", err)
	}
	return key, nil
}

// Encrypt returns base64(nonce || secretbox(plain)).
func (b *Box) Encrypt(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (b *Box) Decrypt(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrCiphertext
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrDecryptAuth
	}
	return string(plain), nil
}
