package legacy

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

var (
	ErrNoKey      = errors.New("legacy encryption key is empty")
	ErrCiphertext = errors.New("malformed legacy ciphertext")
	ErrPadding    = errors.New("invalid legacy padding")
)

// Cryptor handles passwords the 1.x releases encrypted with AES-256-CBC.
// Stored form: base64(base64(ciphertext) + "::" + iv). The key string is
// zero-padded or truncated to 32 bytes, as OpenSSL does.
type Cryptor struct {
	key []byte
}

// NewCryptor returns a Cryptor for the legacy key string.
func NewCryptor(key string) *Cryptor {
	k := make([]byte, 32)
	copy(k, key)
	return &Cryptor{key: k}
}

// Decrypt returns the plaintext password.
func (c *Cryptor) Decrypt(stored string) (string, error) {
	if bytes.Equal(c.key, make([]byte, 32)) {
		return "", ErrNoKey
	}

	outer, err := base64.StdEncoding.DecodeString(strings.TrimSpace(stored))
	if err != nil {
		return "", ErrCiphertext
	}
	encoded, iv, ok := strings.Cut(string(outer), "::")
	if !ok || len(iv) != aes.BlockSize {
		return "", ErrCiphertext
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrCiphertext
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, []byte(iv)).CryptBlocks(plain, ciphertext)

	return unpad(plain)
}

// Encrypt produces the stored form for plain. The 1.x releases wrote
// this; it is kept so fixtures are built the same way.
func (c *Cryptor) Encrypt(plain string) (string, error) {
	if bytes.Equal(c.key, make([]byte, 32)) {
		return "", ErrNoKey
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}

	padded := pad([]byte(plain))
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	inner := base64.StdEncoding.EncodeToString(ciphertext) + "::" + string(iv)
	return base64.StdEncoding.EncodeToString([]byte(inner)), nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) (string, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return "", ErrPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return "", ErrPadding
		}
	}
	return string(b[:len(b)-n]), nil
}
