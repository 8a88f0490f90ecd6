package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"strings"
)

// sealedPrefix marks values produced by Seal so plaintext rows written before
// a key was configured are still readable.
const sealedPrefix = "enc:v1:"

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Cipher encrypts short text fields with AES-256-GCM.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher expects a 32 byte key.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != 32 {
		return nil, errors.New("encryption key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: gcm}, nil
}

// Seal encrypts plaintext bound to context (for example the owning user id),
// returning a prefixed base64 string with the nonce prepended.
func (c *Cipher) Seal(plaintext, context string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	out := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(context))
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as is.
func (c *Cipher) Open(value, context string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", err
	}
	ns := c.aead.NonceSize()
	if len(data) < ns {
		return "", ErrCiphertextTooShort
	}
	plain, err := c.aead.Open(nil, data[:ns], data[ns:], []byte(context))
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
