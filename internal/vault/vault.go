// Package vault encrypts per-project provider credentials at rest.
//
// Blobs are base64(nonce | tag | ciphertext) under AES-256-GCM with a key
// derived from the operator's master secret by SHA-256.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	nonceSize = 12
	tagSize   = 16
)

var (
	// ErrConfiguration is returned when no master key is available
	ErrConfiguration = errors.New("vault: master key is not configured")
	// ErrIntegrity is returned when a blob fails authentication
	ErrIntegrity = errors.New("vault: ciphertext failed integrity check")
)

// Vault holds the derived AEAD for the process lifetime
type Vault struct {
	aead cipher.AEAD
}

// New derives the encryption key from masterKey
func New(masterKey string) (*Vault, error) {
	if masterKey == "" {
		return nil, ErrConfiguration
	}

	key := sha256.Sum256([]byte(masterKey))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("vault: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("vault: init gcm: %w", err)
	}
	return &Vault{aead: aead}, nil
}

// Encrypt seals plain under a fresh random nonce
func (v *Vault) Encrypt(plain string) (string, error) {
	if v == nil || v.aead == nil {
		return "", ErrConfiguration
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: read nonce: %w", err)
	}

	// GCM appends the tag; stored layout puts it before the ciphertext.
	sealed := v.aead.Seal(nil, nonce, []byte(plain), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	blob := make([]byte, 0, nonceSize+tagSize+len(ct))
	blob = append(blob, nonce...)
	blob = append(blob, tag...)
	blob = append(blob, ct...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a blob produced by Encrypt
func (v *Vault) Decrypt(encoded string) (string, error) {
	if v == nil || v.aead == nil {
		return "", ErrConfiguration
	}

	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(blob) < nonceSize+tagSize {
		return "", ErrIntegrity
	}

	nonce := blob[:nonceSize]
	tag := blob[nonceSize : nonceSize+tagSize]
	ct := blob[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plain, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrIntegrity
	}
	return string(plain), nil
}
