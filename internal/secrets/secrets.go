// Package secrets provides symmetric encryption for credentials persisted
// at rest, plus a file-backed master key provider for single-tenant
// deployments.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required key length in bytes (AES-256).
const KeySize = 32

// CryptoError indicates that an encrypt or decrypt operation failed.
// Decryption failures with a well-formed key almost always mean the
// stored blob was written under a different key.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto %s failed: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// Cipher encrypts and decrypts opaque byte payloads with a caller-supplied
// key. Implementations must produce self-contained blobs: everything needed
// for decryption except the key travels inside the returned string.
type Cipher interface {
	Encrypt(plaintext, key []byte) (string, error)
	Decrypt(blob string, key []byte) ([]byte, error)
}

// AESGCM is a Cipher using AES-256-GCM with a random nonce per call.
// Blobs are base64(nonce || ciphertext), so the same plaintext encrypts
// to a different blob every time.
type AESGCM struct{}

// NewAESGCM returns the AES-256-GCM cipher.
func NewAESGCM() *AESGCM {
	return &AESGCM{}
}

func (a *AESGCM) aead(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext under key and returns a base64 blob.
func (a *AESGCM) Encrypt(plaintext, key []byte) (string, error) {
	gcm, err := a.aead(key)
	if err != nil {
		return "", &CryptoError{Op: "encrypt", Err: err}
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", &CryptoError{Op: "encrypt", Err: fmt.Errorf("generate nonce: %w", err)}
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. A wrong key, a truncated blob,
// or any tampering yields a CryptoError.
func (a *AESGCM) Decrypt(blob string, key []byte) ([]byte, error) {
	gcm, err := a.aead(key)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: err}
	}

	sealed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: fmt.Errorf("decode blob: %w", err)}
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, &CryptoError{Op: "decrypt", Err: fmt.Errorf("blob shorter than nonce")}
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: err}
	}
	return plaintext, nil
}

// IsCryptoError reports whether err is (or wraps) a CryptoError.
func IsCryptoError(err error) bool {
	var ce *CryptoError
	return errors.As(err, &ce)
}
