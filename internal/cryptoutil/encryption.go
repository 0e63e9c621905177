// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cryptoutil provides symmetric encryption for workflow and global
// secrets. It is AES-256-GCM rather than Fernet: the wire format (base64,
// nonce-prepended ciphertext) plays the same "one symmetric key, boring
// authenticated encryption" role the original's Fernet key does, without
// depending on a Fernet-compatible library.
package cryptoutil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	skeinerrors "github.com/skeinhq/skein/pkg/errors"
)

const keySize = 32 // AES-256

// EncryptionKey wraps a 32-byte symmetric key used for authenticated
// encryption of secret values.
type EncryptionKey struct {
	key []byte
}

// GenerateKey creates a new random 256-bit key.
func GenerateKey() (*EncryptionKey, error) {
	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, &skeinerrors.EncryptionError{Op: "generate-key", Cause: err}
	}
	return &EncryptionKey{key: key}, nil
}

// NewKeyFromBase64 decodes a base64-encoded 32-byte key.
func NewKeyFromBase64(encoded string) (*EncryptionKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &skeinerrors.EncryptionError{Op: "decode-key", Cause: err}
	}
	if len(raw) != keySize {
		return nil, &skeinerrors.EncryptionError{Op: "decode-key", Cause: errKeyWrongSize(len(raw))}
	}
	return &EncryptionKey{key: raw}, nil
}

// NewKeyFromPassphrase derives a 256-bit key from an arbitrary-length
// passphrase via SHA-256. Used as a fallback when no base64 key is
// configured. The derivation is deterministic: the same passphrase always
// yields the same key, so secrets encrypted under it remain decryptable
// after a restart.
func NewKeyFromPassphrase(passphrase string) *EncryptionKey {
	sum := sha256.Sum256([]byte(passphrase))
	return &EncryptionKey{key: sum[:]}
}

// String base64-encodes the key for storage in configuration or environment.
func (k *EncryptionKey) String() string {
	return base64.StdEncoding.EncodeToString(k.key)
}

// Encrypt authenticates and encrypts plaintext, returning base64-encoded
// ciphertext with a random nonce prepended.
func (k *EncryptionKey) Encrypt(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(k.key)
	if err != nil {
		return "", &skeinerrors.EncryptionError{Op: "encrypt", Cause: err}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", &skeinerrors.EncryptionError{Op: "encrypt", Cause: err}
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", &skeinerrors.EncryptionError{Op: "encrypt", Cause: err}
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt.
func (k *EncryptionKey) Decrypt(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &skeinerrors.EncryptionError{Op: "decrypt", Cause: err}
	}

	block, err := aes.NewCipher(k.key)
	if err != nil {
		return nil, &skeinerrors.EncryptionError{Op: "decrypt", Cause: err}
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &skeinerrors.EncryptionError{Op: "decrypt", Cause: err}
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return nil, &skeinerrors.EncryptionError{Op: "decrypt", Cause: errCiphertextTooShort}
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &skeinerrors.EncryptionError{Op: "decrypt", Cause: err}
	}
	return plaintext, nil
}

// EncryptString is a convenience wrapper for UTF-8 string payloads.
func (k *EncryptionKey) EncryptString(plaintext string) (string, error) {
	return k.Encrypt([]byte(plaintext))
}

// DecryptString is a convenience wrapper for UTF-8 string payloads.
func (k *EncryptionKey) DecryptString(encoded string) (string, error) {
	plaintext, err := k.Decrypt(encoded)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
