package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// keySalt is fixed so the same deployment secret always yields the same key.
const keySalt = "account-security-service/cryptobox/v1"

const minSecretLength = 32

var (
	ErrWeakSecret          = errors.New("encryption secret must be at least 32 bytes")
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
)

// CryptoError reports a failure to encrypt or decrypt a protected value.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// CryptoBox encrypts secrets at rest with AES-256-GCM. Ciphertexts are
// base64(nonce || sealed) with a fresh random nonce per call, so encrypting
// the same plaintext twice yields different outputs.
type CryptoBox struct {
	aead cipher.AEAD
}

// NewCryptoBox derives the AES key from secret with Argon2id. Derivation is
// deliberately slow; build one box per process and share it.
func NewCryptoBox(secret string) (*CryptoBox, error) {
	if len(secret) < minSecretLength {
		return nil, ErrWeakSecret
	}
	key := argon2.IDKey([]byte(secret), []byte(keySalt), 2, 19*1024, 1, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &CryptoBox{aead: aead}, nil
}

func (b *CryptoBox) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", &CryptoError{Op: "encrypt", Err: fmt.Errorf("read nonce: %w", err)}
	}
	payload := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(payload), nil
}

func (b *CryptoBox) Decrypt(ciphertext string) (string, error) {
	payload, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", &CryptoError{Op: "decrypt", Err: ErrMalformedCiphertext}
	}
	nonceSize := b.aead.NonceSize()
	if len(payload) < nonceSize+b.aead.Overhead() {
		return "", &CryptoError{Op: "decrypt", Err: ErrMalformedCiphertext}
	}
	plaintext, err := b.aead.Open(nil, payload[:nonceSize], payload[nonceSize:], nil)
	if err != nil {
		return "", &CryptoError{Op: "decrypt", Err: err}
	}
	return string(plaintext), nil
}
