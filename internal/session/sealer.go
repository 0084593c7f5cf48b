package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// MinSecretLength is the shortest accepted cookie secret.
	MinSecretLength = 32
	// KeySize is the size of the AES-256 key in bytes.
	KeySize = 32
	// PBKDF2Iterations is the number of iterations for key derivation.
	PBKDF2Iterations = 100000

	keySalt = "holdings:cookie-seal:v1"
)

var (
	ErrInvalidSecret     = errors.New("invalid cookie secret: must be at least 32 characters")
	ErrInvalidCiphertext = errors.New("invalid sealed value")
	ErrDecryptionFailed  = errors.New("decryption failed")
)

// Sealer encrypts cookie values with AES-256-GCM. The cookie name is bound
// as additional data, so a value sealed for one cookie does not open as another.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the sealing key from secret once.
func NewSealer(secret string) (*Sealer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrInvalidSecret
	}
	key := pbkdf2.Key([]byte(secret), []byte(keySalt), PBKDF2Iterations, KeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Sealer{aead: gcm}, nil
}

// Seal encrypts value for the named cookie and returns base64url(nonce||ciphertext).
func (s *Sealer) Seal(name, value string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	out := s.aead.Seal(nonce, nonce, []byte(value), []byte(name))
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open reverses Seal.
func (s *Sealer) Open(name, sealed string) (string, error) {
	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(data) <= s.aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	n := s.aead.NonceSize()
	plaintext, err := s.aead.Open(nil, data[:n], data[n:], []byte(name))
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
