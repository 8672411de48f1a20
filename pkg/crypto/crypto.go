package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/sodaniels/doseal-transaction-core/pkg/log"
)

var (
	// ErrCipherNotInitialized is returned when Encrypt or Decrypt is called
	// before InitializeCipher.
	ErrCipherNotInitialized = errors.New("cipher is not initialized")
	// ErrInvalidKey indicates the encryption key is not a 32-byte hex string.
	ErrInvalidKey = errors.New("encrypt secret key must be 64 hex characters")
	// ErrInvalidCiphertext indicates the ciphertext is malformed or truncated.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// Crypto bundles the keyed hashing and AES-256-GCM encryption used for
// staged transaction payloads and PII fields at rest.
type Crypto struct {
	// HashSecretKey keys the HMAC used by GenerateHash.
	HashSecretKey string
	// EncryptSecretKey is the AES-256 key as a 64-character hex string.
	EncryptSecretKey string
	// Cipher is the initialized AEAD. Populated by InitializeCipher.
	Cipher cipher.AEAD
	// Logger is optional; a nop logger is used when nil.
	Logger log.Logger
}

func (c *Crypto) logger() log.Logger {
	if c.Logger != nil {
		return c.Logger
	}

	return log.NewNop()
}

// InitializeCipher parses the hex key and prepares the AES-GCM AEAD.
// Calling it again with a cipher already in place is a no-op.
func (c *Crypto) InitializeCipher() error {
	if c.Cipher != nil {
		return nil
	}

	key, err := hex.DecodeString(c.EncryptSecretKey)
	if err != nil || len(key) != 32 {
		return ErrInvalidKey
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("create gcm: %w", err)
	}

	c.Cipher = aead

	return nil
}

// GenerateHash returns the lowercase hex HMAC-SHA256 of the input keyed by
// HashSecretKey. A nil input yields an empty string.
func (c *Crypto) GenerateHash(value *string) string {
	if value == nil {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(c.HashSecretKey))
	mac.Write([]byte(*value))

	return hex.EncodeToString(mac.Sum(nil))
}

// Encrypt returns the base64 encoding of nonce||ciphertext for the input.
// A nil input returns nil without error. The nonce is random per call, so
// encrypting the same plaintext twice yields different ciphertexts.
func (c *Crypto) Encrypt(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}

	if c.Cipher == nil {
		return nil, ErrCipherNotInitialized
	}

	nonce := make([]byte, c.Cipher.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := c.Cipher.Seal(nonce, nonce, []byte(*value), nil)
	encoded := base64.StdEncoding.EncodeToString(sealed)

	return &encoded, nil
}

// Decrypt reverses Encrypt. A nil input returns nil without error.
func (c *Crypto) Decrypt(value *string) (*string, error) {
	if value == nil {
		return nil, nil
	}

	if c.Cipher == nil {
		return nil, ErrCipherNotInitialized
	}

	raw, err := base64.StdEncoding.DecodeString(*value)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}

	nonceSize := c.Cipher.NonceSize()
	if len(raw) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	plain, err := c.Cipher.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		c.logger().Log(context.Background(), log.LevelWarn, "ciphertext failed authentication")

		return nil, ErrInvalidCiphertext
	}

	decoded := string(plain)

	return &decoded, nil
}
