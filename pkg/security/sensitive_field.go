package security

import (
	"errors"

	"github.com/sodaniels/doseal-transaction-core/pkg/crypto"
)

// ErrNilCipher is returned when a SensitiveField operation is attempted
// without a cipher.
var ErrNilCipher = errors.New("sensitive field cipher is nil")

// SensitiveField holds a PII value that must never be persisted in the
// clear. Entities carry the plaintext in memory; the persistence layer
// calls Encrypt before writing and Decrypt after reading, so individual
// constructors never touch the cipher.
type SensitiveField struct {
	plaintext  string
	ciphertext string
}

// NewSensitiveField wraps a plaintext value.
func NewSensitiveField(value string) SensitiveField {
	return SensitiveField{plaintext: value}
}

// FromCiphertext wraps an already-encrypted value read from storage.
func FromCiphertext(value string) SensitiveField {
	return SensitiveField{ciphertext: value}
}

// Value returns the plaintext. Empty until set or decrypted.
func (f SensitiveField) Value() string {
	return f.plaintext
}

// Ciphertext returns the encrypted representation. Empty until encrypted.
func (f SensitiveField) Ciphertext() string {
	return f.ciphertext
}

// IsZero reports whether the field carries neither plaintext nor ciphertext.
func (f SensitiveField) IsZero() bool {
	return f.plaintext == "" && f.ciphertext == ""
}

// Encrypt produces a copy carrying the ciphertext of the plaintext value.
// Encrypting an empty field is a no-op.
func (f SensitiveField) Encrypt(c *crypto.Crypto) (SensitiveField, error) {
	if c == nil {
		return SensitiveField{}, ErrNilCipher
	}

	if f.plaintext == "" {
		return f, nil
	}

	enc, err := c.Encrypt(&f.plaintext)
	if err != nil {
		return SensitiveField{}, err
	}

	return SensitiveField{plaintext: f.plaintext, ciphertext: *enc}, nil
}

// Decrypt produces a copy carrying the plaintext of the ciphertext value.
// Decrypting an empty field is a no-op.
func (f SensitiveField) Decrypt(c *crypto.Crypto) (SensitiveField, error) {
	if c == nil {
		return SensitiveField{}, ErrNilCipher
	}

	if f.ciphertext == "" {
		return f, nil
	}

	dec, err := c.Decrypt(&f.ciphertext)
	if err != nil {
		return SensitiveField{}, err
	}

	return SensitiveField{plaintext: *dec, ciphertext: f.ciphertext}, nil
}

// String implements fmt.Stringer and always redacts.
func (SensitiveField) String() string { return "REDACTED" }

// GoString implements fmt.GoStringer and always redacts.
func (SensitiveField) GoString() string { return "security.SensitiveField{REDACTED}" }
