// Package crypto implements the credential cipher used for SNMPv3 auth and
// privacy passwords stored in npm.snmpv3_credentials.
//
// The wire format is shared with the gateway service that writes the rows:
// three hex fields separated by colons, iv(12B):tag(16B):ciphertext, produced
// by AES-256-GCM. The 32-byte key is derived from the configured secret with
// scrypt(N=16384, r=8, p=1) and the fixed salt "salt" — both sides must use
// identical parameters or nothing decrypts.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	ivLength  = 12
	tagLength = 16

	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

// fixed by the cross-service format; not a per-message salt
var scryptSalt = []byte("salt")

// CredentialCipher encrypts and decrypts credential strings. It is immutable
// after construction and safe for concurrent use.
type CredentialCipher struct {
	aead cipher.AEAD
}

// New derives the AES-256 key from secret and returns a ready cipher.
func New(secret string) (*CredentialCipher, error) {
	if secret == "" {
		return nil, fmt.Errorf("crypto: empty credential secret")
	}
	key, err := scrypt.Key([]byte(secret), scryptSalt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("crypto: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: new gcm: %w", err)
	}
	return &CredentialCipher{aead: aead}, nil
}

// Encrypt returns plaintext in iv_hex:tag_hex:ct_hex form. Empty input
// encrypts to the empty string, mirroring Decrypt.
func (c *CredentialCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("crypto: read iv: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	// Seal appends the 16-byte tag to the ciphertext; the wire format carries
	// them as separate fields.
	ct := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	return fmt.Sprintf("%s:%s:%s",
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ct),
	), nil
}

// Decrypt reverses Encrypt. It returns an error for malformed input or when
// the authentication tag does not verify; callers treat that as a credential
// failure and skip the SNMP section of the poll.
func (c *CredentialCipher) Decrypt(encrypted string) (string, error) {
	if encrypted == "" {
		return "", nil
	}

	parts := strings.Split(encrypted, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("crypto: invalid ciphertext format: expected 3 fields, got %d", len(parts))
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("crypto: decode iv: %w", err)
	}
	if len(iv) != ivLength {
		return "", fmt.Errorf("crypto: iv length %d, expected %d", len(iv), ivLength)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("crypto: decode tag: %w", err)
	}
	if len(tag) != tagLength {
		return "", fmt.Errorf("crypto: tag length %d, expected %d", len(tag), tagLength)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("crypto: decode ciphertext: %w", err)
	}

	plaintext, err := c.aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decrypt: %w", err)
	}
	return string(plaintext), nil
}
