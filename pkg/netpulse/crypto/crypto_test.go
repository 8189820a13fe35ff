package crypto_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/netpulse/pkg/netpulse/crypto"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := crypto.New("test-secret")
	require.NoError(t, err)

	for _, plaintext := range []string{
		"snmp-auth-password",
		"p@ssw0rd with spaces",
		"unicode-ключ-密码",
		strings.Repeat("x", 1024),
	} {
		encrypted, err := c.Encrypt(plaintext)
		require.NoError(t, err)

		decrypted, err := c.Decrypt(encrypted)
		require.NoError(t, err)
		assert.Equal(t, plaintext, decrypted)
	}
}

func TestCiphertextFormat(t *testing.T) {
	c, err := crypto.New("test-secret")
	require.NoError(t, err)

	encrypted, err := c.Encrypt("secret")
	require.NoError(t, err)

	parts := strings.Split(encrypted, ":")
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 24, "iv must be 12 bytes hex-encoded")
	assert.Len(t, parts[1], 32, "tag must be 16 bytes hex-encoded")
	assert.NotEmpty(t, parts[2])
}

func TestEmptyStringPassesThrough(t *testing.T) {
	c, err := crypto.New("test-secret")
	require.NoError(t, err)

	encrypted, err := c.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", encrypted)

	decrypted, err := c.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", decrypted)
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	c, err := crypto.New("test-secret")
	require.NoError(t, err)

	encrypted, err := c.Encrypt("secret")
	require.NoError(t, err)

	// Flip one ciphertext nibble.
	parts := strings.Split(encrypted, ":")
	ct := []byte(parts[2])
	if ct[0] == 'a' {
		ct[0] = 'b'
	} else {
		ct[0] = 'a'
	}
	tampered := parts[0] + ":" + parts[1] + ":" + string(ct)

	_, err = c.Decrypt(tampered)
	assert.Error(t, err)
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	c, err := crypto.New("test-secret")
	require.NoError(t, err)

	for _, bad := range []string{
		"no-colons-at-all",
		"only:two",
		"zz:zz:zz", // invalid hex
		"abcd:0123456789abcdef0123456789abcdef:00", // short iv
	} {
		_, err := c.Decrypt(bad)
		assert.Error(t, err, "input %q should be rejected", bad)
	}
}

func TestDifferentSecretsCannotDecrypt(t *testing.T) {
	c1, err := crypto.New("secret-one")
	require.NoError(t, err)
	c2, err := crypto.New("secret-two")
	require.NoError(t, err)

	encrypted, err := c1.Encrypt("payload")
	require.NoError(t, err)

	_, err = c2.Decrypt(encrypted)
	assert.Error(t, err)
}

func TestNewRejectsEmptySecret(t *testing.T) {
	_, err := crypto.New("")
	assert.Error(t, err)
}
