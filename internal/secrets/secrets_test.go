package secrets

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestAESGCM_RoundTrip(t *testing.T) {
	c := NewAESGCM()
	key := testKey(t)
	plaintext := []byte(`{"access_token":"at-1","refresh_token":"rt-1"}`)

	blob, err := c.Encrypt(plaintext, key)
	require.NoError(t, err)
	assert.NotContains(t, blob, "at-1")

	got, err := c.Decrypt(blob, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestAESGCM_NonceUniqueness(t *testing.T) {
	c := NewAESGCM()
	key := testKey(t)

	a, err := c.Encrypt([]byte("same"), key)
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same"), key)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestAESGCM_WrongKey(t *testing.T) {
	c := NewAESGCM()

	blob, err := c.Encrypt([]byte("secret"), testKey(t))
	require.NoError(t, err)

	_, err = c.Decrypt(blob, testKey(t))
	require.Error(t, err)
	assert.True(t, IsCryptoError(err))
}

func TestAESGCM_BadInput(t *testing.T) {
	c := NewAESGCM()
	key := testKey(t)

	t.Run("invalid key length", func(t *testing.T) {
		_, err := c.Encrypt([]byte("x"), []byte("short"))
		assert.True(t, IsCryptoError(err))
	})

	t.Run("not base64", func(t *testing.T) {
		_, err := c.Decrypt("!!!", key)
		assert.True(t, IsCryptoError(err))
	})

	t.Run("truncated blob", func(t *testing.T) {
		_, err := c.Decrypt("AAAA", key)
		assert.True(t, IsCryptoError(err))
	})
}

func TestFileKeyProvider(t *testing.T) {
	dir := t.TempDir()

	p1, err := NewFileKeyProvider(dir)
	require.NoError(t, err)
	require.Len(t, p1.Key(), KeySize)

	// A second provider on the same directory loads the same key.
	p2, err := NewFileKeyProvider(dir)
	require.NoError(t, err)
	assert.Equal(t, p1.Key(), p2.Key())

	userKey, err := p2.ResolveUserEncryptionKey("user-1")
	require.NoError(t, err)
	assert.Equal(t, p1.Key(), userKey)
}
