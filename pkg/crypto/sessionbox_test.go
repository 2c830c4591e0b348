package crypto

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) *[32]byte {
	t.Helper()

	var key [32]byte
	_, err := rand.Read(key[:])
	require.NoError(t, err)
	return &key
}

func TestSealOpenRoundTrip(t *testing.T) {
	box := NewSessionBox(testKey(t))
	blob := []byte(`{"dc":2,"auth_key":"opaque"}`)

	sealed, err := box.Seal(blob)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "auth_key")

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, blob, opened)
}

func TestOpenRejectsTamperedBlob(t *testing.T) {
	box := NewSessionBox(testKey(t))

	sealed, err := box.Seal([]byte("credential"))
	require.NoError(t, err)

	// Flip a character in the base64 payload past the nonce prefix
	tampered := []byte(sealed)
	last := len(tampered) - 2
	if tampered[last] == 'A' {
		tampered[last] = 'B'
	} else {
		tampered[last] = 'A'
	}

	_, err = box.Open(string(tampered))
	assert.Error(t, err)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	sealed, err := NewSessionBox(testKey(t)).Seal([]byte("credential"))
	require.NoError(t, err)

	_, err = NewSessionBox(testKey(t)).Open(sealed)
	assert.Error(t, err)
}

func TestNilKeyPassThrough(t *testing.T) {
	box := NewSessionBox(nil)
	blob := []byte("plain credential")

	sealed, err := box.Seal(blob)
	require.NoError(t, err)

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, blob, opened)
}

func TestBlobHashStable(t *testing.T) {
	a := BlobHash([]byte("credential"))
	b := BlobHash([]byte("credential"))
	c := BlobHash([]byte("other"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
