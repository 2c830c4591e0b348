package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// SessionBox seals and opens session credential blobs using nacl secretbox.
// A nil key disables sealing; blobs then pass through base64 unchanged,
// which keeps the at-rest format uniform between sealed and unsealed setups.
type SessionBox struct {
	key *[32]byte
}

// NewSessionBox creates a SessionBox with the given key. key may be nil.
func NewSessionBox(key *[32]byte) *SessionBox {
	return &SessionBox{key: key}
}

// Seal encrypts a session blob for storage. The random nonce is prepended
// to the ciphertext and the whole value base64-encoded.
func (b *SessionBox) Seal(blob []byte) (string, error) {
	if b.key == nil {
		return base64.StdEncoding.EncodeToString(blob), nil
	}

	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], blob, &nonce, b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a stored session blob.
func (b *SessionBox) Open(stored string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return nil, fmt.Errorf("stored blob is not valid base64: %w", err)
	}

	if b.key == nil {
		return raw, nil
	}

	if len(raw) < 24 {
		return nil, fmt.Errorf("stored blob too short: %d bytes", len(raw))
	}

	var nonce [24]byte
	copy(nonce[:], raw[:24])

	blob, ok := secretbox.Open(nil, raw[24:], &nonce, b.key)
	if !ok {
		return nil, fmt.Errorf("failed to open session blob: wrong key or corrupted data")
	}

	return blob, nil
}

// BlobHash returns the hex-encoded SHA-256 of a plaintext session blob.
// Session history entries store this hash instead of the credential itself.
func BlobHash(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}
