package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"research-orchestrator/internal/domain/model"
)

var ErrDecrypt = errors.New("api key decryption failed")

// KeyVault encrypts provider API keys at rest with AES-GCM. Each ciphertext
// is bound to its owner and provider through the additional data, so a value
// copied to another user's row or column does not decrypt.
type KeyVault struct {
	gcm cipher.AEAD
}

// NewKeyVault accepts a raw 16, 24 or 32 byte key or the hex encoding of one.
func NewKeyVault(key string) (*KeyVault, error) {
	k := []byte(key)
	if len(key) == 64 || len(key) == 48 {
		if b, err := hex.DecodeString(key); err == nil {
			k = b
		}
	}
	switch len(k) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", len(k))
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &KeyVault{gcm: gcm}, nil
}

func aad(userID string, p model.Provider) []byte {
	return []byte(userID + "|" + string(p))
}

// Seal returns base64(nonce || ciphertext).
func (v *KeyVault) Seal(userID string, p model.Provider, plaintext string) (string, error) {
	nonce := make([]byte, v.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := v.gcm.Seal(nonce, nonce, []byte(plaintext), aad(userID, p))
	return base64.StdEncoding.EncodeToString(ct), nil
}

// Open reverses Seal for the same user and provider.
func (v *KeyVault) Open(userID string, p model.Provider, sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode: %v", ErrDecrypt, err)
	}
	ns := v.gcm.NonceSize()
	if len(data) < ns {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	pt, err := v.gcm.Open(nil, data[:ns], data[ns:], aad(userID, p))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(pt), nil
}

// Mask shows only the last four characters of a key.
func Mask(key string) string {
	key = strings.TrimSpace(key)
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}
