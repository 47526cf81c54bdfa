// Package crypto implements the Field Encryptor: authenticated symmetric
// encryption of credential strings at rest, with self-describing ciphertext
// so a future key-rotation scheme can be introduced without a schema change.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/malwarebo/orderbridge/errs"
)

// algoAESGCMv1 is the only algorithm tag emitted today. A future rotation
// scheme adds a second constant here, never changes the layout of existing
// ciphertext.
const algoAESGCMv1 byte = 0x01

// Encryptor holds the single process-wide master key.
type Encryptor struct {
	key []byte
}

// NewEncryptor derives a 32-byte AES-256 key from the given secret. Every
// secret, whatever its length, is hashed with SHA-256, so any non-empty
// POLLER_ENCRYPTION_KEY value the operator supplies is usable.
func NewEncryptor(secret string) (*Encryptor, error) {
	if secret == "" {
		return nil, errs.New(errs.Config, "encryption key must not be empty")
	}
	sum := sha256.Sum256([]byte(secret))
	return &Encryptor{key: sum[:]}, nil
}

// Encrypt returns an opaque, base64-encoded string: algorithm tag || nonce ||
// GCM-sealed ciphertext.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", errs.Wrap(errs.Crypto, "create cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errs.Wrap(errs.Crypto, "create GCM", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errs.Wrap(errs.Crypto, "generate nonce", err)
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	out := make([]byte, 0, 1+len(nonce)+len(sealed))
	out = append(out, algoAESGCMv1)
	out = append(out, nonce...)
	out = append(out, sealed...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt. Tampered or foreign-key ciphertext fails with a
// crypto Error rather than silently returning garbage.
func (e *Encryptor) Decrypt(opaque string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(opaque)
	if err != nil {
		return "", errs.Wrap(errs.Crypto, "decode ciphertext", err)
	}
	if len(raw) < 1 {
		return "", errs.New(errs.Crypto, "ciphertext too short")
	}
	algo, raw := raw[0], raw[1:]
	if algo != algoAESGCMv1 {
		return "", errs.New(errs.Crypto, "unknown ciphertext algorithm tag")
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", errs.Wrap(errs.Crypto, "create cipher", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", errs.Wrap(errs.Crypto, "create GCM", err)
	}
	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", errs.New(errs.Crypto, "ciphertext too short")
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", errs.Wrap(errs.Crypto, "decrypt", err)
	}
	return string(plaintext), nil
}
