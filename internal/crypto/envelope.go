// Package crypto provides the symmetric authenticated-encryption envelope
// ployer seals environment variables and deploy keys in at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"github.com/nusendra/ployer/internal/perr"
)

const nonceSize = 12

// Envelope seals and unseals strings with AES-256-GCM under a key derived
// deterministically from the process's configured secret.
type Envelope struct {
	key [32]byte
}

// New derives the envelope key from secret via SHA-256, exactly as
// spec.md §4.7 requires. The secret itself is never retained.
func New(secret string) *Envelope {
	return &Envelope{key: sha256.Sum256([]byte(secret))}
}

// Seal encrypts plaintext, returning base64(nonce || ciphertext_with_tag).
// Each call draws a fresh nonce, so two seals of the same plaintext differ.
func (e *Envelope) Seal(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.key[:])
	if err != nil {
		return "", perr.Wrap(perr.KindCryptoFailure, "seal failed", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", perr.Wrap(perr.KindCryptoFailure, "seal failed", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", perr.Wrap(perr.KindCryptoFailure, "seal failed", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Unseal decrypts a value produced by Seal. It fails with KindCryptoFailure
// if the base64 is malformed, the blob is too short, or the GCM tag does
// not verify.
func (e *Envelope) Unseal(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", perr.Wrap(perr.KindCryptoFailure, "decryption failed", err)
	}
	if len(data) < nonceSize {
		return "", perr.New(perr.KindCryptoFailure, "decryption failed")
	}

	block, err := aes.NewCipher(e.key[:])
	if err != nil {
		return "", perr.Wrap(perr.KindCryptoFailure, "decryption failed", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", perr.Wrap(perr.KindCryptoFailure, "decryption failed", err)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", perr.New(perr.KindCryptoFailure, "decryption failed")
	}

	return string(plaintext), nil
}
