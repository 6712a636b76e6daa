// Package security provides the auxiliary encryption utility configured
// under core.crypter. It is registered as the "core.crypter" service so
// plugins can encrypt tokens and sign payloads without shipping their own
// key handling.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/halcyonmp/framework/config"
)

// Crypter encrypts and signs with a key derived from the configured secret.
type Crypter struct {
	key []byte
}

// NewCrypter builds a Crypter from the core.crypter settings. The secret is
// stretched to a 32-byte AES key via SHA-256.
func NewCrypter(cfg config.CrypterSettings) (*Crypter, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("crypter secret is required")
	}
	if cfg.Algorithm != "" && cfg.Algorithm != "aes-256-gcm" {
		return nil, fmt.Errorf("unsupported crypter algorithm %q", cfg.Algorithm)
	}

	key := sha256.Sum256([]byte(cfg.Secret))
	return &Crypter{key: key[:]}, nil
}

// EncryptString encrypts plaintext and returns it base64 encoded.
func (c *Crypter) EncryptString(plaintext string) (string, error) {
	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func (c *Crypter) DecryptString(encrypted string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", err
	}

	gcm, err := c.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// Sign returns the hex HMAC-SHA256 signature of data.
func (c *Crypter) Sign(data string) string {
	h := hmac.New(sha256.New, c.key)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks a signature produced by Sign.
func (c *Crypter) Verify(data, signature string) bool {
	expected := c.Sign(data)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (c *Crypter) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
