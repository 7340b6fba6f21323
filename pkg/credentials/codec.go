// Package credentials encrypts and decrypts database credential references.
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dukex/querygate/pkg/models"
	"golang.org/x/crypto/hkdf"
)

const keyInfo = "querygate credential codec v1"

var (
	ErrSecretRequired  = errors.New("credential secret is required")
	ErrInvalidRef      = errors.New("invalid credential reference")
	ErrDecryptFailed   = errors.New("failed to decrypt credential reference")
	ErrEmptyCredential = errors.New("username is required")
)

// Codec turns plaintext credentials into opaque references and back.
type Codec interface {
	Encrypt(creds models.Credentials) (string, error)
	Decrypt(ref string) (models.Credentials, error)
}

// AESCodec implements Codec with AES-256-GCM. The key is derived from a
// configured secret with HKDF-SHA256, so any secret length is accepted.
type AESCodec struct {
	aead cipher.AEAD
}

// NewAESCodec creates a codec keyed by secret.
func NewAESCodec(secret string) (*AESCodec, error) {
	if secret == "" {
		return nil, ErrSecretRequired
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESCodec{aead: gcm}, nil
}

// Encrypt seals the credentials and returns a base64 reference.
func (c *AESCodec) Encrypt(creds models.Credentials) (string, error) {
	if creds.Username == "" {
		return "", ErrEmptyCredential
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("failed to encode credentials: %w", err)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, plaintext, nil)

	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a reference produced by Encrypt. An empty reference decrypts
// to empty credentials so that credential-free instances can be configured.
func (c *AESCodec) Decrypt(ref string) (models.Credentials, error) {
	if ref == "" {
		return models.Credentials{}, nil
	}

	data, err := base64.StdEncoding.DecodeString(ref)
	if err != nil {
		return models.Credentials{}, fmt.Errorf("%w: %w", ErrInvalidRef, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return models.Credentials{}, ErrInvalidRef
	}

	plaintext, err := c.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return models.Credentials{}, ErrDecryptFailed
	}

	var creds models.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return models.Credentials{}, fmt.Errorf("%w: %w", ErrInvalidRef, err)
	}

	return creds, nil
}
