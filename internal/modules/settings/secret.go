package settings

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

// ErrSecretUnreadable is returned when a stored secret cannot be opened with
// the current key
var ErrSecretUnreadable = errors.New("stored secret cannot be decrypted")

// SecretBox encrypts setting values at rest with a key kept beside the
// databases. Losing the key file makes stored secrets unreadable.
type SecretBox struct {
	key [keySize]byte
}

// LoadOrCreateKey reads the key at path, generating and writing a new one
// when the file is missing or empty. A present but malformed key is an error
// so existing secrets are never silently orphaned.
func LoadOrCreateKey(path string) (*SecretBox, error) {
	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read secret key: %w", err)
	}

	if encoded := strings.TrimSpace(string(raw)); encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(decoded) != keySize {
			return nil, fmt.Errorf("secret key %s is malformed", path)
		}
		box := &SecretBox{}
		copy(box.key[:], decoded)
		return box, nil
	}

	box := &SecretBox{}
	if _, err := io.ReadFull(rand.Reader, box.key[:]); err != nil {
		return nil, fmt.Errorf("failed to generate secret key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(box.key[:])), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write secret key: %w", err)
	}
	return box, nil
}

// Seal encrypts plain into a base64 token of nonce followed by ciphertext
func (b *SecretBox) Seal(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plain), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a token produced by Seal
func (b *SecretBox) Open(token string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil || len(raw) < nonceSize+secretbox.Overhead {
		return "", ErrSecretUnreadable
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrSecretUnreadable
	}
	return string(plain), nil
}
