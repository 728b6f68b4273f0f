package storex

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

// MasterKeyEnv is consulted by LoadMasterKey when no key file is configured.
const MasterKeyEnv = "STORE_MASTER_KEY"

// Sealed encrypts values with XChaCha20-Poly1305 before handing them to the
// next backend. The key name is bound as associated data, so a value copied
// under another key fails to open.
//
// Stored format: base64(nonce || ciphertext || tag).
type Sealed struct {
	next Backend
	aead cipher.AEAD
}

// NewSealed derives a 32-byte key from keyMaterial with SHA-256.
func NewSealed(next Backend, keyMaterial []byte) (*Sealed, error) {
	if len(keyMaterial) == 0 {
		return nil, fmt.Errorf("storex: empty master key")
	}

	key := sha256.Sum256(keyMaterial)
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to create AEAD: %w", err)
	}

	return &Sealed{next: next, aead: aead}, nil
}

// LoadMasterKey reads key material from path, or from MasterKeyEnv when
// path is empty. It returns nil, nil when neither is set.
func LoadMasterKey(path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read master key file: %w", err)
		}
		return data, nil
	}

	if v := os.Getenv(MasterKeyEnv); v != "" {
		return []byte(v), nil
	}
	return nil, nil
}

func (s *Sealed) Get(ctx context.Context, key string) (string, error) {
	raw, err := s.next.Get(ctx, key)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("sealed value for %q: %w", key, err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("sealed value for %q: ciphertext too short", key)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, []byte(key))
	if err != nil {
		return "", fmt.Errorf("sealed value for %q: decryption failed: %w", key, err)
	}

	return string(plaintext), nil
}

func (s *Sealed) Set(ctx context.Context, key, value string) error {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))
	return s.next.Set(ctx, key, base64.StdEncoding.EncodeToString(sealed))
}

// Ping forwards to the wrapped backend when it is a Pinger.
func (s *Sealed) Ping(ctx context.Context) error {
	if p, ok := s.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.next.Delete(ctx, key)
}
