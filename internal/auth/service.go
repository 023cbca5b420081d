// Package auth guards administrative endpoints with a single bcrypt-hashed key.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefix marks keys issued by GenerateKey.
const KeyPrefix = "hafgate_"

// ErrInvalidKey is returned when the provided key does not match the configured hash.
var ErrInvalidKey = errors.New("invalid admin key")

// Service verifies admin keys. A Service with no hash is disabled and accepts
// every request.
type Service struct {
	hash []byte
}

// NewService creates a Service for a bcrypt hash. An empty hash disables it.
func NewService(hash string) (*Service, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return &Service{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("parsing admin key hash: %w", err)
	}
	return &Service{hash: []byte(hash)}, nil
}

// Enabled reports whether a key is required.
func (s *Service) Enabled() bool {
	return len(s.hash) > 0
}

// Authenticate checks rawKey against the configured hash.
func (s *Service) Authenticate(rawKey string) error {
	if !s.Enabled() {
		return nil
	}
	if rawKey == "" {
		return ErrInvalidKey
	}
	if err := bcrypt.CompareHashAndPassword(s.hash, []byte(rawKey)); err != nil {
		return ErrInvalidKey
	}
	return nil
}

// GenerateKey creates a random key and its bcrypt hash. The raw key is 32
// random bytes, base64url encoded, with KeyPrefix prepended.
func GenerateKey(cost int) (rawKey, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("generating random bytes: %w", err)
	}

	rawKey = KeyPrefix + base64.RawURLEncoding.EncodeToString(b)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(rawKey), cost)
	if err != nil {
		return "", "", fmt.Errorf("hashing key: %w", err)
	}

	return rawKey, string(hashBytes), nil
}
