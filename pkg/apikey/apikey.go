// Package apikey issues and validates the API keys that guard the transfer routes.
// Keys are 32 random bytes, hex encoded. Only their SHA-256 digest is stored.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	keyBytes = 32
	// DefaultTTL is how long an issued key stays valid.
	DefaultTTL = 30 * 24 * time.Hour

	prefixLen = 8
)

var (
	ErrInvalidKey  = errors.New("invalid api key")
	ErrExpiredKey  = errors.New("api key expired")
	ErrKeyNotFound = errors.New("api key not found")
)

// Key is the stored metadata of an issued key.
type Key struct {
	ID        string
	Prefix    string
	Label     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store persists key digests.
type Store interface {
	CreateKey(ctx context.Context, k *Key, digest string) error
	GetKeyByDigest(ctx context.Context, digest string) (*Key, error)
}

// Digest returns the hex SHA-256 of a plaintext key.
func Digest(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// Redact returns a loggable form of a key.
func Redact(plain string) string {
	if len(plain) <= prefixLen {
		return fmt.Sprintf("<%d chars>", len(plain))
	}
	return fmt.Sprintf("%s... (%d chars)", plain[:prefixLen], len(plain))
}

// Service issues and checks keys.
type Service struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewService(store Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: store, ttl: ttl, now: time.Now}
}

// Issue creates a new key. The plaintext is returned once and never stored.
func (s *Service) Issue(ctx context.Context, label string) (string, *Key, error) {
	raw := make([]byte, keyBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("failed to generate api key: %w", err)
	}
	plain := hex.EncodeToString(raw)

	now := s.now().UTC()
	k := &Key{
		ID:        uuid.NewString(),
		Prefix:    plain[:prefixLen],
		Label:     label,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.CreateKey(ctx, k, Digest(plain)); err != nil {
		return "", nil, err
	}
	return plain, k, nil
}

// Validate returns the key record for plain if it exists and has not expired.
func (s *Service) Validate(ctx context.Context, plain string) (*Key, error) {
	if len(plain) != keyBytes*2 {
		return nil, ErrInvalidKey
	}
	if _, err := hex.DecodeString(plain); err != nil {
		return nil, ErrInvalidKey
	}

	k, err := s.store.GetKeyByDigest(ctx, Digest(plain))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, err
	}
	if !s.now().Before(k.ExpiresAt) {
		return nil, ErrExpiredKey
	}
	return k, nil
}
