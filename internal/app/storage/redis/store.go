// Package redis implements the credential store backed by Redis.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/session_gateway/internal/app/storage"
)

const keyPrefix = "session_gateway:credential:"

// Store implements storage.CredentialStore backed by Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration // zero means no expiry
}

var _ storage.CredentialStore = (*Store)(nil)

// New creates a Store using the provided Redis client. A non-zero ttl bounds
// how long an untouched credential survives.
func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) GetCredential(ctx context.Context, clientID string) (string, error) {
	credential, err := s.client.Get(ctx, keyPrefix+clientID).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return credential, nil
}

func (s *Store) SetCredential(ctx context.Context, clientID, credential string) error {
	return s.client.Set(ctx, keyPrefix+clientID, credential, s.ttl).Err()
}

func (s *Store) ClearCredential(ctx context.Context, clientID string) error {
	return s.client.Del(ctx, keyPrefix+clientID).Err()
}
