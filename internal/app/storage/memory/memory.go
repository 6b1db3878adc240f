// Package memory provides an in-memory credential store. It is safe for
// concurrent use and is primarily intended for tests and local development.
package memory

import (
	"context"
	"sync"

	"github.com/R3E-Network/session_gateway/internal/app/storage"
)

// Store is an in-memory implementation of storage.CredentialStore.
type Store struct {
	mu          sync.RWMutex
	credentials map[string]string
}

var _ storage.CredentialStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{credentials: make(map[string]string)}
}

func (s *Store) GetCredential(_ context.Context, clientID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	credential, ok := s.credentials[clientID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return credential, nil
}

func (s *Store) SetCredential(_ context.Context, clientID, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credentials[clientID] = credential
	return nil
}

func (s *Store) ClearCredential(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.credentials, clientID)
	return nil
}
