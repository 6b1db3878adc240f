// Package storage defines the persistence contracts for durable client
// credentials. Implementations must not perform network I/O beyond their own
// backing store, and must be safe for concurrent use.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound indicates no credential is stored for the client.
var ErrNotFound = errors.New("credential not found")

// CredentialStore persists one opaque bearer credential per client.
type CredentialStore interface {
	GetCredential(ctx context.Context, clientID string) (string, error)
	SetCredential(ctx context.Context, clientID, credential string) error
	ClearCredential(ctx context.Context, clientID string) error
}

// ClientTokens scopes a CredentialStore to a single client, giving the boot
// orchestrator the plain get/set/clear token contract it consumes.
type ClientTokens struct {
	store    CredentialStore
	clientID string
}

// ForClient returns the token store view for one client.
func ForClient(store CredentialStore, clientID string) *ClientTokens {
	return &ClientTokens{store: store, clientID: clientID}
}

// Get returns the stored credential and whether one is present.
func (t *ClientTokens) Get(ctx context.Context) (string, bool, error) {
	credential, err := t.store.GetCredential(ctx, t.clientID)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return credential, credential != "", nil
}

// Set stores the credential.
func (t *ClientTokens) Set(ctx context.Context, credential string) error {
	return t.store.SetCredential(ctx, t.clientID, credential)
}

// Clear removes the credential. Clearing an absent credential is not an
// error.
func (t *ClientTokens) Clear(ctx context.Context) error {
	err := t.store.ClearCredential(ctx, t.clientID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}
