package storage

import (
	"context"
	"errors"
	"testing"
)

// stubStore drives ClientTokens through the error paths the real backends can
// produce.
type stubStore struct {
	credentials map[string]string
	getErr      error
	clearErr    error
}

func (s *stubStore) GetCredential(_ context.Context, clientID string) (string, error) {
	if s.getErr != nil {
		return "", s.getErr
	}
	credential, ok := s.credentials[clientID]
	if !ok {
		return "", ErrNotFound
	}
	return credential, nil
}

func (s *stubStore) SetCredential(_ context.Context, clientID, credential string) error {
	s.credentials[clientID] = credential
	return nil
}

func (s *stubStore) ClearCredential(_ context.Context, clientID string) error {
	if s.clearErr != nil {
		return s.clearErr
	}
	delete(s.credentials, clientID)
	return nil
}

func TestClientTokensScopesToOneClient(t *testing.T) {
	store := &stubStore{credentials: map[string]string{"other": "other-token"}}
	tokens := ForClient(store, "client-1")
	ctx := context.Background()

	if _, present, err := tokens.Get(ctx); err != nil || present {
		t.Fatalf("expected absent credential, got present=%v err=%v", present, err)
	}

	if err := tokens.Set(ctx, "token-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	credential, present, err := tokens.Get(ctx)
	if err != nil || !present || credential != "token-1" {
		t.Fatalf("get = (%q, %v, %v)", credential, present, err)
	}
	if store.credentials["other"] != "other-token" {
		t.Fatal("other client's credential disturbed")
	}

	if err := tokens.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, present, _ := tokens.Get(ctx); present {
		t.Fatal("credential survived clear")
	}
}

func TestClientTokensNotFoundIsAbsence(t *testing.T) {
	tokens := ForClient(&stubStore{credentials: map[string]string{}}, "client-1")

	_, present, err := tokens.Get(context.Background())
	if err != nil {
		t.Fatalf("ErrNotFound must map to absence, got %v", err)
	}
	if present {
		t.Fatal("expected absent credential")
	}
}

func TestClientTokensEmptyCredentialIsAbsent(t *testing.T) {
	tokens := ForClient(&stubStore{credentials: map[string]string{"client-1": ""}}, "client-1")

	_, present, err := tokens.Get(context.Background())
	if err != nil || present {
		t.Fatalf("empty stored credential must read as absent, got present=%v err=%v", present, err)
	}
}

func TestClientTokensSurfacesReadErrors(t *testing.T) {
	readErr := errors.New("backend down")
	tokens := ForClient(&stubStore{getErr: readErr}, "client-1")

	_, _, err := tokens.Get(context.Background())
	if !errors.Is(err, readErr) {
		t.Fatalf("expected read error surfaced, got %v", err)
	}
}

func TestClientTokensClearNotFoundIsNil(t *testing.T) {
	tokens := ForClient(&stubStore{clearErr: ErrNotFound}, "client-1")
	if err := tokens.Clear(context.Background()); err != nil {
		t.Fatalf("clearing an absent credential must not error, got %v", err)
	}
}
