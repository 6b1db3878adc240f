// Package postgres implements the credential store backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/R3E-Network/session_gateway/internal/app/storage"
)

// Store implements storage.CredentialStore backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.CredentialStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the credential table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS gateway_credentials (
			client_id  TEXT PRIMARY KEY,
			credential TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

func (s *Store) GetCredential(ctx context.Context, clientID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT credential
		FROM gateway_credentials
		WHERE client_id = $1
	`, clientID)

	var credential string
	if err := row.Scan(&credential); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", err
	}
	return credential, nil
}

func (s *Store) SetCredential(ctx context.Context, clientID, credential string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gateway_credentials (client_id, credential, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (client_id)
		DO UPDATE SET credential = EXCLUDED.credential, updated_at = EXCLUDED.updated_at
	`, clientID, credential, time.Now().UTC())
	return err
}

func (s *Store) ClearCredential(ctx context.Context, clientID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM gateway_credentials
		WHERE client_id = $1
	`, clientID)
	return err
}
