package store

import (
	"context"
	"fmt"
	"time"

	"toolgate/internal/secrets"
)

// Store wraps a Repository with credential encryption. Every method taking
// a key expects the caller's resolved per-user encryption key; plaintext
// tokens never reach the repository.
type Store struct {
	repo   Repository
	cipher secrets.Cipher
}

// NewStore builds a Store over repo using cipher for token encryption.
func NewStore(repo Repository, cipher secrets.Cipher) *Store {
	return &Store{repo: repo, cipher: cipher}
}

func (s *Store) encrypt(tokens TokenData, key []byte) (encAccess, encRefresh string, err error) {
	encAccess, err = s.cipher.Encrypt([]byte(tokens.AccessToken), key)
	if err != nil {
		return "", "", fmt.Errorf("encrypt access token: %w", err)
	}
	encRefresh = ""
	if tokens.RefreshToken != "" {
		encRefresh, err = s.cipher.Encrypt([]byte(tokens.RefreshToken), key)
		if err != nil {
			return "", "", fmt.Errorf("encrypt refresh token: %w", err)
		}
	}
	return encAccess, encRefresh, nil
}

// Upsert persists tokens for (userID, slug), replacing any existing
// connection's credentials in place.
func (s *Store) Upsert(ctx context.Context, userID, orgID, slug string, tokens TokenData, key []byte) (*Connection, error) {
	encAccess, encRefresh, err := s.encrypt(tokens, key)
	if err != nil {
		return nil, err
	}
	return s.repo.Upsert(ctx, &Connection{
		UserID:                userID,
		OrgID:                 orgID,
		ServerSlug:            slug,
		EncryptedAccessToken:  encAccess,
		EncryptedRefreshToken: encRefresh,
		ExpiresAt:             tokens.ExpiresAt,
	})
}

// GetByID looks up a connection by its identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Connection, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByUserAndSlug looks up a user's connection to a server.
func (s *Store) GetByUserAndSlug(ctx context.Context, userID, slug string) (*Connection, error) {
	return s.repo.GetByUserAndSlug(ctx, userID, slug)
}

// ListByUser returns the user's connections newest-first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]*Connection, error) {
	return s.repo.ListByUser(ctx, userID)
}

// LatestCreatedSince returns the user's most recently created connection
// at or after cutoff.
func (s *Store) LatestCreatedSince(ctx context.Context, userID string, cutoff time.Time) (*Connection, error) {
	return s.repo.LatestCreatedSince(ctx, userID, cutoff)
}

// DecryptedTokens recovers the plaintext credential bundle of a connection.
// Failures surface as secrets.CryptoError so callers can distinguish a key
// mismatch from a missing row.
func (s *Store) DecryptedTokens(conn *Connection, key []byte) (*TokenData, error) {
	access, err := s.cipher.Decrypt(conn.EncryptedAccessToken, key)
	if err != nil {
		return nil, err
	}
	tokens := &TokenData{
		AccessToken: string(access),
		ExpiresAt:   conn.ExpiresAt,
	}
	if conn.EncryptedRefreshToken != "" {
		refresh, err := s.cipher.Decrypt(conn.EncryptedRefreshToken, key)
		if err != nil {
			return nil, err
		}
		tokens.RefreshToken = string(refresh)
	}
	return tokens, nil
}

// UpdateTokens replaces a connection's credentials after a refresh. Both
// blobs are written in a single statement.
func (s *Store) UpdateTokens(ctx context.Context, conn *Connection, tokens TokenData, key []byte) error {
	encAccess, encRefresh, err := s.encrypt(tokens, key)
	if err != nil {
		return err
	}
	return s.repo.UpdateTokens(ctx, conn.ID, encAccess, encRefresh, tokens.ExpiresAt)
}

// Delete removes a connection.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
