package store

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/api"
	"toolgate/internal/secrets"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "connections.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return NewStore(repo, secrets.NewAESGCM())
}

func newKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, secrets.KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestStore_UpsertAndDecrypt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	key := newKey(t)

	expires := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	conn, err := s.Upsert(ctx, "user-1", "org-1", "jira", TokenData{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		ExpiresAt:    &expires,
	}, key)
	require.NoError(t, err)

	assert.NotEmpty(t, conn.ID)
	assert.Equal(t, StatusActive, conn.Status)
	assert.NotContains(t, conn.EncryptedAccessToken, "at-1")
	assert.NotContains(t, conn.EncryptedRefreshToken, "rt-1")

	tokens, err := s.DecryptedTokens(conn, key)
	require.NoError(t, err)
	assert.Equal(t, "at-1", tokens.AccessToken)
	assert.Equal(t, "rt-1", tokens.RefreshToken)
	require.NotNil(t, tokens.ExpiresAt)
	assert.WithinDuration(t, expires, *tokens.ExpiresAt, time.Second)
}

func TestStore_UpsertReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	key := newKey(t)

	first, err := s.Upsert(ctx, "user-1", "org-1", "jira", TokenData{AccessToken: "at-old"}, key)
	require.NoError(t, err)

	second, err := s.Upsert(ctx, "user-1", "org-1", "jira", TokenData{AccessToken: "at-new", RefreshToken: "rt-new"}, key)
	require.NoError(t, err)

	// Same row survives; only credentials change.
	assert.Equal(t, first.ID, second.ID)
	assert.WithinDuration(t, first.CreatedAt, second.CreatedAt, time.Second)

	tokens, err := s.DecryptedTokens(second, key)
	require.NoError(t, err)
	assert.Equal(t, "at-new", tokens.AccessToken)
	assert.Equal(t, "rt-new", tokens.RefreshToken)

	list, err := s.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_DistinctSlugsCoexist(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	key := newKey(t)

	_, err := s.Upsert(ctx, "user-1", "org-1", "jira", TokenData{AccessToken: "a"}, key)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, "user-1", "org-1", "github", TokenData{AccessToken: "b"}, key)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, "user-2", "org-1", "jira", TokenData{AccessToken: "c"}, key)
	require.NoError(t, err)

	list, err := s.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestStore_GetNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetByID(ctx, "missing")
	require.Error(t, err)
	assert.True(t, api.IsNotFound(err))

	_, err = s.GetByUserAndSlug(ctx, "user-1", "jira")
	assert.True(t, api.IsNotFound(err))

	err = s.Delete(ctx, "missing")
	assert.True(t, api.IsNotFound(err))
}

func TestStore_WrongKeyIsCryptoError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	conn, err := s.Upsert(ctx, "user-1", "org-1", "jira", TokenData{AccessToken: "at"}, newKey(t))
	require.NoError(t, err)

	_, err = s.DecryptedTokens(conn, newKey(t))
	require.Error(t, err)
	assert.True(t, secrets.IsCryptoError(err))
	assert.False(t, api.IsNotFound(err))
}

func TestStore_UpdateTokens(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	key := newKey(t)

	conn, err := s.Upsert(ctx, "user-1", "org-1", "jira", TokenData{AccessToken: "at-old", RefreshToken: "rt-old"}, key)
	require.NoError(t, err)

	expires := time.Now().UTC().Add(30 * time.Minute)
	err = s.UpdateTokens(ctx, conn, TokenData{AccessToken: "at-new", RefreshToken: "rt-new", ExpiresAt: &expires}, key)
	require.NoError(t, err)

	reloaded, err := s.GetByID(ctx, conn.ID)
	require.NoError(t, err)
	tokens, err := s.DecryptedTokens(reloaded, key)
	require.NoError(t, err)
	assert.Equal(t, "at-new", tokens.AccessToken)
	assert.Equal(t, "rt-new", tokens.RefreshToken)
}

func TestStore_LatestCreatedSince(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	key := newKey(t)

	cutoff := time.Now().UTC().Add(-time.Second)

	_, err := s.LatestCreatedSince(ctx, "user-1", cutoff)
	assert.True(t, api.IsNotFound(err))

	_, err = s.Upsert(ctx, "user-1", "org-1", "jira", TokenData{AccessToken: "a"}, key)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	want, err := s.Upsert(ctx, "user-1", "org-1", "github", TokenData{AccessToken: "b"}, key)
	require.NoError(t, err)

	got, err := s.LatestCreatedSince(ctx, "user-1", cutoff)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)

	// Rows older than the cutoff never match.
	_, err = s.LatestCreatedSince(ctx, "user-1", time.Now().UTC().Add(time.Minute))
	assert.True(t, api.IsNotFound(err))
}
