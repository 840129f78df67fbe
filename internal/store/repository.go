package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"toolgate/internal/api"
)

// Repository provides row-level access to persisted connections.
// Implementations return api.NotFoundError when a lookup misses.
type Repository interface {
	// Upsert inserts a connection or, when one already exists for the
	// same (user, slug) pair, replaces its credentials in place. The
	// returned row reflects the stored state, including the surviving
	// ID and CreatedAt of a replaced connection.
	Upsert(ctx context.Context, conn *Connection) (*Connection, error)
	GetByID(ctx context.Context, id string) (*Connection, error)
	GetByUserAndSlug(ctx context.Context, userID, slug string) (*Connection, error)
	// ListByUser returns the user's connections newest-first.
	ListByUser(ctx context.Context, userID string) ([]*Connection, error)
	// LatestCreatedSince returns the user's most recently created
	// connection with CreatedAt at or after cutoff.
	LatestCreatedSince(ctx context.Context, userID string, cutoff time.Time) (*Connection, error)
	UpdateTokens(ctx context.Context, id, encAccess, encRefresh string, expiresAt *time.Time) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// SQLiteRepository implements Repository on an embedded SQLite database.
type SQLiteRepository struct {
	db *sqlx.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens (or creates) the database at path and ensures
// the schema exists. Use ":memory:" for an ephemeral database.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	repo := &SQLiteRepository{db: db}
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connections schema init: %w", err)
	}
	return repo, nil
}

func (r *SQLiteRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS connections (
		id                      TEXT PRIMARY KEY,
		user_id                 TEXT NOT NULL,
		org_id                  TEXT NOT NULL,
		server_slug             TEXT NOT NULL,
		encrypted_access_token  TEXT NOT NULL,
		encrypted_refresh_token TEXT NOT NULL DEFAULT '',
		expires_at              TIMESTAMP,
		status                  TEXT NOT NULL DEFAULT 'active',
		created_at              TIMESTAMP NOT NULL,
		updated_at              TIMESTAMP NOT NULL,
		UNIQUE(user_id, server_slug)
	);
	CREATE INDEX IF NOT EXISTS idx_connections_user ON connections(user_id, created_at);
	`
	_, err := r.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) Upsert(ctx context.Context, conn *Connection) (*Connection, error) {
	now := time.Now().UTC()
	id := conn.ID
	if id == "" {
		id = uuid.New().String()
	}

	// Both token columns land in one statement so a crash can never
	// leave an access token paired with a stale refresh token.
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO connections
			(id, user_id, org_id, server_slug, encrypted_access_token, encrypted_refresh_token, expires_at, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, server_slug) DO UPDATE SET
			encrypted_access_token  = excluded.encrypted_access_token,
			encrypted_refresh_token = excluded.encrypted_refresh_token,
			expires_at              = excluded.expires_at,
			status                  = excluded.status,
			updated_at              = excluded.updated_at`,
		id, conn.UserID, conn.OrgID, conn.ServerSlug,
		conn.EncryptedAccessToken, conn.EncryptedRefreshToken,
		conn.ExpiresAt, StatusActive, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert connection: %w", err)
	}
	return r.GetByUserAndSlug(ctx, conn.UserID, conn.ServerSlug)
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Connection, error) {
	var conn Connection
	err := r.db.GetContext(ctx, &conn, `SELECT * FROM connections WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.NewNotFoundError("connection", id)
		}
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return &conn, nil
}

func (r *SQLiteRepository) GetByUserAndSlug(ctx context.Context, userID, slug string) (*Connection, error) {
	var conn Connection
	err := r.db.GetContext(ctx, &conn, `
		SELECT * FROM connections WHERE user_id = ? AND server_slug = ?`, userID, slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.NewNotFoundError("connection", slug)
		}
		return nil, fmt.Errorf("get connection by slug: %w", err)
	}
	return &conn, nil
}

func (r *SQLiteRepository) ListByUser(ctx context.Context, userID string) ([]*Connection, error) {
	var conns []*Connection
	err := r.db.SelectContext(ctx, &conns, `
		SELECT * FROM connections WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return conns, nil
}

func (r *SQLiteRepository) LatestCreatedSince(ctx context.Context, userID string, cutoff time.Time) (*Connection, error) {
	var conn Connection
	err := r.db.GetContext(ctx, &conn, `
		SELECT * FROM connections
		WHERE user_id = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC LIMIT 1`, userID, cutoff.UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.NewNotFoundError("connection", userID)
		}
		return nil, fmt.Errorf("latest connection: %w", err)
	}
	return &conn, nil
}

func (r *SQLiteRepository) UpdateTokens(ctx context.Context, id, encAccess, encRefresh string, expiresAt *time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE connections SET
			encrypted_access_token  = ?,
			encrypted_refresh_token = ?,
			expires_at              = ?,
			updated_at              = ?
		WHERE id = ?`,
		encAccess, encRefresh, expiresAt, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update tokens: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return api.NewNotFoundError("connection", id)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return api.NewNotFoundError("connection", id)
	}
	return nil
}
