package persistence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"assistant_server/core/port/out"
	"assistant_server/pkg/apperr"
)

// CredentialAdapter persists OAuth token records in PostgreSQL.
type CredentialAdapter struct {
	pool *pgxpool.Pool
}

// NewCredentialAdapter builds the adapter.
func NewCredentialAdapter(pool *pgxpool.Pool) *CredentialAdapter {
	return &CredentialAdapter{pool: pool}
}

var _ out.CredentialRepository = (*CredentialAdapter)(nil)

// GetByUser fetches the most recent credential for a user.
func (a *CredentialAdapter) GetByUser(ctx context.Context, userID string) (*out.CredentialEntity, error) {
	query := `
		SELECT id, user_id, email, access_token, refresh_token, expires_at,
		       scopes, is_connected, created_at, updated_at
		FROM google_credentials
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT 1`

	var entity out.CredentialEntity
	err := a.pool.QueryRow(ctx, query, userID).Scan(
		&entity.ID, &entity.UserID, &entity.Email,
		&entity.AccessToken, &entity.RefreshToken, &entity.ExpiresAt,
		&entity.Scopes, &entity.IsConnected,
		&entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("credential")
		}
		return nil, apperr.DatabaseError("get credential", err)
	}
	return &entity, nil
}

// Create inserts a credential and fills in its generated id.
func (a *CredentialAdapter) Create(ctx context.Context, entity *out.CredentialEntity) error {
	query := `
		INSERT INTO google_credentials
			(user_id, email, access_token, refresh_token, expires_at, scopes, is_connected, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	err := a.pool.QueryRow(ctx, query,
		entity.UserID, entity.Email, entity.AccessToken, entity.RefreshToken,
		entity.ExpiresAt, entity.Scopes, entity.IsConnected,
		entity.CreatedAt, entity.UpdatedAt).Scan(&entity.ID)
	if err != nil {
		return apperr.DatabaseError("create credential", err)
	}
	return nil
}

// Update rewrites a credential row.
func (a *CredentialAdapter) Update(ctx context.Context, entity *out.CredentialEntity) error {
	query := `
		UPDATE google_credentials
		SET email = $1, access_token = $2, refresh_token = $3, expires_at = $4,
		    scopes = $5, is_connected = $6, updated_at = $7
		WHERE id = $8`
	tag, err := a.pool.Exec(ctx, query,
		entity.Email, entity.AccessToken, entity.RefreshToken, entity.ExpiresAt,
		entity.Scopes, entity.IsConnected, entity.UpdatedAt, entity.ID)
	if err != nil {
		return apperr.DatabaseError("update credential", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("credential")
	}
	return nil
}

// Disconnect marks a credential as needing a new consent flow.
func (a *CredentialAdapter) Disconnect(ctx context.Context, id int64) error {
	query := `UPDATE google_credentials SET is_connected = false, updated_at = NOW() WHERE id = $1`
	if _, err := a.pool.Exec(ctx, query, id); err != nil {
		return apperr.DatabaseError("disconnect credential", err)
	}
	return nil
}
