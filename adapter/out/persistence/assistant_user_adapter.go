package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"assistant_server/core/port/out"
	"assistant_server/pkg/apperr"
)

const pgUniqueViolation = "23505"

// UserAdapter persists users in PostgreSQL.
type UserAdapter struct {
	db *sqlx.DB
}

// NewUserAdapter builds the adapter.
func NewUserAdapter(db *sqlx.DB) *UserAdapter {
	return &UserAdapter{db: db}
}

var _ out.UserRepository = (*UserAdapter)(nil)

// Create inserts a user row.
func (a *UserAdapter) Create(ctx context.Context, entity *out.UserEntity) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := a.db.ExecContext(ctx, query,
		entity.ID, entity.Username, entity.Email, entity.PasswordHash,
		entity.CreatedAt, entity.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
			return apperr.AlreadyExists("user")
		}
		return apperr.DatabaseError("create user", err)
	}
	return nil
}

// GetByID fetches a user by id.
func (a *UserAdapter) GetByID(ctx context.Context, id string) (*out.UserEntity, error) {
	var entity out.UserEntity
	query := `SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE id = $1`
	if err := a.db.GetContext(ctx, &entity, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user")
		}
		return nil, apperr.DatabaseError("get user", err)
	}
	return &entity, nil
}

// GetByUsername fetches a user by username.
func (a *UserAdapter) GetByUsername(ctx context.Context, username string) (*out.UserEntity, error) {
	var entity out.UserEntity
	query := `SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE username = $1`
	if err := a.db.GetContext(ctx, &entity, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("user")
		}
		return nil, apperr.DatabaseError("get user", err)
	}
	return &entity, nil
}
