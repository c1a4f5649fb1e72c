package out

import (
	"context"
	"time"
)

// UserEntity is the persistence shape of a user row.
type UserEntity struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// UserRepository persists accounts.
type UserRepository interface {
	Create(ctx context.Context, entity *UserEntity) error
	GetByID(ctx context.Context, id string) (*UserEntity, error)
	GetByUsername(ctx context.Context, username string) (*UserEntity, error)
}
