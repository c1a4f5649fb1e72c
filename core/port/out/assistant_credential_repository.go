package out

import (
	"context"
	"time"
)

// CredentialEntity is the durable token record: access token, refresh token,
// expiry and scope list, keyed by user.
type CredentialEntity struct {
	ID           int64     `db:"id"`
	UserID       string    `db:"user_id"`
	Email        string    `db:"email"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	ExpiresAt    time.Time `db:"expires_at"`
	Scopes       string    `db:"scopes"` // comma-separated
	IsConnected  bool      `db:"is_connected"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// CredentialRepository persists OAuth credentials.
type CredentialRepository interface {
	GetByUser(ctx context.Context, userID string) (*CredentialEntity, error)
	Create(ctx context.Context, entity *CredentialEntity) error
	Update(ctx context.Context, entity *CredentialEntity) error
	Disconnect(ctx context.Context, id int64) error
}
