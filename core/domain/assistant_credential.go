package domain

import (
	"time"

	"github.com/google/uuid"
)

// Credential is the OAuth token bundle authorizing calendar access for a user.
// It is owned by the credential provider: refreshed in place when expired,
// re-acquired through the consent flow when refresh is impossible.
type Credential struct {
	ID           int64     `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes"`
	IsConnected  bool      `json:"is_connected"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Expired reports whether the access token is past (or within window of) expiry.
func (c *Credential) Expired(window time.Duration) bool {
	return time.Until(c.ExpiresAt) < window
}

// Refreshable reports whether a silent refresh is possible.
func (c *Credential) Refreshable() bool {
	return c.RefreshToken != ""
}
