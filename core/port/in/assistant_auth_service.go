package in

import (
	"context"

	"assistant_server/core/domain"
)

// SignupRequest registers a new account.
type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest authenticates an existing account.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResult carries the authenticated user and a signed session token.
type AuthResult struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

// AuthService handles account registration and login.
type AuthService interface {
	Signup(ctx context.Context, req *SignupRequest) (*AuthResult, error)
	Login(ctx context.Context, req *LoginRequest) (*AuthResult, error)
}
