package auth

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"assistant_server/core/domain"
	"assistant_server/core/port/in"
	"assistant_server/core/port/out"
	"assistant_server/pkg/apperr"
	"assistant_server/pkg/logger"
)

const minPasswordLength = 8

// Service handles signup and login with bcrypt password hashes and HS256
// session tokens.
type Service struct {
	users     out.UserRepository
	jwtSecret []byte
	tokenTTL  time.Duration
	log       *logger.Logger
}

// NewService builds the auth service.
func NewService(users out.UserRepository, jwtSecret string, tokenTTL time.Duration) *Service {
	return &Service{
		users:     users,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		log:       logger.Default().WithField("component", "auth"),
	}
}

var _ in.AuthService = (*Service)(nil)

// Signup registers a new account and returns it with a session token.
func (s *Service) Signup(ctx context.Context, req *in.SignupRequest) (*in.AuthResult, error) {
	if err := validateSignup(req); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByUsername(ctx, req.Username); err == nil {
		return nil, apperr.AlreadyExists("username")
	} else if !apperr.IsCode(err, apperr.CodeNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.InternalWithError("failed to hash password", err)
	}

	now := time.Now()
	entity := &out.UserEntity{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, entity); err != nil {
		return nil, err
	}

	s.log.WithField("username", entity.Username).Info("user registered")
	return s.result(entity)
}

// Login authenticates an account and returns it with a session token.
func (s *Service) Login(ctx context.Context, req *in.LoginRequest) (*in.AuthResult, error) {
	if req.Username == "" || req.Password == "" {
		return nil, apperr.ValidationError("username and password are required")
	}

	entity, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return nil, apperr.Unauthorized("invalid username or password")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(entity.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperr.Unauthorized("invalid username or password")
	}

	return s.result(entity)
}

func (s *Service) result(entity *out.UserEntity) (*in.AuthResult, error) {
	token, err := s.signToken(entity)
	if err != nil {
		return nil, apperr.InternalWithError("failed to sign token", err)
	}
	return &in.AuthResult{User: toUser(entity), Token: token}, nil
}

func (s *Service) signToken(entity *out.UserEntity) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      entity.ID,
		"username": entity.Username,
		"iat":      now.Unix(),
		"exp":      now.Add(s.tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func toUser(entity *out.UserEntity) *domain.User {
	id, _ := uuid.Parse(entity.ID)
	return &domain.User{
		ID:        id,
		Username:  entity.Username,
		Email:     entity.Email,
		CreatedAt: entity.CreatedAt,
		UpdatedAt: entity.UpdatedAt,
	}
}

func validateSignup(req *in.SignupRequest) error {
	if req.Username == "" {
		return apperr.MissingField("username")
	}
	if req.Email == "" {
		return apperr.MissingField("email")
	}
	if !strings.Contains(req.Email, "@") {
		return apperr.ValidationError("email is not valid")
	}
	if len(req.Password) < minPasswordLength {
		return apperr.ValidationError("password must be at least 8 characters")
	}
	return nil
}
