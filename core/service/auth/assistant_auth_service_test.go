package auth

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"assistant_server/core/port/in"
	"assistant_server/core/port/out"
	"assistant_server/pkg/apperr"
)

type fakeUserRepo struct {
	byUsername map[string]*out.UserEntity
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byUsername: make(map[string]*out.UserEntity)}
}

func (f *fakeUserRepo) Create(ctx context.Context, entity *out.UserEntity) error {
	if _, ok := f.byUsername[entity.Username]; ok {
		return apperr.AlreadyExists("user")
	}
	f.byUsername[entity.Username] = entity
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*out.UserEntity, error) {
	for _, entity := range f.byUsername {
		if entity.ID == id {
			return entity, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*out.UserEntity, error) {
	entity, ok := f.byUsername[username]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return entity, nil
}

func newTestAuthService() (*Service, *fakeUserRepo) {
	repo := newFakeUserRepo()
	return NewService(repo, "test-secret", 24*time.Hour), repo
}

func TestSignupCreatesUserWithHashedPassword(t *testing.T) {
	svc, repo := newTestAuthService()

	result, err := svc.Signup(context.Background(), &in.SignupRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if result.Token == "" {
		t.Error("signup should return a session token")
	}
	if result.User.Username != "alice" {
		t.Errorf("user = %+v", result.User)
	}

	stored := repo.byUsername["alice"]
	if stored.PasswordHash == "correct-horse" {
		t.Error("password must not be stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("correct-horse")); err != nil {
		t.Error("stored hash does not match the password")
	}
}

func TestSignupDuplicateUsername(t *testing.T) {
	svc, _ := newTestAuthService()
	req := &in.SignupRequest{Username: "alice", Email: "a@example.com", Password: "correct-horse"}

	if _, err := svc.Signup(context.Background(), req); err != nil {
		t.Fatalf("first signup failed: %v", err)
	}
	_, err := svc.Signup(context.Background(), req)
	if !apperr.IsCode(err, apperr.CodeAlreadyExists) {
		t.Errorf("error = %v, want %s", err, apperr.CodeAlreadyExists)
	}
}

func TestSignupValidation(t *testing.T) {
	svc, _ := newTestAuthService()

	cases := []in.SignupRequest{
		{Email: "a@example.com", Password: "correct-horse"},
		{Username: "alice", Password: "correct-horse"},
		{Username: "alice", Email: "not-an-email", Password: "correct-horse"},
		{Username: "alice", Email: "a@example.com", Password: "short"},
	}
	for i, req := range cases {
		if _, err := svc.Signup(context.Background(), &req); err == nil {
			t.Errorf("case %d: expected a validation error", i)
		}
	}
}

func TestLogin(t *testing.T) {
	svc, _ := newTestAuthService()
	if _, err := svc.Signup(context.Background(), &in.SignupRequest{
		Username: "alice", Email: "a@example.com", Password: "correct-horse",
	}); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	result, err := svc.Login(context.Background(), &in.LoginRequest{Username: "alice", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if result.Token == "" {
		t.Error("login should return a session token")
	}

	if _, err := svc.Login(context.Background(), &in.LoginRequest{Username: "alice", Password: "wrong"}); !apperr.IsCode(err, apperr.CodeUnauthorized) {
		t.Errorf("wrong password: error = %v, want %s", err, apperr.CodeUnauthorized)
	}
	if _, err := svc.Login(context.Background(), &in.LoginRequest{Username: "bob", Password: "whatever"}); !apperr.IsCode(err, apperr.CodeUnauthorized) {
		t.Errorf("unknown user: error = %v, want %s", err, apperr.CodeUnauthorized)
	}
}
