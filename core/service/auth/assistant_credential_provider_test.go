package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"assistant_server/core/port/out"
	"assistant_server/pkg/apperr"
)

type fakeCredentialRepo struct {
	entity  *out.CredentialEntity
	updates int
}

func (f *fakeCredentialRepo) GetByUser(ctx context.Context, userID string) (*out.CredentialEntity, error) {
	if f.entity == nil || f.entity.UserID != userID {
		return nil, apperr.NotFound("credential")
	}
	copied := *f.entity
	return &copied, nil
}

func (f *fakeCredentialRepo) Create(ctx context.Context, entity *out.CredentialEntity) error {
	entity.ID = 1
	f.entity = entity
	return nil
}

func (f *fakeCredentialRepo) Update(ctx context.Context, entity *out.CredentialEntity) error {
	f.updates++
	f.entity = entity
	return nil
}

func (f *fakeCredentialRepo) Disconnect(ctx context.Context, id int64) error {
	if f.entity != nil && f.entity.ID == id {
		f.entity.IsConnected = false
	}
	return nil
}

func newTestProvider(repo *fakeCredentialRepo) *CredentialProvider {
	oauthConfig := &oauth2.Config{ClientID: "id", ClientSecret: "secret"}
	return NewCredentialProvider(oauthConfig, repo, nil, "/oauth/google/url")
}

func storedCredential(userID uuid.UUID, expiresAt time.Time, refreshToken string) *out.CredentialEntity {
	return &out.CredentialEntity{
		ID:           1,
		UserID:       userID.String(),
		AccessToken:  "access-old",
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		IsConnected:  true,
	}
}

func TestAcquireReturnsValidTokenWithoutRefresh(t *testing.T) {
	userID := uuid.New()
	repo := &fakeCredentialRepo{entity: storedCredential(userID, time.Now().Add(time.Hour), "refresh")}
	p := newTestProvider(repo)

	refreshCalls := 0
	p.refreshFn = func(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
		refreshCalls++
		return token, nil
	}

	token, err := p.Acquire(context.Background(), userID)
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if token.AccessToken != "access-old" {
		t.Errorf("access token = %q", token.AccessToken)
	}
	if refreshCalls != 0 {
		t.Errorf("refresh called %d times for a valid token, want 0", refreshCalls)
	}
}

func TestAcquireRefreshesExpiredTokenWithoutConsent(t *testing.T) {
	userID := uuid.New()
	repo := &fakeCredentialRepo{entity: storedCredential(userID, time.Now().Add(-time.Hour), "refresh")}
	p := newTestProvider(repo)

	refreshCalls := 0
	p.refreshFn = func(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
		refreshCalls++
		return &oauth2.Token{
			AccessToken: "access-new",
			Expiry:      time.Now().Add(time.Hour),
		}, nil
	}

	token, err := p.Acquire(context.Background(), userID)
	if err != nil {
		t.Fatalf("an expired credential with a refresh token must refresh, got: %v", err)
	}
	if token.AccessToken != "access-new" {
		t.Errorf("access token = %q, want access-new", token.AccessToken)
	}
	if token.RefreshToken != "refresh" {
		t.Errorf("refresh token should be carried over, got %q", token.RefreshToken)
	}
	if refreshCalls != 1 {
		t.Errorf("refresh called %d times, want 1", refreshCalls)
	}
	if repo.updates != 1 {
		t.Errorf("refreshed token persisted %d times, want 1", repo.updates)
	}
	if repo.entity.AccessToken != "access-new" {
		t.Errorf("persisted access token = %q", repo.entity.AccessToken)
	}
}

func TestAcquireExpiredWithoutRefreshTokenRequiresConsent(t *testing.T) {
	userID := uuid.New()
	repo := &fakeCredentialRepo{entity: storedCredential(userID, time.Now().Add(-time.Hour), "")}
	p := newTestProvider(repo)

	refreshCalls := 0
	p.refreshFn = func(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
		refreshCalls++
		return token, nil
	}

	_, err := p.Acquire(context.Background(), userID)
	if err == nil {
		t.Fatal("expected a consent error")
	}
	if !apperr.IsCode(err, apperr.CodeAuthError) {
		t.Errorf("error code = %v, want %s", err, apperr.CodeAuthError)
	}
	if refreshCalls != 0 {
		t.Errorf("refresh called %d times without a refresh token, want 0", refreshCalls)
	}
}

func TestAcquireMissingCredentialRequiresConsent(t *testing.T) {
	p := newTestProvider(&fakeCredentialRepo{})

	_, err := p.Acquire(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected a consent error")
	}
	appErr := apperr.AsAppError(err)
	if appErr.Code != apperr.CodeAuthError {
		t.Errorf("error code = %s, want %s", appErr.Code, apperr.CodeAuthError)
	}
	if appErr.Details["consent_url"] != "/oauth/google/url" {
		t.Errorf("consent_url = %v", appErr.Details["consent_url"])
	}
}

func TestAcquireRevokedRefreshTokenRequiresConsent(t *testing.T) {
	userID := uuid.New()
	repo := &fakeCredentialRepo{entity: storedCredential(userID, time.Now().Add(-time.Hour), "refresh")}
	p := newTestProvider(repo)

	p.refreshFn = func(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
		return nil, errors.New(`oauth2: "invalid_grant" token revoked`)
	}

	_, err := p.Acquire(context.Background(), userID)
	if err == nil {
		t.Fatal("expected a consent error")
	}
	if !apperr.IsCode(err, apperr.CodeAuthError) {
		t.Errorf("error = %v, want code %s", err, apperr.CodeAuthError)
	}
	if repo.entity.IsConnected {
		t.Error("revoked credential should be marked disconnected")
	}
}

func TestAcquireDisconnectedCredentialRequiresConsent(t *testing.T) {
	userID := uuid.New()
	entity := storedCredential(userID, time.Now().Add(time.Hour), "refresh")
	entity.IsConnected = false
	p := newTestProvider(&fakeCredentialRepo{entity: entity})

	if _, err := p.Acquire(context.Background(), userID); err == nil {
		t.Fatal("expected a consent error for a disconnected credential")
	}
}
