package auth

import (
	"context"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"assistant_server/core/domain"
	"assistant_server/core/port/out"
	"assistant_server/pkg/apperr"
	"assistant_server/pkg/logger"
)

const (
	userinfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	// Tokens this close to expiry are refreshed up front instead of failing
	// mid-call.
	refreshWindow = 5 * time.Minute
)

// StateStore holds short-lived OAuth state values keyed to the user who
// started the consent flow.
type StateStore interface {
	Save(ctx context.Context, state, userID string) error
	Consume(ctx context.Context, state string) (string, bool, error)
}

// CredentialProvider acquires valid backend tokens for users: persisted and
// valid means return as-is, expired with a refresh token means refresh and
// persist, anything else means the user must go through consent again.
type CredentialProvider struct {
	oauth      *oauth2.Config
	repo       out.CredentialRepository
	states     StateStore
	consentURL string
	log        *logger.Logger

	// refreshFn exchanges an expired token for a fresh one.
	refreshFn func(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)
}

// NewCredentialProvider builds a provider. consentURL is where clients are
// pointed when a new consent flow is required.
func NewCredentialProvider(oauthConfig *oauth2.Config, repo out.CredentialRepository, states StateStore, consentURL string) *CredentialProvider {
	p := &CredentialProvider{
		oauth:      oauthConfig,
		repo:       repo,
		states:     states,
		consentURL: consentURL,
		log:        logger.Default().WithField("component", "credentials"),
	}
	p.refreshFn = func(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
		return p.oauth.TokenSource(ctx, token).Token()
	}
	return p
}

// AuthURL starts a consent flow for the user and returns the URL to send
// them to.
func (p *CredentialProvider) AuthURL(ctx context.Context, userID uuid.UUID) (string, error) {
	state := uuid.New().String()
	if err := p.states.Save(ctx, state, userID.String()); err != nil {
		return "", apperr.InternalWithError("failed to store oauth state", err)
	}
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// HandleCallback completes a consent flow: it validates the state, exchanges
// the code and persists the resulting token record.
func (p *CredentialProvider) HandleCallback(ctx context.Context, state, code string) error {
	userID, ok, err := p.states.Consume(ctx, state)
	if err != nil {
		return apperr.InternalWithError("failed to look up oauth state", err)
	}
	if !ok {
		return apperr.AuthError("unknown or expired oauth state", nil)
	}
	if code == "" {
		return apperr.AuthError("consent was declined", nil)
	}

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return apperr.AuthError("failed to exchange authorization code", err)
	}

	email, err := p.fetchEmail(ctx, token)
	if err != nil {
		p.log.WithError(err).Warn("could not fetch account email")
	}

	return p.persist(ctx, userID, email, token)
}

// Acquire returns a valid token for the user, refreshing if needed. A
// missing, disconnected or unrefreshable credential yields an auth error
// carrying the consent URL.
func (p *CredentialProvider) Acquire(ctx context.Context, userID uuid.UUID) (*oauth2.Token, error) {
	entity, err := p.repo.GetByUser(ctx, userID.String())
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return nil, apperr.ConsentRequired(p.consentURL)
		}
		return nil, err
	}
	cred := toCredential(entity)
	if !cred.IsConnected {
		return nil, apperr.ConsentRequired(p.consentURL)
	}

	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.ExpiresAt,
	}
	if !cred.Expired(refreshWindow) {
		return token, nil
	}
	if !cred.Refreshable() {
		return nil, apperr.ConsentRequired(p.consentURL)
	}

	refreshed, err := p.refreshFn(ctx, token)
	if err != nil {
		if isTokenRevokedError(err) {
			if discErr := p.repo.Disconnect(ctx, entity.ID); discErr != nil {
				p.log.WithError(discErr).Warn("failed to mark credential disconnected")
			}
			return nil, apperr.ConsentRequired(p.consentURL)
		}
		return nil, apperr.AuthError("token refresh failed", err)
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = token.RefreshToken
	}

	entity.AccessToken = refreshed.AccessToken
	entity.RefreshToken = refreshed.RefreshToken
	entity.ExpiresAt = refreshed.Expiry
	entity.UpdatedAt = time.Now()
	if err := p.repo.Update(ctx, entity); err != nil {
		p.log.WithError(err).Warn("failed to persist refreshed token")
	}
	return refreshed, nil
}

func (p *CredentialProvider) persist(ctx context.Context, userID, email string, token *oauth2.Token) error {
	now := time.Now()
	scopes := strings.Join(p.oauth.Scopes, ",")

	existing, err := p.repo.GetByUser(ctx, userID)
	if err != nil && !apperr.IsCode(err, apperr.CodeNotFound) {
		return err
	}
	if existing != nil {
		existing.Email = email
		existing.AccessToken = token.AccessToken
		if token.RefreshToken != "" {
			existing.RefreshToken = token.RefreshToken
		}
		existing.ExpiresAt = token.Expiry
		existing.Scopes = scopes
		existing.IsConnected = true
		existing.UpdatedAt = now
		return p.repo.Update(ctx, existing)
	}

	return p.repo.Create(ctx, &out.CredentialEntity{
		UserID:       userID,
		Email:        email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		Scopes:       scopes,
		IsConnected:  true,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (p *CredentialProvider) fetchEmail(ctx context.Context, token *oauth2.Token) (string, error) {
	client := p.oauth.Client(ctx, token)
	resp, err := client.Get(userinfoURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	return info.Email, nil
}

// toCredential maps a stored row onto the domain type driving refresh
// decisions.
func toCredential(entity *out.CredentialEntity) *domain.Credential {
	userID, _ := uuid.Parse(entity.UserID)
	var scopes []string
	if entity.Scopes != "" {
		scopes = strings.Split(entity.Scopes, ",")
	}
	return &domain.Credential{
		ID:           entity.ID,
		UserID:       userID,
		Email:        entity.Email,
		AccessToken:  entity.AccessToken,
		RefreshToken: entity.RefreshToken,
		ExpiresAt:    entity.ExpiresAt,
		Scopes:       scopes,
		IsConnected:  entity.IsConnected,
		CreatedAt:    entity.CreatedAt,
		UpdatedAt:    entity.UpdatedAt,
	}
}

// isTokenRevokedError matches the backend responses that mean the refresh
// token is no longer usable.
func isTokenRevokedError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "invalid_client") ||
		strings.Contains(msg, "Token has been expired or revoked")
}
