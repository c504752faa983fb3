// Package oauth manages per-provider OAuth credential lifecycles so
// every outbound remote call is made with a valid access token.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/plannerhq/schedsync/internal/domain"
	"github.com/plannerhq/schedsync/internal/observability"
)

// CredentialStore persists tokens per (user, provider).
type CredentialStore interface {
	Get(ctx context.Context, userID string, p domain.Provider) (*domain.Credential, error)
	Set(ctx context.Context, cred domain.Credential) error
	Delete(ctx context.Context, userID string, p domain.Provider) (bool, error)
}

// fallbackTokenTTL is assumed when a provider omits the expiry.
const fallbackTokenTTL = time.Hour

// Manager implements the token lifecycle for one provider.
type Manager struct {
	provider domain.Provider
	config   *oauth2.Config
	store    CredentialStore
	now      func() time.Time
}

// NewManager constructs a Manager over an OAuth application config.
func NewManager(p domain.Provider, config *oauth2.Config, store CredentialStore) *Manager {
	return &Manager{
		provider: p,
		config:   config,
		store:    store,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Provider reports which provider this manager serves.
func (m *Manager) Provider() domain.Provider { return m.provider }

// AuthorizationURL builds the provider consent URL. The user id rides
// along as opaque state and comes back on the callback. No side effects.
func (m *Manager) AuthorizationURL(userID string) string {
	return m.config.AuthCodeURL(userID, oauth2.AccessTypeOffline)
}

// CompleteAuthorization exchanges the authorization code and persists
// the resulting credential. Fails if the provider rejects the code or
// returns no access token.
func (m *Manager) CompleteAuthorization(ctx context.Context, code, userID string) error {
	token, err := m.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	if token.AccessToken == "" {
		return errors.New("authorization response missing access token")
	}

	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = m.now().Add(fallbackTokenTTL)
	}

	return m.store.Set(ctx, domain.Credential{
		UserID:       userID,
		Provider:     m.provider,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       expiry.UTC(),
		Status:       domain.CredentialValid,
	})
}

// ValidToken returns an access token guaranteed valid for immediate
// use. The happy path makes no network call; an expired token triggers
// exactly one refresh attempt. A credential already flagged as needing
// reauthorization short-circuits without another refresh.
func (m *Manager) ValidToken(ctx context.Context, userID string) (string, error) {
	cred, err := m.store.Get(ctx, userID, m.provider)
	if err != nil {
		return "", err
	}
	if cred == nil || cred.AccessToken == "" {
		return "", domain.ErrNotConnected
	}
	if cred.Status == domain.CredentialReauthRequired {
		return "", domain.ErrReauthRequired
	}
	if cred.Expired(m.now()) {
		return m.refresh(ctx, *cred)
	}
	return cred.AccessToken, nil
}

// Refresh forces one refresh-grant round trip for the stored credential.
func (m *Manager) Refresh(ctx context.Context, userID string) (string, error) {
	cred, err := m.store.Get(ctx, userID, m.provider)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", domain.ErrNotConnected
	}
	return m.refresh(ctx, *cred)
}

func (m *Manager) refresh(ctx context.Context, cred domain.Credential) (string, error) {
	observability.RecordTokenRefreshAttempt(string(m.provider))

	if cred.RefreshToken == "" {
		return "", m.markReauthRequired(ctx, cred)
	}

	// A token with only the refresh token set forces the refresh grant.
	source := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken})
	token, err := source.Token()
	if err != nil || token.AccessToken == "" {
		observability.RecordTokenRefreshFailure(string(m.provider))
		return "", m.markReauthRequired(ctx, cred)
	}

	cred.AccessToken = token.AccessToken
	cred.Expiry = token.Expiry.UTC()
	if token.Expiry.IsZero() {
		cred.Expiry = m.now().Add(fallbackTokenTTL)
	}
	// Providers rotate refresh tokens at their discretion; keep the old
	// one unless a replacement was issued.
	if token.RefreshToken != "" {
		cred.RefreshToken = token.RefreshToken
	}
	cred.Status = domain.CredentialValid

	if err := m.store.Set(ctx, cred); err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// markReauthRequired flags the credential without touching its tokens,
// then surfaces the terminal condition. Refresh-token invalidation is
// permanent until the user reauthorizes, so no retry happens here.
func (m *Manager) markReauthRequired(ctx context.Context, cred domain.Credential) error {
	cred.Status = domain.CredentialReauthRequired
	if err := m.store.Set(ctx, cred); err != nil {
		return err
	}
	return domain.ErrReauthRequired
}

// Disconnect removes the credential record entirely.
func (m *Manager) Disconnect(ctx context.Context, userID string) error {
	_, err := m.store.Delete(ctx, userID, m.provider)
	return err
}

// ConnectionStatus summarizes a user's credential state for the API.
type ConnectionStatus struct {
	Connected    bool      `json:"connected"`
	ReauthNeeded bool      `json:"reauth_required"`
	TokenExpiry  time.Time `json:"token_expiry,omitempty"`
	TokenExpired bool      `json:"token_expired,omitempty"`
	RefreshedAt  time.Time `json:"refreshed_at,omitempty"`
}

// Status reports the connection state without making remote calls.
func (m *Manager) Status(ctx context.Context, userID string) (ConnectionStatus, error) {
	cred, err := m.store.Get(ctx, userID, m.provider)
	if err != nil {
		return ConnectionStatus{}, err
	}
	if cred == nil || cred.AccessToken == "" {
		return ConnectionStatus{}, nil
	}
	return ConnectionStatus{
		Connected:    true,
		ReauthNeeded: cred.Status == domain.CredentialReauthRequired,
		TokenExpiry:  cred.Expiry,
		TokenExpired: cred.Expired(m.now()),
		RefreshedAt:  cred.UpdatedAt,
	}, nil
}
