package identity

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/couriermsg/courier/internal/auth"
	"github.com/couriermsg/courier/internal/credstore"
	"github.com/couriermsg/courier/internal/messaging"
)

// OAuth2Provider obtains identity tokens through an OAuth2 password grant.
// Environments whose identity provider is a standard OAuth2 server (rather
// than the bespoke HTTP service HTTPProvider targets) use this flow.
type OAuth2Provider struct {
	config *oauth2.Config
	store  *credstore.Store
	log    *slog.Logger
}

// OAuth2Settings configures an OAuth2Provider.
type OAuth2Settings struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// NewOAuth2Provider creates a provider for the given OAuth2 endpoint.
func NewOAuth2Provider(settings OAuth2Settings, store *credstore.Store, log *slog.Logger) *OAuth2Provider {
	return &OAuth2Provider{
		config: &oauth2.Config{
			ClientID:     settings.ClientID,
			ClientSecret: settings.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: settings.TokenURL},
			Scopes:       settings.Scopes,
		},
		store: store,
		log:   log,
	}
}

// RespondToChallenge implements auth.FlowProvider. The nonce is logged for
// correlation; password-grant servers bind the token to the client, not to
// the SDK's nonce.
func (p *OAuth2Provider) RespondToChallenge(ctx context.Context, creds auth.Credentials, nonce string) (string, error) {
	p.log.Debug("exchanging credentials for oauth2 token", slog.String("nonce", nonce))
	token, err := p.config.PasswordCredentialsToken(ctx, creds.Username, creds.Secret)
	if err != nil {
		return "", fmt.Errorf("oauth2 token exchange: %w", err)
	}
	if token.AccessToken == "" {
		return "", ErrNoToken
	}
	return token.AccessToken, nil
}

// RouteLogin implements auth.FlowProvider.
func (p *OAuth2Provider) RouteLogin(client messaging.Client, appID string) bool {
	if client == nil || appID == "" {
		return true
	}
	creds, err := p.store.Load()
	if err != nil {
		return true
	}
	return creds == nil
}

// CachedCredentials implements auth.FlowProvider.
func (p *OAuth2Provider) CachedCredentials() (*auth.Credentials, error) {
	return p.store.Load()
}

// StoreCredentials implements auth.FlowProvider.
func (p *OAuth2Provider) StoreCredentials(creds auth.Credentials) error {
	return p.store.Save(creds)
}

// ClearCredentials implements auth.FlowProvider.
func (p *OAuth2Provider) ClearCredentials() error {
	return p.store.Clear()
}
