// Package demo is the environment provider for the hosted demo backend:
// Discord as the messaging transport plus a configurable identity flow.
package demo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couriermsg/courier/internal/auth"
	"github.com/couriermsg/courier/internal/config"
	"github.com/couriermsg/courier/internal/credstore"
	"github.com/couriermsg/courier/internal/environment"
	"github.com/couriermsg/courier/internal/identity"
	"github.com/couriermsg/courier/internal/messaging"
	"github.com/couriermsg/courier/internal/messaging/discord"
)

// Provider implements environment.Provider from the loaded configuration.
type Provider struct {
	cfg *config.Config
	log *slog.Logger
}

var _ environment.Provider = (*Provider)(nil)

// New creates a Provider.
func New(cfg *config.Config, log *slog.Logger) *Provider {
	return &Provider{cfg: cfg, log: log}
}

// AppID implements environment.Provider.
func (p *Provider) AppID() string {
	return p.cfg.Environment.AppID
}

// BuildClient implements environment.Provider. Without an app ID there is
// no environment to connect to; that yields no client, not an error.
func (p *Provider) BuildClient(ctx context.Context, opts messaging.Options) (messaging.Client, error) {
	if p.cfg.Environment.AppID == "" {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("client construction superseded: %w", err)
	}
	client, err := discord.New(discord.Config{
		Token:  p.cfg.Messaging.Token,
		Logger: p.log,
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build messaging client: %w", err)
	}
	return client, nil
}

// BuildFlowProvider implements environment.Provider.
func (p *Provider) BuildFlowProvider() auth.FlowProvider {
	store := credstore.New(p.cfg.Credentials.File, []byte(p.cfg.Credentials.Secret))
	if p.cfg.Environment.Provider == "oauth2" {
		return identity.NewOAuth2Provider(identity.OAuth2Settings{
			TokenURL:     p.cfg.Environment.OAuth2.TokenURL,
			ClientID:     p.cfg.Environment.OAuth2.ClientID,
			ClientSecret: p.cfg.Environment.OAuth2.ClientSecret,
			Scopes:       p.cfg.Environment.OAuth2.Scopes,
		}, store, p.log)
	}
	return identity.NewHTTPProvider(
		p.cfg.Environment.ProviderURL,
		p.cfg.Environment.AppID,
		store,
		p.log,
	)
}
