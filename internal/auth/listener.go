package auth

import (
	"context"
	"log/slog"

	"github.com/couriermsg/courier/internal/messaging"
)

// Manager implements messaging.ChallengeListener. The bootstrapper registers
// it on every freshly constructed client. All methods are invoked from SDK
// goroutines.
var _ messaging.ChallengeListener = (*Manager)(nil)

// OnAuthenticationChallenge answers the SDK's nonce challenge by exchanging
// the cached credentials for an identity token through the flow provider.
func (m *Manager) OnAuthenticationChallenge(client messaging.Client, nonce string) {
	m.mu.Lock()
	creds := m.creds
	m.mu.Unlock()
	if creds == nil {
		m.log.Warn("authentication challenge received with no cached credentials")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), challengeTimeout)
	defer cancel()

	token, err := m.Flow().RespondToChallenge(ctx, *creds, nonce)
	if err != nil {
		m.failAuthentication(err.Error())
		return
	}
	if err := client.AnswerChallenge(token); err != nil {
		m.failAuthentication(err.Error())
	}
}

// OnAuthenticated records the success, persists the credentials, and fires
// the caller callback.
func (m *Manager) OnAuthenticated(client messaging.Client, userID string) {
	m.mu.Lock()
	m.state = StateAuthenticated
	creds := m.creds
	cb := m.callback
	m.mu.Unlock()

	if creds != nil {
		if err := m.Flow().StoreCredentials(*creds); err != nil {
			m.log.Warn("failed to persist credentials", "error", err)
		}
	}
	m.log.Info("authenticated", slog.String("user_id", userID))
	if cb != nil {
		cb.AuthenticationSucceeded(userID)
	}
}

// OnDeauthenticated handles an SDK-initiated session drop. Cached
// credentials are kept so the session can be resumed; explicit
// Deauthenticate calls clear them separately.
func (m *Manager) OnDeauthenticated(client messaging.Client) {
	m.mu.Lock()
	if m.creds != nil {
		m.state = StateCredentialsCached
	} else {
		m.state = StateNoCredentials
	}
	m.mu.Unlock()
	m.log.Info("session dropped by SDK")
}

// OnAuthenticationError forwards the SDK's failure reason to the caller
// callback verbatim.
func (m *Manager) OnAuthenticationError(client messaging.Client, reason string) {
	m.failAuthentication(reason)
}
