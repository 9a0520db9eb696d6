package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/couriermsg/courier/internal/messaging"
	"github.com/couriermsg/courier/internal/pkg/idgen"
)

// challengeTimeout bounds the identity-token exchange kicked off by an SDK
// challenge, which runs on an SDK goroutine with no caller context.
const challengeTimeout = 30 * time.Second

// Manager coordinates authentication against the messaging client. It is
// registered as the client's challenge listener during bootstrap and is safe
// for concurrent use.
//
// Authenticate and Deauthenticate are silent no-ops when the client is
// unavailable or no app ID is configured: configuration problems surface as
// "client absent", never as authentication failures. Callers that need to
// distinguish should consult RouteLogin first.
type Manager struct {
	clients ClientSource
	appID   func() string
	newFlow func() FlowProvider
	log     *slog.Logger

	flowOnce sync.Once
	flow     FlowProvider

	mu       sync.Mutex
	state    State
	creds    *Credentials
	callback Callback
}

// NewManager creates a Manager. newFlow is invoked at most once, on first
// use, so environment providers can defer flow construction.
func NewManager(clients ClientSource, appID func() string, newFlow func() FlowProvider, log *slog.Logger) *Manager {
	return &Manager{
		clients: clients,
		appID:   appID,
		newFlow: newFlow,
		log:     log,
		state:   StateNoCredentials,
	}
}

// Flow returns the lazily-constructed flow provider.
func (m *Manager) Flow() FlowProvider {
	m.flowOnce.Do(func() {
		m.flow = m.newFlow()
	})
	return m.flow
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// HasCredentials reports whether credentials are cached, in flight, or
// authenticated.
func (m *Manager) HasCredentials() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateCredentialsCached, StateAuthenticating, StateAuthenticated:
		return true
	}
	return false
}

// Authenticate stores the credentials and callback and asks the client to
// begin its challenge/response protocol. The outcome is delivered through cb
// asynchronously. When the client cannot be resolved or no app ID is
// configured the call is a no-op and cb is never invoked.
func (m *Manager) Authenticate(ctx context.Context, creds Credentials, cb Callback) {
	client, err := m.clients.AwaitClient(ctx)
	if err != nil {
		m.log.Debug("authenticate skipped, client unavailable", "error", err)
		return
	}
	if client == nil {
		m.log.Debug("authenticate skipped, no client constructed")
		return
	}
	if m.appID() == "" {
		m.log.Debug("authenticate skipped, no app id configured")
		return
	}

	attempt := idgen.GenerateID()
	m.mu.Lock()
	c := creds
	m.creds = &c
	m.callback = cb
	m.state = StateAuthenticating
	m.mu.Unlock()

	m.log.Info("authentication attempt started",
		slog.String("attempt_id", attempt),
		slog.String("username", creds.Username),
	)

	if err := client.Authenticate(); err != nil {
		m.failAuthentication(err.Error())
	}
}

// Deauthenticate asks the client to drop its session. On success cached
// credentials are cleared (in memory and in the flow provider's store) and
// cb receives success; on failure cb receives the reason verbatim and
// credentials are left untouched so a retry can reuse them.
func (m *Manager) Deauthenticate(ctx context.Context, cb messaging.DeauthenticationCallback) {
	client, err := m.clients.AwaitClient(ctx)
	if err != nil {
		m.log.Debug("deauthenticate skipped, client unavailable", "error", err)
		return
	}
	if client == nil {
		m.log.Debug("deauthenticate skipped, no client constructed")
		return
	}
	client.Deauthenticate(ctx, &deauthForwarder{manager: m, caller: cb})
}

// deauthForwarder clears manager state on success before forwarding the
// outcome to the caller's callback.
type deauthForwarder struct {
	manager *Manager
	caller  messaging.DeauthenticationCallback
}

func (f *deauthForwarder) DeauthenticationSucceeded(client messaging.Client) {
	m := f.manager
	m.mu.Lock()
	m.creds = nil
	m.state = StateNoCredentials
	m.mu.Unlock()
	if err := m.Flow().ClearCredentials(); err != nil {
		m.log.Warn("failed to clear stored credentials", "error", err)
	}
	m.log.Info("deauthenticated")
	f.caller.DeauthenticationSucceeded(client)
}

func (f *deauthForwarder) DeauthenticationFailed(client messaging.Client, reason string) {
	f.manager.log.Warn("deauthentication failed", slog.String("reason", reason))
	f.caller.DeauthenticationFailed(client, reason)
}

// RouteLogin decides whether the caller should be redirected to the login
// flow. It never blocks longer than ctx allows; the decision consults the
// current state, the app ID, and the flow provider.
func (m *Manager) RouteLogin(ctx context.Context) (bool, error) {
	client, err := m.clients.AwaitClient(ctx)
	if err != nil {
		return false, err
	}
	m.mu.Lock()
	authenticated := m.state == StateAuthenticated
	m.mu.Unlock()
	if authenticated {
		return false, nil
	}
	return m.Flow().RouteLogin(client, m.appID()), nil
}

// ResumeSession restarts authentication with credentials persisted by a
// previous run. Called by the bootstrapper right after client construction;
// a missing credential store entry is not an error.
func (m *Manager) ResumeSession(client messaging.Client) {
	creds, err := m.Flow().CachedCredentials()
	if err != nil {
		m.log.Debug("no resumable session", "error", err)
		return
	}
	if creds == nil {
		return
	}
	m.mu.Lock()
	m.creds = creds
	m.state = StateCredentialsCached
	m.mu.Unlock()
	m.log.Info("resuming session with cached credentials",
		slog.String("username", creds.Username))
	if err := client.Authenticate(); err != nil {
		m.log.Warn("session resume failed", "error", err)
	}
}

// failAuthentication records a failed attempt and fires the caller callback
// if one is registered.
func (m *Manager) failAuthentication(reason string) {
	m.mu.Lock()
	m.state = StateFailed
	cb := m.callback
	m.mu.Unlock()
	m.log.Warn("authentication failed", slog.String("reason", reason))
	if cb != nil {
		cb.AuthenticationFailed(reason)
	}
}
