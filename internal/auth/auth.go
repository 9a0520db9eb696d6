// Package auth manages authentication state for the Courier runtime: cached
// credentials, the pluggable flow provider that answers SDK challenges, and
// the asynchronous result delivery back to callers.
package auth

import (
	"context"

	"github.com/couriermsg/courier/internal/messaging"
)

// Credentials are the caller-supplied secrets handed to the flow provider.
// The manager owns them once set; they are cleared on deauthentication.
type Credentials struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

// Callback receives the asynchronous outcome of an Authenticate call.
type Callback interface {
	AuthenticationSucceeded(userID string)
	AuthenticationFailed(reason string)
}

// ClientSource resolves the process-wide messaging client, blocking until
// the current creation cycle completes. A nil client with nil error means no
// client could be constructed (no app ID configured), which is a normal
// outcome, not a failure.
type ClientSource interface {
	AwaitClient(ctx context.Context) (messaging.Client, error)
}

// FlowProvider is the environment-specific authentication flow: it exchanges
// credentials and a challenge nonce for an identity token, decides login
// routing, and has custody of persisted credentials.
type FlowProvider interface {
	// RespondToChallenge exchanges credentials plus the SDK's nonce for an
	// identity token.
	RespondToChallenge(ctx context.Context, creds Credentials, nonce string) (string, error)

	// RouteLogin reports whether the caller should present the login flow.
	// client may be nil (construction yielded no client) and appID may be
	// empty; both must still produce a defined answer.
	RouteLogin(client messaging.Client, appID string) bool

	// CachedCredentials loads persisted credentials. (nil, nil) means none
	// are stored.
	CachedCredentials() (*Credentials, error)

	// StoreCredentials persists credentials after a successful
	// authentication.
	StoreCredentials(creds Credentials) error

	// ClearCredentials removes persisted credentials.
	ClearCredentials() error
}

// State is the manager's authentication lifecycle state.
type State int

const (
	StateNoCredentials State = iota
	StateCredentialsCached
	StateAuthenticating
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNoCredentials:
		return "no_credentials"
	case StateCredentialsCached:
		return "credentials_cached"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
