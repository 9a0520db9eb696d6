// Package environment defines the provider abstraction that supplies
// environment-specific pieces of the runtime: the app identity, the
// messaging client constructor, and the authentication flow.
package environment

import (
	"context"

	"github.com/couriermsg/courier/internal/auth"
	"github.com/couriermsg/courier/internal/messaging"
)

// Provider supplies the environment-specific collaborators. Implementations
// correspond to deployment targets (demo backend, self-hosted identity
// provider, tests).
type Provider interface {
	// AppID returns the environment's application identity. Empty means the
	// environment is not configured; client construction then yields no
	// client, which downstream components treat as a no-op state.
	AppID() string

	// BuildClient constructs a messaging client for the given options.
	// Returning (nil, nil) is the normal "not configured" outcome. The call
	// may perform I/O and must be safe to invoke from a background
	// goroutine; ctx is cancelled when the creation cycle is superseded.
	BuildClient(ctx context.Context, opts messaging.Options) (messaging.Client, error)

	// BuildFlowProvider constructs the authentication flow for this
	// environment. Called at most once; the result is cached by the auth
	// manager.
	BuildFlowProvider() auth.FlowProvider
}
