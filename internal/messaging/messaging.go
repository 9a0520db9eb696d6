// Package messaging defines the contract between the Courier runtime and a
// messaging SDK backend. The runtime never talks to a concrete SDK directly;
// it constructs a Client through an environment provider and drives it
// through this interface.
package messaging

import (
	"context"
	"io"
)

// HistoricSyncPolicy controls how much conversation history the client
// fetches when it first authenticates.
type HistoricSyncPolicy string

const (
	// SyncFromLastMessage fetches the minimum amount per conversation.
	SyncFromLastMessage HistoricSyncPolicy = "from_last_message"

	// SyncAllHistory fetches full conversation history.
	SyncAllHistory HistoricSyncPolicy = "all_history"
)

// Content type identifiers auto-downloaded by default: plain text plus the
// info and preview parts of three-part images. Full-size image parts are
// fetched on demand by the image pipeline.
const (
	ContentTypeText         = "text/plain"
	ContentTypeImageInfo    = "application/json+imageSize"
	ContentTypeImagePreview = "image/jpeg+preview"
)

// Options is the configuration value handed to client construction. It is a
// pure value: assembling it has no side effects.
type Options struct {
	HistoricSyncPolicy       HistoricSyncPolicy
	AutoDownloadContentTypes []string
}

// DefaultOptions returns the options Courier uses unless overridden by
// configuration.
func DefaultOptions() Options {
	return Options{
		HistoricSyncPolicy: SyncFromLastMessage,
		AutoDownloadContentTypes: []string{
			ContentTypeText,
			ContentTypeImageInfo,
			ContentTypeImagePreview,
		},
	}
}

// AutoDownloads reports whether content of the given type should be
// downloaded eagerly.
func (o Options) AutoDownloads(contentType string) bool {
	for _, ct := range o.AutoDownloadContentTypes {
		if ct == contentType {
			return true
		}
	}
	return false
}

// ChallengeListener receives asynchronous authentication events from the
// SDK. The SDK invokes all methods from its own goroutines; implementations
// must be safe for concurrent use.
type ChallengeListener interface {
	// OnAuthenticationChallenge is invoked when the SDK needs an identity
	// token. The listener responds by calling Client.AnswerChallenge with a
	// token obtained for the given nonce.
	OnAuthenticationChallenge(client Client, nonce string)

	// OnAuthenticated is invoked after a challenge answer was accepted.
	OnAuthenticated(client Client, userID string)

	// OnDeauthenticated is invoked after the session was dropped.
	OnDeauthenticated(client Client)

	// OnAuthenticationError is invoked when an authentication attempt
	// failed. The reason is SDK-specific and forwarded to callers verbatim.
	OnAuthenticationError(client Client, reason string)
}

// DeauthenticationCallback receives the result of a Deauthenticate request.
type DeauthenticationCallback interface {
	DeauthenticationSucceeded(client Client)
	DeauthenticationFailed(client Client, reason string)
}

// Client is an opaque handle to a messaging SDK connection. It is created by
// an environment provider, published process-wide by the runtime, and
// treated as immutable-by-reference after publication. Connection and
// authentication state are owned by the SDK.
type Client interface {
	// Authenticate begins the SDK's challenge/response protocol. The result
	// arrives asynchronously through the registered ChallengeListener, never
	// as a return value.
	Authenticate() error

	// AnswerChallenge completes a pending challenge with an identity token.
	AnswerChallenge(identityToken string) error

	// Deauthenticate drops the SDK session and reports the outcome through
	// the callback.
	Deauthenticate(ctx context.Context, cb DeauthenticationCallback)

	// RegisterChallengeListener installs the listener that receives
	// authentication events. Must be called before Authenticate.
	RegisterChallengeListener(l ChallengeListener)

	// Attachment opens the content of a message attachment for reading.
	Attachment(ctx context.Context, id string) (io.ReadCloser, error)

	// Close releases the underlying connection.
	Close() error
}
