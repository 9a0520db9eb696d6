package discord

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couriermsg/courier/internal/messaging"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordingListener captures challenge-flow events.
type recordingListener struct {
	mu     sync.Mutex
	nonces []string
	ch     chan string
}

func newRecordingListener() *recordingListener {
	return &recordingListener{ch: make(chan string, 4)}
}

func (l *recordingListener) OnAuthenticationChallenge(client messaging.Client, nonce string) {
	l.mu.Lock()
	l.nonces = append(l.nonces, nonce)
	l.mu.Unlock()
	l.ch <- nonce
}

func (l *recordingListener) OnAuthenticated(client messaging.Client, userID string)       {}
func (l *recordingListener) OnDeauthenticated(client messaging.Client)                    {}
func (l *recordingListener) OnAuthenticationError(client messaging.Client, reason string) {}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{Logger: testLogger()}, messaging.DefaultOptions()); err == nil {
		t.Fatal("New() error = nil, want error for missing token")
	}
}

func TestAuthenticateIssuesChallenge(t *testing.T) {
	c, err := New(Config{Token: "bot-token", Logger: testLogger()}, messaging.DefaultOptions())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	listener := newRecordingListener()
	c.RegisterChallengeListener(listener)

	if err := c.Authenticate(); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}

	select {
	case nonce := <-listener.ch:
		if nonce == "" {
			t.Fatal("challenge nonce is empty")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("challenge listener was not invoked")
	}
}

func TestAuthenticateWithoutListener(t *testing.T) {
	c, err := New(Config{Token: "bot-token", Logger: testLogger()}, messaging.DefaultOptions())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Authenticate(); err == nil {
		t.Fatal("Authenticate() error = nil, want error without listener")
	}
}

func TestAnswerChallengeValidation(t *testing.T) {
	c, err := New(Config{Token: "bot-token", Logger: testLogger()}, messaging.DefaultOptions())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := c.AnswerChallenge(""); err == nil {
		t.Error("AnswerChallenge(empty) error = nil, want error")
	}
	if err := c.AnswerChallenge("token"); err == nil {
		t.Error("AnswerChallenge() without pending challenge error = nil, want error")
	}
}

func TestAttachmentMalformedID(t *testing.T) {
	c, err := New(Config{Token: "bot-token", Logger: testLogger()}, messaging.DefaultOptions())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, err := c.Attachment(context.Background(), "missing-separators"); err == nil {
		t.Fatal("Attachment() error = nil, want error for malformed id")
	}
}

func TestCloseWithoutOpenSession(t *testing.T) {
	c, err := New(Config{Token: "bot-token", Logger: testLogger()}, messaging.DefaultOptions())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v, want nil when never opened", err)
	}
}
