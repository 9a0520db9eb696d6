package identity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/couriermsg/courier/internal/auth"
	"github.com/couriermsg/courier/internal/credstore"
	"github.com/couriermsg/courier/internal/messaging"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStore(t *testing.T) *credstore.Store {
	t.Helper()
	return credstore.New(filepath.Join(t.TempDir(), "creds.sealed"), []byte("test-secret"))
}

func signedToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(expiresIn).Unix(),
	}).SignedString([]byte("signing-key"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestRespondToChallenge(t *testing.T) {
	validToken := signedToken(t, time.Hour)

	tests := []struct {
		name       string
		status     int
		response   tokenResponse
		wantToken  string
		wantErr    bool
		wantErrIs  error
		wantReason string
	}{
		{
			name:      "success",
			status:    http.StatusOK,
			response:  tokenResponse{IdentityToken: validToken},
			wantToken: validToken,
		},
		{
			name:       "rejected credentials",
			status:     http.StatusUnauthorized,
			response:   tokenResponse{Error: "bad credentials"},
			wantErr:    true,
			wantReason: "bad credentials",
		},
		{
			name:      "empty token",
			status:    http.StatusOK,
			response:  tokenResponse{},
			wantErr:   true,
			wantErrIs: ErrNoToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotReq tokenRequest
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/authenticate" {
					t.Errorf("request path = %q, want /authenticate", r.URL.Path)
				}
				if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
					t.Errorf("failed to decode request: %v", err)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			p := NewHTTPProvider(server.URL, "app-1", testStore(t), testLogger())
			token, err := p.RespondToChallenge(context.Background(),
				auth.Credentials{Username: "alice@example.com", Secret: "pw"}, "nonce-1")

			if tt.wantErr {
				if err == nil {
					t.Fatal("RespondToChallenge() error = nil, want error")
				}
				if tt.wantErrIs != nil && !errors.Is(err, tt.wantErrIs) {
					t.Fatalf("error = %v, want %v", err, tt.wantErrIs)
				}
				if tt.wantReason != "" && !strings.Contains(err.Error(), tt.wantReason) {
					t.Fatalf("error = %v, want provider reason %q forwarded", err, tt.wantReason)
				}
				return
			}
			if err != nil {
				t.Fatalf("RespondToChallenge() error = %v", err)
			}
			if token != tt.wantToken {
				t.Fatalf("token = %q, want %q", token, tt.wantToken)
			}
			if gotReq.AppID != "app-1" || gotReq.Nonce != "nonce-1" || gotReq.Email != "alice@example.com" {
				t.Fatalf("request = %+v, want app id, nonce, and email forwarded", gotReq)
			}
		})
	}
}

func TestRespondToChallengeExpiredToken(t *testing.T) {
	expired := signedToken(t, -time.Hour)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(tokenResponse{IdentityToken: expired})
	}))
	defer server.Close()

	p := NewHTTPProvider(server.URL, "app-1", testStore(t), testLogger())
	_, err := p.RespondToChallenge(context.Background(), auth.Credentials{Username: "a"}, "n")
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("error = %v, want ErrTokenExpired", err)
	}
}

func TestOpaqueTokensPassThrough(t *testing.T) {
	if err := checkTokenUsable("not-a-jwt"); err != nil {
		t.Fatalf("checkTokenUsable() error = %v, want opaque tokens accepted", err)
	}
}

type nilClient struct{}

func (nilClient) Authenticate() error                                { return nil }
func (nilClient) AnswerChallenge(token string) error                 { return nil }
func (nilClient) RegisterChallengeListener(messaging.ChallengeListener) {}
func (nilClient) Deauthenticate(ctx context.Context, cb messaging.DeauthenticationCallback) {
}
func (nilClient) Attachment(ctx context.Context, id string) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}
func (nilClient) Close() error { return nil }

func TestRouteLogin(t *testing.T) {
	store := testStore(t)
	p := NewHTTPProvider("https://id.example.com", "app-1", store, testLogger())

	if !p.RouteLogin(nil, "app-1") {
		t.Error("RouteLogin(nil client) = false, want true")
	}
	if !p.RouteLogin(nilClient{}, "") {
		t.Error("RouteLogin(empty app id) = false, want true")
	}
	if !p.RouteLogin(nilClient{}, "app-1") {
		t.Error("RouteLogin(no stored credentials) = false, want true")
	}

	if err := store.Save(auth.Credentials{Username: "alice"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if p.RouteLogin(nilClient{}, "app-1") {
		t.Error("RouteLogin(stored credentials) = true, want false")
	}
}

func TestCredentialCustody(t *testing.T) {
	p := NewHTTPProvider("https://id.example.com", "app-1", testStore(t), testLogger())

	got, err := p.CachedCredentials()
	if err != nil || got != nil {
		t.Fatalf("CachedCredentials() = (%v, %v), want (nil, nil)", got, err)
	}

	want := auth.Credentials{Username: "alice", Secret: "pw"}
	if err := p.StoreCredentials(want); err != nil {
		t.Fatalf("StoreCredentials() error = %v", err)
	}
	got, err = p.CachedCredentials()
	if err != nil {
		t.Fatalf("CachedCredentials() error = %v", err)
	}
	if got == nil || *got != want {
		t.Fatalf("CachedCredentials() = %v, want %v", got, want)
	}

	if err := p.ClearCredentials(); err != nil {
		t.Fatalf("ClearCredentials() error = %v", err)
	}
	got, _ = p.CachedCredentials()
	if got != nil {
		t.Fatalf("CachedCredentials() after clear = %v, want nil", got)
	}
}
