// Package credstore persists authentication credentials between runs,
// sealed at rest with a key derived from a caller-supplied secret.
package credstore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"

	"github.com/couriermsg/courier/internal/auth"
)

const (
	saltLen  = 16
	nonceLen = 24
	keyLen   = 32

	// scrypt parameters, interactive-login strength.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// ErrSealBroken is returned when the stored file cannot be opened with the
// configured secret (wrong secret or corrupted file).
var ErrSealBroken = errors.New("credstore: cannot open sealed credentials")

// Store reads and writes a single sealed credentials file.
type Store struct {
	path   string
	secret []byte
}

// New creates a Store for the given file path. secret is the sealing
// passphrase; it never leaves the process.
func New(path string, secret []byte) *Store {
	return &Store{path: path, secret: secret}
}

// DefaultPath returns the conventional credentials file location.
func DefaultPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil || configDir == "" {
		configDir = "."
	}
	return filepath.Join(configDir, "courier", "credentials.sealed")
}

// Load reads and unseals the stored credentials. Returns (nil, nil) when no
// credentials file exists.
func (s *Store) Load() (*auth.Credentials, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	if len(raw) < saltLen+nonceLen+secretbox.Overhead {
		return nil, ErrSealBroken
	}

	var salt [saltLen]byte
	var nonce [nonceLen]byte
	copy(salt[:], raw[:saltLen])
	copy(nonce[:], raw[saltLen:saltLen+nonceLen])

	key, err := s.deriveKey(salt[:])
	if err != nil {
		return nil, err
	}

	plain, ok := secretbox.Open(nil, raw[saltLen+nonceLen:], &nonce, key)
	if !ok {
		return nil, ErrSealBroken
	}

	var creds auth.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	return &creds, nil
}

// Save seals and writes the credentials, creating the parent directory if
// needed. The file is readable only by the owning user.
func (s *Store) Save(creds auth.Credentials) error {
	plain, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	var salt [saltLen]byte
	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	key, err := s.deriveKey(salt[:])
	if err != nil {
		return err
	}

	out := make([]byte, 0, saltLen+nonceLen+len(plain)+secretbox.Overhead)
	out = append(out, salt[:]...)
	out = append(out, nonce[:]...)
	out = secretbox.Seal(out, plain, &nonce, key)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	if err := os.WriteFile(s.path, out, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials file: %w", err)
	}
	return nil
}

// Clear removes the credentials file. Clearing an absent file is not an
// error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove credentials file: %w", err)
	}
	return nil
}

func (s *Store) deriveKey(salt []byte) (*[keyLen]byte, error) {
	derived, err := scrypt.Key(s.secret, salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive sealing key: %w", err)
	}
	var key [keyLen]byte
	copy(key[:], derived)
	return &key, nil
}
