// Package credstore persists the single bearer credential of the client.
package credstore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/exam-client/internal/errs"
)

// Store keeps the credential in durable storage.
type Store interface {
	// Load returns the stored credential or errs.ErrNoCredential.
	Load() (string, error)
	// Save replaces the stored credential.
	Save(token string) error
	// Clear removes the stored credential. Clearing an empty store is not an error.
	Clear() error
}

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// FileStore keeps the credential in a JSON file with 0600 permissions.
type FileStore struct {
	dir string
	now func() time.Time
}

// DefaultDir returns $XDG_CONFIG_HOME/examclient or ~/.config/examclient.
func DefaultDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "examclient")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "examclient")
}

// NewFileStore returns a file store rooted at dir (DefaultDir when empty).
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir()
	}
	return &FileStore{dir: dir, now: time.Now}
}

// Path is the token file location.
func (s *FileStore) Path() string { return filepath.Join(s.dir, "token.json") }

// Save writes the token together with its expiry, read from the JWT when present.
func (s *FileStore) Save(token string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	tf := tokenFile{AccessToken: token}
	if exp, ok := Expiry(token); ok {
		tf.ExpiresAt = exp
	}
	b, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.Path(), b, 0o600)
}

// Load returns the stored token. A missing, empty or expired token yields errs.ErrNoCredential.
func (s *FileStore) Load() (string, error) {
	b, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return "", errs.ErrNoCredential
	}
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" {
		return "", errs.ErrNoCredential
	}
	if !tf.ExpiresAt.IsZero() && s.now().After(tf.ExpiresAt) {
		return "", errs.ErrNoCredential
	}
	return tf.AccessToken, nil
}

// Clear deletes the token file.
func (s *FileStore) Clear() error {
	err := os.Remove(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Memory is an in-process Store.
type Memory struct {
	mu    sync.Mutex
	token string
}

// NewMemory returns a memory store pre-seeded with token (may be empty).
func NewMemory(token string) *Memory { return &Memory{token: token} }

func (m *Memory) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return "", errs.ErrNoCredential
	}
	return m.token, nil
}

func (m *Memory) Save(token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}

// Expiry reads the exp claim of a JWT without verifying it. The signature is the backend's business.
func Expiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Expired reports whether token carries an exp claim that is already past.
func Expired(token string, now time.Time) bool {
	exp, ok := Expiry(token)
	return ok && now.After(exp)
}
