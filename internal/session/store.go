// Package session owns the authentication session: a file-backed store for
// the persisted token, user identity and theme preference, and the Manager
// that drives the verify/login/register/logout lifecycle.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shelfscan/shelfscan/internal/models"
)

// persistedState is the on-disk shape. Token and User are only ever written
// and cleared together.
type persistedState struct {
	Token string       `json:"token,omitempty"`
	User  *models.User `json:"user,omitempty"`
	Theme string       `json:"theme,omitempty"`
}

// Store persists the session and UI preferences to a single JSON file.
// It is safe for concurrent use.
type Store struct {
	path string

	mu    sync.Mutex
	state persistedState
}

// Open loads the store file at path, creating directories as needed. A
// missing file yields an empty store. A persisted token without a user (or
// the reverse) violates the session invariant and is discarded.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("open session store: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := json.NewDecoder(f).Decode(&s.state); err != nil {
		// A corrupt store is treated as no session at all.
		s.state = persistedState{}
		return s, nil
	}
	if (s.state.Token == "") != (s.state.User == nil) {
		s.state.Token = ""
		s.state.User = nil
		_ = s.save()
	}
	return s, nil
}

// save writes the current state. Callers must hold mu.
func (s *Store) save() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("save session store: %w", err)
		}
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("save session store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("save session store: %w", err)
	}
	return nil
}

// Session returns the persisted token and user, and whether both are present.
func (s *Store) Session() (string, *models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Token == "" || s.state.User == nil {
		return "", nil, false
	}
	u := *s.state.User
	return s.state.Token, &u, true
}

// Token returns the current bearer token. It implements gateway.TokenSource.
func (s *Store) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Token, s.state.Token != ""
}

// SetSession persists token and user atomically. Both must be non-empty.
func (s *Store) SetSession(token string, user *models.User) error {
	if token == "" || user == nil {
		return fmt.Errorf("session store: token and user must both be set")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := *user
	s.state.Token = token
	s.state.User = &u
	return s.save()
}

// ClearSession removes token and user together, leaving preferences intact.
func (s *Store) ClearSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Token = ""
	s.state.User = nil
	return s.save()
}

// Theme returns the persisted UI theme preference, or "" if unset.
func (s *Store) Theme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Theme
}

// SetTheme persists the UI theme preference independently of the session.
func (s *Store) SetTheme(theme string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Theme = theme
	return s.save()
}
