package session

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/shelfscan/shelfscan/internal/apierr"
	"github.com/shelfscan/shelfscan/internal/gateway"
	"github.com/shelfscan/shelfscan/internal/models"
	"github.com/shelfscan/shelfscan/internal/validate"
)

// Phase is the lifecycle state of the session.
type Phase int

const (
	// Unauthenticated means no session exists.
	Unauthenticated Phase = iota
	// Verifying means a persisted session exists but has not been checked
	// against the server yet.
	Verifying
	// Authenticated means the session has been confirmed by the server or
	// freshly created by login.
	Authenticated
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case Verifying:
		return "verifying"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// Sender issues API requests. Satisfied by *gateway.Gateway.
type Sender interface {
	Send(ctx context.Context, d gateway.Descriptor) (json.RawMessage, error)
}

// RegisterOutcome reports the two-step result of Register: the account may
// exist while the follow-up auto-login failed, in which case the caller must
// send the user to the login form instead of treating the whole call as
// failed.
type RegisterOutcome struct {
	// Authenticated is true when the auto-login after registration
	// succeeded and a session is live.
	Authenticated bool
	// LoginErr holds the auto-login failure when Authenticated is false.
	LoginErr error
}

// Manager is the single writer of session state. Every transition bumps the
// epoch and fires the registered listeners so dependent controllers can drop
// per-user state.
type Manager struct {
	store *Store
	gw    Sender
	log   *zap.Logger

	mu        sync.Mutex
	phase     Phase
	user      *models.User
	epoch     uint64
	listeners []func()

	verifyOnce sync.Once
	verifyErr  error
}

// NewManager builds a Manager over the given store. If the store holds a
// persisted session the manager starts in Verifying, otherwise
// Unauthenticated.
func NewManager(store *Store, gw Sender, log *zap.Logger) *Manager {
	m := &Manager{store: store, gw: gw, log: log, phase: Unauthenticated}
	if _, _, ok := store.Session(); ok {
		m.phase = Verifying
	}
	return m
}

// Phase returns the current lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Epoch returns a counter that increases on every session transition.
// In-flight completions compare epochs to decide whether their result still
// belongs to the current session.
func (m *Manager) Epoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// CurrentUser returns the authenticated user, or nil.
func (m *Manager) CurrentUser() *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// OnChange registers a listener fired after every session transition.
// Listeners are called synchronously and must not call back into the Manager.
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// transition applies a new phase and user, bumps the epoch and notifies
// listeners.
func (m *Manager) transition(phase Phase, user *models.User) {
	m.mu.Lock()
	m.phase = phase
	m.user = user
	m.epoch++
	listeners := make([]func(), len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// VerifyOnStart checks a persisted session against the server. It runs at
// most once per process: concurrent callers block on the same verification
// and share its outcome. Any failure purges the persisted session.
func (m *Manager) VerifyOnStart(ctx context.Context) error {
	m.verifyOnce.Do(func() {
		m.verifyErr = m.verify(ctx)
	})
	return m.verifyErr
}

func (m *Manager) verify(ctx context.Context) error {
	_, user, ok := m.store.Session()
	if !ok {
		return nil
	}

	_, err := m.gw.Send(ctx, gateway.Descriptor{
		Method:       http.MethodGet,
		Path:         "/api/verify_token",
		AuthRequired: true,
	})
	if err != nil {
		m.log.Info("persisted session rejected, logging out", zap.Error(err))
		// On a 401 the gateway's rejection callback has already forced the
		// logout inside Send. Skip the second transition so one failed
		// verification means one epoch bump and one notification.
		m.mu.Lock()
		loggedOut := m.phase == Unauthenticated
		m.mu.Unlock()
		if !loggedOut {
			if clearErr := m.store.ClearSession(); clearErr != nil {
				m.log.Warn("failed to clear persisted session", zap.Error(clearErr))
			}
			m.transition(Unauthenticated, nil)
		}
		return err
	}

	m.log.Debug("persisted session verified", zap.String("username", user.Username))
	m.transition(Authenticated, user)
	return nil
}

// loginResponse is the success shape of POST /api/login.
type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Login authenticates with the given identifier (username or email) and
// password. Empty fields fail locally with a ValidationError. A server
// rejection surfaces as an AuthError and leaves any existing session alone.
func (m *Manager) Login(ctx context.Context, identifier, password string) (*models.User, error) {
	creds := models.Credentials{Identifier: identifier, Password: password}
	if err := validate.Struct(creds); err != nil {
		return nil, err
	}

	raw, err := m.gw.Send(ctx, gateway.Descriptor{
		Method: http.MethodPost,
		Path:   "/api/login",
		Body:   gateway.JSONBody{Value: creds},
	})
	if err != nil {
		return nil, err
	}

	var resp loginResponse
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Token == "" || resp.User == nil {
		return nil, &apierr.ServerError{Status: http.StatusOK, Msg: "malformed login response"}
	}
	if err := m.store.SetSession(resp.Token, resp.User); err != nil {
		return nil, err
	}
	m.transition(Authenticated, resp.User)
	m.log.Info("logged in", zap.String("username", resp.User.Username))
	return resp.User, nil
}

// Register creates an account and immediately attempts to log in with the
// same credentials. A registration failure is returned as an error; an
// auto-login failure is reported through the outcome so the caller can
// distinguish "registered, needs manual login" from "registered and
// authenticated".
func (m *Manager) Register(ctx context.Context, username, email, password string) (RegisterOutcome, error) {
	reg := models.Registration{Username: username, Email: email, Password: password}
	if err := validate.Struct(reg); err != nil {
		return RegisterOutcome{}, err
	}

	if _, err := m.gw.Send(ctx, gateway.Descriptor{
		Method: http.MethodPost,
		Path:   "/api/register",
		Body:   gateway.JSONBody{Value: reg},
	}); err != nil {
		return RegisterOutcome{}, err
	}

	if _, err := m.Login(ctx, username, password); err != nil {
		m.log.Warn("auto-login after registration failed", zap.Error(err))
		return RegisterOutcome{Authenticated: false, LoginErr: err}, nil
	}
	return RegisterOutcome{Authenticated: true}, nil
}

// Logout clears the persisted and in-memory session unconditionally. It never
// fails and performs no network call.
func (m *Manager) Logout() {
	if err := m.store.ClearSession(); err != nil {
		m.log.Warn("failed to clear persisted session", zap.Error(err))
	}
	m.transition(Unauthenticated, nil)
	m.log.Info("logged out")
}

// HandleAuthRejection is wired as the gateway's OnAuthRejected callback: the
// server refused the token of an authenticated call, so the session is dead.
func (m *Manager) HandleAuthRejection() {
	m.log.Info("server rejected credentials, forcing logout")
	m.Logout()
}
