// Package auth resolves and tracks who the client is signed in as.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/raphaelgruber/ragchat/internal/client"
	"github.com/raphaelgruber/ragchat/internal/credential"
)

// State is the process-wide authentication state.
type State struct {
	Bootstrapped  bool
	Authenticated bool
	DisplayName   string
}

// IdentityChecker validates a bearer token and returns the username.
type IdentityChecker interface {
	Me(ctx context.Context, token string) (string, error)
}

// Authenticator exchanges credentials for a token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*client.Token, error)
	Register(ctx context.Context, username, password string) (*client.Token, error)
}

// Backend is the full set of identity calls the manager uses.
type Backend interface {
	IdentityChecker
	Authenticator
}

// Validation errors for Register.
var (
	ErrInvalidUsername = errors.New("username must be 3-32 characters")
	ErrInvalidPassword = errors.New("password must be 6-128 characters")
)

// Manager owns the authentication State. All mutation goes through
// Bootstrap, Login, Register, and Logout.
type Manager struct {
	creds   credential.Store
	backend Backend
	logger  *slog.Logger

	once  sync.Once
	mu    sync.RWMutex
	state State
}

// NewManager creates a manager in the initial not-bootstrapped state.
func NewManager(creds credential.Store, backend Backend, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{creds: creds, backend: backend, logger: logger}
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

// Bootstrap resolves the state from the stored credential. The validation
// runs at most once per Manager; concurrent callers wait for it and later
// callers return immediately. It never fails: any problem with the stored
// credential clears it and leaves the client signed out.
func (m *Manager) Bootstrap(ctx context.Context) {
	m.once.Do(func() {
		m.setState(m.validate(ctx))
	})
}

func (m *Manager) validate(ctx context.Context) State {
	token, ok := m.creds.Get()
	if !ok {
		return State{Bootstrapped: true}
	}

	username, err := m.backend.Me(ctx, token)
	if err != nil {
		m.logger.Info("stored credential rejected, signing out", "error", err)
		if cerr := m.creds.Clear(); cerr != nil {
			m.logger.Warn("failed to clear credential", "error", cerr)
		}
		return State{Bootstrapped: true}
	}

	m.logger.Debug("credential validated", "username", username)
	return State{Bootstrapped: true, Authenticated: true, DisplayName: username}
}

// Login signs in and stores the returned token.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	tok, err := m.backend.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	return m.adopt(tok)
}

// Register creates an account and signs in to it.
func (m *Manager) Register(ctx context.Context, username, password string) error {
	if n := utf8.RuneCountInString(username); n < 3 || n > 32 {
		return ErrInvalidUsername
	}
	if n := utf8.RuneCountInString(password); n < 6 || n > 128 {
		return ErrInvalidPassword
	}
	tok, err := m.backend.Register(ctx, username, password)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return m.adopt(tok)
}

func (m *Manager) adopt(tok *client.Token) error {
	if err := m.creds.Set(tok.AccessToken); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	// A fresh login makes the stored credential authoritative; a later
	// Bootstrap must not re-validate and override it.
	m.once.Do(func() {})
	m.setState(State{Bootstrapped: true, Authenticated: true, DisplayName: tok.Username})
	m.logger.Info("signed in", "username", tok.Username)
	return nil
}

// Logout clears the credential. The state stays bootstrapped.
func (m *Manager) Logout() {
	if err := m.creds.Clear(); err != nil {
		m.logger.Warn("failed to clear credential", "error", err)
	}
	m.once.Do(func() {})
	m.setState(State{Bootstrapped: true})
}

// Identity returns the signed-in username, if any.
func (m *Manager) Identity() (string, bool) {
	s := m.State()
	if !s.Authenticated || s.DisplayName == "" {
		return "", false
	}
	return s.DisplayName, true
}
