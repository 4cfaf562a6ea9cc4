// Package session owns the authenticated state shared across verification
// calls and drives the challenge resolution flow.
package session

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/capture"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/errors"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/logger"
	"github.com/Md-Abu-Bakkar/Universal-API-Testing/internal/transport"
)

// Mode is the authentication mode of a run's session.
type Mode string

const (
	ModeUnauthenticated   Mode = "unauthenticated"
	ModeLoginPending      Mode = "login-pending"
	ModeAuthenticated     Mode = "authenticated"
	ModeChallengeRequired Mode = "challenge-required"
	ModeFailed            Mode = "failed"
)

// State is the mutable session state, owned exclusively by the Manager.
type State struct {
	Cookies map[string]string `json:"cookies"`
	// Tokens maps header name to value (e.g. Authorization -> Bearer ...).
	Tokens map[string]string `json:"tokens"`
	Mode   Mode              `json:"mode"`
}

// Solution is a resolved challenge answer to be injected into the retried
// login request.
type Solution struct {
	// Field is the form field the answer belongs in.
	Field string
	// Value is the answer itself.
	Value string
	// Extra carries hidden form fields that must accompany the answer.
	Extra map[string]string
}

// Resolver is the external challenge-solving capability. It must return
// within the context deadline; an unsolvable challenge is reported as a
// ChallengeUnsolved error, distinct from transport failures.
type Resolver interface {
	Resolve(ctx context.Context, ch *Challenge) (*Solution, error)
}

// Config holds session manager configuration.
type Config struct {
	ChallengeTimeout     time.Duration
	MaxChallengeAttempts int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ChallengeTimeout:     120 * time.Second,
		MaxChallengeAttempts: 3,
	}
}

// Manager is the single owner of session state for one run. All
// verification calls read and write session data through it.
type Manager struct {
	mu sync.Mutex

	state    State
	resolver Resolver
	cfg      Config
	log      *logger.Logger

	pendingChallenge  *Challenge
	pendingSolution   *Solution
	challengeAttempts int
}

// NewManager creates a session manager with the injected resolver.
// A nil resolver means challenges cannot be solved and fail the
// authenticated path.
func NewManager(resolver Resolver, cfg Config, log *logger.Logger) *Manager {
	if cfg.ChallengeTimeout <= 0 {
		cfg.ChallengeTimeout = DefaultConfig().ChallengeTimeout
	}
	if cfg.MaxChallengeAttempts <= 0 {
		cfg.MaxChallengeAttempts = DefaultConfig().MaxChallengeAttempts
	}
	if log == nil {
		log = logger.Global()
	}
	return &Manager{
		state: State{
			Cookies: make(map[string]string),
			Tokens:  make(map[string]string),
			Mode:    ModeUnauthenticated,
		},
		resolver: resolver,
		cfg:      cfg,
		log:      log.WithComponent("session"),
	}
}

// Mode returns the current session mode.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Mode
}

// Export returns a copy of the session state for persistence.
func (m *Manager) Export() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := State{
		Cookies: make(map[string]string, len(m.state.Cookies)),
		Tokens:  make(map[string]string, len(m.state.Tokens)),
		Mode:    m.state.Mode,
	}
	for k, v := range m.state.Cookies {
		out.Cookies[k] = v
	}
	for k, v := range m.state.Tokens {
		out.Tokens[k] = v
	}
	return out
}

// Import replaces cookies and tokens from a previously exported state.
// The mode is not imported: a fresh run always starts unauthenticated
// unless the imported state carries credentials.
func (m *Manager) Import(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range s.Cookies {
		m.state.Cookies[k] = v
	}
	for k, v := range s.Tokens {
		m.state.Tokens[k] = v
	}
	if len(s.Cookies) > 0 || len(s.Tokens) > 0 {
		m.state.Mode = ModeAuthenticated
	}
}

// Apply decorates an outbound request with the current cookies and tokens.
func (m *Manager) Apply(req *transport.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.Cookies == nil {
		req.Cookies = make(map[string]string)
	}
	for name, value := range m.state.Cookies {
		if _, ok := req.Cookies[name]; !ok {
			req.Cookies[name] = value
		}
	}

	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}
	for name, value := range m.state.Tokens {
		if _, ok := req.Headers[name]; !ok {
			req.Headers[name] = value
		}
	}
}

// BeginLogin marks the session as awaiting a login response. Called by the
// engine before an auth endpoint is exercised.
func (m *Manager) BeginLogin() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Mode == ModeUnauthenticated {
		m.transition(ModeLoginPending, "login attempt issued")
	}
}

// Observe updates the state machine from a response. It never blocks:
// challenge resolution is deferred to ResolveChallenge. Every response of
// the run flows through here to keep cookies and tokens current.
func (m *Manager) Observe(resp *transport.Response) {
	if resp == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Failed is terminal for the run.
	if m.state.Mode == ModeFailed {
		return
	}

	m.absorbCookies(resp)
	m.absorbTokens(resp)

	challenge := DetectChallenge(resp)

	switch m.state.Mode {
	case ModeLoginPending:
		if challenge != nil {
			m.pendingChallenge = challenge
			m.transition(ModeChallengeRequired, "challenge marker in response")
			return
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 400 && !looksLikeLoginFailure(resp) {
			m.transition(ModeAuthenticated, "login response accepted")
		}
	case ModeAuthenticated:
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || redirectsToLogin(resp) {
			m.transition(ModeLoginPending, "re-auth required signal")
		}
	}
}

// ResolveChallenge delegates the pending challenge to the injected
// resolver under its own timeout. A solution transitions the session back
// to login-pending for a retry; an unsolved challenge, a resolver timeout,
// or exceeding the attempt budget transitions to failed.
func (m *Manager) ResolveChallenge(ctx context.Context) (*Solution, error) {
	m.mu.Lock()
	if m.state.Mode != ModeChallengeRequired || m.pendingChallenge == nil {
		m.mu.Unlock()
		return nil, nil
	}
	challenge := m.pendingChallenge
	m.challengeAttempts++
	attempts := m.challengeAttempts
	resolver := m.resolver
	timeout := m.cfg.ChallengeTimeout
	m.mu.Unlock()

	if resolver == nil {
		m.fail("no challenge resolver configured")
		return nil, errors.NewChallengeUnsolvedError(challenge.PageURL, "no resolver available", nil)
	}
	if attempts > m.cfg.MaxChallengeAttempts {
		m.fail("challenge attempt budget exceeded")
		return nil, errors.NewChallengeUnsolvedError(challenge.PageURL, "max attempts exceeded", nil)
	}

	resolveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	solution, err := resolver.Resolve(resolveCtx, challenge)
	if err != nil || solution == nil {
		m.fail("challenge resolver could not solve")
		if err == nil {
			err = errors.NewChallengeUnsolvedError(challenge.PageURL, "resolver returned no solution", nil)
		} else {
			err = errors.NewChallengeUnsolvedError(challenge.PageURL, "resolver failed", err)
		}
		return nil, err
	}

	if len(challenge.Hidden) > 0 {
		if solution.Extra == nil {
			solution.Extra = make(map[string]string, len(challenge.Hidden))
		}
		for name, value := range challenge.Hidden {
			if _, ok := solution.Extra[name]; !ok {
				solution.Extra[name] = value
			}
		}
	}

	m.mu.Lock()
	m.pendingChallenge = nil
	m.pendingSolution = solution
	m.transition(ModeLoginPending, "challenge solved, retrying login")
	m.mu.Unlock()
	return solution, nil
}

// TakeSolution returns and clears the solved challenge answer so the
// engine can inject it into the retried login request.
func (m *Manager) TakeSolution() *Solution {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.pendingSolution
	m.pendingSolution = nil
	return s
}

// fail moves the session into its terminal state.
func (m *Manager) fail(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transition(ModeFailed, reason)
}

// transition changes mode and logs it. Callers hold the lock.
// Failed is absorbing: no transition leaves it.
func (m *Manager) transition(to Mode, reason string) {
	if m.state.Mode == ModeFailed || m.state.Mode == to {
		return
	}
	m.log.SessionEvent(string(m.state.Mode), string(to), reason)
	m.state.Mode = to
}

// absorbCookies folds Set-Cookie headers into the jar.
func (m *Manager) absorbCookies(resp *transport.Response) {
	if resp.Headers == nil {
		return
	}
	for _, raw := range resp.Headers.Values("Set-Cookie") {
		parts := strings.SplitN(raw, ";", 2)
		if idx := strings.Index(parts[0], "="); idx > 0 {
			name := strings.TrimSpace(parts[0][:idx])
			m.state.Cookies[name] = parts[0][idx+1:]
		}
	}
}

// tokenFields are JSON body fields carrying bearer tokens.
var tokenFields = []string{"token", "access_token", "auth_token", "jwt", "id_token"}

// absorbTokens pulls bearer tokens out of JSON response bodies.
func (m *Manager) absorbTokens(resp *transport.Response) {
	if resp.Body.Kind != capture.BodyJSON {
		return
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(resp.Body.Raw), &obj); err != nil {
		return
	}
	for _, field := range tokenFields {
		if raw, ok := obj[field]; ok {
			var token string
			if err := json.Unmarshal(raw, &token); err == nil && token != "" {
				m.state.Tokens["Authorization"] = "Bearer " + token
				return
			}
		}
	}
}

// loginFailureIndicators mark a 2xx body that still represents a rejected login.
var loginFailureIndicators = []string{
	"invalid credentials", "login failed", "incorrect password",
	"access denied", "authentication failed",
}

// looksLikeLoginFailure applies body heuristics for rejected logins that
// come back with a success status.
func looksLikeLoginFailure(resp *transport.Response) bool {
	if resp.Body.Kind == capture.BodyEmpty {
		return false
	}
	body := strings.ToLower(resp.Body.Raw)
	for _, indicator := range loginFailureIndicators {
		if strings.Contains(body, indicator) {
			return true
		}
	}
	return false
}

// redirectsToLogin reports whether the final URL of a response landed on a
// login page, the classic session-expired heuristic.
func redirectsToLogin(resp *transport.Response) bool {
	final := strings.ToLower(resp.FinalURL)
	return strings.Contains(final, "login") || strings.Contains(final, "signin")
}
