package session

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Manager owns the session cell of one browser.
type Manager struct {
	nav     Navigator
	store   Storage
	factory ClientFactory
	opts    options

	mu         sync.RWMutex
	cfg        *Config
	devMode    bool
	client     Client
	current    *Session
	state      State
	staleToken string
	// gen counts the times the session cell was cleared or the manager
	// reinitialized. Writes computed under an older generation are dropped.
	gen uint64

	// inFlight is held while a login redirect or a logout runs.
	inFlight  atomic.Bool
	callbacks singleflight.Group
}

// New creates a manager. nav and store are required, factory is only used in live mode.
func New(nav Navigator, store Storage, factory ClientFactory, opts ...Option) *Manager {
	if nav == nil || store == nil {
		panic("session: navigator and storage cannot be nil")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Manager{
		nav:     nav,
		store:   store,
		factory: factory,
		opts:    o,
		state:   StateUninitialized,
	}
}

// Initialize stores the configuration and, in live mode, creates the provider
// client with its expiry and renew failure handlers. A second call follows the
// configured ReinitPolicy.
func (m *Manager) Initialize(cfg Config, devMode bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	cfg = cfg.withDefaults()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg != nil && m.opts.reinit == ReinitIgnore {
		m.opts.log.Debug().Str("client_id", m.cfg.ClientID).Msg("session manager already initialized, ignoring")
		return nil
	}

	var client Client

	if !devMode {
		if m.factory == nil {
			return fmt.Errorf("%w: no identity provider client factory", ErrConfiguration)
		}

		var err error

		client, err = m.factory(cfg)
		if err != nil {
			return fmt.Errorf("failed to create identity provider client: %w", err)
		}

		client.OnAccessTokenExpired(m.onAccessTokenExpired)
		client.OnSilentRenewError(m.onSilentRenewError)
	}

	if m.client != nil {
		if err := m.client.Close(); err != nil {
			m.opts.log.Warn().Err(err).Msg("failed to close replaced identity provider client")
		}
	}

	m.cfg = &cfg
	m.devMode = devMode
	m.client = client
	m.current = nil
	m.staleToken = ""
	m.state = StateReady
	m.gen++

	return nil
}

// env returns the configuration snapshot every operation works on, along with
// the generation of the session cell it was taken at.
func (m *Manager) env() (*Config, bool, Client, uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cfg == nil {
		return nil, false, nil, 0, ErrNotInitialized
	}

	return m.cfg, m.devMode, m.client, m.gen, nil
}

// CurrentUser returns the session of the stored user, or nil when there is none
// or it expired. It never refreshes tokens.
func (m *Manager) CurrentUser(ctx context.Context) (*Session, error) {
	cfg, devMode, client, gen, err := m.env()
	if err != nil {
		return nil, err
	}

	if devMode {
		s := NewMockSession(cfg.DevModeRoles)
		if !m.setSession(gen, s) {
			return nil, nil
		}

		m.persistToken(s.AccessToken)

		return s, nil
	}

	u, err := client.GetUser(ctx)
	if err != nil {
		m.opts.log.Warn().Err(err).Msg("failed to get user")
		m.setSession(gen, nil)

		return nil, nil
	}

	if u == nil || u.Expired(m.opts.now()) {
		m.setSession(gen, nil)
		return nil, nil
	}

	s := NewSession(u, cfg.ClientID)

	// a logout finished while the user was read
	if !m.setSession(gen, s) {
		return nil, nil
	}

	return s, nil
}

// Login sends the browser to the authorization endpoint. Calls made while a
// login or logout is in flight return without a second redirect.
func (m *Manager) Login(ctx context.Context) error {
	_, devMode, client, _, err := m.env()
	if err != nil {
		return err
	}

	if devMode {
		return nil
	}

	if !m.inFlight.CompareAndSwap(false, true) {
		m.emit(ctx, Event{Op: OpLogin, Outcome: OutcomeSkipped, Detail: "redirect already in progress"})
		return nil
	}
	defer m.inFlight.Store(false)

	m.setState(StateRedirecting)

	target, err := client.SigninRedirect(ctx)
	if err == nil {
		err = m.nav.Navigate(ctx, target)
	}

	if err != nil {
		m.setState(StateError)
		m.emit(ctx, Event{Op: OpLogin, Outcome: OutcomeError, Detail: err.Error()})

		return fmt.Errorf("failed to initiate login: %w", err)
	}

	m.emit(ctx, Event{Op: OpLogin, Outcome: OutcomeOK})

	return nil
}

// HandleCallback exchanges the callback parameters for tokens. Concurrent calls
// for the same callback share one exchange and its outcome.
func (m *Manager) HandleCallback(ctx context.Context, params url.Values) (*Session, error) {
	cfg, devMode, client, gen, err := m.env()
	if err != nil {
		return nil, err
	}

	if devMode {
		s := NewMockSession(cfg.DevModeRoles)
		m.setSession(gen, s)
		m.persistToken(s.AccessToken)

		return s, nil
	}

	v, err, _ := m.callbacks.Do(callbackKey(params), func() (any, error) {
		return m.exchange(ctx, cfg, client, gen, params)
	})
	if err != nil {
		return nil, err
	}

	return v.(*Session), nil //nolint:forcetypeassert // exchange returns *Session only
}

func callbackKey(params url.Values) string {
	if state := params.Get("state"); state != "" {
		return "callback:" + state
	}

	return "callback:" + params.Get("code")
}

func (m *Manager) exchange(ctx context.Context, cfg *Config, client Client, gen uint64, params url.Values) (*Session, error) {
	u, err := client.SigninCallback(ctx, params)
	if err == nil && (u == nil || u.AccessToken == "") {
		err = ErrInvalidCallback
	}

	if err != nil {
		if IsSessionError(err) {
			m.setState(StateReady)
		} else {
			m.setState(StateError)
		}

		m.emit(ctx, Event{Op: OpCallback, Outcome: OutcomeError, Detail: err.Error()})

		return nil, fmt.Errorf("failed to process authentication callback: %w", err)
	}

	s := NewSession(u, cfg.ClientID)
	if !m.setSession(gen, s) {
		m.opts.log.Info().Str("sub", s.Subject).Msg("session cleared during callback, login discarded")
		m.emit(ctx, Event{Op: OpCallback, Outcome: OutcomeSkipped, Subject: s.Subject, Detail: "session cleared during callback"})

		return nil, fmt.Errorf("failed to process authentication callback: %w", ErrSessionCleared)
	}

	m.persistToken(s.AccessToken)

	m.opts.log.Info().Str("sub", s.Subject).Strs("roles", s.Roles).Msg("user logged in via OIDC")
	m.emit(ctx, Event{Op: OpCallback, Outcome: OutcomeOK, Subject: s.Subject})

	return s, nil
}

// Logout ends the session. Local state is always cleared, the provider sign-out
// is best effort and falls back to the home page.
func (m *Manager) Logout(ctx context.Context) error {
	cfg, devMode, client, _, err := m.env()
	if err != nil {
		return err
	}

	subject := ""
	if s := m.Snapshot(); s != nil {
		subject = s.Subject
	}

	if !m.inFlight.CompareAndSwap(false, true) {
		m.clearLocal(ctx, client)
		m.emit(ctx, Event{Op: OpLogout, Outcome: OutcomeSkipped, Subject: subject, Detail: "redirect already in progress"})

		// replaces an authorize URL the concurrent login may have parked
		return m.nav.Navigate(ctx, HomePath)
	}
	defer m.inFlight.Store(false)

	if devMode {
		m.clearLocal(ctx, nil)
		m.emit(ctx, Event{Op: OpLogout, Outcome: OutcomeOK, Subject: subject})

		return m.nav.Navigate(ctx, HomePath)
	}

	u, err := client.GetUser(ctx)
	if err != nil {
		m.opts.log.Warn().Err(err).Msg("failed to get user for sign-out")
	}

	target, signoutErr := client.SignoutRedirect(ctx, u)

	m.clearLocal(ctx, client)

	if signoutErr != nil {
		signoutErr = fmt.Errorf("%w: %w", ErrProviderUnavailable, signoutErr)
		m.opts.log.Warn().Err(signoutErr).Msg("provider sign-out failed, logged out locally")
		m.emit(ctx, Event{Op: OpLogout, Outcome: OutcomeError, Subject: subject, Detail: signoutErr.Error()})

		return m.nav.Navigate(ctx, HomePath)
	}

	if target == "" {
		target = cfg.PostLogoutRedirectURI
	}

	m.emit(ctx, Event{Op: OpLogout, Outcome: OutcomeOK, Subject: subject})

	return m.nav.Navigate(ctx, target)
}

// Renew refreshes the tokens without a redirect.
func (m *Manager) Renew(ctx context.Context) (*Session, error) {
	cfg, devMode, client, gen, err := m.env()
	if err != nil {
		return nil, err
	}

	if devMode {
		return NewMockSession(cfg.DevModeRoles), nil
	}

	u, err := client.SigninSilent(ctx)
	if err != nil {
		m.emit(ctx, Event{Op: OpRenew, Outcome: OutcomeError, Detail: err.Error()})
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	s := NewSession(u, cfg.ClientID)
	if !m.setSession(gen, s) {
		m.emit(ctx, Event{Op: OpRenew, Outcome: OutcomeSkipped, Subject: s.Subject, Detail: "session cleared during renew"})
		return nil, ErrSessionCleared
	}

	m.emit(ctx, Event{Op: OpRenew, Outcome: OutcomeOK, Subject: s.Subject})

	return s, nil
}

// AccessToken returns the access token of the current user, or "" without one.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	_, devMode, _, _, err := m.env()
	if err != nil {
		return "", err
	}

	if devMode {
		return MockAccessToken, nil
	}

	s, err := m.CurrentUser(ctx)
	if err != nil || s == nil {
		return "", err
	}

	return s.AccessToken, nil
}

// IsAuthenticated reports whether a valid session exists.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	if m.DevMode() {
		return true
	}

	s, err := m.CurrentUser(ctx)
	if err != nil || s == nil {
		return false
	}

	return s.AccessToken != "" && !s.IsExpired(m.opts.now())
}

// IsPublicPath reports whether path starts with a public prefix. The callback and
// unauthorized paths are always public.
func (m *Manager) IsPublicPath(path string) bool {
	var public []string

	m.mu.RLock()
	if m.cfg != nil {
		public = m.cfg.PublicPaths
	}
	m.mu.RUnlock()

	return isPublicPath(path, public)
}

func isPublicPath(path string, public []string) bool {
	for _, prefix := range alwaysPublic {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	for _, prefix := range public {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}

// DevMode reports whether the manager serves the mock session.
func (m *Manager) DevMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.cfg != nil && m.devMode
}

// Initialized reports whether Initialize succeeded.
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.cfg != nil
}

// Snapshot returns the last known session without asking the provider client.
func (m *Manager) Snapshot() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.current
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state
}

// Close stops the provider client timers.
func (m *Manager) Close() error {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil {
		return nil
	}

	return client.Close()
}

// setSession swaps the session cell unless it was cleared since gen was taken.
// A nil session leaves a pending redirect or error state alone.
func (m *Manager) setSession(gen uint64, s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.gen {
		return false
	}

	if s != nil && m.staleToken != "" {
		if s.AccessToken == m.staleToken {
			s.Stale = true
		} else {
			m.staleToken = ""
		}
	}

	m.current = s

	switch {
	case s != nil:
		m.state = StateAuthenticated
	case m.state == StateAuthenticated:
		m.state = StateReady
	}

	return true
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// dropSession forgets the session cell without touching the storage.
func (m *Manager) dropSession() {
	m.mu.Lock()
	m.current = nil
	m.staleToken = ""
	m.state = StateReady
	m.gen++
	m.mu.Unlock()
}

// clearLocal removes the stored user and every key of this browser.
func (m *Manager) clearLocal(ctx context.Context, client Client) {
	if client != nil {
		if err := client.RemoveUser(ctx); err != nil {
			m.opts.log.Warn().Err(err).Msg("failed to remove user")
		}
	}

	if err := m.store.Reset(); err != nil {
		m.opts.log.Warn().Err(err).Msg("failed to clear session storage")
	}

	m.dropSession()
}

func (m *Manager) persistToken(token string) {
	if err := m.store.Set(TokenKey, []byte(token), 0); err != nil {
		m.opts.log.Warn().Err(err).Msg("failed to persist access token")
	}
}

// persistedKey is the storage key whose presence means "logged in".
func (m *Manager) persistedKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case m.cfg == nil:
		return ""
	case m.devMode:
		return TokenKey
	default:
		return UserKey(m.cfg.AuthorityURL, m.cfg.ClientID)
	}
}

func (m *Manager) onAccessTokenExpired() {
	ctx := context.Background()

	m.dropSession()
	m.emit(ctx, Event{Op: OpExpired, Outcome: OutcomeOK})

	if err := m.Login(ctx); err != nil {
		m.opts.log.Error().Err(err).Msg("failed to start login after token expiry")
	}
}

func (m *Manager) onSilentRenewError(renewErr error) {
	ctx := context.Background()

	m.opts.log.Warn().Err(renewErr).Str("policy", string(m.opts.renewFailure)).Msg("silent renew failed")
	m.emit(ctx, Event{Op: OpRenew, Outcome: OutcomeError, Detail: renewErr.Error()})

	if m.opts.renewFailure == RenewStale {
		m.markStale()
		return
	}

	if err := m.Login(ctx); err != nil {
		m.opts.log.Error().Err(err).Msg("failed to start login after silent renew failure")
	}
}

func (m *Manager) markStale() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}

	stale := *m.current
	stale.Stale = true
	m.current = &stale
	m.staleToken = stale.AccessToken
}

func (m *Manager) emit(ctx context.Context, ev Event) {
	for _, sink := range m.opts.sinks {
		sink.Record(ctx, ev)
	}
}
