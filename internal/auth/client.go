package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/adminshell/adminshell/internal/logger"
	"github.com/adminshell/adminshell/internal/session"
)

const (
	// StateKeyPrefix prefixes the storage key of a pending login attempt.
	StateKeyPrefix = "oidc."
	// StateTTL is how long a login attempt may take.
	StateTTL = 5 * time.Minute

	minRenewDelay = time.Second
)

// loginState is persisted between the authorize redirect and the callback.
type loginState struct {
	Nonce        string `json:"nonce"`
	CodeVerifier string `json:"code_verifier"`
	Created      int64  `json:"created"`
}

// Client is the identity provider client of one browser. Pending logins and
// the user are kept in the browser storage.
type Client struct {
	provider *OIDCProvider
	store    session.Storage
	cfg      session.Config
	userKey  string
	now      func() time.Time
	log      zerolog.Logger

	mu           sync.Mutex
	timers       []*time.Timer
	scheduledFor int64
	closed       bool
	onExpired    []func()
	onRenewError []func(error)
}

var _ session.Client = (*Client)(nil)

// NewClient creates a client for the browser owning store.
func (p *OIDCProvider) NewClient(store session.Storage, cfg session.Config) *Client {
	return &Client{
		provider: p,
		store:    store,
		cfg:      cfg,
		userKey:  session.UserKey(cfg.AuthorityURL, cfg.ClientID),
		now:      time.Now,
		log:      logger.Component("oidc-client").With().Str("client_id", cfg.ClientID).Logger(),
	}
}

// Factory returns a session.ClientFactory creating clients on store. The
// manager configuration must name the client this provider was discovered for.
func (p *OIDCProvider) Factory(store session.Storage) session.ClientFactory {
	return func(cfg session.Config) (session.Client, error) {
		if cfg.ClientID != p.config.ClientID {
			return nil, fmt.Errorf("%w: client %q is not served by this provider", session.ErrConfiguration, cfg.ClientID)
		}

		return p.NewClient(store, cfg), nil
	}
}

// SigninRedirect stores a new login attempt and returns the authorize URL.
func (c *Client) SigninRedirect(_ context.Context) (string, error) {
	state, err := GenerateStateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	nonce, err := GenerateStateToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	entry := loginState{
		Nonce:        nonce,
		CodeVerifier: oauth2.GenerateVerifier(),
		Created:      c.now().Unix(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return "", err
	}

	if err = c.store.Set(StateKeyPrefix+state, data, StateTTL); err != nil {
		return "", fmt.Errorf("failed to store login state: %w", err)
	}

	return c.provider.GetAuthURL(state, nonce, entry.CodeVerifier), nil
}

// SigninCallback completes the login attempt named by the state parameter.
func (c *Client) SigninCallback(ctx context.Context, params url.Values) (*session.User, error) {
	state := params.Get("state")

	entry, err := c.takeState(state)

	if providerErr := params.Get("error"); providerErr != "" {
		if desc := params.Get("error_description"); desc != "" {
			return nil, fmt.Errorf("%s: %s", providerErr, desc)
		}

		return nil, errors.New(providerErr)
	}

	if err != nil {
		return nil, err
	}

	code := params.Get("code")
	if code == "" {
		return nil, ErrMissingCode
	}

	u, err := c.provider.Exchange(ctx, code, entry.CodeVerifier, entry.Nonce)
	if err != nil {
		return nil, err
	}

	if err = c.StoreUser(u); err != nil {
		return nil, err
	}

	return u, nil
}

// takeState loads and removes a pending login attempt.
func (c *Client) takeState(state string) (*loginState, error) {
	if state == "" {
		return nil, ErrNoMatchingState
	}

	key := StateKeyPrefix + state

	data, err := c.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to load login state: %w", err)
	}

	if len(data) == 0 {
		return nil, ErrNoMatchingState
	}

	if err = c.store.Delete(key); err != nil {
		c.log.Warn().Err(err).Msg("failed to delete login state")
	}

	var entry loginState
	if err = json.Unmarshal(data, &entry); err != nil {
		return nil, ErrNoMatchingState
	}

	if c.now().Sub(time.Unix(entry.Created, 0)) > StateTTL {
		return nil, ErrNoMatchingState
	}

	return &entry, nil
}

// SigninSilent refreshes the stored user with its refresh token.
func (c *Client) SigninSilent(ctx context.Context) (*session.User, error) {
	u, err := c.loadUser()
	if err != nil {
		return nil, err
	}

	if u == nil || u.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	refreshed, err := c.provider.RefreshUser(ctx, u)
	if err != nil {
		return nil, err
	}

	if err = c.StoreUser(refreshed); err != nil {
		return nil, err
	}

	return refreshed, nil
}

// GetUser returns the stored user, or nil. The expiry timers are armed for it
// when this process did not store it itself.
func (c *Client) GetUser(_ context.Context) (*session.User, error) {
	u, err := c.loadUser()
	if err != nil || u == nil {
		return nil, err
	}

	c.schedule(u)

	return u, nil
}

// RemoveUser drops the stored user and stops its timers.
func (c *Client) RemoveUser(_ context.Context) error {
	c.mu.Lock()
	c.stopTimers()
	c.mu.Unlock()

	return c.store.Delete(c.userKey)
}

// SignoutRedirect revokes the tokens of u when configured and returns the end
// session URL, or "" when the provider has no end session endpoint.
func (c *Client) SignoutRedirect(ctx context.Context, u *session.User) (string, error) {
	idToken := ""

	if u != nil {
		idToken = u.IDToken

		if c.cfg.RevokeTokensOnSignout {
			if err := c.provider.Revoke(ctx, u.RefreshToken, "refresh_token"); err != nil {
				return "", err
			}

			if err := c.provider.Revoke(ctx, u.AccessToken, "access_token"); err != nil {
				return "", err
			}
		}
	}

	if err := c.RemoveUser(ctx); err != nil {
		c.log.Warn().Err(err).Msg("failed to remove user")
	}

	return c.provider.GetLogoutURL(idToken, c.cfg.PostLogoutRedirectURI), nil
}

// OnAccessTokenExpired registers fn for the access token expiry.
func (c *Client) OnAccessTokenExpired(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onExpired = append(c.onExpired, fn)
}

// OnSilentRenewError registers fn for failed automatic renews.
func (c *Client) OnSilentRenewError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onRenewError = append(c.onRenewError, fn)
}

// Close stops the timers. The stored user is kept.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.stopTimers()

	return nil
}

func (c *Client) loadUser() (*session.User, error) {
	data, err := c.store.Get(c.userKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var u session.User
	if err = json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}

	return &u, nil
}

// StoreUser persists u and arms its expiry timers.
func (c *Client) StoreUser(u *session.User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}

	if err = c.store.Set(c.userKey, data, 0); err != nil {
		return fmt.Errorf("failed to store user: %w", err)
	}

	c.schedule(u)

	return nil
}

// schedule arms the renew and expiry timers for u.
func (c *Client) schedule(u *session.User) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || u.ExpiresAt == 0 || u.ExpiresAt == c.scheduledFor {
		return
	}

	c.stopTimers()
	c.scheduledFor = u.ExpiresAt

	untilExpiry := time.Unix(u.ExpiresAt, 0).Sub(c.now())

	if c.cfg.AutomaticSilentRenew && u.RefreshToken != "" {
		delay := max(untilExpiry-c.cfg.AccessTokenExpiringNotification, minRenewDelay)
		if delay < untilExpiry {
			c.timers = append(c.timers, time.AfterFunc(delay, c.silentRenew))
		}
	}

	c.timers = append(c.timers, time.AfterFunc(max(untilExpiry, 0), c.expired))
}

// stopTimers must be called with mu held.
func (c *Client) stopTimers() {
	for _, t := range c.timers {
		t.Stop()
	}

	c.timers = nil
	c.scheduledFor = 0
}

func (c *Client) silentRenew() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := c.SigninSilent(ctx); err != nil {
		c.mu.Lock()
		handlers := append([]func(error){}, c.onRenewError...)
		c.mu.Unlock()

		for _, fn := range handlers {
			fn(err)
		}

		return
	}

	c.log.Debug().Msg("access token renewed")
}

func (c *Client) expired() {
	c.mu.Lock()
	handlers := append([]func(){}, c.onExpired...)
	c.mu.Unlock()

	c.log.Debug().Msg("access token expired")

	for _, fn := range handlers {
		fn()
	}
}

// ParseCallback returns the callback parameters of a callback URL or query string.
func ParseCallback(raw string) (url.Values, error) {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[i+1:]
	}

	return url.ParseQuery(raw)
}
