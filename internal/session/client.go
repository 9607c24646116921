package session

import (
	"context"
	"net/url"
	"time"
)

// Navigator moves the browser that owns the manager.
type Navigator interface {
	// Navigate sends the browser to target, a URL or an in-app path.
	Navigate(ctx context.Context, target string) error
	// Reload reloads the current page.
	Reload(ctx context.Context) error
}

// Storage is the browser scoped key/value store.
// Reset removes every key of the browser.
type Storage interface {
	Get(key string) ([]byte, error)
	Set(key string, val []byte, exp time.Duration) error
	Delete(key string) error
	Reset() error
}

// Client is the identity provider client of one browser.
type Client interface {
	// SigninRedirect persists a new login attempt and returns the authorize URL.
	SigninRedirect(ctx context.Context) (string, error)
	// SigninCallback exchanges the callback parameters for tokens and stores the user.
	SigninCallback(ctx context.Context, params url.Values) (*User, error)
	// SigninSilent refreshes the tokens of the stored user.
	SigninSilent(ctx context.Context) (*User, error)
	// GetUser returns the stored user or nil.
	GetUser(ctx context.Context) (*User, error)
	// RemoveUser drops the stored user.
	RemoveUser(ctx context.Context) error
	// SignoutRedirect revokes the tokens of u and returns the provider sign-out URL.
	// An empty URL means the provider has no end session endpoint.
	SignoutRedirect(ctx context.Context, u *User) (string, error)
	// OnAccessTokenExpired registers fn for the access token expiry event.
	OnAccessTokenExpired(fn func())
	// OnSilentRenewError registers fn for failed silent renews.
	OnSilentRenewError(fn func(error))
	// Close stops the expiry timers.
	Close() error
}

// ClientFactory builds the client for a configuration.
type ClientFactory func(cfg Config) (Client, error)

// UserKey is the storage key of the persisted user.
func UserKey(authority, clientID string) string {
	return "oidc.user:" + authority + ":" + clientID
}

// TokenKey is the storage key of the last handed out access token.
const TokenKey = "app-token"
