package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/adminshell/adminshell/internal/config"
)

const (
	// DefaultScope is requested when the config has no scope.
	DefaultScope = "openid profile email"

	// CallbackPath is where the identity provider redirects back to.
	CallbackPath = "/auth/callback"

	// UnauthorizedPath renders the missing role page.
	UnauthorizedPath = "/unauthorized"

	// HomePath is the fallback navigation target.
	HomePath = "/"

	defaultExpiringNotification = 60 * time.Second
)

// alwaysPublic paths never force a login, whatever the configuration says.
var alwaysPublic = []string{CallbackPath, UnauthorizedPath}

// Config is the immutable manager configuration.
type Config struct {
	AuthorityURL          string
	ClientID              string
	ClientSecret          string
	RedirectURI           string
	PostLogoutRedirectURI string
	SilentRedirectURI     string
	Scope                 string

	// DevModeRoles are the roles of the mock session.
	DevModeRoles []string

	// PublicPaths are path prefixes that never force a login.
	PublicPaths []string

	AutomaticSilentRenew  bool
	LoadUserInfo          bool
	RevokeTokensOnSignout bool

	// AccessTokenExpiringNotification is how long before expiry the silent renew fires.
	AccessTokenExpiringNotification time.Duration
}

// ConfigFromAuth maps the [Auth] section of the service configuration.
func ConfigFromAuth(a config.Auth) Config {
	return Config{
		AuthorityURL:                    a.Authority,
		ClientID:                        a.ClientID,
		ClientSecret:                    a.ClientSecret,
		RedirectURI:                     a.RedirectURI,
		PostLogoutRedirectURI:           a.PostLogoutRedirectURI,
		SilentRedirectURI:               a.SilentRedirectURI,
		Scope:                           a.Scope,
		DevModeRoles:                    a.DevMockRoles,
		PublicPaths:                     a.PublicPaths,
		AutomaticSilentRenew:            a.AutomaticSilentRenew,
		LoadUserInfo:                    a.LoadUserInfo,
		RevokeTokensOnSignout:           a.RevokeTokensOnSignout,
		AccessTokenExpiringNotification: a.ExpiringNotification,
	}
}

// Validate checks the settings required in both live and dev mode.
func (c Config) Validate() error {
	if strings.TrimSpace(c.AuthorityURL) == "" {
		return fmt.Errorf("%w: authority url is empty", ErrConfiguration)
	}

	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("%w: client id is empty", ErrConfiguration)
	}

	return nil
}

// IsPublicPath reports whether path starts with one of the public prefixes.
// The callback and unauthorized paths are always public.
func (c Config) IsPublicPath(path string) bool {
	return isPublicPath(path, c.PublicPaths)
}

// withDefaults fills the optional settings.
func (c Config) withDefaults() Config {
	if c.Scope == "" {
		c.Scope = DefaultScope
	}

	if c.PostLogoutRedirectURI == "" {
		c.PostLogoutRedirectURI = HomePath
	}

	if c.SilentRedirectURI == "" {
		c.SilentRedirectURI = c.RedirectURI
	}

	if c.AccessTokenExpiringNotification <= 0 {
		c.AccessTokenExpiringNotification = defaultExpiringNotification
	}

	c.AuthorityURL = strings.TrimRight(c.AuthorityURL, "/")
	c.DevModeRoles = append([]string(nil), c.DevModeRoles...)
	c.PublicPaths = append([]string(nil), c.PublicPaths...)

	return c
}

// ReinitPolicy decides what a second Initialize call does.
type ReinitPolicy string

const (
	// ReinitIgnore keeps the first configuration and ignores later calls.
	ReinitIgnore ReinitPolicy = "ignore"

	// ReinitReplace closes the current client and applies the new configuration.
	ReinitReplace ReinitPolicy = "replace"
)

// RenewFailurePolicy decides what a failed silent renew does.
type RenewFailurePolicy string

const (
	// RenewRelogin starts a new login.
	RenewRelogin RenewFailurePolicy = "relogin"

	// RenewStale keeps the session and marks it stale until it expires.
	RenewStale RenewFailurePolicy = "stale"
)
