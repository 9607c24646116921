package config

import (
	"time"

	"github.com/adminshell/adminshell/internal/logger"
)

// Session settings of the browser session cookie.
type Session struct {
	CookieName  string        // name of the browser session cookie
	ExpiryTime  time.Duration // cookie lifetime
	IdleTimeout time.Duration // evict session managers idle for longer
}

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	DB        DB
	Log       logger.Log
	Title     string
	Webserver Webserver
	Auth      Auth
	Storage   Storage
	Tracing   Tracing
}

// Webserver implement webserver settings.
type Webserver struct {
	BrowseStatic bool    // enable static file browsing (for development purposes only)
	Domain       string  // domain name for the webserver
	Port         int     // listening port for the webserver
	ShutDownTime int     // wait time for shutdown
	URL          string  `validate:"omitempty,url"` // base url for the webserver
	Session      Session // session settings
}

// Auth holds the identity provider settings.
// Every field can be overridden by an AUTH_ prefixed environment variable.
type Auth struct {
	Authority             string   `env:"AUTHORITY" validate:"omitempty,url"`
	ClientID              string   `env:"CLIENT_ID"`
	ClientSecret          string   `env:"CLIENT_SECRET" json:"-" toml:"-" yaml:"-"`
	RedirectURI           string   `env:"REDIRECT_URI" validate:"omitempty,url"`
	PostLogoutRedirectURI string   `env:"POST_LOGOUT_REDIRECT_URI"`
	SilentRedirectURI     string   `env:"SILENT_REDIRECT_URI"`
	Scope                 string   `env:"SCOPE"`
	DevMode               bool     `env:"DEV_MODE"`
	DevMockRoles          []string `env:"DEV_MOCK_ROLES" envSeparator:","`
	PublicPaths           []string `env:"PUBLIC_PATHS" envSeparator:","`

	AutomaticSilentRenew  bool `env:"AUTOMATIC_SILENT_RENEW"`
	LoadUserInfo          bool `env:"LOAD_USER_INFO"`
	RevokeTokensOnSignout bool `env:"REVOKE_TOKENS_ON_SIGNOUT"`

	// ExpiringNotification is how long before expiry the silent renew fires.
	ExpiringNotification time.Duration `env:"EXPIRING_NOTIFICATION"`

	// ReinitPolicy is "ignore" or "replace".
	ReinitPolicy string `env:"REINIT_POLICY" validate:"omitempty,oneof=ignore replace"`

	// RenewFailurePolicy is "relogin" or "stale".
	RenewFailurePolicy string `env:"RENEW_FAILURE_POLICY" validate:"omitempty,oneof=relogin stale"`

	// SyncInterval polls the persisted session for changes made by other instances. 0 disables it.
	SyncInterval time.Duration `env:"SYNC_INTERVAL"`

	// RoleHierarchy maps role names to levels for minimum level checks.
	RoleHierarchy map[string]int
}

// Storage selects the persisted session state backend.
type Storage struct {
	Driver        string `validate:"omitempty,oneof=memory mysql postgres redis sqlite"`
	ConnectionURI string `json:"-" toml:"-" yaml:"-"`
	Table         string
	GCInterval    time.Duration
}

// Tracing configures the OTLP trace exporter.
type Tracing struct {
	Enabled  bool
	Endpoint string
	Insecure bool
}
