package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/adminshell/adminshell/internal/logger"
	authsession "github.com/adminshell/adminshell/internal/session"
	"github.com/adminshell/adminshell/internal/store"
)

const (
	keyPrefix       = "session:"
	minJanitorEvery = time.Second
)

// ErrRegistryClosed is returned by Get after Close.
var ErrRegistryClosed = errors.New("session registry is closed")

// Options configures a Registry.
type Options struct {
	// Config is the manager configuration shared by all browsers.
	Config  authsession.Config
	DevMode bool

	CookieName string
	CookieTTL  time.Duration
	Secure     bool

	// IdleTimeout evicts managers not used for that long. 0 keeps them.
	IdleTimeout time.Duration
	// SyncInterval starts a watcher per browser. 0 disables it.
	SyncInterval time.Duration

	// Factory builds the provider client factory of a browser storage. Unused in dev mode.
	Factory func(store authsession.Storage) authsession.ClientFactory

	// ManagerOptions are applied to every manager.
	ManagerOptions []authsession.Option

	// DB receives the audit trail when set.
	DB *gorm.DB

	// OnSize is called with the number of managers after each change.
	OnSize func(n int)
}

// Browser is the session state of one browser.
type Browser struct {
	ID      string
	Manager *authsession.Manager
	Nav     *Navigator
	Store   *store.Namespace

	watcher  *authsession.Watcher
	lastSeen atomic.Int64
}

func (b *Browser) touch(now time.Time) {
	b.lastSeen.Store(now.UnixNano())
}

func (b *Browser) close() {
	if b.watcher != nil {
		b.watcher.Stop()
	}

	if err := b.Manager.Close(); err != nil {
		log.Warn().Err(err).Str("session", b.ID).Msg("failed to close session manager")
	}
}

// Registry maps browser session cookies to their managers.
type Registry struct {
	opts Options
	base store.Storage
	now  func() time.Time

	mu      sync.Mutex
	entries map[string]*Browser
	closed  bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewRegistry creates a registry keeping the browser state in base.
func NewRegistry(base store.Storage, opts Options) *Registry {
	if base == nil {
		panic("session: storage cannot be nil")
	}

	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}

	r := &Registry{
		opts:    opts,
		base:    base,
		now:     time.Now,
		entries: map[string]*Browser{},
		done:    make(chan struct{}),
	}

	if opts.IdleTimeout > 0 {
		go r.janitor(max(opts.IdleTimeout/2, minJanitorEvery))
	}

	return r
}

// Get returns the browser of the request. A request without a cookie this
// registry issued gets a fresh session id.
func (r *Registry) Get(c *fiber.Ctx) (*Browser, error) {
	// fiber reuses the buffer behind the cookie value
	id := strings.Clone(c.Cookies(r.opts.CookieName))

	issued, err := r.issued(id)
	if err != nil {
		return nil, err
	}

	if !issued {
		if id, err = r.issue(); err != nil {
			return nil, err
		}

		c.Cookie(sessionCookie(r.opts.CookieName, id, r.opts.CookieTTL, r.opts.Secure))
	}

	c.Locals(SessionLocal, id)

	return r.Lookup(id)
}

// issued reports whether id was handed out by a registry sharing the storage.
func (r *Registry) issued(id string) (bool, error) {
	if !validSessionID(id) {
		return false, nil
	}

	r.mu.Lock()
	_, ok := r.entries[id]
	r.mu.Unlock()

	if ok {
		return true, nil
	}

	val, err := r.base.Get(issuedKey(id))
	if err != nil {
		return false, fmt.Errorf("failed to look up session id: %w", err)
	}

	return len(val) > 0, nil
}

// issue generates a session id and marks it issued for the cookie lifetime.
func (r *Registry) issue() (string, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return "", err
	}

	if err = r.base.Set(issuedKey(id), []byte{'1'}, r.opts.CookieTTL); err != nil {
		return "", fmt.Errorf("failed to store session id: %w", err)
	}

	return id, nil
}

// Rotate moves the state of b to a freshly issued session id and sets its
// cookie. The old id no longer resolves to the session.
func (r *Registry) Rotate(c *fiber.Ctx, b *Browser) (*Browser, error) {
	id, err := r.issue()
	if err != nil {
		return nil, err
	}

	if err = b.Store.CopyTo(store.NewNamespace(r.base, keyPrefix+id+":", r.opts.CookieTTL)); err != nil {
		return nil, fmt.Errorf("failed to move session state: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}

	next, err := r.create(id)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}

	if r.entries[b.ID] == b {
		delete(r.entries, b.ID)
	}

	r.entries[id] = next
	r.sizeChanged(len(r.entries))
	r.mu.Unlock()

	b.close()

	if err = b.Store.Reset(); err != nil {
		log.Warn().Err(err).Str("session", b.ID).Msg("failed to clear rotated session storage")
	}

	if err = r.base.Delete(issuedKey(b.ID)); err != nil {
		log.Warn().Err(err).Str("session", b.ID).Msg("failed to revoke rotated session id")
	}

	c.Cookie(sessionCookie(r.opts.CookieName, id, r.opts.CookieTTL, r.opts.Secure))
	c.Locals(SessionLocal, id)

	return next, nil
}

// Lookup returns the browser with id, creating and initializing its manager
// on first use.
func (r *Registry) Lookup(id string) (*Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	if b, ok := r.entries[id]; ok {
		b.touch(r.now())
		return b, nil
	}

	b, err := r.create(id)
	if err != nil {
		return nil, err
	}

	r.entries[id] = b
	r.sizeChanged(len(r.entries))

	return b, nil
}

func (r *Registry) create(id string) (*Browser, error) {
	ns := store.NewNamespace(r.base, keyPrefix+id+":", r.opts.CookieTTL)
	nav := &Navigator{}

	opts := append([]authsession.Option{}, r.opts.ManagerOptions...)
	opts = append(opts, authsession.WithLogger(logger.Component("session").With().Str("session", id).Logger()))

	if r.opts.DB != nil {
		opts = append(opts, authsession.WithEventSink(AuditSink(r.opts.DB, id)))
	}

	var factory authsession.ClientFactory
	if !r.opts.DevMode && r.opts.Factory != nil {
		factory = r.opts.Factory(ns)
	}

	m := authsession.New(nav, ns, factory, opts...)
	if err := m.Initialize(r.opts.Config, r.opts.DevMode); err != nil {
		return nil, err
	}

	b := &Browser{ID: id, Manager: m, Nav: nav, Store: ns}
	b.touch(r.now())

	if r.opts.SyncInterval > 0 && !r.opts.DevMode {
		b.watcher = authsession.NewWatcher(m, r.opts.SyncInterval)
		b.watcher.Start(context.Background())
	}

	return b, nil
}

// Len returns the number of managers held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.entries)
}

// Evict closes the managers idle since before now minus the idle timeout.
// Their persisted state is kept and restored on the next request.
func (r *Registry) Evict(now time.Time) int {
	if r.opts.IdleTimeout <= 0 {
		return 0
	}

	cutoff := now.Add(-r.opts.IdleTimeout).UnixNano()

	var idle []*Browser

	r.mu.Lock()
	for id, b := range r.entries {
		if b.lastSeen.Load() < cutoff {
			idle = append(idle, b)
			delete(r.entries, id)
		}
	}

	if len(idle) > 0 {
		r.sizeChanged(len(r.entries))
	}
	r.mu.Unlock()

	for _, b := range idle {
		b.close()
	}

	return len(idle)
}

func (r *Registry) janitor(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if n := r.Evict(r.now()); n > 0 {
				log.Debug().Int("evicted", n).Msg("evicted idle session managers")
			}
		}
	}
}

// Close stops the janitor and closes every manager.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)

		r.mu.Lock()
		r.closed = true
		entries := r.entries
		r.entries = map[string]*Browser{}
		r.sizeChanged(0)
		r.mu.Unlock()

		for _, b := range entries {
			b.close()
		}
	})

	return nil
}

// sizeChanged must be called with mu held.
func (r *Registry) sizeChanged(n int) {
	if r.opts.OnSize != nil {
		r.opts.OnSize(n)
	}
}
