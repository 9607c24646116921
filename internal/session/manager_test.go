package session

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		AuthorityURL: "https://idp.example.com/realms/x",
		ClientID:     "app",
		RedirectURI:  "https://app.example.com/auth/callback",
		DevModeRoles: []string{"user"},
		PublicPaths:  []string{"/static", "/healthz"},
	}
}

func liveUser(expiresAt int64) *User {
	return &User{
		Profile: map[string]any{
			"sub":             "u-1",
			"email":           "jane@example.com",
			"name":            "Jane Doe",
			"resource_access": map[string]any{"app": map[string]any{"roles": []any{"admin"}}},
		},
		AccessToken:  "access-1",
		IDToken:      "id-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    expiresAt,
	}
}

var testNow = time.Unix(1_700_000_000, 0)

func newLiveManager(t *testing.T, opts ...Option) (*Manager, *fakeClient, *fakeNavigator, *memStorage) {
	t.Helper()

	client := newFakeClient()
	nav := &fakeNavigator{}
	store := newMemStorage()

	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	m := New(nav, store, factoryFor(client), opts...)
	require.NoError(t, m.Initialize(testConfig(), false))

	return m, client, nav, store
}

func TestManagerNotInitialized(t *testing.T) {
	m := New(&fakeNavigator{}, newMemStorage(), nil)
	ctx := context.Background()

	_, err := m.CurrentUser(ctx)
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = m.HandleCallback(ctx, url.Values{})
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = m.AccessToken(ctx)
	require.ErrorIs(t, err, ErrNotInitialized)

	require.ErrorIs(t, m.Login(ctx), ErrNotInitialized)
	require.ErrorIs(t, m.Logout(ctx), ErrNotInitialized)

	assert.Equal(t, StateUninitialized, m.State())
	assert.False(t, m.IsAuthenticated(ctx))
	assert.True(t, m.IsPublicPath("/auth/callback"))
	assert.True(t, m.IsPublicPath("/unauthorized"))
	assert.False(t, m.IsPublicPath("/static/app.css"))
}

func TestManagerInitializeValidation(t *testing.T) {
	for _, devMode := range []bool{false, true} {
		m := New(&fakeNavigator{}, newMemStorage(), factoryFor(newFakeClient()))

		cfg := testConfig()
		cfg.AuthorityURL = ""
		require.ErrorIs(t, m.Initialize(cfg, devMode), ErrConfiguration)

		cfg = testConfig()
		cfg.ClientID = "  "
		require.ErrorIs(t, m.Initialize(cfg, devMode), ErrConfiguration)

		assert.False(t, m.Initialized())
	}

	m := New(&fakeNavigator{}, newMemStorage(), nil)
	require.ErrorIs(t, m.Initialize(testConfig(), false), ErrConfiguration)
}

func TestManagerInitializeFactoryError(t *testing.T) {
	m := New(&fakeNavigator{}, newMemStorage(), func(Config) (Client, error) {
		return nil, errProviderDown
	})

	err := m.Initialize(testConfig(), false)
	require.ErrorIs(t, err, errProviderDown)
	assert.False(t, m.Initialized())
}

func TestManagerReinitPolicies(t *testing.T) {
	t.Run("ignore", func(t *testing.T) {
		m, client, _, _ := newLiveManager(t)

		cfg := testConfig()
		cfg.ClientID = "other"
		require.NoError(t, m.Initialize(cfg, true))

		assert.False(t, m.DevMode())
		assert.False(t, client.closed)
	})

	t.Run("replace", func(t *testing.T) {
		m, client, _, _ := newLiveManager(t, WithReinitPolicy(ReinitReplace))

		require.NoError(t, m.Initialize(testConfig(), true))

		assert.True(t, m.DevMode())
		assert.True(t, client.closed)
		assert.Equal(t, StateReady, m.State())
	})
}

func TestManagerDevMode(t *testing.T) {
	called := false
	factory := func(Config) (Client, error) {
		called = true
		return nil, errors.New("must not be called")
	}

	nav := &fakeNavigator{}
	store := newMemStorage()
	m := New(nav, store, factory)

	cfg := Config{
		AuthorityURL: "https://idp/realms/x",
		ClientID:     "app",
		RedirectURI:  "https://app/cb",
		DevModeRoles: []string{"user"},
	}
	require.NoError(t, m.Initialize(cfg, true))

	ctx := context.Background()

	s, err := m.CurrentUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, []string{"user"}, s.Roles)
	assert.Equal(t, "mock_token", s.AccessToken)
	assert.False(t, s.IsExpired(time.Now()))

	token, err := m.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, MockAccessToken, token)
	assert.True(t, m.IsAuthenticated(ctx))

	require.NoError(t, m.Login(ctx))
	assert.Empty(t, nav.Targets(), "login is a no-op in dev mode")

	s, err = m.HandleCallback(ctx, url.Values{"code": {"x"}})
	require.NoError(t, err)
	assert.Equal(t, MockAccessToken, s.AccessToken)

	stored, _ := store.Get(TokenKey)
	assert.Equal(t, MockAccessToken, string(stored))

	require.NoError(t, m.Logout(ctx))
	assert.Equal(t, []string{"/"}, nav.Targets())
	assert.Nil(t, m.Snapshot())
	assert.Zero(t, store.Len())

	assert.False(t, called, "dev mode never builds a provider client")
}

func TestManagerDevModeFallbackRole(t *testing.T) {
	m := New(&fakeNavigator{}, newMemStorage(), nil)

	cfg := testConfig()
	cfg.DevModeRoles = nil
	require.NoError(t, m.Initialize(cfg, true))

	s, err := m.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultRole}, s.Roles)
}

func TestManagerCurrentUser(t *testing.T) {
	ctx := context.Background()

	t.Run("no stored user", func(t *testing.T) {
		m, _, _, _ := newLiveManager(t)

		s, err := m.CurrentUser(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
		assert.Equal(t, StateReady, m.State())
	})

	t.Run("valid user", func(t *testing.T) {
		m, client, _, _ := newLiveManager(t)
		client.user = liveUser(testNow.Unix() + 300)

		s, err := m.CurrentUser(ctx)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, []string{"admin"}, s.Roles)
		assert.Equal(t, "Jane Doe", s.Name)
		assert.Same(t, s, m.Snapshot())
		assert.Equal(t, StateAuthenticated, m.State())

		token, err := m.AccessToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "access-1", token)
		assert.True(t, m.IsAuthenticated(ctx))
	})

	t.Run("expired user", func(t *testing.T) {
		m, client, _, _ := newLiveManager(t)
		client.user = liveUser(testNow.Unix())

		s, err := m.CurrentUser(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
		assert.False(t, m.IsAuthenticated(ctx))

		token, err := m.AccessToken(ctx)
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("provider error is no session", func(t *testing.T) {
		m, client, _, _ := newLiveManager(t)
		client.getErr = errProviderDown

		s, err := m.CurrentUser(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
	})
}

func TestManagerConcurrentLoginRedirectsOnce(t *testing.T) {
	m, client, nav, _ := newLiveManager(t)
	client.release = make(chan struct{})

	ctx := context.Background()
	first := make(chan error, 1)

	go func() {
		first <- m.Login(ctx)
	}()

	<-client.entered
	assert.Equal(t, StateRedirecting, m.State())

	// a second trigger, e.g. the expiry event, while the first redirect is in flight
	require.NoError(t, m.Login(ctx))
	require.NoError(t, m.Logout(ctx))

	close(client.release)
	require.NoError(t, <-first)

	assert.Equal(t, []string{HomePath, client.authURL}, nav.Targets())
	assert.Zero(t, client.signouts, "logout does not race the redirect")

	// the guard is released once the redirect was issued
	require.NoError(t, m.Login(ctx))
	assert.Len(t, nav.Targets(), 3)
}

func TestManagerLogoutDuringLoginGoesHome(t *testing.T) {
	sink := &recordingSink{}
	m, client, nav, store := newLiveManager(t, WithEventSink(sink))
	client.user = liveUser(testNow.Unix() + 300)
	_ = store.Set(TokenKey, []byte("access-1"), 0)

	ctx := context.Background()

	// a login parked its authorize URL and still holds the guard
	require.NoError(t, nav.Navigate(ctx, client.authURL))
	m.inFlight.Store(true)

	require.NoError(t, m.Logout(ctx))

	targets := nav.Targets()
	assert.Equal(t, HomePath, targets[len(targets)-1])
	assert.Zero(t, client.signouts)
	assert.Equal(t, 1, client.removed)
	assert.Zero(t, store.Len())
	assert.Equal(t, []string{"logout:skipped"}, sink.Ops())
}

func TestManagerLogoutDuringCurrentUser(t *testing.T) {
	m, client, _, _ := newLiveManager(t)
	client.user = liveUser(testNow.Unix() + 300)
	client.getGate = make(chan struct{})

	ctx := context.Background()
	read := make(chan *Session, 1)

	go func() {
		s, _ := m.CurrentUser(ctx)
		read <- s
	}()

	<-client.entered
	require.NoError(t, m.Logout(ctx))
	assert.Nil(t, m.Snapshot())

	// the read started before the logout settles after it
	close(client.getGate)
	assert.Nil(t, <-read)

	assert.Nil(t, m.Snapshot())
	assert.Equal(t, StateReady, m.State())
	assert.False(t, m.IsAuthenticated(ctx))
}

func TestManagerRenewDuringLogout(t *testing.T) {
	m, client, _, _ := newLiveManager(t)
	client.silentUser = liveUser(testNow.Unix() + 300)

	ctx := context.Background()
	_, _, _, gen, err := m.env()
	require.NoError(t, err)

	require.NoError(t, m.Logout(ctx))

	assert.False(t, m.setSession(gen, NewSession(client.silentUser, "app")))
	assert.Nil(t, m.Snapshot())

	s, err := m.Renew(ctx)
	require.NoError(t, err)
	assert.NotNil(t, s, "a renew started after the logout applies")
}

func TestManagerLoginError(t *testing.T) {
	m, client, nav, _ := newLiveManager(t)
	client.signinErr = errProviderDown

	err := m.Login(context.Background())
	require.ErrorIs(t, err, errProviderDown)
	assert.Empty(t, nav.Targets())
	assert.Equal(t, StateError, m.State())
}

func TestManagerConcurrentCallbackExchangesOnce(t *testing.T) {
	sink := &recordingSink{}
	m, client, _, store := newLiveManager(t, WithEventSink(sink))
	client.callbackUser = liveUser(testNow.Unix() + 300)
	client.release = make(chan struct{})

	const callers = 5

	var (
		wg       sync.WaitGroup
		sessions = make([]*Session, callers)
		errs     = make([]error, callers)
		params   = url.Values{"code": {"c1"}, "state": {"s1"}}
	)

	for i := range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()
			sessions[i], errs[i] = m.HandleCallback(context.Background(), params)
		}()
	}

	<-client.entered
	time.Sleep(50 * time.Millisecond)
	close(client.release)
	wg.Wait()

	assert.Equal(t, int32(1), client.callbacks.Load())

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Same(t, sessions[0], sessions[i])
	}

	assert.Equal(t, []string{"admin"}, sessions[0].Roles)
	assert.Equal(t, StateAuthenticated, m.State())

	token, _ := store.Get(TokenKey)
	assert.Equal(t, "access-1", string(token))
	assert.Equal(t, []string{"callback:ok"}, sink.Ops())
}

func TestManagerConcurrentCallbackSharesFailure(t *testing.T) {
	m, client, _, _ := newLiveManager(t)
	client.callbackErr = errors.New("invalid_grant: Code not valid")
	client.release = make(chan struct{})

	params := url.Values{"code": {"c1"}, "state": {"s1"}}
	errs := make(chan error, 2)

	for range 2 {
		go func() {
			_, err := m.HandleCallback(context.Background(), params)
			errs <- err
		}()
	}

	<-client.entered
	time.Sleep(50 * time.Millisecond)
	close(client.release)

	first, second := <-errs, <-errs
	require.Error(t, first)
	assert.Equal(t, first, second)
	assert.True(t, IsSessionError(first))
	assert.Equal(t, int32(1), client.callbacks.Load())
	assert.Equal(t, StateReady, m.State())

	// the flight is cleared after settling, a new visit exchanges again
	client.release = nil
	client.callbackErr = nil
	client.callbackUser = liveUser(0)

	s, err := m.HandleCallback(context.Background(), params)
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Equal(t, int32(2), client.callbacks.Load())
}

func TestManagerCallbackWithoutAccessToken(t *testing.T) {
	m, client, _, _ := newLiveManager(t)
	client.callbackUser = &User{Profile: map[string]any{"sub": "u-1"}}

	s, err := m.HandleCallback(context.Background(), url.Values{"code": {"c1"}})
	require.ErrorIs(t, err, ErrInvalidCallback)
	assert.Nil(t, s)
	assert.False(t, IsSessionError(err))
	assert.Equal(t, StateError, m.State())
}

func TestManagerLogout(t *testing.T) {
	ctx := context.Background()

	t.Run("provider sign-out", func(t *testing.T) {
		m, client, nav, store := newLiveManager(t)
		client.user = liveUser(testNow.Unix() + 300)
		client.signoutURL = "https://idp.example.com/logout?id_token_hint=id-1"
		_ = store.Set("oidc.some-state", []byte("{}"), 0)

		_, err := m.CurrentUser(ctx)
		require.NoError(t, err)

		require.NoError(t, m.Logout(ctx))

		assert.Nil(t, m.Snapshot())
		assert.Equal(t, StateReady, m.State())
		assert.Equal(t, []string{client.signoutURL}, nav.Targets())
		assert.Equal(t, 1, client.removed)
		assert.Zero(t, store.Len())
	})

	t.Run("no end session endpoint", func(t *testing.T) {
		m, _, nav, _ := newLiveManager(t)

		require.NoError(t, m.Logout(ctx))
		assert.Equal(t, []string{"/"}, nav.Targets())
	})

	t.Run("provider failure falls back to local logout", func(t *testing.T) {
		sink := &recordingSink{}
		m, client, nav, store := newLiveManager(t, WithEventSink(sink))
		client.user = liveUser(testNow.Unix() + 300)
		client.signoutErr = errProviderDown
		_ = store.Set(TokenKey, []byte("access-1"), 0)

		_, err := m.CurrentUser(ctx)
		require.NoError(t, err)

		require.NoError(t, m.Logout(ctx))

		assert.Nil(t, m.Snapshot())
		assert.Equal(t, []string{"/"}, nav.Targets())
		assert.Equal(t, 1, client.removed)
		assert.Zero(t, store.Len())
		assert.Equal(t, []string{"logout:error"}, sink.Ops())

		s, err := m.CurrentUser(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
	})
}

func TestManagerIsPublicPath(t *testing.T) {
	m := New(&fakeNavigator{}, newMemStorage(), nil)

	cfg := testConfig()
	cfg.PublicPaths = nil
	require.NoError(t, m.Initialize(cfg, true))

	assert.True(t, m.IsPublicPath("/auth/callback"))
	assert.True(t, m.IsPublicPath("/auth/callback?code=1"))
	assert.True(t, m.IsPublicPath("/unauthorized"))
	assert.False(t, m.IsPublicPath("/"))
	assert.False(t, m.IsPublicPath("/dashboard"))

	assert.True(t, isPublicPath("/static/css/app.css", []string{"", "/static"}))
	assert.False(t, isPublicPath("/admin", []string{""}))
}

func TestManagerTokenExpiredStartsLogin(t *testing.T) {
	sink := &recordingSink{}
	m, client, nav, _ := newLiveManager(t, WithEventSink(sink))
	client.user = liveUser(testNow.Unix() + 300)

	_, err := m.CurrentUser(context.Background())
	require.NoError(t, err)

	client.expiredFn()

	assert.Nil(t, m.Snapshot())
	assert.Equal(t, []string{client.authURL}, nav.Targets())
	assert.Equal(t, StateRedirecting, m.State())
	assert.Equal(t, []string{"expired:ok", "login:ok"}, sink.Ops())
}

func TestManagerSilentRenewFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("relogin", func(t *testing.T) {
		m, client, nav, _ := newLiveManager(t)

		client.renewErrFn(errProviderDown)

		assert.Equal(t, []string{client.authURL}, nav.Targets())
		assert.Equal(t, StateRedirecting, m.State())
	})

	t.Run("stale", func(t *testing.T) {
		m, client, nav, _ := newLiveManager(t, WithRenewFailurePolicy(RenewStale))
		client.user = liveUser(testNow.Unix() + 300)

		before, err := m.CurrentUser(ctx)
		require.NoError(t, err)

		client.renewErrFn(errProviderDown)

		assert.Empty(t, nav.Targets())
		assert.False(t, before.Stale, "handed out sessions are not mutated")
		require.NotNil(t, m.Snapshot())
		assert.True(t, m.Snapshot().Stale)

		s, err := m.CurrentUser(ctx)
		require.NoError(t, err)
		assert.True(t, s.Stale, "stale until the tokens change")

		fresh := liveUser(testNow.Unix() + 600)
		fresh.AccessToken = "access-2"
		client.silentUser = fresh

		s, err = m.Renew(ctx)
		require.NoError(t, err)
		assert.False(t, s.Stale)
	})
}

func TestManagerRenewError(t *testing.T) {
	m, client, _, _ := newLiveManager(t)
	client.silentErr = errProviderDown

	_, err := m.Renew(context.Background())
	require.ErrorIs(t, err, ErrProviderUnavailable)
	require.ErrorIs(t, err, errProviderDown)
}

func TestManagerClose(t *testing.T) {
	m, client, _, _ := newLiveManager(t)

	require.NoError(t, m.Close())
	assert.True(t, client.closed)

	dev := New(&fakeNavigator{}, newMemStorage(), nil)
	require.NoError(t, dev.Close())
}
