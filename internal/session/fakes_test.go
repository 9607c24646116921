package session

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

var errProviderDown = errors.New("dial tcp: connection refused")

type fakeNavigator struct {
	mu      sync.Mutex
	targets []string
	reloads int
}

func (n *fakeNavigator) Navigate(_ context.Context, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.targets = append(n.targets, target)

	return nil
}

func (n *fakeNavigator) Reload(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.reloads++

	return nil
}

func (n *fakeNavigator) Targets() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]string(nil), n.targets...)
}

func (n *fakeNavigator) Reloads() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.reloads
}

type memStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{data: make(map[string][]byte)}
}

func (s *memStorage) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.data[key], nil
}

func (s *memStorage) Set(key string, val []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), val...)

	return nil
}

func (s *memStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)

	return nil
}

func (s *memStorage) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string][]byte)

	return nil
}

func (s *memStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.data)
}

// fakeClient records calls. A non-nil release channel blocks SigninRedirect and
// SigninCallback until it is closed; entered is signalled when they start.
// getGate blocks the next GetUser after it read the user.
type fakeClient struct {
	mu sync.Mutex

	user      *User
	getErr    error
	authURL   string
	signinErr error

	callbackUser *User
	callbackErr  error
	callbacks    atomic.Int32

	silentUser *User
	silentErr  error

	signoutURL string
	signoutErr error
	signouts   int
	removed    int
	closed     bool

	entered chan struct{}
	release chan struct{}
	getGate chan struct{}

	expiredFn  func()
	renewErrFn func(error)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		authURL: "https://idp.example.com/realms/x/protocol/openid-connect/auth?state=s1",
		entered: make(chan struct{}, 1),
	}
}

func (c *fakeClient) block() {
	select {
	case c.entered <- struct{}{}:
	default:
	}

	if c.release != nil {
		<-c.release
	}
}

func (c *fakeClient) SigninRedirect(context.Context) (string, error) {
	c.block()
	return c.authURL, c.signinErr
}

func (c *fakeClient) SigninCallback(_ context.Context, _ url.Values) (*User, error) {
	c.callbacks.Add(1)
	c.block()

	if c.callbackErr != nil {
		return nil, c.callbackErr
	}

	c.mu.Lock()
	c.user = c.callbackUser
	c.mu.Unlock()

	return c.callbackUser, nil
}

func (c *fakeClient) SigninSilent(context.Context) (*User, error) {
	if c.silentErr != nil {
		return nil, c.silentErr
	}

	c.mu.Lock()
	c.user = c.silentUser
	c.mu.Unlock()

	return c.silentUser, nil
}

func (c *fakeClient) GetUser(context.Context) (*User, error) {
	c.mu.Lock()
	u, err, gate := c.user, c.getErr, c.getGate
	c.getGate = nil
	c.mu.Unlock()

	if gate != nil {
		c.entered <- struct{}{}
		<-gate
	}

	return u, err
}

func (c *fakeClient) RemoveUser(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.user = nil
	c.removed++

	return nil
}

func (c *fakeClient) SignoutRedirect(context.Context, *User) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.signouts++

	return c.signoutURL, c.signoutErr
}

func (c *fakeClient) OnAccessTokenExpired(fn func()) { c.expiredFn = fn }

func (c *fakeClient) OnSilentRenewError(fn func(error)) { c.renewErrFn = fn }

func (c *fakeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	return nil
}

func factoryFor(c *fakeClient) ClientFactory {
	return func(Config) (Client, error) {
		return c, nil
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordingSink) Record(_ context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)
}

func (s *recordingSink) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Op+":"+ev.Outcome)
	}

	return out
}
