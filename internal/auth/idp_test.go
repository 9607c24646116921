package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/adminshell/adminshell/internal/session"
)

const (
	testClientID = "app"
	testKeyID    = "test-key"
	testSubject  = "user-1"
)

type codeGrant struct {
	nonce     string
	challenge string
}

// fakeIdP is a minimal OpenID provider: discovery, JWKS, token, userinfo,
// revocation and end session endpoints.
type fakeIdP struct {
	t      *testing.T
	server *httptest.Server
	key    *rsa.PrivateKey

	mu           sync.Mutex
	codes        map[string]codeGrant
	issued       int
	refreshes    int
	revoked      []string
	failRefresh  bool
	failRevoke   bool
	noEndSession bool
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &fakeIdP{t: t, key: key, codes: map[string]codeGrant{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("/certs", f.jwks)
	mux.HandleFunc("/token", f.token)
	mux.HandleFunc("/userinfo", f.userinfo)
	mux.HandleFunc("/revoke", f.revoke)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeIdP) URL() string { return f.server.URL }

func (f *fakeIdP) discovery(w http.ResponseWriter, _ *http.Request) {
	doc := map[string]any{
		"issuer":                                f.URL(),
		"authorization_endpoint":                f.URL() + "/auth",
		"token_endpoint":                        f.URL() + "/token",
		"jwks_uri":                              f.URL() + "/certs",
		"userinfo_endpoint":                     f.URL() + "/userinfo",
		"revocation_endpoint":                   f.URL() + "/revoke",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	}

	if !f.noEndSession {
		doc["end_session_endpoint"] = f.URL() + "/logout"
	}

	writeJSON(w, http.StatusOK, doc)
}

func (f *fakeIdP) jwks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
		Key:       &f.key.PublicKey,
		KeyID:     testKeyID,
		Algorithm: string(jose.RS256),
		Use:       "sig",
	}}})
}

// issueCode registers an authorization code like the provider does after the
// user signed in on its login page.
func (f *fakeIdP) issueCode(nonce, challenge string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	code := fmt.Sprintf("code-%d", len(f.codes)+f.issued+1)
	f.codes[code] = codeGrant{nonce: nonce, challenge: challenge}

	return code
}

// authorize plays the browser and the provider login page for an authorize URL.
func (f *fakeIdP) authorize(authURL string) url.Values {
	u, err := url.Parse(authURL)
	require.NoError(f.t, err)

	q := u.Query()
	code := f.issueCode(q.Get("nonce"), q.Get("code_challenge"))

	return url.Values{"code": {code}, "state": {q.Get("state")}}
}

func (f *fakeIdP) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		oauthError(w, "invalid_request", err.Error())
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		f.mu.Lock()
		grant, ok := f.codes[r.PostForm.Get("code")]
		f.mu.Unlock()

		if !ok {
			oauthError(w, "invalid_grant", "Code not valid")
			return
		}

		sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != grant.challenge {
			oauthError(w, "invalid_grant", "PKCE verification failed")
			return
		}

		f.mu.Lock()
		delete(f.codes, r.PostForm.Get("code"))
		f.mu.Unlock()

		f.writeTokens(w, grant.nonce)
	case "refresh_token":
		f.mu.Lock()
		fail := f.failRefresh
		f.refreshes++
		f.mu.Unlock()

		if fail || r.PostForm.Get("refresh_token") == "" {
			oauthError(w, "invalid_grant", "Token is not active")
			return
		}

		f.writeTokens(w, "")
	default:
		oauthError(w, "unsupported_grant_type", "")
	}
}

func (f *fakeIdP) writeTokens(w http.ResponseWriter, nonce string) {
	f.mu.Lock()
	f.issued++
	n := f.issued
	f.mu.Unlock()

	now := time.Now()

	idClaims := jwt.MapClaims{
		"iss":                f.URL(),
		"sub":                testSubject,
		"aud":                testClientID,
		"iat":                now.Unix(),
		"exp":                now.Add(5 * time.Minute).Unix(),
		"preferred_username": "jdoe",
		"name":               "John Doe",
	}

	if nonce != "" {
		idClaims["nonce"] = nonce
	}

	accessClaims := jwt.MapClaims{
		"iss": f.URL(),
		"sub": testSubject,
		"exp": now.Add(5 * time.Minute).Unix(),
		"jti": fmt.Sprintf("access-%d", n),
		"resource_access": map[string]any{
			testClientID: map[string]any{"roles": []string{"admin"}},
		},
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  f.sign(accessClaims),
		"id_token":      f.sign(idClaims),
		"refresh_token": fmt.Sprintf("refresh-%d", n),
		"token_type":    "Bearer",
		"expires_in":    300,
		"scope":         "openid profile email",
	})
}

func (f *fakeIdP) sign(claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID

	signed, err := token.SignedString(f.key)
	require.NoError(f.t, err)

	return signed
}

func (f *fakeIdP) userinfo(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sub":   testSubject,
		"email": "jdoe@example.com",
		"name":  "Johnny",
	})
}

func (f *fakeIdP) revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failRevoke {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	f.revoked = append(f.revoked, r.PostForm.Get("token_type_hint"))
	w.WriteHeader(http.StatusOK)
}

func (f *fakeIdP) Revoked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.revoked...)
}

func (f *fakeIdP) Refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.refreshes
}

func (f *fakeIdP) setFailRefresh(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failRefresh = fail
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func oauthError(w http.ResponseWriter, code, desc string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": code, "error_description": desc})
}

// memStorage is a browser storage without expiry handling.
type memStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStorage() *memStorage { return &memStorage{data: map[string][]byte{}} }

func (s *memStorage) Get(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.data[key], nil
}

func (s *memStorage) Set(key string, val []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = val

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

	s.data = map[string][]byte{}

	return nil
}

func (s *memStorage) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}

	return keys
}

func testSessionConfig(idp *fakeIdP) session.Config {
	return session.Config{
		AuthorityURL:                    idp.URL(),
		ClientID:                        testClientID,
		ClientSecret:                    "secret",
		RedirectURI:                     "http://localhost:8080/auth/callback",
		PostLogoutRedirectURI:           "http://localhost:8080/",
		Scope:                           "openid profile email",
		LoadUserInfo:                    true,
		RevokeTokensOnSignout:           true,
		AccessTokenExpiringNotification: time.Minute,
	}
}

func newTestProvider(t *testing.T, idp *fakeIdP) *OIDCProvider {
	t.Helper()

	p, err := NewOIDCProvider(context.Background(), OIDCConfigFromSession(testSessionConfig(idp)))
	require.NoError(t, err)

	return p
}

func newTestClient(t *testing.T, idp *fakeIdP, cfg session.Config) (*Client, *memStorage) {
	t.Helper()

	store := newMemStorage()
	c := newTestProvider(t, idp).NewClient(store, cfg)
	t.Cleanup(func() { _ = c.Close() })

	return c, store
}
