package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/adminshell/adminshell/internal/session"
)

const tracerName = "github.com/adminshell/adminshell/internal/auth"

// OIDCConfig holds OpenID Connect (OIDC) configuration for authentication.
type OIDCConfig struct {
	// ProviderURL is the issuer, discovery happens at /.well-known/openid-configuration below it.
	ProviderURL string
	// ClientID is the OAuth2 client identifier.
	ClientID string
	// ClientSecret is the OAuth2 client secret, empty for public clients.
	ClientSecret string
	// RedirectURL is the OAuth2 callback URL where the provider redirects after authentication.
	RedirectURL string
	// PostLogoutRedirectURL is where the provider sends the browser after sign-out.
	PostLogoutRedirectURL string
	// Scopes are the OAuth2 scopes to request (default: ["openid", "profile", "email"]).
	Scopes []string
	// LoadUserInfo merges the UserInfo claims into the profile after login.
	LoadUserInfo bool
	// RevokeTokensOnSignout revokes the refresh and access token on logout.
	RevokeTokensOnSignout bool
	// AutomaticSilentRenew refreshes the tokens shortly before they expire.
	AutomaticSilentRenew bool
	// ExpiringNotification is how long before expiry the silent renew fires.
	ExpiringNotification time.Duration
}

// OIDCConfigFromSession maps the session manager configuration.
func OIDCConfigFromSession(cfg session.Config) *OIDCConfig {
	return &OIDCConfig{
		ProviderURL:           cfg.AuthorityURL,
		ClientID:              cfg.ClientID,
		ClientSecret:          cfg.ClientSecret,
		RedirectURL:           cfg.RedirectURI,
		PostLogoutRedirectURL: cfg.PostLogoutRedirectURI,
		Scopes:                strings.Fields(cfg.Scope),
		LoadUserInfo:          cfg.LoadUserInfo,
		RevokeTokensOnSignout: cfg.RevokeTokensOnSignout,
		AutomaticSilentRenew:  cfg.AutomaticSilentRenew,
		ExpiringNotification:  cfg.AccessTokenExpiringNotification,
	}
}

// OIDCProvider handles OIDC authentication. It is shared by the clients of all browsers.
type OIDCProvider struct {
	config   *OIDCConfig
	provider *oidc.Provider
	verifier *oidc.IDTokenVerifier
	oauth2   oauth2.Config
	tracer   trace.Tracer

	endSessionEndpoint string
	revocationEndpoint string
}

// NewOIDCProvider runs the discovery and creates a new OIDC provider.
func NewOIDCProvider(ctx context.Context, config *OIDCConfig) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, strings.TrimRight(config.ProviderURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create OIDC provider: %w", session.ErrProviderUnavailable, err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: config.ClientID,
	})

	scopes := config.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	oauth2Config := oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}

	var endpoints struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
		RevocationEndpoint string `json:"revocation_endpoint"`
	}

	if err = provider.Claims(&endpoints); err != nil {
		return nil, fmt.Errorf("failed to parse discovery document: %w", err)
	}

	return &OIDCProvider{
		config:             config,
		provider:           provider,
		verifier:           verifier,
		oauth2:             oauth2Config,
		tracer:             otel.Tracer(tracerName),
		endSessionEndpoint: endpoints.EndSessionEndpoint,
		revocationEndpoint: endpoints.RevocationEndpoint,
	}, nil
}

// GenerateStateToken generates a random state token for CSRF protection.
func GenerateStateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GetAuthURL returns the authorization URL with state, nonce and the PKCE challenge of verifier.
func (p *OIDCProvider) GetAuthURL(state, nonce, verifier string) string {
	return p.oauth2.AuthCodeURL(state, oidc.Nonce(nonce), oauth2.S256ChallengeOption(verifier))
}

// Exchange trades the authorization code for tokens, verifies the ID token
// against nonce and returns the user to store.
func (p *OIDCProvider) Exchange(ctx context.Context, code, verifier, nonce string) (*session.User, error) {
	ctx, span := p.tracer.Start(ctx, "oidc.exchange")
	defer span.End()

	oauth2Token, err := p.oauth2.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to exchange token: %w", err))
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, spanError(span, ErrNoIDToken)
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to verify ID token: %w", err))
	}

	if idToken.Nonce != nonce {
		return nil, spanError(span, ErrNonceMismatch)
	}

	var claims map[string]any
	if err = idToken.Claims(&claims); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to parse claims: %w", err))
	}

	if p.config.LoadUserInfo {
		p.mergeUserInfo(ctx, claims, oauth2Token.AccessToken)
	}

	span.SetAttributes(attribute.String("oidc.sub", idToken.Subject))

	return userFromToken(oauth2Token, rawIDToken, claims), nil
}

// mergeUserInfo adds the UserInfo claims the ID token lacks. A failing
// UserInfo endpoint does not fail the login.
func (p *OIDCProvider) mergeUserInfo(ctx context.Context, claims map[string]any, accessToken string) {
	info, err := p.GetUserInfo(ctx, accessToken)
	if err != nil {
		return
	}

	// a UserInfo response for another subject must be ignored
	if sub, _ := info["sub"].(string); sub != "" && sub != claims["sub"] {
		return
	}

	for k, v := range info {
		if _, exists := claims[k]; !exists {
			claims[k] = v
		}
	}
}

// VerifyToken verifies the signature and claims of an OIDC ID token.
// It validates the token was issued by the configured provider and hasn't expired.
func (p *OIDCProvider) VerifyToken(ctx context.Context, rawToken string) (*oidc.IDToken, error) {
	return p.verifier.Verify(ctx, rawToken)
}

// GetLogoutURL constructs the OIDC provider's logout URL if supported.
// It includes the ID token hint and post-logout redirect URI parameters.
// Returns an empty string if the provider doesn't support logout endpoints.
func (p *OIDCProvider) GetLogoutURL(idToken, postLogoutRedirectURI string) string {
	if p.endSessionEndpoint == "" {
		return ""
	}

	params := url.Values{}
	params.Set("client_id", p.config.ClientID)

	if idToken != "" {
		params.Set("id_token_hint", idToken)
	}

	if postLogoutRedirectURI != "" {
		params.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	}

	sep := "?"
	if strings.Contains(p.endSessionEndpoint, "?") {
		sep = "&"
	}

	return p.endSessionEndpoint + sep + params.Encode()
}

// RefreshToken obtains a new access token using a refresh token.
// This allows extending the user's session without requiring re-authentication.
// Returns the new token set or an error if the refresh token is invalid or expired.
func (p *OIDCProvider) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx, span := p.tracer.Start(ctx, "oidc.refresh")
	defer span.End()

	tokenSource := p.oauth2.TokenSource(ctx, &oauth2.Token{
		RefreshToken: refreshToken,
	})

	token, err := tokenSource.Token()
	if err != nil {
		return nil, spanError(span, err)
	}

	return token, nil
}

// RefreshUser refreshes the tokens of u. The profile is replaced when the
// response carries a new ID token for the same subject.
func (p *OIDCProvider) RefreshUser(ctx context.Context, u *session.User) (*session.User, error) {
	if u == nil || u.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	token, err := p.RefreshToken(ctx, u.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	claims := u.Profile
	rawIDToken, _ := token.Extra("id_token").(string)

	if rawIDToken != "" {
		idToken, verifyErr := p.verifier.Verify(ctx, rawIDToken)
		if verifyErr != nil {
			return nil, fmt.Errorf("failed to verify refreshed ID token: %w", verifyErr)
		}

		var fresh map[string]any
		if err = idToken.Claims(&fresh); err != nil {
			return nil, fmt.Errorf("failed to parse claims: %w", err)
		}

		if fresh["sub"] != u.Profile["sub"] {
			return nil, ErrSubjectChanged
		}

		claims = fresh
	} else {
		rawIDToken = u.IDToken
	}

	refreshed := userFromToken(token, rawIDToken, claims)
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = u.RefreshToken
	}

	return refreshed, nil
}

// GetUserInfo fetches additional user information from the OIDC UserInfo endpoint.
// This provides claims not included in the ID token, such as additional profile information.
// The accessToken must be a valid OAuth2 access token.
func (p *OIDCProvider) GetUserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	ctx, span := p.tracer.Start(ctx, "oidc.userinfo")
	defer span.End()

	userInfo, err := p.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
	}))
	if err != nil {
		return nil, spanError(span, fmt.Errorf("failed to get user info: %w", err))
	}

	var claims map[string]any
	if err := userInfo.Claims(&claims); err != nil {
		return nil, spanError(span, fmt.Errorf("failed to parse user info claims: %w", err))
	}

	return claims, nil
}

// Revoke revokes token at the revocation endpoint (RFC 7009). Providers
// without one are skipped.
func (p *OIDCProvider) Revoke(ctx context.Context, token, tokenTypeHint string) error {
	if p.revocationEndpoint == "" || token == "" {
		return nil
	}

	ctx, span := p.tracer.Start(ctx, "oidc.revoke", trace.WithAttributes(attribute.String("oidc.token_type", tokenTypeHint)))
	defer span.End()

	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", tokenTypeHint)
	form.Set("client_id", p.config.ClientID)

	if p.config.ClientSecret != "" {
		form.Set("client_secret", p.config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revocationEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return spanError(span, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := httpClient(ctx).Do(req)
	if err != nil {
		return spanError(span, fmt.Errorf("failed to revoke %s: %w", tokenTypeHint, err))
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return spanError(span, fmt.Errorf("%w: %s returned %d", ErrRevocationFailed, tokenTypeHint, resp.StatusCode))
	}

	return nil
}

// httpClient honors a client set with oidc.ClientContext, like go-oidc does.
func httpClient(ctx context.Context) *http.Client {
	if c, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok {
		return c
	}

	return http.DefaultClient
}

func userFromToken(token *oauth2.Token, rawIDToken string, claims map[string]any) *session.User {
	u := &session.User{
		Profile:      claims,
		AccessToken:  token.AccessToken,
		IDToken:      rawIDToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
	}

	if scope, ok := token.Extra("scope").(string); ok {
		u.Scope = scope
	}

	if !token.Expiry.IsZero() {
		u.ExpiresAt = token.Expiry.Unix()
	}

	return u
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	return err
}
