package oidc

// Package oidc implements the identity provider client for the gateway's
// OIDC authorization-code flow.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"

	"github.com/flagops/flaggate/config"
	domainauth "github.com/flagops/flaggate/internal/domain/auth"
	apperrors "github.com/flagops/flaggate/internal/errors"
	"github.com/flagops/flaggate/internal/ports"
)

// Provider implements ports.AuthProvider against a real OIDC identity
// provider using the authorization-code flow.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client

	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier

	// Validation knobs; see ProviderConfig.
	expectedIssuer string
	validateIssuer bool
	clockSkew      time.Duration
	responseMode   config.ResponseMode
	tenantVariant  config.TenantVariant
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Scope is the space-separated scope list.
	Scope        string
	DiscoveryURL string

	// Issuer overrides the issuer announced by discovery; empty keeps the
	// discovered one.
	Issuer string
	// ValidateIssuer disables issuer checking entirely when false.
	ValidateIssuer bool
	// ClockSkew is the tolerated timestamp drift for exp/iat validation.
	ClockSkew time.Duration
	// ResponseMode is echoed to the provider so it delivers the callback
	// in the mode the router registered.
	ResponseMode config.ResponseMode
	// TenantVariant switches claim normalization (consumer tenants deliver
	// email in an "emails" array).
	TenantVariant config.TenantVariant
	// AllowHTTPRedirect permits a plain-HTTP redirect URL (non-production).
	AllowHTTPRedirect bool

	// HTTPTimeout bounds each call to the provider; RetryMax bounds
	// discovery/JWKS retries. Zero values get defaults.
	HTTPTimeout time.Duration
	RetryMax    int

	// HTTPClient overrides the retrying client entirely (tests).
	HTTPClient *http.Client
}

// NewProvider fetches the provider's discovery document and constructs the
// client. Configuration the flow cannot run with is rejected here, at
// startup, never per-request.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, apperrors.Configuration("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, apperrors.Configuration("client secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, apperrors.Configuration("redirect URL is required")
	}
	if cfg.DiscoveryURL == "" {
		return nil, apperrors.Configuration("discovery URL is required")
	}
	if strings.HasPrefix(cfg.RedirectURL, "http://") && !cfg.AllowHTTPRedirect {
		return nil, apperrors.Configuration("redirect URL must be HTTPS unless HTTP redirects are explicitly allowed")
	}
	switch cfg.ResponseMode {
	case config.ResponseModeFormPost, config.ResponseModeQuery, "":
	default:
		return nil, apperrors.Configurationf("unsupported response mode %q", cfg.ResponseMode)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newRetryingClient(cfg.HTTPTimeout, cfg.RetryMax)
	}

	p := &Provider{
		httpClient:     httpClient,
		expectedIssuer: cfg.Issuer,
		validateIssuer: cfg.ValidateIssuer,
		clockSkew:      cfg.ClockSkew,
		responseMode:   cfg.ResponseMode,
		tenantVariant:  cfg.TenantVariant,
	}

	// Single discovery fetch at startup; the remote key set captures the
	// retrying client for later JWKS fetches.
	issuer := strings.TrimSuffix(cfg.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	if cfg.Issuer != "" && cfg.Issuer != issuer {
		ctx = gooidc.InsecureIssuerURLContext(ctx, cfg.Issuer)
	}
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfiguration, "fetch provider metadata")
	}
	p.oidcProvider = op
	if p.expectedIssuer == "" {
		p.expectedIssuer = issuer
	}

	// Signature and audience are the verifier's job; issuer and expiry are
	// checked manually below so each failure surfaces as its own class.
	p.verifier = op.Verifier(&gooidc.Config{
		ClientID:        cfg.ClientID,
		SkipIssuerCheck: true,
		SkipExpiryCheck: true,
	})

	p.config = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       strings.Fields(cfg.Scope),
		Endpoint:     op.Endpoint(),
	}

	return p, nil
}

// Begin starts a login flow: it issues fresh state and nonce and builds the
// provider authorization URL.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, domainauth.AuthRequestState, error) {
	state, err := generateRandomString(32)
	if err != nil {
		return "", domainauth.AuthRequestState{}, fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return "", domainauth.AuthRequestState{}, fmt.Errorf("generate nonce: %w", err)
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("response_type", "code"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	}
	if p.responseMode != "" {
		opts = append(opts, oauth2.SetAuthURLParam("response_mode", string(p.responseMode)))
	}

	st := domainauth.AuthRequestState{
		State:       state,
		Nonce:       nonce,
		RedirectURI: in.RedirectURI,
		IssuedAt:    time.Now(),
	}
	return p.config.AuthCodeURL(state, opts...), st, nil
}

// Exchange completes the flow: code for token, then id_token validation.
// Each validation failure keeps its own error class so the caller can
// choose the right remediation; nothing is downgraded to a generic failure.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Profile, error) {
	if in.Code == "" {
		return domainauth.Profile{}, apperrors.Validation("authorization code is required")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Profile{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "exchange authorization code for token")
	}

	rawID, err := idTokenFromToken(token)
	if err != nil {
		return domainauth.Profile{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "token response")
	}

	idToken, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return domainauth.Profile{}, apperrors.Wrap(err, apperrors.ErrCodeInvalidSignature, "verify id_token signature")
	}

	if p.validateIssuer && idToken.Issuer != p.expectedIssuer {
		return domainauth.Profile{}, apperrors.InvalidIssuerf("id_token issuer %q does not match expected issuer %q", idToken.Issuer, p.expectedIssuer)
	}

	if err := p.checkTimestamps(idToken); err != nil {
		return domainauth.Profile{}, err
	}

	if in.Nonce == "" || idToken.Nonce != in.Nonce {
		return domainauth.Profile{}, apperrors.NonceReplay("id_token nonce does not match the issued auth request")
	}

	profile, err := p.extractProfile(ctx, idToken, token.AccessToken)
	if err != nil {
		return domainauth.Profile{}, err
	}
	return profile, nil
}

// checkTimestamps validates exp and iat against local time within the
// configured skew window.
func (p *Provider) checkTimestamps(idToken *gooidc.IDToken) error {
	now := time.Now()
	if idToken.Expiry.Add(p.clockSkew).Before(now) {
		return apperrors.TokenExpiredf("id_token expired at %s (skew tolerance %s)", idToken.Expiry.Format(time.RFC3339), p.clockSkew)
	}
	if !idToken.IssuedAt.IsZero() && idToken.IssuedAt.After(now.Add(p.clockSkew)) {
		return apperrors.TokenExpiredf("id_token issued in the future at %s (skew tolerance %s)", idToken.IssuedAt.Format(time.RFC3339), p.clockSkew)
	}
	return nil
}

// idTokenClaims is a superset of organizational and consumer tenant claim
// shapes.
type idTokenClaims struct {
	Subject           string   `json:"sub"`
	Name              string   `json:"name"`
	GivenName         string   `json:"given_name"`
	FamilyName        string   `json:"family_name"`
	PreferredUsername string   `json:"preferred_username"`
	Email             string   `json:"email"`
	Emails            []string `json:"emails"` // consumer tenant shape
}

// extractProfile normalizes validated claims into a Profile, filling gaps
// from the UserInfo endpoint when the id_token is sparse.
func (p *Provider) extractProfile(ctx context.Context, idToken *gooidc.IDToken, accessToken string) (domainauth.Profile, error) {
	var claims idTokenClaims
	if err := idToken.Claims(&claims); err != nil {
		return domainauth.Profile{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "parse id_token claims")
	}
	var raw map[string]any
	if err := idToken.Claims(&raw); err != nil {
		return domainauth.Profile{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "parse raw id_token claims")
	}

	profile := domainauth.Profile{
		SubjectID:   claims.Subject,
		DisplayName: displayNameFromClaims(claims),
		Email:       p.emailFromClaims(claims),
		RawClaims:   raw,
	}

	if (profile.Email == "" || profile.DisplayName == "") && accessToken != "" {
		p.fillFromUserInfo(ctx, accessToken, &profile)
	}

	if profile.SubjectID == "" {
		return domainauth.Profile{}, apperrors.MissingSubject("id_token has no subject identifier")
	}
	return profile, nil
}

// fillFromUserInfo fills missing profile fields from the UserInfo endpoint.
// Best-effort: a failing UserInfo call never fails a login that already has
// a valid subject.
func (p *Provider) fillFromUserInfo(ctx context.Context, accessToken string, profile *domainauth.Profile) {
	ui, err := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return
	}
	var claims idTokenClaims
	if err := ui.Claims(&claims); err != nil {
		return
	}
	if profile.DisplayName == "" {
		profile.DisplayName = displayNameFromClaims(claims)
	}
	if profile.Email == "" {
		profile.Email = p.emailFromClaims(claims)
	}
}

func displayNameFromClaims(c idTokenClaims) string {
	if c.Name != "" {
		return c.Name
	}
	if c.GivenName != "" || c.FamilyName != "" {
		return strings.TrimSpace(c.GivenName + " " + c.FamilyName)
	}
	return c.PreferredUsername
}

func (p *Provider) emailFromClaims(c idTokenClaims) string {
	if p.tenantVariant == config.TenantConsumer && len(c.Emails) > 0 {
		return c.Emails[0]
	}
	return c.Email
}

// newRetryingClient builds the HTTP client used for all provider traffic:
// bounded retries with backoff for the metadata and signing-key endpoints,
// and a hard per-request timeout so a slow provider fails the login attempt
// instead of hanging it.
func newRetryingClient(timeout time.Duration, retryMax int) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.Logger = nil
	rc.HTTPClient.Timeout = timeout
	return rc.StandardClient()
}

// idTokenFromToken extracts the id_token from the oauth2 token response.
func idTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return "", errors.New("missing id_token in token response")
	}
	return raw, nil
}

// generateRandomString generates a cryptographically secure URL-safe random
// string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	nBytes := (length*3 + 3) / 4
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if len(s) < length {
		extra := make([]byte, 1)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:length], nil
}
