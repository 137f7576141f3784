package oidc

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flagops/flaggate/config"
	apperrors "github.com/flagops/flaggate/internal/errors"
	"github.com/flagops/flaggate/internal/ports"
	"github.com/flagops/flaggate/internal/testutil"
)

const testClientID = "flaggate-client"

func testProviderConfig(idp *testutil.FakeIDP) ProviderConfig {
	return ProviderConfig{
		ClientID:          testClientID,
		ClientSecret:      "secret",
		RedirectURL:       "https://localhost:4242/api/auth/callback",
		Scope:             "openid profile email",
		DiscoveryURL:      idp.Issuer(),
		ValidateIssuer:    true,
		ClockSkew:         5 * time.Minute,
		ResponseMode:      config.ResponseModeFormPost,
		TenantVariant:     config.TenantOrganizational,
		AllowHTTPRedirect: true,
	}
}

func TestNewProvider_ConfigErrors(t *testing.T) {
	idp := testutil.NewFakeIDP(t, testClientID)

	tests := []struct {
		name   string
		mutate func(*ProviderConfig)
	}{
		{"missing client id", func(c *ProviderConfig) { c.ClientID = "" }},
		{"missing client secret", func(c *ProviderConfig) { c.ClientSecret = "" }},
		{"missing redirect URL", func(c *ProviderConfig) { c.RedirectURL = "" }},
		{"missing discovery URL", func(c *ProviderConfig) { c.DiscoveryURL = "" }},
		{"http redirect without opt-in", func(c *ProviderConfig) {
			c.RedirectURL = "http://localhost:4242/api/auth/callback"
			c.AllowHTTPRedirect = false
		}},
		{"unsupported response mode", func(c *ProviderConfig) { c.ResponseMode = "fragment" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testProviderConfig(idp)
			tt.mutate(&cfg)

			_, err := NewProvider(cfg)
			require.Error(t, err)
			assert.True(t, apperrors.IsConfiguration(err), "expected configuration error, got %v", err)
		})
	}
}

func TestNewProvider_UnreachableDiscovery(t *testing.T) {
	cfg := ProviderConfig{
		ClientID:          testClientID,
		ClientSecret:      "secret",
		RedirectURL:       "https://localhost:4242/api/auth/callback",
		DiscoveryURL:      "http://127.0.0.1:1/nope",
		AllowHTTPRedirect: true,
		HTTPTimeout:       time.Second,
		RetryMax:          1,
	}

	_, err := NewProvider(cfg)
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestProvider_BeginBuildsAuthURL(t *testing.T) {
	idp := testutil.NewFakeIDP(t, testClientID)

	prov, err := NewProvider(testProviderConfig(idp))
	require.NoError(t, err)

	authURL, st, err := prov.Begin(context.Background(), ports.BeginInput{RedirectURI: "/features"})
	require.NoError(t, err)

	assert.NotEmpty(t, st.State)
	assert.NotEmpty(t, st.Nonce)
	assert.NotEqual(t, st.State, st.Nonce)
	assert.Equal(t, "/features", st.RedirectURI)
	assert.WithinDuration(t, time.Now(), st.IssuedAt, time.Minute)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, idp.Issuer()+"/authorize", u.Scheme+"://"+u.Host+u.Path)

	q := u.Query()
	assert.Equal(t, st.State, q.Get("state"))
	assert.Equal(t, st.Nonce, q.Get("nonce"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "form_post", q.Get("response_mode"))
	assert.Equal(t, "select_account", q.Get("prompt"))
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, "https://localhost:4242/api/auth/callback", q.Get("redirect_uri"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
}

func TestProvider_BeginIssuesFreshStatePerAttempt(t *testing.T) {
	idp := testutil.NewFakeIDP(t, testClientID)

	prov, err := NewProvider(testProviderConfig(idp))
	require.NoError(t, err)

	_, first, err := prov.Begin(context.Background(), ports.BeginInput{})
	require.NoError(t, err)
	_, second, err := prov.Begin(context.Background(), ports.BeginInput{})
	require.NoError(t, err)

	assert.NotEqual(t, first.State, second.State)
	assert.NotEqual(t, first.Nonce, second.Nonce)
}

func TestProvider_ExchangeHappyPath(t *testing.T) {
	idp := testutil.NewFakeIDP(t, testClientID)

	prov, err := NewProvider(testProviderConfig(idp))
	require.NoError(t, err)

	claims := idp.DefaultClaims("abc123", "nonce-x")
	claims["name"] = "Jane Doe"
	claims["email"] = "jane@example.com"
	code := idp.MintCode(claims)

	profile, err := prov.Exchange(context.Background(), ports.ExchangeInput{Code: code, Nonce: "nonce-x"})
	require.NoError(t, err)

	assert.Equal(t, "abc123", profile.SubjectID)
	assert.Equal(t, "Jane Doe", profile.DisplayName)
	assert.Equal(t, "jane@example.com", profile.Email)
	assert.Equal(t, "abc123", profile.RawClaims["sub"])
}

func TestProvider_ExchangeValidationFailures(t *testing.T) {
	idp := testutil.NewFakeIDP(t, testClientID)

	prov, err := NewProvider(testProviderConfig(idp))
	require.NoError(t, err)

	now := time.Now()

	tests := []struct {
		name   string
		claims func() map[string]any
		nonce  string
		check  func(error) bool
		code   apperrors.ErrorCode
	}{
		{
			name: "wrong issuer",
			claims: func() map[string]any {
				c := idp.DefaultClaims("abc123", "nonce-x")
				c["iss"] = "https://evil.example.com"
				return c
			},
			nonce: "nonce-x",
			check: apperrors.IsInvalidIssuer,
			code:  apperrors.ErrCodeInvalidIssuer,
		},
		{
			name: "wrong audience",
			claims: func() map[string]any {
				c := idp.DefaultClaims("abc123", "nonce-x")
				c["aud"] = "someone-else"
				return c
			},
			nonce: "nonce-x",
			check: apperrors.IsInvalidSignature,
			code:  apperrors.ErrCodeInvalidSignature,
		},
		{
			name: "expired beyond skew",
			claims: func() map[string]any {
				c := idp.DefaultClaims("abc123", "nonce-x")
				c["exp"] = now.Add(-10 * time.Minute).Unix()
				return c
			},
			nonce: "nonce-x",
			check: apperrors.IsTokenExpired,
			code:  apperrors.ErrCodeTokenExpired,
		},
		{
			name: "issued in the future beyond skew",
			claims: func() map[string]any {
				c := idp.DefaultClaims("abc123", "nonce-x")
				c["iat"] = now.Add(10 * time.Minute).Unix()
				return c
			},
			nonce: "nonce-x",
			check: apperrors.IsTokenExpired,
			code:  apperrors.ErrCodeTokenExpired,
		},
		{
			name: "nonce mismatch",
			claims: func() map[string]any {
				return idp.DefaultClaims("abc123", "nonce-a")
			},
			nonce: "nonce-b",
			check: apperrors.IsNonceReplay,
			code:  apperrors.ErrCodeNonceReplay,
		},
		{
			name: "missing subject",
			claims: func() map[string]any {
				c := idp.DefaultClaims("", "nonce-x")
				delete(c, "sub")
				c["email"] = "jane@example.com"
				return c
			},
			nonce: "nonce-x",
			check: apperrors.IsMissingSubject,
			code:  apperrors.ErrCodeMissingSubject,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := idp.MintCode(tt.claims())
			_, err := prov.Exchange(context.Background(), ports.ExchangeInput{Code: code, Nonce: tt.nonce})
			require.Error(t, err)
			assert.True(t, tt.check(err), "expected %s error, got %v", tt.code, err)
			assert.True(t, apperrors.IsProviderValidation(err))
		})
	}
}

func TestProvider_ExpiryWithinSkewAccepted(t *testing.T) {
	idp := testutil.NewFakeIDP(t, testClientID)

	prov, err := NewProvider(testProviderConfig(idp))
	require.NoError(t, err)

	claims := idp.DefaultClaims("abc123", "nonce-x")
	claims["exp"] = time.Now().Add(-30 * time.Second).Unix()
	code := idp.MintCode(claims)

	_, err = prov.Exchange(context.Background(), ports.ExchangeInput{Code: code, Nonce: "nonce-x"})
	assert.NoError(t, err)
}

func TestProvider_IssuerValidationDisabled(t *testing.T) {
	idp := testutil.NewFakeIDP(t, testClientID)

	cfg := testProviderConfig(idp)
	cfg.ValidateIssuer = false
	prov, err := NewProvider(cfg)
	require.NoError(t, err)

	claims := idp.DefaultClaims("abc123", "nonce-x")
	claims["iss"] = "https://other-tenant.example.com"
	code := idp.MintCode(claims)

	_, err = prov.Exchange(context.Background(), ports.ExchangeInput{Code: code, Nonce: "nonce-x"})
	assert.NoError(t, err)
}

func TestProvider_ConsumerTenantEmailsClaim(t *testing.T) {
	idp := testutil.NewFakeIDP(t, testClientID)

	cfg := testProviderConfig(idp)
	cfg.TenantVariant = config.TenantConsumer
	prov, err := NewProvider(cfg)
	require.NoError(t, err)

	claims := idp.DefaultClaims("abc123", "nonce-x")
	claims["emails"] = []string{"jane@consumer.example.com", "alt@consumer.example.com"}
	code := idp.MintCode(claims)

	profile, err := prov.Exchange(context.Background(), ports.ExchangeInput{Code: code, Nonce: "nonce-x"})
	require.NoError(t, err)
	assert.Equal(t, "jane@consumer.example.com", profile.Email)
}

func TestProvider_UserInfoFillsMissingFields(t *testing.T) {
	idp := testutil.NewFakeIDP(t, testClientID)
	idp.UserInfoClaims = map[string]any{
		"sub":   "abc123",
		"name":  "Jane Doe",
		"email": "jane@example.com",
	}

	prov, err := NewProvider(testProviderConfig(idp))
	require.NoError(t, err)

	// The id_token carries only the subject; name and email come from the
	// userinfo endpoint.
	code := idp.MintCode(idp.DefaultClaims("abc123", "nonce-x"))

	profile, err := prov.Exchange(context.Background(), ports.ExchangeInput{Code: code, Nonce: "nonce-x"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", profile.SubjectID)
	assert.Equal(t, "Jane Doe", profile.DisplayName)
	assert.Equal(t, "jane@example.com", profile.Email)
}

func TestProvider_ExchangeBadCode(t *testing.T) {
	idp := testutil.NewFakeIDP(t, testClientID)

	prov, err := NewProvider(testProviderConfig(idp))
	require.NoError(t, err)

	_, err = prov.Exchange(context.Background(), ports.ExchangeInput{Code: "never-minted", Nonce: "n"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}
