package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the gateway.
type AuthMode string

const (
	// AuthModeOIDC authenticates operators against an external OIDC provider.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oidc", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oidc, mock)", v)
	}
}

// ResponseMode controls how the identity provider returns the authorization
// response to the callback endpoint.
type ResponseMode string

const (
	// ResponseModeFormPost delivers the response as a form-encoded POST body.
	ResponseModeFormPost ResponseMode = "form_post"
	// ResponseModeQuery delivers the response as callback query parameters.
	ResponseModeQuery ResponseMode = "query"
)

// UnmarshalText implements encoding.TextUnmarshaler for ResponseMode.
func (m *ResponseMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "form_post", "query":
		*m = ResponseMode(v)
		return nil
	default:
		return fmt.Errorf("invalid ResponseMode: %q (valid options: form_post, query)", v)
	}
}

// StateStorage selects where per-attempt auth request state (state, nonce,
// redirect target) lives between the login redirect and the callback.
type StateStorage string

const (
	// StateStorageSession keeps auth request state server-side, keyed by state.
	StateStorageSession StateStorage = "session"
	// StateStorageCookie carries auth request state in an encrypted cookie.
	StateStorageCookie StateStorage = "cookie"
)

// UnmarshalText implements encoding.TextUnmarshaler for StateStorage.
func (s *StateStorage) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "session", "cookie":
		*s = StateStorage(v)
		return nil
	default:
		return fmt.Errorf("invalid StateStorage: %q (valid options: session, cookie)", v)
	}
}

// TenantVariant distinguishes organizational tenants from consumer tenants,
// which expose a different claim shape (email arrives in an "emails" array).
type TenantVariant string

const (
	// TenantOrganizational is the default workforce tenant variant.
	TenantOrganizational TenantVariant = "organizational"
	// TenantConsumer is the consumer (B2C-style) tenant variant.
	TenantConsumer TenantVariant = "consumer"
)

// UnmarshalText implements encoding.TextUnmarshaler for TenantVariant.
func (t *TenantVariant) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "organizational", "consumer":
		*t = TenantVariant(v)
		return nil
	default:
		return fmt.Errorf("invalid TenantVariant: %q (valid options: organizational, consumer)", v)
	}
}

// SessionStoreKind selects the session store backend.
type SessionStoreKind string

const (
	// SessionStoreRedis persists sessions in Redis (production default).
	SessionStoreRedis SessionStoreKind = "redis"
	// SessionStoreMemory keeps sessions in process memory (dev/tests).
	SessionStoreMemory SessionStoreKind = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for SessionStoreKind.
func (k *SessionStoreKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "redis", "memory":
		*k = SessionStoreKind(v)
		return nil
	default:
		return fmt.Errorf("invalid SessionStoreKind: %q (valid options: redis, memory)", v)
	}
}

// OIDCConfig contains the identity provider client configuration.
// Every recognized option maps to one environment variable under OIDC_.
type OIDCConfig struct {
	// DiscoveryURL is the provider metadata endpoint (or its issuer base).
	DiscoveryURL string `env:"DISCOVERY_URL"`

	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`

	// ResponseType must be "code"; the gateway implements only the
	// authorization-code flow.
	ResponseType string `env:"RESPONSE_TYPE" envDefault:"code"`

	// ResponseMode determines the callback delivery mechanism and therefore
	// the HTTP method the callback route accepts.
	ResponseMode ResponseMode `env:"RESPONSE_MODE" envDefault:"form_post"`

	// RedirectURL is the absolute callback URL registered with the provider.
	RedirectURL string `env:"REDIRECT_URL" envDefault:"https://localhost:4242/api/auth/callback"`

	// Scope is the space-separated scope list requested from the provider.
	Scope string `env:"SCOPE" envDefault:"openid profile email"`

	// Issuer overrides the issuer expected in id_tokens. Empty means the
	// issuer announced by the discovery document.
	Issuer string `env:"ISSUER"`

	// ValidateIssuer disables issuer validation when false. Leave enabled
	// outside of multi-tenant setups that rotate issuers.
	ValidateIssuer bool `env:"VALIDATE_ISSUER" envDefault:"true"`

	// TenantVariant switches claim normalization between organizational and
	// consumer tenant claim shapes.
	TenantVariant TenantVariant `env:"TENANT_VARIANT" envDefault:"organizational"`

	// NonceLifetime bounds how long an issued auth request state remains
	// redeemable.
	NonceLifetime time.Duration `env:"NONCE_LIFETIME" envDefault:"10m"`

	// NonceMaxAmount caps outstanding auth request states in memory-backed
	// state stores; the oldest entries are evicted past the cap.
	NonceMaxAmount int `env:"NONCE_MAX_AMOUNT" envDefault:"1000"`

	// ClockSkew is the tolerated difference between token timestamps and
	// local time before a token is rejected as expired or future-dated.
	ClockSkew time.Duration `env:"CLOCK_SKEW" envDefault:"5m"`

	// StateStorage selects cookie-borne vs server-side auth request state.
	StateStorage StateStorage `env:"STATE_STORAGE" envDefault:"session"`

	// CookieEncryptionKeys are base64-encoded 32-byte AES-256-GCM keys for
	// the state cookie. The first key encrypts; the rest still decrypt,
	// which allows rotation. Required when StateStorage is "cookie".
	CookieEncryptionKeys []string `env:"COOKIE_ENCRYPTION_KEYS" envSeparator:";"`

	// AllowHTTPRedirect permits a plain-HTTP redirect URL. Defaults to
	// HTTPS-only; enable only in non-production environments.
	AllowHTTPRedirect bool `env:"ALLOW_HTTP_REDIRECT" envDefault:"false"`

	// HTTPTimeout bounds each HTTP call to the provider's metadata, token,
	// and signing-key endpoints.
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	// RetryMax bounds retries for discovery/JWKS fetches before the login
	// attempt is failed.
	RetryMax int `env:"RETRY_MAX" envDefault:"3"`
}

// Validate rejects configurations the identity provider client cannot serve.
func (c OIDCConfig) Validate() error {
	if c.DiscoveryURL == "" {
		return fmt.Errorf("OIDC_DISCOVERY_URL is required")
	}
	if c.ClientID == "" {
		return fmt.Errorf("OIDC_CLIENT_ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("OIDC_CLIENT_SECRET is required")
	}
	if c.ResponseType != "code" {
		return fmt.Errorf("unsupported OIDC_RESPONSE_TYPE %q: only the authorization-code flow is supported", c.ResponseType)
	}
	u, err := url.Parse(c.RedirectURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("OIDC_REDIRECT_URL %q is not an absolute URL", c.RedirectURL)
	}
	if u.Scheme != "https" && !c.AllowHTTPRedirect {
		return fmt.Errorf("OIDC_REDIRECT_URL %q uses %s; set OIDC_ALLOW_HTTP_REDIRECT=true to permit non-HTTPS redirects outside production", c.RedirectURL, u.Scheme)
	}
	if c.StateStorage == StateStorageCookie {
		if len(c.CookieEncryptionKeys) == 0 {
			return fmt.Errorf("OIDC_COOKIE_ENCRYPTION_KEYS is required when OIDC_STATE_STORAGE=cookie")
		}
		for i, k := range c.CookieEncryptionKeys {
			raw, decErr := base64.StdEncoding.DecodeString(k)
			if decErr != nil || len(raw) != 32 {
				return fmt.Errorf("OIDC_COOKIE_ENCRYPTION_KEYS[%d] must be a base64-encoded 32-byte key", i)
			}
		}
	}
	if c.NonceLifetime <= 0 {
		return fmt.Errorf("OIDC_NONCE_LIFETIME must be positive")
	}
	return nil
}

// DevAuthConfig controls the mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	SubjectID   string `env:"SUBJECT_ID"   envDefault:"dev-user"`
	DisplayName string `env:"DISPLAY_NAME" envDefault:"Dev User"`
	Email       string `env:"EMAIL"        envDefault:"dev@example.com"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oidc"`

	// OIDC configuration (used when Mode=oidc).
	OIDC OIDCConfig `envPrefix:"OIDC_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// SessionStore selects the session store backend.
	SessionStore SessionStoreKind `env:"SESSION_STORE" envDefault:"redis"`

	// SessionLifetime is the server-side session duration.
	SessionLifetime time.Duration `env:"SESSION_LIFETIME" envDefault:"8h"`
}

// Sanitize applies guardrails to auth configuration values.
func (c *AuthConfig) Sanitize() {
	if c.SessionLifetime <= 0 {
		c.SessionLifetime = 8 * time.Hour
	}
	if c.OIDC.NonceMaxAmount <= 0 {
		c.OIDC.NonceMaxAmount = 1000
	}
	if c.OIDC.ClockSkew < 0 {
		c.OIDC.ClockSkew = 0
	}
	c.OIDC.Scope = strings.TrimSpace(c.OIDC.Scope)
}

// Validate rejects auth configurations the gateway cannot start with.
func (c AuthConfig) Validate() error {
	switch c.Mode {
	case AuthModeOIDC:
		return c.OIDC.Validate()
	case AuthModeMock:
		if c.DevAuth.SubjectID == "" {
			return fmt.Errorf("DEV_AUTH_SUBJECT_ID is required when AUTH_MODE=mock")
		}
		return nil
	default:
		return fmt.Errorf("unsupported AUTH_MODE %q", c.Mode)
	}
}

// CookieKeys returns the decoded cookie encryption keys, write key first.
// Validate must have accepted the configuration before calling this.
func (c OIDCConfig) CookieKeys() [][]byte {
	keys := make([][]byte, 0, len(c.CookieEncryptionKeys))
	for _, k := range c.CookieEncryptionKeys {
		raw, err := base64.StdEncoding.DecodeString(k)
		if err != nil {
			continue
		}
		keys = append(keys, raw)
	}
	return keys
}
