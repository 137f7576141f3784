package config

import (
	"fmt"
	"path"
	"strings"
)

// HTTPConfig contains HTTP server and protected-surface configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":4242"`

	// BaseURL is the base URL of the gateway (e.g. "https://flags.example.com").
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:4242"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// ProtectedPrefix is the path prefix guarded by the session check.
	// Everything under it requires an authenticated session except the
	// login and error endpoints.
	ProtectedPrefix string `env:"PROTECTED_PREFIX" envDefault:"/api/admin/"`

	// CallbackPath is where the identity provider returns control.
	CallbackPath string `env:"CALLBACK_PATH" envDefault:"/api/auth/callback"`

	// ErrorPath receives the redirect after a failed login attempt.
	ErrorPath string `env:"AUTH_ERROR_PATH" envDefault:"/api/admin/error-login"`

	// UpstreamURL is the feature-flag service the gateway fronts. Guarded
	// and unguarded traffic alike is forwarded there; empty disables
	// forwarding (useful in tests).
	UpstreamURL string `env:"UPSTREAM_URL"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.ProtectedPrefix = strings.TrimSpace(h.ProtectedPrefix)
	if h.ProtectedPrefix == "" {
		h.ProtectedPrefix = "/api/admin/"
	}
	if !strings.HasSuffix(h.ProtectedPrefix, "/") {
		h.ProtectedPrefix += "/"
	}
	if h.Addr == "" {
		h.Addr = ":4242"
	}
}

// Validate rejects HTTP configurations the router cannot serve.
func (h HTTPConfig) Validate() error {
	if !strings.HasPrefix(h.ProtectedPrefix, "/") {
		return fmt.Errorf("PROTECTED_PREFIX %q must start with /", h.ProtectedPrefix)
	}
	if !strings.HasPrefix(h.CallbackPath, "/") {
		return fmt.Errorf("CALLBACK_PATH %q must start with /", h.CallbackPath)
	}
	if !strings.HasPrefix(h.ErrorPath, "/") {
		return fmt.Errorf("AUTH_ERROR_PATH %q must start with /", h.ErrorPath)
	}
	return nil
}

// LoginPath is the login endpoint, carved out inside the protected prefix.
func (h HTTPConfig) LoginPath() string {
	return path.Join(h.ProtectedPrefix, "login")
}
