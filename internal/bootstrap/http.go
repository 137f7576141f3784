package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/flagops/flaggate/config"
	"github.com/flagops/flaggate/internal/cryptoutil"
	httpx "github.com/flagops/flaggate/internal/http"
	"github.com/flagops/flaggate/internal/observability/statsd"
	"github.com/flagops/flaggate/internal/service"
)

// HTTPDeps contains dependencies for the HTTP server.
type HTTPDeps struct {
	Config config.AppConfig
	Auth   *service.AuthService
	Logger *slog.Logger
	Sink   statsd.Sink
}

// BuildHandler assembles the gateway router from configuration.
func BuildHandler(deps HTTPDeps) (http.Handler, error) {
	cfg := deps.Config

	var upstream http.Handler
	if cfg.HTTP.UpstreamURL != "" {
		u, err := url.Parse(cfg.HTTP.UpstreamURL)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("UPSTREAM_URL %q is not a valid absolute URL", cfg.HTTP.UpstreamURL)
		}
		upstream = httpx.NewUpstreamProxy(u, deps.Logger)
	}

	var stateCookies *httpx.StateCookieCodec
	if cfg.Auth.OIDC.StateStorage == config.StateStorageCookie {
		ring, err := cryptoutil.NewKeyRing(cfg.Auth.OIDC.CookieKeys())
		if err != nil {
			return nil, fmt.Errorf("build state cookie key ring: %w", err)
		}
		stateCookies = &httpx.StateCookieCodec{
			Encryptor:    ring,
			CookieDomain: cfg.HTTP.CookieDomain,
			Lifetime:     cfg.Auth.OIDC.NonceLifetime,
		}
	}

	return httpx.NewRouter(httpx.RouterServices{
		Auth:             deps.Auth,
		Upstream:         upstream,
		ProtectedPrefix:  cfg.HTTP.ProtectedPrefix,
		CallbackPath:     cfg.HTTP.CallbackPath,
		CallbackUsesPOST: callbackUsesPOST(cfg.Auth),
		ErrorPath:        cfg.HTTP.ErrorPath,
		CookieDomain:     cfg.HTTP.CookieDomain,
		StateCookies:     stateCookies,
		Logger:           deps.Logger,
		Sink:             deps.Sink,
	}), nil
}

// callbackUsesPOST picks the callback route method for the active provider.
// The dev provider always delivers the callback as a browser GET redirect;
// only a real provider in form_post mode POSTs the response.
func callbackUsesPOST(authCfg config.AuthConfig) bool {
	if authCfg.Mode == config.AuthModeMock {
		return false
	}
	return authCfg.OIDC.ResponseMode == config.ResponseModeFormPost
}

// StartHTTPServer starts the HTTP server on the configured address.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(deps HTTPDeps, handler http.Handler) *http.Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	addr := deps.Config.HTTP.Addr
	if addr == "" {
		addr = ":4242"
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	if server == nil {
		return nil
	}

	if logger != nil {
		logger.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if logger != nil {
		logger.Info("HTTP server stopped")
	}

	return nil
}
