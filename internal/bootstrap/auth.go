package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/flagops/flaggate/config"
	"github.com/flagops/flaggate/internal/adapters/devauth"
	"github.com/flagops/flaggate/internal/adapters/memstore"
	"github.com/flagops/flaggate/internal/adapters/oidc"
	redisadapter "github.com/flagops/flaggate/internal/adapters/redis"
	"github.com/flagops/flaggate/internal/observability/statsd"
	"github.com/flagops/flaggate/internal/ports"
	"github.com/flagops/flaggate/internal/service"
)

// AuthDeps contains dependencies for building the auth service.
type AuthDeps struct {
	Config config.AppConfig
	// RedisClient is required when the session store kind is redis.
	RedisClient redis.UniversalClient
	Directory   ports.UserDirectory
	Logger      *slog.Logger
	Sink        statsd.Sink
}

// BuildAuthService wires the auth service for the configured mode. Unlike a
// feature that can degrade, authentication is the point of this service:
// configuration problems are returned as errors and must abort startup.
func BuildAuthService(deps AuthDeps) (*service.AuthService, error) {
	authCfg := deps.Config.Auth

	sessions, states, err := buildStores(deps)
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(deps)
	if err != nil {
		return nil, err
	}

	return service.NewAuthService(service.AuthServiceOptions{
		Provider:        provider,
		Sessions:        sessions,
		States:          states,
		Directory:       deps.Directory,
		CookieState:     authCfg.OIDC.StateStorage == config.StateStorageCookie,
		StateLifetime:   authCfg.OIDC.NonceLifetime,
		SessionLifetime: authCfg.SessionLifetime,
		Logger:          deps.Logger,
		Sink:            deps.Sink,
	}), nil
}

func buildStores(deps AuthDeps) (ports.SessionStore, ports.StateStore, error) {
	switch deps.Config.Auth.SessionStore {
	case config.SessionStoreRedis:
		if deps.RedisClient == nil {
			return nil, nil, fmt.Errorf("SESSION_STORE=redis requires a redis connection")
		}
		return redisadapter.NewSessionStore(deps.RedisClient),
			redisadapter.NewStateStore(deps.RedisClient), nil
	case config.SessionStoreMemory:
		return memstore.NewSessionStore(),
			memstore.NewStateStore(deps.Config.Auth.OIDC.NonceMaxAmount), nil
	default:
		return nil, nil, fmt.Errorf("unsupported session store kind %q", deps.Config.Auth.SessionStore)
	}
}

//nolint:ireturn // mode selection decides the concrete provider.
func buildProvider(deps AuthDeps) (ports.AuthProvider, error) {
	authCfg := deps.Config.Auth

	switch authCfg.Mode {
	case config.AuthModeMock:
		prov, err := devauth.NewProvider(devauth.Config{
			SubjectID:    authCfg.DevAuth.SubjectID,
			DisplayName:  authCfg.DevAuth.DisplayName,
			Email:        authCfg.DevAuth.Email,
			CallbackPath: deps.Config.HTTP.CallbackPath,
		})
		if err != nil {
			return nil, fmt.Errorf("build dev auth provider: %w", err)
		}
		if deps.Logger != nil {
			deps.Logger.Warn("mock authentication enabled; do not use in production",
				"subject_id", authCfg.DevAuth.SubjectID)
		}
		return prov, nil

	case config.AuthModeOIDC:
		oauth := authCfg.OIDC
		prov, err := oidc.NewProvider(oidc.ProviderConfig{
			ClientID:          oauth.ClientID,
			ClientSecret:      oauth.ClientSecret,
			RedirectURL:       oauth.RedirectURL,
			Scope:             oauth.Scope,
			DiscoveryURL:      oauth.DiscoveryURL,
			Issuer:            oauth.Issuer,
			ValidateIssuer:    oauth.ValidateIssuer,
			ClockSkew:         oauth.ClockSkew,
			ResponseMode:      oauth.ResponseMode,
			TenantVariant:     oauth.TenantVariant,
			AllowHTTPRedirect: oauth.AllowHTTPRedirect,
			HTTPTimeout:       oauth.HTTPTimeout,
			RetryMax:          oauth.RetryMax,
		})
		if err != nil {
			return nil, fmt.Errorf("build identity provider client: %w", err)
		}
		return prov, nil

	default:
		return nil, fmt.Errorf("unsupported AUTH_MODE %q", authCfg.Mode)
	}
}
