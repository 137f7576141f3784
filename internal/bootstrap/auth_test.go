package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flagops/flaggate/config"
	"github.com/flagops/flaggate/internal/adapters/memdir"
	"github.com/flagops/flaggate/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mockModeConfig() config.AppConfig {
	cfg := config.AppConfig{}
	cfg.Auth.Mode = config.AuthModeMock
	cfg.Auth.SessionStore = config.SessionStoreMemory
	cfg.Auth.DevAuth = config.DevAuthConfig{
		SubjectID:   "dev-user",
		DisplayName: "Dev User",
		Email:       "dev@example.com",
	}
	cfg.Auth.OIDC.NonceMaxAmount = 100
	cfg.Sanitize()
	return cfg
}

func TestBuildAuthService_MockModeEndToEnd(t *testing.T) {
	svc, err := BuildAuthService(AuthDeps{
		Config:    mockModeConfig(),
		Directory: memdir.New(),
		Logger:    discardLogger(),
	})
	require.NoError(t, err)
	require.NotNil(t, svc)

	ctx := context.Background()

	begin, err := svc.BeginLogin(ctx, "/features")
	require.NoError(t, err)
	assert.NotEmpty(t, begin.AuthURL)

	result, err := svc.CompleteLogin(ctx, service.CompleteLoginInput{
		Code:  "dev",
		State: begin.State.State,
	})
	require.NoError(t, err)
	assert.Equal(t, "dev-user", result.Session.SubjectID)
	assert.Equal(t, "dev@example.com", result.Session.Email)
}

func TestBuildAuthService_RedisWithoutClient(t *testing.T) {
	cfg := mockModeConfig()
	cfg.Auth.SessionStore = config.SessionStoreRedis

	_, err := BuildAuthService(AuthDeps{
		Config:    cfg,
		Directory: memdir.New(),
		Logger:    discardLogger(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestBuildAuthService_UnsupportedMode(t *testing.T) {
	cfg := mockModeConfig()
	cfg.Auth.Mode = config.AuthMode("saml")

	_, err := BuildAuthService(AuthDeps{
		Config:    cfg,
		Directory: memdir.New(),
		Logger:    discardLogger(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTH_MODE")
}

func TestBuildAuthService_MockModeRequiresSubject(t *testing.T) {
	cfg := mockModeConfig()
	cfg.Auth.DevAuth.SubjectID = ""

	_, err := BuildAuthService(AuthDeps{
		Config:    cfg,
		Directory: memdir.New(),
		Logger:    discardLogger(),
	})
	require.Error(t, err)
}
