package devauth

// Package devauth provides a simple, config-driven AuthProvider for local
// development. It short-circuits the OIDC flow by redirecting straight back
// to the gateway's own callback with locally generated state and nonce.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"time"

	domainauth "github.com/flagops/flaggate/internal/domain/auth"
	"github.com/flagops/flaggate/internal/ports"
)

// Config controls the dev auth provider behavior.
type Config struct {
	SubjectID   string
	DisplayName string
	Email       string
	// CallbackPath is the gateway's own callback endpoint.
	CallbackPath string
}

// Provider implements ports.AuthProvider for local development.
// Exchange ignores the code and returns the configured profile.
type Provider struct {
	profile      domainauth.Profile
	callbackPath string
}

var _ ports.AuthProvider = (*Provider)(nil)

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.SubjectID == "" {
		return nil, errors.New("dev auth: SubjectID is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	callbackPath := cfg.CallbackPath
	if callbackPath == "" {
		callbackPath = "/api/auth/callback"
	}
	return &Provider{
		profile: domainauth.Profile{
			SubjectID:   cfg.SubjectID,
			DisplayName: cfg.DisplayName,
			Email:       cfg.Email,
			RawClaims: map[string]any{
				"sub":   cfg.SubjectID,
				"name":  cfg.DisplayName,
				"email": cfg.Email,
			},
		},
		callbackPath: callbackPath,
	}, nil
}

// Begin returns a local callback URL plus cryptographically secure state and nonce.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, domainauth.AuthRequestState, error) {
	state, err := randomString(24)
	if err != nil {
		return "", domainauth.AuthRequestState{}, fmt.Errorf("generate state: %w", err)
	}
	nonce, err := randomString(24)
	if err != nil {
		return "", domainauth.AuthRequestState{}, fmt.Errorf("generate nonce: %w", err)
	}

	q := url.Values{}
	q.Set("code", "dev")
	q.Set("state", state)
	authURL := p.callbackPath + "?" + q.Encode()

	return authURL, domainauth.AuthRequestState{
		State:       state,
		Nonce:       nonce,
		RedirectURI: in.RedirectURI,
		IssuedAt:    time.Now(),
	}, nil
}

// Exchange ignores the provided code (state handling is the service's job)
// and returns the configured dev profile.
func (p *Provider) Exchange(_ context.Context, _ ports.ExchangeInput) (domainauth.Profile, error) {
	return p.profile, nil
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
