package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/flagops/flaggate/internal/domain/auth"
)

// Sentinel errors shared across adapter implementations.
var (
	// ErrSessionNotFound is returned when a session is not in the store.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStateNotFound is returned when an auth request state is unknown,
	// expired, or already consumed.
	ErrStateNotFound = errors.New("auth request state not found")
	// ErrNonceUsed is returned when a nonce has already been consumed.
	ErrNonceUsed = errors.New("nonce already used")
)

// BeginInput carries inputs for initiating an auth flow.
type BeginInput struct {
	// RedirectURI is the post-login destination inside the application.
	RedirectURI string
}

// ExchangeInput groups parameters for the code/token exchange.
type ExchangeInput struct {
	Code string
	// Nonce is the value issued with the login redirect; the id_token's
	// nonce claim must match it.
	Nonce string
}

// AuthProvider initiates and completes an authentication flow against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL plus
	// the freshly issued auth request state.
	Begin(ctx context.Context, in BeginInput) (authURL string, state domainauth.AuthRequestState, err error)

	// Exchange completes the login flow, validating the provider response
	// (signature, issuer, nonce, clock skew, subject) and returning the
	// normalized profile.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Profile, error)
}

// SessionStore persists and retrieves user sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// StateStore holds transient auth request state between the login redirect
// and its callback. Consume and ConsumeNonce are atomic: concurrent calls
// for the same key succeed at most once.
type StateStore interface {
	// Issue records a pending auth request state for its lifetime.
	Issue(ctx context.Context, st domainauth.AuthRequestState, lifetime time.Duration) error

	// Consume removes and returns the state for the given correlation key.
	// Returns ErrStateNotFound when unknown, expired, or already consumed.
	Consume(ctx context.Context, state string) (domainauth.AuthRequestState, error)

	// ConsumeNonce marks a nonce as used for ttl, failing with ErrNonceUsed
	// if it was seen before. Used in cookie state mode where the state
	// itself never touches the server.
	ConsumeNonce(ctx context.Context, nonce string, ttl time.Duration) error
}

// UserDirectory is the in-memory registry mapping a provider subject
// identifier to its cached profile.
type UserDirectory interface {
	// FindOrCreate returns the entry for the profile's subject, creating it
	// on first sight. Implementations must not create duplicates under
	// concurrent calls for the same new subject.
	FindOrCreate(ctx context.Context, profile domainauth.Profile) (entry domainauth.DirectoryEntry, created bool, err error)
}
