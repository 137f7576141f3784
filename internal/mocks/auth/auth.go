package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"fmt"
	"time"

	domainauth "github.com/flagops/flaggate/internal/domain/auth"
	"github.com/flagops/flaggate/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.AuthProvider  = (*MockAuthProvider)(nil)
	_ ports.StateStore    = (*MemoryStateStore)(nil)
	_ ports.UserDirectory = (*MockUserDirectory)(nil)
)

// MockAuthProvider simulates an IdP for tests with deterministic state/nonce handling.
type MockAuthProvider struct {
	BeginFunc    func(ctx context.Context, in ports.BeginInput) (string, domainauth.AuthRequestState, error)
	ExchangeFunc func(ctx context.Context, in ports.ExchangeInput) (domainauth.Profile, error)

	// Deterministic values for predictable testing
	AuthURL        string
	DefaultProfile domainauth.Profile

	// Internal state tracking for deterministic behavior
	callCount int

	// LastExchange records the most recent Exchange input.
	LastExchange ports.ExchangeInput
}

// NewMockAuthProvider creates a MockAuthProvider with sensible defaults.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		AuthURL: "https://mock-idp/authorize",
		DefaultProfile: domainauth.Profile{
			SubjectID:   "mock-subject-1",
			DisplayName: "Mock User",
			Email:       "mock.user@example.com",
		},
	}
}

func (m *MockAuthProvider) Begin(ctx context.Context, in ports.BeginInput) (string, domainauth.AuthRequestState, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx, in)
	}

	m.callCount++
	authURL := m.AuthURL
	if authURL == "" {
		authURL = "https://mock-idp/authorize"
	}

	st := domainauth.AuthRequestState{
		State:       fmt.Sprintf("state-%d", m.callCount),
		Nonce:       fmt.Sprintf("nonce-%d", m.callCount),
		RedirectURI: in.RedirectURI,
		IssuedAt:    time.Now(),
	}
	return authURL, st, nil
}

func (m *MockAuthProvider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Profile, error) {
	m.LastExchange = in
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, in)
	}
	return m.DefaultProfile, nil
}

// MemoryStateStore is a minimal non-atomic state store for unit tests.
type MemoryStateStore struct {
	states map[string]domainauth.AuthRequestState
	nonces map[string]struct{}
}

// NewMemoryStateStore creates a new in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[string]domainauth.AuthRequestState),
		nonces: make(map[string]struct{}),
	}
}

func (m *MemoryStateStore) Issue(_ context.Context, st domainauth.AuthRequestState, _ time.Duration) error {
	m.states[st.State] = st
	return nil
}

func (m *MemoryStateStore) Consume(_ context.Context, state string) (domainauth.AuthRequestState, error) {
	st, ok := m.states[state]
	if !ok {
		return domainauth.AuthRequestState{}, ports.ErrStateNotFound
	}
	delete(m.states, state)
	return st, nil
}

func (m *MemoryStateStore) ConsumeNonce(_ context.Context, nonce string, _ time.Duration) error {
	if _, used := m.nonces[nonce]; used {
		return ports.ErrNonceUsed
	}
	m.nonces[nonce] = struct{}{}
	return nil
}

// MockUserDirectory records FindOrCreate calls and returns canned entries.
type MockUserDirectory struct {
	FindOrCreateFunc func(ctx context.Context, profile domainauth.Profile) (domainauth.DirectoryEntry, bool, error)

	Calls []domainauth.Profile
	seen  map[string]struct{}
}

func (m *MockUserDirectory) FindOrCreate(ctx context.Context, profile domainauth.Profile) (domainauth.DirectoryEntry, bool, error) {
	m.Calls = append(m.Calls, profile)
	if m.FindOrCreateFunc != nil {
		return m.FindOrCreateFunc(ctx, profile)
	}
	if m.seen == nil {
		m.seen = make(map[string]struct{})
	}
	_, known := m.seen[profile.SubjectID]
	m.seen[profile.SubjectID] = struct{}{}
	now := time.Now()
	return domainauth.DirectoryEntry{
		SubjectID:   profile.SubjectID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		RawClaims:   profile.RawClaims,
		CreatedAt:   now,
		LastLoginAt: now,
	}, !known, nil
}
