package memstore

// Package memstore provides in-process implementations of the session and
// auth request state stores for single-node deployments, development, and
// tests. Production multi-node deployments use the redis adapters.

import (
	"context"
	"errors"
	"sync"
	"time"

	domainauth "github.com/flagops/flaggate/internal/domain/auth"
	"github.com/flagops/flaggate/internal/ports"
)

// SessionStore keeps sessions in a mutex-guarded map.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
	now      func() time.Time
}

var _ ports.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]domainauth.Session),
		now:      time.Now,
	}
}

// Save stores the session until its expiry.
func (s *SessionStore) Save(_ context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

// Get returns the session, treating expired entries as absent.
func (s *SessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return domainauth.Session{}, ports.ErrSessionNotFound
	}
	if s.now().After(sess.ExpiresAt) {
		delete(s.sessions, id)
		return domainauth.Session{}, ports.ErrSessionNotFound
	}
	return sess, nil
}

// Delete removes the session if present.
func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// StateStore keeps pending auth request states and consumed-nonce
// tombstones. The single mutex makes Consume and ConsumeNonce atomic, so a
// concurrent replay of the same callback loses deterministically. Outstanding
// states are capped: past MaxOutstanding, issuing evicts the oldest pending
// entries first.
type StateStore struct {
	mu             sync.Mutex
	pending        map[string]pendingState
	usedNonces     map[string]time.Time
	maxOutstanding int
	now            func() time.Time
}

type pendingState struct {
	st        domainauth.AuthRequestState
	expiresAt time.Time
}

var _ ports.StateStore = (*StateStore)(nil)

// NewStateStore creates a state store capped at maxOutstanding pending
// entries. A non-positive cap disables eviction.
func NewStateStore(maxOutstanding int) *StateStore {
	return &StateStore{
		pending:        make(map[string]pendingState),
		usedNonces:     make(map[string]time.Time),
		maxOutstanding: maxOutstanding,
		now:            time.Now,
	}
}

// Issue records a pending auth request state for its lifetime.
func (s *StateStore) Issue(_ context.Context, st domainauth.AuthRequestState, lifetime time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)
	if s.maxOutstanding > 0 {
		for len(s.pending) >= s.maxOutstanding {
			s.evictOldestLocked()
		}
	}
	s.pending[st.State] = pendingState{st: st, expiresAt: now.Add(lifetime)}
	return nil
}

// Consume removes and returns the state for the correlation key.
func (s *StateStore) Consume(_ context.Context, state string) (domainauth.AuthRequestState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[state]
	if !ok {
		return domainauth.AuthRequestState{}, ports.ErrStateNotFound
	}
	delete(s.pending, state)
	if s.now().After(p.expiresAt) {
		return domainauth.AuthRequestState{}, ports.ErrStateNotFound
	}
	return p.st, nil
}

// ConsumeNonce marks a nonce as used for ttl, failing on replay.
func (s *StateStore) ConsumeNonce(_ context.Context, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if expiry, ok := s.usedNonces[nonce]; ok && now.Before(expiry) {
		return ports.ErrNonceUsed
	}
	// Opportunistic cleanup of expired tombstones.
	for n, expiry := range s.usedNonces {
		if now.After(expiry) {
			delete(s.usedNonces, n)
		}
	}
	s.usedNonces[nonce] = now.Add(ttl)
	return nil
}

func (s *StateStore) sweepLocked(now time.Time) {
	for k, p := range s.pending {
		if now.After(p.expiresAt) {
			delete(s.pending, k)
		}
	}
}

func (s *StateStore) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, p := range s.pending {
		if oldestKey == "" || p.st.IssuedAt.Before(oldest) {
			oldestKey = k
			oldest = p.st.IssuedAt
		}
	}
	if oldestKey == "" {
		return
	}
	delete(s.pending, oldestKey)
}
