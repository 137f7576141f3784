package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/flagops/flaggate/internal/domain/auth"
	"github.com/flagops/flaggate/internal/ports"
)

// StateStore keeps pending auth request states and consumed-nonce
// tombstones in Redis. Atomicity comes from the Redis primitives
// themselves: GETDEL makes Consume single-shot and SET NX makes a nonce
// tombstone first-writer-wins, so concurrent callback replays lose.
// Lifetimes are enforced with key TTLs; there is no outstanding-state cap
// because expiry keeps the set bounded.
type StateStore struct {
	client      redis.UniversalClient
	statePrefix string
	noncePrefix string
}

var _ ports.StateStore = (*StateStore)(nil)

// NewStateStore creates a Redis-backed auth request state store.
func NewStateStore(client redis.UniversalClient) *StateStore {
	return &StateStore{
		client:      client,
		statePrefix: "authstate:",
		noncePrefix: "authnonce:",
	}
}

// Issue records a pending auth request state for its lifetime.
func (s *StateStore) Issue(ctx context.Context, st domainauth.AuthRequestState, lifetime time.Duration) error {
	if st.State == "" {
		return errors.New("auth request state key cannot be empty")
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal auth request state: %w", err)
	}
	return s.client.Set(ctx, s.statePrefix+st.State, data, lifetime).Err()
}

// Consume removes and returns the state for the correlation key.
func (s *StateStore) Consume(ctx context.Context, state string) (domainauth.AuthRequestState, error) {
	if state == "" {
		return domainauth.AuthRequestState{}, ports.ErrStateNotFound
	}

	data, err := s.client.GetDel(ctx, s.statePrefix+state).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.AuthRequestState{}, ports.ErrStateNotFound
		}
		return domainauth.AuthRequestState{}, fmt.Errorf("redis getdel: %w", err)
	}

	var st domainauth.AuthRequestState
	if unmarshalErr := json.Unmarshal([]byte(data), &st); unmarshalErr != nil {
		return domainauth.AuthRequestState{}, fmt.Errorf("unmarshal auth request state: %w", unmarshalErr)
	}
	return st, nil
}

// ConsumeNonce marks a nonce as used for ttl, failing on replay.
func (s *StateStore) ConsumeNonce(ctx context.Context, nonce string, ttl time.Duration) error {
	if nonce == "" {
		return ports.ErrNonceUsed
	}
	set, err := s.client.SetNX(ctx, s.noncePrefix+nonce, "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !set {
		return ports.ErrNonceUsed
	}
	return nil
}
