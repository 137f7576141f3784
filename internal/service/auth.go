package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/flagops/flaggate/internal/domain/auth"
	apperrors "github.com/flagops/flaggate/internal/errors"
	"github.com/flagops/flaggate/internal/observability/metrics"
	"github.com/flagops/flaggate/internal/observability/statsd"
	"github.com/flagops/flaggate/internal/ports"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Provider  ports.AuthProvider
	Sessions  ports.SessionStore
	States    ports.StateStore
	Directory ports.UserDirectory

	// CookieState switches the correlation state to travel in an encrypted
	// cookie instead of the server-side state store. The store is still used
	// for nonce replay tracking.
	CookieState bool

	// StateLifetime bounds how long a login redirect stays redeemable.
	StateLifetime time.Duration
	// SessionLifetime bounds how long an established session stays valid.
	SessionLifetime time.Duration

	Logger *slog.Logger
	Sink   statsd.Sink
}

// AuthService orchestrates authentication flows by coordinating the identity
// provider, auth request state, the user directory, and session persistence.
type AuthService struct {
	provider  ports.AuthProvider
	sessions  ports.SessionStore
	states    ports.StateStore
	directory ports.UserDirectory

	cookieState     bool
	stateLifetime   time.Duration
	sessionLifetime time.Duration

	logger *slog.Logger
	sink   statsd.Sink
	now    func() time.Time
}

var errSessionExpired = errors.New("session expired")

const (
	defaultStateLifetime   = 10 * time.Minute
	defaultSessionLifetime = 8 * time.Hour
)

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	stateLifetime := opts.StateLifetime
	if stateLifetime <= 0 {
		stateLifetime = defaultStateLifetime
	}
	sessionLifetime := opts.SessionLifetime
	if sessionLifetime <= 0 {
		sessionLifetime = defaultSessionLifetime
	}
	return &AuthService{
		provider:        opts.Provider,
		sessions:        opts.Sessions,
		states:          opts.States,
		directory:       opts.Directory,
		cookieState:     opts.CookieState,
		stateLifetime:   stateLifetime,
		sessionLifetime: sessionLifetime,
		logger:          logger,
		sink:            opts.Sink,
		now:             time.Now,
	}
}

// BeginLoginResult contains the result of beginning a login flow.
type BeginLoginResult struct {
	AuthURL string
	State   domainauth.AuthRequestState
	// CookieState reports whether the caller must carry State back to the
	// callback itself (encrypted cookie) instead of the state store.
	CookieState bool
}

// BeginLogin initiates an authentication flow and returns the provider auth
// URL with the issued auth request state.
func (s *AuthService) BeginLogin(ctx context.Context, redirectURI string) (*BeginLoginResult, error) {
	redirectURI = sanitizeRedirectURI(redirectURI)

	authURL, st, err := s.provider.Begin(ctx, ports.BeginInput{RedirectURI: redirectURI})
	if err != nil {
		return nil, fmt.Errorf("begin auth flow: %w", err)
	}

	if !s.cookieState {
		if issueErr := s.states.Issue(ctx, st, s.stateLifetime); issueErr != nil {
			return nil, fmt.Errorf("issue auth request state: %w", issueErr)
		}
	}

	metrics.EmitLoginBegun(s.sink)
	s.logger.Debug("login redirect issued", "redirect_uri", redirectURI)

	return &BeginLoginResult{
		AuthURL:     authURL,
		State:       st,
		CookieState: s.cookieState,
	}, nil
}

// CompleteLoginInput groups parameters for completing a login flow.
type CompleteLoginInput struct {
	Code  string
	State string
	// CookieState is the state recovered from the encrypted state cookie.
	// Required when the service runs in cookie state mode, ignored otherwise.
	CookieState *domainauth.AuthRequestState
}

// CompleteLoginResult contains the result of completing a login flow.
type CompleteLoginResult struct {
	Session domainauth.Session
	// RedirectURI is the post-login destination captured at BeginLogin.
	RedirectURI string
	// Created reports whether this login auto-registered a new directory entry.
	Created bool
}

// CompleteLogin completes an authentication flow: it redeems the auth request
// state, exchanges the authorization code for a validated profile, records the
// user in the directory, and persists a session.
func (s *AuthService) CompleteLogin(ctx context.Context, input CompleteLoginInput) (*CompleteLoginResult, error) {
	started := s.now()

	result, err := s.completeLogin(ctx, input, started)
	if err != nil {
		metrics.EmitLoginCompleted(s.sink, metrics.LoginMetric{
			Result:   metrics.ResultError,
			Duration: s.now().Sub(started),
			Err:      err,
		})
		return nil, err
	}

	metrics.EmitLoginCompleted(s.sink, metrics.LoginMetric{
		Result:   metrics.ResultSuccess,
		Created:  result.Created,
		Duration: s.now().Sub(started),
	})
	return result, nil
}

func (s *AuthService) completeLogin(ctx context.Context, input CompleteLoginInput, now time.Time) (*CompleteLoginResult, error) {
	if input.Code == "" {
		return nil, apperrors.Validation("authorization code is required")
	}
	if input.State == "" {
		return nil, apperrors.Validation("state parameter is required")
	}

	st, err := s.redeemState(ctx, input, now)
	if err != nil {
		return nil, err
	}

	profile, err := s.provider.Exchange(ctx, ports.ExchangeInput{
		Code:  input.Code,
		Nonce: st.Nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	entry, created, err := s.directory.FindOrCreate(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("record user: %w", err)
	}
	if created {
		s.logger.Info("auto-registered user", "subject_id", entry.SubjectID)
	}

	session := domainauth.Session{
		ID:        uuid.NewString(),
		SubjectID: entry.SubjectID,
		Name:      entry.DisplayName,
		Email:     entry.Email,
		ExpiresAt: s.sessionExpiry(profile, now),
	}
	if saveErr := s.sessions.Save(ctx, session); saveErr != nil {
		return nil, fmt.Errorf("save session: %w", saveErr)
	}

	s.logger.Info("login complete", "subject_id", entry.SubjectID, "created", created)

	return &CompleteLoginResult{
		Session:     session,
		RedirectURI: st.RedirectURI,
		Created:     created,
	}, nil
}

// redeemState resolves and invalidates the auth request state for this
// callback. Whatever the storage mode, a state redeems at most once.
func (s *AuthService) redeemState(ctx context.Context, input CompleteLoginInput, now time.Time) (domainauth.AuthRequestState, error) {
	if s.cookieState {
		if input.CookieState == nil {
			return domainauth.AuthRequestState{}, apperrors.NonceReplay("missing state cookie")
		}
		st := *input.CookieState
		if st.State != input.State {
			return domainauth.AuthRequestState{}, apperrors.NonceReplay("state parameter does not match state cookie")
		}
		if st.ExpiresAfter(s.stateLifetime, now) {
			return domainauth.AuthRequestState{}, apperrors.NonceReplay("auth request state expired")
		}
		if err := s.states.ConsumeNonce(ctx, st.Nonce, s.stateLifetime); err != nil {
			if errors.Is(err, ports.ErrNonceUsed) {
				return domainauth.AuthRequestState{}, apperrors.NonceReplay("nonce already used")
			}
			return domainauth.AuthRequestState{}, fmt.Errorf("consume nonce: %w", err)
		}
		return st, nil
	}

	st, err := s.states.Consume(ctx, input.State)
	if err != nil {
		if errors.Is(err, ports.ErrStateNotFound) {
			return domainauth.AuthRequestState{}, apperrors.NonceReplay("unknown or already used auth request state")
		}
		return domainauth.AuthRequestState{}, fmt.Errorf("consume auth request state: %w", err)
	}
	return st, nil
}

// sessionExpiry derives the session deadline: the configured lifetime,
// shortened to the id_token expiry when the token expires sooner.
func (s *AuthService) sessionExpiry(profile domainauth.Profile, now time.Time) time.Time {
	expiresAt := now.Add(s.sessionLifetime)
	if exp, ok := claimTime(profile.RawClaims["exp"]); ok && exp.After(now) && exp.Before(expiresAt) {
		expiresAt = exp
	}
	return expiresAt
}

// claimTime reads a JWT numeric-date claim. JSON decoding delivers numbers
// as float64; json.Number shows up when a decoder uses UseNumber.
func claimTime(v any) (time.Time, bool) {
	switch n := v.(type) {
	case float64:
		return time.Unix(int64(n), 0), true
	case int64:
		return time.Unix(n, 0), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(i, 0), true
	}
	return time.Time{}, false
}

// GetSession retrieves a session by ID, pruning it when expired.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, apperrors.Validation("session ID is required")
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if s.now().After(session.ExpiresAt) {
		if deleteErr := s.sessions.Delete(ctx, sessionID); deleteErr != nil {
			return nil, errors.Join(errSessionExpired, fmt.Errorf("delete session: %w", deleteErr))
		}
		return nil, errSessionExpired
	}

	return &session, nil
}

// Logout removes a session.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil // Nothing to logout
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, ports.ErrSessionNotFound) {
			return nil
		}
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

// sanitizeRedirectURI keeps post-login redirects inside the application.
// Anything absolute, scheme-relative, or containing a backslash (which
// browsers normalize to "/" in Location headers) collapses to the root.
func sanitizeRedirectURI(uri string) string {
	if uri == "" || !strings.HasPrefix(uri, "/") || strings.HasPrefix(uri, "//") || strings.ContainsRune(uri, '\\') {
		return "/"
	}
	return uri
}
