package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/flagops/flaggate/internal/domain/auth"
	"github.com/flagops/flaggate/internal/ports"
	"github.com/flagops/flaggate/internal/service"
)

// stubAuthService implements AuthServiceInterface with canned responses.
type stubAuthService struct {
	sessions map[string]*domainauth.Session

	beginResult  *service.BeginLoginResult
	beginErr     error
	completeFunc func(service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	logoutCalls  []string
}

func newStubAuthService() *stubAuthService {
	return &stubAuthService{sessions: make(map[string]*domainauth.Session)}
}

func (s *stubAuthService) BeginLogin(_ context.Context, redirectURI string) (*service.BeginLoginResult, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	if s.beginResult != nil {
		return s.beginResult, nil
	}
	return &service.BeginLoginResult{
		AuthURL: "https://idp.example.com/authorize?state=state-1",
		State: domainauth.AuthRequestState{
			State:       "state-1",
			Nonce:       "nonce-1",
			RedirectURI: redirectURI,
			IssuedAt:    time.Now(),
		},
	}, nil
}

func (s *stubAuthService) CompleteLogin(_ context.Context, input service.CompleteLoginInput) (*service.CompleteLoginResult, error) {
	if s.completeFunc != nil {
		return s.completeFunc(input)
	}
	return nil, ports.ErrStateNotFound
}

func (s *stubAuthService) GetSession(_ context.Context, sessionID string) (*domainauth.Session, error) {
	if sess, ok := s.sessions[sessionID]; ok {
		return sess, nil
	}
	return nil, ports.ErrSessionNotFound
}

func (s *stubAuthService) Logout(_ context.Context, sessionID string) error {
	s.logoutCalls = append(s.logoutCalls, sessionID)
	delete(s.sessions, sessionID)
	return nil
}

func (s *stubAuthService) addSession(sess domainauth.Session) {
	s.sessions[sess.ID] = &sess
}

func TestRequireAuth_RejectsWithoutCookie(t *testing.T) {
	svc := newStubAuthService()
	guard := RequireAuth(GuardOptions{Svc: svc, LoginPath: "/api/admin/login"})

	called := false
	handler := guard(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/features", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body AuthenticationRequired
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/api/admin/login", body.Path)
	assert.Equal(t, "custom", body.Type)
	assert.Equal(t, "Please login. Click the button and follow the instructions.", body.Message)
}

func TestRequireAuth_RejectsUnknownSession(t *testing.T) {
	svc := newStubAuthService()
	guard := RequireAuth(GuardOptions{Svc: svc})

	handler := guard(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/features", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "no-such-session"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body AuthenticationRequired
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, DefaultLoginPath, body.Path)
}

func TestRequireAuth_AdmitsValidSession(t *testing.T) {
	svc := newStubAuthService()
	svc.addSession(domainauth.Session{
		ID:        "sess-1",
		SubjectID: "abc123",
		Name:      "Jane Doe",
		Email:     "jane@example.com",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	guard := RequireAuth(GuardOptions{Svc: svc})

	var got *domainauth.Session
	handler := guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetSessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/admin/features", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-1"})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "abc123", got.SubjectID)
	assert.Equal(t, "Jane Doe", got.Name)
}

func TestRecover_TurnsPanicInto500(t *testing.T) {
	handler := Recover(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLogging_PassesThrough(t *testing.T) {
	handler := Logging(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
}
