package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flagops/flaggate/internal/adapters/memdir"
	"github.com/flagops/flaggate/internal/adapters/memstore"
	mockauth "github.com/flagops/flaggate/internal/mocks/auth"
	"github.com/flagops/flaggate/internal/service"
)

type routerFixture struct {
	handler  http.Handler
	provider *mockauth.MockAuthProvider
}

// newRouterFixture wires a full router around a real auth service backed by
// in-memory stores, with a stub upstream that echoes a marker header.
func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	provider := mockauth.NewMockAuthProvider()
	svc := service.NewAuthService(service.AuthServiceOptions{
		Provider:  provider,
		Sessions:  memstore.NewSessionStore(),
		States:    memstore.NewStateStore(100),
		Directory: memdir.New(),
		Logger:    testLogger(),
	})

	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "hit")
		w.WriteHeader(http.StatusOK)
	})

	handler := NewRouter(RouterServices{
		Auth:     svc,
		Upstream: upstream,
		Logger:   testLogger(),
	})

	return &routerFixture{handler: handler, provider: provider}
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouter_FullLoginFlow(t *testing.T) {
	f := newRouterFixture(t)

	// Unauthenticated access to the protected subtree is rejected.
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/admin/features", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var challenge AuthenticationRequired
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &challenge))
	assert.Equal(t, "/api/admin/login", challenge.Path)

	// Start the login; the gateway redirects to the provider.
	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/admin/login?redirect_uri=/api/admin/features", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "authorize")

	// The provider calls back with the code and the issued state.
	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=auth-code&state=state-1", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/admin/features", rec.Header().Get("Location"))

	sessionCookie := responseCookie(t, rec, SessionCookieName)
	require.NotNil(t, sessionCookie)
	require.NotEmpty(t, sessionCookie.Value)

	// With the session cookie the protected subtree reaches the upstream.
	req := httptest.NewRequest(http.MethodGet, "/api/admin/features", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionCookie.Value})
	rec = f.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hit", rec.Header().Get("X-Upstream"))

	// Replaying the callback fails and lands on the error page.
	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=auth-code&state=state-1", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/admin/error-login", rec.Header().Get("Location"))
}

func TestRouter_LoginRouteIsNotGuarded(t *testing.T) {
	f := newRouterFixture(t)

	// Both live under the protected prefix yet answer without a session.
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/admin/login", nil))
	assert.Equal(t, http.StatusFound, rec.Code)

	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/admin/error-login", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "login_failed")
}

func TestRouter_UnprotectedPathsPassThrough(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/public/page", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hit", rec.Header().Get("X-Upstream"))
}

func TestRouter_Health(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = f.do(httptest.NewRequest(http.MethodHead, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRouter_LogoutAndStatus(t *testing.T) {
	f := newRouterFixture(t)

	// Establish a session through the flow.
	f.do(httptest.NewRequest(http.MethodGet, "/api/admin/login", nil))
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=auth-code&state=state-1", nil))
	sessionCookie := responseCookie(t, rec, SessionCookieName)
	require.NotNil(t, sessionCookie)

	statusReq := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	statusReq.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionCookie.Value})
	rec = f.do(statusReq)

	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, true, status["authenticated"])

	logoutReq := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logoutReq.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionCookie.Value})
	rec = f.do(logoutReq)
	assert.Equal(t, http.StatusFound, rec.Code)

	// The session no longer admits requests.
	req := httptest.NewRequest(http.MethodGet, "/api/admin/features", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionCookie.Value})
	rec = f.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouter_NoUpstreamConfigured(t *testing.T) {
	provider := mockauth.NewMockAuthProvider()
	svc := service.NewAuthService(service.AuthServiceOptions{
		Provider:  provider,
		Sessions:  memstore.NewSessionStore(),
		States:    memstore.NewStateStore(100),
		Directory: memdir.New(),
		Logger:    testLogger(),
	})
	handler := NewRouter(RouterServices{Auth: svc, Logger: testLogger()})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "upstream_unavailable")
}

func TestRouter_CookieStateMode(t *testing.T) {
	provider := mockauth.NewMockAuthProvider()
	states := memstore.NewStateStore(100)
	svc := service.NewAuthService(service.AuthServiceOptions{
		Provider:    provider,
		Sessions:    memstore.NewSessionStore(),
		States:      states,
		Directory:   memdir.New(),
		CookieState: true,
		Logger:      testLogger(),
	})

	codec := newTestCodec(t)
	handler := NewRouter(RouterServices{
		Auth:         svc,
		Upstream:     http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }),
		StateCookies: codec,
		Logger:       testLogger(),
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/login?redirect_uri=/api/admin/x", nil))
	require.Equal(t, http.StatusFound, rec.Code)

	stateCookie := responseCookie(t, rec, StateCookieName)
	require.NotNil(t, stateCookie)

	// The callback needs the state cookie to complete.
	cb := httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=auth-code&state=state-1", nil)
	cb.AddCookie(&http.Cookie{Name: StateCookieName, Value: stateCookie.Value})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, cb)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/admin/x", rec.Header().Get("Location"))

	// The state cookie is cleared after it is redeemed.
	cleared := responseCookie(t, rec, StateCookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	// A second callback with the same cookie is a nonce replay.
	cb = httptest.NewRequest(http.MethodGet, "/api/auth/callback?code=auth-code&state=state-1", nil)
	cb.AddCookie(&http.Cookie{Name: StateCookieName, Value: stateCookie.Value})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, cb)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/api/admin/error-login", rec.Header().Get("Location"))
}
