package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flagops/flaggate/internal/cryptoutil"
	domainauth "github.com/flagops/flaggate/internal/domain/auth"
)

func newTestCodec(t *testing.T) *StateCookieCodec {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	ring, err := cryptoutil.NewKeyRing([][]byte{key})
	require.NoError(t, err)
	return &StateCookieCodec{Encryptor: ring, Lifetime: 10 * time.Minute}
}

func responseCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestStateCookieCodec_Roundtrip(t *testing.T) {
	codec := newTestCodec(t)

	st := domainauth.AuthRequestState{
		State:       "state-1",
		Nonce:       "nonce-1",
		RedirectURI: "/features",
		IssuedAt:    time.Now().Truncate(time.Second),
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/login", nil)
	require.NoError(t, codec.Write(rec, req, st))

	cookie := responseCookie(t, rec, StateCookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteNoneMode, cookie.SameSite)
	assert.Equal(t, 600, cookie.MaxAge)
	// The value must be opaque, not the plain state.
	assert.NotContains(t, cookie.Value, "state-1")

	callback := httptest.NewRequest(http.MethodPost, "/api/auth/callback", nil)
	callback.AddCookie(&http.Cookie{Name: StateCookieName, Value: cookie.Value})

	got, err := codec.Read(callback)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, st.State, got.State)
	assert.Equal(t, st.Nonce, got.Nonce)
	assert.Equal(t, st.RedirectURI, got.RedirectURI)
	assert.True(t, st.IssuedAt.Equal(got.IssuedAt))
}

func TestStateCookieCodec_MissingCookie(t *testing.T) {
	codec := newTestCodec(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/callback", nil)
	got, err := codec.Read(req)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestStateCookieCodec_TamperedCookie(t *testing.T) {
	codec := newTestCodec(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/callback", nil)
	req.AddCookie(&http.Cookie{Name: StateCookieName, Value: "v1:not-a-real-ciphertext"})

	got, err := codec.Read(req)
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestStateCookieCodec_Clear(t *testing.T) {
	codec := newTestCodec(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	codec.Clear(rec, req)

	cookie := responseCookie(t, rec, StateCookieName)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestStateCookieCodec_SecureFlagFollowsRequest(t *testing.T) {
	codec := newTestCodec(t)
	st := domainauth.AuthRequestState{State: "s", Nonce: "n", IssuedAt: time.Now()}

	plain := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, codec.Write(rec, plain, st))
	assert.False(t, responseCookie(t, rec, StateCookieName).Secure)

	forwarded := httptest.NewRequest(http.MethodGet, "/", nil)
	forwarded.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	require.NoError(t, codec.Write(rec, forwarded, st))
	assert.True(t, responseCookie(t, rec, StateCookieName).Secure)
}
