package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/flagops/flaggate/internal/cryptoutil"
	domainauth "github.com/flagops/flaggate/internal/domain/auth"
)

// StateCookieCodec seals the auth request state into an encrypted cookie and
// opens it again on the callback. Used only in cookie state mode; the nonce
// replay check still happens server-side.
type StateCookieCodec struct {
	Encryptor    cryptoutil.Encryptor
	CookieDomain string
	// Lifetime caps the cookie MaxAge; it should match the state lifetime.
	Lifetime time.Duration
}

// Write seals the state and sets the state cookie on the response.
func (c *StateCookieCodec) Write(w http.ResponseWriter, r *http.Request, st domainauth.AuthRequestState) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal auth request state: %w", err)
	}
	sealed, err := c.Encryptor.Encrypt(payload)
	if err != nil {
		return fmt.Errorf("encrypt auth request state: %w", err)
	}

	maxAge := int(c.Lifetime.Seconds())
	if maxAge <= 0 {
		maxAge = 600
	}
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    sealed,
		Path:     "/",
		Domain:   c.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteNoneMode,
		MaxAge:   maxAge,
	})
	return nil
}

// Read opens the state cookie from the request. A missing or unopenable
// cookie returns (nil, nil): the caller treats it the same as missing state.
func (c *StateCookieCodec) Read(r *http.Request) (*domainauth.AuthRequestState, error) {
	cookie, err := r.Cookie(StateCookieName)
	if err != nil {
		return nil, nil
	}
	payload, err := c.Encryptor.Decrypt(cookie.Value)
	if err != nil {
		return nil, fmt.Errorf("decrypt state cookie: %w", err)
	}
	var st domainauth.AuthRequestState
	if unmarshalErr := json.Unmarshal(payload, &st); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal state cookie: %w", unmarshalErr)
	}
	return &st, nil
}

// Clear expires the state cookie on the client.
func (c *StateCookieCodec) Clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/",
		Domain:   c.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteNoneMode,
	})
}

// isSecureRequest reports whether the request arrived over TLS, directly or
// via a terminating proxy.
func isSecureRequest(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
