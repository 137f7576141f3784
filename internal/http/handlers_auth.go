package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/flagops/flaggate/internal/domain/auth"
	apperrors "github.com/flagops/flaggate/internal/errors"
	"github.com/flagops/flaggate/internal/service"
)

// AuthServiceInterface defines the interface for auth service operations.
type AuthServiceInterface interface {
	BeginLogin(ctx context.Context, redirectURI string) (*service.BeginLoginResult, error)
	CompleteLogin(ctx context.Context, input service.CompleteLoginInput) (*service.CompleteLoginResult, error)
	GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc          AuthServiceInterface
	CookieDomain string
	// ErrorPath receives the redirect after a failed login completion.
	ErrorPath string
	// StateCookies is set only in cookie state mode.
	StateCookies *StateCookieCodec
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) errorPath() string {
	if h != nil && h.ErrorPath != "" {
		return h.ErrorPath
	}
	return "/api/admin/error-login"
}

// Login handles the login initiation endpoint.
// GET <protected prefix>/login?redirect_uri=<optional_redirect>.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	// Get the redirect URI from query params, default to root
	redirectURI := r.URL.Query().Get("redirect_uri")
	if redirectURI == "" {
		redirectURI = "/"
	}
	redirectURI = safeRedirectPath(redirectURI)

	result, err := h.Svc.BeginLogin(r.Context(), redirectURI)
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     err,
		})
		return
	}

	// In cookie state mode the state rides back to the callback in an
	// encrypted cookie instead of the server-side store.
	if result.CookieState {
		if h.StateCookies == nil {
			h.logger().ErrorContext(r.Context(), "cookie state mode without a state cookie codec")
			WriteError(w, ErrorParams{
				Code:    http.StatusInternalServerError,
				ErrCode: "login_failed",
				Err:     apperrors.Internal("state cookie codec not configured"),
			})
			return
		}
		if writeErr := h.StateCookies.Write(w, r, result.State); writeErr != nil {
			h.logger().ErrorContext(r.Context(), "write state cookie failed", "error", writeErr)
			WriteError(w, ErrorParams{
				Code:    http.StatusInternalServerError,
				ErrCode: "login_failed",
				Err:     writeErr,
			})
			return
		}
	}

	// Redirect to the identity provider
	http.Redirect(w, r, result.AuthURL, http.StatusFound)
}

// Callback handles the provider callback endpoint. The method depends on the
// configured response mode: POST with a form body for form_post, GET with
// query parameters otherwise. FormValue covers both.
func (h *AuthHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")
	state := r.FormValue("state")

	// The provider reports its own failures in the callback body.
	if provErr := r.FormValue("error"); provErr != "" {
		h.logger().WarnContext(r.Context(), "provider returned error on callback",
			"provider_error", provErr,
			"description", r.FormValue("error_description"))
		h.redirectToError(w, r)
		return
	}

	input := service.CompleteLoginInput{Code: code, State: state}
	if h.StateCookies != nil {
		st, err := h.StateCookies.Read(r)
		if err != nil {
			h.logger().WarnContext(r.Context(), "unreadable state cookie", "error", err)
		}
		input.CookieState = st
	}

	result, err := h.Svc.CompleteLogin(r.Context(), input)
	if err != nil {
		// Validation detail stays in the logs; the client only sees the
		// generic failure redirect.
		h.logger().WarnContext(r.Context(), "login completion failed",
			"error", err,
			"error_class", string(apperrors.GetCode(err)))
		h.redirectToError(w, r)
		return
	}

	h.setSessionCookie(w, r, result.Session)
	if h.StateCookies != nil {
		h.StateCookies.Clear(w, r)
	}

	redirectURI := safeRedirectPath(result.RedirectURI)
	http.Redirect(w, r, redirectURI, http.StatusFound)
}

// Logout handles the logout endpoint.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	// Invalidate the server-side session if present
	if sessionCookie, err := r.Cookie(SessionCookieName); err == nil {
		if logoutErr := h.Svc.Logout(r.Context(), sessionCookie.Value); logoutErr != nil {
			h.logger().WarnContext(r.Context(), "logout failed", "error", logoutErr)
		}
	}

	// Clear session cookie on the client
	h.clearCookie(w, r, SessionCookieName)

	redirectURI := r.FormValue("redirect_uri")
	if redirectURI == "" {
		redirectURI = "/"
	}
	redirectURI = safeRedirectPath(redirectURI)

	// AJAX requests get a JSON payload; regular requests redirect
	isAJAX := strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.EqualFold(r.Header.Get("X-Requested-With"), "XMLHttpRequest")
	if isAJAX {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":      "success",
			"redirect_to": redirectURI,
		})
		return
	}

	http.Redirect(w, r, redirectURI, http.StatusFound)
}

// Status returns the current authentication status.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	sessionCookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		WriteJSON(w, http.StatusOK, map[string]any{
			"authenticated": false,
		})
		return
	}

	session, err := h.Svc.GetSession(r.Context(), sessionCookie.Value)
	if err != nil {
		// Session is invalid or expired, clear the cookie
		h.clearCookie(w, r, SessionCookieName)
		WriteJSON(w, http.StatusOK, map[string]any{
			"authenticated": false,
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          session.Principal(),
		"expires_at":    session.ExpiresAt,
	})
}

// LoginError renders the landing page for failed logins. The detail stays in
// the server logs; the client gets a stable generic message.
func (h *AuthHandlers) LoginError(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":   "login_failed",
		"message": "Sign-in could not be completed. Please try again.",
	})
}

func (h *AuthHandlers) redirectToError(w http.ResponseWriter, r *http.Request) {
	if h.StateCookies != nil {
		h.StateCookies.Clear(w, r)
	}
	http.Redirect(w, r, h.errorPath(), http.StatusFound)
}

// clearCookie clears a cookie by setting it to expire immediately.
// It mirrors key attributes (Secure, Path, Domain, SameSite) used when setting
// cookies to maximize compatibility across browsers during deletion.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// setSessionCookie writes the session cookie based on the session's expiry.
func (h *AuthHandlers) setSessionCookie(w http.ResponseWriter, r *http.Request, s domainauth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    s.ID,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(s.ExpiresAt).Seconds()),
	})
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
// Backslashes are rejected outright: browsers normalize them to "/" in
// Location headers, so "/\evil.com" would act as a protocol-relative URL.
func safeRedirectPath(candidate string) string {
	if candidate == "" || strings.ContainsRune(candidate, '\\') {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(candidate, "//") {
		return "/"
	}
	return candidate
}
