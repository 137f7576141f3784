package httpx

// Cookie names used by the gateway.
const (
	// SessionCookieName carries the opaque session identifier.
	SessionCookieName = "flaggate_session"
	// StateCookieName carries the encrypted auth request state when the
	// gateway runs in cookie state mode.
	StateCookieName = "flaggate_auth_state"
)

// DefaultLoginPath is where the guard points unauthenticated callers.
const DefaultLoginPath = "/api/admin/login"
