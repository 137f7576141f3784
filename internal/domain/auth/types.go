package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import "time"

// Profile is the normalized identity extracted from a validated provider
// response. Adapters map provider-specific claim shapes into this struct at
// the identity provider boundary; nothing downstream sees raw claims except
// through RawClaims.
type Profile struct {
	// SubjectID is the provider's stable, unique identifier for the user.
	SubjectID   string
	DisplayName string
	Email       string
	// RawClaims is the full validated claim payload, kept for the directory.
	RawClaims map[string]any
}

// Principal is the authenticated identity as exposed to the protected
// application. It is immutable once constructed for a given login.
type Principal struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// DirectoryEntry is the cached per-subject record held by the user
// directory. At most one entry exists per SubjectID.
type DirectoryEntry struct {
	SubjectID   string
	DisplayName string
	Email       string
	RawClaims   map[string]any
	CreatedAt   time.Time
	LastLoginAt time.Time
}

// Principal builds the application-level principal from the entry.
func (e DirectoryEntry) Principal() Principal {
	return Principal{Name: e.DisplayName, Email: e.Email}
}

// Session is the server-side record persisted for an authenticated user.
// ID is an opaque session identifier; the session never carries raw
// provider tokens or secrets.
type Session struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subject_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Principal reconstructs the principal carried by the session.
func (s Session) Principal() Principal {
	return Principal{Name: s.Name, Email: s.Email}
}

// AuthRequestState is the transient per-attempt state binding a login
// redirect to its callback. It lives for one authentication round-trip and
// must be rejected if reused or expired.
type AuthRequestState struct {
	// State correlates the callback with the request that issued it.
	State string `json:"state"`
	// Nonce binds the id_token to this attempt; single use.
	Nonce string `json:"nonce"`
	// RedirectURI is the post-login destination inside the application.
	RedirectURI string    `json:"redirect_uri"`
	IssuedAt    time.Time `json:"issued_at"`
}

// ExpiresAfter reports whether the state is past the given lifetime at now.
func (s AuthRequestState) ExpiresAfter(lifetime time.Duration, now time.Time) bool {
	return now.After(s.IssuedAt.Add(lifetime))
}
