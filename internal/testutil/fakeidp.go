package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// FakeIDP is an in-process identity provider speaking just enough OIDC for
// the gateway: discovery, JWKS, token, and userinfo endpoints, with RS256
// signed id_tokens.
type FakeIDP struct {
	Server   *httptest.Server
	ClientID string

	key *rsa.PrivateKey
	kid string

	mu    sync.Mutex
	codes map[string]map[string]any
	// UserInfoClaims, when non-nil, is served by the userinfo endpoint.
	UserInfoClaims map[string]any
}

// NewFakeIDP starts a fake identity provider. It is shut down with the test.
func NewFakeIDP(t TestingTB, clientID string) *FakeIDP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}

	f := &FakeIDP{
		ClientID: clientID,
		key:      key,
		kid:      "test-key-1",
		codes:    make(map[string]map[string]any),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", f.discovery)
	mux.HandleFunc("GET /keys", f.jwks)
	mux.HandleFunc("POST /token", f.token)
	mux.HandleFunc("GET /userinfo", f.userinfo)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// Issuer returns the issuer URL announced in the discovery document.
func (f *FakeIDP) Issuer() string {
	return f.Server.URL
}

// DefaultClaims builds a valid claim set for the given subject and nonce.
// Tests override individual entries to provoke specific validation failures.
func (f *FakeIDP) DefaultClaims(sub, nonce string) map[string]any {
	now := time.Now()
	return map[string]any{
		"iss":   f.Issuer(),
		"aud":   f.ClientID,
		"sub":   sub,
		"nonce": nonce,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
}

// MintCode registers an authorization code whose redemption yields an
// id_token carrying the given claims.
func (f *FakeIDP) MintCode(claims map[string]any) string {
	code := randomHex(16)
	f.mu.Lock()
	f.codes[code] = claims
	f.mu.Unlock()
	return code
}

// SignToken signs the claims into a compact RS256 JWT.
func (f *FakeIDP) SignToken(claims map[string]any) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: f.key},
		(&jose.SignerOptions{}).WithHeader("kid", f.kid).WithType("JWT"),
	)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	sig, err := signer.Sign(payload)
	if err != nil {
		return "", err
	}
	return sig.CompactSerialize()
}

func (f *FakeIDP) discovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"issuer":                 f.Issuer(),
		"authorization_endpoint": f.Issuer() + "/authorize",
		"token_endpoint":         f.Issuer() + "/token",
		"jwks_uri":               f.Issuer() + "/keys",
		"userinfo_endpoint":      f.Issuer() + "/userinfo",
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
	})
}

func (f *FakeIDP) jwks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       &f.key.PublicKey,
			KeyID:     f.kid,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		}},
	})
}

func (f *FakeIDP) token(w http.ResponseWriter, r *http.Request) {
	code := r.FormValue("code")

	f.mu.Lock()
	claims, ok := f.codes[code]
	delete(f.codes, code)
	f.mu.Unlock()

	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
		return
	}

	idToken, err := f.SignToken(claims)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]any{
		"access_token": randomHex(16),
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     idToken,
	})
}

func (f *FakeIDP) userinfo(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	claims := f.UserInfoClaims
	f.mu.Unlock()
	if claims == nil {
		claims = map[string]any{}
	}
	writeJSON(w, claims)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
