package httpx

import (
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/flagops/flaggate/internal/observability/statsd"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Auth AuthServiceInterface

	// Upstream serves everything the gateway fronts. Protected-prefix
	// requests only reach it with a valid session.
	Upstream http.Handler

	// ProtectedPrefix is the subtree requiring authentication. Must end in "/".
	ProtectedPrefix string
	// CallbackPath receives the provider response.
	CallbackPath string
	// CallbackUsesPOST selects POST (form_post response mode) over GET for
	// the callback route.
	CallbackUsesPOST bool
	// ErrorPath is the landing page for failed logins.
	ErrorPath string

	CookieDomain string
	// StateCookies enables cookie state mode when non-nil.
	StateCookies *StateCookieCodec

	Logger *slog.Logger
	Sink   statsd.Sink
}

// NewRouter creates and configures the gateway's HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	prefix := services.ProtectedPrefix
	if prefix == "" {
		prefix = "/api/admin/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	loginPath := path.Join(prefix, "login")
	callbackPath := services.CallbackPath
	if callbackPath == "" {
		callbackPath = "/api/auth/callback"
	}
	errorPath := services.ErrorPath
	if errorPath == "" {
		errorPath = path.Join(prefix, "error-login")
	}

	authHandlers := &AuthHandlers{
		Svc:          services.Auth,
		CookieDomain: services.CookieDomain,
		ErrorPath:    errorPath,
		StateCookies: services.StateCookies,
		Logger:       logger,
	}

	upstream := services.Upstream
	if upstream == nil {
		upstream = http.HandlerFunc(upstreamNotConfigured)
	}

	mux := http.NewServeMux()

	// The login and error routes live inside the protected prefix but are
	// registered as exact patterns, so they win over the guarded subtree.
	mux.HandleFunc("GET "+loginPath, authHandlers.Login)
	mux.HandleFunc("GET "+errorPath, authHandlers.LoginError)
	if services.CallbackUsesPOST {
		mux.HandleFunc("POST "+callbackPath, authHandlers.Callback)
	} else {
		mux.HandleFunc("GET "+callbackPath, authHandlers.Callback)
	}
	mux.HandleFunc("POST /auth/logout", authHandlers.Logout)
	mux.HandleFunc("GET /auth/status", authHandlers.Status)
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	guard := RequireAuth(GuardOptions{Svc: services.Auth, LoginPath: loginPath, Sink: services.Sink})
	mux.Handle(prefix, guard(upstream))

	// Everything else passes through to the upstream unguarded.
	mux.Handle("/", upstream)

	handler := Logging(logger)(mux)
	handler = Recover(logger)(handler)
	return handler
}

func upstreamNotConfigured(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusBadGateway, map[string]string{
		"error":   "upstream_unavailable",
		"message": "no upstream configured",
	})
}
