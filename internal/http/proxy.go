package httpx

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	apperrors "github.com/flagops/flaggate/internal/errors"
)

// NewUpstreamProxy builds the reverse proxy forwarding requests to the
// protected upstream application. Upstream failures surface as 502 JSON so
// callers behind the guard get a structured answer rather than a blank page.
func NewUpstreamProxy(upstream *url.URL, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.ErrorContext(r.Context(), "upstream request failed",
			"error", err,
			"path", r.URL.Path,
			"upstream", upstream.Host)
		WriteError(w, ErrorParams{
			Code:    http.StatusBadGateway,
			ErrCode: "upstream_unavailable",
			Err:     apperrors.Internal("upstream unavailable"),
		})
	}

	return proxy
}
