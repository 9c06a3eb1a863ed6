package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dvcrn/storefront-api-proxy/internal/authclient"
)

// LocationHeader carries the storefront page the call was made from.
const LocationHeader = "X-Storefront-Location"

// Headers that describe a single connection and are never forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// proxyHandler forwards /api/... to the backend through the authenticated
// client. The backend path is the request path without the /api prefix.
func (s *Server) proxyHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read request body")
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	// Forward the path as received: decoding first would turn %3F into a
	// query and %2F..%2F into dot segments.
	target := strings.TrimPrefix(r.URL.EscapedPath(), "/api")
	if hasDotSegment(r.URL.Path) {
		s.log.Warn().Str("path", r.URL.EscapedPath()).Msg("Rejected path with dot segments")
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "bad_request",
			"message": "Invalid path",
		})
		return
	}
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req := authclient.NewRequest(r.Method, target, body)
	copyHeader(req.Header, r.Header)
	for _, h := range []string{"Host", "Cookie", "Authorization", "Content-Length", LocationHeader} {
		req.Header.Del(h)
	}

	location := requestLocation(r)
	ctx := authclient.WithLocation(r.Context(), location)

	resp, err := s.client.Send(ctx, req)
	if err != nil {
		s.writeProxyError(w, r, location, err)
		return
	}
	defer resp.Body.Close()

	copyHeader(w.Header(), resp.Header)
	w.Header().Del("Content-Length")
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		s.log.Warn().Err(err).Str("path", target).Msg("Failed to copy backend response")
	}
}

// hasDotSegment reports whether the decoded path has a "." or ".." segment.
func hasDotSegment(path string) bool {
	for _, segment := range strings.Split(path, "/") {
		if segment == "." || segment == ".." {
			return true
		}
	}
	return false
}

// requestLocation reads the caller's page from LocationHeader, falling back
// to the path of the Referer.
func requestLocation(r *http.Request) string {
	if location := r.Header.Get(LocationHeader); location != "" {
		return location
	}
	if referer := r.Header.Get("Referer"); referer != "" {
		if u, err := url.Parse(referer); err == nil {
			return u.Path
		}
	}
	return ""
}

// copyHeader copies src into dst without hop-by-hop headers.
func copyHeader(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
	for _, h := range hopByHopHeaders {
		dst.Del(h)
	}
}

// writeProxyError maps an authclient error to the gateway response.
func (s *Server) writeProxyError(w http.ResponseWriter, r *http.Request, location string, err error) {
	var (
		refreshErr   *authclient.RefreshFailedError
		replayErr    *authclient.ReplayFailedError
		permErr      *authclient.AuthPermissionError
		transportErr *authclient.TransportError
	)

	switch {
	// Checked first: a refresh that timed out still ended the session.
	case errors.As(err, &refreshErr):
		response := map[string]interface{}{
			"error":   "session_invalid",
			"message": "Session expired, please log in again",
		}
		if !s.client.IsPublicLocation(location) {
			response["redirect"] = s.cfg.LoginRedirect
		}
		writeJSON(w, http.StatusUnauthorized, response)

	case errors.Is(err, context.Canceled):
		// The caller went away; nobody reads the response.
		s.log.Debug().Str("path", r.URL.Path).Msg("Request canceled by client")

	case errors.Is(err, context.DeadlineExceeded):
		s.log.Warn().Str("path", r.URL.Path).Msg("Backend request timed out")
		writeJSON(w, http.StatusGatewayTimeout, map[string]interface{}{
			"error": "gateway_timeout",
		})

	case errors.As(err, &replayErr):
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
			"error":   "unauthorized",
			"message": replayErr.Err.Message,
		})

	case errors.As(err, &permErr):
		copyHeader(w.Header(), permErr.Header)
		w.Header().Del("Content-Length")
		w.WriteHeader(permErr.StatusCode)
		w.Write(permErr.Body)

	case errors.As(err, &transportErr):
		s.log.Error().Err(err).Msg("Backend unreachable")
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":   "bad_gateway",
			"message": "Backend unreachable",
		})

	case errors.Is(err, authclient.ErrDotSegment):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "bad_request",
			"message": "Invalid path",
		})

	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("Proxy request failed")
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": "internal_error",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
