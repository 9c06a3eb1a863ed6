package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dvcrn/storefront-api-proxy/internal/credentials"
)

// loginHandler handles POST /admin/login. The body is forwarded to the
// backend login endpoint and the returned credential installed.
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cred, err := credentials.Login(r.Context(), s.httpClient, s.cfg.LoginURL(), payload)
	if err != nil {
		var refreshErr *credentials.RefreshError
		if errors.As(err, &refreshErr) {
			s.log.Warn().Int("status", refreshErr.StatusCode).Msg("Backend rejected login")
			writeJSON(w, refreshErr.StatusCode, map[string]interface{}{
				"success": false,
				"message": "Login rejected by backend",
			})
			return
		}
		s.log.Error().Err(err).Msg("Login failed")
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"success": false,
			"message": "Login failed",
		})
		return
	}

	s.client.SetCredential(r.Context(), cred)

	response := map[string]interface{}{
		"success": true,
		"message": "Logged in",
	}
	if !cred.ExpiresAt.IsZero() {
		response["expires_at"] = cred.ExpiresAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, response)
}

// credentialsHandler handles POST /admin/credentials (set a credential
// directly) and DELETE /admin/credentials (log out).
func (s *Server) credentialsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		// Same body shape as the backend's token responses.
		var tokenResp credentials.TokenResponse
		if err := json.NewDecoder(r.Body).Decode(&tokenResp); err != nil {
			s.log.Error().Err(err).Msg("Failed to decode credentials request")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		cred := tokenResp.Credential(credentials.Credential{}, time.Now())
		if cred.AccessToken == "" {
			http.Error(w, "access token is required", http.StatusBadRequest)
			return
		}

		s.client.SetCredential(r.Context(), cred)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Credentials saved successfully",
		})

	case http.MethodDelete:
		s.client.ClearCredential(r.Context())
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Credentials cleared",
		})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// credentialsStatusHandler handles GET /admin/credentials/status
func (s *Server) credentialsStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	cred, ok := s.client.Credential()
	response := map[string]interface{}{
		"state":             s.client.State().String(),
		"pending":           s.client.Pending(),
		"hasCredentials":    ok,
		"has_refresh_token": cred.RefreshToken != "",
		"store":             s.client.StoreName(),
	}

	if !cred.ExpiresAt.IsZero() {
		response["expiry_date_formatted"] = cred.ExpiresAt.Format(time.RFC3339)
		response["is_expired"] = !time.Now().Before(cred.ExpiresAt)
	}

	if cred.AccessToken != "" {
		if info, err := credentials.Inspect(cred.AccessToken); err == nil {
			response["subject"] = info.Subject
			if !info.ExpiresAt.IsZero() {
				response["token_expires_at"] = info.ExpiresAt.Format(time.RFC3339)
				response["is_expired"] = info.Expired(time.Now())
			}
		}
	}

	if at, reason := s.lastInvalidation(); !at.IsZero() {
		response["invalidated_at"] = at.Format(time.RFC3339)
		response["invalidated_reason"] = reason
	}

	writeJSON(w, http.StatusOK, response)
}
