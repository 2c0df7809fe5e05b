package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// tokenRequest is the body of POST /auth/token.
type tokenRequest struct {
	APIKey string `json:"api_key"`
}

// tokenResponse is returned by POST /auth/token.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Name        string `json:"name"`
	Role        string `json:"role"`
}

// handleToken exchanges an API key for a short-lived access token. The key
// may also be sent in the X-API-Key header.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		key = req.APIKey
	}
	if key == "" {
		writeBadRequest(w, "api_key is required")
		return
	}

	principal, err := s.keyring.Authenticate(key)
	if err != nil {
		s.logger.Warn("api key rejected", "remote", r.RemoteAddr)
		writeUnauthorized(w, "invalid api key")
		return
	}

	token, expires, err := s.issuer.Issue(principal)
	if err != nil {
		s.logger.Error("issuing access token", "error", err)
		writeInternalError(w, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(expires).Round(time.Second).Seconds()),
		Name:        principal.Name,
		Role:        string(principal.Role),
	})
}
