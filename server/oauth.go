package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bionicotaku/lingo-utils-authgate/gotrue"
)

// handleOAuthLogin returns the provider URL that starts a social login. The
// provider runs the upstream OAuth flow; nothing is stored here.
func (s *Server) handleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	if !s.requireProvider(w) {
		return
	}
	provider, ok := s.oauthProvider(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	redirectTo := query.Get("redirect_to")
	if redirectTo == "" {
		redirectTo = s.oauthRedirectURL
	}
	var scopes []string
	if raw := strings.TrimSpace(query.Get("scopes")); raw != "" {
		scopes = strings.Fields(raw)
	}

	authURL := s.auth.AuthorizeURL(provider, gotrue.AuthorizeOptions{
		RedirectTo:          redirectTo,
		Scopes:              scopes,
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
	})
	writeJSON(w, http.StatusOK, OAuthLoginResponse{AuthURL: authURL})
}

// handleOAuthCallback forwards the authorization code to the provider and
// returns the resulting session.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if !s.requireProvider(w) {
		return
	}
	provider, ok := s.oauthProvider(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	if errCode := query.Get("error"); errCode != "" {
		s.logger.Info("oauth provider returned error",
			zap.String("provider", provider),
			zap.String("error", errCode),
			zap.String("description", query.Get("error_description")))
		writeBadRequest(w, msgOAuthFailed, nil)
		return
	}
	code := query.Get("code")
	if code == "" {
		writeBadRequest(w, "Missing authorization code", nil)
		return
	}

	session, err := s.auth.ExchangeCodeForSession(r.Context(), code, query.Get("code_verifier"))
	if err != nil {
		s.logger.Warn("oauth callback failed", zap.String("provider", provider), zap.Error(err))
		if gotrue.IsClientError(err) {
			writeBadRequest(w, msgOAuthFailed, nil)
			return
		}
		writeUnavailable(w, msgProviderDown)
		return
	}
	if session.User == nil {
		writeBadRequest(w, msgOAuthFailed, nil)
		return
	}

	s.logger.Info("user logged in", zap.String("user_id", session.User.ID), zap.String("provider", provider))
	writeJSON(w, http.StatusOK, newAuthResponse(session.User, session))
}

func (s *Server) oauthProvider(w http.ResponseWriter, r *http.Request) (string, bool) {
	provider := strings.ToLower(chi.URLParam(r, "provider"))
	if _, ok := s.oauthProviders[provider]; !ok {
		writeBadRequest(w, "Unsupported provider: "+provider, nil)
		return "", false
	}
	return provider, true
}
