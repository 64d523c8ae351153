package server

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/bionicotaku/lingo-utils-authgate"
	"github.com/bionicotaku/lingo-utils-authgate/gotrue"
)

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !s.requireProvider(w) {
		return
	}
	var req signupRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := s.auth.SignUp(r.Context(), req.Email, req.Password, map[string]any{
		gotrue.FullNameField: req.FullName,
	})
	if err != nil {
		s.logger.Warn("signup failed", zap.Error(err))
		if gotrue.IsClientError(err) {
			writeBadRequest(w, msgRegistrationFailed+": "+providerMessage(err), nil)
			return
		}
		writeUnavailable(w, msgProviderDown)
		return
	}

	s.logger.Info("user created", zap.String("user_id", result.User.ID))
	writeJSON(w, http.StatusCreated, newAuthResponse(result.User, result.Session))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.requireProvider(w) {
		return
	}
	var req loginRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	session, err := s.auth.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		s.logger.Info("login failed", zap.Error(err))
		if gotrue.IsClientError(err) {
			writeUnauthorized(w, msgInvalidCredentials)
			return
		}
		writeUnavailable(w, msgProviderDown)
		return
	}
	if session.User == nil {
		s.logger.Warn("login returned session without user")
		writeUnauthorized(w, msgInvalidCredentials)
		return
	}

	s.logger.Info("user logged in", zap.String("user_id", session.User.ID))
	writeJSON(w, http.StatusOK, newAuthResponse(session.User, session))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !s.requireProvider(w) {
		return
	}
	token := bearerToken(r)
	if token == "" {
		writeUnauthorized(w, "")
		return
	}

	if err := s.auth.SignOut(r.Context(), token, gotrue.SignOutLocal); err != nil {
		// An unauthorized answer means the session is already gone.
		if !gotrue.IsUnauthorized(err) {
			s.logger.Error("logout failed", zap.Error(err))
			writeInternalError(w, msgLogoutFailed)
			return
		}
	}

	s.logger.Info("user logged out")
	writeJSON(w, http.StatusOK, MessageResponse{Message: msgLogoutSuccess})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if !s.requireProvider(w) {
		return
	}
	var req passwordResetRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	// The outcome is not disclosed so the endpoint cannot be used to probe accounts.
	if err := s.auth.ResetPasswordForEmail(r.Context(), req.Email, s.resetRedirectURL); err != nil {
		s.logger.Warn("password reset request failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msgResetSent})
}

func (s *Server) handleSessionCheck(w http.ResponseWriter, r *http.Request) {
	caller, ok := authgate.CallerIdentityFromContext(r.Context())
	if !ok || caller.Identity == nil {
		writeUnauthorized(w, "")
		return
	}
	writeJSON(w, http.StatusOK, SessionCheckResponse{
		Valid:  true,
		UserID: caller.Identity.Subject,
	})
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := authgate.CallerIdentityFromContext(r.Context())
	if !ok || caller.Identity == nil {
		writeUnauthorized(w, "")
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{
		ID:       caller.Identity.Subject,
		Email:    caller.Identity.Email,
		FullName: caller.Identity.FullName(),
	})
}

func (s *Server) requireProvider(w http.ResponseWriter) bool {
	if s.auth == nil {
		writeUnavailable(w, msgNotConfigured)
		return false
	}
	return true
}

func providerMessage(err error) string {
	var apiErr *gotrue.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return strings.TrimPrefix(err.Error(), "gotrue: ")
}
