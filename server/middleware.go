package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/bionicotaku/lingo-utils-authgate"
)

// RequireAuth admits requests whose bearer token passes the session check
// and binds the caller to the request context. Every rejection gets the same
// 401 body.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		token := bearerToken(r)

		result := s.checker.Check(ctx, token)
		if !result.Authenticated {
			writeUnauthorized(w, "")
			return
		}

		ctx = authgate.BindCallerIdentity(ctx, authgate.CallerIdentity{
			Identity:  result.Identity,
			Token:     token,
			DevBypass: token == "",
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the credential from "Authorization: Bearer <token>".
// Any other scheme counts as no token.
func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)))
	})
}
