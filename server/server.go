// Package server exposes the authentication endpoints over HTTP. Credential
// handling is proxied to the hosted provider; bearer tokens are checked
// locally through an authgate.SessionChecker.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/bionicotaku/lingo-utils-authgate"
	"github.com/bionicotaku/lingo-utils-authgate/gotrue"
)

// SessionChecker decides whether a bearer token authenticates its caller.
type SessionChecker interface {
	Check(ctx context.Context, token string) authgate.SessionResult
}

// AuthProvider is the subset of the hosted provider the endpoints proxy to.
type AuthProvider interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*gotrue.AuthResponse, error)
	SignInWithPassword(ctx context.Context, email, password string) (*gotrue.Session, error)
	SignOut(ctx context.Context, accessToken string, scope gotrue.SignOutScope) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	AuthorizeURL(provider string, opts gotrue.AuthorizeOptions) string
	ExchangeCodeForSession(ctx context.Context, authCode, codeVerifier string) (*gotrue.Session, error)
}

// Options configures a Server.
type Options struct {
	Checker SessionChecker
	// Auth may be nil, in which case the proxy endpoints answer 503.
	Auth           AuthProvider
	Logger         *zap.Logger
	CORSOrigins    []string
	OAuthProviders []string
	// OAuthRedirectURL is used when the login request names no redirect.
	OAuthRedirectURL string
	// PasswordResetRedirectURL is where the recovery email link lands.
	PasswordResetRedirectURL string
	RequestTimeout           time.Duration
}

// Server holds the HTTP handlers.
type Server struct {
	checker          SessionChecker
	auth             AuthProvider
	logger           *zap.Logger
	validate         *validator.Validate
	corsOrigins      []string
	oauthProviders   map[string]struct{}
	oauthRedirectURL string
	resetRedirectURL string
	requestTimeout   time.Duration
}

// New builds a Server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	providers := make(map[string]struct{}, len(opts.OAuthProviders))
	for _, p := range opts.OAuthProviders {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			providers[p] = struct{}{}
		}
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		checker:          opts.Checker,
		auth:             opts.Auth,
		logger:           logger,
		validate:         newValidator(),
		corsOrigins:      opts.CORSOrigins,
		oauthProviders:   providers,
		oauthRedirectURL: opts.OAuthRedirectURL,
		resetRedirectURL: opts.PasswordResetRedirectURL,
		requestTimeout:   timeout,
	}
}

// Routes wires every endpoint and the shared middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))

	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Post("/reset-password", s.handleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(s.RequireAuth)
			r.Get("/session-check", s.handleSessionCheck)
			r.Get("/user", s.handleCurrentUser)
		})

		r.Get("/oauth/{provider}", s.handleOAuthLogin)
		r.Get("/oauth/{provider}/callback", s.handleOAuthCallback)
	})

	return r
}
