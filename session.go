package authgate

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// TokenVerifier verifies a bearer token and returns the identity it carries.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// SessionConfirmer asks the provider whether a locally valid token still
// belongs to a live session.
type SessionConfirmer interface {
	ConfirmSession(ctx context.Context, token string) error
}

// SessionResult is the outcome of a session check. Identity is set only
// when Authenticated is true.
type SessionResult struct {
	Authenticated bool
	Identity      *Identity
}

// Unauthenticated is the uniform failure result.
var Unauthenticated = SessionResult{}

// Authenticated wraps a verified identity.
func Authenticated(identity *Identity) SessionResult {
	return SessionResult{Authenticated: true, Identity: identity}
}

// SessionChecker maps verification outcomes to authenticated or
// unauthenticated results. Failure reasons are logged, never returned.
type SessionChecker struct {
	verifier  TokenVerifier
	confirmer SessionConfirmer
	devBypass *DevBypassClaims
	logger    *zap.Logger
}

// SessionOption customizes a SessionChecker.
type SessionOption func(*SessionChecker)

// WithSessionConfirmer enables a provider round trip after local verification.
func WithSessionConfirmer(c SessionConfirmer) SessionOption {
	return func(s *SessionChecker) {
		s.confirmer = c
	}
}

// WithDevBypass authenticates absent tokens as the given synthetic identity.
// Only for local development.
func WithDevBypass(claims DevBypassClaims) SessionOption {
	return func(s *SessionChecker) {
		s.devBypass = &claims
	}
}

// WithLogger sets the audit logger.
func WithLogger(logger *zap.Logger) SessionOption {
	return func(s *SessionChecker) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSessionChecker constructs a checker around verifier.
func NewSessionChecker(verifier TokenVerifier, opts ...SessionOption) *SessionChecker {
	s := &SessionChecker{
		verifier: verifier,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check evaluates the presented token. An empty token is a normal
// unauthenticated outcome and does not reach the verifier.
func (s *SessionChecker) Check(ctx context.Context, token string) SessionResult {
	token = strings.TrimSpace(token)
	if token == "" {
		if s.devBypass != nil {
			s.logger.Warn("dev bypass identity issued", zap.String("sub", s.devBypass.Subject))
			return Authenticated(s.devBypass.ToIdentity())
		}
		s.logger.Debug("session check without token")
		return Unauthenticated
	}

	identity, err := s.verifier.Verify(ctx, token)
	if err != nil {
		s.logger.Info("session check rejected",
			zap.String("reason", string(CodeOf(err))),
			zap.Error(err))
		return Unauthenticated
	}

	if s.confirmer != nil {
		if err := s.confirmer.ConfirmSession(ctx, token); err != nil {
			s.logger.Info("session check rejected",
				zap.String("reason", string(ErrCodeSessionRevoked)),
				zap.String("sub", identity.Subject),
				zap.Error(err))
			return Unauthenticated
		}
	}

	s.logger.Debug("session check accepted", zap.String("sub", identity.Subject))
	return Authenticated(identity)
}
