package authgate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bionicotaku/lingo-utils-authgate/gotrue"
	"golang.org/x/oauth2"
)

// Credentials identify the account a Provider signs in as.
type Credentials struct {
	Email    string
	Password string
}

// TokenFactory allows callers to override how access tokens are obtained.
type TokenFactory func(context.Context, Credentials) (oauth2.TokenSource, error)

// ProviderConfig defines how tokens are obtained by default.
type ProviderConfig struct {
	// Client is used by the default factory.
	Client       *gotrue.Client
	TokenFactory TokenFactory
}

// Provider obtains access tokens from the hosted provider on behalf of a
// fixed account, for smoke tests and service calls. Token sources are cached
// per account and refreshed through the refresh-token grant.
type Provider struct {
	mu      sync.RWMutex
	factory TokenFactory
	entries map[string]*tokenSourceEntry
}

type tokenSourceEntry struct {
	source oauth2.TokenSource
}

// NewProvider constructs a Provider.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	factory := cfg.TokenFactory
	if factory == nil {
		if cfg.Client == nil {
			return nil, errors.New("provider client or token factory is required")
		}
		factory = passwordGrantFactory(cfg.Client)
	}
	return &Provider{
		factory: factory,
		entries: make(map[string]*tokenSourceEntry),
	}, nil
}

// Token returns a valid access token for creds.
func (p *Provider) Token(ctx context.Context, creds Credentials) (string, error) {
	key := strings.ToLower(strings.TrimSpace(creds.Email))
	if key == "" {
		return "", errors.New("email is required")
	}

	entry, err := p.getOrCreate(ctx, key, creds)
	if err != nil {
		return "", err
	}

	tok, err := entry.source.Token()
	if err != nil {
		return "", fmt.Errorf("fetch token: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("empty access token returned")
	}
	return tok.AccessToken, nil
}

// Forget drops the cached token source for email.
func (p *Provider) Forget(email string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, strings.ToLower(strings.TrimSpace(email)))
}

func (p *Provider) getOrCreate(ctx context.Context, key string, creds Credentials) (*tokenSourceEntry, error) {
	p.mu.RLock()
	entry, ok := p.entries[key]
	p.mu.RUnlock()
	if ok {
		return entry, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if entry, ok = p.entries[key]; ok {
		return entry, nil
	}

	// The source outlives this call; a cancelled request must not break later refreshes.
	ts, err := p.factory(context.WithoutCancel(ctx), creds)
	if err != nil {
		return nil, err
	}
	entry = &tokenSourceEntry{source: oauth2.ReuseTokenSource(nil, ts)}
	p.entries[key] = entry
	return entry, nil
}

func passwordGrantFactory(client *gotrue.Client) TokenFactory {
	return func(ctx context.Context, creds Credentials) (oauth2.TokenSource, error) {
		session, err := client.SignInWithPassword(ctx, creds.Email, creds.Password)
		if err != nil {
			return nil, err
		}
		return &sessionTokenSource{
			ctx:    ctx,
			client: client,
			last:   sessionToken(session),
		}, nil
	}
}

// sessionTokenSource hands out the sign-in token first and then rotates
// through the refresh-token grant. oauth2.ReuseTokenSource serializes calls.
type sessionTokenSource struct {
	ctx    context.Context
	client *gotrue.Client
	last   *oauth2.Token
	used   bool
}

func (s *sessionTokenSource) Token() (*oauth2.Token, error) {
	if !s.used {
		s.used = true
		return s.last, nil
	}
	if s.last.RefreshToken == "" {
		return nil, errors.New("session has no refresh token")
	}
	session, err := s.client.RefreshSession(s.ctx, s.last.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	s.last = sessionToken(session)
	return s.last, nil
}

func sessionToken(session *gotrue.Session) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		TokenType:    session.TokenType,
		Expiry:       session.Expiry(),
	}
}
