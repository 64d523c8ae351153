package authgate

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// JWKSKeyProvider serves the asymmetric keys published at the provider's
// JWKS endpoint. The underlying cache refreshes in the background and keeps
// serving the last good set when a refresh fails.
type JWKSKeyProvider struct {
	url   string
	cache *jwk.Cache
	set   jwk.Set
}

// NewJWKSKeyProvider registers the endpoint and performs the initial fetch.
func NewJWKSKeyProvider(ctx context.Context, cfg JWKSConfig) (*JWKSKeyProvider, error) {
	keyCfg := KeyConfig{JWKS: cfg}
	keyCfg.normalize()
	cfg = keyCfg.JWKS

	cache := jwk.NewCache(ctx)
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
		},
	}
	if err := cache.Register(
		cfg.URL,
		jwk.WithMinRefreshInterval(cfg.MinRefresh),
		jwk.WithHTTPClient(httpClient),
	); err != nil {
		return nil, newError(ErrCodeConfiguration, fmt.Errorf("register jwks: %w", err))
	}

	refreshCtx, cancel := context.WithTimeout(ctx, cfg.HTTPTimeout)
	defer cancel()
	if _, err := cache.Refresh(refreshCtx, cfg.URL); err != nil {
		return nil, newError(ErrCodeConfiguration, fmt.Errorf("fetch jwks: %w", err))
	}

	return &JWKSKeyProvider{
		url:   cfg.URL,
		cache: cache,
		set:   jwk.NewCachedSet(cache, cfg.URL),
	}, nil
}

// KeySet returns the cached remote key set.
func (p *JWKSKeyProvider) KeySet(context.Context) (jwk.Set, error) {
	return p.set, nil
}

// Refresh forces a fetch of the key set, for example after a key rotation
// announcement.
func (p *JWKSKeyProvider) Refresh(ctx context.Context) error {
	if _, err := p.cache.Refresh(ctx, p.url); err != nil {
		return newError(ErrCodeKeyUnavailable, err)
	}
	return nil
}
