package authgate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"
)

// KeyProvider supplies the key material used to verify token signatures.
// Implementations must not block on network I/O once loaded.
type KeyProvider interface {
	KeySet(ctx context.Context) (jwk.Set, error)
}

// Runner is implemented by providers that keep their key material fresh
// in the background. Run blocks until ctx is done.
type Runner interface {
	Run(ctx context.Context) error
}

// NewKeyProvider builds the provider selected by cfg and loads its initial key.
// Any failure is an ErrCodeConfiguration error; the caller must not serve
// requests without a key.
func NewKeyProvider(ctx context.Context, cfg KeyConfig, logger *zap.Logger) (KeyProvider, error) {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, newError(ErrCodeConfiguration, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		provider KeyProvider
		err      error
	)
	switch cfg.Source {
	case KeySourceEnvironment:
		provider, err = NewStaticKeyProvider([]byte(cfg.Secret), cfg.Algorithm)
	case KeySourceSecretManager:
		provider, err = NewSecretManagerKeyProvider(ctx, cfg.SecretManager, cfg.Algorithm, logger)
	case KeySourceFile:
		provider, err = NewFileKeyProvider(cfg.FilePath, cfg.Algorithm, logger)
	case KeySourceJWKS:
		provider, err = NewJWKSKeyProvider(ctx, cfg.JWKS)
	}
	if err != nil {
		var e *Error
		if errors.As(err, &e) && e.Code == ErrCodeConfiguration {
			return nil, err
		}
		return nil, newError(ErrCodeConfiguration, fmt.Errorf("load %s key: %w", cfg.Source, err))
	}
	logger.Info("signing key loaded", zap.String("source", string(cfg.Source)))
	return provider, nil
}

// StaticKeyProvider serves a secret that never changes for the process lifetime.
type StaticKeyProvider struct {
	set jwk.Set
}

// NewStaticKeyProvider wraps an HMAC secret taken from configuration.
func NewStaticKeyProvider(secret []byte, algorithm string) (*StaticKeyProvider, error) {
	set, err := hmacKeySet(secret, algorithm)
	if err != nil {
		return nil, newError(ErrCodeConfiguration, err)
	}
	return &StaticKeyProvider{set: set}, nil
}

// KeySet returns the configured key set.
func (p *StaticKeyProvider) KeySet(context.Context) (jwk.Set, error) {
	return p.set, nil
}

// cachedKey is the read-mostly slot shared by refreshing providers. Readers
// load the pointer and never wait on a refresh in flight.
type cachedKey struct {
	current atomic.Pointer[keyEntry]
}

type keyEntry struct {
	set      jwk.Set
	loadedAt time.Time
}

func (c *cachedKey) load() (jwk.Set, error) {
	entry := c.current.Load()
	if entry == nil {
		return nil, newError(ErrCodeKeyUnavailable, errors.New("no key loaded"))
	}
	return entry.set, nil
}

func (c *cachedKey) store(set jwk.Set) {
	c.current.Store(&keyEntry{set: set, loadedAt: time.Now()})
}

// LoadedAt reports when the current key was installed.
func (c *cachedKey) LoadedAt() time.Time {
	if entry := c.current.Load(); entry != nil {
		return entry.loadedAt
	}
	return time.Time{}
}

func hmacKeySet(secret []byte, algorithm string) (jwk.Set, error) {
	trimmed := strings.TrimSpace(string(secret))
	if trimmed == "" {
		return nil, errors.New("signing secret is empty")
	}
	alg, err := hmacAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}
	key, err := jwk.FromRaw([]byte(trimmed))
	if err != nil {
		return nil, fmt.Errorf("secret key: %w", err)
	}
	if err := key.Set(jwk.AlgorithmKey, alg); err != nil {
		return nil, fmt.Errorf("set alg: %w", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, fmt.Errorf("add key: %w", err)
	}
	return set, nil
}
