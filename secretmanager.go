package authgate

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	secretmanager "google.golang.org/api/secretmanager/v1"
)

// SecretAccessor reads the raw payload of a secret version.
type SecretAccessor interface {
	AccessSecretVersion(ctx context.Context, name string) ([]byte, error)
}

// GoogleSecretAccessor reads secrets through the Secret Manager REST API
// using Application Default Credentials unless options say otherwise.
type GoogleSecretAccessor struct {
	svc *secretmanager.Service
}

// NewGoogleSecretAccessor creates a Secret Manager client.
func NewGoogleSecretAccessor(ctx context.Context, opts ...option.ClientOption) (*GoogleSecretAccessor, error) {
	svc, err := secretmanager.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("secret manager client: %w", err)
	}
	return &GoogleSecretAccessor{svc: svc}, nil
}

// AccessSecretVersion fetches and decodes the payload of the named version.
func (a *GoogleSecretAccessor) AccessSecretVersion(ctx context.Context, name string) ([]byte, error) {
	resp, err := a.svc.Projects.Secrets.Versions.Access(name).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if resp.Payload == nil || resp.Payload.Data == "" {
		return nil, errors.New("secret payload is empty")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Payload.Data)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if want := resp.Payload.DataCrc32c; want != 0 {
		got := int64(crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli)))
		if got != want {
			return nil, fmt.Errorf("payload checksum mismatch for %s", name)
		}
	}
	return data, nil
}

// SecretManagerKeyProvider caches a signing secret held in Secret Manager.
// Refreshes are collapsed into a single in-flight request; readers keep
// using the previous key until the new one is stored.
type SecretManagerKeyProvider struct {
	cachedKey
	accessor  SecretAccessor
	name      string
	algorithm string
	interval  time.Duration
	group     singleflight.Group
	logger    *zap.Logger
}

// NewSecretManagerKeyProvider fetches the initial secret and returns the provider.
func NewSecretManagerKeyProvider(ctx context.Context, cfg SecretManagerConfig, algorithm string, logger *zap.Logger) (*SecretManagerKeyProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	accessor := cfg.Accessor
	if accessor == nil {
		google, err := NewGoogleSecretAccessor(ctx)
		if err != nil {
			return nil, newError(ErrCodeConfiguration, err)
		}
		accessor = google
	}
	keyCfg := KeyConfig{SecretManager: cfg}
	keyCfg.normalize()
	cfg = keyCfg.SecretManager

	p := &SecretManagerKeyProvider{
		accessor:  accessor,
		name:      secretVersionName(cfg),
		algorithm: algorithm,
		interval:  cfg.RefreshInterval,
		logger:    logger,
	}
	if err := p.Refresh(ctx); err != nil {
		return nil, newError(ErrCodeConfiguration, err)
	}
	return p, nil
}

// KeySet returns the most recently fetched secret.
func (p *SecretManagerKeyProvider) KeySet(context.Context) (jwk.Set, error) {
	return p.load()
}

// Refresh fetches the secret again. Concurrent callers share one fetch.
// On failure the previous key stays in place.
func (p *SecretManagerKeyProvider) Refresh(ctx context.Context) error {
	_, err, _ := p.group.Do(p.name, func() (any, error) {
		payload, err := p.accessor.AccessSecretVersion(ctx, p.name)
		if err != nil {
			return nil, newError(ErrCodeKeyUnavailable, fmt.Errorf("access %s: %w", p.name, err))
		}
		set, err := hmacKeySet(payload, p.algorithm)
		if err != nil {
			return nil, newError(ErrCodeKeyUnavailable, err)
		}
		p.store(set)
		return nil, nil
	})
	return err
}

// Run refreshes the secret every interval until ctx is done.
func (p *SecretManagerKeyProvider) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil {
				p.logger.Warn("secret refresh failed, keeping previous key",
					zap.String("secret", p.name),
					zap.Error(err))
				continue
			}
			p.logger.Debug("secret refreshed", zap.String("secret", p.name))
		}
	}
}

func secretVersionName(cfg SecretManagerConfig) string {
	if strings.HasPrefix(cfg.SecretID, "projects/") {
		if strings.Contains(cfg.SecretID, "/versions/") {
			return cfg.SecretID
		}
		return cfg.SecretID + "/versions/" + cfg.Version
	}
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", cfg.ProjectID, cfg.SecretID, cfg.Version)
}
